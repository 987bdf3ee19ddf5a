package model

import "time"

// Consumer is a person who reserves rice. Email and LineUserID are two
// independent identity keys; a consumer found by one is never merged with a
// consumer found by the other.
type Consumer struct {
	ID         string    // consumers.id
	Email      *string   // consumers.email (nullable, unique)
	LineUserID *string   // consumers.line_user_id (nullable, unique)
	CreatedAt  time.Time // consumers.created_at
}

// MessagingID returns the external messaging user id or "" when unlinked.
func (c *Consumer) MessagingID() string {
	if c == nil || c.LineUserID == nil {
		return ""
	}
	return *c.LineUserID
}
