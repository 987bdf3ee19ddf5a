package model

import "time"

// MagicLinkToken is a single-use sign-in token. Only the SHA-256 hash of the
// raw token is stored.
type MagicLinkToken struct {
	ID            string     // magic_link_tokens.id
	TokenHash     string     // magic_link_tokens.token_hash
	Email         string     // magic_link_tokens.email
	ReservationID *string    // magic_link_tokens.reservation_id
	ConsumerID    *string    // magic_link_tokens.consumer_id
	Agreed        bool       // magic_link_tokens.agreed
	ExpiresAt     time.Time  // magic_link_tokens.expires_at
	UsedAt        *time.Time // magic_link_tokens.used_at
	CreatedAt     time.Time  // magic_link_tokens.created_at
}
