// Package queue defines the broker payloads and the consumer loop shared by
// the API server and the notifier.
package queue

// Queue names. All queues are durable and use the default exchange.
const (
	ReservationEventsQueue = "reservation.events"
	NotificationKickQueue  = "notifications.kick"
	MagicLinkMailQueue     = "mail.magic_link"
)

// Reservation event types.
const (
	EventConfirmed = "reservation.confirmed"
	EventCancelled = "reservation.cancelled"
)

// ReservationEvent is published after a reservation transition commits.
// Consumers reload the reservation; the payload carries only identifiers.
type ReservationEvent struct {
	Type          string `json:"type"`
	ReservationID string `json:"reservation_id"`
	OccurredAt    string `json:"occurred_at"`
}

// NotificationKick asks the notifier to run a dispatch pass ahead of its
// ticker, typically after a confirmation job was scheduled for "now".
type NotificationKick struct {
	Reason        string `json:"reason"`
	ReservationID string `json:"reservation_id,omitempty"`
}

// MagicLinkMessage is handed to the mail pipeline.
type MagicLinkMessage struct {
	To            string `json:"to"`
	URL           string `json:"url"`
	ExpiresAt     string `json:"expires_at"`
	ReservationID string `json:"reservation_id,omitempty"`
}
