package model

import "time"

// Notification kinds.
const (
	JobConfirmation    = "CONFIRMATION"
	JobReminder        = "REMINDER"
	JobCancelCompleted = "CANCEL_COMPLETED"
)

// Notification job statuses.
const (
	JobPending = "PENDING"
	JobSent    = "SENT"
	JobFailed  = "FAILED"
)

// NotificationJob is a persisted intent to send one message of one kind about
// one reservation.
type NotificationJob struct {
	ID            string    // notification_jobs.id
	ReservationID string    // notification_jobs.reservation_id
	Kind          string    // notification_jobs.kind
	ScheduledAt   time.Time // notification_jobs.scheduled_at (UTC)
	Status        string    // notification_jobs.status
	AttemptCount  int       // notification_jobs.attempt_count
	LastError     *string   // notification_jobs.last_error
	CreatedAt     time.Time // notification_jobs.created_at
	UpdatedAt     time.Time // notification_jobs.updated_at
}
