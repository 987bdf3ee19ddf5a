// Package notification turns reservation transitions into persisted jobs and
// sends due jobs through the messaging channel.
package notification

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/rice-reservation/internal/model"
	"github.com/iliyamo/rice-reservation/internal/reminder"
	"github.com/iliyamo/rice-reservation/internal/repository"
)

// JobStore is the notification job persistence.
type JobStore interface {
	Get(ctx context.Context, id string) (*model.NotificationJob, error)
	Ensure(ctx context.Context, reservationID, kind string, scheduledAt time.Time) (*model.NotificationJob, bool, error)
	DeletePending(ctx context.Context, reservationID, kind string) (int64, error)
	FetchDue(ctx context.Context, now time.Time, limit int) ([]model.NotificationJob, error)
	Claim(ctx context.Context, id, token string) (bool, error)
	MarkSent(ctx context.Context, id, token string) (bool, error)
	MarkFailed(ctx context.Context, id, token, lastError string) (bool, error)
	Retry(ctx context.Context, id string) (*model.NotificationJob, error)
}

// ReservationReader loads reservations.
type ReservationReader interface {
	Get(ctx context.Context, id string) (*model.Reservation, error)
}

// ConsumerReader loads consumers.
type ConsumerReader interface {
	GetByID(ctx context.Context, id string) (*model.Consumer, error)
}

// FarmReader loads farms.
type FarmReader interface {
	GetByID(ctx context.Context, id string) (*model.Farm, error)
}

// Kicker requests an immediate dispatch pass. It may be nil.
type Kicker interface {
	Kick(ctx context.Context, reason, reservationID string) error
}

// Scheduler writes notification jobs after a reservation is confirmed or
// cancelled. It never sends.
type Scheduler struct {
	jobs         JobStore
	reservations ReservationReader
	consumers    ConsumerReader
	kicker       Kicker
	now          func() time.Time
	log          *zap.Logger
}

// NewScheduler wires a Scheduler. kicker may be nil; a nil now uses time.Now.
func NewScheduler(jobs JobStore, reservations ReservationReader, consumers ConsumerReader, kicker Kicker, now func() time.Time, log *zap.Logger) *Scheduler {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		jobs:         jobs,
		reservations: reservations,
		consumers:    consumers,
		kicker:       kicker,
		now:          now,
		log:          log.With(zap.String("component", "scheduler")),
	}
}

// ReservationConfirmed schedules the confirmation message and, when the lead
// time allows, the pickup reminder. Consumers without a messaging id get
// nothing. Repeated calls add no rows.
func (s *Scheduler) ReservationConfirmed(ctx context.Context, reservationID string) error {
	res, messagingID, err := s.load(ctx, reservationID)
	if err != nil || messagingID == "" {
		return err
	}
	if res.Status != model.StatusConfirmed || res.EventStartAt == nil || res.PaymentSucceededAt == nil {
		s.log.Warn("confirm signal for unconfirmed reservation", zap.String("reservation_id", reservationID), zap.String("status", res.Status))
		return nil
	}

	now := s.now()
	_, created, err := s.jobs.Ensure(ctx, res.ID, model.JobConfirmation, now)
	if err != nil {
		return err
	}
	if created {
		s.kick(ctx, "confirmation", res.ID)
	}

	d := reminder.Calculate(*res.EventStartAt, *res.PaymentSucceededAt)
	if !d.ShouldSend {
		s.log.Debug("no reminder for short lead", zap.String("reservation_id", res.ID))
		return nil
	}
	job, created, err := s.jobs.Ensure(ctx, res.ID, model.JobReminder, d.ScheduledAt)
	if err != nil {
		return err
	}
	if created {
		s.log.Info("reminder scheduled", zap.String("reservation_id", res.ID), zap.Time("scheduled_at", job.ScheduledAt))
	}
	return nil
}

// ReservationCancelled purges pending reminders and schedules the
// cancel-completed message.
func (s *Scheduler) ReservationCancelled(ctx context.Context, reservationID string) error {
	n, err := s.jobs.DeletePending(ctx, reservationID, model.JobReminder)
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Info("pending reminders removed", zap.String("reservation_id", reservationID), zap.Int64("count", n))
	}

	_, messagingID, err := s.load(ctx, reservationID)
	if err != nil || messagingID == "" {
		return err
	}
	_, created, err := s.jobs.Ensure(ctx, reservationID, model.JobCancelCompleted, s.now())
	if err != nil {
		return err
	}
	if created {
		s.kick(ctx, "cancel_completed", reservationID)
	}
	return nil
}

func (s *Scheduler) load(ctx context.Context, reservationID string) (*model.Reservation, string, error) {
	res, err := s.reservations.Get(ctx, reservationID)
	if err != nil {
		return nil, "", err
	}
	if res.ConsumerID == nil {
		return res, "", nil
	}
	c, err := s.consumers.GetByID(ctx, *res.ConsumerID)
	if errors.Is(err, repository.ErrConsumerNotFound) {
		return res, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	return res, c.MessagingID(), nil
}

func (s *Scheduler) kick(ctx context.Context, reason, reservationID string) {
	if s.kicker == nil {
		return
	}
	if err := s.kicker.Kick(ctx, reason, reservationID); err != nil {
		s.log.Warn("dispatch kick failed", zap.String("reservation_id", reservationID), zap.Error(err))
	}
}
