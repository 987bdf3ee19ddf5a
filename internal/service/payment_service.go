package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/iliyamo/rice-reservation/internal/model"
	"github.com/iliyamo/rice-reservation/internal/repository"
)

// Metadata keys read from payment events.
const (
	MetaReservationID  = "reservation_id"
	MetaLineConsumerID = "line_consumer_id"
)

// CheckoutCompleted is a completed hosted checkout session.
type CheckoutCompleted struct {
	SessionID       string
	PaymentIntentID string
	Metadata        map[string]string
}

// PaymentService turns payment outcomes into reservation transitions.
// Redelivered events are absorbed by the idempotent state machine.
type PaymentService struct {
	store      ReservationStore
	state      *ReservationService
	identities *IdentityService
	log        *zap.Logger
}

// NewPaymentService wires the handler.
func NewPaymentService(store ReservationStore, state *ReservationService, identities *IdentityService, log *zap.Logger) *PaymentService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PaymentService{store: store, state: state, identities: identities, log: log.With(zap.String("component", "payments"))}
}

// CheckoutCompleted binds the paying messaging identity to the order when
// the session carries one, then confirms the order if the session already
// names its payment intent.
func (p *PaymentService) CheckoutCompleted(ctx context.Context, ev CheckoutCompleted) error {
	rid := ev.Metadata[MetaReservationID]
	if rid == "" {
		p.log.Warn("checkout session without reservation_id", zap.String("session_id", ev.SessionID))
		return nil
	}
	res, err := p.store.Get(ctx, rid)
	if err != nil {
		return err
	}
	if line := ev.Metadata[MetaLineConsumerID]; line != "" {
		consumer, err := p.identities.ResolveByLineUserID(ctx, line)
		if err != nil {
			return err
		}
		switch err := p.state.BindOrder(ctx, res, consumer.ID); {
		case errors.Is(err, repository.ErrConsumerMismatch):
			p.log.Warn("checkout identity differs from bound consumer",
				zap.String("reservation_id", rid), zap.String("consumer_id", consumer.ID))
		case err != nil:
			return err
		}
	}
	if ev.PaymentIntentID == "" {
		return nil
	}
	return p.PaymentSucceeded(ctx, ev.PaymentIntentID, rid)
}

// PaymentSucceeded confirms every reservation of the paid order. The order is
// found through reservationID when given, otherwise through a reservation
// previously confirmed with the same payment intent. Cancelled siblings of
// the paid reservation are skipped.
func (p *PaymentService) PaymentSucceeded(ctx context.Context, paymentIntentID, reservationID string) error {
	if paymentIntentID == "" {
		return ErrMissingPaymentIntent
	}
	var (
		res *model.Reservation
		err error
	)
	if reservationID != "" {
		res, err = p.store.Get(ctx, reservationID)
	} else {
		res, err = p.store.FindByPaymentIntent(ctx, paymentIntentID)
	}
	if err != nil {
		return err
	}

	targets := []model.Reservation{*res}
	if res.OrderID != nil {
		if targets, err = p.store.ListByOrder(ctx, *res.OrderID); err != nil {
			return err
		}
	}
	for _, t := range targets {
		_, err := p.state.Confirm(ctx, t.ID, paymentIntentID)
		if err == nil {
			continue
		}
		if t.ID != res.ID && errors.Is(err, repository.ErrInvalidTransition) {
			p.log.Info("skipping cancelled order line", zap.String("reservation_id", t.ID))
			continue
		}
		return err
	}
	p.log.Info("payment applied", zap.String("payment_intent_id", paymentIntentID),
		zap.String("reservation_id", res.ID), zap.Int("reservations", len(targets)))
	return nil
}
