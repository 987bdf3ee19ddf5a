package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/rice-reservation/internal/model"
	"github.com/iliyamo/rice-reservation/internal/pickup"
	"github.com/iliyamo/rice-reservation/internal/repository"
	"github.com/iliyamo/rice-reservation/internal/utils"
)

// ReservationStore is the persistence the reservation lifecycle needs.
// *repository.ReservationRepo implements it.
type ReservationStore interface {
	CreatePendingBulk(ctx context.Context, in repository.BulkInput) (*repository.BulkResult, error)
	Get(ctx context.Context, id string) (*model.Reservation, error)
	ListByOrder(ctx context.Context, orderID string) ([]model.Reservation, error)
	FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*model.Reservation, error)
	LatestConfirmedForConsumer(ctx context.Context, consumerID string) (*model.Reservation, error)
	BindConsumer(ctx context.Context, id, consumerID string) error
	SetConfirmed(ctx context.Context, id string, in repository.ConfirmInput) (*model.Reservation, bool, error)
	SetCancelled(ctx context.Context, id string) (*model.Reservation, bool, error)
	ReduceQuantity(ctx context.Context, id string, sizeKg, quantity int) (*model.Reservation, error)
}

// ReservationOptions configures a ReservationService.
type ReservationOptions struct {
	ServiceFee int64
	Currency   string
	Now        func() time.Time
}

// ReservationService applies the reservation state machine:
//
//	pending   --confirm--> confirmed
//	pending   --cancel-->  cancelled
//	confirmed --cancel-->  cancelled
//
// Repeating a transition is a no-op. Confirming a confirmed reservation with
// another payment intent fails with ErrConflictingPayment and confirming a
// cancelled one with ErrInvalidTransition.
type ReservationService struct {
	store      ReservationStore
	signals    Signals
	tokens     *utils.CancelTokenCodec
	log        *zap.Logger
	now        func() time.Time
	serviceFee int64
	currency   string
}

// NewReservationService wires the service. signals may be nil.
func NewReservationService(store ReservationStore, signals Signals, tokens *utils.CancelTokenCodec, log *zap.Logger, opts ReservationOptions) *ReservationService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Currency == "" {
		opts.Currency = "jpy"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ReservationService{
		store:      store,
		signals:    signals,
		tokens:     tokens,
		log:        log.With(zap.String("component", "reservations")),
		now:        opts.Now,
		serviceFee: opts.ServiceFee,
		currency:   opts.Currency,
	}
}

// CreateOrderInput is a consumer's bulk order. DisplayedEventStart is the
// pickup start the client showed; when set, the order is rejected with
// ErrStaleDeadline unless a booking placed now joins exactly that event.
type CreateOrderInput struct {
	ConsumerID          *string
	FarmID              string
	PickupSlotCode      string
	Lines               []repository.BulkLine
	ClientOrderID       string
	DisplayedEventStart *time.Time
}

// OrderLine is one reservation of an order.
type OrderLine struct {
	ReservationID string `json:"reservation_id"`
	SizeKg        int    `json:"size_kg"`
	Quantity      int    `json:"quantity"`
	UnitPrice     int64  `json:"unit_price"`
	LineSubtotal  int64  `json:"line_subtotal"`
	Status        string `json:"status"`
}

// OrderTotals sums an order. TotalAmount is the rice price paid in cash at
// pickup; ServiceFee is charged online.
type OrderTotals struct {
	Count         int   `json:"count"`
	TotalQuantity int   `json:"total_quantity"`
	TotalAmount   int64 `json:"total_amount"`
	ServiceFee    int64 `json:"service_fee"`
}

// OrderSummary is the result of CreateOrder.
type OrderSummary struct {
	OrderID     string      `json:"order_id"`
	Lines       []OrderLine `json:"lines"`
	Totals      OrderTotals `json:"totals"`
	Currency    string      `json:"currency"`
	PickupStart time.Time   `json:"pickup_event_start"`
	PickupEnd   time.Time   `json:"pickup_event_end"`
	Display     string      `json:"pickup_display"`
}

// CreateOrder validates the pickup deadline and inserts the order's pending
// reservations in one transaction.
func (s *ReservationService) CreateOrder(ctx context.Context, in CreateOrderInput) (*OrderSummary, error) {
	now := s.now()
	if in.DisplayedEventStart != nil {
		slot, err := pickup.ParseSlotCode(in.PickupSlotCode)
		if err != nil {
			return nil, err
		}
		if ev := slot.EventForBooking(now); !ev.Start.Equal(*in.DisplayedEventStart) {
			return nil, fmt.Errorf("%w: displayed %s, current %s", ErrStaleDeadline,
				in.DisplayedEventStart.UTC().Format(time.RFC3339), ev.Start.Format(time.RFC3339))
		}
	}
	res, err := s.store.CreatePendingBulk(ctx, repository.BulkInput{
		ConsumerID:     in.ConsumerID,
		FarmID:         in.FarmID,
		PickupSlotCode: in.PickupSlotCode,
		Lines:          in.Lines,
		ClientOrderID:  in.ClientOrderID,
		ServiceFee:     s.serviceFee,
		Currency:       s.currency,
	})
	if errors.Is(err, repository.ErrSlotMismatch) {
		return nil, fmt.Errorf("%w: %v", ErrStaleDeadline, err)
	}
	if err != nil {
		return nil, err
	}
	s.log.Info("order created", zap.String("order_id", res.OrderID), zap.Int("lines", len(res.Reservations)))
	return summarize(res, now), nil
}

func summarize(res *repository.BulkResult, now time.Time) *OrderSummary {
	out := &OrderSummary{OrderID: res.OrderID, Lines: make([]OrderLine, 0, len(res.Reservations))}
	for _, r := range res.Reservations {
		out.Currency = r.Currency
		out.Totals.Count++
		out.Totals.ServiceFee += r.ServiceFee
		for _, it := range r.Items {
			out.Lines = append(out.Lines, OrderLine{
				ReservationID: r.ID,
				SizeKg:        it.SizeKg,
				Quantity:      it.Quantity,
				UnitPrice:     it.UnitPrice,
				LineSubtotal:  it.LineSubtotal,
				Status:        r.Status,
			})
			out.Totals.TotalQuantity += it.Quantity
			out.Totals.TotalAmount += it.LineSubtotal
		}
	}
	if len(res.Reservations) > 0 {
		if ev, err := pickup.EventForBooking(now, res.Reservations[0].PickupSlotCode); err == nil {
			out.PickupStart, out.PickupEnd, out.Display = ev.Start, ev.End, ev.Display()
		}
	}
	return out
}

// Confirm moves a pending reservation to confirmed with the pickup event a
// booking made at its creation time belongs to, then signals the change.
func (s *ReservationService) Confirm(ctx context.Context, id, paymentIntentID string) (*model.Reservation, error) {
	if paymentIntentID == "" {
		return nil, ErrMissingPaymentIntent
	}
	res, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch res.Status {
	case model.StatusCancelled:
		return nil, repository.ErrInvalidTransition
	case model.StatusConfirmed:
		if res.PaymentIntentID != nil && *res.PaymentIntentID == paymentIntentID {
			return res, nil
		}
		return nil, repository.ErrConflictingPayment
	}

	ev, err := pickup.EventForBooking(res.CreatedAt, res.PickupSlotCode)
	if err != nil {
		s.log.Error("stored slot code unusable", zap.String("reservation_id", id), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", repository.ErrInvariant, err)
	}
	out, changed, err := s.store.SetConfirmed(ctx, id, repository.ConfirmInput{
		EventStart:      ev.Start,
		EventEnd:        ev.End,
		PickupDisplay:   ev.Display(),
		PaymentIntentID: paymentIntentID,
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.log.Info("reservation confirmed", zap.String("reservation_id", id), zap.String("payment_intent_id", paymentIntentID))
		if s.signals != nil {
			if err := s.signals.ReservationConfirmed(ctx, id); err != nil {
				s.log.Warn("post-confirm signal failed", zap.String("reservation_id", id), zap.Error(err))
			}
		}
	}
	return out, nil
}

// Cancel cancels a pending or confirmed reservation. Cancelling twice is a
// no-op.
func (s *ReservationService) Cancel(ctx context.Context, id string) (*model.Reservation, error) {
	out, changed, err := s.store.SetCancelled(ctx, id)
	if err != nil {
		return nil, err
	}
	if changed {
		s.log.Info("reservation cancelled", zap.String("reservation_id", id))
		if s.signals != nil {
			if err := s.signals.ReservationCancelled(ctx, id); err != nil {
				s.log.Warn("post-cancel signal failed", zap.String("reservation_id", id), zap.Error(err))
			}
		}
	}
	return out, nil
}

// CancelDeadline is the last instant a consumer may cancel: 3 hours before
// the stored pickup start, or before the booking event for unconfirmed rows.
func CancelDeadline(res *model.Reservation) (time.Time, error) {
	if res.EventStartAt != nil {
		return res.EventStartAt.Add(-pickup.BookingCutoff), nil
	}
	ev, err := pickup.EventForBooking(res.CreatedAt, res.PickupSlotCode)
	if err != nil {
		return time.Time{}, err
	}
	return ev.Start.Add(-pickup.BookingCutoff), nil
}

// IssueCancelToken signs a cancel token for a confirmed, bound reservation.
// The token outlives the cancel deadline so late requests get
// ErrCancelDeadlinePassed rather than an expiry error.
func (s *ReservationService) IssueCancelToken(res *model.Reservation) (string, error) {
	if res.ConsumerID == nil || res.EventEndAt == nil {
		return "", ErrNotCancellable
	}
	return s.tokens.Create(res.ID, *res.ConsumerID, *res.EventEndAt)
}

// CancelView is what the cancel page shows for a token.
type CancelView struct {
	Reservation   *model.Reservation
	Deadline      time.Time
	IsCancellable bool
	Reason        string
}

// PreviewCancel resolves a cancel token for display. Expired tokens are
// still shown but are not cancellable.
func (s *ReservationService) PreviewCancel(ctx context.Context, token string) (*CancelView, error) {
	claims, err := s.tokens.Verify(token, true)
	if err != nil {
		return nil, err
	}
	res, err := s.authorizedForCancel(ctx, claims)
	if err != nil {
		return nil, err
	}
	deadline, err := CancelDeadline(res)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrInvariant, err)
	}
	view := &CancelView{Reservation: res, Deadline: deadline}
	now := s.now()
	switch {
	case res.Status == model.StatusCancelled:
		view.Reason = "already_cancelled"
	case !now.Before(deadline):
		view.Reason = "deadline_passed"
	case now.Unix() > claims.Exp:
		view.Reason = "token_expired"
	default:
		view.IsCancellable = true
	}
	return view, nil
}

// CancelWithToken cancels the reservation named by a verified cancel token.
// The token's consumer must own the reservation and the request must arrive
// before the cancel deadline. An already cancelled reservation is returned
// as is.
func (s *ReservationService) CancelWithToken(ctx context.Context, token string) (*model.Reservation, error) {
	claims, err := s.tokens.Verify(token, false)
	if err != nil {
		return nil, err
	}
	res, err := s.authorizedForCancel(ctx, claims)
	if err != nil {
		return nil, err
	}
	switch res.Status {
	case model.StatusCancelled:
		return res, nil
	case model.StatusPending, model.StatusConfirmed:
	default:
		return nil, ErrNotCancellable
	}
	deadline, err := CancelDeadline(res)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrInvariant, err)
	}
	if !s.now().Before(deadline) {
		return nil, ErrCancelDeadlinePassed
	}
	return s.Cancel(ctx, res.ID)
}

func (s *ReservationService) authorizedForCancel(ctx context.Context, claims utils.CancelClaims) (*model.Reservation, error) {
	res, err := s.store.Get(ctx, claims.ReservationID)
	if err != nil {
		return nil, err
	}
	if !res.BoundTo(claims.ConsumerID) {
		return nil, repository.ErrConsumerMismatch
	}
	return res, nil
}

// BindOrder binds consumerID to res and to every reservation sharing its
// order id.
func (s *ReservationService) BindOrder(ctx context.Context, res *model.Reservation, consumerID string) error {
	rows := []model.Reservation{*res}
	if res.OrderID != nil {
		siblings, err := s.store.ListByOrder(ctx, *res.OrderID)
		if err != nil {
			return err
		}
		rows = siblings
	}
	for _, r := range rows {
		if r.ConsumerID != nil && *r.ConsumerID != consumerID {
			return repository.ErrConsumerMismatch
		}
	}
	for _, r := range rows {
		if err := s.store.BindConsumer(ctx, r.ID, consumerID); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a reservation visible to consumerID. Unbound reservations are
// visible to anyone holding their id.
func (s *ReservationService) Get(ctx context.Context, id, consumerID string) (*model.Reservation, error) {
	res, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.ConsumerID != nil && *res.ConsumerID != consumerID {
		return nil, repository.ErrConsumerMismatch
	}
	return res, nil
}

// ReduceQuantity lowers the bag count of a pending reservation.
func (s *ReservationService) ReduceQuantity(ctx context.Context, id, consumerID string, sizeKg, quantity int) (*model.Reservation, error) {
	if _, err := s.Get(ctx, id, consumerID); err != nil {
		return nil, err
	}
	return s.store.ReduceQuantity(ctx, id, sizeKg, quantity)
}

// LatestConfirmed returns the consumer's most recently confirmed reservation.
func (s *ReservationService) LatestConfirmed(ctx context.Context, consumerID string) (*model.Reservation, error) {
	return s.store.LatestConfirmedForConsumer(ctx, consumerID)
}
