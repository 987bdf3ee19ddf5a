package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/rice-reservation/internal/database"
	"github.com/iliyamo/rice-reservation/internal/model"
	"github.com/iliyamo/rice-reservation/internal/pickup"
)

// ReservationRepo owns every mutation of reservation rows. Mutations of a
// single reservation run in a transaction that locks its row first, so
// concurrent confirm and cancel calls are applied one after the other. All
// timestamps are stored in UTC.
type ReservationRepo struct {
	db         *database.DB
	farms      *FarmRepo
	maxTotalKg int
	now        func() time.Time
}

// NewReservationRepo returns a ReservationRepo bound to db. maxTotalKg caps the
// weight of one order; zero disables the cap.
func NewReservationRepo(db *database.DB, maxTotalKg int) *ReservationRepo {
	return &ReservationRepo{db: db, farms: NewFarmRepo(db), maxTotalKg: maxTotalKg, now: time.Now}
}

// WithClock replaces the clock used to stamp rows.
func (r *ReservationRepo) WithClock(now func() time.Time) *ReservationRepo {
	r.now = now
	return r
}

// DB exposes the underlying pool for callers that compose transactions.
func (r *ReservationRepo) DB() *database.DB { return r.db }

// BulkLine is one requested bag size and quantity.
type BulkLine struct {
	SizeKg   int
	Quantity int
}

// BulkInput describes one order. ConsumerID may be nil for a guest order that
// is bound later. An empty ClientOrderID generates a new order id.
type BulkInput struct {
	ConsumerID     *string
	FarmID         string
	PickupSlotCode string
	Lines          []BulkLine
	ClientOrderID  string
	ServiceFee     int64
	Currency       string
}

// BulkResult lists the reservations inserted for one order, in line order.
type BulkResult struct {
	OrderID      string
	Reservations []model.Reservation
}

// ConfirmInput carries the event fields materialized on confirm.
type ConfirmInput struct {
	EventStart      time.Time
	EventEnd        time.Time
	PickupDisplay   string
	PaymentIntentID string
}

const reservationColumns = `id, consumer_id, farm_id, order_id, pickup_slot_code, items, rice_subtotal, service_fee,
	currency, status, payment_status, payment_intent_id, paid_service_fee, payment_succeeded_at,
	event_start_at, event_end_at, pickup_display, created_at, updated_at`

const reservationColumnCount = 19

// CreatePendingBulk inserts one pending reservation per line under a single
// order id. Unit prices are copied from the farm's price table at call time.
// Either every line is persisted or none is.
func (r *ReservationRepo) CreatePendingBulk(ctx context.Context, in BulkInput) (*BulkResult, error) {
	if len(in.Lines) == 0 {
		return nil, ErrEmptyItems
	}
	for _, l := range in.Lines {
		if l.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity %d for %dkg", ErrInvalidQuantity, l.Quantity, l.SizeKg)
		}
	}
	orderID := strings.TrimSpace(in.ClientOrderID)
	if orderID == "" {
		orderID = newID()
	}
	now := r.now().UTC().Truncate(time.Second)

	var out []model.Reservation
	err := r.db.InTx(ctx, func(tx *sql.Tx) error {
		farm, err := r.farms.get(ctx, tx, in.FarmID, "")
		if err != nil {
			return err
		}
		if !farm.Accepting {
			return ErrFarmNotAccepting
		}
		if in.PickupSlotCode != "" {
			slot, err := pickup.ParseSlotCode(in.PickupSlotCode)
			if err != nil {
				return err
			}
			if slot.Code() != farm.PickupSlotCode {
				return ErrSlotMismatch
			}
		}

		totalKg := 0
		out = make([]model.Reservation, 0, len(in.Lines))
		for i, l := range in.Lines {
			price, ok := farm.PriceFor(l.SizeKg)
			if !ok {
				return fmt.Errorf("%w: %dkg", ErrUnsupportedItem, l.SizeKg)
			}
			totalKg += l.SizeKg * l.Quantity
			item := model.ReservationItem{
				SizeKg:       l.SizeKg,
				Quantity:     l.Quantity,
				UnitPrice:    price,
				LineSubtotal: price * int64(l.Quantity),
			}
			fee := int64(0)
			if i == 0 {
				fee = in.ServiceFee
			}
			oid := orderID
			out = append(out, model.Reservation{
				ID:             newID(),
				ConsumerID:     in.ConsumerID,
				FarmID:         farm.ID,
				OrderID:        &oid,
				PickupSlotCode: farm.PickupSlotCode,
				Items:          []model.ReservationItem{item},
				RiceSubtotal:   item.LineSubtotal,
				ServiceFee:     fee,
				Currency:       in.Currency,
				Status:         model.StatusPending,
				PaymentStatus:  model.PaymentUnpaid,
				CreatedAt:      now,
				UpdatedAt:      now,
			})
		}
		if totalKg <= 0 {
			return ErrInvalidQuantity
		}
		if r.maxTotalKg > 0 && totalKg > r.maxTotalKg {
			return fmt.Errorf("%w: %dkg > %dkg", ErrTotalKgExceeded, totalKg, r.maxTotalKg)
		}

		_, err = tx.ExecContext(ctx, r.db.Rebind(`INSERT INTO orders (order_id, created_at) VALUES (?, ?)`),
			orderID, database.FormatTime(now))
		if database.IsUniqueViolation(err) {
			return ErrDuplicateOrder
		}
		if err != nil {
			return err
		}
		return r.insertBulkTx(ctx, tx, out)
	})
	if err != nil {
		return nil, err
	}
	return &BulkResult{OrderID: orderID, Reservations: out}, nil
}

// insertBulkTx inserts all rows in a single multi-row statement.
func (r *ReservationRepo) insertBulkTx(ctx context.Context, tx *sql.Tx, rows []model.Reservation) error {
	ph := "(" + strings.TrimSuffix(strings.Repeat("?, ", reservationColumnCount), ", ") + ")"
	values := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*reservationColumnCount)
	for _, res := range rows {
		items, err := json.Marshal(res.Items)
		if err != nil {
			return err
		}
		values = append(values, ph)
		args = append(args,
			res.ID, database.NullString(res.ConsumerID), res.FarmID, database.NullString(res.OrderID), res.PickupSlotCode,
			string(items), res.RiceSubtotal, res.ServiceFee, res.Currency, res.Status, res.PaymentStatus,
			database.NullString(res.PaymentIntentID), boolInt(res.PaidServiceFee), database.NullTime(res.PaymentSucceededAt),
			database.NullTime(res.EventStartAt), database.NullTime(res.EventEndAt), database.NullString(res.PickupDisplay),
			database.FormatTime(res.CreatedAt), database.FormatTime(res.UpdatedAt))
	}
	q := `INSERT INTO reservations (` + reservationColumns + `) VALUES ` + strings.Join(values, ", ")
	_, err := tx.ExecContext(ctx, r.db.Rebind(q), args...)
	return err
}

// Get returns the reservation or ErrReservationNotFound.
func (r *ReservationRepo) Get(ctx context.Context, id string) (*model.Reservation, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`), id)
	return scanReservationRow(row)
}

func (r *ReservationRepo) getForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*model.Reservation, error) {
	row := tx.QueryRowContext(ctx, r.db.Rebind(`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`+r.db.ForUpdate()), id)
	return scanReservationRow(row)
}

// BindConsumer attaches a consumer to a reservation. Binding the same
// consumer twice is a no-op; a different consumer yields ErrConsumerMismatch.
func (r *ReservationRepo) BindConsumer(ctx context.Context, id, consumerID string) error {
	return r.db.InTx(ctx, func(tx *sql.Tx) error {
		res, err := r.getForUpdateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if res.ConsumerID != nil {
			if *res.ConsumerID == consumerID {
				return nil
			}
			return ErrConsumerMismatch
		}
		_, err = tx.ExecContext(ctx, r.db.Rebind(`UPDATE reservations SET consumer_id = ?, updated_at = ? WHERE id = ?`),
			consumerID, database.FormatTime(r.now()), id)
		return err
	})
}

// SetConfirmed moves a pending reservation to confirmed, marks the service fee
// paid and stores the materialized pickup event. The returned flag is false
// when the reservation was already confirmed with the same payment intent.
func (r *ReservationRepo) SetConfirmed(ctx context.Context, id string, in ConfirmInput) (*model.Reservation, bool, error) {
	if !in.EventEnd.After(in.EventStart) || in.PickupDisplay == "" {
		return nil, false, fmt.Errorf("%w: confirm %s with event %s-%s", ErrInvariant, id, in.EventStart, in.EventEnd)
	}
	var (
		out     *model.Reservation
		changed bool
	)
	err := r.db.InTx(ctx, func(tx *sql.Tx) error {
		res, err := r.getForUpdateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		switch res.Status {
		case model.StatusConfirmed:
			if res.PaymentIntentID != nil && *res.PaymentIntentID == in.PaymentIntentID {
				out = res
				return nil
			}
			return ErrConflictingPayment
		case model.StatusCancelled:
			return ErrInvalidTransition
		}

		now := r.now().UTC().Truncate(time.Second)
		start, end := in.EventStart.UTC().Truncate(time.Second), in.EventEnd.UTC().Truncate(time.Second)
		pi, display := in.PaymentIntentID, in.PickupDisplay
		_, err = tx.ExecContext(ctx, r.db.Rebind(`UPDATE reservations SET status = ?, payment_status = ?,
			payment_intent_id = ?, paid_service_fee = 1, payment_succeeded_at = ?, event_start_at = ?,
			event_end_at = ?, pickup_display = ?, updated_at = ? WHERE id = ? AND status = ?`),
			model.StatusConfirmed, model.PaymentSucceeded, pi, database.FormatTime(now),
			database.FormatTime(start), database.FormatTime(end), display, database.FormatTime(now), id, model.StatusPending)
		if err != nil {
			return err
		}
		res.Status = model.StatusConfirmed
		res.PaymentStatus = model.PaymentSucceeded
		res.PaymentIntentID = &pi
		res.PaidServiceFee = true
		res.PaymentSucceededAt = &now
		res.EventStartAt = &start
		res.EventEndAt = &end
		res.PickupDisplay = &display
		res.UpdatedAt = now
		out, changed = res, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, changed, nil
}

// SetCancelled cancels a pending or confirmed reservation. The returned flag
// is false when it was already cancelled.
func (r *ReservationRepo) SetCancelled(ctx context.Context, id string) (*model.Reservation, bool, error) {
	var (
		out     *model.Reservation
		changed bool
	)
	err := r.db.InTx(ctx, func(tx *sql.Tx) error {
		res, err := r.getForUpdateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		out = res
		if res.Status == model.StatusCancelled {
			return nil
		}
		now := r.now().UTC().Truncate(time.Second)
		if _, err := tx.ExecContext(ctx, r.db.Rebind(`UPDATE reservations SET status = ?, updated_at = ? WHERE id = ?`),
			model.StatusCancelled, database.FormatTime(now), id); err != nil {
			return err
		}
		res.Status = model.StatusCancelled
		res.UpdatedAt = now
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, changed, nil
}

// ReduceQuantity lowers the quantity of one item of a pending reservation and
// recomputes its subtotals. sizeKg may be zero when the reservation has a
// single item.
func (r *ReservationRepo) ReduceQuantity(ctx context.Context, id string, sizeKg, quantity int) (*model.Reservation, error) {
	var out *model.Reservation
	err := r.db.InTx(ctx, func(tx *sql.Tx) error {
		res, err := r.getForUpdateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if res.Status != model.StatusPending {
			return ErrInvalidTransition
		}
		idx := -1
		for i, it := range res.Items {
			if it.SizeKg == sizeKg || (sizeKg == 0 && len(res.Items) == 1) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: %dkg not in reservation", ErrUnsupportedItem, sizeKg)
		}
		item := &res.Items[idx]
		if quantity < 1 || quantity >= item.Quantity {
			return fmt.Errorf("%w: quantity must be between 1 and %d", ErrInvalidQuantity, item.Quantity-1)
		}
		item.Quantity = quantity
		item.LineSubtotal = item.UnitPrice * int64(quantity)
		res.RiceSubtotal = 0
		for _, it := range res.Items {
			res.RiceSubtotal += it.LineSubtotal
		}
		items, err := json.Marshal(res.Items)
		if err != nil {
			return err
		}
		res.UpdatedAt = r.now().UTC().Truncate(time.Second)
		if _, err := tx.ExecContext(ctx, r.db.Rebind(`UPDATE reservations SET items = ?, rice_subtotal = ?, updated_at = ? WHERE id = ?`),
			string(items), res.RiceSubtotal, database.FormatTime(res.UpdatedAt), id); err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

// LatestConfirmedForConsumer returns the consumer's most recently confirmed
// reservation.
func (r *ReservationRepo) LatestConfirmedForConsumer(ctx context.Context, consumerID string) (*model.Reservation, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT `+reservationColumns+` FROM reservations
		WHERE consumer_id = ? AND status = ? ORDER BY payment_succeeded_at DESC, id DESC LIMIT 1`),
		consumerID, model.StatusConfirmed)
	return scanReservationRow(row)
}

// ListForFarmAndWeek returns the confirmed reservations whose stored event
// starts at weekEventStart. Events are never recomputed here.
func (r *ReservationRepo) ListForFarmAndWeek(ctx context.Context, farmID string, weekEventStart time.Time) ([]model.Reservation, error) {
	return r.list(ctx, `WHERE farm_id = ? AND event_start_at = ? AND status = ? ORDER BY created_at, id`,
		farmID, database.FormatTime(weekEventStart), model.StatusConfirmed)
}

// ListByOrder returns the reservations of one order bundle in insertion order.
func (r *ReservationRepo) ListByOrder(ctx context.Context, orderID string) ([]model.Reservation, error) {
	return r.list(ctx, `WHERE order_id = ? ORDER BY created_at, id`, orderID)
}

// FindByPaymentIntent returns the earliest reservation confirmed with the
// payment intent.
func (r *ReservationRepo) FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*model.Reservation, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT `+reservationColumns+` FROM reservations
		WHERE payment_intent_id = ? ORDER BY created_at, id LIMIT 1`), paymentIntentID)
	return scanReservationRow(row)
}

// CountForFarm returns how many reservations reference the farm.
func (r *ReservationRepo) CountForFarm(ctx context.Context, farmID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT COUNT(*) FROM reservations WHERE farm_id = ?`), farmID).Scan(&n)
	return n, err
}

func (r *ReservationRepo) list(ctx context.Context, where string, args ...any) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`SELECT `+reservationColumns+` FROM reservations `+where), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

func scanReservationRow(row *sql.Row) (*model.Reservation, error) {
	res, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	return res, err
}

func scanReservation(s rowScanner) (*model.Reservation, error) {
	var (
		res                              model.Reservation
		consumer, order, intent, display sql.NullString
		succeededAt, startAt, endAt      sql.NullString
		items, createdAt, updatedAt      string
		paid                             int
	)
	if err := s.Scan(&res.ID, &consumer, &res.FarmID, &order, &res.PickupSlotCode, &items, &res.RiceSubtotal,
		&res.ServiceFee, &res.Currency, &res.Status, &res.PaymentStatus, &intent, &paid, &succeededAt,
		&startAt, &endAt, &display, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(items), &res.Items); err != nil {
		return nil, fmt.Errorf("reservation %s items: %w", res.ID, err)
	}
	res.ConsumerID = database.StringPtr(consumer)
	res.OrderID = database.StringPtr(order)
	res.PaymentIntentID = database.StringPtr(intent)
	res.PickupDisplay = database.StringPtr(display)
	res.PaidServiceFee = paid == 1

	var err error
	if res.PaymentSucceededAt, err = database.ParseNullTime(succeededAt); err != nil {
		return nil, err
	}
	if res.EventStartAt, err = database.ParseNullTime(startAt); err != nil {
		return nil, err
	}
	if res.EventEndAt, err = database.ParseNullTime(endAt); err != nil {
		return nil, err
	}
	if res.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if res.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &res, nil
}
