package model

import "time"

// Reservation statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Payment statuses.
const (
	PaymentUnpaid    = "unpaid"
	PaymentSucceeded = "succeeded"
)

// ReservationItem is one priced line of a reservation. UnitPrice is the farm
// price captured when the reservation was created and is never recomputed.
type ReservationItem struct {
	SizeKg       int   `json:"size_kg"`
	Quantity     int   `json:"quantity"`
	UnitPrice    int64 `json:"unit_price_snapshot"`
	LineSubtotal int64 `json:"line_subtotal"`
}

// Reservation records a consumer's rice order for one farm and one weekly
// pickup slot. Rows created by one bulk insert share OrderID.
//
// EventStartAt, EventEndAt and PickupDisplay stay nil until the reservation is
// confirmed; afterwards readers use them as stored.
type Reservation struct {
	ID                 string            // reservations.id
	ConsumerID         *string           // reservations.consumer_id (nullable until bound)
	FarmID             string            // reservations.farm_id
	OrderID            *string           // reservations.order_id (nullable)
	PickupSlotCode     string            // reservations.pickup_slot_code
	Items              []ReservationItem // reservations.items (JSON array)
	RiceSubtotal       int64             // reservations.rice_subtotal
	ServiceFee         int64             // reservations.service_fee
	Currency           string            // reservations.currency
	Status             string            // reservations.status
	PaymentStatus      string            // reservations.payment_status
	PaymentIntentID    *string           // reservations.payment_intent_id
	PaidServiceFee     bool              // reservations.paid_service_fee
	PaymentSucceededAt *time.Time        // reservations.payment_succeeded_at
	EventStartAt       *time.Time        // reservations.event_start_at
	EventEndAt         *time.Time        // reservations.event_end_at
	PickupDisplay      *string           // reservations.pickup_display
	CreatedAt          time.Time         // reservations.created_at
	UpdatedAt          time.Time         // reservations.updated_at
}

// TotalQuantity returns the number of bags across all items.
func (r *Reservation) TotalQuantity() int {
	n := 0
	for _, it := range r.Items {
		n += it.Quantity
	}
	return n
}

// TotalKg returns the weight of all items.
func (r *Reservation) TotalKg() int {
	n := 0
	for _, it := range r.Items {
		n += it.SizeKg * it.Quantity
	}
	return n
}

// BoundTo reports whether the reservation belongs to consumerID.
func (r *Reservation) BoundTo(consumerID string) bool {
	return r.ConsumerID != nil && *r.ConsumerID == consumerID
}
