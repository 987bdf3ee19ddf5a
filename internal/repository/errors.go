// Package repository defines the persistence layer and the error values
// reused across repositories. These sentinels let services and handlers
// distinguish failure classes with errors.Is; handlers translate them into
// HTTP status codes in one place.
package repository

import "errors"

// Not-found errors. Each maps to a distinct 404 code and is never
// synthesized from another error kind.
var (
	ErrReservationNotFound = errors.New("reservation not found")
	ErrFarmNotFound        = errors.New("farm not found")
	ErrConsumerNotFound    = errors.New("consumer not found")
	ErrTokenNotFound       = errors.New("token not found")
	ErrJobNotFound         = errors.New("notification job not found")
)

// Input errors raised while validating a bulk order.
var (
	ErrEmptyItems      = errors.New("no items in order")
	ErrInvalidQuantity = errors.New("quantity rule violated")
	ErrUnsupportedItem = errors.New("bag size not sold by farm")
	ErrTotalKgExceeded = errors.New("order exceeds maximum total weight")
	ErrSlotMismatch    = errors.New("pickup slot no longer offered by farm")
)

// State errors.
var (
	// ErrFarmNotAccepting is returned when a farm has stopped taking orders.
	ErrFarmNotAccepting = errors.New("farm not accepting reservations")
	// ErrInvalidTransition is returned for status changes the reservation
	// lifecycle does not allow, such as confirming a cancelled reservation.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConflictingPayment is returned when a confirmed reservation is
	// confirmed again with a different payment intent.
	ErrConflictingPayment = errors.New("reservation already confirmed by another payment")
	// ErrConsumerMismatch is returned when a reservation is already bound to
	// a different consumer.
	ErrConsumerMismatch = errors.New("reservation bound to another consumer")
	// ErrDuplicateOrder is returned when a client order id was already used.
	ErrDuplicateOrder = errors.New("order id already used")
	// ErrTokenAlreadyUsed and ErrTokenExpired reject magic links.
	ErrTokenAlreadyUsed = errors.New("token already used")
	ErrTokenExpired     = errors.New("token expired")
)

// ErrInvariant marks data that violates a model invariant. It indicates a
// programming error and is never repaired automatically.
var ErrInvariant = errors.New("invariant violated")
