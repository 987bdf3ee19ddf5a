package service

import "errors"

// Service-level errors. Store errors from the repository package pass
// through unchanged.
var (
	// ErrStaleDeadline means the pickup event the client displayed is no
	// longer the one a booking placed now would join.
	ErrStaleDeadline = errors.New("pickup deadline changed, re-open the page")
	// ErrCancelDeadlinePassed means the cancel window closed 3 hours before
	// the pickup start.
	ErrCancelDeadlinePassed = errors.New("cancellation deadline has passed")
	// ErrNotCancellable means the reservation is in no state a consumer can
	// cancel from.
	ErrNotCancellable = errors.New("reservation cannot be cancelled")
	// ErrMissingPaymentIntent rejects a confirm without a payment intent id.
	ErrMissingPaymentIntent = errors.New("payment intent id required")
	// ErrAgreementRequired rejects a magic link request without consent.
	ErrAgreementRequired = errors.New("terms must be agreed")
	// ErrInvalidEmail rejects malformed addresses.
	ErrInvalidEmail = errors.New("invalid email address")
)
