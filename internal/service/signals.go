package service

import (
	"context"
	"errors"
)

// Signals receives reservation lifecycle changes after they are committed.
// Implementations must tolerate repeated delivery.
type Signals interface {
	ReservationConfirmed(ctx context.Context, reservationID string) error
	ReservationCancelled(ctx context.Context, reservationID string) error
}

// SignalFanout delivers each signal to every member in order and joins
// their errors.
type SignalFanout []Signals

func (f SignalFanout) ReservationConfirmed(ctx context.Context, reservationID string) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.ReservationConfirmed(ctx, reservationID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f SignalFanout) ReservationCancelled(ctx context.Context, reservationID string) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.ReservationCancelled(ctx, reservationID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
