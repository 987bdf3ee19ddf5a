package handler

import (
	"time"

	"github.com/iliyamo/rice-reservation/internal/model"
	"github.com/iliyamo/rice-reservation/internal/pickup"
)

type reservationView struct {
	ID               string                  `json:"id"`
	OrderID          *string                 `json:"order_id"`
	FarmID           string                  `json:"farm_id"`
	ConsumerID       *string                 `json:"consumer_id"`
	PickupSlotCode   string                  `json:"pickup_slot_code"`
	Items            []model.ReservationItem `json:"items"`
	RiceSubtotal     int64                   `json:"rice_subtotal"`
	ServiceFee       int64                   `json:"service_fee"`
	Currency         string                  `json:"currency"`
	Status           string                  `json:"status"`
	PaymentStatus    string                  `json:"payment_status"`
	PickupEventStart *time.Time              `json:"pickup_event_start"`
	PickupEventEnd   *time.Time              `json:"pickup_event_end"`
	PickupDisplay    *string                 `json:"pickup_display"`
	CreatedAt        time.Time               `json:"created_at"`
	CancelURL        string                  `json:"cancel_url,omitempty"`
}

func newReservationView(r *model.Reservation) reservationView {
	return reservationView{
		ID:               r.ID,
		OrderID:          r.OrderID,
		FarmID:           r.FarmID,
		ConsumerID:       r.ConsumerID,
		PickupSlotCode:   r.PickupSlotCode,
		Items:            r.Items,
		RiceSubtotal:     r.RiceSubtotal,
		ServiceFee:       r.ServiceFee,
		Currency:         r.Currency,
		Status:           r.Status,
		PaymentStatus:    r.PaymentStatus,
		PickupEventStart: r.EventStartAt,
		PickupEventEnd:   r.EventEndAt,
		PickupDisplay:    r.PickupDisplay,
		CreatedAt:        r.CreatedAt,
	}
}

type eventView struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Display  string    `json:"display"`
	Deadline time.Time `json:"booking_deadline"`
}

func newEventView(ev pickup.Event) eventView {
	return eventView{Start: ev.Start, End: ev.End, Display: ev.Display(), Deadline: ev.Start.Add(-pickup.BookingCutoff)}
}

type farmView struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	PickupPlaceName string         `json:"pickup_place_name"`
	PickupNotes     string         `json:"pickup_notes,omitempty"`
	PickupLat       float64        `json:"pickup_lat"`
	PickupLng       float64        `json:"pickup_lng"`
	PickupSlotCode  string         `json:"pickup_slot_code"`
	Prices          map[int]*int64 `json:"prices"`
	Accepting       bool           `json:"accepting"`
	NextPickup      *eventView     `json:"next_pickup,omitempty"`
}

func newFarmView(f *model.Farm, now time.Time) farmView {
	v := farmView{
		ID:              f.ID,
		Name:            f.Name,
		PickupPlaceName: f.PickupPlaceName,
		PickupNotes:     f.PickupNotes,
		PickupLat:       f.PickupLat,
		PickupLng:       f.PickupLng,
		PickupSlotCode:  f.PickupSlotCode,
		Prices:          f.Prices,
		Accepting:       f.Accepting,
	}
	if ev, err := pickup.EventForBooking(now, f.PickupSlotCode); err == nil {
		ev := newEventView(ev)
		v.NextPickup = &ev
	}
	return v
}
