package pickup

import "time"

const (
	// BookingCutoff is how long before an event start new bookings stop
	// joining that event.
	BookingCutoff = 3 * time.Hour
	// DisplayGrace is how long after an event end it is still shown as the
	// current week's event.
	DisplayGrace = 3 * time.Hour

	week = 7 * 24 * time.Hour
)

// Event is one concrete occurrence of a slot. Start and End are UTC.
type Event struct {
	Start time.Time
	End   time.Time
}

func (e Event) nextWeek() Event {
	return Event{Start: e.Start.Add(week), End: e.End.Add(week)}
}

// BaseWeekEvent returns the occurrence of the slot inside the Monday-anchored
// local week that contains ref.
func (s Slot) BaseWeekEvent(ref time.Time) Event {
	local := ref.In(Location)
	offset := (int(local.Weekday()) + 6) % 7
	day := time.Date(local.Year(), local.Month(), local.Day()-offset+s.Weekday, 0, 0, 0, 0, Location)
	start := time.Date(day.Year(), day.Month(), day.Day(), s.StartHour, 0, 0, 0, Location)
	end := time.Date(day.Year(), day.Month(), day.Day(), s.EndHour, 0, 0, 0, Location)
	return Event{Start: start.UTC(), End: end.UTC()}
}

// EventForBooking returns the event a booking made at createdAt belongs to.
// Bookings at or before start minus BookingCutoff join this week's event;
// later bookings roll over to next week.
func (s Slot) EventForBooking(createdAt time.Time) Event {
	ev := s.BaseWeekEvent(createdAt)
	if !createdAt.After(ev.Start.Add(-BookingCutoff)) {
		return ev
	}
	return ev.nextWeek()
}

// EventForExport returns the event considered current at now for rosters and
// display. An event stays current until DisplayGrace after its end.
func (s Slot) EventForExport(now time.Time) Event {
	ev := s.BaseWeekEvent(now)
	if !now.After(ev.End.Add(DisplayGrace)) {
		return ev
	}
	return ev.nextWeek()
}

// NextPickupDeadline is the last instant a booking placed now still joins the
// event it is assigned to.
func (s Slot) NextPickupDeadline(now time.Time) time.Time {
	return s.EventForBooking(now).Start.Add(-BookingCutoff)
}

// EventForBooking parses code and resolves the booking event for createdAt.
func EventForBooking(createdAt time.Time, code string) (Event, error) {
	s, err := ParseSlotCode(code)
	if err != nil {
		return Event{}, err
	}
	return s.EventForBooking(createdAt), nil
}

// EventForExport parses code and resolves the display event for now.
func EventForExport(now time.Time, code string) (Event, error) {
	s, err := ParseSlotCode(code)
	if err != nil {
		return Event{}, err
	}
	return s.EventForExport(now), nil
}

// NextPickupDeadline parses code and returns the booking deadline for now.
func NextPickupDeadline(now time.Time, code string) (time.Time, error) {
	s, err := ParseSlotCode(code)
	if err != nil {
		return time.Time{}, err
	}
	return s.NextPickupDeadline(now), nil
}
