// Package reminder decides when a pickup reminder is sent.
package reminder

import (
	"time"

	"github.com/iliyamo/rice-reservation/internal/pickup"
)

// MinLead is the shortest confirm-to-pickup interval that still gets a
// reminder.
const MinLead = 48 * time.Hour

// Decision is the outcome of Calculate. ScheduledAt is UTC and only set when
// ShouldSend is true.
type Decision struct {
	ShouldSend  bool
	ScheduledAt time.Time
}

// Calculate picks the reminder send time for a pickup starting at
// pickupStart that was confirmed at confirmedAt.
//
//	06:00-11:59 pickup -> 20:00 the day before
//	12:00-15:59 pickup -> 08:00 the same day
//	16:00-21:59 pickup -> 12:00 the same day
//	otherwise          -> 08:00 the same day
func Calculate(pickupStart, confirmedAt time.Time) Decision {
	if pickupStart.Sub(confirmedAt) < MinLead {
		return Decision{}
	}
	local := pickupStart.In(pickup.Location)
	y, m, d := local.Date()
	var at time.Time
	switch h := local.Hour(); {
	case h >= 6 && h < 12:
		at = time.Date(y, m, d-1, 20, 0, 0, 0, pickup.Location)
	case h >= 12 && h < 16:
		at = time.Date(y, m, d, 8, 0, 0, 0, pickup.Location)
	case h >= 16 && h < 22:
		at = time.Date(y, m, d, 12, 0, 0, 0, pickup.Location)
	default:
		at = time.Date(y, m, d, 8, 0, 0, 0, pickup.Location)
	}
	if !at.After(confirmedAt) {
		return Decision{}
	}
	return Decision{ShouldSend: true, ScheduledAt: at.UTC()}
}
