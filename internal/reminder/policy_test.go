package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/rice-reservation/internal/pickup"
)

// 2025-10-18 is a Saturday.
func at(day, hour, min int) time.Time {
	return time.Date(2025, time.October, day, hour, min, 0, 0, pickup.Location)
}

func TestCalculate(t *testing.T) {
	cases := []struct {
		name      string
		pickup    time.Time
		confirmed time.Time
		want      Decision
	}{
		{"morning pickup, 49h lead", at(18, 10, 0), at(16, 9, 0), Decision{true, at(17, 20, 0).UTC()}},
		{"morning pickup, 47h lead", at(18, 10, 0), at(16, 11, 0), Decision{}},
		{"exactly 48h lead", at(18, 10, 0), at(16, 10, 0), Decision{true, at(17, 20, 0).UTC()}},
		{"afternoon pickup", at(18, 14, 0), at(14, 9, 0), Decision{true, at(18, 8, 0).UTC()}},
		{"evening pickup", at(18, 18, 0), at(14, 9, 0), Decision{true, at(18, 12, 0).UTC()}},
		{"late night pickup", at(18, 2, 0), at(14, 9, 0), Decision{true, at(18, 8, 0).UTC()}},
		{"22h pickup", at(18, 22, 0), at(14, 9, 0), Decision{true, at(18, 8, 0).UTC()}},
		{"boundary 6h is morning", at(18, 6, 0), at(14, 9, 0), Decision{true, at(17, 20, 0).UTC()}},
		{"boundary 16h is evening", at(18, 16, 0), at(14, 9, 0), Decision{true, at(18, 12, 0).UTC()}},
		{"night pickup with minimum lead", at(18, 2, 0), at(16, 1, 0), Decision{true, at(18, 8, 0).UTC()}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Calculate(tc.pickup, tc.confirmed))
		})
	}
}

func TestCalculateScheduleFollowsConfirm(t *testing.T) {
	for h := 0; h < 24; h++ {
		start := at(18, h, 30)
		confirmed := start.Add(-MinLead)
		d := Calculate(start, confirmed)
		if assert.Truef(t, d.ShouldSend, "hour %d", h) {
			assert.Truef(t, d.ScheduledAt.After(confirmed), "hour %d", h)
			assert.Equal(t, time.UTC, d.ScheduledAt.Location())
		}
		assert.Falsef(t, Calculate(start, confirmed.Add(time.Second)).ShouldSend, "hour %d", h)
	}
}
