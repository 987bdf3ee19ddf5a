// Package pickup resolves weekly pickup slot codes such as WED_19_20 into
// concrete pickup events. All calendar reasoning happens in Japan local time;
// every instant returned by this package is in UTC.
package pickup

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Location is the civil timezone pickups are scheduled in (UTC+9, no DST).
var Location = time.FixedZone("Asia/Tokyo", 9*60*60)

// ErrInvalidSlotCode is returned for codes that do not match WEEKDAY_START_END.
var ErrInvalidSlotCode = errors.New("invalid slot code")

var weekdayCodes = [7]string{"MON", "TUE", "WED", "THU", "FRI", "SAT", "SUN"}

// Slot is a parsed weekly pickup window. Weekday counts from Monday (0) to
// Sunday (6).
type Slot struct {
	Weekday   int
	StartHour int
	EndHour   int
}

// ParseSlotCode parses codes of the form WED_19_20. Leading and trailing space
// and letter case are ignored. The end hour must be after the start hour.
func ParseSlotCode(code string) (Slot, error) {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(code)), "_")
	if len(parts) != 3 {
		return Slot{}, fmt.Errorf("%w: %q", ErrInvalidSlotCode, code)
	}
	wd := -1
	for i, c := range weekdayCodes {
		if parts[0] == c {
			wd = i
			break
		}
	}
	if wd < 0 {
		return Slot{}, fmt.Errorf("%w: unknown weekday in %q", ErrInvalidSlotCode, code)
	}
	start, ok := parseHour(parts[1])
	if !ok {
		return Slot{}, fmt.Errorf("%w: bad start hour in %q", ErrInvalidSlotCode, code)
	}
	end, ok := parseHour(parts[2])
	if !ok {
		return Slot{}, fmt.Errorf("%w: bad end hour in %q", ErrInvalidSlotCode, code)
	}
	if end <= start {
		return Slot{}, fmt.Errorf("%w: end hour must follow start hour in %q", ErrInvalidSlotCode, code)
	}
	return Slot{Weekday: wd, StartHour: start, EndHour: end}, nil
}

func parseHour(s string) (int, bool) {
	if len(s) == 0 || len(s) > 2 {
		return 0, false
	}
	h, err := strconv.Atoi(s)
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	return h, true
}

// Code renders the slot back into its canonical form.
func (s Slot) Code() string {
	return fmt.Sprintf("%s_%02d_%02d", weekdayCodes[s.Weekday], s.StartHour, s.EndHour)
}
