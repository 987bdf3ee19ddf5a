package pickup

import (
	"fmt"
	"time"
)

var weekdayJP = [7]string{"日", "月", "火", "水", "木", "金", "土"}

// FormatDisplay renders an event as M月D日（曜）HH:MM〜HH:MM in local time.
func FormatDisplay(start, end time.Time) string {
	s := start.In(Location)
	e := end.In(Location)
	return fmt.Sprintf("%d月%d日（%s）%02d:%02d〜%02d:%02d",
		int(s.Month()), s.Day(), weekdayJP[s.Weekday()],
		s.Hour(), s.Minute(), e.Hour(), e.Minute())
}

// Display is FormatDisplay applied to the event.
func (e Event) Display() string { return FormatDisplay(e.Start, e.End) }
