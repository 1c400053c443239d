package billing

import "time"

// The billing week starts on Saturday.
const weekStartDay = time.Saturday

// WeekAnchor returns the most recent Saturday at midnight as of now, in
// now's location. Pure: two instants inside the same 7-day window map to
// the same anchor, and Saturday 00:00 maps to itself.
func WeekAnchor(now time.Time) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	back := (int(now.Weekday()) - int(weekStartDay) + 7) % 7
	return midnight.AddDate(0, 0, -back)
}
