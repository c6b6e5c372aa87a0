package utils

import (
	"time"

	"equipment-booking-backend/internal/domain"
)

const day = 24 * time.Hour

// RentalDays counts the days an interval is charged for: started days round up
// and any valid interval is at least one day.
func RentalDays(iv domain.Interval) int {
	d := iv.Duration()
	if d <= 0 {
		return 0
	}
	days := int(d / day)
	if d%day > 0 {
		days++
	}
	return days
}

// TrailingWindow returns the `days`-long window that ends at end.
func TrailingWindow(end time.Time, days int) domain.Interval {
	return domain.Interval{Start: end.AddDate(0, 0, -days), End: end}
}
