package services

import "time"

// DefaultFreshnessWindow is the minimum interval between two rows of the same sheet.
const DefaultFreshnessWindow = 10 * time.Minute

// ShouldUpdate reports whether a sheet whose last row was written at last is due
// for a new row at now. The window boundary is inclusive.
func ShouldUpdate(last *time.Time, now time.Time, window time.Duration) bool {
	if last == nil {
		return true
	}
	return now.Sub(*last) >= window
}
