package helper

import (
	"strings"
	"time"
)

// IsOpenAt reports whether now falls inside the daily window [jamBuka, jamTutup)
// evaluated in now's location. Both bounds accept HH:MM or HH:MM:SS.
func IsOpenAt(now time.Time, jamBuka, jamTutup string) bool {
	loc := now.Location()

	openTime, ok := clockOn(now, jamBuka, loc)
	if !ok {
		return false
	}
	closeTime, ok := clockOn(now, jamTutup, loc)
	if !ok {
		return false
	}

	// Handle case jam tutup melewati tengah malam
	// Contoh: buka 22:00, tutup 02:00
	if closeTime.Before(openTime) {
		closeTime = closeTime.Add(24 * time.Hour)

		// Jika sekarang sebelum jam buka, berarti masih di periode kemarin
		if now.Before(openTime) {
			openTime = openTime.Add(-24 * time.Hour)
			closeTime = closeTime.Add(-24 * time.Hour)
		}
	}

	return !now.Before(openTime) && now.Before(closeTime)
}

// clockOn places a HH:MM[:SS] clock reading on now's calendar day.
func clockOn(now time.Time, clock string, loc *time.Location) (time.Time, bool) {
	layout := "15:04:05"

	// Normalize format - tambahkan :00 jika cuma HH:MM
	if strings.Count(clock, ":") == 1 {
		clock += ":00"
	}

	t, err := time.ParseInLocation(layout, clock, loc)
	if err != nil {
		return time.Time{}, false
	}

	return time.Date(
		now.Year(), now.Month(), now.Day(),
		t.Hour(), t.Minute(), t.Second(),
		0, loc,
	), true
}
