// Package pricing resolves session prices from tenant commercial-hours
// configuration. Pure datetime math, no I/O.
package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidClock = errors.New("invalid clock value")

// DayWindow is one weekday's commercial window. Times are "HH:MM".
type DayWindow struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// WeekHours maps lowercase weekday names ("monday" … "sunday") to windows.
// A missing or disabled weekday is closed.
type WeekHours map[string]DayWindow

// ParseWeekHours decodes the stored commercial-hours JSON.
func ParseWeekHours(raw []byte) (WeekHours, error) {
	if len(raw) == 0 {
		return WeekHours{}, nil
	}
	var hours WeekHours
	if err := json.Unmarshal(raw, &hours); err != nil {
		return nil, fmt.Errorf("parse commercial hours: %w", err)
	}
	return hours, nil
}

// Window returns the configured window for t's weekday, if any.
func (w WeekHours) Window(t time.Time) (DayWindow, bool) {
	day, ok := w[strings.ToLower(t.Weekday().String())]
	if !ok || !day.Enabled {
		return DayWindow{}, false
	}
	return day, true
}

// Bounds returns the window's start and end as minutes since midnight.
func (d DayWindow) Bounds() (startMin, endMin int, err error) {
	sh, sm, err := parseClock(d.Start)
	if err != nil {
		return 0, 0, err
	}
	eh, em, err := parseClock(d.End)
	if err != nil {
		return 0, 0, err
	}
	return sh*60 + sm, eh*60 + em, nil
}

// InCommercialHours reports whether t falls inside its weekday's window.
// Start is inclusive. End is inclusive when the window's start minute is
// not greater than its end minute, exclusive otherwise.
func InCommercialHours(t time.Time, hours WeekHours) bool {
	day, ok := hours.Window(t)
	if !ok {
		return false
	}

	startH, startM, err := parseClock(day.Start)
	if err != nil {
		return false
	}
	endH, endM, err := parseClock(day.End)
	if err != nil {
		return false
	}

	cur := t.Hour()*60 + t.Minute()
	start := startH*60 + startM
	end := endH*60 + endM

	if cur < start {
		return false
	}
	if startM <= endM {
		return cur <= end
	}
	return cur < end
}

// Rate picks the per-photo session rate for a start time.
func Rate(t time.Time, hours WeekHours, commercialRate, afterHoursRate float64) float64 {
	if InCommercialHours(t, hours) {
		return commercialRate
	}
	return afterHoursRate
}

// SessionTotal is the session price: rate times the included photo count.
func SessionTotal(rate float64, minimumPhotos int) float64 {
	if minimumPhotos < 0 {
		minimumPhotos = 0
	}
	return rate * float64(minimumPhotos)
}

func parseClock(s string) (hour, minute int, err error) {
	parsed, perr := time.Parse("15:04", strings.TrimSpace(s))
	if perr != nil {
		return 0, 0, ErrInvalidClock
	}
	return parsed.Hour(), parsed.Minute(), nil
}
