package booking

import (
	"time"

	"github.com/valdigley/studio-booking/internal/pricing"
)

const (
	// DefaultHorizonDays is how far ahead candidate slots are generated.
	DefaultHorizonDays = 30
)

// Slot is one bookable start time with its computed session price.
type Slot struct {
	StartsAt time.Time `json:"starts_at"`
	Price    float64   `json:"price"`
}

// SlotConfig is the tenant-scoped input to slot generation. Purely a
// value object: slot listing is computed from it plus an appointment
// snapshot, with no hidden state.
type SlotConfig struct {
	Hours          pricing.WeekHours
	CommercialRate float64
	AfterHoursRate float64
	MinimumPhotos  int

	SessionDuration time.Duration
	Buffer          time.Duration

	HorizonDays int
}

// step is the candidate cadence: session length plus buffer.
func (c SlotConfig) step() time.Duration {
	step := c.SessionDuration + c.Buffer
	if step <= 0 {
		step = 2 * time.Hour
	}
	return step
}

// separation is the minimum distance a candidate must keep from an
// existing pending/confirmed appointment.
func (c SlotConfig) separation() time.Duration {
	return c.step()
}

// AvailableSlots generates day-by-day candidate start times inside each
// day's commercial window, excluding past times and any candidate closer
// than the separation window to an existing appointment. The existing
// slice is a snapshot; callers fetch it once per request.
func AvailableSlots(cfg SlotConfig, existing []time.Time, now time.Time) []Slot {
	horizon := cfg.HorizonDays
	if horizon <= 0 {
		horizon = DefaultHorizonDays
	}

	slots := []Slot{}
	loc := now.Location()
	step := cfg.step()

	for d := 0; d < horizon; d++ {
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, d)

		window, ok := cfg.Hours.Window(day)
		if !ok {
			continue
		}
		startMin, endMin, err := window.Bounds()
		if err != nil {
			continue
		}

		for m := startMin; m <= endMin; m += int(step.Minutes()) {
			candidate := day.Add(time.Duration(m) * time.Minute)

			// The whole session must fit inside the window.
			sessionEndMin := m + int(cfg.SessionDuration.Minutes())
			if sessionEndMin > endMin {
				break
			}

			if !candidate.After(now) {
				continue
			}
			if conflicts(candidate, cfg.SessionDuration, existing, cfg.separation()) {
				continue
			}

			rate := pricing.Rate(candidate, cfg.Hours, cfg.CommercialRate, cfg.AfterHoursRate)
			slots = append(slots, Slot{
				StartsAt: candidate,
				Price:    pricing.SessionTotal(rate, cfg.MinimumPhotos),
			})
		}
	}

	return slots
}

// conflicts reports whether the candidate session [start, start+duration)
// overlaps any existing appointment's separation window
// [existing-separation, existing+separation). A candidate starting exactly
// separation after an existing appointment is allowed; one whose session
// runs into the window from before is not.
func conflicts(candidate time.Time, duration time.Duration, existing []time.Time, separation time.Duration) bool {
	end := candidate.Add(duration)
	for _, at := range existing {
		windowStart := at.Add(-separation)
		windowEnd := at.Add(separation)
		if candidate.Before(windowEnd) && end.After(windowStart) {
			return true
		}
	}
	return false
}
