// Package clock tracks the device's notion of wall time.
// The backend is the only authoritative time source. Between syncs the
// minute-of-day is extrapolated from the monotonic clock, and before the
// first sync the last rendered label (persisted across restarts) is used.
// This package has no I/O; time is injectable via a now function.
package clock

import (
	"errors"
	"fmt"
	"time"
)

// Placeholder is shown when no time is known at all.
const Placeholder = "--:--"

// Unknown is the cache stamp used when the clock has never been valid.
const Unknown = "Unknown"

// StoreKey is where the last rendered label is persisted.
const StoreKey = "time_display"

// MinutesPerDay is the modulus for minute-of-day arithmetic.
const MinutesPerDay = 24 * 60

const displayMax = 15

// ErrNoTime is returned by ApplyServerTime when the response carries neither
// a 12-hour nor a 24-hour field.
var ErrNoTime = errors.New("clock: response has no local time")

// Clock holds synchronized time-of-day state.
// Not safe for concurrent use; callers hold the coordination lock.
type Clock struct {
	now func() time.Time

	synced     bool
	base       time.Time // monotonic reading taken at the last sync
	baseHour   int       // -1 when the last sync carried no 24h time
	baseMinute int

	display      string
	displayValid bool
}

// New creates a Clock. display is the label persisted by a previous run; an
// empty string or the placeholder means nothing was cached.
func New(now func() time.Time, display string) *Clock {
	c := &Clock{
		now:        now,
		baseHour:   -1,
		baseMinute: -1,
		display:    Placeholder,
	}
	if display != "" && display != Placeholder {
		c.display = truncate(display, displayMax)
		c.displayValid = true
	}
	return c
}

// Sync sets the extrapolation base from an authoritative hour and minute.
// Safe to call repeatedly.
func (c *Clock) Sync(hour24, minute int) {
	c.baseHour = ((hour24 % 24) + 24) % 24
	c.baseMinute = ((minute % 60) + 60) % 60
	c.base = c.now()
	c.synced = true
}

// ApplyServerTime applies a time endpoint response. local12 wins for the
// display label; local24, when parseable, also sets the extrapolation base.
func (c *Clock) ApplyServerTime(local12, local24 string) error {
	if local12 == "" && local24 == "" {
		return ErrNoTime
	}

	c.base = time.Time{}
	c.baseHour = -1
	c.baseMinute = -1

	h, m, ok := parseHourMinute(local24)
	switch {
	case local12 != "":
		c.display = truncate(local12, displayMax)
	case ok:
		c.display = label(h, m)
	default:
		c.display = Placeholder
	}
	c.displayValid = c.display != Placeholder

	if ok {
		c.Sync(h, m)
	} else {
		c.synced = true
	}
	return nil
}

// Synced reports whether at least one server sync succeeded.
func (c *Clock) Synced() bool {
	return c.synced
}

func (c *Clock) hasBase() bool {
	return c.synced && !c.base.IsZero() && c.baseHour >= 0 && c.baseMinute >= 0
}

func (c *Clock) extrapolate() int {
	elapsed := int(c.now().Sub(c.base) / time.Minute)
	total := (c.baseHour*60 + c.baseMinute + elapsed) % MinutesPerDay
	if total < 0 {
		total += MinutesPerDay
	}
	return total
}

// NowMinutes returns the current minute-of-day. It extrapolates from the last
// sync when possible, otherwise parses the cached display label.
func (c *Clock) NowMinutes() (int, bool) {
	if c.hasBase() {
		return c.extrapolate(), true
	}
	if c.displayValid {
		return ParseMinutes(c.display)
	}
	return 0, false
}

// Render returns the "HH:MM AM/PM" label for the current time and caches it
// so a later unsynced boot can still show the last known time.
func (c *Clock) Render() string {
	if !c.synced {
		if c.displayValid {
			return c.display
		}
		return Placeholder
	}
	if !c.hasBase() {
		return c.display
	}

	total := c.extrapolate()
	c.display = label(total/60, total%60)
	c.displayValid = true
	return c.display
}

// Display returns the cached label without recomputing it.
func (c *Clock) Display() string {
	return c.display
}

// DisplayValid reports whether Display holds a real time.
func (c *Clock) DisplayValid() bool {
	return c.displayValid
}

// Stamp returns the label used to mark cache freshness.
func (c *Clock) Stamp() string {
	if c.displayValid && c.display != Placeholder {
		return c.display
	}
	return Unknown
}

func label(hour24, minute int) string {
	ampm := "AM"
	if hour24 >= 12 {
		ampm = "PM"
	}
	hour12 := hour24 % 12
	if hour12 == 0 {
		hour12 = 12
	}
	return fmt.Sprintf("%02d:%02d %s", hour12, minute, ampm)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	r := []rune(s)
	for len(string(r)) > max {
		r = r[:len(r)-1]
	}
	return string(r)
}
