package clock

import (
	"strconv"
	"strings"
	"unicode"
)

// timeFields is a loosely scanned "H:MM[:SS][ AM/PM]" string.
type timeFields struct {
	hour, minute int
	meridiem     byte // 'A', 'P' or 0 when absent
}

// scan splits s into numeric fields and an optional meridiem. Only the first
// letter of the meridiem is significant, so a truncated "02:05 P" still reads
// as PM.
func scan(s string) (timeFields, bool) {
	s = strings.TrimSpace(s)
	end := strings.IndexFunc(s, func(r rune) bool {
		return r != ':' && !unicode.IsDigit(r)
	})
	numPart, rest := s, ""
	if end >= 0 {
		numPart, rest = s[:end], strings.TrimSpace(s[end:])
	}

	parts := strings.Split(numPart, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return timeFields{}, false
	}
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return timeFields{}, false
		}
		nums[i] = n
	}

	f := timeFields{hour: nums[0], minute: nums[1]}
	if rest != "" {
		switch rest[0] {
		case 'A', 'a':
			f.meridiem = 'A'
		case 'P', 'p':
			f.meridiem = 'P'
		default:
			return timeFields{}, false
		}
	}
	return f, true
}

func (f timeFields) minutes12() (int, bool) {
	if f.hour < 1 || f.hour > 12 || f.minute < 0 || f.minute > 59 {
		return 0, false
	}
	h := f.hour % 12
	if f.meridiem == 'P' {
		h += 12
	}
	return h*60 + f.minute, true
}

func (f timeFields) minutes24() (int, bool) {
	if f.hour < 0 || f.hour > 23 || f.minute < 0 || f.minute > 59 {
		return 0, false
	}
	return f.hour*60 + f.minute, true
}

// Parse12h converts "H:MM[:SS] AM/PM" into a minute of the day.
func Parse12h(s string) (int, bool) {
	f, ok := scan(s)
	if !ok || f.meridiem == 0 {
		return 0, false
	}
	return f.minutes12()
}

// ParseMinutes converts a 12-hour or 24-hour time string into a minute of the
// day. Seconds are accepted and ignored.
func ParseMinutes(s string) (int, bool) {
	f, ok := scan(s)
	if !ok {
		return 0, false
	}
	if f.meridiem != 0 {
		return f.minutes12()
	}
	return f.minutes24()
}

// Format12h renders a schedule time as "HH:MM AM/PM". Text that does not parse
// is returned unchanged; empty input yields the placeholder.
func Format12h(s string) string {
	if strings.TrimSpace(s) == "" {
		return Placeholder
	}
	total, ok := ParseMinutes(s)
	if !ok {
		return s
	}
	return label(total/60, total%60)
}

// parseHourMinute reads the leading "H:MM" of a 24-hour string.
func parseHourMinute(s string) (int, int, bool) {
	f, ok := scan(s)
	if !ok || f.meridiem != 0 {
		return 0, 0, false
	}
	if _, ok := f.minutes24(); !ok {
		return 0, 0, false
	}
	return f.hour, f.minute, true
}
