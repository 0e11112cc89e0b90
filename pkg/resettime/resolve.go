// Package resettime converts the human reset expressions found in
// rate-limit messages ("8pm (Asia/Dhaka)") into absolute UTC instants.
//
// Resolution always goes through the tz database, never through fixed
// offsets, so DST transitions are handled by zone rules. The embedded
// tzdata fallback keeps resolution working on hosts without a system
// zoneinfo directory.
package resettime

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

var (
	// ErrInvalidTimezone indicates the named zone is not in the tz database
	ErrInvalidTimezone = errors.New("invalid timezone")

	// ErrInvalidTimeFormat indicates an out-of-range time component
	ErrInvalidTimeFormat = errors.New("invalid time format")
)

// Resolve returns the next occurrence of the given 12-hour wall-clock time
// in the named zone, as a UTC instant strictly after now. A target equal to
// or earlier than now rolls over to the following day, so "12am" seen at
// 11:59pm resolves one minute ahead, not twenty-four hours.
func Resolve(hour, minute int, meridiem, zone string, now time.Time) (time.Time, error) {
	h24, err := to24Hour(hour, meridiem)
	if err != nil {
		return time.Time{}, err
	}
	if minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("%w: minute %d out of range", ErrInvalidTimeFormat, minute)
	}

	loc, err := loadZone(zone)
	if err != nil {
		return time.Time{}, err
	}

	local := now.In(loc)
	target := time.Date(local.Year(), local.Month(), local.Day(), h24, minute, 0, 0, loc)
	if !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}
	return target.UTC(), nil
}

// Remaining returns the duration until deadline. Negative means the
// deadline has already passed.
func Remaining(deadline, now time.Time) time.Duration {
	return deadline.Sub(now)
}

// FormatRemaining renders a countdown duration as "1h 04m 09s". Elapsed
// deadlines render as "0s".
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

func to24Hour(hour int, meridiem string) (int, error) {
	if hour < 1 || hour > 12 {
		return 0, fmt.Errorf("%w: hour %d out of range", ErrInvalidTimeFormat, hour)
	}
	switch strings.ToLower(strings.TrimSpace(meridiem)) {
	case "am":
		if hour == 12 {
			return 0, nil
		}
		return hour, nil
	case "pm":
		if hour == 12 {
			return 12, nil
		}
		return hour + 12, nil
	default:
		return 0, fmt.Errorf("%w: meridiem %q", ErrInvalidTimeFormat, meridiem)
	}
}

func loadZone(zone string) (*time.Location, error) {
	zone = strings.TrimSpace(zone)
	if zone == "" {
		return nil, fmt.Errorf("%w: empty zone name", ErrInvalidTimezone)
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, zone)
	}
	return loc, nil
}
