package timeutils

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

// Clock is a wall-clock time of day in minutes after midnight.
type Clock int

// ParseClock parses "HH:MM" (24h).
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time format %q, expected HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock(hour*60 + minute), nil
}

// MustClock is ParseClock for literals.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// ClockOf returns the time of day of t in its own location.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

// Window is a daily posting window. Both ends are inclusive; End before Start wraps past midnight.
type Window struct {
	Start Clock
	End   Clock
}

// Contains reports whether the local time falls inside the window.
func (w Window) Contains(local time.Time) bool {
	c := ClockOf(local)
	if w.Start <= w.End {
		return c >= w.Start && c <= w.End
	}
	return c >= w.Start || c <= w.End
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// LoadLocation resolves an IANA zone, falling back when the name is empty or unknown.
func LoadLocation(name, fallback string) *time.Location {
	for _, candidate := range []string{name, fallback} {
		if candidate == "" {
			continue
		}
		if loc, err := time.LoadLocation(candidate); err == nil {
			return loc
		}
	}
	return time.UTC
}

// Jitter returns a uniformly random whole number of minutes in [minMinutes, maxMinutes].
type Jitter func(minMinutes, maxMinutes int) time.Duration

// RandomJitter is the production Jitter.
func RandomJitter(minMinutes, maxMinutes int) time.Duration {
	if maxMinutes < minMinutes {
		maxMinutes = minMinutes
	}
	return time.Duration(minMinutes+rand.IntN(maxMinutes-minMinutes+1)) * time.Minute
}
