// Package lockout implements the progressive lockout state machine:
// UNLOCKED, then LOCKED_SHORT at the first threshold, then LOCKED_LONG at
// the second. The failure counter itself lives in the user store.
package lockout

import (
	"errors"
	"time"
)

// Level is the lockout state a failure count maps to.
type Level uint8

const (
	Unlocked Level = iota
	LockedShort
	LockedLong
)

func (l Level) String() string {
	switch l {
	case LockedShort:
		return "LOCKED_SHORT"
	case LockedLong:
		return "LOCKED_LONG"
	default:
		return "UNLOCKED"
	}
}

// Config holds the thresholds and block durations.
type Config struct {
	ShortThreshold int
	LongThreshold  int
	ShortDuration  time.Duration
	LongDuration   time.Duration
}

// DefaultConfig blocks for 10 minutes at 4 failures and for 24 hours at 8.
func DefaultConfig() Config {
	return Config{
		ShortThreshold: 4,
		LongThreshold:  8,
		ShortDuration:  10 * time.Minute,
		LongDuration:   24 * time.Hour,
	}
}

// Validate rejects thresholds that would not escalate.
func (c Config) Validate() error {
	if c.ShortThreshold < 1 {
		return errors.New("lockout short threshold must be >= 1")
	}
	if c.LongThreshold <= c.ShortThreshold {
		return errors.New("lockout long threshold must be greater than short threshold")
	}
	if c.ShortDuration <= 0 || c.LongDuration <= 0 {
		return errors.New("lockout durations must be > 0")
	}
	if c.LongDuration < c.ShortDuration {
		return errors.New("lockout long duration must be >= short duration")
	}
	return nil
}

// Decision is the outcome of one recorded failure.
type Decision struct {
	Level     Level
	Duration  time.Duration
	ExpiresAt time.Time
}

// Block reports whether the decision applies a new block.
func (d Decision) Block() bool {
	return d.Level != Unlocked
}

// Decide maps the failure count reached by the latest failed attempt to a
// block. The short block fires exactly at ShortThreshold. Every count at or
// past LongThreshold applies the long block, so once a long block elapses
// the next failure re-applies it until a successful login resets the streak.
func (c Config) Decide(failures int, now time.Time) Decision {
	switch {
	case failures >= c.LongThreshold:
		return Decision{Level: LockedLong, Duration: c.LongDuration, ExpiresAt: now.Add(c.LongDuration)}
	case failures == c.ShortThreshold:
		return Decision{Level: LockedShort, Duration: c.ShortDuration, ExpiresAt: now.Add(c.ShortDuration)}
	default:
		return Decision{Level: Unlocked}
	}
}
