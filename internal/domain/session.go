package domain

import (
	"errors"
	"fmt"
	"time"
)

// Period is the sliding-window length for rate limiting.
type Period string

const (
	PeriodHour Period = "hour"
	PeriodDay  Period = "day"
)

// Seconds returns the window length. The two values are fixed; the period
// enum is the only knob.
func (p Period) Seconds() int64 {
	if p == PeriodHour {
		return 3600
	}
	return 86400
}

// Duration returns the window length as a time.Duration.
func (p Period) Duration() time.Duration {
	return time.Duration(p.Seconds()) * time.Second
}

// RateLimit caps how many messages a subject may send per window.
type RateLimit struct {
	Enabled bool
	Period  Period
	Count   int
}

// SessionConfig is the configuration of one chat session. It is owned by the
// surrounding application and read-only to the gateway.
type SessionConfig struct {
	SessionID                     int64
	Persona                       string
	MaxHistoryTurns               int // user+assistant pairs, 0 = unlimited
	IncludeReferenceContent       bool
	IncludeHiddenReferenceContent bool
	RateLimit                     RateLimit
}

// Validate checks the invariants a well-formed session config must hold.
func (c SessionConfig) Validate() error {
	if c.SessionID <= 0 {
		return errors.New("domain: session id must be positive")
	}
	if c.MaxHistoryTurns < 0 {
		return errors.New("domain: max history turns must not be negative")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Count <= 0 {
			return errors.New("domain: rate limit count must be positive when enabled")
		}
		if c.RateLimit.Period != PeriodHour && c.RateLimit.Period != PeriodDay {
			return fmt.Errorf("domain: unknown rate limit period %q", c.RateLimit.Period)
		}
	}
	return nil
}
