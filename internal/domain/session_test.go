package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPeriodSeconds(t *testing.T) {
	require.Equal(t, int64(3600), PeriodHour.Seconds())
	require.Equal(t, int64(86400), PeriodDay.Seconds())
	require.Equal(t, time.Hour, PeriodHour.Duration())
	require.Equal(t, 24*time.Hour, PeriodDay.Duration())
}

func TestSessionConfigValidate(t *testing.T) {
	valid := SessionConfig{
		SessionID: 1,
		RateLimit: RateLimit{Enabled: true, Period: PeriodHour, Count: 5},
	}
	require.NoError(t, valid.Validate())

	cfg := valid
	cfg.SessionID = 0
	require.Error(t, cfg.Validate())

	cfg = valid
	cfg.MaxHistoryTurns = -1
	require.Error(t, cfg.Validate())

	cfg = valid
	cfg.RateLimit.Count = 0
	require.Error(t, cfg.Validate())

	cfg = valid
	cfg.RateLimit.Period = "week"
	require.Error(t, cfg.Validate())

	// A disabled rate limit ignores period and count entirely.
	cfg = SessionConfig{SessionID: 1, RateLimit: RateLimit{Period: "week", Count: 0}}
	require.NoError(t, cfg.Validate())
}

func TestUsageCounterExpired(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := UsageCounter{MessageCount: 3, WindowStart: start, LastSeen: start}

	require.False(t, c.Expired(PeriodHour, start.Add(59*time.Minute)))
	require.True(t, c.Expired(PeriodHour, start.Add(time.Hour)))
	require.False(t, c.Expired(PeriodDay, start.Add(23*time.Hour)))
	require.True(t, c.Expired(PeriodDay, start.Add(24*time.Hour)))
}
