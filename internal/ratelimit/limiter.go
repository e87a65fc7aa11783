// Package ratelimit decides whether a subject may send another message to a
// session, counting messages over a sliding hour or day window that resets
// once it expires.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"chat-gateway/internal/domain"
)

// Unlimited is the remaining-quota value reported when rate limiting is
// disabled for a session.
const Unlimited = -1

// RetentionHorizon is how long an idle counter is kept before the sweep
// removes it. Housekeeping only; admission never depends on it.
const RetentionHorizon = 7 * 24 * time.Hour

// Decision is the outcome of a quota check. Remaining is the quota left
// before the current message is counted: 0 when denied, Unlimited when the
// session has no rate limit.
type Decision struct {
	Allowed   bool
	Remaining int
}

// Limiter enforces per-(session, subject) message quotas on top of a
// UsageStore. Check and Commit each run as an atomic read-modify-write under
// a per-key mutex, so concurrent requests from the same subject cannot
// interleave inside a single operation. Between a Check and the matching
// Commit the key is unlocked (generation runs in between), so concurrent
// load from one subject may transiently over-admit; callers get
// best-effort-precise limiting, which matches the store semantics.
type Limiter struct {
	store UsageStore
	now   func() time.Time

	// Striped locks bound memory at a fixed size regardless of how many
	// (session, subject) keys the process ever sees. Two keys hashing to
	// the same stripe serialize needlessly but stay correct.
	locks [lockStripes]sync.Mutex
}

const lockStripes = 256

// NewLimiter creates a Limiter on top of the given store.
func NewLimiter(store UsageStore) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("ratelimit: store must not be nil")
	}
	return &Limiter{
		store: store,
		now:   time.Now,
	}, nil
}

func (l *Limiter) lockFor(key usageKey) *sync.Mutex {
	return &l.locks[stripeFor(key)]
}

func stripeFor(key usageKey) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strconv.FormatInt(key.sessionID, 10)))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(key.subjectID))
	return h.Sum32() % lockStripes
}

// Check decides whether the subject may send a message right now. It never
// writes: an expired window is reset by the next Commit, not here, so a
// request that fails generation leaves the counter untouched.
func (l *Limiter) Check(ctx context.Context, sessionID int64, subjectID string, cfg domain.RateLimit) (Decision, error) {
	if !cfg.Enabled {
		return Decision{Allowed: true, Remaining: Unlimited}, nil
	}

	key := usageKey{sessionID, subjectID}
	m := l.lockFor(key)
	m.Lock()
	defer m.Unlock()

	counter, found, err := l.store.Get(ctx, sessionID, subjectID)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: read counter: %w", err)
	}
	if !found || counter.Expired(cfg.Period, l.now()) {
		return Decision{Allowed: true, Remaining: cfg.Count}, nil
	}
	if counter.MessageCount >= cfg.Count {
		return Decision{Allowed: false, Remaining: 0}, nil
	}
	return Decision{Allowed: true, Remaining: cfg.Count - counter.MessageCount}, nil
}

// Commit records one admitted message after generation succeeded and returns
// the quota left in the window. An absent or expired counter is reset to a
// fresh window with this message as its first.
func (l *Limiter) Commit(ctx context.Context, sessionID int64, subjectID string, cfg domain.RateLimit) (int, error) {
	if !cfg.Enabled {
		return Unlimited, nil
	}

	key := usageKey{sessionID, subjectID}
	m := l.lockFor(key)
	m.Lock()
	defer m.Unlock()

	now := l.now()
	counter, found, err := l.store.Get(ctx, sessionID, subjectID)
	if err != nil {
		return 0, fmt.Errorf("ratelimit: read counter: %w", err)
	}

	if !found || counter.Expired(cfg.Period, now) {
		counter = domain.UsageCounter{MessageCount: 1, WindowStart: now, LastSeen: now}
	} else {
		counter.MessageCount++
		counter.LastSeen = now
	}
	if err := l.store.Put(ctx, sessionID, subjectID, counter); err != nil {
		return 0, fmt.Errorf("ratelimit: write counter: %w", err)
	}

	remaining := cfg.Count - counter.MessageCount
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Sweep removes counters idle past the retention horizon. Best-effort
// housekeeping; callers may ignore the error.
func (l *Limiter) Sweep(ctx context.Context) error {
	if err := l.store.Sweep(ctx, l.now().Add(-RetentionHorizon)); err != nil {
		return fmt.Errorf("ratelimit: sweep: %w", err)
	}
	return nil
}
