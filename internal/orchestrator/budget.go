package orchestrator

import (
	"context"
	"sync"
	"time"
)

const (
	budgetWindow = time.Minute
	// waitMargin is added to every computed wait so a request never lands
	// exactly on the window edge.
	waitMargin = 100 * time.Millisecond
)

// RateLimits caps the trailing-window spend; the budget stays strictly
// under both values. Tunable per deployment via the tuning file.
type RateLimits struct {
	TokensPerMinute   int `yaml:"tokens_per_minute"`
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// DefaultRateLimits are the provider's published limits.
func DefaultRateLimits() RateLimits {
	return RateLimits{TokensPerMinute: 190_000, RequestsPerMinute: 475}
}

// Clock abstracts wall time so the budget can be tested without sleeping.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

type budgetEntry struct {
	at     time.Time
	tokens int
}

// RateBudget enforces a sliding-window request and token budget. Callers
// Wait before each model request with the planned token cost, then Record
// the actual cost (input plus output) afterwards.
type RateBudget struct {
	mu      sync.Mutex
	clock   Clock
	limits  RateLimits
	entries []budgetEntry
}

// NewRateBudget returns a budget over the real clock.
func NewRateBudget(limits RateLimits) *RateBudget {
	return &RateBudget{clock: realClock{}, limits: limits}
}

// NewRateBudgetWithClock is for tests.
func NewRateBudgetWithClock(limits RateLimits, clock Clock) *RateBudget {
	return &RateBudget{clock: clock, limits: limits}
}

// Wait blocks until issuing a request of plannedTokens would keep the
// trailing window under both limits. Returns early with the context's error
// if ctx is cancelled while waiting.
func (b *RateBudget) Wait(ctx context.Context, plannedTokens int) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		b.mu.Lock()
		now := b.clock.Now()
		b.prune(now)

		used := 0
		for _, e := range b.entries {
			used += e.tokens
		}

		if len(b.entries) < b.limits.RequestsPerMinute && used+plannedTokens <= b.limits.TokensPerMinute {
			b.mu.Unlock()
			return nil
		}
		if len(b.entries) == 0 {
			// A single request over the token budget can never fit; waiting
			// will not help.
			b.mu.Unlock()
			return nil
		}

		oldest := b.entries[0].at
		wait := budgetWindow - now.Sub(oldest) + waitMargin
		b.mu.Unlock()

		if wait <= 0 {
			continue
		}
		b.clock.Sleep(ctx, wait)
	}
}

// Record adds a completed request's actual token cost to the window.
func (b *RateBudget) Record(tokens int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clock.Now()
	b.prune(now)
	b.entries = append(b.entries, budgetEntry{at: now, tokens: tokens})
}

// prune drops entries older than the window. Caller holds the lock.
func (b *RateBudget) prune(now time.Time) {
	cutoff := now.Add(-budgetWindow)
	i := 0
	for i < len(b.entries) && !b.entries[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		b.entries = append(b.entries[:0], b.entries[i:]...)
	}
}
