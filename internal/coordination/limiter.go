package coordination

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/yantianqi1/write-agent/internal/coreerr"
)

// Priority distinguishes interactive turns from background work, per
// spec.md §5's "per-session priority boost (interactive over background
// summarization)".
type Priority int

const (
	PriorityBackground Priority = iota
	PriorityInteractive
)

// ProviderLimiter caps concurrent in-flight LLM calls per provider
// (spec.md §5's per_provider_concurrency, default 8). A quarter of the cap
// (minimum 1) is reserved for PriorityInteractive callers only: background
// callers contend for the shared pool alone, so a burst of background
// summarization work can never starve an interactive turn of every slot.
// Once the wait queue is deeper than maxQueueDepth, Acquire fails fast with
// a RATE_LIMIT error instead of queueing further.
type ProviderLimiter struct {
	shared   *semaphore.Weighted
	reserved *semaphore.Weighted
	queued   chan struct{}
}

// NewProviderLimiter creates a limiter allowing concurrency concurrent
// holders in total. maxQueueDepth bounds how many callers may wait beyond
// that before Acquire fails fast; 0 means unbounded waiting.
func NewProviderLimiter(concurrency int, maxQueueDepth int) *ProviderLimiter {
	reserve := concurrency / 4
	if reserve < 1 {
		reserve = 1
	}
	if reserve >= concurrency {
		reserve = concurrency - 1
	}
	if reserve < 0 {
		reserve = 0
	}

	var queued chan struct{}
	if maxQueueDepth > 0 {
		queued = make(chan struct{}, maxQueueDepth)
	}

	return &ProviderLimiter{
		shared:   semaphore.NewWeighted(int64(concurrency - reserve)),
		reserved: semaphore.NewWeighted(int64(reserve)),
		queued:   queued,
	}
}

// Acquire blocks until a slot is available and returns a release function.
// Background callers draw only from the shared pool; interactive callers
// try the shared pool first and fall back to the reserved pool rather than
// blocking behind queued background work.
func (l *ProviderLimiter) Acquire(ctx context.Context, priority Priority) (func(), error) {
	if l.queued != nil {
		select {
		case l.queued <- struct{}{}:
			defer func() { <-l.queued }()
		default:
			return nil, coreerr.New(coreerr.RateLimit, "provider request queue is full")
		}
	}

	if priority == PriorityInteractive {
		if l.shared.TryAcquire(1) {
			return func() { l.shared.Release(1) }, nil
		}
		if l.reserved.TryAcquire(1) {
			return func() { l.reserved.Release(1) }, nil
		}
	}

	if err := l.shared.Acquire(ctx, 1); err != nil {
		return nil, coreerr.Wrap(coreerr.Cancelled, err, "acquiring provider concurrency slot")
	}
	return func() { l.shared.Release(1) }, nil
}
