package fetcher

import (
	"context"
	"sync"
	"time"

	"github.com/example/delivery-broadcast/internal/observability"
)

// CallFunc performs the real network request for an endpoint.
type CallFunc func(ctx context.Context) (any, error)

// Result is what Do hands back. Cached is true when the interval gate
// suppressed a network call and Value is the last successful payload
// (nil when nothing has succeeded yet).
type Result struct {
	Value  any
	Cached bool
}

type entry struct {
	lastAt  time.Time
	value   any
	hasVal  bool
	pending bool
}

// Fetcher gates outbound requests so a given logical endpoint is hit at
// most once per interval across all callers (poll timer, push-triggered
// refresh, manual refresh). force bypasses the gate.
type Fetcher struct {
	mu       sync.Mutex
	interval time.Duration
	entries  map[string]*entry
	now      func() time.Time
}

func New(interval time.Duration) *Fetcher {
	return &Fetcher{
		interval: interval,
		entries:  make(map[string]*entry),
		now:      time.Now,
	}
}

// Do runs fn unless the endpoint was successfully fetched within the
// interval or a call is already in flight; in either case it returns the
// cached result without touching the network. An in-flight call is never
// aborted by a newer one. The gate timestamp advances only on success, so
// a failed call does not delay the next attempt.
func (f *Fetcher) Do(ctx context.Context, key string, force bool, fn CallFunc) (Result, error) {
	f.mu.Lock()
	e, ok := f.entries[key]
	if !ok {
		e = &entry{}
		f.entries[key] = e
	}
	if !force {
		if e.pending || (!e.lastAt.IsZero() && f.now().Sub(e.lastAt) < f.interval) {
			v := e.value
			f.mu.Unlock()
			observability.FetchesTotal.WithLabelValues(key, "gated").Inc()
			return Result{Value: v, Cached: true}, nil
		}
	}
	e.pending = true
	f.mu.Unlock()

	v, err := fn(ctx)

	f.mu.Lock()
	e.pending = false
	if err == nil {
		e.lastAt = f.now()
		e.value = v
		e.hasVal = true
	}
	f.mu.Unlock()

	if err != nil {
		observability.FetchesTotal.WithLabelValues(key, "error").Inc()
		return Result{}, err
	}
	observability.FetchesTotal.WithLabelValues(key, "issued").Inc()
	return Result{Value: v}, nil
}

// Cached returns the last successful payload for the endpoint, if any.
func (f *Fetcher) Cached(key string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[key]
	if !ok || !e.hasVal {
		return nil, false
	}
	return e.value, true
}

// ClearEndpoint resets the gate and cache for an endpoint. Used for
// explicit recovery and by tests.
func (f *Fetcher) ClearEndpoint(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
}

// SetClock overrides the time source. Tests only.
func (f *Fetcher) SetClock(now func() time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}
