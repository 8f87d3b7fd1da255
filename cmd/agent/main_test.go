package main

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// blockingLister parks every LoadActive call until release is closed,
// standing in for a slow snapshot fetch.
type blockingLister struct {
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (l *blockingLister) LoadActive(ctx context.Context, force bool) error {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	select {
	case <-l.release:
	case <-ctx.Done():
	}
	return nil
}

func (l *blockingLister) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func TestRefreshWorkerDoesNotBlockCaller(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lister := &blockingLister{release: make(chan struct{})}
	refresh := startRefreshWorker(ctx, lister, slog.New(slog.NewTextHandler(io.Discard, nil)))

	refresh()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && lister.count() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if lister.count() != 1 {
		t.Fatalf("first load never started, calls=%d", lister.count())
	}

	// A burst of triggers must return immediately even while a load is
	// stuck in flight.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			refresh()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refresh trigger blocked on in-flight load")
	}

	close(lister.release)

	// The burst coalesces: one load was in flight, one more was queued.
	deadline = time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if lister.count() >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if got := lister.count(); got != 2 {
		t.Fatalf("got %d loads, want 2 coalesced loads", got)
	}
}
