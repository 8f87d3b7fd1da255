package location

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/example/delivery-broadcast/internal/models"
)

// ErrUnsupported is what a Provider returns when the platform has no
// positioning capability at all.
var ErrUnsupported = errors.New("geolocation not supported")

// Provider yields the device's current coordinates. Implementations wrap
// whatever positioning source the host platform offers.
type Provider interface {
	Current(ctx context.Context) (models.Coord, error)
}

// Resolver performs exactly one resolution attempt per session with a
// fixed timeout, falling back to a default coordinate on any failure.
// Geolocation failure is never fatal; once resolved (either way) the
// resolver will not retry on its own. Only an explicit Retry re-attempts.
type Resolver struct {
	provider Provider
	timeout  time.Duration
	fallback models.Coord
	logger   *slog.Logger

	mu      sync.Mutex
	current models.DriverLocation
	lastErr error
}

func NewResolver(provider Provider, timeout time.Duration, fallback models.Coord, logger *slog.Logger) *Resolver {
	return &Resolver{
		provider: provider,
		timeout:  timeout,
		fallback: fallback,
		logger:   logger,
		current:  models.DriverLocation{Status: models.LocationPending},
	}
}

// Resolve returns the session's location, attempting resolution only if
// no attempt has completed yet.
func (r *Resolver) Resolve(ctx context.Context) models.DriverLocation {
	r.mu.Lock()
	if r.current.Status == models.LocationResolved {
		loc := r.current
		r.mu.Unlock()
		return loc
	}
	r.mu.Unlock()

	return r.attempt(ctx)
}

// Retry resets resolution state and re-attempts exactly once. Wired to
// the user's "enable location" action.
func (r *Resolver) Retry(ctx context.Context) models.DriverLocation {
	r.mu.Lock()
	r.current = models.DriverLocation{Status: models.LocationPending}
	r.lastErr = nil
	r.mu.Unlock()

	return r.attempt(ctx)
}

func (r *Resolver) attempt(ctx context.Context) models.DriverLocation {
	var (
		coord models.Coord
		err   error
	)
	if r.provider == nil {
		err = ErrUnsupported
	} else {
		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
		coord, err = r.provider.Current(attemptCtx)
		cancel()
	}

	loc := models.DriverLocation{Status: models.LocationResolved}
	if err != nil {
		r.logger.Info("geolocation failed, using default coordinates", "error", err)
		loc.Coord = r.fallback
		loc.Source = models.SourceFallback
	} else {
		loc.Coord = coord
		loc.Source = models.SourceDevice
	}

	r.mu.Lock()
	// Resolution completed, successfully or via fallback. Either way the
	// status is resolved so no further automatic attempts happen.
	r.current = loc
	r.lastErr = err
	r.mu.Unlock()
	return loc
}

// Current returns the resolver's present state without attempting
// resolution.
func (r *Resolver) Current() models.DriverLocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// LastError reports the advisory from the most recent attempt, nil when
// the device position was used.
func (r *Resolver) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}
