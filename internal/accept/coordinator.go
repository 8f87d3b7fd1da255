package accept

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/example/delivery-broadcast/internal/api"
	"github.com/example/delivery-broadcast/internal/notify"
	"github.com/example/delivery-broadcast/internal/observability"
)

// ErrInFlight is returned when an acceptance attempt for the same offer
// id is already running.
var ErrInFlight = errors.New("acceptance already in flight for this delivery")

// Acceptor is the slice of the REST client the coordinator needs.
type Acceptor interface {
	AcceptBroadcast(ctx context.Context, offerID string) error
}

// OfferSet is the store surface the coordinator reconciles against.
type OfferSet interface {
	Remove(id string)
	Contains(id string) bool
}

// Navigation signals that a succeeded accept should move the driver to
// their delivery list. Emitted exactly once per successful attempt.
type Navigation struct {
	OfferID string
	Target  string
}

// Coordinator performs the accept action with immediate local feedback.
// Per offer id at most one attempt is in flight; distinct ids may run
// concurrently. The server always decides the race; the coordinator only
// reconciles the local set afterwards.
type Coordinator struct {
	api    Acceptor
	offers OfferSet
	toast  notify.Toaster
	sound  notify.Sounder
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[string]bool

	nav chan Navigation
}

func NewCoordinator(a Acceptor, offers OfferSet, toast notify.Toaster, sound notify.Sounder, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		api:      a,
		offers:   offers,
		toast:    toast,
		sound:    sound,
		logger:   logger,
		inflight: make(map[string]bool),
		nav:      make(chan Navigation, 16),
	}
}

// Accept runs one attempt for the offer: idle -> in-flight -> succeeded
// or failed. A duplicate call while in flight issues no network request.
func (c *Coordinator) Accept(ctx context.Context, offerID string) error {
	c.mu.Lock()
	if c.inflight[offerID] {
		c.mu.Unlock()
		observability.AcceptsTotal.WithLabelValues("rejected").Inc()
		c.toast.Error("This delivery is already being accepted")
		return ErrInFlight
	}
	c.inflight[offerID] = true
	c.mu.Unlock()

	attemptID := uuid.NewString()
	c.logger.Info("accepting delivery", "offer_id", offerID, "attempt_id", attemptID)

	err := c.api.AcceptBroadcast(ctx, offerID)

	c.mu.Lock()
	delete(c.inflight, offerID)
	c.mu.Unlock()

	if err != nil {
		if errors.Is(err, api.ErrConflict) {
			// Expected reconciliation path: the concurrent
			// accepted-by-other push removes the offer; the store's
			// removal is idempotent so nothing to undo here.
			observability.AcceptsTotal.WithLabelValues("conflict").Inc()
			c.logger.Info("delivery taken by another driver", "offer_id", offerID, "attempt_id", attemptID)
			c.toast.Error(err.Error())
			return err
		}
		observability.AcceptsTotal.WithLabelValues("failed").Inc()
		c.logger.Warn("accept failed", "offer_id", offerID, "attempt_id", attemptID, "error", err)
		c.toast.Error(failureMessage(err))
		return err
	}

	observability.AcceptsTotal.WithLabelValues("succeeded").Inc()
	c.offers.Remove(offerID)
	c.toast.Success("Delivery accepted successfully!")
	c.sound.Play("success")

	select {
	case c.nav <- Navigation{OfferID: offerID, Target: "/driver/deliveries"}:
	default:
		c.logger.Warn("navigation signal dropped", "offer_id", offerID)
	}
	return nil
}

// InFlight reports whether an attempt for the offer id is running.
func (c *Coordinator) InFlight(offerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight[offerID]
}

// Navigations delivers one signal per successful accept.
func (c *Coordinator) Navigations() <-chan Navigation {
	return c.nav
}

func failureMessage(err error) string {
	if err == nil || err.Error() == "" {
		return "Failed to accept delivery"
	}
	return fmt.Sprintf("Failed to accept delivery: %v", err)
}
