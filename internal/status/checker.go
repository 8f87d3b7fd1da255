package status

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/delivery-broadcast/internal/observability"
)

// StatusAPI is the slice of the REST client the checker needs.
type StatusAPI interface {
	DriverStatus(ctx context.Context) (bool, error)
}

// Connectivity reports push channel liveness.
type Connectivity interface {
	IsConnected() bool
}

// Checker periodically derives whether the driver counts as online. The
// driver is online when either the backend says so or the push channel
// is up; if the status API is unreachable the push channel alone decides.
type Checker struct {
	api    StatusAPI
	push   Connectivity
	logger *slog.Logger

	mu     sync.Mutex
	online bool
}

func NewChecker(api StatusAPI, push Connectivity, logger *slog.Logger) *Checker {
	return &Checker{api: api, push: push, logger: logger}
}

// Check performs one evaluation and records the result.
func (c *Checker) Check(ctx context.Context) bool {
	socketOnline := c.push.IsConnected()

	apiOnline, err := c.api.DriverStatus(ctx)
	if err != nil {
		c.logger.Debug("status API unreachable, using push connectivity", "error", err)
		apiOnline = false
	}

	online := apiOnline || socketOnline
	c.set(online)
	return online
}

// Run re-checks on the given cadence until the context ends.
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	c.Check(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Online returns the most recently computed state.
func (c *Checker) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *Checker) set(online bool) {
	c.mu.Lock()
	c.online = online
	c.mu.Unlock()
	if online {
		observability.AgentOnline.Set(1)
	} else {
		observability.AgentOnline.Set(0)
	}
}
