package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/example/delivery-broadcast/internal/accept"
	"github.com/example/delivery-broadcast/internal/api"
	"github.com/example/delivery-broadcast/internal/config"
	"github.com/example/delivery-broadcast/internal/fetcher"
	httpapi "github.com/example/delivery-broadcast/internal/http"
	"github.com/example/delivery-broadcast/internal/ingest"
	"github.com/example/delivery-broadcast/internal/location"
	"github.com/example/delivery-broadcast/internal/logging"
	"github.com/example/delivery-broadcast/internal/models"
	"github.com/example/delivery-broadcast/internal/notify"
	"github.com/example/delivery-broadcast/internal/push"
	"github.com/example/delivery-broadcast/internal/session"
	"github.com/example/delivery-broadcast/internal/status"
	"github.com/example/delivery-broadcast/internal/store"
)

func main() {
	cfg, err := config.LoadAgentConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("agent exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.AgentConfig, logger *slog.Logger) error {
	sessions := buildSessionStore(cfg)
	sess, err := sessions.Current(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	logger.Info("session loaded", "user_id", sess.UserID, "role", sess.Role)

	tokens := &tokenCache{store: sessions, token: sess.Token}
	apiClient := api.NewClient(cfg.APIBaseURL, tokens.Token)

	gate := fetcher.New(cfg.FetchMinInterval)
	st := store.New(gate, apiClient, cfg.GraceWindow, logging.Component(logger, "store"))

	toaster := &notify.LogToaster{Logger: logging.Component(logger, "toast")}
	sounder := &notify.LogSounder{Logger: logging.Component(logger, "sound")}
	feed := notify.NewFeed(sounder)

	coord := accept.NewCoordinator(apiClient, st, toaster, sounder, logging.Component(logger, "accept"))

	var provider location.Provider
	if cfg.HasDevice {
		provider = &location.StaticProvider{Coord: models.Coord{Lat: cfg.DeviceLat, Lng: cfg.DeviceLng}}
	}
	resolver := location.NewResolver(provider, cfg.GeoTimeout,
		models.Coord{Lat: cfg.DefaultLat, Lng: cfg.DefaultLng},
		logging.Component(logger, "location"))

	loc := resolver.Resolve(ctx)
	st.SetLocation(loc)
	if resolver.LastError() != nil {
		toaster.Error("Using default location. Enable location services for better results.")
	}

	var publisher *ingest.LocationPublisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = ingest.NewLocationPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer publisher.Close()
		if err := publisher.PublishLocation(sess.UserID, loc); err != nil {
			logger.Warn("location telemetry publish failed", "error", err)
		}
	}

	// The agent owns the session lifecycle, so push handlers are
	// registered exactly once here rather than per UI render.
	pushClient := push.NewClient(cfg.WSURL, logging.Component(logger, "push"))
	registerPushHandlers(ctx, pushClient, st, feed, toaster, sounder, logger)
	if err := pushClient.Connect(ctx, sess.UserID, sess.Role); err != nil {
		return fmt.Errorf("push connect: %w", err)
	}
	defer pushClient.Close()

	checker := status.NewChecker(apiClient, pushClient, logging.Component(logger, "status"))
	go checker.Run(ctx, cfg.StatusInterval)

	if err := apiClient.SetDriverStatus(ctx, true); err != nil {
		logger.Warn("could not mark driver online", "error", err)
	}
	defer func() {
		offCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := apiClient.SetDriverStatus(offCtx, false); err != nil {
			logger.Warn("could not mark driver offline", "error", err)
		}
	}()

	go func() {
		for nav := range coord.Navigations() {
			logger.Info("navigate", "target", nav.Target, "offer_id", nav.OfferID)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		pollLoop(ctx, st, cfg.PollInterval, logger)
	}()
	go func() {
		defer wg.Done()
		tickLoop(ctx, st)
	}()

	ctl := httpapi.NewServer(st, coord, checker, resolver, feed, logging.Component(logger, "http"))
	if publisher != nil {
		ctl.EnableLocationTelemetry(publisher, sess.UserID)
	}
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      ctl,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("control API listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("control API: %w", err)
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("control API shutdown", "error", err)
	}
	wg.Wait()
	return nil
}

func buildSessionStore(cfg config.AgentConfig) session.Store {
	if cfg.RedisAddr != "" {
		return session.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.DriverID)
	}
	return &session.StaticStore{Session: session.Session{
		UserID: cfg.DriverID,
		Role:   cfg.DriverRole,
		Token:  cfg.DriverToken,
	}}
}

// registerPushHandlers wires the store, the notification feed, and the
// presentation collaborators to the push channel.
func registerPushHandlers(ctx context.Context, pc *push.Client, st *store.Store, feed *notify.Feed, toaster notify.Toaster, sounder notify.Sounder, logger *slog.Logger) {
	refresh := startRefreshWorker(ctx, st, logger)

	pc.On(models.EventNewBroadcast, func(data []byte) {
		st.ApplyPushEvent(models.EventNewBroadcast, data)
		sounder.Play("notification")
		refresh()
	})
	pc.On(models.EventAcceptedByOther, func(data []byte) {
		st.ApplyPushEvent(models.EventAcceptedByOther, data)
		toaster.Success("A delivery was accepted by another driver")
		refresh()
	})
	pc.On(models.EventBroadcastRemoved, func(data []byte) {
		st.ApplyPushEvent(models.EventBroadcastRemoved, data)
		refresh()
	})
	pc.On(models.EventBroadcastExpired, func(data []byte) {
		st.ApplyPushEvent(models.EventBroadcastExpired, data)
		toaster.Success("A delivery broadcast has expired")
		refresh()
	})

	pc.On(models.EventNotification, feed.HandleEvent(models.EventNotification))
	pc.On(models.EventDeliveryUpdate, feed.HandleEvent(models.EventDeliveryUpdate))
	pc.On(models.EventSystemAlert, feed.HandleEvent(models.EventSystemAlert))
}

type activeLister interface {
	LoadActive(ctx context.Context, force bool) error
}

// startRefreshWorker returns a trigger that requests a rate-gated snapshot
// refresh without blocking the caller. Requests arriving while a load is in
// flight coalesce into a single follow-up load. Push handlers run on the
// channel's read goroutine, so the load itself must happen elsewhere.
func startRefreshWorker(ctx context.Context, st activeLister, logger *slog.Logger) func() {
	requests := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-requests:
				if err := st.LoadActive(ctx, false); err != nil {
					logger.Debug("push-triggered refresh failed", "error", err)
				}
			}
		}
	}()
	return func() {
		select {
		case requests <- struct{}{}:
		default:
		}
	}
}

// pollLoop drives the background snapshot refresh. The first load is
// forced; subsequent loads ride the rate gate and stay silent on
// failure, keeping the last known snapshot.
func pollLoop(ctx context.Context, st *store.Store, interval time.Duration, logger *slog.Logger) {
	if err := st.LoadActive(ctx, true); err != nil {
		logger.Warn("initial broadcast load failed", "error", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := st.LoadActive(ctx, false); err != nil {
				logger.Debug("background refresh failed", "error", err)
			}
		}
	}
}

// tickLoop advances offer countdowns once per second.
func tickLoop(ctx context.Context, st *store.Store) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.Tick()
		}
	}
}

// tokenCache serves the freshest known bearer token, falling back to the
// last good one when the session store is briefly unreachable.
type tokenCache struct {
	store session.Store

	mu    sync.Mutex
	token string
}

func (t *tokenCache) Token() string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sess, err := t.store.Current(ctx)
	t.mu.Lock()
	defer t.mu.Unlock()
	if err == nil && sess.Token != "" {
		t.token = sess.Token
	}
	return t.token
}
