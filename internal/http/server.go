package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/delivery-broadcast/internal/accept"
	"github.com/example/delivery-broadcast/internal/api"
	"github.com/example/delivery-broadcast/internal/location"
	"github.com/example/delivery-broadcast/internal/models"
	"github.com/example/delivery-broadcast/internal/notify"
	"github.com/example/delivery-broadcast/internal/status"
	"github.com/example/delivery-broadcast/internal/store"
)

// Server is the agent's local control surface: it stands in for the
// dashboard UI, exposing the store snapshot and the user-level actions
// (refresh, accept, location retry) plus health and metrics.
type Server struct {
	store    *store.Store
	coord    *accept.Coordinator
	checker  *status.Checker
	resolver *location.Resolver
	feed     *notify.Feed
	logger   *slog.Logger
	mux      *mux.Router

	publisher LocationPublisher
	driverID  string
}

// LocationPublisher streams a freshly resolved location to fleet
// telemetry. Satisfied by ingest.LocationPublisher.
type LocationPublisher interface {
	PublishLocation(driverID string, loc models.DriverLocation) error
}

func NewServer(st *store.Store, coord *accept.Coordinator, checker *status.Checker, resolver *location.Resolver, feed *notify.Feed, logger *slog.Logger) *Server {
	s := &Server{
		store:    st,
		coord:    coord,
		checker:  checker,
		resolver: resolver,
		feed:     feed,
		logger:   logger,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

// EnableLocationTelemetry makes location retries republish the resolved
// coordinates, so the fleet topic tracks the driver past startup.
func (s *Server) EnableLocationTelemetry(p LocationPublisher, driverID string) {
	s.publisher = p
	s.driverID = driverID
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.HandleFunc("/ready", s.handleReady).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())

	s.mux.HandleFunc("/api/v1/broadcasts", s.handleBroadcasts).Methods("GET")
	s.mux.HandleFunc("/api/v1/broadcasts/refresh", s.handleRefresh).Methods("POST")
	s.mux.HandleFunc("/api/v1/broadcasts/{id}/accept", s.handleAccept).Methods("POST")
	s.mux.HandleFunc("/api/v1/status", s.handleStatus).Methods("GET")
	s.mux.HandleFunc("/api/v1/notifications", s.handleNotifications).Methods("GET")
	s.mux.HandleFunc("/api/v1/location/retry", s.handleLocationRetry).Methods("POST")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.resolver.Current().Status != models.LocationResolved {
		http.Error(w, "location not resolved", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(200)
	w.Write([]byte("ready"))
}

func (s *Server) handleBroadcasts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"data":     s.store.Snapshot(),
		"location": s.store.Location(),
	})
}

// handleRefresh is the user-initiated refresh: it forces past the rate
// gate and, unlike the background poll, surfaces fetch errors.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.store.LoadActive(r.Context(), true); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"success": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": s.store.Snapshot()})
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := s.coord.Accept(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	case errors.Is(err, accept.ErrInFlight):
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"success": false, "message": err.Error()})
	case errors.Is(err, api.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "message": err.Error()})
	default:
		writeJSON(w, http.StatusBadGateway, map[string]any{"success": false, "message": err.Error()})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	loc := s.resolver.Current()
	resp := map[string]any{
		"online":   s.checker.Online(),
		"location": loc,
	}
	if err := s.resolver.LastError(); err != nil {
		resp["locationAdvisory"] = "Using default location. Enable location services for better results."
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": s.feed.Recent()})
}

// handleLocationRetry is the "enable location" action: one fresh
// resolution attempt, then a forced refresh for the new coordinates.
func (s *Server) handleLocationRetry(w http.ResponseWriter, r *http.Request) {
	loc := s.resolver.Retry(r.Context())
	s.store.SetLocation(loc)
	if s.publisher != nil {
		if err := s.publisher.PublishLocation(s.driverID, loc); err != nil {
			s.logger.Warn("location telemetry publish failed", "error", err)
		}
	}
	if err := s.store.LoadActive(r.Context(), true); err != nil {
		s.logger.Warn("refresh after location retry failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "location": loc})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
