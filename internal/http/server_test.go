package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/delivery-broadcast/internal/accept"
	"github.com/example/delivery-broadcast/internal/api"
	"github.com/example/delivery-broadcast/internal/fetcher"
	"github.com/example/delivery-broadcast/internal/location"
	"github.com/example/delivery-broadcast/internal/models"
	"github.com/example/delivery-broadcast/internal/notify"
	"github.com/example/delivery-broadcast/internal/status"
	"github.com/example/delivery-broadcast/internal/store"
)

type fakeLister struct {
	offers []models.BroadcastOffer
	calls  int
}

func (f *fakeLister) ListActiveBroadcasts(ctx context.Context, loc models.Coord) ([]models.BroadcastOffer, error) {
	f.calls++
	return f.offers, nil
}

type fakeAcceptor struct{ err error }

func (f *fakeAcceptor) AcceptBroadcast(ctx context.Context, offerID string) error { return f.err }

type fakeStatusAPI struct{ online bool }

func (f *fakeStatusAPI) DriverStatus(ctx context.Context) (bool, error) { return f.online, nil }

type fakeConnectivity struct{ connected bool }

func (f *fakeConnectivity) IsConnected() bool { return f.connected }

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type recordingPublisher struct {
	driverIDs []string
	locations []models.DriverLocation
}

func (p *recordingPublisher) PublishLocation(driverID string, loc models.DriverLocation) error {
	p.driverIDs = append(p.driverIDs, driverID)
	p.locations = append(p.locations, loc)
	return nil
}

type fixture struct {
	server   *httptest.Server
	ctl      *Server
	store    *store.Store
	lister   *fakeLister
	acceptor *fakeAcceptor
	feed     *notify.Feed
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := discardLogger()

	lister := &fakeLister{offers: []models.BroadcastOffer{{ID: "A", Fee: 50, TimeRemaining: 60}}}
	st := store.New(fetcher.New(time.Hour), lister, time.Minute, logger)

	acceptor := &fakeAcceptor{}
	coord := accept.NewCoordinator(acceptor, st, notify.NopToaster{}, notify.NopSounder{}, logger)

	checker := status.NewChecker(&fakeStatusAPI{online: true}, &fakeConnectivity{connected: true}, logger)
	checker.Check(context.Background())

	resolver := location.NewResolver(nil, time.Second, models.Coord{Lat: 35.1255, Lng: 33.3095}, logger)
	st.SetLocation(resolver.Resolve(context.Background()))

	feed := notify.NewFeed(notify.NopSounder{})

	if err := st.LoadActive(context.Background(), true); err != nil {
		t.Fatal(err)
	}

	ctl := NewServer(st, coord, checker, resolver, feed, logger)
	srv := httptest.NewServer(ctl)
	t.Cleanup(srv.Close)
	return &fixture{server: srv, ctl: ctl, store: st, lister: lister, acceptor: acceptor, feed: feed}
}

func TestGetBroadcastsReturnsSnapshot(t *testing.T) {
	fx := newFixture(t)

	resp, err := http.Get(fx.server.URL + "/api/v1/broadcasts")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	var body struct {
		Success bool                    `json:"success"`
		Data    []models.BroadcastOffer `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.Success || len(body.Data) != 1 || body.Data[0].ID != "A" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestRefreshForcesPastRateGate(t *testing.T) {
	fx := newFixture(t)
	before := fx.lister.calls

	resp, err := http.Post(fx.server.URL+"/api/v1/broadcasts/refresh", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if fx.lister.calls != before+1 {
		t.Fatalf("manual refresh must bypass the gate, calls %d -> %d", before, fx.lister.calls)
	}
}

func TestAcceptEndpointSuccess(t *testing.T) {
	fx := newFixture(t)

	resp, err := http.Post(fx.server.URL+"/api/v1/broadcasts/A/accept", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if fx.store.Contains("A") {
		t.Fatal("accepted offer must leave the store")
	}
}

func TestAcceptEndpointConflict(t *testing.T) {
	fx := newFixture(t)
	fx.acceptor.err = api.ErrConflict

	resp, err := http.Post(fx.server.URL+"/api/v1/broadcasts/A/accept", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	if !fx.store.Contains("A") {
		t.Fatal("conflict must leave local removal to the push event")
	}
}

func TestStatusEndpoint(t *testing.T) {
	fx := newFixture(t)

	resp, err := http.Get(fx.server.URL + "/api/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Online   bool                  `json:"online"`
		Location models.DriverLocation `json:"location"`
		Advisory string                `json:"locationAdvisory"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.Online {
		t.Fatal("expected online")
	}
	if body.Location.Status != models.LocationResolved || body.Location.Source != models.SourceFallback {
		t.Fatalf("unexpected location %+v", body.Location)
	}
	if body.Advisory == "" {
		t.Fatal("fallback location should carry an advisory")
	}
}

func TestNotificationsEndpoint(t *testing.T) {
	fx := newFixture(t)
	fx.feed.Add(models.Notification{ID: "n1", Message: "hello"})

	resp, err := http.Get(fx.server.URL + "/api/v1/notifications")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Data []models.Notification `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Data) != 1 || body.Data[0].Message != "hello" {
		t.Fatalf("unexpected feed: %+v", body.Data)
	}
}

func TestLocationRetryRepublishesTelemetry(t *testing.T) {
	fx := newFixture(t)
	pub := &recordingPublisher{}
	fx.ctl.EnableLocationTelemetry(pub, "driver-1")

	resp, err := http.Post(fx.server.URL+"/api/v1/location/retry", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	if len(pub.locations) != 1 {
		t.Fatalf("expected one telemetry publish, got %d", len(pub.locations))
	}
	if pub.driverIDs[0] != "driver-1" {
		t.Fatalf("published for %q", pub.driverIDs[0])
	}
	if got := pub.locations[0].Coord; got != (models.Coord{Lat: 35.1255, Lng: 33.3095}) {
		t.Fatalf("published coord %+v", got)
	}
}

func TestReadyReflectsLocationResolution(t *testing.T) {
	fx := newFixture(t)

	resp, err := http.Get(fx.server.URL + "/ready")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ready, got %d", resp.StatusCode)
	}
}
