package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/delivery-broadcast/internal/models"
)

func staticToken(t string) TokenProvider { return func() string { return t } }

func TestListActiveBroadcastsDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("missing bearer token, got %q", got)
		}
		if r.URL.Query().Get("lat") == "" {
			t.Error("lat query param missing")
		}
		w.Write([]byte(`{"success":true,"data":[{"id":"A","fee":50},{"id":"B","fee":30}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken("tok-1"))
	offers, err := c.ListActiveBroadcasts(context.Background(), models.Coord{Lat: 35.1, Lng: 33.3})
	if err != nil {
		t.Fatal(err)
	}
	if len(offers) != 2 || offers[0].ID != "A" || offers[1].Fee != 30 {
		t.Fatalf("unexpected offers: %+v", offers)
	}
}

func TestListActiveBroadcastsAcceptsBareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"X"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	offers, err := c.ListActiveBroadcasts(context.Background(), models.Coord{})
	if err != nil {
		t.Fatal(err)
	}
	if len(offers) != 1 || offers[0].ID != "X" {
		t.Fatalf("unexpected offers: %+v", offers)
	}
}

func TestListActiveBroadcastsCoercesMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"unexpected":"object"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	offers, err := c.ListActiveBroadcasts(context.Background(), models.Coord{})
	if err != nil {
		t.Fatal(err)
	}
	if len(offers) != 0 {
		t.Fatalf("malformed payload must coerce to empty set, got %+v", offers)
	}
}

func TestAcceptBroadcastSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	if err := c.AcceptBroadcast(context.Background(), "A"); err != nil {
		t.Fatal(err)
	}
}

func TestAcceptBroadcastConflictStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"success":false,"message":"Delivery already accepted"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	err := c.AcceptBroadcast(context.Background(), "A")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAcceptBroadcastConflictInBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"delivery already taken"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	err := c.AcceptBroadcast(context.Background(), "A")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAcceptBroadcastGenericFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"driver suspended"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	err := c.AcceptBroadcast(context.Background(), "A")
	if err == nil || errors.Is(err, ErrConflict) {
		t.Fatalf("expected generic failure, got %v", err)
	}
	if err.Error() != "driver suspended" {
		t.Fatalf("server reason must be surfaced, got %q", err.Error())
	}
}

func TestDriverStatusRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{"data":{"isOnline":true}}`))
		case http.MethodPut:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	online, err := c.DriverStatus(context.Background())
	if err != nil || !online {
		t.Fatalf("expected online, got %v %v", online, err)
	}
	if err := c.SetDriverStatus(context.Background(), false); err != nil {
		t.Fatal(err)
	}
}
