package notify

import (
	"fmt"
	"testing"
	"time"

	"github.com/example/delivery-broadcast/internal/models"
)

type recordingSounder struct {
	played []string
}

func (r *recordingSounder) Play(name string) { r.played = append(r.played, name) }

func TestFeedKeepsNewestTen(t *testing.T) {
	f := NewFeed(NopSounder{})
	for i := 0; i < 15; i++ {
		f.Add(models.Notification{ID: fmt.Sprintf("n%d", i), Timestamp: time.Now()})
	}

	recent := f.Recent()
	if len(recent) != 10 {
		t.Fatalf("expected 10 items, got %d", len(recent))
	}
	if recent[0].ID != "n14" {
		t.Fatalf("expected newest first, got %s", recent[0].ID)
	}
	if recent[9].ID != "n5" {
		t.Fatalf("expected oldest kept to be n5, got %s", recent[9].ID)
	}
}

func TestHandleEventDefaultsAndSounds(t *testing.T) {
	sounder := &recordingSounder{}
	f := NewFeed(sounder)

	f.HandleEvent(models.EventNotification)([]byte(`{"message":"hello"}`))
	f.HandleEvent(models.EventDeliveryUpdate)([]byte(`{}`))
	f.HandleEvent(models.EventSystemAlert)([]byte(`{"message":"maintenance"}`))

	recent := f.Recent()
	if len(recent) != 3 {
		t.Fatalf("expected 3 items, got %d", len(recent))
	}

	alert := recent[0]
	if alert.Type != models.EventSystemAlert || alert.Priority != "high" {
		t.Fatalf("system alert must be high priority, got %+v", alert)
	}
	update := recent[1]
	if update.Message != "Delivery status updated" {
		t.Fatalf("missing default message, got %q", update.Message)
	}
	plain := recent[2]
	if plain.Message != "hello" || plain.Priority != "medium" {
		t.Fatalf("unexpected notification %+v", plain)
	}

	if len(sounder.played) != 3 || sounder.played[2] != "alert" {
		t.Fatalf("expected alert sound for system alert, got %v", sounder.played)
	}
}

func TestClearEmptiesFeed(t *testing.T) {
	f := NewFeed(NopSounder{})
	f.Add(models.Notification{ID: "x"})
	f.Clear()
	if len(f.Recent()) != 0 {
		t.Fatal("clear must empty the feed")
	}
}
