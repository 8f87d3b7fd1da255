package notify

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/delivery-broadcast/internal/models"
)

// feedLimit caps the recent-notification feed. Older entries fall off.
const feedLimit = 10

// Feed keeps the most recent driver notifications delivered over the
// push channel, newest first.
type Feed struct {
	mu    sync.Mutex
	items []models.Notification
	sound Sounder
	now   func() time.Time
}

func NewFeed(sound Sounder) *Feed {
	return &Feed{sound: sound, now: time.Now}
}

type feedPayload struct {
	Message  string `json:"message"`
	Priority string `json:"priority"`
}

// HandleEvent is registered with the push client for the notification,
// delivery_update and system_alert events.
func (f *Feed) HandleEvent(eventType string) func(data []byte) {
	return func(data []byte) {
		var p feedPayload
		_ = json.Unmarshal(data, &p)

		msg := p.Message
		priority := p.Priority
		sound := "notification"
		switch eventType {
		case models.EventDeliveryUpdate:
			if msg == "" {
				msg = "Delivery status updated"
			}
		case models.EventSystemAlert:
			if msg == "" {
				msg = "System alert"
			}
			priority = "high"
			sound = "alert"
		default:
			if msg == "" {
				msg = "New notification received"
			}
		}
		if priority == "" {
			priority = "medium"
		}

		f.sound.Play(sound)
		f.Add(models.Notification{
			ID:        uuid.NewString(),
			Message:   msg,
			Type:      eventType,
			Priority:  priority,
			Timestamp: f.now(),
		})
	}
}

// Add prepends a notification, trimming the feed to its cap.
func (f *Feed) Add(n models.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append([]models.Notification{n}, f.items...)
	if len(f.items) > feedLimit {
		f.items = f.items[:feedLimit]
	}
}

// Recent returns a copy of the feed, newest first.
func (f *Feed) Recent() []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Notification, len(f.items))
	copy(out, f.items)
	return out
}

// Clear empties the feed.
func (f *Feed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = nil
}

// SetClock overrides the time source. Tests only.
func (f *Feed) SetClock(now func() time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}
