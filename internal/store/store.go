package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/example/delivery-broadcast/internal/fetcher"
	"github.com/example/delivery-broadcast/internal/models"
	"github.com/example/delivery-broadcast/internal/observability"
)

// EndpointActive is the fetcher gate key for the active-broadcast list.
const EndpointActive = "/delivery/broadcast/active"

// Lister is the slice of the REST client the store needs.
type Lister interface {
	ListActiveBroadcasts(ctx context.Context, loc models.Coord) ([]models.BroadcastOffer, error)
}

// Store is the single source of truth for the displayable set of offers
// and the location used to request them. List responses replace the set
// wholesale; push events update it incrementally. Only Store methods
// mutate the set.
type Store struct {
	mu       sync.Mutex
	offers   []models.BroadcastOffer
	location models.DriverLocation

	// removed holds ids taken out by push events or a local accept, with
	// the removal time. A stale snapshot arriving inside the grace window
	// must not reinstate them.
	removed map[string]time.Time
	grace   time.Duration

	fetch  *fetcher.Fetcher
	lister Lister
	logger *slog.Logger

	subs    map[int]chan struct{}
	nextSub int
	now     func() time.Time
}

func New(f *fetcher.Fetcher, lister Lister, grace time.Duration, logger *slog.Logger) *Store {
	return &Store{
		removed: make(map[string]time.Time),
		grace:   grace,
		fetch:   f,
		lister:  lister,
		logger:  logger,
		subs:    make(map[int]chan struct{}),
		now:     time.Now,
	}
}

// SetLocation replaces the stored location. It does not trigger a fetch;
// the caller decides when to refresh.
func (s *Store) SetLocation(loc models.DriverLocation) {
	s.mu.Lock()
	s.location = loc
	s.mu.Unlock()
}

func (s *Store) Location() models.DriverLocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location
}

// LoadActive requests the active-offer list for the stored location via
// the rate-limited fetcher and replaces the local set with the snapshot.
// A gated call leaves the current set untouched: re-applying a cached
// snapshot could resurrect offers a newer push event already removed.
func (s *Store) LoadActive(ctx context.Context, force bool) error {
	loc := s.Location()

	res, err := s.fetch.Do(ctx, EndpointActive, force, func(ctx context.Context) (any, error) {
		offers, err := s.lister.ListActiveBroadcasts(ctx, loc.Coord)
		if err != nil {
			return nil, err
		}
		return offers, nil
	})
	if err != nil {
		return err
	}
	if res.Cached {
		return nil
	}

	offers, _ := res.Value.([]models.BroadcastOffer)
	s.replaceAll(offers)
	return nil
}

func (s *Store) replaceAll(offers []models.BroadcastOffer) {
	now := s.now()

	s.mu.Lock()
	s.pruneRemovedLocked(now)

	next := make([]models.BroadcastOffer, 0, len(offers))
	for _, o := range offers {
		if t, gone := s.removed[o.ID]; gone && now.Sub(t) < s.grace {
			// Push removal wins over a stale snapshot.
			continue
		}
		next = append(next, o)
	}
	s.offers = next
	observability.OffersActive.Set(float64(len(s.offers)))
	s.mu.Unlock()

	s.notify()
}

// ApplyPushEvent folds one push channel event into the set without a full
// refetch. Removals are idempotent; inserts are deduplicated by id and
// appended after the snapshot order.
func (s *Store) ApplyPushEvent(event string, data []byte) {
	var payload models.BroadcastEventPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		s.logger.Warn("undecodable push payload", "event", event, "error", err)
		return
	}
	id := payload.OfferID()
	if id == "" {
		s.logger.Warn("push payload without offer id", "event", event)
		return
	}

	switch event {
	case models.EventNewBroadcast:
		s.insert(payload.Offer())
	case models.EventAcceptedByOther, models.EventBroadcastRemoved, models.EventBroadcastExpired:
		s.Remove(id)
	default:
		s.logger.Debug("ignoring push event", "event", event)
	}
}

func (s *Store) insert(offer models.BroadcastOffer) {
	s.mu.Lock()
	for _, o := range s.offers {
		if o.ID == offer.ID {
			s.mu.Unlock()
			return
		}
	}
	// A fresh broadcast supersedes any stale removal record for the id.
	delete(s.removed, offer.ID)
	s.offers = append(s.offers, offer)
	observability.OffersActive.Set(float64(len(s.offers)))
	s.mu.Unlock()

	s.notify()
}

// Remove takes an offer out of the active set and records the removal for
// the grace window. Removing an absent id is a no-op.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	s.removed[id] = s.now()
	changed := false
	for i, o := range s.offers {
		if o.ID == id {
			s.offers = append(s.offers[:i], s.offers[i+1:]...)
			changed = true
			break
		}
	}
	if changed {
		observability.OffersActive.Set(float64(len(s.offers)))
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}

// Tick advances every offer's countdown by one second and expires offers
// whose remaining time hits zero.
func (s *Store) Tick() {
	s.mu.Lock()
	next := s.offers[:0]
	changed := false
	for _, o := range s.offers {
		if o.TimeRemaining > 0 {
			o.TimeRemaining--
		}
		if o.TimeRemaining <= 0 {
			s.removed[o.ID] = s.now()
			changed = true
			continue
		}
		next = append(next, o)
	}
	s.offers = next
	if changed {
		observability.OffersActive.Set(float64(len(s.offers)))
	}
	s.mu.Unlock()

	s.notify()
}

// Snapshot returns a copy of the current active set in display order.
func (s *Store) Snapshot() []models.BroadcastOffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.BroadcastOffer, len(s.offers))
	copy(out, s.offers)
	return out
}

func (s *Store) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.offers {
		if o.ID == id {
			return true
		}
	}
	return false
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.offers)
}

// Subscribe registers a change signal. The channel is buffered and never
// blocks the store; a slow consumer coalesces signals. The returned
// cancel function unregisters it.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Store) notify() {
	s.mu.Lock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Store) pruneRemovedLocked(now time.Time) {
	for id, t := range s.removed {
		if now.Sub(t) >= s.grace {
			delete(s.removed, id)
		}
	}
}

// SetClock overrides the time source. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}
