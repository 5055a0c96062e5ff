package game

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/villageois/garou/internal/metrics"
	"github.com/villageois/garou/internal/models"
)

const subscriberBuffer = 256

// EventFilter selects which events a subscriber receives. A nil filter
// receives everything.
type EventFilter func(models.Event) bool

// FilterGame keeps events for one game.
func FilterGame(gameID string) EventFilter {
	return func(e models.Event) bool { return e.GameID == gameID }
}

// FilterTypes keeps events of the given types.
func FilterTypes(types ...models.EventType) EventFilter {
	set := make(map[models.EventType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return func(e models.Event) bool { return set[e.Type] }
}

type subscriber struct {
	ch     chan models.Event
	filter EventFilter
}

// Bus is the typed event stream consumed by presenters. Delivery is
// best-effort: a full subscriber queue drops the event rather than blocking
// the mutating path.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*subscriber]bool
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*subscriber]bool)}
}

// Subscribe registers a consumer. The returned cancel func is idempotent.
func (b *Bus) Subscribe(filter EventFilter) (<-chan models.Event, func()) {
	sub := &subscriber{ch: make(chan models.Event, subscriberBuffer), filter: filter}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subs[sub] = true
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[sub]; ok {
				delete(b.subs, sub)
				close(sub.ch)
			}
			b.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

// Publish fans the event out without ever blocking.
func (b *Bus) Publish(e models.Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		if sub.filter != nil && !sub.filter(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			metrics.EventsDropped.Inc()
			log.Warn().Str("gameId", e.GameID).Str("type", string(e.Type)).
				Msg("subscriber queue full, event dropped")
		}
	}
}

// Close shuts the bus; further publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = make(map[*subscriber]bool)
}

// refreshCoalescer folds refresh-triggering events into at most one
// refresh_panels event per game per dispatch turn.
type refreshCoalescer struct {
	pending map[string]bool
}

func newRefreshCoalescer() *refreshCoalescer {
	return &refreshCoalescer{pending: make(map[string]bool)}
}

func (rc *refreshCoalescer) note(e models.Event) {
	if models.RefreshTriggers[e.Type] {
		rc.pending[e.GameID] = true
	}
}

// flush emits the coalesced refresh events and resets the turn.
func (rc *refreshCoalescer) flush(bus *Bus) {
	for gameID := range rc.pending {
		bus.Publish(models.Event{Type: models.EventRefreshPanels, GameID: gameID})
	}
	if len(rc.pending) > 0 {
		rc.pending = make(map[string]bool)
	}
}
