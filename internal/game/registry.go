package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/villageois/garou/internal/metrics"
	"github.com/villageois/garou/internal/models"
)

// Registry is the authoritative in-memory map of running games. Mutations
// publish fresh Game pointers; readers always see a consistent snapshot.
type Registry struct {
	mu       sync.RWMutex
	games    map[string]*models.Game
	channels map[string]string // secondary channel id -> game id
}

func NewRegistry() *Registry {
	return &Registry{
		games:    make(map[string]*models.Game),
		channels: make(map[string]string),
	}
}

// Get returns the current snapshot pointer, or nil. Callers must treat the
// returned Game as immutable.
func (r *Registry) Get(gameID string) *models.Game {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.games[gameID]
}

// Resolve accepts the main game id or any provisioned secondary channel id.
func (r *Registry) Resolve(id string) *models.Game {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if g, ok := r.games[id]; ok {
		return g
	}
	if gameID, ok := r.channels[id]; ok {
		return r.games[gameID]
	}
	return nil
}

// Publish swaps in a new snapshot and refreshes the reverse channel index.
func (r *Registry) Publish(g *models.Game) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, known := r.games[g.ID]; !known {
		metrics.GamesActive.Inc()
	}
	r.games[g.ID] = g
	for _, ch := range g.Channels {
		r.channels[ch] = g.ID
	}
}

// Remove drops the game and its channel index entries.
func (r *Registry) Remove(gameID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.games[gameID]
	if !ok {
		return
	}
	delete(r.games, gameID)
	for _, ch := range g.Channels {
		delete(r.channels, ch)
	}
	metrics.GamesActive.Dec()
}

// All returns the current snapshots in no particular order.
func (r *Registry) All() []*models.Game {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Game, 0, len(r.games))
	for _, g := range r.games {
		out = append(out, g)
	}
	return out
}

// ============================================================================
// DUPLICATE-INTENT GUARD
// ============================================================================

type guardEntry struct {
	result  models.Result
	expires time.Time
}

// IntentGuard remembers (verb, game, actor, clientSeq) for a short window so
// front-end retries replay the original result instead of re-executing.
// The in-memory map is authoritative; Redis, when available, mirrors the
// keys so dashboards can observe retry pressure.
type IntentGuard struct {
	mu      sync.Mutex
	seen    map[string]guardEntry
	window  time.Duration
	rdb     *redis.Client
	lastGC  time.Time
}

func NewIntentGuard(window time.Duration, rdb *redis.Client) *IntentGuard {
	return &IntentGuard{
		seen:   make(map[string]guardEntry),
		window: window,
		rdb:    rdb,
	}
}

func guardKey(in models.Intent) string {
	return fmt.Sprintf("%s|%s|%s|%s", in.GameID, in.Actor.ID, in.Verb, in.ClientSeq)
}

// Check returns the cached result for a duplicate submission.
func (ig *IntentGuard) Check(in models.Intent) (models.Result, bool) {
	if in.ClientSeq == "" {
		return models.Result{}, false
	}
	ig.mu.Lock()
	defer ig.mu.Unlock()
	ig.gcLocked()
	e, ok := ig.seen[guardKey(in)]
	if !ok || time.Now().After(e.expires) {
		return models.Result{}, false
	}
	return e.result, true
}

// Remember stores the result for the duplicate window.
func (ig *IntentGuard) Remember(in models.Intent, res models.Result) {
	if in.ClientSeq == "" {
		return
	}
	key := guardKey(in)
	ig.mu.Lock()
	ig.seen[key] = guardEntry{result: res, expires: time.Now().Add(ig.window)}
	ig.mu.Unlock()

	if ig.rdb != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		// Best-effort mirror; the engine never depends on it.
		ig.rdb.Set(ctx, "garou:intent:"+key, string(in.Verb), ig.window)
	}
}

func (ig *IntentGuard) gcLocked() {
	now := time.Now()
	if now.Sub(ig.lastGC) < ig.window {
		return
	}
	ig.lastGC = now
	for k, e := range ig.seen {
		if now.After(e.expires) {
			delete(ig.seen, k)
		}
	}
}
