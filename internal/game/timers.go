package game

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/villageois/garou/internal/metrics"
	"github.com/villageois/garou/internal/models"
)

// TimerInfo is the read-side view of an armed timer.
type TimerInfo struct {
	Type      models.TimerType `json:"type"`
	Remaining time.Duration    `json:"remaining"`
	Total     time.Duration    `json:"total"`
}

type timerKey struct {
	gameID string
	typ    models.TimerType
}

type armedTimer struct {
	timer    *time.Timer
	deadline time.Time
	total    time.Duration
}

// TimerService owns the engine's deadlines: one armed timer per
// (game, type), rescheduling cancels the predecessor, cancellation is
// idempotent. Firing posts onFire to the engine dispatch loop; it never runs
// on the timer goroutine against game state directly.
type TimerService struct {
	mu     sync.Mutex
	timers map[timerKey]*armedTimer
	rdb    *redis.Client
}

func NewTimerService(rdb *redis.Client) *TimerService {
	return &TimerService{timers: make(map[timerKey]*armedTimer), rdb: rdb}
}

// Schedule arms (or re-arms) the timer and returns its deadline.
func (ts *TimerService) Schedule(gameID string, typ models.TimerType, d time.Duration, onFire func()) time.Time {
	key := timerKey{gameID: gameID, typ: typ}
	deadline := time.Now().Add(d)

	ts.mu.Lock()
	defer ts.mu.Unlock()

	if prev, ok := ts.timers[key]; ok {
		prev.timer.Stop()
		delete(ts.timers, key)
		metrics.TimersActive.Dec()
	}

	at := &armedTimer{deadline: deadline, total: d}
	at.timer = time.AfterFunc(d, func() {
		ts.mu.Lock()
		if cur, ok := ts.timers[key]; !ok || cur != at {
			// Rescheduled or cancelled while we were firing.
			ts.mu.Unlock()
			return
		}
		delete(ts.timers, key)
		metrics.TimersActive.Dec()
		ts.mu.Unlock()
		onFire()
	})
	ts.timers[key] = at
	metrics.TimersActive.Inc()

	ts.mirror(gameID, typ, deadline)
	return deadline
}

// Cancel stops the timer if armed. Safe to call repeatedly.
func (ts *TimerService) Cancel(gameID string, typ models.TimerType) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if at, ok := ts.timers[timerKey{gameID: gameID, typ: typ}]; ok {
		at.timer.Stop()
		delete(ts.timers, timerKey{gameID: gameID, typ: typ})
		metrics.TimersActive.Dec()
	}
}

// CancelAll drops every timer for the game.
func (ts *TimerService) CancelAll(gameID string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for key, at := range ts.timers {
		if key.gameID == gameID {
			at.timer.Stop()
			delete(ts.timers, key)
			metrics.TimersActive.Dec()
		}
	}
}

// Remaining returns the live timer info for the game, or nil.
func (ts *TimerService) Remaining(gameID string) *TimerInfo {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for key, at := range ts.timers {
		if key.gameID != gameID {
			continue
		}
		rem := time.Until(at.deadline)
		if rem < 0 {
			rem = 0
		}
		return &TimerInfo{Type: key.typ, Remaining: rem, Total: at.total}
	}
	return nil
}

// Active returns the number of armed timers.
func (ts *TimerService) Active() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.timers)
}

// Stop cancels everything; used on shutdown.
func (ts *TimerService) Stop() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for key, at := range ts.timers {
		at.timer.Stop()
		delete(ts.timers, key)
		metrics.TimersActive.Dec()
	}
	log.Info().Msg("timer service stopped")
}

// mirror writes the deadline to Redis with a TTL so external dashboards can
// show countdowns. Best-effort only.
func (ts *TimerService) mirror(gameID string, typ models.TimerType, deadline time.Time) {
	if ts.rdb == nil {
		return
	}
	ttl := time.Until(deadline) + 5*time.Second
	if ttl <= 0 {
		ttl = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	key := "garou:game:" + gameID + ":timer:" + string(typ)
	if err := ts.rdb.Set(ctx, key, strconv.FormatInt(deadline.Unix(), 10), ttl).Err(); err != nil {
		log.Debug().Err(err).Str("gameId", gameID).Msg("timer mirror write failed")
	}
}
