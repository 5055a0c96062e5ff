package game

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/villageois/garou/internal/config"
	"github.com/villageois/garou/internal/models"
	"github.com/villageois/garou/internal/store"
)

// Engine is the facade presenters talk to. It owns the registry, the per-game
// actors, the timer service, the event bus and the write path; everything
// else in the package is wiring behind it.
type Engine struct {
	cfg *config.Config

	store      store.Store
	rdb        *redis.Client
	registry   *Registry
	bus        *Bus
	timers     *TimerService
	mutator    *Mutator
	scheduler  *Scheduler
	dispatcher *Dispatcher
	guard      *IntentGuard
	actors     *actorPool
	recovery   *Recovery

	shutdownOnce sync.Once
	ready        bool
}

func NewEngine(cfg *config.Config, st store.Store, rdb *redis.Client) *Engine {
	registry := NewRegistry()
	bus := NewBus()
	timers := NewTimerService(rdb)
	mutator := NewMutator(st, registry)
	scheduler := NewScheduler(cfg.Game, mutator, timers, bus)
	dispatcher := NewDispatcher(cfg.Game, mutator, scheduler, registry)

	e := &Engine{
		cfg:        cfg,
		store:      st,
		rdb:        rdb,
		registry:   registry,
		bus:        bus,
		timers:     timers,
		mutator:    mutator,
		scheduler:  scheduler,
		dispatcher: dispatcher,
		guard:      NewIntentGuard(cfg.Game.DuplicateIntentWindow, rdb),
		actors:     newActorPool(),
		recovery:   NewRecovery(st, registry, scheduler),
	}
	scheduler.BindActorPost(func(gameID string, fn func()) bool {
		return e.actors.get(gameID).post(fn)
	})
	mutator.OnPublish(e.mirrorSnapshot)
	return e
}

// Start runs recovery and marks the engine ready.
func (e *Engine) Start(ctx context.Context) error {
	if _, err := e.recovery.Restore(ctx); err != nil {
		return err
	}
	e.ready = true
	return nil
}

// ============================================================================
// LOBBY LIFECYCLE
// ============================================================================

// CreateGame opens a lobby. Channels maps purpose -> secondary channel id
// (village, wolves, witch, ...) for reverse lookups.
func (e *Engine) CreateGame(ctx context.Context, gameID, guildID string, rules *models.Rules, channels map[string]string) models.Result {
	if e.registry.Resolve(gameID) != nil {
		return models.Fail(models.ReasonGameExists)
	}
	r := e.cfg.Game.DefaultRules
	if rules != nil {
		r = *rules
	}
	g := &models.Game{
		ID:           gameID,
		GuildID:      guildID,
		Phase:        models.PhaseLobby,
		SubPhase:     models.SubPhaseWaiting,
		Rules:        r,
		Channels:     channels,
		WitchPotions: models.WitchPotions{Life: true, Death: true},
	}
	if err := e.mutator.Create(ctx, g); err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("create game failed")
		return models.Fail(models.ReasonStorageUnavailable)
	}
	e.emitLobby(g)
	return models.Ok(nil)
}

// JoinLobby seats a player. Joining twice is a no-op success.
func (e *Engine) JoinLobby(ctx context.Context, gameID string, userID uuid.UUID, username string) models.Result {
	var events []models.Event
	mut := Mutation{
		Verb: "join_lobby",
		Apply: func(g *models.Game) error {
			if g.Phase != models.PhaseLobby {
				return failWith(models.ReasonWrongPhase)
			}
			if g.PlayerByID(userID) != nil {
				return nil
			}
			if len(g.Players) >= g.Rules.MaxPlayers {
				return failWith(models.ReasonLobbyFull)
			}
			g.Players = append(g.Players, &models.Player{ID: userID, Username: username, Alive: true})
			events = lobbyEvents(g)
			return nil
		},
		TxWrites: func(ctx context.Context, tx store.Tx, g *models.Game) error {
			if p := g.PlayerByID(userID); p != nil {
				return tx.UpsertPlayer(ctx, g.ID, *p)
			}
			return nil
		},
		PostCommit: func(g *models.Game) { e.scheduler.emit(events) },
	}
	return e.lifecycle(ctx, gameID, mut)
}

// LeaveLobby unseats a player before start.
func (e *Engine) LeaveLobby(ctx context.Context, gameID string, userID uuid.UUID) models.Result {
	var events []models.Event
	mut := Mutation{
		Verb: "leave_lobby",
		Apply: func(g *models.Game) error {
			if g.Phase != models.PhaseLobby {
				return failWith(models.ReasonWrongPhase)
			}
			for i, p := range g.Players {
				if p.ID == userID {
					g.Players = append(g.Players[:i], g.Players[i+1:]...)
					events = lobbyEvents(g)
					return nil
				}
			}
			return failWith(models.ReasonNotInGame)
		},
		PostCommit: func(g *models.Game) { e.scheduler.emit(events) },
	}
	return e.lifecycle(ctx, gameID, mut)
}

// StartGame deals the role pool and enters the first night.
//
// The pool carries exactly one card per seated player; when it includes the
// Thief it carries two additional trailing cards that become his spare hand.
// Dealing is shuffled with a seed derived from the game id, so a given lobby
// always deals the same way.
func (e *Engine) StartGame(ctx context.Context, gameID string, rolePool []models.Role) models.Result {
	var events []models.Event
	mut := Mutation{
		Verb: "start_game",
		Apply: func(g *models.Game) error {
			events = events[:0]
			if g.Phase != models.PhaseLobby {
				return failWith(models.ReasonWrongPhase)
			}
			if len(g.Players) < g.Rules.MinPlayers {
				return failWith(models.ReasonNotEnoughPlayers)
			}

			n := len(g.Players)
			dealt := rolePool
			var extras []models.Role
			if len(rolePool) == n+2 && containsRole(rolePool[:n], models.RoleThief) {
				dealt, extras = rolePool[:n], rolePool[n:]
			} else if len(rolePool) != n {
				return failWith(models.ReasonRolePoolMismatch)
			}
			if containsRole(dealt, models.RoleThief) && len(extras) != 2 {
				return failWith(models.ReasonRolePoolMismatch)
			}

			shuffled := append([]models.Role(nil), dealt...)
			rng := rand.New(rand.NewSource(dealSeed(g.ID)))
			rng.Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})
			for i, p := range g.Players {
				p.Role = shuffled[i]
			}
			g.ThiefExtraRoles = append([]models.Role(nil), extras...)
			g.StartedAt = time.Now().UTC()
			g.AppendLog(e.cfg.Game.MaxHistory, "start", "the village fell asleep")

			events = append(events, models.Event{Type: models.EventGameStarted, GameID: g.ID})
			e.scheduler.Begin(g, &events)
			return nil
		},
		TxWrites: func(ctx context.Context, tx store.Tx, g *models.Game) error {
			for _, p := range g.Players {
				if err := tx.UpsertPlayer(ctx, g.ID, *p); err != nil {
					return err
				}
			}
			return nil
		},
		PostCommit: func(g *models.Game) {
			e.scheduler.emit(events)
			e.scheduler.armTimer(g)
		},
	}
	return e.lifecycle(ctx, gameID, mut)
}

// lifecycle runs a lobby mutation on the game's actor, same ordering rules
// as intents.
func (e *Engine) lifecycle(ctx context.Context, gameID string, mut Mutation) models.Result {
	if e.registry.Resolve(gameID) == nil {
		return models.Fail(models.ReasonGameNotFound)
	}
	resCh := make(chan models.Result, 1)
	posted := e.actors.get(gameID).post(func() {
		err := e.mutator.Run(ctx, gameID, mut)
		resCh <- resultFromErr(err)
	})
	if !posted {
		return models.Fail(models.ReasonBusy)
	}
	select {
	case res := <-resCh:
		return res
	case <-ctx.Done():
		return models.Fail(models.ReasonBusy)
	}
}

func resultFromErr(err error) models.Result {
	if err == nil {
		return models.Ok(nil)
	}
	var re reasonError
	if errors.As(err, &re) {
		return models.Fail(re.reason)
	}
	return models.Fail(models.ReasonStorageUnavailable)
}

// ============================================================================
// INTENTS
// ============================================================================

// Submit routes an intent through the duplicate guard onto the game's actor
// and waits for the handler's result.
func (e *Engine) Submit(ctx context.Context, in models.Intent) models.Result {
	if cached, dup := e.guard.Check(in); dup {
		return cached
	}
	g := e.registry.Resolve(in.GameID)
	if g == nil && in.ChannelHint != "" {
		g = e.registry.Resolve(in.ChannelHint)
	}
	if g == nil {
		return models.Fail(models.ReasonGameNotFound)
	}

	resCh := make(chan models.Result, 1)
	posted := e.actors.get(g.ID).post(func() {
		resCh <- e.dispatcher.Handle(ctx, in)
	})
	if !posted {
		return models.Fail(models.ReasonBusy)
	}
	select {
	case res := <-resCh:
		e.guard.Remember(in, res)
		return res
	case <-ctx.Done():
		return models.Fail(models.ReasonBusy)
	}
}

// ============================================================================
// READS
// ============================================================================

// SnapshotView is the stable read-only projection handed to presenters.
type SnapshotView struct {
	Game  *models.Game `json:"game"`
	Timer *TimerInfo   `json:"timer,omitempty"`
}

// Snapshot returns a consistent copy of the game, or nil. Accepts the main
// id or any secondary channel id.
func (e *Engine) Snapshot(id string) *SnapshotView {
	g := e.registry.Resolve(id)
	if g == nil {
		return nil
	}
	return &SnapshotView{Game: g.Clone(), Timer: e.timers.Remaining(g.ID)}
}

// Games lists the ids of all registered games.
func (e *Engine) Games() []string {
	all := e.registry.All()
	ids := make([]string, 0, len(all))
	for _, g := range all {
		ids = append(ids, g.ID)
	}
	return ids
}

// Subscribe attaches an event consumer; nil filter receives everything.
func (e *Engine) Subscribe(filter EventFilter) (<-chan models.Event, func()) {
	return e.bus.Subscribe(filter)
}

// ============================================================================
// TEARDOWN
// ============================================================================

// EndGame tears down a finished game after presenters flushed.
func (e *Engine) EndGame(ctx context.Context, gameID string) models.Result {
	g := e.registry.Resolve(gameID)
	if g == nil {
		return models.Fail(models.ReasonGameNotFound)
	}
	if g.Phase != models.PhaseEnded {
		return models.Fail(models.ReasonWrongPhase)
	}
	return e.teardown(ctx, g.ID)
}

// ForceEnd aborts a running game. Admin only.
func (e *Engine) ForceEnd(ctx context.Context, gameID string, actor models.Actor) models.Result {
	if !actor.IsAdmin() {
		return models.Fail(models.ReasonNotAdmin)
	}
	g := e.registry.Resolve(gameID)
	if g == nil {
		return models.Fail(models.ReasonGameNotFound)
	}
	if g.Phase != models.PhaseEnded && g.Phase != models.PhaseLobby {
		var events []models.Event
		mut := Mutation{
			Verb: "force_end",
			Apply: func(w *models.Game) error {
				events = events[:0]
				e.scheduler.endGame(w, &Victory{Winner: WinnerNobody}, &events)
				return nil
			},
			PostCommit: func(w *models.Game) { e.scheduler.emit(events) },
		}
		if res := e.lifecycle(ctx, g.ID, mut); !res.OK {
			return res
		}
	}
	return e.teardown(ctx, g.ID)
}

func (e *Engine) teardown(ctx context.Context, gameID string) models.Result {
	e.timers.CancelAll(gameID)
	if err := e.mutator.Delete(ctx, gameID); err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("teardown failed")
		return models.Fail(models.ReasonStorageUnavailable)
	}
	e.actors.remove(gameID)
	if e.rdb != nil {
		rctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		e.rdb.Del(rctx, "garou:game:"+gameID+":snapshot")
	}
	log.Info().Str("gameId", gameID).Msg("game torn down")
	return models.Ok(nil)
}

// ============================================================================
// HEALTH AND SHUTDOWN
// ============================================================================

// Ready reports whether recovery finished.
func (e *Engine) Ready() bool { return e.ready }

// Healthy reports whether the write path accepts mutations.
func (e *Engine) Healthy() bool { return e.mutator.Healthy() }

// Shutdown drains the mailboxes (flushing in-flight commits), stops the
// timers, and closes the bus, in that order.
func (e *Engine) Shutdown() {
	e.shutdownOnce.Do(func() {
		e.actors.drainAll()
		e.timers.Stop()
		e.bus.Close()
		log.Info().Msg("engine stopped")
	})
}

// ============================================================================
// HELPERS
// ============================================================================

func (e *Engine) emitLobby(g *models.Game) {
	e.scheduler.emit(lobbyEvents(g))
}

func lobbyEvents(g *models.Game) []models.Event {
	names := make([]string, 0, len(g.Players))
	for _, p := range g.Players {
		names = append(names, p.Username)
	}
	return []models.Event{{
		Type: models.EventLobbyUpdated, GameID: g.ID,
		Payload: models.LobbyUpdatedPayload{PlayerCount: len(g.Players), Usernames: names},
	}}
}

// mirrorSnapshot pushes the committed snapshot to Redis for presenters that
// poll instead of subscribing. Best-effort.
func (e *Engine) mirrorSnapshot(g *models.Game) {
	if e.rdb == nil {
		return
	}
	blob, err := json.Marshal(g)
	if err != nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		key := "garou:game:" + g.ID + ":snapshot"
		if err := e.rdb.Set(ctx, key, blob, 24*time.Hour).Err(); err != nil {
			log.Debug().Err(err).Str("gameId", g.ID).Msg("snapshot mirror write failed")
		}
	}()
}

func containsRole(pool []models.Role, r models.Role) bool {
	for _, x := range pool {
		if x == r {
			return true
		}
	}
	return false
}

// dealSeed derives the deterministic shuffle seed for a lobby.
func dealSeed(gameID string) int64 {
	h := fnv.New64a()
	h.Write([]byte("deal|" + gameID))
	return int64(h.Sum64())
}
