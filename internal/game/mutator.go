package game

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/villageois/garou/internal/metrics"
	"github.com/villageois/garou/internal/models"
	"github.com/villageois/garou/internal/store"
)

const (
	txMaxAttempts = 3
	txBackoff     = 50 * time.Millisecond

	breakerThreshold = 5
	breakerCooldown  = 10 * time.Second
)

// ErrStorageUnavailable marks a mutation refused or failed at the store
// boundary; handlers surface it as the storage_unavailable reason.
var ErrStorageUnavailable = fmt.Errorf("storage unavailable")

// Mutation describes one atomic state change.
type Mutation struct {
	Verb string
	Args any

	// Apply mutates the working copy. A returned error abandons the copy:
	// no WAL, no store write, no events.
	Apply func(g *models.Game) error

	// TxWrites adds secondary rows (votes, night actions, players) to the
	// same store transaction as the WAL append and snapshot save.
	TxWrites func(ctx context.Context, tx store.Tx, g *models.Game) error

	// PostCommit runs after the pointer swap: emit events, arm timers.
	// It must not mutate the game; follow-up mutations re-enter Run.
	PostCommit func(g *models.Game)
}

// Mutator is the sole writer of game state. Per-game ordering is enforced by
// the game actor; the per-game lease here additionally protects direct calls
// that bypass the mailbox (create, recovery).
type Mutator struct {
	store    store.Store
	registry *Registry

	leases sync.Map // gameID -> *sync.Mutex

	// postPublish observes every snapshot swap (redis mirror). Best-effort,
	// must not block.
	postPublish func(*models.Game)

	breakerMu     sync.Mutex
	breakerFails  int
	breakerOpenAt time.Time
}

func NewMutator(st store.Store, reg *Registry) *Mutator {
	return &Mutator{store: st, registry: reg}
}

// OnPublish registers an observer for committed snapshots.
func (m *Mutator) OnPublish(fn func(*models.Game)) { m.postPublish = fn }

func (m *Mutator) lease(gameID string) *sync.Mutex {
	v, _ := m.leases.LoadOrStore(gameID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Run executes the mutation atomically: clone, apply, invariant check,
// WAL append + snapshot save in one store transaction, pointer swap, hooks.
func (m *Mutator) Run(ctx context.Context, gameID string, mut Mutation) error {
	if m.breakerOpen() {
		return ErrStorageUnavailable
	}

	lease := m.lease(gameID)
	lease.Lock()
	defer lease.Unlock()

	current := m.registry.Get(gameID)
	if current == nil {
		return fmt.Errorf("game %s not in registry", gameID)
	}

	working := current.Clone()
	if err := mut.Apply(working); err != nil {
		return err
	}
	if err := working.CheckInvariants(); err != nil {
		log.Error().Err(err).Str("gameId", gameID).Str("verb", mut.Verb).
			Msg("invariant violation, mutation aborted")
		return fmt.Errorf("invariant violation in %s: %w", mut.Verb, err)
	}

	working.Seq = current.Seq + 1

	preBlob, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("failed to marshal pre-image: %w", err)
	}
	postBlob, err := json.Marshal(working)
	if err != nil {
		return fmt.Errorf("failed to marshal post-image: %w", err)
	}

	var args json.RawMessage
	if mut.Args != nil {
		args, _ = json.Marshal(mut.Args)
	}
	rec := store.WalRecord{
		GameID:   gameID,
		Seq:      working.Seq,
		Verb:     mut.Verb,
		Args:     args,
		PreHash:  imageHash(preBlob),
		PostHash: imageHash(postBlob),
		TS:       time.Now().UTC(),
	}

	if err := m.commit(ctx, gameID, rec, postBlob, working, mut); err != nil {
		return err
	}

	m.registry.Publish(working)
	metrics.MutationsCommitted.Inc()
	if m.postPublish != nil {
		m.postPublish(working)
	}

	if mut.PostCommit != nil {
		mut.PostCommit(working)
	}
	return nil
}

// Create inserts a brand-new game: same commit bracket, no pre-image.
func (m *Mutator) Create(ctx context.Context, g *models.Game) error {
	if m.breakerOpen() {
		return ErrStorageUnavailable
	}

	lease := m.lease(g.ID)
	lease.Lock()
	defer lease.Unlock()

	if m.registry.Get(g.ID) != nil {
		return fmt.Errorf("game %s already exists", g.ID)
	}
	if err := g.CheckInvariants(); err != nil {
		return err
	}

	g.Seq = 1
	blob, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to marshal game: %w", err)
	}
	rec := store.WalRecord{
		GameID:   g.ID,
		Seq:      g.Seq,
		Verb:     "create_game",
		PreHash:  imageHash(nil),
		PostHash: imageHash(blob),
		TS:       time.Now().UTC(),
	}
	if err := m.commit(ctx, g.ID, rec, blob, g, Mutation{}); err != nil {
		return err
	}
	m.registry.Publish(g)
	metrics.MutationsCommitted.Inc()
	if m.postPublish != nil {
		m.postPublish(g)
	}
	return nil
}

// Delete removes the game from the store and registry.
func (m *Mutator) Delete(ctx context.Context, gameID string) error {
	lease := m.lease(gameID)
	lease.Lock()
	defer lease.Unlock()

	err := m.store.Tx(ctx, func(tx store.Tx) error {
		return tx.DeleteGame(ctx, gameID)
	})
	if err != nil {
		return fmt.Errorf("failed to delete game %s: %w", gameID, err)
	}
	m.registry.Remove(gameID)
	m.leases.Delete(gameID)
	return nil
}

// commit runs the single-transaction bracket with bounded retry.
func (m *Mutator) commit(ctx context.Context, gameID string, rec store.WalRecord, blob []byte, working *models.Game, mut Mutation) error {
	var lastErr error
	for attempt := 0; attempt < txMaxAttempts; attempt++ {
		if attempt > 0 {
			metrics.StoreRetries.Inc()
			time.Sleep(txBackoff << uint(attempt-1))
		}
		lastErr = m.store.Tx(ctx, func(tx store.Tx) error {
			if err := tx.AppendWal(ctx, rec); err != nil {
				return err
			}
			metrics.WalAppends.Inc()
			if err := tx.SaveGame(ctx, store.GameRow{ID: gameID, Seq: rec.Seq, Blob: blob}); err != nil {
				return err
			}
			if mut.TxWrites != nil {
				return mut.TxWrites(ctx, tx, working)
			}
			return nil
		})
		if lastErr == nil {
			m.breakerReset()
			return nil
		}
		log.Warn().Err(lastErr).Str("gameId", gameID).Str("verb", rec.Verb).
			Int("attempt", attempt+1).Msg("store transaction failed")
	}
	m.breakerTrip()
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, lastErr)
}

func (m *Mutator) breakerOpen() bool {
	m.breakerMu.Lock()
	defer m.breakerMu.Unlock()
	if m.breakerFails < breakerThreshold {
		return false
	}
	if time.Since(m.breakerOpenAt) > breakerCooldown {
		// Half-open: let one probe through.
		m.breakerFails = breakerThreshold - 1
		return false
	}
	return true
}

func (m *Mutator) breakerTrip() {
	m.breakerMu.Lock()
	defer m.breakerMu.Unlock()
	m.breakerFails++
	if m.breakerFails >= breakerThreshold {
		m.breakerOpenAt = time.Now()
		log.Error().Msg("store circuit breaker open")
	}
}

func (m *Mutator) breakerReset() {
	m.breakerMu.Lock()
	defer m.breakerMu.Unlock()
	m.breakerFails = 0
}

// Healthy reports whether the write path is accepting mutations.
func (m *Mutator) Healthy() bool {
	return !m.breakerOpen()
}

func imageHash(blob []byte) string {
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}
