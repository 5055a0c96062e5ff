package store

import (
	"context"
	"errors"
	"sync"

	"github.com/villageois/garou/internal/models"
)

// ErrInjectedCrash is returned by the Memory store when a fail point fires.
var ErrInjectedCrash = errors.New("injected crash")

// Memory is an in-memory Store used by the engine tests. Transactions buffer
// writes and apply them on commit, mirroring the Postgres semantics.
type Memory struct {
	mu      sync.Mutex
	games   map[string]GameRow
	players map[string]map[string]models.Player
	votes   map[string][]models.Vote
	actions map[string][]models.NightAction
	wal     []WalRecord
	cursor  uint64

	// FailAfterWal makes transactions "crash" after journaling the WAL
	// record but before the snapshot write, simulating a torn commit. Stays
	// set until cleared so retries fail the same way.
	FailAfterWal bool
}

func NewMemory() *Memory {
	return &Memory{
		games:   make(map[string]GameRow),
		players: make(map[string]map[string]models.Player),
		votes:   make(map[string][]models.Vote),
		actions: make(map[string][]models.NightAction),
	}
}

func (m *Memory) Tx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{store: m}
	if err := fn(tx); err != nil {
		if errors.Is(err, ErrInjectedCrash) {
			// The torn commit leaves the journaled WAL tail behind.
			m.wal = append(m.wal, tx.wal...)
		}
		return err
	}
	tx.apply()
	return nil
}

func (m *Memory) LoadAllGames(ctx context.Context) ([]GameRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]GameRow, 0, len(m.games))
	for _, r := range m.games {
		out = append(out, r)
	}
	return out, nil
}

func (m *Memory) LoadVotes(ctx context.Context, gameID string, round int) ([]models.Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Vote
	for _, v := range m.votes[gameID] {
		if v.Round == round {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *Memory) LoadNightActions(ctx context.Context, gameID string, day int) ([]models.NightAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.NightAction
	for _, a := range m.actions[gameID] {
		if a.Day == day {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) ReadWalSince(ctx context.Context, cursor uint64) ([]WalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []WalRecord
	for _, r := range m.wal {
		if r.Cursor > cursor {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) LatestWalSeq(ctx context.Context, gameID string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var max uint64
	for _, r := range m.wal {
		if r.GameID == gameID && r.Seq > max {
			max = r.Seq
		}
	}
	return max, nil
}

func (m *Memory) Close() {}

// memTx buffers writes until commit.
type memTx struct {
	store   *Memory
	games   []GameRow
	deletes []string
	players map[string][]models.Player
	votes   map[string][]models.Vote
	clears  map[string][]int
	actions map[string][]models.NightAction
	wal     []WalRecord
}

func (t *memTx) SaveGame(ctx context.Context, row GameRow) error {
	if t.store.FailAfterWal && len(t.wal) > 0 {
		return ErrInjectedCrash
	}
	t.games = append(t.games, row)
	return nil
}

func (t *memTx) DeleteGame(ctx context.Context, gameID string) error {
	t.deletes = append(t.deletes, gameID)
	return nil
}

func (t *memTx) UpsertPlayer(ctx context.Context, gameID string, p models.Player) error {
	if t.players == nil {
		t.players = make(map[string][]models.Player)
	}
	t.players[gameID] = append(t.players[gameID], p)
	return nil
}

func (t *memTx) RecordVote(ctx context.Context, gameID string, v models.Vote) error {
	if t.votes == nil {
		t.votes = make(map[string][]models.Vote)
	}
	t.votes[gameID] = append(t.votes[gameID], v)
	return nil
}

func (t *memTx) ClearVotes(ctx context.Context, gameID string, round int) error {
	if t.clears == nil {
		t.clears = make(map[string][]int)
	}
	t.clears[gameID] = append(t.clears[gameID], round)
	return nil
}

func (t *memTx) RecordNightAction(ctx context.Context, gameID string, a models.NightAction) error {
	if t.actions == nil {
		t.actions = make(map[string][]models.NightAction)
	}
	t.actions[gameID] = append(t.actions[gameID], a)
	return nil
}

func (t *memTx) AppendWal(ctx context.Context, rec WalRecord) error {
	t.store.cursor++
	rec.Cursor = t.store.cursor
	t.wal = append(t.wal, rec)
	return nil
}

func (t *memTx) apply() {
	m := t.store
	m.wal = append(m.wal, t.wal...)
	for _, row := range t.games {
		m.games[row.ID] = row
	}
	for _, id := range t.deletes {
		delete(m.games, id)
		delete(m.players, id)
		delete(m.votes, id)
		delete(m.actions, id)
	}
	for gameID, ps := range t.players {
		if m.players[gameID] == nil {
			m.players[gameID] = make(map[string]models.Player)
		}
		for _, p := range ps {
			m.players[gameID][p.ID.String()] = p
		}
	}
	for gameID, rounds := range t.clears {
		for _, round := range rounds {
			kept := m.votes[gameID][:0]
			for _, v := range m.votes[gameID] {
				if v.Round != round {
					kept = append(kept, v)
				}
			}
			m.votes[gameID] = kept
		}
	}
	for gameID, vs := range t.votes {
		for _, v := range vs {
			// Overwrite semantics on (round, voter).
			replaced := false
			for i, old := range m.votes[gameID] {
				if old.Round == v.Round && old.Voter == v.Voter {
					m.votes[gameID][i] = v
					replaced = true
					break
				}
			}
			if !replaced {
				m.votes[gameID] = append(m.votes[gameID], v)
			}
		}
	}
	for gameID, as := range t.actions {
		for _, a := range as {
			replaced := false
			for i, old := range m.actions[gameID] {
				if old.Day == a.Day && old.Kind == a.Kind && old.Actor == a.Actor {
					m.actions[gameID][i] = a
					replaced = true
					break
				}
			}
			if !replaced {
				m.actions[gameID] = append(m.actions[gameID], a)
			}
		}
	}
}
