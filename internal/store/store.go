// Package store defines the transactional persistence contract the engine
// writes through, plus its Postgres and in-memory implementations.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/villageois/garou/internal/models"
)

// GameRow is one persisted game snapshot.
type GameRow struct {
	ID   string
	Seq  uint64
	Blob []byte
}

// WalRecord journals one committed mutation. Seq is per-game and strictly
// increasing; Cursor is the store-global append order.
type WalRecord struct {
	Cursor   uint64          `json:"cursor"`
	GameID   string          `json:"game_id"`
	Seq      uint64          `json:"seq"`
	Verb     string          `json:"verb"`
	Args     json.RawMessage `json:"args,omitempty"`
	PreHash  string          `json:"pre_hash"`
	PostHash string          `json:"post_hash"`
	TS       time.Time       `json:"ts"`
}

// Tx is the write handle seen inside a transaction. All writes commit
// atomically or not at all.
type Tx interface {
	SaveGame(ctx context.Context, row GameRow) error
	DeleteGame(ctx context.Context, gameID string) error
	UpsertPlayer(ctx context.Context, gameID string, p models.Player) error
	RecordVote(ctx context.Context, gameID string, v models.Vote) error
	ClearVotes(ctx context.Context, gameID string, round int) error
	RecordNightAction(ctx context.Context, gameID string, a models.NightAction) error
	AppendWal(ctx context.Context, rec WalRecord) error
}

// Store is the durable backend. The engine is its sole writer.
type Store interface {
	// Tx runs fn against a snapshot; fn's writes commit atomically on nil
	// return and roll back otherwise.
	Tx(ctx context.Context, fn func(tx Tx) error) error

	LoadAllGames(ctx context.Context) ([]GameRow, error)
	LoadVotes(ctx context.Context, gameID string, round int) ([]models.Vote, error)
	LoadNightActions(ctx context.Context, gameID string, day int) ([]models.NightAction, error)

	// ReadWalSince returns records with Cursor > cursor in append order.
	ReadWalSince(ctx context.Context, cursor uint64) ([]WalRecord, error)
	// LatestWalSeq returns the highest journaled per-game seq, 0 if none.
	LatestWalSeq(ctx context.Context, gameID string) (uint64, error)

	Close()
}
