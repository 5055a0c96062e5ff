package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/villageois/garou/internal/models"
)

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// Schema is the logical layout; the deploy pipeline applies it once.
const Schema = `
CREATE TABLE IF NOT EXISTS games (
	id                   TEXT PRIMARY KEY,
	guild_id             TEXT NOT NULL DEFAULT '',
	phase                TEXT NOT NULL,
	sub_phase            TEXT NOT NULL DEFAULT '',
	day_count            INT NOT NULL DEFAULT 0,
	captain_id           UUID,
	rules_json           JSONB NOT NULL DEFAULT '{}',
	started_at           TIMESTAMPTZ,
	last_phase_change_at TIMESTAMPTZ,
	seq                  BIGINT NOT NULL DEFAULT 0,
	serialized_rest      JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS players (
	game_id    TEXT NOT NULL,
	id         UUID NOT NULL,
	username   TEXT NOT NULL,
	role       TEXT NOT NULL DEFAULT '',
	alive      BOOLEAN NOT NULL DEFAULT true,
	in_love    BOOLEAN NOT NULL DEFAULT false,
	extra_json JSONB NOT NULL DEFAULT '{}',
	PRIMARY KEY (game_id, id)
);

CREATE TABLE IF NOT EXISTS votes (
	game_id   TEXT NOT NULL,
	round     INT NOT NULL,
	voter     UUID NOT NULL,
	candidate UUID NOT NULL,
	weight    INT NOT NULL DEFAULT 1,
	PRIMARY KEY (game_id, round, voter)
);

CREATE TABLE IF NOT EXISTS night_actions (
	game_id    TEXT NOT NULL,
	day        INT NOT NULL,
	kind       TEXT NOT NULL,
	actor      UUID NOT NULL,
	target     UUID,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (game_id, day, kind, actor)
);

CREATE TABLE IF NOT EXISTS wal (
	cursor    BIGSERIAL PRIMARY KEY,
	game_id   TEXT NOT NULL,
	seq       BIGINT NOT NULL,
	verb      TEXT NOT NULL,
	args_json JSONB,
	pre_hash  TEXT NOT NULL,
	post_hash TEXT NOT NULL,
	ts        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS wal_game_seq ON wal (game_id, seq);
`

// EnsureSchema creates the tables if they do not exist.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

func (s *Postgres) Tx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Postgres) LoadAllGames(ctx context.Context) ([]GameRow, error) {
	rows, err := s.db.Query(ctx, `SELECT id, seq, serialized_rest FROM games`)
	if err != nil {
		return nil, fmt.Errorf("failed to load games: %w", err)
	}
	defer rows.Close()

	var out []GameRow
	for rows.Next() {
		var r GameRow
		if err := rows.Scan(&r.ID, &r.Seq, &r.Blob); err != nil {
			return nil, fmt.Errorf("failed to scan game row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Postgres) LoadVotes(ctx context.Context, gameID string, round int) ([]models.Vote, error) {
	rows, err := s.db.Query(ctx, `
		SELECT voter, candidate, round, weight FROM votes
		WHERE game_id = $1 AND round = $2
	`, gameID, round)
	if err != nil {
		return nil, fmt.Errorf("failed to load votes: %w", err)
	}
	defer rows.Close()

	var out []models.Vote
	for rows.Next() {
		var v models.Vote
		if err := rows.Scan(&v.Voter, &v.Candidate, &v.Round, &v.Weight); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Postgres) LoadNightActions(ctx context.Context, gameID string, day int) ([]models.NightAction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT day, kind, actor, target, created_at FROM night_actions
		WHERE game_id = $1 AND day = $2
	`, gameID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to load night actions: %w", err)
	}
	defer rows.Close()

	var out []models.NightAction
	for rows.Next() {
		var a models.NightAction
		if err := rows.Scan(&a.Day, &a.Kind, &a.Actor, &a.Target, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Postgres) ReadWalSince(ctx context.Context, cursor uint64) ([]WalRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT cursor, game_id, seq, verb, args_json, pre_hash, post_hash, ts
		FROM wal WHERE cursor > $1 ORDER BY cursor
	`, cursor)
	if err != nil {
		return nil, fmt.Errorf("failed to read wal: %w", err)
	}
	defer rows.Close()

	var out []WalRecord
	for rows.Next() {
		var r WalRecord
		if err := rows.Scan(&r.Cursor, &r.GameID, &r.Seq, &r.Verb, &r.Args, &r.PreHash, &r.PostHash, &r.TS); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Postgres) LatestWalSeq(ctx context.Context, gameID string) (uint64, error) {
	var seq uint64
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM wal WHERE game_id = $1
	`, gameID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to read wal seq: %w", err)
	}
	return seq, nil
}

func (s *Postgres) Close() {
	// Pool lifetime is owned by internal/database.
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) SaveGame(ctx context.Context, row GameRow) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO games (id, phase, seq, serialized_rest)
		VALUES ($1, '', $2, $3)
		ON CONFLICT (id) DO UPDATE SET seq = $2, serialized_rest = $3
	`, row.ID, row.Seq, row.Blob)
	if err != nil {
		return fmt.Errorf("failed to save game: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteGame(ctx context.Context, gameID string) error {
	for _, q := range []string{
		`DELETE FROM votes WHERE game_id = $1`,
		`DELETE FROM night_actions WHERE game_id = $1`,
		`DELETE FROM players WHERE game_id = $1`,
		`DELETE FROM games WHERE id = $1`,
	} {
		if _, err := t.tx.Exec(ctx, q, gameID); err != nil {
			return fmt.Errorf("failed to delete game: %w", err)
		}
	}
	return nil
}

func (t *pgTx) UpsertPlayer(ctx context.Context, gameID string, p models.Player) error {
	extra := map[string]bool{
		"role_swapped":   p.RoleSwapped,
		"idiot_revealed": p.IdiotRevealed,
		"fake":           p.Fake,
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO players (game_id, id, username, role, alive, in_love, extra_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (game_id, id)
		DO UPDATE SET username = $3, role = $4, alive = $5, in_love = $6, extra_json = $7
	`, gameID, p.ID, p.Username, p.Role, p.Alive, p.InLove, extra)
	if err != nil {
		return fmt.Errorf("failed to upsert player: %w", err)
	}
	return nil
}

func (t *pgTx) RecordVote(ctx context.Context, gameID string, v models.Vote) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO votes (game_id, round, voter, candidate, weight)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (game_id, round, voter)
		DO UPDATE SET candidate = $4, weight = $5
	`, gameID, v.Round, v.Voter, v.Candidate, v.Weight)
	if err != nil {
		return fmt.Errorf("failed to record vote: %w", err)
	}
	return nil
}

func (t *pgTx) ClearVotes(ctx context.Context, gameID string, round int) error {
	_, err := t.tx.Exec(ctx, `
		DELETE FROM votes WHERE game_id = $1 AND round = $2
	`, gameID, round)
	if err != nil {
		return fmt.Errorf("failed to clear votes: %w", err)
	}
	return nil
}

func (t *pgTx) RecordNightAction(ctx context.Context, gameID string, a models.NightAction) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO night_actions (game_id, day, kind, actor, target, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (game_id, day, kind, actor)
		DO UPDATE SET target = $5
	`, gameID, a.Day, a.Kind, a.Actor, a.Target, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record night action: %w", err)
	}
	return nil
}

func (t *pgTx) AppendWal(ctx context.Context, rec WalRecord) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO wal (game_id, seq, verb, args_json, pre_hash, post_hash, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.GameID, rec.Seq, rec.Verb, rec.Args, rec.PreHash, rec.PostHash, rec.TS)
	if err != nil {
		return fmt.Errorf("failed to append wal: %w", err)
	}
	return nil
}
