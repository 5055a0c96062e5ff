package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/villageois/garou/internal/models"
)

// TestMemory_TxCommitsAtomically buffers several writes and applies them as
// one unit.
func TestMemory_TxCommitsAtomically(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	voter := uuid.New()

	err := m.Tx(ctx, func(tx Tx) error {
		if err := tx.SaveGame(ctx, GameRow{ID: "g1", Seq: 1, Blob: []byte("{}")}); err != nil {
			return err
		}
		return tx.RecordVote(ctx, "g1", models.Vote{Voter: voter, Candidate: uuid.New(), Round: 0, Weight: 1})
	})
	require.NoError(t, err)

	rows, err := m.LoadAllGames(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(1), rows[0].Seq)

	votes, err := m.LoadVotes(ctx, "g1", 0)
	require.NoError(t, err)
	assert.Len(t, votes, 1)
}

// TestMemory_TxRollsBackOnError discards every buffered write when fn fails.
func TestMemory_TxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	boom := errors.New("boom")

	err := m.Tx(ctx, func(tx Tx) error {
		require.NoError(t, tx.SaveGame(ctx, GameRow{ID: "g1", Seq: 1, Blob: []byte("{}")}))
		require.NoError(t, tx.RecordVote(ctx, "g1", models.Vote{Voter: uuid.New(), Round: 0, Weight: 1}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := m.LoadAllGames(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
	votes, err := m.LoadVotes(ctx, "g1", 0)
	require.NoError(t, err)
	assert.Empty(t, votes)
}

// TestMemory_InjectedCrashKeepsWalTail fires the fail point between AppendWal
// and SaveGame; the snapshot stays stale while the journal carries the tail.
func TestMemory_InjectedCrashKeepsWalTail(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Tx(ctx, func(tx Tx) error {
		return tx.SaveGame(ctx, GameRow{ID: "g1", Seq: 1, Blob: []byte("{}")})
	}))

	m.FailAfterWal = true
	err := m.Tx(ctx, func(tx Tx) error {
		if err := tx.AppendWal(ctx, WalRecord{GameID: "g1", Seq: 2, Verb: "wolf_kill"}); err != nil {
			return err
		}
		return tx.SaveGame(ctx, GameRow{ID: "g1", Seq: 2, Blob: []byte("{}")})
	})
	require.ErrorIs(t, err, ErrInjectedCrash)

	rows, _ := m.LoadAllGames(ctx)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(1), rows[0].Seq, "the snapshot write never landed")

	walSeq, err := m.LatestWalSeq(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), walSeq, "the journaled tail survives the crash")

	// The flag stays armed until the caller clears it.
	err = m.Tx(ctx, func(tx Tx) error {
		if err := tx.AppendWal(ctx, WalRecord{GameID: "g1", Seq: 2, Verb: "wolf_kill"}); err != nil {
			return err
		}
		return tx.SaveGame(ctx, GameRow{ID: "g1", Seq: 2, Blob: []byte("{}")})
	})
	require.ErrorIs(t, err, ErrInjectedCrash)

	m.FailAfterWal = false
	require.NoError(t, m.Tx(ctx, func(tx Tx) error {
		return tx.SaveGame(ctx, GameRow{ID: "g1", Seq: 2, Blob: []byte("{}")})
	}))
}

// TestMemory_VoteOverwriteByRoundAndVoter keeps one row per (round, voter);
// re-voting replaces the old choice in place.
func TestMemory_VoteOverwriteByRoundAndVoter(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	voter := uuid.New()
	first, second := uuid.New(), uuid.New()

	record := func(round int, candidate uuid.UUID) {
		require.NoError(t, m.Tx(ctx, func(tx Tx) error {
			return tx.RecordVote(ctx, "g1", models.Vote{Voter: voter, Candidate: candidate, Round: round, Weight: 1})
		}))
	}
	record(0, first)
	record(0, second)
	record(1, first)

	votes, err := m.LoadVotes(ctx, "g1", 0)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, second, votes[0].Candidate)

	votes, err = m.LoadVotes(ctx, "g1", 1)
	require.NoError(t, err)
	assert.Len(t, votes, 1, "rounds do not overwrite each other")
}

// TestMemory_ClearVotesDropsOnlyThatRound removes a closed round and leaves
// the open one untouched.
func TestMemory_ClearVotesDropsOnlyThatRound(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Tx(ctx, func(tx Tx) error {
		for round := 0; round < 2; round++ {
			v := models.Vote{Voter: uuid.New(), Candidate: uuid.New(), Round: round, Weight: 1}
			if err := tx.RecordVote(ctx, "g1", v); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, m.Tx(ctx, func(tx Tx) error {
		return tx.ClearVotes(ctx, "g1", 0)
	}))

	votes, err := m.LoadVotes(ctx, "g1", 0)
	require.NoError(t, err)
	assert.Empty(t, votes)
	votes, err = m.LoadVotes(ctx, "g1", 1)
	require.NoError(t, err)
	assert.Len(t, votes, 1)
}

// TestMemory_ClearThenRecordInOneTx mirrors the scheduler's round close:
// clearing the old round and seeding nothing must not resurrect stale rows.
func TestMemory_ClearThenRecordInOneTx(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	voter := uuid.New()
	require.NoError(t, m.Tx(ctx, func(tx Tx) error {
		return tx.RecordVote(ctx, "g1", models.Vote{Voter: voter, Candidate: uuid.New(), Round: 0, Weight: 1})
	}))

	replacement := uuid.New()
	require.NoError(t, m.Tx(ctx, func(tx Tx) error {
		if err := tx.ClearVotes(ctx, "g1", 0); err != nil {
			return err
		}
		return tx.RecordVote(ctx, "g1", models.Vote{Voter: voter, Candidate: replacement, Round: 0, Weight: 1})
	}))

	votes, err := m.LoadVotes(ctx, "g1", 0)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, replacement, votes[0].Candidate)
}

// TestMemory_NightActionIdempotence keys actions by (day, kind, actor) so a
// repeated submission replaces rather than duplicates.
func TestMemory_NightActionIdempotence(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	actor := uuid.New()
	first, second := uuid.New(), uuid.New()

	record := func(day int, kind models.NightActionKind, target uuid.UUID) {
		require.NoError(t, m.Tx(ctx, func(tx Tx) error {
			return tx.RecordNightAction(ctx, "g1", models.NightAction{Day: day, Kind: kind, Actor: actor, Target: &target})
		}))
	}
	record(0, models.NightActionKill, first)
	record(0, models.NightActionKill, second)
	record(0, models.NightActionSee, first)
	record(1, models.NightActionKill, first)

	actions, err := m.LoadNightActions(ctx, "g1", 0)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	for _, a := range actions {
		if a.Kind == models.NightActionKill {
			assert.Equal(t, second, *a.Target, "the retry wins")
		}
	}

	actions, err = m.LoadNightActions(ctx, "g1", 1)
	require.NoError(t, err)
	assert.Len(t, actions, 1)
}

// TestMemory_WalCursorIsGlobal stamps the journal in append order across
// games and ReadWalSince pages from an exclusive cursor.
func TestMemory_WalCursorIsGlobal(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i, gameID := range []string{"g1", "g2", "g1"} {
		i := i
		require.NoError(t, m.Tx(ctx, func(tx Tx) error {
			return tx.AppendWal(ctx, WalRecord{GameID: gameID, Seq: uint64(i + 1), Verb: "join"})
		}))
	}

	all, err := m.ReadWalSince(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, rec := range all {
		assert.Equal(t, uint64(i+1), rec.Cursor)
	}

	tail, err := m.ReadWalSince(ctx, all[1].Cursor)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, all[2].Cursor, tail[0].Cursor)

	empty, err := m.ReadWalSince(ctx, all[2].Cursor)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// TestMemory_LatestWalSeqPerGame tracks the per-game high-water mark.
func TestMemory_LatestWalSeqPerGame(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	seq, err := m.LatestWalSeq(ctx, "g1")
	require.NoError(t, err)
	assert.Zero(t, seq)

	require.NoError(t, m.Tx(ctx, func(tx Tx) error {
		if err := tx.AppendWal(ctx, WalRecord{GameID: "g1", Seq: 3}); err != nil {
			return err
		}
		return tx.AppendWal(ctx, WalRecord{GameID: "g2", Seq: 9})
	}))

	seq, err = m.LatestWalSeq(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq)
}

// TestMemory_DeleteGameDropsEverything removes the snapshot and every
// dependent row in one commit.
func TestMemory_DeleteGameDropsEverything(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Tx(ctx, func(tx Tx) error {
		if err := tx.SaveGame(ctx, GameRow{ID: "g1", Seq: 1, Blob: []byte("{}")}); err != nil {
			return err
		}
		if err := tx.UpsertPlayer(ctx, "g1", models.Player{ID: uuid.New(), Username: "p0"}); err != nil {
			return err
		}
		if err := tx.RecordVote(ctx, "g1", models.Vote{Voter: uuid.New(), Round: 0, Weight: 1}); err != nil {
			return err
		}
		return tx.RecordNightAction(ctx, "g1", models.NightAction{Day: 0, Kind: models.NightActionSee, Actor: uuid.New()})
	}))

	require.NoError(t, m.Tx(ctx, func(tx Tx) error {
		return tx.DeleteGame(ctx, "g1")
	}))

	rows, err := m.LoadAllGames(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
	votes, err := m.LoadVotes(ctx, "g1", 0)
	require.NoError(t, err)
	assert.Empty(t, votes)
	actions, err := m.LoadNightActions(ctx, "g1", 0)
	require.NoError(t, err)
	assert.Empty(t, actions)
}
