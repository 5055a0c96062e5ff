package game

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/villageois/garou/internal/models"
	"github.com/villageois/garou/internal/store"
)

// Recovery rebuilds the in-memory world from the store on boot. Snapshots are
// authoritative for game state; vote and night-action rows are canonical for
// the open ballot; WAL entries past the saved seq are partial commits and are
// discarded.
type Recovery struct {
	store     store.Store
	registry  *Registry
	scheduler *Scheduler
}

func NewRecovery(st store.Store, reg *Registry, sched *Scheduler) *Recovery {
	return &Recovery{store: st, registry: reg, scheduler: sched}
}

// Restore loads every persisted game, reconciles the WAL, rebuilds open
// tallies, publishes into the registry, and re-arms timers. Elapsed deadlines
// fire as soon as the actors pick them up. Returns the number of games
// restored.
func (r *Recovery) Restore(ctx context.Context) (int, error) {
	rows, err := r.store.LoadAllGames(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load game snapshots: %w", err)
	}

	restored := 0
	for _, row := range rows {
		g, err := r.restoreOne(ctx, row)
		if err != nil {
			log.Error().Err(err).Str("gameId", row.ID).Msg("game skipped during recovery")
			continue
		}
		r.registry.Publish(g)
		restored++
	}

	r.scheduler.RearmAll(r.registry.All())
	log.Info().Int("games", restored).Msg("recovery complete")
	return restored, nil
}

func (r *Recovery) restoreOne(ctx context.Context, row store.GameRow) (*models.Game, error) {
	var g models.Game
	if err := json.Unmarshal(row.Blob, &g); err != nil {
		return nil, fmt.Errorf("corrupt snapshot: %w", err)
	}
	if err := g.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("snapshot violates invariants: %w", err)
	}

	// A WAL seq beyond the snapshot means the crash hit between journal and
	// save in a transaction that never committed the snapshot; the journal
	// tail is noise, not state.
	latest, err := r.store.LatestWalSeq(ctx, g.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read wal head: %w", err)
	}
	if latest > g.Seq {
		log.Warn().Str("gameId", g.ID).Uint64("savedSeq", g.Seq).Uint64("walSeq", latest).
			Msg("discarding orphan wal tail")
	}

	if err := r.rebuildTallies(ctx, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// rebuildTallies reloads the open ballot from its canonical table.
func (r *Recovery) rebuildTallies(ctx context.Context, g *models.Game) error {
	switch g.SubPhase {
	case models.SubPhaseVote, models.SubPhaseVoteCapitaine:
		votes, err := r.store.LoadVotes(ctx, g.ID, g.VoteRound)
		if err != nil {
			return fmt.Errorf("failed to load votes: %w", err)
		}
		tally := make(map[uuid.UUID]uuid.UUID, len(votes))
		for _, v := range votes {
			tally[v.Voter] = v.Candidate
		}
		if g.SubPhase == models.SubPhaseVote {
			g.Votes = tally
		} else {
			g.CaptainVotes = tally
		}

	case models.SubPhaseLoups:
		actions, err := r.store.LoadNightActions(ctx, g.ID, g.DayCount)
		if err != nil {
			return fmt.Errorf("failed to load night actions: %w", err)
		}
		tally := make(map[uuid.UUID]uuid.UUID)
		for _, a := range actions {
			if a.Kind != models.NightActionKill || a.Target == nil {
				continue
			}
			if p := g.PlayerByID(a.Actor); p != nil && p.Role.IsWolf() {
				tally[a.Actor] = *a.Target
			}
		}
		g.WolfVotes = tally
	}
	return nil
}
