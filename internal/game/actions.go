package game

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/villageois/garou/internal/config"
	"github.com/villageois/garou/internal/metrics"
	"github.com/villageois/garou/internal/models"
	"github.com/villageois/garou/internal/store"
)

// reasonError smuggles a user-caused rejection out of a mutator Apply.
// Only these are surfaced as tagged results; everything else is a bug or an
// infrastructure failure.
type reasonError struct{ reason models.Reason }

func (e reasonError) Error() string { return string(e.reason) }

func failWith(r models.Reason) error { return reasonError{reason: r} }

// Dispatcher routes validated intents to their verb handlers. Each handler
// performs exactly one atomic mutation; sub-phase completion re-enters the
// scheduler afterwards.
type Dispatcher struct {
	cfg       config.GameConfig
	mutator   *Mutator
	scheduler *Scheduler
	registry  *Registry
}

func NewDispatcher(cfg config.GameConfig, mut *Mutator, sched *Scheduler, reg *Registry) *Dispatcher {
	return &Dispatcher{cfg: cfg, mutator: mut, scheduler: sched, registry: reg}
}

// Handle executes one intent on the calling goroutine (the game's actor).
func (d *Dispatcher) Handle(ctx context.Context, in models.Intent) models.Result {
	g := d.registry.Resolve(in.GameID)
	if g == nil && in.ChannelHint != "" {
		g = d.registry.Resolve(in.ChannelHint)
	}
	if g == nil {
		return models.Fail(models.ReasonGameNotFound)
	}

	var res models.Result
	switch in.Verb {
	case models.VerbWolfKill:
		res = d.wolfKill(ctx, g.ID, in)
	case models.VerbWhiteKill:
		res = d.whiteKill(ctx, g.ID, in)
	case models.VerbSee:
		res = d.see(ctx, g.ID, in)
	case models.VerbPotionLife:
		res = d.potionLife(ctx, g.ID, in)
	case models.VerbPotionDeath:
		res = d.potionDeath(ctx, g.ID, in)
	case models.VerbProtect:
		res = d.protect(ctx, g.ID, in)
	case models.VerbLove:
		res = d.love(ctx, g.ID, in)
	case models.VerbSpy:
		res = d.spy(ctx, g.ID, in)
	case models.VerbSteal:
		res = d.steal(ctx, g.ID, in)
	case models.VerbSkip:
		res = d.skip(ctx, g.ID, in)
	case models.VerbHunterShoot:
		res = d.hunterShoot(ctx, g.ID, in)
	case models.VerbCaptainVote:
		res = d.captainVote(ctx, g.ID, in)
	case models.VerbDayVote:
		res = d.dayVote(ctx, g.ID, in)
	case models.VerbForceSkip:
		res = d.forceSkip(ctx, g.ID, in)
	default:
		res = models.Fail(models.ReasonInvalidTarget)
	}

	if res.OK {
		metrics.IntentsAccepted.WithLabelValues(string(in.Verb)).Inc()
	} else {
		metrics.IntentsRejected.WithLabelValues(string(in.Verb), string(res.Reason)).Inc()
	}
	return res
}

// run wraps mutator.Run, translating reason errors into tagged results and
// advancing the scheduler when the handler declared the sub-phase complete.
func (d *Dispatcher) run(ctx context.Context, gameID string, verb models.Verb, mut Mutation, data any, advanceFrom *models.SubPhase) models.Result {
	mut.Verb = string(verb)
	err := d.mutator.Run(ctx, gameID, mut)
	if err != nil {
		var re reasonError
		if errors.As(err, &re) {
			return models.Fail(re.reason)
		}
		if errors.Is(err, ErrStorageUnavailable) {
			return models.Fail(models.ReasonStorageUnavailable)
		}
		log.Error().Err(err).Str("gameId", gameID).Str("verb", string(verb)).Msg("intent failed")
		return models.Fail(models.ReasonStorageUnavailable)
	}
	if advanceFrom != nil {
		if err := d.scheduler.Advance(ctx, gameID, *advanceFrom, false); err != nil {
			log.Error().Err(err).Str("gameId", gameID).Msg("post-intent advance failed")
		}
	}
	return models.Ok(data)
}

// ============================================================================
// COMMON PRECONDITIONS
// ============================================================================

// nightRole verifies the standard night-action gate and returns the acting
// player from the working copy.
func nightRole(g *models.Game, in models.Intent, sub models.SubPhase, want func(models.Role) bool) (*models.Player, error) {
	switch g.Phase {
	case models.PhaseNight:
	case models.PhaseDay:
		return nil, failWith(models.ReasonNotNight)
	default:
		return nil, failWith(models.ReasonWrongPhase)
	}
	if g.SubPhase != sub {
		return nil, failWith(models.ReasonWrongSubPhase)
	}
	p := g.PlayerByID(in.Actor.ID)
	if p == nil {
		return nil, failWith(models.ReasonNotInGame)
	}
	if !p.Alive {
		return nil, failWith(models.ReasonActorDead)
	}
	if !want(p.Role) {
		return nil, failWith(models.ReasonNotRole)
	}
	if g.VillageRolesPowerless && p.Role.IsVillageAligned() {
		return nil, failWith(models.ReasonPowersLost)
	}
	return p, nil
}

func isRole(r models.Role) func(models.Role) bool {
	return func(got models.Role) bool { return got == r }
}

// aliveTarget resolves an intent target that must exist and be alive.
func aliveTarget(g *models.Game, target *uuid.UUID) (*models.Player, error) {
	if target == nil {
		return nil, failWith(models.ReasonTargetNotFound)
	}
	t := g.PlayerByID(*target)
	if t == nil {
		return nil, failWith(models.ReasonTargetNotFound)
	}
	if !t.Alive {
		return nil, failWith(models.ReasonTargetDead)
	}
	return t, nil
}

func nightActionRow(g *models.Game, kind models.NightActionKind, actor uuid.UUID, target *uuid.UUID) models.NightAction {
	return models.NightAction{
		Day:       g.DayCount,
		Kind:      kind,
		Actor:     actor,
		Target:    target,
		CreatedAt: time.Now().UTC(),
	}
}

// ============================================================================
// NIGHT VERBS
// ============================================================================

func (d *Dispatcher) wolfKill(ctx context.Context, gameID string, in models.Intent) models.Result {
	complete := false
	mut := Mutation{
		Apply: func(g *models.Game) error {
			p, err := nightRole(g, in, models.SubPhaseLoups, models.Role.IsWolf)
			if err != nil {
				return err
			}
			t, err := aliveTarget(g, in.Target)
			if err != nil {
				return err
			}
			if t.Role.IsWolf() {
				return failWith(models.ReasonInvalidTarget)
			}
			if g.WolfVotes == nil {
				g.WolfVotes = make(map[uuid.UUID]uuid.UUID)
			}
			g.WolfVotes[p.ID] = t.ID
			g.AppendLog(d.cfg.MaxHistory, "night", "a wolf chose a prey")
			complete = allWolvesVoted(g)
			return nil
		},
		TxWrites: func(ctx context.Context, tx store.Tx, g *models.Game) error {
			return tx.RecordNightAction(ctx, g.ID, nightActionRow(g, models.NightActionKill, in.Actor.ID, in.Target))
		},
	}
	res := d.run(ctx, gameID, in.Verb, mut, nil, nil)
	if res.OK && complete {
		if err := d.scheduler.Advance(ctx, gameID, models.SubPhaseLoups, false); err != nil {
			log.Error().Err(err).Str("gameId", gameID).Msg("wolf ballot advance failed")
		}
	}
	return res
}

func (d *Dispatcher) whiteKill(ctx context.Context, gameID string, in models.Intent) models.Result {
	sub := models.SubPhaseLoupBlanc
	mut := Mutation{
		Apply: func(g *models.Game) error {
			_, err := nightRole(g, in, sub, isRole(models.RoleWhiteWolf))
			if err != nil {
				return err
			}
			t, err := aliveTarget(g, in.Target)
			if err != nil {
				return err
			}
			// The white wolf devours only his own pack.
			if t.Role != models.RoleWerewolf {
				return failWith(models.ReasonInvalidTarget)
			}
			g.WhiteWolfVictim = &t.ID
			g.AppendLog(d.cfg.MaxHistory, "night", "the white wolf turned on the pack")
			return nil
		},
		TxWrites: func(ctx context.Context, tx store.Tx, g *models.Game) error {
			return tx.RecordNightAction(ctx, g.ID, nightActionRow(g, models.NightActionKill, in.Actor.ID, in.Target))
		},
	}
	return d.run(ctx, gameID, in.Verb, mut, nil, &sub)
}

func (d *Dispatcher) see(ctx context.Context, gameID string, in models.Intent) models.Result {
	sub := models.SubPhaseVoyante
	var seen models.Role
	mut := Mutation{
		Apply: func(g *models.Game) error {
			_, err := nightRole(g, in, sub, isRole(models.RoleSeer))
			if err != nil {
				return err
			}
			t, err := aliveTarget(g, in.Target)
			if err != nil {
				return err
			}
			if t.ID == in.Actor.ID {
				return failWith(models.ReasonInvalidTarget)
			}
			if t.Role == models.RoleAncien && g.DayCount == 0 {
				return failWith(models.ReasonAncientResists)
			}
			seen = t.Role
			g.AppendLog(d.cfg.MaxHistory, "night", "the seer peered into a soul")
			return nil
		},
		TxWrites: func(ctx context.Context, tx store.Tx, g *models.Game) error {
			return tx.RecordNightAction(ctx, g.ID, nightActionRow(g, models.NightActionSee, in.Actor.ID, in.Target))
		},
	}
	return d.run(ctx, gameID, in.Verb, mut, map[string]any{"role": &seen}, &sub)
}

func (d *Dispatcher) potionLife(ctx context.Context, gameID string, in models.Intent) models.Result {
	sub := models.SubPhaseSorciere
	done := false
	mut := Mutation{
		Apply: func(g *models.Game) error {
			_, err := nightRole(g, in, sub, isRole(models.RoleWitch))
			if err != nil {
				return err
			}
			if g.NightVictim == nil {
				return failWith(models.ReasonNoVictimTonight)
			}
			if !g.WitchPotions.Life {
				return failWith(models.ReasonNoLifePotion)
			}
			g.WitchSave = true
			g.WitchPotions.Life = false
			g.AppendLog(d.cfg.MaxHistory, "night", "the witch uncorked the life potion")
			done = !g.WitchPotions.Death
			return nil
		},
		TxWrites: func(ctx context.Context, tx store.Tx, g *models.Game) error {
			return tx.RecordNightAction(ctx, g.ID, nightActionRow(g, models.NightActionSave, in.Actor.ID, g.NightVictim))
		},
	}
	res := d.run(ctx, gameID, in.Verb, mut, nil, nil)
	if res.OK && done {
		// Nothing left to decide; close the witch's turn.
		if err := d.scheduler.Advance(ctx, gameID, sub, false); err != nil {
			log.Error().Err(err).Str("gameId", gameID).Msg("witch advance failed")
		}
	}
	return res
}

func (d *Dispatcher) potionDeath(ctx context.Context, gameID string, in models.Intent) models.Result {
	sub := models.SubPhaseSorciere
	done := false
	mut := Mutation{
		Apply: func(g *models.Game) error {
			_, err := nightRole(g, in, sub, isRole(models.RoleWitch))
			if err != nil {
				return err
			}
			if !g.WitchPotions.Death {
				return failWith(models.ReasonNoDeathPotion)
			}
			t, err := aliveTarget(g, in.Target)
			if err != nil {
				return err
			}
			if t.ID == in.Actor.ID {
				return failWith(models.ReasonCannotPoisonSelf)
			}
			g.WitchKillTarget = &t.ID
			g.WitchPotions.Death = false
			g.AppendLog(d.cfg.MaxHistory, "night", "the witch uncorked the death potion")
			done = !g.WitchPotions.Life || g.NightVictim == nil
			return nil
		},
		TxWrites: func(ctx context.Context, tx store.Tx, g *models.Game) error {
			return tx.RecordNightAction(ctx, g.ID, nightActionRow(g, models.NightActionPoison, in.Actor.ID, in.Target))
		},
	}
	res := d.run(ctx, gameID, in.Verb, mut, nil, nil)
	if res.OK && done {
		if err := d.scheduler.Advance(ctx, gameID, sub, false); err != nil {
			log.Error().Err(err).Str("gameId", gameID).Msg("witch advance failed")
		}
	}
	return res
}

func (d *Dispatcher) protect(ctx context.Context, gameID string, in models.Intent) models.Result {
	sub := models.SubPhaseSalvateur
	mut := Mutation{
		Apply: func(g *models.Game) error {
			p, err := nightRole(g, in, sub, isRole(models.RoleSalvateur))
			if err != nil {
				return err
			}
			t, err := aliveTarget(g, in.Target)
			if err != nil {
				return err
			}
			if t.ID == p.ID {
				return failWith(models.ReasonCannotProtectSelf)
			}
			if g.LastProtectedPlayerID != nil && *g.LastProtectedPlayerID == t.ID {
				return failWith(models.ReasonCannotProtectSame)
			}
			g.ProtectedPlayerID = &t.ID
			g.AppendLog(d.cfg.MaxHistory, "night", "the salvateur spread his shield")
			return nil
		},
		TxWrites: func(ctx context.Context, tx store.Tx, g *models.Game) error {
			return tx.RecordNightAction(ctx, g.ID, nightActionRow(g, models.NightActionProtect, in.Actor.ID, in.Target))
		},
	}
	return d.run(ctx, gameID, in.Verb, mut, nil, &sub)
}

func (d *Dispatcher) love(ctx context.Context, gameID string, in models.Intent) models.Result {
	sub := models.SubPhaseCupid
	var events []models.Event
	mut := Mutation{
		Apply: func(g *models.Game) error {
			events = events[:0]
			_, err := nightRole(g, in, sub, isRole(models.RoleCupid))
			if err != nil {
				return err
			}
			a, err := aliveTarget(g, in.Target)
			if err != nil {
				return err
			}
			b, err := aliveTarget(g, in.SecondTarget)
			if err != nil {
				return err
			}
			if a.ID == b.ID {
				return failWith(models.ReasonInvalidTarget)
			}
			g.Lovers = []uuid.UUID{a.ID, b.ID}
			a.InLove = true
			b.InLove = true
			g.AppendLog(d.cfg.MaxHistory, "night", "cupid loosed his arrows")
			return nil
		},
		TxWrites: func(ctx context.Context, tx store.Tx, g *models.Game) error {
			if err := tx.RecordNightAction(ctx, g.ID, nightActionRow(g, models.NightActionLove, in.Actor.ID, in.Target)); err != nil {
				return err
			}
			for _, id := range g.Lovers {
				if p := g.PlayerByID(id); p != nil {
					if err := tx.UpsertPlayer(ctx, g.ID, *p); err != nil {
						return err
					}
				}
			}
			return nil
		},
		PostCommit: func(g *models.Game) { d.scheduler.emit(events) },
	}
	return d.run(ctx, gameID, in.Verb, mut, nil, &sub)
}

func (d *Dispatcher) spy(ctx context.Context, gameID string, in models.Intent) models.Result {
	sub := models.SubPhasePetiteFille
	var wolves []uuid.UUID
	mut := Mutation{
		Apply: func(g *models.Game) error {
			_, err := nightRole(g, in, sub, isRole(models.RolePetiteFille))
			if err != nil {
				return err
			}
			wolves = wolves[:0]
			for _, w := range g.AliveWolves() {
				wolves = append(wolves, w.ID)
			}
			g.AppendLog(d.cfg.MaxHistory, "night", "the little girl peeked through the shutters")
			return nil
		},
		TxWrites: func(ctx context.Context, tx store.Tx, g *models.Game) error {
			return tx.RecordNightAction(ctx, g.ID, nightActionRow(g, models.NightActionSpy, in.Actor.ID, nil))
		},
	}
	return d.run(ctx, gameID, in.Verb, mut, map[string]any{"wolves": &wolves}, &sub)
}

func (d *Dispatcher) steal(ctx context.Context, gameID string, in models.Intent) models.Result {
	sub := models.SubPhaseThief
	var events []models.Event
	mut := Mutation{
		Apply: func(g *models.Game) error {
			events = events[:0]
			p, err := nightRole(g, in, sub, isRole(models.RoleThief))
			if err != nil {
				return err
			}
			if len(g.ThiefExtraRoles) != 2 {
				return failWith(models.ReasonWrongSubPhase)
			}
			if in.Choice != 1 && in.Choice != 2 {
				return failWith(models.ReasonInvalidChoice)
			}
			oldRole := p.Role
			p.Role = g.ThiefExtraRoles[in.Choice-1]
			p.RoleSwapped = true
			g.ThiefExtraRoles = nil
			g.AppendLog(d.cfg.MaxHistory, "night", "the thief traded his card")
			events = append(events, models.Event{
				Type: models.EventPlayerRoleChanged, GameID: g.ID,
				Payload: models.PlayerRoleChangedPayload{PlayerID: p.ID, OldRole: oldRole, NewRole: p.Role},
			})
			return nil
		},
		TxWrites: func(ctx context.Context, tx store.Tx, g *models.Game) error {
			if err := tx.RecordNightAction(ctx, g.ID, nightActionRow(g, models.NightActionSteal, in.Actor.ID, nil)); err != nil {
				return err
			}
			if p := g.PlayerByID(in.Actor.ID); p != nil {
				return tx.UpsertPlayer(ctx, g.ID, *p)
			}
			return nil
		},
		PostCommit: func(g *models.Game) { d.scheduler.emit(events) },
	}
	return d.run(ctx, gameID, in.Verb, mut, nil, &sub)
}

// ============================================================================
// SKIP, HUNTER, VOTES
// ============================================================================

// skip lets the active role bearer pass. The thief cannot pass when both
// spare cards are wolf-aligned.
func (d *Dispatcher) skip(ctx context.Context, gameID string, in models.Intent) models.Result {
	g := d.registry.Get(gameID)
	if g == nil {
		return models.Fail(models.ReasonGameNotFound)
	}
	role, gated := models.SubPhaseRole[g.SubPhase]
	if !gated && g.SubPhase != models.SubPhaseLoups {
		return models.Fail(models.ReasonWrongSubPhase)
	}
	p := g.PlayerByID(in.Actor.ID)
	if p == nil {
		return models.Fail(models.ReasonNotInGame)
	}
	if !p.Alive {
		return models.Fail(models.ReasonActorDead)
	}
	if gated && p.Role != role {
		return models.Fail(models.ReasonNotRole)
	}
	if !gated && !p.Role.IsWolf() {
		return models.Fail(models.ReasonNotRole)
	}
	if g.SubPhase == models.SubPhaseThief && len(g.ThiefExtraRoles) == 2 &&
		g.ThiefExtraRoles[0].IsWolf() && g.ThiefExtraRoles[1].IsWolf() {
		return models.Fail(models.ReasonMustTakeWolf)
	}
	if err := d.scheduler.Advance(ctx, gameID, g.SubPhase, false); err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("skip advance failed")
		return models.Fail(models.ReasonStorageUnavailable)
	}
	return models.Ok(nil)
}

func (d *Dispatcher) hunterShoot(ctx context.Context, gameID string, in models.Intent) models.Result {
	sub := models.SubPhaseHunterShoot
	var events []models.Event
	mut := Mutation{
		Apply: func(g *models.Game) error {
			events = events[:0]
			if g.SubPhase != sub {
				return failWith(models.ReasonWrongSubPhase)
			}
			if len(g.PendingHunterIDs) == 0 || g.PendingHunterIDs[0] != in.Actor.ID {
				return failWith(models.ReasonNotRole)
			}
			t, err := aliveTarget(g, in.Target)
			if err != nil {
				return err
			}
			if t.ID == in.Actor.ID {
				return failWith(models.ReasonInvalidTarget)
			}
			g.PendingHunterIDs = g.PendingHunterIDs[1:]
			var dl deathLedger
			kill(g, &dl, t.ID, DeathHunterShot)
			d.scheduler.reportDeaths(g, dl, &events)
			g.AppendLog(d.cfg.MaxHistory, "hunter", "the hunter fired his last shot")
			return nil
		},
		TxWrites: func(ctx context.Context, tx store.Tx, g *models.Game) error {
			for _, p := range g.Players {
				if !p.Alive {
					if err := tx.UpsertPlayer(ctx, g.ID, *p); err != nil {
						return err
					}
				}
			}
			return nil
		},
		PostCommit: func(g *models.Game) { d.scheduler.emit(events) },
	}
	return d.run(ctx, gameID, in.Verb, mut, nil, &sub)
}

func (d *Dispatcher) captainVote(ctx context.Context, gameID string, in models.Intent) models.Result {
	sub := models.SubPhaseVoteCapitaine
	complete := false
	var events []models.Event
	mut := Mutation{
		Apply: func(g *models.Game) error {
			events = events[:0]
			if g.Phase != models.PhaseDay {
				return failWith(models.ReasonNotDay)
			}
			if g.SubPhase != sub {
				return failWith(models.ReasonWrongSubPhase)
			}
			if g.CaptainID != nil {
				return failWith(models.ReasonCaptainAlready)
			}
			p := g.PlayerByID(in.Actor.ID)
			if p == nil {
				return failWith(models.ReasonNotInGame)
			}
			if !p.Alive {
				return failWith(models.ReasonActorDead)
			}
			t, err := aliveTarget(g, in.Target)
			if err != nil {
				return err
			}
			if g.CaptainVotes == nil {
				g.CaptainVotes = make(map[uuid.UUID]uuid.UUID)
			}
			g.CaptainVotes[p.ID] = t.ID
			events = append(events, models.Event{
				Type: models.EventVoteCast, GameID: g.ID,
				Payload: models.VoteCastPayload{Round: g.VoteRound, Voter: p.ID, Candidate: t.ID, Weight: 1},
			})
			complete = allAliveVoted(g, g.CaptainVotes)
			return nil
		},
		TxWrites: func(ctx context.Context, tx store.Tx, g *models.Game) error {
			return tx.RecordVote(ctx, g.ID, models.Vote{
				Voter: in.Actor.ID, Candidate: *in.Target, Round: g.VoteRound, Weight: 1,
			})
		},
		PostCommit: func(g *models.Game) { d.scheduler.emit(events) },
	}
	res := d.run(ctx, gameID, in.Verb, mut, nil, nil)
	if res.OK && complete {
		if err := d.scheduler.Advance(ctx, gameID, sub, false); err != nil {
			log.Error().Err(err).Str("gameId", gameID).Msg("captain ballot advance failed")
		}
	}
	return res
}

func (d *Dispatcher) dayVote(ctx context.Context, gameID string, in models.Intent) models.Result {
	sub := models.SubPhaseVote
	complete := false
	var events []models.Event
	mut := Mutation{
		Apply: func(g *models.Game) error {
			events = events[:0]
			if g.Phase != models.PhaseDay {
				return failWith(models.ReasonNotDay)
			}
			if g.SubPhase != sub {
				return failWith(models.ReasonWrongSubPhase)
			}
			p := g.PlayerByID(in.Actor.ID)
			if p == nil {
				return failWith(models.ReasonNotInGame)
			}
			if !p.Alive {
				return failWith(models.ReasonActorDead)
			}
			t, err := aliveTarget(g, in.Target)
			if err != nil {
				return err
			}
			if g.Votes == nil {
				g.Votes = make(map[uuid.UUID]uuid.UUID)
			}
			g.Votes[p.ID] = t.ID
			events = append(events, models.Event{
				Type: models.EventVoteCast, GameID: g.ID,
				Payload: models.VoteCastPayload{Round: g.VoteRound, Voter: p.ID, Candidate: t.ID, Weight: g.VoteWeight(p.ID)},
			})
			complete = allAliveVoted(g, g.Votes)
			return nil
		},
		TxWrites: func(ctx context.Context, tx store.Tx, g *models.Game) error {
			return tx.RecordVote(ctx, g.ID, models.Vote{
				Voter: in.Actor.ID, Candidate: *in.Target, Round: g.VoteRound, Weight: g.VoteWeight(in.Actor.ID),
			})
		},
		PostCommit: func(g *models.Game) { d.scheduler.emit(events) },
	}
	res := d.run(ctx, gameID, in.Verb, mut, nil, nil)
	if res.OK && complete {
		if err := d.scheduler.Advance(ctx, gameID, sub, false); err != nil {
			log.Error().Err(err).Str("gameId", gameID).Msg("lynch ballot advance failed")
		}
	}
	return res
}

// forceSkip resolves the current timed sub-phase with whatever information it
// has, as if the timeout fired. Admin only.
func (d *Dispatcher) forceSkip(ctx context.Context, gameID string, in models.Intent) models.Result {
	if !in.Actor.IsAdmin() {
		return models.Fail(models.ReasonNotAdmin)
	}
	g := d.registry.Get(gameID)
	if g == nil {
		return models.Fail(models.ReasonGameNotFound)
	}
	if g.Phase != models.PhaseNight && g.Phase != models.PhaseDay {
		return models.Fail(models.ReasonWrongPhase)
	}
	if err := d.scheduler.Advance(ctx, gameID, g.SubPhase, true); err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("force skip failed")
		return models.Fail(models.ReasonStorageUnavailable)
	}
	return models.Ok(map[string]any{"skipped": string(g.SubPhase)})
}
