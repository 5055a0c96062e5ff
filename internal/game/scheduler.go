package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/villageois/garou/internal/config"
	"github.com/villageois/garou/internal/models"
	"github.com/villageois/garou/internal/store"
)

// errStaleAdvance marks an advance whose originating sub-phase is no longer
// current (late timer fire, racing completion). Silently dropped.
var errStaleAdvance = errors.New("stale advance")

// Scheduler drives the phase state machine: LOBBY -> NIGHT <-> DAY -> ENDED.
// Every transition is one atomic mutation; timers and events run post-commit.
type Scheduler struct {
	cfg     config.GameConfig
	mutator *Mutator
	timers  *TimerService
	bus     *Bus

	// post enqueues work on the game's actor; bound by the engine after
	// construction to break the wiring cycle.
	post func(gameID string, fn func()) bool
}

func NewScheduler(cfg config.GameConfig, mut *Mutator, timers *TimerService, bus *Bus) *Scheduler {
	return &Scheduler{cfg: cfg, mutator: mut, timers: timers, bus: bus}
}

// BindActorPost wires the per-game mailbox used by timer callbacks.
func (s *Scheduler) BindActorPost(post func(gameID string, fn func()) bool) {
	s.post = post
}

// emit publishes the turn's events, folding refresh triggers into one
// refresh_panels per game.
func (s *Scheduler) emit(events []models.Event) {
	rc := newRefreshCoalescer()
	for _, e := range events {
		s.bus.Publish(e)
		rc.note(e)
	}
	rc.flush(s.bus)
}

// Advance leaves `from` (resolving whatever it owes), then walks the phase
// order until the game rests in a timed sub-phase or ends. Called by action
// handlers on sub-phase completion and by timer fires on AFK expiry.
func (s *Scheduler) Advance(ctx context.Context, gameID string, from models.SubPhase, timeout bool) error {
	var events []models.Event
	var firstRound int
	mut := Mutation{
		Verb: "advance",
		Args: map[string]any{"from": from, "timeout": timeout},
		Apply: func(g *models.Game) error {
			events = events[:0]
			if g.Phase == models.PhaseEnded || g.SubPhase != from {
				return errStaleAdvance
			}
			firstRound = g.VoteRound
			s.resolveDeparture(g, timeout, &events)
			s.run(g, &events)
			return nil
		},
		TxWrites: func(ctx context.Context, tx store.Tx, g *models.Game) error {
			// Ballots closed in this step live on in the WAL and snapshot;
			// their rows are spent.
			for round := firstRound; round < g.VoteRound; round++ {
				if err := tx.ClearVotes(ctx, g.ID, round); err != nil {
					return err
				}
			}
			return nil
		},
		PostCommit: func(g *models.Game) {
			s.emit(events)
			s.armTimer(g)
		},
	}
	err := s.mutator.Run(ctx, gameID, mut)
	if errors.Is(err, errStaleAdvance) {
		return nil
	}
	return err
}

// Begin transitions a freshly started game out of the lobby into the first
// night. Runs inside the startGame mutation's working copy.
func (s *Scheduler) Begin(g *models.Game, events *[]models.Event) {
	g.Phase = models.PhaseNight
	g.DayCount = 0
	g.LastPhaseChangeAt = time.Now().UTC()
	*events = append(*events, models.Event{
		Type: models.EventPhaseChanged, GameID: g.ID,
		Payload: models.PhaseChangedPayload{From: models.PhaseLobby, To: models.PhaseNight, DayCount: 0},
	})
	g.SubPhase = models.SubPhaseNone
	s.run(g, events)
}

// ArmTimerFor re-arms the persisted timer after a commit or on recovery.
func (s *Scheduler) armTimer(g *models.Game) {
	if g.Phase == models.PhaseEnded {
		s.timers.CancelAll(g.ID)
		return
	}
	at := g.ActiveTimer
	if at == nil || at.Type != models.TimerSubPhase {
		return
	}
	gameID, sub := g.ID, g.SubPhase
	d := time.Until(at.Deadline)
	if d < 0 {
		d = 0
	}
	s.timers.Schedule(gameID, models.TimerSubPhase, d, func() {
		ok := s.post(gameID, func() {
			if err := s.Advance(context.Background(), gameID, sub, true); err != nil {
				log.Error().Err(err).Str("gameId", gameID).Str("subPhase", string(sub)).
					Msg("timeout advance failed")
			}
		})
		if !ok {
			log.Warn().Str("gameId", gameID).Msg("timeout dropped, mailbox full")
		}
	})
}

// RearmAll re-arms timers for every loaded game; elapsed deadlines fire as
// soon as the actor picks them up.
func (s *Scheduler) RearmAll(games []*models.Game) {
	for _, g := range games {
		s.armTimer(g)
	}
}

// ============================================================================
// DEPARTURE RESOLUTION
// ============================================================================

// resolveDeparture applies what the finished sub-phase owes: ballots close
// here, silent role phases just lapse with their partial information.
func (s *Scheduler) resolveDeparture(g *models.Game, timeout bool, events *[]models.Event) {
	switch g.SubPhase {
	case models.SubPhaseLoups:
		victim := wolfVictim(g)
		if victim == nil && timeout {
			victim = wolfTimeoutVictim(g)
		}
		g.NightVictim = victim

	case models.SubPhaseVoteCapitaine:
		s.closeCaptainBallot(g, events)

	case models.SubPhaseVote:
		s.closeLynchBallot(g, events)

	case models.SubPhaseHunterShoot:
		if timeout && len(g.PendingHunterIDs) > 0 {
			// The hunter slept on his shot; forfeit it.
			g.PendingHunterIDs = g.PendingHunterIDs[1:]
			g.AppendLog(s.cfg.MaxHistory, "hunter", "hunter shot forfeited on timeout")
		}
	}
}

func (s *Scheduler) closeCaptainBallot(g *models.Game, events *[]models.Event) {
	out := captainOutcome(g)
	*events = append(*events, models.Event{
		Type: models.EventVoteCompleted, GameID: g.ID,
		Payload: models.VoteCompletedPayload{Round: g.VoteRound, WinnerID: out.WinnerID, WasTie: out.WasTie, Tally: out.Tally},
	})
	if out.WinnerID != nil {
		g.CaptainID = out.WinnerID
		*events = append(*events, models.Event{
			Type: models.EventCaptainElected, GameID: g.ID,
			Payload: models.CaptainElectedPayload{CaptainID: *out.WinnerID},
		})
		g.AppendLog(s.cfg.MaxHistory, "captain", "captain elected")
	}
	g.CaptainVotes = nil
	g.VoteRound++
}

func (s *Scheduler) closeLynchBallot(g *models.Game, events *[]models.Event) {
	out := lynchOutcome(g)
	*events = append(*events, models.Event{
		Type: models.EventVoteCompleted, GameID: g.ID,
		Payload: models.VoteCompletedPayload{Round: g.VoteRound, WinnerID: out.WinnerID, WasTie: out.WasTie, Tally: out.Tally},
	})
	g.Votes = nil
	g.VoteRound++

	if out.WinnerID == nil {
		return
	}
	lynched := g.PlayerByID(*out.WinnerID)
	if lynched == nil || !lynched.Alive {
		return
	}
	if lynched.Role == models.RoleIdiot && !lynched.IdiotRevealed {
		// The village realizes its mistake: the idiot lives, voteless.
		lynched.IdiotRevealed = true
		g.AppendLog(s.cfg.MaxHistory, "lynch", "the idiot was spared and revealed")
		*events = append(*events, models.Event{
			Type: models.EventActionLog, GameID: g.ID,
			Payload: map[string]any{"kind": "idiot_revealed", "player_id": lynched.ID},
		})
		return
	}
	var dl deathLedger
	kill(g, &dl, *out.WinnerID, DeathLynch)
	s.reportDeaths(g, dl, events)
}

// reportDeaths emits playerKilled once per death in resolution order.
func (s *Scheduler) reportDeaths(g *models.Game, dl deathLedger, events *[]models.Event) {
	for _, d := range dl.Deaths {
		*events = append(*events, models.Event{Type: models.EventPlayerKilled, GameID: g.ID, Payload: d})
		g.AppendLog(s.cfg.MaxHistory, "death", fmt.Sprintf("%s died (%s)", d.PlayerID, d.Reason))
	}
}

// ============================================================================
// PHASE WALK
// ============================================================================

// run walks the order from the current position until it parks the game in a
// timed sub-phase, a hunter window, or ENDED. Process sub-phases (dawn, dusk,
// reveil, lovers reveal) resolve inline.
func (s *Scheduler) run(g *models.Game, events *[]models.Event) {
	for {
		if g.Phase == models.PhaseEnded {
			return
		}

		// A dead hunter interrupts whatever the order was doing.
		if len(g.PendingHunterIDs) > 0 {
			if g.SubPhase != models.SubPhaseHunterShoot {
				g.ResumeSubPhase = g.SubPhase
			}
			s.enterTimed(g, models.SubPhaseHunterShoot, events)
			return
		}
		if g.SubPhase == models.SubPhaseHunterShoot {
			// Window closed with no pending shot left; pick the order back up.
			if v := checkVictory(g); v != nil {
				s.endGame(g, v, events)
				return
			}
			resume := g.ResumeSubPhase
			g.ResumeSubPhase = models.SubPhaseNone
			switch resume {
			case models.SubPhaseReveil:
				s.enterDay(g, events)
			case models.SubPhaseDusk:
				s.enterNight(g, events)
			default:
				g.SubPhase = resume
			}
			continue
		}

		switch g.Phase {
		case models.PhaseNight:
			if !s.stepNight(g, events) {
				return
			}
		case models.PhaseDay:
			if !s.stepDay(g, events) {
				return
			}
		default:
			return
		}
	}
}

// stepNight moves to the next night sub-phase; false parks the walk.
func (s *Scheduler) stepNight(g *models.Game, events *[]models.Event) bool {
	next := nextInOrder(models.NightOrder, g.SubPhase)
	for _, sub := range next {
		switch sub {
		case models.SubPhaseLoversReveal:
			if g.DayCount == 0 && len(g.Lovers) == 2 {
				s.enterProcess(g, sub, events)
				g.AppendLog(s.cfg.MaxHistory, "lovers", "the lovers woke up together")
			}
		case models.SubPhaseReveil:
			s.enterProcess(g, sub, events)
			dl := resolveNight(g)
			s.reportDeaths(g, dl, events)
			*events = append(*events, models.Event{
				Type: models.EventNightResolved, GameID: g.ID,
				Payload: models.NightResolvedPayload{DayCount: g.DayCount, Deaths: dl.ids()},
			})
			if len(g.PendingHunterIDs) > 0 {
				return true // hunter window opens before the day breaks
			}
			if v := checkVictory(g); v != nil {
				s.endGame(g, v, events)
				return false
			}
			s.enterDay(g, events)
			return true
		default:
			if s.roleSubActive(g, sub) {
				s.enterTimed(g, sub, events)
				return false
			}
		}
	}
	return true
}

// stepDay moves to the next day sub-phase; false parks the walk.
func (s *Scheduler) stepDay(g *models.Game, events *[]models.Event) bool {
	next := nextInOrder(models.DayOrder, g.SubPhase)
	for _, sub := range next {
		switch sub {
		case models.SubPhaseDawn:
			s.enterProcess(g, sub, events)
		case models.SubPhaseVoteCapitaine:
			if g.DayCount == 1 && g.CaptainID == nil {
				s.enterTimed(g, sub, events)
				return false
			}
		case models.SubPhaseDeliberation, models.SubPhaseVote:
			s.enterTimed(g, sub, events)
			return false
		case models.SubPhaseDusk:
			s.enterProcess(g, sub, events)
			if len(g.PendingHunterIDs) > 0 {
				return true
			}
			if v := checkVictory(g); v != nil {
				s.endGame(g, v, events)
				return false
			}
			s.enterNight(g, events)
			return true
		}
	}
	return true
}

// enterDay runs the NIGHT->DAY transition: dayCount ticks at dawn.
func (s *Scheduler) enterDay(g *models.Game, events *[]models.Event) {
	g.Phase = models.PhaseDay
	g.SubPhase = models.SubPhaseNone
	g.DayCount++
	g.LastPhaseChangeAt = time.Now().UTC()
	*events = append(*events, models.Event{
		Type: models.EventPhaseChanged, GameID: g.ID,
		Payload: models.PhaseChangedPayload{From: models.PhaseNight, To: models.PhaseDay, DayCount: g.DayCount},
	})
}

// enterNight runs the DAY->NIGHT transition: per-day tallies are gone.
func (s *Scheduler) enterNight(g *models.Game, events *[]models.Event) {
	g.Phase = models.PhaseNight
	g.SubPhase = models.SubPhaseNone
	g.Votes = nil
	g.CaptainVotes = nil
	g.LastPhaseChangeAt = time.Now().UTC()
	*events = append(*events, models.Event{
		Type: models.EventPhaseChanged, GameID: g.ID,
		Payload: models.PhaseChangedPayload{From: models.PhaseDay, To: models.PhaseNight, DayCount: g.DayCount},
	})
}

func (s *Scheduler) enterProcess(g *models.Game, sub models.SubPhase, events *[]models.Event) {
	from := g.SubPhase
	g.SubPhase = sub
	g.ActiveTimer = nil
	*events = append(*events, models.Event{
		Type: models.EventSubPhaseChanged, GameID: g.ID,
		Payload: models.SubPhaseChangedPayload{From: from, To: sub},
	})
}

func (s *Scheduler) enterTimed(g *models.Game, sub models.SubPhase, events *[]models.Event) {
	from := g.SubPhase
	g.SubPhase = sub
	d := s.cfg.SubPhaseTimeout(sub)
	g.ActiveTimer = &models.ActiveTimer{
		Type:     models.TimerSubPhase,
		Deadline: time.Now().UTC().Add(d),
		Total:    d,
	}
	*events = append(*events, models.Event{
		Type: models.EventSubPhaseChanged, GameID: g.ID,
		Payload: models.SubPhaseChangedPayload{From: from, To: sub},
	})
}

func (s *Scheduler) endGame(g *models.Game, v *Victory, events *[]models.Event) {
	from := g.Phase
	g.Phase = models.PhaseEnded
	g.SubPhase = models.SubPhaseNone
	g.ActiveTimer = nil
	g.LastPhaseChangeAt = time.Now().UTC()
	g.AppendLog(s.cfg.MaxHistory, "end", fmt.Sprintf("game over, %s won", v.Winner))
	*events = append(*events,
		models.Event{
			Type: models.EventPhaseChanged, GameID: g.ID,
			Payload: models.PhaseChangedPayload{From: from, To: models.PhaseEnded, DayCount: g.DayCount},
		},
		models.Event{
			Type: models.EventGameEnded, GameID: g.ID,
			Payload: models.GameEndedPayload{Winner: v.Winner, Winners: v.Winners},
		},
	)
}

// roleSubActive decides whether a role-gated night sub-phase opens at all.
func (s *Scheduler) roleSubActive(g *models.Game, sub models.SubPhase) bool {
	switch sub {
	case models.SubPhaseCupid, models.SubPhaseThief:
		if g.DayCount != 0 {
			return false
		}
	case models.SubPhaseLoupBlanc:
		// The white wolf hunts his own only on even nights.
		if g.DayCount%2 == 0 {
			return false
		}
	case models.SubPhaseLoups:
		return len(g.AliveWolves()) > 0
	}

	role, ok := models.SubPhaseRole[sub]
	if !ok {
		return false
	}
	bearer := g.AliveWithRole(role)
	if bearer == nil {
		return false
	}
	if g.VillageRolesPowerless && role.IsVillageAligned() {
		return false
	}
	if s.cfg.SkipFakePhases && bearer.Fake {
		return false
	}
	switch sub {
	case models.SubPhaseThief:
		return len(g.ThiefExtraRoles) == 2
	case models.SubPhaseSorciere:
		return g.WitchPotions.Life || g.WitchPotions.Death
	}
	return true
}

// nextInOrder returns the tail of order strictly after cur; the whole order
// when cur is not in it (fresh phase entry).
func nextInOrder(order []models.SubPhase, cur models.SubPhase) []models.SubPhase {
	for i, s := range order {
		if s == cur {
			return order[i+1:]
		}
	}
	return order
}
