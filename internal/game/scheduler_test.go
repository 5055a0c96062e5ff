package game

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/villageois/garou/internal/models"
	"github.com/villageois/garou/internal/store"
)

// TestScheduler_CaptainElection closes the morning-one election and moves
// into deliberation with the sash pinned on.
func TestScheduler_CaptainElection(t *testing.T) {
	e, _ := newTestEngine(t)
	g, ids := runningGame("cap", 1, models.PhaseDay, models.SubPhaseVoteCapitaine,
		models.RoleWerewolf, models.RoleVillager, models.RoleVillager, models.RoleSeer)
	injectGame(t, e, g)

	events, cancel := e.Subscribe(nil)
	defer cancel()

	for _, voter := range ids {
		mustOK(t, submit(t, e, targeted("cap", voter, models.VerbCaptainVote, ids[1])))
	}

	after := snap(t, e, "cap")
	require.NotNil(t, after.CaptainID)
	assert.Equal(t, ids[1], *after.CaptainID)
	assert.Equal(t, models.SubPhaseDeliberation, after.SubPhase)
	assert.Equal(t, 1, after.VoteRound)
	assert.Nil(t, after.CaptainVotes)

	elected := eventsOfType(drainEvents(events), models.EventCaptainElected)
	require.Len(t, elected, 1)
	assert.Equal(t, ids[1], elected[0].Payload.(models.CaptainElectedPayload).CaptainID)
}

func TestScheduler_CaptainVoteRejectedOnceElected(t *testing.T) {
	e, _ := newTestEngine(t)
	g, ids := runningGame("cap2", 1, models.PhaseDay, models.SubPhaseVoteCapitaine,
		models.RoleWerewolf, models.RoleVillager, models.RoleVillager)
	g.CaptainID = &ids[1]
	injectGame(t, e, g)

	mustFail(t, submit(t, e, targeted("cap2", ids[0], models.VerbCaptainVote, ids[1])),
		models.ReasonCaptainAlready)
}

func TestScheduler_ForceSkipMovesDeliberationToVote(t *testing.T) {
	e, _ := newTestEngine(t)
	g, _ := runningGame("delib", 1, models.PhaseDay, models.SubPhaseDeliberation,
		models.RoleWerewolf, models.RoleVillager, models.RoleVillager, models.RoleSeer)
	injectGame(t, e, g)

	mustFail(t, submit(t, e, intentFor("delib", g.Players[0].ID, models.VerbForceSkip)),
		models.ReasonNotAdmin)
	mustOK(t, submit(t, e, adminIntent("delib", models.VerbForceSkip)))

	assert.Equal(t, models.SubPhaseVote, snap(t, e, "delib").SubPhase)
}

// TestScheduler_WolfTimeoutResolvesByPlurality lets the pack ballot expire
// with a split vote; the cast votes still pick a prey.
func TestScheduler_WolfTimeoutResolvesByPlurality(t *testing.T) {
	e, _ := newTestEngine(t)
	g, ids := runningGame("afk", 0, models.PhaseNight, models.SubPhaseLoups,
		models.RoleWerewolf, models.RoleWerewolf, models.RoleWerewolf,
		models.RoleVillager, models.RoleVillager, models.RoleVillager,
		models.RoleVillager, models.RoleVillager)
	injectGame(t, e, g)

	mustOK(t, submit(t, e, targeted("afk", ids[0], models.VerbWolfKill, ids[3])))
	mustOK(t, submit(t, e, targeted("afk", ids[1], models.VerbWolfKill, ids[4])))
	// The third wolf sleeps through the night.
	mustOK(t, submit(t, e, adminIntent("afk", models.VerbForceSkip)))

	after := snap(t, e, "afk")
	assert.Equal(t, models.PhaseDay, after.Phase)
	dead := 0
	for _, id := range []int{3, 4} {
		if !after.PlayerByID(ids[id]).Alive {
			dead++
		}
	}
	assert.Equal(t, 1, dead, "the tied plurality settles on exactly one prey")
}

func TestScheduler_WolfSkipLeavesNoVictim(t *testing.T) {
	e, _ := newTestEngine(t)
	pool := []models.Role{
		models.RoleWerewolf, models.RoleVillager, models.RoleVillager,
		models.RoleSeer, models.RoleHunter,
	}
	startGame(t, e, "skip", pool, 5)

	g := snap(t, e, "skip")
	wolf := playerWithRole(t, g, models.RoleWerewolf)
	seer := playerWithRole(t, g, models.RoleSeer)

	mustOK(t, submit(t, e, intentFor("skip", wolf, models.VerbSkip)))
	mustOK(t, submit(t, e, intentFor("skip", seer, models.VerbSkip)))

	g = snap(t, e, "skip")
	assert.Equal(t, models.PhaseDay, g.Phase)
	for _, p := range g.Players {
		assert.True(t, p.Alive)
	}
}

func TestScheduler_SkipByWrongActorRejected(t *testing.T) {
	e, _ := newTestEngine(t)
	pool := []models.Role{
		models.RoleWerewolf, models.RoleVillager, models.RoleVillager,
		models.RoleSeer, models.RoleHunter,
	}
	startGame(t, e, "skip2", pool, 5)

	g := snap(t, e, "skip2")
	require.Equal(t, models.SubPhaseLoups, g.SubPhase)
	villager := playersWithRole(g, models.RoleVillager)[0]
	mustFail(t, submit(t, e, intentFor("skip2", villager, models.VerbSkip)), models.ReasonNotRole)
}

// TestScheduler_WhiteWolfTurnsOnThePack runs an even-night loup blanc kill
// alongside the pack kill.
func TestScheduler_WhiteWolfTurnsOnThePack(t *testing.T) {
	e, _ := newTestEngine(t)
	g, ids := runningGame("white", 1, models.PhaseNight, models.SubPhaseLoups,
		models.RoleWhiteWolf, models.RoleWerewolf,
		models.RoleVillager, models.RoleVillager, models.RoleVillager, models.RoleSeer)
	injectGame(t, e, g)

	mustOK(t, submit(t, e, targeted("white", ids[0], models.VerbWolfKill, ids[2])))
	mustOK(t, submit(t, e, targeted("white", ids[1], models.VerbWolfKill, ids[2])))

	after := snap(t, e, "white")
	require.Equal(t, models.SubPhaseLoupBlanc, after.SubPhase, "the white wolf hunts alone on even nights")

	mustFail(t, submit(t, e, targeted("white", ids[0], models.VerbWhiteKill, ids[3])),
		models.ReasonInvalidTarget)
	mustOK(t, submit(t, e, targeted("white", ids[0], models.VerbWhiteKill, ids[1])))
	mustOK(t, submit(t, e, targeted("white", ids[5], models.VerbSee, ids[0])))

	after = snap(t, e, "white")
	assert.Equal(t, models.PhaseDay, after.Phase)
	assert.False(t, after.PlayerByID(ids[2]).Alive)
	assert.False(t, after.PlayerByID(ids[1]).Alive, "the pack brother is devoured")
	assert.True(t, after.PlayerByID(ids[0]).Alive)
}

func TestScheduler_WhiteWolfSleepsOnOddNights(t *testing.T) {
	e, _ := newTestEngine(t)
	g, ids := runningGame("white-odd", 0, models.PhaseNight, models.SubPhaseLoups,
		models.RoleWhiteWolf, models.RoleWerewolf,
		models.RoleVillager, models.RoleVillager, models.RoleVillager, models.RoleSeer)
	injectGame(t, e, g)

	mustOK(t, submit(t, e, targeted("white-odd", ids[0], models.VerbWolfKill, ids[2])))
	mustOK(t, submit(t, e, targeted("white-odd", ids[1], models.VerbWolfKill, ids[2])))

	assert.Equal(t, models.SubPhaseVoyante, snap(t, e, "white-odd").SubPhase,
		"no loup blanc window on the first night")
}

// TestScheduler_LynchedHunterShootsBack opens the transient window on the
// lynch, lets the hunter take the wolf down, and ends the game for the
// village.
func TestScheduler_LynchedHunterShootsBack(t *testing.T) {
	e, _ := newTestEngine(t)
	g, ids := runningGame("hunt", 1, models.PhaseDay, models.SubPhaseVote,
		models.RoleWerewolf, models.RoleHunter,
		models.RoleVillager, models.RoleVillager, models.RoleVillager)
	injectGame(t, e, g)

	events, cancel := e.Subscribe(nil)
	defer cancel()

	for _, voter := range ids {
		mustOK(t, submit(t, e, targeted("hunt", voter, models.VerbDayVote, ids[1])))
	}

	after := snap(t, e, "hunt")
	require.Equal(t, models.SubPhaseHunterShoot, after.SubPhase)
	require.Len(t, after.PendingHunterIDs, 1)
	assert.False(t, after.PlayerByID(ids[1]).Alive)

	// Only the dying hunter holds the trigger.
	mustFail(t, submit(t, e, targeted("hunt", ids[2], models.VerbHunterShoot, ids[0])),
		models.ReasonNotRole)

	mustOK(t, submit(t, e, targeted("hunt", ids[1], models.VerbHunterShoot, ids[0])))

	after = snap(t, e, "hunt")
	assert.Equal(t, models.PhaseEnded, after.Phase)
	assert.False(t, after.PlayerByID(ids[0]).Alive)

	all := drainEvents(events)
	ended := eventsOfType(all, models.EventGameEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, WinnerVillage, ended[0].Payload.(models.GameEndedPayload).Winner)

	// A finished game can be torn down through the facade.
	mustOK(t, e.EndGame(context.Background(), "hunt"))
	assert.Nil(t, e.Snapshot("hunt"))
}

// TestScheduler_HunterTimeoutForfeitsTheShot lets the window lapse; the day
// resumes where it was interrupted and nobody else dies.
func TestScheduler_HunterTimeoutForfeitsTheShot(t *testing.T) {
	e, _ := newTestEngine(t)
	g, ids := runningGame("hunt-afk", 1, models.PhaseDay, models.SubPhaseVote,
		models.RoleWerewolf, models.RoleHunter,
		models.RoleVillager, models.RoleVillager, models.RoleVillager)
	injectGame(t, e, g)

	for _, voter := range ids {
		mustOK(t, submit(t, e, targeted("hunt-afk", voter, models.VerbDayVote, ids[1])))
	}
	require.Equal(t, models.SubPhaseHunterShoot, snap(t, e, "hunt-afk").SubPhase)

	mustOK(t, submit(t, e, adminIntent("hunt-afk", models.VerbForceSkip)))

	after := snap(t, e, "hunt-afk")
	assert.Equal(t, models.PhaseNight, after.Phase, "the interrupted day runs to dusk")
	assert.Empty(t, after.PendingHunterIDs)
	assert.True(t, after.PlayerByID(ids[0]).Alive)
	assert.Len(t, after.Dead, 1)
}

// TestScheduler_IdiotSurvivesHisLynch reveals the idiot instead of killing
// him and strips his vote.
func TestScheduler_IdiotSurvivesHisLynch(t *testing.T) {
	e, _ := newTestEngine(t)
	g, ids := runningGame("idiot", 1, models.PhaseDay, models.SubPhaseVote,
		models.RoleWerewolf, models.RoleIdiot,
		models.RoleVillager, models.RoleVillager, models.RoleSeer)
	injectGame(t, e, g)

	events, cancel := e.Subscribe(nil)
	defer cancel()

	for _, voter := range ids {
		mustOK(t, submit(t, e, targeted("idiot", voter, models.VerbDayVote, ids[1])))
	}

	after := snap(t, e, "idiot")
	p := after.PlayerByID(ids[1])
	assert.True(t, p.Alive, "the village spares its idiot")
	assert.True(t, p.IdiotRevealed)
	assert.Equal(t, 0, after.VoteWeight(ids[1]), "a revealed idiot votes for nothing")
	assert.Equal(t, models.PhaseNight, after.Phase)
	assert.Empty(t, eventsOfType(drainEvents(events), models.EventPlayerKilled))
}

// TestScheduler_WitchPotionEdges exercises the witch's refusal reasons and
// the two-potion night.
func TestScheduler_WitchPotionEdges(t *testing.T) {
	e, _ := newTestEngine(t)
	g, ids := runningGame("witch", 0, models.PhaseNight, models.SubPhaseSorciere,
		models.RoleWerewolf, models.RoleWitch, models.RoleVillager, models.RoleSeer)
	injectGame(t, e, g)

	witch := ids[1]
	mustFail(t, submit(t, e, intentFor("witch", witch, models.VerbPotionLife)),
		models.ReasonNoVictimTonight)
	mustFail(t, submit(t, e, targeted("witch", witch, models.VerbPotionDeath, witch)),
		models.ReasonCannotPoisonSelf)

	// Poison the wolf; with no victim to save, the turn closes itself.
	mustOK(t, submit(t, e, targeted("witch", witch, models.VerbPotionDeath, ids[0])))

	after := snap(t, e, "witch")
	assert.NotEqual(t, models.SubPhaseSorciere, after.SubPhase)
	assert.False(t, after.WitchPotions.Death)
}

func TestScheduler_WitchWithEmptyFlasks(t *testing.T) {
	e, _ := newTestEngine(t)
	g, ids := runningGame("witch-dry", 0, models.PhaseNight, models.SubPhaseSorciere,
		models.RoleWerewolf, models.RoleWitch, models.RoleVillager, models.RoleSeer)
	g.NightVictim = &ids[2]
	g.WitchPotions = models.WitchPotions{Life: false, Death: true}
	injectGame(t, e, g)

	mustFail(t, submit(t, e, intentFor("witch-dry", ids[1], models.VerbPotionLife)),
		models.ReasonNoLifePotion)

	g2, ids2 := runningGame("witch-dry2", 0, models.PhaseNight, models.SubPhaseSorciere,
		models.RoleWerewolf, models.RoleWitch, models.RoleVillager, models.RoleSeer)
	g2.NightVictim = &ids2[2]
	g2.WitchPotions = models.WitchPotions{Life: true, Death: false}
	injectGame(t, e, g2)

	mustFail(t, submit(t, e, targeted("witch-dry2", ids2[1], models.VerbPotionDeath, ids2[0])),
		models.ReasonNoDeathPotion)
}

func TestScheduler_WitchSaveThenPoisonEndsTheTurn(t *testing.T) {
	e, _ := newTestEngine(t)
	g, ids := runningGame("witch2", 0, models.PhaseNight, models.SubPhaseSorciere,
		models.RoleWerewolf, models.RoleWitch, models.RoleVillager, models.RoleSeer)
	g.NightVictim = &ids[2]
	injectGame(t, e, g)

	witch := ids[1]
	mustOK(t, submit(t, e, intentFor("witch2", witch, models.VerbPotionLife)))
	require.Equal(t, models.SubPhaseSorciere, snap(t, e, "witch2").SubPhase)
	mustOK(t, submit(t, e, targeted("witch2", witch, models.VerbPotionDeath, ids[0])))

	after := snap(t, e, "witch2")
	assert.NotEqual(t, models.SubPhaseSorciere, after.SubPhase, "both potions spent, nothing left to decide")
}

func TestScheduler_SalvateurCannotRepeatOrSelfProtect(t *testing.T) {
	e, _ := newTestEngine(t)
	g, ids := runningGame("salv", 1, models.PhaseNight, models.SubPhaseSalvateur,
		models.RoleWerewolf, models.RoleSalvateur, models.RoleVillager, models.RoleVillager)
	g.LastProtectedPlayerID = &ids[2]
	injectGame(t, e, g)

	salvateur := ids[1]
	mustFail(t, submit(t, e, targeted("salv", salvateur, models.VerbProtect, salvateur)),
		models.ReasonCannotProtectSelf)
	mustFail(t, submit(t, e, targeted("salv", salvateur, models.VerbProtect, ids[2])),
		models.ReasonCannotProtectSame)
	mustOK(t, submit(t, e, targeted("salv", salvateur, models.VerbProtect, ids[3])))
}

// TestScheduler_SeerAndTheElder checks the elder shrugs off the first-night
// glance and is readable afterwards.
func TestScheduler_SeerAndTheElder(t *testing.T) {
	e, _ := newTestEngine(t)
	g, ids := runningGame("seer1", 0, models.PhaseNight, models.SubPhaseVoyante,
		models.RoleWerewolf, models.RoleSeer, models.RoleAncien, models.RoleVillager)
	injectGame(t, e, g)

	mustFail(t, submit(t, e, targeted("seer1", ids[1], models.VerbSee, ids[2])),
		models.ReasonAncientResists)
	mustFail(t, submit(t, e, targeted("seer1", ids[1], models.VerbSee, ids[1])),
		models.ReasonInvalidTarget)

	g2, ids2 := runningGame("seer2", 1, models.PhaseNight, models.SubPhaseVoyante,
		models.RoleWerewolf, models.RoleSeer, models.RoleAncien, models.RoleVillager)
	injectGame(t, e, g2)

	res := submit(t, e, targeted("seer2", ids2[1], models.VerbSee, ids2[2]))
	mustOK(t, res)
	seen := res.Data.(map[string]any)["role"].(*models.Role)
	assert.Equal(t, models.RoleAncien, *seen)
}

func TestScheduler_PetiteFilleSeesThePack(t *testing.T) {
	e, _ := newTestEngine(t)
	g, ids := runningGame("pf", 0, models.PhaseNight, models.SubPhasePetiteFille,
		models.RoleWerewolf, models.RoleWerewolf, models.RolePetiteFille, models.RoleVillager, models.RoleVillager)
	injectGame(t, e, g)

	res := submit(t, e, intentFor("pf", ids[2], models.VerbSpy))
	mustOK(t, res)
	wolves := res.Data.(map[string]any)["wolves"].(*[]uuid.UUID)
	assert.ElementsMatch(t, []uuid.UUID{ids[0], ids[1]}, *wolves)
}

// TestScheduler_TimerCascade shortens the night-role timeout and watches the
// armed timers walk an untouched game into the day on their own.
func TestScheduler_TimerCascade(t *testing.T) {
	cfg := testConfig()
	cfg.Game.NightRoleTimeout = 50 * time.Millisecond
	mem := store.NewMemory()
	e := NewEngine(cfg, mem, nil)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(e.Shutdown)

	pool := []models.Role{
		models.RoleWerewolf, models.RoleVillager, models.RoleVillager,
		models.RoleSeer, models.RoleHunter,
	}
	startGame(t, e, "cascade", pool, 5)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		g := snap(t, e, "cascade")
		if g.Phase == models.PhaseDay {
			assert.Equal(t, models.SubPhaseVoteCapitaine, g.SubPhase)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timers never carried the game into the day")
}
