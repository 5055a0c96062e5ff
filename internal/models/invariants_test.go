package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRunningGame() *Game {
	dead := uuid.New()
	return &Game{
		ID:       "g1",
		Phase:    PhaseNight,
		SubPhase: SubPhaseLoups,
		DayCount: 0,
		Players: []*Player{
			{ID: uuid.New(), Role: RoleWerewolf, Alive: true},
			{ID: uuid.New(), Role: RoleVillager, Alive: true},
			{ID: dead, Role: RoleSeer, Alive: false},
		},
		Dead:  []uuid.UUID{dead},
		Rules: Rules{MinPlayers: 3, MaxPlayers: 24, WolfWinCondition: WolfWinMajority},
	}
}

func TestCheckInvariants_ValidGame(t *testing.T) {
	require.NoError(t, validRunningGame().CheckInvariants())
}

// TestCheckInvariants_DeadListPartition rejects any disagreement between the
// Alive flags and the Dead list.
func TestCheckInvariants_DeadListPartition(t *testing.T) {
	g := validRunningGame()
	g.Players[1].Alive = false // dead but never listed
	assert.Error(t, g.CheckInvariants())

	g = validRunningGame()
	g.Dead = append(g.Dead, g.Players[0].ID) // listed but still alive
	assert.Error(t, g.CheckInvariants())

	g = validRunningGame()
	g.Dead = append(g.Dead, uuid.New()) // phantom entry breaks the partition
	assert.Error(t, g.CheckInvariants())
}

func TestCheckInvariants_RunningPlayersNeedRoles(t *testing.T) {
	g := validRunningGame()
	g.Players[1].Role = ""
	assert.Error(t, g.CheckInvariants())

	// Lobby seats are unassigned by definition.
	lobby := &Game{
		ID:       "g2",
		Phase:    PhaseLobby,
		SubPhase: SubPhaseWaiting,
		Players:  []*Player{{ID: uuid.New(), Alive: true}},
	}
	assert.NoError(t, lobby.CheckInvariants())
}

func TestCheckInvariants_SubPhaseLegality(t *testing.T) {
	g := validRunningGame()
	g.SubPhase = SubPhaseVote // a day sub-phase at night
	assert.Error(t, g.CheckInvariants())

	g = validRunningGame()
	g.SubPhase = SubPhaseHunterShoot
	assert.NoError(t, g.CheckInvariants())
}

func TestCheckInvariants_Lovers(t *testing.T) {
	g := validRunningGame()
	g.Lovers = []uuid.UUID{g.Players[0].ID}
	assert.Error(t, g.CheckInvariants(), "a single lover is not a pair")

	g = validRunningGame()
	g.Lovers = []uuid.UUID{g.Players[0].ID, g.Players[0].ID}
	assert.Error(t, g.CheckInvariants(), "lovers must be two distinct players")

	g = validRunningGame()
	g.Lovers = []uuid.UUID{g.Players[0].ID, uuid.New()}
	assert.Error(t, g.CheckInvariants(), "both lovers must be seated")

	g = validRunningGame()
	g.Lovers = []uuid.UUID{g.Players[0].ID, g.Players[1].ID}
	assert.NoError(t, g.CheckInvariants())
}

func TestCheckInvariants_SalvateurNeverRepeats(t *testing.T) {
	g := validRunningGame()
	id := g.Players[1].ID
	g.ProtectedPlayerID = &id
	g.LastProtectedPlayerID = &id
	assert.Error(t, g.CheckInvariants())

	other := g.Players[0].ID
	g.LastProtectedPlayerID = &other
	assert.NoError(t, g.CheckInvariants())
}

func TestCheckInvariants_ThiefOfferSize(t *testing.T) {
	g := validRunningGame()
	g.ThiefExtraRoles = []Role{RoleWerewolf}
	assert.Error(t, g.CheckInvariants())

	g.ThiefExtraRoles = []Role{RoleWerewolf, RoleVillager}
	assert.NoError(t, g.CheckInvariants())
}

func TestCheckInvariants_NegativeDayCount(t *testing.T) {
	g := validRunningGame()
	g.DayCount = -1
	assert.Error(t, g.CheckInvariants())
}
