package models

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleGame() *Game {
	captain := uuid.New()
	protected := uuid.New()
	g := &Game{
		ID:       "g1",
		Phase:    PhaseNight,
		SubPhase: SubPhaseLoups,
		DayCount: 1,
		Players: []*Player{
			{ID: captain, Username: "cap", Role: RoleVillager, Alive: true},
			{ID: protected, Username: "shield", Role: RoleSeer, Alive: true},
			{ID: uuid.New(), Username: "wolf", Role: RoleWerewolf, Alive: true},
		},
		CaptainID:         &captain,
		ProtectedPlayerID: &protected,
		Lovers:            []uuid.UUID{captain, protected},
		Votes:             map[uuid.UUID]uuid.UUID{captain: protected},
		WolfVotes:         map[uuid.UUID]uuid.UUID{},
		Channels:          map[string]string{"wolves": "chan-1"},
		Rules:             Rules{MinPlayers: 3, MaxPlayers: 24, WolfWinCondition: WolfWinMajority},
	}
	g.Players[0].InLove = true
	g.Players[1].InLove = true
	return g
}

// TestGame_CloneIsDeep mutates every shared structure on the copy and checks
// the original never moves.
func TestGame_CloneIsDeep(t *testing.T) {
	g := sampleGame()
	cp := g.Clone()

	cp.Players[0].Alive = false
	cp.Dead = append(cp.Dead, cp.Players[0].ID)
	cp.Lovers[0] = uuid.New()
	*cp.CaptainID = uuid.New()
	*cp.ProtectedPlayerID = uuid.New()
	cp.Votes[uuid.New()] = uuid.New()
	cp.Channels["wolves"] = "chan-2"
	cp.AppendLog(10, "test", "copy only")

	assert.True(t, g.Players[0].Alive)
	assert.Empty(t, g.Dead)
	assert.Equal(t, g.Players[0].ID, g.Lovers[0])
	assert.NotEqual(t, *cp.CaptainID, *g.CaptainID)
	assert.NotEqual(t, *cp.ProtectedPlayerID, *g.ProtectedPlayerID)
	assert.Len(t, g.Votes, 1)
	assert.Equal(t, "chan-1", g.Channels["wolves"])
	assert.Empty(t, g.ActionLog)
}

func TestGame_CloneKeepsNilMapsNil(t *testing.T) {
	g := &Game{ID: "g1", Phase: PhaseLobby, SubPhase: SubPhaseWaiting}
	cp := g.Clone()
	assert.Nil(t, cp.Votes)
	assert.Nil(t, cp.Channels)
	assert.Nil(t, cp.CaptainID)
}

// TestGame_VoteWeight covers the captain double weight, the revealed idiot's
// lost vote, and dead or unknown voters.
func TestGame_VoteWeight(t *testing.T) {
	g := sampleGame()
	captain := g.Players[0].ID
	plain := g.Players[1].ID

	assert.Equal(t, 2, g.VoteWeight(captain))
	assert.Equal(t, 1, g.VoteWeight(plain))

	g.Players[1].IdiotRevealed = true
	assert.Equal(t, 0, g.VoteWeight(plain))

	g.Players[2].Alive = false
	assert.Equal(t, 0, g.VoteWeight(g.Players[2].ID))
	assert.Equal(t, 0, g.VoteWeight(uuid.New()))
}

func TestGame_LoverOf(t *testing.T) {
	g := sampleGame()
	a, b := g.Lovers[0], g.Lovers[1]

	partner := g.LoverOf(a)
	require.NotNil(t, partner)
	assert.Equal(t, b, *partner)
	partner = g.LoverOf(b)
	require.NotNil(t, partner)
	assert.Equal(t, a, *partner)
	assert.Nil(t, g.LoverOf(uuid.New()))

	g.Lovers = nil
	assert.Nil(t, g.LoverOf(a))
}

func TestGame_AliveWolves(t *testing.T) {
	g := &Game{Players: []*Player{
		{ID: uuid.New(), Role: RoleWerewolf, Alive: true},
		{ID: uuid.New(), Role: RoleWhiteWolf, Alive: true},
		{ID: uuid.New(), Role: RoleWerewolf, Alive: false},
		{ID: uuid.New(), Role: RoleVillager, Alive: true},
	}}
	wolves := g.AliveWolves()
	require.Len(t, wolves, 2)
	assert.Equal(t, g.Players[0].ID, wolves[0].ID, "seat order is preserved")
	assert.Equal(t, g.Players[1].ID, wolves[1].ID)
}

func TestGame_AliveWithRole(t *testing.T) {
	g := sampleGame()
	assert.Equal(t, g.Players[1].ID, g.AliveWithRole(RoleSeer).ID)
	g.Players[1].Alive = false
	assert.Nil(t, g.AliveWithRole(RoleSeer))
	assert.Nil(t, g.AliveWithRole(RoleWitch))
}

// TestGame_AppendLogTruncatesHead keeps the newest maxHistory entries.
func TestGame_AppendLogTruncatesHead(t *testing.T) {
	g := &Game{}
	for i := 0; i < 7; i++ {
		g.AppendLog(5, "test", fmt.Sprintf("entry %d", i))
	}
	require.Len(t, g.ActionLog, 5)
	assert.Equal(t, "entry 2", g.ActionLog[0].Message)
	assert.Equal(t, "entry 6", g.ActionLog[4].Message)

	// Zero disables the cap.
	g = &Game{}
	for i := 0; i < 7; i++ {
		g.AppendLog(0, "test", "x")
	}
	assert.Len(t, g.ActionLog, 7)
}

func TestIsLegalSubPhase(t *testing.T) {
	assert.True(t, IsLegalSubPhase(PhaseLobby, SubPhaseWaiting))
	assert.True(t, IsLegalSubPhase(PhaseNight, SubPhaseSorciere))
	assert.True(t, IsLegalSubPhase(PhaseNight, SubPhaseHunterShoot))
	assert.True(t, IsLegalSubPhase(PhaseDay, SubPhaseHunterShoot))
	assert.True(t, IsLegalSubPhase(PhaseEnded, SubPhaseNone))

	assert.False(t, IsLegalSubPhase(PhaseDay, SubPhaseLoups))
	assert.False(t, IsLegalSubPhase(PhaseNight, SubPhaseVote))
	assert.False(t, IsLegalSubPhase(PhaseLobby, SubPhaseNone))
}

func TestRole_IsWolf(t *testing.T) {
	assert.True(t, RoleWerewolf.IsWolf())
	assert.True(t, RoleWhiteWolf.IsWolf())
	assert.False(t, RoleVillager.IsWolf())
	assert.False(t, RoleSeer.IsWolf())

	assert.False(t, RoleWhiteWolf.IsVillageAligned())
	assert.True(t, RoleAncien.IsVillageAligned())
}
