package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// PHASES AND SUB-PHASES
// ============================================================================

type Phase string

const (
	PhaseLobby Phase = "lobby"
	PhaseNight Phase = "night"
	PhaseDay   Phase = "day"
	PhaseEnded Phase = "ended"
)

type SubPhase string

const (
	// Lobby
	SubPhaseWaiting SubPhase = "waiting"

	// Night, in order
	SubPhaseCupid        SubPhase = "cupid"
	SubPhaseLoversReveal SubPhase = "lovers_reveal"
	SubPhaseThief        SubPhase = "thief"
	SubPhaseSalvateur    SubPhase = "salvateur"
	SubPhaseLoups        SubPhase = "loups"
	SubPhaseLoupBlanc    SubPhase = "loup_blanc"
	SubPhaseSorciere     SubPhase = "sorciere"
	SubPhaseVoyante      SubPhase = "voyante"
	SubPhasePetiteFille  SubPhase = "petite_fille"
	SubPhaseReveil       SubPhase = "reveil"

	// Day, in order
	SubPhaseDawn          SubPhase = "dawn"
	SubPhaseVoteCapitaine SubPhase = "vote_capitaine"
	SubPhaseDeliberation  SubPhase = "deliberation"
	SubPhaseVote          SubPhase = "vote"
	SubPhaseDusk          SubPhase = "dusk"

	// Transient, opened out-of-band when a hunter dies
	SubPhaseHunterShoot SubPhase = "hunter_shoot"

	SubPhaseNone SubPhase = ""
)

// NightOrder is the canonical sequence of night sub-phases.
var NightOrder = []SubPhase{
	SubPhaseCupid,
	SubPhaseLoversReveal,
	SubPhaseThief,
	SubPhaseSalvateur,
	SubPhaseLoups,
	SubPhaseLoupBlanc,
	SubPhaseSorciere,
	SubPhaseVoyante,
	SubPhasePetiteFille,
	SubPhaseReveil,
}

// DayOrder is the canonical sequence of day sub-phases.
var DayOrder = []SubPhase{
	SubPhaseDawn,
	SubPhaseVoteCapitaine,
	SubPhaseDeliberation,
	SubPhaseVote,
	SubPhaseDusk,
}

// LegalSubPhases maps a phase to the sub-phases allowed inside it.
var LegalSubPhases = map[Phase][]SubPhase{
	PhaseLobby: {SubPhaseWaiting},
	PhaseNight: append(append([]SubPhase{}, NightOrder...), SubPhaseHunterShoot),
	PhaseDay:   append(append([]SubPhase{}, DayOrder...), SubPhaseHunterShoot),
	PhaseEnded: {SubPhaseNone},
}

// IsLegalSubPhase reports whether sub is valid inside phase.
func IsLegalSubPhase(phase Phase, sub SubPhase) bool {
	for _, s := range LegalSubPhases[phase] {
		if s == sub {
			return true
		}
	}
	return false
}

// ============================================================================
// ROLES
// ============================================================================

type Role string

const (
	RoleWerewolf    Role = "werewolf"
	RoleWhiteWolf   Role = "white_wolf"
	RoleVillager    Role = "villager"
	RoleSeer        Role = "seer"
	RoleWitch       Role = "witch"
	RoleHunter      Role = "hunter"
	RolePetiteFille Role = "petite_fille"
	RoleCupid       Role = "cupid"
	RoleSalvateur   Role = "salvateur"
	RoleAncien      Role = "ancien"
	RoleThief       Role = "thief"
	RoleIdiot       Role = "idiot"
)

// IsWolf reports whether the role hunts with the pack.
func (r Role) IsWolf() bool {
	return r == RoleWerewolf || r == RoleWhiteWolf
}

// IsVillageAligned reports whether the role's powers are disabled by
// VillageRolesPowerless (wolves are never affected).
func (r Role) IsVillageAligned() bool {
	return !r.IsWolf()
}

// RoleCapability describes when a role may act. Dispatch goes through this
// table, not through per-role types.
type RoleCapability struct {
	ActsIn    []SubPhase
	NightOnly bool
	FirstOnly bool // cupid and thief act on night 1 only
}

var Capabilities = map[Role]RoleCapability{
	RoleWerewolf:    {ActsIn: []SubPhase{SubPhaseLoups}, NightOnly: true},
	RoleWhiteWolf:   {ActsIn: []SubPhase{SubPhaseLoups, SubPhaseLoupBlanc}, NightOnly: true},
	RoleSeer:        {ActsIn: []SubPhase{SubPhaseVoyante}, NightOnly: true},
	RoleWitch:       {ActsIn: []SubPhase{SubPhaseSorciere}, NightOnly: true},
	RoleHunter:      {ActsIn: []SubPhase{SubPhaseHunterShoot}},
	RolePetiteFille: {ActsIn: []SubPhase{SubPhasePetiteFille}, NightOnly: true},
	RoleCupid:       {ActsIn: []SubPhase{SubPhaseCupid}, NightOnly: true, FirstOnly: true},
	RoleSalvateur:   {ActsIn: []SubPhase{SubPhaseSalvateur}, NightOnly: true},
	RoleThief:       {ActsIn: []SubPhase{SubPhaseThief}, NightOnly: true, FirstOnly: true},
}

// SubPhaseRole maps a role-gated night sub-phase to the role that acts in it.
// Sub-phases missing here (reveil, dawn, deliberation, ...) are process
// phases open to everyone or no one.
var SubPhaseRole = map[SubPhase]Role{
	SubPhaseCupid:       RoleCupid,
	SubPhaseThief:       RoleThief,
	SubPhaseSalvateur:   RoleSalvateur,
	SubPhaseLoupBlanc:   RoleWhiteWolf,
	SubPhaseSorciere:    RoleWitch,
	SubPhaseVoyante:     RoleSeer,
	SubPhasePetiteFille: RolePetiteFille,
}

// ============================================================================
// GAME MODELS
// ============================================================================

type WolfWinCondition string

const (
	WolfWinMajority    WolfWinCondition = "MAJORITY"
	WolfWinElimination WolfWinCondition = "ELIMINATION"
)

type Rules struct {
	MinPlayers       int              `json:"min_players"`
	MaxPlayers       int              `json:"max_players"`
	WolfWinCondition WolfWinCondition `json:"wolf_win_condition"`
}

type Player struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Role     Role      `json:"role"`
	Alive    bool      `json:"alive"`
	InLove   bool      `json:"in_love"`

	// Thief may swap roles exactly once; everything else is immutable.
	RoleSwapped bool `json:"role_swapped,omitempty"`

	// Idiot survives his lynch but loses his vote.
	IdiotRevealed bool `json:"idiot_revealed,omitempty"`

	// True for scripted participants; only consulted by skipFakePhases.
	Fake bool `json:"fake,omitempty"`
}

type WitchPotions struct {
	Life  bool `json:"life"`
	Death bool `json:"death"`
}

type TimerType string

const (
	TimerSubPhase TimerType = "sub_phase"
	TimerLobby    TimerType = "lobby"
)

type ActiveTimer struct {
	Type     TimerType     `json:"type"`
	Deadline time.Time     `json:"deadline"`
	Total    time.Duration `json:"total"`
}

type ActionLogEntry struct {
	At      time.Time `json:"at"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
}

// Game is the authoritative state of one match. The registry hands out
// immutable snapshots; all writes go through the atomic mutator.
type Game struct {
	ID      string `json:"id"` // main channel identifier
	GuildID string `json:"guild_id"`

	Phase    Phase    `json:"phase"`
	SubPhase SubPhase `json:"sub_phase"`
	DayCount int      `json:"day_count"`

	Players []*Player   `json:"players"` // order fixed at game start
	Dead    []uuid.UUID `json:"dead"`    // mirrors Alive=false, kept for stable iteration

	CaptainID *uuid.UUID  `json:"captain_id,omitempty"`
	Lovers    []uuid.UUID `json:"lovers,omitempty"` // empty or exactly two ids

	ProtectedPlayerID     *uuid.UUID `json:"protected_player_id,omitempty"`
	LastProtectedPlayerID *uuid.UUID `json:"last_protected_player_id,omitempty"`

	NightVictim     *uuid.UUID   `json:"night_victim,omitempty"`
	WhiteWolfVictim *uuid.UUID   `json:"white_wolf_victim,omitempty"`
	WitchSave       bool         `json:"witch_save"`
	WitchKillTarget *uuid.UUID   `json:"witch_kill_target,omitempty"`
	WitchPotions    WitchPotions `json:"witch_potions"`

	ThiefExtraRoles []Role `json:"thief_extra_roles,omitempty"` // empty or exactly two

	AncienHit             bool `json:"ancien_hit"`
	VillageRolesPowerless bool `json:"village_roles_powerless"`

	// Pending hunter shots, resolved through the transient hunter_shoot
	// sub-phase before the surrounding transition concludes. ResumeSubPhase
	// remembers where the scheduler left the main order.
	PendingHunterIDs []uuid.UUID `json:"pending_hunter_ids,omitempty"`
	ResumeSubPhase   SubPhase    `json:"resume_sub_phase,omitempty"`

	// Tallies for the active round: voter -> candidate.
	Votes        map[uuid.UUID]uuid.UUID `json:"votes,omitempty"`
	WolfVotes    map[uuid.UUID]uuid.UUID `json:"wolf_votes,omitempty"`
	CaptainVotes map[uuid.UUID]uuid.UUID `json:"captain_votes,omitempty"`
	VoteRound    int                     `json:"vote_round"`

	Rules Rules `json:"rules"`

	// Secondary channels (village, wolves, witch, ...) provisioned by the
	// front end; purpose -> channel id. Registry keeps the reverse index.
	Channels map[string]string `json:"channels,omitempty"`

	StartedAt         time.Time `json:"started_at"`
	LastPhaseChangeAt time.Time `json:"last_phase_change_at"`

	ActiveTimer *ActiveTimer     `json:"active_timer,omitempty"`
	ActionLog   []ActionLogEntry `json:"action_log,omitempty"`

	// WAL sequence of the last committed mutation.
	Seq uint64 `json:"seq"`
}

// ============================================================================
// GAME ACCESSORS
// ============================================================================

// PlayerByID returns the player or nil.
func (g *Game) PlayerByID(id uuid.UUID) *Player {
	for _, p := range g.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// AlivePlayers returns all living players in seat order.
func (g *Game) AlivePlayers() []*Player {
	out := make([]*Player, 0, len(g.Players))
	for _, p := range g.Players {
		if p.Alive {
			out = append(out, p)
		}
	}
	return out
}

// AliveWolves returns living pack members in seat order.
func (g *Game) AliveWolves() []*Player {
	out := make([]*Player, 0, 4)
	for _, p := range g.Players {
		if p.Alive && p.Role.IsWolf() {
			out = append(out, p)
		}
	}
	return out
}

// AliveWithRole returns the living bearer of role, or nil.
func (g *Game) AliveWithRole(role Role) *Player {
	for _, p := range g.Players {
		if p.Alive && p.Role == role {
			return p
		}
	}
	return nil
}

// LoverOf returns the partner id if id is in the lovers pair.
func (g *Game) LoverOf(id uuid.UUID) *uuid.UUID {
	if len(g.Lovers) != 2 {
		return nil
	}
	if g.Lovers[0] == id {
		partner := g.Lovers[1]
		return &partner
	}
	if g.Lovers[1] == id {
		partner := g.Lovers[0]
		return &partner
	}
	return nil
}

// VoteWeight returns the lynch-tally weight of a player's vote.
// Captain counts double, a revealed idiot counts nothing.
func (g *Game) VoteWeight(voter uuid.UUID) int {
	p := g.PlayerByID(voter)
	if p == nil || !p.Alive {
		return 0
	}
	if p.IdiotRevealed {
		return 0
	}
	if g.CaptainID != nil && *g.CaptainID == voter {
		return 2
	}
	return 1
}

// Clone returns a deep copy used as the mutator's working copy.
func (g *Game) Clone() *Game {
	cp := *g

	cp.Players = make([]*Player, len(g.Players))
	for i, p := range g.Players {
		pc := *p
		cp.Players[i] = &pc
	}
	cp.Dead = append([]uuid.UUID(nil), g.Dead...)
	cp.Lovers = append([]uuid.UUID(nil), g.Lovers...)
	cp.ThiefExtraRoles = append([]Role(nil), g.ThiefExtraRoles...)
	cp.PendingHunterIDs = append([]uuid.UUID(nil), g.PendingHunterIDs...)
	cp.ActionLog = append([]ActionLogEntry(nil), g.ActionLog...)

	cp.CaptainID = cloneID(g.CaptainID)
	cp.ProtectedPlayerID = cloneID(g.ProtectedPlayerID)
	cp.LastProtectedPlayerID = cloneID(g.LastProtectedPlayerID)
	cp.NightVictim = cloneID(g.NightVictim)
	cp.WhiteWolfVictim = cloneID(g.WhiteWolfVictim)
	cp.WitchKillTarget = cloneID(g.WitchKillTarget)

	cp.Votes = cloneVotes(g.Votes)
	cp.WolfVotes = cloneVotes(g.WolfVotes)
	cp.CaptainVotes = cloneVotes(g.CaptainVotes)

	if g.ActiveTimer != nil {
		t := *g.ActiveTimer
		cp.ActiveTimer = &t
	}
	if g.Channels != nil {
		cp.Channels = make(map[string]string, len(g.Channels))
		for k, v := range g.Channels {
			cp.Channels[k] = v
		}
	}
	return &cp
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneVotes(m map[uuid.UUID]uuid.UUID) map[uuid.UUID]uuid.UUID {
	if m == nil {
		return nil
	}
	out := make(map[uuid.UUID]uuid.UUID, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// AppendLog records an engine-observable event, truncating from the head
// once the log exceeds maxHistory.
func (g *Game) AppendLog(maxHistory int, kind, message string) {
	g.ActionLog = append(g.ActionLog, ActionLogEntry{At: time.Now().UTC(), Kind: kind, Message: message})
	if maxHistory > 0 && len(g.ActionLog) > maxHistory {
		g.ActionLog = g.ActionLog[len(g.ActionLog)-maxHistory:]
	}
}

// ============================================================================
// NIGHT ACTIONS AND VOTES
// ============================================================================

type NightActionKind string

const (
	NightActionKill    NightActionKind = "kill"
	NightActionSave    NightActionKind = "save"
	NightActionPoison  NightActionKind = "poison"
	NightActionProtect NightActionKind = "protect"
	NightActionSee     NightActionKind = "see"
	NightActionSteal   NightActionKind = "steal"
	NightActionSpy     NightActionKind = "spy"
	NightActionLove    NightActionKind = "love"
)

// NightAction is idempotent by (day, kind, actor).
type NightAction struct {
	Day       int             `json:"day"`
	Kind      NightActionKind `json:"kind"`
	Actor     uuid.UUID       `json:"actor"`
	Target    *uuid.UUID      `json:"target,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type Vote struct {
	Voter     uuid.UUID `json:"voter"`
	Candidate uuid.UUID `json:"candidate"`
	Round     int       `json:"round"`
	Weight    int       `json:"weight"`
}
