package models

import "github.com/google/uuid"

// ============================================================================
// INTENTS
// ============================================================================

type Verb string

const (
	VerbWolfKill     Verb = "wolf_kill"
	VerbWhiteKill    Verb = "white_kill"
	VerbSee          Verb = "see"
	VerbPotionLife   Verb = "potion_life"
	VerbPotionDeath  Verb = "potion_death"
	VerbProtect      Verb = "protect"
	VerbLove         Verb = "love"
	VerbSpy          Verb = "spy"
	VerbSteal        Verb = "steal"
	VerbSkip         Verb = "skip"
	VerbHunterShoot  Verb = "hunter_shoot"
	VerbCaptainVote  Verb = "captain_vote"
	VerbDayVote      Verb = "day_vote"
	VerbForceSkip    Verb = "force_skip" // admin
)

type Actor struct {
	ID          uuid.UUID `json:"id"`
	Permissions []string  `json:"permissions,omitempty"`
}

// IsAdmin reports whether the actor carries the admin permission.
func (a Actor) IsAdmin() bool {
	for _, p := range a.Permissions {
		if p == "admin" {
			return true
		}
	}
	return false
}

// Intent is a structured request to perform a game action. The engine
// validates it and dispatches to the matching handler.
type Intent struct {
	GameID      string     `json:"game_id"`
	Actor       Actor      `json:"actor"`
	ChannelHint string     `json:"channel_hint,omitempty"`
	Verb        Verb       `json:"verb"`
	Target      *uuid.UUID `json:"target,omitempty"`
	SecondTarget *uuid.UUID `json:"second_target,omitempty"` // cupid's second lover
	Choice      int        `json:"choice,omitempty"`          // thief: 1 or 2
	ClientSeq   string     `json:"client_seq,omitempty"`      // duplicate-intent guard key
}

// ============================================================================
// FAILURE REASONS
// ============================================================================

type Reason string

const (
	ReasonNone               Reason = ""
	ReasonNotInGame          Reason = "not_in_game"
	ReasonNotDay             Reason = "not_day"
	ReasonNotNight           Reason = "not_night"
	ReasonWrongPhase         Reason = "wrong_phase"
	ReasonWrongSubPhase      Reason = "wrong_sub_phase"
	ReasonNotRole            Reason = "not_role"
	ReasonActorDead          Reason = "actor_dead"
	ReasonTargetDead         Reason = "target_dead"
	ReasonTargetNotFound     Reason = "target_not_found"
	ReasonCaptainAlready     Reason = "captain_already"
	ReasonNoVictimTonight    Reason = "no_victim_tonight"
	ReasonNoLifePotion       Reason = "no_life_potion"
	ReasonNoDeathPotion      Reason = "no_death_potion"
	ReasonCannotProtectSelf  Reason = "cannot_protect_self"
	ReasonCannotProtectSame  Reason = "cannot_protect_same"
	ReasonCannotPoisonSelf   Reason = "cannot_poison_self"
	ReasonPowersLost         Reason = "powers_lost"
	ReasonMustTakeWolf       Reason = "must_take_wolf"
	ReasonAncientResists     Reason = "ancient_resists"
	ReasonInvalidChoice      Reason = "invalid_choice"
	ReasonInvalidTarget      Reason = "invalid_target"
	ReasonBusy               Reason = "busy"
	ReasonDuplicateIntent    Reason = "duplicate_intent"
	ReasonStorageUnavailable Reason = "storage_unavailable"
	ReasonGameNotFound       Reason = "game_not_found"
	ReasonGameExists         Reason = "game_exists"
	ReasonLobbyFull          Reason = "lobby_full"
	ReasonNotEnoughPlayers   Reason = "not_enough_players"
	ReasonRolePoolMismatch   Reason = "role_pool_mismatch"
	ReasonNotAdmin           Reason = "not_admin"
)

// Result is the tagged value returned at the facade boundary. User-caused
// failures never surface as Go errors.
type Result struct {
	OK     bool   `json:"ok"`
	Reason Reason `json:"reason,omitempty"`
	Data   any    `json:"data,omitempty"`
}

func Ok(data any) Result       { return Result{OK: true, Data: data} }
func Fail(r Reason) Result     { return Result{OK: false, Reason: r} }
