package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// EVENT MODELS
// ============================================================================

type EventType string

const (
	EventLobbyUpdated      EventType = "lobby_updated"
	EventGameStarted       EventType = "game_started"
	EventPhaseChanged      EventType = "phase_changed"
	EventSubPhaseChanged   EventType = "sub_phase_changed"
	EventVoteCast          EventType = "vote_cast"
	EventVoteCompleted     EventType = "vote_completed"
	EventCaptainElected    EventType = "captain_elected"
	EventPlayerKilled      EventType = "player_killed"
	EventPlayerRoleChanged EventType = "player_role_changed"
	EventNightResolved     EventType = "night_resolved"
	EventGameEnded         EventType = "game_ended"
	EventActionLog         EventType = "action_log"

	// Deferred per-game presentation refresh, coalesced per dispatch turn.
	EventRefreshPanels EventType = "refresh_panels"
)

// RefreshTriggers are the events that additionally schedule a coalesced
// refresh_panels callback.
var RefreshTriggers = map[EventType]bool{
	EventPhaseChanged:    true,
	EventSubPhaseChanged: true,
	EventPlayerKilled:    true,
	EventGameEnded:       true,
	EventGameStarted:     true,
	EventVoteCompleted:   true,
	EventCaptainElected:  true,
}

type Event struct {
	Type      EventType `json:"type"`
	GameID    string    `json:"game_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// ============================================================================
// EVENT PAYLOADS
// ============================================================================

type PhaseChangedPayload struct {
	From     Phase `json:"from"`
	To       Phase `json:"to"`
	DayCount int   `json:"day_count"`
}

type SubPhaseChangedPayload struct {
	From SubPhase `json:"from"`
	To   SubPhase `json:"to"`
}

type VoteCastPayload struct {
	Round     int       `json:"round"`
	Voter     uuid.UUID `json:"voter"`
	Candidate uuid.UUID `json:"candidate"`
	Weight    int       `json:"weight"`
}

type VoteCompletedPayload struct {
	Round    int               `json:"round"`
	WinnerID *uuid.UUID        `json:"winner_id,omitempty"`
	WasTie   bool              `json:"was_tie"`
	Tally    map[uuid.UUID]int `json:"tally"`
}

type CaptainElectedPayload struct {
	CaptainID uuid.UUID `json:"captain_id"`
}

type PlayerKilledPayload struct {
	PlayerID uuid.UUID `json:"player_id"`
	Role     Role      `json:"role"`
	Reason   string    `json:"reason"`
}

type PlayerRoleChangedPayload struct {
	PlayerID uuid.UUID `json:"player_id"`
	OldRole  Role      `json:"old_role"`
	NewRole  Role      `json:"new_role"`
}

type NightResolvedPayload struct {
	DayCount int         `json:"day_count"`
	Deaths   []uuid.UUID `json:"deaths"`
}

type GameEndedPayload struct {
	Winner  string      `json:"winner"`
	Winners []uuid.UUID `json:"winners,omitempty"`
}

type LobbyUpdatedPayload struct {
	PlayerCount int      `json:"player_count"`
	Usernames   []string `json:"usernames"`
}
