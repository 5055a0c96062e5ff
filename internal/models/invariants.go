package models

import "fmt"

// CheckInvariants verifies the structural invariants that must hold after
// every committed mutation. A non-nil error indicates an engine bug; the
// mutator aborts the mutation and preserves prior state.
func (g *Game) CheckInvariants() error {
	// Alive count + dead list partition the players.
	alive := 0
	deadSet := make(map[string]bool, len(g.Dead))
	for _, id := range g.Dead {
		deadSet[id.String()] = true
	}
	for _, p := range g.Players {
		if p.Alive {
			alive++
			if deadSet[p.ID.String()] {
				return fmt.Errorf("player %s alive but listed dead", p.ID)
			}
		} else if !deadSet[p.ID.String()] {
			return fmt.Errorf("player %s dead but not listed", p.ID)
		}
	}
	if alive+len(g.Dead) != len(g.Players) {
		return fmt.Errorf("alive %d + dead %d != players %d", alive, len(g.Dead), len(g.Players))
	}

	// Every player has a role once the game is running.
	if g.Phase == PhaseNight || g.Phase == PhaseDay || g.Phase == PhaseEnded {
		for _, p := range g.Players {
			if p.Role == "" {
				return fmt.Errorf("player %s has no role in phase %s", p.ID, g.Phase)
			}
		}
	}

	// Sub-phase legality.
	if !IsLegalSubPhase(g.Phase, g.SubPhase) {
		return fmt.Errorf("sub-phase %q illegal in phase %q", g.SubPhase, g.Phase)
	}

	// At most one lovers pair, both members real players.
	switch len(g.Lovers) {
	case 0:
	case 2:
		if g.Lovers[0] == g.Lovers[1] {
			return fmt.Errorf("lovers pair is a single player")
		}
		for _, id := range g.Lovers {
			if g.PlayerByID(id) == nil {
				return fmt.Errorf("lover %s not in game", id)
			}
		}
	default:
		return fmt.Errorf("lovers has %d members", len(g.Lovers))
	}

	// Salvateur never repeats a protection.
	if g.ProtectedPlayerID != nil && g.LastProtectedPlayerID != nil &&
		*g.ProtectedPlayerID == *g.LastProtectedPlayerID {
		return fmt.Errorf("salvateur repeated protection of %s", *g.ProtectedPlayerID)
	}

	// Thief offer is empty or exactly two roles.
	if n := len(g.ThiefExtraRoles); n != 0 && n != 2 {
		return fmt.Errorf("thief offer has %d roles", n)
	}

	if g.DayCount < 0 {
		return fmt.Errorf("negative day count %d", g.DayCount)
	}
	return nil
}
