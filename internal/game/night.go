package game

import (
	"github.com/google/uuid"
	"github.com/villageois/garou/internal/models"
)

// Death reasons recorded on playerKilled events and the action log.
const (
	DeathWolves     = "wolves"
	DeathWhiteWolf  = "white_wolf"
	DeathPoison     = "witch_poison"
	DeathLynch      = "lynch"
	DeathHunterShot = "hunter_shot"
	DeathLoverGrief = "lover_grief"
	DeathForced     = "forced"
)

// deathLedger accumulates the deaths of one resolution pass so callers can
// emit playerKilled exactly once per actual death.
type deathLedger struct {
	Deaths []models.PlayerKilledPayload
}

func (dl *deathLedger) ids() []uuid.UUID {
	out := make([]uuid.UUID, len(dl.Deaths))
	for i, d := range dl.Deaths {
		out[i] = d.PlayerID
	}
	return out
}

// kill marks the player dead and runs the follow-up cascade: the lover
// partner dies of grief, a dead hunter is queued for his shot, and an Ancien
// eliminated by the village loses the village its powers. Idempotent for
// already-dead targets.
func kill(g *models.Game, dl *deathLedger, id uuid.UUID, reason string) {
	p := g.PlayerByID(id)
	if p == nil || !p.Alive {
		return
	}
	p.Alive = false
	g.Dead = append(g.Dead, id)
	dl.Deaths = append(dl.Deaths, models.PlayerKilledPayload{PlayerID: id, Role: p.Role, Reason: reason})

	if p.Role == models.RoleAncien && (reason == DeathLynch || reason == DeathPoison) {
		g.VillageRolesPowerless = true
	}
	if p.Role == models.RoleHunter {
		g.PendingHunterIDs = append(g.PendingHunterIDs, id)
	}
	if p.InLove {
		if partner := g.LoverOf(id); partner != nil {
			kill(g, dl, *partner, DeathLoverGrief)
		}
	}
}

// resolveNight applies the night's accumulated actions in fixed order. It
// runs exactly once per NIGHT->DAY transition, inside the atomic mutator.
func resolveNight(g *models.Game) deathLedger {
	var dl deathLedger

	victim := g.NightVictim
	if victim != nil {
		if g.ProtectedPlayerID != nil && *g.ProtectedPlayerID == *victim {
			victim = nil
		}
	}
	if victim != nil && g.WitchSave {
		victim = nil
	}
	if victim != nil {
		if p := g.PlayerByID(*victim); p != nil && p.Role == models.RoleAncien && !g.AncienHit {
			g.AncienHit = true
			victim = nil
		}
	}
	if victim != nil {
		kill(g, &dl, *victim, DeathWolves)
	}

	// White wolf's solo kill: blocked by protection, not by the witch's
	// potion, which is bound to the pack victim.
	if g.WhiteWolfVictim != nil {
		blocked := g.ProtectedPlayerID != nil && *g.ProtectedPlayerID == *g.WhiteWolfVictim
		if !blocked {
			kill(g, &dl, *g.WhiteWolfVictim, DeathWhiteWolf)
		}
	}

	// Poison bypasses protection.
	if g.WitchKillTarget != nil {
		kill(g, &dl, *g.WitchKillTarget, DeathPoison)
	}

	g.NightVictim = nil
	g.WhiteWolfVictim = nil
	g.WitchSave = false
	g.WitchKillTarget = nil
	g.WolfVotes = nil
	g.LastProtectedPlayerID = g.ProtectedPlayerID
	g.ProtectedPlayerID = nil

	return dl
}
