package game

import (
	"github.com/google/uuid"
	"github.com/villageois/garou/internal/models"
)

// Winner camps reported on gameEnded.
const (
	WinnerVillage   = "village"
	WinnerWolves    = "wolves"
	WinnerLovers    = "lovers"
	WinnerWhiteWolf = "white_wolf"
	WinnerNobody    = "nobody"
)

// Victory is a satisfied end-of-game predicate.
type Victory struct {
	Winner  string
	Winners []uuid.UUID
}

// checkVictory evaluates the end predicates in precedence order: the white
// wolf's solo win and the lovers' win trump the camp wins they are part of.
// Returns nil while the game should continue.
func checkVictory(g *models.Game) *Victory {
	alive := g.AlivePlayers()
	if len(alive) == 0 {
		return &Victory{Winner: WinnerNobody}
	}

	// White wolf alone.
	if len(alive) == 1 && alive[0].Role == models.RoleWhiteWolf {
		return &Victory{Winner: WinnerWhiteWolf, Winners: []uuid.UUID{alive[0].ID}}
	}

	// A mixed-camp lover pair as the only survivors wins as its own camp.
	if len(g.Lovers) == 2 && len(alive) == 2 {
		bothLovers := alive[0].InLove && alive[1].InLove
		mixed := alive[0].Role.IsWolf() != alive[1].Role.IsWolf()
		if bothLovers && mixed {
			return &Victory{Winner: WinnerLovers, Winners: append([]uuid.UUID(nil), g.Lovers...)}
		}
	}

	wolves := 0
	for _, p := range alive {
		if p.Role.IsWolf() {
			wolves++
		}
	}
	if wolves == 0 {
		return &Victory{Winner: WinnerVillage, Winners: camp(g, false)}
	}
	if wolves >= len(alive)-wolves {
		return &Victory{Winner: WinnerWolves, Winners: camp(g, true)}
	}
	return nil
}

func camp(g *models.Game, wolf bool) []uuid.UUID {
	var out []uuid.UUID
	for _, p := range g.Players {
		if p.Role.IsWolf() == wolf {
			out = append(out, p.ID)
		}
	}
	return out
}
