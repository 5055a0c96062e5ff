package game

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"

	"github.com/google/uuid"
	"github.com/villageois/garou/internal/models"
)

// VoteOutcome is the resolved result of one ballot round.
type VoteOutcome struct {
	WinnerID *uuid.UUID
	WasTie   bool
	Tally    map[uuid.UUID]int
}

// tallyVotes folds the ballot into candidate -> accumulated weight.
func tallyVotes(votes map[uuid.UUID]uuid.UUID, weight func(uuid.UUID) int) map[uuid.UUID]int {
	tally := make(map[uuid.UUID]int, len(votes))
	for voter, candidate := range votes {
		tally[candidate] += weight(voter)
	}
	return tally
}

// topCandidates returns the candidates holding the maximum weight, sorted by
// id so the result is stable regardless of map order.
func topCandidates(tally map[uuid.UUID]int) []uuid.UUID {
	max := 0
	for _, w := range tally {
		if w > max {
			max = w
		}
	}
	if max == 0 {
		return nil
	}
	var top []uuid.UUID
	for c, w := range tally {
		if w == max {
			top = append(top, c)
		}
	}
	sort.Slice(top, func(i, j int) bool { return top[i].String() < top[j].String() })
	return top
}

// tieSeed derives the deterministic tie-break seed. The same game and round
// always break a tie the same way, on any process.
func tieSeed(gameID string, round int) int64 {
	h := fnv.New64a()
	h.Write([]byte(gameID))
	h.Write([]byte(fmt.Sprintf("|%d", round)))
	return int64(h.Sum64())
}

// resolveBallot picks the winner from a weighted tally, breaking ties with
// the seeded generator. A nil winner means nobody received any weight.
func resolveBallot(gameID string, round int, tally map[uuid.UUID]int) VoteOutcome {
	top := topCandidates(tally)
	if len(top) == 0 {
		return VoteOutcome{Tally: tally}
	}
	if len(top) == 1 {
		w := top[0]
		return VoteOutcome{WinnerID: &w, Tally: tally}
	}
	rng := rand.New(rand.NewSource(tieSeed(gameID, round)))
	w := top[rng.Intn(len(top))]
	return VoteOutcome{WinnerID: &w, WasTie: true, Tally: tally}
}

// lynchOutcome resolves the day vote: captain weight 2, revealed idiot 0.
func lynchOutcome(g *models.Game) VoteOutcome {
	return resolveBallot(g.ID, g.VoteRound, tallyVotes(g.Votes, g.VoteWeight))
}

// captainOutcome resolves the captain election: every living vote weighs 1.
func captainOutcome(g *models.Game) VoteOutcome {
	weight := func(voter uuid.UUID) int {
		p := g.PlayerByID(voter)
		if p == nil || !p.Alive {
			return 0
		}
		return 1
	}
	return resolveBallot(g.ID, g.VoteRound, tallyVotes(g.CaptainVotes, weight))
}

// allAliveVoted reports whether every living player has a ballot entry.
func allAliveVoted(g *models.Game, votes map[uuid.UUID]uuid.UUID) bool {
	for _, p := range g.AlivePlayers() {
		if _, ok := votes[p.ID]; !ok {
			return false
		}
	}
	return len(g.AlivePlayers()) > 0
}

// allWolvesVoted reports whether every living pack member has voted.
func allWolvesVoted(g *models.Game) bool {
	wolves := g.AliveWolves()
	for _, w := range wolves {
		if _, ok := g.WolfVotes[w.ID]; !ok {
			return false
		}
	}
	return len(wolves) > 0
}

// wolfVictim settles the closed pack ballot per rules.WolfWinCondition.
//
// MAJORITY: a candidate carried by at least ceil(W/2) living wolves; several
// qualifying candidates fall to the seeded tie-break. ELIMINATION: the pack
// must be unanimous; a split pack kills nobody.
func wolfVictim(g *models.Game) *uuid.UUID {
	if len(g.WolfVotes) == 0 {
		return nil
	}
	tally := tallyVotes(g.WolfVotes, func(uuid.UUID) int { return 1 })

	switch g.Rules.WolfWinCondition {
	case models.WolfWinElimination:
		var only *uuid.UUID
		for _, candidate := range g.WolfVotes {
			c := candidate
			if only == nil {
				only = &c
			} else if *only != c {
				return nil
			}
		}
		return only
	default: // MAJORITY
		needed := (len(g.AliveWolves()) + 1) / 2
		meeting := make(map[uuid.UUID]int)
		for candidate, n := range tally {
			if n >= needed {
				meeting[candidate] = n
			}
		}
		if len(meeting) == 0 {
			return nil
		}
		return resolveBallot(g.ID, g.DayCount, meeting).WinnerID
	}
}

// wolfTimeoutVictim resolves the pack ballot on AFK expiry: the plurality
// leader among the votes actually cast, seeded tie-break, nil if silent.
func wolfTimeoutVictim(g *models.Game) *uuid.UUID {
	if len(g.WolfVotes) == 0 {
		return nil
	}
	tally := tallyVotes(g.WolfVotes, func(uuid.UUID) int { return 1 })
	return resolveBallot(g.ID, g.DayCount, tally).WinnerID
}
