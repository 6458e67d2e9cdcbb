package app

import (
	"sort"

	"quizlive-service/internal/domain"
)

// Rank derives the ordered standings from a roster snapshot. It is a pure
// function: no incremental state, so it can be recomputed from scratch at
// any checkpoint and two calls over the same snapshot agree exactly.
//
// There are no shared ranks: equal scores are split by arrival order, the
// earlier joiner ranking higher.
func Rank(players []domain.Player) []domain.Standing {
	ordered := make([]domain.Player, len(players))
	copy(ordered, players)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		return ordered[i].JoinOrder < ordered[j].JoinOrder
	})

	standings := make([]domain.Standing, len(ordered))
	for i, p := range ordered {
		standings[i] = domain.Standing{Rank: i + 1, Player: p}
	}
	return standings
}

// ClanTotals sums roster scores per clan for clan-mode sessions. Players
// without a clan assignment are skipped.
func ClanTotals(players []domain.Player) map[string]int {
	totals := make(map[string]int)
	for _, p := range players {
		if p.Clan == "" {
			continue
		}
		totals[p.Clan] += p.Score
	}
	return totals
}
