package poker

import (
	"sort"
)

// Contribution is one player's chips committed over the whole hand.
type Contribution struct {
	SeatIndex int
	TotalBet  int64
	Folded    bool
}

type SidePot struct {
	Amount        int64 `json:"amount"`
	EligibleSeats []int `json:"eligibleSeatIndices"`
}

type Pots struct {
	Main  int64     `json:"mainPot"`
	Side  []SidePot `json:"sidePots"`
	Total int64     `json:"potTotal"`
}

// CalculatePots layers the pot at every distinct all-in level of the
// players still in the hand. Chips from folded players are spread over
// the layers they reached and stay in the pot without granting
// eligibility, so Main plus every side pot always equals Total.
func CalculatePots(contribs []Contribution) Pots {
	var pots Pots
	levelSet := map[int64]struct{}{}
	for _, c := range contribs {
		pots.Total += c.TotalBet
		if !c.Folded && c.TotalBet > 0 {
			levelSet[c.TotalBet] = struct{}{}
		}
	}
	if len(levelSet) == 0 {
		pots.Main = pots.Total
		return pots
	}

	levels := make([]int64, 0, len(levelSet))
	for l := range levelSet {
		levels = append(levels, l)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })

	var prev int64
	amounts := make([]int64, len(levels))
	eligible := make([][]int, len(levels))
	for i, level := range levels {
		for _, c := range contribs {
			if c.TotalBet > prev {
				amounts[i] += min(c.TotalBet, level) - prev
			}
			if !c.Folded && c.TotalBet >= level {
				eligible[i] = append(eligible[i], c.SeatIndex)
			}
		}
		sort.Ints(eligible[i])
		prev = level
	}
	for _, c := range contribs {
		if c.TotalBet > prev {
			amounts[len(amounts)-1] += c.TotalBet - prev
		}
	}

	pots.Main = amounts[0]
	for i := 1; i < len(levels); i++ {
		pots.Side = append(pots.Side, SidePot{Amount: amounts[i], EligibleSeats: eligible[i]})
	}
	return pots
}

// DistributePots awards every pot to the best eligible hands in scores.
// Ties split evenly; odd chips go one each to the tied winners in
// ascending seat order. Players missing from scores cannot win.
func DistributePots(pots Pots, contribs []Contribution, scores map[int]HandScore) map[int]int64 {
	winnings := map[int]int64{}

	var mainEligible []int
	for _, c := range contribs {
		if !c.Folded && c.TotalBet > 0 {
			mainEligible = append(mainEligible, c.SeatIndex)
		}
	}
	sort.Ints(mainEligible)

	award(winnings, pots.Main, mainEligible, scores)
	for _, sp := range pots.Side {
		award(winnings, sp.Amount, sp.EligibleSeats, scores)
	}
	return winnings
}

func award(winnings map[int]int64, amount int64, eligible []int, scores map[int]HandScore) {
	if amount <= 0 {
		return
	}
	var winners []int
	var best HandScore
	for _, seat := range eligible {
		score, ok := scores[seat]
		if !ok {
			continue
		}
		switch {
		case len(winners) == 0:
			winners = []int{seat}
			best = score
		case Compare(score, best) > 0:
			winners = []int{seat}
			best = score
		case Compare(score, best) == 0:
			winners = append(winners, seat)
		}
	}
	if len(winners) == 0 {
		return
	}
	sort.Ints(winners)

	share := amount / int64(len(winners))
	remainder := amount % int64(len(winners))
	for i, seat := range winners {
		winnings[seat] += share
		if int64(i) < remainder {
			winnings[seat]++
		}
	}
}
