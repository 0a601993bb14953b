package poker

import (
	"fmt"
	"sort"

	appErr "holdem-service/pkg/errors"
)

type Category int

const (
	HighCard Category = iota + 1
	OnePair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
	RoyalFlush
)

var categoryNames = map[Category]string{
	HighCard:      "HIGH_CARD",
	OnePair:       "PAIR",
	TwoPair:       "TWO_PAIR",
	ThreeOfAKind:  "THREE_OF_A_KIND",
	Straight:      "STRAIGHT",
	Flush:         "FLUSH",
	FullHouse:     "FULL_HOUSE",
	FourOfAKind:   "FOUR_OF_A_KIND",
	StraightFlush: "STRAIGHT_FLUSH",
	RoyalFlush:    "ROYAL_FLUSH",
}

func (c Category) String() string {
	if n, ok := categoryNames[c]; ok {
		return n
	}
	return fmt.Sprintf("CATEGORY_%d", int(c))
}

// HandScore ranks a five card hand. Values starts with the category and
// continues with the tie-break ranks, compared lexicographically.
type HandScore struct {
	Category    Category `json:"category"`
	Values      []int    `json:"values"`
	Description string   `json:"description"`
	Cards       []Card   `json:"cards"`
}

// Evaluate returns the best five card hand out of 5 to 7 cards.
func Evaluate(cards []Card) (HandScore, error) {
	if len(cards) < 5 || len(cards) > 7 {
		return HandScore{}, fmt.Errorf("evaluate %d cards: %w", len(cards), appErr.ErrInvalidHandSize)
	}

	var best HandScore
	found := false
	var five [5]Card
	n := len(cards)
	for a := 0; a < n-4; a++ {
		for b := a + 1; b < n-3; b++ {
			for c := b + 1; c < n-2; c++ {
				for d := c + 1; d < n-1; d++ {
					for e := d + 1; e < n; e++ {
						five = [5]Card{cards[a], cards[b], cards[c], cards[d], cards[e]}
						score := evaluateFive(five)
						if !found || Compare(score, best) > 0 {
							best = score
							found = true
						}
					}
				}
			}
		}
	}
	return best, nil
}

// Compare returns a positive number when a beats b, negative when b beats
// a and zero on a tie. Missing trailing values count as zero.
func Compare(a, b HandScore) int {
	n := len(a.Values)
	if len(b.Values) > n {
		n = len(b.Values)
	}
	for i := 0; i < n; i++ {
		var av, bv int
		if i < len(a.Values) {
			av = a.Values[i]
		}
		if i < len(b.Values) {
			bv = b.Values[i]
		}
		if av != bv {
			if av > bv {
				return 1
			}
			return -1
		}
	}
	return 0
}

type rankGroup struct {
	rank  Rank
	count int
}

func evaluateFive(cards [5]Card) HandScore {
	sorted := cards
	sort.Slice(sorted[:], func(i, j int) bool { return sorted[i].Rank > sorted[j].Rank })

	flush := true
	for _, c := range sorted[1:] {
		if c.Suit != sorted[0].Suit {
			flush = false
			break
		}
	}

	counts := map[Rank]int{}
	for _, c := range sorted {
		counts[c.Rank]++
	}
	groups := make([]rankGroup, 0, len(counts))
	for r, n := range counts {
		groups = append(groups, rankGroup{rank: r, count: n})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].count != groups[j].count {
			return groups[i].count > groups[j].count
		}
		return groups[i].rank > groups[j].rank
	})

	straightHigh := Rank(0)
	if len(groups) == 5 {
		if sorted[0].Rank-sorted[4].Rank == 4 {
			straightHigh = sorted[0].Rank
		} else if sorted[0].Rank == Ace && sorted[1].Rank == Five {
			// A-2-3-4-5 plays as a five-high straight
			straightHigh = Five
		}
	}

	score := HandScore{Cards: sorted[:]}
	switch {
	case flush && straightHigh == Ace:
		score.Category = RoyalFlush
		score.Values = []int{int(RoyalFlush)}
		score.Description = "Royal Flush"
	case flush && straightHigh > 0:
		score.Category = StraightFlush
		score.Values = []int{int(StraightFlush), int(straightHigh)}
		score.Description = fmt.Sprintf("Straight Flush, %s high", straightHigh.Name())
	case groups[0].count == 4:
		score.Category = FourOfAKind
		score.Values = []int{int(FourOfAKind), int(groups[0].rank), int(groups[1].rank)}
		score.Description = fmt.Sprintf("Four of a Kind, %s", groups[0].rank.plural())
	case groups[0].count == 3 && groups[1].count == 2:
		score.Category = FullHouse
		score.Values = []int{int(FullHouse), int(groups[0].rank), int(groups[1].rank)}
		score.Description = fmt.Sprintf("Full House, %s full of %s", groups[0].rank.plural(), groups[1].rank.plural())
	case flush:
		score.Category = Flush
		score.Values = append([]int{int(Flush)}, ranksOf(sorted[:])...)
		score.Description = fmt.Sprintf("Flush, %s high", sorted[0].Rank.Name())
	case straightHigh > 0:
		score.Category = Straight
		score.Values = []int{int(Straight), int(straightHigh)}
		score.Description = fmt.Sprintf("Straight, %s high", straightHigh.Name())
	case groups[0].count == 3:
		score.Category = ThreeOfAKind
		score.Values = []int{int(ThreeOfAKind), int(groups[0].rank), int(groups[1].rank), int(groups[2].rank)}
		score.Description = fmt.Sprintf("Three of a Kind, %s", groups[0].rank.plural())
	case groups[0].count == 2 && groups[1].count == 2:
		score.Category = TwoPair
		score.Values = []int{int(TwoPair), int(groups[0].rank), int(groups[1].rank), int(groups[2].rank)}
		score.Description = fmt.Sprintf("Two Pair, %s and %s", groups[0].rank.plural(), groups[1].rank.plural())
	case groups[0].count == 2:
		score.Category = OnePair
		score.Values = []int{int(OnePair), int(groups[0].rank), int(groups[1].rank), int(groups[2].rank), int(groups[3].rank)}
		score.Description = fmt.Sprintf("Pair of %s", groups[0].rank.plural())
	default:
		score.Category = HighCard
		score.Values = append([]int{int(HighCard)}, ranksOf(sorted[:])...)
		score.Description = fmt.Sprintf("%s high", sorted[0].Rank.Name())
	}
	return score
}

func ranksOf(cards []Card) []int {
	out := make([]int, len(cards))
	for i, c := range cards {
		out[i] = int(c.Rank)
	}
	return out
}
