package poker

import (
	"math/rand"

	appErr "holdem-service/pkg/errors"
)

// NewDeck returns the 52 cards in canonical order: suits s,h,d,c and
// ranks Two..Ace within each suit.
func NewDeck() []Card {
	deck := make([]Card, 0, 52)
	for s := Spades; s <= Clubs; s++ {
		for r := Two; r <= Ace; r++ {
			deck = append(deck, Card{Rank: r, Suit: s})
		}
	}
	return deck
}

// Shuffle returns a Fisher-Yates permutation of deck. The input is left
// untouched.
func Shuffle(deck []Card, rng *rand.Rand) []Card {
	out := make([]Card, len(deck))
	copy(out, deck)
	for i := len(out) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Deal takes the top card. The returned slice is the remaining deck.
func Deal(deck []Card) (Card, []Card, error) {
	if len(deck) == 0 {
		return Card{}, deck, appErr.ErrEmptyDeck
	}
	return deck[0], deck[1:], nil
}
