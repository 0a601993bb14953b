package game

import (
	"fmt"
	"math/rand"
	"sort"

	"holdem-service/internal/poker"
	appErr "holdem-service/pkg/errors"

	"github.com/google/uuid"
)

// Result is the outcome of one engine transition. State is a fresh value;
// the input state is never modified.
type Result struct {
	State  *TableState
	Events []Event
	// SeatIndex is the seat that acted, noSeat for other transitions.
	SeatIndex int
	// Completed is the finished hand when this transition ended it.
	Completed *HandState
}

// StartHand shuffles a fresh deck and deals a new hand.
func StartHand(state *TableState, rng *rand.Rand) (*Result, error) {
	return startHandWithDeck(state, poker.Shuffle(poker.NewDeck(), rng), uuid.NewString())
}

func startHandWithDeck(state *TableState, deck []poker.Card, handID string) (*Result, error) {
	if state.CurrentHand != nil {
		return nil, appErr.ErrHandAlreadyActive
	}
	eligible := state.eligibleCount()
	if eligible < 2 {
		return nil, appErr.ErrNotEnoughPlayers
	}

	s := state.Clone()
	cfg := s.Config
	n := len(s.Seats)

	dealer := s.nextEligibleSeat(s.LastDealerSeatIndex)
	sb := s.nextEligibleSeat(dealer)
	if eligible == 2 {
		// heads-up: the button posts the small blind
		sb = dealer
	}
	bb := s.nextEligibleSeat(sb)

	s.HandNumber++
	s.LastDealerSeatIndex = dealer
	h := &HandState{
		HandID:              handID,
		HandNumber:          s.HandNumber,
		DealerSeatIndex:     dealer,
		SmallBlindSeatIndex: sb,
		BigBlindSeatIndex:   bb,
		Deck:                deck,
		CommunityCards:      []poker.Card{},
		BurnCards:           []poker.Card{},
		Street:              StreetPreflop,
		Betting: BettingRoundState{
			Street:                 StreetPreflop,
			CurrentBet:             cfg.BigBlind,
			MinRaise:               cfg.BigBlind,
			LastAggressorSeatIndex: bb,
			FullBetLevel:           cfg.BigBlind,
			Contributions:          map[int]int64{},
		},
		MinBet:         cfg.BigBlind,
		ToActSeatIndex: noSeat,
	}
	for i := range s.Seats {
		if s.Seats[i].eligible() {
			h.PlayerStates = append(h.PlayerStates, PlayerHandState{
				SeatIndex: i,
				UserID:    s.Seats[i].UserID,
				HoleCards: []poker.Card{},
				Status:    StatusActive,
			})
			h.Betting.Contributions[i] = 0
		}
	}
	s.CurrentHand = h

	s.postBlind(sb, cfg.SmallBlind, ActionSmallBlind)
	s.postBlind(bb, cfg.BigBlind, ActionBigBlind)

	for pass := 0; pass < 2; pass++ {
		for k := 1; k <= n; k++ {
			ps := h.player((dealer + k) % n)
			if ps == nil {
				continue
			}
			card, rest, err := poker.Deal(h.Deck)
			if err != nil {
				return nil, fmt.Errorf("deal hole cards: %w", err)
			}
			h.Deck = rest
			ps.HoleCards = append(ps.HoleCards, card)
		}
	}

	h.recomputePots()
	var first int
	if eligible == 2 {
		if ps := h.player(dealer); ps.Status == StatusActive {
			first = dealer
		} else {
			first = s.nextToAct(dealer)
		}
	} else {
		first = s.nextToAct(bb)
	}
	h.setToAct(first)

	events := make([]Event, 0, len(h.PlayerStates)+1)
	for _, ps := range h.PlayerStates {
		events = append(events, HoleCards{
			HandID:    h.HandID,
			SeatIndex: ps.SeatIndex,
			UserID:    ps.UserID,
			Cards:     append([]poker.Card(nil), ps.HoleCards...),
		})
	}
	events = append(events, HandStarted{
		HandID:              h.HandID,
		HandNumber:          h.HandNumber,
		DealerSeatIndex:     dealer,
		SmallBlindSeatIndex: sb,
		BigBlindSeatIndex:   bb,
		PotTotal:            h.PotTotal,
		ToActSeatIndex:      h.ToActSeatIndex,
	})
	return &Result{State: s, Events: events, SeatIndex: noSeat}, nil
}

func (s *TableState) postBlind(seatIndex int, amount int64, kind ActionType) {
	h := s.CurrentHand
	ps := h.player(seatIndex)
	paid := s.commit(ps, amount)
	h.record(ps, kind, paid, false)
}

// commit moves up to amount chips from the seat's stack into the pot.
func (s *TableState) commit(ps *PlayerHandState, amount int64) int64 {
	seat := &s.Seats[ps.SeatIndex]
	if amount > seat.Stack {
		amount = seat.Stack
	}
	seat.Stack -= amount
	ps.CurrentBet += amount
	ps.TotalBet += amount
	s.CurrentHand.Betting.Contributions[ps.SeatIndex] = ps.TotalBet
	if seat.Stack == 0 {
		ps.Status = StatusAllIn
		ps.IsAllIn = true
	}
	return amount
}

// applyWager lifts the bet level to the player's current bet. Only an
// increment of at least MinRaise counts as a full raise.
func (s *TableState) applyWager(ps *PlayerHandState) bool {
	b := &s.CurrentHand.Betting
	if ps.CurrentBet <= b.CurrentBet {
		return false
	}
	increment := ps.CurrentBet - b.CurrentBet
	b.CurrentBet = ps.CurrentBet
	if increment >= b.MinRaise {
		b.MinRaise = increment
		b.LastAggressorSeatIndex = ps.SeatIndex
		b.FullBetLevel = ps.CurrentBet
	}
	return true
}

// mayRaise is false for a player who has acted and has not faced a full
// raise since.
func (h *HandState) mayRaise(ps *PlayerHandState) bool {
	return !ps.HasActed || ps.CurrentBet < h.Betting.FullBetLevel
}

func (h *HandState) record(ps *PlayerHandState, action ActionType, amount int64, aggressive bool) {
	h.Actions = append(h.Actions, ActionRecord{
		Seq:        len(h.Actions) + 1,
		Street:     h.Street,
		SeatIndex:  ps.SeatIndex,
		UserID:     ps.UserID,
		Action:     action,
		Amount:     amount,
		Aggressive: aggressive,
	})
}

func (h *HandState) snapshot() BettingSnapshot {
	return BettingSnapshot{
		Street:         h.Betting.Street,
		CurrentBet:     h.Betting.CurrentBet,
		MinRaise:       h.Betting.MinRaise,
		ToActSeatIndex: h.ToActSeatIndex,
		CallAmount:     h.CallAmount,
	}
}

// ApplyPlayerAction validates and applies one action by the player in
// seatIndex. Street advancement is left to AdvanceIfReady.
func ApplyPlayerAction(state *TableState, seatIndex int, action PlayerAction) (*Result, error) {
	if state.CurrentHand == nil {
		return nil, appErr.ErrNoActiveHand
	}
	s := state.Clone()
	h := s.CurrentHand

	ps := h.player(seatIndex)
	if ps == nil {
		return nil, appErr.ErrPlayerNotInHand
	}
	if ps.Status != StatusActive {
		return nil, appErr.ErrPlayerCannotAct
	}
	if h.ToActSeatIndex != seatIndex {
		return nil, appErr.ErrNotYourTurn
	}

	seat := &s.Seats[seatIndex]
	owed := h.owed(ps)
	var (
		paid       int64
		aggressive bool
	)
	switch action.Type {
	case ActionFold:
		ps.Status = StatusFolded
	case ActionCheck:
		if owed > 0 {
			return nil, appErr.ErrCannotCheck
		}
	case ActionCall:
		if owed == 0 {
			return nil, appErr.ErrCannotCallZero
		}
		paid = s.commit(ps, owed)
	case ActionBet:
		if action.Amount <= 0 {
			return nil, appErr.ErrAmountRequired
		}
		if owed > 0 {
			return nil, appErr.ErrCannotBet
		}
		if action.Amount < h.MinBet {
			return nil, appErr.ErrBetTooSmall
		}
		if h.Betting.CurrentBet > 0 && !h.mayRaise(ps) {
			return nil, appErr.ErrBettingNotReopened
		}
		paid = s.commit(ps, action.Amount)
		aggressive = s.applyWager(ps)
	case ActionRaise:
		if action.Amount <= 0 {
			return nil, appErr.ErrAmountRequired
		}
		if owed == 0 {
			return nil, appErr.ErrCannotRaise
		}
		if action.Amount < h.Betting.MinRaise {
			return nil, appErr.ErrRaiseTooSmall
		}
		if !h.mayRaise(ps) {
			return nil, appErr.ErrBettingNotReopened
		}
		paid = s.commit(ps, owed+action.Amount)
		aggressive = s.applyWager(ps)
	case ActionAllIn:
		if seat.Stack == 0 {
			return nil, appErr.ErrAlreadyAllIn
		}
		if seat.Stack > owed && !h.mayRaise(ps) {
			return nil, appErr.ErrBettingNotReopened
		}
		paid = s.commit(ps, seat.Stack)
		aggressive = s.applyWager(ps)
	default:
		return nil, appErr.ErrUnknownAction
	}

	ps.HasActed = true
	h.record(ps, action.Type, paid, aggressive)
	h.recomputePots()
	h.setToAct(s.nextToAct(seatIndex))

	ev := PlayerActionApplied{
		HandID:    h.HandID,
		SeatIndex: seatIndex,
		Action:    action.Type,
		Amount:    paid,
		Stack:     seat.Stack,
		PotTotal:  h.PotTotal,
		Betting:   h.snapshot(),
	}
	return &Result{State: s, Events: []Event{ev}, SeatIndex: seatIndex}, nil
}

// roundComplete reports whether nobody can still act on this street.
func (h *HandState) roundComplete() bool {
	actors := h.canAct()
	switch len(actors) {
	case 0:
		return true
	case 1:
		// nobody left to bet against: matching the bet is enough
		return actors[0].CurrentBet >= h.Betting.CurrentBet
	}
	for _, ps := range actors {
		if !ps.HasActed || ps.CurrentBet != h.Betting.CurrentBet {
			return false
		}
	}
	return true
}

// AdvanceIfReady ends the hand when one player is left, deals the next
// street when betting is closed, or runs the showdown after the river.
// ok is false when there is nothing to do.
func AdvanceIfReady(state *TableState) (res *Result, ok bool, err error) {
	h := state.CurrentHand
	if h == nil {
		return nil, false, nil
	}
	if len(h.live()) <= 1 {
		s := state.Clone()
		return s.finishUncontested(), true, nil
	}
	if !h.roundComplete() {
		return nil, false, nil
	}

	s := state.Clone()
	if h.Street == StreetRiver {
		res, err = s.showdown()
	} else {
		res, err = s.dealNextStreet()
	}
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

var streetCards = map[Street]struct {
	next  Street
	count int
}{
	StreetPreflop: {StreetFlop, 3},
	StreetFlop:    {StreetTurn, 1},
	StreetTurn:    {StreetRiver, 1},
}

func (s *TableState) dealNextStreet() (*Result, error) {
	h := s.CurrentHand
	step, ok := streetCards[h.Street]
	if !ok {
		return nil, fmt.Errorf("no street after %s", h.Street)
	}

	burned, rest, err := poker.Deal(h.Deck)
	if err != nil {
		return nil, fmt.Errorf("burn before %s: %w", step.next, err)
	}
	h.Deck = rest
	h.BurnCards = append(h.BurnCards, burned)
	dealt := make([]poker.Card, 0, step.count)
	for i := 0; i < step.count; i++ {
		card, rest, err := poker.Deal(h.Deck)
		if err != nil {
			return nil, fmt.Errorf("deal %s: %w", step.next, err)
		}
		h.Deck = rest
		dealt = append(dealt, card)
	}
	h.CommunityCards = append(h.CommunityCards, dealt...)

	h.Street = step.next
	h.Betting.Street = step.next
	h.Betting.CurrentBet = 0
	h.Betting.MinRaise = s.Config.BigBlind
	h.Betting.LastAggressorSeatIndex = noSeat
	h.Betting.FullBetLevel = 0
	h.MinBet = s.Config.BigBlind
	for i := range h.PlayerStates {
		h.PlayerStates[i].CurrentBet = 0
		if h.PlayerStates[i].Status == StatusActive {
			h.PlayerStates[i].HasActed = false
		}
	}
	h.setToAct(s.nextToAct(h.DealerSeatIndex))

	ev := CardsDealt{
		HandID:         h.HandID,
		Street:         h.Street,
		Cards:          dealt,
		CommunityCards: append([]poker.Card(nil), h.CommunityCards...),
		ToActSeatIndex: h.ToActSeatIndex,
	}
	return &Result{State: s, Events: []Event{ev}, SeatIndex: noSeat}, nil
}

func (s *TableState) showdown() (*Result, error) {
	h := s.CurrentHand
	h.Street = StreetShowdown
	h.Betting.Street = StreetShowdown

	scores := map[int]poker.HandScore{}
	for _, ps := range h.live() {
		cards := append(append([]poker.Card(nil), ps.HoleCards...), h.CommunityCards...)
		score, err := poker.Evaluate(cards)
		if err != nil {
			return nil, fmt.Errorf("evaluate seat %d: %w", ps.SeatIndex, err)
		}
		scores[ps.SeatIndex] = score
	}
	h.recomputePots()
	winnings := poker.DistributePots(h.pots(), h.contributions(), scores)
	return s.complete(true, winnings, scores), nil
}

func (s *TableState) finishUncontested() *Result {
	h := s.CurrentHand
	winnings := map[int]int64{}
	if live := h.live(); len(live) == 1 {
		winnings[live[0].SeatIndex] = h.PotTotal
	}
	return s.complete(false, winnings, nil)
}

// complete pays out, detaches the hand from the table and emits the
// result events.
func (s *TableState) complete(showdown bool, winnings map[int]int64, scores map[int]poker.HandScore) *Result {
	h := s.CurrentHand

	seats := make([]int, 0, len(winnings))
	for seat, amount := range winnings {
		s.Seats[seat].Stack += amount
		if amount > 0 {
			seats = append(seats, seat)
		}
	}
	sort.Ints(seats)

	winners := make([]Winner, 0, len(seats))
	for _, seat := range seats {
		w := Winner{SeatIndex: seat, UserID: s.Seats[seat].UserID, Amount: winnings[seat]}
		if score, ok := scores[seat]; ok {
			w.Category = score.Category
			w.Description = score.Description
		}
		winners = append(winners, w)
	}

	finalStacks := make(map[int]int64, len(h.PlayerStates))
	for _, ps := range h.PlayerStates {
		finalStacks[ps.SeatIndex] = s.Seats[ps.SeatIndex].Stack
	}

	h.setToAct(noSeat)
	h.Result = &HandResult{
		Showdown:    showdown,
		Winners:     winners,
		Hands:       scores,
		Winnings:    winnings,
		FinalStacks: finalStacks,
	}
	s.CurrentHand = nil

	events := []Event{
		HandResultEvent{HandID: h.HandID, Showdown: showdown, Winners: winners, FinalStacks: finalStacks},
		HandComplete{HandID: h.HandID, HandNumber: h.HandNumber},
	}
	return &Result{State: s, Events: events, SeatIndex: noSeat, Completed: h}
}

// RunToCompletion applies AdvanceIfReady until it has nothing left to do,
// collecting every event along the way.
func RunToCompletion(res *Result) (*Result, error) {
	for res.Completed == nil {
		next, ok, err := AdvanceIfReady(res.State)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		res = &Result{
			State:     next.State,
			Events:    append(res.Events, next.Events...),
			SeatIndex: res.SeatIndex,
			Completed: next.Completed,
		}
	}
	return res, nil
}
