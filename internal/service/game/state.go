package game

import (
	"holdem-service/internal/poker"
)

// noSeat marks an absent seat index (no dealer yet, nobody to act).
const noSeat = -1

type Street string

const (
	StreetPreflop  Street = "PREFLOP"
	StreetFlop     Street = "FLOP"
	StreetTurn     Street = "TURN"
	StreetRiver    Street = "RIVER"
	StreetShowdown Street = "SHOWDOWN"
)

type PlayerStatus string

const (
	StatusActive PlayerStatus = "ACTIVE"
	StatusFolded PlayerStatus = "FOLDED"
	StatusAllIn  PlayerStatus = "ALL_IN"
)

type ActionType string

const (
	ActionFold  ActionType = "FOLD"
	ActionCheck ActionType = "CHECK"
	ActionCall  ActionType = "CALL"
	ActionBet   ActionType = "BET"
	ActionRaise ActionType = "RAISE"
	ActionAllIn ActionType = "ALL_IN"

	// blind posts only appear in the action log
	ActionSmallBlind ActionType = "POST_SMALL_BLIND"
	ActionBigBlind   ActionType = "POST_BIG_BLIND"
)

// PlayerAction is a request to act. Amount is the bet size for BET and
// the increment over the call for RAISE; other actions ignore it.
type PlayerAction struct {
	Type   ActionType `json:"action"`
	Amount int64      `json:"amount,omitempty"`
}

type Seat struct {
	SeatIndex    int    `json:"seatIndex"`
	UserID       int64  `json:"userId,omitempty"`
	DisplayName  string `json:"displayName,omitempty"`
	Stack        int64  `json:"stack"`
	IsSittingOut bool   `json:"isSittingOut"`
}

func (s Seat) Occupied() bool { return s.UserID != 0 }

// eligible reports whether the seat can be dealt into a new hand.
func (s Seat) eligible() bool {
	return s.Occupied() && !s.IsSittingOut && s.Stack > 0
}

type TableConfig struct {
	MaxSeats   int   `json:"maxSeats"`
	SmallBlind int64 `json:"smallBlind"`
	BigBlind   int64 `json:"bigBlind"`
}

// TableState is the authoritative per-table snapshot. Seats[i].SeatIndex
// is always i.
type TableState struct {
	TableID             int64       `json:"tableId"`
	Config              TableConfig `json:"config"`
	Seats               []Seat      `json:"seats"`
	HandNumber          int64       `json:"handNumber"`
	LastDealerSeatIndex int         `json:"lastDealerSeatIndex"`
	CurrentHand         *HandState  `json:"currentHand,omitempty"`
	Version             int64       `json:"version"`
}

type PlayerHandState struct {
	SeatIndex  int          `json:"seatIndex"`
	UserID     int64        `json:"userId"`
	HoleCards  []poker.Card `json:"holeCards"`
	Status     PlayerStatus `json:"status"`
	CurrentBet int64        `json:"currentBet"`
	TotalBet   int64        `json:"totalBet"`
	HasActed   bool         `json:"hasActed"`
	IsAllIn    bool         `json:"isAllIn"`
}

type BettingRoundState struct {
	Street                 Street        `json:"street"`
	CurrentBet             int64         `json:"currentBet"`
	MinRaise               int64         `json:"minRaise"`
	LastAggressorSeatIndex int           `json:"lastAggressorSeatIndex"`
	ToActSeatIndex         int           `json:"toActSeatIndex"`
	Contributions          map[int]int64 `json:"contributions"`
	// FullBetLevel is the bet level set by the last complete bet or
	// raise. Short all-ins move CurrentBet without moving this.
	FullBetLevel int64 `json:"fullBetLevel"`
}

// ActionRecord is one entry of the hand's action log.
type ActionRecord struct {
	Seq        int        `json:"seq"`
	Street     Street     `json:"street"`
	SeatIndex  int        `json:"seatIndex"`
	UserID     int64      `json:"userId"`
	Action     ActionType `json:"action"`
	Amount     int64      `json:"amount"`
	Aggressive bool       `json:"aggressive"`
}

type Winner struct {
	SeatIndex   int            `json:"seatIndex"`
	UserID      int64          `json:"userId"`
	Amount      int64          `json:"amount"`
	Category    poker.Category `json:"category,omitempty"`
	Description string         `json:"description,omitempty"`
}

// HandResult is attached to a hand when it completes.
type HandResult struct {
	Showdown    bool                    `json:"showdown"`
	Winners     []Winner                `json:"winners"`
	Hands       map[int]poker.HandScore `json:"hands,omitempty"`
	Winnings    map[int]int64           `json:"winnings"`
	FinalStacks map[int]int64           `json:"finalStacks"`
}

type HandState struct {
	HandID              string            `json:"handId"`
	HandNumber          int64             `json:"handNumber"`
	DealerSeatIndex     int               `json:"dealerSeatIndex"`
	SmallBlindSeatIndex int               `json:"smallBlindSeatIndex"`
	BigBlindSeatIndex   int               `json:"bigBlindSeatIndex"`
	Deck                []poker.Card      `json:"deck"`
	CommunityCards      []poker.Card      `json:"communityCards"`
	BurnCards           []poker.Card      `json:"burnCards"`
	Street              Street            `json:"street"`
	PlayerStates        []PlayerHandState `json:"playerStates"`
	Betting             BettingRoundState `json:"bettingRound"`
	MainPot             int64             `json:"mainPot"`
	SidePots            []poker.SidePot   `json:"sidePots"`
	PotTotal            int64             `json:"potTotal"`
	ToActSeatIndex      int               `json:"toActSeatIndex"`
	MinBet              int64             `json:"minBet"`
	CallAmount          int64             `json:"callAmount"`
	Actions             []ActionRecord    `json:"actions"`
	Result              *HandResult       `json:"result,omitempty"`
}

func (h *HandState) player(seatIndex int) *PlayerHandState {
	for i := range h.PlayerStates {
		if h.PlayerStates[i].SeatIndex == seatIndex {
			return &h.PlayerStates[i]
		}
	}
	return nil
}

func (h *HandState) live() []*PlayerHandState {
	var out []*PlayerHandState
	for i := range h.PlayerStates {
		if h.PlayerStates[i].Status != StatusFolded {
			out = append(out, &h.PlayerStates[i])
		}
	}
	return out
}

func (h *HandState) canAct() []*PlayerHandState {
	var out []*PlayerHandState
	for i := range h.PlayerStates {
		if h.PlayerStates[i].Status == StatusActive {
			out = append(out, &h.PlayerStates[i])
		}
	}
	return out
}

func (h *HandState) contributions() []poker.Contribution {
	out := make([]poker.Contribution, len(h.PlayerStates))
	for i, ps := range h.PlayerStates {
		out[i] = poker.Contribution{SeatIndex: ps.SeatIndex, TotalBet: ps.TotalBet, Folded: ps.Status == StatusFolded}
	}
	return out
}

func (h *HandState) recomputePots() {
	pots := poker.CalculatePots(h.contributions())
	h.MainPot = pots.Main
	h.SidePots = pots.Side
	h.PotTotal = pots.Total
}

func (h *HandState) pots() poker.Pots {
	return poker.Pots{Main: h.MainPot, Side: h.SidePots, Total: h.PotTotal}
}

// owed is what the player must add to match the current bet.
func (h *HandState) owed(ps *PlayerHandState) int64 {
	if d := h.Betting.CurrentBet - ps.CurrentBet; d > 0 {
		return d
	}
	return 0
}

func (s *TableState) seat(seatIndex int) *Seat {
	if seatIndex < 0 || seatIndex >= len(s.Seats) {
		return nil
	}
	return &s.Seats[seatIndex]
}

// SeatOf returns the seat index held by userID.
func (s *TableState) SeatOf(userID int64) (int, bool) {
	for _, seat := range s.Seats {
		if seat.Occupied() && seat.UserID == userID {
			return seat.SeatIndex, true
		}
	}
	return noSeat, false
}

func (s *TableState) eligibleCount() int {
	n := 0
	for _, seat := range s.Seats {
		if seat.eligible() {
			n++
		}
	}
	return n
}

// ChipsInPlay is every stack plus the pot of the running hand.
func (s *TableState) ChipsInPlay() int64 {
	var total int64
	for _, seat := range s.Seats {
		total += seat.Stack
	}
	if s.CurrentHand != nil {
		total += s.CurrentHand.PotTotal
	}
	return total
}

// Clone returns a deep copy; engine transitions work on clones so the
// caller's snapshot never changes.
func (s *TableState) Clone() *TableState {
	if s == nil {
		return nil
	}
	out := *s
	out.Seats = append([]Seat(nil), s.Seats...)
	out.CurrentHand = s.CurrentHand.Clone()
	return &out
}

func (h *HandState) Clone() *HandState {
	if h == nil {
		return nil
	}
	out := *h
	out.Deck = append([]poker.Card(nil), h.Deck...)
	out.CommunityCards = append([]poker.Card(nil), h.CommunityCards...)
	out.BurnCards = append([]poker.Card(nil), h.BurnCards...)
	out.PlayerStates = make([]PlayerHandState, len(h.PlayerStates))
	for i, ps := range h.PlayerStates {
		ps.HoleCards = append([]poker.Card(nil), ps.HoleCards...)
		out.PlayerStates[i] = ps
	}
	out.Betting.Contributions = make(map[int]int64, len(h.Betting.Contributions))
	for k, v := range h.Betting.Contributions {
		out.Betting.Contributions[k] = v
	}
	out.SidePots = make([]poker.SidePot, len(h.SidePots))
	for i, sp := range h.SidePots {
		sp.EligibleSeats = append([]int(nil), sp.EligibleSeats...)
		out.SidePots[i] = sp
	}
	out.Actions = append([]ActionRecord(nil), h.Actions...)
	if h.Result != nil {
		r := *h.Result
		out.Result = &r
	}
	return &out
}
