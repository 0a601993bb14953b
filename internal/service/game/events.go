package game

import (
	"encoding/json"
	"fmt"

	"holdem-service/internal/poker"
)

type EventType string

const (
	EventHoleCards           EventType = "HOLE_CARDS"
	EventHandStarted         EventType = "HAND_STARTED"
	EventPlayerActionApplied EventType = "PLAYER_ACTION_APPLIED"
	EventCardsDealt          EventType = "CARDS_DEALT"
	EventHandResult          EventType = "HAND_RESULT"
	EventHandComplete        EventType = "HAND_COMPLETE"
)

// Event is one of the concrete event structs below. The set is closed.
type Event interface {
	Type() EventType
	isEvent()
}

// HoleCards is private to UserID and must never be broadcast.
type HoleCards struct {
	HandID    string       `json:"handId"`
	SeatIndex int          `json:"seatIndex"`
	UserID    int64        `json:"userId"`
	Cards     []poker.Card `json:"cards"`
}

type HandStarted struct {
	HandID              string `json:"handId"`
	HandNumber          int64  `json:"handNumber"`
	DealerSeatIndex     int    `json:"dealerSeatIndex"`
	SmallBlindSeatIndex int    `json:"smallBlindSeatIndex"`
	BigBlindSeatIndex   int    `json:"bigBlindSeatIndex"`
	PotTotal            int64  `json:"potTotal"`
	ToActSeatIndex      int    `json:"toActSeatIndex"`
}

type BettingSnapshot struct {
	Street         Street `json:"street"`
	CurrentBet     int64  `json:"currentBet"`
	MinRaise       int64  `json:"minRaise"`
	ToActSeatIndex int    `json:"toActSeatIndex"`
	CallAmount     int64  `json:"callAmount"`
}

type PlayerActionApplied struct {
	HandID    string          `json:"handId"`
	SeatIndex int             `json:"seatIndex"`
	Action    ActionType      `json:"action"`
	Amount    int64           `json:"amount"`
	Stack     int64           `json:"stack"`
	PotTotal  int64           `json:"potTotal"`
	Betting   BettingSnapshot `json:"betting"`
}

type CardsDealt struct {
	HandID         string       `json:"handId"`
	Street         Street       `json:"street"`
	Cards          []poker.Card `json:"cards"`
	CommunityCards []poker.Card `json:"communityCards"`
	ToActSeatIndex int          `json:"toActSeatIndex"`
}

type HandResultEvent struct {
	HandID      string        `json:"handId"`
	Showdown    bool          `json:"showdown"`
	Winners     []Winner      `json:"winners"`
	FinalStacks map[int]int64 `json:"finalStacks"`
}

type HandComplete struct {
	HandID     string `json:"handId"`
	HandNumber int64  `json:"handNumber"`
}

func (HoleCards) Type() EventType           { return EventHoleCards }
func (HandStarted) Type() EventType         { return EventHandStarted }
func (PlayerActionApplied) Type() EventType { return EventPlayerActionApplied }
func (CardsDealt) Type() EventType          { return EventCardsDealt }
func (HandResultEvent) Type() EventType     { return EventHandResult }
func (HandComplete) Type() EventType        { return EventHandComplete }

func (HoleCards) isEvent()           {}
func (HandStarted) isEvent()         {}
func (PlayerActionApplied) isEvent() {}
func (CardsDealt) isEvent()          {}
func (HandResultEvent) isEvent()     {}
func (HandComplete) isEvent()        {}

// EventEnvelope is the wire form of an Event.
type EventEnvelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

func EncodeEvent(e Event) (EventEnvelope, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return EventEnvelope{}, fmt.Errorf("encode %s: %w", e.Type(), err)
	}
	return EventEnvelope{Type: e.Type(), Data: data}, nil
}

func DecodeEvent(env EventEnvelope) (Event, error) {
	var (
		e   Event
		err error
	)
	switch env.Type {
	case EventHoleCards:
		var v HoleCards
		err = json.Unmarshal(env.Data, &v)
		e = v
	case EventHandStarted:
		var v HandStarted
		err = json.Unmarshal(env.Data, &v)
		e = v
	case EventPlayerActionApplied:
		var v PlayerActionApplied
		err = json.Unmarshal(env.Data, &v)
		e = v
	case EventCardsDealt:
		var v CardsDealt
		err = json.Unmarshal(env.Data, &v)
		e = v
	case EventHandResult:
		var v HandResultEvent
		err = json.Unmarshal(env.Data, &v)
		e = v
	case EventHandComplete:
		var v HandComplete
		err = json.Unmarshal(env.Data, &v)
		e = v
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return e, nil
}
