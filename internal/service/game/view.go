package game

import (
	"holdem-service/internal/poker"
)

const (
	SeatEmpty      = "EMPTY"
	SeatSittingOut = "SITTING_OUT"
	SeatWaiting    = "WAITING"
	StreetWaiting  = "WAITING"
)

type SeatView struct {
	SeatIndex   int    `json:"seatIndex"`
	UserID      int64  `json:"userId,string,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Stack       int64  `json:"stack"`
	Status      string `json:"status"`
	CurrentBet  int64  `json:"currentBet"`
	IsDealer    bool   `json:"isDealer"`
	IsSelf      bool   `json:"isSelf"`
}

// TableView is what one viewer may see of a table. Only the viewer's own
// hole cards are included.
type TableView struct {
	TableID        int64        `json:"tableId,string"`
	HandID         string       `json:"handId,omitempty"`
	HandNumber     int64        `json:"handNumber"`
	Street         string       `json:"street"`
	Seats          []SeatView   `json:"seats"`
	CommunityCards []poker.Card `json:"communityCards"`
	PotTotal       int64        `json:"potTotal"`
	ToActSeatIndex int          `json:"toActSeatIndex"`
	MinBet         int64        `json:"minBet"`
	CallAmount     int64        `json:"callAmount"`
	SmallBlind     int64        `json:"smallBlind"`
	BigBlind       int64        `json:"bigBlind"`
	HoleCards      []poker.Card `json:"holeCards"`
}

func PublicView(state *TableState, viewerID int64) TableView {
	v := TableView{
		TableID:        state.TableID,
		HandNumber:     state.HandNumber,
		Street:         StreetWaiting,
		CommunityCards: []poker.Card{},
		ToActSeatIndex: noSeat,
		SmallBlind:     state.Config.SmallBlind,
		BigBlind:       state.Config.BigBlind,
		HoleCards:      []poker.Card{},
	}
	h := state.CurrentHand
	if h != nil {
		v.HandID = h.HandID
		v.Street = string(h.Street)
		v.CommunityCards = append(v.CommunityCards, h.CommunityCards...)
		v.PotTotal = h.PotTotal
		v.ToActSeatIndex = h.ToActSeatIndex
		v.MinBet = h.MinBet
		v.CallAmount = h.CallAmount
	}

	for _, seat := range state.Seats {
		sv := SeatView{
			SeatIndex:   seat.SeatIndex,
			UserID:      seat.UserID,
			DisplayName: seat.DisplayName,
			Stack:       seat.Stack,
			IsSelf:      viewerID != 0 && seat.UserID == viewerID,
		}
		switch {
		case !seat.Occupied():
			sv.Status = SeatEmpty
		case seat.IsSittingOut:
			sv.Status = SeatSittingOut
		default:
			sv.Status = SeatWaiting
		}
		if h != nil {
			sv.IsDealer = seat.SeatIndex == h.DealerSeatIndex
			if ps := h.player(seat.SeatIndex); ps != nil {
				sv.Status = string(ps.Status)
				sv.CurrentBet = ps.CurrentBet
				if sv.IsSelf {
					v.HoleCards = append(v.HoleCards, ps.HoleCards...)
				}
			}
		}
		v.Seats = append(v.Seats, sv)
	}
	return v
}
