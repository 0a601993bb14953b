package game

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"holdem-service/internal/model"
	"holdem-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type playerStats struct {
	VPIP bool
	PFR  bool
}

// derivePreflopStats reads the action log: VPIP is any voluntary preflop
// chip commitment, PFR any preflop bet or raise.
func derivePreflopStats(h *HandState) map[int]playerStats {
	stats := map[int]playerStats{}
	for _, a := range h.Actions {
		if a.Street != StreetPreflop {
			continue
		}
		st := stats[a.SeatIndex]
		switch a.Action {
		case ActionCall, ActionBet, ActionRaise, ActionAllIn:
			st.VPIP = true
		}
		switch a.Action {
		case ActionBet, ActionRaise:
			st.PFR = true
		case ActionAllIn:
			if a.Aggressive {
				st.PFR = true
			}
		}
		stats[a.SeatIndex] = st
	}
	return stats
}

// PersistHand writes the finished hand and resyncs seat stacks. Writing
// the same (table, hand number) twice only resyncs stacks.
func (s *Service) PersistHand(ctx context.Context, state *TableState, hand *HandState) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&model.Hand{}).
			Where("table_id = ? AND hand_number = ?", state.TableID, hand.HandNumber).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			logger.Log.Warn("hand already persisted",
				zap.Int64("tableID", state.TableID),
				zap.Int64("handNumber", hand.HandNumber),
			)
			return resyncSeats(tx, state)
		}

		row, err := buildHandRow(state, hand)
		if err != nil {
			return err
		}
		if err := tx.Create(row).Error; err != nil {
			return err
		}

		players, err := buildPlayerHandRows(state, hand, row.ID)
		if err != nil {
			return err
		}
		if len(players) > 0 {
			if err := tx.Create(&players).Error; err != nil {
				return err
			}
		}

		actions := make([]model.HandAction, 0, len(hand.Actions))
		for _, a := range hand.Actions {
			actions = append(actions, model.HandAction{
				HandID:    row.ID,
				TableID:   state.TableID,
				UserID:    a.UserID,
				Seq:       a.Seq,
				Street:    string(a.Street),
				SeatIndex: a.SeatIndex,
				Action:    string(a.Action),
				Amount:    a.Amount,
			})
		}
		if len(actions) > 0 {
			if err := tx.Create(&actions).Error; err != nil {
				return err
			}
		}
		return resyncSeats(tx, state)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// another writer got there between our check and insert
		logger.Log.Warn("hand persisted concurrently",
			zap.Int64("tableID", state.TableID),
			zap.Int64("handNumber", hand.HandNumber),
		)
		return resyncSeats(s.db.WithContext(ctx), state)
	}
	return err
}

func buildHandRow(state *TableState, hand *HandState) (*model.Hand, error) {
	community, err := json.Marshal(hand.CommunityCards)
	if err != nil {
		return nil, err
	}
	result, err := json.Marshal(hand.Result)
	if err != nil {
		return nil, err
	}
	row := &model.Hand{
		TableID:             state.TableID,
		HandNumber:          hand.HandNumber,
		HandUID:             hand.HandID,
		DealerSeatIndex:     hand.DealerSeatIndex,
		SmallBlindSeatIndex: hand.SmallBlindSeatIndex,
		BigBlindSeatIndex:   hand.BigBlindSeatIndex,
		SmallBlind:          state.Config.SmallBlind,
		BigBlind:            state.Config.BigBlind,
		CommunityCards:      datatypes.JSON(community),
		PotTotal:            hand.PotTotal,
		ResultJSON:          datatypes.JSON(result),
		CompletedAt:         time.Now(),
	}
	if hand.Result != nil {
		row.Showdown = hand.Result.Showdown
	}
	return row, nil
}

func buildPlayerHandRows(state *TableState, hand *HandState, handRowID int64) ([]model.PlayerHand, error) {
	stats := derivePreflopStats(hand)
	showdown := hand.Result != nil && hand.Result.Showdown

	rows := make([]model.PlayerHand, 0, len(hand.PlayerStates))
	for _, ps := range hand.PlayerStates {
		cards, err := json.Marshal(ps.HoleCards)
		if err != nil {
			return nil, err
		}
		var won int64
		var rank *string
		if hand.Result != nil {
			won = hand.Result.Winnings[ps.SeatIndex]
			if score, ok := hand.Result.Hands[ps.SeatIndex]; ok {
				name := score.Category.String()
				rank = &name
			}
		}
		sawShowdown := showdown && ps.Status != StatusFolded
		rows = append(rows, model.PlayerHand{
			HandID:        handRowID,
			TableID:       state.TableID,
			UserID:        ps.UserID,
			SeatIndex:     ps.SeatIndex,
			HoleCards:     datatypes.JSON(cards),
			TotalBet:      ps.TotalBet,
			Won:           won,
			NetChips:      won - ps.TotalBet,
			VPIP:          stats[ps.SeatIndex].VPIP,
			PFR:           stats[ps.SeatIndex].PFR,
			SawShowdown:   sawShowdown,
			WonShowdown:   sawShowdown && won > 0,
			FinalHandRank: rank,
		})
	}
	return rows, nil
}

// resyncSeats writes the cached stacks back to the seat rows.
func resyncSeats(tx *gorm.DB, state *TableState) error {
	for _, seat := range state.Seats {
		if !seat.Occupied() {
			continue
		}
		err := tx.Model(&model.Seat{}).
			Where("table_id = ? AND seat_index = ? AND user_id = ?", state.TableID, seat.SeatIndex, seat.UserID).
			Update("stack", seat.Stack).Error
		if err != nil {
			return err
		}
	}
	return nil
}
