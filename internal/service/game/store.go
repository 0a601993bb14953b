package game

import (
	"context"
	"errors"
	"fmt"

	"holdem-service/internal/model"
	appErr "holdem-service/pkg/errors"

	"gorm.io/gorm"
)

// loadTableState rebuilds a table from the record store. Hand numbering
// and the button continue from the last persisted hand. A missing table
// matches both ErrTableStateNotFound and ErrTableNotFound.
func loadTableState(ctx context.Context, db *gorm.DB, tableID int64) (*TableState, error) {
	var table model.Table
	if err := db.WithContext(ctx).First(&table, tableID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %w", appErr.ErrTableStateNotFound, appErr.ErrTableNotFound)
		}
		return nil, err
	}

	var seats []model.Seat
	if err := db.WithContext(ctx).
		Where("table_id = ?", tableID).
		Order("seat_index asc").
		Find(&seats).Error; err != nil {
		return nil, err
	}

	userIDs := make([]int64, 0, len(seats))
	for _, seat := range seats {
		if seat.UserID != nil {
			userIDs = append(userIDs, *seat.UserID)
		}
	}
	names := map[int64]string{}
	if len(userIDs) > 0 {
		var users []model.User
		if err := db.WithContext(ctx).Where("id IN ?", userIDs).Find(&users).Error; err != nil {
			return nil, err
		}
		for _, u := range users {
			names[u.ID] = u.DisplayName
		}
	}

	state := &TableState{
		TableID: table.ID,
		Config: TableConfig{
			MaxSeats:   table.MaxSeats,
			SmallBlind: table.SmallBlind,
			BigBlind:   table.BigBlind,
		},
		Seats:               make([]Seat, table.MaxSeats),
		LastDealerSeatIndex: noSeat,
	}
	for i := range state.Seats {
		state.Seats[i].SeatIndex = i
	}
	for _, row := range seats {
		if row.SeatIndex < 0 || row.SeatIndex >= table.MaxSeats {
			continue
		}
		seat := &state.Seats[row.SeatIndex]
		if row.UserID != nil {
			seat.UserID = *row.UserID
			seat.DisplayName = names[*row.UserID]
		}
		seat.Stack = row.Stack
		seat.IsSittingOut = row.IsSittingOut
	}

	var last model.Hand
	err := db.WithContext(ctx).
		Where("table_id = ?", tableID).
		Order("hand_number desc").
		Limit(1).
		Find(&last).Error
	if err != nil {
		return nil, err
	}
	if last.ID != 0 {
		state.HandNumber = last.HandNumber
		state.LastDealerSeatIndex = last.DealerSeatIndex
	}
	return state, nil
}
