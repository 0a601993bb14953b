package model

import (
	"time"

	"gorm.io/datatypes"
)

// Players and tables are owned by the lobby; the game service reads them
// and writes back stacks.

type User struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	DisplayName string `gorm:"size:64;not null"`
	Status      string `gorm:"default:normal;not null"` // normal/banned
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Table struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	Name       string `gorm:"size:128"`
	HostUserID int64  `gorm:"index;not null"`
	MaxSeats   int    `gorm:"not null"`
	SmallBlind int64  `gorm:"not null"`
	BigBlind   int64  `gorm:"not null"`
	Status     string `gorm:"default:waiting;not null"` // waiting/playing/closed
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Seat struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	TableID      int64  `gorm:"uniqueIndex:idx_seat_table_index;not null"`
	SeatIndex    int    `gorm:"uniqueIndex:idx_seat_table_index;not null"`
	UserID       *int64 `gorm:"index"`
	Stack        int64  `gorm:"not null;default:0"`
	IsSittingOut bool   `gorm:"not null;default:false"`
	UpdatedAt    time.Time
}

// 2.2 Hand history

type Hand struct {
	ID                  int64          `gorm:"primaryKey;autoIncrement"`
	TableID             int64          `gorm:"uniqueIndex:idx_hand_table_number;not null"`
	HandNumber          int64          `gorm:"uniqueIndex:idx_hand_table_number;not null"`
	HandUID             string         `gorm:"size:64;uniqueIndex;not null"`
	DealerSeatIndex     int
	SmallBlindSeatIndex int
	BigBlindSeatIndex   int
	SmallBlind          int64
	BigBlind            int64
	CommunityCards      datatypes.JSON
	PotTotal            int64
	Showdown            bool
	ResultJSON          datatypes.JSON
	CompletedAt         time.Time
	CreatedAt           time.Time
}

type PlayerHand struct {
	ID            int64 `gorm:"primaryKey;autoIncrement"`
	HandID        int64 `gorm:"index;not null"`
	TableID       int64 `gorm:"index;not null"`
	UserID        int64 `gorm:"index;not null"`
	SeatIndex     int
	HoleCards     datatypes.JSON
	TotalBet      int64
	Won           int64
	NetChips      int64
	VPIP          bool
	PFR           bool
	SawShowdown   bool
	WonShowdown   bool
	FinalHandRank *string `gorm:"size:32"`
	CreatedAt     time.Time
}

type HandAction struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	HandID    int64  `gorm:"index;not null"`
	TableID   int64  `gorm:"index;not null"`
	UserID    int64  `gorm:"index"`
	Seq       int    `gorm:"not null"`
	Street    string `gorm:"size:16"`
	SeatIndex int
	Action    string `gorm:"size:32"`
	Amount    int64
	CreatedAt time.Time
}

// All returns every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Table{},
		&Seat{},
		&Hand{},
		&PlayerHand{},
		&HandAction{},
	}
}
