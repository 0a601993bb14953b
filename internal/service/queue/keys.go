package queue

import (
	"fmt"
	"strconv"
)

const (
	readyKey   = "queue:ready"
	delayedKey = "queue:delayed"
	jobsKey    = "queue:jobs"
	deadKey    = "queue:dead"
)

func buildPendingKey(tableID int64) string {
	return fmt.Sprintf("queue:table:%d:pending", tableID)
}

func buildProcessingKey(tableID int64) string {
	return fmt.Sprintf("queue:table:%d:processing", tableID)
}

func buildLockKey(tableID int64) string {
	return fmt.Sprintf("queue:table:%d:lock", tableID)
}

func buildTurnTimeoutID(tableID int64, handID string, seatIndex int) string {
	return fmt.Sprintf("turn-timeout:%d:%s:%d", tableID, handID, seatIndex)
}

func buildAutoStartID(tableID int64) string {
	return "auto-start:" + strconv.FormatInt(tableID, 10)
}
