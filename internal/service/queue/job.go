package queue

import (
	"encoding/json"
	"errors"

	"holdem-service/internal/service/game"
)

type Kind string

const (
	KindPlayerAction Kind = "player-action"
	KindStartHand    Kind = "start-hand"
	KindTurnTimeout  Kind = "turn-timeout"
	KindAutoStart    Kind = "auto-start"
)

// Job is one unit of table work. Jobs of the same table run one at a
// time in enqueue order.
type Job struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	TableID    int64           `json:"tableId"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt int64           `json:"enqueuedAt"`
}

type PlayerActionPayload struct {
	UserID int64             `json:"userId"`
	HandID string            `json:"handId"`
	Action game.PlayerAction `json:"action"`
}

type StartHandPayload struct {
	UserID int64 `json:"userId"`
}

type TurnTimeoutPayload struct {
	HandID    string `json:"handId"`
	SeatIndex int    `json:"seatIndex"`
}

// Decode unmarshals the job payload into v.
func (j Job) Decode(v any) error {
	if len(j.Payload) == 0 {
		return errors.New("empty job payload")
	}
	return json.Unmarshal(j.Payload, v)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a handler failure that a retry cannot fix. The job is
// dropped instead of retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
