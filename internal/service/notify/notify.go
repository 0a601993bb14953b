package notify

import (
	"context"
	"encoding/json"

	"holdem-service/internal/service/game"
	"holdem-service/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Channel carries every table update from the workers to the socket hubs.
const Channel = "game:updates"

type MessageType string

const (
	TypeActionProcessed MessageType = "ACTION_PROCESSED"
	TypeTurnTimeout     MessageType = "TURN_TIMEOUT"
	TypeHandStarted     MessageType = "HAND_STARTED"
	TypeHoleCards       MessageType = "HOLE_CARDS"
	TypeError           MessageType = "ERROR"
)

// Message is one fan-out unit. A non-zero UserID makes it private to that
// player.
type Message struct {
	Type         MessageType           `json:"type"`
	TableID      int64                 `json:"tableId"`
	HandID       string                `json:"handId,omitempty"`
	UserID       int64                 `json:"userId,omitempty"`
	SeatIndex    int                   `json:"seatIndex"`
	Action       game.ActionType       `json:"action,omitempty"`
	PotTotal     int64                 `json:"potTotal"`
	HandComplete bool                  `json:"handComplete"`
	Betting      *game.BettingSnapshot `json:"betting,omitempty"`
	Events       []game.EventEnvelope  `json:"events,omitempty"`
	ErrorCode    string                `json:"errorCode,omitempty"`
	ErrorMessage string                `json:"errorMessage,omitempty"`
}

func (m Message) Private() bool { return m.UserID > 0 }

// BuildMessages turns a committed outcome into one public message plus a
// private HOLE_CARDS message per dealt player.
func BuildMessages(out *game.Outcome, typ MessageType) ([]Message, error) {
	public := Message{
		Type:         typ,
		TableID:      out.TableID,
		HandID:       out.HandID,
		SeatIndex:    out.SeatIndex,
		Action:       out.Action,
		PotTotal:     out.PotTotal,
		HandComplete: out.HandComplete,
		Betting:      out.Betting,
	}
	var private []Message
	for _, ev := range out.Events {
		env, err := game.EncodeEvent(ev)
		if err != nil {
			return nil, err
		}
		if hc, ok := ev.(game.HoleCards); ok {
			private = append(private, Message{
				Type:      TypeHoleCards,
				TableID:   out.TableID,
				HandID:    hc.HandID,
				UserID:    hc.UserID,
				SeatIndex: hc.SeatIndex,
				Events:    []game.EventEnvelope{env},
			})
			continue
		}
		public.Events = append(public.Events, env)
	}
	return append(private, public), nil
}

// ErrorMessage is the private rejection sent to the player whose request
// failed.
func ErrorMessage(tableID, userID int64, handID, code, text string) Message {
	return Message{
		Type:         TypeError,
		TableID:      tableID,
		HandID:       handID,
		UserID:       userID,
		SeatIndex:    -1,
		ErrorCode:    code,
		ErrorMessage: text,
	}
}

type Publisher struct {
	rdb     *redis.Client
	channel string
}

func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb, channel: Channel}
}

func (p *Publisher) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel, data).Err()
}

// Subscribe delivers every message on the channel to fn until ctx is
// done.
func (p *Publisher) Subscribe(ctx context.Context, fn func(Message)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-ch:
			if !ok {
				return nil
			}
			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				logger.Log.Warn("drop undecodable update", zap.Error(err))
				continue
			}
			fn(msg)
		}
	}
}
