package worker

import (
	"context"
	"errors"
	"fmt"

	"holdem-service/internal/service/game"
	"holdem-service/internal/service/notify"
	"holdem-service/internal/service/queue"
	appErr "holdem-service/pkg/errors"
	"holdem-service/pkg/logger"

	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, msg notify.Message) error
}

// Dispatcher runs queue jobs against the game service and publishes what
// changed.
type Dispatcher struct {
	game *game.Service
	pub  Publisher
}

var _ queue.Handler = (*Dispatcher)(nil)

func NewDispatcher(gameSvc *game.Service, pub Publisher) *Dispatcher {
	return &Dispatcher{game: gameSvc, pub: pub}
}

func (d *Dispatcher) Handle(ctx context.Context, job queue.Job) error {
	switch job.Kind {
	case queue.KindPlayerAction:
		var p queue.PlayerActionPayload
		if err := job.Decode(&p); err != nil {
			return queue.Permanent(err)
		}
		out, err := d.game.ApplyPlayerAction(ctx, job.TableID, p.UserID, p.HandID, p.Action)
		return d.settle(ctx, job, p.UserID, p.HandID, out, err, notify.TypeActionProcessed)

	case queue.KindStartHand:
		var p queue.StartHandPayload
		if err := job.Decode(&p); err != nil {
			return queue.Permanent(err)
		}
		out, err := d.game.StartHand(ctx, job.TableID)
		return d.settle(ctx, job, p.UserID, "", out, err, notify.TypeHandStarted)

	case queue.KindTurnTimeout:
		var p queue.TurnTimeoutPayload
		if err := job.Decode(&p); err != nil {
			return queue.Permanent(err)
		}
		out, err := d.game.HandleTurnTimeout(ctx, job.TableID, p.HandID, p.SeatIndex)
		return d.settle(ctx, job, 0, p.HandID, out, err, notify.TypeTurnTimeout)

	case queue.KindAutoStart:
		out, err := d.game.HandleAutoStart(ctx, job.TableID)
		return d.settle(ctx, job, 0, "", out, err, notify.TypeHandStarted)
	}
	return queue.Permanent(fmt.Errorf("unknown job kind %q", job.Kind))
}

// settle publishes a committed outcome. Game rejections go back to the
// requester and are never retried; infrastructure errors are retried.
// Once an outcome is committed the job succeeds even if publishing fails.
func (d *Dispatcher) settle(ctx context.Context, job queue.Job, userID int64, handID string, out *game.Outcome, err error, typ notify.MessageType) error {
	if err != nil {
		if appErr.IsGameError(err) {
			if userID > 0 {
				d.publish(ctx, notify.ErrorMessage(job.TableID, userID, handID, appErr.Code(err), err.Error()))
			}
			return queue.Permanent(err)
		}
		if errors.Is(err, appErr.ErrTableNotFound) {
			return queue.Permanent(err)
		}
		if userID > 0 && job.Attempts == 0 {
			d.publish(ctx, notify.ErrorMessage(job.TableID, userID, handID, "INTERNAL_ERROR", "request could not be processed yet"))
		}
		return err
	}
	if out == nil {
		return nil
	}
	if out.Stale {
		logger.Log.Info("stale job skipped",
			zap.String("jobID", job.ID),
			zap.Int64("tableID", job.TableID),
			zap.String("handID", out.HandID),
		)
		return nil
	}

	msgs, err := notify.BuildMessages(out, typ)
	if err != nil {
		logger.Log.Error("build update failed", zap.Int64("tableID", job.TableID), zap.Error(err))
		return nil
	}
	for _, msg := range msgs {
		d.publish(ctx, msg)
	}
	return nil
}

func (d *Dispatcher) publish(ctx context.Context, msg notify.Message) {
	if err := d.pub.Publish(ctx, msg); err != nil {
		logger.Log.Warn("publish update failed",
			zap.Int64("tableID", msg.TableID),
			zap.String("type", string(msg.Type)),
			zap.Error(err),
		)
	}
}
