package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"holdem-service/internal/service/game"
	"holdem-service/pkg/logger"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Handler runs one job. Returning an error wrapped with Permanent drops
// the job; any other error retries it.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) Handle(ctx context.Context, job Job) error { return f(ctx, job) }

type Config struct {
	Workers         int
	PollInterval    time.Duration
	LockTTL         time.Duration
	MaxAttempts     int
	MonitorInterval time.Duration
	PromoteBatch    int64
}

func defaultConfig() Config {
	return Config{
		Workers:         4,
		PollInterval:    50 * time.Millisecond,
		LockTTL:         30 * time.Second,
		MaxAttempts:     5,
		MonitorInterval: 30 * time.Second,
		PromoteBatch:    100,
	}
}

// Queue is a Redis backed job queue with one serialized lane per table
// and a shared delayed set. It implements game.Scheduler.
type Queue struct {
	rdb   *redis.Client
	clock quartz.Clock
	cfg   Config
}

var _ game.Scheduler = (*Queue)(nil)

type Option func(*Queue)

func WithConfig(cfg Config) Option {
	return func(q *Queue) {
		if cfg.Workers > 0 {
			q.cfg.Workers = cfg.Workers
		}
		if cfg.PollInterval > 0 {
			q.cfg.PollInterval = cfg.PollInterval
		}
		if cfg.LockTTL > 0 {
			q.cfg.LockTTL = cfg.LockTTL
		}
		if cfg.MaxAttempts > 0 {
			q.cfg.MaxAttempts = cfg.MaxAttempts
		}
		if cfg.MonitorInterval > 0 {
			q.cfg.MonitorInterval = cfg.MonitorInterval
		}
		if cfg.PromoteBatch > 0 {
			q.cfg.PromoteBatch = cfg.PromoteBatch
		}
	}
}

func WithClock(clock quartz.Clock) Option {
	return func(q *Queue) { q.clock = clock }
}

func New(rdb *redis.Client, opts ...Option) *Queue {
	q := &Queue{rdb: rdb, clock: quartz.NewReal(), cfg: defaultConfig()}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

var (
	// KEYS: delayed, jobs. ARGV: id, score, data, nx
	scheduleScript = redis.NewScript(`
if ARGV[4] == '1' and redis.call('ZSCORE', KEYS[1], ARGV[1]) then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
return 1
`)

	// KEYS: delayed, jobs, pending, ready. ARGV: id, tableID
	promoteScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
  return 0
end
local data = redis.call('HGET', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
if not data then
  return 0
end
redis.call('RPUSH', KEYS[3], data)
redis.call('RPUSH', KEYS[4], ARGV[2])
return 1
`)

	// KEYS: lock. ARGV: token
	releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

	// KEYS: lock. ARGV: token, ttl ms
	extendScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)
)

// Enqueue appends a job to its table lane and signals the workers.
func (q *Queue) Enqueue(ctx context.Context, job Job) (string, error) {
	if job.TableID == 0 {
		return "", errors.New("job without table")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.EnqueuedAt = q.clock.Now().UnixMilli()
	data, err := json.Marshal(job)
	if err != nil {
		return "", err
	}
	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, buildPendingKey(job.TableID), data)
		pipe.RPush(ctx, readyKey, job.TableID)
		return nil
	})
	if err != nil {
		return "", err
	}
	return job.ID, nil
}

func (q *Queue) EnqueuePlayerAction(ctx context.Context, tableID int64, p PlayerActionPayload) (string, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return q.Enqueue(ctx, Job{Kind: KindPlayerAction, TableID: tableID, Payload: payload})
}

func (q *Queue) EnqueueStartHand(ctx context.Context, tableID, userID int64) (string, error) {
	payload, err := json.Marshal(StartHandPayload{UserID: userID})
	if err != nil {
		return "", err
	}
	return q.Enqueue(ctx, Job{Kind: KindStartHand, TableID: tableID, Payload: payload})
}

// ScheduleTurnTimeout books a timer for one seat of one hand. Booking the
// same seat of the same hand again replaces the earlier timer.
func (q *Queue) ScheduleTurnTimeout(ctx context.Context, tableID int64, handID string, seatIndex int, delay time.Duration) error {
	payload, err := json.Marshal(TurnTimeoutPayload{HandID: handID, SeatIndex: seatIndex})
	if err != nil {
		return err
	}
	job := Job{
		ID:      buildTurnTimeoutID(tableID, handID, seatIndex),
		Kind:    KindTurnTimeout,
		TableID: tableID,
		Payload: payload,
	}
	return q.schedule(ctx, job, delay, false)
}

// ScheduleAutoStart books a start for the table unless one is waiting.
func (q *Queue) ScheduleAutoStart(ctx context.Context, tableID int64, delay time.Duration) error {
	job := Job{ID: buildAutoStartID(tableID), Kind: KindAutoStart, TableID: tableID}
	return q.schedule(ctx, job, delay, true)
}

func (q *Queue) schedule(ctx context.Context, job Job, delay time.Duration, keepExisting bool) error {
	now := q.clock.Now()
	job.EnqueuedAt = now.UnixMilli()
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	nx := "0"
	if keepExisting {
		nx = "1"
	}
	due := now.Add(delay).UnixMilli()
	return scheduleScript.Run(ctx, q.rdb, []string{delayedKey, jobsKey}, job.ID, due, data, nx).Err()
}

// Promote moves due delayed jobs into their table lanes and returns how
// many it moved.
func (q *Queue) Promote(ctx context.Context) (int, error) {
	now := q.clock.Now().UnixMilli()
	ids, err := q.rdb.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now, 10),
		Count: q.cfg.PromoteBatch,
	}).Result()
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, id := range ids {
		data, err := q.rdb.HGet(ctx, jobsKey, id).Bytes()
		if err == redis.Nil {
			q.rdb.ZRem(ctx, delayedKey, id)
			continue
		}
		if err != nil {
			return moved, err
		}
		var job Job
		if err := json.Unmarshal(data, &job); err != nil {
			logger.Log.Error("drop undecodable delayed job", zap.String("jobID", id), zap.Error(err))
			q.rdb.ZRem(ctx, delayedKey, id)
			q.rdb.HDel(ctx, jobsKey, id)
			continue
		}
		keys := []string{delayedKey, jobsKey, buildPendingKey(job.TableID), readyKey}
		n, err := promoteScript.Run(ctx, q.rdb, keys, id, job.TableID).Int()
		if err != nil {
			return moved, err
		}
		moved += n
	}
	return moved, nil
}

// ProcessReady drains every table that was signalled ready when the call
// started.
func (q *Queue) ProcessReady(ctx context.Context, h Handler) (int, error) {
	n, err := q.rdb.LLen(ctx, readyKey).Result()
	if err != nil {
		return 0, err
	}
	processed := 0
	for i := int64(0); i < n; i++ {
		raw, err := q.rdb.LPop(ctx, readyKey).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return processed, err
		}
		tableID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		done, err := q.DrainTable(ctx, tableID, h)
		processed += done
		if err != nil {
			return processed, err
		}
	}
	return processed, nil
}

// DrainTable runs the table's pending jobs in order while holding the
// table lock. It returns at once when another worker holds the lock.
func (q *Queue) DrainTable(ctx context.Context, tableID int64, h Handler) (int, error) {
	lockKey := buildLockKey(tableID)
	token := uuid.NewString()
	ok, err := q.rdb.SetNX(ctx, lockKey, token, q.cfg.LockTTL).Result()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	defer q.unlock(tableID, token)

	pendingKey := buildPendingKey(tableID)
	processingKey := buildProcessingKey(tableID)

	// jobs left behind by a worker that died mid-job go first
	for {
		_, err := q.rdb.LMove(ctx, processingKey, pendingKey, "RIGHT", "LEFT").Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return 0, err
		}
	}

	processed := 0
	for ctx.Err() == nil {
		held, err := extendScript.Run(ctx, q.rdb, []string{lockKey}, token, q.cfg.LockTTL.Milliseconds()).Int()
		if err != nil {
			return processed, err
		}
		if held == 0 {
			logger.Log.Warn("table lock lost, leaving lane to its owner", zap.Int64("tableID", tableID))
			break
		}
		data, err := q.rdb.LMove(ctx, pendingKey, processingKey, "LEFT", "RIGHT").Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return processed, err
		}

		var job Job
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			logger.Log.Error("dead-lettering undecodable job", zap.Int64("tableID", tableID), zap.Error(err))
			q.deadLetter(ctx, processingKey, data, data)
			continue
		}

		herr := q.run(ctx, h, job)
		processed++
		if retry := q.finish(ctx, processingKey, pendingKey, data, job, herr); retry {
			// back off until the next signal
			break
		}
	}
	return processed, nil
}

func (q *Queue) run(ctx context.Context, h Handler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("job panicked: %v", r))
		}
	}()
	return h.Handle(ctx, job)
}

// finish settles a handled job and reports whether it was put back.
func (q *Queue) finish(ctx context.Context, processingKey, pendingKey, data string, job Job, herr error) bool {
	fields := []zap.Field{
		zap.String("jobID", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.Int64("tableID", job.TableID),
	}
	switch {
	case herr == nil:
		q.rdb.LRem(ctx, processingKey, 1, data)
		return false
	case IsPermanent(herr):
		logger.Log.Warn("job dropped", append(fields, zap.Error(herr))...)
		q.rdb.LRem(ctx, processingKey, 1, data)
		return false
	}

	job.Attempts++
	if job.Attempts >= q.cfg.MaxAttempts {
		logger.Log.Error("job dead-lettered", append(fields, zap.Int("attempts", job.Attempts), zap.Error(herr))...)
		next, _ := json.Marshal(job)
		q.deadLetter(ctx, processingKey, data, string(next))
		return false
	}

	logger.Log.Warn("job failed, retrying", append(fields, zap.Int("attempts", job.Attempts), zap.Error(herr))...)
	next, _ := json.Marshal(job)
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, processingKey, 1, data)
		pipe.LPush(ctx, pendingKey, next)
		return nil
	})
	if err != nil {
		logger.Log.Error("requeue failed", append(fields, zap.Error(err))...)
	}
	return true
}

func (q *Queue) deadLetter(ctx context.Context, processingKey, data, dead string) {
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, processingKey, 1, data)
		pipe.RPush(ctx, deadKey, dead)
		return nil
	})
	if err != nil {
		logger.Log.Error("dead-letter failed", zap.Error(err))
	}
}

// unlock releases the table and re-signals it when work arrived while it
// was held.
func (q *Queue) unlock(tableID int64, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, q.rdb, []string{buildLockKey(tableID)}, token).Err(); err != nil {
		logger.Log.Warn("release table lock failed", zap.Int64("tableID", tableID), zap.Error(err))
	}
	n, err := q.rdb.LLen(ctx, buildPendingKey(tableID)).Result()
	if err == nil && n > 0 {
		q.rdb.RPush(ctx, readyKey, tableID)
	}
}

type Stats struct {
	Delayed int64
	Ready   int64
	Dead    int64
}

func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.rdb.Pipeline()
	delayed := pipe.ZCard(ctx, delayedKey)
	ready := pipe.LLen(ctx, readyKey)
	dead := pipe.LLen(ctx, deadKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, err
	}
	return Stats{Delayed: delayed.Val(), Ready: ready.Val(), Dead: dead.Val()}, nil
}
