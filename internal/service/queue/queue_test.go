package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"holdem-service/internal/service/game"

	"github.com/alicebob/miniredis/v2"
	"github.com/coder/quartz"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	jobs []Job
	err  error
}

func (r *recorder) Handle(ctx context.Context, job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return r.err
}

func newTestQueue(t *testing.T, opts ...Option) (*Queue, *miniredis.Miniredis, *quartz.Mock) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	clock := quartz.NewMock(t)
	opts = append([]Option{WithClock(clock)}, opts...)
	return New(rdb, opts...), mr, clock
}

func TestDrainKeepsTableOrder(t *testing.T) {
	q, mr, _ := newTestQueue(t)
	ctx := context.Background()

	for _, handID := range []string{"a", "b", "c"} {
		_, err := q.EnqueuePlayerAction(ctx, 1, PlayerActionPayload{UserID: 7, HandID: handID, Action: game.PlayerAction{Type: game.ActionCheck}})
		require.NoError(t, err)
	}
	_, err := q.EnqueueStartHand(ctx, 2, 9)
	require.NoError(t, err)

	rec := &recorder{}
	n, err := q.ProcessReady(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	var order []string
	for _, job := range rec.jobs {
		if job.TableID != 1 {
			continue
		}
		var p PlayerActionPayload
		require.NoError(t, job.Decode(&p))
		order = append(order, p.HandID)
	}
	require.Equal(t, []string{"a", "b", "c"}, order)

	require.False(t, mr.Exists(buildPendingKey(1)))
	require.False(t, mr.Exists(buildProcessingKey(1)))
	require.False(t, mr.Exists(buildLockKey(1)))
}

func TestDelayedJobRunsWhenDue(t *testing.T) {
	q, _, clock := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.ScheduleTurnTimeout(ctx, 1, "hand-1", 3, 10*time.Second))

	moved, err := q.Promote(ctx)
	require.NoError(t, err)
	require.Zero(t, moved)

	clock.Advance(10 * time.Second).MustWait(ctx)
	moved, err = q.Promote(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, moved)

	rec := &recorder{}
	_, err = q.ProcessReady(ctx, rec)
	require.NoError(t, err)
	require.Len(t, rec.jobs, 1)
	require.Equal(t, KindTurnTimeout, rec.jobs[0].Kind)

	var p TurnTimeoutPayload
	require.NoError(t, rec.jobs[0].Decode(&p))
	require.Equal(t, TurnTimeoutPayload{HandID: "hand-1", SeatIndex: 3}, p)
}

func TestTurnTimeoutRebookReplacesTimer(t *testing.T) {
	q, mr, clock := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.ScheduleTurnTimeout(ctx, 1, "hand-1", 0, 10*time.Second))
	clock.Advance(5 * time.Second).MustWait(ctx)
	require.NoError(t, q.ScheduleTurnTimeout(ctx, 1, "hand-1", 0, 10*time.Second))

	members, err := mr.ZMembers(delayedKey)
	require.NoError(t, err)
	require.Len(t, members, 1)

	clock.Advance(5 * time.Second).MustWait(ctx)
	moved, err := q.Promote(ctx)
	require.NoError(t, err)
	require.Zero(t, moved, "the earlier deadline must be gone")

	clock.Advance(5 * time.Second).MustWait(ctx)
	moved, err = q.Promote(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, moved)
}

func TestAutoStartKeepsFirstBooking(t *testing.T) {
	q, mr, clock := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.ScheduleAutoStart(ctx, 4, 2*time.Second))
	require.NoError(t, q.ScheduleAutoStart(ctx, 4, 30*time.Second))

	members, err := mr.ZMembers(delayedKey)
	require.NoError(t, err)
	require.Equal(t, []string{buildAutoStartID(4)}, members)

	clock.Advance(2 * time.Second).MustWait(ctx)
	moved, err := q.Promote(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, moved)
	require.False(t, mr.Exists(jobsKey))
}

func TestFailingJobIsRetriedThenDeadLettered(t *testing.T) {
	q, mr, _ := newTestQueue(t, WithConfig(Config{MaxAttempts: 3}))
	ctx := context.Background()

	_, err := q.EnqueueStartHand(ctx, 1, 9)
	require.NoError(t, err)

	rec := &recorder{err: errors.New("redis went away")}
	for i := 0; i < 5; i++ {
		_, err := q.ProcessReady(ctx, rec)
		require.NoError(t, err)
	}
	require.Len(t, rec.jobs, 3)
	require.Equal(t, 2, rec.jobs[2].Attempts)

	dead, err := mr.List(deadKey)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	var job Job
	require.NoError(t, json.Unmarshal([]byte(dead[0]), &job))
	require.Equal(t, 3, job.Attempts)
	require.False(t, mr.Exists(buildPendingKey(1)))
}

func TestRetryKeepsJobAtHead(t *testing.T) {
	q, mr, _ := newTestQueue(t)
	ctx := context.Background()

	first, err := q.EnqueueStartHand(ctx, 1, 9)
	require.NoError(t, err)
	_, err = q.EnqueueStartHand(ctx, 1, 10)
	require.NoError(t, err)

	rec := &recorder{err: errors.New("db timeout")}
	_, err = q.DrainTable(ctx, 1, rec)
	require.NoError(t, err)
	require.Len(t, rec.jobs, 1)

	pending, err := mr.List(buildPendingKey(1))
	require.NoError(t, err)
	require.Len(t, pending, 2)
	var head Job
	require.NoError(t, json.Unmarshal([]byte(pending[0]), &head))
	require.Equal(t, first, head.ID)
	require.Equal(t, 1, head.Attempts)
}

func TestPermanentFailureIsDropped(t *testing.T) {
	q, mr, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.EnqueueStartHand(ctx, 1, 9)
	require.NoError(t, err)

	rec := &recorder{err: Permanent(errors.New("NOT_YOUR_TURN"))}
	_, err = q.ProcessReady(ctx, rec)
	require.NoError(t, err)
	require.Len(t, rec.jobs, 1)
	require.False(t, mr.Exists(deadKey))
	require.False(t, mr.Exists(buildPendingKey(1)))
	require.False(t, mr.Exists(buildProcessingKey(1)))
}

func TestPanickingHandlerDoesNotStopTheLane(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.EnqueueStartHand(ctx, 1, 9)
	require.NoError(t, err)
	_, err = q.EnqueueStartHand(ctx, 1, 10)
	require.NoError(t, err)

	calls := 0
	h := HandlerFunc(func(ctx context.Context, job Job) error {
		calls++
		if calls == 1 {
			panic("boom")
		}
		return nil
	})
	n, err := q.DrainTable(ctx, 1, h)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestLockedTableIsSkipped(t *testing.T) {
	q, mr, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.EnqueueStartHand(ctx, 1, 9)
	require.NoError(t, err)
	require.NoError(t, mr.Set(buildLockKey(1), "another-worker"))

	rec := &recorder{}
	n, err := q.DrainTable(ctx, 1, rec)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, rec.jobs)

	got, err := mr.Get(buildLockKey(1))
	require.NoError(t, err)
	require.Equal(t, "another-worker", got, "a foreign lock must survive")
}

type lockStealer struct {
	recorder
	mr  *miniredis.Miniredis
	key string
}

func (l *lockStealer) Handle(ctx context.Context, job Job) error {
	if err := l.mr.Set(l.key, "another-worker"); err != nil {
		return err
	}
	return l.recorder.Handle(ctx, job)
}

func TestDrainStopsWhenLockIsLost(t *testing.T) {
	q, mr, _ := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := q.EnqueueStartHand(ctx, 1, 9)
		require.NoError(t, err)
	}

	h := &lockStealer{mr: mr, key: buildLockKey(1)}
	n, err := q.DrainTable(ctx, 1, h)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, h.jobs, 1)

	pending, err := mr.List(buildPendingKey(1))
	require.NoError(t, err)
	require.Len(t, pending, 1, "the next job stays queued for the lock owner")

	got, err := mr.Get(buildLockKey(1))
	require.NoError(t, err)
	require.Equal(t, "another-worker", got)
}

func TestInterruptedJobRunsFirst(t *testing.T) {
	q, mr, _ := newTestQueue(t)
	ctx := context.Background()

	stuck, err := json.Marshal(Job{ID: "stuck", Kind: KindAutoStart, TableID: 1})
	require.NoError(t, err)
	_, err = mr.Push(buildProcessingKey(1), string(stuck))
	require.NoError(t, err)
	_, err = q.EnqueueStartHand(ctx, 1, 9)
	require.NoError(t, err)

	rec := &recorder{}
	n, err := q.ProcessReady(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, "stuck", rec.jobs[0].ID)
	require.Equal(t, KindStartHand, rec.jobs[1].Kind)
}

func TestStats(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.ScheduleAutoStart(ctx, 1, time.Minute))
	require.NoError(t, q.ScheduleAutoStart(ctx, 2, time.Minute))
	_, err := q.EnqueueStartHand(ctx, 3, 1)
	require.NoError(t, err)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, Stats{Delayed: 2, Ready: 1}, stats)
}
