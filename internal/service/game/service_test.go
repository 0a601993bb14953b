package game_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"holdem-service/internal/model"
	"holdem-service/internal/service/game"
	appErr "holdem-service/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type timeoutCall struct {
	TableID int64
	HandID  string
	Seat    int
	Delay   time.Duration
}

type fakeScheduler struct {
	mu         sync.Mutex
	timeouts   []timeoutCall
	autoStarts []time.Duration
}

func (f *fakeScheduler) ScheduleTurnTimeout(ctx context.Context, tableID int64, handID string, seatIndex int, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeouts = append(f.timeouts, timeoutCall{TableID: tableID, HandID: handID, Seat: seatIndex, Delay: delay})
	return nil
}

func (f *fakeScheduler) ScheduleAutoStart(ctx context.Context, tableID int64, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.autoStarts = append(f.autoStarts, delay)
	return nil
}

type fixture struct {
	svc   *game.Service
	db    *gorm.DB
	mr    *miniredis.Miniredis
	sched *fakeScheduler
}

const tableID int64 = 1

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	if err := db.Create(&model.Table{ID: tableID, Name: "test", HostUserID: 1, MaxSeats: 6, SmallBlind: 5, BigBlind: 10}).Error; err != nil {
		t.Fatalf("seed table failed: %v", err)
	}
	users := []model.User{{ID: 1, DisplayName: "alice"}, {ID: 2, DisplayName: "bob"}, {ID: 3, DisplayName: "carol"}}
	if err := db.Create(&users).Error; err != nil {
		t.Fatalf("seed users failed: %v", err)
	}
	u1, u2 := int64(1), int64(2)
	seats := []model.Seat{
		{TableID: tableID, SeatIndex: 0, UserID: &u1, Stack: 1000},
		{TableID: tableID, SeatIndex: 1, UserID: &u2, Stack: 1000},
	}
	if err := db.Create(&seats).Error; err != nil {
		t.Fatalf("seed seats failed: %v", err)
	}

	sched := &fakeScheduler{}
	svc := game.NewService(db, rdb, sched, game.WithRand(rand.New(rand.NewSource(1))))
	return &fixture{svc: svc, db: db, mr: mr, sched: sched}
}

func (f *fixture) start(t *testing.T) *game.Outcome {
	t.Helper()
	out, err := f.svc.StartHand(context.Background(), tableID)
	if err != nil {
		t.Fatalf("start hand failed: %v", err)
	}
	return out
}

func TestStartHandCachesStateAndBooksTimer(t *testing.T) {
	f := newFixture(t)
	out := f.start(t)

	if out.HandID == "" || out.Betting == nil {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Betting.ToActSeatIndex != 0 {
		t.Fatalf("expected dealer to act first heads-up, got seat %d", out.Betting.ToActSeatIndex)
	}
	if len(f.sched.timeouts) != 1 {
		t.Fatalf("expected one turn timer, got %d", len(f.sched.timeouts))
	}
	timer := f.sched.timeouts[0]
	if timer.HandID != out.HandID || timer.Seat != 0 || timer.Delay != 15*time.Second {
		t.Fatalf("unexpected timer: %+v", timer)
	}

	state, err := f.svc.State(context.Background(), tableID)
	if err != nil {
		t.Fatalf("load state failed: %v", err)
	}
	if state.Version != 2 {
		t.Fatalf("expected version 2, got %d", state.Version)
	}
	if state.CurrentHand == nil || state.CurrentHand.HandID != out.HandID {
		t.Fatalf("cached hand mismatch")
	}
	if state.Seats[0].DisplayName != "alice" {
		t.Fatalf("expected display names from the store, got %q", state.Seats[0].DisplayName)
	}
}

func TestStaleActionLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	before, err := f.mr.Get("table:state:1")
	if err != nil {
		t.Fatalf("read cache failed: %v", err)
	}

	out, err := f.svc.ApplyPlayerAction(context.Background(), tableID, 1, "some-old-hand", game.PlayerAction{Type: game.ActionFold})
	if err != nil {
		t.Fatalf("stale action should not error: %v", err)
	}
	if !out.Stale {
		t.Fatalf("expected stale outcome")
	}

	after, err := f.mr.Get("table:state:1")
	if err != nil {
		t.Fatalf("read cache failed: %v", err)
	}
	if before != after {
		t.Fatalf("stale action modified cached state")
	}
	if len(f.sched.timeouts) != 1 {
		t.Fatalf("stale action must not book timers")
	}
}

func TestActionRejections(t *testing.T) {
	f := newFixture(t)
	out := f.start(t)
	ctx := context.Background()

	_, err := f.svc.ApplyPlayerAction(ctx, tableID, 2, out.HandID, game.PlayerAction{Type: game.ActionCheck})
	if !errors.Is(err, appErr.ErrNotYourTurn) {
		t.Fatalf("expected NOT_YOUR_TURN, got %v", err)
	}
	_, err = f.svc.ApplyPlayerAction(ctx, tableID, 3, out.HandID, game.PlayerAction{Type: game.ActionCheck})
	if !errors.Is(err, appErr.ErrPlayerNotInHand) {
		t.Fatalf("expected PLAYER_NOT_IN_HAND, got %v", err)
	}
	_, err = f.svc.ApplyPlayerAction(ctx, tableID, 1, out.HandID, game.PlayerAction{Type: game.ActionCheck})
	if !errors.Is(err, appErr.ErrCannotCheck) {
		t.Fatalf("expected CANNOT_CHECK_FACING_BET, got %v", err)
	}
}

func TestFoldCompletesAndPersistsHand(t *testing.T) {
	f := newFixture(t)
	started := f.start(t)
	ctx := context.Background()

	out, err := f.svc.ApplyPlayerAction(ctx, tableID, 1, started.HandID, game.PlayerAction{Type: game.ActionFold})
	if err != nil {
		t.Fatalf("fold failed: %v", err)
	}
	if !out.HandComplete || out.PotTotal != 15 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	var sawResult bool
	for _, ev := range out.Events {
		if res, ok := ev.(game.HandResultEvent); ok {
			sawResult = true
			if len(res.Winners) != 1 || res.Winners[0].SeatIndex != 1 || res.Winners[0].Amount != 15 {
				t.Fatalf("unexpected winners: %+v", res.Winners)
			}
		}
	}
	if !sawResult {
		t.Fatalf("expected a HAND_RESULT event")
	}
	if len(f.sched.autoStarts) != 1 || f.sched.autoStarts[0] != 2*time.Second {
		t.Fatalf("expected one auto start in 2s, got %v", f.sched.autoStarts)
	}

	var hand model.Hand
	if err := f.db.Where("table_id = ? AND hand_number = ?", tableID, 1).First(&hand).Error; err != nil {
		t.Fatalf("hand row missing: %v", err)
	}
	if hand.HandUID != started.HandID || hand.PotTotal != 15 || hand.Showdown {
		t.Fatalf("unexpected hand row: %+v", hand)
	}

	var players []model.PlayerHand
	if err := f.db.Where("hand_id = ?", hand.ID).Order("seat_index asc").Find(&players).Error; err != nil {
		t.Fatalf("load player hands failed: %v", err)
	}
	if len(players) != 2 {
		t.Fatalf("expected 2 player rows, got %d", len(players))
	}
	if players[0].NetChips != -5 || players[1].NetChips != 5 {
		t.Fatalf("unexpected net chips: %d / %d", players[0].NetChips, players[1].NetChips)
	}
	if players[0].VPIP || players[1].VPIP || players[0].SawShowdown {
		t.Fatalf("fold preflop is neither VPIP nor showdown: %+v", players)
	}

	var actions int64
	f.db.Model(&model.HandAction{}).Where("hand_id = ?", hand.ID).Count(&actions)
	if actions != 3 {
		t.Fatalf("expected blinds and fold to be logged, got %d", actions)
	}

	var seats []model.Seat
	f.db.Where("table_id = ?", tableID).Order("seat_index asc").Find(&seats)
	if seats[0].Stack != 995 || seats[1].Stack != 1005 {
		t.Fatalf("stacks not resynced: %d / %d", seats[0].Stack, seats[1].Stack)
	}
}

func TestPersistHandTwiceOnlyResyncs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	state := &game.TableState{
		TableID:             tableID,
		Config:              game.TableConfig{MaxSeats: 2, SmallBlind: 5, BigBlind: 10},
		Seats:               []game.Seat{{SeatIndex: 0, UserID: 1, Stack: 1000}, {SeatIndex: 1, UserID: 2, Stack: 1000}},
		LastDealerSeatIndex: -1,
	}
	res, err := game.StartHand(state, rand.New(rand.NewSource(9)))
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	res, err = game.ApplyPlayerAction(res.State, 0, game.PlayerAction{Type: game.ActionFold})
	if err != nil {
		t.Fatalf("fold failed: %v", err)
	}
	res, err = game.RunToCompletion(res)
	if err != nil || res.Completed == nil {
		t.Fatalf("hand did not complete: %v", err)
	}

	if err := f.svc.PersistHand(ctx, res.State, res.Completed); err != nil {
		t.Fatalf("first persist failed: %v", err)
	}
	res.State.Seats[0].Stack = 777
	if err := f.svc.PersistHand(ctx, res.State, res.Completed); err != nil {
		t.Fatalf("duplicate persist should succeed: %v", err)
	}

	var hands, players int64
	f.db.Model(&model.Hand{}).Where("table_id = ?", tableID).Count(&hands)
	f.db.Model(&model.PlayerHand{}).Where("table_id = ?", tableID).Count(&players)
	if hands != 1 || players != 2 {
		t.Fatalf("duplicate wrote rows: hands=%d players=%d", hands, players)
	}
	var seat model.Seat
	f.db.Where("table_id = ? AND seat_index = ?", tableID, 0).First(&seat)
	if seat.Stack != 777 {
		t.Fatalf("expected stack resync to 777, got %d", seat.Stack)
	}
}

func TestTurnTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	started := f.start(t)

	out, err := f.svc.HandleTurnTimeout(ctx, tableID, "other-hand", 0)
	if err != nil || out != nil {
		t.Fatalf("expected stale timer to be ignored, got %+v / %v", out, err)
	}
	out, err = f.svc.HandleTurnTimeout(ctx, tableID, started.HandID, 1)
	if err != nil || out != nil {
		t.Fatalf("expected timer for a seat not to act to be ignored, got %+v / %v", out, err)
	}

	// small blind calls, big blind times out with nothing owed
	if _, err := f.svc.ApplyPlayerAction(ctx, tableID, 1, started.HandID, game.PlayerAction{Type: game.ActionCall}); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	out, err = f.svc.HandleTurnTimeout(ctx, tableID, started.HandID, 1)
	if err != nil {
		t.Fatalf("timeout failed: %v", err)
	}
	if out == nil || out.Action != game.ActionCheck || out.UserID != 2 {
		t.Fatalf("expected synthesized CHECK, got %+v", out)
	}
	if out.Betting == nil || out.Betting.Street != game.StreetFlop {
		t.Fatalf("expected flop after timeout check, got %+v", out.Betting)
	}

	// on the flop the big blind acts first; bet so the dealer owes chips
	if _, err := f.svc.ApplyPlayerAction(ctx, tableID, 2, started.HandID, game.PlayerAction{Type: game.ActionBet, Amount: 20}); err != nil {
		t.Fatalf("bet failed: %v", err)
	}
	out, err = f.svc.HandleTurnTimeout(ctx, tableID, started.HandID, 0)
	if err != nil {
		t.Fatalf("timeout failed: %v", err)
	}
	if out.Action != game.ActionFold || !out.HandComplete {
		t.Fatalf("expected synthesized FOLD ending the hand, got %+v", out)
	}
}

func TestAutoStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	started := f.start(t)

	out, err := f.svc.HandleAutoStart(ctx, tableID)
	if err != nil || out != nil {
		t.Fatalf("auto start during a hand must be a no-op: %+v / %v", out, err)
	}

	if _, err := f.svc.ApplyPlayerAction(ctx, tableID, 1, started.HandID, game.PlayerAction{Type: game.ActionFold}); err != nil {
		t.Fatalf("fold failed: %v", err)
	}
	out, err = f.svc.HandleAutoStart(ctx, tableID)
	if err != nil || out == nil {
		t.Fatalf("expected a new hand: %+v / %v", out, err)
	}

	state, err := f.svc.State(ctx, tableID)
	if err != nil {
		t.Fatalf("load state failed: %v", err)
	}
	h := state.CurrentHand
	if h.HandNumber != 2 || h.DealerSeatIndex != 1 {
		t.Fatalf("expected hand 2 with button on seat 1, got %d / %d", h.HandNumber, h.DealerSeatIndex)
	}
}

func TestAutoStartNeedsTwoPlayers(t *testing.T) {
	f := newFixture(t)
	f.db.Model(&model.Seat{}).Where("table_id = ? AND seat_index = ?", tableID, 1).Update("is_sitting_out", true)

	out, err := f.svc.HandleAutoStart(context.Background(), tableID)
	if err != nil || out != nil {
		t.Fatalf("expected no hand with one eligible player: %+v / %v", out, err)
	}
	if err := f.svc.CanStart(context.Background(), tableID); !errors.Is(err, appErr.ErrNotEnoughPlayers) {
		t.Fatalf("expected NOT_ENOUGH_PLAYERS, got %v", err)
	}
}

func TestRebuildContinuesFromLastHand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	started := f.start(t)
	if _, err := f.svc.ApplyPlayerAction(ctx, tableID, 1, started.HandID, game.PlayerAction{Type: game.ActionFold}); err != nil {
		t.Fatalf("fold failed: %v", err)
	}

	f.mr.Del("table:state:1")
	state, err := f.svc.State(ctx, tableID)
	if err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	if state.HandNumber != 1 || state.LastDealerSeatIndex != 0 {
		t.Fatalf("expected numbering to continue, got hand %d dealer %d", state.HandNumber, state.LastDealerSeatIndex)
	}
	if state.Seats[0].Stack != 995 || state.Seats[1].Stack != 1005 {
		t.Fatalf("expected persisted stacks, got %d / %d", state.Seats[0].Stack, state.Seats[1].Stack)
	}
}

func TestUnknownTable(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.State(context.Background(), 404)
	if !errors.Is(err, appErr.ErrTableStateNotFound) || !errors.Is(err, appErr.ErrTableNotFound) {
		t.Fatalf("expected table state not found, got %v", err)
	}
}

func TestTableAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.svc.ValidateTableAccess(ctx, 1, tableID); err != nil {
		t.Fatalf("seated user denied: %v", err)
	}
	if err := f.svc.ValidateTableAccess(ctx, 3, tableID); !errors.Is(err, appErr.ErrTableAccessDenied) {
		t.Fatalf("expected access denied, got %v", err)
	}
	if err := f.svc.ValidateHost(ctx, 2, tableID); !errors.Is(err, appErr.ErrNotTableHost) {
		t.Fatalf("expected not host, got %v", err)
	}
}
