package game

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"math/rand"
	"sync"
	"time"

	"holdem-service/internal/model"
	appErr "holdem-service/pkg/errors"
	"holdem-service/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Scheduler books the delayed jobs that keep a table moving.
type Scheduler interface {
	ScheduleTurnTimeout(ctx context.Context, tableID int64, handID string, seatIndex int, delay time.Duration) error
	ScheduleAutoStart(ctx context.Context, tableID int64, delay time.Duration) error
}

type Config struct {
	TurnTimeout    time.Duration
	AutoStartDelay time.Duration
	StateTTL       time.Duration
}

func defaultConfig() Config {
	return Config{
		TurnTimeout:    15 * time.Second,
		AutoStartDelay: 2 * time.Second,
		StateTTL:       24 * time.Hour,
	}
}

// Service applies every table mutation: load, transition, persist, cache,
// schedule. Callers must serialize calls per table.
type Service struct {
	db        *gorm.DB
	cache     *TableCache
	scheduler Scheduler
	cfg       Config

	rngMu sync.Mutex
	rng   *rand.Rand
}

type Option func(*Service)

func WithConfig(cfg Config) Option {
	return func(s *Service) {
		if cfg.TurnTimeout > 0 {
			s.cfg.TurnTimeout = cfg.TurnTimeout
		}
		if cfg.AutoStartDelay > 0 {
			s.cfg.AutoStartDelay = cfg.AutoStartDelay
		}
		if cfg.StateTTL > 0 {
			s.cfg.StateTTL = cfg.StateTTL
		}
	}
}

// WithRand fixes the shuffle source.
func WithRand(rng *rand.Rand) Option {
	return func(s *Service) { s.rng = rng }
}

func NewService(db *gorm.DB, rdb *redis.Client, scheduler Scheduler, opts ...Option) *Service {
	s := &Service{
		db:        db,
		scheduler: scheduler,
		cfg:       defaultConfig(),
		rng:       rand.New(rand.NewSource(cryptoSeed())),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = NewTableCache(rdb, s.cfg.StateTTL)
	return s
}

func cryptoSeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}

// Outcome describes a committed transition for publishing.
type Outcome struct {
	TableID      int64
	HandID       string
	SeatIndex    int
	UserID       int64
	Action       ActionType
	Events       []Event
	Betting      *BettingSnapshot
	PotTotal     int64
	HandComplete bool
	Stale        bool
}

// State returns the cached table state, rebuilding it from the record
// store on a miss.
func (s *Service) State(ctx context.Context, tableID int64) (*TableState, error) {
	state, err := s.cache.Get(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if state != nil {
		return state, nil
	}

	state, err = loadTableState(ctx, s.db, tableID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Save(ctx, state, 0); err != nil {
		if errors.Is(err, appErr.ErrStateConflict) {
			return s.cache.Get(ctx, tableID)
		}
		return nil, err
	}
	return state, nil
}

func (s *Service) View(ctx context.Context, tableID, viewerID int64) (TableView, error) {
	state, err := s.State(ctx, tableID)
	if err != nil {
		return TableView{}, err
	}
	return PublicView(state, viewerID), nil
}

// ApplyPlayerAction runs one occupant action. An action addressed to a
// hand that is no longer running returns a Stale outcome and changes
// nothing.
func (s *Service) ApplyPlayerAction(ctx context.Context, tableID, userID int64, handID string, action PlayerAction) (*Outcome, error) {
	state, err := s.State(ctx, tableID)
	if err != nil {
		return nil, err
	}
	h := state.CurrentHand
	if h == nil || h.HandID != handID {
		logger.Log.Warn("stale action ignored",
			zap.Int64("tableID", tableID),
			zap.Int64("userID", userID),
			zap.String("handID", handID),
			zap.String("action", string(action.Type)),
		)
		return &Outcome{TableID: tableID, HandID: handID, UserID: userID, Action: action.Type, SeatIndex: noSeat, Stale: true}, nil
	}

	seat, ok := state.SeatOf(userID)
	if !ok {
		return nil, appErr.ErrPlayerNotInHand
	}
	if h.ToActSeatIndex != seat {
		return nil, appErr.ErrNotYourTurn
	}

	res, err := ApplyPlayerAction(state, seat, action)
	if err != nil {
		return nil, err
	}
	return s.commit(ctx, state, res, userID, action.Type)
}

// StartHand deals a new hand right away.
func (s *Service) StartHand(ctx context.Context, tableID int64) (*Outcome, error) {
	state, err := s.State(ctx, tableID)
	if err != nil {
		return nil, err
	}
	s.rngMu.Lock()
	res, err := StartHand(state, s.rng)
	s.rngMu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.commit(ctx, state, res, 0, "")
}

// CanStart checks the preconditions of StartHand without changing anything.
func (s *Service) CanStart(ctx context.Context, tableID int64) error {
	state, err := s.State(ctx, tableID)
	if err != nil {
		return err
	}
	if state.CurrentHand != nil {
		return appErr.ErrHandAlreadyActive
	}
	if state.eligibleCount() < 2 {
		return appErr.ErrNotEnoughPlayers
	}
	return nil
}

// HandleAutoStart starts the next hand when the table is idle and has
// enough players. It returns nil when there is nothing to do.
func (s *Service) HandleAutoStart(ctx context.Context, tableID int64) (*Outcome, error) {
	if err := s.CanStart(ctx, tableID); err != nil {
		if appErr.IsGameError(err) {
			logger.Log.Info("auto start skipped", zap.Int64("tableID", tableID), zap.String("reason", appErr.Code(err)))
			return nil, nil
		}
		return nil, err
	}
	return s.StartHand(ctx, tableID)
}

// HandleTurnTimeout acts for a seat whose clock ran out: CHECK when
// nothing is owed, FOLD otherwise. Timers for a hand or seat that has
// moved on are ignored.
func (s *Service) HandleTurnTimeout(ctx context.Context, tableID int64, handID string, seatIndex int) (*Outcome, error) {
	state, err := s.State(ctx, tableID)
	if err != nil {
		return nil, err
	}
	h := state.CurrentHand
	if h == nil || h.HandID != handID || h.ToActSeatIndex != seatIndex {
		logger.Log.Debug("turn timeout no longer current",
			zap.Int64("tableID", tableID),
			zap.String("handID", handID),
			zap.Int("seat", seatIndex),
		)
		return nil, nil
	}
	ps := h.player(seatIndex)
	action := PlayerAction{Type: ActionFold}
	if h.owed(ps) == 0 {
		action.Type = ActionCheck
	}

	res, err := ApplyPlayerAction(state, seatIndex, action)
	if err != nil {
		return nil, err
	}
	logger.Log.Info("turn timed out",
		zap.Int64("tableID", tableID),
		zap.String("handID", handID),
		zap.Int("seat", seatIndex),
		zap.String("action", string(action.Type)),
	)
	return s.commit(ctx, state, res, ps.UserID, action.Type)
}

// commit cascades street advancement, persists a finished hand, stores
// the new state and books the next timer. The hand is persisted before
// the cache write; persisting the same hand again only resyncs stacks.
func (s *Service) commit(ctx context.Context, before *TableState, res *Result, userID int64, action ActionType) (*Outcome, error) {
	res, err := RunToCompletion(res)
	if err != nil {
		return nil, err
	}
	after := res.State

	if res.Completed != nil {
		if err := s.PersistHand(ctx, after, res.Completed); err != nil {
			return nil, err
		}
	}
	if err := s.cache.Save(ctx, after, before.Version); err != nil {
		return nil, err
	}

	out := &Outcome{
		TableID:   after.TableID,
		SeatIndex: res.SeatIndex,
		UserID:    userID,
		Action:    action,
		Events:    res.Events,
	}
	switch {
	case res.Completed != nil:
		out.HandID = res.Completed.HandID
		out.HandComplete = true
		out.PotTotal = res.Completed.PotTotal
		if err := s.scheduler.ScheduleAutoStart(ctx, after.TableID, s.cfg.AutoStartDelay); err != nil {
			logger.Log.Error("schedule auto start failed", zap.Int64("tableID", after.TableID), zap.Error(err))
		}
	case after.CurrentHand != nil:
		h := after.CurrentHand
		snap := h.snapshot()
		out.HandID = h.HandID
		out.Betting = &snap
		out.PotTotal = h.PotTotal
		if h.ToActSeatIndex != noSeat {
			if err := s.scheduler.ScheduleTurnTimeout(ctx, after.TableID, h.HandID, h.ToActSeatIndex, s.cfg.TurnTimeout); err != nil {
				logger.Log.Error("schedule turn timeout failed",
					zap.Int64("tableID", after.TableID),
					zap.String("handID", h.HandID),
					zap.Error(err),
				)
			}
		}
	}
	return out, nil
}

// ValidateTableAccess allows only occupants of a seat at the table.
func (s *Service) ValidateTableAccess(ctx context.Context, userID, tableID int64) error {
	if userID == 0 {
		return appErr.ErrUnauthorized
	}
	if tableID == 0 {
		return appErr.ErrTableNotFound
	}

	var table model.Table
	if err := s.db.WithContext(ctx).First(&table, tableID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErr.ErrTableNotFound
		}
		return err
	}

	var seated int64
	if err := s.db.WithContext(ctx).Model(&model.Seat{}).
		Where("table_id = ? AND user_id = ?", tableID, userID).
		Count(&seated).Error; err != nil {
		return err
	}
	if seated == 0 {
		return appErr.ErrTableAccessDenied
	}
	return nil
}

// ValidateHost allows only the table host.
func (s *Service) ValidateHost(ctx context.Context, userID, tableID int64) error {
	var table model.Table
	if err := s.db.WithContext(ctx).First(&table, tableID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErr.ErrTableNotFound
		}
		return err
	}
	if table.HostUserID != userID {
		return appErr.ErrNotTableHost
	}
	return nil
}
