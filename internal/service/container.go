package service

import (
	"context"

	"holdem-service/internal/config"
	"holdem-service/internal/middleware"
	"holdem-service/internal/service/game"
	"holdem-service/internal/service/notify"
	"holdem-service/internal/service/queue"
	"holdem-service/internal/worker"
	"holdem-service/internal/ws"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	RoleAPI    = "api"
	RoleWorker = "worker"
	RoleAll    = "all"
)

type Container struct {
	Game    *game.Service
	Queue   *queue.Queue
	Notify  *notify.Publisher
	Limiter *middleware.RateLimiter
	Hub     *ws.Hub
	Worker  *worker.Dispatcher
}

func NewContainer(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Container {
	q := queue.New(rdb, queue.WithConfig(queue.Config{
		Workers:         cfg.Queue.Workers,
		PollInterval:    cfg.Queue.PollInterval,
		LockTTL:         cfg.Queue.LockTTL,
		MaxAttempts:     cfg.Queue.MaxAttempts,
		MonitorInterval: cfg.Queue.MonitorInterval,
		PromoteBatch:    cfg.Queue.PromoteBatch,
	}))
	gameSvc := game.NewService(db, rdb, q, game.WithConfig(game.Config{
		TurnTimeout:    cfg.Game.TurnTimeout,
		AutoStartDelay: cfg.Game.AutoStartDelay,
		StateTTL:       cfg.Game.StateTTL,
	}))
	pub := notify.NewPublisher(rdb)
	limiter := middleware.NewRateLimiter(rdb, middleware.RateLimitConfig{
		ActionLimit:  cfg.RateLimit.ActionLimit,
		ActionWindow: cfg.RateLimit.ActionWindow,
		APILimit:     cfg.RateLimit.APILimit,
		APIWindow:    cfg.RateLimit.APIWindow,
	}, nil)

	return &Container{
		Game:    gameSvc,
		Queue:   q,
		Notify:  pub,
		Limiter: limiter,
		Hub:     ws.NewHub(pub),
		Worker:  worker.NewDispatcher(gameSvc, pub),
	}
}

// Start runs the background loops of the given role until ctx is done.
// API nodes fan updates out to sockets; worker nodes drain the queue.
func (c *Container) Start(ctx context.Context, role string) error {
	g, ctx := errgroup.WithContext(ctx)
	if role == RoleAPI || role == RoleAll || role == "" {
		g.Go(func() error { return c.Hub.Run(ctx) })
	}
	if role == RoleWorker || role == RoleAll || role == "" {
		g.Go(func() error { return c.Queue.Run(ctx, c.Worker) })
	}
	return g.Wait()
}
