package services

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/proposals/internal/metrics"
	"github.com/fastygo/proposals/pkg/clock"
	"github.com/fastygo/proposals/repository"
)

// ConnectionHealth abstracts the connection monitor functionality.
type ConnectionHealth interface {
	IsOnline() bool
}

// SweeperConfig controls how often applied offers are checked for expiry.
type SweeperConfig struct {
	// Spec is a cron expression such as "@every 5m".
	Spec    string
	Timeout time.Duration
}

// OfferSweeper marks active applied offers past their expiry as expired.
type OfferSweeper struct {
	expirer repository.AppliedOfferExpirer
	monitor ConnectionHealth
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *zap.Logger
	cron    *cron.Cron
}

func NewOfferSweeper(
	expirer repository.AppliedOfferExpirer,
	monitor ConnectionHealth,
	c clock.Clock,
	m *metrics.Metrics,
	logger *zap.Logger,
	cfg SweeperConfig,
) (*OfferSweeper, error) {
	if cfg.Spec == "" {
		cfg.Spec = "@every 5m"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &OfferSweeper{
		expirer: expirer,
		monitor: monitor,
		clock:   c,
		metrics: m,
		logger:  logger,
		cron:    cron.New(),
	}

	if _, err := s.cron.AddFunc(cfg.Spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("offer sweep failed", zap.Error(err))
		}
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// Start launches the cron scheduler.
func (s *OfferSweeper) Start() {
	if s == nil || s.cron == nil {
		return
	}
	s.cron.Start()
	s.logger.Info("offer sweeper started")
}

// Stop gracefully stops the scheduler.
func (s *OfferSweeper) Stop(ctx context.Context) {
	if s == nil || s.cron == nil {
		return
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	s.logger.Info("offer sweeper stopped")
}

// Sweep expires overdue offers synchronously and returns how many changed.
func (s *OfferSweeper) Sweep(ctx context.Context) (int64, error) {
	if s == nil || s.expirer == nil {
		return 0, nil
	}
	if s.monitor != nil && !s.monitor.IsOnline() {
		s.logger.Debug("skipping offer sweep (offline)")
		return 0, nil
	}

	n, err := s.expirer.ExpireAppliedOffers(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.metrics.OffersExpired(n)
		s.logger.Info("applied offers expired", zap.Int64("count", n))
	}
	return n, nil
}
