package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/fastygo/proposals/internal/metrics"
	"github.com/fastygo/proposals/pkg/logger"
	"github.com/fastygo/proposals/repository"
)

// SideEffects runs secondary bookkeeping whose failure must never undo or
// fail the primary proposal write.
type SideEffects struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewSideEffects(log *zap.Logger, m *metrics.Metrics) *SideEffects {
	if log == nil {
		log = zap.NewNop()
	}
	return &SideEffects{logger: log, metrics: m}
}

// InTx runs fn inside a savepoint of tx. A failure rolls back only the
// savepoint and is logged; the surrounding transaction stays usable.
func (s *SideEffects) InTx(ctx context.Context, tx repository.ProposalTx, step string, fn func(ctx context.Context, tx repository.ProposalTx) error) bool {
	err := tx.Savepoint(ctx, fn)
	if err == nil {
		return true
	}
	s.failed(ctx, step, err)
	return false
}

// After runs fn outside of any transaction and logs its failure.
func (s *SideEffects) After(ctx context.Context, step string, fn func(ctx context.Context) error) bool {
	if err := fn(ctx); err != nil {
		s.failed(ctx, step, err)
		return false
	}
	return true
}

func (s *SideEffects) failed(ctx context.Context, step string, err error) {
	s.metrics.SideEffectFailed(step)
	logger.WithRequestID(ctx, s.logger).Warn("best-effort step failed",
		zap.String("step", step),
		zap.Error(err))
}
