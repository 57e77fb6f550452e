package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fastygo/proposals/domain"
	"github.com/fastygo/proposals/repository"
)

type txManager struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewTxManager creates a TxManager running each unit of work in a
// read-committed transaction on pool.
func NewTxManager(pool *pgxpool.Pool, logger *zap.Logger) repository.TxManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &txManager{pool: pool, logger: logger}
}

func (m *txManager) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.ProposalTx) error) (err error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(err, domain.ErrProposalNotFound)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			m.logger.Error("rollback failed", zap.Error(rbErr))
		}
	}()

	if err = fn(ctx, newProposalTx(tx)); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return classify(err, domain.ErrProposalNotFound)
	}
	return nil
}

// proposalTx binds every aggregate write to one pgx transaction. Nested
// savepoints are pgx pseudo nested transactions on the same connection.
type proposalTx struct {
	offerCatalog
	tx pgx.Tx
}

var _ repository.ProposalTx = (*proposalTx)(nil)

func newProposalTx(tx pgx.Tx) *proposalTx {
	return &proposalTx{offerCatalog: offerCatalog{db: tx}, tx: tx}
}

func (t *proposalTx) Savepoint(ctx context.Context, fn func(ctx context.Context, tx repository.ProposalTx) error) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return classify(err, domain.ErrProposalNotFound)
	}
	if err := fn(ctx, newProposalTx(sp)); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}
