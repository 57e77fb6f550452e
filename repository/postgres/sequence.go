package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/proposals/domain"
	"github.com/fastygo/proposals/repository"
)

type sequenceGenerator struct {
	pool   *pgxpool.Pool
	prefix string
}

// NewSequenceGenerator draws proposal numbers from proposal_number_seq.
// Numbers consumed by rolled back transactions are not reused.
func NewSequenceGenerator(pool *pgxpool.Pool, prefix string) repository.SequenceGenerator {
	if prefix == "" {
		prefix = "PRP"
	}
	return &sequenceGenerator{pool: pool, prefix: prefix}
}

func (g *sequenceGenerator) NextProposalNumber(ctx context.Context) (string, error) {
	var n int64
	if err := g.pool.QueryRow(ctx, `SELECT nextval('proposal_number_seq')`).Scan(&n); err != nil {
		return "", classify(err, domain.ErrStorageUnavailable)
	}
	return fmt.Sprintf("%s-%06d", g.prefix, n), nil
}
