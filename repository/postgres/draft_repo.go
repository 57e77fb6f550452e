package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/proposals/domain"
	"github.com/fastygo/proposals/repository"
)

// DraftRepository answers draft lookups two ways: through the
// find_recent_draft database function and through a plain query used when
// the function is missing or failing.
type DraftRepository struct {
	pool *pgxpool.Pool
}

var _ repository.DraftBindingResolver = (*DraftRepository)(nil)

func NewDraftRepository(pool *pgxpool.Pool) *DraftRepository {
	return &DraftRepository{pool: pool}
}

// Function returns the primary lookup stage.
func (r *DraftRepository) Function() repository.DraftLookup {
	return draftLookupFunc(r.findViaFunction)
}

// Query returns the fallback lookup stage.
func (r *DraftRepository) Query() repository.DraftLookup {
	return draftLookupFunc(r.findViaQuery)
}

type draftLookupFunc func(ctx context.Context, key domain.DraftKey, since time.Time) (*domain.DraftRef, error)

func (f draftLookupFunc) FindRecentDraft(ctx context.Context, key domain.DraftKey, since time.Time) (*domain.DraftRef, error) {
	return f(ctx, key, since)
}

func (r *DraftRepository) findViaFunction(ctx context.Context, key domain.DraftKey, since time.Time) (*domain.DraftRef, error) {
	row := r.pool.QueryRow(ctx, `
	SELECT id, proposal_number, updated_at FROM find_recent_draft($1, $2, $3)
	`, key.Email, key.ActorID, since)
	return scanDraftRef(row)
}

func (r *DraftRepository) findViaQuery(ctx context.Context, key domain.DraftKey, since time.Time) (*domain.DraftRef, error) {
	row := r.pool.QueryRow(ctx, `
	SELECT p.id, p.proposal_number, p.updated_at
	FROM proposals p
	JOIN customers c ON c.id = p.customer_id
	WHERE c.email = $1
	  AND p.owner_id = $2
	  AND p.status IN ('draft_in_progress', 'draft_complete')
	  AND p.updated_at >= $3
	ORDER BY p.updated_at DESC
	LIMIT 1
	`, key.Email, key.ActorID, since)
	return scanDraftRef(row)
}

func (r *DraftRepository) DraftBindingFor(ctx context.Context, proposalID string) (domain.DraftBinding, error) {
	if _, err := uuid.Parse(proposalID); err != nil {
		return domain.DraftBinding{}, domain.ErrProposalNotFound
	}
	var (
		b      domain.DraftBinding
		status string
	)
	err := r.pool.QueryRow(ctx, `
	SELECT c.email, p.owner_id, p.status
	FROM proposals p
	JOIN customers c ON c.id = p.customer_id
	WHERE p.id = $1
	`, proposalID).Scan(&b.Key.Email, &b.Key.ActorID, &status)
	if err != nil {
		return domain.DraftBinding{}, classify(err, domain.ErrProposalNotFound)
	}
	b.Status = domain.Status(status)
	return b, nil
}

func scanDraftRef(row scanner) (*domain.DraftRef, error) {
	var ref domain.DraftRef
	if err := row.Scan(&ref.ID, &ref.ProposalNumber, &ref.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classify(err, domain.ErrProposalNotFound)
	}
	return &ref, nil
}
