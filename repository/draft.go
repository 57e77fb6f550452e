package repository

import (
	"context"
	"time"

	"github.com/fastygo/proposals/domain"
)

// DraftLookup finds the most recently updated draft for key updated at or after since.
// It returns nil, nil when there is none.
type DraftLookup interface {
	FindRecentDraft(ctx context.Context, key domain.DraftKey, since time.Time) (*domain.DraftRef, error)
}

// DraftCache remembers recent draft references close to the API.
type DraftCache interface {
	DraftLookup
	Remember(ctx context.Context, key domain.DraftKey, ref domain.DraftRef) error
	Forget(ctx context.Context, key domain.DraftKey) error
}

// DraftBindingResolver reads the stored draft binding of a proposal.
type DraftBindingResolver interface {
	DraftBindingFor(ctx context.Context, proposalID string) (domain.DraftBinding, error)
}
