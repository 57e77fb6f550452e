package repository

import (
	"context"
	"time"

	"github.com/fastygo/proposals/domain"
)

// ProposalTx exposes every write the engine performs on the proposal aggregate.
// Implementations bind it to a single database transaction.
type ProposalTx interface {
	OfferCatalog

	UpsertCustomer(ctx context.Context, customer *domain.Customer) error
	InsertProposal(ctx context.Context, proposal *domain.Proposal) error
	// UpdateProposal writes the header and refreshes proposal from the stored row.
	// An empty Status or CustomerID keeps the stored value.
	UpdateProposal(ctx context.Context, proposal *domain.Proposal) error
	// LockProposal loads the header and holds a row lock until the transaction ends.
	LockProposal(ctx context.Context, id string) (*domain.Proposal, error)
	// SetStatus moves the proposal to status and stamps the matching timestamp if unset.
	SetStatus(ctx context.Context, id string, status domain.Status, at time.Time) (*domain.Proposal, error)

	ReplaceServices(ctx context.Context, proposalID string, serviceIDs []string) error
	ReplaceProducts(ctx context.Context, proposalID string, products []domain.ProductDetail) error
	ReplaceAdders(ctx context.Context, proposalID string, adders []domain.CustomPricingAdder) error
	ListServiceIDs(ctx context.Context, proposalID string) ([]string, error)

	// UpsertAppliedOffer inserts the row or, on an active (proposal, type, offer)
	// conflict, overwrites it when overwrite is set and leaves it untouched otherwise.
	UpsertAppliedOffer(ctx context.Context, offer *domain.AppliedOffer, overwrite bool) error
	// WithdrawAppliedOffers marks active offers of offerType not listed in keep as withdrawn.
	WithdrawAppliedOffers(ctx context.Context, proposalID string, offerType domain.OfferType, keep []string) error
	ListAppliedOffers(ctx context.Context, proposalID string) ([]domain.AppliedOffer, error)

	AppendActivity(ctx context.Context, entry domain.ActivityEntry) error

	// Savepoint runs fn in a nested unit of work; an error from fn undoes only
	// the nested work and is returned to the caller.
	Savepoint(ctx context.Context, fn func(ctx context.Context, tx ProposalTx) error) error
}

// TxManager runs fn atomically: everything fn wrote is committed when it
// returns nil and rolled back otherwise.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx ProposalTx) error) error
}

// SequenceGenerator hands out human-readable proposal numbers.
type SequenceGenerator interface {
	NextProposalNumber(ctx context.Context) (string, error)
}

// AppliedOfferExpirer flips active applied offers past their expiry.
type AppliedOfferExpirer interface {
	ExpireAppliedOffers(ctx context.Context, now time.Time) (int64, error)
}
