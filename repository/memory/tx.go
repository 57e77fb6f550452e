package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fastygo/proposals/domain"
	"github.com/fastygo/proposals/repository"
)

type memTx struct {
	store *Store
	st    *state
}

var _ repository.ProposalTx = (*memTx)(nil)

func (t *memTx) now() time.Time { return t.store.clock.Now() }

func (t *memTx) ActiveSpecialOffer(ctx context.Context, id string) (*domain.SpecialOffer, error) {
	return t.store.ActiveSpecialOffer(ctx, id)
}

func (t *memTx) ListActiveOffers(ctx context.Context) ([]domain.SpecialOffer, error) {
	return t.store.ListActiveOffers(ctx)
}

func (t *memTx) BundleRulesFor(ctx context.Context, serviceIDs []string) ([]domain.BundleRule, error) {
	return t.store.BundleRulesFor(ctx, serviceIDs)
}

func (t *memTx) UpsertCustomer(ctx context.Context, customer *domain.Customer) error {
	if err := t.store.failure("UpsertCustomer"); err != nil {
		return err
	}
	email := domain.NormalizeEmail(customer.Email)
	now := t.now()
	if id, ok := t.st.customerByEmail[email]; ok {
		existing := t.st.customers[id]
		existing.Name = customer.Name
		existing.Phone = customer.Phone
		existing.Address = customer.Address
		existing.UpdatedAt = now
		t.st.customers[id] = existing
		*customer = existing
		return nil
	}
	if customer.ID == "" {
		customer.ID = uuid.NewString()
	}
	customer.Email = email
	customer.CreatedAt = now
	customer.UpdatedAt = now
	t.st.customers[customer.ID] = *customer
	t.st.customerByEmail[email] = customer.ID
	return nil
}

func (t *memTx) InsertProposal(ctx context.Context, proposal *domain.Proposal) error {
	if err := t.store.failure("InsertProposal"); err != nil {
		return err
	}
	for _, p := range t.st.proposals {
		if p.Number == proposal.Number {
			return domain.NewError(domain.ErrCodeConflict, "proposal number already assigned")
		}
	}
	if proposal.ID == "" {
		proposal.ID = uuid.NewString()
	}
	now := t.now()
	proposal.CreatedAt = now
	proposal.UpdatedAt = now
	proposal.Stamp(now)
	t.st.proposals[proposal.ID] = *proposal
	return nil
}

func (t *memTx) UpdateProposal(ctx context.Context, proposal *domain.Proposal) error {
	if err := t.store.failure("UpdateProposal"); err != nil {
		return err
	}
	existing, ok := t.st.proposals[proposal.ID]
	if !ok {
		return domain.ErrProposalNotFound
	}
	if proposal.Status != "" {
		existing.Status = proposal.Status
	}
	if proposal.CustomerID != "" {
		existing.CustomerID = proposal.CustomerID
	}
	existing.Pricing = proposal.Pricing
	now := t.now()
	existing.UpdatedAt = now
	existing.Stamp(now)
	t.st.proposals[existing.ID] = existing
	*proposal = existing
	return nil
}

func (t *memTx) LockProposal(ctx context.Context, id string) (*domain.Proposal, error) {
	if err := t.store.failure("LockProposal"); err != nil {
		return nil, err
	}
	p, ok := t.st.proposals[id]
	if !ok {
		return nil, domain.ErrProposalNotFound
	}
	return &p, nil
}

func (t *memTx) SetStatus(ctx context.Context, id string, status domain.Status, at time.Time) (*domain.Proposal, error) {
	if err := t.store.failure("SetStatus"); err != nil {
		return nil, err
	}
	p, ok := t.st.proposals[id]
	if !ok {
		return nil, domain.ErrProposalNotFound
	}
	p.Status = status
	p.UpdatedAt = at
	p.Stamp(at)
	t.st.proposals[id] = p
	return &p, nil
}

func (t *memTx) ReplaceServices(ctx context.Context, proposalID string, serviceIDs []string) error {
	if err := t.store.failure("ReplaceServices"); err != nil {
		return err
	}
	if _, ok := t.st.proposals[proposalID]; !ok {
		return domain.ErrProposalNotFound
	}
	t.st.services[proposalID] = append([]string(nil), serviceIDs...)
	return nil
}

func (t *memTx) ReplaceProducts(ctx context.Context, proposalID string, products []domain.ProductDetail) error {
	if err := t.store.failure("ReplaceProducts"); err != nil {
		return err
	}
	if _, ok := t.st.proposals[proposalID]; !ok {
		return domain.ErrProposalNotFound
	}
	rows := make([]domain.ProductDetail, 0, len(products))
	for _, p := range products {
		p.ProposalID = proposalID
		rows = append(rows, p)
	}
	t.st.products[proposalID] = rows
	return nil
}

func (t *memTx) ReplaceAdders(ctx context.Context, proposalID string, adders []domain.CustomPricingAdder) error {
	if err := t.store.failure("ReplaceAdders"); err != nil {
		return err
	}
	if _, ok := t.st.proposals[proposalID]; !ok {
		return domain.ErrProposalNotFound
	}
	rows := make([]domain.CustomPricingAdder, 0, len(adders))
	for i, a := range adders {
		a.ProposalID = proposalID
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.Position = i
		rows = append(rows, a)
	}
	t.st.adders[proposalID] = rows
	return nil
}

func (t *memTx) ListServiceIDs(ctx context.Context, proposalID string) ([]string, error) {
	if err := t.store.failure("ListServiceIDs"); err != nil {
		return nil, err
	}
	return append([]string(nil), t.st.services[proposalID]...), nil
}

func (t *memTx) UpsertAppliedOffer(ctx context.Context, offer *domain.AppliedOffer, overwrite bool) error {
	if err := t.store.failure("UpsertAppliedOffer"); err != nil {
		return err
	}
	if _, ok := t.st.proposals[offer.ProposalID]; !ok {
		return domain.ErrProposalNotFound
	}
	now := t.now()
	for id, existing := range t.st.applied {
		if existing.ProposalID != offer.ProposalID || existing.OfferType != offer.OfferType ||
			existing.OfferID != offer.OfferID || existing.Status != domain.AppliedOfferActive {
			continue
		}
		if !overwrite {
			*offer = existing
			return nil
		}
		offer.ID = id
		offer.CreatedAt = existing.CreatedAt
		offer.UpdatedAt = now
		offer.Status = domain.AppliedOfferActive
		t.st.applied[id] = *offer
		return nil
	}
	if offer.ID == "" {
		offer.ID = uuid.NewString()
	}
	offer.Status = domain.AppliedOfferActive
	offer.CreatedAt = now
	offer.UpdatedAt = now
	t.st.applied[offer.ID] = *offer
	return nil
}

func (t *memTx) WithdrawAppliedOffers(ctx context.Context, proposalID string, offerType domain.OfferType, keep []string) error {
	if err := t.store.failure("WithdrawAppliedOffers"); err != nil {
		return err
	}
	keepSet := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}
	now := t.now()
	for id, o := range t.st.applied {
		if o.ProposalID != proposalID || o.OfferType != offerType || o.Status != domain.AppliedOfferActive {
			continue
		}
		if _, ok := keepSet[o.OfferID]; ok {
			continue
		}
		o.Status = domain.AppliedOfferWithdrawn
		o.UpdatedAt = now
		t.st.applied[id] = o
	}
	return nil
}

func (t *memTx) ListAppliedOffers(ctx context.Context, proposalID string) ([]domain.AppliedOffer, error) {
	return sortedApplied(t.st.applied, proposalID), nil
}

func (t *memTx) AppendActivity(ctx context.Context, entry domain.ActivityEntry) error {
	if err := t.store.failure("AppendActivity"); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = t.now()
	}
	t.st.activity = append(t.st.activity, entry)
	return nil
}

func (t *memTx) Savepoint(ctx context.Context, fn func(ctx context.Context, tx repository.ProposalTx) error) error {
	saved := t.st.clone()
	if err := fn(ctx, t); err != nil {
		t.st = saved
		return err
	}
	return nil
}
