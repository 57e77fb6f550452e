// Package memory provides a transactional in-memory implementation of the
// repository interfaces. Transactions are serialized and work on a private
// copy of the data that replaces the committed copy only on success.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fastygo/proposals/domain"
	"github.com/fastygo/proposals/pkg/clock"
	"github.com/fastygo/proposals/repository"
)

type state struct {
	customers       map[string]domain.Customer
	customerByEmail map[string]string
	proposals       map[string]domain.Proposal
	services        map[string][]string
	products        map[string][]domain.ProductDetail
	adders          map[string][]domain.CustomPricingAdder
	applied         map[string]domain.AppliedOffer
	activity        []domain.ActivityEntry
}

func newState() *state {
	return &state{
		customers:       make(map[string]domain.Customer),
		customerByEmail: make(map[string]string),
		proposals:       make(map[string]domain.Proposal),
		services:        make(map[string][]string),
		products:        make(map[string][]domain.ProductDetail),
		adders:          make(map[string][]domain.CustomPricingAdder),
		applied:         make(map[string]domain.AppliedOffer),
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.customers {
		out.customers[k] = v
	}
	for k, v := range s.customerByEmail {
		out.customerByEmail[k] = v
	}
	for k, v := range s.proposals {
		out.proposals[k] = v
	}
	for k, v := range s.services {
		out.services[k] = append([]string(nil), v...)
	}
	for k, v := range s.products {
		out.products[k] = append([]domain.ProductDetail(nil), v...)
	}
	for k, v := range s.adders {
		out.adders[k] = append([]domain.CustomPricingAdder(nil), v...)
	}
	for k, v := range s.applied {
		out.applied[k] = v
	}
	out.activity = append([]domain.ActivityEntry(nil), s.activity...)
	return out
}

// Store is the committed state plus the offer catalog.
type Store struct {
	mu    sync.Mutex
	data  *state
	clock clock.Clock

	catalogMu sync.RWMutex
	offers    map[string]domain.SpecialOffer
	bundles   map[string]domain.BundleRule

	seqMu  sync.Mutex
	seq    int64
	prefix string

	failMu   sync.Mutex
	failures map[string]error
}

// New creates an empty store. A nil clock uses wall time.
func New(c clock.Clock) *Store {
	if c == nil {
		c = clock.Real()
	}
	return &Store{
		data:     newState(),
		clock:    c,
		offers:   make(map[string]domain.SpecialOffer),
		bundles:  make(map[string]domain.BundleRule),
		prefix:   "PRP",
		seq:      1000,
		failures: make(map[string]error),
	}
}

var (
	_ repository.TxManager            = (*Store)(nil)
	_ repository.OfferCatalog         = (*Store)(nil)
	_ repository.DraftLookup          = (*Store)(nil)
	_ repository.DraftBindingResolver = (*Store)(nil)
	_ repository.SequenceGenerator    = (*Store)(nil)
	_ repository.AppliedOfferExpirer  = (*Store)(nil)
)

// FailOn makes the next call of operation op return err.
func (s *Store) FailOn(op string, err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failures[op] = err
}

func (s *Store) failure(op string) error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	err, ok := s.failures[op]
	if !ok {
		return nil
	}
	delete(s.failures, op)
	return err
}

// WithinTx implements repository.TxManager.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.ProposalTx) error) error {
	if err := s.failure("Begin"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, st: s.data.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = tx.st
	return nil
}

// NextProposalNumber implements repository.SequenceGenerator.
func (s *Store) NextProposalNumber(ctx context.Context) (string, error) {
	if err := s.failure("NextProposalNumber"); err != nil {
		return "", err
	}
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	s.seq++
	return fmt.Sprintf("%s-%06d", s.prefix, s.seq), nil
}

// FindRecentDraft implements repository.DraftLookup over committed data.
func (s *Store) FindRecentDraft(ctx context.Context, key domain.DraftKey, since time.Time) (*domain.DraftRef, error) {
	if err := s.failure("FindRecentDraft"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	customerID, ok := s.data.customerByEmail[domain.NormalizeEmail(key.Email)]
	if !ok {
		return nil, nil
	}
	var best *domain.Proposal
	for _, p := range s.data.proposals {
		p := p
		if p.CustomerID != customerID || p.OwnerID != key.ActorID || !p.Status.IsDraft() {
			continue
		}
		if p.UpdatedAt.Before(since) {
			continue
		}
		if best == nil || p.UpdatedAt.After(best.UpdatedAt) {
			best = &p
		}
	}
	if best == nil {
		return nil, nil
	}
	return &domain.DraftRef{ID: best.ID, ProposalNumber: best.Number, UpdatedAt: best.UpdatedAt}, nil
}

// DraftBindingFor implements repository.DraftBindingResolver.
func (s *Store) DraftBindingFor(ctx context.Context, proposalID string) (domain.DraftBinding, error) {
	if err := s.failure("DraftBindingFor"); err != nil {
		return domain.DraftBinding{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.proposals[proposalID]
	if !ok {
		return domain.DraftBinding{}, domain.ErrProposalNotFound
	}
	c := s.data.customers[p.CustomerID]
	return domain.DraftBinding{
		Key:    domain.DraftKey{Email: c.Email, ActorID: p.OwnerID},
		Status: p.Status,
	}, nil
}

// ExpireAppliedOffers implements repository.AppliedOfferExpirer.
func (s *Store) ExpireAppliedOffers(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, o := range s.data.applied {
		if o.Status == domain.AppliedOfferActive && o.ExpiresAt.Before(now) {
			o.Status = domain.AppliedOfferExpired
			o.UpdatedAt = now
			s.data.applied[id] = o
			n++
		}
	}
	return n, nil
}

// Proposal returns a committed proposal header.
func (s *Store) Proposal(id string) (domain.Proposal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.proposals[id]
	return p, ok
}

// ProposalCount returns the number of committed proposals.
func (s *Store) ProposalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.proposals)
}

// CustomerByEmail returns the committed customer for email.
func (s *Store) CustomerByEmail(email string) (domain.Customer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.data.customerByEmail[domain.NormalizeEmail(email)]
	if !ok {
		return domain.Customer{}, false
	}
	return s.data.customers[id], true
}

// CustomerCount returns the number of committed customers.
func (s *Store) CustomerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.customers)
}

// Services returns the committed service ids of a proposal.
func (s *Store) Services(proposalID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.data.services[proposalID]...)
}

// Products returns the committed product rows of a proposal.
func (s *Store) Products(proposalID string) []domain.ProductDetail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ProductDetail(nil), s.data.products[proposalID]...)
}

// Adders returns the committed custom adders of a proposal.
func (s *Store) Adders(proposalID string) []domain.CustomPricingAdder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CustomPricingAdder(nil), s.data.adders[proposalID]...)
}

// AppliedOffers returns every committed applied offer of a proposal, ordered by offer id.
func (s *Store) AppliedOffers(proposalID string) []domain.AppliedOffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedApplied(s.data.applied, proposalID)
}

// Activity returns the committed audit rows of a proposal.
func (s *Store) Activity(proposalID string) []domain.ActivityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ActivityEntry
	for _, e := range s.data.activity {
		if e.ProposalID == proposalID {
			out = append(out, e)
		}
	}
	return out
}

func sortedApplied(applied map[string]domain.AppliedOffer, proposalID string) []domain.AppliedOffer {
	var out []domain.AppliedOffer
	for _, o := range applied {
		if o.ProposalID == proposalID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OfferID == out[j].OfferID {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].OfferID < out[j].OfferID
	})
	return out
}
