package memory

import (
	"context"
	"sort"

	"github.com/fastygo/proposals/domain"
)

// AddSpecialOffer puts an offer into the catalog, replacing any with the same id.
func (s *Store) AddSpecialOffer(offer domain.SpecialOffer) {
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()
	s.offers[offer.ID] = offer
}

// AddBundleRule puts a bundle rule into the catalog, replacing any with the same id.
func (s *Store) AddBundleRule(rule domain.BundleRule) {
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()
	rule.RequiredServices = append([]string(nil), rule.RequiredServices...)
	s.bundles[rule.ID] = rule
}

func (s *Store) ActiveSpecialOffer(ctx context.Context, id string) (*domain.SpecialOffer, error) {
	if err := s.failure("ActiveSpecialOffer"); err != nil {
		return nil, err
	}
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	offer, ok := s.offers[id]
	if !ok || !offer.IsActive {
		return nil, domain.ErrOfferNotFound
	}
	return &offer, nil
}

func (s *Store) ListActiveOffers(ctx context.Context) ([]domain.SpecialOffer, error) {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	var out []domain.SpecialOffer
	for _, o := range s.offers {
		if o.IsActive {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) BundleRulesFor(ctx context.Context, serviceIDs []string) ([]domain.BundleRule, error) {
	if err := s.failure("BundleRulesFor"); err != nil {
		return nil, err
	}
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	var out []domain.BundleRule
	for _, b := range s.bundles {
		if b.IsActive && b.QualifiesFor(serviceIDs) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
