package offer

import (
	"context"

	"github.com/fastygo/proposals/domain"
	"github.com/fastygo/proposals/repository"
)

// Eligible is what the wizard's offer step may show for a service selection.
type Eligible struct {
	SpecialOffers []domain.SpecialOffer
	Bundles       []domain.BundleRule
}

// CatalogService answers offer catalog reads outside of any proposal write.
type CatalogService struct {
	catalog repository.OfferCatalog
}

func NewCatalogService(catalog repository.OfferCatalog) *CatalogService {
	return &CatalogService{catalog: catalog}
}

// EligibleFor lists active special offers and the bundle rules that would be
// attached automatically if services were saved.
func (s *CatalogService) EligibleFor(ctx context.Context, services []string) (Eligible, error) {
	services = domain.UniqueServiceIDs(services)

	offers, err := s.catalog.ListActiveOffers(ctx)
	if err != nil {
		return Eligible{}, err
	}

	var bundles []domain.BundleRule
	if len(services) >= 2 {
		rules, err := s.catalog.BundleRulesFor(ctx, services)
		if err != nil {
			return Eligible{}, err
		}
		bundles = SelectBundles(rules, services)
	}

	if offers == nil {
		offers = []domain.SpecialOffer{}
	}
	if bundles == nil {
		bundles = []domain.BundleRule{}
	}
	return Eligible{SpecialOffers: offers, Bundles: bundles}, nil
}
