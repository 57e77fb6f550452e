package repository

import (
	"context"

	"github.com/fastygo/proposals/domain"
)

// OfferCatalog is a read-only view of promotional offers and bundle rules.
type OfferCatalog interface {
	// ActiveSpecialOffer returns the offer only when it exists and is active.
	ActiveSpecialOffer(ctx context.Context, id string) (*domain.SpecialOffer, error)
	ListActiveOffers(ctx context.Context) ([]domain.SpecialOffer, error)
	// BundleRulesFor returns active rules whose required services are all in serviceIDs.
	BundleRulesFor(ctx context.Context, serviceIDs []string) ([]domain.BundleRule, error)
}
