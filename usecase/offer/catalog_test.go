package offer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/proposals/domain"
	"github.com/fastygo/proposals/pkg/clock"
	"github.com/fastygo/proposals/repository/memory"
)

func TestCatalogService_EligibleFor(t *testing.T) {
	store := memory.New(clock.NewManual(start))
	store.AddSpecialOffer(domain.SpecialOffer{ID: "spring", Name: "Spring", Discount: fixed("50"), IsActive: true})
	store.AddSpecialOffer(domain.SpecialOffer{ID: "retired", Name: "Retired", Discount: fixed("50")})
	store.AddBundleRule(bundle("ab", 5, "a", "b"))
	store.AddBundleRule(bundle("abc", 9, "a", "b", "c"))

	svc := NewCatalogService(store)

	got, err := svc.EligibleFor(context.Background(), []string{"b", "a", "a"})
	require.NoError(t, err)
	require.Len(t, got.SpecialOffers, 1)
	assert.Equal(t, "spring", got.SpecialOffers[0].ID)
	require.Len(t, got.Bundles, 1)
	assert.Equal(t, "ab", got.Bundles[0].ID)

	got, err = svc.EligibleFor(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.NotNil(t, got.Bundles)
	assert.Empty(t, got.Bundles)
}
