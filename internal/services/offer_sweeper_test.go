package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/proposals/domain"
	"github.com/fastygo/proposals/pkg/clock"
	"github.com/fastygo/proposals/repository"
	"github.com/fastygo/proposals/repository/memory"
)

type staticHealth bool

func (h staticHealth) IsOnline() bool { return bool(h) }

func seedAppliedOffer(t *testing.T, store *memory.Store, expiresAt time.Time) string {
	t.Helper()
	var proposalID string
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.ProposalTx) error {
		c := &domain.Customer{Name: "Ada", Email: "ada@example.com"}
		if err := tx.UpsertCustomer(ctx, c); err != nil {
			return err
		}
		p := &domain.Proposal{Number: "PRP-000001", CustomerID: c.ID, OwnerID: "rep", Status: domain.StatusDraftInProgress}
		if err := tx.InsertProposal(ctx, p); err != nil {
			return err
		}
		proposalID = p.ID
		return tx.UpsertAppliedOffer(ctx, &domain.AppliedOffer{
			ProposalID:     p.ID,
			OfferType:      domain.OfferTypeSpecial,
			OfferID:        "spring",
			DiscountAmount: decimal.NewFromInt(50),
			ExpiresAt:      expiresAt,
		}, true)
	})
	require.NoError(t, err)
	return proposalID
}

func TestOfferSweeper_ExpiresOverdueOffers(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := memory.New(clk)
	id := seedAppliedOffer(t, store, clk.Now().Add(time.Hour))

	sweeper, err := NewOfferSweeper(store, staticHealth(true), clk, nil, nil, SweeperConfig{})
	require.NoError(t, err)

	n, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	clk.Advance(2 * time.Hour)
	n, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	offers := store.AppliedOffers(id)
	require.Len(t, offers, 1)
	assert.Equal(t, domain.AppliedOfferExpired, offers[0].Status)
}

func TestOfferSweeper_SkipsWhileOffline(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := memory.New(clk)
	id := seedAppliedOffer(t, store, clk.Now().Add(-time.Hour))

	sweeper, err := NewOfferSweeper(store, staticHealth(false), clk, nil, nil, SweeperConfig{})
	require.NoError(t, err)

	n, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, domain.AppliedOfferActive, store.AppliedOffers(id)[0].Status)
}

type failingExpirer struct{}

func (failingExpirer) ExpireAppliedOffers(context.Context, time.Time) (int64, error) {
	return 0, errors.New("db down")
}

func TestOfferSweeper_PropagatesErrors(t *testing.T) {
	sweeper, err := NewOfferSweeper(failingExpirer{}, nil, nil, nil, nil, SweeperConfig{})
	require.NoError(t, err)

	_, err = sweeper.Sweep(context.Background())
	assert.Error(t, err)
}

func TestOfferSweeper_RejectsBadSchedule(t *testing.T) {
	_, err := NewOfferSweeper(failingExpirer{}, nil, nil, nil, nil, SweeperConfig{Spec: "not a schedule"})
	assert.Error(t, err)
}
