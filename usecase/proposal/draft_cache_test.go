package proposal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/proposals/domain"
)

func TestUseCase_DraftSaveIsCachedUnderStoredKey(t *testing.T) {
	f := newUseCaseFixture()

	saved, err := f.uc.Save(context.Background(), sampleInput())
	require.NoError(t, err)

	ref, ok := f.cache.lookup("ada@example.com", "rep-1")
	require.True(t, ok)
	assert.Equal(t, saved.ProposalID, ref.ID)
	assert.Equal(t, saved.ProposalNumber, ref.ProposalNumber)
}

func TestUseCase_EmailChangeMovesCacheEntry(t *testing.T) {
	f := newUseCaseFixture()
	ctx := context.Background()

	first, err := f.uc.Save(ctx, sampleInput())
	require.NoError(t, err)

	renamed := sampleInput()
	renamed.ProposalID = first.ProposalID
	renamed.Customer = domain.Customer{Name: "Grace Hopper", Email: "grace@example.com"}
	_, err = f.uc.Save(ctx, renamed)
	require.NoError(t, err)

	_, ok := f.cache.lookup("ada@example.com", "rep-1")
	assert.False(t, ok)
	ref, ok := f.cache.lookup("grace@example.com", "rep-1")
	require.True(t, ok)
	assert.Equal(t, first.ProposalID, ref.ID)

	again, err := f.uc.Save(ctx, sampleInput())
	require.NoError(t, err)

	assert.False(t, again.IsDuplicate)
	assert.NotEqual(t, first.ProposalID, again.ProposalID)
	grace, ok := f.store.CustomerByEmail("grace@example.com")
	require.True(t, ok)
	p, _ := f.store.Proposal(first.ProposalID)
	assert.Equal(t, grace.ID, p.CustomerID)
}

func TestUseCase_StaleCacheEntryForOtherEmailIsRejected(t *testing.T) {
	f := newUseCaseFixture()
	ctx := context.Background()

	first, err := f.uc.Save(ctx, sampleInput())
	require.NoError(t, err)

	// an entry left behind under a key the row no longer matches
	require.NoError(t, f.cache.Remember(ctx, domain.DraftKey{Email: "grace@example.com", ActorID: "rep-1"},
		domain.DraftRef{ID: first.ProposalID, ProposalNumber: first.ProposalNumber, UpdatedAt: f.clock.Now()}))

	in := sampleInput()
	in.Customer = domain.Customer{Name: "Grace Hopper", Email: "grace@example.com"}
	res, err := f.uc.Save(ctx, in)
	require.NoError(t, err)

	assert.False(t, res.IsDuplicate)
	assert.NotEqual(t, first.ProposalID, res.ProposalID)
	p, _ := f.store.Proposal(first.ProposalID)
	ada, _ := f.store.CustomerByEmail("ada@example.com")
	assert.Equal(t, ada.ID, p.CustomerID)
}

func TestUseCase_OtherActorCannotUpdateOrResume(t *testing.T) {
	f := newUseCaseFixture()
	ctx := context.Background()

	first, err := f.uc.Save(ctx, sampleInput())
	require.NoError(t, err)

	in := sampleInput()
	in.ActorID = "rep-2"
	in.ProposalID = first.ProposalID
	_, err = f.uc.Save(ctx, in)

	require.ErrorIs(t, err, domain.ErrNotProposalOwner)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeForbidden))
	_, ok := f.cache.lookup("ada@example.com", "rep-2")
	assert.False(t, ok)
	assert.Nil(t, f.uc.FindDraft(ctx, domain.DraftKey{Email: "ada@example.com", ActorID: "rep-2"}))

	err = f.uc.UpdateStatus(ctx, first.ProposalID, domain.StatusSent, "rep-2")
	require.ErrorIs(t, err, domain.ErrNotProposalOwner)
	p, _ := f.store.Proposal(first.ProposalID)
	assert.Equal(t, domain.StatusDraftInProgress, p.Status)
}

func TestUseCase_SaveLeavingDraftForgetsCacheEntry(t *testing.T) {
	f := newUseCaseFixture()
	ctx := context.Background()

	saved, err := f.uc.Save(ctx, sampleInput())
	require.NoError(t, err)

	in := sampleInput()
	in.ProposalID = saved.ProposalID
	in.Status = domain.StatusSent
	_, err = f.uc.Save(ctx, in)
	require.NoError(t, err)

	_, ok := f.cache.lookup("ada@example.com", "rep-1")
	assert.False(t, ok)
}

func TestUseCase_UpdateStatusForgetsCacheEntry(t *testing.T) {
	f := newUseCaseFixture()
	ctx := context.Background()

	saved, err := f.uc.Save(ctx, sampleInput())
	require.NoError(t, err)
	_, ok := f.cache.lookup("ada@example.com", "rep-1")
	require.True(t, ok)

	require.NoError(t, f.uc.UpdateStatus(ctx, saved.ProposalID, domain.StatusSent, "rep-1"))

	_, ok = f.cache.lookup("ada@example.com", "rep-1")
	assert.False(t, ok)
}

func TestUseCase_CachedDraftThatLeftDraftIsNotResumed(t *testing.T) {
	f := newUseCaseFixture()
	ctx := context.Background()

	first, err := f.uc.Save(ctx, sampleInput())
	require.NoError(t, err)

	// the status moves without the use case, so the entry stays behind
	_, _, err = f.engine.TransitionStatus(ctx, first.ProposalID, domain.StatusSent, "rep-1")
	require.NoError(t, err)
	_, ok := f.cache.lookup("ada@example.com", "rep-1")
	require.True(t, ok)

	second, err := f.uc.Save(ctx, sampleInput())
	require.NoError(t, err)

	assert.False(t, second.IsDuplicate)
	assert.NotEqual(t, first.ProposalID, second.ProposalID)
	ref, ok := f.cache.lookup("ada@example.com", "rep-1")
	require.True(t, ok)
	assert.Equal(t, second.ProposalID, ref.ID)
	p, _ := f.store.Proposal(first.ProposalID)
	assert.Equal(t, domain.StatusSent, p.Status)
}
