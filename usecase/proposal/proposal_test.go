package proposal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/proposals/domain"
	"github.com/fastygo/proposals/usecase/draft"
)

type recordingPublisher struct {
	mu      sync.Mutex
	changes []domain.StatusChange
	err     error
}

func (p *recordingPublisher) PublishStatusChange(_ context.Context, change domain.StatusChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, change)
	return p.err
}

func (p *recordingPublisher) recorded() []domain.StatusChange {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.StatusChange(nil), p.changes...)
}

// mapCache is an in-process DraftCache keyed like the Redis one.
type mapCache struct {
	mu      sync.Mutex
	entries map[domain.DraftKey]domain.DraftRef
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[domain.DraftKey]domain.DraftRef)}
}

func (c *mapCache) FindRecentDraft(_ context.Context, key domain.DraftKey, since time.Time) (*domain.DraftRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ref, ok := c.entries[key.Normalize()]
	if !ok || ref.UpdatedAt.Before(since) {
		return nil, nil
	}
	return &ref, nil
}

func (c *mapCache) Remember(_ context.Context, key domain.DraftKey, ref domain.DraftRef) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key.Normalize()] = ref
	return nil
}

func (c *mapCache) Forget(_ context.Context, key domain.DraftKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key.Normalize())
	return nil
}

func (c *mapCache) lookup(email, actorID string) (domain.DraftRef, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ref, ok := c.entries[domain.DraftKey{Email: email, ActorID: actorID}.Normalize()]
	return ref, ok
}

type useCaseFixture struct {
	*fixture
	publisher *recordingPublisher
	cache     *mapCache
	uc        *UseCase
}

func newUseCaseFixture() *useCaseFixture {
	f := newFixture()
	cache := newMapCache()
	finder := draft.NewFinder(draft.Config{
		Cache:    cache,
		Bindings: f.store,
		Primary:  f.store,
		Fallback: f.store,
		Clock:    f.clock,
	})
	pub := &recordingPublisher{}
	return &useCaseFixture{
		fixture:   f,
		publisher: pub,
		cache:     cache,
		uc:        New(f.engine, finder, f.store, pub, nil, nil),
	}
}

func TestUseCase_NoDuplicateDraftWithinWindow(t *testing.T) {
	f := newUseCaseFixture()
	ctx := context.Background()

	first, err := f.uc.Save(ctx, sampleInput())
	require.NoError(t, err)
	assert.False(t, first.IsDuplicate)

	f.clock.Advance(90 * time.Minute)
	second, err := f.uc.Save(ctx, sampleInput())
	require.NoError(t, err)

	assert.True(t, second.IsDuplicate)
	assert.Equal(t, first.ProposalID, second.ProposalID)
	assert.Equal(t, first.ProposalNumber, second.ProposalNumber)
	assert.Equal(t, 1, f.store.ProposalCount())
}

func TestUseCase_StaleDraftStartsNewProposal(t *testing.T) {
	f := newUseCaseFixture()
	ctx := context.Background()

	first, err := f.uc.Save(ctx, sampleInput())
	require.NoError(t, err)

	f.clock.Advance(2*time.Hour + time.Second)
	second, err := f.uc.Save(ctx, sampleInput())
	require.NoError(t, err)

	assert.False(t, second.IsDuplicate)
	assert.NotEqual(t, first.ProposalID, second.ProposalID)
	assert.NotEqual(t, first.ProposalNumber, second.ProposalNumber)
	assert.Equal(t, 2, f.store.ProposalCount())
	assert.Equal(t, 1, f.store.CustomerCount())
}

func TestUseCase_DraftsAreScopedToActor(t *testing.T) {
	f := newUseCaseFixture()
	ctx := context.Background()

	first, err := f.uc.Save(ctx, sampleInput())
	require.NoError(t, err)

	in := sampleInput()
	in.ActorID = "rep-2"
	second, err := f.uc.Save(ctx, in)
	require.NoError(t, err)

	assert.NotEqual(t, first.ProposalID, second.ProposalID)
}

func TestUseCase_SentProposalIsNotResumed(t *testing.T) {
	f := newUseCaseFixture()
	ctx := context.Background()

	first, err := f.uc.Save(ctx, sampleInput())
	require.NoError(t, err)
	require.NoError(t, f.uc.UpdateStatus(ctx, first.ProposalID, domain.StatusSent, "rep-1"))

	second, err := f.uc.Save(ctx, sampleInput())
	require.NoError(t, err)
	assert.NotEqual(t, first.ProposalID, second.ProposalID)
}

func TestUseCase_LookupFailureFallsThroughToCreate(t *testing.T) {
	f := newUseCaseFixture()
	ctx := context.Background()

	_, err := f.uc.Save(ctx, sampleInput())
	require.NoError(t, err)

	require.NoError(t, f.cache.Forget(ctx, domain.DraftKey{Email: "ada@example.com", ActorID: "rep-1"}))
	f.store.FailOn("FindRecentDraft", errors.New("function missing"))
	res, err := f.uc.Save(ctx, sampleInput())
	require.NoError(t, err)

	// the fallback query still sees the draft
	assert.True(t, res.IsDuplicate)
	assert.Equal(t, 1, f.store.ProposalCount())
}

func TestUseCase_ExplicitIDBypassesFinder(t *testing.T) {
	f := newUseCaseFixture()
	ctx := context.Background()

	first, err := f.uc.Save(ctx, sampleInput())
	require.NoError(t, err)

	in := sampleInput()
	in.ProposalID = first.ProposalID
	res, err := f.uc.Save(ctx, in)
	require.NoError(t, err)

	assert.False(t, res.IsDuplicate)
	assert.Equal(t, first.ProposalID, res.ProposalID)
}

func TestUseCase_ValidationErrorHasNoSideEffects(t *testing.T) {
	f := newUseCaseFixture()
	in := sampleInput()
	in.Customer.Email = ""

	_, err := f.uc.Save(context.Background(), in)

	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
	assert.Zero(t, f.store.ProposalCount())
	assert.Zero(t, f.store.CustomerCount())
	assert.Empty(t, f.publisher.recorded())
}

func TestUseCase_UpdateStatusPublishesOnce(t *testing.T) {
	f := newUseCaseFixture()
	ctx := context.Background()

	saved, err := f.uc.Save(ctx, sampleInput())
	require.NoError(t, err)
	assert.Empty(t, f.publisher.recorded(), "draft creation is not a status event")

	require.NoError(t, f.uc.UpdateStatus(ctx, saved.ProposalID, domain.StatusSent, "rep-1"))
	require.NoError(t, f.uc.UpdateStatus(ctx, saved.ProposalID, domain.StatusSent, "rep-1"))

	changes := f.publisher.recorded()
	require.Len(t, changes, 1)
	assert.Equal(t, domain.StatusDraftInProgress, changes[0].From)
	assert.Equal(t, domain.StatusSent, changes[0].To)
	assert.Equal(t, saved.ProposalNumber, changes[0].ProposalNumber)
}

func TestUseCase_PublishFailureIsSwallowed(t *testing.T) {
	f := newUseCaseFixture()
	f.publisher.err = errors.New("nats down")
	ctx := context.Background()

	saved, err := f.uc.Save(ctx, sampleInput())
	require.NoError(t, err)

	require.NoError(t, f.uc.UpdateStatus(ctx, saved.ProposalID, domain.StatusSent, "rep-1"))
	p, _ := f.store.Proposal(saved.ProposalID)
	assert.Equal(t, domain.StatusSent, p.Status)
}

func TestUseCase_SaveWithStatusChangePublishes(t *testing.T) {
	f := newUseCaseFixture()
	ctx := context.Background()

	saved, err := f.uc.Save(ctx, sampleInput())
	require.NoError(t, err)

	in := sampleInput()
	in.ProposalID = saved.ProposalID
	in.Status = domain.StatusSent
	_, err = f.uc.Save(ctx, in)
	require.NoError(t, err)

	changes := f.publisher.recorded()
	require.Len(t, changes, 1)
	assert.Equal(t, domain.StatusSent, changes[0].To)
}

func TestUseCase_UpdateStatusRequiresID(t *testing.T) {
	f := newUseCaseFixture()

	err := f.uc.UpdateStatus(context.Background(), " ", domain.StatusSent, "rep-1")

	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

type vanishingLookup struct {
	ref *domain.DraftRef
}

func (v vanishingLookup) FindRecentDraft(context.Context, domain.DraftKey, time.Time) (*domain.DraftRef, error) {
	return v.ref, nil
}

func TestUseCase_VanishedDraftIsRecreated(t *testing.T) {
	f := newFixture()
	finder := draft.NewFinder(draft.Config{
		Primary: vanishingLookup{ref: &domain.DraftRef{ID: "gone", ProposalNumber: "PRP-000001"}},
		Clock:   f.clock,
	})
	uc := New(f.engine, finder, f.store, nil, nil, nil)

	res, err := uc.Save(context.Background(), sampleInput())
	require.NoError(t, err)

	assert.False(t, res.IsDuplicate)
	assert.NotEqual(t, "gone", res.ProposalID)
	assert.Equal(t, 1, f.store.ProposalCount())
}
