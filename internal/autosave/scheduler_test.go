package autosave

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/proposals/api/transport"
	"github.com/fastygo/proposals/domain"
	"github.com/fastygo/proposals/internal/infrastructure/snapshot"
	"github.com/fastygo/proposals/pkg/clock"
)

var start = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type fakeServer struct {
	mu          sync.Mutex
	saves       []transport.ProposalRequest
	lookups     []string
	draft       *domain.DraftRef
	saveErr     error
	seq         int
	block       chan struct{}
	inflight    int
	maxInflight int
}

func (f *fakeServer) FindDraft(_ context.Context, email string) (*domain.DraftRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, email)
	return f.draft, nil
}

func (f *fakeServer) SaveProposal(_ context.Context, req transport.ProposalRequest) (transport.SaveResponse, error) {
	f.mu.Lock()
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight--
	if f.saveErr != nil {
		return transport.SaveResponse{}, f.saveErr
	}
	f.saves = append(f.saves, req)
	id := req.ID
	if id == "" {
		f.seq++
		id = fmt.Sprintf("p-%d", f.seq)
	}
	return transport.SaveResponse{Success: true, ProposalID: id, ProposalNumber: "PRP-" + id}, nil
}

func (f *fakeServer) recordedSaves() []transport.ProposalRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.ProposalRequest(nil), f.saves...)
}

func (f *fakeServer) inflightNow() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inflight
}

func openSnapshots(t *testing.T) (*snapshot.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "draft.db")
	store, err := snapshot.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func form(name, email string, services ...string) transport.ProposalRequest {
	return transport.ProposalRequest{
		Customer: transport.CustomerPayload{Name: name, Email: email},
		Services: services,
	}
}

func newScheduler(server ServerAPI, store SnapshotStore, clk clock.Clock) *Scheduler {
	return New(server, store, Config{Clock: clk})
}

func TestScheduler_DebounceCoalescesEdits(t *testing.T) {
	clk := clock.NewManual(start)
	server := &fakeServer{}
	store, _ := openSnapshots(t)
	s := newScheduler(server, store, clk)

	assert.Equal(t, StateIdle, s.State())
	for i := 1; i <= 4; i++ {
		s.Update(form("Ada", "ada@example.com", fmt.Sprintf("svc-%d", i)), i)
		assert.Equal(t, StatePending, s.State())
		clk.Advance(time.Second)
	}
	assert.Empty(t, server.recordedSaves())

	clk.Advance(DefaultDebounce)

	saves := server.recordedSaves()
	require.Len(t, saves, 1)
	assert.Equal(t, []string{"svc-4"}, saves[0].Services)
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, "p-1", s.Draft().ProposalID)

	snap, err := store.Latest(clk.Now(), DefaultMaxAge)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 4, snap.CurrentStep)
	assert.Equal(t, "p-1", snap.DraftProposalID)
}

func TestScheduler_SecondSyncUpdatesBoundProposal(t *testing.T) {
	clk := clock.NewManual(start)
	server := &fakeServer{}
	store, _ := openSnapshots(t)
	s := newScheduler(server, store, clk)

	s.Update(form("Ada", "ada@example.com", "solar"), 1)
	clk.Advance(DefaultDebounce)
	s.Update(form("Ada", "ada@example.com", "solar", "battery"), 2)
	clk.Advance(DefaultDebounce)

	saves := server.recordedSaves()
	require.Len(t, saves, 2)
	assert.Empty(t, saves[0].ID)
	assert.Equal(t, "p-1", saves[1].ID)
	assert.Len(t, server.lookups, 1, "lookup only runs while unbound")
	assert.True(t, s.Draft().IsExistingDraft)
}

func TestScheduler_ResumesServerDraft(t *testing.T) {
	clk := clock.NewManual(start)
	server := &fakeServer{draft: &domain.DraftRef{ID: "p-42", ProposalNumber: "PRP-001042"}}
	store, _ := openSnapshots(t)
	s := newScheduler(server, store, clk)

	s.Update(form("Ada", "ada@example.com", "solar"), 1)
	clk.Advance(DefaultDebounce)

	saves := server.recordedSaves()
	require.Len(t, saves, 1)
	assert.Equal(t, "p-42", saves[0].ID)
	assert.Equal(t, DraftState{
		ProposalID:      "p-42",
		ProposalNumber:  "PRP-p-42",
		IsExistingDraft: true,
		LastCheckedAt:   start.Add(DefaultDebounce),
	}, s.Draft())
}

func TestScheduler_IncompleteFormOnlySavesLocally(t *testing.T) {
	clk := clock.NewManual(start)
	server := &fakeServer{}
	store, _ := openSnapshots(t)
	s := newScheduler(server, store, clk)

	s.Update(form("Ada", "   ", "solar"), 0)
	clk.Advance(DefaultDebounce)

	assert.Empty(t, server.recordedSaves())
	assert.Empty(t, server.lookups)
	snap, err := store.Latest(clk.Now(), DefaultMaxAge)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Empty(t, snap.DraftProposalID)
}

func TestScheduler_ServerFailureThenReloadRestoresLocalCopy(t *testing.T) {
	clk := clock.NewManual(start)
	server := &fakeServer{saveErr: errors.New("connection refused")}
	store, _ := openSnapshots(t)
	s := newScheduler(server, store, clk)

	last := form("Ada", "ada@example.com", "solar", "battery")
	last.Customer.Phone = "555-0100"
	s.Update(form("Ada", "ada@example.com", "solar"), 1)
	s.Update(last, 2)
	clk.Advance(DefaultDebounce)

	require.Error(t, s.LastError())
	assert.Empty(t, server.recordedSaves(), "no server proposal exists")
	assert.Empty(t, s.Draft().ProposalID)
	s.Close()

	clk.Advance(time.Hour)
	reloaded := newScheduler(&fakeServer{}, store, clk)
	snap, err := reloaded.Restore(RestoreOptions{})
	require.NoError(t, err)
	require.NotNil(t, snap)

	restored, step := reloaded.Form()
	assert.Equal(t, last.Customer, restored.Customer)
	assert.Equal(t, last.Services, restored.Services)
	assert.Equal(t, 2, step)
	assert.Empty(t, reloaded.Draft().ProposalID)
}

func TestScheduler_RestoreWithExplicitProposalClearsSnapshot(t *testing.T) {
	clk := clock.NewManual(start)
	store, _ := openSnapshots(t)
	s := newScheduler(&fakeServer{}, store, clk)
	s.Update(form("Ada", "ada@example.com"), 1)
	require.NoError(t, s.SaveLocal())

	next := newScheduler(&fakeServer{}, store, clk)
	snap, err := next.Restore(RestoreOptions{ProposalID: "p-9"})
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.Equal(t, "p-9", next.Draft().ProposalID)

	left, err := store.Latest(clk.Now(), DefaultMaxAge)
	require.NoError(t, err)
	assert.Nil(t, left)
}

func TestScheduler_RestoreDiscardsStaleSnapshot(t *testing.T) {
	clk := clock.NewManual(start)
	store, _ := openSnapshots(t)
	s := newScheduler(&fakeServer{}, store, clk)
	s.Update(form("Ada", "ada@example.com"), 1)
	require.NoError(t, s.SaveLocal())
	s.Close()

	clk.Advance(DefaultMaxAge + time.Minute)
	next := newScheduler(&fakeServer{}, store, clk)
	snap, err := next.Restore(RestoreOptions{})
	require.NoError(t, err)
	assert.Nil(t, snap)

	_, step := next.Form()
	assert.Zero(t, step)
}

func TestScheduler_RestoreKeepsInMemoryForm(t *testing.T) {
	clk := clock.NewManual(start)
	store, _ := openSnapshots(t)
	require.NoError(t, store.Save(snapshot.Snapshot{FormData: []byte(`{"customer":{"name":"Old"}}`), Timestamp: start}))

	s := newScheduler(&fakeServer{}, store, clk)
	s.Update(form("New", "new@example.com"), 2)

	snap, err := s.Restore(RestoreOptions{})
	require.NoError(t, err)
	assert.Nil(t, snap)
	current, _ := s.Form()
	assert.Equal(t, "New", current.Customer.Name)
}

func TestScheduler_SaveLocalDoesNotSync(t *testing.T) {
	clk := clock.NewManual(start)
	server := &fakeServer{}
	store, _ := openSnapshots(t)
	s := newScheduler(server, store, clk)

	s.Update(form("Ada", "ada@example.com"), 3)
	require.NoError(t, s.SaveLocal())

	assert.Empty(t, server.recordedSaves())
	snap, err := store.Latest(clk.Now(), DefaultMaxAge)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 3, snap.CurrentStep)
}

func TestScheduler_SubmitClearsSnapshot(t *testing.T) {
	clk := clock.NewManual(start)
	server := &fakeServer{}
	store, _ := openSnapshots(t)
	s := newScheduler(server, store, clk)

	s.Update(form("Ada", "ada@example.com", "solar"), 5)
	require.NoError(t, s.Submit(context.Background(), domain.StatusSent))

	saves := server.recordedSaves()
	require.Len(t, saves, 1)
	assert.Equal(t, string(domain.StatusSent), saves[0].Status)
	assert.Equal(t, StateIdle, s.State())
	assert.Zero(t, clk.Pending())
	assert.Empty(t, s.Draft().ProposalID)

	left, err := store.Latest(clk.Now(), DefaultMaxAge)
	require.NoError(t, err)
	assert.Nil(t, left)
}

func TestScheduler_SubmitFailureKeepsSnapshot(t *testing.T) {
	clk := clock.NewManual(start)
	server := &fakeServer{saveErr: errors.New("timeout")}
	store, _ := openSnapshots(t)
	s := newScheduler(server, store, clk)

	s.Update(form("Ada", "ada@example.com", "solar"), 5)
	require.Error(t, s.Submit(context.Background(), domain.StatusSent))

	left, err := store.Latest(clk.Now(), DefaultMaxAge)
	require.NoError(t, err)
	require.NotNil(t, left)
}

func TestScheduler_SubmitRequiresIdentity(t *testing.T) {
	store, _ := openSnapshots(t)
	s := newScheduler(&fakeServer{}, store, clock.NewManual(start))

	s.Update(form("", "ada@example.com"), 1)
	assert.ErrorIs(t, s.Submit(context.Background(), domain.StatusSent), domain.ErrCustomerRequired)
}

func TestScheduler_StartFreshCancelsPendingSync(t *testing.T) {
	clk := clock.NewManual(start)
	server := &fakeServer{}
	store, _ := openSnapshots(t)
	s := newScheduler(server, store, clk)

	s.Update(form("Ada", "ada@example.com"), 1)
	require.NoError(t, s.SaveLocal())
	require.NoError(t, s.StartFresh())

	assert.Equal(t, StateIdle, s.State())
	clk.Advance(DefaultDebounce)
	assert.Empty(t, server.recordedSaves())

	left, err := store.Latest(clk.Now(), DefaultMaxAge)
	require.NoError(t, err)
	assert.Nil(t, left)
}

func TestScheduler_SyncsNeverOverlap(t *testing.T) {
	clk := clock.NewManual(start)
	server := &fakeServer{block: make(chan struct{})}
	store, _ := openSnapshots(t)
	s := newScheduler(server, store, clk)
	s.Update(form("Ada", "ada@example.com"), 1)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Flush(context.Background())
		}()
	}

	require.Eventually(t, func() bool { return server.inflightNow() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, StateSyncing, s.State())

	close(server.block)
	wg.Wait()

	assert.Equal(t, 1, server.maxInflight)
	saves := server.recordedSaves()
	require.Len(t, saves, 2)
	assert.Equal(t, "p-1", saves[1].ID, "second sync sees the first one's binding")
	assert.Equal(t, StateIdle, s.State())
}
