// Package autosave keeps the authoring client's form state durable: edits
// are debounced into server syncs and every sync attempt also writes a local
// snapshot, so a server outage never loses data.
package autosave

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/proposals/api/transport"
	"github.com/fastygo/proposals/domain"
	"github.com/fastygo/proposals/internal/infrastructure/snapshot"
	"github.com/fastygo/proposals/pkg/clock"
)

const (
	DefaultDebounce    = 2 * time.Second
	DefaultMaxAge      = 7 * 24 * time.Hour
	defaultSyncTimeout = 15 * time.Second
)

// ServerAPI is the part of the proposal API the scheduler talks to.
type ServerAPI interface {
	FindDraft(ctx context.Context, email string) (*domain.DraftRef, error)
	SaveProposal(ctx context.Context, req transport.ProposalRequest) (transport.SaveResponse, error)
}

// SnapshotStore persists the local draft copy.
type SnapshotStore interface {
	Save(snap snapshot.Snapshot) error
	Latest(now time.Time, maxAge time.Duration) (*snapshot.Snapshot, error)
	Clear() error
}

// State is the scheduler's position in its idle → pending → syncing cycle.
type State int

const (
	StateIdle State = iota
	StatePending
	StateSyncing
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSyncing:
		return "syncing"
	default:
		return "idle"
	}
}

// DraftState records which server proposal the editing session is bound to.
type DraftState struct {
	ProposalID      string    `json:"proposalId,omitempty"`
	ProposalNumber  string    `json:"proposalNumber,omitempty"`
	IsExistingDraft bool      `json:"isExistingDraft"`
	LastCheckedAt   time.Time `json:"lastCheckedAt,omitempty"`
}

type Config struct {
	Debounce    time.Duration
	MaxAge      time.Duration
	SyncTimeout time.Duration
	Clock       clock.Clock
	Logger      *zap.Logger
}

// RestoreOptions describes the navigation context a session starts with.
type RestoreOptions struct {
	// ProposalID is an explicitly opened proposal; it wins over local data.
	ProposalID string
}

// Scheduler owns one pending timer and serializes syncs of one editing session.
type Scheduler struct {
	server ServerAPI
	store  SnapshotStore
	clock  clock.Clock
	logger *zap.Logger

	debounce    time.Duration
	maxAge      time.Duration
	syncTimeout time.Duration

	syncMu sync.Mutex

	mu      sync.Mutex
	timer   clock.Timer
	gen     uint64
	epoch   uint64
	pending bool
	syncing bool
	hasForm bool
	form    transport.ProposalRequest
	step    int
	draft   DraftState
	lastErr error
}

func New(server ServerAPI, store SnapshotStore, cfg Config) *Scheduler {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = defaultSyncTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Scheduler{
		server:      server,
		store:       store,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		debounce:    cfg.Debounce,
		maxAge:      cfg.MaxAge,
		syncTimeout: cfg.SyncTimeout,
	}
}

// State reports the current scheduler state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.syncing:
		return StateSyncing
	case s.pending:
		return StatePending
	default:
		return StateIdle
	}
}

// Draft returns the current server binding.
func (s *Scheduler) Draft() DraftState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Form returns the latest form state and step.
func (s *Scheduler) Form() (transport.ProposalRequest, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form, s.step
}

// LastError returns the outcome of the most recent server sync attempt.
func (s *Scheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Update records a form mutation and (re)arms the debounce timer.
func (s *Scheduler) Update(form transport.ProposalRequest, step int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.form = form
	s.step = step
	s.hasForm = true
	s.arm()
}

func (s *Scheduler) arm() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.pending = true
	s.timer = s.clock.AfterFunc(s.debounce, func() { s.fire(gen) })
}

func (s *Scheduler) disarm() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.pending = false
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.pending = false
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.syncTimeout)
	defer cancel()
	_ = s.sync(ctx)
}

// Flush cancels the pending debounce and syncs immediately, returning the
// server error if the sync reached the server and failed.
func (s *Scheduler) Flush(ctx context.Context) error {
	s.mu.Lock()
	s.disarm()
	s.mu.Unlock()
	return s.sync(ctx)
}

// sync pushes the form to the server when it has a customer identity and
// then always writes the local snapshot. Syncs never overlap. Only the
// server outcome is returned; local write failures are logged.
func (s *Scheduler) sync(ctx context.Context) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	s.mu.Lock()
	if !s.hasForm {
		s.mu.Unlock()
		return nil
	}
	s.syncing = true
	form, draft, epoch := s.form, s.draft, s.epoch
	s.mu.Unlock()

	var serverErr error
	if form.HasDraftIdentity() {
		draft, serverErr = s.push(ctx, form, draft)
	}

	s.mu.Lock()
	if s.epoch == epoch {
		if serverErr == nil && form.HasDraftIdentity() {
			s.draft = draft
		}
		s.lastErr = serverErr
	}
	s.mu.Unlock()

	_ = s.SaveLocal()

	s.mu.Lock()
	s.syncing = false
	s.mu.Unlock()

	if serverErr != nil {
		s.logger.Warn("draft sync failed, kept local snapshot", zap.Error(serverErr))
	}
	return serverErr
}

func (s *Scheduler) push(ctx context.Context, form transport.ProposalRequest, draft DraftState) (DraftState, error) {
	if draft.ProposalID == "" {
		ref, err := s.server.FindDraft(ctx, form.Customer.Email)
		if err != nil {
			s.logger.Warn("draft lookup failed", zap.Error(err))
		} else if ref != nil {
			draft.ProposalID = ref.ID
			draft.ProposalNumber = ref.ProposalNumber
			draft.IsExistingDraft = true
		}
	}

	form.ID = draft.ProposalID
	resp, err := s.server.SaveProposal(ctx, form)
	if err != nil {
		return draft, err
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "proposal save rejected"
		}
		return draft, errors.New(msg)
	}

	if draft.ProposalID != "" || resp.IsDuplicate {
		draft.IsExistingDraft = true
	}
	draft.ProposalID = resp.ProposalID
	draft.ProposalNumber = resp.ProposalNumber
	draft.LastCheckedAt = s.clock.Now()
	return draft, nil
}

// SaveLocal writes the current form to the snapshot store without touching
// the server. It backs the unload hook.
func (s *Scheduler) SaveLocal() error {
	s.mu.Lock()
	if !s.hasForm {
		s.mu.Unlock()
		return nil
	}
	form, step, proposalID := s.form, s.step, s.draft.ProposalID
	s.mu.Unlock()

	payload, err := json.Marshal(form)
	if err != nil {
		return err
	}
	err = s.store.Save(snapshot.Snapshot{
		FormData:        payload,
		CurrentStep:     step,
		DraftProposalID: proposalID,
		Timestamp:       s.clock.Now(),
	})
	if err != nil {
		s.logger.Error("local draft save failed", zap.Error(err))
	}
	return err
}

// Restore prepares a new session. An explicit proposal id clears any local
// snapshot; otherwise the latest fresh snapshot is loaded unless form data
// was already entered. It returns the snapshot that was loaded, if any.
func (s *Scheduler) Restore(opts RestoreOptions) (*snapshot.Snapshot, error) {
	if opts.ProposalID != "" {
		s.mu.Lock()
		s.epoch++
		s.draft = DraftState{ProposalID: opts.ProposalID, IsExistingDraft: true}
		s.mu.Unlock()
		return nil, s.store.Clear()
	}

	s.mu.Lock()
	hasForm := s.hasForm
	s.mu.Unlock()
	if hasForm {
		return nil, nil
	}

	snap, err := s.store.Latest(s.clock.Now(), s.maxAge)
	if err != nil || snap == nil {
		return nil, err
	}
	var form transport.ProposalRequest
	if err := json.Unmarshal(snap.FormData, &form); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasForm {
		return nil, nil
	}
	s.form = form
	s.step = snap.CurrentStep
	s.hasForm = true
	s.draft = DraftState{
		ProposalID:      snap.DraftProposalID,
		IsExistingDraft: snap.DraftProposalID != "",
	}
	return snap, nil
}

// Submit performs the final sync with status and clears the local snapshot
// once the server confirmed it.
func (s *Scheduler) Submit(ctx context.Context, status domain.Status) error {
	s.mu.Lock()
	if !s.form.HasDraftIdentity() {
		s.mu.Unlock()
		return domain.ErrCustomerRequired
	}
	s.form.Status = string(status)
	s.disarm()
	s.mu.Unlock()

	if err := s.sync(ctx); err != nil {
		return err
	}
	return s.StartFresh()
}

// StartFresh drops the local snapshot and unbinds the session.
func (s *Scheduler) StartFresh() error {
	s.mu.Lock()
	s.disarm()
	s.epoch++
	s.form = transport.ProposalRequest{}
	s.step = 0
	s.hasForm = false
	s.draft = DraftState{}
	s.lastErr = nil
	s.mu.Unlock()
	return s.store.Clear()
}

// Close stops the pending timer without syncing.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarm()
}
