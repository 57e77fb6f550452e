package proposal

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fastygo/proposals/domain"
	"github.com/fastygo/proposals/internal/metrics"
	"github.com/fastygo/proposals/pkg/logger"
	"github.com/fastygo/proposals/repository"
	"github.com/fastygo/proposals/usecase"
	"github.com/fastygo/proposals/usecase/draft"
)

// StatusPublisher notifies downstream consumers (PDF, email) of status changes.
type StatusPublisher interface {
	PublishStatusChange(ctx context.Context, change domain.StatusChange) error
}

// SaveResult is the outcome of a create-or-update request.
type SaveResult struct {
	ProposalID     string `json:"proposalId"`
	ProposalNumber string `json:"proposalNumber"`
	IsDuplicate    bool   `json:"isDuplicate"`
}

type UseCase struct {
	engine    *Engine
	finder    *draft.Finder
	bindings  repository.DraftBindingResolver
	publisher StatusPublisher
	effects   *usecase.SideEffects
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func New(
	engine *Engine,
	finder *draft.Finder,
	bindings repository.DraftBindingResolver,
	publisher StatusPublisher,
	log *zap.Logger,
	m *metrics.Metrics,
) *UseCase {
	if log == nil {
		log = zap.NewNop()
	}
	return &UseCase{
		engine:    engine,
		finder:    finder,
		bindings:  bindings,
		publisher: publisher,
		effects:   usecase.NewSideEffects(log, m),
		logger:    log,
		metrics:   m,
	}
}

// FindDraft exposes the draft finder to the API.
func (uc *UseCase) FindDraft(ctx context.Context, key domain.DraftKey) *domain.DraftRef {
	if uc.finder == nil {
		return nil
	}
	return uc.finder.Find(ctx, key)
}

// Save consults the draft finder for id-less requests so a retried or
// resumed session continues its recent draft, then runs the engine.
func (uc *UseCase) Save(ctx context.Context, in Input) (SaveResult, error) {
	in.ProposalID = strings.TrimSpace(in.ProposalID)
	key := domain.DraftKey{Email: in.Customer.Email, ActorID: in.ActorID}.Normalize()

	duplicate := false
	if in.ProposalID == "" && in.Customer.HasIdentity() {
		if ref := uc.FindDraft(ctx, key); ref != nil {
			in.ProposalID = ref.ID
			duplicate = true
		}
	}

	var before *domain.DraftBinding
	if in.ProposalID != "" {
		before = uc.binding(ctx, in.ProposalID)
	}

	res, err := uc.engine.Upsert(ctx, in)
	if err != nil && duplicate && domain.IsDomainError(err, domain.ErrCodeNotFound) {
		// the draft vanished between lookup and write
		uc.finder.Forget(ctx, key)
		in.ProposalID = ""
		duplicate = false
		before = nil
		res, err = uc.engine.Upsert(ctx, in)
	}
	if err != nil {
		return SaveResult{}, err
	}
	if duplicate {
		uc.metrics.DuplicatePrevented()
		logger.WithProposal(ctx, uc.logger, res.ProposalID).Info("create resolved to existing draft")
	}

	uc.syncDraftCache(ctx, res.WriteResult, before)
	if res.PreviousStatus != res.Status && (res.PreviousStatus != "" || !res.Status.IsDraft()) {
		uc.publish(ctx, domain.StatusChange{
			ProposalID:     res.ProposalID,
			ProposalNumber: res.ProposalNumber,
			ActorID:        in.ActorID,
			From:           res.PreviousStatus,
			To:             res.Status,
			At:             uc.engine.clock.Now(),
		})
	}

	return SaveResult{
		ProposalID:     res.ProposalID,
		ProposalNumber: res.ProposalNumber,
		IsDuplicate:    duplicate,
	}, nil
}

// UpdateStatus is the narrow status transition entry point.
func (uc *UseCase) UpdateStatus(ctx context.Context, proposalID string, status domain.Status, actorID string) error {
	proposalID = strings.TrimSpace(proposalID)
	if proposalID == "" {
		return domain.ErrInvalidPayload
	}
	p, previous, err := uc.engine.TransitionStatus(ctx, proposalID, status, actorID)
	if err != nil {
		return err
	}
	if previous == p.Status {
		return nil
	}

	if !p.Status.IsDraft() && uc.bindings != nil && uc.finder != nil {
		uc.effects.After(ctx, "draft_cache_forget", func(ctx context.Context) error {
			binding, err := uc.bindings.DraftBindingFor(ctx, proposalID)
			if err != nil {
				return err
			}
			uc.finder.Forget(ctx, binding.Key)
			return nil
		})
	}
	uc.publish(ctx, domain.StatusChange{
		ProposalID:     p.ID,
		ProposalNumber: p.Number,
		ActorID:        actorID,
		From:           previous,
		To:             p.Status,
		At:             p.UpdatedAt,
	})
	return nil
}

// binding reads the stored draft binding, or nil when it is unavailable.
func (uc *UseCase) binding(ctx context.Context, proposalID string) *domain.DraftBinding {
	if uc.bindings == nil || uc.finder == nil {
		return nil
	}
	b, err := uc.bindings.DraftBindingFor(ctx, proposalID)
	if err != nil {
		return nil
	}
	return &b
}

// syncDraftCache keys the cache on the committed row, never on the request:
// the owner and email stored for the proposal are what a later lookup
// must match. The entry of the pre-write binding is dropped when it moved.
func (uc *UseCase) syncDraftCache(ctx context.Context, res domain.WriteResult, before *domain.DraftBinding) {
	if uc.finder == nil || uc.bindings == nil {
		return
	}
	uc.effects.After(ctx, "draft_cache_sync", func(ctx context.Context) error {
		after, err := uc.bindings.DraftBindingFor(ctx, res.ProposalID)
		if err != nil {
			if before != nil {
				uc.finder.Forget(ctx, before.Key)
			}
			return err
		}
		if before != nil && before.Key.Normalize() != after.Key.Normalize() {
			uc.finder.Forget(ctx, before.Key)
		}
		if !after.Status.IsDraft() {
			uc.finder.Forget(ctx, after.Key)
			return nil
		}
		uc.finder.Remember(ctx, after.Key, domain.DraftRef{
			ID:             res.ProposalID,
			ProposalNumber: res.ProposalNumber,
			UpdatedAt:      uc.engine.clock.Now(),
		})
		return nil
	})
}

func (uc *UseCase) publish(ctx context.Context, change domain.StatusChange) {
	if uc.publisher == nil {
		return
	}
	uc.effects.After(ctx, "status_event", func(ctx context.Context) error {
		return uc.publisher.PublishStatusChange(ctx, change)
	})
}
