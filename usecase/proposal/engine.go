package proposal

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/fastygo/proposals/domain"
	"github.com/fastygo/proposals/internal/metrics"
	"github.com/fastygo/proposals/pkg/clock"
	"github.com/fastygo/proposals/pkg/logger"
	"github.com/fastygo/proposals/repository"
	"github.com/fastygo/proposals/usecase"
	"github.com/fastygo/proposals/usecase/offer"
	"github.com/fastygo/proposals/usecase/pricing"
)

// Input is the full proposal payload accepted by the engine.
type Input struct {
	// ProposalID selects the update path when set.
	ProposalID string
	ActorID    string
	Customer   domain.Customer
	Services   []string
	// Products is keyed by service id; entries for unselected services are ignored.
	Products map[string]domain.ProductDetail
	Pricing  pricing.Input
	Adders   []domain.CustomPricingAdder
	// Offers nil leaves previously applied special offers untouched.
	Offers []offer.Selection
	// Status empty keeps the stored status (or starts a new proposal in progress).
	Status domain.Status
}

// Result is what a committed write reports back.
type Result struct {
	domain.WriteResult
	Status         domain.Status
	PreviousStatus domain.Status
	CustomerEmail  string
}

// Engine writes the proposal aggregate as one atomic unit of work.
type Engine struct {
	txm      repository.TxManager
	seq      repository.SequenceGenerator
	assigner *offer.Assigner
	pricing  *pricing.Builder
	effects  *usecase.SideEffects
	clock    clock.Clock
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewEngine(
	txm repository.TxManager,
	seq repository.SequenceGenerator,
	assigner *offer.Assigner,
	builder *pricing.Builder,
	c clock.Clock,
	log *zap.Logger,
	m *metrics.Metrics,
) *Engine {
	if c == nil {
		c = clock.Real()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if builder == nil {
		builder = pricing.NewBuilder()
	}
	if assigner == nil {
		assigner = offer.NewAssigner(c, log, m)
	}
	return &Engine{
		txm:      txm,
		seq:      seq,
		assigner: assigner,
		pricing:  builder,
		effects:  usecase.NewSideEffects(log, m),
		clock:    c,
		logger:   log,
		metrics:  m,
	}
}

// Upsert creates a proposal when in.ProposalID is empty and updates it otherwise.
func (e *Engine) Upsert(ctx context.Context, in Input) (Result, error) {
	in.ProposalID = strings.TrimSpace(in.ProposalID)
	in.Services = domain.UniqueServiceIDs(in.Services)
	in.Customer.Email = domain.NormalizeEmail(in.Customer.Email)
	in.Customer.Name = strings.TrimSpace(in.Customer.Name)

	if in.Status != "" && !in.Status.Valid() {
		return Result{}, domain.ErrInvalidStatus
	}
	in.Pricing.Adders = in.Adders
	snapshot, err := e.pricing.Build(in.Pricing)
	if err != nil {
		return Result{}, err
	}

	if in.ProposalID == "" {
		return e.create(ctx, in, snapshot)
	}
	return e.update(ctx, in, snapshot)
}

func (e *Engine) create(ctx context.Context, in Input, snapshot domain.PricingSnapshot) (Result, error) {
	if !in.Customer.HasIdentity() {
		return Result{}, domain.ErrCustomerRequired
	}
	status := in.Status
	if status == "" {
		status = domain.StatusDraftInProgress
	}
	if !domain.CanCreateWith(status) {
		return Result{}, domain.ErrInvalidTransition
	}

	number, err := e.seq.NextProposalNumber(ctx)
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = e.txm.WithinTx(ctx, func(ctx context.Context, tx repository.ProposalTx) error {
		customer := in.Customer
		customer.OwnerID = in.ActorID
		if err := tx.UpsertCustomer(ctx, &customer); err != nil {
			return err
		}

		p := &domain.Proposal{
			Number:     number,
			CustomerID: customer.ID,
			OwnerID:    in.ActorID,
			Status:     status,
			Pricing:    snapshot,
		}
		if err := tx.InsertProposal(ctx, p); err != nil {
			return err
		}
		if err := e.replaceLineItems(ctx, tx, p.ID, in); err != nil {
			return err
		}
		e.assignOffers(ctx, tx, p.ID, in, snapshot)
		e.audit(ctx, tx, p.ID, in.ActorID, domain.ActivityCreated, map[string]interface{}{
			"proposal_number": p.Number,
			"status":          p.Status,
		})

		res = Result{
			WriteResult:   domain.WriteResult{ProposalID: p.ID, ProposalNumber: p.Number, Created: true},
			Status:        p.Status,
			CustomerEmail: customer.Email,
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	e.metrics.ProposalWritten("create")
	logger.WithProposal(ctx, e.logger, res.ProposalID).Info("proposal created",
		zap.String("proposal_number", res.ProposalNumber))
	return res, nil
}

func (e *Engine) update(ctx context.Context, in Input, snapshot domain.PricingSnapshot) (Result, error) {
	var res Result
	err := e.txm.WithinTx(ctx, func(ctx context.Context, tx repository.ProposalTx) error {
		current, err := tx.LockProposal(ctx, in.ProposalID)
		if err != nil {
			return err
		}
		if !current.OwnedBy(in.ActorID) {
			return domain.ErrNotProposalOwner
		}
		if in.Status != "" && !domain.CanTransition(current.Status, in.Status) {
			return domain.ErrInvalidTransition
		}

		p := &domain.Proposal{
			ID:      current.ID,
			Status:  in.Status,
			Pricing: snapshot,
		}
		email := ""
		if in.Customer.HasIdentity() {
			customer := in.Customer
			customer.OwnerID = current.OwnerID
			if err := tx.UpsertCustomer(ctx, &customer); err != nil {
				return err
			}
			p.CustomerID = customer.ID
			email = customer.Email
		}
		if err := tx.UpdateProposal(ctx, p); err != nil {
			return err
		}
		if err := e.replaceLineItems(ctx, tx, p.ID, in); err != nil {
			return err
		}
		e.assignOffers(ctx, tx, p.ID, in, snapshot)

		if p.Status != current.Status {
			e.audit(ctx, tx, p.ID, in.ActorID, domain.ActivityStatusChanged, map[string]interface{}{
				"from": current.Status,
				"to":   p.Status,
			})
		}

		res = Result{
			WriteResult:    domain.WriteResult{ProposalID: p.ID, ProposalNumber: current.Number},
			Status:         p.Status,
			PreviousStatus: current.Status,
			CustomerEmail:  email,
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	e.metrics.ProposalWritten("update")
	return res, nil
}

// replaceLineItems rewrites every child row set; nothing is diffed.
func (e *Engine) replaceLineItems(ctx context.Context, tx repository.ProposalTx, proposalID string, in Input) error {
	if err := tx.ReplaceServices(ctx, proposalID, in.Services); err != nil {
		return err
	}

	products := make([]domain.ProductDetail, 0, len(in.Products))
	for _, serviceID := range in.Services {
		detail, ok := in.Products[serviceID]
		if !ok {
			continue
		}
		detail.ProposalID = proposalID
		detail.ServiceID = serviceID
		products = append(products, detail)
	}
	if err := tx.ReplaceProducts(ctx, proposalID, products); err != nil {
		return err
	}

	return tx.ReplaceAdders(ctx, proposalID, in.Adders)
}

func (e *Engine) assignOffers(ctx context.Context, tx repository.ProposalTx, proposalID string, in Input, snapshot domain.PricingSnapshot) {
	e.effects.InTx(ctx, tx, "offer_assignment", func(ctx context.Context, tx repository.ProposalTx) error {
		_, err := e.assigner.Assign(ctx, tx, offer.AssignRequest{
			ProposalID: proposalID,
			ActorID:    in.ActorID,
			Subtotal:   snapshot.Subtotal,
			Selections: in.Offers,
		})
		return err
	})
}

func (e *Engine) audit(ctx context.Context, tx repository.ProposalTx, proposalID, actorID, action string, details map[string]interface{}) {
	e.effects.InTx(ctx, tx, "activity_log", func(ctx context.Context, tx repository.ProposalTx) error {
		payload, err := json.Marshal(details)
		if err != nil {
			return err
		}
		return tx.AppendActivity(ctx, domain.ActivityEntry{
			ProposalID: proposalID,
			ActorID:    actorID,
			Action:     action,
			Details:    payload,
			CreatedAt:  e.clock.Now(),
		})
	})
}

// TransitionStatus moves a proposal to status, stamping the matching timestamp once.
// Re-entering the current status changes nothing.
func (e *Engine) TransitionStatus(ctx context.Context, proposalID string, status domain.Status, actorID string) (*domain.Proposal, domain.Status, error) {
	if !status.Valid() {
		return nil, "", domain.ErrInvalidStatus
	}

	var (
		updated  *domain.Proposal
		previous domain.Status
	)
	err := e.txm.WithinTx(ctx, func(ctx context.Context, tx repository.ProposalTx) error {
		current, err := tx.LockProposal(ctx, proposalID)
		if err != nil {
			return err
		}
		if !current.OwnedBy(actorID) {
			return domain.ErrNotProposalOwner
		}
		previous = current.Status
		if current.Status == status {
			updated = current
			return nil
		}
		if !domain.CanTransition(current.Status, status) {
			return domain.ErrInvalidTransition
		}
		updated, err = tx.SetStatus(ctx, proposalID, status, e.clock.Now())
		if err != nil {
			return err
		}
		e.audit(ctx, tx, proposalID, actorID, domain.ActivityStatusChanged, map[string]interface{}{
			"from": previous,
			"to":   status,
		})
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return updated, previous, nil
}
