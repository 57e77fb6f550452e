package offer

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fastygo/proposals/domain"
	"github.com/fastygo/proposals/internal/metrics"
	"github.com/fastygo/proposals/pkg/clock"
	"github.com/fastygo/proposals/pkg/logger"
	"github.com/fastygo/proposals/repository"
)

// MaxBundles caps how many bundle rules attach to one proposal.
const MaxBundles = 3

// Selection is one explicitly chosen special offer.
type Selection struct {
	OfferID       string
	Customization *domain.OfferCustomization
}

// AssignRequest describes the proposal whose offers are being (re)assigned.
type AssignRequest struct {
	ProposalID string
	ActorID    string
	Subtotal   decimal.Decimal
	// Selections nil means the caller did not send a selection and
	// previously applied special offers stay as they are.
	Selections []Selection
}

// Result lists what the assignment left active.
type Result struct {
	Special []domain.AppliedOffer
	Bundles []domain.AppliedOffer
	Skipped []string
}

// Assigner attaches explicit offers and implicit bundle rules to a proposal.
type Assigner struct {
	clock   clock.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewAssigner(c clock.Clock, log *zap.Logger, m *metrics.Metrics) *Assigner {
	if c == nil {
		c = clock.Real()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Assigner{clock: c, logger: log, metrics: m}
}

// Assign runs inside the proposal transaction after line items were replaced,
// so bundle eligibility sees the services written by the same call.
func (a *Assigner) Assign(ctx context.Context, tx repository.ProposalTx, req AssignRequest) (Result, error) {
	var res Result
	now := a.clock.Now()
	log := logger.WithProposal(ctx, a.logger, req.ProposalID)

	if req.Selections != nil {
		keep := make([]string, 0, len(req.Selections))
		for _, sel := range req.Selections {
			applied, err := a.applyExplicit(ctx, tx, req, sel, now)
			if err != nil {
				if domain.IsDomainError(err, domain.ErrCodeNotFound) {
					log.Warn("skipping unavailable offer", zap.String("offer_id", sel.OfferID))
					res.Skipped = append(res.Skipped, sel.OfferID)
					continue
				}
				return res, err
			}
			keep = append(keep, applied.OfferID)
			res.Special = append(res.Special, *applied)
			a.metrics.OfferApplied(string(domain.OfferTypeSpecial))
		}
		if err := tx.WithdrawAppliedOffers(ctx, req.ProposalID, domain.OfferTypeSpecial, keep); err != nil {
			return res, err
		}
	}

	services, err := tx.ListServiceIDs(ctx, req.ProposalID)
	if err != nil {
		return res, err
	}

	var rules []domain.BundleRule
	if len(services) >= 2 {
		candidates, err := tx.BundleRulesFor(ctx, services)
		if err != nil {
			return res, err
		}
		rules = SelectBundles(candidates, services)
	}

	keep := make([]string, 0, len(rules))
	for _, rule := range rules {
		applied := &domain.AppliedOffer{
			ProposalID:     req.ProposalID,
			OfferType:      domain.OfferTypeBundle,
			OfferID:        rule.ID,
			Name:           rule.Name,
			Description:    rule.Description,
			Discount:       rule.Discount,
			DiscountAmount: rule.Discount.Resolve(req.Subtotal),
			ExpiresAt:      now.Add(domain.BundleExpiry),
		}
		if err := tx.UpsertAppliedOffer(ctx, applied, false); err != nil {
			return res, err
		}
		keep = append(keep, rule.ID)
		res.Bundles = append(res.Bundles, *applied)
		a.metrics.OfferApplied(string(domain.OfferTypeBundle))
	}
	if err := tx.WithdrawAppliedOffers(ctx, req.ProposalID, domain.OfferTypeBundle, keep); err != nil {
		return res, err
	}

	log.Debug("offers assigned",
		zap.Int("special", len(res.Special)),
		zap.Int("bundles", len(res.Bundles)),
		zap.Int("skipped", len(res.Skipped)))
	return res, nil
}

func (a *Assigner) applyExplicit(ctx context.Context, tx repository.ProposalTx, req AssignRequest, sel Selection, now time.Time) (*domain.AppliedOffer, error) {
	offerID := strings.TrimSpace(sel.OfferID)
	if offerID == "" {
		return nil, domain.ErrOfferNotFound
	}

	applied := &domain.AppliedOffer{
		ProposalID: req.ProposalID,
		OfferType:  domain.OfferTypeSpecial,
		OfferID:    offerID,
	}

	custom := sel.Customization
	if custom == nil || custom.Discount == nil || custom.Name == "" {
		catalog, err := tx.ActiveSpecialOffer(ctx, offerID)
		switch {
		case err == nil:
			applied.Name = catalog.Name
			applied.Description = catalog.Description
			applied.Discount = catalog.Discount
			applied.ExpiresAt = domain.ExpiresAt(now, catalog.ExpirationValue, catalog.ExpirationUnit)
		case custom != nil && custom.Discount != nil && domain.IsDomainError(err, domain.ErrCodeNotFound):
			// a fully specified customization stands on its own
			applied.Name = offerID
			applied.ExpiresAt = domain.ExpiresAt(now, 0, "")
		default:
			return nil, err
		}
	}

	if custom != nil {
		applied.Customized = true
		applied.CustomizedBy = custom.CreatedBy
		if applied.CustomizedBy == "" {
			applied.CustomizedBy = req.ActorID
		}
		if custom.Name != "" {
			applied.Name = custom.Name
		}
		if custom.Description != "" {
			applied.Description = custom.Description
		}
		if custom.Discount != nil {
			applied.Discount = *custom.Discount
		}
		if custom.ExpirationValue > 0 || custom.ExpirationUnit != "" {
			applied.ExpiresAt = domain.ExpiresAt(now, custom.ExpirationValue, custom.ExpirationUnit)
		}
		if applied.ExpiresAt.IsZero() {
			applied.ExpiresAt = domain.ExpiresAt(now, 0, "")
		}
	}

	applied.DiscountAmount = applied.Discount.Resolve(req.Subtotal)
	if err := tx.UpsertAppliedOffer(ctx, applied, true); err != nil {
		return nil, err
	}
	return applied, nil
}

// SelectBundles keeps active rules that qualify for services, ordered by
// descending priority, and returns at most MaxBundles of them.
func SelectBundles(rules []domain.BundleRule, services []string) []domain.BundleRule {
	if len(services) < 2 {
		return nil
	}
	out := make([]domain.BundleRule, 0, len(rules))
	for _, r := range rules {
		if r.IsActive && r.QualifiesFor(services) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority == out[j].Priority {
			return out[i].ID < out[j].ID
		}
		return out[i].Priority > out[j].Priority
	})
	if len(out) > MaxBundles {
		out = out[:MaxBundles]
	}
	return out
}
