package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/proposals/domain"
	"github.com/fastygo/proposals/repository"
)

// offerCatalog reads special offers and bundle rules through db, which is
// either the pool or the surrounding transaction.
type offerCatalog struct {
	db querier
}

// NewOfferCatalog creates a Postgres-backed OfferCatalog.
func NewOfferCatalog(pool *pgxpool.Pool) repository.OfferCatalog {
	return &offerCatalog{db: pool}
}

const specialOfferColumns = `
	id, name, description, discount_type, discount_value, free_item,
	expiration_value, expiration_unit, is_active`

const bundleRuleColumns = `
	id, name, description, required_services, discount_type, discount_value, free_item,
	priority, is_active`

func (c *offerCatalog) ActiveSpecialOffer(ctx context.Context, id string) (*domain.SpecialOffer, error) {
	query := `SELECT ` + specialOfferColumns + ` FROM special_offers WHERE id = $1 AND is_active`
	offer, err := scanSpecialOffer(c.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, classify(err, domain.ErrOfferNotFound)
	}
	return offer, nil
}

func (c *offerCatalog) ListActiveOffers(ctx context.Context) ([]domain.SpecialOffer, error) {
	query := `SELECT ` + specialOfferColumns + ` FROM special_offers WHERE is_active ORDER BY name, id`
	rows, err := c.db.Query(ctx, query)
	if err != nil {
		return nil, classify(err, domain.ErrOfferNotFound)
	}
	defer rows.Close()

	var offers []domain.SpecialOffer
	for rows.Next() {
		offer, err := scanSpecialOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, *offer)
	}
	return offers, classify(rows.Err(), domain.ErrOfferNotFound)
}

// BundleRulesFor relies on array containment: required_services <@ $1 holds
// exactly when every required service is selected.
func (c *offerCatalog) BundleRulesFor(ctx context.Context, serviceIDs []string) ([]domain.BundleRule, error) {
	if len(serviceIDs) == 0 {
		return nil, nil
	}
	query := `
	SELECT ` + bundleRuleColumns + `
	FROM bundle_rules
	WHERE is_active
	  AND cardinality(required_services) > 0
	  AND cardinality(required_services) <= $2
	  AND required_services <@ $1::text[]
	ORDER BY priority DESC, id`
	rows, err := c.db.Query(ctx, query, serviceIDs, len(serviceIDs))
	if err != nil {
		return nil, classify(err, domain.ErrOfferNotFound)
	}
	defer rows.Close()

	var rules []domain.BundleRule
	for rows.Next() {
		rule, err := scanBundleRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, classify(rows.Err(), domain.ErrOfferNotFound)
}

const appliedOfferColumns = `
	id, proposal_id, offer_type, offer_id, name, description,
	discount_type, discount_value, free_item, discount_amount, expires_at,
	status, customized, customized_by, created_at, updated_at`

// UpsertAppliedOffer leans on the partial unique index over active rows.
// Without overwrite the conflicting row is read back unchanged.
func (t *proposalTx) UpsertAppliedOffer(ctx context.Context, offer *domain.AppliedOffer, overwrite bool) error {
	if offer == nil {
		return domain.ErrInvalidPayload
	}
	if offer.ID == "" {
		offer.ID = uuid.NewString()
	}

	conflict := `DO NOTHING`
	if overwrite {
		conflict = `DO UPDATE
	SET name = EXCLUDED.name,
		description = EXCLUDED.description,
		discount_type = EXCLUDED.discount_type,
		discount_value = EXCLUDED.discount_value,
		free_item = EXCLUDED.free_item,
		discount_amount = EXCLUDED.discount_amount,
		expires_at = EXCLUDED.expires_at,
		customized = EXCLUDED.customized,
		customized_by = EXCLUDED.customized_by,
		updated_at = NOW()`
	}

	query := `
	INSERT INTO applied_offers (
		id, proposal_id, offer_type, offer_id, name, description,
		discount_type, discount_value, free_item, discount_amount, expires_at,
		status, customized, customized_by, created_at, updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'active', $12, $13, NOW(), NOW())
	ON CONFLICT (proposal_id, offer_type, offer_id) WHERE status = 'active' ` + conflict + `
	RETURNING ` + appliedOfferColumns

	stored, err := scanAppliedOffer(t.tx.QueryRow(ctx, query,
		offer.ID,
		offer.ProposalID,
		string(offer.OfferType),
		offer.OfferID,
		offer.Name,
		offer.Description,
		string(offer.Discount.Kind),
		offer.Discount.Value,
		offer.Discount.FreeItem,
		offer.DiscountAmount,
		offer.ExpiresAt,
		offer.Customized,
		offer.CustomizedBy,
	))
	if errors.Is(err, pgx.ErrNoRows) && !overwrite {
		query := `SELECT ` + appliedOfferColumns + `
		FROM applied_offers
		WHERE proposal_id = $1 AND offer_type = $2 AND offer_id = $3 AND status = 'active'`
		stored, err = scanAppliedOffer(t.tx.QueryRow(ctx, query, offer.ProposalID, string(offer.OfferType), offer.OfferID))
	}
	if err != nil {
		return classify(err, domain.ErrProposalNotFound)
	}
	*offer = *stored
	return nil
}

func (t *proposalTx) WithdrawAppliedOffers(ctx context.Context, proposalID string, offerType domain.OfferType, keep []string) error {
	if keep == nil {
		keep = []string{}
	}
	_, err := t.tx.Exec(ctx, `
	UPDATE applied_offers
	SET status = 'withdrawn', updated_at = NOW()
	WHERE proposal_id = $1
	  AND offer_type = $2
	  AND status = 'active'
	  AND NOT (offer_id = ANY($3::text[]))
	`, proposalID, string(offerType), keep)
	return classify(err, domain.ErrProposalNotFound)
}

func (t *proposalTx) ListAppliedOffers(ctx context.Context, proposalID string) ([]domain.AppliedOffer, error) {
	query := `SELECT ` + appliedOfferColumns + ` FROM applied_offers WHERE proposal_id = $1 ORDER BY offer_id, created_at`
	rows, err := t.tx.Query(ctx, query, proposalID)
	if err != nil {
		return nil, classify(err, domain.ErrProposalNotFound)
	}
	defer rows.Close()

	var offers []domain.AppliedOffer
	for rows.Next() {
		offer, err := scanAppliedOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, *offer)
	}
	return offers, classify(rows.Err(), domain.ErrProposalNotFound)
}

type appliedOfferExpirer struct {
	pool *pgxpool.Pool
}

// NewAppliedOfferExpirer creates the store used by the offer sweeper.
func NewAppliedOfferExpirer(pool *pgxpool.Pool) repository.AppliedOfferExpirer {
	return &appliedOfferExpirer{pool: pool}
}

func (e *appliedOfferExpirer) ExpireAppliedOffers(ctx context.Context, now time.Time) (int64, error) {
	tag, err := e.pool.Exec(ctx, `
	UPDATE applied_offers
	SET status = 'expired', updated_at = $1
	WHERE status = 'active' AND expires_at < $1
	`, now)
	if err != nil {
		return 0, classify(err, domain.ErrOfferNotFound)
	}
	return tag.RowsAffected(), nil
}

func scanSpecialOffer(row scanner) (*domain.SpecialOffer, error) {
	var (
		o    domain.SpecialOffer
		kind string
	)
	if err := row.Scan(
		&o.ID,
		&o.Name,
		&o.Description,
		&kind,
		&o.Discount.Value,
		&o.Discount.FreeItem,
		&o.ExpirationValue,
		&o.ExpirationUnit,
		&o.IsActive,
	); err != nil {
		return nil, err
	}
	o.Discount.Kind = domain.DiscountKind(kind)
	return &o, nil
}

func scanBundleRule(row scanner) (*domain.BundleRule, error) {
	var (
		b    domain.BundleRule
		kind string
	)
	if err := row.Scan(
		&b.ID,
		&b.Name,
		&b.Description,
		&b.RequiredServices,
		&kind,
		&b.Discount.Value,
		&b.Discount.FreeItem,
		&b.Priority,
		&b.IsActive,
	); err != nil {
		return nil, err
	}
	b.Discount.Kind = domain.DiscountKind(kind)
	return &b, nil
}

func scanAppliedOffer(row scanner) (*domain.AppliedOffer, error) {
	var (
		o                       domain.AppliedOffer
		offerType, kind, status string
	)
	if err := row.Scan(
		&o.ID,
		&o.ProposalID,
		&offerType,
		&o.OfferID,
		&o.Name,
		&o.Description,
		&kind,
		&o.Discount.Value,
		&o.Discount.FreeItem,
		&o.DiscountAmount,
		&o.ExpiresAt,
		&status,
		&o.Customized,
		&o.CustomizedBy,
		&o.CreatedAt,
		&o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	o.OfferType = domain.OfferType(offerType)
	o.Discount.Kind = domain.DiscountKind(kind)
	o.Status = domain.AppliedOfferStatus(status)
	return &o, nil
}
