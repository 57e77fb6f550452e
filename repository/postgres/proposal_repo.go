package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fastygo/proposals/domain"
)

const proposalColumns = `
	id, proposal_number, customer_id, owner_id, status,
	subtotal, adders_total, discount_total, total, monthly_payment,
	financing_plan_id, financing_term_months, financing_apr, pricing_breakdown,
	sent_at, viewed_at, signed_at, completed_at, created_at, updated_at`

func (t *proposalTx) UpsertCustomer(ctx context.Context, customer *domain.Customer) error {
	if customer == nil {
		return domain.ErrInvalidPayload
	}
	if customer.ID == "" {
		customer.ID = uuid.NewString()
	}
	customer.Email = domain.NormalizeEmail(customer.Email)

	const query = `
	INSERT INTO customers (id, email, name, phone, address, owner_id, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	ON CONFLICT (email) DO UPDATE
	SET name = EXCLUDED.name,
		phone = EXCLUDED.phone,
		address = EXCLUDED.address,
		updated_at = NOW()
	RETURNING id, owner_id, created_at, updated_at
	`
	err := t.tx.QueryRow(ctx, query,
		customer.ID,
		customer.Email,
		customer.Name,
		customer.Phone,
		customer.Address,
		customer.OwnerID,
	).Scan(&customer.ID, &customer.OwnerID, &customer.CreatedAt, &customer.UpdatedAt)
	return classify(err, domain.ErrCustomerNotFound)
}

func (t *proposalTx) InsertProposal(ctx context.Context, p *domain.Proposal) error {
	if p == nil {
		return domain.ErrInvalidPayload
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	query := `
	INSERT INTO proposals (
		id, proposal_number, customer_id, owner_id, status,
		subtotal, adders_total, discount_total, total, monthly_payment,
		financing_plan_id, financing_term_months, financing_apr, pricing_breakdown,
		sent_at, created_at, updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		CASE WHEN $5 = 'sent' THEN NOW() END, NOW(), NOW())
	RETURNING ` + proposalColumns

	row := t.tx.QueryRow(ctx, query,
		p.ID,
		p.Number,
		p.CustomerID,
		p.OwnerID,
		string(p.Status),
		p.Pricing.Subtotal,
		p.Pricing.AddersTotal,
		p.Pricing.DiscountTotal,
		p.Pricing.Total,
		p.Pricing.MonthlyPayment,
		p.Pricing.Financing.PlanID,
		p.Pricing.Financing.TermMonths,
		p.Pricing.Financing.APR,
		jsonArg(p.Pricing.Breakdown),
	)
	stored, err := scanProposal(row)
	if err != nil {
		return classify(err, domain.ErrCustomerNotFound)
	}
	*p = *stored
	return nil
}

// UpdateProposal keeps the stored status and customer when the incoming
// ones are empty and stamps the status timestamp only when it is unset.
func (t *proposalTx) UpdateProposal(ctx context.Context, p *domain.Proposal) error {
	if p == nil || p.ID == "" {
		return domain.ErrInvalidPayload
	}

	query := `
	UPDATE proposals
	SET status = COALESCE(NULLIF($2, ''), status),
		customer_id = COALESCE(NULLIF($3, '')::uuid, customer_id),
		subtotal = $4,
		adders_total = $5,
		discount_total = $6,
		total = $7,
		monthly_payment = $8,
		financing_plan_id = $9,
		financing_term_months = $10,
		financing_apr = $11,
		pricing_breakdown = $12,
		sent_at = CASE WHEN COALESCE(NULLIF($2, ''), status) = 'sent' THEN COALESCE(sent_at, NOW()) ELSE sent_at END,
		viewed_at = CASE WHEN COALESCE(NULLIF($2, ''), status) = 'viewed' THEN COALESCE(viewed_at, NOW()) ELSE viewed_at END,
		signed_at = CASE WHEN COALESCE(NULLIF($2, ''), status) = 'signed' THEN COALESCE(signed_at, NOW()) ELSE signed_at END,
		completed_at = CASE WHEN COALESCE(NULLIF($2, ''), status) = 'completed' THEN COALESCE(completed_at, NOW()) ELSE completed_at END,
		updated_at = NOW()
	WHERE id = $1
	RETURNING ` + proposalColumns

	row := t.tx.QueryRow(ctx, query,
		p.ID,
		string(p.Status),
		p.CustomerID,
		p.Pricing.Subtotal,
		p.Pricing.AddersTotal,
		p.Pricing.DiscountTotal,
		p.Pricing.Total,
		p.Pricing.MonthlyPayment,
		p.Pricing.Financing.PlanID,
		p.Pricing.Financing.TermMonths,
		p.Pricing.Financing.APR,
		jsonArg(p.Pricing.Breakdown),
	)
	stored, err := scanProposal(row)
	if err != nil {
		return classify(err, domain.ErrProposalNotFound)
	}
	*p = *stored
	return nil
}

func (t *proposalTx) LockProposal(ctx context.Context, id string) (*domain.Proposal, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrProposalNotFound
	}
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE id = $1 FOR UPDATE`
	p, err := scanProposal(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, classify(err, domain.ErrProposalNotFound)
	}
	return p, nil
}

func (t *proposalTx) SetStatus(ctx context.Context, id string, status domain.Status, at time.Time) (*domain.Proposal, error) {
	query := `
	UPDATE proposals
	SET status = $2,
		sent_at = CASE WHEN $2 = 'sent' THEN COALESCE(sent_at, $3) ELSE sent_at END,
		viewed_at = CASE WHEN $2 = 'viewed' THEN COALESCE(viewed_at, $3) ELSE viewed_at END,
		signed_at = CASE WHEN $2 = 'signed' THEN COALESCE(signed_at, $3) ELSE signed_at END,
		completed_at = CASE WHEN $2 = 'completed' THEN COALESCE(completed_at, $3) ELSE completed_at END,
		updated_at = $3
	WHERE id = $1
	RETURNING ` + proposalColumns

	p, err := scanProposal(t.tx.QueryRow(ctx, query, id, string(status), at))
	if err != nil {
		return nil, classify(err, domain.ErrProposalNotFound)
	}
	return p, nil
}

func (t *proposalTx) ReplaceServices(ctx context.Context, proposalID string, serviceIDs []string) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM proposal_services WHERE proposal_id = $1`, proposalID); err != nil {
		return classify(err, domain.ErrProposalNotFound)
	}
	if len(serviceIDs) == 0 {
		return nil
	}

	rows := make([][]interface{}, 0, len(serviceIDs))
	for i, id := range serviceIDs {
		rows = append(rows, []interface{}{proposalID, id, i})
	}
	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"proposal_services"},
		[]string{"proposal_id", "service_id", "position"},
		pgx.CopyFromRows(rows),
	)
	return classify(err, domain.ErrProposalNotFound)
}

func (t *proposalTx) ReplaceProducts(ctx context.Context, proposalID string, products []domain.ProductDetail) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM proposal_products WHERE proposal_id = $1`, proposalID); err != nil {
		return classify(err, domain.ErrProposalNotFound)
	}
	if len(products) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(`
		INSERT INTO proposal_products (proposal_id, service_id, configuration, scope_notes)
		VALUES ($1, $2, COALESCE($3::jsonb, '{}'::jsonb), $4)
		`, proposalID, p.ServiceID, jsonArg(p.Configuration), p.ScopeNotes)
	}
	return classify(t.tx.SendBatch(ctx, batch).Close(), domain.ErrProposalNotFound)
}

func (t *proposalTx) ReplaceAdders(ctx context.Context, proposalID string, adders []domain.CustomPricingAdder) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM proposal_custom_adders WHERE proposal_id = $1`, proposalID); err != nil {
		return classify(err, domain.ErrProposalNotFound)
	}
	if len(adders) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, a := range adders {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		batch.Queue(`
		INSERT INTO proposal_custom_adders (id, proposal_id, category, description, cost, position)
		VALUES ($1, $2, $3, $4, $5, $6)
		`, a.ID, proposalID, a.Category, a.Description, a.Cost, i)
	}
	return classify(t.tx.SendBatch(ctx, batch).Close(), domain.ErrProposalNotFound)
}

func (t *proposalTx) ListServiceIDs(ctx context.Context, proposalID string) ([]string, error) {
	rows, err := t.tx.Query(ctx, `
	SELECT service_id FROM proposal_services WHERE proposal_id = $1 ORDER BY position
	`, proposalID)
	if err != nil {
		return nil, classify(err, domain.ErrProposalNotFound)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, classify(err, domain.ErrProposalNotFound)
	}
	return ids, nil
}

func (t *proposalTx) AppendActivity(ctx context.Context, entry domain.ActivityEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	var createdAt interface{}
	if !entry.CreatedAt.IsZero() {
		createdAt = entry.CreatedAt
	}
	_, err := t.tx.Exec(ctx, `
	INSERT INTO proposal_activity (id, proposal_id, actor_id, action, details, created_at)
	VALUES ($1, $2, $3, $4, COALESCE($5::jsonb, '{}'::jsonb), COALESCE($6, NOW()))
	`, entry.ID, entry.ProposalID, entry.ActorID, entry.Action, jsonArg(entry.Details), createdAt)
	return classify(err, domain.ErrProposalNotFound)
}

func scanProposal(row scanner) (*domain.Proposal, error) {
	var (
		p         domain.Proposal
		status    string
		breakdown []byte
	)
	if err := row.Scan(
		&p.ID,
		&p.Number,
		&p.CustomerID,
		&p.OwnerID,
		&status,
		&p.Pricing.Subtotal,
		&p.Pricing.AddersTotal,
		&p.Pricing.DiscountTotal,
		&p.Pricing.Total,
		&p.Pricing.MonthlyPayment,
		&p.Pricing.Financing.PlanID,
		&p.Pricing.Financing.TermMonths,
		&p.Pricing.Financing.APR,
		&breakdown,
		&p.SentAt,
		&p.ViewedAt,
		&p.SignedAt,
		&p.CompletedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Status = domain.Status(status)
	p.Pricing.Breakdown = copyBytes(breakdown)
	return &p, nil
}
