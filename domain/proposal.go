package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a proposal.
type Status string

const (
	StatusDraftInProgress Status = "draft_in_progress"
	StatusDraftComplete   Status = "draft_complete"
	StatusSent            Status = "sent"
	StatusViewed          Status = "viewed"
	StatusSigned          Status = "signed"
	StatusCompleted       Status = "completed"
)

// DraftStatuses lists the states in which a proposal is still editable.
var DraftStatuses = []Status{StatusDraftInProgress, StatusDraftComplete}

var statusRank = map[Status]int{
	StatusDraftInProgress: 0,
	StatusDraftComplete:   0,
	StatusSent:            1,
	StatusViewed:          2,
	StatusSigned:          3,
	StatusCompleted:       4,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// IsDraft reports whether s is one of the editable states.
func (s Status) IsDraft() bool {
	return s == StatusDraftInProgress || s == StatusDraftComplete
}

// CanTransition reports whether a proposal in from may move to to.
// Draft states move freely between each other; everything past a draft
// only moves forward. Staying in place is always allowed.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	if from.IsDraft() {
		return true
	}
	return statusRank[to] > statusRank[from]
}

// CanCreateWith reports whether a new proposal may start in s.
func CanCreateWith(s Status) bool {
	return s.IsDraft() || s == StatusSent
}

// FinancingTerms describes the financing plan attached to a pricing snapshot.
type FinancingTerms struct {
	PlanID     string          `json:"plan_id,omitempty"`
	TermMonths int             `json:"term_months,omitempty"`
	APR        decimal.Decimal `json:"apr"`
}

// PricingSnapshot is the immutable pricing record stored with a proposal version.
type PricingSnapshot struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	AddersTotal    decimal.Decimal `json:"adders_total"`
	DiscountTotal  decimal.Decimal `json:"discount_total"`
	Total          decimal.Decimal `json:"total"`
	MonthlyPayment decimal.Decimal `json:"monthly_payment"`
	Financing      FinancingTerms  `json:"financing"`
	Breakdown      json.RawMessage `json:"breakdown,omitempty"`
}

// Proposal is the aggregate root of the write engine.
type Proposal struct {
	ID          string          `json:"id"`
	Number      string          `json:"proposal_number"`
	CustomerID  string          `json:"customer_id"`
	OwnerID     string          `json:"owner_id"`
	Status      Status          `json:"status"`
	Pricing     PricingSnapshot `json:"pricing"`
	SentAt      *time.Time      `json:"sent_at,omitempty"`
	ViewedAt    *time.Time      `json:"viewed_at,omitempty"`
	SignedAt    *time.Time      `json:"signed_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// OwnedBy reports whether actorID may edit the proposal. Rows without an
// owner are open to any actor.
func (p *Proposal) OwnedBy(actorID string) bool {
	return p.OwnerID == "" || p.OwnerID == strings.TrimSpace(actorID)
}

// Stamp sets the timestamp matching the current status when it is not set yet.
func (p *Proposal) Stamp(at time.Time) {
	if p == nil {
		return
	}
	var field **time.Time
	switch p.Status {
	case StatusSent:
		field = &p.SentAt
	case StatusViewed:
		field = &p.ViewedAt
	case StatusSigned:
		field = &p.SignedAt
	case StatusCompleted:
		field = &p.CompletedAt
	default:
		return
	}
	if *field == nil {
		t := at
		*field = &t
	}
}

// WriteResult is returned by the transaction engine.
type WriteResult struct {
	ProposalID     string `json:"proposalId"`
	ProposalNumber string `json:"proposalNumber"`
	Created        bool   `json:"created"`
}
