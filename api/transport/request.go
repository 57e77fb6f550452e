package transport

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/fastygo/proposals/domain"
)

type CustomerPayload struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

type ProductPayload struct {
	Configuration json.RawMessage `json:"configuration,omitempty"`
	ScopeNotes    string          `json:"scopeNotes,omitempty"`
}

type DiscountPayload struct {
	Type   string          `json:"type"`
	Label  string          `json:"label,omitempty"`
	Amount decimal.Decimal `json:"amount"`
}

type FinancingPayload struct {
	PlanID     string          `json:"planId,omitempty"`
	TermMonths int             `json:"termMonths,omitempty"`
	APR        decimal.Decimal `json:"apr"`
}

type PricingPayload struct {
	Subtotal  decimal.Decimal   `json:"subtotal"`
	Discounts []DiscountPayload `json:"discounts,omitempty"`
	Financing *FinancingPayload `json:"financing,omitempty"`
}

type AdderPayload struct {
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Cost        decimal.Decimal `json:"cost"`
}

// ProposalRequest is the full wizard payload. A null SelectedOffers leaves
// previously applied special offers alone; an empty list withdraws them.
type ProposalRequest struct {
	ID               string                               `json:"id,omitempty"`
	Customer         CustomerPayload                      `json:"customer"`
	Services         []string                             `json:"services"`
	Products         map[string]ProductPayload            `json:"products,omitempty"`
	Pricing          PricingPayload                       `json:"pricing"`
	CustomAdders     []AdderPayload                       `json:"customAdders,omitempty"`
	SelectedOffers   []string                             `json:"selectedOffers"`
	CustomizedOffers map[string]domain.OfferCustomization `json:"customizedOffers,omitempty"`
	Status           string                               `json:"status,omitempty"`
}

// HasDraftIdentity reports whether the form is complete enough to be saved
// as a server-side draft.
func (r ProposalRequest) HasDraftIdentity() bool {
	c := domain.Customer{Name: r.Customer.Name, Email: r.Customer.Email}
	return c.HasIdentity()
}

type StatusRequest struct {
	Status string `json:"status"`
}
