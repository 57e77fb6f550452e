package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// ServiceSelection joins a proposal to a catalog service.
type ServiceSelection struct {
	ProposalID string `json:"proposal_id"`
	ServiceID  string `json:"service_id"`
}

// ProductDetail holds the per-service product configuration of a proposal.
type ProductDetail struct {
	ProposalID    string          `json:"proposal_id"`
	ServiceID     string          `json:"service_id"`
	Configuration json.RawMessage `json:"configuration,omitempty"`
	ScopeNotes    string          `json:"scope_notes,omitempty"`
}

// CustomPricingAdder is an ad hoc cost line attached to a proposal.
type CustomPricingAdder struct {
	ID          string          `json:"id"`
	ProposalID  string          `json:"proposal_id"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Cost        decimal.Decimal `json:"cost"`
	Position    int             `json:"position"`
}

// UniqueServiceIDs drops blanks and duplicates while keeping order.
func UniqueServiceIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
