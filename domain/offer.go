package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DiscountKind is the shape of a catalog discount.
type DiscountKind string

const (
	DiscountFixedAmount DiscountKind = "fixed_amount"
	DiscountPercentage  DiscountKind = "percentage"
	DiscountFreeItem    DiscountKind = "free_item"
)

// Discount describes how much an offer takes off a proposal.
type Discount struct {
	Kind     DiscountKind    `json:"kind"`
	Value    decimal.Decimal `json:"value"`
	FreeItem string          `json:"free_item,omitempty"`
}

var hundred = decimal.NewFromInt(100)

// Resolve computes the monetary amount of the discount against subtotal.
// Free items carry their declared value.
func (d Discount) Resolve(subtotal decimal.Decimal) decimal.Decimal {
	switch d.Kind {
	case DiscountPercentage:
		return subtotal.Mul(d.Value).Div(hundred).Round(2)
	case DiscountFixedAmount, DiscountFreeItem:
		return d.Value.Round(2)
	default:
		return decimal.Zero
	}
}

// OfferType distinguishes explicitly chosen offers from implicit bundles.
type OfferType string

const (
	OfferTypeSpecial OfferType = "special_offer"
	OfferTypeBundle  OfferType = "bundle_rule"
)

// SpecialOffer is a catalog discount explicitly selected by a rep.
type SpecialOffer struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	Discount        Discount `json:"discount"`
	ExpirationValue int      `json:"expiration_value"`
	ExpirationUnit  string   `json:"expiration_unit"`
	IsActive        bool     `json:"is_active"`
}

// BundleRule is applied automatically when all of its services are selected.
type BundleRule struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	RequiredServices []string `json:"required_services"`
	Discount         Discount `json:"discount"`
	Priority         int      `json:"priority"`
	IsActive         bool     `json:"is_active"`
}

// QualifiesFor reports whether the rule's required services are a subset
// of selected and the requirement is not larger than the selection.
func (b BundleRule) QualifiesFor(selected []string) bool {
	if len(b.RequiredServices) == 0 || len(b.RequiredServices) > len(selected) {
		return false
	}
	have := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		have[id] = struct{}{}
	}
	for _, id := range b.RequiredServices {
		if _, ok := have[id]; !ok {
			return false
		}
	}
	return true
}

// AppliedOfferStatus tracks whether an applied offer still counts.
type AppliedOfferStatus string

const (
	AppliedOfferActive    AppliedOfferStatus = "active"
	AppliedOfferWithdrawn AppliedOfferStatus = "withdrawn"
	AppliedOfferExpired   AppliedOfferStatus = "expired"
)

// AppliedOffer records that an offer or bundle is attached to a proposal.
type AppliedOffer struct {
	ID             string             `json:"id"`
	ProposalID     string             `json:"proposal_id"`
	OfferType      OfferType          `json:"offer_type"`
	OfferID        string             `json:"offer_id"`
	Name           string             `json:"name"`
	Description    string             `json:"description,omitempty"`
	Discount       Discount           `json:"discount"`
	DiscountAmount decimal.Decimal    `json:"discount_amount"`
	ExpiresAt      time.Time          `json:"expires_at"`
	Status         AppliedOfferStatus `json:"status"`
	Customized     bool               `json:"customized"`
	CustomizedBy   string             `json:"customized_by,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// OfferCustomization overrides catalog values for one proposal.
type OfferCustomization struct {
	Name            string    `json:"name,omitempty"`
	Description     string    `json:"description,omitempty"`
	Discount        *Discount `json:"discount,omitempty"`
	ExpirationValue int       `json:"expiration_value,omitempty"`
	ExpirationUnit  string    `json:"expiration_unit,omitempty"`
	CreatedBy       string    `json:"created_by,omitempty"`
}

const (
	ExpirationHours = "hours"
	ExpirationDays  = "days"
)

// DefaultOfferExpiry applies when an offer carries an unusable expiration.
const DefaultOfferExpiry = 3 * 24 * time.Hour

// BundleExpiry is the fixed lifetime of an applied bundle rule.
const BundleExpiry = 7 * 24 * time.Hour

// ExpiresAt computes now + value in unit.
func ExpiresAt(now time.Time, value int, unit string) time.Time {
	if value <= 0 {
		return now.Add(DefaultOfferExpiry)
	}
	switch unit {
	case ExpirationHours:
		return now.Add(time.Duration(value) * time.Hour)
	case ExpirationDays:
		return now.Add(time.Duration(value) * 24 * time.Hour)
	default:
		return now.Add(DefaultOfferExpiry)
	}
}
