package pricing

import (
	"encoding/json"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/fastygo/proposals/domain"
)

// DiscountLine is one discount the authoring UI applied to the subtotal.
type DiscountLine struct {
	Type   string          `json:"type"`
	Label  string          `json:"label,omitempty"`
	Amount decimal.Decimal `json:"amount"`
}

// Input is the raw pricing block submitted with a proposal.
type Input struct {
	Subtotal  decimal.Decimal
	Discounts []DiscountLine
	Adders    []domain.CustomPricingAdder
	Financing domain.FinancingTerms
}

type traceStep struct {
	Step   string          `json:"step"`
	Label  string          `json:"label,omitempty"`
	Amount decimal.Decimal `json:"amount"`
}

type breakdown struct {
	DiscountTypes []string    `json:"discount_types"`
	Trace         []traceStep `json:"trace"`
}

// Builder assembles pricing snapshots.
type Builder struct{}

func NewBuilder() *Builder { return &Builder{} }

var twelveHundred = decimal.NewFromInt(1200)

// Build computes totals, the monthly payment and the breakdown blob.
func (b *Builder) Build(in Input) (domain.PricingSnapshot, error) {
	if in.Subtotal.IsNegative() {
		return domain.PricingSnapshot{}, domain.NewError(domain.ErrCodeInvalid, "subtotal must not be negative")
	}
	if in.Financing.TermMonths < 0 || in.Financing.APR.IsNegative() {
		return domain.PricingSnapshot{}, domain.NewError(domain.ErrCodeInvalid, "invalid financing terms")
	}

	trace := []traceStep{{Step: "subtotal", Amount: in.Subtotal.Round(2)}}

	adders := decimal.Zero
	for _, a := range in.Adders {
		adders = adders.Add(a.Cost)
		trace = append(trace, traceStep{Step: "adder", Label: a.Category, Amount: a.Cost.Round(2)})
	}

	discounts := decimal.Zero
	types := make(map[string]struct{})
	for _, d := range in.Discounts {
		if d.Amount.IsNegative() {
			return domain.PricingSnapshot{}, domain.NewError(domain.ErrCodeInvalid, "discount must not be negative")
		}
		discounts = discounts.Add(d.Amount)
		if d.Type != "" {
			types[d.Type] = struct{}{}
		}
		trace = append(trace, traceStep{Step: "discount", Label: d.Type, Amount: d.Amount.Neg().Round(2)})
	}

	total := in.Subtotal.Add(adders).Sub(discounts)
	if total.IsNegative() {
		total = decimal.Zero
	}
	total = total.Round(2)
	trace = append(trace, traceStep{Step: "total", Amount: total})

	monthly := monthlyPayment(total, in.Financing)
	if in.Financing.TermMonths > 0 {
		trace = append(trace, traceStep{Step: "monthly_payment", Amount: monthly})
	}

	discountTypes := make([]string, 0, len(types))
	for t := range types {
		discountTypes = append(discountTypes, t)
	}
	sort.Strings(discountTypes)

	blob, err := json.Marshal(breakdown{DiscountTypes: discountTypes, Trace: trace})
	if err != nil {
		return domain.PricingSnapshot{}, err
	}

	return domain.PricingSnapshot{
		Subtotal:       in.Subtotal.Round(2),
		AddersTotal:    adders.Round(2),
		DiscountTotal:  discounts.Round(2),
		Total:          total,
		MonthlyPayment: monthly,
		Financing:      in.Financing,
		Breakdown:      blob,
	}, nil
}

// monthlyPayment amortizes principal over the term; zero APR divides evenly.
func monthlyPayment(principal decimal.Decimal, terms domain.FinancingTerms) decimal.Decimal {
	n := terms.TermMonths
	if n <= 0 || principal.IsZero() {
		return decimal.Zero
	}
	months := decimal.NewFromInt(int64(n))
	if terms.APR.IsZero() {
		return principal.Div(months).Round(2)
	}
	rate := terms.APR.Div(twelveHundred)
	growth := decimal.NewFromInt(1).Add(rate).Pow(months)
	// P * r * g / (g - 1)
	return principal.Mul(rate).Mul(growth).Div(growth.Sub(decimal.NewFromInt(1))).Round(2)
}
