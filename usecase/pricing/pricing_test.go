package pricing

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/proposals/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBuilder_Totals(t *testing.T) {
	snap, err := NewBuilder().Build(Input{
		Subtotal: d("10000"),
		Adders: []domain.CustomPricingAdder{
			{Category: "permit", Cost: d("250.50")},
			{Category: "trenching", Cost: d("749.50")},
		},
		Discounts: []DiscountLine{
			{Type: "bundle", Amount: d("500")},
			{Type: "special_offer", Amount: d("1000")},
			{Type: "bundle", Amount: d("100")},
		},
	})
	require.NoError(t, err)

	assert.True(t, snap.AddersTotal.Equal(d("1000")))
	assert.True(t, snap.DiscountTotal.Equal(d("1600")))
	assert.True(t, snap.Total.Equal(d("9400")))
	assert.True(t, snap.MonthlyPayment.IsZero())

	var b breakdown
	require.NoError(t, json.Unmarshal(snap.Breakdown, &b))
	assert.Equal(t, []string{"bundle", "special_offer"}, b.DiscountTypes)
	assert.Equal(t, "subtotal", b.Trace[0].Step)
	assert.Equal(t, "total", b.Trace[len(b.Trace)-1].Step)
}

func TestBuilder_TotalNeverNegative(t *testing.T) {
	snap, err := NewBuilder().Build(Input{
		Subtotal:  d("100"),
		Discounts: []DiscountLine{{Type: "promo", Amount: d("150")}},
	})
	require.NoError(t, err)
	assert.True(t, snap.Total.IsZero())
}

func TestBuilder_MonthlyPayment(t *testing.T) {
	t.Run("zero apr divides evenly", func(t *testing.T) {
		snap, err := NewBuilder().Build(Input{
			Subtotal:  d("12000"),
			Financing: domain.FinancingTerms{TermMonths: 12},
		})
		require.NoError(t, err)
		assert.True(t, snap.MonthlyPayment.Equal(d("1000")), snap.MonthlyPayment.String())
	})

	t.Run("amortized", func(t *testing.T) {
		snap, err := NewBuilder().Build(Input{
			Subtotal:  d("10000"),
			Financing: domain.FinancingTerms{TermMonths: 12, APR: d("12")},
		})
		require.NoError(t, err)
		// 10000 at 1% per month over 12 months.
		assert.True(t, snap.MonthlyPayment.Equal(d("888.49")), snap.MonthlyPayment.String())
	})
}

func TestBuilder_RejectsInvalidInput(t *testing.T) {
	_, err := NewBuilder().Build(Input{Subtotal: d("-1")})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	_, err = NewBuilder().Build(Input{Subtotal: d("1"), Discounts: []DiscountLine{{Amount: d("-5")}}})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	_, err = NewBuilder().Build(Input{Subtotal: d("1"), Financing: domain.FinancingTerms{TermMonths: -3}})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
}
