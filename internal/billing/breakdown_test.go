package billing_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/workshoplabs/backend-garage/internal/billing"
)

func TestBreakdownFixedDiscountAndTax(t *testing.T) {
	inv := billing.Invoice{
		Items: []billing.LineItem{
			{Description: "Oil Filter", Kind: billing.KindParts, Quantity: 1, UnitPrice: 12.50},
		},
		Discount:       billing.DiscountSpec{Type: billing.DiscountFixed, Value: 5},
		TaxRatePercent: 8,
	}
	b := billing.ComputeBreakdown(inv)

	require.InDelta(t, 12.50, b.Subtotal, 1e-9)
	require.InDelta(t, 5, b.DiscountAmount, 1e-9)
	require.InDelta(t, 7.50, b.AfterDiscount, 1e-9)
	require.InDelta(t, 0.60, b.TaxAmount, 1e-9)
	require.InDelta(t, 8.10, b.Total, 1e-9)
}

func TestBreakdownPaymentsReduceBalance(t *testing.T) {
	inv := billing.Invoice{
		Items: []billing.LineItem{
			{Description: "Oil Filter", Kind: billing.KindParts, Quantity: 1, UnitPrice: 12.50},
		},
		Discount:       billing.DiscountSpec{Type: billing.DiscountFixed, Value: 5},
		TaxRatePercent: 8,
		Payments: []billing.Payment{
			{Amount: 8.10, Method: "cash", Date: time.Now()},
		},
	}
	b := billing.ComputeBreakdown(inv)
	require.InDelta(t, 8.10, b.PaidAmount, 1e-9)
	require.InDelta(t, 0, b.BalanceDue, 1e-9)
}

func TestBreakdownZeroItems(t *testing.T) {
	b := billing.ComputeBreakdown(billing.Invoice{TaxRatePercent: 10})
	require.Equal(t, billing.Breakdown{}, b)
}

func TestBreakdownPercentageDiscount(t *testing.T) {
	inv := billing.Invoice{
		Items: []billing.LineItem{
			{Description: "Brake service", Kind: billing.KindLabor, Quantity: 2, UnitPrice: 50},
		},
		Discount:       billing.DiscountSpec{Type: billing.DiscountPercentage, Value: 10},
		TaxRatePercent: 20,
	}
	b := billing.ComputeBreakdown(inv)
	require.InDelta(t, 100, b.Subtotal, 1e-9)
	require.InDelta(t, 10, b.DiscountAmount, 1e-9)
	require.InDelta(t, 18, b.TaxAmount, 1e-9)
	require.InDelta(t, 108, b.Total, 1e-9)
}

// Tax must be recomputed on the post-discount amount: the same invoice with a
// different discount yields a different tax amount.
func TestTaxComputedAfterDiscount(t *testing.T) {
	base := billing.Invoice{
		Items:          []billing.LineItem{{Description: "Timing belt", Kind: billing.KindParts, Quantity: 1, UnitPrice: 200}},
		TaxRatePercent: 15,
	}
	noDiscount := billing.ComputeBreakdown(base)

	base.Discount = billing.DiscountSpec{Type: billing.DiscountFixed, Value: 40}
	discounted := billing.ComputeBreakdown(base)

	require.NotEqual(t, noDiscount.TaxAmount, discounted.TaxAmount)
	require.InDelta(t, 24, discounted.TaxAmount, 1e-9)
}

// A fixed discount larger than the subtotal is not clamped; the engine
// reports a negative after-discount amount as-is.
func TestFixedDiscountExceedsSubtotal(t *testing.T) {
	inv := billing.Invoice{
		Items:          []billing.LineItem{{Description: "Wiper blade", Kind: billing.KindParts, Quantity: 1, UnitPrice: 10}},
		Discount:       billing.DiscountSpec{Type: billing.DiscountFixed, Value: 25},
		TaxRatePercent: 0,
	}
	b := billing.ComputeBreakdown(inv)
	require.InDelta(t, -15, b.AfterDiscount, 1e-9)
	require.InDelta(t, -15, b.Total, 1e-9)
}

func TestOverpaymentYieldsNegativeBalance(t *testing.T) {
	inv := billing.Invoice{
		Items:    []billing.LineItem{{Description: "Diagnostics", Kind: billing.KindLabor, Quantity: 1, UnitPrice: 60}},
		Payments: []billing.Payment{{Amount: 100}},
	}
	b := billing.ComputeBreakdown(inv)
	require.InDelta(t, -40, b.BalanceDue, 1e-9)
}

// The structural identities hold exactly, not just approximately, because the
// calculator derives each figure from the previous one.
func TestBreakdownIdentities(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	types := []billing.DiscountType{billing.DiscountNone, billing.DiscountPercentage, billing.DiscountFixed}
	for i := 0; i < 500; i++ {
		inv := billing.Invoice{
			Discount:       billing.DiscountSpec{Type: types[rng.Intn(len(types))], Value: rng.Float64() * 200},
			TaxRatePercent: rng.Float64() * 30,
		}
		for n := rng.Intn(6); n > 0; n-- {
			inv.Items = append(inv.Items, billing.LineItem{
				Description: "line",
				Kind:        billing.KindParts,
				Quantity:    float64(rng.Intn(10)),
				UnitPrice:   rng.Float64() * 500,
			})
		}
		for n := rng.Intn(4); n > 0; n-- {
			inv.Payments = append(inv.Payments, billing.Payment{Amount: rng.Float64() * 300})
		}

		b := billing.ComputeBreakdown(inv)
		require.Equal(t, b.Subtotal-b.DiscountAmount, b.AfterDiscount)
		require.Equal(t, b.AfterDiscount+b.TaxAmount, b.Total)
		require.Equal(t, b.Total-b.PaidAmount, b.BalanceDue)
	}
}
