package billing

// ComputeBreakdown derives the monetary totals for an invoice from its line
// items, discount, tax rate, and payment history. It is a total function:
// malformed quantities or out-of-range rates are computed over as given, not
// rejected. The step order below is load-bearing; in particular tax is always
// computed on the post-discount amount.
func ComputeBreakdown(inv Invoice) Breakdown {
	var subtotal float64
	for _, item := range inv.Items {
		subtotal += item.Quantity * item.UnitPrice
	}

	var discount float64
	switch inv.Discount.Type {
	case DiscountPercentage:
		discount = subtotal * (inv.Discount.Value / 100)
	case DiscountFixed:
		// A fixed discount may legally exceed the subtotal, leaving a
		// negative after-discount amount.
		discount = inv.Discount.Value
	}

	afterDiscount := subtotal - discount
	tax := afterDiscount * (inv.TaxRatePercent / 100)
	total := afterDiscount + tax

	var paid float64
	for _, p := range inv.Payments {
		paid += p.Amount
	}

	return Breakdown{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		AfterDiscount:  afterDiscount,
		TaxAmount:      tax,
		Total:          total,
		PaidAmount:     paid,
		BalanceDue:     total - paid,
	}
}
