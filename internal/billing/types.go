// Package billing implements the invoice financial engine: the monetary
// breakdown calculator and the line-item reconciler. Both are pure except for
// the storage calls made while applying a reconciliation diff.
package billing

import "time"

// ItemKind distinguishes labor charges from parts on an invoice line.
type ItemKind string

const (
	KindLabor ItemKind = "labor"
	KindParts ItemKind = "parts"
)

// DiscountType enumerates how an invoice-level discount is interpreted.
type DiscountType string

const (
	DiscountNone       DiscountType = "none"
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// LineItem is a single billable entry on an invoice. SourcePartID and
// SourceTaskID link the line back to the part or work order it was generated
// from; manually entered lines carry neither.
type LineItem struct {
	ID           string   `json:"id,omitempty"`
	InvoiceID    string   `json:"invoice_id,omitempty"`
	OrgID        string   `json:"org_id,omitempty"`
	Description  string   `json:"description"`
	Kind         ItemKind `json:"kind"`
	Quantity     float64  `json:"quantity"`
	UnitPrice    float64  `json:"unit_price"`
	SourcePartID string   `json:"source_part_id,omitempty"`
	SourceTaskID string   `json:"source_task_id,omitempty"`
}

// Amount returns the extended line amount.
func (li LineItem) Amount() float64 {
	return li.Quantity * li.UnitPrice
}

// DiscountSpec describes the whole-invoice discount. Percentage values are
// interpreted as 0-100.
type DiscountSpec struct {
	Type  DiscountType `json:"type"`
	Value float64      `json:"value"`
}

// Payment records money received against an invoice. Payments are append-only
// from the engine's point of view.
type Payment struct {
	ID        string    `json:"id"`
	InvoiceID string    `json:"invoice_id"`
	Date      time.Time `json:"date"`
	Amount    float64   `json:"amount"`
	Method    string    `json:"method"`
	Notes     string    `json:"notes,omitempty"`
}

// Invoice is the read model the engine computes over. Discount and tax apply
// to the whole invoice, never per line.
type Invoice struct {
	ID             string       `json:"id"`
	Items          []LineItem   `json:"items"`
	Discount       DiscountSpec `json:"discount"`
	TaxRatePercent float64      `json:"tax_rate_percent"`
	Payments       []Payment    `json:"payments"`
}

// Breakdown is the derived set of monetary totals. It is never persisted.
// Total == AfterDiscount + TaxAmount and BalanceDue == Total - PaidAmount
// hold for every input; BalanceDue goes negative when an invoice is overpaid.
type Breakdown struct {
	Subtotal       float64 `json:"subtotal"`
	DiscountAmount float64 `json:"discount_amount"`
	AfterDiscount  float64 `json:"after_discount"`
	TaxAmount      float64 `json:"tax_amount"`
	Total          float64 `json:"total"`
	PaidAmount     float64 `json:"paid_amount"`
	BalanceDue     float64 `json:"balance_due"`
}

// ItemUpdate pairs a persisted item id with the values it should take.
type ItemUpdate struct {
	ExistingID string   `json:"existing_id"`
	NewValues  LineItem `json:"new_values"`
}

// ItemDiff is the minimal set of operations that transforms the persisted
// line items into the desired set.
type ItemDiff struct {
	ToAdd       []LineItem   `json:"to_add"`
	ToUpdate    []ItemUpdate `json:"to_update"`
	ToDeleteIDs []string     `json:"to_delete_ids"`
}

// Empty reports whether the diff contains no work.
func (d ItemDiff) Empty() bool {
	return len(d.ToAdd) == 0 && len(d.ToUpdate) == 0 && len(d.ToDeleteIDs) == 0
}
