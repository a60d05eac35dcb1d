package billing

import (
	"context"
	"fmt"
)

// Phase names the stage of ApplyDiff in which a storage call failed.
type Phase string

const (
	PhaseDelete Phase = "delete"
	PhaseUpdate Phase = "update"
	PhaseInsert Phase = "insert"
)

// ItemStore is the persistence collaborator ApplyDiff writes through. Each
// operation is fallible and independent; the store is not assumed to be
// transactional.
type ItemStore interface {
	InsertItems(ctx context.Context, items []LineItem) ([]LineItem, error)
	UpdateItem(ctx context.Context, id string, values LineItem) (LineItem, error)
	DeleteItems(ctx context.Context, ids []string) error
}

// ReconciliationError reports a storage failure during ApplyDiff. Pending
// holds the portion of the diff that has not been applied, so the caller can
// retry just the remaining phases or re-read persisted state instead.
type ReconciliationError struct {
	Phase   Phase
	Pending ItemDiff
	Err     error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("billing: reconcile %s phase: %v", e.Phase, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }

// sameLogicalItem implements the match key that decides whether a persisted
// and a desired line represent the same logical entry. Source references take
// priority; lines without any source reference fall back to description+kind,
// which makes two manually entered lines with identical description and kind
// indistinguishable. That weakness is intentional and must not be "fixed"
// here without changing the edit-session contract.
func sameLogicalItem(a, b LineItem) bool {
	if a.SourcePartID != "" && b.SourcePartID != "" {
		return a.SourcePartID == b.SourcePartID
	}
	if a.SourceTaskID != "" && b.SourceTaskID != "" {
		return a.SourceTaskID == b.SourceTaskID
	}
	if a.SourcePartID == "" && a.SourceTaskID == "" && b.SourcePartID == "" && b.SourceTaskID == "" {
		return a.Description == b.Description && a.Kind == b.Kind
	}
	return false
}

// DiffItems computes the minimal add/update/delete set that transforms
// existing into desired. Neither slice is mutated. Every desired item lands
// in exactly one of {unchanged, ToUpdate, ToAdd} and every existing item in
// exactly one of {unchanged, ToUpdate, ToDeleteIDs}.
func DiffItems(existing, desired []LineItem) ItemDiff {
	var diff ItemDiff
	matched := make([]bool, len(existing))

	for _, want := range desired {
		idx := -1
		for i, have := range existing {
			if matched[i] {
				continue
			}
			if sameLogicalItem(have, want) {
				idx = i
				break
			}
		}
		if idx < 0 {
			diff.ToAdd = append(diff.ToAdd, want)
			continue
		}
		matched[idx] = true
		have := existing[idx]
		if have.Quantity != want.Quantity || have.UnitPrice != want.UnitPrice || have.Description != want.Description {
			diff.ToUpdate = append(diff.ToUpdate, ItemUpdate{ExistingID: have.ID, NewValues: want})
		}
	}

	for i, have := range existing {
		if !matched[i] {
			diff.ToDeleteIDs = append(diff.ToDeleteIDs, have.ID)
		}
	}
	return diff
}

// ApplyDiff applies the diff through the store in a fixed order: deletes,
// then updates, then inserts. The order avoids transient identity conflicts
// when a line is effectively replaced. Phases run strictly sequentially and a
// failure stops the remaining work; no rollback is attempted. Inserted rows
// are stamped with the invoice id and the opaque organization tag.
func ApplyDiff(ctx context.Context, invoiceID, orgID string, diff ItemDiff, store ItemStore) error {
	if len(diff.ToDeleteIDs) > 0 {
		if err := store.DeleteItems(ctx, diff.ToDeleteIDs); err != nil {
			return &ReconciliationError{Phase: PhaseDelete, Pending: diff, Err: err}
		}
	}

	for i, upd := range diff.ToUpdate {
		values := upd.NewValues
		values.InvoiceID = invoiceID
		values.OrgID = orgID
		if _, err := store.UpdateItem(ctx, upd.ExistingID, values); err != nil {
			return &ReconciliationError{
				Phase:   PhaseUpdate,
				Pending: ItemDiff{ToAdd: diff.ToAdd, ToUpdate: diff.ToUpdate[i:]},
				Err:     err,
			}
		}
	}

	if len(diff.ToAdd) > 0 {
		inserts := make([]LineItem, len(diff.ToAdd))
		for i, item := range diff.ToAdd {
			item.InvoiceID = invoiceID
			item.OrgID = orgID
			inserts[i] = item
		}
		if _, err := store.InsertItems(ctx, inserts); err != nil {
			return &ReconciliationError{
				Phase:   PhaseInsert,
				Pending: ItemDiff{ToAdd: diff.ToAdd},
				Err:     err,
			}
		}
	}
	return nil
}
