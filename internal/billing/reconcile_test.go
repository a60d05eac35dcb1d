package billing_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/workshoplabs/backend-garage/internal/billing"
)

type stubStore struct {
	calls []string

	inserted []billing.LineItem
	updated  map[string]billing.LineItem
	deleted  []string

	failInsert error
	failUpdate error
	failDelete error
}

func newStubStore() *stubStore {
	return &stubStore{updated: map[string]billing.LineItem{}}
}

func (s *stubStore) InsertItems(_ context.Context, items []billing.LineItem) ([]billing.LineItem, error) {
	s.calls = append(s.calls, "insert")
	if s.failInsert != nil {
		return nil, s.failInsert
	}
	out := make([]billing.LineItem, len(items))
	for i, item := range items {
		item.ID = fmt.Sprintf("new-%d", len(s.inserted)+i)
		out[i] = item
	}
	s.inserted = append(s.inserted, out...)
	return out, nil
}

func (s *stubStore) UpdateItem(_ context.Context, id string, values billing.LineItem) (billing.LineItem, error) {
	s.calls = append(s.calls, "update")
	if s.failUpdate != nil {
		return billing.LineItem{}, s.failUpdate
	}
	values.ID = id
	s.updated[id] = values
	return values, nil
}

func (s *stubStore) DeleteItems(_ context.Context, ids []string) error {
	s.calls = append(s.calls, "delete")
	if s.failDelete != nil {
		return s.failDelete
	}
	s.deleted = append(s.deleted, ids...)
	return nil
}

func TestDiffUpdateMatchedBySourcePart(t *testing.T) {
	existing := []billing.LineItem{
		{ID: "a", SourcePartID: "P1", Description: "Oil filter", Kind: billing.KindParts, Quantity: 2, UnitPrice: 10},
	}
	desired := []billing.LineItem{
		{SourcePartID: "P1", Description: "Oil filter", Kind: billing.KindParts, Quantity: 3, UnitPrice: 10},
	}

	diff := billing.DiffItems(existing, desired)
	require.Empty(t, diff.ToAdd)
	require.Empty(t, diff.ToDeleteIDs)
	require.Len(t, diff.ToUpdate, 1)
	require.Equal(t, "a", diff.ToUpdate[0].ExistingID)
	require.Equal(t, 3.0, diff.ToUpdate[0].NewValues.Quantity)
}

func TestDiffDeletesRemovedItems(t *testing.T) {
	existing := []billing.LineItem{{ID: "a", Description: "Labor", Kind: billing.KindLabor}}
	diff := billing.DiffItems(existing, nil)
	require.Empty(t, diff.ToAdd)
	require.Empty(t, diff.ToUpdate)
	require.Equal(t, []string{"a"}, diff.ToDeleteIDs)
}

func TestDiffAddsUnmatchedItems(t *testing.T) {
	desired := []billing.LineItem{{Description: "Coolant flush", Kind: billing.KindLabor, Quantity: 1, UnitPrice: 45}}
	diff := billing.DiffItems(nil, desired)
	require.Len(t, diff.ToAdd, 1)
	require.Empty(t, diff.ToUpdate)
	require.Empty(t, diff.ToDeleteIDs)
}

func TestDiffLeavesIdenticalItemsUntouched(t *testing.T) {
	existing := []billing.LineItem{
		{ID: "a", SourceTaskID: "T1", Description: "Brake job", Kind: billing.KindLabor, Quantity: 1, UnitPrice: 120},
	}
	desired := []billing.LineItem{
		{SourceTaskID: "T1", Description: "Brake job", Kind: billing.KindLabor, Quantity: 1, UnitPrice: 120},
	}
	require.True(t, billing.DiffItems(existing, desired).Empty())
}

// Source references outrank the description+kind fallback: a renamed line
// that keeps its part reference is an update, not a replace.
func TestDiffMatchKeyPriority(t *testing.T) {
	existing := []billing.LineItem{
		{ID: "a", SourcePartID: "P1", Description: "Oil filter", Kind: billing.KindParts, Quantity: 1, UnitPrice: 12},
	}
	desired := []billing.LineItem{
		{SourcePartID: "P1", Description: "Oil filter (OEM)", Kind: billing.KindParts, Quantity: 1, UnitPrice: 12},
	}
	diff := billing.DiffItems(existing, desired)
	require.Len(t, diff.ToUpdate, 1)
	require.Empty(t, diff.ToAdd)
	require.Empty(t, diff.ToDeleteIDs)
}

// A sourced line and a manual line never match even with equal descriptions.
func TestDiffSourcedAndManualDoNotMatch(t *testing.T) {
	existing := []billing.LineItem{
		{ID: "a", SourcePartID: "P1", Description: "Oil filter", Kind: billing.KindParts, Quantity: 1, UnitPrice: 12},
	}
	desired := []billing.LineItem{
		{Description: "Oil filter", Kind: billing.KindParts, Quantity: 1, UnitPrice: 12},
	}
	diff := billing.DiffItems(existing, desired)
	require.Len(t, diff.ToAdd, 1)
	require.Equal(t, []string{"a"}, diff.ToDeleteIDs)
}

// Reconciling a set against itself is a no-op.
func TestDiffIdempotence(t *testing.T) {
	items := []billing.LineItem{
		{ID: "a", SourcePartID: "P1", Description: "Filter", Kind: billing.KindParts, Quantity: 1, UnitPrice: 10},
		{ID: "b", SourceTaskID: "T9", Description: "Labor", Kind: billing.KindLabor, Quantity: 2, UnitPrice: 60},
		{ID: "c", Description: "Shop supplies", Kind: billing.KindParts, Quantity: 1, UnitPrice: 4.5},
	}
	require.True(t, billing.DiffItems(items, items).Empty())
}

// Every desired item appears in exactly one of {unchanged, update, add} and
// every existing item in exactly one of {unchanged, update, delete}.
func TestDiffCompleteness(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		existing := randomItems(rng, true)
		desired := randomItems(rng, false)
		diff := billing.DiffItems(existing, desired)

		updated := len(diff.ToUpdate)
		added := len(diff.ToAdd)
		deleted := len(diff.ToDeleteIDs)
		unchangedDesired := len(desired) - updated - added
		unchangedExisting := len(existing) - updated - deleted

		require.GreaterOrEqual(t, unchangedDesired, 0, "desired overcounted: %+v", diff)
		require.Equal(t, unchangedDesired, unchangedExisting,
			"unchanged sets disagree: existing=%v desired=%v diff=%+v", existing, desired, diff)

		seen := map[string]bool{}
		for _, u := range diff.ToUpdate {
			require.False(t, seen[u.ExistingID], "existing id in multiple buckets")
			seen[u.ExistingID] = true
		}
		for _, id := range diff.ToDeleteIDs {
			require.False(t, seen[id], "existing id in multiple buckets")
			seen[id] = true
		}
	}
}

func randomItems(rng *rand.Rand, withIDs bool) []billing.LineItem {
	n := rng.Intn(5)
	items := make([]billing.LineItem, 0, n)
	for i := 0; i < n; i++ {
		item := billing.LineItem{
			Description: fmt.Sprintf("desc-%d", rng.Intn(4)),
			Kind:        billing.KindParts,
			Quantity:    float64(1 + rng.Intn(3)),
			UnitPrice:   float64(rng.Intn(100)),
		}
		if rng.Intn(2) == 0 {
			item.Kind = billing.KindLabor
		}
		switch rng.Intn(3) {
		case 0:
			item.SourcePartID = fmt.Sprintf("P%d", rng.Intn(3))
		case 1:
			item.SourceTaskID = fmt.Sprintf("T%d", rng.Intn(3))
		}
		if withIDs {
			item.ID = fmt.Sprintf("ex-%d", i)
		}
		items = append(items, item)
	}
	return items
}

func TestApplyDiffPhaseOrder(t *testing.T) {
	store := newStubStore()
	diff := billing.ItemDiff{
		ToAdd:       []billing.LineItem{{Description: "New", Kind: billing.KindParts, Quantity: 1, UnitPrice: 5}},
		ToUpdate:    []billing.ItemUpdate{{ExistingID: "a", NewValues: billing.LineItem{Description: "Upd", Kind: billing.KindLabor, Quantity: 2, UnitPrice: 30}}},
		ToDeleteIDs: []string{"gone"},
	}

	err := billing.ApplyDiff(context.Background(), "inv-1", "org-1", diff, store)
	require.NoError(t, err)
	require.Equal(t, []string{"delete", "update", "insert"}, store.calls)
	require.Equal(t, []string{"gone"}, store.deleted)
}

func TestApplyDiffStampsInvoiceAndOrg(t *testing.T) {
	store := newStubStore()
	diff := billing.ItemDiff{
		ToAdd:    []billing.LineItem{{Description: "New", Kind: billing.KindParts, Quantity: 1, UnitPrice: 5}},
		ToUpdate: []billing.ItemUpdate{{ExistingID: "a", NewValues: billing.LineItem{Description: "Upd", Kind: billing.KindLabor}}},
	}

	require.NoError(t, billing.ApplyDiff(context.Background(), "inv-1", "org-1", diff, store))
	require.Equal(t, "inv-1", store.inserted[0].InvoiceID)
	require.Equal(t, "org-1", store.inserted[0].OrgID)
	require.Equal(t, "inv-1", store.updated["a"].InvoiceID)
	require.Equal(t, "org-1", store.updated["a"].OrgID)
}

func TestApplyDiffDeleteFailure(t *testing.T) {
	store := newStubStore()
	store.failDelete = errors.New("boom")
	diff := billing.ItemDiff{
		ToAdd:       []billing.LineItem{{Description: "New"}},
		ToDeleteIDs: []string{"a"},
	}

	err := billing.ApplyDiff(context.Background(), "inv-1", "org-1", diff, store)
	var recErr *billing.ReconciliationError
	require.ErrorAs(t, err, &recErr)
	require.Equal(t, billing.PhaseDelete, recErr.Phase)
	require.Equal(t, diff, recErr.Pending)
	require.Equal(t, []string{"delete"}, store.calls)
}

func TestApplyDiffUpdateFailureKeepsRemainder(t *testing.T) {
	store := newStubStore()
	store.failUpdate = errors.New("boom")
	diff := billing.ItemDiff{
		ToAdd: []billing.LineItem{{Description: "New"}},
		ToUpdate: []billing.ItemUpdate{
			{ExistingID: "a", NewValues: billing.LineItem{Description: "First"}},
			{ExistingID: "b", NewValues: billing.LineItem{Description: "Second"}},
		},
	}

	err := billing.ApplyDiff(context.Background(), "inv-1", "org-1", diff, store)
	var recErr *billing.ReconciliationError
	require.ErrorAs(t, err, &recErr)
	require.Equal(t, billing.PhaseUpdate, recErr.Phase)
	require.Len(t, recErr.Pending.ToUpdate, 2)
	require.Len(t, recErr.Pending.ToAdd, 1)
	require.Empty(t, recErr.Pending.ToDeleteIDs)
}

func TestApplyDiffInsertFailure(t *testing.T) {
	store := newStubStore()
	store.failInsert = errors.New("boom")
	diff := billing.ItemDiff{
		ToAdd:       []billing.LineItem{{Description: "New"}},
		ToDeleteIDs: []string{"a"},
	}

	err := billing.ApplyDiff(context.Background(), "inv-1", "org-1", diff, store)
	var recErr *billing.ReconciliationError
	require.ErrorAs(t, err, &recErr)
	require.Equal(t, billing.PhaseInsert, recErr.Phase)
	require.Empty(t, recErr.Pending.ToDeleteIDs, "completed phases are not pending")
	require.Len(t, recErr.Pending.ToAdd, 1)
	require.Equal(t, []string{"delete", "insert"}, store.calls)
}

func TestApplyDiffEmptyIsNoop(t *testing.T) {
	store := newStubStore()
	require.NoError(t, billing.ApplyDiff(context.Background(), "inv-1", "org-1", billing.ItemDiff{}, store))
	require.Empty(t, store.calls)
}
