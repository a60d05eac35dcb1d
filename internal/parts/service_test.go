package parts_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/workshoplabs/backend-garage/internal/parts"
	"github.com/workshoplabs/backend-garage/internal/tenant"
)

type countingStore struct {
	records   []parts.Record
	listCalls int
	nextID    int
}

func (c *countingStore) Insert(_ context.Context, rec parts.Record) (parts.Record, error) {
	c.nextID++
	rec.ID = "part-" + string(rune('a'+c.nextID))
	c.records = append(c.records, rec)
	return rec, nil
}

func (c *countingStore) Get(_ context.Context, orgID, id string) (parts.Record, error) {
	for _, rec := range c.records {
		if rec.ID == id && rec.OrgID == orgID {
			return rec, nil
		}
	}
	return parts.Record{}, parts.ErrNotFound
}

func (c *countingStore) List(_ context.Context, orgID, _ string, _, _ int) ([]parts.Record, int64, error) {
	c.listCalls++
	var out []parts.Record
	for _, rec := range c.records {
		if rec.OrgID == orgID {
			out = append(out, rec)
		}
	}
	return out, int64(len(out)), nil
}

func (c *countingStore) Update(_ context.Context, rec parts.Record) (parts.Record, error) {
	for i, stored := range c.records {
		if stored.ID == rec.ID && stored.OrgID == rec.OrgID {
			c.records[i] = rec
			return rec, nil
		}
	}
	return parts.Record{}, parts.ErrNotFound
}

func (c *countingStore) AdjustQuantity(_ context.Context, orgID, id string, delta float64) (parts.Record, error) {
	for i, stored := range c.records {
		if stored.ID == id && stored.OrgID == orgID {
			c.records[i].Quantity += delta
			return c.records[i], nil
		}
	}
	return parts.Record{}, parts.ErrNotFound
}

func (c *countingStore) ListLowStock(_ context.Context, orgID string, threshold float64, _ int) ([]parts.Record, error) {
	var out []parts.Record
	for _, rec := range c.records {
		if rec.OrgID == orgID && rec.Quantity <= threshold {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (c *countingStore) Delete(_ context.Context, orgID, id string) error {
	for i, stored := range c.records {
		if stored.ID == id && stored.OrgID == orgID {
			c.records = append(c.records[:i], c.records[i+1:]...)
			return nil
		}
	}
	return parts.ErrNotFound
}

func newCachedService(t *testing.T, store *countingStore) *parts.Service {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc, err := parts.NewService(parts.ServiceConfig{
		Store:    store,
		Redis:    client,
		CacheTTL: time.Minute,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return svc
}

func TestListServedFromCache(t *testing.T) {
	store := &countingStore{}
	svc := newCachedService(t, store)
	ctx := tenant.With(context.Background(), "org-1")

	_, err := svc.Create(ctx, "org-1", parts.Input{SKU: "FLT-01", Name: "Oil filter", UnitPrice: 2.5, Quantity: 10})
	require.NoError(t, err)

	first, err := svc.List(ctx, "org-1", "", 50, 0)
	require.NoError(t, err)
	require.Len(t, first.Items, 1)
	require.Equal(t, 1, store.listCalls)

	second, err := svc.List(ctx, "org-1", "", 50, 0)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, store.listCalls, "second read must hit the cache")
}

func TestWriteInvalidatesCache(t *testing.T) {
	store := &countingStore{}
	svc := newCachedService(t, store)
	ctx := tenant.With(context.Background(), "org-1")

	created, err := svc.Create(ctx, "org-1", parts.Input{SKU: "FLT-01", Name: "Oil filter", UnitPrice: 2.5, Quantity: 10})
	require.NoError(t, err)

	_, err = svc.List(ctx, "org-1", "", 50, 0)
	require.NoError(t, err)
	require.Equal(t, 1, store.listCalls)

	_, err = svc.Update(ctx, "org-1", created.ID, parts.Input{SKU: "FLT-01", Name: "Oil filter premium", UnitPrice: 3.5, Quantity: 10})
	require.NoError(t, err)

	result, err := svc.List(ctx, "org-1", "", 50, 0)
	require.NoError(t, err)
	require.Equal(t, 2, store.listCalls, "write must drop the cached list")
	require.Equal(t, "Oil filter premium", result.Items[0].Name)
}

func TestLineCandidatesReferencePart(t *testing.T) {
	store := &countingStore{}
	svc := newCachedService(t, store)
	ctx := tenant.With(context.Background(), "org-1")

	created, err := svc.Create(ctx, "org-1", parts.Input{SKU: "BRK-99", Name: "Brake pads", UnitPrice: 40, Quantity: 4})
	require.NoError(t, err)

	candidates, err := svc.LineCandidates(ctx, "org-1", "")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, created.ID, candidates[0].Suggested.SourcePartID)
	require.Equal(t, 40.0, candidates[0].Suggested.UnitPrice)
}
