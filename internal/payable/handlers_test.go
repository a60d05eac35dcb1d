package payable_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/workshoplabs/backend-garage/internal/payable"
	"github.com/workshoplabs/backend-garage/internal/tenant"
)

type stubStore struct {
	records []payable.Record
}

func (s *stubStore) Insert(_ context.Context, rec payable.Record) (payable.Record, error) {
	rec.ID = "pay-1"
	rec.Status = payable.StatusUnpaid
	s.records = append(s.records, rec)
	return rec, nil
}

func (s *stubStore) Get(_ context.Context, orgID, id string) (payable.Record, error) {
	for _, rec := range s.records {
		if rec.ID == id && rec.OrgID == orgID {
			return rec, nil
		}
	}
	return payable.Record{}, payable.ErrNotFound
}

func (s *stubStore) List(_ context.Context, orgID, status string, overdue bool, _, _ int) ([]payable.Record, int64, error) {
	now := time.Now()
	var out []payable.Record
	for _, rec := range s.records {
		if rec.OrgID != orgID {
			continue
		}
		if status != "" && rec.Status != status {
			continue
		}
		if overdue && (rec.Status != payable.StatusUnpaid || rec.DueDate == nil || !rec.DueDate.Before(now)) {
			continue
		}
		out = append(out, rec)
	}
	return out, int64(len(out)), nil
}

func (s *stubStore) Update(_ context.Context, rec payable.Record) (payable.Record, error) {
	for i, stored := range s.records {
		if stored.ID == rec.ID && stored.OrgID == rec.OrgID {
			rec.Status = stored.Status
			s.records[i] = rec
			return rec, nil
		}
	}
	return payable.Record{}, payable.ErrNotFound
}

func (s *stubStore) MarkPaid(_ context.Context, orgID, id string, at time.Time) (payable.Record, error) {
	for i, stored := range s.records {
		if stored.ID == id && stored.OrgID == orgID {
			s.records[i].Status = payable.StatusPaid
			s.records[i].PaidAt = &at
			return s.records[i], nil
		}
	}
	return payable.Record{}, payable.ErrNotFound
}

func (s *stubStore) Delete(_ context.Context, orgID, id string) error {
	for i, stored := range s.records {
		if stored.ID == id && stored.OrgID == orgID {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return payable.ErrNotFound
}

func orgRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(tenant.With(req.Context(), "org-1"))
}

func TestCreateStartsUnpaid(t *testing.T) {
	store := &stubStore{}
	handler := payable.NewHandler(payable.HandlerConfig{Store: store})

	rec := httptest.NewRecorder()
	handler.Create(rec, orgRequest(http.MethodPost, "/v1/payables", `{"supplier":"PartsCo","amount":120.5}`))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, store.records, 1)
	require.Equal(t, payable.StatusUnpaid, store.records[0].Status)
	require.Equal(t, "org-1", store.records[0].OrgID)
}

func TestCreateRejectsNonPositiveAmount(t *testing.T) {
	handler := payable.NewHandler(payable.HandlerConfig{Store: &stubStore{}})

	rec := httptest.NewRecorder()
	handler.Create(rec, orgRequest(http.MethodPost, "/v1/payables", `{"supplier":"PartsCo","amount":0}`))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestListOverdueFilter(t *testing.T) {
	past := time.Now().Add(-48 * time.Hour)
	future := time.Now().Add(48 * time.Hour)
	store := &stubStore{records: []payable.Record{
		{ID: "pay-1", OrgID: "org-1", Supplier: "PartsCo", Status: payable.StatusUnpaid, DueDate: &past},
		{ID: "pay-2", OrgID: "org-1", Supplier: "OilCo", Status: payable.StatusUnpaid, DueDate: &future},
		{ID: "pay-3", OrgID: "org-1", Supplier: "TireCo", Status: payable.StatusPaid, DueDate: &past},
	}}
	handler := payable.NewHandler(payable.HandlerConfig{Store: store})

	rec := httptest.NewRecorder()
	handler.List(rec, orgRequest(http.MethodGet, "/v1/payables?overdue=true", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1", rec.Header().Get("X-Total-Count"))
	require.Contains(t, rec.Body.String(), "PartsCo")
	require.NotContains(t, rec.Body.String(), "OilCo")
	require.NotContains(t, rec.Body.String(), "TireCo")
}

func TestMarkPaidStampsPaidAt(t *testing.T) {
	store := &stubStore{records: []payable.Record{
		{ID: "pay-1", OrgID: "org-1", Supplier: "PartsCo", Status: payable.StatusUnpaid},
	}}
	handler := payable.NewHandler(payable.HandlerConfig{Store: store})

	req := orgRequest(http.MethodPost, "/v1/payables/pay-1/pay", "")
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("payableID", "pay-1")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rec := httptest.NewRecorder()
	handler.MarkPaid(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, payable.StatusPaid, store.records[0].Status)
	require.NotNil(t, store.records[0].PaidAt)
}

func TestMarkPaidUnknownPayable(t *testing.T) {
	handler := payable.NewHandler(payable.HandlerConfig{Store: &stubStore{}})

	req := orgRequest(http.MethodPost, "/v1/payables/missing/pay", "")
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("payableID", "missing")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rec := httptest.NewRecorder()
	handler.MarkPaid(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
