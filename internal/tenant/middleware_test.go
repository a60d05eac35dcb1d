package tenant_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/workshoplabs/backend-garage/internal/tenant"
)

func TestResolveFromHeader(t *testing.T) {
	resolver := tenant.NewResolver("", "", "")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Org-ID", "org-42")
	if got := resolver.Resolve(req); got != "org-42" {
		t.Fatalf("expected org-42, got %q", got)
	}
}

func TestResolveFromSubdomain(t *testing.T) {
	resolver := tenant.NewResolver("", "garage.example.com", "")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "midtown.garage.example.com:8080"
	if got := resolver.Resolve(req); got != "midtown" {
		t.Fatalf("expected midtown, got %q", got)
	}
}

func TestResolveRootDomainHasNoOrg(t *testing.T) {
	resolver := tenant.NewResolver("", "garage.example.com", "")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "garage.example.com"
	if got := resolver.Resolve(req); got != "" {
		t.Fatalf("expected empty org, got %q", got)
	}
}

func TestResolveIgnoresHostWithoutRootDomain(t *testing.T) {
	resolver := tenant.NewResolver("", "", "")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "example.com"
	if got := resolver.Resolve(req); got != "" {
		t.Fatalf("expected empty org, got %q", got)
	}
}

func TestMiddlewareFallsBackToDefault(t *testing.T) {
	resolver := tenant.NewResolver("", "", "main")
	var seen string
	handler := resolver.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = tenant.From(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if seen != "main" {
		t.Fatalf("expected default org, got %q", seen)
	}
}
