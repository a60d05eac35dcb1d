// Package tenant resolves the organization an HTTP request belongs to and
// carries that identifier through context. Row-level scoping itself happens
// in the feature stores, which read the org id back out of context.
package tenant

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type contextKey string

const orgContextKey contextKey = "org.id"

// Resolver resolves organization identifiers from HTTP requests using either
// a header or the request subdomain.
type Resolver struct {
	HeaderName string
	RootDomain string
	DefaultOrg string
}

// NewResolver returns a resolver configured with the provided header name,
// root domain, and default organization slug. If headerName is empty,
// "X-Org-ID" is used.
func NewResolver(headerName, rootDomain, defaultOrg string) *Resolver {
	if headerName == "" {
		headerName = "X-Org-ID"
	}
	return &Resolver{
		HeaderName: headerName,
		RootDomain: strings.ToLower(strings.TrimSpace(rootDomain)),
		DefaultOrg: strings.TrimSpace(defaultOrg),
	}
}

// Middleware resolves the organization from the request and injects it into
// the context passed downstream.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		orgID := r.Resolve(req)
		if orgID == "" {
			orgID = r.DefaultOrg
		}
		if orgID != "" {
			ctx := WithOrg(req.Context(), orgID)
			req = req.WithContext(ctx)
		}
		next.ServeHTTP(w, req)
	})
}

// Resolve attempts to find the organization identifier from the configured
// header or the request subdomain.
func (r *Resolver) Resolve(req *http.Request) string {
	if r == nil || req == nil {
		return ""
	}
	if orgID := strings.TrimSpace(req.Header.Get(r.HeaderName)); orgID != "" {
		return orgID
	}

	host := hostWithoutPort(req.Host)
	if host == "" {
		return ""
	}
	subdomain := r.subdomainFromHost(host)
	return strings.TrimSpace(subdomain)
}

// subdomainFromHost extracts the org label in front of the configured root
// domain. Subdomain tenancy requires a root domain; without one there is no
// way to tell an org label from a plain hostname.
func (r *Resolver) subdomainFromHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" || r.RootDomain == "" {
		return ""
	}

	if host == r.RootDomain {
		return ""
	}
	suffix := "." + r.RootDomain
	if !strings.HasSuffix(host, suffix) {
		return ""
	}
	host = strings.TrimSuffix(host, suffix)

	parts := strings.Split(host, ".")
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

func hostWithoutPort(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if strings.HasPrefix(hostport, "[") {
		if idx := strings.Index(hostport, "]"); idx != -1 {
			host := hostport[1:idx]
			if host != "" {
				return host
			}
		}
	}
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	if idx := strings.Index(hostport, ":"); idx != -1 && strings.Count(hostport, ":") == 1 {
		return hostport[:idx]
	}
	return hostport
}

// WithOrg stores the organization identifier inside the context.
func WithOrg(ctx context.Context, orgID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, orgContextKey, orgID)
}

// FromContext extracts the organization identifier from the context if available.
func FromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	orgID, ok := ctx.Value(orgContextKey).(string)
	if !ok {
		return "", false
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return "", false
	}
	return orgID, true
}
