// Package cache holds key helpers for org-scoped Redis entries.
package cache

import (
	"context"

	"github.com/workshoplabs/backend-garage/internal/tenant"
)

// KeyPartsList returns a per-org cache key for parts catalog lists.
func KeyPartsList(ctx context.Context, base string) string {
	id, ok := tenant.From(ctx)
	if !ok {
		return base
	}
	return id + ":" + base
}

// KeyPart returns a per-org key for a given part id.
func KeyPart(ctx context.Context, partID string) string {
	id, ok := tenant.From(ctx)
	if !ok {
		return "part:" + partID
	}
	return id + ":part:" + partID
}
