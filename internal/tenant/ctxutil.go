package tenant

import "context"

// From exposes the organization identifier retrieval helper.
func From(ctx context.Context) (string, bool) {
	return FromContext(ctx)
}

// With stores the organization identifier into the provided context.
func With(ctx context.Context, id string) context.Context {
	return WithOrg(ctx, id)
}

// PrefixKey creates a namespaced cache/queue key per organization slug or id.
func PrefixKey(orgSlugOrID, key string) string {
	if orgSlugOrID == "" {
		return key
	}
	return orgSlugOrID + ":" + key
}
