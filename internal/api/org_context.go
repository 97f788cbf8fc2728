package api

import (
	"context"
	"net/http"
	"strings"
)

// orgIDKey is the context key for the resolved organization ID.
type orgIDKey struct{}

// OrgResolver extracts the tenant from incoming requests.
// Priority: X-Organization-ID header, then the org_id query parameter,
// then the configured dev default. Every /api route requires a tenant.
type OrgResolver struct {
	devOrgID string
}

// NewOrgResolver creates a resolver. devOrgID is assumed for requests
// carrying no tenant; empty means the header is mandatory.
func NewOrgResolver(devOrgID string) *OrgResolver {
	return &OrgResolver{devOrgID: devOrgID}
}

// Resolve returns the organization ID for a request, or "" when none
// can be determined.
func (p *OrgResolver) Resolve(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Organization-ID")); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.URL.Query().Get("org_id")); id != "" {
		return id
	}
	return p.devOrgID
}

// RequireOrg rejects requests without a resolvable tenant and stores
// the organization ID in the request context for handlers downstream.
func (p *OrgResolver) RequireOrg(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID := p.Resolve(r)
		if orgID == "" {
			respondError(w, http.StatusUnauthorized, "organization context required")
			return
		}
		ctx := context.WithValue(r.Context(), orgIDKey{}, orgID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OrgIDFromContext returns the organization ID stored by RequireOrg,
// or "" outside of it.
func OrgIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(orgIDKey{}).(string); ok {
		return id
	}
	return ""
}
