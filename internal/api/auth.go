// Package api implements the HTTP surface of the homeroute service.
package api

import (
	"net/http"
	"strings"
)

type Principal struct {
	Tenant     string
	Role       string // admin, provider, customer
	ProviderID string
}

// getPrincipal extracts tenant and role from a bearer token, falling back
// to X-Tenant-Id / X-Role headers for local runs.
func (s *Server) getPrincipal(r *http.Request) Principal {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
		tok := strings.TrimSpace(authz[len("Bearer "):])
		if c, err := s.Auth.Verify(tok); err == nil {
			return Principal{Tenant: c.TenantID, Role: c.Role, ProviderID: c.ProviderID}
		}
	}
	tenant := r.Header.Get("X-Tenant-Id")
	if tenant == "" {
		tenant = "t_demo"
	}
	role := r.Header.Get("X-Role")
	if role == "" {
		role = "admin"
	}
	return Principal{Tenant: tenant, Role: role, ProviderID: r.Header.Get("X-Provider-Id")}
}

func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// canManageProvider reports whether the principal may act for providerRef.
func (p Principal) canManageProvider(providerRef string) bool {
	if p.IsAdmin() {
		return true
	}
	return p.Role == "provider" && p.ProviderID != "" && p.ProviderID == providerRef
}
