package auth

import (
	"context"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shr/shr/internal/platform/access"
)

type identityKey struct{}

// Claims is the token payload issued by the identity provider. Groups name
// the SHR roles; Profiles carry the ids and catchments those roles act for.
type Claims struct {
	jwt.RegisteredClaims
	Name     string    `json:"name,omitempty"`
	Email    string    `json:"email,omitempty"`
	Groups   []string  `json:"groups"`
	Profiles []Profile `json:"profiles,omitempty"`
}

// Profile binds a role to an id and, for facilities and providers, the
// catchments it is registered in.
type Profile struct {
	Name      string   `json:"name"`
	ID        string   `json:"id"`
	Catchment []string `json:"catchment,omitempty"`
}

// Identity maps the claims onto an access.Identity. Unknown groups are
// dropped. A facility, provider or patient group without a matching profile
// still yields the role, with no id or catchments.
func (c *Claims) Identity() access.Identity {
	id := access.Identity{ID: c.Subject, Name: c.Name}
	seen := make(map[access.RoleKind]bool)
	for _, g := range c.Groups {
		kind, ok := access.ParseRoleKind(g)
		if !ok || seen[kind] {
			continue
		}
		seen[kind] = true

		role := access.Role{Kind: kind}
		if p, ok := c.profile(kind); ok {
			role.ID = strings.TrimSpace(p.ID)
			for _, code := range p.Catchment {
				if code = strings.TrimSpace(code); code != "" {
					role.Catchments = append(role.Catchments, code)
				}
			}
		}
		id.Roles = append(id.Roles, role)
	}
	return id
}

func (c *Claims) profile(kind access.RoleKind) (Profile, bool) {
	for _, p := range c.Profiles {
		if k, ok := access.ParseRoleKind(p.Name); ok && k == kind {
			return p, true
		}
	}
	return Profile{}, false
}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id access.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller stored by the auth middleware. The
// zero Identity holds no roles and is denied everything.
func IdentityFromContext(ctx context.Context) access.Identity {
	id, _ := ctx.Value(identityKey{}).(access.Identity)
	return id
}
