// Package authz implements the organization-scoped, role-based permission
// predicates and the subscription gates applied to every fleet request.
package authz

import (
	"context"

	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/google/uuid"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID        uuid.UUID
	Username      string
	CompanyID     *uuid.UUID
	Role          models.Role
	PlatformAdmin bool
}

// PrincipalFromUser builds the principal for a loaded user.
func PrincipalFromUser(u *models.User) *Principal {
	return &Principal{
		UserID:        u.ID,
		Username:      u.Username,
		CompanyID:     u.CompanyID,
		Role:          u.Role,
		PlatformAdmin: u.IsPlatformAdmin,
	}
}

// Authenticated reports whether p identifies a user.
func (p *Principal) Authenticated() bool {
	return p != nil && p.UserID != uuid.Nil
}

// HasCompany reports whether p belongs to a company.
func (p *Principal) HasCompany() bool {
	return p.Authenticated() && p.CompanyID != nil && *p.CompanyID != uuid.Nil
}

// Company returns the caller's company id, or uuid.Nil.
func (p *Principal) Company() uuid.UUID {
	if !p.HasCompany() {
		return uuid.Nil
	}
	return *p.CompanyID
}

type contextKey string

const principalContextKey contextKey = "principal"

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// FromContext returns the principal stored in ctx, if any.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*Principal)
	return p, ok && p != nil
}
