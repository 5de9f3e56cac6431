package authz

import (
	"slices"

	e "github.com/gartstein/fleet/internal/fleet/errors"
	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/google/uuid"
)

// Action is what the caller wants to do with a resource.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Safe reports whether the action does not mutate state.
func (a Action) Safe() bool {
	return a == ActionRead
}

// Policy is the single parameterized permission predicate. Admins of the
// owning company always pass the role check; platform administrators bypass
// company scoping entirely.
type Policy struct {
	Name string
	// ReadRoles may perform safe actions. Nil means any company member.
	ReadRoles []models.Role
	// WriteRoles may perform mutating actions. Nil means any company member.
	WriteRoles []models.Role
	// OwnerScoped restricts non-admins to objects they personally own.
	OwnerScoped bool
	// PlatformOnly admits platform administrators only.
	PlatformOnly bool
}

// Allow builds a role-gated policy used for both reads and writes.
func Allow(name string, roles []models.Role, ownerScoped bool) Policy {
	return Policy{Name: name, ReadRoles: roles, WriteRoles: roles, OwnerScoped: ownerScoped}
}

var (
	// IsOrgMember admits any authenticated user that belongs to a company.
	IsOrgMember = Policy{Name: "IsOrgMember"}
	// IsOrgAdmin admits company admins only.
	IsOrgAdmin = Allow("IsOrgAdmin", []models.Role{}, false)
	// IsOrgAdminOrReadOnly lets members read and admins mutate.
	IsOrgAdminOrReadOnly = Policy{Name: "IsOrgAdminOrReadOnly", WriteRoles: []models.Role{models.RoleAdmin}}
	// IsDriverOrAdmin lets drivers reach only the objects they drive.
	IsDriverOrAdmin = Allow("IsDriverOrAdmin", []models.Role{models.RoleDriver}, true)
	// IsStaffOrAdmin admits staff and admins.
	IsStaffOrAdmin = Allow("IsStaffOrAdmin", []models.Role{models.RoleStaff}, false)
	// IsInspectorOrAdmin admits inspectors and admins.
	IsInspectorOrAdmin = Allow("IsInspectorOrAdmin", []models.Role{models.RoleInspector}, false)
	// IsPlatformAdmin admits platform operators only.
	IsPlatformAdmin = Policy{Name: "IsPlatformAdmin", PlatformOnly: true}
)

// WithMemberReads returns a copy of p that lets any company member read.
func (p Policy) WithMemberReads() Policy {
	p.ReadRoles = nil
	return p
}

func (p Policy) rolesFor(a Action) []models.Role {
	if a.Safe() {
		return p.ReadRoles
	}
	return p.WriteRoles
}

// Check is the request-level decision: authentication, company membership
// and role.
func (p Policy) Check(pr *Principal, a Action) error {
	if !pr.Authenticated() {
		return e.ErrUnauthenticated
	}
	if pr.PlatformAdmin {
		return nil
	}
	if p.PlatformOnly {
		return e.ErrForbidden
	}
	if !pr.HasCompany() {
		return e.ErrForbidden
	}
	roles := p.rolesFor(a)
	if roles == nil || pr.Role == models.RoleAdmin || slices.Contains(roles, pr.Role) {
		return nil
	}
	return e.ErrForbidden
}

// CheckObject is the object-level decision. An object of another company is
// reported as not found so its existence does not leak across tenants.
func (p Policy) CheckObject(pr *Principal, a Action, obj models.Owned) error {
	if err := p.Check(pr, a); err != nil {
		return err
	}
	if pr.PlatformAdmin {
		return nil
	}
	if obj.OwningCompany() != pr.Company() {
		return e.ErrNotFound
	}
	if p.OwnerScoped && pr.Role != models.RoleAdmin {
		owned, ok := obj.(models.PersonallyOwned)
		if !ok || owned.OwnerUserID() != pr.UserID {
			return e.ErrForbidden
		}
	}
	return nil
}

// Scope is the row filter a list query must apply for a principal.
type Scope struct {
	// All is set for platform administrators.
	All       bool
	CompanyID uuid.UUID
	// OwnerID, when set, restricts rows to those personally owned by it.
	OwnerID *uuid.UUID
}

// ScopeFor returns the list filter for pr after Check has passed.
func (p Policy) ScopeFor(pr *Principal) Scope {
	if pr.PlatformAdmin {
		return Scope{All: true}
	}
	s := Scope{CompanyID: pr.Company()}
	if p.OwnerScoped && pr.Role != models.RoleAdmin {
		id := pr.UserID
		s.OwnerID = &id
	}
	return s
}
