package authz

import (
	"context"
	"fmt"
	"time"

	e "github.com/gartstein/fleet/internal/fleet/errors"
	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/google/uuid"
)

// AccessLookup answers whether a company's billing state permits feature use.
type AccessLookup interface {
	CanAccess(ctx context.Context, companyID uuid.UUID) (bool, error)
}

// SubscriptionAllows evaluates the locally persisted billing state: the
// subscription decides when present, otherwise the company trial does.
func SubscriptionAllows(sub *models.CompanySubscription, company *models.Company, now time.Time) bool {
	if sub != nil {
		return sub.CanAccessFeatures(now)
	}
	return company != nil && company.InTrial(now)
}

// SubscriptionGate denies access unless the caller's company may use features.
type SubscriptionGate struct {
	Name string
	// ReadOnlyBypass lets safe actions through regardless of billing state.
	ReadOnlyBypass bool
}

var (
	HasActiveSubscription     = &SubscriptionGate{Name: "HasActiveSubscription"}
	HasSubscriptionOrReadOnly = &SubscriptionGate{Name: "HasSubscriptionOrReadOnly", ReadOnlyBypass: true}
)

// Check applies the gate. Platform administrators always pass.
func (g *SubscriptionGate) Check(ctx context.Context, pr *Principal, a Action, lookup AccessLookup) error {
	if !pr.Authenticated() {
		return e.ErrUnauthenticated
	}
	if pr.PlatformAdmin {
		return nil
	}
	if g.ReadOnlyBypass && a.Safe() {
		return nil
	}
	if !pr.HasCompany() {
		return e.ErrForbidden
	}
	ok, err := lookup.CanAccess(ctx, pr.Company())
	if err != nil {
		return fmt.Errorf("failed to check subscription: %w", err)
	}
	if !ok {
		return e.ErrSubscriptionRequired
	}
	return nil
}

// Guard composes exactly one role policy with an optional subscription gate.
type Guard struct {
	Policy       Policy
	Subscription *SubscriptionGate
	Access       AccessLookup
}

// NewGuard builds a Guard. gate may be nil.
func NewGuard(policy Policy, gate *SubscriptionGate, access AccessLookup) Guard {
	return Guard{Policy: policy, Subscription: gate, Access: access}
}

// Authorize performs the request-level checks and returns the list scope.
func (g Guard) Authorize(ctx context.Context, pr *Principal, a Action) (Scope, error) {
	if err := g.Policy.Check(pr, a); err != nil {
		return Scope{}, err
	}
	if g.Subscription != nil {
		if err := g.Subscription.Check(ctx, pr, a, g.Access); err != nil {
			return Scope{}, err
		}
	}
	return g.Policy.ScopeFor(pr), nil
}

// AuthorizeObject performs the request-level and object-level checks.
func (g Guard) AuthorizeObject(ctx context.Context, pr *Principal, a Action, obj models.Owned) error {
	if _, err := g.Authorize(ctx, pr, a); err != nil {
		return err
	}
	return g.Policy.CheckObject(pr, a, obj)
}
