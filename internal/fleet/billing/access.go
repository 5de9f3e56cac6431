package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gartstein/fleet/internal/fleet/authz"
	"github.com/gartstein/fleet/internal/fleet/cache"
	e "github.com/gartstein/fleet/internal/fleet/errors"
	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AccessStore interface {
	GetCompany(ctx context.Context, id uuid.UUID) (*models.Company, error)
	GetSubscription(ctx context.Context, companyID uuid.UUID) (*models.CompanySubscription, error)
}

// AccessChecker answers subscription gates from locally persisted billing
// state. It never calls a payment provider.
type AccessChecker struct {
	store  AccessStore
	cache  cache.AccessCache
	logger *zap.Logger
	now    func() time.Time
}

func NewAccessChecker(store AccessStore, c cache.AccessCache, logger *zap.Logger) *AccessChecker {
	if c == nil {
		c = cache.Noop{}
	}
	return &AccessChecker{store: store, cache: c, logger: logger.Named("access_checker"), now: time.Now}
}

// CanAccess implements authz.AccessLookup. Cache failures degrade to a
// database lookup.
func (a *AccessChecker) CanAccess(ctx context.Context, companyID uuid.UUID) (bool, error) {
	allowed, found, err := a.cache.Get(ctx, companyID)
	if err != nil {
		a.logger.Warn("access cache read failed", zap.Error(err), zap.String("company_id", companyID.String()))
	} else if found {
		return allowed, nil
	}

	allowed, err = a.evaluate(ctx, companyID)
	if err != nil {
		return false, err
	}
	if err := a.cache.Set(ctx, companyID, allowed); err != nil {
		a.logger.Warn("access cache write failed", zap.Error(err), zap.String("company_id", companyID.String()))
	}
	return allowed, nil
}

func (a *AccessChecker) evaluate(ctx context.Context, companyID uuid.UUID) (bool, error) {
	company, err := a.store.GetCompany(ctx, companyID)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load company: %w", err)
	}
	if !company.IsActive {
		return false, nil
	}

	sub, err := a.store.GetSubscription(ctx, companyID)
	if err != nil && !errors.Is(err, e.ErrNotFound) {
		return false, fmt.Errorf("failed to load subscription: %w", err)
	}
	return authz.SubscriptionAllows(sub, company, a.now()), nil
}

// Invalidate drops the cached decision of a company.
func (a *AccessChecker) Invalidate(ctx context.Context, companyID uuid.UUID) {
	if err := a.cache.Invalidate(ctx, companyID); err != nil {
		a.logger.Warn("access cache invalidation failed", zap.Error(err), zap.String("company_id", companyID.String()))
	}
}
