package db

import (
	"context"
	"errors"
	"time"

	e "github.com/gartstein/fleet/internal/fleet/errors"
	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (r *Repository) CreateCompany(ctx context.Context, company *models.Company) error {
	return create(ctx, r.db, company, e.ErrDuplicateSlug)
}

func (r *Repository) GetCompany(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	return getByID[models.Company](ctx, r.db, id)
}

func (r *Repository) GetCompanyBySlug(ctx context.Context, slug string) (*models.Company, error) {
	return r.findCompany(ctx, "slug = ?", slug)
}

// GetCompanyByCustomerID resolves the company a provider customer belongs to.
func (r *Repository) GetCompanyByCustomerID(ctx context.Context, customerID string) (*models.Company, error) {
	if customerID == "" {
		return nil, e.ErrNotFound
	}
	return r.findCompany(ctx, "payment_customer_id = ?", customerID)
}

func (r *Repository) findCompany(ctx context.Context, query string, arg any) (*models.Company, error) {
	var company models.Company
	result := r.db.WithContext(ctx).First(&company, query, arg)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, e.ErrNotFound
		}
		return nil, result.Error
	}
	return &company, nil
}

func (r *Repository) CompanyExistsBySlug(ctx context.Context, slug string) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.Company{}).
		Where("slug = ?", slug).
		Limit(1).
		Count(&count)
	return count > 0, result.Error
}

func (r *Repository) ListCompanies(ctx context.Context, limit, offset int) ([]models.Company, error) {
	q := ListQuery{Limit: limit, Offset: offset}
	q.Scope.All = true
	return listBy[models.Company](ctx, r.db, q, "", "created_at DESC")
}

func (r *Repository) UpdateCompany(ctx context.Context, update *models.CompanyUpdate) error {
	return updateByID(ctx, r.db, &models.Company{}, update.ID, update, e.ErrDuplicateSlug)
}

// SetCompanyBilling writes the denormalized billing flags together.
func (r *Repository) SetCompanyBilling(ctx context.Context, id uuid.UUID, status models.CompanyStatus, overdue bool) error {
	return updateByID(ctx, r.db, &models.Company{}, id, map[string]any{
		"subscription_status": status,
		"is_payment_overdue":  overdue,
		"updated_at":          time.Now(),
	}, e.ErrDuplicate)
}

func (r *Repository) SetCompanyActive(ctx context.Context, id uuid.UUID, active bool) error {
	return updateByID(ctx, r.db, &models.Company{}, id, map[string]any{
		"is_active":  active,
		"updated_at": time.Now(),
	}, e.ErrDuplicate)
}

func (r *Repository) SetPaymentCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	return updateByID(ctx, r.db, &models.Company{}, id, map[string]any{
		"payment_customer_id": customerID,
		"updated_at":          time.Now(),
	}, e.ErrDuplicate)
}

func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	return create(ctx, r.db, user, e.ErrDuplicate)
}

// GetUser loads a user together with its company.
func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.findUser(ctx, "id = ?", id)
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findUser(ctx, "username = ?", username)
}

func (r *Repository) findUser(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User
	result := r.db.WithContext(ctx).Preload("Company").First(&user, query, arg)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, e.ErrNotFound
		}
		return nil, result.Error
	}
	return &user, nil
}

func (r *Repository) ListUsers(ctx context.Context, q ListQuery) ([]models.User, error) {
	return listBy[models.User](ctx, r.db, q, "", "username ASC")
}

func (r *Repository) UpdateUser(ctx context.Context, update *models.UserUpdate) error {
	return updateByID(ctx, r.db, &models.User{}, update.ID, update, e.ErrDuplicate)
}

func (r *Repository) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return updateByID(ctx, r.db, &models.User{}, id, map[string]any{"last_login_at": at}, e.ErrDuplicate)
}

func (r *Repository) SetCompanyPlan(ctx context.Context, id uuid.UUID, tier models.PlanTier) error {
	return updateByID(ctx, r.db, &models.Company{}, id, map[string]any{
		"subscription_plan": tier,
		"updated_at":        time.Now(),
	}, e.ErrDuplicate)
}
