package db

import (
	"context"
	"errors"
	"time"

	e "github.com/gartstein/fleet/internal/fleet/errors"
	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertPlan inserts a plan or refreshes the catalogue fields of the plan
// with the same code.
func (r *Repository) UpsertPlan(ctx context.Context, plan *models.Plan) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "tier", "amount", "currency", "interval", "features",
			"max_vehicles", "max_users", "provider_price_id", "is_active", "updated_at",
		}),
	}).Create(plan).Error
}

func (r *Repository) ListActivePlans(ctx context.Context) ([]models.Plan, error) {
	var plans []models.Plan
	result := r.db.WithContext(ctx).Where("is_active = ?", true).Order("amount ASC").Find(&plans)
	if result.Error != nil {
		return nil, result.Error
	}
	return plans, nil
}

func (r *Repository) GetPlanByCode(ctx context.Context, code string) (*models.Plan, error) {
	return r.findPlan(ctx, "code = ?", code)
}

func (r *Repository) GetPlanByProviderPriceID(ctx context.Context, priceID string) (*models.Plan, error) {
	if priceID == "" {
		return nil, e.ErrNotFound
	}
	return r.findPlan(ctx, "provider_price_id = ?", priceID)
}

func (r *Repository) findPlan(ctx context.Context, query string, arg any) (*models.Plan, error) {
	var plan models.Plan
	result := r.db.WithContext(ctx).First(&plan, query, arg)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, e.ErrNotFound
		}
		return nil, result.Error
	}
	return &plan, nil
}

// GetSubscription returns the subscription of a company with its plan.
func (r *Repository) GetSubscription(ctx context.Context, companyID uuid.UUID) (*models.CompanySubscription, error) {
	var sub models.CompanySubscription
	result := r.db.WithContext(ctx).Preload("Plan").First(&sub, "company_id = ?", companyID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, e.ErrNotFound
		}
		return nil, result.Error
	}
	return &sub, nil
}

// SaveSubscription creates or fully rewrites the subscription of a company.
func (r *Repository) SaveSubscription(ctx context.Context, sub *models.CompanySubscription) error {
	if sub.ID == uuid.Nil {
		existing, err := r.GetSubscription(ctx, sub.CompanyID)
		switch {
		case err == nil:
			sub.ID = existing.ID
			sub.CreatedAt = existing.CreatedAt
		case !errors.Is(err, e.ErrNotFound):
			return err
		}
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(sub).Error
}

func (r *Repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return create(ctx, r.db, payment, e.ErrDuplicate)
}

func (r *Repository) ListPayments(ctx context.Context, q ListQuery) ([]models.Payment, error) {
	return listBy[models.Payment](ctx, r.db, q, "", "created_at DESC")
}

// GetOrCreateWebhookEvent inserts the event unless one with the same
// (provider, event id) exists, and returns the stored row. Concurrent
// deliveries of the same event are serialized by the unique index.
func (r *Repository) GetOrCreateWebhookEvent(ctx context.Context, event *models.WebhookEvent) (*models.WebhookEvent, bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(event)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected == 1 {
		return event, true, nil
	}

	var stored models.WebhookEvent
	err := r.db.WithContext(ctx).
		First(&stored, "provider = ? AND event_id = ?", event.Provider, event.EventID).Error
	if err != nil {
		return nil, false, err
	}
	return &stored, false, nil
}

func (r *Repository) GetWebhookEvent(ctx context.Context, provider, eventID string) (*models.WebhookEvent, error) {
	var stored models.WebhookEvent
	result := r.db.WithContext(ctx).First(&stored, "provider = ? AND event_id = ?", provider, eventID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, e.ErrNotFound
		}
		return nil, result.Error
	}
	return &stored, nil
}

func (r *Repository) MarkWebhookProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return updateByID(ctx, r.db, &models.WebhookEvent{}, id, map[string]any{
		"processed":     true,
		"processed_at":  at,
		"error_message": "",
		"updated_at":    at,
	}, e.ErrDuplicate)
}

// RecordWebhookFailure stores the last processing error and bumps the retry
// counter.
func (r *Repository) RecordWebhookFailure(ctx context.Context, id uuid.UUID, message string) error {
	return updateByID(ctx, r.db, &models.WebhookEvent{}, id, map[string]any{
		"error_message": message,
		"retry_count":   gorm.Expr("retry_count + ?", 1),
		"updated_at":    time.Now(),
	}, e.ErrDuplicate)
}

func (r *Repository) GetWebhookEventByID(ctx context.Context, id uuid.UUID) (*models.WebhookEvent, error) {
	return getByID[models.WebhookEvent](ctx, r.db, id)
}

// ListWebhookEvents lists deliveries, newest first, optionally filtered by
// their processed flag.
func (r *Repository) ListWebhookEvents(ctx context.Context, processed *bool, limit, offset int) ([]models.WebhookEvent, error) {
	q := ListQuery{Limit: limit, Offset: offset}
	q.Scope.All = true
	tx := r.db
	if processed != nil {
		tx = tx.Where("processed = ?", *processed)
	}
	return listBy[models.WebhookEvent](ctx, tx, q, "", "created_at DESC")
}
