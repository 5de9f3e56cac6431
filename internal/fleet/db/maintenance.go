package db

import (
	"context"

	e "github.com/gartstein/fleet/internal/fleet/errors"
	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/google/uuid"
)

func (r *Repository) CreateIssue(ctx context.Context, i *models.Issue) error {
	return create(ctx, r.db, i, e.ErrDuplicate)
}

func (r *Repository) GetIssue(ctx context.Context, id uuid.UUID) (*models.Issue, error) {
	return getByID[models.Issue](ctx, r.db, id, "Vehicle")
}

func (r *Repository) ListIssues(ctx context.Context, q ListQuery) ([]models.Issue, error) {
	return listBy[models.Issue](ctx, r.db, q, "", "created_at DESC", "Vehicle")
}

func (r *Repository) UpdateIssue(ctx context.Context, update *models.IssueUpdate) error {
	return updateByID(ctx, r.db, &models.Issue{}, update.ID, update, e.ErrDuplicate)
}

func (r *Repository) CreateTicket(ctx context.Context, t *models.Ticket) error {
	return create(ctx, r.db, t, e.ErrDuplicate)
}

func (r *Repository) GetTicket(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	return getByID[models.Ticket](ctx, r.db, id, "Vehicle")
}

func (r *Repository) ListTickets(ctx context.Context, q ListQuery) ([]models.Ticket, error) {
	return listBy[models.Ticket](ctx, r.db, q, "", "created_at DESC", "Vehicle")
}

func (r *Repository) UpdateTicket(ctx context.Context, update *models.TicketUpdate) error {
	return updateByID(ctx, r.db, &models.Ticket{}, update.ID, update, e.ErrDuplicate)
}

func (r *Repository) CreateTelemetry(ctx context.Context, t *models.TelemetryRecord) error {
	return create(ctx, r.db, t, e.ErrDuplicate)
}

func (r *Repository) ListTelemetry(ctx context.Context, q ListQuery) ([]models.TelemetryRecord, error) {
	return listBy[models.TelemetryRecord](ctx, r.db, q, "", "recorded_at DESC")
}

func (r *Repository) CreateAuditEntry(ctx context.Context, a *models.AuditEntry) error {
	return create(ctx, r.db, a, e.ErrDuplicate)
}

// ListAuditEntries returns the history of one entity, oldest first.
func (r *Repository) ListAuditEntries(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	result := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("occurred_at ASC").
		Find(&entries)
	if result.Error != nil {
		return nil, result.Error
	}
	return entries, nil
}
