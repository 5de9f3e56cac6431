package db

import (
	"context"

	e "github.com/gartstein/fleet/internal/fleet/errors"
	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/google/uuid"
)

func (r *Repository) CreateVehicle(ctx context.Context, v *models.Vehicle) error {
	return create(ctx, r.db, v, e.ErrDuplicate)
}

func (r *Repository) GetVehicle(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
	return getByID[models.Vehicle](ctx, r.db, id)
}

func (r *Repository) ListVehicles(ctx context.Context, q ListQuery) ([]models.Vehicle, error) {
	return listBy[models.Vehicle](ctx, r.db, q, "", "reg_number ASC")
}

func (r *Repository) UpdateVehicle(ctx context.Context, update *models.VehicleUpdate) error {
	return updateByID(ctx, r.db, &models.Vehicle{}, update.ID, update, e.ErrDuplicate)
}

func (r *Repository) DeleteVehicle(ctx context.Context, id uuid.UUID) error {
	return deleteByID(ctx, r.db, &models.Vehicle{}, id)
}

func (r *Repository) CountVehicles(ctx context.Context, companyID uuid.UUID) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.Vehicle{}).Where("company_id = ?", companyID).Count(&count)
	return count, result.Error
}

func (r *Repository) CreateShift(ctx context.Context, s *models.Shift) error {
	return create(ctx, r.db, s, e.ErrDuplicate)
}

func (r *Repository) GetShift(ctx context.Context, id uuid.UUID) (*models.Shift, error) {
	return getByID[models.Shift](ctx, r.db, id, "Vehicle")
}

func (r *Repository) ListShifts(ctx context.Context, q ListQuery) ([]models.Shift, error) {
	return listBy[models.Shift](ctx, r.db, q, "driver_id", "started_at DESC", "Vehicle")
}

func (r *Repository) UpdateShift(ctx context.Context, update *models.ShiftUpdate) error {
	return updateByID(ctx, r.db, &models.Shift{}, update.ID, update, e.ErrDuplicate)
}

func (r *Repository) CreateInspection(ctx context.Context, i *models.Inspection) error {
	return create(ctx, r.db, i, e.ErrDuplicate)
}

func (r *Repository) GetInspection(ctx context.Context, id uuid.UUID) (*models.Inspection, error) {
	return getByID[models.Inspection](ctx, r.db, id, "Vehicle")
}

func (r *Repository) ListInspections(ctx context.Context, q ListQuery) ([]models.Inspection, error) {
	return listBy[models.Inspection](ctx, r.db, q, "", "created_at DESC", "Vehicle")
}

func (r *Repository) UpdateInspection(ctx context.Context, update *models.InspectionUpdate) error {
	return updateByID(ctx, r.db, &models.Inspection{}, update.ID, update, e.ErrDuplicate)
}
