package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gartstein/fleet/internal/fleet/authz"
	"github.com/gartstein/fleet/internal/fleet/db"
	e "github.com/gartstein/fleet/internal/fleet/errors"
	"github.com/gartstein/fleet/internal/fleet/events"
	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FleetRepository defines the storage interface for vehicles, shifts and
// inspections.
type FleetRepository interface {
	CreateVehicle(ctx context.Context, v *models.Vehicle) error
	GetVehicle(ctx context.Context, id uuid.UUID) (*models.Vehicle, error)
	ListVehicles(ctx context.Context, q db.ListQuery) ([]models.Vehicle, error)
	UpdateVehicle(ctx context.Context, update *models.VehicleUpdate) error
	DeleteVehicle(ctx context.Context, id uuid.UUID) error
	CountVehicles(ctx context.Context, companyID uuid.UUID) (int64, error)
	GetSubscription(ctx context.Context, companyID uuid.UUID) (*models.CompanySubscription, error)

	CreateShift(ctx context.Context, s *models.Shift) error
	GetShift(ctx context.Context, id uuid.UUID) (*models.Shift, error)
	ListShifts(ctx context.Context, q db.ListQuery) ([]models.Shift, error)
	UpdateShift(ctx context.Context, update *models.ShiftUpdate) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)

	CreateInspection(ctx context.Context, i *models.Inspection) error
	GetInspection(ctx context.Context, id uuid.UUID) (*models.Inspection, error)
	ListInspections(ctx context.Context, q db.ListQuery) ([]models.Inspection, error)
	UpdateInspection(ctx context.Context, update *models.InspectionUpdate) error

	WithTransaction(ctx context.Context, fn func(repo *db.Repository) error) error
}

// VehicleService manages the vehicles of a company.
type VehicleService struct {
	repo     FleetRepository
	guard    authz.Guard
	producer EventProducer
	logger   *zap.Logger
}

func NewVehicleService(repo FleetRepository, access authz.AccessLookup, producer EventProducer, logger *zap.Logger) *VehicleService {
	return &VehicleService{
		repo:     repo,
		guard:    authz.NewGuard(authz.IsOrgAdminOrReadOnly, authz.HasSubscriptionOrReadOnly, access),
		producer: producer,
		logger:   logger.Named("vehicle_service"),
	}
}

func (s *VehicleService) List(ctx context.Context, pr *authz.Principal, opts ListOptions) ([]models.Vehicle, error) {
	scope, err := s.guard.Authorize(ctx, pr, authz.ActionRead)
	if err != nil {
		return nil, err
	}
	vehicles, err := s.repo.ListVehicles(ctx, opts.query(scope))
	if err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	return vehicles, nil
}

func (s *VehicleService) Get(ctx context.Context, pr *authz.Principal, id uuid.UUID) (*models.Vehicle, error) {
	return load(ctx, s.guard, pr, authz.ActionRead, id, s.repo.GetVehicle)
}

// Create adds a vehicle to the caller's company. The plan's vehicle limit,
// when set, is enforced.
func (s *VehicleService) Create(ctx context.Context, pr *authz.Principal, v *models.Vehicle) (*models.Vehicle, error) {
	if _, err := s.guard.Authorize(ctx, pr, authz.ActionCreate); err != nil {
		return nil, err
	}
	if err := requireCompany(pr); err != nil {
		return nil, err
	}
	v.RegNumber = strings.ToUpper(strings.TrimSpace(v.RegNumber))
	if err := validateVehicle(v); err != nil {
		return nil, err
	}
	if err := s.checkVehicleLimit(ctx, pr.Company()); err != nil {
		return nil, err
	}

	v.ID = uuid.Nil
	v.CompanyID = pr.Company()
	if err := s.repo.CreateVehicle(ctx, v); err != nil {
		if errors.Is(err, e.ErrDuplicate) {
			return nil, e.NewValidationError("reg_number", "vehicle with this reg number already exists.")
		}
		return nil, fmt.Errorf("failed to create vehicle: %w", err)
	}
	s.logger.Info("vehicle created",
		zap.String("vehicle_id", v.ID.String()),
		zap.String("company_id", v.CompanyID.String()),
	)
	return v, nil
}

func (s *VehicleService) checkVehicleLimit(ctx context.Context, companyID uuid.UUID) error {
	sub, err := s.repo.GetSubscription(ctx, companyID)
	if errors.Is(err, e.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load subscription: %w", err)
	}
	if sub.Plan == nil || sub.Plan.MaxVehicles <= 0 {
		return nil
	}
	count, err := s.repo.CountVehicles(ctx, companyID)
	if err != nil {
		return fmt.Errorf("failed to count vehicles: %w", err)
	}
	if count >= int64(sub.Plan.MaxVehicles) {
		return e.NewValidationError("non_field_errors",
			fmt.Sprintf("Plan %s allows at most %d vehicles.", sub.Plan.Name, sub.Plan.MaxVehicles))
	}
	return nil
}

// Update applies a partial change. Any status may follow any other.
func (s *VehicleService) Update(ctx context.Context, pr *authz.Principal, update *models.VehicleUpdate) (*models.Vehicle, error) {
	current, err := load(ctx, s.guard, pr, authz.ActionUpdate, update.ID, s.repo.GetVehicle)
	if err != nil {
		return nil, err
	}

	if update.RegNumber != nil {
		reg := strings.ToUpper(strings.TrimSpace(*update.RegNumber))
		update.RegNumber = &reg
	}
	verr := &e.ValidationError{}
	if update.RegNumber != nil {
		if *update.RegNumber == "" {
			verr.Add("reg_number", "This field may not be blank.")
		}
		checkLength(verr, "reg_number", *update.RegNumber, maxRegNumberLength)
	}
	if update.Make != nil {
		checkLength(verr, "make", *update.Make, maxMakeLength)
	}
	if update.Model != nil {
		checkLength(verr, "model", *update.Model, maxMakeLength)
	}
	if update.VIN != nil {
		checkLength(verr, "vin", *update.VIN, maxVINLength)
	}
	if update.Year != nil && !validModelYear(*update.Year) {
		verr.Add("year", "Enter a valid model year.")
	}
	if update.Status != nil && !update.Status.Valid() {
		verr.Add("status", fmt.Sprintf("%q is not a valid choice.", *update.Status))
	}
	if update.Mileage != nil && *update.Mileage < 0 {
		verr.Add("mileage", "Ensure this value is greater than or equal to 0.")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateVehicle(ctx, update); err != nil {
		if errors.Is(err, e.ErrDuplicate) {
			return nil, e.NewValidationError("reg_number", "vehicle with this reg number already exists.")
		}
		return nil, fmt.Errorf("failed to update vehicle: %w", err)
	}

	updated, err := s.repo.GetVehicle(ctx, update.ID)
	if err != nil {
		s.logger.Error("Failed to get vehicle for event",
			zap.Error(err),
			zap.String("vehicle_id", update.ID.String()),
		)
		return nil, err
	}
	if updated.Status != current.Status {
		s.producer.Produce(events.StatusChanged(events.VehicleStatusChanged, "vehicle", updated.ID, updated,
			actorOf(pr), string(current.Status), string(updated.Status)))
	}
	return updated, nil
}

func (s *VehicleService) Delete(ctx context.Context, pr *authz.Principal, id uuid.UUID) error {
	if _, err := load(ctx, s.guard, pr, authz.ActionDelete, id, s.repo.GetVehicle); err != nil {
		return err
	}
	if err := s.repo.DeleteVehicle(ctx, id); err != nil {
		if errors.Is(err, e.ErrInUse) {
			return e.NewValidationError("non_field_errors",
				"Vehicle has shifts, inspections, issues or tickets; set its status to retired instead.")
		}
		return fmt.Errorf("failed to delete vehicle: %w", err)
	}
	return nil
}

func validModelYear(year int) bool {
	return year == 0 || (year >= 1900 && year <= time.Now().Year()+1)
}

func validateVehicle(v *models.Vehicle) error {
	verr := &e.ValidationError{}
	if v.RegNumber == "" {
		verr.Add("reg_number", "This field is required.")
	}
	checkLength(verr, "reg_number", v.RegNumber, maxRegNumberLength)
	checkLength(verr, "make", v.Make, maxMakeLength)
	checkLength(verr, "model", v.Model, maxMakeLength)
	checkLength(verr, "vin", v.VIN, maxVINLength)
	if v.Status != "" && !v.Status.Valid() {
		verr.Add("status", fmt.Sprintf("%q is not a valid choice.", v.Status))
	}
	if !validModelYear(v.Year) {
		verr.Add("year", "Enter a valid model year.")
	}
	if v.Mileage < 0 {
		verr.Add("mileage", "Ensure this value is greater than or equal to 0.")
	}
	return verr.OrNil()
}

// ShiftService manages driver shifts. Drivers only reach their own shifts.
type ShiftService struct {
	repo     FleetRepository
	guard    authz.Guard
	producer EventProducer
	logger   *zap.Logger
	now      func() time.Time
}

func NewShiftService(repo FleetRepository, access authz.AccessLookup, producer EventProducer, logger *zap.Logger) *ShiftService {
	return &ShiftService{
		repo:     repo,
		guard:    authz.NewGuard(authz.IsDriverOrAdmin, authz.HasSubscriptionOrReadOnly, access),
		producer: producer,
		logger:   logger.Named("shift_service"),
		now:      time.Now,
	}
}

func (s *ShiftService) List(ctx context.Context, pr *authz.Principal, opts ListOptions) ([]models.Shift, error) {
	scope, err := s.guard.Authorize(ctx, pr, authz.ActionRead)
	if err != nil {
		return nil, err
	}
	shifts, err := s.repo.ListShifts(ctx, opts.query(scope))
	if err != nil {
		return nil, fmt.Errorf("failed to list shifts: %w", err)
	}
	return shifts, nil
}

func (s *ShiftService) Get(ctx context.Context, pr *authz.Principal, id uuid.UUID) (*models.Shift, error) {
	return load(ctx, s.guard, pr, authz.ActionRead, id, s.repo.GetShift)
}

// Start opens a shift on a vehicle of the caller's company. Drivers always
// start their own shift; admins may name another driver of the company.
func (s *ShiftService) Start(ctx context.Context, pr *authz.Principal, shift *models.Shift) (*models.Shift, error) {
	if _, err := s.guard.Authorize(ctx, pr, authz.ActionCreate); err != nil {
		return nil, err
	}
	if err := requireCompany(pr); err != nil {
		return nil, err
	}
	vehicle, err := reference(ctx, pr, "vehicle", shift.VehicleID, s.repo.GetVehicle)
	if err != nil {
		return nil, err
	}

	if pr.Role != models.RoleAdmin || shift.DriverID == uuid.Nil {
		shift.DriverID = pr.UserID
	}
	if shift.DriverID != pr.UserID {
		if _, err := reference(ctx, pr, "driver", shift.DriverID, s.repo.GetUser); err != nil {
			return nil, err
		}
	}
	if shift.Status != "" && !shift.Status.Valid() {
		return nil, e.NewValidationError("status", fmt.Sprintf("%q is not a valid choice.", shift.Status))
	}
	if shift.StartMileage == 0 {
		shift.StartMileage = vehicle.Mileage
	}

	shift.ID = uuid.Nil
	shift.CompanyID = vehicle.CompanyID
	shift.EndedAt = nil
	shift.EndMileage = nil
	if err := s.repo.CreateShift(ctx, shift); err != nil {
		return nil, fmt.Errorf("failed to create shift: %w", err)
	}
	shift.Vehicle = vehicle
	return shift, nil
}

func (s *ShiftService) Update(ctx context.Context, pr *authz.Principal, update *models.ShiftUpdate) (*models.Shift, error) {
	current, err := load(ctx, s.guard, pr, authz.ActionUpdate, update.ID, s.repo.GetShift)
	if err != nil {
		return nil, err
	}
	if update.Status != nil && !update.Status.Valid() {
		return nil, e.NewValidationError("status", fmt.Sprintf("%q is not a valid choice.", *update.Status))
	}
	if update.EndMileage != nil && *update.EndMileage < current.StartMileage {
		return nil, e.NewValidationError("end_mileage", "End mileage cannot be lower than start mileage.")
	}
	if err := s.repo.UpdateShift(ctx, update); err != nil {
		return nil, fmt.Errorf("failed to update shift: %w", err)
	}
	return s.reloadAndPublish(ctx, pr, current)
}

// End completes an active shift and carries the end mileage over to the
// vehicle when it moved forward.
func (s *ShiftService) End(ctx context.Context, pr *authz.Principal, id uuid.UUID, endMileage *int, notes *string) (*models.Shift, error) {
	current, err := load(ctx, s.guard, pr, authz.ActionUpdate, id, s.repo.GetShift)
	if err != nil {
		return nil, err
	}
	if current.Status != models.ShiftActive {
		return nil, e.NewValidationError("status", "Only an active shift can be ended.")
	}
	if endMileage != nil && *endMileage < current.StartMileage {
		return nil, e.NewValidationError("end_mileage", "End mileage cannot be lower than start mileage.")
	}

	status := models.ShiftCompleted
	ended := s.now().UTC()
	err = s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		if err := tx.UpdateShift(ctx, &models.ShiftUpdate{
			ID: id, Status: &status, EndedAt: &ended, EndMileage: endMileage, Notes: notes,
		}); err != nil {
			return err
		}
		if endMileage == nil {
			return nil
		}
		vehicle, err := tx.GetVehicle(ctx, current.VehicleID)
		if err != nil {
			return err
		}
		if *endMileage <= vehicle.Mileage {
			return nil
		}
		return tx.UpdateVehicle(ctx, &models.VehicleUpdate{ID: vehicle.ID, Mileage: endMileage})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to end shift: %w", err)
	}
	return s.reloadAndPublish(ctx, pr, current)
}

func (s *ShiftService) reloadAndPublish(ctx context.Context, pr *authz.Principal, before *models.Shift) (*models.Shift, error) {
	updated, err := s.repo.GetShift(ctx, before.ID)
	if err != nil {
		s.logger.Error("Failed to get shift for event",
			zap.Error(err),
			zap.String("shift_id", before.ID.String()),
		)
		return nil, err
	}
	if updated.Status != before.Status {
		s.producer.Produce(events.StatusChanged(events.ShiftStatusChanged, "shift", updated.ID, updated,
			actorOf(pr), string(before.Status), string(updated.Status)))
	}
	return updated, nil
}

// InspectionService manages inspections. Members read them; inspectors and
// admins record them.
type InspectionService struct {
	repo     FleetRepository
	guard    authz.Guard
	producer EventProducer
	logger   *zap.Logger
}

func NewInspectionService(repo FleetRepository, access authz.AccessLookup, producer EventProducer, logger *zap.Logger) *InspectionService {
	return &InspectionService{
		repo:     repo,
		guard:    authz.NewGuard(authz.IsInspectorOrAdmin.WithMemberReads(), authz.HasSubscriptionOrReadOnly, access),
		producer: producer,
		logger:   logger.Named("inspection_service"),
	}
}

func (s *InspectionService) List(ctx context.Context, pr *authz.Principal, opts ListOptions) ([]models.Inspection, error) {
	scope, err := s.guard.Authorize(ctx, pr, authz.ActionRead)
	if err != nil {
		return nil, err
	}
	inspections, err := s.repo.ListInspections(ctx, opts.query(scope))
	if err != nil {
		return nil, fmt.Errorf("failed to list inspections: %w", err)
	}
	return inspections, nil
}

func (s *InspectionService) Get(ctx context.Context, pr *authz.Principal, id uuid.UUID) (*models.Inspection, error) {
	return load(ctx, s.guard, pr, authz.ActionRead, id, s.repo.GetInspection)
}

// Create records an inspection for a shift of the caller's company. The
// vehicle and company are taken from the shift.
func (s *InspectionService) Create(ctx context.Context, pr *authz.Principal, in *models.Inspection) (*models.Inspection, error) {
	if _, err := s.guard.Authorize(ctx, pr, authz.ActionCreate); err != nil {
		return nil, err
	}
	if err := requireCompany(pr); err != nil {
		return nil, err
	}
	shift, err := reference(ctx, pr, "shift", in.ShiftID, s.repo.GetShift)
	if err != nil {
		return nil, err
	}
	verr := &e.ValidationError{}
	if in.Status != "" && !in.Status.Valid() {
		verr.Add("status", fmt.Sprintf("%q is not a valid choice.", in.Status))
	}
	if in.Odometer < 0 {
		verr.Add("odometer", "Ensure this value is greater than or equal to 0.")
	}
	checkLength(verr, "kind", in.Kind, maxKindLength)
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	if in.Kind == "" {
		in.Kind = "pre_trip"
	}

	in.ID = uuid.Nil
	in.CompanyID = shift.CompanyID
	in.VehicleID = shift.VehicleID
	in.InspectorID = actorOf(pr)
	if err := s.repo.CreateInspection(ctx, in); err != nil {
		return nil, fmt.Errorf("failed to create inspection: %w", err)
	}
	in.Vehicle = shift.Vehicle
	return in, nil
}

func (s *InspectionService) Update(ctx context.Context, pr *authz.Principal, update *models.InspectionUpdate) (*models.Inspection, error) {
	current, err := load(ctx, s.guard, pr, authz.ActionUpdate, update.ID, s.repo.GetInspection)
	if err != nil {
		return nil, err
	}
	if update.Status != nil && !update.Status.Valid() {
		return nil, e.NewValidationError("status", fmt.Sprintf("%q is not a valid choice.", *update.Status))
	}
	if err := s.repo.UpdateInspection(ctx, update); err != nil {
		return nil, fmt.Errorf("failed to update inspection: %w", err)
	}
	updated, err := s.repo.GetInspection(ctx, update.ID)
	if err != nil {
		return nil, err
	}
	if updated.Status != current.Status {
		s.producer.Produce(events.StatusChanged(events.InspectionStatusChanged, "inspection", updated.ID, updated,
			actorOf(pr), string(current.Status), string(updated.Status)))
	}
	return updated, nil
}
