package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Owned is implemented by every record that belongs to a company.
type Owned interface {
	OwningCompany() uuid.UUID
}

// PersonallyOwned is implemented by records that name a single user as
// their owner, such as the driver of a shift.
type PersonallyOwned interface {
	Owned
	OwnerUserID() uuid.UUID
}

// VehicleStatus is the operational state of a vehicle.
type VehicleStatus string

const (
	VehicleActive      VehicleStatus = "active"
	VehicleMaintenance VehicleStatus = "maintenance"
	VehicleInactive    VehicleStatus = "inactive"
	VehicleRetired     VehicleStatus = "retired"
)

// Valid reports whether s is a known vehicle status.
func (s VehicleStatus) Valid() bool {
	switch s {
	case VehicleActive, VehicleMaintenance, VehicleInactive, VehicleRetired:
		return true
	}
	return false
}

// Vehicle belongs directly to a company ("org").
type Vehicle struct {
	ID        uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_vehicle_company_reg,priority:1" json:"org"`
	RegNumber string        `gorm:"size:20;not null;uniqueIndex:idx_vehicle_company_reg,priority:2" json:"reg_number"`
	Make      string        `gorm:"size:50" json:"make"`
	Model     string        `gorm:"size:50" json:"model"`
	Year      int           `json:"year,omitempty"`
	VIN       string        `gorm:"size:17" json:"vin,omitempty"`
	Status    VehicleStatus `gorm:"size:20;not null" json:"status"`
	Mileage   int           `json:"mileage"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// BeforeCreate assigns defaults when absent.
func (v *Vehicle) BeforeCreate(_ *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.Status == "" {
		v.Status = VehicleActive
	}
	return nil
}

// OwningCompany implements Owned.
func (v *Vehicle) OwningCompany() uuid.UUID { return v.CompanyID }

// VehicleUpdate holds a partial vehicle change.
type VehicleUpdate struct {
	ID        uuid.UUID
	RegNumber *string
	Make      *string
	Model     *string
	Year      *int
	VIN       *string
	Status    *VehicleStatus
	Mileage   *int
	UpdatedAt time.Time `json:"-"`
}

// ShiftStatus is the state of a driver shift.
type ShiftStatus string

const (
	ShiftScheduled ShiftStatus = "scheduled"
	ShiftActive    ShiftStatus = "active"
	ShiftCompleted ShiftStatus = "completed"
	ShiftCancelled ShiftStatus = "cancelled"
)

// Valid reports whether s is a known shift status.
func (s ShiftStatus) Valid() bool {
	switch s {
	case ShiftScheduled, ShiftActive, ShiftCompleted, ShiftCancelled:
		return true
	}
	return false
}

// Shift is a driver's period of use of a vehicle. CompanyID is copied from
// the vehicle at creation so tenant filtering needs no join.
type Shift struct {
	ID           uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID    uuid.UUID   `gorm:"type:uuid;index;not null" json:"org"`
	VehicleID    uuid.UUID   `gorm:"type:uuid;index;not null" json:"vehicle"`
	Vehicle      *Vehicle    `gorm:"foreignKey:VehicleID" json:"-"`
	DriverID     uuid.UUID   `gorm:"type:uuid;index;not null" json:"driver"`
	Status       ShiftStatus `gorm:"size:20;not null" json:"status"`
	StartedAt    time.Time   `json:"started_at"`
	EndedAt      *time.Time  `json:"ended_at"`
	StartMileage int         `json:"start_mileage"`
	EndMileage   *int        `json:"end_mileage"`
	Notes        string      `gorm:"type:text" json:"notes"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// BeforeCreate assigns defaults when absent.
func (s *Shift) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = ShiftActive
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}
	return nil
}

// OwningCompany implements Owned.
func (s *Shift) OwningCompany() uuid.UUID { return s.CompanyID }

// OwnerUserID implements PersonallyOwned.
func (s *Shift) OwnerUserID() uuid.UUID { return s.DriverID }

// ShiftUpdate holds a partial shift change.
type ShiftUpdate struct {
	ID         uuid.UUID
	Status     *ShiftStatus
	EndedAt    *time.Time
	EndMileage *int
	Notes      *string
	UpdatedAt  time.Time `json:"-"`
}

// InspectionStatus is the outcome of a vehicle inspection.
type InspectionStatus string

const (
	InspectionPending InspectionStatus = "pending"
	InspectionPassed  InspectionStatus = "passed"
	InspectionFailed  InspectionStatus = "failed"
)

// Valid reports whether s is a known inspection status.
func (s InspectionStatus) Valid() bool {
	switch s {
	case InspectionPending, InspectionPassed, InspectionFailed:
		return true
	}
	return false
}

// Inspection is a check performed during a shift.
type Inspection struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID   uuid.UUID        `gorm:"type:uuid;index;not null" json:"org"`
	ShiftID     uuid.UUID        `gorm:"type:uuid;index;not null" json:"shift"`
	Shift       *Shift           `gorm:"foreignKey:ShiftID" json:"-"`
	VehicleID   uuid.UUID        `gorm:"type:uuid;index;not null" json:"vehicle"`
	Vehicle     *Vehicle         `gorm:"foreignKey:VehicleID" json:"-"`
	InspectorID *uuid.UUID       `gorm:"type:uuid" json:"inspector"`
	Kind        string           `gorm:"size:20" json:"kind"`
	Status      InspectionStatus `gorm:"size:20;not null" json:"status"`
	Odometer    int              `json:"odometer"`
	Notes       string           `gorm:"type:text" json:"notes"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// BeforeCreate assigns defaults when absent.
func (i *Inspection) BeforeCreate(_ *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.Status == "" {
		i.Status = InspectionPending
	}
	return nil
}

// OwningCompany implements Owned.
func (i *Inspection) OwningCompany() uuid.UUID { return i.CompanyID }

// InspectionUpdate holds a partial inspection change.
type InspectionUpdate struct {
	ID        uuid.UUID
	Status    *InspectionStatus
	Odometer  *int
	Notes     *string
	UpdatedAt time.Time `json:"-"`
}
