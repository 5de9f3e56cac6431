package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TelemetryRecord is one position/sensor sample from a vehicle.
type TelemetryRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID  uuid.UUID `gorm:"type:uuid;index:idx_telemetry_company_time,priority:1;not null" json:"org"`
	VehicleID  uuid.UUID `gorm:"type:uuid;index;not null" json:"vehicle"`
	RecordedAt time.Time `gorm:"index:idx_telemetry_company_time,priority:2;not null" json:"recorded_at"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	SpeedKPH   float64   `json:"speed_kph"`
	FuelLevel  *float64  `json:"fuel_level"`
	Odometer   *int      `json:"odometer"`
	CreatedAt  time.Time `json:"created_at"`
}

// BeforeCreate assigns defaults when absent.
func (t *TelemetryRecord) BeforeCreate(_ *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.RecordedAt.IsZero() {
		t.RecordedAt = time.Now()
	}
	return nil
}

// OwningCompany implements Owned.
func (t *TelemetryRecord) OwningCompany() uuid.UUID { return t.CompanyID }

// AuditEntry is one row of status-change history.
type AuditEntry struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID  uuid.UUID  `gorm:"type:uuid;index;not null" json:"org"`
	EntityType string     `gorm:"size:30;index:idx_audit_entity,priority:1" json:"entity_type"`
	EntityID   uuid.UUID  `gorm:"type:uuid;index:idx_audit_entity,priority:2" json:"entity_id"`
	Action     string     `gorm:"size:50" json:"action"`
	ActorID    *uuid.UUID `gorm:"type:uuid" json:"actor"`
	OldStatus  string     `gorm:"size:30" json:"old_status,omitempty"`
	NewStatus  string     `gorm:"size:30" json:"new_status,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// BeforeCreate assigns an identifier when absent.
func (a *AuditEntry) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// OwningCompany implements Owned.
func (a *AuditEntry) OwningCompany() uuid.UUID { return a.CompanyID }

// All lists every persisted model, in dependency order, for migrations.
func All() []any {
	return []any{
		&Company{}, &User{}, &Plan{}, &CompanySubscription{}, &Payment{}, &WebhookEvent{},
		&Vehicle{}, &Shift{}, &Inspection{}, &Issue{}, &Ticket{}, &TelemetryRecord{}, &AuditEntry{},
	}
}
