package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IssueStatus tracks a reported vehicle problem.
type IssueStatus string

const (
	IssueOpen       IssueStatus = "open"
	IssueInProgress IssueStatus = "in_progress"
	IssueResolved   IssueStatus = "resolved"
	IssueClosed     IssueStatus = "closed"
)

// Valid reports whether s is a known issue status.
func (s IssueStatus) Valid() bool {
	switch s {
	case IssueOpen, IssueInProgress, IssueResolved, IssueClosed:
		return true
	}
	return false
}

// Severity grades an issue.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Issue is a maintenance problem reported against a vehicle.
type Issue struct {
	ID           uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID    uuid.UUID   `gorm:"type:uuid;index;not null" json:"org"`
	VehicleID    uuid.UUID   `gorm:"type:uuid;index;not null" json:"vehicle"`
	Vehicle      *Vehicle    `gorm:"foreignKey:VehicleID" json:"-"`
	InspectionID *uuid.UUID  `gorm:"type:uuid" json:"inspection"`
	ReportedByID uuid.UUID   `gorm:"type:uuid;not null" json:"reported_by"`
	Title        string      `gorm:"size:200;not null" json:"title"`
	Description  string      `gorm:"type:text" json:"description"`
	Severity     Severity    `gorm:"size:20;not null" json:"severity"`
	Status       IssueStatus `gorm:"size:20;not null" json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// BeforeCreate assigns defaults when absent.
func (i *Issue) BeforeCreate(_ *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.Status == "" {
		i.Status = IssueOpen
	}
	if i.Severity == "" {
		i.Severity = SeverityMedium
	}
	return nil
}

// OwningCompany implements Owned.
func (i *Issue) OwningCompany() uuid.UUID { return i.CompanyID }

// IssueUpdate holds a partial issue change.
type IssueUpdate struct {
	ID          uuid.UUID
	Title       *string
	Description *string
	Severity    *Severity
	Status      *IssueStatus
	UpdatedAt   time.Time `json:"-"`
}

// TicketStatus tracks maintenance work.
type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketDone       TicketStatus = "done"
	TicketCancelled  TicketStatus = "cancelled"
)

// Valid reports whether s is a known ticket status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketOpen, TicketInProgress, TicketDone, TicketCancelled:
		return true
	}
	return false
}

// Ticket is a unit of maintenance work, optionally raised from an issue.
type Ticket struct {
	ID          uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID   uuid.UUID    `gorm:"type:uuid;index;not null" json:"org"`
	VehicleID   uuid.UUID    `gorm:"type:uuid;index;not null" json:"vehicle"`
	Vehicle     *Vehicle     `gorm:"foreignKey:VehicleID" json:"-"`
	IssueID     *uuid.UUID   `gorm:"type:uuid;index" json:"issue"`
	CreatedByID uuid.UUID    `gorm:"type:uuid;not null" json:"created_by"`
	AssigneeID  *uuid.UUID   `gorm:"type:uuid" json:"assignee"`
	Title       string       `gorm:"size:200;not null" json:"title"`
	Description string       `gorm:"type:text" json:"description"`
	Priority    Severity     `gorm:"size:20;not null" json:"priority"`
	Status      TicketStatus `gorm:"size:20;not null" json:"status"`
	DueAt       *time.Time   `json:"due_at"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// BeforeCreate assigns defaults when absent.
func (t *Ticket) BeforeCreate(_ *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = TicketOpen
	}
	if t.Priority == "" {
		t.Priority = SeverityMedium
	}
	return nil
}

// OwningCompany implements Owned.
func (t *Ticket) OwningCompany() uuid.UUID { return t.CompanyID }

// TicketUpdate holds a partial ticket change.
type TicketUpdate struct {
	ID          uuid.UUID
	Title       *string
	Description *string
	Priority    *Severity
	Status      *TicketStatus
	AssigneeID  *uuid.UUID
	DueAt       *time.Time
	UpdatedAt   time.Time `json:"-"`
}
