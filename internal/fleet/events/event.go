// Package events publishes domain status changes to Kafka and turns them
// into audit history on the consuming side.
package events

import (
	"time"

	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/google/uuid"
)

type EventType string

const (
	VehicleStatusChanged      EventType = "vehicle.status_changed"
	ShiftStatusChanged        EventType = "shift.status_changed"
	InspectionStatusChanged   EventType = "inspection.status_changed"
	IssueStatusChanged        EventType = "issue.status_changed"
	TicketStatusChanged       EventType = "ticket.status_changed"
	SubscriptionStatusChanged EventType = "subscription.status_changed"
	CompanySuspended          EventType = "company.suspended"
	CompanyActivated          EventType = "company.activated"
)

type Event struct {
	ID         uuid.UUID  `json:"id"`
	Type       EventType  `json:"type"`
	CompanyID  uuid.UUID  `json:"company_id"`
	EntityType string     `json:"entity_type"`
	EntityID   uuid.UUID  `json:"entity_id"`
	ActorID    *uuid.UUID `json:"actor_id,omitempty"`
	OldStatus  string     `json:"old_status,omitempty"`
	NewStatus  string     `json:"new_status,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// StatusChanged builds the event for a status transition of obj.
func StatusChanged(eventType EventType, entityType string, entityID uuid.UUID, obj models.Owned, actor *uuid.UUID, oldStatus, newStatus string) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		CompanyID:  obj.OwningCompany(),
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    actor,
		OldStatus:  oldStatus,
		NewStatus:  newStatus,
		OccurredAt: time.Now().UTC(),
	}
}

// AuditEntry converts the event into an audit history row.
func (ev Event) AuditEntry() *models.AuditEntry {
	return &models.AuditEntry{
		ID:         ev.ID,
		CompanyID:  ev.CompanyID,
		EntityType: ev.EntityType,
		EntityID:   ev.EntityID,
		Action:     string(ev.Type),
		ActorID:    ev.ActorID,
		OldStatus:  ev.OldStatus,
		NewStatus:  ev.NewStatus,
		OccurredAt: ev.OccurredAt,
	}
}
