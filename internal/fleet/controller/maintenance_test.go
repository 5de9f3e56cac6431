package controller

import (
	"context"
	"strings"
	"testing"
	"time"

	e "github.com/gartstein/fleet/internal/fleet/errors"
	"github.com/gartstein/fleet/internal/fleet/events"
	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/gartstein/fleet/internal/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type maintenanceFixture struct {
	*fleetFixture
	issues    *IssueService
	tickets   *TicketService
	telemetry *TelemetryService
}

func newMaintenanceFixture(t *testing.T) *maintenanceFixture {
	f := newFleetFixture(t)
	logger := zaptest.NewLogger(t)
	return &maintenanceFixture{
		fleetFixture: f,
		issues:       NewIssueService(f.repo, f.access, f.producer, logger),
		tickets:      NewTicketService(f.repo, f.access, f.producer, logger),
		telemetry:    NewTelemetryService(f.repo, f.access),
	}
}

func TestIssueService_Report(t *testing.T) {
	f := newMaintenanceFixture(t)
	ctx := context.Background()
	v := f.vehicle(t, f.acme, "ISS-1")

	issue, err := f.issues.Report(ctx, f.acme.driver, &models.Issue{VehicleID: v.ID, Title: " Brake noise "})
	require.NoError(t, err, "drivers may report issues")
	assert.Equal(t, "Brake noise", issue.Title)
	assert.Equal(t, f.acme.driver.UserID, issue.ReportedByID)
	assert.Equal(t, f.acme.company.ID, issue.CompanyID)
	assert.Equal(t, models.SeverityMedium, issue.Severity)
	assert.Equal(t, models.IssueOpen, issue.Status)

	_, err = f.issues.Report(ctx, f.acme.driver, &models.Issue{VehicleID: v.ID})
	assert.ErrorIs(t, err, e.ErrInvalidInput, "title required")

	_, err = f.issues.Report(ctx, f.globex.staff, &models.Issue{VehicleID: v.ID, Title: "Not yours"})
	var verr *e.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "vehicle")

	_, err = f.issues.Update(ctx, f.acme.driver, &models.IssueUpdate{ID: issue.ID, Status: utils.Ptr(models.IssueResolved)})
	assert.ErrorIs(t, err, e.ErrForbidden, "drivers cannot change issues")

	list, err := f.issues.List(ctx, f.acme.driver, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestIssueService_StatusHistory(t *testing.T) {
	f := newMaintenanceFixture(t)
	ctx := context.Background()
	v := f.vehicle(t, f.acme, "HIST-1")
	issue, err := f.issues.Report(ctx, f.acme.staff, &models.Issue{VehicleID: v.ID, Title: "Leak", Severity: models.SeverityHigh})
	require.NoError(t, err)

	for _, status := range []models.IssueStatus{models.IssueInProgress, models.IssueResolved} {
		_, err := f.issues.Update(ctx, f.acme.staff, &models.IssueUpdate{ID: issue.ID, Status: utils.Ptr(status)})
		require.NoError(t, err)
	}

	recorder := events.NewAuditRecorder(f.repo, zaptest.NewLogger(t))
	for _, ev := range f.producer.Events() {
		require.NoError(t, recorder.Handle(ctx, ev))
	}

	history, err := f.issues.History(ctx, f.acme.driver, issue.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "open", history[0].OldStatus)
	assert.Equal(t, "in_progress", history[0].NewStatus)
	assert.Equal(t, "resolved", history[1].NewStatus)

	_, err = f.issues.History(ctx, f.globex.admin, issue.ID)
	assert.ErrorIs(t, err, e.ErrNotFound)
}

func TestTicketService(t *testing.T) {
	f := newMaintenanceFixture(t)
	ctx := context.Background()
	v := f.vehicle(t, f.acme, "TCK-1")
	other := f.vehicle(t, f.acme, "TCK-2")
	issue, err := f.issues.Report(ctx, f.acme.driver, &models.Issue{VehicleID: v.ID, Title: "Flat tyre"})
	require.NoError(t, err)

	ticket, err := f.tickets.Create(ctx, f.acme.staff, &models.Ticket{IssueID: &issue.ID, Title: "Replace tyre",
		AssigneeID: &f.acme.staff.UserID, DueAt: utils.Ptr(time.Now().Add(48 * time.Hour))})
	require.NoError(t, err)
	assert.Equal(t, v.ID, ticket.VehicleID, "vehicle comes from the issue")
	assert.Equal(t, f.acme.staff.UserID, ticket.CreatedByID)
	assert.Equal(t, models.TicketOpen, ticket.Status)

	_, err = f.tickets.Create(ctx, f.acme.staff, &models.Ticket{IssueID: &issue.ID, VehicleID: other.ID, Title: "Mismatch"})
	assert.ErrorIs(t, err, e.ErrInvalidInput)

	_, err = f.tickets.Create(ctx, f.acme.staff, &models.Ticket{VehicleID: v.ID, Title: "Assign out", AssigneeID: &f.globex.staff.UserID})
	var verr *e.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "assignee")

	_, err = f.tickets.Create(ctx, f.acme.driver, &models.Ticket{VehicleID: v.ID, Title: "Driver ticket"})
	assert.ErrorIs(t, err, e.ErrForbidden)

	done, err := f.tickets.Update(ctx, f.acme.admin, &models.TicketUpdate{ID: ticket.ID, Status: utils.Ptr(models.TicketDone)})
	require.NoError(t, err)
	assert.Equal(t, models.TicketDone, done.Status)

	evs := f.producer.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.TicketStatusChanged, evs[0].Type)

	_, err = f.tickets.Get(ctx, f.globex.staff, ticket.ID)
	assert.ErrorIs(t, err, e.ErrNotFound)
}

func TestTitleLength(t *testing.T) {
	f := newMaintenanceFixture(t)
	ctx := context.Background()
	v := f.vehicle(t, f.acme, "TTL-1")
	long := strings.Repeat("t", maxTitleLength+1)

	_, err := f.issues.Report(ctx, f.acme.driver, &models.Issue{VehicleID: v.ID, Title: long})
	var verr *e.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "title")

	issue, err := f.issues.Report(ctx, f.acme.driver, &models.Issue{VehicleID: v.ID, Title: strings.Repeat("t", maxTitleLength)})
	require.NoError(t, err, "a title of exactly the column size fits")

	_, err = f.issues.Update(ctx, f.acme.staff, &models.IssueUpdate{ID: issue.ID, Title: utils.Ptr(long)})
	verr = nil
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "title")

	_, err = f.tickets.Create(ctx, f.acme.staff, &models.Ticket{VehicleID: v.ID, Title: long})
	verr = nil
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "title")

	ticket, err := f.tickets.Create(ctx, f.acme.staff, &models.Ticket{VehicleID: v.ID, Title: "Service"})
	require.NoError(t, err)
	_, err = f.tickets.Update(ctx, f.acme.staff, &models.TicketUpdate{ID: ticket.ID, Title: utils.Ptr(long)})
	verr = nil
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "title")

	stored, err := f.tickets.Get(ctx, f.acme.staff, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "Service", stored.Title)
}

func TestTelemetryService(t *testing.T) {
	f := newMaintenanceFixture(t)
	ctx := context.Background()
	v := f.vehicle(t, f.acme, "TEL-1")

	rec, err := f.telemetry.Record(ctx, f.acme.driver, &models.TelemetryRecord{VehicleID: v.ID, Latitude: 52.37, Longitude: 4.89, SpeedKPH: 80})
	require.NoError(t, err)
	assert.Equal(t, f.acme.company.ID, rec.CompanyID)
	assert.False(t, rec.RecordedAt.IsZero())

	_, err = f.telemetry.Record(ctx, f.acme.driver, &models.TelemetryRecord{VehicleID: v.ID, Latitude: 91})
	assert.ErrorIs(t, err, e.ErrInvalidInput)

	_, err = f.telemetry.Record(ctx, f.acme.driver, &models.TelemetryRecord{VehicleID: v.ID, FuelLevel: utils.Ptr(120.0)})
	assert.ErrorIs(t, err, e.ErrInvalidInput)

	f.access.allowed = false
	_, err = f.telemetry.Record(ctx, f.acme.driver, &models.TelemetryRecord{VehicleID: v.ID})
	assert.ErrorIs(t, err, e.ErrSubscriptionRequired)

	list, err := f.telemetry.List(ctx, f.acme.staff, ListOptions{VehicleID: &v.ID})
	require.NoError(t, err, "telemetry stays readable without a subscription")
	assert.Len(t, list, 1)

	list, err = f.telemetry.List(ctx, f.acme.staff, ListOptions{Status: "active"})
	require.NoError(t, err, "status does not apply to telemetry")
	assert.Len(t, list, 1)

	list, err = f.telemetry.List(ctx, f.globex.admin, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)
}
