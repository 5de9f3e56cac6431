package controller

import (
	"context"
	"fmt"
	"strings"

	"github.com/gartstein/fleet/internal/fleet/authz"
	"github.com/gartstein/fleet/internal/fleet/db"
	e "github.com/gartstein/fleet/internal/fleet/errors"
	"github.com/gartstein/fleet/internal/fleet/events"
	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type MaintenanceRepository interface {
	GetVehicle(ctx context.Context, id uuid.UUID) (*models.Vehicle, error)
	GetInspection(ctx context.Context, id uuid.UUID) (*models.Inspection, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)

	CreateIssue(ctx context.Context, i *models.Issue) error
	GetIssue(ctx context.Context, id uuid.UUID) (*models.Issue, error)
	ListIssues(ctx context.Context, q db.ListQuery) ([]models.Issue, error)
	UpdateIssue(ctx context.Context, update *models.IssueUpdate) error

	CreateTicket(ctx context.Context, t *models.Ticket) error
	GetTicket(ctx context.Context, id uuid.UUID) (*models.Ticket, error)
	ListTickets(ctx context.Context, q db.ListQuery) ([]models.Ticket, error)
	UpdateTicket(ctx context.Context, update *models.TicketUpdate) error

	CreateTelemetry(ctx context.Context, t *models.TelemetryRecord) error
	ListTelemetry(ctx context.Context, q db.ListQuery) ([]models.TelemetryRecord, error)

	ListAuditEntries(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.AuditEntry, error)
}

// canReportIssue lets every operational role report a problem.
var canReportIssue = authz.Allow("CanReportIssue",
	[]models.Role{models.RoleStaff, models.RoleDriver, models.RoleInspector}, false)

// IssueService manages reported vehicle problems.
type IssueService struct {
	repo        MaintenanceRepository
	guard       authz.Guard
	reportGuard authz.Guard
	producer    EventProducer
	logger      *zap.Logger
}

func NewIssueService(repo MaintenanceRepository, access authz.AccessLookup, producer EventProducer, logger *zap.Logger) *IssueService {
	return &IssueService{
		repo:        repo,
		guard:       authz.NewGuard(authz.IsStaffOrAdmin.WithMemberReads(), authz.HasSubscriptionOrReadOnly, access),
		reportGuard: authz.NewGuard(canReportIssue, authz.HasSubscriptionOrReadOnly, access),
		producer:    producer,
		logger:      logger.Named("issue_service"),
	}
}

func (s *IssueService) List(ctx context.Context, pr *authz.Principal, opts ListOptions) ([]models.Issue, error) {
	scope, err := s.guard.Authorize(ctx, pr, authz.ActionRead)
	if err != nil {
		return nil, err
	}
	issues, err := s.repo.ListIssues(ctx, opts.query(scope))
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	return issues, nil
}

func (s *IssueService) Get(ctx context.Context, pr *authz.Principal, id uuid.UUID) (*models.Issue, error) {
	return load(ctx, s.guard, pr, authz.ActionRead, id, s.repo.GetIssue)
}

// Report creates an issue against a vehicle of the caller's company.
func (s *IssueService) Report(ctx context.Context, pr *authz.Principal, issue *models.Issue) (*models.Issue, error) {
	if _, err := s.reportGuard.Authorize(ctx, pr, authz.ActionCreate); err != nil {
		return nil, err
	}
	if err := requireCompany(pr); err != nil {
		return nil, err
	}
	vehicle, err := reference(ctx, pr, "vehicle", issue.VehicleID, s.repo.GetVehicle)
	if err != nil {
		return nil, err
	}
	if issue.InspectionID != nil {
		inspection, err := reference(ctx, pr, "inspection", *issue.InspectionID, s.repo.GetInspection)
		if err != nil {
			return nil, err
		}
		if inspection.VehicleID != vehicle.ID {
			return nil, e.NewValidationError("inspection", "Inspection belongs to a different vehicle.")
		}
	}

	issue.Title = strings.TrimSpace(issue.Title)
	verr := &e.ValidationError{}
	if issue.Title == "" {
		verr.Add("title", "This field is required.")
	}
	checkLength(verr, "title", issue.Title, maxTitleLength)
	if issue.Severity != "" && !issue.Severity.Valid() {
		verr.Add("severity", fmt.Sprintf("%q is not a valid choice.", issue.Severity))
	}
	if issue.Status != "" && !issue.Status.Valid() {
		verr.Add("status", fmt.Sprintf("%q is not a valid choice.", issue.Status))
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	issue.ID = uuid.Nil
	issue.CompanyID = vehicle.CompanyID
	issue.ReportedByID = pr.UserID
	if err := s.repo.CreateIssue(ctx, issue); err != nil {
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}
	issue.Vehicle = vehicle
	s.logger.Info("issue reported",
		zap.String("issue_id", issue.ID.String()),
		zap.String("vehicle_id", vehicle.ID.String()),
		zap.String("severity", string(issue.Severity)),
	)
	return issue, nil
}

func (s *IssueService) Update(ctx context.Context, pr *authz.Principal, update *models.IssueUpdate) (*models.Issue, error) {
	current, err := load(ctx, s.guard, pr, authz.ActionUpdate, update.ID, s.repo.GetIssue)
	if err != nil {
		return nil, err
	}
	verr := &e.ValidationError{}
	if update.Title != nil {
		if strings.TrimSpace(*update.Title) == "" {
			verr.Add("title", "This field may not be blank.")
		}
		checkLength(verr, "title", *update.Title, maxTitleLength)
	}
	if update.Severity != nil && !update.Severity.Valid() {
		verr.Add("severity", fmt.Sprintf("%q is not a valid choice.", *update.Severity))
	}
	if update.Status != nil && !update.Status.Valid() {
		verr.Add("status", fmt.Sprintf("%q is not a valid choice.", *update.Status))
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateIssue(ctx, update); err != nil {
		return nil, fmt.Errorf("failed to update issue: %w", err)
	}
	updated, err := s.repo.GetIssue(ctx, update.ID)
	if err != nil {
		return nil, err
	}
	if updated.Status != current.Status {
		s.producer.Produce(events.StatusChanged(events.IssueStatusChanged, "issue", updated.ID, updated,
			actorOf(pr), string(current.Status), string(updated.Status)))
	}
	return updated, nil
}

// History returns the recorded status changes of an issue.
func (s *IssueService) History(ctx context.Context, pr *authz.Principal, id uuid.UUID) ([]models.AuditEntry, error) {
	if _, err := s.Get(ctx, pr, id); err != nil {
		return nil, err
	}
	entries, err := s.repo.ListAuditEntries(ctx, "issue", id)
	if err != nil {
		return nil, fmt.Errorf("failed to list issue history: %w", err)
	}
	return entries, nil
}

// TicketService manages maintenance work.
type TicketService struct {
	repo     MaintenanceRepository
	guard    authz.Guard
	producer EventProducer
	logger   *zap.Logger
}

func NewTicketService(repo MaintenanceRepository, access authz.AccessLookup, producer EventProducer, logger *zap.Logger) *TicketService {
	return &TicketService{
		repo:     repo,
		guard:    authz.NewGuard(authz.IsStaffOrAdmin, authz.HasSubscriptionOrReadOnly, access),
		producer: producer,
		logger:   logger.Named("ticket_service"),
	}
}

func (s *TicketService) List(ctx context.Context, pr *authz.Principal, opts ListOptions) ([]models.Ticket, error) {
	scope, err := s.guard.Authorize(ctx, pr, authz.ActionRead)
	if err != nil {
		return nil, err
	}
	tickets, err := s.repo.ListTickets(ctx, opts.query(scope))
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, nil
}

func (s *TicketService) Get(ctx context.Context, pr *authz.Principal, id uuid.UUID) (*models.Ticket, error) {
	return load(ctx, s.guard, pr, authz.ActionRead, id, s.repo.GetTicket)
}

// Create opens a ticket. When it is raised from an issue the vehicle may be
// omitted and is taken from the issue.
func (s *TicketService) Create(ctx context.Context, pr *authz.Principal, ticket *models.Ticket) (*models.Ticket, error) {
	if _, err := s.guard.Authorize(ctx, pr, authz.ActionCreate); err != nil {
		return nil, err
	}
	if err := requireCompany(pr); err != nil {
		return nil, err
	}
	if ticket.IssueID != nil {
		issue, err := reference(ctx, pr, "issue", *ticket.IssueID, s.repo.GetIssue)
		if err != nil {
			return nil, err
		}
		if ticket.VehicleID == uuid.Nil {
			ticket.VehicleID = issue.VehicleID
		} else if ticket.VehicleID != issue.VehicleID {
			return nil, e.NewValidationError("issue", "Issue belongs to a different vehicle.")
		}
	}
	vehicle, err := reference(ctx, pr, "vehicle", ticket.VehicleID, s.repo.GetVehicle)
	if err != nil {
		return nil, err
	}
	if ticket.AssigneeID != nil {
		if _, err := reference(ctx, pr, "assignee", *ticket.AssigneeID, s.repo.GetUser); err != nil {
			return nil, err
		}
	}

	ticket.Title = strings.TrimSpace(ticket.Title)
	verr := &e.ValidationError{}
	if ticket.Title == "" {
		verr.Add("title", "This field is required.")
	}
	checkLength(verr, "title", ticket.Title, maxTitleLength)
	if ticket.Priority != "" && !ticket.Priority.Valid() {
		verr.Add("priority", fmt.Sprintf("%q is not a valid choice.", ticket.Priority))
	}
	if ticket.Status != "" && !ticket.Status.Valid() {
		verr.Add("status", fmt.Sprintf("%q is not a valid choice.", ticket.Status))
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	ticket.ID = uuid.Nil
	ticket.CompanyID = vehicle.CompanyID
	ticket.CreatedByID = pr.UserID
	if err := s.repo.CreateTicket(ctx, ticket); err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}
	ticket.Vehicle = vehicle
	return ticket, nil
}

func (s *TicketService) Update(ctx context.Context, pr *authz.Principal, update *models.TicketUpdate) (*models.Ticket, error) {
	current, err := load(ctx, s.guard, pr, authz.ActionUpdate, update.ID, s.repo.GetTicket)
	if err != nil {
		return nil, err
	}
	verr := &e.ValidationError{}
	if update.Title != nil {
		if strings.TrimSpace(*update.Title) == "" {
			verr.Add("title", "This field may not be blank.")
		}
		checkLength(verr, "title", *update.Title, maxTitleLength)
	}
	if update.Priority != nil && !update.Priority.Valid() {
		verr.Add("priority", fmt.Sprintf("%q is not a valid choice.", *update.Priority))
	}
	if update.Status != nil && !update.Status.Valid() {
		verr.Add("status", fmt.Sprintf("%q is not a valid choice.", *update.Status))
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	if update.AssigneeID != nil {
		if _, err := reference(ctx, pr, "assignee", *update.AssigneeID, s.repo.GetUser); err != nil {
			return nil, err
		}
	}

	if err := s.repo.UpdateTicket(ctx, update); err != nil {
		return nil, fmt.Errorf("failed to update ticket: %w", err)
	}
	updated, err := s.repo.GetTicket(ctx, update.ID)
	if err != nil {
		return nil, err
	}
	if updated.Status != current.Status {
		s.producer.Produce(events.StatusChanged(events.TicketStatusChanged, "ticket", updated.ID, updated,
			actorOf(pr), string(current.Status), string(updated.Status)))
	}
	return updated, nil
}

// TelemetryService ingests and lists vehicle telemetry. Reading is open to
// members; ingesting requires an active subscription.
type TelemetryService struct {
	repo        MaintenanceRepository
	readGuard   authz.Guard
	ingestGuard authz.Guard
}

func NewTelemetryService(repo MaintenanceRepository, access authz.AccessLookup) *TelemetryService {
	return &TelemetryService{
		repo:        repo,
		readGuard:   authz.NewGuard(authz.IsOrgMember, nil, access),
		ingestGuard: authz.NewGuard(authz.IsOrgMember, authz.HasActiveSubscription, access),
	}
}

func (s *TelemetryService) List(ctx context.Context, pr *authz.Principal, opts ListOptions) ([]models.TelemetryRecord, error) {
	scope, err := s.readGuard.Authorize(ctx, pr, authz.ActionRead)
	if err != nil {
		return nil, err
	}
	q := opts.query(scope)
	q.Status = ""
	records, err := s.repo.ListTelemetry(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list telemetry: %w", err)
	}
	return records, nil
}

func (s *TelemetryService) Record(ctx context.Context, pr *authz.Principal, rec *models.TelemetryRecord) (*models.TelemetryRecord, error) {
	if _, err := s.ingestGuard.Authorize(ctx, pr, authz.ActionCreate); err != nil {
		return nil, err
	}
	if err := requireCompany(pr); err != nil {
		return nil, err
	}
	vehicle, err := reference(ctx, pr, "vehicle", rec.VehicleID, s.repo.GetVehicle)
	if err != nil {
		return nil, err
	}
	verr := &e.ValidationError{}
	if rec.Latitude < -90 || rec.Latitude > 90 {
		verr.Add("latitude", "Ensure this value is between -90 and 90.")
	}
	if rec.Longitude < -180 || rec.Longitude > 180 {
		verr.Add("longitude", "Ensure this value is between -180 and 180.")
	}
	if rec.SpeedKPH < 0 {
		verr.Add("speed_kph", "Ensure this value is greater than or equal to 0.")
	}
	if rec.FuelLevel != nil && (*rec.FuelLevel < 0 || *rec.FuelLevel > 100) {
		verr.Add("fuel_level", "Ensure this value is between 0 and 100.")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	rec.ID = uuid.Nil
	rec.CompanyID = vehicle.CompanyID
	if err := s.repo.CreateTelemetry(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to record telemetry: %w", err)
	}
	return rec, nil
}
