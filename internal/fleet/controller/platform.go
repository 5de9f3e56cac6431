package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/gartstein/fleet/internal/fleet/authz"
	"github.com/gartstein/fleet/internal/fleet/billing"
	"github.com/gartstein/fleet/internal/fleet/events"
	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PlatformRepository interface {
	CreateCompany(ctx context.Context, company *models.Company) error
	CompanyExistsBySlug(ctx context.Context, slug string) (bool, error)
	GetCompany(ctx context.Context, id uuid.UUID) (*models.Company, error)
	ListCompanies(ctx context.Context, limit, offset int) ([]models.Company, error)
	SetCompanyActive(ctx context.Context, id uuid.UUID, active bool) error
	ListWebhookEvents(ctx context.Context, processed *bool, limit, offset int) ([]models.WebhookEvent, error)
}

// WebhookReplayer re-applies a stored webhook delivery.
type WebhookReplayer interface {
	Replay(ctx context.Context, id uuid.UUID) (billing.Outcome, error)
}

// PlatformService holds operator actions that span tenants.
type PlatformService struct {
	repo     PlatformRepository
	access   AccessInvalidator
	replayer WebhookReplayer
	producer EventProducer
	logger   *zap.Logger
	now      func() time.Time
}

func NewPlatformService(repo PlatformRepository, access AccessInvalidator, replayer WebhookReplayer,
	producer EventProducer, logger *zap.Logger) *PlatformService {
	return &PlatformService{
		repo:     repo,
		access:   access,
		replayer: replayer,
		producer: producer,
		logger:   logger.Named("platform_service"),
		now:      time.Now,
	}
}

// CreateCompany is the operator path for onboarding a tenant. Trial
// companies get models.PlatformTrialPeriod, which is shorter than the
// self-service signup trial.
func (s *PlatformService) CreateCompany(ctx context.Context, in CompanyInput, tier models.PlanTier) (*models.Company, error) {
	if tier == "" {
		tier = models.TierTrial
	}
	company, err := createCompany(ctx, s.repo, in, tier, models.PlatformTrialPeriod, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("company created by operator",
		zap.String("company_id", company.ID.String()),
		zap.String("slug", company.Slug),
		zap.String("plan", string(tier)),
	)
	return company, nil
}

func (s *PlatformService) ListCompanies(ctx context.Context, pr *authz.Principal, limit, offset int) ([]models.Company, error) {
	if err := authz.IsPlatformAdmin.Check(pr, authz.ActionRead); err != nil {
		return nil, err
	}
	companies, err := s.repo.ListCompanies(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	return companies, nil
}

// SuspendCompany deactivates a tenant. Its members keep their accounts but
// lose feature access immediately.
func (s *PlatformService) SuspendCompany(ctx context.Context, pr *authz.Principal, id uuid.UUID) (*models.Company, error) {
	return s.setActive(ctx, pr, id, false)
}

func (s *PlatformService) ActivateCompany(ctx context.Context, pr *authz.Principal, id uuid.UUID) (*models.Company, error) {
	return s.setActive(ctx, pr, id, true)
}

func (s *PlatformService) setActive(ctx context.Context, pr *authz.Principal, id uuid.UUID, active bool) (*models.Company, error) {
	if err := authz.IsPlatformAdmin.Check(pr, authz.ActionUpdate); err != nil {
		return nil, err
	}
	company, err := s.repo.GetCompany(ctx, id)
	if err != nil {
		return nil, err
	}
	if company.IsActive == active {
		return company, nil
	}
	if err := s.repo.SetCompanyActive(ctx, id, active); err != nil {
		return nil, fmt.Errorf("failed to update company: %w", err)
	}
	company.IsActive = active
	s.access.Invalidate(ctx, id)

	eventType, oldStatus, newStatus := events.CompanySuspended, "active", "suspended"
	if active {
		eventType, oldStatus, newStatus = events.CompanyActivated, "suspended", "active"
	}
	s.producer.Produce(events.StatusChanged(eventType, "company", id, company, actorOf(pr), oldStatus, newStatus))
	s.logger.Info("company activation changed",
		zap.String("company_id", id.String()),
		zap.Bool("active", active),
		zap.String("operator", pr.Username),
	)
	return company, nil
}

func (s *PlatformService) ListWebhookEvents(ctx context.Context, pr *authz.Principal, processed *bool, limit, offset int) ([]models.WebhookEvent, error) {
	if err := authz.IsPlatformAdmin.Check(pr, authz.ActionRead); err != nil {
		return nil, err
	}
	list, err := s.repo.ListWebhookEvents(ctx, processed, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook events: %w", err)
	}
	return list, nil
}

// ReplayWebhook re-applies a stored delivery, typically one that arrived
// before its customer id was known.
func (s *PlatformService) ReplayWebhook(ctx context.Context, pr *authz.Principal, id uuid.UUID) (billing.Outcome, error) {
	if err := authz.IsPlatformAdmin.Check(pr, authz.ActionUpdate); err != nil {
		return "", err
	}
	outcome, err := s.replayer.Replay(ctx, id)
	if err != nil {
		return "", err
	}
	s.logger.Info("webhook replayed",
		zap.String("webhook_event_id", id.String()),
		zap.String("outcome", string(outcome)),
	)
	return outcome, nil
}
