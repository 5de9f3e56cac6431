package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gartstein/fleet/internal/fleet/authz"
	"github.com/gartstein/fleet/internal/fleet/billing"
	"github.com/gartstein/fleet/internal/fleet/db"
	e "github.com/gartstein/fleet/internal/fleet/errors"
	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type BillingRepository interface {
	ListActivePlans(ctx context.Context) ([]models.Plan, error)
	GetPlanByCode(ctx context.Context, code string) (*models.Plan, error)
	GetCompany(ctx context.Context, id uuid.UUID) (*models.Company, error)
	GetSubscription(ctx context.Context, companyID uuid.UUID) (*models.CompanySubscription, error)
	SetPaymentCustomerID(ctx context.Context, id uuid.UUID, customerID string) error
	ListPayments(ctx context.Context, q db.ListQuery) ([]models.Payment, error)
}

// WebhookHandler applies provider deliveries.
type WebhookHandler interface {
	Handle(ctx context.Context, provider string, payload []byte, header http.Header) (billing.Outcome, error)
}

// SubscriptionView is the billing state of a company as seen by its members.
type SubscriptionView struct {
	Company           *models.Company
	Subscription      *models.CompanySubscription
	CanAccessFeatures bool
}

// BillingService exposes plans, subscription state, checkout and webhooks.
type BillingService struct {
	repo     BillingRepository
	access   authz.AccessLookup
	gateway  billing.CheckoutGateway
	webhooks WebhookHandler
	logger   *zap.Logger
}

// NewBillingService builds the service. gateway may be nil when no provider
// secret key is configured; checkout then fails with ErrInvalidInput.
func NewBillingService(repo BillingRepository, access authz.AccessLookup, gateway billing.CheckoutGateway,
	webhooks WebhookHandler, logger *zap.Logger) *BillingService {
	return &BillingService{
		repo:     repo,
		access:   access,
		gateway:  gateway,
		webhooks: webhooks,
		logger:   logger.Named("billing_service"),
	}
}

// Plans lists the active plans. It needs no authentication.
func (s *BillingService) Plans(ctx context.Context) ([]models.Plan, error) {
	plans, err := s.repo.ListActivePlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

func (s *BillingService) Subscription(ctx context.Context, pr *authz.Principal) (*SubscriptionView, error) {
	if err := authz.IsOrgMember.Check(pr, authz.ActionRead); err != nil {
		return nil, err
	}
	if err := requireCompany(pr); err != nil {
		return nil, err
	}
	company, err := s.repo.GetCompany(ctx, pr.Company())
	if err != nil {
		return nil, fmt.Errorf("failed to load company: %w", err)
	}
	view := &SubscriptionView{Company: company}
	sub, err := s.repo.GetSubscription(ctx, company.ID)
	switch {
	case err == nil:
		view.Subscription = sub
	case !errors.Is(err, e.ErrNotFound):
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	view.CanAccessFeatures, err = s.access.CanAccess(ctx, company.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check access: %w", err)
	}
	return view, nil
}

// Checkout starts a hosted checkout for planCode and returns its URL. The
// provider customer is created on first use and remembered on the company
// so that webhooks can be routed back to it.
func (s *BillingService) Checkout(ctx context.Context, pr *authz.Principal, planCode, successURL, cancelURL string) (string, error) {
	if err := authz.IsOrgAdmin.Check(pr, authz.ActionCreate); err != nil {
		return "", err
	}
	if err := requireCompany(pr); err != nil {
		return "", err
	}
	verr := &e.ValidationError{}
	if planCode == "" {
		verr.Add("plan", "This field is required.")
	}
	if successURL == "" {
		verr.Add("success_url", "This field is required.")
	}
	if cancelURL == "" {
		verr.Add("cancel_url", "This field is required.")
	}
	if err := verr.OrNil(); err != nil {
		return "", err
	}

	plan, err := s.repo.GetPlanByCode(ctx, planCode)
	if errors.Is(err, e.ErrNotFound) || (err == nil && (!plan.IsActive || plan.ProviderPriceID == "")) {
		return "", e.NewValidationError("plan", invalidReference)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load plan: %w", err)
	}

	customerID, err := s.ensureCustomer(ctx, pr.Company())
	if err != nil {
		return "", err
	}
	url, err := s.gateway.CreateCheckoutSession(ctx, customerID, plan.ProviderPriceID, successURL, cancelURL)
	if err != nil {
		return "", err
	}
	s.logger.Info("checkout session created",
		zap.String("company_id", pr.Company().String()),
		zap.String("plan", plan.Code),
	)
	return url, nil
}

// Portal returns a link to the provider's self-service billing portal.
func (s *BillingService) Portal(ctx context.Context, pr *authz.Principal, returnURL string) (string, error) {
	if err := authz.IsOrgAdmin.Check(pr, authz.ActionCreate); err != nil {
		return "", err
	}
	if err := requireCompany(pr); err != nil {
		return "", err
	}
	if returnURL == "" {
		return "", e.NewValidationError("return_url", "This field is required.")
	}
	customerID, err := s.ensureCustomer(ctx, pr.Company())
	if err != nil {
		return "", err
	}
	return s.gateway.CreatePortalSession(ctx, customerID, returnURL)
}

func (s *BillingService) ensureCustomer(ctx context.Context, companyID uuid.UUID) (string, error) {
	if s.gateway == nil {
		return "", fmt.Errorf("%w: no checkout provider configured", e.ErrInvalidInput)
	}
	company, err := s.repo.GetCompany(ctx, companyID)
	if err != nil {
		return "", fmt.Errorf("failed to load company: %w", err)
	}
	if company.PaymentCustomerID != "" {
		return company.PaymentCustomerID, nil
	}
	customerID, err := s.gateway.CreateCustomer(ctx, company)
	if err != nil {
		return "", err
	}
	if err := s.repo.SetPaymentCustomerID(ctx, companyID, customerID); err != nil {
		return "", fmt.Errorf("failed to store payment customer: %w", err)
	}
	s.logger.Info("payment customer created",
		zap.String("company_id", companyID.String()),
		zap.String("provider", s.gateway.Provider()),
	)
	return customerID, nil
}

// Payments lists the payment ledger of the caller's company.
func (s *BillingService) Payments(ctx context.Context, pr *authz.Principal, opts ListOptions) ([]models.Payment, error) {
	if err := authz.IsOrgAdmin.Check(pr, authz.ActionRead); err != nil {
		return nil, err
	}
	q := opts.query(authz.IsOrgAdmin.ScopeFor(pr))
	q.VehicleID = nil
	payments, err := s.repo.ListPayments(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

// Webhook hands a raw delivery to the processor.
func (s *BillingService) Webhook(ctx context.Context, provider string, payload []byte, header http.Header) (billing.Outcome, error) {
	start := time.Now()
	outcome, err := s.webhooks.Handle(ctx, provider, payload, header)
	s.logger.Debug("webhook handled",
		zap.String("provider", provider),
		zap.String("outcome", string(outcome)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err),
	)
	return outcome, err
}
