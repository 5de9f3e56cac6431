package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gartstein/fleet/internal/fleet/db"
	e "github.com/gartstein/fleet/internal/fleet/errors"
	"github.com/gartstein/fleet/internal/fleet/events"
	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome is the result reported to the provider.
type Outcome string

const (
	OutcomeProcessed        Outcome = "processed"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	// OutcomeUnknownCustomer leaves the event unprocessed so it can be
	// replayed once the customer id is known.
	OutcomeUnknownCustomer Outcome = "customer_not_found"
)

type EventProducer interface {
	Produce(event events.Event)
}

type Invalidator interface {
	Invalidate(ctx context.Context, companyID uuid.UUID)
}

// Processor applies webhook deliveries to local billing state at most once
// per (provider, event id).
type Processor struct {
	repo      *db.Repository
	providers *Registry
	access    Invalidator
	producer  EventProducer
	logger    *zap.Logger
	now       func() time.Time
}

func NewProcessor(repo *db.Repository, providers *Registry, access Invalidator, producer EventProducer, logger *zap.Logger) *Processor {
	return &Processor{
		repo:      repo,
		providers: providers,
		access:    access,
		producer:  producer,
		logger:    logger.Named("webhook_processor"),
		now:       time.Now,
	}
}

// Handle verifies, records and applies one delivery. Signature failures
// return ErrInvalidSignature before anything is stored.
func (p *Processor) Handle(ctx context.Context, providerName string, payload []byte, header http.Header) (Outcome, error) {
	provider, err := p.providers.Get(providerName)
	if err != nil {
		return "", err
	}
	if err := provider.Verify(payload, header); err != nil {
		p.logger.Warn("webhook signature rejected", zap.String("provider", providerName), zap.Error(err))
		return "", err
	}
	event, err := provider.Parse(payload)
	if err != nil {
		return "", err
	}

	stored, _, err := p.repo.GetOrCreateWebhookEvent(ctx, &models.WebhookEvent{
		Provider:  providerName,
		EventID:   event.ID,
		EventType: event.StoredType(),
		Payload:   string(payload),
	})
	if err != nil {
		return "", fmt.Errorf("failed to record webhook event: %w", err)
	}
	if stored.Processed {
		p.logger.Info("webhook already processed",
			zap.String("provider", providerName),
			zap.String("event_id", event.ID),
		)
		return OutcomeAlreadyProcessed, nil
	}

	return p.process(ctx, stored, event)
}

// Replay re-applies a stored, unprocessed delivery from its saved payload.
// The payload was verified when it was received.
func (p *Processor) Replay(ctx context.Context, id uuid.UUID) (Outcome, error) {
	stored, err := p.repo.GetWebhookEventByID(ctx, id)
	if err != nil {
		return "", err
	}
	if stored.Processed {
		return OutcomeAlreadyProcessed, nil
	}
	provider, err := p.providers.Get(stored.Provider)
	if err != nil {
		return "", err
	}
	event, err := provider.Parse([]byte(stored.Payload))
	if err != nil {
		return "", err
	}
	return p.process(ctx, stored, event)
}

func (p *Processor) process(ctx context.Context, stored *models.WebhookEvent, event *Event) (Outcome, error) {
	logger := p.logger.With(
		zap.String("provider", stored.Provider),
		zap.String("event_id", stored.EventID),
		zap.String("event_type", stored.EventType),
	)

	if event.Type == Ignored {
		if err := p.repo.MarkWebhookProcessed(ctx, stored.ID, p.now()); err != nil {
			return "", fmt.Errorf("failed to mark webhook processed: %w", err)
		}
		logger.Debug("webhook event type has no effect")
		return OutcomeProcessed, nil
	}

	company, err := p.repo.GetCompanyByCustomerID(ctx, event.CustomerID)
	if errors.Is(err, e.ErrNotFound) {
		logger.Warn("webhook for unknown customer", zap.String("customer_id", event.CustomerID))
		return OutcomeUnknownCustomer, nil
	}
	if err != nil {
		return "", p.fail(ctx, stored, logger, fmt.Errorf("failed to resolve company: %w", err))
	}

	var change *events.Event
	err = p.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		var err error
		change, err = p.apply(ctx, tx, company, event)
		if err != nil {
			return err
		}
		return tx.MarkWebhookProcessed(ctx, stored.ID, p.now())
	})
	if err != nil {
		return "", p.fail(ctx, stored, logger, err)
	}

	p.access.Invalidate(ctx, company.ID)
	if change != nil {
		p.producer.Produce(*change)
	}
	logger.Info("webhook processed", zap.String("company_id", company.ID.String()))
	return OutcomeProcessed, nil
}

// fail records the error on the event row and returns it as
// ErrWebhookProcessing. The cause is only kept as text.
func (p *Processor) fail(ctx context.Context, stored *models.WebhookEvent, logger *zap.Logger, cause error) error {
	logger.Error("webhook processing failed", zap.Error(cause))
	if err := p.repo.RecordWebhookFailure(ctx, stored.ID, cause.Error()); err != nil {
		logger.Error("failed to record webhook failure", zap.Error(err))
	}
	return fmt.Errorf("%w: %v", e.ErrWebhookProcessing, cause)
}

// apply performs the event-specific state transition inside tx and returns
// the status-change event to publish, if any.
func (p *Processor) apply(ctx context.Context, tx *db.Repository, company *models.Company, event *Event) (*events.Event, error) {
	sub, err := tx.GetSubscription(ctx, company.ID)
	if err != nil && !errors.Is(err, e.ErrNotFound) {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	var oldStatus models.SubscriptionStatus
	if sub != nil {
		oldStatus = sub.Status
	} else {
		sub = &models.CompanySubscription{CompanyID: company.ID}
	}
	sub.Provider = event.Provider
	sub.ProviderCustomerID = event.CustomerID

	overdue := company.IsPaymentOverdue
	switch event.Type {
	case SubscriptionCreated, SubscriptionUpdated, SubscriptionCanceled:
		data := event.Subscription
		if data == nil {
			return nil, fmt.Errorf("%w: subscription event without subscription", e.ErrInvalidInput)
		}
		if err := p.applySubscription(ctx, tx, company, sub, event.Type, data); err != nil {
			return nil, err
		}
		overdue = sub.Status == models.SubPastDue || sub.Status == models.SubUnpaid

	case PaymentSucceeded, PaymentFailed:
		data := event.Payment
		if data == nil {
			return nil, fmt.Errorf("%w: payment event without payment", e.ErrInvalidInput)
		}
		if sub.ProviderSubscriptionID == "" {
			sub.ProviderSubscriptionID = data.SubscriptionID
		}
		payment := &models.Payment{
			CompanyID:         company.ID,
			Provider:          event.Provider,
			ProviderPaymentID: data.ID,
			Amount:            data.Amount,
			Currency:          data.Currency,
			PaidAt:            data.PaidAt,
		}
		if event.Type == PaymentSucceeded {
			payment.Status = models.PaymentSuccess
			overdue = false
			if sub.Status == models.SubPastDue || sub.Status == models.SubUnpaid || sub.Status == "" {
				sub.Status = models.SubActive
			}
		} else {
			payment.Status = models.PaymentFailed
			payment.FailureReason = data.FailureReason
			overdue = true
			if sub.Status == models.SubActive || sub.Status == "" {
				sub.Status = models.SubPastDue
			}
		}
		if err := tx.SaveSubscription(ctx, sub); err != nil {
			return nil, fmt.Errorf("failed to save subscription: %w", err)
		}
		payment.SubscriptionID = &sub.ID
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return nil, fmt.Errorf("failed to record payment: %w", err)
		}
	}

	if err := tx.SetCompanyBilling(ctx, company.ID, sub.Status.CompanyStatus(), overdue); err != nil {
		return nil, fmt.Errorf("failed to update company billing state: %w", err)
	}

	if oldStatus == sub.Status {
		return nil, nil
	}
	ev := events.StatusChanged(events.SubscriptionStatusChanged, "subscription", sub.ID, sub, nil,
		string(oldStatus), string(sub.Status))
	return &ev, nil
}

func (p *Processor) applySubscription(ctx context.Context, tx *db.Repository, company *models.Company,
	sub *models.CompanySubscription, eventType EventType, data *SubscriptionData) error {
	status := data.Status
	if eventType == SubscriptionCanceled {
		status = models.SubCanceled
	}
	if !status.Valid() {
		return fmt.Errorf("%w: unknown subscription status %q", e.ErrInvalidInput, status)
	}

	sub.Status = status
	if data.ID != "" {
		sub.ProviderSubscriptionID = data.ID
	}
	sub.TrialEnd = data.TrialEnd
	if data.CurrentPeriodStart != nil {
		sub.CurrentPeriodStart = data.CurrentPeriodStart
	}
	if data.CurrentPeriodEnd != nil {
		sub.CurrentPeriodEnd = data.CurrentPeriodEnd
	}
	sub.CancelAtPeriodEnd = data.CancelAtPeriodEnd
	sub.CanceledAt = data.CanceledAt
	if status == models.SubCanceled && sub.CanceledAt == nil {
		now := p.now().UTC()
		sub.CanceledAt = &now
	}

	if data.PriceID != "" {
		plan, err := tx.GetPlanByProviderPriceID(ctx, data.PriceID)
		switch {
		case err == nil:
			sub.PlanID = &plan.ID
			sub.Plan = nil
			if err := tx.SetCompanyPlan(ctx, company.ID, plan.Tier); err != nil {
				return fmt.Errorf("failed to update company plan: %w", err)
			}
		case errors.Is(err, e.ErrNotFound):
			p.logger.Warn("webhook references unknown price", zap.String("price_id", data.PriceID))
		default:
			return fmt.Errorf("failed to resolve plan: %w", err)
		}
	}

	if err := tx.SaveSubscription(ctx, sub); err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}
