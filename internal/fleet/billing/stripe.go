package billing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	e "github.com/gartstein/fleet/internal/fleet/errors"
	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const ProviderStripe = "stripe"

// StripeProvider handles Stripe webhooks. Stripe reports amounts in minor
// units and times as unix seconds.
type StripeProvider struct {
	webhookSecret string
}

func NewStripeProvider(webhookSecret string) *StripeProvider {
	return &StripeProvider{webhookSecret: webhookSecret}
}

func (p *StripeProvider) Name() string { return ProviderStripe }

func (p *StripeProvider) Verify(payload []byte, header http.Header) error {
	if p.webhookSecret == "" {
		return fmt.Errorf("%w: stripe webhook secret not configured", e.ErrInvalidSignature)
	}
	if _, err := p.construct(payload, header.Get("Stripe-Signature")); err != nil {
		return fmt.Errorf("%w: %v", e.ErrInvalidSignature, err)
	}
	return nil
}

func (p *StripeProvider) construct(payload []byte, signature string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
}

// stripeSubscription is the subset of a Stripe subscription object we use.
// Period bounds moved onto subscription items in newer API versions.
type stripeSubscription struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	TrialEnd           int64  `json:"trial_end"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CanceledAt         int64  `json:"canceled_at"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
			Price              struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type stripeInvoice struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	AmountPaid        int64  `json:"amount_paid"`
	AmountDue         int64  `json:"amount_due"`
	Currency          string `json:"currency"`
	StatusTransitions struct {
		PaidAt int64 `json:"paid_at"`
	} `json:"status_transitions"`
	LastFinalizationError *struct {
		Message string `json:"message"`
	} `json:"last_finalization_error"`
}

func (p *StripeProvider) Parse(payload []byte) (*Event, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: malformed stripe event: %v", e.ErrInvalidInput, err)
	}
	if event.ID == "" {
		return nil, fmt.Errorf("%w: stripe event without id", e.ErrInvalidInput)
	}

	out := &Event{Provider: ProviderStripe, ID: event.ID, RawType: string(event.Type), Type: Ignored}
	if event.Data == nil {
		return out, nil
	}

	switch event.Type {
	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripeSubscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: malformed stripe subscription: %v", e.ErrInvalidInput, err)
		}
		out.Type = map[stripe.EventType]EventType{
			stripe.EventTypeCustomerSubscriptionCreated: SubscriptionCreated,
			stripe.EventTypeCustomerSubscriptionUpdated: SubscriptionUpdated,
			stripe.EventTypeCustomerSubscriptionDeleted: SubscriptionCanceled,
		}[event.Type]
		out.CustomerID = sub.Customer
		out.Subscription = sub.normalize()

	case stripe.EventTypeInvoicePaymentSucceeded, stripe.EventTypeInvoicePaymentFailed:
		var inv stripeInvoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("%w: malformed stripe invoice: %v", e.ErrInvalidInput, err)
		}
		out.CustomerID = inv.Customer
		out.Payment = inv.normalize()
		out.Type = PaymentSucceeded
		if event.Type == stripe.EventTypeInvoicePaymentFailed {
			out.Type = PaymentFailed
			out.Payment.Amount = FromMinorUnits(inv.AmountDue, inv.Currency)
			out.Payment.PaidAt = nil
			if out.Payment.FailureReason == "" {
				out.Payment.FailureReason = "invoice payment failed"
			}
		}
	}
	return out, nil
}

func (s *stripeSubscription) normalize() *SubscriptionData {
	data := &SubscriptionData{
		ID:                s.ID,
		Status:            models.SubscriptionStatus(s.Status),
		TrialEnd:          unixTime(s.TrialEnd),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		CanceledAt:        unixTime(s.CanceledAt),
	}
	start, end := s.CurrentPeriodStart, s.CurrentPeriodEnd
	if len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		data.PriceID = item.Price.ID
		if start == 0 {
			start, end = item.CurrentPeriodStart, item.CurrentPeriodEnd
		}
	}
	data.CurrentPeriodStart = unixTime(start)
	data.CurrentPeriodEnd = unixTime(end)
	return data
}

func (inv *stripeInvoice) normalize() *PaymentData {
	subID := inv.Subscription
	if subID == "" {
		subID = inv.Parent.SubscriptionDetails.Subscription
	}
	data := &PaymentData{
		ID:             inv.ID,
		SubscriptionID: subID,
		Amount:         FromMinorUnits(inv.AmountPaid, inv.Currency),
		Currency:       strings.ToUpper(inv.Currency),
		PaidAt:         unixTime(inv.StatusTransitions.PaidAt),
	}
	if inv.LastFinalizationError != nil {
		data.FailureReason = inv.LastFinalizationError.Message
	}
	return data
}
