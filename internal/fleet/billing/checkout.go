package billing

import (
	"context"
	"fmt"

	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// CheckoutGateway creates hosted payment pages at the provider.
type CheckoutGateway interface {
	Provider() string
	CreateCustomer(ctx context.Context, company *models.Company) (string, error)
	CreateCheckoutSession(ctx context.Context, customerID, priceID, successURL, cancelURL string) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// StripeCheckout implements CheckoutGateway with Stripe Checkout and the
// customer portal.
type StripeCheckout struct {
	api *client.API
}

func NewStripeCheckout(secretKey string) *StripeCheckout {
	return &StripeCheckout{api: client.New(secretKey, nil)}
}

func (s *StripeCheckout) Provider() string { return ProviderStripe }

func (s *StripeCheckout) CreateCustomer(ctx context.Context, company *models.Company) (string, error) {
	params := &stripe.CustomerParams{
		Name:  stripe.String(company.Name),
		Email: stripe.String(company.Email),
	}
	params.Context = ctx
	params.AddMetadata("company_id", company.ID.String())
	params.AddMetadata("company_slug", company.Slug)

	cust, err := s.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create stripe customer: %w", err)
	}
	return cust.ID, nil
}

func (s *StripeCheckout) CreateCheckoutSession(ctx context.Context, customerID, priceID, successURL, cancelURL string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(customerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	params.Context = ctx

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (s *StripeCheckout) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := s.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create portal session: %w", err)
	}
	return sess.URL, nil
}
