package billing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	e "github.com/gartstein/fleet/internal/fleet/errors"
	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	stripeSecret   = "whsec_test"
	paystackSecret = "sk_test_paystack"
)

func stripePayload(t *testing.T, id, eventType string, object any) []byte {
	t.Helper()
	obj, err := json.Marshal(object)
	require.NoError(t, err)
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"api_version":"2024-06-20","data":{"object":%s}}`,
		id, eventType, obj))
}

func stripeHeader(payload []byte, secret string) http.Header {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	h := http.Header{}
	h.Set("Stripe-Signature", signed.Header)
	return h
}

func paystackPayload(t *testing.T, event string, data any) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"event": event, "data": data})
	require.NoError(t, err)
	return payload
}

func paystackHeader(payload []byte, secret string) http.Header {
	h := http.Header{}
	h.Set("x-paystack-signature", NewPaystackProvider(secret).Signature(payload))
	return h
}

func TestFromMinorUnits(t *testing.T) {
	assert.True(t, decimal.RequireFromString("29.99").Equal(FromMinorUnits(2999, "usd")))
	assert.True(t, decimal.RequireFromString("1500").Equal(FromMinorUnits(1500, "JPY")))
	assert.True(t, decimal.Zero.Equal(FromMinorUnits(0, "NGN")))
}

func TestStripeProvider_Verify(t *testing.T) {
	p := NewStripeProvider(stripeSecret)
	payload := stripePayload(t, "evt_1", "customer.subscription.updated", map[string]any{"id": "sub_1"})

	assert.NoError(t, p.Verify(payload, stripeHeader(payload, stripeSecret)))
	assert.ErrorIs(t, p.Verify(payload, stripeHeader(payload, "whsec_other")), e.ErrInvalidSignature)
	assert.ErrorIs(t, p.Verify(payload, http.Header{}), e.ErrInvalidSignature)

	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = ' '
	assert.ErrorIs(t, p.Verify(tampered, stripeHeader(payload, stripeSecret)), e.ErrInvalidSignature)

	assert.ErrorIs(t, NewStripeProvider("").Verify(payload, stripeHeader(payload, "")), e.ErrInvalidSignature)
}

func TestStripeProvider_ParseSubscription(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	payload := stripePayload(t, "evt_sub", "customer.subscription.created", map[string]any{
		"id":                   "sub_1",
		"object":               "subscription",
		"customer":             "cus_1",
		"status":               "trialing",
		"trial_end":            end.Unix(),
		"cancel_at_period_end": false,
		"items": map[string]any{"data": []map[string]any{{
			"current_period_start": start.Unix(),
			"current_period_end":   end.Unix(),
			"price":                map[string]any{"id": "price_basic"},
		}}},
	})

	ev, err := NewStripeProvider(stripeSecret).Parse(payload)
	require.NoError(t, err)
	assert.Equal(t, "evt_sub", ev.ID)
	assert.Equal(t, SubscriptionCreated, ev.Type)
	assert.Equal(t, "cus_1", ev.CustomerID)
	require.NotNil(t, ev.Subscription)
	assert.Equal(t, models.SubTrialing, ev.Subscription.Status)
	assert.Equal(t, "price_basic", ev.Subscription.PriceID)
	require.NotNil(t, ev.Subscription.CurrentPeriodStart)
	assert.True(t, start.Equal(*ev.Subscription.CurrentPeriodStart))
	require.NotNil(t, ev.Subscription.TrialEnd)
	assert.True(t, end.Equal(*ev.Subscription.TrialEnd))
}

func TestStripeProvider_ParseInvoice(t *testing.T) {
	paid := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	invoice := map[string]any{
		"id":                 "in_1",
		"customer":           "cus_1",
		"amount_paid":        2999,
		"amount_due":         2999,
		"currency":           "usd",
		"status_transitions": map[string]any{"paid_at": paid.Unix()},
		"parent": map[string]any{
			"subscription_details": map[string]any{"subscription": "sub_1"},
		},
	}

	ev, err := NewStripeProvider(stripeSecret).Parse(stripePayload(t, "evt_paid", "invoice.payment_succeeded", invoice))
	require.NoError(t, err)
	assert.Equal(t, PaymentSucceeded, ev.Type)
	require.NotNil(t, ev.Payment)
	assert.Equal(t, "in_1", ev.Payment.ID)
	assert.Equal(t, "sub_1", ev.Payment.SubscriptionID)
	assert.Equal(t, "USD", ev.Payment.Currency)
	assert.True(t, decimal.RequireFromString("29.99").Equal(ev.Payment.Amount))
	require.NotNil(t, ev.Payment.PaidAt)
	assert.True(t, paid.Equal(*ev.Payment.PaidAt))

	invoice["amount_paid"] = 0
	ev, err = NewStripeProvider(stripeSecret).Parse(stripePayload(t, "evt_failed", "invoice.payment_failed", invoice))
	require.NoError(t, err)
	assert.Equal(t, PaymentFailed, ev.Type)
	assert.True(t, decimal.RequireFromString("29.99").Equal(ev.Payment.Amount))
	assert.Nil(t, ev.Payment.PaidAt)
	assert.NotEmpty(t, ev.Payment.FailureReason)
}

func TestStripeProvider_ParseOther(t *testing.T) {
	ev, err := NewStripeProvider(stripeSecret).Parse(stripePayload(t, "evt_x", "customer.created", map[string]any{"id": "cus_1"}))
	require.NoError(t, err)
	assert.Equal(t, Ignored, ev.Type)
	assert.Equal(t, "customer.created", ev.StoredType())

	_, err = NewStripeProvider(stripeSecret).Parse([]byte(`{`))
	assert.ErrorIs(t, err, e.ErrInvalidInput)
}

func TestPaystackProvider_Verify(t *testing.T) {
	p := NewPaystackProvider(paystackSecret)
	payload := paystackPayload(t, "charge.success", map[string]any{"id": 1})

	assert.NoError(t, p.Verify(payload, paystackHeader(payload, paystackSecret)))
	assert.ErrorIs(t, p.Verify(payload, paystackHeader(payload, "sk_other")), e.ErrInvalidSignature)
	assert.ErrorIs(t, p.Verify(payload, http.Header{}), e.ErrInvalidSignature)

	h := http.Header{}
	h.Set("x-paystack-signature", "zz-not-hex")
	assert.ErrorIs(t, p.Verify(payload, h), e.ErrInvalidSignature)
}

func TestPaystackProvider_Parse(t *testing.T) {
	p := NewPaystackProvider(paystackSecret)

	tests := []struct {
		name       string
		event      string
		data       map[string]any
		wantType   EventType
		wantID     string
		wantStatus models.SubscriptionStatus
	}{
		{
			name:  "subscription created",
			event: "subscription.create",
			data: map[string]any{
				"id": 42, "subscription_code": "SUB_1", "status": "active",
				"createdAt": "2025-03-01T00:00:00.000Z", "next_payment_date": "2025-04-01T00:00:00.000Z",
				"customer": map[string]any{"customer_code": "CUS_1"}, "plan": map[string]any{"plan_code": "PLN_1"},
			},
			wantType:   SubscriptionCreated,
			wantID:     "subscription.create:42",
			wantStatus: models.SubActive,
		},
		{
			name:  "subscription disabled",
			event: "subscription.disable",
			data: map[string]any{
				"id": 42, "subscription_code": "SUB_1", "status": "complete",
				"customer": map[string]any{"customer_code": "CUS_1"},
			},
			wantType:   SubscriptionCanceled,
			wantID:     "subscription.disable:42",
			wantStatus: models.SubCanceled,
		},
		{
			name:  "subscription attention",
			event: "subscription.not_renew",
			data: map[string]any{
				"id": 43, "subscription_code": "SUB_1", "status": "attention",
				"customer": map[string]any{"customer_code": "CUS_1"},
			},
			wantType:   SubscriptionUpdated,
			wantID:     "subscription.not_renew:43",
			wantStatus: models.SubPastDue,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := p.Parse(paystackPayload(t, tt.event, tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, ev.Type)
			assert.Equal(t, tt.wantID, ev.ID)
			assert.Equal(t, "CUS_1", ev.CustomerID)
			require.NotNil(t, ev.Subscription)
			assert.Equal(t, tt.wantStatus, ev.Subscription.Status)
		})
	}
}

func TestPaystackProvider_ParseCharge(t *testing.T) {
	p := NewPaystackProvider(paystackSecret)
	ev, err := p.Parse(paystackPayload(t, "charge.success", map[string]any{
		"id": 302961, "reference": "ref_1", "amount": 500000, "currency": "NGN",
		"paid_at":  "2025-03-01T10:00:00.000Z",
		"customer": map[string]any{"customer_code": "CUS_1"},
	}))
	require.NoError(t, err)
	assert.Equal(t, PaymentSucceeded, ev.Type)
	assert.Equal(t, "charge.success:302961", ev.ID)
	require.NotNil(t, ev.Payment)
	assert.Equal(t, "ref_1", ev.Payment.ID)
	assert.True(t, decimal.RequireFromString("5000").Equal(ev.Payment.Amount))
	assert.Equal(t, "NGN", ev.Payment.Currency)
	require.NotNil(t, ev.Payment.PaidAt)

	_, err = p.Parse(paystackPayload(t, "charge.success", map[string]any{}))
	assert.ErrorIs(t, err, e.ErrInvalidInput)

	ev, err = p.Parse(paystackPayload(t, "transfer.success", map[string]any{"id": 7}))
	require.NoError(t, err)
	assert.Equal(t, Ignored, ev.Type)
	assert.Equal(t, "transfer.success:7", ev.ID)
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistryFromConfig(map[string]ProviderConfig{
		"stripe":   {WebhookSecret: stripeSecret},
		"paystack": {SecretKey: paystackSecret},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"paystack", "stripe"}, r.Names())

	p, err := r.Get("stripe")
	require.NoError(t, err)
	assert.Equal(t, ProviderStripe, p.Name())

	_, err = r.Get("paypal")
	assert.ErrorIs(t, err, e.ErrUnknownProvider)

	_, err = NewRegistryFromConfig(map[string]ProviderConfig{"paypal": {}})
	assert.ErrorIs(t, err, e.ErrUnknownProvider)
}
