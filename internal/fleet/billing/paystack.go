package billing

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	e "github.com/gartstein/fleet/internal/fleet/errors"
	"github.com/gartstein/fleet/internal/fleet/models"
)

const (
	ProviderPaystack        = "paystack"
	paystackSignatureHeader = "X-Paystack-Signature"
)

// PaystackProvider handles Paystack webhooks. Paystack signs the raw body
// with HMAC-SHA512 of the secret key, reports amounts in minor units and
// times as RFC 3339 strings. Its payloads carry no event id, so one is
// derived from the event name and the data id.
type PaystackProvider struct {
	secretKey string
}

func NewPaystackProvider(secretKey string) *PaystackProvider {
	return &PaystackProvider{secretKey: secretKey}
}

func (p *PaystackProvider) Name() string { return ProviderPaystack }

func (p *PaystackProvider) Verify(payload []byte, header http.Header) error {
	if p.secretKey == "" {
		return fmt.Errorf("%w: paystack secret not configured", e.ErrInvalidSignature)
	}
	got, err := hex.DecodeString(header.Get(paystackSignatureHeader))
	if err != nil || len(got) == 0 {
		return fmt.Errorf("%w: missing or malformed signature", e.ErrInvalidSignature)
	}
	if !hmac.Equal(got, p.sign(payload)) {
		return fmt.Errorf("%w: signature mismatch", e.ErrInvalidSignature)
	}
	return nil
}

func (p *PaystackProvider) sign(payload []byte) []byte {
	mac := hmac.New(sha512.New, []byte(p.secretKey))
	mac.Write(payload)
	return mac.Sum(nil)
}

// Signature returns the header value Paystack would send for payload.
func (p *PaystackProvider) Signature(payload []byte) string {
	return hex.EncodeToString(p.sign(payload))
}

type paystackEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type paystackCustomer struct {
	CustomerCode string `json:"customer_code"`
}

type paystackPlan struct {
	PlanCode string `json:"plan_code"`
}

type paystackSubscription struct {
	ID               json.Number      `json:"id"`
	SubscriptionCode string           `json:"subscription_code"`
	Status           string           `json:"status"`
	CreatedAt        string           `json:"createdAt"`
	NextPaymentDate  string           `json:"next_payment_date"`
	Customer         paystackCustomer `json:"customer"`
	Plan             paystackPlan     `json:"plan"`
}

type paystackCharge struct {
	ID              json.Number      `json:"id"`
	Reference       string           `json:"reference"`
	Amount          int64            `json:"amount"`
	Currency        string           `json:"currency"`
	PaidAt          string           `json:"paid_at"`
	GatewayResponse string           `json:"gateway_response"`
	Customer        paystackCustomer `json:"customer"`
	Subscription    struct {
		SubscriptionCode string `json:"subscription_code"`
	} `json:"subscription"`
}

var paystackSubscriptionStatus = map[string]models.SubscriptionStatus{
	"active":       models.SubActive,
	"non-renewing": models.SubActive,
	"attention":    models.SubPastDue,
	"completed":    models.SubExpired,
	"cancelled":    models.SubCanceled,
}

func (p *PaystackProvider) Parse(payload []byte) (*Event, error) {
	var env paystackEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed paystack event: %v", e.ErrInvalidInput, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: paystack event without name", e.ErrInvalidInput)
	}

	out := &Event{Provider: ProviderPaystack, RawType: env.Event, Type: Ignored}
	switch env.Event {
	case "subscription.create", "subscription.disable", "subscription.not_renew":
		var sub paystackSubscription
		if err := json.Unmarshal(env.Data, &sub); err != nil {
			return nil, fmt.Errorf("%w: malformed paystack subscription: %v", e.ErrInvalidInput, err)
		}
		status, ok := paystackSubscriptionStatus[sub.Status]
		if !ok {
			status = models.SubIncomplete
		}
		data := &SubscriptionData{
			ID:                 sub.SubscriptionCode,
			Status:             status,
			PriceID:            sub.Plan.PlanCode,
			CurrentPeriodStart: parseRFC3339(sub.CreatedAt),
			CurrentPeriodEnd:   parseRFC3339(sub.NextPaymentDate),
		}
		switch env.Event {
		case "subscription.create":
			out.Type = SubscriptionCreated
		case "subscription.not_renew":
			out.Type = SubscriptionUpdated
			data.CancelAtPeriodEnd = true
		case "subscription.disable":
			out.Type = SubscriptionCanceled
			data.Status = models.SubCanceled
		}
		out.ID = env.Event + ":" + firstNonEmpty(sub.ID.String(), sub.SubscriptionCode)
		out.CustomerID = sub.Customer.CustomerCode
		out.Subscription = data

	case "charge.success", "invoice.payment_failed":
		var charge paystackCharge
		if err := json.Unmarshal(env.Data, &charge); err != nil {
			return nil, fmt.Errorf("%w: malformed paystack charge: %v", e.ErrInvalidInput, err)
		}
		out.Type = PaymentSucceeded
		data := &PaymentData{
			ID:             firstNonEmpty(charge.Reference, charge.ID.String()),
			SubscriptionID: charge.Subscription.SubscriptionCode,
			Amount:         FromMinorUnits(charge.Amount, charge.Currency),
			Currency:       strings.ToUpper(charge.Currency),
			PaidAt:         parseRFC3339(charge.PaidAt),
		}
		if env.Event == "invoice.payment_failed" {
			out.Type = PaymentFailed
			data.PaidAt = nil
			data.FailureReason = firstNonEmpty(charge.GatewayResponse, "invoice payment failed")
		}
		out.ID = env.Event + ":" + firstNonEmpty(charge.ID.String(), charge.Reference)
		out.CustomerID = charge.Customer.CustomerCode
		out.Payment = data

	default:
		var anyData struct {
			ID        json.Number `json:"id"`
			Reference string      `json:"reference"`
		}
		_ = json.Unmarshal(env.Data, &anyData)
		out.ID = env.Event + ":" + firstNonEmpty(anyData.ID.String(), anyData.Reference)
	}

	if strings.HasSuffix(out.ID, ":") {
		return nil, fmt.Errorf("%w: paystack event without identifier", e.ErrInvalidInput)
	}
	return out, nil
}

func parseRFC3339(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
