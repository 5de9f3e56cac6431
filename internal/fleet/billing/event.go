// Package billing verifies and normalizes payment-provider webhooks, applies
// them idempotently to local subscription state and answers whether a
// company may use paid features.
package billing

import (
	"net/http"
	"strings"
	"time"

	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/shopspring/decimal"
)

// EventType is a provider-independent webhook type.
type EventType string

const (
	SubscriptionCreated  EventType = "subscription.created"
	SubscriptionUpdated  EventType = "subscription.updated"
	SubscriptionCanceled EventType = "subscription.canceled"
	PaymentSucceeded     EventType = "payment.succeeded"
	PaymentFailed        EventType = "payment.failed"
	// Ignored marks provider events that are recorded but have no effect.
	Ignored EventType = "ignored"
)

// Event is a webhook delivery normalized across providers. Amounts are in
// major currency units and times are wall-clock.
type Event struct {
	Provider   string
	ID         string
	Type       EventType
	RawType    string
	CustomerID string

	Subscription *SubscriptionData
	Payment      *PaymentData
}

// StoredType is the type recorded on the webhook event row.
func (ev *Event) StoredType() string {
	if ev.Type == Ignored {
		return ev.RawType
	}
	return string(ev.Type)
}

type SubscriptionData struct {
	ID                 string
	Status             models.SubscriptionStatus
	PriceID            string
	TrialEnd           *time.Time
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
}

type PaymentData struct {
	ID             string
	SubscriptionID string
	Amount         decimal.Decimal
	Currency       string
	FailureReason  string
	PaidAt         *time.Time
}

// Provider verifies and parses the webhooks of one payment provider.
type Provider interface {
	Name() string
	// Verify checks the delivery signature. It must run before Parse.
	Verify(payload []byte, header http.Header) error
	// Parse normalizes a verified payload.
	Parse(payload []byte) (*Event, error)
}

// zeroDecimalCurrencies are charged in whole units by providers.
var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true, "KMF": true,
	"KRW": true, "MGA": true, "PYG": true, "RWF": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

// FromMinorUnits converts a provider amount in minor units into a decimal
// amount in major units.
func FromMinorUnits(amount int64, currency string) decimal.Decimal {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return decimal.NewFromInt(amount)
	}
	return decimal.New(amount, -2)
}

func unixTime(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
