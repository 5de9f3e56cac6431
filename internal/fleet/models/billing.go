package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BillingInterval is how often a plan is charged.
type BillingInterval string

const (
	IntervalMonth BillingInterval = "month"
	IntervalYear  BillingInterval = "year"
)

// Plan is platform-managed pricing reference data.
type Plan struct {
	ID       uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Code     string          `gorm:"size:50;uniqueIndex;not null" json:"code" yaml:"code"`
	Name     string          `gorm:"size:100;not null" json:"name" yaml:"name"`
	Tier     PlanTier        `gorm:"size:20;not null" json:"tier" yaml:"tier"`
	Amount   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount" yaml:"-"`
	Currency string          `gorm:"size:3;not null" json:"currency" yaml:"currency"`
	Interval BillingInterval `gorm:"size:10;not null" json:"interval" yaml:"interval"`
	// Features holds boolean feature flags keyed by feature name.
	Features        map[string]bool `gorm:"serializer:json" json:"features" yaml:"features"`
	MaxVehicles     int             `json:"max_vehicles" yaml:"max_vehicles"`
	MaxUsers        int             `json:"max_users" yaml:"max_users"`
	ProviderPriceID string          `gorm:"size:100" json:"provider_price_id" yaml:"provider_price_id"`
	IsActive        bool            `json:"is_active" yaml:"is_active"`
	CreatedAt       time.Time       `json:"created_at" yaml:"-"`
	UpdatedAt       time.Time       `json:"updated_at" yaml:"-"`
}

// BeforeCreate assigns an identifier when absent.
func (p *Plan) BeforeCreate(_ *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// SubscriptionStatus mirrors the provider subscription lifecycle.
type SubscriptionStatus string

const (
	SubTrialing          SubscriptionStatus = "trialing"
	SubActive            SubscriptionStatus = "active"
	SubPastDue           SubscriptionStatus = "past_due"
	SubCanceled          SubscriptionStatus = "canceled"
	SubExpired           SubscriptionStatus = "expired"
	SubIncomplete        SubscriptionStatus = "incomplete"
	SubIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubUnpaid            SubscriptionStatus = "unpaid"
)

// Valid reports whether s is a known subscription status.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubTrialing, SubActive, SubPastDue, SubCanceled, SubExpired,
		SubIncomplete, SubIncompleteExpired, SubUnpaid:
		return true
	}
	return false
}

// CompanyStatus maps a subscription status onto the company-level flag.
func (s SubscriptionStatus) CompanyStatus() CompanyStatus {
	switch s {
	case SubActive:
		return CompanyActive
	case SubTrialing:
		return CompanyTrial
	case SubCanceled:
		return CompanyCancelled
	case SubPastDue, SubUnpaid:
		return CompanySuspended
	default:
		return CompanyExpired
	}
}

// CompanySubscription is the single subscription a company may hold.
type CompanySubscription struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null" json:"company"`
	PlanID    *uuid.UUID `gorm:"type:uuid" json:"plan"`
	Plan      *Plan      `gorm:"foreignKey:PlanID" json:"-"`

	Status             SubscriptionStatus `gorm:"size:20;not null" json:"status"`
	TrialEnd           *time.Time         `json:"trial_end"`
	CurrentPeriodStart *time.Time         `json:"current_period_start"`
	CurrentPeriodEnd   *time.Time         `json:"current_period_end"`
	CancelAtPeriodEnd  bool               `json:"cancel_at_period_end"`
	CanceledAt         *time.Time         `json:"canceled_at"`

	Provider               string `gorm:"size:30" json:"provider"`
	ProviderSubscriptionID string `gorm:"size:100;index" json:"provider_subscription_id"`
	ProviderCustomerID     string `gorm:"size:100" json:"provider_customer_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns an identifier when absent.
func (s *CompanySubscription) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// CanAccessFeatures is true iff the subscription is active, or trialing
// with the trial end still in the future.
func (s *CompanySubscription) CanAccessFeatures(now time.Time) bool {
	switch s.Status {
	case SubActive:
		return true
	case SubTrialing:
		return s.TrialEnd != nil && now.Before(*s.TrialEnd)
	}
	return false
}

// OwningCompany implements Owned.
func (s *CompanySubscription) OwningCompany() uuid.UUID { return s.CompanyID }

// PaymentStatus is the outcome of a provider charge.
type PaymentStatus string

const (
	PaymentSuccess  PaymentStatus = "success"
	PaymentFailed   PaymentStatus = "failed"
	PaymentPending  PaymentStatus = "pending"
	PaymentRefunded PaymentStatus = "refunded"
)

// Payment is an append-only ledger row; only Status may change afterwards.
type Payment struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID         uuid.UUID       `gorm:"type:uuid;index;not null" json:"company"`
	SubscriptionID    *uuid.UUID      `gorm:"type:uuid;index" json:"subscription"`
	Provider          string          `gorm:"size:30;not null" json:"provider"`
	ProviderPaymentID string          `gorm:"size:100;index" json:"provider_payment_id"`
	Amount            decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency          string          `gorm:"size:3;not null" json:"currency"`
	Status            PaymentStatus   `gorm:"size:20;not null" json:"status"`
	FailureReason     string          `gorm:"size:500" json:"failure_reason,omitempty"`
	PaidAt            *time.Time      `json:"paid_at"`
	CreatedAt         time.Time       `json:"created_at"`
}

// BeforeCreate assigns an identifier when absent.
func (p *Payment) BeforeCreate(_ *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// OwningCompany implements Owned.
func (p *Payment) OwningCompany() uuid.UUID { return p.CompanyID }

// WebhookEvent records one provider delivery, unique per (provider, event id).
type WebhookEvent struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Provider     string     `gorm:"size:30;not null;uniqueIndex:idx_webhook_provider_event,priority:1" json:"provider"`
	EventID      string     `gorm:"size:255;not null;uniqueIndex:idx_webhook_provider_event,priority:2" json:"event_id"`
	EventType    string     `gorm:"size:100" json:"event_type"`
	Payload      string     `gorm:"type:text" json:"payload"`
	Processed    bool       `gorm:"index" json:"processed"`
	ProcessedAt  *time.Time `json:"processed_at"`
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`
	RetryCount   int        `json:"retry_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// BeforeCreate assigns an identifier when absent.
func (w *WebhookEvent) BeforeCreate(_ *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
