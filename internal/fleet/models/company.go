// Package models defines the core domain models of the fleet service,
// configured to work with GORM as the ORM.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultTrialPeriod is the trial length granted on self-service signup.
const DefaultTrialPeriod = 14 * 24 * time.Hour

// PlatformTrialPeriod is the trial length used by the platform
// create-company command. It differs from DefaultTrialPeriod on purpose
// until product confirms a single value.
const PlatformTrialPeriod = 7 * 24 * time.Hour

// PlanTier is the commercial tier a company is on.
type PlanTier string

const (
	TierTrial        PlanTier = "trial"
	TierBasic        PlanTier = "basic"
	TierProfessional PlanTier = "professional"
	TierEnterprise   PlanTier = "enterprise"
)

// CompanyStatus is the billing state denormalized onto the company row.
type CompanyStatus string

const (
	CompanyActive    CompanyStatus = "active"
	CompanyTrial     CompanyStatus = "trial"
	CompanyExpired   CompanyStatus = "expired"
	CompanySuspended CompanyStatus = "suspended"
	CompanyCancelled CompanyStatus = "cancelled"
)

// Company is a tenant. It owns users, vehicles, the subscription and,
// transitively, every fleet record.
type Company struct {
	// ID is the unique identifier for the company.
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	// Name is the display name.
	Name string `gorm:"size:200;not null" json:"name"`
	// Slug is globally unique and immutable after creation.
	Slug string `gorm:"size:50;uniqueIndex;not null" json:"slug"`

	Email   string `gorm:"size:254" json:"email"`
	Phone   string `gorm:"size:32" json:"phone"`
	Address string `gorm:"size:500" json:"address"`

	PrimaryColor   string `gorm:"size:7" json:"primary_color"`
	SecondaryColor string `gorm:"size:7" json:"secondary_color"`

	SubscriptionPlan   PlanTier      `gorm:"size:20;not null" json:"subscription_plan"`
	SubscriptionStatus CompanyStatus `gorm:"size:20;not null" json:"subscription_status"`
	TrialStartedAt     time.Time     `json:"trial_started_at"`
	TrialEndsAt        *time.Time    `json:"trial_ends_at"`

	// PaymentCustomerID is the provider customer id used to route webhooks.
	PaymentCustomerID string `gorm:"size:100;index" json:"payment_customer_id,omitempty"`
	IsPaymentOverdue  bool   `json:"is_payment_overdue"`

	// IsActive is cleared instead of deleting the company.
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate fills the identifier and the trial window when absent.
func (c *Company) BeforeCreate(_ *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.TrialStartedAt.IsZero() {
		c.TrialStartedAt = time.Now()
	}
	if c.TrialEndsAt == nil {
		end := c.TrialStartedAt.Add(DefaultTrialPeriod)
		c.TrialEndsAt = &end
	}
	if c.SubscriptionPlan == "" {
		c.SubscriptionPlan = TierTrial
	}
	if c.SubscriptionStatus == "" {
		c.SubscriptionStatus = CompanyTrial
	}
	return nil
}

// InTrial reports whether the company-level trial is still running at now.
func (c *Company) InTrial(now time.Time) bool {
	if c.SubscriptionStatus != CompanyTrial || c.TrialEndsAt == nil {
		return false
	}
	return now.Before(*c.TrialEndsAt)
}

// OwningCompany implements Owned.
func (c *Company) OwningCompany() uuid.UUID { return c.ID }

// CompanyUpdate represents the fields an org admin may change.
// Pointer types are used to allow partial updates.
type CompanyUpdate struct {
	ID             uuid.UUID
	Name           *string
	Slug           *string
	Email          *string
	Phone          *string
	Address        *string
	PrimaryColor   *string
	SecondaryColor *string
	UpdatedAt      time.Time `json:"-"`
}
