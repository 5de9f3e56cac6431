package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role controls which actions a user may perform inside their company.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleDriver    Role = "driver"
	RoleStaff     Role = "staff"
	RoleInspector Role = "inspector"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDriver, RoleStaff, RoleInspector:
		return true
	}
	return false
}

// User is an account. Every user except platform administrators belongs
// to exactly one company.
type User struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Username     string     `gorm:"size:150;uniqueIndex;not null" json:"username"`
	Email        string     `gorm:"size:254" json:"email"`
	FirstName    string     `gorm:"size:150" json:"first_name"`
	LastName     string     `gorm:"size:150" json:"last_name"`
	PasswordHash string     `gorm:"size:100;not null" json:"-"`
	Role         Role       `gorm:"size:20;not null" json:"role"`
	CompanyID    *uuid.UUID `gorm:"type:uuid;index" json:"company"`
	Company      *Company   `gorm:"foreignKey:CompanyID" json:"-"`
	EmployeeID   *string    `gorm:"size:50;uniqueIndex" json:"employee_id"`
	Phone        string     `gorm:"size:32" json:"phone"`
	IsActive     bool       `json:"is_active"`
	// IsPlatformAdmin marks operator accounts that are not scoped to a company.
	IsPlatformAdmin bool       `json:"is_platform_admin"`
	LastLoginAt     *time.Time `json:"last_login_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// BeforeCreate assigns an identifier when absent.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// UserUpdate carries the fields an org admin may change on a member.
type UserUpdate struct {
	ID        uuid.UUID
	Role      *Role
	IsActive  *bool
	Phone     *string
	UpdatedAt time.Time `json:"-"`
}

// OwningCompany implements Owned. Users without a company report uuid.Nil.
func (u *User) OwningCompany() uuid.UUID {
	if u.CompanyID == nil {
		return uuid.Nil
	}
	return *u.CompanyID
}
