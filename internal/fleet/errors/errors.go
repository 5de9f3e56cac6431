// Package errors defines the sentinel errors shared by the fleet service layers.
package errors

import (
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound             = fmt.Errorf("not found")
	ErrDuplicateSlug        = fmt.Errorf("duplicate slug")
	ErrDuplicate            = fmt.Errorf("duplicate record")
	ErrInvalidInput         = fmt.Errorf("invalid input")
	ErrUnauthenticated      = fmt.Errorf("authentication required")
	ErrInvalidCredentials   = fmt.Errorf("invalid credentials")
	ErrForbidden            = fmt.Errorf("forbidden")
	ErrSubscriptionRequired = fmt.Errorf("active subscription required")
	ErrInvalidSignature     = fmt.Errorf("invalid webhook signature")
	ErrUnknownProvider      = fmt.Errorf("unknown payment provider")
	ErrUnknownCustomer      = fmt.Errorf("unknown payment customer")
	// ErrWebhookProcessing marks a stored delivery that could not be applied.
	ErrWebhookProcessing    = fmt.Errorf("webhook processing failed")
	ErrInUse                = fmt.Errorf("object is referenced")
)

// ValidationError reports field-level validation failures.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// Add records another field failure.
func (v *ValidationError) Add(field, message string) {
	if v.Fields == nil {
		v.Fields = map[string]string{}
	}
	v.Fields[field] = message
}

// OrNil returns nil when no field failed, so callers can `return v.OrNil()`.
func (v *ValidationError) OrNil() error {
	if v == nil || len(v.Fields) == 0 {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v *ValidationError) Unwrap() error {
	return ErrInvalidInput
}
