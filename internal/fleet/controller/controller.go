// Package controller implements the core business logic (service layer)
// of the fleet back end. Every service authorizes the caller's principal
// against one permission policy, keeps records inside the caller's company
// and publishes status changes as domain events.
package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/gartstein/fleet/internal/fleet/authz"
	"github.com/gartstein/fleet/internal/fleet/db"
	e "github.com/gartstein/fleet/internal/fleet/errors"
	"github.com/gartstein/fleet/internal/fleet/events"
	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/google/uuid"
)

type EventProducer interface {
	Produce(event events.Event)
}

// AccessInvalidator drops cached subscription decisions of a company.
type AccessInvalidator interface {
	Invalidate(ctx context.Context, companyID uuid.UUID)
}

// ListOptions are the caller-supplied filters of a list request.
type ListOptions struct {
	Status    string
	VehicleID *uuid.UUID
	Limit     int
	Offset    int
}

func (o ListOptions) query(scope authz.Scope) db.ListQuery {
	return db.ListQuery{
		Scope:     scope,
		Status:    o.Status,
		VehicleID: o.VehicleID,
		Limit:     o.Limit,
		Offset:    o.Offset,
	}
}

// invalidReference is reported for a referenced id that does not exist or
// belongs to another company.
const invalidReference = "Invalid pk - object does not exist."

func actorOf(pr *authz.Principal) *uuid.UUID {
	if !pr.Authenticated() {
		return nil
	}
	id := pr.UserID
	return &id
}

// load performs the request-level check, fetches the object and applies
// the object-level check. Authorization runs first so anonymous callers get
// ErrUnauthenticated rather than learning whether the id exists.
func load[T models.Owned](ctx context.Context, g authz.Guard, pr *authz.Principal, a authz.Action,
	id uuid.UUID, get func(context.Context, uuid.UUID) (T, error)) (T, error) {
	var zero T
	if _, err := g.Authorize(ctx, pr, a); err != nil {
		return zero, err
	}
	obj, err := get(ctx, id)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return zero, err
		}
		return zero, fmt.Errorf("failed to load object: %w", err)
	}
	if err := g.Policy.CheckObject(pr, a, obj); err != nil {
		return zero, err
	}
	return obj, nil
}

// reference fetches an object named in a request body. Objects that are
// missing or owned by another company are a field error on field.
func reference[T models.Owned](ctx context.Context, pr *authz.Principal, field string,
	id uuid.UUID, get func(context.Context, uuid.UUID) (T, error)) (T, error) {
	var zero T
	if id == uuid.Nil {
		return zero, e.NewValidationError(field, "This field is required.")
	}
	obj, err := get(ctx, id)
	if errors.Is(err, e.ErrNotFound) {
		return zero, e.NewValidationError(field, invalidReference)
	}
	if err != nil {
		return zero, fmt.Errorf("failed to load %s: %w", field, err)
	}
	if !pr.PlatformAdmin && obj.OwningCompany() != pr.Company() {
		return zero, e.NewValidationError(field, invalidReference)
	}
	return obj, nil
}

// requireCompany rejects callers that cannot create company-owned records,
// such as platform administrators acting outside a company.
func requireCompany(pr *authz.Principal) error {
	if !pr.HasCompany() {
		return e.NewValidationError("org", "A company is required to create this record.")
	}
	return nil
}

// Column sizes of the sized text fields callers may set.
const (
	maxRegNumberLength = 20
	maxVINLength       = 17
	maxMakeLength      = 50
	maxTitleLength     = 200
	maxKindLength      = 20
)

// checkLength reports value when it exceeds the column size max.
func checkLength(verr *e.ValidationError, field, value string, max int) {
	if len(value) > max {
		verr.Add(field, fmt.Sprintf("Ensure this field has no more than %d characters.", max))
	}
}
