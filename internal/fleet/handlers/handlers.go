// Package handlers exposes the fleet services over REST (gin) and serves a
// gRPC health endpoint next to it.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gartstein/fleet/internal/fleet/authz"
	"github.com/gartstein/fleet/internal/fleet/controller"
	e "github.com/gartstein/fleet/internal/fleet/errors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxWebhookBody bounds the payload read from a provider delivery.
const maxWebhookBody = 1 << 20

// Services groups the business services the REST API dispatches to.
type Services struct {
	Accounts    *controller.AccountService
	Vehicles    *controller.VehicleService
	Shifts      *controller.ShiftService
	Inspections *controller.InspectionService
	Issues      *controller.IssueService
	Tickets     *controller.TicketService
	Telemetry   *controller.TelemetryService
	Billing     *controller.BillingService
	Platform    *controller.PlatformService
}

// Handler implements the REST endpoints.
type Handler struct {
	svc    Services
	logger *zap.Logger
}

func NewHandler(svc Services, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger.Named("http")}
}

// principal returns the caller stored by the auth middleware, or nil for
// anonymous requests. Services reject nil where authentication is needed.
func principal(c *gin.Context) *authz.Principal {
	pr, _ := authz.FromContext(c.Request.Context())
	return pr
}

// pathID parses the :id parameter. Malformed ids cannot name any record and
// answer 404.
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return uuid.Nil, false
	}
	return id, true
}

func listOptions(c *gin.Context) (controller.ListOptions, bool) {
	opts := controller.ListOptions{Status: c.Query("status")}
	if raw := c.Query("vehicle"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"vehicle": "Must be a valid UUID."})
			return opts, false
		}
		opts.VehicleID = &id
	}
	var ok bool
	if opts.Limit, ok = queryInt(c, "limit"); !ok {
		return opts, false
	}
	if opts.Offset, ok = queryInt(c, "offset"); !ok {
		return opts, false
	}
	return opts, true
}

func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{name: "A valid non-negative integer is required."})
		return 0, false
	}
	return n, true
}

// bind decodes the JSON body into dst and answers 400 on malformed input.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Malformed request body: " + err.Error()})
		return false
	}
	return true
}

func results[T any](items []T) gin.H {
	if items == nil {
		items = []T{}
	}
	return gin.H{"count": len(items), "results": items}
}

// mapServiceError translates service errors into HTTP responses.
func (h *Handler) mapServiceError(c *gin.Context, err error) {
	var verr *e.ValidationError
	switch {
	case errors.Is(err, e.ErrWebhookProcessing):
		h.logger.Error("webhook processing failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error."})
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, verr.Fields)
	case errors.Is(err, e.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Authentication credentials were not provided."})
	case errors.Is(err, e.ErrInvalidCredentials):
		c.JSON(http.StatusBadRequest, gin.H{"non_field_errors": "Unable to log in with provided credentials."})
	case errors.Is(err, e.ErrSubscriptionRequired):
		c.JSON(http.StatusForbidden, gin.H{"detail": "An active subscription is required for this action."})
	case errors.Is(err, e.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"detail": "You do not have permission to perform this action."})
	case errors.Is(err, e.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
	case errors.Is(err, e.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
	case errors.Is(err, e.ErrUnknownProvider):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown payment provider"})
	case errors.Is(err, e.ErrInvalidInput), errors.Is(err, e.ErrDuplicate), errors.Is(err, e.ErrDuplicateSlug):
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
	default:
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error."})
	}
}
