package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type checkoutRequest struct {
	Plan       string `json:"plan"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

type portalRequest struct {
	ReturnURL string `json:"return_url"`
}

func (h *Handler) listPlans(c *gin.Context) {
	plans, err := h.svc.Billing.Plans(c.Request.Context())
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, results(plans))
}

func (h *Handler) subscription(c *gin.Context) {
	view, err := h.svc.Billing.Subscription(c.Request.Context(), principal(c))
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSubscriptionView(view))
}

func (h *Handler) checkout(c *gin.Context) {
	var req checkoutRequest
	if !bind(c, &req) {
		return
	}
	url, err := h.svc.Billing.Checkout(c.Request.Context(), principal(c), req.Plan, req.SuccessURL, req.CancelURL)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkout_url": url})
}

func (h *Handler) portal(c *gin.Context) {
	var req portalRequest
	if !bind(c, &req) {
		return
	}
	url, err := h.svc.Billing.Portal(c.Request.Context(), principal(c), req.ReturnURL)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"portal_url": url})
}

func (h *Handler) payments(c *gin.Context) {
	opts, ok := listOptions(c)
	if !ok {
		return
	}
	payments, err := h.svc.Billing.Payments(c.Request.Context(), principal(c), opts)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, results(payments))
}

// webhook is public; the provider signature authenticates the delivery.
func (h *Handler) webhook(c *gin.Context) {
	provider := c.Param("provider")
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to read request body"})
		return
	}
	if len(payload) > maxWebhookBody {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Payload too large"})
		return
	}

	outcome, err := h.svc.Billing.Webhook(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		h.logger.Warn("webhook rejected", zap.String("provider", provider), zap.Error(err))
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": outcome})
}
