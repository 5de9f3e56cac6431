package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (h *Handler) listCompanies(c *gin.Context) {
	opts, ok := listOptions(c)
	if !ok {
		return
	}
	companies, err := h.svc.Platform.ListCompanies(c.Request.Context(), principal(c), opts.Limit, opts.Offset)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, results(companies))
}

func (h *Handler) suspendCompany(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	company, err := h.svc.Platform.SuspendCompany(c.Request.Context(), principal(c), id)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, company)
}

func (h *Handler) activateCompany(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	company, err := h.svc.Platform.ActivateCompany(c.Request.Context(), principal(c), id)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, company)
}

func (h *Handler) listWebhookEvents(c *gin.Context) {
	opts, ok := listOptions(c)
	if !ok {
		return
	}
	var processed *bool
	if raw := c.Query("processed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"processed": "Must be a valid boolean."})
			return
		}
		processed = &v
	}
	list, err := h.svc.Platform.ListWebhookEvents(c.Request.Context(), principal(c), processed, opts.Limit, opts.Offset)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, results(list))
}

func (h *Handler) replayWebhook(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	outcome, err := h.svc.Platform.ReplayWebhook(c.Request.Context(), principal(c), id)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": outcome})
}
