package handlers

import (
	"net/http"
	"time"

	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type issueRequest struct {
	VehicleID    uuid.UUID       `json:"vehicle"`
	InspectionID *uuid.UUID      `json:"inspection"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Severity     models.Severity `json:"severity"`
}

type issuePatch struct {
	Title       *string             `json:"title"`
	Description *string             `json:"description"`
	Severity    *models.Severity    `json:"severity"`
	Status      *models.IssueStatus `json:"status"`
}

func (h *Handler) listIssues(c *gin.Context) {
	opts, ok := listOptions(c)
	if !ok {
		return
	}
	issues, err := h.svc.Issues.List(c.Request.Context(), principal(c), opts)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, results(mapViews(issues, toIssueView)))
}

func (h *Handler) reportIssue(c *gin.Context) {
	var req issueRequest
	if !bind(c, &req) {
		return
	}
	issue, err := h.svc.Issues.Report(c.Request.Context(), principal(c), &models.Issue{
		VehicleID:    req.VehicleID,
		InspectionID: req.InspectionID,
		Title:        req.Title,
		Description:  req.Description,
		Severity:     req.Severity,
	})
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toIssueView(issue))
}

func (h *Handler) getIssue(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	issue, err := h.svc.Issues.Get(c.Request.Context(), principal(c), id)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toIssueView(issue))
}

func (h *Handler) updateIssue(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req issuePatch
	if !bind(c, &req) {
		return
	}
	issue, err := h.svc.Issues.Update(c.Request.Context(), principal(c), &models.IssueUpdate{
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
		Severity:    req.Severity,
		Status:      req.Status,
	})
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toIssueView(issue))
}

func (h *Handler) issueHistory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	entries, err := h.svc.Issues.History(c.Request.Context(), principal(c), id)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, results(entries))
}

type ticketRequest struct {
	VehicleID   uuid.UUID       `json:"vehicle"`
	IssueID     *uuid.UUID      `json:"issue"`
	AssigneeID  *uuid.UUID      `json:"assignee"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Priority    models.Severity `json:"priority"`
	DueAt       *time.Time      `json:"due_at"`
}

type ticketPatch struct {
	Title       *string              `json:"title"`
	Description *string              `json:"description"`
	Priority    *models.Severity     `json:"priority"`
	Status      *models.TicketStatus `json:"status"`
	AssigneeID  *uuid.UUID           `json:"assignee"`
	DueAt       *time.Time           `json:"due_at"`
}

func (h *Handler) listTickets(c *gin.Context) {
	opts, ok := listOptions(c)
	if !ok {
		return
	}
	tickets, err := h.svc.Tickets.List(c.Request.Context(), principal(c), opts)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, results(mapViews(tickets, toTicketView)))
}

func (h *Handler) createTicket(c *gin.Context) {
	var req ticketRequest
	if !bind(c, &req) {
		return
	}
	ticket, err := h.svc.Tickets.Create(c.Request.Context(), principal(c), &models.Ticket{
		VehicleID:   req.VehicleID,
		IssueID:     req.IssueID,
		AssigneeID:  req.AssigneeID,
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		DueAt:       req.DueAt,
	})
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toTicketView(ticket))
}

func (h *Handler) getTicket(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ticket, err := h.svc.Tickets.Get(c.Request.Context(), principal(c), id)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTicketView(ticket))
}

func (h *Handler) updateTicket(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req ticketPatch
	if !bind(c, &req) {
		return
	}
	ticket, err := h.svc.Tickets.Update(c.Request.Context(), principal(c), &models.TicketUpdate{
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Status:      req.Status,
		AssigneeID:  req.AssigneeID,
		DueAt:       req.DueAt,
	})
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTicketView(ticket))
}

type telemetryRequest struct {
	VehicleID  uuid.UUID `json:"vehicle"`
	RecordedAt time.Time `json:"recorded_at"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	SpeedKPH   float64   `json:"speed_kph"`
	FuelLevel  *float64  `json:"fuel_level"`
	Odometer   *int      `json:"odometer"`
}

func (h *Handler) listTelemetry(c *gin.Context) {
	opts, ok := listOptions(c)
	if !ok {
		return
	}
	records, err := h.svc.Telemetry.List(c.Request.Context(), principal(c), opts)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, results(records))
}

func (h *Handler) recordTelemetry(c *gin.Context) {
	var req telemetryRequest
	if !bind(c, &req) {
		return
	}
	rec, err := h.svc.Telemetry.Record(c.Request.Context(), principal(c), &models.TelemetryRecord{
		VehicleID:  req.VehicleID,
		RecordedAt: req.RecordedAt,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		SpeedKPH:   req.SpeedKPH,
		FuelLevel:  req.FuelLevel,
		Odometer:   req.Odometer,
	})
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}
