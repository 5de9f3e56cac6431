package handlers

import (
	"net/http"

	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type vehicleRequest struct {
	RegNumber string               `json:"reg_number"`
	Make      string               `json:"make"`
	Model     string               `json:"model"`
	Year      int                  `json:"year"`
	VIN       string               `json:"vin"`
	Status    models.VehicleStatus `json:"status"`
	Mileage   int                  `json:"mileage"`
}

type vehiclePatch struct {
	RegNumber *string               `json:"reg_number"`
	Make      *string               `json:"make"`
	Model     *string               `json:"model"`
	Year      *int                  `json:"year"`
	VIN       *string               `json:"vin"`
	Status    *models.VehicleStatus `json:"status"`
	Mileage   *int                  `json:"mileage"`
}

func (h *Handler) listVehicles(c *gin.Context) {
	opts, ok := listOptions(c)
	if !ok {
		return
	}
	vehicles, err := h.svc.Vehicles.List(c.Request.Context(), principal(c), opts)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, results(vehicles))
}

func (h *Handler) createVehicle(c *gin.Context) {
	var req vehicleRequest
	if !bind(c, &req) {
		return
	}
	vehicle, err := h.svc.Vehicles.Create(c.Request.Context(), principal(c), &models.Vehicle{
		RegNumber: req.RegNumber,
		Make:      req.Make,
		Model:     req.Model,
		Year:      req.Year,
		VIN:       req.VIN,
		Status:    req.Status,
		Mileage:   req.Mileage,
	})
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, vehicle)
}

func (h *Handler) getVehicle(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	vehicle, err := h.svc.Vehicles.Get(c.Request.Context(), principal(c), id)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, vehicle)
}

func (h *Handler) updateVehicle(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req vehiclePatch
	if !bind(c, &req) {
		return
	}
	vehicle, err := h.svc.Vehicles.Update(c.Request.Context(), principal(c), &models.VehicleUpdate{
		ID:        id,
		RegNumber: req.RegNumber,
		Make:      req.Make,
		Model:     req.Model,
		Year:      req.Year,
		VIN:       req.VIN,
		Status:    req.Status,
		Mileage:   req.Mileage,
	})
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, vehicle)
}

func (h *Handler) deleteVehicle(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Vehicles.Delete(c.Request.Context(), principal(c), id); err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type shiftRequest struct {
	VehicleID    uuid.UUID          `json:"vehicle"`
	DriverID     uuid.UUID          `json:"driver"`
	Status       models.ShiftStatus `json:"status"`
	StartMileage int                `json:"start_mileage"`
	Notes        string             `json:"notes"`
}

type shiftPatch struct {
	Status     *models.ShiftStatus `json:"status"`
	EndMileage *int                `json:"end_mileage"`
	Notes      *string             `json:"notes"`
}

type endShiftRequest struct {
	EndMileage *int    `json:"end_mileage"`
	Notes      *string `json:"notes"`
}

func (h *Handler) listShifts(c *gin.Context) {
	opts, ok := listOptions(c)
	if !ok {
		return
	}
	shifts, err := h.svc.Shifts.List(c.Request.Context(), principal(c), opts)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, results(mapViews(shifts, toShiftView)))
}

func (h *Handler) startShift(c *gin.Context) {
	var req shiftRequest
	if !bind(c, &req) {
		return
	}
	shift, err := h.svc.Shifts.Start(c.Request.Context(), principal(c), &models.Shift{
		VehicleID:    req.VehicleID,
		DriverID:     req.DriverID,
		Status:       req.Status,
		StartMileage: req.StartMileage,
		Notes:        req.Notes,
	})
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toShiftView(shift))
}

func (h *Handler) getShift(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	shift, err := h.svc.Shifts.Get(c.Request.Context(), principal(c), id)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toShiftView(shift))
}

func (h *Handler) updateShift(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req shiftPatch
	if !bind(c, &req) {
		return
	}
	shift, err := h.svc.Shifts.Update(c.Request.Context(), principal(c), &models.ShiftUpdate{
		ID:         id,
		Status:     req.Status,
		EndMileage: req.EndMileage,
		Notes:      req.Notes,
	})
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toShiftView(shift))
}

func (h *Handler) endShift(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req endShiftRequest
	if c.Request.ContentLength != 0 && !bind(c, &req) {
		return
	}
	shift, err := h.svc.Shifts.End(c.Request.Context(), principal(c), id, req.EndMileage, req.Notes)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toShiftView(shift))
}

type inspectionRequest struct {
	ShiftID  uuid.UUID               `json:"shift"`
	Kind     string                  `json:"kind"`
	Status   models.InspectionStatus `json:"status"`
	Odometer int                     `json:"odometer"`
	Notes    string                  `json:"notes"`
}

type inspectionPatch struct {
	Status   *models.InspectionStatus `json:"status"`
	Odometer *int                     `json:"odometer"`
	Notes    *string                  `json:"notes"`
}

func (h *Handler) listInspections(c *gin.Context) {
	opts, ok := listOptions(c)
	if !ok {
		return
	}
	list, err := h.svc.Inspections.List(c.Request.Context(), principal(c), opts)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, results(mapViews(list, toInspectionView)))
}

func (h *Handler) createInspection(c *gin.Context) {
	var req inspectionRequest
	if !bind(c, &req) {
		return
	}
	inspection, err := h.svc.Inspections.Create(c.Request.Context(), principal(c), &models.Inspection{
		ShiftID:  req.ShiftID,
		Kind:     req.Kind,
		Status:   req.Status,
		Odometer: req.Odometer,
		Notes:    req.Notes,
	})
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toInspectionView(inspection))
}

func (h *Handler) getInspection(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	inspection, err := h.svc.Inspections.Get(c.Request.Context(), principal(c), id)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toInspectionView(inspection))
}

func (h *Handler) updateInspection(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req inspectionPatch
	if !bind(c, &req) {
		return
	}
	inspection, err := h.svc.Inspections.Update(c.Request.Context(), principal(c), &models.InspectionUpdate{
		ID:       id,
		Status:   req.Status,
		Odometer: req.Odometer,
		Notes:    req.Notes,
	})
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toInspectionView(inspection))
}
