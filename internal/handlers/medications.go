package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"medtrack/api/internal/media/sniffer"
	"medtrack/api/internal/middleware"
	"medtrack/api/internal/models"
	"medtrack/api/internal/repository"
	"medtrack/api/internal/service"
)

type medicationRequest struct {
	Name         string `json:"name" binding:"required"`
	Dosage       string `json:"dosage"`
	ScheduleTime string `json:"scheduleTime" binding:"required"`
	Timezone     string `json:"timezone"`
	Active       *bool  `json:"active"`
}

type medicationResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Dosage       string    `json:"dosage"`
	ScheduleTime string    `json:"scheduleTime"`
	Timezone     string    `json:"timezone"`
	PhotoURL     *string   `json:"photoUrl,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (h HandlerSet) CreateMedication(c *gin.Context) {
	var req medicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	med, err := h.medService.Create(c.Request.Context(), middleware.UID(c), service.MedicationInput{
		Name:         req.Name,
		Dosage:       req.Dosage,
		ScheduleTime: req.ScheduleTime,
		Timezone:     req.Timezone,
		Active:       req.Active,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"medication": h.toMedicationResponse(med)})
}

func (h HandlerSet) ListMedications(c *gin.Context) {
	meds, err := h.medService.List(c.Request.Context(), middleware.UID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
		return
	}

	resp := make([]medicationResponse, 0, len(meds))
	for _, med := range meds {
		resp = append(resp, h.toMedicationResponse(med))
	}
	c.JSON(http.StatusOK, gin.H{"medications": resp})
}

func (h HandlerSet) UpdateMedication(c *gin.Context) {
	var req medicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	med, err := h.medService.Update(c.Request.Context(), middleware.UID(c), c.Param("id"), service.MedicationInput{
		Name:         req.Name,
		Dosage:       req.Dosage,
		ScheduleTime: req.ScheduleTime,
		Timezone:     req.Timezone,
		Active:       req.Active,
	})
	if err != nil {
		h.medicationError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"medication": h.toMedicationResponse(med)})
}

func (h HandlerSet) DeleteMedication(c *gin.Context) {
	if err := h.medService.Delete(c.Request.Context(), middleware.UID(c), c.Param("id")); err != nil {
		h.medicationError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type doseRequest struct {
	Status string `json:"status" binding:"required,oneof=taken skipped"`
}

func (h HandlerSet) RecordDose(c *gin.Context) {
	var req doseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := h.medService.RecordDose(c.Request.Context(), middleware.UID(c), c.Param("id"), models.DoseStatus(req.Status))
	if err != nil {
		h.medicationError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"dose": gin.H{
		"id":         event.ID,
		"status":     string(event.Status),
		"occurredAt": event.OccurredAt,
	}})
}

func (h HandlerSet) DoseHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))

	events, err := h.medService.DoseHistory(c.Request.Context(), middleware.UID(c), c.Param("id"), limit)
	if err != nil {
		h.medicationError(c, err)
		return
	}

	resp := make([]gin.H, 0, len(events))
	for _, event := range events {
		resp = append(resp, gin.H{
			"id":         event.ID,
			"status":     string(event.Status),
			"occurredAt": event.OccurredAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"doses": resp})
}

func (h HandlerSet) AttachPhoto(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_required"})
		return
	}
	defer file.Close()

	med, err := h.medService.AttachPhoto(
		c.Request.Context(),
		middleware.UID(c),
		c.Param("id"),
		file,
		sniffer.MimeTypeFromHTTP(http.Header(header.Header)),
	)
	if err != nil {
		h.medicationError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"medication": h.toMedicationResponse(med)})
}

func (h HandlerSet) medicationError(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrMedicationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "medication_not_found"})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (h HandlerSet) toMedicationResponse(med models.Medication) medicationResponse {
	return medicationResponse{
		ID:           med.ID,
		Name:         med.Name,
		Dosage:       med.Dosage,
		ScheduleTime: med.ScheduleTime,
		Timezone:     med.Timezone,
		PhotoURL:     h.medService.PhotoURL(med),
		Active:       med.Active,
		CreatedAt:    med.CreatedAt,
		UpdatedAt:    med.UpdatedAt,
	}
}
