package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"propdesk/core/internal/api/middleware"
	"propdesk/core/internal/models"
	"propdesk/core/internal/schedule"
	"propdesk/core/internal/services"
	"propdesk/core/internal/storage"
	"propdesk/core/internal/utils"
)

// RestScheduleHandler handles REST requests for payment schedules.
type RestScheduleHandler struct {
	scheduleService services.IScheduleService
	agentService    services.IAgentService
	receiptStorage  storage.IReceiptStorage // nil when S3 is not configured
}

// NewRestScheduleHandler creates a new RestScheduleHandler.
func NewRestScheduleHandler(scheduleService services.IScheduleService, agentService services.IAgentService, receiptStorage storage.IReceiptStorage) *RestScheduleHandler {
	return &RestScheduleHandler{
		scheduleService: scheduleService,
		agentService:    agentService,
		receiptStorage:  receiptStorage,
	}
}

// CreateScheduleRequest is the body of POST /v1/schedule. Amounts are integer
// minor units; dates are YYYY-MM-DD strings.
type CreateScheduleRequest struct {
	EntityID   string            `json:"entity_id" binding:"required"`
	EntityType models.EntityType `json:"entity_type" binding:"required"`
	PropertyID string            `json:"property_id"`

	TotalAmount           int64       `json:"total_amount" binding:"required"`
	NumberOfInstalments   int         `json:"number_of_instalments" binding:"required"`
	PaymentCompletionDays int         `json:"payment_completion_days"`
	StartDate             models.Date `json:"start_date"`

	Description string `json:"description"`
	Terms       string `json:"terms"`
}

// UpdateScheduleRequest is the body of PATCH /v1/schedule/:id. Omitted fields
// are left untouched; instalments, when present, replace the whole list.
type UpdateScheduleRequest struct {
	Description *string              `json:"description"`
	Terms       *string              `json:"terms"`
	Instalments *[]models.Instalment `json:"instalments"`
}

// RecordPaymentRequest is the body of the payment endpoint.
type RecordPaymentRequest struct {
	Amount        int64       `json:"amount" binding:"required"`
	PaymentDate   models.Date `json:"payment_date"`
	PaymentMethod string      `json:"payment_method"`
	ReceiptNumber string      `json:"receipt_number"`
	Notes         string      `json:"notes"`
}

// ReceiptUploadRequest is the body of the receipt-upload endpoint.
type ReceiptUploadRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
}

// CreateSchedule handles POST /v1/schedule
func (h *RestScheduleHandler) CreateSchedule(c *gin.Context) {
	var req CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if req.StartDate.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_date is required (YYYY-MM-DD)"})
		return
	}

	agentID, agentName, ok := h.requireAgent(c)
	if !ok {
		return
	}

	sched, err := h.scheduleService.CreateSchedule(c.Request.Context(), services.CreateScheduleInput{
		EntityID:              req.EntityID,
		EntityType:            req.EntityType,
		PropertyID:            req.PropertyID,
		TotalAmount:           req.TotalAmount,
		NumberOfInstalments:   req.NumberOfInstalments,
		PaymentCompletionDays: req.PaymentCompletionDays,
		StartDate:             req.StartDate,
		Description:           req.Description,
		Terms:                 req.Terms,
		CreatedBy:             agentID,
		CreatedByName:         agentName,
	})
	if err != nil {
		h.respondError(c, err, "Failed to create schedule")
		return
	}

	c.JSON(http.StatusCreated, sched)
}

// GetSchedule handles GET /v1/schedule/:id
func (h *RestScheduleHandler) GetSchedule(c *gin.Context) {
	scheduleID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	sched, err := h.scheduleService.FindScheduleByID(c.Request.Context(), scheduleID)
	if err != nil {
		h.respondError(c, err, "Failed to retrieve schedule")
		return
	}
	c.JSON(http.StatusOK, sched)
}

// UpdateSchedule handles PATCH /v1/schedule/:id
func (h *RestScheduleHandler) UpdateSchedule(c *gin.Context) {
	scheduleID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	var req UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	update := services.ScheduleUpdate{
		Description: req.Description,
		Terms:       req.Terms,
	}
	if req.Instalments != nil {
		instalments := *req.Instalments
		for i := range instalments {
			if instalments[i].ID.IsZero() {
				instalments[i].ID = utils.NewSixID()
			}
		}
		update.Instalments = &instalments
	}

	sched, err := h.scheduleService.UpdateSchedule(c.Request.Context(), scheduleID, update)
	if err != nil {
		h.respondError(c, err, "Failed to update schedule")
		return
	}
	c.JSON(http.StatusOK, sched)
}

// DeleteSchedule handles DELETE /v1/schedule/:id
func (h *RestScheduleHandler) DeleteSchedule(c *gin.Context) {
	scheduleID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	deleted, err := h.scheduleService.DeleteSchedule(c.Request.Context(), scheduleID)
	if err != nil {
		h.respondError(c, err, "Failed to delete schedule")
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Schedule not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// GetInstalments handles GET /v1/schedule/:id/instalments
func (h *RestScheduleHandler) GetInstalments(c *gin.Context) {
	scheduleID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	instalments, err := h.scheduleService.GetInstalments(c.Request.Context(), scheduleID)
	if err != nil {
		h.respondError(c, err, "Failed to retrieve instalments")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": instalments})
}

// GetStatistics handles GET /v1/schedule/:id/stats
func (h *RestScheduleHandler) GetStatistics(c *gin.Context) {
	scheduleID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	stats, err := h.scheduleService.GetStatistics(c.Request.Context(), scheduleID)
	if err != nil {
		h.respondError(c, err, "Failed to compute schedule statistics")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ActivateSchedule handles POST /v1/schedule/:id/activate
func (h *RestScheduleHandler) ActivateSchedule(c *gin.Context) {
	scheduleID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	sched, err := h.scheduleService.ActivateSchedule(c.Request.Context(), scheduleID)
	if err != nil {
		h.respondError(c, err, "Failed to activate schedule")
		return
	}
	c.JSON(http.StatusOK, sched)
}

// CancelSchedule handles POST /v1/schedule/:id/cancel
func (h *RestScheduleHandler) CancelSchedule(c *gin.Context) {
	scheduleID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	sched, err := h.scheduleService.CancelSchedule(c.Request.Context(), scheduleID)
	if err != nil {
		h.respondError(c, err, "Failed to cancel schedule")
		return
	}
	c.JSON(http.StatusOK, sched)
}

// RecordPayment handles POST /v1/schedule/:id/instalment/:instalmentId/payment
func (h *RestScheduleHandler) RecordPayment(c *gin.Context) {
	scheduleID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	instalmentID, ok := h.parseIDParam(c, "instalmentId")
	if !ok {
		return
	}

	var req RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	sched, err := h.scheduleService.RecordPayment(c.Request.Context(), scheduleID, instalmentID, services.PaymentInput{
		Amount:        req.Amount,
		PaymentDate:   req.PaymentDate,
		PaymentMethod: req.PaymentMethod,
		ReceiptNumber: req.ReceiptNumber,
		Notes:         req.Notes,
	})
	if err != nil {
		h.respondError(c, err, "Failed to record payment")
		return
	}
	c.JSON(http.StatusOK, sched)
}

// ReceiptUpload handles POST /v1/schedule/:id/instalment/:instalmentId/receipt-upload
// It issues a presigned PUT URL and records the object key on the instalment.
func (h *RestScheduleHandler) ReceiptUpload(c *gin.Context) {
	if h.receiptStorage == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Receipt storage is not configured"})
		return
	}

	scheduleID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	instalmentID, ok := h.parseIDParam(c, "instalmentId")
	if !ok {
		return
	}

	var req ReceiptUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	uploadURL, objectKey, err := h.receiptStorage.GenerateReceiptUploadURL(
		c.Request.Context(), scheduleID.String(), instalmentID.String(), req.Filename, req.ContentType)
	if err != nil {
		log.Printf("Error generating receipt upload URL for schedule %s: %v", scheduleID.String(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate upload URL"})
		return
	}

	if _, err := h.scheduleService.AttachReceipt(c.Request.Context(), scheduleID, instalmentID, objectKey); err != nil {
		h.respondError(c, err, "Failed to attach receipt to instalment")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"upload_url": uploadURL,
		"object_key": objectKey,
	})
}

// GetEntitySchedules handles GET /v1/entity/:type/:id/schedule
func (h *RestScheduleHandler) GetEntitySchedules(c *gin.Context) {
	entityType, ok := h.parseEntityType(c)
	if !ok {
		return
	}

	schedules, err := h.scheduleService.FindSchedulesByEntity(c.Request.Context(), entityType, c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to retrieve schedules")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": schedules})
}

// GetActiveEntitySchedule handles GET /v1/entity/:type/:id/schedule/active
func (h *RestScheduleHandler) GetActiveEntitySchedule(c *gin.Context) {
	entityType, ok := h.parseEntityType(c)
	if !ok {
		return
	}

	sched, err := h.scheduleService.FindActiveScheduleForEntity(c.Request.Context(), entityType, c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to retrieve active schedule")
		return
	}
	c.JSON(http.StatusOK, sched)
}

// GetPropertySchedules handles GET /v1/property/:id/schedule
func (h *RestScheduleHandler) GetPropertySchedules(c *gin.Context) {
	schedules, err := h.scheduleService.FindSchedulesByProperty(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to retrieve schedules")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": schedules})
}

func (h *RestScheduleHandler) parseIDParam(c *gin.Context, name string) (utils.SixID, bool) {
	id, err := utils.ParseSixID(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return utils.SixID{}, false
	}
	return id, true
}

func (h *RestScheduleHandler) parseEntityType(c *gin.Context) (models.EntityType, bool) {
	switch et := models.EntityType(c.Param("type")); et {
	case models.EntitySaleCycle, models.EntityPurchaseCycle, models.EntityRentCycle,
		models.EntityDeal, models.EntityRequirement:
		return et, true
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown entity type"})
		return "", false
	}
}

// requireAgent resolves the authenticated agent's ID and display name from
// the request context.
func (h *RestScheduleHandler) requireAgent(c *gin.Context) (utils.SixID, string, bool) {
	raw, exists := c.Get(middleware.ContextKeyAgentID)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return utils.SixID{}, "", false
	}
	agentID, err := utils.ParseSixID(raw.(string))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid agent identity"})
		return utils.SixID{}, "", false
	}

	name := ""
	if agent, err := h.agentService.FindAgentByID(c.Request.Context(), agentID); err == nil {
		name = agent.Name
	}
	return agentID, name, true
}

// respondError maps service errors onto HTTP statuses.
func (h *RestScheduleHandler) respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, schedule.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
