package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"labloan/internal/config"
	"labloan/internal/models"
	"labloan/internal/services"
)

const dateLayout = "2006-01-02"

type EngineHandler struct {
	rules     config.Rules
	catalog   services.CatalogService
	borrowing services.BorrowingService
	returns   services.ReturnService
	penalties services.PenaltyService
	queue     *services.QueueManager
}

func RegisterRoutes(
	r *gin.Engine,
	rules config.Rules,
	catalog services.CatalogService,
	borrowing services.BorrowingService,
	returns services.ReturnService,
	penalties services.PenaltyService,
	queue *services.QueueManager,
) {
	h := &EngineHandler{
		rules:     rules,
		catalog:   catalog,
		borrowing: borrowing,
		returns:   returns,
		penalties: penalties,
		queue:     queue,
	}

	// Catalog seeding/browsing
	r.POST("/categories", h.createCategory)
	r.GET("/categories", h.listCategories)
	r.POST("/equipment", h.createEquipment)
	r.GET("/equipment", h.listEquipment)
	r.GET("/equipment/:id/availability", h.equipmentAvailability)
	r.GET("/equipment/:id/queue", h.equipmentQueue)
	r.PATCH("/equipment/:id/status", h.setEquipmentStatus)
	r.POST("/users", h.createUser)

	// Borrowing lifecycle
	r.POST("/borrowings/validate", h.validateBorrowing)
	r.POST("/borrowings", h.createBorrowing)
	r.POST("/borrowings/:id/approve", h.approveBorrowing)
	r.POST("/borrowings/:id/reject", h.rejectBorrowing)
	r.GET("/users/:id/borrowings", h.listUserBorrowings)

	// Return workflow
	r.POST("/borrowings/:id/returns", h.submitReturn)
	r.POST("/returns/:id/approve", h.approveReturnStage1)
	r.POST("/returns/:id/complete", h.completeReturn)
	r.POST("/returns/:id/reject", h.rejectReturn)

	// Penalties
	r.GET("/penalties/preview", h.penaltyPreview)
	r.GET("/users/:id/penalties", h.listUserPenalties)
	r.POST("/penalties/:id/pay", h.payPenalty)
	r.POST("/penalties/:id/waive", h.waivePenalty)

	// Invoked by the external scheduler, not user-triggered.
	r.POST("/overdue/process", h.processOverdue)
}

// renderError maps the engine's error taxonomy onto HTTP. System errors are
// logged in full and surfaced opaquely: the caller re-queries state before
// retrying, since the transaction outcome is not observable from the call.
func renderError(c *gin.Context, err error) {
	var vErr *services.ValidationError
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "details": vErr.Errors})
	case errors.Is(err, services.ErrBorrowingNotActive):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case services.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case services.IsConflict(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Printf("[ERROR] request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// ─── Catalog ──────────────────────────────────────────────────────────────────

type createCategoryRequest struct {
	Name string              `json:"name" binding:"required"`
	Kind models.CategoryKind `json:"kind" binding:"required"`
}

func (h *EngineHandler) createCategory(c *gin.Context) {
	var req createCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cat, err := h.catalog.CreateCategory(req.Name, req.Kind)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cat)
}

func (h *EngineHandler) listCategories(c *gin.Context) {
	cats, err := h.catalog.ListCategories()
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, cats)
}

type createEquipmentRequest struct {
	CategoryID string `json:"category_id" binding:"required,uuid"`
	Name       string `json:"name" binding:"required"`
	Stock      int    `json:"stock" binding:"min=0"`
	Condition  string `json:"condition"`
}

func (h *EngineHandler) createEquipment(c *gin.Context) {
	var req createEquipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	categoryID, _ := uuid.Parse(req.CategoryID)
	eq, err := h.catalog.CreateEquipment(categoryID, req.Name, req.Stock, req.Condition)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, eq)
}

func (h *EngineHandler) listEquipment(c *gin.Context) {
	eqs, err := h.catalog.ListEquipment()
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, eqs)
}

func (h *EngineHandler) equipmentAvailability(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	free, err := h.borrowing.FreeUnits(id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"equipment_id": id, "free_units": free})
}

func (h *EngineHandler) equipmentQueue(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	entries, err := h.queue.ListByEquipment(id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

type setEquipmentStatusRequest struct {
	Status models.EquipmentStatus `json:"status" binding:"required"`
}

func (h *EngineHandler) setEquipmentStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req setEquipmentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.catalog.SetEquipmentStatus(id, req.Status); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": req.Status})
}

type createUserRequest struct {
	Name string          `json:"name" binding:"required"`
	Role models.UserRole `json:"role" binding:"required"`
}

func (h *EngineHandler) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := h.catalog.CreateUser(req.Name, req.Role)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// ─── Borrowing ────────────────────────────────────────────────────────────────

type borrowingRequestBody struct {
	EquipmentID string `json:"equipment_id" binding:"required,uuid"`
	RequesterID string `json:"requester_id" binding:"required,uuid"`
	Quantity    int    `json:"quantity" binding:"required,min=1"`
	StartDate   string `json:"start_date" binding:"required"`
	EndDate     string `json:"end_date" binding:"required"`
	Purpose     string `json:"purpose"`
}

func (b borrowingRequestBody) draft(c *gin.Context) (services.BorrowingDraft, bool) {
	start, err := time.Parse(dateLayout, b.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_date must be YYYY-MM-DD"})
		return services.BorrowingDraft{}, false
	}
	end, err := time.Parse(dateLayout, b.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be YYYY-MM-DD"})
		return services.BorrowingDraft{}, false
	}
	equipmentID, _ := uuid.Parse(b.EquipmentID)
	requesterID, _ := uuid.Parse(b.RequesterID)
	return services.BorrowingDraft{
		EquipmentID: equipmentID,
		RequesterID: requesterID,
		Quantity:    b.Quantity,
		StartDate:   start,
		EndDate:     end,
		Purpose:     b.Purpose,
	}, true
}

func (h *EngineHandler) validateBorrowing(c *gin.Context) {
	var body borrowingRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	draft, ok := body.draft(c)
	if !ok {
		return
	}
	res, err := h.borrowing.Validate(draft)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *EngineHandler) createBorrowing(c *gin.Context) {
	var body borrowingRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	draft, ok := body.draft(c)
	if !ok {
		return
	}
	request, res, err := h.borrowing.Create(draft)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":       request.ID,
		"status":   request.Status,
		"queued":   res.QueueEligible,
		"warnings": res.Warnings,
	})
}

type approveBorrowingRequest struct {
	AdminID string `json:"admin_id" binding:"required"`
}

func (h *EngineHandler) approveBorrowing(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req approveBorrowingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	request, err := h.borrowing.Approve(id, req.AdminID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, request)
}

type rejectBorrowingRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *EngineHandler) rejectBorrowing(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req rejectBorrowingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	request, err := h.borrowing.Reject(id, req.Reason)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, request)
}

func (h *EngineHandler) listUserBorrowings(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	requests, err := h.borrowing.ListByRequester(id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, requests)
}

// ─── Returns ──────────────────────────────────────────────────────────────────

type submitReturnRequest struct {
	Condition string `json:"condition" binding:"required"`
	Notes     string `json:"notes"`
}

func (h *EngineHandler) submitReturn(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req submitReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	record, penalty, err := h.returns.Submit(id, req.Condition, req.Notes)
	if err != nil {
		renderError(c, err)
		return
	}
	resp := gin.H{"return_id": record.ID, "status": record.Status}
	if penalty != nil && penalty.Total > 0 {
		resp["penalty"] = penalty
	}
	c.JSON(http.StatusCreated, resp)
}

type returnActionRequest struct {
	AdminID        string `json:"admin_id" binding:"required"`
	Notes          string `json:"notes"`
	FinalCondition string `json:"final_condition"`
	Reason         string `json:"reason"`
}

func (h *EngineHandler) approveReturnStage1(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req returnActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	record, err := h.returns.ApproveStage1(id, req.AdminID, req.Notes)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *EngineHandler) completeReturn(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req returnActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	record, err := h.returns.Complete(id, req.AdminID, req.FinalCondition, req.Notes)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *EngineHandler) rejectReturn(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req returnActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	record, err := h.returns.Reject(id, req.AdminID, req.Reason)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// ─── Penalties ────────────────────────────────────────────────────────────────

func (h *EngineHandler) penaltyPreview(c *gin.Context) {
	due, err := time.Parse(dateLayout, c.Query("due_date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "due_date must be YYYY-MM-DD"})
		return
	}
	ret, err := time.Parse(dateLayout, c.Query("return_date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "return_date must be YYYY-MM-DD"})
		return
	}
	calc := services.CalculatePenaltyPreview(h.rules, due, ret, c.Query("category"), c.Query("condition"))
	c.JSON(http.StatusOK, calc)
}

func (h *EngineHandler) listUserPenalties(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	records, err := h.penalties.ListByRequester(id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

type penaltyActionRequest struct {
	Actor string `json:"actor" binding:"required"`
}

func (h *EngineHandler) payPenalty(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req penaltyActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	record, err := h.penalties.Pay(id, req.Actor)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *EngineHandler) waivePenalty(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req penaltyActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	record, err := h.penalties.Waive(id, req.Actor)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// ─── Sweep ────────────────────────────────────────────────────────────────────

func (h *EngineHandler) processOverdue(c *gin.Context) {
	report, err := h.borrowing.ProcessOverdue()
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
