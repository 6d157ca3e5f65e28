package accounting

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions/factors"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/errs"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/offsets"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/offsets/planner"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/targets"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/uncertainty"
)

// Handler handles HTTP requests for accounting operations
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new accounting handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers accounting routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	accounting := router.Group("/accounting")
	{
		// Stateless engine endpoints
		accounting.GET("/factors", h.listFactors)
		accounting.POST("/calculate", h.calculate)
		accounting.POST("/net", h.net)
		accounting.POST("/uncertainty", h.assess)

		// Planner endpoints
		accounting.POST("/plan/requirement", h.planRequirement)
		accounting.POST("/plan/budget", h.planBudget)
		accounting.POST("/plan/multi-year", h.planMultiYear)
		accounting.POST("/plan/allocation", h.planAllocation)

		// Tenant ledger endpoints
		tenant := accounting.Group("/tenants/:tenantId")
		tenant.POST("/activities", h.recordActivity)
		tenant.GET("/activities", h.listActivities)
		tenant.POST("/offsets", h.recordOffset)
		tenant.GET("/offsets", h.listOffsets)
		tenant.POST("/offsets/:offsetId/retire", h.retireOffset)
		tenant.POST("/offsets/:offsetId/cancel", h.cancelOffset)
		tenant.POST("/overrides", h.createOverride)
		tenant.POST("/targets", h.createTarget)
		tenant.GET("/targets/:targetId/progress", h.targetProgress)
		tenant.GET("/snapshots/:period", h.getSnapshot)
		tenant.GET("/uncertainty/:period", h.assessPeriod)
	}
}

// =====================================================
// Request Types
// =====================================================

type calculateRequest struct {
	TenantID *uuid.UUID                `json:"tenant_id"`
	Records  []emissions.ActivityRecord `json:"records"`
}

type netRequest struct {
	Gross   emissions.ScopeTotals       `json:"gross"`
	Offsets []offsets.OffsetTransaction `json:"offsets"`
}

type assessRequest struct {
	Inputs []uncertainty.Input `json:"inputs"`
}

type requirementRequest struct {
	GrossEmissions     float64 `json:"gross_emissions"`
	TargetReductionPct float64 `json:"target_reduction_pct"`
}

type budgetRequest struct {
	Budget         float64            `json:"budget"`
	GrossEmissions float64            `json:"gross_emissions"`
	PriceRange     planner.PriceRange `json:"price_range"`
}

type multiYearRequest struct {
	History      []float64 `json:"annual_emissions_history"`
	TargetYear   int       `json:"target_year"`
	AnnualBudget float64   `json:"annual_budget"`
}

type allocationRequest struct {
	Budget         float64                     `json:"total_budget"`
	ScopeEmissions map[emissions.Scope]float64 `json:"scope_emissions"`
	Priorities     map[emissions.Scope]float64 `json:"priorities"`
}

// =====================================================
// Stateless Endpoints
// =====================================================

// listFactors handles GET /api/v1/accounting/factors
func (h *Handler) listFactors(c *gin.Context) {
	catalog := h.service.Catalog()
	c.JSON(http.StatusOK, gin.H{
		"version": catalog.Version(),
		"factors": catalog.List(),
	})
}

// calculate handles POST /api/v1/accounting/calculate
func (h *Handler) calculate(c *gin.Context) {
	var req calculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tenantID := uuid.Nil
	if req.TenantID != nil {
		tenantID = *req.TenantID
	}

	agg, err := h.service.Calculate(c.Request.Context(), tenantID, req.Records)
	if err != nil {
		h.respondError(c, "Failed to calculate emissions", err)
		return
	}
	c.JSON(http.StatusOK, agg)
}

// net handles POST /api/v1/accounting/net
func (h *Handler) net(c *gin.Context) {
	var req netRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := h.service.Net(req.Gross, req.Offsets)
	if err != nil {
		h.respondError(c, "Failed to net emissions", err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// assess handles POST /api/v1/accounting/uncertainty
func (h *Handler) assess(c *gin.Context) {
	var req assessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.service.Assess(req.Inputs)
	if err != nil {
		h.respondError(c, "Failed to assess uncertainty", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// planRequirement handles POST /api/v1/accounting/plan/requirement
func (h *Handler) planRequirement(c *gin.Context) {
	var req requirementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.Planner().RequirementFor(req.GrossEmissions, req.TargetReductionPct)
	if err != nil {
		h.respondError(c, "Failed to compute offset requirement", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// planBudget handles POST /api/v1/accounting/plan/budget
func (h *Handler) planBudget(c *gin.Context) {
	var req budgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.Planner().OptimizeBudget(req.Budget, req.GrossEmissions, req.PriceRange)
	if err != nil {
		h.respondError(c, "Failed to optimize budget", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// planMultiYear handles POST /api/v1/accounting/plan/multi-year
func (h *Handler) planMultiYear(c *gin.Context) {
	var req multiYearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.Planner().PlanMultiYear(req.History, req.TargetYear, req.AnnualBudget)
	if err != nil {
		h.respondError(c, "Failed to plan offsets", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// planAllocation handles POST /api/v1/accounting/plan/allocation
func (h *Handler) planAllocation(c *gin.Context) {
	var req allocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.Planner().AllocateByPriority(req.Budget, req.ScopeEmissions, req.Priorities)
	if err != nil {
		h.respondError(c, "Failed to allocate budget", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// =====================================================
// Tenant Endpoints
// =====================================================

// recordActivity handles POST /api/v1/accounting/tenants/:tenantId/activities
func (h *Handler) recordActivity(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	var record emissions.ActivityRecord
	if err := c.ShouldBindJSON(&record); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	record.TenantID = tenantID

	calc, err := h.service.RecordActivity(c.Request.Context(), &record)
	if err != nil {
		h.respondError(c, "Failed to record activity", err)
		return
	}
	c.JSON(http.StatusCreated, calc)
}

// listActivities handles GET /api/v1/accounting/tenants/:tenantId/activities?period=
func (h *Handler) listActivities(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	records, err := h.service.ListActivities(c.Request.Context(), tenantID, c.Query("period"))
	if err != nil {
		h.respondError(c, "Failed to list activities", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

// recordOffset handles POST /api/v1/accounting/tenants/:tenantId/offsets
func (h *Handler) recordOffset(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	var tx offsets.OffsetTransaction
	if err := c.ShouldBindJSON(&tx); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tx.TenantID = tenantID

	if err := h.service.RecordOffset(c.Request.Context(), &tx); err != nil {
		h.respondError(c, "Failed to record offset", err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

// listOffsets handles GET /api/v1/accounting/tenants/:tenantId/offsets?period=
func (h *Handler) listOffsets(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	txs, err := h.service.ListOffsets(c.Request.Context(), tenantID, c.Query("period"))
	if err != nil {
		h.respondError(c, "Failed to list offsets", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offsets": txs, "count": len(txs)})
}

// retireOffset handles POST /api/v1/accounting/tenants/:tenantId/offsets/:offsetId/retire
func (h *Handler) retireOffset(c *gin.Context) {
	h.transitionOffset(c, h.service.RetireOffset, "Failed to retire offset")
}

// cancelOffset handles POST /api/v1/accounting/tenants/:tenantId/offsets/:offsetId/cancel
func (h *Handler) cancelOffset(c *gin.Context) {
	h.transitionOffset(c, h.service.CancelOffset, "Failed to cancel offset")
}

func (h *Handler) transitionOffset(c *gin.Context, move func(context.Context, uuid.UUID, uuid.UUID) (*offsets.OffsetTransaction, error), failure string) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	offsetID, err := uuid.Parse(c.Param("offsetId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset ID"})
		return
	}

	tx, err := move(c.Request.Context(), tenantID, offsetID)
	if err != nil {
		h.respondError(c, failure, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// createOverride handles POST /api/v1/accounting/tenants/:tenantId/overrides
func (h *Handler) createOverride(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	var override factors.Override
	if err := c.ShouldBindJSON(&override); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	override.TenantID = tenantID

	if err := h.service.CreateOverride(c.Request.Context(), &override); err != nil {
		h.respondError(c, "Failed to create factor override", err)
		return
	}
	c.JSON(http.StatusCreated, override)
}

// createTarget handles POST /api/v1/accounting/tenants/:tenantId/targets
func (h *Handler) createTarget(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	var target targets.CarbonTarget
	if err := c.ShouldBindJSON(&target); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	target.TenantID = tenantID

	if err := h.service.CreateTarget(c.Request.Context(), &target); err != nil {
		h.respondError(c, "Failed to create target", err)
		return
	}
	c.JSON(http.StatusCreated, target)
}

// targetProgress handles GET /api/v1/accounting/tenants/:tenantId/targets/:targetId/progress?period=
func (h *Handler) targetProgress(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	targetID, err := uuid.Parse(c.Param("targetId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid target ID"})
		return
	}

	report, err := h.service.TargetProgress(c.Request.Context(), tenantID, targetID, c.Query("period"))
	if err != nil {
		h.respondError(c, "Failed to compute target progress", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// getSnapshot handles GET /api/v1/accounting/tenants/:tenantId/snapshots/:period
func (h *Handler) getSnapshot(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	snap, err := h.service.PeriodSnapshot(c.Request.Context(), tenantID, c.Param("period"))
	if err != nil {
		h.respondError(c, "Failed to get snapshot", err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// assessPeriod handles GET /api/v1/accounting/tenants/:tenantId/uncertainty/:period
func (h *Handler) assessPeriod(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	report, err := h.service.AssessPeriod(c.Request.Context(), tenantID, c.Param("period"))
	if err != nil {
		h.respondError(c, "Failed to assess period uncertainty", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// =====================================================
// Helper Functions
// =====================================================

func (h *Handler) tenantID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("tenantId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tenant ID"})
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps invalid input to 400, missing entities to 404 and
// anything else to 500
func (h *Handler) respondError(c *gin.Context, msg string, err error) {
	switch {
	case errs.IsInvalidInput(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": errs.FieldOf(err)})
	case errors.Is(err, errs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
