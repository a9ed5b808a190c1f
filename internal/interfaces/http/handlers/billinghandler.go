package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meterline/meterline/internal/application/billing/usecases"
	"github.com/meterline/meterline/internal/shared/logger"
	"github.com/meterline/meterline/internal/shared/utils"
)

// BillingHandler serves the plan catalog and subscription lifecycle
// endpoints.
type BillingHandler struct {
	createPlanUseCase     *usecases.CreatePlanVersionUseCase
	listPlansUseCase      *usecases.ListPlanVersionsUseCase
	deactivatePlanUseCase *usecases.DeactivatePlanVersionUseCase
	createSubUseCase      *usecases.CreateSubscriptionUseCase
	getSubUseCase         *usecases.GetSubscriptionUseCase
	cancelSubUseCase      *usecases.CancelSubscriptionUseCase
	statsUseCase          *usecases.GetBillingStatsUseCase
	logger                logger.Interface
}

func NewBillingHandler(
	createPlanUC *usecases.CreatePlanVersionUseCase,
	listPlansUC *usecases.ListPlanVersionsUseCase,
	deactivatePlanUC *usecases.DeactivatePlanVersionUseCase,
	createSubUC *usecases.CreateSubscriptionUseCase,
	getSubUC *usecases.GetSubscriptionUseCase,
	cancelSubUC *usecases.CancelSubscriptionUseCase,
	statsUC *usecases.GetBillingStatsUseCase,
	logger logger.Interface,
) *BillingHandler {
	return &BillingHandler{
		createPlanUseCase:     createPlanUC,
		listPlansUseCase:      listPlansUC,
		deactivatePlanUseCase: deactivatePlanUC,
		createSubUseCase:      createSubUC,
		getSubUseCase:         getSubUC,
		cancelSubUseCase:      cancelSubUC,
		statsUseCase:          statsUC,
		logger:                logger,
	}
}

// CreatePlanVersion handles POST /api/v1/plans
func (h *BillingHandler) CreatePlanVersion(c *gin.Context) {
	var cmd usecases.CreatePlanVersionCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.createPlanUseCase.Execute(c.Request.Context(), cmd)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, result)
}

// ListPlanVersions handles GET /api/v1/plans
func (h *BillingHandler) ListPlanVersions(c *gin.Context) {
	result, err := h.listPlansUseCase.Execute(c.Request.Context())
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "plan versions retrieved", result)
}

// DeactivatePlanVersion handles POST /api/v1/plans/:plan_sid/deactivate
func (h *BillingHandler) DeactivatePlanVersion(c *gin.Context) {
	err := h.deactivatePlanUseCase.Execute(c.Request.Context(), usecases.DeactivatePlanVersionCommand{
		PlanSID: c.Param("plan_sid"),
	})
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "plan version deactivated", nil)
}

// CreateSubscription handles POST /api/v1/subscriptions
func (h *BillingHandler) CreateSubscription(c *gin.Context) {
	var cmd usecases.CreateSubscriptionCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.createSubUseCase.Execute(c.Request.Context(), cmd)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, result)
}

// GetSubscription handles GET /api/v1/subscriptions/:subscription_sid
func (h *BillingHandler) GetSubscription(c *gin.Context) {
	result, err := h.getSubUseCase.Execute(c.Request.Context(), usecases.GetSubscriptionCommand{
		SubscriptionSID: c.Param("subscription_sid"),
	})
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "subscription retrieved", result)
}

type cancelSubscriptionRequest struct {
	Note string `json:"note"`
}

// CancelSubscription handles POST /api/v1/subscriptions/:subscription_sid/cancel
func (h *BillingHandler) CancelSubscription(c *gin.Context) {
	var req cancelSubscriptionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	err := h.cancelSubUseCase.Execute(c.Request.Context(), usecases.CancelSubscriptionCommand{
		SubscriptionSID: c.Param("subscription_sid"),
		Note:            req.Note,
	})
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "subscription canceled", nil)
}

// GetBillingStats handles GET /api/v1/billing/stats
func (h *BillingHandler) GetBillingStats(c *gin.Context) {
	result, err := h.statsUseCase.Execute(c.Request.Context())
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "billing stats retrieved", result)
}
