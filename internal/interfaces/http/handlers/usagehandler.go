package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meterline/meterline/internal/application/metering/usecases"
	"github.com/meterline/meterline/internal/domain/metering"
	"github.com/meterline/meterline/internal/shared/logger"
	"github.com/meterline/meterline/internal/shared/utils"
)

// UsageHandler serves the metered hot path: usage ingestion and
// entitlement checks.
type UsageHandler struct {
	reportUsageUseCase   *usecases.ReportUsageUseCase
	resolveEntitlementUC *usecases.ResolveEntitlementUseCase
	getAggregatedUsageUC *usecases.GetAggregatedUsageUseCase
	getDailyUsageUC      *usecases.GetDailyUsageUseCase
	logger               logger.Interface
}

func NewUsageHandler(
	reportUsageUC *usecases.ReportUsageUseCase,
	resolveEntitlementUC *usecases.ResolveEntitlementUseCase,
	getAggregatedUsageUC *usecases.GetAggregatedUsageUseCase,
	getDailyUsageUC *usecases.GetDailyUsageUseCase,
	logger logger.Interface,
) *UsageHandler {
	return &UsageHandler{
		reportUsageUseCase:   reportUsageUC,
		resolveEntitlementUC: resolveEntitlementUC,
		getAggregatedUsageUC: getAggregatedUsageUC,
		getDailyUsageUC:      getDailyUsageUC,
		logger:               logger,
	}
}

// ReportUsage handles POST /api/v1/usage/report
func (h *UsageHandler) ReportUsage(c *gin.Context) {
	var cmd usecases.ReportUsageCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.reportUsageUseCase.Execute(c.Request.Context(), cmd)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	if result.AlreadyRecorded {
		utils.SuccessResponse(c, http.StatusOK, "usage already recorded", result)
		return
	}
	utils.CreatedResponse(c, result)
}

// GetEntitlement handles GET /api/v1/entitlements/:customer_id/:feature_slug
func (h *UsageHandler) GetEntitlement(c *gin.Context) {
	ent, err := h.resolveEntitlementUC.Execute(c.Request.Context(), usecases.ResolveEntitlementCommand{
		CustomerID:  c.Param("customer_id"),
		FeatureSlug: c.Param("feature_slug"),
	})
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "entitlement resolved", ent)
}

// GetAggregatedUsage handles GET /api/v1/usage/aggregate
func (h *UsageHandler) GetAggregatedUsage(c *gin.Context) {
	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid start time, expected RFC3339")
		return
	}
	end, err := time.Parse(time.RFC3339, c.Query("end"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid end time, expected RFC3339")
		return
	}

	result, err := h.getAggregatedUsageUC.Execute(c.Request.Context(), usecases.GetAggregatedUsageCommand{
		CustomerID:  c.Query("customer_id"),
		FeatureSlug: c.Query("feature_slug"),
		Start:       start,
		End:         end,
		Method:      metering.AggregationMethod(c.Query("method")),
	})
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "usage aggregated", result)
}

// GetDailyUsage handles GET /api/v1/usage/daily
func (h *UsageHandler) GetDailyUsage(c *gin.Context) {
	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid start time, expected RFC3339")
		return
	}
	cmd := usecases.GetDailyUsageCommand{
		CustomerID: c.Query("customer_id"),
		Start:      start,
	}
	if raw := c.Query("end"); raw != "" {
		end, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "invalid end time, expected RFC3339")
			return
		}
		cmd.End = end
	}

	result, err := h.getDailyUsageUC.Execute(c.Request.Context(), cmd)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "daily usage listed", result)
}
