package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meterline/meterline/internal/application/credential/usecases"
	"github.com/meterline/meterline/internal/shared/logger"
	"github.com/meterline/meterline/internal/shared/utils"
)

// APIKeyHandler manages API key issuance and revocation.
type APIKeyHandler struct {
	createUseCase *usecases.CreateAPIKeyUseCase
	revokeUseCase *usecases.RevokeAPIKeyUseCase
	logger        logger.Interface
}

func NewAPIKeyHandler(
	createUC *usecases.CreateAPIKeyUseCase,
	revokeUC *usecases.RevokeAPIKeyUseCase,
	logger logger.Interface,
) *APIKeyHandler {
	return &APIKeyHandler{
		createUseCase: createUC,
		revokeUseCase: revokeUC,
		logger:        logger,
	}
}

// CreateAPIKey handles POST /api/v1/apikeys
func (h *APIKeyHandler) CreateAPIKey(c *gin.Context) {
	var cmd usecases.CreateAPIKeyCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.createUseCase.Execute(c.Request.Context(), cmd)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, result)
}

// RevokeAPIKey handles DELETE /api/v1/apikeys/:key_sid
func (h *APIKeyHandler) RevokeAPIKey(c *gin.Context) {
	err := h.revokeUseCase.Execute(c.Request.Context(), usecases.RevokeAPIKeyCommand{
		KeySID: c.Param("key_sid"),
	})
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "API key revoked", nil)
}
