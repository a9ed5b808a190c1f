package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	credusecases "github.com/meterline/meterline/internal/application/credential/usecases"
	"github.com/meterline/meterline/internal/shared/utils"
)

// Context keys set by APIKeyAuth for downstream handlers.
const (
	ContextKeySID       = "api_key_sid"
	ContextProjectID    = "project_id"
	ContextWorkspaceID  = "workspace_id"
	apiKeyHeader        = "X-Api-Key"
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
)

// APIKeyAuth authenticates metered calls. The key comes from X-Api-Key or
// an Authorization bearer token; on success the tenant identity is attached
// to the request context.
func APIKeyAuth(resolver *credusecases.ResolveAPIKeyUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		plaintext := c.GetHeader(apiKeyHeader)
		if plaintext == "" {
			auth := c.GetHeader(authorizationHeader)
			if strings.HasPrefix(auth, bearerPrefix) {
				plaintext = strings.TrimPrefix(auth, bearerPrefix)
			}
		}

		result, err := resolver.Execute(c.Request.Context(), credusecases.ResolveAPIKeyCommand{
			PlaintextKey: plaintext,
		})
		if err != nil {
			utils.AppErrorResponse(c, err)
			c.Abort()
			return
		}

		c.Set(ContextKeySID, result.KeySID)
		c.Set(ContextProjectID, result.ProjectID)
		c.Set(ContextWorkspaceID, result.WorkspaceID)
		c.Next()
	}
}
