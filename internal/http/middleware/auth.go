package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/workbench-backend/internal/observability"
	"github.com/yungbote/workbench-backend/internal/platform/apierr"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
	"github.com/yungbote/workbench-backend/internal/requestdata"
	"github.com/yungbote/workbench-backend/internal/services"
)

const AccessCookie = "access_token"

type AuthMiddleware struct {
	log         *logger.Logger
	authService services.AuthService
	metrics     *observability.Metrics
}

func NewAuthMiddleware(log *logger.Logger, authService services.AuthService, metrics *observability.Metrics) *AuthMiddleware {
	return &AuthMiddleware{
		log:         log.With("Middleware", "AuthMiddleware"),
		authService: authService,
		metrics:     metrics,
	}
}

// RequireAuth verifies the access token and attaches the session context.
// Any verification failure answers 401 {"status": "invalid"}.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, err := am.authService.SetContextFromToken(c.Request.Context(), AccessToken(c))
		if err != nil {
			kind := apierr.CodeOf(err)
			am.metrics.IncSecurityEvent("http_" + kind)
			am.log.Debug("request rejected", "path", c.Request.URL.Path, "kind", kind)
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "invalid"})
			return
		}
		if requestdata.UserID(ctx) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "invalid"})
			return
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// AccessToken reads the access cookie, falling back to a bearer header.
func AccessToken(c *gin.Context) string {
	if v, err := c.Cookie(AccessCookie); err == nil && v != "" {
		return v
	}
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}
