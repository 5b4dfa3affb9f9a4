package middleware

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/workbench-backend/internal/http/response"
	"github.com/yungbote/workbench-backend/internal/platform/apierr"
)

const (
	CSRFCookie = "csrf_token"
	CSRFHeader = "X-CSRF-Token"
)

// RequireCSRF enforces the double-submit check on state-changing methods: the
// header must echo the csrf cookie issued at login.
func RequireCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		cookie, err := c.Cookie(CSRFCookie)
		header := c.GetHeader(CSRFHeader)
		if err != nil || cookie == "" || subtle.ConstantTimeCompare([]byte(cookie), []byte(header)) != 1 {
			response.RespondAPIError(c, apierr.New(http.StatusForbidden, apierr.CodeForbidden, fmt.Errorf("csrf token missing or mismatched")))
			return
		}
		c.Next()
	}
}
