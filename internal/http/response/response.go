package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/workbench-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAPIError writes err with the status and code it carries. The cause is
// recorded on the gin context for the request logger; clients only see the
// public message.
func RespondAPIError(c *gin.Context, err error) {
	ae := apierr.From(err)
	_ = c.Error(ae)
	c.AbortWithStatusJSON(ae.Status, ErrorEnvelope{
		Error: APIError{
			Message: ae.Public(),
			Code:    ae.Code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
