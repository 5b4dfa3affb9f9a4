package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/workbench-backend/internal/http/response"
	"github.com/yungbote/workbench-backend/internal/platform/apierr"
	"github.com/yungbote/workbench-backend/internal/schema"
)

// bind decodes a JSON object body and runs it through s. On failure the error
// response is already written.
func bind(c *gin.Context, s schema.Schema) (map[string]any, bool) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.RespondAPIError(c, apierr.BadRequest(apierr.CodeInvalidRequest, fmt.Errorf("body must be a JSON object: %w", err)))
		return nil, false
	}
	parsed, err := schema.Validate(payload, s)
	if err != nil {
		response.RespondAPIError(c, err)
		return nil, false
	}
	return parsed, true
}
