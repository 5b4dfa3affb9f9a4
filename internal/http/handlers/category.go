package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/workbench-backend/internal/http/response"
	"github.com/yungbote/workbench-backend/internal/schema"
	"github.com/yungbote/workbench-backend/internal/services"
)

type CategoryHandler struct {
	categories services.CategoryService
}

func NewCategoryHandler(categories services.CategoryService) *CategoryHandler {
	return &CategoryHandler{categories: categories}
}

// GET /categories
func (h *CategoryHandler) List(c *gin.Context) {
	h.respondNames(c, h.categories.List)
}

// GET /categories_with_files
func (h *CategoryHandler) ListWithFiles(c *gin.Context) {
	h.respondNames(c, h.categories.ListWithFiles)
}

// GET /categories_with_messages
func (h *CategoryHandler) ListWithMessages(c *gin.Context) {
	h.respondNames(c, h.categories.ListWithMessages)
}

func (h *CategoryHandler) respondNames(c *gin.Context, list func(ctx context.Context) ([]string, error)) {
	names, err := list(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	response.RespondOK(c, gin.H{"categories": names})
}

// POST /category_instructions
// body: { "category_name": "...", "new_category_instructions": "..." }
func (h *CategoryHandler) SetInstructions(c *gin.Context) {
	body, ok := bind(c, schema.CategoryInstructions)
	if !ok {
		return
	}
	name := schema.StringField(body, "category_name")
	if err := h.categories.SetInstructions(c.Request.Context(), name, schema.StringField(body, "new_category_instructions")); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"message": "Category instructions updated"})
}
