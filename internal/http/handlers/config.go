package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/workbench-backend/internal/http/response"
	"github.com/yungbote/workbench-backend/internal/schema"
	"github.com/yungbote/workbench-backend/internal/services"
)

type ConfigHandler struct {
	configs services.ConfigService
}

func NewConfigHandler(configs services.ConfigService) *ConfigHandler {
	return &ConfigHandler{configs: configs}
}

// GET /data/config
func (h *ConfigHandler) Get(c *gin.Context) {
	cfg, err := h.configs.Get(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"config": cfg})
}

// POST /data/config
// body: { "field": "language", "value": "de" }
func (h *ConfigHandler) Update(c *gin.Context) {
	body, ok := bind(c, schema.ConfigUpdate)
	if !ok {
		return
	}
	cfg, err := h.configs.Update(c.Request.Context(), schema.StringField(body, "field"), body["value"])
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"config": cfg})
}
