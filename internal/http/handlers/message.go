package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/workbench-backend/internal/domain"
	"github.com/yungbote/workbench-backend/internal/http/response"
	"github.com/yungbote/workbench-backend/internal/services"
)

type MessageHandler struct {
	messages services.MessageService
}

func NewMessageHandler(messages services.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// GET /messages/:category
func (h *MessageHandler) List(c *gin.Context) {
	msgs, err := h.messages.List(c.Request.Context(), c.Param("category"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	response.RespondOK(c, gin.H{"messages": msgs})
}

// DELETE /messages/:id
func (h *MessageHandler) Delete(c *gin.Context) {
	categoryDeleted, err := h.messages.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"message": "Message deleted", "category_deleted": categoryDeleted})
}
