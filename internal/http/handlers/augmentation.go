package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/workbench-backend/internal/http/response"
	"github.com/yungbote/workbench-backend/internal/schema"
	"github.com/yungbote/workbench-backend/internal/services"
)

// AugmentationHandler serves the one-shot model helpers. Their upstream cost is
// settled against the balance once the response is written.
type AugmentationHandler struct {
	augment services.AugmentationService
	ledger  services.LedgerService
}

func NewAugmentationHandler(augment services.AugmentationService, ledger services.LedgerService) *AugmentationHandler {
	return &AugmentationHandler{augment: augment, ledger: ledger}
}

// POST /augmentation/augment_prompt
func (h *AugmentationHandler) AugmentPrompt(c *gin.Context) {
	body, ok := h.gate(c, schema.AugmentPrompt)
	if !ok {
		return
	}
	defer settle(c, h.ledger)
	out, err := h.augment.Augment(c.Request.Context(), schema.StringField(body, "prompt"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"augmented_prompt": out})
}

// POST /augmentation/question_prompt
func (h *AugmentationHandler) QuestionPrompt(c *gin.Context) {
	body, ok := h.gate(c, schema.QuestionPrompt)
	if !ok {
		return
	}
	defer settle(c, h.ledger)
	out, err := h.augment.Question(c.Request.Context(), schema.StringField(body, "prompt"), schema.IDs(body["messages"]), schema.FileRefs(body["files"]))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"questions": out})
}

// POST /augmentation/select_persona
func (h *AugmentationHandler) SelectPersona(c *gin.Context) {
	body, ok := h.gate(c, schema.AugmentPrompt)
	if !ok {
		return
	}
	defer settle(c, h.ledger)
	p, err := h.augment.SelectPersona(c.Request.Context(), schema.StringField(body, "prompt"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"persona": p.String()})
}

// POST /augmentation/select_workflow
func (h *AugmentationHandler) SelectWorkflow(c *gin.Context) {
	body, ok := h.gate(c, schema.SelectWorkflow)
	if !ok {
		return
	}
	defer settle(c, h.ledger)
	tags, _ := body["tags"].(map[string]any)
	w, err := h.augment.SelectWorkflow(c.Request.Context(), schema.StringField(body, "prompt"), tags)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"workflow": string(w)})
}

// gate validates the body and refuses users without balance before any model call.
func (h *AugmentationHandler) gate(c *gin.Context, s schema.Schema) (map[string]any, bool) {
	body, ok := bind(c, s)
	if !ok {
		return nil, false
	}
	if err := h.ledger.RequirePositive(c.Request.Context()); err != nil {
		response.RespondAPIError(c, err)
		return nil, false
	}
	return body, true
}
