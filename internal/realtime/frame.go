package realtime

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/workbench-backend/internal/domain"
	"github.com/yungbote/workbench-backend/internal/platform/apierr"
	"github.com/yungbote/workbench-backend/internal/schema"
)

type Event string

const (
	EventStartStream    Event = "start_stream"
	EventResponse       Event = "response"
	EventStreamEnd      Event = "stream_end"
	EventUpdateWorkflow Event = "update_workflow"
	EventError          Event = "error"
	EventPersistWarning Event = "persist_warning"
	EventPromptSaved    Event = "prompt_saved"
)

// Frame is the JSON envelope exchanged in both directions.
type Frame struct {
	Event Event `json:"event"`
	Data  any   `json:"data,omitempty"`
}

type inboundFrame struct {
	Event Event          `json:"event"`
	Data  map[string]any `json:"data"`
}

func errorFrame(err error) Frame {
	ae := apierr.From(err)
	return Frame{Event: EventError, Data: map[string]any{"error": ae.Public(), "kind": ae.Code}}
}

// startRequest is a validated start_stream payload.
type startRequest struct {
	Prompt       string
	AdditionalQA string
	Persona      string
	Files        []domain.FileRef
	Messages     []string
	tags         map[string]any
}

func (r startRequest) tag(name string) string {
	s, _ := r.tags[name].(string)
	return strings.TrimSpace(s)
}

func decodeFrame(raw []byte) (inboundFrame, error) {
	var f inboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return f, apierr.BadRequest(apierr.CodeInvalidRequest, fmt.Errorf("frame is not a JSON object: %w", err))
	}
	return f, nil
}

func decodeStart(data map[string]any) (startRequest, error) {
	if data == nil {
		data = map[string]any{}
	}
	parsed, err := schema.Validate(data, schema.StartStream)
	if err != nil {
		return startRequest{}, err
	}
	req := startRequest{
		Prompt:       schema.StringField(parsed, "prompt"),
		AdditionalQA: schema.StringField(parsed, "additionalQA"),
		Persona:      schema.StringField(parsed, "persona"),
		Files:        schema.FileRefs(parsed["files"]),
		Messages:     schema.IDs(parsed["messages"]),
	}
	req.tags, _ = parsed["tags"].(map[string]any)
	if strings.TrimSpace(req.Prompt) == "" {
		return req, apierr.BadRequest(apierr.CodeMissingField, fmt.Errorf("field %q must not be empty", "prompt"))
	}
	return req, nil
}
