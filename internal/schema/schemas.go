package schema

import (
	"strings"

	"github.com/yungbote/workbench-backend/internal/domain"
)

// StartStream is the payload of the client's start_stream frame.
var StartStream = Schema{
	"prompt":       {Required: true, Type: String},
	"additionalQA": {Type: String, Default: ""},
	"tags":         {Type: Map, Default: map[string]any{}},
	"files":        {Type: List, Default: []any{}},
	"messages":     {Type: List, Default: []any{}},
	"persona":      {Type: String, Default: ""},
}

var PricingAdd = Schema{
	"sum": {Required: true, Type: Real},
}

var CategoryInstructions = Schema{
	"category_name":             {Required: true, Type: String},
	"new_category_instructions": {Required: true, Type: String, MaxLen: domain.MaxCategoryInstructions},
}

var ConfigUpdate = Schema{
	"field": {Required: true, Type: String},
	"value": {Required: true, Type: Any},
}

var AugmentPrompt = Schema{
	"prompt": {Required: true, Type: String},
}

var QuestionPrompt = Schema{
	"prompt":   {Required: true, Type: String},
	"messages": {Type: List, Default: []any{}},
	"files":    {Type: List, Default: []any{}},
}

var SelectWorkflow = Schema{
	"prompt": {Required: true, Type: String},
	"tags":   {Type: Map, Default: map[string]any{}},
}

var Credentials = Schema{
	"email":    {Required: true, Type: String, MaxLen: 320},
	"password": {Required: true, Type: String, MaxLen: 1024},
}

// IDs reads a validated list of references given either as bare id strings
// or as objects carrying an "id" field. Blank entries are dropped.
func IDs(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		var id string
		switch x := it.(type) {
		case string:
			id = x
		case map[string]any:
			id, _ = x["id"].(string)
		}
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// FileRefs reads a validated list of file references. Only the id is
// authoritative; the rest is resolved server-side.
func FileRefs(v any) []domain.FileRef {
	items, _ := v.([]any)
	out := make([]domain.FileRef, 0, len(items))
	for _, it := range items {
		var ref domain.FileRef
		switch x := it.(type) {
		case string:
			ref.ID = x
		case map[string]any:
			ref.ID, _ = x["id"].(string)
			ref.CategoryID, _ = x["category_id"].(string)
			ref.Name, _ = x["name"].(string)
		}
		if ref.ID = strings.TrimSpace(ref.ID); ref.ID != "" {
			out = append(out, ref)
		}
	}
	return out
}

// StringField reads a string entry from a validated document.
func StringField(parsed map[string]any, name string) string {
	s, _ := parsed[name].(string)
	return s
}

// Tag reads a string entry from a validated tags map.
func Tag(parsed map[string]any, name string) string {
	tags, _ := parsed["tags"].(map[string]any)
	s, _ := tags[name].(string)
	return strings.TrimSpace(s)
}
