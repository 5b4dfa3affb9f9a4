package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/workbench-backend/internal/data/graph"
	"github.com/yungbote/workbench-backend/internal/domain"
	"github.com/yungbote/workbench-backend/internal/llm"
	"github.com/yungbote/workbench-backend/internal/pkg/textutil"
	"github.com/yungbote/workbench-backend/internal/platform/filestore"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
)

const (
	defaultCategory   = "general"
	maxCategorySlug   = 48
	maxSummaryInput   = 12000
	maxReferenceChars = 40000
)

const augmentInstructions = `Rewrite the user's prompt so that it is clear, specific and self-contained.
Keep the user's intent and language. Do not answer the prompt. Return only the rewritten prompt.`

const questionInstructions = `Read the user's prompt and any reference material.
List the clarifying questions whose answers would most improve a response, one per line, numbered.
Ask at most five questions. Do not answer the prompt.`

const personaInstructions = `Choose the assistant persona best suited to answer the user's prompt.
Coder handles programming, debugging, code review and software design. Default handles everything else.`

const workflowInstructions = `Choose how the workspace should process the user's prompt.
Default answers directly. Augment rewrites an unclear prompt first. Question asks clarifying questions first when key details are missing.`

const categoriseInstructions = `Assign the user's prompt to a category in their workspace.
Reply with a single short lowercase slug of one to three words joined by hyphens, for example "go-concurrency" or "travel".
Reuse one of the existing categories when it fits. Reply with the slug only.`

const summariseInstructions = `Summarise the file for a knowledge workspace in two or three sentences.
Describe what it contains and what it is useful for. Reply with the summary only.`

const topicInstructions = `Extract durable facts about the user from the exchange below: stated preferences, tools, projects, constraints.
Each fact has a short topic name, a parameter and its content. Return an empty list when there are none.`

// AugmentationService derives labels and rewrites from a prompt through
// synchronous model calls. Their cost lands on the request's session context.
type AugmentationService interface {
	Augment(ctx context.Context, prompt string) (string, error)
	Question(ctx context.Context, prompt string, messageIDs []string, files []domain.FileRef) (string, error)
	SelectPersona(ctx context.Context, prompt string) (domain.Persona, error)
	// SelectWorkflow returns the workflow named by tags when valid, else asks the model.
	SelectWorkflow(ctx context.Context, prompt string, tags map[string]any) (domain.Workflow, error)
	// Categorise returns callerTag lowercased when set, else a model-produced slug.
	Categorise(ctx context.Context, prompt, callerTag string) (string, error)
	SummariseFile(ctx context.Context, name string, content []byte) (summary, structure string, err error)
	ExtractTopics(ctx context.Context, prompt, response string) ([]domain.TopicFact, error)
}

type augmentationService struct {
	log   *logger.Logger
	llm   llm.Orchestrator
	store graph.Store
	files *filestore.Store
}

func NewAugmentationService(log *logger.Logger, orchestrator llm.Orchestrator, store graph.Store, files *filestore.Store) AugmentationService {
	return &augmentationService{
		log:   log.With("service", "AugmentationService"),
		llm:   orchestrator,
		store: store,
		files: files,
	}
}

func (s *augmentationService) Augment(ctx context.Context, prompt string) (string, error) {
	out, err := s.llm.Execute(ctx, []string{augmentInstructions}, []string{prompt})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (s *augmentationService) Question(ctx context.Context, prompt string, messageIDs []string, files []domain.FileRef) (string, error) {
	userID, err := userFrom(ctx)
	if err != nil {
		return "", err
	}
	system := []string{questionInstructions}
	if block := referencedFiles(ctx, s.log, s.store, s.files, userID, files); block != "" {
		system = append(system, block)
	}
	if block := referencedMessages(ctx, s.log, s.store, userID, messageIDs); block != "" {
		system = append(system, block)
	}
	out, err := s.llm.Execute(ctx, system, []string{prompt})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func labelSchema(field string, labels []string) map[string]any {
	enum := make([]any, 0, len(labels))
	for _, l := range labels {
		enum = append(enum, l)
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{field},
		"properties": map[string]any{
			field: map[string]any{"type": "string", "enum": enum},
		},
	}
}

func (s *augmentationService) SelectPersona(ctx context.Context, prompt string) (domain.Persona, error) {
	obj, err := s.llm.ExecuteJSON(ctx, []string{personaInstructions}, []string{prompt}, "persona_selection", labelSchema("persona", domain.PersonaLabels()))
	if err != nil {
		return domain.PersonaDefault, err
	}
	label, _ := obj["persona"].(string)
	p, ok := domain.ParsePersona(label)
	if !ok {
		s.log.Warn("model selected unknown persona", "label", label)
	}
	return p, nil
}

func (s *augmentationService) SelectWorkflow(ctx context.Context, prompt string, tags map[string]any) (domain.Workflow, error) {
	if tagged, _ := tags["workflow"].(string); tagged != "" {
		if w, ok := domain.ParseWorkflow(tagged); ok {
			return w, nil
		}
	}
	obj, err := s.llm.ExecuteJSON(ctx, []string{workflowInstructions}, []string{prompt}, "workflow_selection", labelSchema("workflow", domain.WorkflowLabels()))
	if err != nil {
		return domain.WorkflowDefault, err
	}
	label, _ := obj["workflow"].(string)
	w, ok := domain.ParseWorkflow(label)
	if !ok {
		s.log.Warn("model selected unknown workflow", "label", label)
	}
	return w, nil
}

func (s *augmentationService) Categorise(ctx context.Context, prompt, callerTag string) (string, error) {
	if tag := domain.NormalizeCategory(callerTag); tag != "" {
		return tag, nil
	}
	system := []string{categoriseInstructions}
	if userID, err := userFrom(ctx); err == nil {
		if existing, err := s.store.ListCategories(ctx, userID); err == nil && len(existing) > 0 {
			system = append(system, "Existing categories:\n"+strings.Join(existing, "\n"))
		}
	}
	out, err := s.llm.Execute(ctx, system, []string{prompt})
	if err != nil {
		return "", err
	}
	return Slug(out), nil
}

// Slug reduces model output to a category name of [a-z0-9-], falling back to "general".
func Slug(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if i := strings.IndexByte(raw, '\n'); i >= 0 {
		raw = raw[:i]
	}
	var b strings.Builder
	dash := false
	for _, r := range raw {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			dash = false
		case r == '-' || r == '_' || r == ' ' || r == '/':
			if b.Len() > 0 && !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if len(out) > maxCategorySlug {
		out = strings.TrimRight(out[:maxCategorySlug], "-")
	}
	if out == "" {
		return defaultCategory
	}
	return out
}

func (s *augmentationService) SummariseFile(ctx context.Context, name string, content []byte) (string, string, error) {
	structure := FileStructure(name, content)
	text := string(content)
	if !utf8.ValidString(text) {
		return fmt.Sprintf("Binary file %s (%d bytes).", name, len(content)), structure, nil
	}
	text = textutil.Truncate(text, maxSummaryInput)
	out, err := s.llm.Execute(ctx, []string{summariseInstructions}, []string{fileBlock(name, text)})
	if err != nil {
		return "", structure, err
	}
	return strings.TrimSpace(out), structure, nil
}

// FileStructure tags a file by its shape: table, json, code or text.
func FileStructure(name string, content []byte) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".tsv", ".xlsx", ".xls":
		return "table"
	case ".json", ".jsonl", ".ndjson":
		return "json"
	case ".go", ".py", ".js", ".ts", ".tsx", ".jsx", ".java", ".c", ".h", ".cpp", ".rs", ".rb", ".sh", ".sql", ".kt", ".swift", ".cs", ".php":
		return "code"
	}
	if !utf8.Valid(content) {
		return "binary"
	}
	return "text"
}

var topicSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []any{"topics"},
	"properties": map[string]any{
		"topics": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []any{"name", "parameter", "content"},
				"properties": map[string]any{
					"name":      map[string]any{"type": "string"},
					"parameter": map[string]any{"type": "string"},
					"content":   map[string]any{"type": "string"},
				},
			},
		},
	},
}

func (s *augmentationService) ExtractTopics(ctx context.Context, prompt, response string) ([]domain.TopicFact, error) {
	exchange := "Prompt:\n" + prompt + "\nResponse:\n" + response
	obj, err := s.llm.ExecuteJSON(ctx, []string{topicInstructions}, []string{exchange}, "user_topics", topicSchema)
	if err != nil {
		return nil, err
	}
	items, _ := obj["topics"].([]any)
	facts := make([]domain.TopicFact, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		f := domain.TopicFact{}
		f.Name, _ = m["name"].(string)
		f.Parameter, _ = m["parameter"].(string)
		f.Content, _ = m["content"].(string)
		if strings.TrimSpace(f.Name) == "" || strings.TrimSpace(f.Parameter) == "" {
			continue
		}
		facts = append(facts, f)
	}
	return facts, nil
}

func fileBlock(name, contents string) string {
	return "<" + name + ">\n" + contents + "\n</" + name + ">"
}

// referencedFiles renders the files block. References resolve through the
// store by id, so only the user's own files are read. Unreadable ones are skipped.
func referencedFiles(ctx context.Context, log *logger.Logger, store graph.Store, files *filestore.Store, userID string, refs []domain.FileRef) string {
	if len(refs) == 0 || files == nil {
		return ""
	}
	var parts []string
	total := 0
	for _, ref := range refs {
		if ref.ID == "" {
			log.Warn("skipping file reference without id", "name", ref.Name)
			continue
		}
		f, err := store.GetFile(ctx, userID, ref.ID)
		if err != nil {
			log.Warn("skipping unknown file reference", "file_id", ref.ID, "error", err)
			continue
		}
		b, err := files.Read(f.CategoryID, f.Name)
		if err != nil {
			log.Warn("skipping unreadable file reference", "file_id", f.ID, "error", err)
			continue
		}
		text := string(b)
		if total+len(text) > maxReferenceChars {
			text = textutil.Truncate(text, maxReferenceChars-total)
		}
		total += len(text)
		parts = append(parts, fileBlock(f.Name, text))
	}
	if len(parts) == 0 {
		return ""
	}
	return "Referenced files:\n" + strings.Join(parts, "\n")
}

// referencedMessages renders prior exchanges fetched by id for userID.
func referencedMessages(ctx context.Context, log *logger.Logger, store graph.Store, userID string, ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	msgs, err := store.GetMessagesByIDs(ctx, userID, ids)
	if err != nil {
		log.Warn("skipping referenced messages", "error", err)
		return ""
	}
	if len(msgs) < len(ids) {
		log.Warn("some referenced messages were not found", "requested", len(ids), "found", len(msgs))
	}
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, "Prompt:\n"+m.Prompt+"\nResponse:\n"+m.Response)
	}
	if len(parts) == 0 {
		return ""
	}
	return "Referenced messages:\n" + strings.Join(parts, "\n\n")
}
