package services

import (
	"context"
	"sort"
	"strings"

	"github.com/yungbote/workbench-backend/internal/data/graph"
	"github.com/yungbote/workbench-backend/internal/data/userconfig"
	"github.com/yungbote/workbench-backend/internal/domain"
	"github.com/yungbote/workbench-backend/internal/llm"
	"github.com/yungbote/workbench-backend/internal/platform/filestore"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
)

type QueryRequest struct {
	Persona      domain.Persona
	Prompt       string
	AdditionalQA string
	// Category is the active category whose instructions apply, if any.
	Category   string
	Topic      string
	Files      []domain.FileRef
	MessageIDs []string
}

// PersonaService composes the model request for a persona and streams the answer.
type PersonaService interface {
	Query(ctx context.Context, req QueryRequest) (*llm.Stream, error)
	// ResolvePersona picks the persona for a prompt: explicit choice, then the
	// persona tag, then the user's configured default, then model selection.
	ResolvePersona(ctx context.Context, explicit, tagged, prompt string) domain.Persona
}

type personaService struct {
	log     *logger.Logger
	llm     llm.Orchestrator
	store   graph.Store
	files   *filestore.Store
	configs *userconfig.Store
	augment AugmentationService
}

func NewPersonaService(log *logger.Logger, orchestrator llm.Orchestrator, store graph.Store, files *filestore.Store, configs *userconfig.Store, augment AugmentationService) PersonaService {
	return &personaService{
		log:     log.With("service", "PersonaService"),
		llm:     orchestrator,
		store:   store,
		files:   files,
		configs: configs,
		augment: augment,
	}
}

func (s *personaService) Query(ctx context.Context, req QueryRequest) (*llm.Stream, error) {
	system, err := s.systemBlocks(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.llm.Stream(ctx, system, []string{userBlock(req.Prompt, req.AdditionalQA)})
}

func userBlock(prompt, additionalQA string) string {
	if additionalQA == "" {
		return prompt
	}
	return prompt + "\nAdditional Q&A context: \n" + additionalQA
}

// systemBlocks builds the system messages in order: persona instructions, the
// user's custom instructions, category instructions, referenced files,
// referenced messages and the known topic.
func (s *personaService) systemBlocks(ctx context.Context, req QueryRequest) ([]string, error) {
	userID, err := userFrom(ctx)
	if err != nil {
		return nil, err
	}
	blocks := []string{req.Persona.BaseInstructions()}

	if s.configs != nil {
		cfg, err := s.configs.Load(userID)
		if err != nil {
			s.log.Warn("user config unavailable", "user_id", userID, "error", err)
		} else {
			if ci := strings.TrimSpace(cfg.CustomInstructions); ci != "" {
				blocks = append(blocks, "User instructions:\n"+ci)
			}
			if lang := strings.TrimSpace(cfg.Language); lang != "" && lang != "en" {
				blocks = append(blocks, "Respond in the language with code \""+lang+"\" unless asked otherwise.")
			}
		}
	}

	if cat := domain.NormalizeCategory(req.Category); cat != "" {
		instr, err := s.store.GetCategoryInstructions(ctx, userID, cat)
		if err != nil {
			s.log.Warn("category instructions unavailable", "category", cat, "error", err)
		} else if strings.TrimSpace(instr) != "" {
			blocks = append(blocks, "Category instructions:\n"+instr)
		}
	}

	if block := referencedFiles(ctx, s.log, s.store, s.files, userID, req.Files); block != "" {
		blocks = append(blocks, block)
	}
	if block := referencedMessages(ctx, s.log, s.store, userID, req.MessageIDs); block != "" {
		blocks = append(blocks, block)
	}

	if name := strings.TrimSpace(req.Topic); name != "" {
		topic, err := s.store.SearchUserTopic(ctx, userID, name)
		if err != nil {
			s.log.Warn("topic lookup failed", "topic", name, "error", err)
		} else if topic != nil && len(topic.Params) > 0 {
			blocks = append(blocks, topicBlock(topic))
		}
	}
	return blocks, nil
}

func topicBlock(t *domain.UserTopic) string {
	keys := make([]string, 0, len(t.Params))
	for k := range t.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("Known about the user's " + t.Name + ":")
	for _, k := range keys {
		b.WriteString("\n- " + k + ": " + t.Params[k])
	}
	return b.String()
}

func (s *personaService) ResolvePersona(ctx context.Context, explicit, tagged, prompt string) domain.Persona {
	for _, label := range []string{explicit, tagged} {
		if p, ok := domain.ParsePersona(label); ok {
			return p
		}
	}
	if s.configs != nil {
		if userID, err := userFrom(ctx); err == nil {
			if cfg, err := s.configs.Load(userID); err == nil {
				if p, ok := domain.ParsePersona(cfg.DefaultPersona); ok {
					return p
				}
			}
		}
	}
	if s.augment != nil && strings.TrimSpace(prompt) != "" {
		p, err := s.augment.SelectPersona(ctx, prompt)
		if err == nil {
			return p
		}
		s.log.Warn("persona selection failed, using default", "error", err)
	}
	return domain.PersonaDefault
}
