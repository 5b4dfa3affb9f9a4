package services

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/workbench-backend/internal/data/graph"
	"github.com/yungbote/workbench-backend/internal/data/userconfig"
	"github.com/yungbote/workbench-backend/internal/domain"
	"github.com/yungbote/workbench-backend/internal/observability"
	"github.com/yungbote/workbench-backend/internal/platform/filestore"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
)

const (
	StepCategorise  = "categorise"
	StepWritePrompt = "write_prompt"
	StepPromote     = "promote"
	StepSummarise   = "summarise"
	StepAttachFile  = "attach_file"
	StepTopics      = "topics"
)

const summariseParallelism = 4

type PersistRequest struct {
	Prompt      string
	Response    string
	CategoryTag string
	At          time.Time
}

// PersistWarning is a failed persistence step. The delivered response stands.
type PersistWarning struct {
	Step string
	Err  error
}

type PersistResult struct {
	PromptID   string
	Category   string
	CategoryID string
	Files      []string
	Warnings   []PersistWarning
}

// Saved reports whether the prompt node was written.
func (r PersistResult) Saved() bool { return r.PromptID != "" }

// PromptService writes a finished exchange to the graph: category, prompt,
// promoted staged files and extracted topics. Each step commits on its own.
type PromptService interface {
	Persist(ctx context.Context, req PersistRequest) PersistResult
}

type promptService struct {
	log      *logger.Logger
	store    graph.Store
	files    *filestore.Store
	configs  *userconfig.Store
	augment  AugmentationService
	metrics  *observability.Metrics
	topicsOn bool
}

func NewPromptService(log *logger.Logger, store graph.Store, files *filestore.Store, configs *userconfig.Store, augment AugmentationService, metrics *observability.Metrics, extractTopics bool) PromptService {
	return &promptService{
		log:      log.With("service", "PromptService"),
		store:    store,
		files:    files,
		configs:  configs,
		augment:  augment,
		metrics:  metrics,
		topicsOn: extractTopics,
	}
}

func (s *promptService) warn(res *PersistResult, userID, step string, err error) {
	s.log.Warn("persist step failed", "step", step, "user_id", userID, "error", err)
	s.metrics.IncPersistWarning(step)
	res.Warnings = append(res.Warnings, PersistWarning{Step: step, Err: err})
}

func (s *promptService) Persist(ctx context.Context, req PersistRequest) PersistResult {
	var res PersistResult
	userID, err := userFrom(ctx)
	if err != nil {
		s.warn(&res, "", StepWritePrompt, err)
		return res
	}
	if req.At.IsZero() {
		req.At = time.Now().UTC()
	}

	category := s.category(ctx, &res, userID, req)

	ref, err := s.store.WritePrompt(ctx, userID, category, req.Prompt, req.Response, req.At)
	if err != nil {
		s.warn(&res, userID, StepWritePrompt, err)
		return res
	}
	res.PromptID, res.Category, res.CategoryID = ref.ID, ref.Category, ref.CategoryID

	s.attachStaged(ctx, &res, userID, req.At)

	if s.topicsOn {
		facts, err := s.augment.ExtractTopics(ctx, req.Prompt, req.Response)
		if err != nil {
			s.warn(&res, userID, StepTopics, err)
		} else if err := s.store.UpsertUserTopics(ctx, userID, facts); err != nil {
			s.warn(&res, userID, StepTopics, err)
		}
	}
	return res
}

// category resolves the caller's tag, or asks the model when the user has
// auto-categorisation on. It never fails; the fallback is the default category.
func (s *promptService) category(ctx context.Context, res *PersistResult, userID string, req PersistRequest) string {
	if tag := domain.NormalizeCategory(req.CategoryTag); tag != "" {
		return tag
	}
	auto := true
	if s.configs != nil {
		if cfg, err := s.configs.Load(userID); err == nil {
			auto = cfg.AutoCategorise
		}
	}
	if !auto || s.augment == nil {
		return defaultCategory
	}
	name, err := s.augment.Categorise(ctx, req.Prompt, "")
	if err != nil {
		s.warn(res, userID, StepCategorise, err)
		return defaultCategory
	}
	return name
}

// attachStaged promotes every staged upload into the prompt's category and
// links a File node to the prompt for each one moved.
func (s *promptService) attachStaged(ctx context.Context, res *PersistResult, userID string, at time.Time) {
	if s.files == nil {
		return
	}
	staged, err := s.files.ListStaged(userID)
	if err != nil {
		s.warn(res, userID, StepPromote, err)
		return
	}
	if len(staged) == 0 {
		return
	}
	moved, err := s.files.Promote(userID, res.CategoryID, staged)
	if err != nil {
		s.warn(res, userID, StepPromote, err)
	}
	sums := s.summarise(ctx, res.CategoryID, moved)
	for i, name := range moved {
		summary, structure := sums[i].summary, sums[i].structure
		if sums[i].err != nil {
			s.warn(res, userID, StepSummarise, sums[i].err)
		}
		_, err := s.store.AttachFile(ctx, userID, res.PromptID, res.Category, graph.FileInput{
			Name:      name,
			Summary:   summary,
			Structure: structure,
			CreatedAt: at,
		})
		if err != nil {
			s.warn(res, userID, StepAttachFile, err)
			continue
		}
		res.Files = append(res.Files, name)
	}
}

type fileSummary struct {
	summary   string
	structure string
	err       error
}

// summarise asks the model about each promoted file, a few at a time. Results
// line up with names.
func (s *promptService) summarise(ctx context.Context, categoryID string, names []string) []fileSummary {
	out := make([]fileSummary, len(names))
	for i, name := range names {
		out[i].structure = FileStructure(name, nil)
	}
	if s.augment == nil {
		return out
	}
	var g errgroup.Group
	g.SetLimit(summariseParallelism)
	for i, name := range names {
		g.Go(func() error {
			content, err := s.files.Read(categoryID, name)
			if err != nil {
				out[i].err = err
				return nil
			}
			sum, st, err := s.augment.SummariseFile(ctx, name, content)
			out[i] = fileSummary{structure: st, err: err}
			if err == nil {
				out[i].summary = sum
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
