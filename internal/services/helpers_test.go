package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/yungbote/workbench-backend/internal/data/graph"
	"github.com/yungbote/workbench-backend/internal/data/repos/testutil"
	"github.com/yungbote/workbench-backend/internal/data/userconfig"
	"github.com/yungbote/workbench-backend/internal/domain"
	"github.com/yungbote/workbench-backend/internal/llm"
	"github.com/yungbote/workbench-backend/internal/platform/filestore"
)

type llmCall struct {
	System []string
	User   []string
	Schema string
}

// fakeLLM answers by the first system message, so each feature can be scripted.
type fakeLLM struct {
	mu      sync.Mutex
	calls   []llmCall
	text    map[string]string
	json    map[string]map[string]any
	err     error
	chunks  []string
	streamE error
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{text: map[string]string{}, json: map[string]map[string]any{}}
}

func (f *fakeLLM) record(c llmCall) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

func (f *fakeLLM) Calls() []llmCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llmCall(nil), f.calls...)
}

func (f *fakeLLM) Execute(ctx context.Context, system, user []string) (string, error) {
	f.record(llmCall{System: system, User: user})
	if f.err != nil {
		return "", f.err
	}
	for prefix, out := range f.text {
		if len(system) > 0 && strings.HasPrefix(system[0], prefix) {
			return out, nil
		}
	}
	return "ok", nil
}

func (f *fakeLLM) ExecuteJSON(ctx context.Context, system, user []string, name string, schema map[string]any) (map[string]any, error) {
	f.record(llmCall{System: system, User: user, Schema: name})
	if f.err != nil {
		return nil, f.err
	}
	if out, ok := f.json[name]; ok {
		return out, nil
	}
	return map[string]any{}, nil
}

func (f *fakeLLM) Stream(ctx context.Context, system, user []string) (*llm.Stream, error) {
	f.record(llmCall{System: system, User: user})
	if f.err != nil {
		return nil, f.err
	}
	return llm.FromChunks(ctx, f.streamE, f.chunks...), nil
}

type deps struct {
	store   *graph.MemoryStore
	files   *filestore.Store
	configs *userconfig.Store
	llm     *fakeLLM
}

func newDeps(t *testing.T) *deps {
	t.Helper()
	log := testutil.Logger(t)
	files, err := filestore.New(t.TempDir(), log)
	if err != nil {
		t.Fatalf("filestore: %v", err)
	}
	configs, err := userconfig.New(t.TempDir(), log)
	if err != nil {
		t.Fatalf("userconfig: %v", err)
	}
	return &deps{store: graph.NewMemoryStore(), files: files, configs: configs, llm: newFakeLLM()}
}

// user creates a user and returns a context carrying its session.
func (d *deps) user(t *testing.T, email string) (string, context.Context) {
	t.Helper()
	u := &domain.User{ID: domain.NewUserID(), Email: email, PasswordHash: "x"}
	if _, err := d.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u.ID, WithUser(context.Background(), u.ID, "")
}
