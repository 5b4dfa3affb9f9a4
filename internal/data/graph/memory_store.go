package graph

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/workbench-backend/internal/domain"
	"github.com/yungbote/workbench-backend/internal/platform/apierr"
)

// MemoryStore is a process-local Store. It backs tests and local runs without Neo4j.
type MemoryStore struct {
	mu         sync.Mutex
	users      map[string]*domain.User
	categories map[string]*memCategory
	prompts    map[string]*memPrompt
	files      map[string]*memFile
	topics     map[string]*domain.UserTopic // key: user_id + "\x00" + name_norm
}

type memCategory struct {
	domain.Category
	userID    string
	createdAt time.Time
}

type memPrompt struct {
	domain.Message
	userID     string
	categoryID string
}

type memFile struct {
	domain.File
	userID   string
	promptID string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      map[string]*domain.User{},
		categories: map[string]*memCategory{},
		prompts:    map[string]*memPrompt{},
		files:      map[string]*memFile{},
		topics:     map[string]*domain.UserTopic{},
	}
}

func (m *MemoryStore) EnsureSchema(context.Context) error { return nil }

func (m *MemoryStore) CreateUser(_ context.Context, u *domain.User) (bool, error) {
	if u == nil || strings.TrimSpace(u.ID) == "" {
		return false, apierr.BadRequest(apierr.CodeInvalidRequest, fmt.Errorf("user id required"))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return false, nil
	}
	email := domain.NormalizeEmail(u.Email)
	for _, existing := range m.users {
		if existing.Email == email {
			return false, apierr.New(http.StatusConflict, apierr.CodeDuplicateEmail, fmt.Errorf("email already registered"))
		}
	}
	cp := *u
	cp.Email = email
	cp.Balance = 0
	cp.EmailVerified = false
	cp.PromoApplied = false
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.users[u.ID] = &cp
	return true, nil
}

func (m *MemoryStore) FindUserByEmail(_ context.Context, email string) (string, error) {
	email = domain.NormalizeEmail(email)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, u := range m.users {
		if u.Email == email {
			return id, nil
		}
	}
	return "", nil
}

func (m *MemoryStore) user(userID string) (*domain.User, error) {
	u, ok := m.users[userID]
	if !ok {
		return nil, apierr.NotFound(fmt.Errorf("user not found"))
	}
	return u, nil
}

func (m *MemoryStore) GetUser(_ context.Context, userID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.user(userID)
	if err != nil {
		return nil, err
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) GetPasswordHash(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.user(userID)
	if err != nil {
		return "", err
	}
	return u.PasswordHash, nil
}

func (m *MemoryStore) MarkEmailVerified(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.user(userID)
	if err != nil {
		return false, err
	}
	was := u.EmailVerified
	u.EmailVerified = true
	return !was, nil
}

func (m *MemoryStore) GetBalance(_ context.Context, userID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.user(userID)
	if err != nil {
		return 0, err
	}
	return u.Balance, nil
}

func (m *MemoryStore) AddBalance(_ context.Context, userID string, amount float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.user(userID)
	if err != nil {
		return 0, err
	}
	u.Balance += amount
	return u.Balance, nil
}

func (m *MemoryStore) DebitBalance(_ context.Context, userID string, amount float64) (float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.Balance < amount {
		return 0, false, nil
	}
	u.Balance -= amount
	return u.Balance, true, nil
}

func (m *MemoryStore) DrainBalance(_ context.Context, userID string, amount float64) (float64, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.user(userID)
	if err != nil {
		return 0, 0, err
	}
	taken := amount
	if u.Balance < taken {
		taken = u.Balance
	}
	u.Balance -= taken
	return taken, u.Balance, nil
}

func (m *MemoryStore) ApplyPromo(_ context.Context, userID string, amount float64) (bool, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.PromoApplied {
		return false, 0, nil
	}
	u.PromoApplied = true
	u.Balance += amount
	return true, u.Balance, nil
}

func (m *MemoryStore) category(userID, name string) *memCategory {
	for _, c := range m.categories {
		if c.userID == userID && c.Name == name {
			return c
		}
	}
	return nil
}

func (m *MemoryStore) upsertCategory(userID, name string) (*memCategory, error) {
	name = domain.NormalizeCategory(name)
	if name == "" {
		return nil, apierr.BadRequest(apierr.CodeMissingField, fmt.Errorf("category name required"))
	}
	if _, err := m.user(userID); err != nil {
		return nil, err
	}
	if c := m.category(userID, name); c != nil {
		return c, nil
	}
	c := &memCategory{Category: domain.Category{ID: uuid.NewString(), Name: name}, userID: userID, createdAt: time.Now().UTC()}
	m.categories[c.ID] = c
	return c, nil
}

func (m *MemoryStore) CreateOrGetCategory(_ context.Context, userID, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.upsertCategory(userID, name)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

func (m *MemoryStore) GetCategoryInstructions(_ context.Context, userID, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.category(userID, domain.NormalizeCategory(name)); c != nil {
		return c.Instructions, nil
	}
	return "", nil
}

func (m *MemoryStore) SetCategoryInstructions(_ context.Context, userID, name, instructions string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.upsertCategory(userID, name)
	if err != nil {
		return err
	}
	c.Instructions = instructions
	return nil
}

func (m *MemoryStore) listNames(userID string, keep func(c *memCategory) bool) []string {
	out := []string{}
	for _, c := range m.categories {
		if c.userID == userID && keep(c) {
			out = append(out, c.Name)
		}
	}
	sort.Strings(out)
	return out
}

func (m *MemoryStore) ListCategories(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listNames(userID, func(*memCategory) bool { return true }), nil
}

func (m *MemoryStore) ListCategoriesWithFiles(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listNames(userID, func(c *memCategory) bool {
		for _, f := range m.files {
			if f.CategoryID == c.ID && f.userID == userID {
				return true
			}
		}
		return false
	}), nil
}

func (m *MemoryStore) ListCategoriesWithMessages(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listNames(userID, func(c *memCategory) bool {
		for _, p := range m.prompts {
			if p.categoryID == c.ID && p.userID == userID {
				return true
			}
		}
		return false
	}), nil
}

func (m *MemoryStore) WritePrompt(_ context.Context, userID, category, prompt, response string, at time.Time) (PromptRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.upsertCategory(userID, category)
	if err != nil {
		return PromptRef{}, err
	}
	if at.IsZero() {
		at = time.Now()
	}
	p := &memPrompt{
		Message:    domain.Message{ID: uuid.NewString(), Prompt: prompt, Response: response, CreatedAt: at.UTC()},
		userID:     userID,
		categoryID: c.ID,
	}
	m.prompts[p.ID] = p
	return PromptRef{ID: p.ID, CategoryID: c.ID, Category: c.Name}, nil
}

func sortMessagesDesc(out []domain.Message) {
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
}

func (m *MemoryStore) GetMessages(_ context.Context, userID, category string) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Message{}
	c := m.category(userID, domain.NormalizeCategory(category))
	if c == nil {
		return out, nil
	}
	for _, p := range m.prompts {
		if p.userID == userID && p.categoryID == c.ID {
			out = append(out, p.Message)
		}
	}
	sortMessagesDesc(out)
	return out, nil
}

func (m *MemoryStore) GetMessagesByIDs(_ context.Context, userID string, ids []string) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Message{}
	for _, id := range ids {
		if p, ok := m.prompts[id]; ok && p.userID == userID {
			out = append(out, p.Message)
		}
	}
	sortMessagesDesc(out)
	return out, nil
}

func (m *MemoryStore) DeleteMessage(_ context.Context, userID, promptID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prompts[promptID]
	if !ok || p.userID != userID {
		return false, apierr.NotFound(fmt.Errorf("message not found"))
	}
	delete(m.prompts, promptID)
	for _, f := range m.files {
		if f.promptID == promptID {
			f.promptID = ""
		}
	}
	for _, other := range m.prompts {
		if other.categoryID == p.categoryID {
			return false, nil
		}
	}
	delete(m.categories, p.categoryID)
	return true, nil
}

func (m *MemoryStore) AttachFile(_ context.Context, userID, promptID, category string, in FileInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.category(userID, domain.NormalizeCategory(category))
	p, ok := m.prompts[promptID]
	if c == nil || !ok || p.userID != userID || p.categoryID != c.ID {
		return "", apierr.NotFound(fmt.Errorf("prompt %s not found in category %q", promptID, category))
	}
	at := in.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	f := &memFile{
		File: domain.File{
			ID:         uuid.NewString(),
			CategoryID: c.ID,
			Name:       in.Name,
			Summary:    in.Summary,
			Structure:  in.Structure,
			CreatedAt:  at.UTC(),
		},
		userID:   userID,
		promptID: promptID,
	}
	m.files[f.ID] = f
	return f.ID, nil
}

func (m *MemoryStore) GetFiles(_ context.Context, userID, category string) ([]domain.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.File{}
	c := m.category(userID, domain.NormalizeCategory(category))
	if c == nil {
		return out, nil
	}
	for _, f := range m.files {
		if f.userID == userID && f.CategoryID == c.ID {
			out = append(out, f.File)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) GetFile(_ context.Context, userID, fileID string) (*domain.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[fileID]
	if !ok || f.userID != userID {
		return nil, apierr.NotFound(fmt.Errorf("file not found"))
	}
	out := f.File
	return &out, nil
}

func (m *MemoryStore) DeleteFile(_ context.Context, userID, fileID string) (domain.FileRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[fileID]
	if !ok || f.userID != userID {
		return domain.FileRef{}, apierr.NotFound(fmt.Errorf("file not found"))
	}
	delete(m.files, fileID)
	return domain.FileRef{ID: f.ID, CategoryID: f.CategoryID, Name: f.Name}, nil
}

func (m *MemoryStore) UpsertUserTopics(_ context.Context, userID string, facts []domain.TopicFact) error {
	rows := topicRows(facts)
	if len(rows) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.user(userID); err != nil {
		return nil
	}
	for _, row := range rows {
		key := userID + "\x00" + row["name_norm"].(string)
		t, ok := m.topics[key]
		if !ok {
			t = &domain.UserTopic{Name: row["name"].(string), Params: map[string]string{}}
			m.topics[key] = t
		}
		for k, v := range row["props"].(map[string]any) {
			t.Params[strings.TrimPrefix(k, topicParamPrefix)] = v.(string)
		}
	}
	return nil
}

func (m *MemoryStore) SearchUserTopic(_ context.Context, userID, name string) (*domain.UserTopic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.topics[userID+"\x00"+normalizeTopic(name)]
	if !ok {
		return nil, nil
	}
	cp := &domain.UserTopic{Name: t.Name, Params: make(map[string]string, len(t.Params))}
	for k, v := range t.Params {
		cp.Params[k] = v
	}
	return cp, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*Neo4jStore)(nil)
)
