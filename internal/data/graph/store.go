// Package graph is the user-scoped property-graph store for users, categories,
// prompts, files and topics.
//
// Every method takes the owning user id explicitly and every query filters on it;
// no method can address a node without it.
package graph

import (
	"context"
	"strings"
	"time"

	"github.com/yungbote/workbench-backend/internal/domain"
)

type Store interface {
	// EnsureSchema creates constraints; failures are logged and ignored.
	EnsureSchema(ctx context.Context) error

	// CreateUser inserts u, or does nothing when u.ID exists. It reports whether a node was created.
	CreateUser(ctx context.Context, u *domain.User) (bool, error)
	// FindUserByEmail returns "" when no user has the email.
	FindUserByEmail(ctx context.Context, email string) (string, error)
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	GetPasswordHash(ctx context.Context, userID string) (string, error)
	// MarkEmailVerified reports whether this call flipped the flag.
	MarkEmailVerified(ctx context.Context, userID string) (bool, error)

	GetBalance(ctx context.Context, userID string) (float64, error)
	AddBalance(ctx context.Context, userID string, amount float64) (float64, error)
	// DebitBalance subtracts amount only if the balance covers it. ok is false otherwise.
	DebitBalance(ctx context.Context, userID string, amount float64) (balance float64, ok bool, err error)
	// DrainBalance subtracts min(balance, amount) and returns what was taken.
	DrainBalance(ctx context.Context, userID string, amount float64) (taken, balance float64, err error)
	// ApplyPromo credits amount once per user. applied is false on repeat calls.
	ApplyPromo(ctx context.Context, userID string, amount float64) (applied bool, balance float64, err error)

	CreateOrGetCategory(ctx context.Context, userID, name string) (string, error)
	GetCategoryInstructions(ctx context.Context, userID, name string) (string, error)
	SetCategoryInstructions(ctx context.Context, userID, name, instructions string) error
	ListCategories(ctx context.Context, userID string) ([]string, error)
	ListCategoriesWithFiles(ctx context.Context, userID string) ([]string, error)
	ListCategoriesWithMessages(ctx context.Context, userID string) ([]string, error)

	WritePrompt(ctx context.Context, userID, category, prompt, response string, at time.Time) (PromptRef, error)
	GetMessages(ctx context.Context, userID, category string) ([]domain.Message, error)
	GetMessagesByIDs(ctx context.Context, userID string, ids []string) ([]domain.Message, error)
	// DeleteMessage removes the prompt and, when it was the last one, its category.
	DeleteMessage(ctx context.Context, userID, promptID string) (categoryDeleted bool, err error)

	AttachFile(ctx context.Context, userID, promptID, category string, f FileInput) (string, error)
	GetFiles(ctx context.Context, userID, category string) ([]domain.File, error)
	GetFile(ctx context.Context, userID, fileID string) (*domain.File, error)
	// DeleteFile returns the removed file so its bytes can be removed too.
	DeleteFile(ctx context.Context, userID, fileID string) (domain.FileRef, error)

	UpsertUserTopics(ctx context.Context, userID string, facts []domain.TopicFact) error
	// SearchUserTopic returns nil when the user has no such topic.
	SearchUserTopic(ctx context.Context, userID, name string) (*domain.UserTopic, error)
}

// PromptRef identifies a newly written prompt and the category it landed in.
type PromptRef struct {
	ID         string
	CategoryID string
	Category   string
}

type FileInput struct {
	Name      string
	Summary   string
	Structure string
	CreatedAt time.Time
}

const topicParamPrefix = "p_"

// topicParamKey maps a free-form parameter name to a property key.
func topicParamKey(param string) string {
	param = strings.ToLower(strings.TrimSpace(param))
	var b strings.Builder
	b.WriteString(topicParamPrefix)
	for _, r := range param {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func normalizeTopic(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
