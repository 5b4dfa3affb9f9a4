package domain

import (
	"strings"
	"time"
)

// MaxCategoryInstructions caps the free-text instructions block of a category.
const MaxCategoryInstructions = 50000

type Category struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Instructions string `json:"instructions,omitempty"`
}

type Message struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"time"`
}

type File struct {
	ID         string    `json:"id"`
	CategoryID string    `json:"category_id"`
	Name       string    `json:"name"`
	Summary    string    `json:"summary"`
	Structure  string    `json:"structure"`
	CreatedAt  time.Time `json:"time"`
}

// FileRef points at a file already promoted into a category.
type FileRef struct {
	ID         string `json:"id"`
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
}

// UserTopic is incidental knowledge extracted from prompts: parameter -> content.
type UserTopic struct {
	Name   string            `json:"name"`
	Params map[string]string `json:"params"`
}

// TopicFact is one extracted (topic, parameter, content) triple.
type TopicFact struct {
	Name      string `json:"name"`
	Parameter string `json:"parameter"`
	Content   string `json:"content"`
}

// NormalizeCategory lowercases and trims a category name, collapsing inner whitespace.
func NormalizeCategory(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
