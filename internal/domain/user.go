package domain

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	EmailVerified bool      `json:"email_verified"`
	PromoApplied  bool      `json:"-"`
	Balance       float64   `json:"balance"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewUserID returns a short, URL-safe, opaque user id (22 chars).
func NewUserID() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
