// Package userconfig persists each user's workspace configuration as a YAML
// document at <root>/<user_id>.yaml.
package userconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/workbench-backend/internal/domain"
	"github.com/yungbote/workbench-backend/internal/platform/apierr"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
)

// Fields lists the keys accepted by Update.
var Fields = []string{"default_persona", "custom_instructions", "auto_categorise", "language"}

const maxCustomInstructions = 20000

type Store struct {
	root string
	log  *logger.Logger
	mu   sync.Mutex
}

func New(root string, log *logger.Logger) (*Store, error) {
	if log == nil {
		return nil, fmt.Errorf("userconfig: logger required")
	}
	abs, err := filepath.Abs(strings.TrimSpace(root))
	if err != nil {
		return nil, fmt.Errorf("userconfig: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("userconfig: create root: %w", err)
	}
	return &Store{root: abs, log: log.With("service", "UserConfigStore")}, nil
}

func (s *Store) path(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || userID != filepath.Base(userID) || strings.HasPrefix(userID, ".") {
		return "", apierr.BadRequest(apierr.CodeInvalidRequest, fmt.Errorf("invalid user id"))
	}
	return filepath.Join(s.root, userID+".yaml"), nil
}

// Load returns the stored configuration, or the defaults when none is stored.
func (s *Store) Load(userID string) (domain.UserConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(userID)
}

func (s *Store) loadLocked(userID string) (domain.UserConfig, error) {
	cfg := domain.DefaultUserConfig()
	p, err := s.path(userID)
	if err != nil {
		return cfg, err
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, apierr.Filesystem(err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		s.log.Warn("user config unreadable, using defaults", "user_id", userID, "error", err)
		return domain.DefaultUserConfig(), nil
	}
	return cfg, nil
}

func (s *Store) Save(userID string, cfg domain.UserConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(userID, cfg)
}

func (s *Store) saveLocked(userID string, cfg domain.UserConfig) error {
	p, err := s.path(userID)
	if err != nil {
		return err
	}
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return apierr.Filesystem(err)
	}
	tmp, err := os.CreateTemp(s.root, ".cfg-*")
	if err != nil {
		return apierr.Filesystem(err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return apierr.Filesystem(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return apierr.Filesystem(err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return apierr.Filesystem(err)
	}
	return nil
}

// Update sets one known field and returns the resulting configuration.
func (s *Store) Update(userID, field string, value any) (domain.UserConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, err := s.loadLocked(userID)
	if err != nil {
		return cfg, err
	}
	if err := apply(&cfg, field, value); err != nil {
		return cfg, err
	}
	if err := s.saveLocked(userID, cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func apply(cfg *domain.UserConfig, field string, value any) error {
	mismatch := func(want string) error {
		return apierr.BadRequest(apierr.CodeTypeMismatch, fmt.Errorf("field %q must be a %s", field, want))
	}
	switch strings.TrimSpace(field) {
	case "default_persona":
		v, ok := value.(string)
		if !ok {
			return mismatch("string")
		}
		if strings.TrimSpace(v) == "" {
			cfg.DefaultPersona = ""
			return nil
		}
		p, ok := domain.ParsePersona(v)
		if !ok {
			return apierr.BadRequest(apierr.CodeInvalidRequest, fmt.Errorf("unknown persona %q", v))
		}
		cfg.DefaultPersona = p.String()
	case "custom_instructions":
		v, ok := value.(string)
		if !ok {
			return mismatch("string")
		}
		if r := []rune(v); len(r) > maxCustomInstructions {
			v = string(r[:maxCustomInstructions])
		}
		cfg.CustomInstructions = v
	case "auto_categorise":
		v, ok := value.(bool)
		if !ok {
			return mismatch("bool")
		}
		cfg.AutoCategorise = v
	case "language":
		v, ok := value.(string)
		if !ok {
			return mismatch("string")
		}
		cfg.Language = strings.ToLower(strings.TrimSpace(v))
	default:
		return apierr.BadRequest(apierr.CodeInvalidRequest, fmt.Errorf("unknown config field %q", field))
	}
	return nil
}
