package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/yungbote/workbench-backend/internal/pkg/textutil"
	"github.com/yungbote/workbench-backend/internal/platform/envutil"
)

// Logger wraps a sugared zap logger. Structured fields pass through a scrubber
// that drops credentials, hashes user ids and reduces conversation text to
// its length.
type Logger struct {
	SugaredLogger *zap.SugaredLogger
	scrub         *scrubber
}

// New builds a logger for the given mode: "production" (JSON, info), "test"
// (no output), anything else development (console, debug). LOG_LEVEL
// overrides the level in both writing modes.
func New(mode string) (*Logger, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	scrub := scrubberFromEnv()
	if mode == "test" {
		return &Logger{SugaredLogger: zap.NewNop().Sugar(), scrub: scrub}, nil
	}

	cfg := zap.NewDevelopmentConfig()
	if mode == "prod" || mode == "production" {
		cfg = zap.NewProductionConfig()
	}
	if lvl := envutil.String("LOG_LEVEL", ""); lvl != "" {
		level, err := zap.ParseAtomicLevel(lvl)
		if err != nil {
			return nil, fmt.Errorf("logger: LOG_LEVEL: %w", err)
		}
		cfg.Level = level
	}
	zl, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: zl.Sugar(), scrub: scrub}, nil
}

func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, l.scrub.fields(keysAndValues)...)
}
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, l.scrub.fields(keysAndValues)...)
}
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, l.scrub.fields(keysAndValues)...)
}
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, l.scrub.fields(keysAndValues)...)
}
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(l.scrub.fields(keysAndValues)...), scrub: l.scrub}
}

const (
	redacted = "[REDACTED]"
	// maxValueBytes caps free-form string fields such as upstream error bodies.
	maxValueBytes = 2048
)

type fieldClass int

const (
	plain fieldClass = iota
	secret
	identity
	conversation
)

// secretFragments match anywhere in a key.
var secretFragments = []string{
	"token", "authorization", "password", "secret", "cookie",
	"api_key", "apikey", "csrf", "email",
}

// conversationKeys match whole keys only, so prompt_id and message_id stay readable.
var conversationKeys = map[string]bool{
	"prompt":        true,
	"response":      true,
	"content":       true,
	"delta":         true,
	"additional_qa": true,
	"summary":       true,
}

func classify(key string) fieldClass {
	for _, frag := range secretFragments {
		if strings.Contains(key, frag) {
			return secret
		}
	}
	if conversationKeys[key] {
		return conversation
	}
	if strings.Contains(key, "user_id") {
		return identity
	}
	return plain
}

// scrubber is configured once per root logger and shared by its children.
type scrubber struct {
	enabled bool
	salt    string
}

func scrubberFromEnv() *scrubber {
	return &scrubber{
		enabled: envutil.Bool("LOG_REDACTION_ENABLED", true),
		salt:    envutil.String("LOG_HASH_SALT", ""),
	}
}

func (s *scrubber) fields(kv []interface{}) []interface{} {
	if len(kv) == 0 || s == nil || !s.enabled {
		return kv
	}
	out := make([]interface{}, 0, len(kv))
	for i := 0; i < len(kv); i += 2 {
		if i == len(kv)-1 {
			out = append(out, kv[i])
			break
		}
		name := toString(kv[i])
		out = append(out, name, s.value(normKey(name), kv[i+1]))
	}
	return out
}

func (s *scrubber) value(key string, val interface{}) interface{} {
	if key == "" {
		return val
	}
	switch classify(key) {
	case secret:
		return redacted
	case identity:
		return s.hash(val)
	case conversation:
		return fmt.Sprintf("[%d chars]", utf8.RuneCountInString(toString(val)))
	}
	switch v := val.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, inner := range v {
			out[k] = s.value(normKey(k), inner)
		}
		return out
	case string:
		if looksLikeJWT(v) {
			return redacted
		}
		if len(v) > maxValueBytes {
			return textutil.Truncate(v, maxValueBytes) + "..."
		}
		return v
	default:
		return val
	}
}

// hash keeps one user's lines correlatable without logging the id itself.
func (s *scrubber) hash(val interface{}) string {
	raw := toString(val)
	if raw == "" {
		return ""
	}
	h := sha256.New()
	_, _ = h.Write([]byte(s.salt))
	_, _ = h.Write([]byte(raw))
	return "hash:" + hex.EncodeToString(h.Sum(nil))[:12]
}

func normKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

func looksLikeJWT(s string) bool {
	parts := strings.Split(s, ".")
	return len(parts) == 3 && len(parts[0]) > 10 && len(parts[1]) > 10
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
