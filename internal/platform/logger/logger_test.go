package logger

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestFieldsRedactSecrets(t *testing.T) {
	s := &scrubber{enabled: true}
	got := s.fields([]interface{}{
		"access_token", "abc",
		"email", "alice@x",
		"user_id", "u1",
		"route", "/messages",
		"X-CSRF-Token", "1",
	})
	if len(got) != 10 {
		t.Fatalf("unexpected length: %d", len(got))
	}
	if got[1] != redacted || got[3] != redacted || got[9] != redacted {
		t.Fatalf("expected token, email and csrf redacted, got %v", got)
	}
	if s, ok := got[5].(string); !ok || s == "u1" || len(s) != len("hash:")+12 {
		t.Fatalf("expected hashed user id, got %v", got[5])
	}
	if got[7] != "/messages" {
		t.Fatalf("expected route untouched, got %v", got[7])
	}
	if got[8] != "X-CSRF-Token" {
		t.Fatalf("key rewritten: %v", got[8])
	}
}

func TestConversationTextIsReducedToLength(t *testing.T) {
	s := &scrubber{enabled: true}
	got := s.fields([]interface{}{
		"prompt", "héllo",
		"prompt_id", "p-1",
		"message_id", "m-1",
		"response", "",
	})
	if got[1] != "[5 chars]" || got[7] != "[0 chars]" {
		t.Fatalf("conversation fields leaked: %v", got)
	}
	if got[3] != "p-1" || got[5] != "m-1" {
		t.Fatalf("ids should stay readable: %v", got)
	}
}

func TestNestedMapsAndLongValues(t *testing.T) {
	s := &scrubber{enabled: true}
	nested, ok := s.value("detail", map[string]interface{}{"Password": "pw", "kind": "x"}).(map[string]interface{})
	if !ok || nested["Password"] != redacted || nested["kind"] != "x" {
		t.Fatalf("nested = %v", nested)
	}

	long := "a" + strings.Repeat("日", maxValueBytes)
	v, _ := s.value("body", long).(string)
	if !utf8.ValidString(v) || len(v) > maxValueBytes+3 || !strings.HasSuffix(v, "...") {
		t.Fatalf("long value not capped cleanly: %d bytes", len(v))
	}
}

func TestJWTLookingStringsAreRedacted(t *testing.T) {
	s := &scrubber{enabled: true}
	jwt := "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ1c2VyLTEifQ.sig"
	if got := s.value("detail", jwt); got != redacted {
		t.Fatalf("expected jwt redacted, got %v", got)
	}
	if got := s.value("detail", "plain text"); got != "plain text" {
		t.Fatalf("expected plain text kept, got %v", got)
	}
}

func TestHashDependsOnSalt(t *testing.T) {
	a := (&scrubber{enabled: true}).hash("u1")
	b := (&scrubber{enabled: true, salt: "pepper"}).hash("u1")
	if a == b {
		t.Fatal("salt ignored")
	}
	if (&scrubber{}).hash(nil) != "" {
		t.Fatal("empty id should hash to empty")
	}
}

func TestRedactionCanBeDisabled(t *testing.T) {
	t.Setenv("LOG_REDACTION_ENABLED", "off")
	s := scrubberFromEnv()
	if got := s.fields([]interface{}{"password", "pw"}); got[1] != "pw" {
		t.Fatalf("expected passthrough, got %v", got)
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")
	if _, err := New("development"); err == nil {
		t.Fatal("expected error for unknown LOG_LEVEL")
	}
}

func TestNewTestModeIsSilent(t *testing.T) {
	log, err := New("test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.With("service", "x", "user_id", "u1").Info("hello", "k", "v")
	log.Sync()
}
