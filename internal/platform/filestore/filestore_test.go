package filestore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/yungbote/workbench-backend/internal/platform/apierr"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	s, err := New(t.TempDir(), log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestSecureName(t *testing.T) {
	cases := map[string]string{
		"../../etc/passwd":   "passwd",
		`..\..\boot.ini`:     "boot.ini",
		"notes.md":           "notes.md",
		"a\x00b.txt":         "ab.txt",
		"..hidden":           "hidden",
		"dir/sub/report.csv": "report.csv",
		"what?.txt":          "what_.txt",
	}
	for in, want := range cases {
		got, err := SecureName(in)
		if err != nil {
			t.Fatalf("SecureName(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("SecureName(%q) = %q, want %q", in, got, want)
		}
	}
	for _, bad := range []string{"", "..", "../", "/", " . "} {
		if _, err := SecureName(bad); err == nil {
			t.Fatalf("SecureName(%q): expected error", bad)
		}
	}
}

func TestSecureNameCapsLengthOnRuneBoundary(t *testing.T) {
	// Two-byte runes start on even offsets, so byte 255 falls mid-rune.
	got, err := SecureName("ab" + strings.Repeat("é", 128))
	if err != nil {
		t.Fatalf("SecureName: %v", err)
	}
	if !utf8.ValidString(got) || len(got) != 254 || !strings.HasSuffix(got, "é") {
		t.Fatalf("two-byte runes: len = %d valid = %v", len(got), utf8.ValidString(got))
	}

	got, _ = SecureName("a" + strings.Repeat("日", 100))
	if !utf8.ValidString(got) || len(got) != 253 {
		t.Fatalf("three-byte runes: len = %d valid = %v", len(got), utf8.ValidString(got))
	}
}

func TestStageConfinesTraversalToUserDir(t *testing.T) {
	s := newTestStore(t)
	name, err := s.Stage("user1", "../../etc/passwd", []byte("root:x"))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if name != "passwd" {
		t.Fatalf("stored as %q", name)
	}
	want := filepath.Join(s.Root(), "user1", "passwd")
	if b, err := os.ReadFile(want); err != nil || string(b) != "root:x" {
		t.Fatalf("expected file at %s: %v", want, err)
	}
	staged, err := s.ListStaged("user1")
	if err != nil || len(staged) != 1 || staged[0] != "passwd" {
		t.Fatalf("ListStaged: %v %v", staged, err)
	}
}

func TestStageRejectsBadOwner(t *testing.T) {
	s := newTestStore(t)
	for _, owner := range []string{"", "..", "a/b", `a\b`} {
		if _, err := s.Stage(owner, "x.txt", []byte("x")); !apierr.Is(err, apierr.CodeInvalidRequest) {
			t.Fatalf("owner %q: expected invalid_request, got %v", owner, err)
		}
	}
}

func TestPromoteMovesAndOverwrites(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Stage("u", "a.txt", []byte("new")); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(s.Root(), "cat1"), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.Root(), "cat1", "a.txt"), []byte("old"), 0o640); err != nil {
		t.Fatal(err)
	}

	moved, err := s.Promote("u", "cat1", []string{"a.txt", "missing.txt"})
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if len(moved) != 1 || moved[0] != "a.txt" {
		t.Fatalf("moved: %v", moved)
	}
	b, err := s.Read("cat1", "a.txt")
	if err != nil || string(b) != "new" {
		t.Fatalf("Read: %q %v", b, err)
	}
	staged, _ := s.ListStaged("u")
	if len(staged) != 0 {
		t.Fatalf("staging should be empty, got %v", staged)
	}
}

func TestReadMissingAndRemove(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Read("cat", "nope.txt"); !apierr.Is(err, apierr.CodeNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
	if err := s.Remove("cat", "nope.txt"); err != nil {
		t.Fatalf("Remove missing: %v", err)
	}
	if _, err := s.Stage("u", "big.bin", []byte(strings.Repeat("x", MaxFileBytes+1))); err == nil {
		t.Fatal("expected size limit error")
	}
}
