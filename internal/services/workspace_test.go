package services

import (
	"strings"
	"testing"

	"github.com/yungbote/workbench-backend/internal/data/graph"
	"github.com/yungbote/workbench-backend/internal/data/repos/testutil"
	"github.com/yungbote/workbench-backend/internal/domain"
	"github.com/yungbote/workbench-backend/internal/platform/apierr"
)

func TestCategoryInstructionsAreCappedAndLowercased(t *testing.T) {
	d := newDeps(t)
	svc := NewCategoryService(testutil.Logger(t), d.store)
	id, ctx := d.user(t, "a@x")

	long := strings.Repeat("é", domain.MaxCategoryInstructions+10)
	if err := svc.SetInstructions(ctx, "  Work ", long); err != nil {
		t.Fatalf("SetInstructions: %v", err)
	}
	got, _ := d.store.GetCategoryInstructions(ctx, id, "work")
	if n := len([]rune(got)); n != domain.MaxCategoryInstructions {
		t.Fatalf("instructions length %d", n)
	}
	if err := svc.SetInstructions(ctx, "  ", "x"); !apierr.Is(err, apierr.CodeMissingField) {
		t.Fatalf("empty name accepted: %v", err)
	}
	names, _ := svc.List(ctx)
	if len(names) != 1 || names[0] != "work" {
		t.Fatalf("List = %v", names)
	}
}

func TestMessageDeleteCascadesCategory(t *testing.T) {
	d := newDeps(t)
	msgs := NewMessageService(testutil.Logger(t), d.store)
	cats := NewCategoryService(testutil.Logger(t), d.store)
	id, ctx := d.user(t, "a@x")
	p1, _ := d.store.WritePrompt(ctx, id, "notes", "q1", "a1", testTime)
	p2, _ := d.store.WritePrompt(ctx, id, "notes", "q2", "a2", testTime)

	if gone, err := msgs.Delete(ctx, p1.ID); err != nil || gone {
		t.Fatalf("first delete gone=%v err=%v", gone, err)
	}
	if gone, err := msgs.Delete(ctx, p2.ID); err != nil || !gone {
		t.Fatalf("second delete gone=%v err=%v", gone, err)
	}
	names, _ := cats.List(ctx)
	for _, n := range names {
		if n == "notes" {
			t.Fatalf("category survived: %v", names)
		}
	}
}

func TestFileServiceReadAndDelete(t *testing.T) {
	d := newDeps(t)
	svc := NewFileService(testutil.Logger(t), d.store, d.files)
	id, ctx := d.user(t, "a@x")
	_, bctx := d.user(t, "b@x")

	stored, err := svc.Stage(ctx, "../../etc/passwd", []byte("root"))
	if err != nil || stored != "passwd" {
		t.Fatalf("Stage = %q, %v", stored, err)
	}
	if staged, _ := svc.Staged(ctx); len(staged) != 1 || staged[0] != "passwd" {
		t.Fatalf("Staged = %v", staged)
	}
	ref, _ := d.store.WritePrompt(ctx, id, "docs", "q", "a", testTime)
	if _, err := d.files.Promote(id, ref.CategoryID, []string{"passwd"}); err != nil {
		t.Fatalf("Promote: %v", err)
	}
	fid, _ := d.store.AttachFile(ctx, id, ref.ID, "docs", graph.FileInput{Name: "passwd", CreatedAt: testTime})

	if b, err := svc.Read(ctx, "Docs", "passwd"); err != nil || string(b) != "root" {
		t.Fatalf("Read = %q, %v", b, err)
	}
	if _, err := svc.Read(bctx, "docs", "passwd"); !apierr.Is(err, apierr.CodeNotFound) {
		t.Fatalf("other user read the file: %v", err)
	}
	if err := svc.Delete(bctx, fid); !apierr.Is(err, apierr.CodeNotFound) {
		t.Fatalf("other user deleted the file: %v", err)
	}
	if err := svc.Delete(ctx, fid); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := d.files.Read(ref.CategoryID, "passwd"); !apierr.Is(err, apierr.CodeNotFound) {
		t.Fatalf("bytes not removed: %v", err)
	}
}

func TestConfigServiceUpdate(t *testing.T) {
	d := newDeps(t)
	svc := NewConfigService(testutil.Logger(t), d.configs)
	_, ctx := d.user(t, "a@x")
	cfg, err := svc.Get(ctx)
	if err != nil || !cfg.AutoCategorise {
		t.Fatalf("defaults: %+v %v", cfg, err)
	}
	if cfg, err = svc.Update(ctx, "language", "de"); err != nil || cfg.Language != "de" {
		t.Fatalf("Update: %+v %v", cfg, err)
	}
	if _, err := svc.Update(ctx, "colour", "red"); !apierr.Is(err, apierr.CodeInvalidRequest) {
		t.Fatalf("unknown field: %v", err)
	}
	if _, err := svc.Update(ctx, "auto_categorise", "yes"); !apierr.Is(err, apierr.CodeTypeMismatch) {
		t.Fatalf("wrong type: %v", err)
	}
}
