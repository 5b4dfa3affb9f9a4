package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestFromKeepsWrappedError(t *testing.T) {
	inner := BadRequest(CodeMissingField, errors.New("prompt is required"))
	wrapped := fmt.Errorf("validate: %w", inner)

	got := From(wrapped)
	if got != inner {
		t.Fatalf("expected the wrapped *Error back, got %#v", got)
	}
	if !Is(wrapped, CodeMissingField) {
		t.Fatalf("expected Is to see %s", CodeMissingField)
	}
}

func TestFromWrapsUnknownAsUnexpected(t *testing.T) {
	got := From(errors.New("boom"))
	if got.Status != http.StatusInternalServerError || got.Code != CodeUnexpected {
		t.Fatalf("unexpected mapping: %+v", got)
	}
	if got.Public() != http.StatusText(http.StatusInternalServerError) {
		t.Fatalf("internal cause leaked: %q", got.Public())
	}
}

func TestPublicShowsClientErrors(t *testing.T) {
	e := Unauthorized(CodeTokenExpired, errors.New("token expired"))
	if e.Public() != "token expired" {
		t.Fatalf("got %q", e.Public())
	}
	if From(nil) != nil {
		t.Fatal("From(nil) should be nil")
	}
}
