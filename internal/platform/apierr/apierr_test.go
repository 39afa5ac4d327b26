package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestFrom(t *testing.T) {
	base := New(http.StatusNotFound, "unknown_task", errors.New("no such task"))
	wrapped := fmt.Errorf("extract: %w", base)

	got := From(wrapped)
	if got.Status != http.StatusNotFound || got.Code != "unknown_task" {
		t.Fatalf("got=%+v", got)
	}
	if got.Error() != "no such task" {
		t.Fatalf("message=%q", got.Error())
	}

	plain := From(errors.New("boom"))
	if plain.Status != http.StatusInternalServerError || plain.Code != "internal" {
		t.Fatalf("plain=%+v", plain)
	}
}

func TestErrorMessageFallbacks(t *testing.T) {
	if got := (&Error{Code: "bad_request"}).Error(); got != "bad_request" {
		t.Fatalf("got=%q", got)
	}
	if got := (&Error{Status: 418}).Error(); got != "api error (418)" {
		t.Fatalf("got=%q", got)
	}
	var nilErr *Error
	if nilErr.Error() != "" {
		t.Fatalf("nil error should be empty")
	}
}
