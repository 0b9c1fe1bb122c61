package furiosa

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestResponseErrorReducesHTMLPages(t *testing.T) {
	page := []byte(`<html><head><title>502 Bad Gateway</title></head><body><h1>502</h1><p>nginx</p></body></html>`)
	err := responseError("compile", "rid", http.StatusBadGateway, "text/html; charset=utf-8", page)
	if err.Message != "502 Bad Gateway" {
		t.Fatalf("Message = %q", err.Message)
	}
	if !errors.Is(err, ErrService) {
		t.Fatalf("expected ErrService")
	}
}

func TestResponseErrorFallsBackToBodySnippet(t *testing.T) {
	body := strings.Repeat("a", 2*maxMessageBytes)
	err := responseError("compile", "rid", http.StatusInternalServerError, "text/plain", []byte(body))
	if len(err.Message) != maxMessageBytes+len("...") {
		t.Fatalf("snippet length = %d", len(err.Message))
	}

	empty := responseError("compile", "rid", http.StatusTeapot, "", nil)
	if empty.Message != http.StatusText(http.StatusTeapot) {
		t.Fatalf("Message = %q", empty.Message)
	}
}

func TestErrorStringIncludesStatusAndCode(t *testing.T) {
	err := &Error{Kind: ErrService, Op: "compile", StatusCode: 400, Code: "InvalidModel", Message: "bad"}
	if got, want := err.Error(), "compile: service error (status 400, code InvalidModel): bad"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestParseTargetIR(t *testing.T) {
	ir, err := ParseTargetIR(" CDFG ")
	if err != nil || ir != TargetCDFG {
		t.Fatalf("ParseTargetIR = %q, %v", ir, err)
	}
	if _, err := ParseTargetIR("wasm"); !errors.Is(err, ErrInvalidTargetIR) || !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid target ir error, got %v", err)
	}
}

func TestKindName(t *testing.T) {
	if KindName(nil) != "" {
		t.Fatalf("nil error should have no kind")
	}
	if KindName(errors.New("plain")) != "unknown" {
		t.Fatalf("plain error should be unknown")
	}
	if KindName(configError("x", ErrNoCredentials)) != "config" {
		t.Fatalf("config error misclassified")
	}
}

func TestTruncateKeepsRuneBoundary(t *testing.T) {
	// Each "é" is two bytes, so byte maxMessageBytes falls inside a rune.
	msg := "x" + strings.Repeat("é", maxMessageBytes)
	got := truncate(msg)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated message is not valid UTF-8: %q", got[len(got)-8:])
	}
	if !strings.HasSuffix(got, "...") || len(got) > maxMessageBytes+len("...") {
		t.Fatalf("unexpected truncation, len %d", len(got))
	}
	if short := truncate("ok"); short != "ok" {
		t.Fatalf("short message changed: %q", short)
	}
}
