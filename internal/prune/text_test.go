package prune

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestClipKeepsShortText(t *testing.T) {
	if got := Clip("hello", "body", Budget{}); got != "hello" {
		t.Fatalf("unexpected clip %q", got)
	}
}

func TestClipKeepsEdgesWithinBudget(t *testing.T) {
	unit := "汉😀"
	huge := "HEAD" + strings.Repeat(unit, DefaultMaxBytes) + "TAIL"
	got := Clip(huge, "response body", Budget{})

	if !strings.HasPrefix(got, DefaultMarker+" response body too long") {
		t.Fatalf("missing marker: %q", got[:60])
	}
	if !strings.Contains(got, "HEAD") || !strings.HasSuffix(got, "TAIL") {
		t.Fatalf("expected head and tail to survive")
	}
	if len(got) > DefaultMaxBytes {
		t.Fatalf("clipped text exceeds budget: %d bytes", len(got))
	}
	if !utf8.ValidString(got) {
		t.Fatalf("clipped text must remain valid UTF-8")
	}
}

func TestClipLineBudget(t *testing.T) {
	lines := make([]string, 100)
	for i := range lines {
		lines[i] = "line"
	}
	lines[0], lines[99] = "first", "last"
	got := Clip(strings.Join(lines, "\n"), "log", Budget{MaxLines: 20, MaxBytes: 1 << 20})
	if CountLines(got) > 20 {
		t.Fatalf("expected at most 20 lines, got %d", CountLines(got))
	}
	if !strings.Contains(got, "first") {
		t.Fatalf("expected the first line to survive: %q", got)
	}
}

func TestClipTinyBudgetFallsBackToMarker(t *testing.T) {
	got := Clip(strings.Repeat("x", 100), "body", Budget{MaxBytes: 1, MaxLines: 1, Marker: "[cut]"})
	if len(got) > 1 {
		t.Fatalf("unexpected result %q", got)
	}
}
