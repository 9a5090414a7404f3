package ui

import (
	"strings"
	"testing"
)

func TestRenderPlainWhenColorDisabled(t *testing.T) {
	prev := ColorEnabled()
	t.Cleanup(func() { SetColor(prev) })
	SetColor(false)

	for name, fn := range map[string]func(string) string{
		"pass":   RenderPass,
		"warn":   RenderWarn,
		"fail":   RenderFail,
		"accent": RenderAccent,
		"muted":  RenderMuted,
	} {
		if got := fn("✓ done"); got != "✓ done" {
			t.Errorf("%s: got %q, want plain text", name, got)
		}
	}
}

func TestRenderStyledWhenColorEnabled(t *testing.T) {
	prev := ColorEnabled()
	t.Cleanup(func() { SetColor(prev) })
	SetColor(true)

	got := RenderFail("boom")
	if !strings.Contains(got, "boom") {
		t.Fatalf("styled output lost its text: %q", got)
	}
	if !strings.Contains(got, "\x1b[") {
		t.Fatalf("expected ANSI escape sequences, got %q", got)
	}
}

func TestNoColorDisablesDetection(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	if detectColor() {
		t.Fatal("NO_COLOR must disable styling")
	}
}
