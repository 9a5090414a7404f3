// Package ui styles the few lines kwsub prints for humans.
//
// Styling is applied only when stdout is a terminal and NO_COLOR is unset;
// inside git hooks output is usually piped, and then text passes through
// unchanged.
package ui

import (
	"os"
	"sync/atomic"

	"charm.land/lipgloss/v2"
	"golang.org/x/term"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#5fd75f"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffaf00"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f")).Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5fafff"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8a8a8a"))
)

var colorEnabled atomic.Bool

func init() {
	colorEnabled.Store(detectColor())
}

func detectColor() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// SetColor forces styling on or off.
func SetColor(on bool) {
	colorEnabled.Store(on)
}

// ColorEnabled reports whether Render* functions emit escape sequences.
func ColorEnabled() bool {
	return colorEnabled.Load()
}

func render(style lipgloss.Style, s string) string {
	if !colorEnabled.Load() {
		return s
	}
	return style.Render(s)
}

func RenderPass(s string) string   { return render(passStyle, s) }
func RenderWarn(s string) string   { return render(warnStyle, s) }
func RenderFail(s string) string   { return render(failStyle, s) }
func RenderAccent(s string) string { return render(accentStyle, s) }
func RenderMuted(s string) string  { return render(mutedStyle, s) }
