// Package console renders user-facing CLI messages with adaptive styling.
// Styling is applied only when stdout is a terminal; piped output stays
// plain so it remains grep-friendly.
package console

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Adaptive colors that read well on both light and dark backgrounds.
var (
	colorError   = lipgloss.AdaptiveColor{Light: "#D73737", Dark: "#FF5555"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#B45F06", Dark: "#FFB86C"}
	colorSuccess = lipgloss.AdaptiveColor{Light: "#107040", Dark: "#50FA7B"}
	colorInfo    = lipgloss.AdaptiveColor{Light: "#0B66A8", Dark: "#8BE9FD"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#6272A4", Dark: "#6272A4"}
)

var (
	errorStyle   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	infoStyle    = lipgloss.NewStyle().Foreground(colorInfo)
	headerStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
)

func isTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func applyStyle(style lipgloss.Style, text string) string {
	if isTTY() {
		return style.Render(text)
	}
	return text
}

// FormatErrorMessage formats an error message.
func FormatErrorMessage(message string) string {
	return applyStyle(errorStyle, "✗ ") + message
}

// FormatWarningMessage formats a warning message.
func FormatWarningMessage(message string) string {
	return applyStyle(warningStyle, "⚠ ") + message
}

// FormatSuccessMessage formats a success message.
func FormatSuccessMessage(message string) string {
	return applyStyle(successStyle, "✓ ") + message
}

// FormatInfoMessage formats an informational message.
func FormatInfoMessage(message string) string {
	return applyStyle(infoStyle, "ℹ ") + message
}

// FormatSectionHeader formats a section header for summary output.
func FormatSectionHeader(header string) string {
	return applyStyle(headerStyle, header)
}

// FormatListItem formats a list entry with a muted bullet.
func FormatListItem(item string) string {
	return applyStyle(mutedStyle, "  - ") + item
}

// FormatCountMessage formats a trailing count line.
func FormatCountMessage(message string) string {
	return applyStyle(mutedStyle, message)
}

// RenderKeyValues renders aligned key/value rows for list output.
func RenderKeyValues(rows [][2]string) string {
	width := 0
	for _, row := range rows {
		if len(row[0]) > width {
			width = len(row[0])
		}
	}
	var b strings.Builder
	for _, row := range rows {
		key := fmt.Sprintf("%-*s", width, row[0])
		b.WriteString(applyStyle(mutedStyle, key))
		b.WriteString("  ")
		b.WriteString(row[1])
		b.WriteString("\n")
	}
	return b.String()
}
