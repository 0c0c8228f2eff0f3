// Package ui provides terminal styling helpers for command output.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	colorEnabled = os.Getenv("NO_COLOR") == "" &&
		termenv.EnvColorProfile() != termenv.Ascii

	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

func render(style lipgloss.Style, s string) string {
	if !colorEnabled {
		return s
	}
	return style.Render(s)
}

// RenderPass styles success markers.
func RenderPass(s string) string { return render(passStyle, s) }

// RenderFail styles failure markers.
func RenderFail(s string) string { return render(failStyle, s) }

// RenderWarn styles warnings.
func RenderWarn(s string) string { return render(warnStyle, s) }

// RenderAccent styles headings and highlights.
func RenderAccent(s string) string { return render(accentStyle, s) }

// RenderDim styles secondary detail.
func RenderDim(s string) string { return render(dimStyle, s) }
