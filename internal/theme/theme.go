package theme

import (
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme captures the lipgloss styles used for console output.
type Theme struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Failure lipgloss.Style
	Title   lipgloss.Style
	Count   lipgloss.Style
	Dim     lipgloss.Style
	Error   lipgloss.Style

	// BarStart and BarEnd are the gradient endpoints of the download bar.
	BarStart string
	BarEnd   string
}

// Default is the canonical name of the built-in default theme.
const Default = "default"

// Plain renders text without any styling.
const Plain = "plain"

var themes = map[string]Theme{
	Default: {
		Header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")),
		Success:  lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true),
		Failure:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		Title:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		Count:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Dim:      lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		BarStart: "#5A56E0",
		BarEnd:   "#EE6FF8",
	},
	"high_contrast": {
		Header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		Success:  lipgloss.NewStyle().Foreground(lipgloss.Color("118")).Bold(true),
		Failure:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true).Underline(true),
		Title:    lipgloss.NewStyle().Foreground(lipgloss.Color("15")),
		Count:    lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true),
		Dim:      lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		BarStart: "#00FFFF",
		BarEnd:   "#FFFF00",
	},
	Plain: {
		Header:   lipgloss.NewStyle(),
		Success:  lipgloss.NewStyle(),
		Failure:  lipgloss.NewStyle(),
		Title:    lipgloss.NewStyle(),
		Count:    lipgloss.NewStyle(),
		Dim:      lipgloss.NewStyle(),
		Error:    lipgloss.NewStyle(),
		BarStart: "#FFFFFF",
		BarEnd:   "#FFFFFF",
	},
}

// Names returns the sorted list of available theme names.
func Names() []string {
	names := make([]string, 0, len(themes))
	for name := range themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Valid reports whether name refers to a known theme.
func Valid(name string) bool {
	_, ok := themes[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// ForName returns the theme with the provided name, defaulting if unknown.
func ForName(name string) Theme {
	key := strings.ToLower(strings.TrimSpace(name))
	if theme, ok := themes[key]; ok {
		return theme
	}
	return themes[Default]
}
