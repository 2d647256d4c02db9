package ui

import "github.com/charmbracelet/lipgloss"

// 256-colour palette.
const (
	ColorAccent   = "154"
	ColorMuted    = "106"
	ColorText     = "255"
	ColorLabel    = "245"
	ColorBorder   = "238"
	ColorError    = "196"
	ColorWarning  = "220"
	ColorScoreLow = "244"
)

// Styles holds every lipgloss style the package renders with.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
	Active  lipgloss.Style
	Label   lipgloss.Style
	Border  lipgloss.Style
	Panel   lipgloss.Style
	Done    lipgloss.Style

	// Search output.
	Path    lipgloss.Style
	Score   lipgloss.Style
	Snippet lipgloss.Style
}

func DefaultStyles() Styles {
	fg := func(c string) lipgloss.Style { return lipgloss.NewStyle().Foreground(lipgloss.Color(c)) }
	return Styles{
		Header:  fg(ColorAccent).Bold(true),
		Success: fg(ColorAccent),
		Warning: fg(ColorWarning),
		Error:   fg(ColorError),
		Dim:     fg(ColorBorder),
		Active:  fg(ColorAccent).Bold(true),
		Label:   fg(ColorLabel),
		Border:  fg(ColorBorder),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorBorder)).
			Padding(0, 1),
		Done: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorAccent)).
			Padding(1, 2),
		Path:    fg(ColorText).Bold(true),
		Score:   fg(ColorMuted),
		Snippet: fg(ColorLabel).PaddingLeft(4),
	}
}

// NoColorStyles keeps layout (borders, padding) but drops colour.
func NoColorStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Header:  plain,
		Success: plain,
		Warning: plain,
		Error:   plain,
		Dim:     plain,
		Active:  plain,
		Label:   plain,
		Border:  plain,
		Panel:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
		Done:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(1, 2),
		Path:    plain,
		Score:   plain,
		Snippet: lipgloss.NewStyle().PaddingLeft(4),
	}
}

func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
