package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorCritical = lipgloss.Color("#FF0000")
	colorHigh     = lipgloss.Color("#FF8800")
	colorMedium   = lipgloss.Color("#FFFF00")
	colorLow      = lipgloss.Color("#00FF00")
	colorMuted    = lipgloss.Color("#888888")
	colorAccent   = lipgloss.Color("#2E8B57")
	colorBorder   = lipgloss.Color("#444444")
)

var (
	styleHeader = lipgloss.NewStyle().Bold(true).Padding(0, 1).
			BorderStyle(lipgloss.RoundedBorder()).BorderForeground(colorBorder)
	styleDetailPanel = lipgloss.NewStyle().Padding(0, 1).
				BorderStyle(lipgloss.NormalBorder()).BorderTop(true).BorderForeground(colorBorder)
	styleFooter       = lipgloss.NewStyle().Foreground(colorMuted).Padding(0, 1)
	styleSearchPrompt = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	styleSnippet      = lipgloss.NewStyle().Foreground(colorMuted).PaddingLeft(2)
	styleGateFailed   = lipgloss.NewStyle().Foreground(colorCritical).Bold(true)
	styleGatePassed   = lipgloss.NewStyle().Foreground(colorLow)
)

var severityStyles = map[string]lipgloss.Style{
	"critical": lipgloss.NewStyle().Foreground(colorCritical).Bold(true),
	"high":     lipgloss.NewStyle().Foreground(colorHigh).Bold(true),
	"medium":   lipgloss.NewStyle().Foreground(colorMedium),
	"low":      lipgloss.NewStyle().Foreground(colorLow),
}

// healthSeverity maps a health label onto the severity palette
var healthSeverity = map[string]string{
	"excellent": "low",
	"good":      "low",
	"warning":   "medium",
	"critical":  "high",
	"severe":    "critical",
}

func severityStyle(severity string) lipgloss.Style {
	if s, ok := severityStyles[severity]; ok {
		return s
	}
	return lipgloss.NewStyle()
}

func healthStyle(health string) lipgloss.Style {
	return severityStyle(healthSeverity[health])
}
