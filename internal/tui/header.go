package tui

import (
	"fmt"
	"strings"

	"github.com/ppiankov/codewarden/internal/models"
)

// headerHeight is the number of terminal lines the header occupies.
const headerHeight = 6

func renderHeader(report *models.Report, sparkline []int, width int) string {
	summary := report.Summary
	var b strings.Builder

	healthText := healthStyle(summary.HealthScore).Render(
		fmt.Sprintf("%s (%.0f%%)", strings.ToUpper(summary.HealthScore), summary.ScorePercent),
	)
	b.WriteString(fmt.Sprintf("codewarden  Health: %s", healthText))
	if report.Trend != nil {
		b.WriteString(fmt.Sprintf("  %s %.1f%%", trendIndicator(report.Trend.Direction), report.Trend.ChangePercent))
	}
	b.WriteString("\n")

	gate := styleGatePassed.Render("PASSED")
	if !summary.GatePassed {
		gate = styleGateFailed.Render(fmt.Sprintf("FAILED (%d file(s))", len(summary.GateFailedFiles)))
	}
	target := report.Target
	if target == "" {
		target = "-"
	}
	b.WriteString(fmt.Sprintf("Target: %s  Files: %d  Issues: %d  Gate: %s\n",
		target, summary.FilesScanned, summary.TotalIssues, gate))

	sevParts := make([]string, 0, 4)
	for _, sev := range []string{"critical", "high", "medium", "low"} {
		if count := summary.IssuesBySeverity[sev]; count > 0 {
			label := fmt.Sprintf("%s:%d", strings.ToUpper(sev[:1]), count)
			sevParts = append(sevParts, severityStyle(sev).Render(label))
		}
	}
	b.WriteString(strings.Join(sevParts, "  "))
	if summary.TechnicalDebtMinutes > 0 {
		b.WriteString(fmt.Sprintf("  Debt: %dm", summary.TechnicalDebtMinutes))
	}
	b.WriteString("\n")

	if len(sparkline) > 0 {
		b.WriteString("Trend: ")
		b.WriteString(renderSparkline(sparkline))
	}

	return styleHeader.Width(width).Render(b.String())
}

func trendIndicator(direction string) string {
	switch direction {
	case "improving":
		return "↓"
	case "degrading":
		return "↑"
	default:
		return "→"
	}
}

func renderSparkline(values []int) string {
	if len(values) == 0 {
		return ""
	}

	bars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo, hi = min(lo, v), max(hi, v)
	}

	var b strings.Builder
	for _, v := range values {
		if hi == lo {
			b.WriteRune(bars[len(bars)/2])
			continue
		}
		idx := int(float64(v-lo) / float64(hi-lo) * float64(len(bars)-1))
		b.WriteRune(bars[idx])
	}

	b.WriteString(fmt.Sprintf(" [%d→%d]", values[0], values[len(values)-1]))
	return b.String()
}
