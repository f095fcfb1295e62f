package reporter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/codewarden/internal/integrity"
	"github.com/ppiankov/codewarden/internal/models"
)

// GenerateProvenance writes a text summary of an integrity scan
func (r *TextReporter) GenerateProvenance(rep *integrity.ProvenanceReport) error {
	r.printHeader("codewarden Integrity Report")
	r.printf("Scanned: %s\n\n", formatTimestamp(rep.ScannedAt))

	r.printSection("Summary")
	r.printf("  Files Seen: %d\n", rep.TotalFiles)
	r.printf("  Monitored: %d (%d security-critical)\n", rep.MonitoredFiles, rep.CriticalFiles)
	r.printf("  Violations: %d (%d new)\n", rep.Violations, rep.NewViolations)
	r.printf("  Risk Score: %s\n\n", r.paint.render(severityStyle(riskLevel(rep.RiskScore)), fmt.Sprintf("%d/100", rep.RiskScore)))

	if len(rep.ByCategory) > 0 {
		r.printCounts("Monitored by Category", rep.ByCategory)
	}
	if len(rep.ByImportance) > 0 {
		r.printf("Monitored by Importance:\n")
		r.printSeverityCounts(rep.ByImportance)
		r.printf("\n")
	}

	if len(rep.Alerts) > 0 {
		r.printAlerts(rep.Alerts)
	}
	return nil
}

// GenerateAlerts lists recorded alerts, most severe first
func (r *TextReporter) GenerateAlerts(alerts []integrity.TamperingAlert) error {
	if len(alerts) == 0 {
		r.printf("No open alerts\n")
		return nil
	}
	r.printAlerts(alerts)
	return nil
}

func (r *TextReporter) printAlerts(alerts []integrity.TamperingAlert) {
	sorted := append([]integrity.TamperingAlert(nil), alerts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return models.SeverityRank(sorted[i].Severity) > models.SeverityRank(sorted[j].Severity)
	})

	r.printSection("Alerts")
	for _, a := range sorted {
		sev := r.paint.render(severityStyle(a.Severity), fmt.Sprintf("[%s]", strings.ToUpper(a.Severity)))
		r.printf("  %s %s %s\n", sev, a.Type, a.Filename)
		r.printf("     id: %s  detected: %s\n", a.ID, formatTimestamp(a.DetectedAt))
		r.printf("     %s\n", a.Description)
		for _, c := range a.Changes {
			r.printf("     %s: %s -> %s\n", c.Field, shorten(c.OldValue), shorten(c.NewValue))
		}
		if len(a.RecommendedActions) > 0 {
			r.printf("     %s\n", r.paint.render(styleMuted, a.RecommendedActions[0]))
		}
	}
	r.printf("\n")
}

// riskLevel buckets a 0-100 risk score into a severity for styling
func riskLevel(score int) string {
	switch {
	case score >= 75:
		return "critical"
	case score >= 50:
		return "high"
	case score >= 25:
		return "medium"
	default:
		return "low"
	}
}

func shorten(s string) string {
	if len(s) > 16 {
		return s[:12] + "..."
	}
	return s
}
