package reporter

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/codewarden/internal/aggregator"
	"github.com/ppiankov/codewarden/internal/models"
)

// DefaultTopIssues is how many findings the text report lists
const DefaultTopIssues = 20

const divider = "--------------------------------------------------\n"

// TextReporter generates human-readable text reports
type TextReporter struct {
	writer    io.Writer
	paint     painter
	topIssues int
}

// NewTextReporter creates a new text reporter. Output is styled when
// color is true.
func NewTextReporter(writer io.Writer, color bool) *TextReporter {
	return &TextReporter{
		writer:    writer,
		paint:     painter{color: color},
		topIssues: DefaultTopIssues,
	}
}

// SetTopIssues limits the findings listed; 0 lists none
func (r *TextReporter) SetTopIssues(n int) {
	if n >= 0 {
		r.topIssues = n
	}
}

// Generate creates a text report from the aggregated data
func (r *TextReporter) Generate(report *models.Report) error {
	r.printHeader("codewarden Analysis Report")
	r.printf("Timestamp: %s\n", formatTimestamp(report.Timestamp))
	if report.Target != "" {
		r.printf("Target: %s\n", report.Target)
	}
	r.printf("\n")

	r.printOverallSummary(report)

	if len(report.Issues) > 0 && r.topIssues > 0 {
		r.printIssues(report.Issues)
	}

	if len(report.Recommendations) > 0 {
		r.printRecommendations(report.Recommendations)
	}

	if report.Trend != nil {
		r.printf("\n")
		r.printTrendInfo(report.Trend)
	}

	return nil
}

// printHeader prints the report header
func (r *TextReporter) printHeader(title string) {
	r.printf("%s\n", r.paint.render(styleTitle, title))
	r.printf("%s\n\n", strings.Repeat("=", len(title)))
}

func (r *TextReporter) printSection(title string) {
	r.printf("%s\n", r.paint.render(styleSection, title+":"))
	r.printf(divider)
}

// printOverallSummary prints the overall summary section
func (r *TextReporter) printOverallSummary(report *models.Report) {
	s := report.Summary

	r.printSection("Overall Summary")
	r.printf("  Files Scanned: %d\n", s.FilesScanned)
	r.printf("  Total Issues: %d\n", s.TotalIssues)
	r.printf("  Technical Debt: %s\n", formatMinutes(s.TechnicalDebtMinutes))
	r.printf("  Health Score: %s", r.paint.render(healthStyle(s.HealthScore), strings.ToUpper(s.HealthScore)))

	if s.ScorePercent > 0 {
		r.printf(" (%.1f%%)", s.ScorePercent)
	}

	if report.Trend != nil {
		indicator := aggregator.GetTrendIndicator(report.Trend.Direction)
		r.printf(" %s %.1f%% from previous run", indicator, report.Trend.ChangePercent)
	}
	r.printf("\n")

	if s.GatePassed {
		r.printf("  Quality Gate: PASSED\n")
	} else {
		r.printf("  Quality Gate: %s (%d file(s))\n", r.paint.render(severityStyle(models.SeverityCritical), "FAILED"), len(s.GateFailedFiles))
		for _, f := range s.GateFailedFiles {
			r.printf("    - %s\n", f)
		}
	}
	r.printf("\n")

	if len(s.IssuesBySeverity) > 0 {
		r.printf("Issues by Severity:\n")
		for _, sev := range []string{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow} {
			if n := s.IssuesBySeverity[sev]; n > 0 {
				r.printf("  %s: %d\n", r.paint.render(severityStyle(sev), titleCase(sev)), n)
			}
		}
		r.printf("\n")
	}

	r.printCounts("Issues by Tool", s.IssuesByTool)
	r.printCounts("Issues by Category", s.IssuesByCategory)
}

// printCounts prints a map sorted by count, then key
func (r *TextReporter) printCounts(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	r.printf("%s:\n", title)
	for _, k := range keys {
		r.printf("  %s: %d\n", k, counts[k])
	}
	r.printf("\n")
}

// printIssues lists the most severe findings; issues arrive sorted
func (r *TextReporter) printIssues(issues []models.SecurityIssue) {
	r.printSection("Top Issues")

	shown := issues
	if len(shown) > r.topIssues {
		shown = shown[:r.topIssues]
	}
	for _, issue := range shown {
		sev := r.paint.render(severityStyle(issue.Severity), fmt.Sprintf("[%s]", strings.ToUpper(issue.Severity)))
		r.printf("  %s %s\n", sev, issue.Message)
		r.printf("     %s", location(issue))
		if issue.CWEID != "" {
			r.printf("  %s", issue.CWEID)
		}
		r.printf("\n")
		if issue.CodeSnippet != "" {
			r.printf("     %s\n", r.paint.render(styleMuted, firstLine(issue.CodeSnippet)))
		}
	}
	if rest := len(issues) - len(shown); rest > 0 {
		r.printf("  ... and %d more\n", rest)
	}
	r.printf("\n")
}

// printRecommendations prints the recommendations section
func (r *TextReporter) printRecommendations(recommendations []models.Recommendation) {
	r.printSection("Recommended Actions")

	gen := aggregator.NewRecommendationGenerator()
	grouped := gen.GroupBySeverity(recommendations)

	n := 0
	for _, severity := range []string{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow} {
		for _, rec := range grouped[severity] {
			n++
			r.printf("  %d. %s %s\n", n, r.paint.render(severityStyle(severity), fmt.Sprintf("[%s]", strings.ToUpper(rec.Severity))), rec.Action)
			r.printf("     Impact: %s\n", rec.Impact)
		}
	}
}

// printTrendInfo prints trend information
func (r *TextReporter) printTrendInfo(trend *models.Trend) {
	r.printSection("Trend Analysis")
	r.printf("  Direction: %s %s\n", trend.Direction, aggregator.GetTrendIndicator(trend.Direction))
	r.printf("  Change: %d → %d issues (%.1f%%)\n",
		trend.PreviousIssues,
		trend.CurrentIssues,
		trend.ChangePercent)

	if trend.NewIssues > 0 {
		r.printf("  New Issues: %d\n", trend.NewIssues)
	}
	if trend.ResolvedIssues > 0 {
		r.printf("  Resolved: %d\n", trend.ResolvedIssues)
	}

	r.printf("  Compared With: %s\n", formatTimestamp(trend.ComparedWith))
}

// printf is a helper to write formatted output
func (r *TextReporter) printf(format string, args ...interface{}) {
	fmt.Fprintf(r.writer, format, args...)
}

func location(issue models.SecurityIssue) string {
	if issue.Line > 0 {
		return fmt.Sprintf("%s:%d:%d", issue.Filename, issue.Line, issue.Column)
	}
	return issue.Filename
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// formatMinutes renders debt as "2h 5m" or "45m"
func formatMinutes(m int) string {
	if m < 60 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %dm", m/60, m%60)
}

// formatTimestamp formats a timestamp for display
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}
