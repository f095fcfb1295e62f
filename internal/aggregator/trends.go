package aggregator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/codewarden/internal/models"
)

// TrendAnalyzer analyzes trends across multiple runs
type TrendAnalyzer struct{}

// NewTrendAnalyzer creates a new trend analyzer
func NewTrendAnalyzer() *TrendAnalyzer {
	return &TrendAnalyzer{}
}

// DiffIssues splits issues into those only in current (new) and those
// only in previous (resolved), matched by id
func DiffIssues(current, previous []models.SecurityIssue) (added, resolved []models.SecurityIssue) {
	prevIDs := make(map[string]bool, len(previous))
	for _, issue := range previous {
		prevIDs[issue.ID] = true
	}
	currIDs := make(map[string]bool, len(current))
	for _, issue := range current {
		currIDs[issue.ID] = true
		if !prevIDs[issue.ID] {
			added = append(added, issue)
		}
	}
	for _, issue := range previous {
		if !currIDs[issue.ID] {
			resolved = append(resolved, issue)
		}
	}
	return added, resolved
}

// direction classifies a change in issue count
func direction(change int) string {
	switch {
	case change < 0:
		return "improving"
	case change > 0:
		return "degrading"
	default:
		return "stable"
	}
}

// percentChange is change relative to before. Growth from zero counts as
// 100%, and zero to zero as no change.
func percentChange(before, after int) float64 {
	switch {
	case before > 0:
		return float64(after-before) / float64(before) * 100.0
	case after > 0:
		return 100.0
	default:
		return 0
	}
}

// CalculateTrend compares current report with previous one
func (t *TrendAnalyzer) CalculateTrend(current, previous *models.Report) *models.Trend {
	if previous == nil {
		return nil
	}

	added, resolved := DiffIssues(current.Issues, previous.Issues)
	prev, curr := previous.Summary.TotalIssues, current.Summary.TotalIssues

	trend := &models.Trend{
		Direction:      direction(curr - prev),
		PreviousIssues: prev,
		CurrentIssues:  curr,
		ComparedWith:   previous.Timestamp,
		NewIssues:      len(added),
		ResolvedIssues: len(resolved),
	}
	// a first run with findings has no meaningful base to grow from
	if prev > 0 {
		trend.ChangePercent = percentChange(prev, curr)
	}
	return trend
}

// AnalyzeLastNRuns analyzes trends across runs ordered oldest first
func (t *TrendAnalyzer) AnalyzeLastNRuns(runs []*models.Report) *models.TrendSummary {
	if len(runs) == 0 {
		return nil
	}

	first, last := runs[0], runs[len(runs)-1]
	summary := &models.TrendSummary{
		RunsAnalyzed:   len(runs),
		TimeRange:      "Single run",
		IssueSparkline: make([]int, len(runs)),
		ScoreSparkline: make([]float64, len(runs)),
		ByTool:         make(map[string]*models.ToolTrend),
		BySeverity:     make(map[string]*models.ToolTrend),
	}
	for i, run := range runs {
		summary.IssueSparkline[i] = run.Summary.TotalIssues
		summary.ScoreSparkline[i] = run.Summary.ScorePercent
	}
	if len(runs) < 2 {
		return summary
	}

	days := int(last.Timestamp.Sub(first.Timestamp).Hours() / 24)
	summary.TimeRange = fmt.Sprintf("Last %d days", days)
	summary.DebtMinutes = last.Summary.TechnicalDebtMinutes - first.Summary.TechnicalDebtMinutes
	countTrends(summary.ByTool, first.Summary.IssuesByTool, last.Summary.IssuesByTool)
	countTrends(summary.BySeverity, first.Summary.IssuesBySeverity, last.Summary.IssuesBySeverity)
	return summary
}

// countTrends fills out with one entry per key present in either run
func countTrends(out map[string]*models.ToolTrend, before, after map[string]int) {
	for _, m := range []map[string]int{before, after} {
		for name := range m {
			if _, done := out[name]; done {
				continue
			}
			b, a := before[name], after[name]
			out[name] = &models.ToolTrend{
				Name:           name,
				CurrentIssues:  a,
				PreviousIssues: b,
				Change:         a - b,
				ChangePercent:  percentChange(b, a),
			}
		}
	}
}

// GenerateComparisonReport creates a detailed comparison between two runs
func (t *TrendAnalyzer) GenerateComparisonReport(current, previous *models.Report) string {
	if previous == nil {
		return "No previous run to compare with"
	}

	trend := t.CalculateTrend(current, previous)
	byTool := make(map[string]*models.ToolTrend)
	countTrends(byTool, previous.Summary.IssuesByTool, current.Summary.IssuesByTool)

	var b strings.Builder
	fmt.Fprintf(&b, "Comparison: %s vs %s\n\n", formatDate(current.Timestamp), formatDate(previous.Timestamp))
	fmt.Fprintf(&b, "Overall: %d → %d issues (%.1f%% %s)\n",
		trend.PreviousIssues, trend.CurrentIssues, trend.ChangePercent, trend.Direction)
	if current.Summary.ScorePercent != previous.Summary.ScorePercent {
		fmt.Fprintf(&b, "Health:  %.1f%% → %.1f%%\n", previous.Summary.ScorePercent, current.Summary.ScorePercent)
	}
	b.WriteString("\n")

	names := make([]string, 0, len(byTool))
	for name, tt := range byTool {
		if tt.Change != 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		tt := byTool[name]
		fmt.Fprintf(&b, "%s:\n  %d → %d (%+d)\n", name, tt.PreviousIssues, tt.CurrentIssues, tt.Change)
	}

	if trend.NewIssues > 0 {
		fmt.Fprintf(&b, "\nNew Issues: %d\n", trend.NewIssues)
	}
	if trend.ResolvedIssues > 0 {
		fmt.Fprintf(&b, "\nResolved Issues: %d\n", trend.ResolvedIssues)
	}
	return b.String()
}

func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// GetTrendIndicator returns an arrow for a trend direction
func GetTrendIndicator(dir string) string {
	switch dir {
	case "improving":
		return "↓"
	case "degrading":
		return "↑"
	case "stable":
		return "→"
	}
	return "?"
}
