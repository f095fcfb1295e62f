package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/codewarden/internal/aggregator"
	"github.com/ppiankov/codewarden/internal/models"
	"github.com/ppiankov/codewarden/internal/storage"
)

// --- sparkline tests ---

func TestSparklineEmpty(t *testing.T) {
	if got := sparkline(nil); got != "" {
		t.Errorf("sparkline(nil) = %q, want empty", got)
	}
}

func TestSparklineSingleValue(t *testing.T) {
	if got := sparkline([]int{5}); got != "▅ [5 → 5]" {
		t.Errorf("sparkline([5]) = %q", got)
	}
}

func TestSparklineRange(t *testing.T) {
	if got := sparkline([]int{0, 7}); got != "▁█ [0 → 7]" {
		t.Errorf("sparkline([0 7]) = %q", got)
	}
	if got := sparkline([]int{7, 0}); got != "█▁ [7 → 0]" {
		t.Errorf("sparkline([7 0]) = %q", got)
	}
}

func TestSparklineAllSame(t *testing.T) {
	got := sparkline([]int{3, 3, 3})
	if !strings.HasPrefix(got, "▅▅▅") {
		t.Errorf("all-equal values should render mid blocks, got %q", got)
	}
}

// --- printTrendSummaryText tests ---

func trendReports() []*models.Report {
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	return []*models.Report{
		{
			Timestamp: base,
			Target:    "./src",
			Summary: models.Summary{
				TotalIssues:          10,
				IssuesByTool:         map[string]int{"rule-engine": 8, "integrity-monitor": 2},
				IssuesBySeverity:     map[string]int{"critical": 3, "high": 7},
				TechnicalDebtMinutes: 120,
				HealthScore:          "warning",
				ScorePercent:         72,
			},
		},
		{
			Timestamp: base.Add(72 * time.Hour),
			Target:    "./src",
			Summary: models.Summary{
				TotalIssues:          6,
				IssuesByTool:         map[string]int{"rule-engine": 6},
				IssuesBySeverity:     map[string]int{"high": 6},
				TechnicalDebtMinutes: 90,
				HealthScore:          "good",
				ScorePercent:         88,
			},
			Recommendations: []models.Recommendation{
				{Severity: models.SeverityHigh, Action: "Parameterize SQL in db.js", Count: 3},
			},
		},
	}
}

func TestPrintTrendSummaryTextBasic(t *testing.T) {
	reports := trendReports()
	summary := aggregator.NewTrendAnalyzer().AnalyzeLastNRuns(reports)

	var buf bytes.Buffer
	printTrendSummaryText(&buf, summary, reports)
	out := buf.String()

	for _, want := range []string{
		"codewarden Trend Summary",
		"Time Range: Last 3 days",
		"Runs Analyzed: 2",
		"Target: ./src",
		"Total Issues: 6",
		"Health Score: good (88.0%) ↓ improving",
		"[10 → 6]",
		"rule-engine: 6 issues (↓ -2, -25.0%)",
		"integrity-monitor: 0 issues (↓ -2, -100.0%)",
		"By Severity: critical 0 (-3), high 6 (-1)",
		"Technical Debt: -30 min",
		"Parameterize SQL in db.js",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintTrendSummaryTextSingleRun(t *testing.T) {
	reports := trendReports()[:1]
	summary := aggregator.NewTrendAnalyzer().AnalyzeLastNRuns(reports)

	var buf bytes.Buffer
	printTrendSummaryText(&buf, summary, reports)
	out := buf.String()

	if !strings.Contains(out, "Single run") {
		t.Errorf("expected single-run time range:\n%s", out)
	}
	if strings.Contains(out, "By Tool:") {
		t.Errorf("single run should have no per-tool trend:\n%s", out)
	}
}

func TestPrintTrendSummaryTextDegradation(t *testing.T) {
	reports := trendReports()
	reports[0], reports[1] = reports[1], reports[0]
	reports[0].Timestamp, reports[1].Timestamp = reports[1].Timestamp, reports[0].Timestamp
	summary := aggregator.NewTrendAnalyzer().AnalyzeLastNRuns(reports)

	var buf bytes.Buffer
	printTrendSummaryText(&buf, summary, reports)
	out := buf.String()

	if !strings.Contains(out, "↑ degrading") {
		t.Errorf("expected degrading indicator:\n%s", out)
	}
	if !strings.Contains(out, "integrity-monitor: 2 issues (↑ +2, 100.0%)") {
		t.Errorf("expected new tool trend:\n%s", out)
	}
}

// --- stored run reports ---

func storeReports(t *testing.T, dir string, reports []*models.Report) *storage.LocalStorage {
	t.Helper()
	store := storage.NewLocal(dir)
	if err := store.EnsureDirectoryExists(); err != nil {
		t.Fatal(err)
	}
	for _, r := range reports {
		if err := store.SaveReport(r); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func TestRunTrendReportJSON(t *testing.T) {
	store := storeReports(t, t.TempDir(), trendReports())

	old := summarizeFormat
	summarizeFormat = "json"
	t.Cleanup(func() { summarizeFormat = old })

	var buf bytes.Buffer
	if err := runTrendReport(&buf, store, 5); err != nil {
		t.Fatalf("runTrendReport: %v", err)
	}

	var decoded struct {
		Trends models.TrendSummary `json:"trends"`
		Latest models.Report       `json:"latest"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.Trends.RunsAnalyzed != 2 {
		t.Errorf("runs analyzed = %d, want 2", decoded.Trends.RunsAnalyzed)
	}
	if decoded.Latest.Summary.TotalIssues != 6 {
		t.Errorf("latest total = %d, want 6", decoded.Latest.Summary.TotalIssues)
	}
}

func TestRunComparisonReport(t *testing.T) {
	store := storeReports(t, t.TempDir(), trendReports())

	var buf bytes.Buffer
	if err := runComparisonReport(&buf, store); err != nil {
		t.Fatalf("runComparisonReport: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Overall: 10 → 6 issues") {
		t.Errorf("unexpected comparison:\n%s", out)
	}
}

func TestRunComparisonReportSingleRun(t *testing.T) {
	store := storeReports(t, t.TempDir(), trendReports()[:1])

	var buf bytes.Buffer
	if err := runComparisonReport(&buf, store); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Need at least 2 runs") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestRunBrowserNeedsTerminal(t *testing.T) {
	store := storeReports(t, t.TempDir(), trendReports())

	var err error
	captureStdout(t, func() { err = runBrowser(store, 5) })
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
