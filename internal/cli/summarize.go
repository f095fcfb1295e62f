package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ppiankov/codewarden/internal/aggregator"
	"github.com/ppiankov/codewarden/internal/models"
	"github.com/ppiankov/codewarden/internal/reporter"
	"github.com/ppiankov/codewarden/internal/storage"
	"github.com/ppiankov/codewarden/internal/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	summarizeLastN   int
	summarizeCompare bool
	summarizeFormat  string
	summarizeTUI     bool
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Show summary and trends from stored runs",
	Long: `Analyze stored runs and show how findings changed over time.

This command displays:
- Latest run summary
- Issue sparkline across the last N runs
- Per-tool trend comparison
- Top recommendations of the latest run

Example:
  codewarden summarize
  codewarden summarize --last 7
  codewarden summarize --compare
  codewarden summarize --format json
  codewarden summarize --tui`,
	Args: cobra.NoArgs,
	RunE: runSummarize,
}

func init() {
	summarizeCmd.Flags().IntVarP(&summarizeLastN, "last", "n", 0,
		"number of runs to analyze (default from config)")
	summarizeCmd.Flags().BoolVarP(&summarizeCompare, "compare", "c", false,
		"compare latest run with previous")
	summarizeCmd.Flags().StringVarP(&summarizeFormat, "format", "f", "text",
		"output format: text or json")
	summarizeCmd.Flags().BoolVar(&summarizeTUI, "tui", false,
		"browse the issues of the latest run interactively")
}

func runSummarize(cmd *cobra.Command, args []string) error {
	if summarizeLastN == 0 {
		summarizeLastN = cfg.LastRuns
	}

	storagePath, err := getStoragePath(cfg.StorageDir)
	if err != nil {
		logError("Failed to get storage path: %v", err)
		return err
	}

	store := storage.NewLocal(storagePath)
	out := cmd.OutOrStdout()

	logVerbose("Loading runs from: %s", storagePath)

	runs, err := store.ListRuns()
	if err != nil {
		logError("Failed to list runs: %v", err)
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No stored runs found.")
		fmt.Fprintln(out, "Run 'codewarden scan <path> --store' to generate your first report.")
		return nil
	}

	logVerbose("Found %d stored runs", len(runs))

	if summarizeTUI {
		return runBrowser(store, summarizeLastN)
	}
	if summarizeCompare {
		return runComparisonReport(out, store)
	}
	return runTrendReport(out, store, summarizeLastN)
}

// runBrowser opens the issue browser on the latest run, with the
// sparkline of the last N runs in its header
func runBrowser(store *storage.LocalStorage, lastN int) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return &ValidationError{Message: "--tui needs an interactive terminal"}
	}

	reports, err := store.GetLastNRuns(lastN)
	if err != nil {
		logError("Failed to load runs: %v", err)
		return err
	}
	if len(reports) == 0 {
		return &ValidationError{Message: "no readable runs to browse"}
	}

	trend := aggregator.NewTrendAnalyzer().AnalyzeLastNRuns(reports)
	return tui.Run(reports[len(reports)-1], trend)
}

// runComparisonReport compares the latest run with the one before it
func runComparisonReport(out io.Writer, store *storage.LocalStorage) error {
	reports, err := store.GetLastNRuns(2)
	if err != nil {
		logError("Failed to load runs: %v", err)
		return err
	}

	if len(reports) < 2 {
		fmt.Fprintln(out, "Need at least 2 runs for comparison.")
		return nil
	}

	previous, current := reports[0], reports[1]
	logVerbose("Comparing %s vs %s", current.Timestamp, previous.Timestamp)

	_, err = fmt.Fprint(out, aggregator.NewTrendAnalyzer().GenerateComparisonReport(current, previous))
	return err
}

// runTrendReport summarizes the last N runs
func runTrendReport(out io.Writer, store *storage.LocalStorage, lastN int) error {
	reports, err := store.GetLastNRuns(lastN)
	if err != nil {
		logError("Failed to load runs: %v", err)
		return err
	}

	if len(reports) == 0 {
		fmt.Fprintln(out, "No readable runs found.")
		return nil
	}

	logVerbose("Analyzing trends across %d runs", len(reports))

	trendSummary := aggregator.NewTrendAnalyzer().AnalyzeLastNRuns(reports)
	if trendSummary == nil {
		fmt.Fprintln(out, "Unable to generate trend summary.")
		return nil
	}

	switch summarizeFormat {
	case "text":
		printTrendSummaryText(out, trendSummary, reports)
		return nil
	case "json":
		return reporter.NewJSONReporter(out, true).Encode(struct {
			Trends *models.TrendSummary `json:"trends"`
			Latest *models.Report       `json:"latest"`
		}{trendSummary, reports[len(reports)-1]})
	default:
		return &ValidationError{Message: fmt.Sprintf("unsupported format: %s (use text or json)", summarizeFormat)}
	}
}

// printTrendSummaryText prints trend summary in human-readable format
func printTrendSummaryText(out io.Writer, summary *models.TrendSummary, reports []*models.Report) {
	p := func(format string, args ...interface{}) {
		_, _ = fmt.Fprintf(out, format, args...)
	}

	p("codewarden Trend Summary\n")
	p("========================\n\n")

	p("Time Range: %s\n", summary.TimeRange)
	p("Runs Analyzed: %d\n\n", summary.RunsAnalyzed)

	latest := reports[len(reports)-1]
	p("Latest Run: %s\n", latest.Timestamp.Format("2006-01-02 15:04:05"))
	if latest.Target != "" {
		p("Target: %s\n", latest.Target)
	}
	p("Total Issues: %d\n", latest.Summary.TotalIssues)
	p("Health Score: %s (%.1f%%)", latest.Summary.HealthScore, latest.Summary.ScorePercent)

	if len(reports) >= 2 {
		trend := aggregator.NewTrendAnalyzer().CalculateTrend(latest, reports[len(reports)-2])
		p(" %s %s %.1f%%\n", aggregator.GetTrendIndicator(trend.Direction), trend.Direction, trend.ChangePercent)
	} else {
		p("\n")
	}
	p("\n")

	if len(summary.IssueSparkline) > 0 {
		p("Issue Trend (over time):\n  %s\n\n", sparkline(summary.IssueSparkline))
	}

	if len(summary.ByTool) > 0 {
		p("By Tool:\n")
		p("--------------------------------------------------\n")

		tools := make([]string, 0, len(summary.ByTool))
		for name := range summary.ByTool {
			tools = append(tools, name)
		}
		sort.Strings(tools)

		for _, name := range tools {
			tt := summary.ByTool[name]
			indicator := "→"
			if tt.Change < 0 {
				indicator = "↓"
			} else if tt.Change > 0 {
				indicator = "↑"
			}
			p("  %s: %d issues (%s %+d, %.1f%%)\n", name, tt.CurrentIssues, indicator, tt.Change, tt.ChangePercent)
		}
		p("\n")
	}

	var sevParts []string
	for _, sev := range []string{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow} {
		if tt := summary.BySeverity[sev]; tt != nil {
			sevParts = append(sevParts, fmt.Sprintf("%s %d (%+d)", sev, tt.CurrentIssues, tt.Change))
		}
	}
	if len(sevParts) > 0 {
		p("By Severity: %s\n", strings.Join(sevParts, ", "))
	}
	if summary.DebtMinutes != 0 {
		p("Technical Debt: %+d min\n", summary.DebtMinutes)
	}
	if len(sevParts) > 0 || summary.DebtMinutes != 0 {
		p("\n")
	}

	if len(latest.Recommendations) > 0 {
		p("Top Recommendations:\n")
		p("--------------------------------------------------\n")

		top := aggregator.NewRecommendationGenerator().GetTopRecommendations(latest.Recommendations, 5)
		for i, rec := range top {
			p("  %d. [%s] %s\n", i+1, rec.Severity, rec.Action)
		}
		p("\n")
	}
}

// sparkline renders values as block characters with the first and last value
func sparkline(values []int) string {
	if len(values) == 0 {
		return ""
	}

	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	line := make([]rune, 0, len(values))
	for _, v := range values {
		if hi == lo {
			line = append(line, chars[len(chars)/2])
			continue
		}
		idx := int(float64(v-lo) / float64(hi-lo) * float64(len(chars)-1))
		line = append(line, chars[idx])
	}

	return fmt.Sprintf("%s [%d → %d]", string(line), values[0], values[len(values)-1])
}
