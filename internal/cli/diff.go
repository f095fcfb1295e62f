package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ppiankov/codewarden/internal/aggregator"
	"github.com/ppiankov/codewarden/internal/models"
	"github.com/ppiankov/codewarden/internal/storage"
	"github.com/ppiankov/codewarden/internal/validator"
	"github.com/spf13/cobra"
)

var (
	diffFormat   string
	diffOutput   string
	diffBaseline string
	diffFailNew  bool
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Show what changed between two stored runs",
	Long: `Compare the latest stored run against a baseline.

Issues are matched by their deterministic id. A finding whose id changed
only because it moved to another line in the same file (same tool, type
and message) is reported as moved, not as resolved plus new.

By default compares the two most recent stored runs. Use --baseline to
compare the latest run against a saved JSON report instead.

Exit codes:
  0  No new issues (or --fail-new not set)
  1  New issues detected (with --fail-new)

Example:
  codewarden diff
  codewarden diff --fail-new
  codewarden diff --baseline ./baseline.json --format json`,
	Args: cobra.NoArgs,
	RunE: runDiff,
}

func init() {
	diffCmd.Flags().StringVarP(&diffFormat, "format", "f", "text",
		"output format: text or json")
	diffCmd.Flags().StringVarP(&diffOutput, "output", "o", "",
		"write output to file instead of stdout")
	diffCmd.Flags().StringVar(&diffBaseline, "baseline", "",
		"path to baseline report JSON (default: previous stored run)")
	diffCmd.Flags().BoolVar(&diffFailNew, "fail-new", false,
		"exit 1 if new issues are found (for CI gating)")
}

// DiffResult is the structured output of a diff operation.
type DiffResult struct {
	Baseline       string                 `json:"baseline"`
	Current        string                 `json:"current"`
	NewIssues      []models.SecurityIssue `json:"new_issues"`
	ResolvedIssues []models.SecurityIssue `json:"resolved_issues"`
	MovedIssues    []MovedIssue           `json:"moved_issues"`
	Summary        DiffSummary            `json:"summary"`
}

// MovedIssue is a finding that kept its identity but changed position.
type MovedIssue struct {
	Issue    models.SecurityIssue `json:"issue"`
	FromLine int                  `json:"from_line"`
}

// DiffSummary holds aggregate counts for a diff.
type DiffSummary struct {
	BaselineTotal int            `json:"baseline_total"`
	CurrentTotal  int            `json:"current_total"`
	NewCount      int            `json:"new_count"`
	ResolvedCount int            `json:"resolved_count"`
	MovedCount    int            `json:"moved_count"`
	Delta         int            `json:"delta"` // positive = more issues
	ScoreDelta    float64        `json:"score_delta"`
	NewBySeverity map[string]int `json:"new_by_severity"`
	NewByTool     map[string]int `json:"new_by_tool"`
	NewByCategory map[string]int `json:"new_by_category"`
	FilesTouched  []string       `json:"files_touched"`
}

func runDiff(cmd *cobra.Command, args []string) error {
	storagePath, err := getStoragePath(cfg.StorageDir)
	if err != nil {
		logError("Failed to get storage path: %v", err)
		return err
	}
	store := storage.NewLocal(storagePath)

	current, baseline, err := diffPair(store)
	if err != nil || current == nil {
		return err
	}

	logVerbose("Comparing %s (current) vs %s (baseline)",
		current.Timestamp.Format("2006-01-02 15:04"),
		baseline.Timestamp.Format("2006-01-02 15:04"))

	result := computeDiff(baseline, current)
	if err := outputDiff(result, diffFormat, diffOutput); err != nil {
		return err
	}

	if diffFailNew && result.Summary.NewCount > 0 {
		return &ThresholdExceededError{IssueCount: result.Summary.NewCount}
	}
	return nil
}

// diffPair picks the two reports to compare. A nil current report with a
// nil error means there is not enough history and a hint was printed.
func diffPair(store *storage.LocalStorage) (current, baseline *models.Report, err error) {
	current, err = store.GetLatestRun()
	if err != nil {
		logError("No current run found: %v", err)
		fmt.Println("No stored runs found. Run 'codewarden scan --store' first.")
		return nil, nil, err
	}

	if diffBaseline != "" {
		baseline, err = loadReportFromFile(diffBaseline)
		if err != nil {
			logError("Failed to load baseline: %v", err)
			return nil, nil, &ValidationError{Message: err.Error()}
		}
		return current, baseline, nil
	}

	reports, err := store.GetLastNRuns(2)
	if err != nil || len(reports) < 2 {
		fmt.Println("Need at least 2 stored runs for diff.")
		fmt.Println("Run 'codewarden scan --store' to generate more reports.")
		return nil, nil, nil
	}
	return current, reports[0], nil
}

// movedKey identifies a finding independent of its position.
func movedKey(issue models.SecurityIssue) string {
	return strings.Join([]string{issue.ToolName, issue.Type, issue.Filename, issue.Message}, "\x00")
}

// pairMoved removes findings that only changed position from added and
// resolved and returns them as moves. Pairing is first come first served
// per key, so two identical findings that both moved pair in order.
func pairMoved(added, resolved []models.SecurityIssue) (newOnly, goneOnly []models.SecurityIssue, moved []MovedIssue) {
	gone := make(map[string][]int, len(resolved))
	for i, issue := range resolved {
		k := movedKey(issue)
		gone[k] = append(gone[k], i)
	}

	used := make(map[int]bool)
	for _, issue := range added {
		k := movedKey(issue)
		if idx := gone[k]; len(idx) > 0 {
			gone[k] = idx[1:]
			used[idx[0]] = true
			moved = append(moved, MovedIssue{Issue: issue, FromLine: resolved[idx[0]].Line})
			continue
		}
		newOnly = append(newOnly, issue)
	}
	for i, issue := range resolved {
		if !used[i] {
			goneOnly = append(goneOnly, issue)
		}
	}
	return newOnly, goneOnly, moved
}

// computeDiff calculates new, resolved and moved issues between baseline
// and current.
func computeDiff(baseline, current *models.Report) *DiffResult {
	added, resolved := aggregator.DiffIssues(current.Issues, baseline.Issues)
	added, resolved, moved := pairMoved(added, resolved)
	aggregator.SortIssues(added)
	aggregator.SortIssues(resolved)

	s := DiffSummary{
		BaselineTotal: len(baseline.Issues),
		CurrentTotal:  len(current.Issues),
		NewCount:      len(added),
		ResolvedCount: len(resolved),
		MovedCount:    len(moved),
		Delta:         len(current.Issues) - len(baseline.Issues),
		ScoreDelta:    current.Summary.ScorePercent - baseline.Summary.ScorePercent,
		NewBySeverity: map[string]int{},
		NewByTool:     map[string]int{},
		NewByCategory: map[string]int{},
	}

	files := map[string]bool{}
	for _, issue := range added {
		s.NewBySeverity[issue.Severity]++
		s.NewByTool[issue.ToolName]++
		s.NewByCategory[issue.Category]++
		files[issue.Filename] = true
	}
	for _, issue := range resolved {
		files[issue.Filename] = true
	}
	for f := range files {
		s.FilesTouched = append(s.FilesTouched, f)
	}
	sort.Strings(s.FilesTouched)

	return &DiffResult{
		Baseline:       baseline.Timestamp.Format("2006-01-02 15:04:05"),
		Current:        current.Timestamp.Format("2006-01-02 15:04:05"),
		NewIssues:      added,
		ResolvedIssues: resolved,
		MovedIssues:    moved,
		Summary:        s,
	}
}

// outputDiff renders the diff result to the chosen format.
func outputDiff(result *DiffResult, format, outputPath string) error {
	if format != "json" && format != "text" {
		return &ValidationError{Message: fmt.Sprintf("unsupported format: %s (use text or json)", format)}
	}

	writer, closeFn, err := openOutput(outputPath)
	if err != nil {
		return err
	}
	defer closeFn()

	if format == "text" {
		return printDiffText(writer, result)
	}
	enc := json.NewEncoder(writer)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func printDiffText(w io.Writer, r *DiffResult) error {
	p := func(format string, args ...interface{}) {
		_, _ = fmt.Fprintf(w, format, args...)
	}
	s := r.Summary

	p("codewarden Run Diff\n")
	p("===================\n\n")
	p("Baseline: %s\n", r.Baseline)
	p("Current:  %s\n\n", r.Current)

	p("Issues: %d -> %d (%+d)\n", s.BaselineTotal, s.CurrentTotal, s.Delta)
	p("Health: %+.1f points\n", s.ScoreDelta)
	p("New: %d   Resolved: %d   Moved: %d\n\n", s.NewCount, s.ResolvedCount, s.MovedCount)

	if s.NewCount == 0 && s.ResolvedCount == 0 {
		if s.MovedCount > 0 {
			p("Only positions changed.\n")
		} else {
			p("No changes detected.\n")
		}
		return nil
	}

	if len(r.NewIssues) > 0 {
		p("New Issues:\n")
		printIssuesByFile(p, r.NewIssues, func(issue models.SecurityIssue) string {
			return fmt.Sprintf("[%s] %s  (%s)", strings.ToUpper(issue.Severity), issue.Message, issue.ToolName)
		})
	}
	if len(r.ResolvedIssues) > 0 {
		p("Resolved Issues:\n")
		printIssuesByFile(p, r.ResolvedIssues, func(issue models.SecurityIssue) string {
			return "- " + issue.Message
		})
	}
	if len(r.MovedIssues) > 0 {
		p("Moved Issues:\n")
		for _, m := range r.MovedIssues {
			p("  %s  line %d -> %d\n", m.Issue.Filename, m.FromLine, m.Issue.Line)
		}
		p("\n")
	}

	var sevParts []string
	for _, sev := range []string{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow} {
		if n := s.NewBySeverity[sev]; n > 0 {
			sevParts = append(sevParts, fmt.Sprintf("%s: %d", strings.ToUpper(sev), n))
		}
	}
	if len(sevParts) > 0 {
		p("New by severity: %s\n", strings.Join(sevParts, "  "))
	}
	if len(s.NewByTool) > 0 {
		tools := make([]string, 0, len(s.NewByTool))
		for tool, n := range s.NewByTool {
			tools = append(tools, fmt.Sprintf("%s: %d", tool, n))
		}
		sort.Strings(tools)
		p("New by tool:     %s\n", strings.Join(tools, "  "))
	}

	if s.NewCount == 0 {
		p("\nNo new issues, only improvements.\n")
	}
	return nil
}

// printIssuesByFile lists issues under one heading per file, keeping the
// severity order of the input within each file.
func printIssuesByFile(p func(string, ...interface{}), issues []models.SecurityIssue, line func(models.SecurityIssue) string) {
	var order []string
	byFile := map[string][]models.SecurityIssue{}
	for _, issue := range issues {
		if _, ok := byFile[issue.Filename]; !ok {
			order = append(order, issue.Filename)
		}
		byFile[issue.Filename] = append(byFile[issue.Filename], issue)
	}
	for _, file := range order {
		p("  %s\n", file)
		for _, issue := range byFile[file] {
			pos := "-"
			if issue.Line > 0 {
				pos = issueLocation(issue)[len(issue.Filename)+1:]
			}
			p("    %-8s %s\n", pos, line(issue))
		}
	}
	p("\n")
}

// issueLocation formats file:line:col, omitting zero positions
func issueLocation(issue models.SecurityIssue) string {
	switch {
	case issue.Line > 0 && issue.Column > 0:
		return fmt.Sprintf("%s:%d:%d", issue.Filename, issue.Line, issue.Column)
	case issue.Line > 0:
		return fmt.Sprintf("%s:%d", issue.Filename, issue.Line)
	default:
		return issue.Filename
	}
}

// loadReportFromFile loads a Report from a JSON file path. Schema problems
// are logged; only unparseable files fail.
func loadReportFromFile(path string) (*models.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	report, err := validator.New().ValidateReport(data)
	if report == nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	if err != nil {
		logVerbose("Baseline %s has schema problems: %v", path, err)
	}
	return report, nil
}
