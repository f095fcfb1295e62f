package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ppiankov/codewarden/internal/models"
	"github.com/ppiankov/codewarden/internal/storage"
	"github.com/spf13/cobra"
)

var explainFormat string

var explainScoreCmd = &cobra.Command{
	Use:   "explain-score",
	Short: "Show the health score formula step by step",
	Long: `Explain-score loads the latest stored report and shows exactly how
the health score was calculated:

  1. Files scanned in the run
  2. Distinct affected files (files with at least one issue), per tool
  3. The formula: score = (total - affected) / total * 100
  4. The health level thresholds

This command requires a previous run stored with --store.`,
	Args: cobra.NoArgs,
	RunE: runExplainScore,
}

func init() {
	explainScoreCmd.Flags().StringVar(&explainFormat, "format", "text",
		"output format: text or json")
}

// explainResult holds the structured explanation.
type explainResult struct {
	PerTool          []toolContribution `json:"per_tool"`
	FilesScanned     int                `json:"files_scanned"`
	TotalFiles       int                `json:"total_files"`
	AffectedList     []string           `json:"affected_files"`
	AffectedCount    int                `json:"affected_count"`
	WorstFiles       []fileImpact       `json:"worst_files"`
	PointsPerFile    float64            `json:"points_per_file"`
	Score            float64            `json:"score"`
	Health           string             `json:"health"`
	Formula          string             `json:"formula"`
	Thresholds       []threshold        `json:"thresholds"`
	IssuesBySeverity map[string]int     `json:"issues_by_severity"`
}

type toolContribution struct {
	Tool     string `json:"tool"`
	Issues   int    `json:"issues"`
	Affected int    `json:"affected"`
}

// fileImpact ranks one affected file by how much it holds the score down
type fileImpact struct {
	File   string `json:"file"`
	Issues int    `json:"issues"`
	Worst  string `json:"worst_severity"`
}

type threshold struct {
	Min   float64 `json:"min"`
	Label string  `json:"label"`
}

func runExplainScore(cmd *cobra.Command, args []string) error {
	storagePath, err := getStoragePath(cfg.StorageDir)
	if err != nil {
		return fmt.Errorf("failed to resolve storage path: %w", err)
	}

	store := storage.NewLocal(storagePath)
	report, err := store.GetLatestRun()
	if err != nil {
		return fmt.Errorf("no stored runs found. Run 'codewarden scan --store' first: %w", err)
	}

	result := buildExplanation(report)

	out := cmd.OutOrStdout()
	switch explainFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "text":
		return writeExplainText(out, result)
	default:
		return &ValidationError{Message: fmt.Sprintf("unsupported format: %s (use text or json)", explainFormat)}
	}
}

func buildExplanation(report *models.Report) explainResult {
	result := explainResult{
		Thresholds: []threshold{
			{Min: 95, Label: "excellent"},
			{Min: 85, Label: "good"},
			{Min: 70, Label: "warning"},
			{Min: 50, Label: "critical"},
			{Min: 0, Label: "severe"},
		},
		IssuesBySeverity: report.Summary.IssuesBySeverity,
		FilesScanned:     report.Summary.FilesScanned,
	}

	toolIssues := make(map[string]int)
	affectedByTool := make(map[string]map[string]bool)
	files := make(map[string]*fileImpact)
	for _, issue := range report.Issues {
		toolIssues[issue.ToolName]++
		if issue.Filename == "" {
			continue
		}
		if affectedByTool[issue.ToolName] == nil {
			affectedByTool[issue.ToolName] = make(map[string]bool)
		}
		affectedByTool[issue.ToolName][issue.Filename] = true

		fi := files[issue.Filename]
		if fi == nil {
			fi = &fileImpact{File: issue.Filename}
			files[issue.Filename] = fi
		}
		fi.Issues++
		if models.SeverityRank(issue.Severity) > models.SeverityRank(fi.Worst) {
			fi.Worst = issue.Severity
		}
	}

	for tool, n := range toolIssues {
		result.PerTool = append(result.PerTool, toolContribution{
			Tool:     tool,
			Issues:   n,
			Affected: len(affectedByTool[tool]),
		})
	}
	sort.Slice(result.PerTool, func(i, j int) bool {
		return result.PerTool[i].Tool < result.PerTool[j].Tool
	})

	result.AffectedList = make([]string, 0, len(files))
	for f, fi := range files {
		result.AffectedList = append(result.AffectedList, f)
		result.WorstFiles = append(result.WorstFiles, *fi)
	}
	sort.Strings(result.AffectedList)
	sort.Slice(result.WorstFiles, func(i, j int) bool {
		a, b := result.WorstFiles[i], result.WorstFiles[j]
		if ra, rb := models.SeverityRank(a.Worst), models.SeverityRank(b.Worst); ra != rb {
			return ra > rb
		}
		if a.Issues != b.Issues {
			return a.Issues > b.Issues
		}
		return a.File < b.File
	})

	// archive members and alerts for unscanned files can push affected
	// past files scanned; the aggregator widens the total to match
	total := max(report.Summary.FilesScanned, len(files))

	result.TotalFiles = total
	result.AffectedCount = len(files)
	result.Health = report.Summary.HealthScore
	result.Score = report.Summary.ScorePercent
	result.Formula = fmt.Sprintf("(%d - %d) / %d * 100 = %.1f",
		total, len(files), total, report.Summary.ScorePercent)
	if total > 0 {
		result.PointsPerFile = 100.0 / float64(total)
	}

	return result
}

func writeExplainText(w io.Writer, result explainResult) error {
	p := func(format string, args ...interface{}) {
		_, _ = fmt.Fprintf(w, format, args...)
	}

	p("Health Score Breakdown\n")
	p("======================\n\n")

	p("1. Files: %d scanned, %d counted\n", result.FilesScanned, result.TotalFiles)
	p("\n")

	p("2. Affected files: %d distinct\n", result.AffectedCount)
	for _, tc := range result.PerTool {
		p("   %-20s  %d issues in %d files\n", tc.Tool, tc.Issues, tc.Affected)
	}
	shown := result.WorstFiles
	if len(shown) > 20 {
		shown = shown[:15]
	}
	for _, fi := range shown {
		p("   - %s  %d issue(s), worst %s\n", fi.File, fi.Issues, fi.Worst)
	}
	if hidden := len(result.WorstFiles) - len(shown); hidden > 0 {
		p("   ... +%d more\n", hidden)
	}
	if result.AffectedCount > 0 {
		p("   Each file cleared raises the score by %.1f points\n", result.PointsPerFile)
	}
	p("\n")

	p("3. Formula:\n")
	p("   score = (total - affected) / total * 100\n")
	p("   score = %s\n\n", result.Formula)

	p("4. Thresholds:\n")
	for _, t := range result.Thresholds {
		marker := "  "
		if strings.EqualFold(result.Health, t.Label) {
			marker = "> "
		}
		p("   %s>= %.0f%%  %s\n", marker, t.Min, t.Label)
	}
	p("\n")

	if len(result.IssuesBySeverity) > 0 {
		p("5. Issues by severity:\n")
		for _, sev := range []string{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow} {
			if count, ok := result.IssuesBySeverity[sev]; ok {
				p("   %-10s  %d\n", sev, count)
			}
		}
		p("\n")
	}

	p("Result: %s (%.1f%%)\n", strings.ToUpper(result.Health), result.Score)
	return nil
}
