package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/codewarden/internal/models"
)

func diffIssue(id, tool, severity, category, file string, line int) models.SecurityIssue {
	return models.SecurityIssue{
		ID:       id,
		ToolName: tool,
		Severity: severity,
		Category: category,
		Filename: file,
		Line:     line,
		Message:  category + " in " + file,
	}
}

func TestComputeDiffNewIssues(t *testing.T) {
	baseline := &models.Report{
		Timestamp: time.Now().Add(-1 * time.Hour),
		Issues: []models.SecurityIssue{
			diffIssue("f-0000000000000001", "rule-engine", "critical", "sql_injection", "db.js", 3),
		},
	}
	current := &models.Report{
		Timestamp: time.Now(),
		Issues: []models.SecurityIssue{
			diffIssue("f-0000000000000001", "rule-engine", "critical", "sql_injection", "db.js", 3),
			diffIssue("f-0000000000000002", "archive-inspector", "low", "suspicious_file", "bundle.zip!a.tmp", 0),
		},
	}

	result := computeDiff(baseline, current)

	if result.Summary.NewCount != 1 {
		t.Errorf("expected 1 new issue, got %d", result.Summary.NewCount)
	}
	if result.Summary.ResolvedCount != 0 {
		t.Errorf("expected 0 resolved, got %d", result.Summary.ResolvedCount)
	}
	if result.Summary.Delta != 1 {
		t.Errorf("expected delta +1, got %d", result.Summary.Delta)
	}
	if result.NewIssues[0].ToolName != "archive-inspector" {
		t.Errorf("expected new issue from archive-inspector, got %s", result.NewIssues[0].ToolName)
	}
}

func TestComputeDiffResolvedIssues(t *testing.T) {
	baseline := &models.Report{
		Timestamp: time.Now().Add(-1 * time.Hour),
		Issues: []models.SecurityIssue{
			diffIssue("f-0000000000000001", "rule-engine", "critical", "sql_injection", "db.js", 3),
			diffIssue("f-0000000000000002", "rule-engine", "high", "xss", "view.js", 8),
		},
	}
	current := &models.Report{
		Timestamp: time.Now(),
		Issues: []models.SecurityIssue{
			diffIssue("f-0000000000000001", "rule-engine", "critical", "sql_injection", "db.js", 3),
		},
	}

	result := computeDiff(baseline, current)

	if result.Summary.ResolvedCount != 1 {
		t.Fatalf("expected 1 resolved, got %d", result.Summary.ResolvedCount)
	}
	if result.ResolvedIssues[0].Category != "xss" {
		t.Errorf("resolved category = %s, want xss", result.ResolvedIssues[0].Category)
	}
	if result.Summary.Delta != -1 {
		t.Errorf("expected delta -1, got %d", result.Summary.Delta)
	}
}

func TestComputeDiffMovedIssue(t *testing.T) {
	baseline := &models.Report{
		Issues: []models.SecurityIssue{
			diffIssue("f-00000000000000aa", "rule-engine", "high", "xss", "view.js", 8),
		},
	}
	current := &models.Report{
		Issues: []models.SecurityIssue{
			diffIssue("f-00000000000000bb", "rule-engine", "high", "xss", "view.js", 12),
		},
	}

	result := computeDiff(baseline, current)
	if result.Summary.NewCount != 0 || result.Summary.ResolvedCount != 0 {
		t.Errorf("new=%d resolved=%d, want 0 and 0", result.Summary.NewCount, result.Summary.ResolvedCount)
	}
	if result.Summary.MovedCount != 1 {
		t.Fatalf("moved = %d, want 1", result.Summary.MovedCount)
	}
	if m := result.MovedIssues[0]; m.FromLine != 8 || m.Issue.Line != 12 {
		t.Errorf("moved = %d -> %d, want 8 -> 12", m.FromLine, m.Issue.Line)
	}
	if len(result.Summary.FilesTouched) != 0 {
		t.Errorf("files touched = %v, want none", result.Summary.FilesTouched)
	}
}

func TestPairMovedDifferentFile(t *testing.T) {
	added := []models.SecurityIssue{diffIssue("b", "rule-engine", "high", "xss", "other.js", 8)}
	resolved := []models.SecurityIssue{diffIssue("a", "rule-engine", "high", "xss", "view.js", 8)}

	newOnly, goneOnly, moved := pairMoved(added, resolved)
	if len(moved) != 0 || len(newOnly) != 1 || len(goneOnly) != 1 {
		t.Errorf("new=%d gone=%d moved=%d, want 1 1 0", len(newOnly), len(goneOnly), len(moved))
	}
}

func TestPairMovedDuplicates(t *testing.T) {
	added := []models.SecurityIssue{
		diffIssue("c", "rule-engine", "high", "xss", "view.js", 20),
		diffIssue("d", "rule-engine", "high", "xss", "view.js", 30),
		diffIssue("e", "rule-engine", "high", "xss", "view.js", 40),
	}
	resolved := []models.SecurityIssue{
		diffIssue("a", "rule-engine", "high", "xss", "view.js", 2),
		diffIssue("b", "rule-engine", "high", "xss", "view.js", 3),
	}

	newOnly, goneOnly, moved := pairMoved(added, resolved)
	if len(moved) != 2 || len(newOnly) != 1 || len(goneOnly) != 0 {
		t.Fatalf("new=%d gone=%d moved=%d, want 1 0 2", len(newOnly), len(goneOnly), len(moved))
	}
	if moved[0].FromLine != 2 || moved[1].FromLine != 3 {
		t.Errorf("pairing order = %d, %d", moved[0].FromLine, moved[1].FromLine)
	}
	if newOnly[0].Line != 40 {
		t.Errorf("unpaired line = %d, want 40", newOnly[0].Line)
	}
}

func TestComputeDiffSummaryBreakdown(t *testing.T) {
	baseline := &models.Report{Summary: models.Summary{ScorePercent: 80}}
	current := &models.Report{
		Issues: []models.SecurityIssue{
			diffIssue("f-0000000000000001", "rule-engine", "critical", "sql_injection", "db.js", 3),
			diffIssue("f-0000000000000002", "rule-engine", "high", "xss", "view.js", 8),
			diffIssue("f-0000000000000003", "integrity-monitor", "critical", "integrity_violation", "app.js", 0),
		},
		Summary: models.Summary{ScorePercent: 50},
	}

	result := computeDiff(baseline, current)

	if result.Summary.NewBySeverity["critical"] != 2 {
		t.Errorf("new critical = %d, want 2", result.Summary.NewBySeverity["critical"])
	}
	if result.Summary.NewByTool["rule-engine"] != 2 {
		t.Errorf("new rule-engine = %d, want 2", result.Summary.NewByTool["rule-engine"])
	}
	if result.Summary.NewByCategory["integrity_violation"] != 1 {
		t.Errorf("new integrity_violation = %d, want 1", result.Summary.NewByCategory["integrity_violation"])
	}
	if result.Summary.ScoreDelta != -30 {
		t.Errorf("score delta = %.1f, want -30", result.Summary.ScoreDelta)
	}
	// critical issues sort first
	if result.NewIssues[0].Severity != "critical" || result.NewIssues[2].Severity != "high" {
		t.Errorf("new issues not sorted by severity: %+v", result.NewIssues)
	}
}

func TestComputeDiffEmptyReports(t *testing.T) {
	result := computeDiff(&models.Report{}, &models.Report{})
	if result.Summary.NewCount != 0 || result.Summary.ResolvedCount != 0 || result.Summary.Delta != 0 {
		t.Errorf("expected empty diff, got %+v", result.Summary)
	}
}

func TestPrintDiffText(t *testing.T) {
	baseline := &models.Report{
		Issues: []models.SecurityIssue{
			diffIssue("f-0000000000000002", "rule-engine", "high", "xss", "view.js", 8),
		},
	}
	current := &models.Report{
		Issues: []models.SecurityIssue{
			diffIssue("f-0000000000000001", "rule-engine", "critical", "sql_injection", "db.js", 3),
		},
	}

	var buf bytes.Buffer
	if err := printDiffText(&buf, computeDiff(baseline, current)); err != nil {
		t.Fatalf("printDiffText: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"codewarden Run Diff",
		"New: 1   Resolved: 1",
		"[CRITICAL] sql_injection in db.js",
		"  db.js\n",
		"(rule-engine)",
		"- xss in view.js",
		"CRITICAL: 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintDiffTextNoChanges(t *testing.T) {
	var buf bytes.Buffer
	if err := printDiffText(&buf, computeDiff(&models.Report{}, &models.Report{})); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No changes detected.") {
		t.Errorf("expected no-change message:\n%s", buf.String())
	}
}

func TestPrintDiffTextOnlyMoved(t *testing.T) {
	baseline := &models.Report{Issues: []models.SecurityIssue{diffIssue("a", "rule-engine", "high", "xss", "view.js", 8)}}
	current := &models.Report{Issues: []models.SecurityIssue{diffIssue("b", "rule-engine", "high", "xss", "view.js", 9)}}

	var buf bytes.Buffer
	if err := printDiffText(&buf, computeDiff(baseline, current)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Only positions changed.") {
		t.Errorf("expected moved-only message:\n%s", buf.String())
	}
}

func TestOutputDiffJSON(t *testing.T) {
	current := &models.Report{
		Issues: []models.SecurityIssue{
			diffIssue("f-0000000000000001", "rule-engine", "critical", "sql_injection", "db.js", 3),
		},
	}
	outFile := filepath.Join(t.TempDir(), "diff.json")
	if err := outputDiff(computeDiff(&models.Report{}, current), "json", outFile); err != nil {
		t.Fatalf("outputDiff: %v", err)
	}

	data, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatal(err)
	}
	var decoded DiffResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.Summary.NewCount != 1 || len(decoded.NewIssues) != 1 {
		t.Errorf("decoded summary = %+v", decoded.Summary)
	}
}

func TestOutputDiffUnsupportedFormat(t *testing.T) {
	err := outputDiff(computeDiff(&models.Report{}, &models.Report{}), "csv", filepath.Join(t.TempDir(), "x"))
	if _, ok := err.(*ValidationError); !ok {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestIssueLocation(t *testing.T) {
	tests := []struct {
		issue models.SecurityIssue
		want  string
	}{
		{models.SecurityIssue{Filename: "a.js", Line: 3, Column: 7}, "a.js:3:7"},
		{models.SecurityIssue{Filename: "a.js", Line: 3}, "a.js:3"},
		{models.SecurityIssue{Filename: "a.js"}, "a.js"},
	}
	for _, tt := range tests {
		if got := issueLocation(tt.issue); got != tt.want {
			t.Errorf("issueLocation(%+v) = %q, want %q", tt.issue, got, tt.want)
		}
	}
}

func TestLoadReportFromFile(t *testing.T) {
	dir := t.TempDir()

	data, _ := json.Marshal(minimalReport())
	good := writeFile(t, dir, "good.json", string(data))
	report, err := loadReportFromFile(good)
	if err != nil {
		t.Fatalf("loadReportFromFile: %v", err)
	}
	if len(report.Issues) != 1 {
		t.Errorf("issues = %d, want 1", len(report.Issues))
	}

	// schema problems are tolerated, parse failures are not
	loose := writeFile(t, dir, "loose.json", `{"timestamp":"2026-02-01T10:00:00Z","issues":[],"summary":{"total_issues":5}}`)
	if _, err := loadReportFromFile(loose); err != nil {
		t.Errorf("schema problems should not fail loading: %v", err)
	}

	broken := writeFile(t, dir, "broken.json", "{not json")
	if _, err := loadReportFromFile(broken); err == nil {
		t.Error("expected error for unparseable baseline")
	}

	if _, err := loadReportFromFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing baseline")
	}
}
