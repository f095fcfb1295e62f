package reporter

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/codewarden/internal/archive"
	"github.com/ppiankov/codewarden/internal/integrity"
	"github.com/ppiankov/codewarden/internal/models"
)

func assertContains(t *testing.T, output string, fragments ...string) {
	t.Helper()
	for _, frag := range fragments {
		if !strings.Contains(output, frag) {
			t.Errorf("expected output to contain %q\n%s", frag, output)
		}
	}
}

func TestTextReporterGenerate(t *testing.T) {
	var buf bytes.Buffer
	r := NewTextReporter(&buf, false)

	if err := r.Generate(sampleReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertContains(t, buf.String(),
		"codewarden Analysis Report",
		"Target: ./src",
		"Overall Summary",
		"Files Scanned: 4",
		"Total Issues: 1",
		"Technical Debt: 1h 35m",
		"Health Score: WARNING (75.0%)",
		"Quality Gate: FAILED (1 file(s))",
		"    - db.js",
		"Critical: 1",
		"rule-engine: 1",
		"[CRITICAL] SQL built by string concatenation",
		"db.js:3:5  CWE-89",
		"Recommended Actions",
		"1. [CRITICAL] Fix 1 security finding(s) in source code",
	)

	if strings.Contains(buf.String(), "\x1b[") {
		t.Error("color disabled output should not contain ANSI escapes")
	}
}

func TestTextReporterTopIssuesLimit(t *testing.T) {
	report := sampleReport()
	for i := 0; i < 4; i++ {
		report.Issues = append(report.Issues, models.SecurityIssue{
			Severity: "low",
			Message:  fmt.Sprintf("extra %d", i),
			Filename: "a.js",
		})
	}

	var buf bytes.Buffer
	r := NewTextReporter(&buf, false)
	r.SetTopIssues(2)
	if err := r.Generate(report); err != nil {
		t.Fatal(err)
	}

	assertContains(t, buf.String(), "extra 0", "... and 3 more")
	if strings.Contains(buf.String(), "extra 1") {
		t.Error("issue beyond limit was printed")
	}

	buf.Reset()
	r.SetTopIssues(0)
	if err := r.Generate(report); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "Top Issues") {
		t.Error("SetTopIssues(0) should hide the issue list")
	}
}

func TestTextReporterGenerateWithTrend(t *testing.T) {
	var buf bytes.Buffer
	r := NewTextReporter(&buf, false)

	report := sampleReport()
	report.Trend = &models.Trend{
		Direction:      "improving",
		ChangePercent:  -20.0,
		PreviousIssues: 2,
		CurrentIssues:  1,
		ComparedWith:   time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC),
		ResolvedIssues: 1,
		NewIssues:      0,
	}

	if err := r.Generate(report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	assertContains(t, output, "Trend Analysis", "improving", "Resolved: 1", "Compared With: 2026-02-14 10:00:00")
	if strings.Contains(output, "New Issues:") {
		t.Error("zero new issues should be omitted")
	}
}

func TestTextReporterGateAndEmpty(t *testing.T) {
	var buf bytes.Buffer
	r := NewTextReporter(&buf, false)

	report := &models.Report{
		Timestamp: time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC),
		Summary:   models.Summary{HealthScore: "excellent", ScorePercent: 100, GatePassed: true, FilesScanned: 3},
	}
	if err := r.Generate(report); err != nil {
		t.Fatal(err)
	}

	output := buf.String()
	assertContains(t, output, "Quality Gate: PASSED", "Health Score: EXCELLENT", "Technical Debt: 0m")
	if strings.Contains(output, "Recommended Actions") || strings.Contains(output, "Top Issues") {
		t.Error("empty report should not print issue sections")
	}
}

func TestTextReporterGenerateArchive(t *testing.T) {
	res := &archive.ZipAnalysisResult{
		Metadata: archive.Metadata{
			ArchiveName:    "bundle.zip",
			ArchiveSize:    2048,
			AnalyzedAt:     time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC),
			RuleSetVersion: "2024.1",
		},
		Structure: archive.FileStructure{TotalFiles: 3, TotalDirectories: 1, MaxDepth: 2},
		Threats: []archive.SecurityThreat{
			{Type: archive.ThreatPathTraversal, Severity: "critical", File: "../evil.sh", Description: "Entry escapes the extraction root"},
		},
		Manifests: []archive.ManifestFile{{Name: "package.json", Path: "app/package.json", Ecosystem: "npm"}},
		Compliance: []archive.ComplianceIssue{
			{Type: archive.ComplianceMissingLicense, Severity: "low", Description: "No license file found"},
		},
		Recommendations: []archive.Recommendation{{Priority: 1, Title: "Reject the archive", Description: "Path traversal entries"}},
	}

	var buf bytes.Buffer
	r := NewTextReporter(&buf, false)
	if err := r.GenerateArchive(res); err != nil {
		t.Fatal(err)
	}

	assertContains(t, buf.String(),
		"Archive: bundle.zip (2.0 KB)",
		"Files: 3  Directories: 1  Max Depth: 2",
		"Critical: 1",
		"[CRITICAL] path_traversal: ../evil.sh",
		"app/package.json (npm, manifest)",
		"[LOW] No license file found",
		"1. Reject the archive",
	)
	if strings.Contains(buf.String(), "Not decompressed") {
		t.Error("fully extracted archive reported as headers-only")
	}

	res.Metadata.HeadersOnly = true
	buf.Reset()
	if err := r.GenerateArchive(res); err != nil {
		t.Fatal(err)
	}
	assertContains(t, buf.String(), "Not decompressed: declared size exceeds the extraction limit")
}

func TestTextReporterGenerateProvenance(t *testing.T) {
	rep := &integrity.ProvenanceReport{
		TotalFiles:     5,
		MonitoredFiles: 4,
		CriticalFiles:  1,
		Violations:     2,
		NewViolations:  1,
		RiskScore:      35,
		ScannedAt:      time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC),
		ByCategory:     map[string]int{"source": 3, "security": 1},
		ByImportance:   map[string]int{"critical": 1, "medium": 3},
		Alerts: []integrity.TamperingAlert{
			{ID: "a1", Filename: "notes.js", Type: integrity.AlertSuspiciousPattern, Severity: "medium", Description: "eval call"},
			{
				ID: "a2", Filename: "auth.js", Type: integrity.AlertModification, Severity: "critical",
				Description:        "Content changed",
				Changes:            []integrity.FileChange{{Field: "checksum", OldValue: strings.Repeat("a", 64), NewValue: "short"}},
				RecommendedActions: []string{"Review the change"},
			},
		},
	}

	var buf bytes.Buffer
	r := NewTextReporter(&buf, false)
	if err := r.GenerateProvenance(rep); err != nil {
		t.Fatal(err)
	}

	output := buf.String()
	assertContains(t, output,
		"Monitored: 4 (1 security-critical)",
		"Violations: 2 (1 new)",
		"Risk Score: 35/100",
		"source: 3",
		"checksum: aaaaaaaaaaaa... -> short",
		"Review the change",
	)

	// critical alert is listed first
	if strings.Index(output, "auth.js") > strings.Index(output, "notes.js") {
		t.Error("alerts should be ordered by severity")
	}
}

func TestGenerateAlertsEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewTextReporter(&buf, false).GenerateAlerts(nil); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "No open alerts\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestColorEnabled(t *testing.T) {
	var buf bytes.Buffer
	if ColorEnabled(&buf) {
		t.Error("buffers are never terminals")
	}

	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if ColorEnabled(f) {
		t.Error("regular files are not terminals")
	}
}

func TestFormatHelpers(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{formatMinutes(0), "0m"},
		{formatMinutes(59), "59m"},
		{formatMinutes(125), "2h 5m"},
		{formatSize(512), "512 B"},
		{formatSize(1536), "1.5 KB"},
		{formatSize(3 << 20), "3.0 MB"},
		{riskLevel(80), "critical"},
		{riskLevel(10), "low"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
