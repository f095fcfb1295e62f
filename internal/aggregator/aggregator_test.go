package aggregator

import (
	"testing"
	"time"

	"github.com/ppiankov/codewarden/internal/depscan"
	"github.com/ppiankov/codewarden/internal/engine"
	"github.com/ppiankov/codewarden/internal/integrity"
	"github.com/ppiankov/codewarden/internal/models"
)

func TestAggregatorAggregate(t *testing.T) {
	ts := time.Date(2026, 2, 15, 13, 0, 0, 0, time.UTC)
	agg := New(nil)
	agg.now = func() time.Time { return ts }

	vuln := scanJS(t, "db.js", "db.execute(\"SELECT * FROM users WHERE id = '\" + userId + \"'\")")
	clean := scanJS(t, "clean.js", "export const add = (a, b) => a + b;\n")

	in := Input{
		Target:       "./src",
		FilesScanned: 4,
		Scans:        []engine.ScanResult{vuln, clean},
		Provenance: &integrity.ProvenanceReport{
			TotalFiles: 4,
			Alerts: []integrity.TamperingAlert{{
				ID: "x", Filename: "config/.env", Type: integrity.AlertDeletion,
				Severity: "critical", FalsePositiveRisk: 5, Checksum: "0123456789abcdef",
			}},
		},
		Dependencies: []depscan.PackageReport{{
			Package:         depscan.PackageQuery{Name: "lodash", Version: "4.17.15", Ecosystem: depscan.EcosystemNPM, Manifest: "package.json"},
			Vulnerabilities: []depscan.Vulnerability{{ID: "GHSA-1", Severity: "medium"}},
		}},
	}

	report := agg.Aggregate(in)

	if !report.Timestamp.Equal(ts) || report.Target != "./src" {
		t.Errorf("header = %v %q", report.Timestamp, report.Target)
	}
	if report.Summary.TotalIssues != len(report.Issues) || report.Summary.TotalIssues < 3 {
		t.Fatalf("TotalIssues = %d, issues = %d", report.Summary.TotalIssues, len(report.Issues))
	}
	if report.Summary.IssuesByTool[string(models.ToolIntegrityMonitor)] != 1 ||
		report.Summary.IssuesByTool[string(models.ToolDependencyScanner)] != 1 {
		t.Errorf("IssuesByTool = %v", report.Summary.IssuesByTool)
	}
	if report.Summary.IssuesBySeverity[models.SeverityCritical] < 2 {
		t.Errorf("IssuesBySeverity = %v", report.Summary.IssuesBySeverity)
	}

	// db.js, config/.env and package.json are affected out of 4 files
	if report.Summary.ScorePercent != 25.0 || report.Summary.HealthScore != "severe" {
		t.Errorf("health = %s %.1f", report.Summary.HealthScore, report.Summary.ScorePercent)
	}

	if report.Summary.GatePassed {
		t.Error("a file with a vulnerability must fail the gate")
	}
	if len(report.Summary.GateFailedFiles) != 1 || report.Summary.GateFailedFiles[0] != "db.js" {
		t.Errorf("GateFailedFiles = %v", report.Summary.GateFailedFiles)
	}

	for i := 1; i < len(report.Issues); i++ {
		if models.SeverityRank(report.Issues[i-1].Severity) < models.SeverityRank(report.Issues[i].Severity) {
			t.Fatalf("issues not ordered by severity at %d", i)
		}
	}
	if len(report.Recommendations) == 0 || report.Recommendations[0].Severity != models.SeverityCritical {
		t.Errorf("recommendations = %+v", report.Recommendations)
	}
}

func TestAggregateEmpty(t *testing.T) {
	report := New(nil).Aggregate(Input{})
	if report.Summary.TotalIssues != 0 || report.Issues == nil || report.Recommendations == nil {
		t.Errorf("empty report = %+v", report)
	}
	if report.Summary.HealthScore != "unknown" || !report.Summary.GatePassed {
		t.Errorf("summary = %+v", report.Summary)
	}
}

func TestAggregateDedupe(t *testing.T) {
	res := scanJS(t, "a.js", "element.innerHTML = userInput;")
	report := New(nil).Aggregate(Input{FilesScanned: 1, Scans: []engine.ScanResult{res, res}})
	if report.Summary.TotalIssues != len(res.Issues) {
		t.Errorf("duplicate scans should collapse: %d vs %d", report.Summary.TotalIssues, len(res.Issues))
	}
}
