package aggregator

import (
	"strings"
	"testing"

	"github.com/ppiankov/codewarden/internal/archive"
	"github.com/ppiankov/codewarden/internal/depscan"
	"github.com/ppiankov/codewarden/internal/engine"
	"github.com/ppiankov/codewarden/internal/integrity"
	"github.com/ppiankov/codewarden/internal/models"
)

func scanJS(t *testing.T, filename, content string) engine.ScanResult {
	t.Helper()
	return engine.New(nil, engine.Options{}).Scan(content, filename, "javascript")
}

func issueByRule(t *testing.T, res engine.ScanResult, ruleID string) engine.DetectedIssue {
	t.Helper()
	for _, d := range res.Issues {
		if d.RuleID == ruleID {
			return d
		}
	}
	t.Fatalf("no %s issue in %+v", ruleID, res.Issues)
	return engine.DetectedIssue{}
}

func TestFromDetectedIssueSQLInjection(t *testing.T) {
	res := scanJS(t, "db.js", "// users\ndb.execute(\"SELECT * FROM users WHERE id = '\" + userId + \"'\")\n")
	d := issueByRule(t, res, "sql-injection")

	n := NewNormalizer(nil)
	issue := n.FromDetectedIssue(res.Filename, d)

	if issue.ToolName != string(models.ToolRuleEngine) {
		t.Errorf("ToolName = %s", issue.ToolName)
	}
	if issue.Type != string(models.TypeVulnerability) || issue.Severity != models.SeverityCritical {
		t.Errorf("type/severity = %s/%s", issue.Type, issue.Severity)
	}
	if issue.Line != 2 || issue.Filename != "db.js" {
		t.Errorf("location = %s:%d", issue.Filename, issue.Line)
	}
	if issue.CWEID != "CWE-89" || len(issue.References) != 1 || !strings.HasSuffix(issue.References[0], "/89.html") {
		t.Errorf("cwe = %s refs = %v", issue.CWEID, issue.References)
	}
	if issue.Remediation.Priority != 1 || issue.Remediation.Description == "" {
		t.Errorf("remediation = %+v", issue.Remediation)
	}
	if issue.Confidence < 0 || issue.Confidence > 100 {
		t.Errorf("confidence out of range: %d", issue.Confidence)
	}
	if !strings.HasPrefix(issue.ID, "f-") || len(issue.ID) != 18 {
		t.Errorf("ID = %q", issue.ID)
	}

	again := n.FromDetectedIssue(res.Filename, d)
	if again.ID != issue.ID {
		t.Error("IDs must be deterministic")
	}
}

func TestFromDetectedIssueXSSTag(t *testing.T) {
	res := scanJS(t, "view.js", "element.innerHTML = userInput;")
	issue := NewNormalizer(nil).FromDetectedIssue(res.Filename, issueByRule(t, res, "xss-innerhtml"))

	hasXSS := false
	for _, tag := range issue.Tags {
		if tag == "xss" {
			hasXSS = true
		}
	}
	if !hasXSS || issue.Severity != models.SeverityCritical {
		t.Errorf("tags=%v severity=%s", issue.Tags, issue.Severity)
	}
}

func TestFromDetectedIssueRuleLookup(t *testing.T) {
	n := NewNormalizer(nil)

	// Rule pointer dropped, as after a JSON round-trip
	issue := n.FromDetectedIssue("a.js", engine.DetectedIssue{RuleID: "empty-catch", Line: 3, Column: 1})
	if issue.Type != string(models.TypeBug) || issue.Severity != models.SeverityHigh {
		t.Errorf("lookup by id failed: %+v", issue)
	}

	unknown := n.FromDetectedIssue("a.js", engine.DetectedIssue{RuleID: "retired-rule", Line: 1, Column: 1, DebtMinutes: 60})
	if unknown.Severity != models.SeverityLow || unknown.Remediation.Effort != models.EffortHigh {
		t.Errorf("unknown rule fallback = %+v", unknown)
	}
}

func TestSeverityMapping(t *testing.T) {
	tests := []struct {
		rule     models.RuleSeverity
		want     string
		priority int
	}{
		{models.RuleBlocker, models.SeverityCritical, 1},
		{models.RuleCritical, models.SeverityCritical, 1},
		{models.RuleMajor, models.SeverityHigh, 2},
		{models.RuleMinor, models.SeverityMedium, 3},
		{models.RuleInfo, models.SeverityLow, 5},
	}
	for _, tt := range tests {
		if got := models.NormalizeRuleSeverity(tt.rule); got != tt.want {
			t.Errorf("NormalizeRuleSeverity(%s) = %s, want %s", tt.rule, got, tt.want)
		}
		if got := priorityForRule(tt.rule); got != tt.priority {
			t.Errorf("priorityForRule(%s) = %d, want %d", tt.rule, got, tt.priority)
		}
	}
}

func TestFromThreat(t *testing.T) {
	threat := archive.SecurityThreat{
		Type:        archive.ThreatPathTraversal,
		Severity:    "high",
		File:        "../../etc/passwd",
		Description: "Entry escapes extraction directory",
		Mitigation:  "Reject entries with .. segments",
		CWE:         "CWE-22",
	}

	issue := NewNormalizer(nil).FromThreat("bundle.zip", threat)
	if issue.ToolName != string(models.ToolArchiveInspector) || issue.Severity != models.SeverityHigh {
		t.Errorf("issue = %+v", issue)
	}
	if issue.Filename != "bundle.zip!../../etc/passwd" {
		t.Errorf("Filename = %q", issue.Filename)
	}
	if issue.Type != "path_traversal" || issue.Recommendation != threat.Mitigation || issue.Confidence != 95 {
		t.Errorf("type=%s rec=%q conf=%d", issue.Type, issue.Recommendation, issue.Confidence)
	}
}

func TestFromAlert(t *testing.T) {
	alert := integrity.TamperingAlert{
		ID:                 "a1",
		FileID:             "r1",
		Filename:           "src/auth.js",
		Type:               integrity.AlertModification,
		Severity:           "critical",
		Description:        "File src/auth.js has been modified since baseline",
		RiskAssessment:     "Security-critical file modified",
		RecommendedActions: []string{"Review", "Rebaseline"},
		FalsePositiveRisk:  10,
		Checksum:           strings.Repeat("ab", 32),
	}

	issue := NewNormalizer(nil).FromAlert(alert)
	if issue.Confidence != 90 || issue.Severity != models.SeverityCritical {
		t.Errorf("confidence=%d severity=%s", issue.Confidence, issue.Severity)
	}
	if issue.Recommendation != "Review; Rebaseline" || issue.Category != "integrity" {
		t.Errorf("issue = %+v", issue)
	}

	if issue.Likelihood != "High" || issue.Impact != "Critical" {
		t.Errorf("likelihood=%q impact=%q", issue.Likelihood, issue.Impact)
	}
	if issue.Message != "File src/auth.js has been modified since baseline. Security-critical file modified" {
		t.Errorf("message = %q", issue.Message)
	}

	other := alert
	other.Checksum = strings.Repeat("cd", 32)
	if NewNormalizer(nil).FromAlert(other).ID == issue.ID {
		t.Error("alerts for different tampered contents need distinct ids")
	}
}

func TestLikelihoodForAlert(t *testing.T) {
	tests := []struct {
		typ      integrity.AlertType
		severity string
		want     string
	}{
		{integrity.AlertModification, models.SeverityCritical, "High"},
		{integrity.AlertModification, models.SeverityHigh, "High"},
		{integrity.AlertModification, models.SeverityMedium, "Medium"},
		{integrity.AlertDeletion, models.SeverityLow, "Low"},
		{integrity.AlertSuspiciousPattern, models.SeverityHigh, "Medium"},
	}
	for _, tt := range tests {
		if got := likelihoodForAlert(tt.typ, tt.severity); got != tt.want {
			t.Errorf("likelihoodForAlert(%s, %s) = %s, want %s", tt.typ, tt.severity, got, tt.want)
		}
	}
}

func TestFromPackageReport(t *testing.T) {
	report := depscan.PackageReport{
		Package: depscan.PackageQuery{Name: "lodash", Version: "4.17.15", Ecosystem: depscan.EcosystemNPM, Manifest: "package.json", Dev: true},
		Vulnerabilities: []depscan.Vulnerability{
			{ID: "GHSA-1", Summary: "Prototype pollution", Severity: "high", CVSSScore: 7.4, CWEs: []string{"CWE-1321"}, FixedVersion: "4.17.19"},
			{ID: "GHSA-2", Summary: "ReDoS", Severity: "moderate"},
		},
	}

	issues := NewNormalizer(nil).FromPackageReport(report)
	if len(issues) != 2 {
		t.Fatalf("issues = %d", len(issues))
	}
	if issues[0].CVSSScore != 7.4 || issues[0].CWEID != "CWE-1321" || !strings.Contains(issues[0].Recommendation, "4.17.19") {
		t.Errorf("first = %+v", issues[0])
	}
	if issues[1].Severity != models.SeverityMedium || issues[1].CVSSScore != 5.0 {
		t.Errorf("second severity=%s cvss=%.1f", issues[1].Severity, issues[1].CVSSScore)
	}
	if issues[0].ID == issues[1].ID {
		t.Error("distinct advisories need distinct ids")
	}
}

func TestEffortForMinutes(t *testing.T) {
	tests := map[int]string{0: models.EffortLow, 5: models.EffortLow, 6: models.EffortMedium, 30: models.EffortMedium, 31: models.EffortHigh}
	for minutes, want := range tests {
		if got := effortForMinutes(minutes); got != want {
			t.Errorf("effortForMinutes(%d) = %s, want %s", minutes, got, want)
		}
	}
}

func TestCWEReference(t *testing.T) {
	if got := cweReference("CWE-79"); got != "https://cwe.mitre.org/data/definitions/79.html" {
		t.Errorf("cweReference = %q", got)
	}
	for _, bad := range []string{"", "CWE-", "n/a"} {
		if got := cweReference(bad); got != "" {
			t.Errorf("cweReference(%q) = %q, want empty", bad, got)
		}
	}
}
