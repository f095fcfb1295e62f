package validator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ppiankov/codewarden/internal/models"
)

// ValidationError represents a validation failure
type ValidationError struct {
	Kind   string
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Invalid %s:\n  - %s", e.Kind, strings.Join(e.Errors, "\n  - "))
}

var (
	issueIDPattern = regexp.MustCompile(`^f-[0-9a-f]{16}$`)
	cwePattern     = regexp.MustCompile(`^CWE-[0-9]+$`)

	validSeverities = map[string]bool{
		models.SeverityCritical: true,
		models.SeverityHigh:     true,
		models.SeverityMedium:   true,
		models.SeverityLow:      true,
	}
	validTools = map[string]bool{
		string(models.ToolRuleEngine):        true,
		string(models.ToolArchiveInspector):  true,
		string(models.ToolIntegrityMonitor):  true,
		string(models.ToolDependencyScanner): true,
	}
	validEfforts = map[string]bool{
		models.EffortLow:    true,
		models.EffortMedium: true,
		models.EffortHigh:   true,
	}
	validHealth = map[string]bool{
		"excellent": true, "good": true, "warning": true,
		"critical": true, "severe": true, "unknown": true,
	}
)

// Validator checks codewarden report JSON produced by another run or
// edited by hand, such as a diff baseline
type Validator struct {
	// MaxErrors caps the messages collected per document; 0 means no cap
	MaxErrors int
}

// New creates a new validator
func New() *Validator {
	return &Validator{MaxErrors: 50}
}

// ValidateReport parses data as a models.Report and checks every issue
// and the summary counters derived from them
func (v *Validator) ValidateReport(data []byte) (*models.Report, error) {
	var report models.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, &ValidationError{
			Kind:   "report",
			Errors: []string{fmt.Sprintf("Failed to parse JSON: %v", err)},
		}
	}

	var errors []string
	add := func(format string, args ...interface{}) {
		if v.MaxErrors > 0 && len(errors) >= v.MaxErrors {
			return
		}
		errors = append(errors, fmt.Sprintf(format, args...))
	}

	if report.Timestamp.IsZero() {
		add("Missing or invalid field: 'timestamp'")
	}
	if report.Issues == nil {
		add("Missing required field: 'issues'")
	}

	seen := make(map[string]bool, len(report.Issues))
	bySeverity := map[string]int{}
	for i, issue := range report.Issues {
		for _, msg := range v.checkIssue(issue) {
			add("issues[%d]: %s", i, msg)
		}
		if issue.ID != "" {
			if seen[issue.ID] {
				add("issues[%d]: duplicate id %q", i, issue.ID)
			}
			seen[issue.ID] = true
		}
		bySeverity[issue.Severity]++
	}

	s := report.Summary
	if s.TotalIssues != len(report.Issues) {
		add("summary.total_issues is %d but report has %d issues", s.TotalIssues, len(report.Issues))
	}
	for sev, n := range s.IssuesBySeverity {
		if bySeverity[sev] != n {
			add("summary.issues_by_severity[%s] is %d but %d issues have that severity", sev, n, bySeverity[sev])
		}
	}
	if s.ScorePercent < 0 || s.ScorePercent > 100 {
		add("summary.score_percent %.1f out of range 0-100", s.ScorePercent)
	}
	if s.HealthScore != "" && !validHealth[s.HealthScore] {
		add("summary.health_score has invalid value: '%s'", s.HealthScore)
	}
	if s.FilesScanned < 0 || s.TechnicalDebtMinutes < 0 {
		add("summary counters must be non-negative")
	}
	if !s.GatePassed && len(s.GateFailedFiles) == 0 {
		add("summary.gate_passed is false but gate_failed_files is empty")
	}

	if len(errors) > 0 {
		return &report, &ValidationError{Kind: "report", Errors: errors}
	}
	return &report, nil
}

// checkIssue returns the problems found in one issue
func (v *Validator) checkIssue(issue models.SecurityIssue) []string {
	var errs []string

	if !issueIDPattern.MatchString(issue.ID) {
		errs = append(errs, fmt.Sprintf("invalid id '%s'", issue.ID))
	}
	if !validTools[issue.ToolName] {
		errs = append(errs, fmt.Sprintf("unknown tool_name '%s'", issue.ToolName))
	}
	if !validSeverities[issue.Severity] {
		errs = append(errs, fmt.Sprintf("invalid severity '%s'", issue.Severity))
	}
	if issue.Message == "" {
		errs = append(errs, "missing message")
	}
	if issue.Line < 0 || issue.Column < 0 {
		errs = append(errs, "line and column must be non-negative")
	}
	if issue.Confidence < 0 || issue.Confidence > 100 {
		errs = append(errs, fmt.Sprintf("confidence %d out of range 0-100", issue.Confidence))
	}
	if issue.CVSSScore < 0 || issue.CVSSScore > 10 {
		errs = append(errs, fmt.Sprintf("cvss_score %.1f out of range 0-10", issue.CVSSScore))
	}
	if issue.CWEID != "" && !cwePattern.MatchString(issue.CWEID) {
		errs = append(errs, fmt.Sprintf("malformed cwe_id '%s'", issue.CWEID))
	}
	if p := issue.Remediation.Priority; p < 1 || p > 5 {
		errs = append(errs, fmt.Sprintf("remediation.priority %d out of range 1-5", p))
	}
	if !validEfforts[issue.Remediation.Effort] {
		errs = append(errs, fmt.Sprintf("invalid remediation.effort '%s'", issue.Remediation.Effort))
	}

	return errs
}
