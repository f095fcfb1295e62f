package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ppiankov/codewarden/internal/models"
	"gopkg.in/yaml.v3"
)

// Policy defines enforcement rules for analysis results.
type Policy struct {
	Version string `yaml:"version"`
	Rules   Rules  `yaml:"rules"`
}

// Rules contains all configurable policy rules.
type Rules struct {
	MaxIssues        *int     `yaml:"max_issues,omitempty"`
	MaxCritical      *int     `yaml:"max_critical,omitempty"`
	MaxHigh          *int     `yaml:"max_high,omitempty"`
	MinScore         *float64 `yaml:"min_score,omitempty"`
	MaxDebtMinutes   *int     `yaml:"max_debt_minutes,omitempty"`
	RequireGatePass  bool     `yaml:"require_gate_pass,omitempty"`
	ForbidCategories []string `yaml:"forbid_categories,omitempty"`
	ForbidCWEs       []string `yaml:"forbid_cwes,omitempty"`
	ForbidTools      []string `yaml:"forbid_tools,omitempty"`
}

// Violation is a single policy failure.
type Violation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Result holds the outcome of a policy check.
type Result struct {
	Pass       bool        `json:"pass"`
	Violations []Violation `json:"violations"`
}

// FileNames are the policy files FindPolicyFile looks for
var FileNames = []string{".codewarden-policy.yaml", ".codewarden-policy.yml"}

// LoadFromFile reads a policy file. A missing file yields a nil policy.
func LoadFromFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read policy: %w", err)
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}

	return &p, nil
}

// FindPolicyFile searches for a policy file in dir and its parents up to
// the filesystem root. An empty dir starts from the working directory.
func FindPolicyFile(dir string) string {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return ""
		}
		dir = wd
	}

	for {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// Evaluate checks a report against the policy rules.
func (p *Policy) Evaluate(report *models.Report) *Result {
	if p == nil {
		return &Result{Pass: true}
	}

	var violations []Violation
	summary := report.Summary

	if p.Rules.MaxIssues != nil && summary.TotalIssues > *p.Rules.MaxIssues {
		violations = append(violations, Violation{
			Rule:    "max_issues",
			Message: fmt.Sprintf("total issues %d exceeds limit %d", summary.TotalIssues, *p.Rules.MaxIssues),
		})
	}

	if p.Rules.MaxCritical != nil {
		count := summary.IssuesBySeverity[models.SeverityCritical]
		if count > *p.Rules.MaxCritical {
			violations = append(violations, Violation{
				Rule:    "max_critical",
				Message: fmt.Sprintf("critical issues %d exceeds limit %d", count, *p.Rules.MaxCritical),
			})
		}
	}

	if p.Rules.MaxHigh != nil {
		count := summary.IssuesBySeverity[models.SeverityHigh]
		if count > *p.Rules.MaxHigh {
			violations = append(violations, Violation{
				Rule:    "max_high",
				Message: fmt.Sprintf("high issues %d exceeds limit %d", count, *p.Rules.MaxHigh),
			})
		}
	}

	if p.Rules.MinScore != nil && summary.ScorePercent < *p.Rules.MinScore {
		violations = append(violations, Violation{
			Rule:    "min_score",
			Message: fmt.Sprintf("score %.1f%% below minimum %.1f%%", summary.ScorePercent, *p.Rules.MinScore),
		})
	}

	if p.Rules.MaxDebtMinutes != nil && summary.TechnicalDebtMinutes > *p.Rules.MaxDebtMinutes {
		violations = append(violations, Violation{
			Rule:    "max_debt_minutes",
			Message: fmt.Sprintf("technical debt %dmin exceeds limit %dmin", summary.TechnicalDebtMinutes, *p.Rules.MaxDebtMinutes),
		})
	}

	if p.Rules.RequireGatePass && !summary.GatePassed {
		violations = append(violations, Violation{
			Rule:    "require_gate_pass",
			Message: fmt.Sprintf("quality gate failed for %d file(s)", len(summary.GateFailedFiles)),
		})
	}

	violations = append(violations, forbidden("forbid_categories", "category", p.Rules.ForbidCategories, summary.IssuesByCategory)...)
	violations = append(violations, forbidden("forbid_tools", "tool", p.Rules.ForbidTools, summary.IssuesByTool)...)

	if len(p.Rules.ForbidCWEs) > 0 {
		byCWE := make(map[string]int)
		for _, issue := range report.Issues {
			if issue.CWEID != "" {
				byCWE[issue.CWEID]++
			}
		}
		violations = append(violations, forbidden("forbid_cwes", "weakness", p.Rules.ForbidCWEs, byCWE)...)
	}

	return &Result{
		Pass:       len(violations) == 0,
		Violations: violations,
	}
}

// forbidden reports every listed key with a non-zero count, in key order
func forbidden(rule, noun string, keys []string, counts map[string]int) []Violation {
	if len(keys) == 0 {
		return nil
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	var out []Violation
	for _, k := range sorted {
		if counts[k] > 0 {
			out = append(out, Violation{
				Rule:    rule,
				Message: fmt.Sprintf("forbidden %s %q has %d issues", noun, k, counts[k]),
			})
		}
	}
	return out
}
