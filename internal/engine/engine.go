// Package engine matches catalog rules against source text and computes
// per-file quality metrics and a quality gate verdict.
package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/codewarden/internal/catalog"
)

// DetectedIssue is one rule match inside a file
type DetectedIssue struct {
	Rule        *catalog.Rule `json:"-"`
	RuleID      string        `json:"rule_id"`
	Line        int           `json:"line"`
	Column      int           `json:"column"`
	Message     string        `json:"message"`
	Snippet     string        `json:"snippet"`
	DebtMinutes int           `json:"debt_minutes"`
}

// ScanResult is the outcome of scanning one file
type ScanResult struct {
	Filename             string             `json:"filename"`
	Language             string             `json:"language"`
	Issues               []DetectedIssue    `json:"issues"`
	Metrics              CodeQualityMetrics `json:"metrics"`
	TechnicalDebtMinutes int                `json:"technical_debt_minutes"`
	QualityGate          QualityGateResult  `json:"quality_gate"`
}

// Options tunes the engine
type Options struct {
	// DuplicationWindow is the number of code lines per duplication window
	DuplicationWindow int
}

// Engine scans text against a rule catalog. It holds no mutable state
// and is safe for concurrent use.
type Engine struct {
	catalog *catalog.Catalog
	window  int
}

// New creates an engine over cat. A nil catalog uses catalog.Default().
func New(cat *catalog.Catalog, opts Options) *Engine {
	if cat == nil {
		cat = catalog.Default()
	}
	window := opts.DuplicationWindow
	if window <= 0 {
		window = DefaultDuplicationWindow
	}
	return &Engine{catalog: cat, window: window}
}

// Catalog returns the rule catalog the engine scans with
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// Scan matches every rule applicable to language against content.
// An unknown language yields no issues; metrics are still computed.
func (e *Engine) Scan(content, filename, language string) ScanResult {
	idx := newLineIndex(content)
	rules := e.catalog.ForLanguage(language)

	var issues []DetectedIssue
	debt := 0

	for _, rule := range rules {
		for _, m := range rule.Matcher.FindAll(content) {
			line, col := idx.Position(m.Offset)
			issues = append(issues, DetectedIssue{
				Rule:        rule,
				RuleID:      rule.ID,
				Line:        line,
				Column:      col,
				Message:     renderMessage(rule),
				Snippet:     idx.Snippet(line),
				DebtMinutes: rule.EffortMinutes,
			})
			debt += rule.EffortMinutes
		}
	}

	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Line != issues[j].Line {
			return issues[i].Line < issues[j].Line
		}
		if issues[i].Column != issues[j].Column {
			return issues[i].Column < issues[j].Column
		}
		return issues[i].RuleID < issues[j].RuleID
	})

	lines := splitLines(content)
	kinds := classifyLines(lines)
	metrics := computeMetrics(filename, lines, kinds, issues, debt, e.window)

	return ScanResult{
		Filename:             filename,
		Language:             strings.ToLower(language),
		Issues:               issues,
		Metrics:              metrics,
		TechnicalDebtMinutes: debt,
		QualityGate:          EvaluateGate(GateInputFrom(metrics)),
	}
}

// ScanFile is Scan with the language inferred from the filename
func (e *Engine) ScanFile(content, filename string) ScanResult {
	return e.Scan(content, filename, catalog.LanguageForFile(filename))
}

func renderMessage(r *catalog.Rule) string {
	if r.Description == "" {
		return r.Name
	}
	return fmt.Sprintf("%s: %s", r.Name, r.Description)
}
