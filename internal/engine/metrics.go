package engine

import (
	"math"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ppiankov/codewarden/internal/models"
)

// CodeQualityMetrics is the per-file aggregate computed by a scan.
// MaintainabilityIndex and EstimatedTestCoverage are heuristics, not
// exact measurements.
type CodeQualityMetrics struct {
	CyclomaticComplexity   int     `json:"cyclomatic_complexity"`
	CognitiveComplexity    int     `json:"cognitive_complexity"`
	TotalLines             int     `json:"total_lines"`
	LinesOfCode            int     `json:"lines_of_code"`
	CommentLines           int     `json:"comment_lines"`
	BlankLines             int     `json:"blank_lines"`
	MaintainabilityIndex   float64 `json:"maintainability_index"`
	TechnicalDebtRatio     float64 `json:"technical_debt_ratio"`
	Bugs                   int     `json:"bugs"`
	Vulnerabilities        int     `json:"vulnerabilities"`
	CodeSmells             int     `json:"code_smells"`
	SecurityHotspots       int     `json:"security_hotspots"`
	EstimatedTestCoverage  float64 `json:"estimated_test_coverage"`
	DuplicatedBlocks       int     `json:"duplicated_blocks"`
	DuplicatedLines        int     `json:"duplicated_lines"`
	DuplicatedLinesDensity float64 `json:"duplicated_lines_density"`
}

var (
	decisionRe  = regexp.MustCompile(`\b(?:if|while|for|case|catch)\b|&&|\|\||\?[?.:]?`)
	controlRe   = regexp.MustCompile(`\b(?:if|for|while|switch|catch)\b`)
	logicalRe   = regexp.MustCompile(`&&|\|\|`)
	assertionRe = regexp.MustCompile(`\b(?:assert\w*|expect|should|t\.(?:Error|Errorf|Fatal|Fatalf))\b`)
	functionRe  = regexp.MustCompile(`\bfunction\b|=>|\bdef\s+\w+|\bfunc\s|\b(?:public|private|protected)\s+[\w<>\[\]]+\s+\w+\s*\(`)
)

// lineKind classifies one source line
type lineKind int

const (
	lineCode lineKind = iota
	lineComment
	lineBlank
)

// classifyLines tags every line as code, comment or blank.
// Block comments (/* ... */) are tracked across lines.
func classifyLines(lines []string) []lineKind {
	kinds := make([]lineKind, len(lines))
	inBlock := false

	for i, raw := range lines {
		line := strings.TrimSpace(raw)

		switch {
		case inBlock:
			kinds[i] = lineComment
			if strings.Contains(line, "*/") {
				inBlock = false
			}
		case line == "":
			kinds[i] = lineBlank
		case strings.HasPrefix(line, "/*"):
			kinds[i] = lineComment
			if !strings.Contains(line[2:], "*/") {
				inBlock = true
			}
		case strings.HasPrefix(line, "//"),
			strings.HasPrefix(line, "#"),
			strings.HasPrefix(line, "*"):
			kinds[i] = lineComment
		default:
			kinds[i] = lineCode
		}
	}
	return kinds
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// CyclomaticComplexity is 1 + the number of decision-point tokens in
// the code lines. A ternary "?" counts; "??", "?." and "?:" do not.
func CyclomaticComplexity(lines []string, kinds []lineKind) int {
	c := 1
	for i, l := range lines {
		if kinds[i] != lineCode {
			continue
		}
		for _, m := range decisionRe.FindAllString(l, -1) {
			if len(m) == 2 && m[0] == '?' {
				continue
			}
			c++
		}
	}
	return c
}

// CognitiveComplexity walks code lines tracking brace nesting. A control
// keyword adds 1 + the nesting level at the start of its line; every
// logical operator adds 1.
func CognitiveComplexity(lines []string, kinds []lineKind) int {
	total := 0
	nesting := 0

	for i, l := range lines {
		if kinds[i] != lineCode {
			continue
		}

		for range controlRe.FindAllStringIndex(l, -1) {
			total += 1 + nesting
		}
		total += len(logicalRe.FindAllStringIndex(l, -1))

		nesting += strings.Count(l, "{") - strings.Count(l, "}")
		if nesting < 0 {
			nesting = 0
		}
	}
	return total
}

// MaintainabilityIndex approximates the classic index on a 0-100 scale.
// The Halstead volume is replaced by the proxy ln(LOC+1)*10.
func MaintainabilityIndex(loc, cyclomatic int, commentRatio float64, codeSmells int) float64 {
	if loc <= 0 {
		return 100
	}

	halstead := math.Log(float64(loc)+1) * 10
	mi := 171 - 5.2*math.Log(halstead) - 0.23*float64(cyclomatic) - 16.2*math.Log(float64(loc))
	mi = mi*100/171 + commentRatio*5 - math.Min(30, float64(codeSmells)*2)

	return round1(clamp(mi, 0, 100))
}

// TechnicalDebtRatio returns debtMinutes / (LOC * 0.06) as a percentage
func TechnicalDebtRatio(debtMinutes, loc int) float64 {
	if loc <= 0 {
		return 0
	}
	return round1(float64(debtMinutes) / (float64(loc) * 0.06) * 100)
}

// EstimateTestCoverage guesses coverage from naming and assertion density.
// Test files score 80; other files score by assertions per function.
func EstimateTestCoverage(filename string, lines []string, kinds []lineKind) float64 {
	if IsTestFile(filename) {
		return 80
	}

	assertions, functions := 0, 0
	for i, l := range lines {
		if kinds[i] != lineCode {
			continue
		}
		assertions += len(assertionRe.FindAllStringIndex(l, -1))
		functions += len(functionRe.FindAllStringIndex(l, -1))
	}
	if assertions == 0 {
		return 0
	}
	if functions == 0 {
		functions = 1
	}
	return round1(clamp(float64(assertions)/float64(functions)*20, 0, 100))
}

// IsTestFile reports whether filename looks like a test source file
func IsTestFile(filename string) bool {
	orig := filepath.Base(filename)
	stem := strings.TrimSuffix(orig, filepath.Ext(orig))
	base := strings.ToLower(orig)
	dir := strings.ToLower(filepath.ToSlash(filepath.Dir(filename)))

	switch {
	case strings.Contains(base, ".test."), strings.Contains(base, ".spec."):
		return true
	case strings.HasSuffix(base, "_test.go"), strings.HasPrefix(base, "test_"):
		return true
	case strings.HasSuffix(stem, "Test"), strings.HasSuffix(stem, "Tests"), strings.HasSuffix(stem, "_test"):
		return true
	}
	for _, seg := range strings.Split(dir, "/") {
		if seg == "test" || seg == "tests" || seg == "__tests__" || seg == "spec" {
			return true
		}
	}
	return false
}

func computeMetrics(filename string, lines []string, kinds []lineKind, issues []DetectedIssue, debtMinutes, window int) CodeQualityMetrics {
	m := CodeQualityMetrics{TotalLines: len(lines)}

	for _, k := range kinds {
		switch k {
		case lineCode:
			m.LinesOfCode++
		case lineComment:
			m.CommentLines++
		case lineBlank:
			m.BlankLines++
		}
	}

	for _, is := range issues {
		switch is.Rule.Type {
		case models.TypeBug:
			m.Bugs++
		case models.TypeVulnerability:
			m.Vulnerabilities++
		case models.TypeCodeSmell:
			m.CodeSmells++
		case models.TypeSecurityHotspot:
			m.SecurityHotspots++
		}
	}

	m.CyclomaticComplexity = CyclomaticComplexity(lines, kinds)
	m.CognitiveComplexity = CognitiveComplexity(lines, kinds)

	commentRatio := 0.0
	if nonBlank := m.LinesOfCode + m.CommentLines; nonBlank > 0 {
		commentRatio = float64(m.CommentLines) / float64(nonBlank)
	}
	m.MaintainabilityIndex = MaintainabilityIndex(m.LinesOfCode, m.CyclomaticComplexity, commentRatio, m.CodeSmells)
	m.TechnicalDebtRatio = TechnicalDebtRatio(debtMinutes, m.LinesOfCode)
	m.EstimatedTestCoverage = EstimateTestCoverage(filename, lines, kinds)

	dup := detectDuplication(lines, kinds, window)
	m.DuplicatedBlocks = dup.Blocks
	m.DuplicatedLines = dup.Lines
	if m.LinesOfCode > 0 {
		m.DuplicatedLinesDensity = round1(float64(dup.Lines) / float64(m.LinesOfCode) * 100)
	}

	return m
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
