package models

import "time"

// ToolName identifies which analysis component produced a finding
type ToolName string

const (
	ToolRuleEngine        ToolName = "rule-engine"
	ToolArchiveInspector  ToolName = "archive-inspector"
	ToolIntegrityMonitor  ToolName = "integrity-monitor"
	ToolDependencyScanner ToolName = "dependency-scanner"
)

// Normalized severity levels shared by every tool
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// SeverityRank returns numeric priority for sorting (higher = more urgent)
func SeverityRank(severity string) int {
	switch severity {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Report contains the complete aggregated output of one analysis run
type Report struct {
	Timestamp       time.Time        `json:"timestamp"`
	Target          string           `json:"target,omitempty"`
	Issues          []SecurityIssue  `json:"issues"`
	Summary         Summary          `json:"summary"`
	Trend           *Trend           `json:"trend,omitempty"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Summary provides aggregate statistics across all tools
type Summary struct {
	TotalIssues          int            `json:"total_issues"`
	IssuesByTool         map[string]int `json:"issues_by_tool"`
	IssuesByCategory     map[string]int `json:"issues_by_category"`
	IssuesBySeverity     map[string]int `json:"issues_by_severity"`
	HealthScore          string         `json:"health_score"`  // excellent, good, warning, critical, severe
	ScorePercent         float64        `json:"score_percent"` // 0-100
	FilesScanned         int            `json:"files_scanned"`
	TechnicalDebtMinutes int            `json:"technical_debt_minutes"`
	GatePassed           bool           `json:"gate_passed"`
	GateFailedFiles      []string       `json:"gate_failed_files,omitempty"`
}

// Trend represents change between current and previous run
type Trend struct {
	Direction      string    `json:"direction"`      // "improving", "degrading", "stable"
	ChangePercent  float64   `json:"change_percent"` // negative = improvement
	PreviousIssues int       `json:"previous_issues"`
	CurrentIssues  int       `json:"current_issues"`
	ComparedWith   time.Time `json:"compared_with"`
	NewIssues      int       `json:"new_issues"`
	ResolvedIssues int       `json:"resolved_issues"`
}

// Recommendation represents an actionable item to fix
type Recommendation struct {
	Severity string `json:"severity"`
	Tool     string `json:"tool"`
	Category string `json:"category"`
	Action   string `json:"action"`
	Impact   string `json:"impact"`
	Count    int    `json:"count"`
}

// TrendSummary provides historical trend analysis
type TrendSummary struct {
	TimeRange      string                `json:"time_range"`
	RunsAnalyzed   int                   `json:"runs_analyzed"`
	IssueSparkline []int                 `json:"issue_sparkline"`
	ScoreSparkline []float64             `json:"score_sparkline"`
	DebtMinutes    int                   `json:"debt_minutes_change"`
	ByTool         map[string]*ToolTrend `json:"by_tool"`
	BySeverity     map[string]*ToolTrend `json:"by_severity"`
}

// ToolTrend is the change of one count (a tool or a severity) between
// the first and last analyzed run
type ToolTrend struct {
	Name           string  `json:"name"`
	CurrentIssues  int     `json:"current_issues"`
	PreviousIssues int     `json:"previous_issues"`
	Change         int     `json:"change"`
	ChangePercent  float64 `json:"change_percent"`
}

// CalculateHealthScore determines overall health from affected vs total files.
// score = (totalFiles - affectedFiles) / totalFiles * 100, clamped 0-100.
func CalculateHealthScore(affectedFiles, totalFiles int) (string, float64) {
	if totalFiles == 0 {
		return "unknown", 0.0
	}

	score := float64(totalFiles-affectedFiles) / float64(totalFiles) * 100.0
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	var health string
	switch {
	case score >= 95:
		health = "excellent"
	case score >= 85:
		health = "good"
	case score >= 70:
		health = "warning"
	case score >= 50:
		health = "critical"
	default:
		health = "severe"
	}

	return health, score
}
