package aggregator

import (
	"sort"
	"time"

	"github.com/ppiankov/codewarden/internal/archive"
	"github.com/ppiankov/codewarden/internal/catalog"
	"github.com/ppiankov/codewarden/internal/depscan"
	"github.com/ppiankov/codewarden/internal/engine"
	"github.com/ppiankov/codewarden/internal/integrity"
	"github.com/ppiankov/codewarden/internal/models"
)

// Input is everything one run produced. Any part may be empty.
type Input struct {
	Target       string
	FilesScanned int
	Scans        []engine.ScanResult
	Archives     []*archive.ZipAnalysisResult
	Provenance   *integrity.ProvenanceReport
	Dependencies []depscan.PackageReport
}

// Aggregator merges findings from every tool into one report
type Aggregator struct {
	normalizer *Normalizer
	now        func() time.Time
}

// New creates a new aggregator
func New(cat *catalog.Catalog) *Aggregator {
	return &Aggregator{
		normalizer: NewNormalizer(cat),
		now:        time.Now,
	}
}

// Normalizer returns the normalizer used by Aggregate
func (a *Aggregator) Normalizer() *Normalizer {
	return a.normalizer
}

// Aggregate normalizes and combines every finding in in
func (a *Aggregator) Aggregate(in Input) *models.Report {
	report := &models.Report{
		Timestamp: a.now().UTC(),
		Target:    in.Target,
		Issues:    []models.SecurityIssue{},
		Summary: models.Summary{
			IssuesByTool:     make(map[string]int),
			IssuesByCategory: make(map[string]int),
			IssuesBySeverity: make(map[string]int),
			FilesScanned:     in.FilesScanned,
			GatePassed:       true,
		},
		Recommendations: []models.Recommendation{},
	}

	for _, res := range in.Scans {
		report.Issues = append(report.Issues, a.normalizer.FromScanResult(res)...)
		report.Summary.TechnicalDebtMinutes += res.TechnicalDebtMinutes
		if !res.QualityGate.Passed {
			report.Summary.GatePassed = false
			report.Summary.GateFailedFiles = append(report.Summary.GateFailedFiles, res.Filename)
		}
	}

	for _, res := range in.Archives {
		report.Issues = append(report.Issues, a.normalizer.FromAnalysis(res)...)
		if res == nil {
			continue
		}
		report.Summary.TechnicalDebtMinutes += res.Quality.TechnicalDebtMinutes
		for _, f := range res.Quality.Files {
			if !f.QualityGate.Passed {
				report.Summary.GatePassed = false
				report.Summary.GateFailedFiles = append(report.Summary.GateFailedFiles, res.Metadata.ArchiveName+"!"+f.Filename)
			}
		}
		if report.Summary.FilesScanned == 0 {
			report.Summary.FilesScanned = res.Quality.TotalFiles
		}
	}

	if in.Provenance != nil {
		for _, alert := range in.Provenance.Alerts {
			report.Issues = append(report.Issues, a.normalizer.FromAlert(alert))
		}
		if report.Summary.FilesScanned == 0 {
			report.Summary.FilesScanned = in.Provenance.TotalFiles
		}
	}

	for _, dep := range in.Dependencies {
		report.Issues = append(report.Issues, a.normalizer.FromPackageReport(dep)...)
	}

	report.Issues = dedupe(report.Issues)
	SortIssues(report.Issues)
	sort.Strings(report.Summary.GateFailedFiles)

	a.calculateSummary(report)
	a.calculateHealthScore(report)

	report.Recommendations = NewRecommendationGenerator().GenerateRecommendations(report)
	return report
}

// dedupe drops repeated ids, keeping the first occurrence
func dedupe(issues []models.SecurityIssue) []models.SecurityIssue {
	seen := make(map[string]bool, len(issues))
	out := issues[:0]
	for _, issue := range issues {
		if seen[issue.ID] {
			continue
		}
		seen[issue.ID] = true
		out = append(out, issue)
	}
	return out
}

// SortIssues orders by severity (most urgent first), then file, line, column
func SortIssues(issues []models.SecurityIssue) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if ra, rb := models.SeverityRank(a.Severity), models.SeverityRank(b.Severity); ra != rb {
			return ra > rb
		}
		if a.Filename != b.Filename {
			return a.Filename < b.Filename
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		return a.ID < b.ID
	})
}

// calculateSummary computes summary statistics from normalized issues
func (a *Aggregator) calculateSummary(report *models.Report) {
	for _, issue := range report.Issues {
		report.Summary.IssuesByTool[issue.ToolName]++
		report.Summary.IssuesByCategory[issue.Category]++
		report.Summary.IssuesBySeverity[issue.Severity]++
	}
	report.Summary.TotalIssues = len(report.Issues)
}

// calculateHealthScore scores the share of scanned files without findings
func (a *Aggregator) calculateHealthScore(report *models.Report) {
	affected := make(map[string]bool)
	for _, issue := range report.Issues {
		if issue.Filename != "" {
			affected[issue.Filename] = true
		}
	}

	total := report.Summary.FilesScanned
	if total < len(affected) {
		total = len(affected)
	}

	healthLevel, scorePercent := models.CalculateHealthScore(len(affected), total)
	report.Summary.HealthScore = healthLevel
	report.Summary.ScorePercent = scorePercent
}

// AddTrend adds trend information by comparing with a previous report
func (a *Aggregator) AddTrend(current *models.Report, previous *models.Report) {
	current.Trend = NewTrendAnalyzer().CalculateTrend(current, previous)
}
