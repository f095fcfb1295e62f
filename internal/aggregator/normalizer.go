package aggregator

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ppiankov/codewarden/internal/archive"
	"github.com/ppiankov/codewarden/internal/catalog"
	"github.com/ppiankov/codewarden/internal/depscan"
	"github.com/ppiankov/codewarden/internal/engine"
	"github.com/ppiankov/codewarden/internal/integrity"
	"github.com/ppiankov/codewarden/internal/models"
)

// Normalizer converts tool-specific findings into SecurityIssues
type Normalizer struct {
	catalog *catalog.Catalog
}

// NewNormalizer creates a normalizer resolving rule ids against cat.
// A nil catalog uses the builtin one.
func NewNormalizer(cat *catalog.Catalog) *Normalizer {
	if cat == nil {
		cat = catalog.Default()
	}
	return &Normalizer{catalog: cat}
}

// IssueID derives the stable id of a finding
func IssueID(tool, filename, rule string, line, column int) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s|%s|%s|%d|%d", tool, filename, rule, line, column)
	return "f-" + hex.EncodeToString(h.Sum(nil))[:16]
}

// FromScanResult normalizes every issue of one engine result
func (n *Normalizer) FromScanResult(res engine.ScanResult) []models.SecurityIssue {
	issues := make([]models.SecurityIssue, 0, len(res.Issues))
	for _, d := range res.Issues {
		issues = append(issues, n.FromDetectedIssue(res.Filename, d))
	}
	return issues
}

// FromDetectedIssue normalizes one rule engine finding
func (n *Normalizer) FromDetectedIssue(filename string, d engine.DetectedIssue) models.SecurityIssue {
	rule := d.Rule
	if rule == nil {
		rule, _ = n.catalog.Get(d.RuleID)
	}

	tool := string(models.ToolRuleEngine)
	issue := models.SecurityIssue{
		ID:          IssueID(tool, filename, d.RuleID, d.Line, d.Column),
		Line:        d.Line,
		Column:      d.Column,
		ToolName:    tool,
		Message:     d.Message,
		Filename:    filename,
		CodeSnippet: d.Snippet,
		References:  []string{},
		Tags:        []string{},
	}

	if rule == nil {
		// rule no longer in the catalog
		issue.Type = string(models.TypeCodeSmell)
		issue.Category = string(models.CategoryMaintainability)
		issue.Severity = models.SeverityLow
		issue.Confidence = 50
		issue.CVSSScore = cvssForSeverity(issue.Severity)
		issue.Recommendation = "Review the flagged code"
		issue.Remediation = models.Remediation{Description: issue.Recommendation, Effort: effortForMinutes(d.DebtMinutes), Priority: 5}
		issue.Impact, issue.Likelihood = "Low", "Low"
		return issue
	}

	issue.Type = string(rule.Type)
	issue.Category = string(rule.Category)
	issue.Severity = models.NormalizeRuleSeverity(rule.Severity)
	issue.Confidence = confidenceForType(rule.Type)
	issue.CVSSScore = cvssForSeverity(issue.Severity)
	issue.CWEID = rule.CWE
	issue.OWASPCategory = rule.OWASP
	issue.Recommendation = rule.Remediation
	if issue.Recommendation == "" {
		issue.Recommendation = fmt.Sprintf("Address %s", strings.ToLower(rule.Name))
	}
	issue.Remediation = models.Remediation{
		Description: issue.Recommendation,
		Effort:      effortForMinutes(rule.EffortMinutes),
		Priority:    priorityForRule(rule.Severity),
	}
	issue.Impact = impactForSeverity(issue.Severity)
	issue.Likelihood = likelihoodForType(rule.Type, issue.Severity)
	if ref := cweReference(rule.CWE); ref != "" {
		issue.References = append(issue.References, ref)
	}
	issue.Tags = append(issue.Tags, rule.Tags...)
	return issue
}

// FromThreat normalizes one archive threat. archiveName prefixes the entry
// path so findings from different archives stay distinct.
func (n *Normalizer) FromThreat(archiveName string, t archive.SecurityThreat) models.SecurityIssue {
	tool := string(models.ToolArchiveInspector)
	filename := t.File
	if archiveName != "" {
		filename = archiveName + "!" + t.File
	}

	severity := normalizeLevel(t.Severity)
	issue := models.SecurityIssue{
		ID:             IssueID(tool, filename, string(t.Type), 0, 0),
		ToolName:       tool,
		Type:           string(t.Type),
		Category:       "security",
		Message:        t.Description,
		Severity:       severity,
		Confidence:     confidenceForThreat(t.Type),
		CVSSScore:      cvssForSeverity(severity),
		CWEID:          t.CWE,
		Recommendation: t.Mitigation,
		Remediation: models.Remediation{
			Description: t.Mitigation,
			Effort:      models.EffortLow,
			Priority:    priorityForSeverity(severity),
		},
		Filename:   filename,
		Impact:     impactForSeverity(severity),
		Likelihood: likelihoodForThreat(t.Type),
		References: []string{},
		Tags:       []string{"archive", string(t.Type)},
	}
	if len(t.Evidence) > 0 {
		issue.CodeSnippet = strings.Join(t.Evidence, "\n")
	}
	if ref := cweReference(t.CWE); ref != "" {
		issue.References = append(issue.References, ref)
	}
	return issue
}

// FromAnalysis normalizes the threats and per-file rule findings of an
// archive analysis
func (n *Normalizer) FromAnalysis(res *archive.ZipAnalysisResult) []models.SecurityIssue {
	if res == nil {
		return nil
	}
	name := res.Metadata.ArchiveName
	var issues []models.SecurityIssue
	for _, t := range res.Threats {
		issues = append(issues, n.FromThreat(name, t))
	}
	for _, f := range res.Quality.Files {
		for _, d := range f.Issues {
			issues = append(issues, n.FromDetectedIssue(name+"!"+f.Filename, d))
		}
	}
	return issues
}

// FromAlert normalizes one integrity alert
func (n *Normalizer) FromAlert(a integrity.TamperingAlert) models.SecurityIssue {
	tool := string(models.ToolIntegrityMonitor)
	rule := string(a.Type)
	if len(a.Checksum) >= 12 {
		rule += ":" + a.Checksum[:12]
	}

	severity := normalizeLevel(a.Severity)
	cwe := "CWE-354"
	if a.Type == integrity.AlertSuspiciousPattern {
		cwe = "CWE-506"
	}

	confidence := 100 - a.FalsePositiveRisk
	if confidence < 0 {
		confidence = 0
	}

	message := a.Description
	if a.RiskAssessment != "" {
		message += ". " + a.RiskAssessment
	}

	recommendation := strings.Join(a.RecommendedActions, "; ")
	issue := models.SecurityIssue{
		ID:             IssueID(tool, a.Filename, rule, 0, 0),
		ToolName:       tool,
		Type:           string(a.Type),
		Category:       "integrity",
		Message:        message,
		Severity:       severity,
		Confidence:     confidence,
		CVSSScore:      cvssForSeverity(severity),
		CWEID:          cwe,
		Recommendation: recommendation,
		Remediation: models.Remediation{
			Description: recommendation,
			Effort:      models.EffortLow,
			Priority:    priorityForSeverity(severity),
		},
		Filename:   a.Filename,
		Impact:     impactForSeverity(severity),
		Likelihood: likelihoodForAlert(a.Type, severity),
		References: []string{cweReference(cwe)},
		Tags:       []string{"integrity", string(a.Type)},
	}
	return issue
}

// FromPackageReport normalizes the vulnerabilities of one dependency
func (n *Normalizer) FromPackageReport(r depscan.PackageReport) []models.SecurityIssue {
	tool := string(models.ToolDependencyScanner)
	pkg := r.Package

	issues := make([]models.SecurityIssue, 0, len(r.Vulnerabilities))
	for _, v := range r.Vulnerabilities {
		severity := normalizeLevel(v.Severity)
		rec := fmt.Sprintf("Upgrade %s", pkg.Name)
		if v.FixedVersion != "" {
			rec = fmt.Sprintf("Upgrade %s to %s or later", pkg.Name, v.FixedVersion)
		}

		issue := models.SecurityIssue{
			ID:         IssueID(tool, pkg.Manifest, pkg.Ecosystem+":"+pkg.Name+"@"+pkg.Version+":"+v.ID, 0, 0),
			ToolName:   tool,
			Type:       string(models.TypeVulnerability),
			Category:   "dependency",
			Message:    fmt.Sprintf("%s@%s: %s (%s)", pkg.Name, pkg.Version, v.Summary, v.ID),
			Severity:   severity,
			Confidence: 90,
			CVSSScore:  v.CVSSScore,
			Remediation: models.Remediation{
				Description: rec,
				Effort:      models.EffortLow,
				Priority:    priorityForSeverity(severity),
			},
			Recommendation: rec,
			Filename:       pkg.Manifest,
			Impact:         impactForSeverity(severity),
			Likelihood:     "Medium",
			References:     append([]string{}, v.References...),
			Tags:           []string{"dependency", strings.ToLower(pkg.Ecosystem)},
		}
		if issue.CVSSScore == 0 {
			issue.CVSSScore = cvssForSeverity(severity)
		}
		if len(v.CWEs) > 0 {
			issue.CWEID = v.CWEs[0]
		}
		if pkg.Dev {
			issue.Tags = append(issue.Tags, "dev")
		}
		issues = append(issues, issue)
	}
	return issues
}

func normalizeLevel(s string) string {
	switch strings.ToLower(s) {
	case models.SeverityCritical:
		return models.SeverityCritical
	case models.SeverityHigh:
		return models.SeverityHigh
	case models.SeverityMedium, "moderate":
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func confidenceForType(t models.IssueType) int {
	switch t {
	case models.TypeVulnerability:
		return 75
	case models.TypeBug:
		return 70
	case models.TypeSecurityHotspot:
		return 50
	default:
		return 85
	}
}

func confidenceForThreat(t archive.ThreatType) int {
	switch t {
	case archive.ThreatPathTraversal:
		return 95
	case archive.ThreatZipBomb:
		return 90
	case archive.ThreatEncrypted:
		return 100
	case archive.ThreatExecutable:
		return 80
	case archive.ThreatMalware:
		return 65
	default:
		return 50
	}
}

// cvssForSeverity is a cvss-like score, not a CVSS computation
func cvssForSeverity(severity string) float64 {
	switch severity {
	case models.SeverityCritical:
		return 9.0
	case models.SeverityHigh:
		return 7.5
	case models.SeverityMedium:
		return 5.0
	default:
		return 2.5
	}
}

func effortForMinutes(minutes int) string {
	switch {
	case minutes <= 5:
		return models.EffortLow
	case minutes <= 30:
		return models.EffortMedium
	default:
		return models.EffortHigh
	}
}

func priorityForSeverity(severity string) int {
	return 5 - models.SeverityRank(severity)
}

func priorityForRule(s models.RuleSeverity) int {
	if s == models.RuleInfo {
		return 5
	}
	return priorityForSeverity(models.NormalizeRuleSeverity(s))
}

func impactForSeverity(severity string) string {
	switch severity {
	case models.SeverityCritical:
		return "Critical"
	case models.SeverityHigh:
		return "High"
	case models.SeverityMedium:
		return "Medium"
	default:
		return "Low"
	}
}

func likelihoodForType(t models.IssueType, severity string) string {
	switch t {
	case models.TypeVulnerability:
		if models.SeverityRank(severity) >= models.SeverityRank(models.SeverityHigh) {
			return "High"
		}
		return "Medium"
	case models.TypeBug, models.TypeSecurityHotspot:
		return "Medium"
	default:
		return "Low"
	}
}

// likelihoodForAlert treats a heuristic pattern match as less certain
// than a checksum mismatch or a missing baseline
func likelihoodForAlert(t integrity.AlertType, severity string) string {
	switch {
	case t == integrity.AlertSuspiciousPattern:
		return "Medium"
	case models.SeverityRank(severity) >= models.SeverityRank(models.SeverityHigh):
		return "High"
	case severity == models.SeverityMedium:
		return "Medium"
	default:
		return "Low"
	}
}

func likelihoodForThreat(t archive.ThreatType) string {
	switch t {
	case archive.ThreatPathTraversal, archive.ThreatZipBomb, archive.ThreatMalware:
		return "High"
	case archive.ThreatExecutable, archive.ThreatEncrypted:
		return "Medium"
	default:
		return "Low"
	}
}

func cweReference(cwe string) string {
	num := strings.TrimPrefix(strings.ToUpper(cwe), "CWE-")
	if _, err := strconv.Atoi(num); err != nil || num == "" {
		return ""
	}
	return "https://cwe.mitre.org/data/definitions/" + num + ".html"
}
