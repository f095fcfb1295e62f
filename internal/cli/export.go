package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/codewarden/internal/models"
	"github.com/ppiankov/codewarden/internal/storage"
	"github.com/spf13/cobra"
)

var (
	exportFormat      string
	exportOutput      string
	exportLastN       int
	exportMinSeverity string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored findings for code scanning and compliance",
	Long: `Export issues from stored runs in formats other tools understand.

Supported formats:
  csv    Tabular format for spreadsheets and compliance tools
  json   Structured JSON for programmatic consumption
  sarif  SARIF 2.1.0 for GitHub Advanced Security and code scanning

Example:
  codewarden export --format csv -o findings.csv
  codewarden export --format sarif -o results.sarif
  codewarden export --format json --last 30 -o evidence.json`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv",
		"output format: csv, json, or sarif")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "",
		"write output to file (default: stdout)")
	exportCmd.Flags().IntVarP(&exportLastN, "last", "n", 1,
		"number of recent runs to include")
	exportCmd.Flags().StringVar(&exportMinSeverity, "min-severity", "",
		"only export issues at or above this severity (low, medium, high, critical)")
}

// ExportRecord is a single row in the export.
type ExportRecord struct {
	RunTimestamp string  `json:"run_timestamp"`
	ID           string  `json:"id"`
	Tool         string  `json:"tool"`
	Type         string  `json:"type"`
	Category     string  `json:"category"`
	Severity     string  `json:"severity"`
	CWE          string  `json:"cwe,omitempty"`
	OWASP        string  `json:"owasp,omitempty"`
	CVSS         float64 `json:"cvss"`
	File         string  `json:"file"`
	Line         int     `json:"line"`
	Column       int     `json:"column"`
	Message      string  `json:"message"`
	Remediation  string  `json:"remediation"`
	Effort       string  `json:"effort"`
	HealthScore  string  `json:"health_score"`
	ScorePercent string  `json:"score_percent"`
}

// Export is the full export payload.
type Export struct {
	ExportedAt string         `json:"exported_at"`
	RunCount   int            `json:"run_count"`
	IssueCount int            `json:"issue_count"`
	Records    []ExportRecord `json:"records"`
}

func runExport(cmd *cobra.Command, args []string) error {
	switch exportFormat {
	case "csv", "json", "sarif":
	default:
		return &ValidationError{Message: fmt.Sprintf("unsupported format: %s (use csv, json, or sarif)", exportFormat)}
	}

	minRank := 0
	if exportMinSeverity != "" {
		minRank = models.SeverityRank(strings.ToLower(exportMinSeverity))
		if minRank == 0 {
			return &ValidationError{Message: fmt.Sprintf("unknown severity: %s", exportMinSeverity)}
		}
	}

	storagePath, err := getStoragePath(cfg.StorageDir)
	if err != nil {
		logError("Failed to get storage path: %v", err)
		return err
	}

	store := storage.NewLocal(storagePath)

	reports, err := store.GetLastNRuns(exportLastN)
	if err != nil || len(reports) == 0 {
		fmt.Println("No stored runs found. Run 'codewarden scan --store' first.")
		return nil
	}

	if minRank > 0 {
		reports = filterBySeverity(reports, minRank)
	}
	logVerbose("Exporting %d runs", len(reports))

	writer, closeFn, err := openOutput(exportOutput)
	if err != nil {
		return err
	}
	defer closeFn()

	switch exportFormat {
	case "csv":
		return writeCSV(writer, buildExport(reports))
	case "json":
		return writeExportJSON(writer, buildExport(reports))
	default:
		return writeSARIF(writer, reports)
	}
}

// filterBySeverity returns copies of reports keeping only issues ranked at
// least minRank. Stored reports are left untouched.
func filterBySeverity(reports []*models.Report, minRank int) []*models.Report {
	out := make([]*models.Report, 0, len(reports))
	for _, r := range reports {
		kept := *r
		kept.Issues = nil
		for _, issue := range r.Issues {
			if models.SeverityRank(issue.Severity) >= minRank {
				kept.Issues = append(kept.Issues, issue)
			}
		}
		out = append(out, &kept)
	}
	return out
}

func buildExport(reports []*models.Report) *Export {
	var records []ExportRecord

	for _, report := range reports {
		ts := report.Timestamp.Format(time.RFC3339)
		health := report.Summary.HealthScore
		score := fmt.Sprintf("%.1f", report.Summary.ScorePercent)

		for _, issue := range report.Issues {
			records = append(records, ExportRecord{
				RunTimestamp: ts,
				ID:           issue.ID,
				Tool:         issue.ToolName,
				Type:         issue.Type,
				Category:     issue.Category,
				Severity:     issue.Severity,
				CWE:          issue.CWEID,
				OWASP:        issue.OWASPCategory,
				CVSS:         issue.CVSSScore,
				File:         issue.Filename,
				Line:         issue.Line,
				Column:       issue.Column,
				Message:      issue.Message,
				Remediation:  issue.Remediation.Description,
				Effort:       issue.Remediation.Effort,
				HealthScore:  health,
				ScorePercent: score,
			})
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		si, sj := models.SeverityRank(records[i].Severity), models.SeverityRank(records[j].Severity)
		if si != sj {
			return si > sj
		}
		if records[i].File != records[j].File {
			return records[i].File < records[j].File
		}
		return records[i].Line < records[j].Line
	})

	return &Export{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		RunCount:   len(reports),
		IssueCount: len(records),
		Records:    records,
	}
}

func writeCSV(w io.Writer, export *Export) error {
	writer := csv.NewWriter(w)

	header := []string{
		"run_timestamp", "id", "tool", "type", "category", "severity", "cwe", "owasp",
		"cvss", "file", "line", "column", "message", "remediation", "effort",
		"health_score", "score_percent",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range export.Records {
		row := []string{
			r.RunTimestamp, r.ID, r.Tool, r.Type, r.Category, r.Severity, r.CWE, r.OWASP,
			strconv.FormatFloat(r.CVSS, 'f', 1, 64), r.File, strconv.Itoa(r.Line), strconv.Itoa(r.Column),
			r.Message, r.Remediation, r.Effort, r.HealthScore, r.ScorePercent,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeExportJSON(w io.Writer, export *Export) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(export)
}

// SARIF 2.1.0 output for GitHub Advanced Security integration.
// Minimal structures, only what's needed for valid SARIF.

type sarifLog struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri,omitempty"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string             `json:"id"`
	ShortDescription sarifMessage       `json:"shortDescription"`
	HelpURI          string             `json:"helpUri,omitempty"`
	DefaultConfig    sarifDefaultConfig `json:"defaultConfiguration"`
	Properties       sarifRuleProps     `json:"properties"`
}

// sarifRuleProps carries the fields code scanning uses to rank alerts
type sarifRuleProps struct {
	Tags             []string `json:"tags,omitempty"`
	SecuritySeverity string   `json:"security-severity,omitempty"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID              string            `json:"ruleId"`
	Level               string            `json:"level"`
	Message             sarifMessage      `json:"message"`
	Locations           []sarifLocation   `json:"locations"`
	PartialFingerprints map[string]string `json:"partialFingerprints,omitempty"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysical `json:"physicalLocation"`
}

type sarifPhysical struct {
	ArtifactLocation sarifArtifact `json:"artifactLocation"`
	Region           *sarifRegion  `json:"region,omitempty"`
}

type sarifArtifact struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn,omitempty"`
}

// sarifRuleID groups findings by tool and the most specific classifier
func sarifRuleID(issue models.SecurityIssue) string {
	if issue.CWEID != "" {
		return issue.ToolName + "/" + issue.CWEID
	}
	return issue.ToolName + "/" + issue.Type
}

func writeSARIF(w io.Writer, reports []*models.Report) error {
	rulesMap := map[string]sarifRule{}
	results := []sarifResult{}

	for _, report := range reports {
		for _, issue := range report.Issues {
			ruleID := sarifRuleID(issue)
			if _, exists := rulesMap[ruleID]; !exists {
				rule := sarifRule{
					ID:               ruleID,
					ShortDescription: sarifMessage{Text: strings.TrimSpace(issue.Category + " " + issue.Type)},
					DefaultConfig:    sarifDefaultConfig{Level: sarifLevel(issue.Severity)},
				}
				if len(issue.References) > 0 {
					rule.HelpURI = issue.References[0]
				}
				rulesMap[ruleID] = rule
			}
			rulesMap[ruleID] = mergeRuleProps(rulesMap[ruleID], issue)

			physical := sarifPhysical{ArtifactLocation: sarifArtifact{URI: issue.Filename}}
			if issue.Line > 0 {
				physical.Region = &sarifRegion{StartLine: issue.Line, StartColumn: issue.Column}
			}

			results = append(results, sarifResult{
				RuleID:              ruleID,
				Level:               sarifLevel(issue.Severity),
				Message:             sarifMessage{Text: formatSARIFMessage(issue)},
				Locations:           []sarifLocation{{PhysicalLocation: physical}},
				PartialFingerprints: map[string]string{"codewardenIssueId": issue.ID},
			})
		}
	}

	rules := make([]sarifRule, 0, len(rulesMap))
	for _, r := range rulesMap {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })

	log := sarifLog{
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json",
		Version: "2.1.0",
		Runs: []sarifRun{{
			Tool: sarifTool{
				Driver: sarifDriver{
					Name:           "codewarden",
					Version:        version,
					InformationURI: "https://github.com/ppiankov/codewarden",
					Rules:          rules,
				},
			},
			Results: results,
		}},
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(log)
}

// mergeRuleProps keeps the highest CVSS seen for a rule as its security
// severity and collects tags from every finding it groups
func mergeRuleProps(rule sarifRule, issue models.SecurityIssue) sarifRule {
	if issue.CVSSScore > 0 {
		cur, _ := strconv.ParseFloat(rule.Properties.SecuritySeverity, 64)
		if issue.CVSSScore > cur {
			rule.Properties.SecuritySeverity = strconv.FormatFloat(issue.CVSSScore, 'f', 1, 64)
		}
	}

	tags := append([]string{"security"}, issue.Tags...)
	if issue.CWEID != "" {
		tags = append(tags, "external/cwe/"+strings.ToLower(issue.CWEID))
	}
	for _, tag := range tags {
		if !slices.Contains(rule.Properties.Tags, tag) {
			rule.Properties.Tags = append(rule.Properties.Tags, tag)
		}
	}
	sort.Strings(rule.Properties.Tags)
	return rule
}

func sarifLevel(severity string) string {
	switch severity {
	case models.SeverityCritical, models.SeverityHigh:
		return "error"
	case models.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}

func formatSARIFMessage(issue models.SecurityIssue) string {
	parts := []string{issue.Message}
	if issue.Recommendation != "" {
		parts = append(parts, issue.Recommendation)
	}
	return strings.Join(parts, ". ")
}
