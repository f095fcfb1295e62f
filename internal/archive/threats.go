package archive

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ppiankov/codewarden/internal/models"
)

// ThreatType is the kind of archive-level finding
type ThreatType string

const (
	ThreatMalware        ThreatType = "malware"
	ThreatSuspiciousFile ThreatType = "suspicious_file"
	ThreatZipBomb        ThreatType = "zip_bomb"
	ThreatPathTraversal  ThreatType = "path_traversal"
	ThreatExecutable     ThreatType = "executable"
	ThreatEncrypted      ThreatType = "encrypted"
)

// SecurityThreat is one finding about an archive entry
type SecurityThreat struct {
	Type        ThreatType `json:"type"`
	Severity    string     `json:"severity"`
	File        string     `json:"file"`
	Description string     `json:"description"`
	Evidence    []string   `json:"evidence,omitempty"`
	Mitigation  string     `json:"mitigation"`
	CWE         string     `json:"cwe,omitempty"`
}

// Zip bomb thresholds
const (
	zipBombMaxRatio = 0.01
	zipBombMinSize  = 1_000_000
)

const (
	maxEvidence       = 3
	maxEvidenceLength = 120
)

// malwarePatterns are obfuscation and execution heuristics applied to
// decoded text entries. They are a starting set, not a complete detector.
var malwarePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\beval\s*\(\s*(?:atob|unescape|decodeURIComponent|base64_decode|gzinflate|gzuncompress|str_rot13)\s*\(`),
	regexp.MustCompile(`\bnew\s+Function\s*\([^)]*(?:atob|unescape|fromCharCode)`),
	regexp.MustCompile(`(?i)\bdocument\.write\s*\(\s*unescape\s*\(`),
	regexp.MustCompile(`String\.fromCharCode\s*\(\s*(?:\d+\s*,\s*){20,}\d+`),
	regexp.MustCompile(`(?i)\b(?:shell_exec|passthru|proc_open)\s*\(`),
	regexp.MustCompile(`(?i)\b(?:system|exec|popen)\s*\(\s*\$_(?:GET|POST|REQUEST|COOKIE)`),
	regexp.MustCompile(`(?i)\b(?:eval|exec|assert)\s*\(\s*(?:base64_decode|base64\.b64decode|Buffer\.from)\s*\(`),
	regexp.MustCompile(`(?i)base64\s+(?:-d|--decode)\s*\|\s*(?:ba|z)?sh\b`),
}

// DetectThreats runs the per-entry heuristics
func DetectThreats(e ArchiveEntry) []SecurityThreat {
	if e.IsDirectory {
		if isTraversal(e.Path) {
			return []SecurityThreat{pathTraversalThreat(e)}
		}
		return nil
	}

	var threats []SecurityThreat

	if e.CompressionRatio < zipBombMaxRatio && e.Size > zipBombMinSize {
		threats = append(threats, SecurityThreat{
			Type:     ThreatZipBomb,
			Severity: models.SeverityCritical,
			File:     e.Path,
			Description: fmt.Sprintf("entry expands to %d bytes at compression ratio %.4f",
				e.Size, e.CompressionRatio),
			Evidence:   []string{fmt.Sprintf("size=%d", e.Size), fmt.Sprintf("ratio=%.4f", e.CompressionRatio)},
			Mitigation: "Do not extract; enforce decompression size limits",
			CWE:        "CWE-409",
		})
	}

	if isTraversal(e.Path) {
		threats = append(threats, pathTraversalThreat(e))
	}

	if isExecutable(e.Path) {
		threats = append(threats, SecurityThreat{
			Type:        ThreatExecutable,
			Severity:    models.SeverityMedium,
			File:        e.Path,
			Description: fmt.Sprintf("executable or script file %s", e.Name),
			Mitigation:  "Verify the origin of bundled executables and scan them with antivirus",
			CWE:         "CWE-434",
		})
	}

	if e.Encrypted {
		threats = append(threats, SecurityThreat{
			Type:        ThreatEncrypted,
			Severity:    models.SeverityMedium,
			File:        e.Path,
			Description: "encrypted entry cannot be inspected",
			Mitigation:  "Obtain the decrypted content and re-run the analysis",
			CWE:         "CWE-311",
		})
	}

	if isDangerousBasename(e.Path) {
		threats = append(threats, SecurityThreat{
			Type:        ThreatSuspiciousFile,
			Severity:    models.SeverityMedium,
			File:        e.Path,
			Description: fmt.Sprintf("sensitive file %s included in archive", e.Name),
			Mitigation:  "Remove server configuration and credential files from distributed bundles",
			CWE:         "CWE-200",
		})
	} else if isHidden(e.Path) {
		threats = append(threats, SecurityThreat{
			Type:        ThreatSuspiciousFile,
			Severity:    models.SeverityLow,
			File:        e.Path,
			Description: fmt.Sprintf("hidden file %s included in archive", e.Name),
			Mitigation:  "Confirm hidden files are intended to ship",
			CWE:         "CWE-200",
		})
	}

	if e.Content != nil {
		if evidence := malwareEvidence(*e.Content); len(evidence) > 0 {
			threats = append(threats, SecurityThreat{
				Type:        ThreatMalware,
				Severity:    models.SeverityCritical,
				File:        e.Path,
				Description: "content matches obfuscation or remote execution patterns",
				Evidence:    evidence,
				Mitigation:  "Quarantine the archive and review the flagged code manually",
				CWE:         "CWE-506",
			})
		}
	}

	return threats
}

func isTraversal(p string) bool {
	return strings.Contains(p, "../") || strings.Contains(p, `..\`)
}

func pathTraversalThreat(e ArchiveEntry) SecurityThreat {
	return SecurityThreat{
		Type:        ThreatPathTraversal,
		Severity:    models.SeverityHigh,
		File:        e.Path,
		Description: "entry path escapes the extraction directory",
		Evidence:    []string{e.Path},
		Mitigation:  "Reject entries containing '..' segments when extracting",
		CWE:         "CWE-22",
	}
}

// malwareEvidence returns up to three matched snippets
func malwareEvidence(content string) []string {
	var evidence []string
	for _, re := range malwarePatterns {
		for _, m := range re.FindAllString(content, maxEvidence) {
			if len(m) > maxEvidenceLength {
				m = m[:maxEvidenceLength] + "..."
			}
			evidence = append(evidence, m)
			if len(evidence) == maxEvidence {
				return evidence
			}
		}
	}
	return evidence
}

func threatRank(t SecurityThreat) int {
	return models.SeverityRank(t.Severity)
}
