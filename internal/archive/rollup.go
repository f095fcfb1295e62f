package archive

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/codewarden/internal/catalog"
	"github.com/ppiankov/codewarden/internal/engine"
	"github.com/ppiankov/codewarden/internal/models"
)

const largestFilesLimit = 10

// FileStructure summarizes the archive layout
type FileStructure struct {
	TotalFiles       int            `json:"total_files"`
	TotalDirectories int            `json:"total_directories"`
	TotalSize        int64          `json:"total_size"`
	ArchiveSize      int64          `json:"archive_size"`
	CompressionRatio float64        `json:"compression_ratio"`
	MaxDepth         int            `json:"max_depth"`
	FileTypes        map[string]int `json:"file_types"`
	SuspiciousFiles  []string       `json:"suspicious_files"`
}

// FileSize pairs a path with its size
type FileSize struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// DuplicateGroup lists entries with identical content
type DuplicateGroup struct {
	Checksum string   `json:"checksum"`
	Paths    []string `json:"paths"`
}

// QualityRollup aggregates file kinds and Rule Engine results across the archive
type QualityRollup struct {
	TotalFiles           int                 `json:"total_files"`
	FilesByKind          map[FileKind]int    `json:"files_by_kind"`
	TotalSize            int64               `json:"total_size"`
	AverageFileSize      float64             `json:"average_file_size"`
	LargestFiles         []FileSize          `json:"largest_files"`
	DuplicateFiles       []DuplicateGroup    `json:"duplicate_files"`
	ScannedFiles         int                 `json:"scanned_files"`
	LinesOfCode          int                 `json:"lines_of_code"`
	AvgCyclomatic        float64             `json:"avg_cyclomatic_complexity"`
	AvgMaintainability   float64             `json:"avg_maintainability_index"`
	TechnicalDebtMinutes int                 `json:"technical_debt_minutes"`
	Bugs                 int                 `json:"bugs"`
	Vulnerabilities      int                 `json:"vulnerabilities"`
	CodeSmells           int                 `json:"code_smells"`
	SecurityHotspots     int                 `json:"security_hotspots"`
	GateFailures         int                 `json:"gate_failures"`
	Files                []engine.ScanResult `json:"files,omitempty"`
}

// ComplianceIssue is a packaging or licensing concern
type ComplianceIssue struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	File        string `json:"file,omitempty"`
	Description string `json:"description"`
}

// Compliance issue types
const (
	ComplianceMissingLicense = "missing_license"
	ComplianceLicenseReview  = "license_review"
	ComplianceSecretFile     = "secret_file"
)

// Recommendation is one prioritized follow-up (1 = most urgent)
type Recommendation struct {
	Priority    int    `json:"priority"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func buildStructure(entries []ArchiveEntry, archiveSize int64) FileStructure {
	s := FileStructure{
		ArchiveSize:     archiveSize,
		FileTypes:       map[string]int{},
		SuspiciousFiles: []string{},
	}

	for _, e := range entries {
		if d := pathDepth(e.Path); d > s.MaxDepth {
			s.MaxDepth = d
		}
		if e.IsDirectory {
			s.TotalDirectories++
			continue
		}

		s.TotalFiles++
		s.TotalSize += e.Size

		ext := extOf(e.Path)
		if ext == "" {
			ext = "(none)"
		}
		s.FileTypes[ext]++

		if isSuspiciousName(e.Path) {
			s.SuspiciousFiles = append(s.SuspiciousFiles, e.Path)
		}
	}

	if s.TotalSize > 0 {
		s.CompressionRatio = float64(archiveSize) / float64(s.TotalSize)
	}
	return s
}

func collectManifests(entries []ArchiveEntry) []ManifestFile {
	manifests := []ManifestFile{}
	for _, e := range entries {
		if e.IsDirectory {
			continue
		}
		kind, ok := lookupManifest(e.Path)
		if !ok {
			continue
		}
		m := ManifestFile{Name: e.Name, Path: e.Path, Ecosystem: kind.ecosystem, Lockfile: kind.lockfile}
		if e.Content != nil {
			m.Content = *e.Content
		}
		manifests = append(manifests, m)
	}
	return manifests
}

func collectLicenses(entries []ArchiveEntry) []LicenseFile {
	licenses := []LicenseFile{}
	for _, e := range entries {
		if !e.IsDirectory && isLicenseFile(e.Path) {
			licenses = append(licenses, LicenseFile{Path: e.Path, License: "unknown", Status: "review_required"})
		}
	}
	return licenses
}

// buildQuality classifies entries and scans code text through eng
func buildQuality(eng *engine.Engine, entries []ArchiveEntry) QualityRollup {
	q := QualityRollup{FilesByKind: map[FileKind]int{}}

	byChecksum := map[string][]string{}
	var sizes []FileSize
	var ccSum, miSum float64

	for _, e := range entries {
		if e.IsDirectory {
			continue
		}

		q.TotalFiles++
		q.TotalSize += e.Size
		kind := classifyKind(e.Path)
		q.FilesByKind[kind]++
		sizes = append(sizes, FileSize{Path: e.Path, Size: e.Size})

		if e.Checksum != ChecksumUnknown && e.Size > 0 {
			byChecksum[e.Checksum] = append(byChecksum[e.Checksum], e.Path)
		}

		if (kind != KindCode && kind != KindTest) || e.Content == nil {
			continue
		}
		lang := catalog.LanguageForFile(e.Path)
		if lang == "" {
			continue
		}

		res := eng.Scan(*e.Content, e.Path, lang)
		q.ScannedFiles++
		q.LinesOfCode += res.Metrics.LinesOfCode
		q.TechnicalDebtMinutes += res.TechnicalDebtMinutes
		q.Bugs += res.Metrics.Bugs
		q.Vulnerabilities += res.Metrics.Vulnerabilities
		q.CodeSmells += res.Metrics.CodeSmells
		q.SecurityHotspots += res.Metrics.SecurityHotspots
		if !res.QualityGate.Passed {
			q.GateFailures++
		}
		ccSum += float64(res.Metrics.CyclomaticComplexity)
		miSum += res.Metrics.MaintainabilityIndex
		q.Files = append(q.Files, res)
	}

	if q.TotalFiles > 0 {
		q.AverageFileSize = float64(q.TotalSize) / float64(q.TotalFiles)
	}
	if q.ScannedFiles > 0 {
		q.AvgCyclomatic = ccSum / float64(q.ScannedFiles)
		q.AvgMaintainability = miSum / float64(q.ScannedFiles)
	}

	sort.SliceStable(sizes, func(i, j int) bool {
		if sizes[i].Size != sizes[j].Size {
			return sizes[i].Size > sizes[j].Size
		}
		return sizes[i].Path < sizes[j].Path
	})
	if len(sizes) > largestFilesLimit {
		sizes = sizes[:largestFilesLimit]
	}
	q.LargestFiles = sizes

	for sum, paths := range byChecksum {
		if len(paths) > 1 {
			sort.Strings(paths)
			q.DuplicateFiles = append(q.DuplicateFiles, DuplicateGroup{Checksum: sum, Paths: paths})
		}
	}
	sort.Slice(q.DuplicateFiles, func(i, j int) bool {
		return q.DuplicateFiles[i].Paths[0] < q.DuplicateFiles[j].Paths[0]
	})

	return q
}

// supplyChainNotes flags manifests without lockfiles and mixed ecosystems
func supplyChainNotes(manifests []ManifestFile) []string {
	notes := []string{}
	if len(manifests) == 0 {
		return notes
	}

	hasManifest := map[string][]string{}
	hasLock := map[string]bool{}
	for _, m := range manifests {
		if m.Lockfile {
			hasLock[m.Ecosystem] = true
		} else {
			hasManifest[m.Ecosystem] = append(hasManifest[m.Ecosystem], m.Path)
		}
	}

	ecosystems := make([]string, 0, len(hasManifest))
	for eco := range hasManifest {
		ecosystems = append(ecosystems, eco)
	}
	for eco := range hasLock {
		if _, ok := hasManifest[eco]; !ok {
			ecosystems = append(ecosystems, eco)
		}
	}
	sort.Strings(ecosystems)

	for _, eco := range ecosystems {
		if paths, ok := hasManifest[eco]; ok && !hasLock[eco] {
			notes = append(notes, fmt.Sprintf("%s manifest %s has no lockfile; dependency versions are not pinned",
				eco, strings.Join(paths, ", ")))
		}
	}
	if len(ecosystems) > 1 {
		notes = append(notes, fmt.Sprintf("multiple package ecosystems: %s", strings.Join(ecosystems, ", ")))
	}
	notes = append(notes, fmt.Sprintf("%d dependency manifest(s) available for vulnerability lookup", len(manifests)))

	return notes
}

func complianceIssues(entries []ArchiveEntry, licenses []LicenseFile, quality QualityRollup) []ComplianceIssue {
	issues := []ComplianceIssue{}

	codeFiles := quality.FilesByKind[KindCode] + quality.FilesByKind[KindTest]
	if len(licenses) == 0 && codeFiles > 0 {
		issues = append(issues, ComplianceIssue{
			Type:        ComplianceMissingLicense,
			Severity:    models.SeverityMedium,
			Description: "archive contains source code but no license file",
		})
	}
	for _, l := range licenses {
		issues = append(issues, ComplianceIssue{
			Type:        ComplianceLicenseReview,
			Severity:    models.SeverityLow,
			File:        l.Path,
			Description: "license text not classified; manual review required",
		})
	}

	for _, e := range entries {
		if !e.IsDirectory && isSecretBearing(e.Path) {
			issues = append(issues, ComplianceIssue{
				Type:        ComplianceSecretFile,
				Severity:    models.SeverityHigh,
				File:        e.Path,
				Description: fmt.Sprintf("%s usually holds credentials and should not be distributed", e.Name),
			})
		}
	}
	return issues
}

// buildRecommendations derives a priority list from the findings
func buildRecommendations(threats []SecurityThreat, compliance []ComplianceIssue, quality QualityRollup, manifests []ManifestFile) []Recommendation {
	recs := []Recommendation{}
	count := map[ThreatType]int{}
	for _, t := range threats {
		count[t.Type]++
	}

	if count[ThreatMalware] > 0 || count[ThreatZipBomb] > 0 {
		recs = append(recs, Recommendation{
			Priority:    1,
			Category:    "security",
			Title:       "Quarantine the archive",
			Description: fmt.Sprintf("%d malware and %d zip bomb finding(s); do not extract or deploy", count[ThreatMalware], count[ThreatZipBomb]),
		})
	}
	if count[ThreatPathTraversal] > 0 {
		recs = append(recs, Recommendation{
			Priority:    1,
			Category:    "security",
			Title:       "Sanitize extraction paths",
			Description: fmt.Sprintf("%d entr(ies) escape the extraction directory", count[ThreatPathTraversal]),
		})
	}
	if quality.Vulnerabilities > 0 {
		recs = append(recs, Recommendation{
			Priority:    2,
			Category:    "code",
			Title:       "Fix code vulnerabilities",
			Description: fmt.Sprintf("%d vulnerabilit(ies) found across %d scanned file(s)", quality.Vulnerabilities, quality.ScannedFiles),
		})
	}
	if count[ThreatExecutable] > 0 || count[ThreatEncrypted] > 0 {
		recs = append(recs, Recommendation{
			Priority:    2,
			Category:    "security",
			Title:       "Review opaque content",
			Description: fmt.Sprintf("%d executable and %d encrypted entr(ies) cannot be verified by inspection", count[ThreatExecutable], count[ThreatEncrypted]),
		})
	}

	secretFiles, licenseIssues := 0, 0
	for _, c := range compliance {
		switch c.Type {
		case ComplianceSecretFile:
			secretFiles++
		case ComplianceMissingLicense, ComplianceLicenseReview:
			licenseIssues++
		}
	}
	if secretFiles > 0 {
		recs = append(recs, Recommendation{
			Priority:    2,
			Category:    "compliance",
			Title:       "Remove credential files",
			Description: fmt.Sprintf("%d file(s) likely contain secrets; rotate any exposed credentials", secretFiles),
		})
	}
	if count[ThreatSuspiciousFile] > 0 {
		recs = append(recs, Recommendation{
			Priority:    3,
			Category:    "security",
			Title:       "Review hidden and sensitive files",
			Description: fmt.Sprintf("%d suspicious file(s) included", count[ThreatSuspiciousFile]),
		})
	}
	if len(manifests) > 0 {
		recs = append(recs, Recommendation{
			Priority:    3,
			Category:    "dependencies",
			Title:       "Scan dependencies",
			Description: fmt.Sprintf("run a vulnerability lookup for %d manifest(s)", len(manifests)),
		})
	}
	if licenseIssues > 0 {
		recs = append(recs, Recommendation{
			Priority:    4,
			Category:    "compliance",
			Title:       "Confirm licensing",
			Description: fmt.Sprintf("%d license item(s) need review", licenseIssues),
		})
	}
	if quality.GateFailures > 0 {
		recs = append(recs, Recommendation{
			Priority:    4,
			Category:    "code",
			Title:       "Improve code quality",
			Description: fmt.Sprintf("%d file(s) fail the quality gate; %d minute(s) of technical debt", quality.GateFailures, quality.TechnicalDebtMinutes),
		})
	}
	if len(quality.DuplicateFiles) > 0 {
		recs = append(recs, Recommendation{
			Priority:    5,
			Category:    "code",
			Title:       "Remove duplicate files",
			Description: fmt.Sprintf("%d group(s) of identical files", len(quality.DuplicateFiles)),
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Priority < recs[j].Priority
	})
	return recs
}
