package reporter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/codewarden/internal/archive"
	"github.com/ppiankov/codewarden/internal/models"
)

// GenerateArchive writes a text summary of one archive analysis
func (r *TextReporter) GenerateArchive(res *archive.ZipAnalysisResult) error {
	m := res.Metadata
	r.printHeader("codewarden Archive Report")
	r.printf("Archive: %s (%s)\n", m.ArchiveName, formatSize(m.ArchiveSize))
	r.printf("Analyzed: %s in %s\n", formatTimestamp(m.AnalyzedAt), m.Duration.Round(1e6))
	r.printf("Rule Set: %s\n", m.RuleSetVersion)
	if m.HeadersOnly {
		r.printf("%s\n", r.paint.render(severityStyle(models.SeverityCritical),
			"Not decompressed: declared size exceeds the extraction limit; results come from archive headers"))
	}
	r.printf("\n")

	st := res.Structure
	r.printSection("Structure")
	r.printf("  Files: %d  Directories: %d  Max Depth: %d\n", st.TotalFiles, st.TotalDirectories, st.MaxDepth)
	r.printf("  Uncompressed: %s  Ratio: %.3f\n", formatSize(st.TotalSize), st.CompressionRatio)
	if len(st.SuspiciousFiles) > 0 {
		r.printf("  Suspicious Files: %s\n", strings.Join(st.SuspiciousFiles, ", "))
	}
	r.printf("\n")

	r.printSection("Threats")
	if len(res.Threats) == 0 {
		r.printf("  None detected\n")
	} else {
		r.printSeverityCounts(res.ThreatsBySeverity())
	}
	for _, t := range res.Threats {
		sev := r.paint.render(severityStyle(t.Severity), fmt.Sprintf("[%s]", strings.ToUpper(t.Severity)))
		r.printf("  %s %s: %s\n", sev, t.Type, t.File)
		r.printf("     %s\n", t.Description)
		for _, e := range t.Evidence {
			r.printf("     %s\n", r.paint.render(styleMuted, e))
		}
	}
	r.printf("\n")

	q := res.Quality
	r.printSection("Code Quality")
	r.printf("  Scanned Files: %d  Lines of Code: %d\n", q.ScannedFiles, q.LinesOfCode)
	r.printf("  Bugs: %d  Vulnerabilities: %d  Code Smells: %d  Hotspots: %d\n",
		q.Bugs, q.Vulnerabilities, q.CodeSmells, q.SecurityHotspots)
	r.printf("  Avg Complexity: %.1f  Avg Maintainability: %.1f\n", q.AvgCyclomatic, q.AvgMaintainability)
	r.printf("  Technical Debt: %s  Gate Failures: %d\n", formatMinutes(q.TechnicalDebtMinutes), q.GateFailures)
	if len(q.DuplicateFiles) > 0 {
		r.printf("  Duplicate Groups: %d\n", len(q.DuplicateFiles))
	}
	r.printf("\n")

	if len(res.Manifests) > 0 {
		r.printSection("Dependency Manifests")
		for _, mf := range res.Manifests {
			kind := "manifest"
			if mf.Lockfile {
				kind = "lockfile"
			}
			r.printf("  %s (%s, %s)\n", mf.Path, mf.Ecosystem, kind)
		}
		for _, note := range res.SupplyChain {
			r.printf("  - %s\n", note)
		}
		r.printf("\n")
	}

	if len(res.Compliance) > 0 {
		r.printSection("Compliance")
		for _, c := range res.Compliance {
			r.printf("  [%s] %s\n", strings.ToUpper(c.Severity), c.Description)
		}
		r.printf("\n")
	}

	if len(res.Recommendations) > 0 {
		r.printSection("Recommendations")
		for _, rec := range res.Recommendations {
			r.printf("  %d. %s\n", rec.Priority, rec.Title)
			r.printf("     %s\n", rec.Description)
		}
	}

	return nil
}

// printSeverityCounts prints counts in severity order
func (r *TextReporter) printSeverityCounts(counts map[string]int) {
	sevs := make([]string, 0, len(counts))
	for s := range counts {
		sevs = append(sevs, s)
	}
	sort.Slice(sevs, func(i, j int) bool {
		return models.SeverityRank(sevs[i]) > models.SeverityRank(sevs[j])
	})
	for _, s := range sevs {
		r.printf("  %s: %d\n", r.paint.render(severityStyle(s), titleCase(s)), counts[s])
	}
}

// formatSize renders a byte count in B, KB or MB
func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
