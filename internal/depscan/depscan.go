// Package depscan turns dependency manifests into package queries and
// looks those packages up in a vulnerability database.
package depscan

import "context"

// OSV ecosystem names
const (
	EcosystemNPM       = "npm"
	EcosystemPyPI      = "PyPI"
	EcosystemGo        = "Go"
	EcosystemCrates    = "crates.io"
	EcosystemPackagist = "Packagist"
	EcosystemRubyGems  = "RubyGems"
	EcosystemMaven     = "Maven"
	EcosystemNuGet     = "NuGet"
)

// PackageQuery identifies one dependency to look up. Version is empty
// when the manifest only carries a range.
type PackageQuery struct {
	Name      string `json:"name"`
	Version   string `json:"version,omitempty"`
	Ecosystem string `json:"ecosystem"`
	Manifest  string `json:"manifest"`
	Dev       bool   `json:"dev,omitempty"`
}

func (q PackageQuery) key() string {
	return q.Ecosystem + "|" + q.Name + "|" + q.Version
}

// Vulnerability is one advisory affecting a package
type Vulnerability struct {
	ID           string   `json:"id"`
	Aliases      []string `json:"aliases,omitempty"`
	Summary      string   `json:"summary"`
	Severity     string   `json:"severity"` // critical, high, medium, low
	CVSSScore    float64  `json:"cvss_score"`
	CVSSVector   string   `json:"cvss_vector,omitempty"`
	CWEs         []string `json:"cwes,omitempty"`
	References   []string `json:"references,omitempty"`
	FixedVersion string   `json:"fixed_version,omitempty"`
}

// PackageReport is the scanner result for one query
type PackageReport struct {
	Package         PackageQuery    `json:"package"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
	Outdated        bool            `json:"outdated"`
	LatestVersion   string          `json:"latest_version,omitempty"`
}

// Scanner resolves package queries to vulnerability reports. Results are
// returned in query order.
type Scanner interface {
	Scan(ctx context.Context, queries []PackageQuery) ([]PackageReport, error)
}

// Vulnerable returns the reports with at least one vulnerability
func Vulnerable(reports []PackageReport) []PackageReport {
	var out []PackageReport
	for _, r := range reports {
		if len(r.Vulnerabilities) > 0 {
			out = append(out, r)
		}
	}
	return out
}
