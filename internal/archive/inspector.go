// Package archive unpacks compressed bundles and evaluates them for
// structural, security and supply-chain risk.
package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/ppiankov/codewarden/internal/engine"
)

// Default limits
const (
	DefaultMaxArchiveBytes      = 100 << 20
	DefaultMaxEntries           = 10000
	DefaultMaxDepth             = 20
	DefaultMaxTextBytes         = 2 << 20
	DefaultMaxUncompressedBytes = 1 << 30
)

// Limits bounds the resources one analysis may use. Zero fields take
// the defaults.
type Limits struct {
	MaxArchiveBytes      int64
	MaxEntries           int
	MaxDepth             int
	MaxTextBytes         int64
	MaxUncompressedBytes int64
}

func (l Limits) withDefaults() Limits {
	if l.MaxArchiveBytes <= 0 {
		l.MaxArchiveBytes = DefaultMaxArchiveBytes
	}
	if l.MaxEntries <= 0 {
		l.MaxEntries = DefaultMaxEntries
	}
	if l.MaxDepth <= 0 {
		l.MaxDepth = DefaultMaxDepth
	}
	if l.MaxTextBytes <= 0 {
		l.MaxTextBytes = DefaultMaxTextBytes
	}
	if l.MaxUncompressedBytes <= 0 {
		l.MaxUncompressedBytes = DefaultMaxUncompressedBytes
	}
	return l
}

// Metadata describes one analysis run
type Metadata struct {
	ArchiveName     string        `json:"archive_name"`
	ArchiveSize     int64         `json:"archive_size"`
	ArchiveModified time.Time     `json:"archive_modified"`
	AnalyzedAt      time.Time     `json:"analyzed_at"`
	Duration        time.Duration `json:"duration_ns"`
	RuleSetVersion  string        `json:"rule_set_version"`
	EntriesAnalyzed int           `json:"entries_analyzed"`
	HeadersOnly     bool          `json:"headers_only,omitempty"`
}

// ZipAnalysisResult is the immutable outcome of Analyze
type ZipAnalysisResult struct {
	Metadata        Metadata          `json:"metadata"`
	Structure       FileStructure     `json:"structure"`
	Entries         []ArchiveEntry    `json:"entries"`
	Threats         []SecurityThreat  `json:"threats"`
	Manifests       []ManifestFile    `json:"manifests"`
	Licenses        []LicenseFile     `json:"licenses"`
	Quality         QualityRollup     `json:"quality"`
	SupplyChain     []string          `json:"supply_chain"`
	Compliance      []ComplianceIssue `json:"compliance"`
	Recommendations []Recommendation  `json:"recommendations"`
}

// Inspector analyzes archives. It holds no per-call state and may be
// shared between goroutines.
type Inspector struct {
	engine *engine.Engine
	limits Limits
	logger *slog.Logger
	now    func() time.Time
}

// New creates an inspector that scans code entries with eng.
// A nil eng uses the builtin catalog.
func New(eng *engine.Engine, limits Limits) *Inspector {
	if eng == nil {
		eng = engine.New(nil, engine.Options{})
	}
	return &Inspector{
		engine: eng,
		limits: limits.withDefaults(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
}

// SetLogger routes member-level diagnostics to logger
func (in *Inspector) SetLogger(logger *slog.Logger) {
	if logger != nil {
		in.logger = logger
	}
}

// Limits returns the effective limits
func (in *Inspector) Limits() Limits {
	return in.limits
}

// Analyze unpacks src and evaluates every entry. It fails with a
// *ResourceLimitError when the archive or its members exceed a limit, and
// with a *FormatError when the archive cannot be decoded. An archive whose
// declared uncompressed total is over the ceiling is still reported, from
// its headers alone, when those headers show a zip bomb.
func (in *Inspector) Analyze(ctx context.Context, src Source) (*ZipAnalysisResult, error) {
	start := in.now()

	if size := src.Size(); size > in.limits.MaxArchiveBytes {
		return nil, &ResourceLimitError{Kind: LimitArchiveSize, Limit: in.limits.MaxArchiveBytes, Actual: size}
	}

	data, err := readBounded(ctx, src, in.limits.MaxArchiveBytes)
	if err != nil {
		return nil, err
	}

	zr, declared, err := openArchive(src.Name(), data, in.limits)
	if err != nil {
		return nil, err
	}

	// over the uncompressed ceiling nothing is decompressed; the headers
	// alone decide whether this is a reportable zip bomb
	archiveSize := int64(len(data))
	headersOnly := declared > in.limits.MaxUncompressedBytes
	var entries []ArchiveEntry
	if headersOnly {
		entries = declaredEntries(zr, archiveSize)
	} else {
		entries, err = extractEntries(ctx, zr, archiveSize, in.limits, in.logger)
		if err != nil {
			return nil, err
		}
	}

	threats := []SecurityThreat{}
	for _, e := range entries {
		threats = append(threats, DetectThreats(e)...)
	}
	sort.SliceStable(threats, func(i, j int) bool {
		return threatRank(threats[i]) > threatRank(threats[j])
	})

	if headersOnly {
		if !hasThreat(threats, ThreatZipBomb) {
			return nil, &ResourceLimitError{Kind: LimitUncompressedSize, Limit: in.limits.MaxUncompressedBytes, Actual: declared}
		}
		in.logger.Warn("archive exceeds uncompressed ceiling, analyzed from headers only",
			"archive", src.Name(),
			"declared", formatBytes(declared),
			"limit", formatBytes(in.limits.MaxUncompressedBytes))
	}

	manifests := collectManifests(entries)
	licenses := collectLicenses(entries)
	quality := buildQuality(in.engine, entries)
	compliance := complianceIssues(entries, licenses, quality)

	in.logger.Debug("archive analyzed",
		"archive", src.Name(),
		"entries", len(entries),
		"threats", len(threats),
		"size", formatBytes(archiveSize))

	return &ZipAnalysisResult{
		Metadata: Metadata{
			ArchiveName:     src.Name(),
			ArchiveSize:     archiveSize,
			ArchiveModified: src.LastModified(),
			AnalyzedAt:      start,
			Duration:        in.now().Sub(start),
			RuleSetVersion:  in.engine.Catalog().Version(),
			EntriesAnalyzed: len(entries),
			HeadersOnly:     headersOnly,
		},
		Structure:       buildStructure(entries, archiveSize),
		Entries:         entries,
		Threats:         threats,
		Manifests:       manifests,
		Licenses:        licenses,
		Quality:         quality,
		SupplyChain:     supplyChainNotes(manifests),
		Compliance:      compliance,
		Recommendations: buildRecommendations(threats, compliance, quality, manifests),
	}, nil
}

// readBounded reads src up to limit bytes. Size is only a hint, so the
// read itself stops one byte past the ceiling.
func readBounded(ctx context.Context, src Source, limit int64) ([]byte, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(&ctxReader{ctx: ctx, r: rc}, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src.Name(), err)
	}
	if n := int64(len(data)); n > limit {
		return nil, &ResourceLimitError{Kind: LimitArchiveSize, Limit: limit, Actual: n}
	}
	return data, nil
}

func hasThreat(threats []SecurityThreat, kind ThreatType) bool {
	for _, t := range threats {
		if t.Type == kind {
			return true
		}
	}
	return false
}

// ThreatsBySeverity counts threats per severity
func (r *ZipAnalysisResult) ThreatsBySeverity() map[string]int {
	out := map[string]int{}
	for _, t := range r.Threats {
		out[t.Severity]++
	}
	return out
}
