package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/ppiankov/codewarden/internal/aggregator"
	"github.com/ppiankov/codewarden/internal/collector"
	"github.com/ppiankov/codewarden/internal/integrity"
	"github.com/spf13/cobra"
)

var (
	scanFormat      string
	scanOutput      string
	scanStore       bool
	scanStorageDir  string
	scanThreshold   int
	scanFailOnGate  bool
	scanExclude     []string
	scanConcurrency int
	scanTimeout     time.Duration
	scanIntegrity   bool
	scanDepsOnline  bool
	scanOSVURL      string
	scanPolicy      string
	scanTop         int
)

var scanCmd = &cobra.Command{
	Use:   "scan <path>...",
	Short: "Scan source files against the rule catalog",
	Long: `Scan walks the given files and directories, runs every code file through
the rule engine, and aggregates the findings into one report.

The command will:
1. Discover source files (excludes applied to walked directories)
2. Scan them with bounded concurrency
3. Normalize findings and compute the health score
4. Optionally check registered files for tampering (--integrity)
5. Optionally look up manifest dependencies in OSV (--deps-online)
6. Compare with the previous stored run and store this one (--store)
7. Enforce policy, quality gate, and threshold

Example:
  codewarden scan ./src
  codewarden scan ./src --store --fail-on-gate
  codewarden scan . --exclude "**/generated/**" --format json -o report.json
  codewarden scan ./app --integrity --deps-online`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "",
		"output format: text, json, or both (default from config)")
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "",
		"output file path (default: stdout)")
	scanCmd.Flags().BoolVar(&scanStore, "store", false,
		"store the report for trend analysis and diff")
	scanCmd.Flags().StringVar(&scanStorageDir, "storage-dir", "",
		"storage directory (default from config)")
	scanCmd.Flags().IntVar(&scanThreshold, "fail-threshold", -1,
		"exit with code 1 if issues exceed this threshold (default from config)")
	scanCmd.Flags().BoolVar(&scanFailOnGate, "fail-on-gate", false,
		"exit with code 1 if any file fails the quality gate")
	scanCmd.Flags().StringSliceVar(&scanExclude, "exclude", nil,
		"additional glob patterns to skip (relative to each path)")
	scanCmd.Flags().IntVar(&scanConcurrency, "concurrency", 0,
		"parallel file scans (default from config)")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 5*time.Minute,
		"overall scan timeout")
	scanCmd.Flags().BoolVar(&scanIntegrity, "integrity", false,
		"verify scanned files against the integrity baseline")
	scanCmd.Flags().BoolVar(&scanDepsOnline, "deps-online", false,
		"look up manifest dependencies in the OSV database")
	scanCmd.Flags().StringVar(&scanOSVURL, "osv-url", "",
		"OSV API base URL (default: https://api.osv.dev/v1)")
	scanCmd.Flags().StringVar(&scanPolicy, "policy", "",
		"policy file (default: nearest .codewarden-policy.yaml)")
	scanCmd.Flags().IntVar(&scanTop, "top", 0,
		"number of issues listed in text output (default 20)")
}

// newCollector builds a collector from config and command flags
func newCollector(extraExclude []string, concurrency int, timeout time.Duration) *collector.Collector {
	if concurrency <= 0 {
		concurrency = cfg.Concurrency
	}
	exclude := append(append([]string{}, cfg.Exclude...), extraExclude...)
	return collector.New(collector.Config{
		MaxConcurrency: concurrency,
		Timeout:        timeout,
		MaxFileBytes:   cfg.MaxTextBytes(),
		Exclude:        exclude,
		Logger:         newLogger(),
	})
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanFormat == "" {
		scanFormat = cfg.Format
	}
	if scanStorageDir == "" {
		scanStorageDir = cfg.StorageDir
	}
	if scanThreshold == -1 {
		scanThreshold = cfg.FailThreshold
	}

	logVerbose("Scanning: %s", strings.Join(args, ", "))
	logDebug("Config: format=%s, store=%v, threshold=%d, gate=%v", scanFormat, scanStore, scanThreshold, scanFailOnGate)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	eng, err := loadEngine()
	if err != nil {
		return err
	}

	c := newCollector(scanExclude, scanConcurrency, scanTimeout)
	result, err := c.Scan(ctx, eng, args)
	if err != nil {
		logError("Failed to scan: %v", err)
		return &ValidationError{Message: err.Error()}
	}

	for _, s := range result.Skipped {
		logDebug("Skipped %s: %s", s.Path, s.Reason)
	}
	for _, e := range result.Errors {
		logError("%v", e)
	}
	logVerbose("Scanned %d file(s), skipped %d", len(result.Scans), len(result.Skipped))

	in := aggregator.Input{
		Target:       strings.Join(args, ","),
		FilesScanned: len(result.Scans),
		Scans:        result.Scans,
	}

	if scanIntegrity {
		// the rule scan only sees code files; baselines cover every text file
		loaded, err := c.Load(ctx, args)
		if err != nil {
			return &ValidationError{Message: err.Error()}
		}
		provenance, err := checkIntegrity(ctx, args, loaded.Files)
		if err != nil {
			logError("Integrity check failed: %v", err)
			return err
		}
		in.Provenance = provenance
	}

	if scanDepsOnline {
		manifests, err := localManifests(ctx, c, args)
		if err != nil {
			logError("Failed to load manifests: %v", err)
			return err
		}
		deps, err := lookupDependencies(ctx, manifests, scanOSVURL)
		if err != nil {
			logError("Dependency lookup failed: %v", err)
			return err
		}
		in.Dependencies = deps
	}

	_, err = RunPipeline(in, PipelineConfig{
		Format:     scanFormat,
		Output:     scanOutput,
		Store:      scanStore,
		StorageDir: scanStorageDir,
		Threshold:  scanThreshold,
		FailOnGate: scanFailOnGate,
		PolicyPath: scanPolicy,
		KeepRuns:   keepRuns(),
		TopIssues:  scanTop,
		Catalog:    eng.Catalog(),
	})
	return err
}

// keepRuns is how many stored runs survive pruning; history needs at
// least last_runs plus one for diff
func keepRuns() int {
	return max(cfg.LastRuns*4, 30)
}

// checkIntegrity runs the integrity monitor over the files loaded from
// roots. Baselines outside roots are not reported as deleted.
func checkIntegrity(ctx context.Context, roots []string, files []collector.SourceFile) (*integrity.ProvenanceReport, error) {
	mon, closeFn, err := openMonitor()
	if err != nil {
		return nil, err
	}
	defer closeFn()

	batch := make([]integrity.File, 0, len(files))
	for _, f := range files {
		batch = append(batch, integrity.File{Filename: f.Path, Content: f.Content})
	}

	scoped := make([]string, 0, len(roots))
	for _, r := range roots {
		scoped = append(scoped, monitorPath(r))
	}

	report, err := mon.ScanUnder(ctx, scoped, batch)
	if err != nil {
		return nil, fmt.Errorf("integrity scan: %w", err)
	}
	logVerbose("Integrity: %d monitored, %d violation(s)", report.MonitoredFiles, report.Violations)
	return report, nil
}
