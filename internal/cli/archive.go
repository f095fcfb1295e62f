package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/ppiankov/codewarden/internal/aggregator"
	"github.com/ppiankov/codewarden/internal/archive"
	"github.com/ppiankov/codewarden/internal/depscan"
	"github.com/ppiankov/codewarden/internal/reporter"
	"github.com/spf13/cobra"
)

var (
	archiveFormat     string
	archiveOutput     string
	archiveIssues     bool
	archiveStore      bool
	archiveThreshold  int
	archiveDepsOnline bool
	archiveOSVURL     string
	archivePolicy     string
)

var archiveCmd = &cobra.Command{
	Use:   "archive <file.zip | s3://bucket/key>",
	Short: "Inspect a zip archive for threats, quality, and compliance",
	Long: `Archive reads a zip file from disk or object storage and inspects every
entry without extracting it to disk.

Checks include zip bombs, path traversal, executables, hidden files,
malware indicators, dependency manifests, licenses, and code quality of
the text members.

With --issues the findings are normalized into the common issue report
and go through storage, policy, and threshold like a scan.

Example:
  codewarden archive upload.zip
  codewarden archive s3://uploads/build-42.zip --format json
  codewarden archive release.zip --deps-online
  codewarden archive release.zip --issues --store --fail-threshold 0`,
	Args: cobra.ExactArgs(1),
	RunE: runArchive,
}

func init() {
	archiveCmd.Flags().StringVarP(&archiveFormat, "format", "f", "",
		"output format: text or json (default from config)")
	archiveCmd.Flags().StringVarP(&archiveOutput, "output", "o", "",
		"output file path (default: stdout)")
	archiveCmd.Flags().BoolVar(&archiveIssues, "issues", false,
		"emit the normalized issue report instead of the archive report")
	archiveCmd.Flags().BoolVar(&archiveStore, "store", false,
		"store the issue report (requires --issues)")
	archiveCmd.Flags().IntVar(&archiveThreshold, "fail-threshold", -1,
		"exit with code 1 if issues exceed this threshold (requires --issues)")
	archiveCmd.Flags().BoolVar(&archiveDepsOnline, "deps-online", false,
		"look up manifest dependencies in the OSV database")
	archiveCmd.Flags().StringVar(&archiveOSVURL, "osv-url", "",
		"OSV API base URL (default: https://api.osv.dev/v1)")
	archiveCmd.Flags().StringVar(&archivePolicy, "policy", "",
		"policy file (requires --issues)")
}

func runArchive(cmd *cobra.Command, args []string) error {
	if archiveFormat == "" {
		archiveFormat = cfg.Format
	}
	if archiveThreshold == -1 {
		archiveThreshold = cfg.FailThreshold
	}
	if archiveStore && !archiveIssues {
		return &ValidationError{Message: "--store requires --issues"}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	src, err := openArchiveSource(ctx, args[0])
	if err != nil {
		return err
	}

	eng, err := loadEngine()
	if err != nil {
		return err
	}

	inspector := archive.New(eng, archive.Limits{
		MaxArchiveBytes: cfg.MaxArchiveBytes(),
		MaxEntries:      cfg.MaxEntries,
		MaxDepth:        cfg.MaxDepth,
		MaxTextBytes:    cfg.MaxTextBytes(),
	})
	inspector.SetLogger(newLogger())

	logVerbose("Inspecting %s (%d bytes)", src.Name(), src.Size())
	result, err := inspector.Analyze(ctx, src)
	if err != nil {
		logError("Failed to analyze archive: %v", err)
		return err
	}
	logVerbose("Found %d threat(s) in %d file(s)", len(result.Threats), result.Structure.TotalFiles)

	var deps []depscan.PackageReport
	if archiveDepsOnline && len(result.Manifests) > 0 {
		deps, err = lookupDependencies(ctx, result.Manifests, archiveOSVURL)
		if err != nil {
			logError("Dependency lookup failed: %v", err)
			return err
		}
	}

	if archiveIssues {
		_, err := RunPipeline(aggregator.Input{
			Target:       args[0],
			FilesScanned: result.Structure.TotalFiles,
			Archives:     []*archive.ZipAnalysisResult{result},
			Dependencies: deps,
		}, PipelineConfig{
			Format:     archiveFormat,
			Output:     archiveOutput,
			Store:      archiveStore,
			StorageDir: cfg.StorageDir,
			Threshold:  archiveThreshold,
			PolicyPath: archivePolicy,
			KeepRuns:   keepRuns(),
			Catalog:    eng.Catalog(),
		})
		return err
	}

	writer, closeFn, err := openOutput(archiveOutput)
	if err != nil {
		return err
	}
	defer closeFn()

	switch archiveFormat {
	case "json":
		payload := struct {
			*archive.ZipAnalysisResult
			Dependencies []depscan.PackageReport `json:"dependencies,omitempty"`
		}{result, deps}
		return reporter.NewJSONReporter(writer, true).Encode(payload)
	case "text", "both":
		tr := reporter.NewTextReporter(writer, reporter.ColorEnabled(writer))
		if err := tr.GenerateArchive(result); err != nil {
			return err
		}
		for _, d := range deps {
			fmt.Fprintf(writer, "  [VULN] %s@%s (%s): %d advisory(ies)\n",
				d.Package.Name, d.Package.Version, d.Package.Ecosystem, len(d.Vulnerabilities))
		}
		return nil
	default:
		return &ValidationError{Message: fmt.Sprintf("unsupported format: %s (use text or json)", archiveFormat)}
	}
}

// openArchiveSource resolves a local path or s3:// URL to an archive source
func openArchiveSource(ctx context.Context, target string) (archive.Source, error) {
	if !strings.HasPrefix(target, "s3://") {
		src, err := archive.NewFileSource(target)
		if err != nil {
			return nil, &ValidationError{Message: err.Error()}
		}
		return src, nil
	}

	bucket, key, err := archive.ParseS3URL(target)
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	client, err := archive.NewS3Client(archive.S3Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	logDebug("Fetching s3://%s/%s from %s", bucket, key, cfg.S3.Endpoint)
	return archive.NewS3Source(ctx, client, bucket, key)
}
