package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ppiankov/codewarden/internal/aggregator"
	"github.com/ppiankov/codewarden/internal/catalog"
	"github.com/ppiankov/codewarden/internal/models"
	"github.com/ppiankov/codewarden/internal/policy"
	"github.com/ppiankov/codewarden/internal/reporter"
	"github.com/ppiankov/codewarden/internal/storage"
)

// PipelineConfig holds options for the shared aggregation pipeline.
type PipelineConfig struct {
	Format     string
	Output     string
	Store      bool
	StorageDir string
	Threshold  int
	FailOnGate bool
	PolicyPath string
	KeepRuns   int
	TopIssues  int
	Catalog    *catalog.Catalog
}

// RunPipeline executes the aggregation pipeline on everything one run
// produced: aggregate → trend → store → output → policy → gate → threshold.
func RunPipeline(in aggregator.Input, pcfg PipelineConfig) (*models.Report, error) {
	agg := aggregator.New(pcfg.Catalog)
	report := agg.Aggregate(in)

	logVerbose("Aggregated %d issues across %d files", report.Summary.TotalIssues, report.Summary.FilesScanned)

	var store *storage.LocalStorage
	if pcfg.Store {
		storagePath, err := getStoragePath(pcfg.StorageDir)
		if err != nil {
			logError("Failed to get storage path: %v", err)
			return nil, err
		}
		store = storage.NewLocal(storagePath)

		if previousReport, err := store.GetLatestRun(); err == nil {
			logVerbose("Found previous run from %s", previousReport.Timestamp)
			agg.AddTrend(report, previousReport)
		} else {
			logDebug("No previous run found: %v", err)
		}

		if err := store.EnsureDirectoryExists(); err != nil {
			logError("Failed to create storage directory: %v", err)
			return nil, err
		}
		if err := store.SaveReport(report); err != nil {
			logError("Failed to store report: %v", err)
			return nil, err
		}
		logVerbose("Stored report in: %s", storagePath)

		if pcfg.KeepRuns > 0 {
			if removed, err := store.PruneRuns(pcfg.KeepRuns); err != nil {
				logError("Failed to prune old runs: %v", err)
			} else if removed > 0 {
				logVerbose("Pruned %d old run(s)", removed)
			}
		}
	}

	logVerbose("Generated %d recommendations", len(report.Recommendations))

	if err := generateOutput(report, pcfg.Format, pcfg.Output, pcfg.TopIssues); err != nil {
		logError("Failed to generate output: %v", err)
		return report, err
	}

	policyPath := pcfg.PolicyPath
	if policyPath == "" {
		policyPath = policy.FindPolicyFile("")
	}
	if policyPath != "" {
		logVerbose("Found policy file: %s", policyPath)

		pol, err := policy.LoadFromFile(policyPath)
		if err != nil {
			logError("Failed to load policy: %v", err)
			return report, &ValidationError{Message: err.Error()}
		}

		if pol != nil {
			result := pol.Evaluate(report)
			if !result.Pass {
				for _, v := range result.Violations {
					logError("Policy violation [%s]: %s", v.Rule, v.Message)
				}
				return report, &ThresholdExceededError{
					IssueCount: len(result.Violations),
					Threshold:  0,
				}
			}
			logVerbose("Policy check passed")
		}
	}

	if pcfg.FailOnGate && !report.Summary.GatePassed {
		logError("Quality gate failed: %v", report.Summary.GateFailedFiles)
		return report, &GateFailedError{Files: report.Summary.GateFailedFiles}
	}

	if pcfg.Threshold > 0 && report.Summary.TotalIssues > pcfg.Threshold {
		logError("Issue count (%d) exceeds threshold (%d)", report.Summary.TotalIssues, pcfg.Threshold)
		return report, &ThresholdExceededError{
			IssueCount: report.Summary.TotalIssues,
			Threshold:  pcfg.Threshold,
		}
	}

	return report, nil
}

// openOutput returns stdout or a created file plus its closer
func openOutput(outputPath string) (io.Writer, func(), error) {
	if outputPath == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// generateOutput generates the output in the specified format(s).
func generateOutput(report *models.Report, format, outputPath string, topIssues int) error {
	writer, closeFn, err := openOutput(outputPath)
	if err != nil {
		return err
	}
	defer closeFn()

	newText := func(w io.Writer) *reporter.TextReporter {
		tr := reporter.NewTextReporter(w, reporter.ColorEnabled(w))
		if topIssues > 0 {
			tr.SetTopIssues(topIssues)
		}
		return tr
	}

	switch format {
	case "text":
		return newText(writer).Generate(report)

	case "json":
		return reporter.NewJSONReporter(writer, true).Generate(report)

	case "both":
		if outputPath == "" {
			if err := newText(os.Stdout).Generate(report); err != nil {
				return err
			}

			jsonFile, err := os.Create("codewarden-report.json")
			if err != nil {
				return fmt.Errorf("failed to create JSON file: %w", err)
			}
			defer func() { _ = jsonFile.Close() }()

			return reporter.NewJSONReporter(jsonFile, true).Generate(report)
		}

		if err := newText(writer).Generate(report); err != nil {
			return err
		}

		if _, err := fmt.Fprintf(writer, "\n=== JSON Output ===\n\n"); err != nil {
			return err
		}

		return reporter.NewJSONReporter(writer, true).Generate(report)

	default:
		return &ValidationError{Message: fmt.Sprintf("unsupported format: %s (use text, json, or both)", format)}
	}
}

// getStoragePath resolves the storage path, expanding ~ and converting to absolute.
func getStoragePath(storageDir string) (string, error) {
	if len(storageDir) >= 2 && storageDir[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		storageDir = filepath.Join(home, storageDir[2:])
	}

	absPath, err := filepath.Abs(storageDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	return absPath, nil
}
