package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ppiankov/codewarden/internal/archive"
	"github.com/ppiankov/codewarden/internal/catalog"
	"github.com/ppiankov/codewarden/internal/config"
	"github.com/ppiankov/codewarden/internal/engine"
	"github.com/spf13/cobra"
)

const (
	ExitOK           = 0 // Success
	ExitPolicyFail   = 1 // Policy, gate, or threshold failure
	ExitInvalidInput = 2 // Unreadable archive, bad rules file, bad arguments
	ExitRuntimeError = 3 // I/O, permissions, or runtime error
)

var (
	// Global config instance
	cfg *config.Config

	// Global flags
	configFile string
	verbose    bool
	debug      bool

	// version is set by SetVersion from main
	version = "dev"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "codewarden",
	Short: "codewarden - source, archive, and integrity security analysis",
	Long: `codewarden scans source code against a pattern catalog, inspects zip
archives for threats, and watches files for tampering. Every finding is
normalized into one issue schema with severity, CWE, and remediation.

It provides:
- Pattern-based security and quality rules with per-file metrics
- Archive inspection (zip bombs, path traversal, malware heuristics)
- File integrity baselines with tamper alerts
- Trend analysis, policy enforcement, and CI/CD exit codes

Quick start:
  codewarden scan ./src --store
  codewarden archive upload.zip
  codewarden integrity register ./src
  codewarden integrity scan ./src

Other commands:
  codewarden diff
  codewarden export --format sarif
  codewarden rules --language go`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return &ValidationError{Message: fmt.Sprintf("failed to load config: %v", err)}
		}

		if verbose {
			cfg.Verbose = true
		}
		if debug {
			cfg.Debug = true
		}

		return nil
	},
}

// SetVersion records the build version shown by `codewarden version`
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command and exits with the mapped exit code
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error
		os.Exit(HandleError(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default: ~/codewarden.yaml or ./codewarden.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"debug mode (very verbose)")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(integrityCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(explainScoreCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}

// versionCmd shows version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("codewarden %s\n", version)
		fmt.Printf("rule set %s\n", catalog.DefaultVersion)
	},
}

// HandleError determines the appropriate exit code for an error
func HandleError(err error) int {
	if err == nil {
		return ExitOK
	}

	var validation *ValidationError
	var threshold *ThresholdExceededError
	var gate *GateFailedError
	switch {
	case errors.As(err, &validation):
		return ExitInvalidInput
	case errors.As(err, &threshold), errors.As(err, &gate):
		return ExitPolicyFail
	case errors.Is(err, archive.ErrArchiveFormat), errors.Is(err, archive.ErrResourceLimit):
		return ExitInvalidInput
	default:
		return ExitRuntimeError
	}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ThresholdExceededError represents a threshold policy failure
type ThresholdExceededError struct {
	IssueCount int
	Threshold  int
}

func (e *ThresholdExceededError) Error() string {
	return fmt.Sprintf("issue count (%d) exceeds threshold (%d)", e.IssueCount, e.Threshold)
}

// GateFailedError reports files that failed the quality gate
type GateFailedError struct {
	Files []string
}

func (e *GateFailedError) Error() string {
	return fmt.Sprintf("quality gate failed for %d file(s)", len(e.Files))
}

// logVerbose prints a message if verbose mode is enabled
func logVerbose(format string, args ...interface{}) {
	if cfg != nil && cfg.Verbose {
		fmt.Fprintf(os.Stderr, "[INFO] "+format+"\n", args...)
	}
}

// logDebug prints a message if debug mode is enabled
func logDebug(format string, args ...interface{}) {
	if cfg != nil && cfg.Debug {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// logError prints an error message
func logError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "[ERROR] "+format+"\n", args...)
}

// newLogger builds the structured logger handed to library packages.
// It is silent unless verbose or debug is set.
func newLogger() *slog.Logger {
	if cfg == nil || (!cfg.Verbose && !cfg.Debug) {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadEngine builds the rule engine from the configured catalog
func loadEngine() (*engine.Engine, error) {
	cat, err := catalog.Load(cfg.RulesPath)
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("failed to load rules: %v", err)}
	}
	logDebug("Rule set %s with %d rules", cat.Version(), cat.Len())
	return engine.New(cat, engine.Options{DuplicationWindow: cfg.DuplicationWindow}), nil
}
