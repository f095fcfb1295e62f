package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/codewarden/internal/aggregator"
	"github.com/ppiankov/codewarden/internal/integrity"
	"github.com/ppiankov/codewarden/internal/reporter"
	"github.com/ppiankov/codewarden/internal/storage"
	"github.com/spf13/cobra"
)

var (
	integrityFormat  string
	integrityOutput  string
	integrityExclude []string
	integrityIssues  bool
	integrityStore   bool
)

var integrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Baseline files and detect tampering",
	Long: `Integrity keeps SHA-256 baselines of files and reports modifications,
deletions, and suspicious new files as tampering alerts.

Baselines are keyed by the path as given on the command line, so run
register and scan from the same working directory. State lives in the
configured store backend under the storage directory.

Example:
  codewarden integrity register ./src ./config
  codewarden integrity scan ./src ./config
  codewarden integrity verify src/auth/login.js
  codewarden integrity resolve 3f2a...
  codewarden integrity rebaseline src/auth/login.js
  codewarden integrity watch ./src --schedule "@every 1h"`,
}

var integrityRegisterCmd = &cobra.Command{
	Use:   "register <path>...",
	Short: "Record baselines for files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIntegrityRegister,
}

var integrityVerifyCmd = &cobra.Command{
	Use:   "verify <file>...",
	Short: "Compare files against their baselines",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIntegrityVerify,
}

var integrityScanCmd = &cobra.Command{
	Use:   "scan <path>...",
	Short: "Reconcile all baselines against the current files",
	Long: `Scan compares every baseline with the files found under the given paths.
Baselines with no matching file raise deletion alerts, changed digests
raise modification alerts, and unregistered files that look suspicious
raise suspicious pattern alerts.

With --issues the alerts are normalized into the issue report and go
through storage, policy, and threshold like a code scan.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIntegrityScan,
}

var integrityResolveCmd = &cobra.Command{
	Use:   "resolve <alert-id>...",
	Short: "Dismiss pending alerts",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIntegrityResolve,
}

var integrityRebaselineCmd = &cobra.Command{
	Use:   "rebaseline <file>...",
	Short: "Accept the current content of files as their new baseline",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIntegrityRebaseline,
}

var integrityRemoveCmd = &cobra.Command{
	Use:   "remove <file>...",
	Short: "Stop monitoring files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIntegrityRemove,
}

var integrityResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every baseline and alert",
	Args:  cobra.NoArgs,
	RunE:  runIntegrityReset,
}

var integrityStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show monitored files and pending alerts",
	Args:  cobra.NoArgs,
	RunE:  runIntegrityStatus,
}

var integrityMonitoringCmd = &cobra.Command{
	Use:       "monitoring <on|off>",
	Short:     "Enable or disable alert recording",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE:      runIntegrityMonitoring,
}

func init() {
	integrityCmd.PersistentFlags().StringVarP(&integrityFormat, "format", "f", "",
		"output format: text or json (default from config)")
	integrityCmd.PersistentFlags().StringVarP(&integrityOutput, "output", "o", "",
		"output file path (default: stdout)")

	for _, c := range []*cobra.Command{integrityRegisterCmd, integrityScanCmd, integrityWatchCmd} {
		c.Flags().StringSliceVar(&integrityExclude, "exclude", nil,
			"additional glob patterns to skip (relative to each path)")
	}
	integrityScanCmd.Flags().BoolVar(&integrityIssues, "issues", false,
		"emit the normalized issue report instead of the provenance report")
	integrityScanCmd.Flags().BoolVar(&integrityStore, "store", false,
		"store the issue report (requires --issues)")

	integrityCmd.AddCommand(integrityRegisterCmd)
	integrityCmd.AddCommand(integrityVerifyCmd)
	integrityCmd.AddCommand(integrityScanCmd)
	integrityCmd.AddCommand(integrityResolveCmd)
	integrityCmd.AddCommand(integrityRebaselineCmd)
	integrityCmd.AddCommand(integrityRemoveCmd)
	integrityCmd.AddCommand(integrityResetCmd)
	integrityCmd.AddCommand(integrityStatusCmd)
	integrityCmd.AddCommand(integrityMonitoringCmd)
	integrityCmd.AddCommand(integrityWatchCmd)
}

// openMonitor opens the integrity state in the configured backend.
// The returned func closes the underlying store.
func openMonitor() (*integrity.Monitor, func(), error) {
	storagePath, err := getStoragePath(cfg.StorageDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(storagePath, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	kv, err := storage.OpenKV(cfg.StoreBackend, storagePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s store: %w", cfg.StoreBackend, err)
	}
	logDebug("Integrity state: %s backend in %s", cfg.StoreBackend, storagePath)

	logger := newLogger()
	mon := integrity.NewMonitor(integrity.NewProvenanceStore(kv, logger), logger)
	return mon, func() { _ = kv.Close() }, nil
}

// monitorPath normalizes name the way the collector reports paths, so
// baselines registered from a walk match single-file commands
func monitorPath(name string) string {
	return filepath.ToSlash(filepath.Clean(name))
}

func integrityOutputFormat() string {
	if integrityFormat == "" {
		return cfg.Format
	}
	return integrityFormat
}

func runIntegrityRegister(cmd *cobra.Command, args []string) error {
	loaded, err := newCollector(integrityExclude, 0, 0).Load(cmd.Context(), args)
	if err != nil {
		return &ValidationError{Message: err.Error()}
	}
	for _, e := range loaded.Errors {
		logError("%v", e)
	}

	mon, closeFn, err := openMonitor()
	if err != nil {
		return err
	}
	defer closeFn()

	before := len(mon.Records())
	for _, f := range loaded.Files {
		id, err := mon.Register(f.Path, f.Content)
		if err != nil {
			return err
		}
		logDebug("Registered %s as %s", f.Path, id)
	}
	added := len(mon.Records()) - before

	fmt.Printf("Registered %d file(s), %d already monitored\n", added, len(loaded.Files)-added)
	for _, s := range loaded.Skipped {
		logVerbose("Skipped %s: %s", s.Path, s.Reason)
	}
	return nil
}

func runIntegrityVerify(cmd *cobra.Command, args []string) error {
	mon, closeFn, err := openMonitor()
	if err != nil {
		return err
	}
	defer closeFn()

	results := make(map[string]integrity.VerifyResult, len(args))
	failed := 0
	for _, name := range args {
		name = monitorPath(name)
		var content string
		data, err := os.ReadFile(name)
		switch {
		case err == nil:
			content = string(data)
		case os.IsNotExist(err):
			// a missing file never matches a baseline digest
		default:
			return fmt.Errorf("failed to read %s: %w", name, err)
		}

		res, err := mon.Verify(name, content)
		if err != nil {
			return err
		}
		results[name] = res
		if !res.IsValid {
			failed++
		}
	}

	writer, closeOut, err := openOutput(integrityOutput)
	if err != nil {
		return err
	}
	defer closeOut()

	if integrityOutputFormat() == "json" {
		if err := reporter.NewJSONReporter(writer, true).Encode(results); err != nil {
			return err
		}
	} else {
		for _, name := range args {
			name = monitorPath(name)
			res := results[name]
			switch {
			case res.IsValid:
				fmt.Fprintf(writer, "OK        %s\n", name)
			case res.Record == nil:
				fmt.Fprintf(writer, "UNKNOWN   %s (not registered)\n", name)
			default:
				fmt.Fprintf(writer, "MODIFIED  %s (alert %s)\n", name, res.Alert.ID)
			}
		}
	}

	if failed > 0 {
		return &ThresholdExceededError{IssueCount: failed, Threshold: 0}
	}
	return nil
}

func runIntegrityScan(cmd *cobra.Command, args []string) error {
	if integrityStore && !integrityIssues {
		return &ValidationError{Message: "--store requires --issues"}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	loaded, err := newCollector(integrityExclude, 0, 0).Load(ctx, args)
	if err != nil {
		return &ValidationError{Message: err.Error()}
	}
	for _, e := range loaded.Errors {
		logError("%v", e)
	}

	report, err := checkIntegrity(ctx, args, loaded.Files)
	if err != nil {
		return err
	}

	if integrityIssues {
		eng, err := loadEngine()
		if err != nil {
			return err
		}
		_, err = RunPipeline(aggregator.Input{
			Target:       strings.Join(args, ","),
			FilesScanned: report.TotalFiles,
			Provenance:   report,
		}, PipelineConfig{
			Format:     integrityOutputFormat(),
			Output:     integrityOutput,
			Store:      integrityStore,
			StorageDir: cfg.StorageDir,
			Threshold:  cfg.FailThreshold,
			KeepRuns:   keepRuns(),
			Catalog:    eng.Catalog(),
		})
		return err
	}

	if err := writeProvenance(report); err != nil {
		return err
	}
	if report.Violations > 0 {
		return &ThresholdExceededError{IssueCount: report.Violations, Threshold: 0}
	}
	return nil
}

func writeProvenance(report *integrity.ProvenanceReport) error {
	writer, closeFn, err := openOutput(integrityOutput)
	if err != nil {
		return err
	}
	defer closeFn()

	if integrityOutputFormat() == "json" {
		return reporter.NewJSONReporter(writer, true).Encode(report)
	}
	return reporter.NewTextReporter(writer, reporter.ColorEnabled(writer)).GenerateProvenance(report)
}

func runIntegrityResolve(cmd *cobra.Command, args []string) error {
	mon, closeFn, err := openMonitor()
	if err != nil {
		return err
	}
	defer closeFn()

	missing := 0
	for _, id := range args {
		ok, err := mon.ResolveAlert(id)
		if err != nil {
			return err
		}
		if !ok {
			logError("No pending alert with id %s", id)
			missing++
			continue
		}
		fmt.Printf("Resolved %s\n", id)
	}
	if missing > 0 {
		return &ValidationError{Message: fmt.Sprintf("%d alert id(s) not found", missing)}
	}
	return nil
}

func runIntegrityRebaseline(cmd *cobra.Command, args []string) error {
	mon, closeFn, err := openMonitor()
	if err != nil {
		return err
	}
	defer closeFn()

	missing := 0
	for _, name := range args {
		name = monitorPath(name)
		data, err := os.ReadFile(name)
		if err != nil {
			return &ValidationError{Message: fmt.Sprintf("failed to read %s: %v", name, err)}
		}
		ok, err := mon.UpdateBaseline(name, string(data))
		if err != nil {
			return err
		}
		if !ok {
			logError("%s is not registered", name)
			missing++
			continue
		}
		fmt.Printf("Rebaselined %s\n", name)
	}
	if missing > 0 {
		return &ValidationError{Message: fmt.Sprintf("%d file(s) not registered", missing)}
	}
	return nil
}

func runIntegrityRemove(cmd *cobra.Command, args []string) error {
	mon, closeFn, err := openMonitor()
	if err != nil {
		return err
	}
	defer closeFn()

	for _, name := range args {
		name = monitorPath(name)
		ok, err := mon.Remove(name)
		if err != nil {
			return err
		}
		if ok {
			fmt.Printf("Removed %s\n", name)
		} else {
			logVerbose("%s was not monitored", name)
		}
	}
	return nil
}

func runIntegrityReset(cmd *cobra.Command, args []string) error {
	mon, closeFn, err := openMonitor()
	if err != nil {
		return err
	}
	defer closeFn()

	n := len(mon.Records())
	if err := mon.Reset(); err != nil {
		return err
	}
	fmt.Printf("Cleared %d baseline(s)\n", n)
	return nil
}

func runIntegrityMonitoring(cmd *cobra.Command, args []string) error {
	var enabled bool
	switch args[0] {
	case "on":
		enabled = true
	case "off":
	default:
		return &ValidationError{Message: fmt.Sprintf("expected on or off, got %q", args[0])}
	}

	mon, closeFn, err := openMonitor()
	if err != nil {
		return err
	}
	defer closeFn()

	if err := mon.SetMonitoring(enabled); err != nil {
		return err
	}
	fmt.Printf("Alert recording %s\n", args[0])
	return nil
}

// integrityStatus is the JSON shape of `integrity status`
type integrityStatus struct {
	MonitoringEnabled bool                            `json:"monitoring_enabled"`
	Records           []integrity.FileIntegrityRecord `json:"records"`
	Alerts            []integrity.TamperingAlert      `json:"alerts"`
}

func runIntegrityStatus(cmd *cobra.Command, args []string) error {
	mon, closeFn, err := openMonitor()
	if err != nil {
		return err
	}
	defer closeFn()

	writer, closeOut, err := openOutput(integrityOutput)
	if err != nil {
		return err
	}
	defer closeOut()

	records := mon.Records()
	alerts := mon.Alerts()

	if integrityOutputFormat() == "json" {
		return reporter.NewJSONReporter(writer, true).Encode(integrityStatus{
			MonitoringEnabled: mon.MonitoringEnabled(),
			Records:           records,
			Alerts:            alerts,
		})
	}

	state := "on"
	if !mon.MonitoringEnabled() {
		state = "off"
	}
	fmt.Fprintf(writer, "Monitored files: %d (alert recording %s)\n", len(records), state)
	for _, r := range records {
		marker := " "
		if r.IsSecurityCritical {
			marker = "!"
		}
		fmt.Fprintf(writer, "  %s %-50s %-10s %s\n", marker, r.Path, r.Metadata.Category,
			r.LastModified.Format(time.RFC3339))
	}
	fmt.Fprintln(writer)
	return reporter.NewTextReporter(writer, reporter.ColorEnabled(writer)).GenerateAlerts(alerts)
}
