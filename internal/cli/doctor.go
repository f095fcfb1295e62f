package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ppiankov/codewarden/internal/catalog"
	"github.com/ppiankov/codewarden/internal/policy"
	"github.com/ppiankov/codewarden/internal/storage"
	"github.com/spf13/cobra"
)

var doctorFormat string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check environment readiness and diagnose common problems",
	Long: `Doctor validates your codewarden setup end-to-end:

  1. Config file: found and readable?
  2. Storage: directory writable?
  3. Store backend: integrity state readable and writable?
  4. Rules: catalog and custom rules load?
  5. Policy: policy file found and valid?
  6. Object storage: S3 endpoint configured for s3:// archives?

Fix the issues it reports, then run 'codewarden scan' with confidence.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().StringVar(&doctorFormat, "format", "text",
		"output format: text or json")
}

type doctorCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "ok", "warn", "fail"
	Detail string `json:"detail,omitempty"`
}

type doctorResult struct {
	Checks  []doctorCheck `json:"checks"`
	Summary string        `json:"summary"`
}

func runDoctor(cmd *cobra.Command, args []string) error {
	checks := []doctorCheck{
		checkConfig(),
		checkStorage(),
		checkStoreBackend(),
		checkRules(),
		checkPolicy(),
		checkObjectStorage(),
	}

	fails, warns := 0, 0
	for _, c := range checks {
		switch c.Status {
		case "fail":
			fails++
		case "warn":
			warns++
		}
	}

	summary := "all checks passed"
	if fails > 0 {
		summary = fmt.Sprintf("%d issue(s) found", fails)
	} else if warns > 0 {
		summary = fmt.Sprintf("ok with %d warning(s)", warns)
	}

	result := doctorResult{Checks: checks, Summary: summary}
	out := cmd.OutOrStdout()

	if doctorFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	return writeDoctorText(out, result)
}

func writeDoctorText(w io.Writer, result doctorResult) error {
	icons := map[string]string{
		"ok":   "✓",
		"warn": "△",
		"fail": "✗",
	}

	for _, c := range result.Checks {
		icon := icons[c.Status]
		if c.Detail != "" {
			fmt.Fprintf(w, "  %s %-16s %s\n", icon, c.Name, c.Detail)
		} else {
			fmt.Fprintf(w, "  %s %s\n", icon, c.Name)
		}
	}

	fmt.Fprintf(w, "\n%s\n", result.Summary)
	return nil
}

func checkConfig() doctorCheck {
	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return doctorCheck{Name: "config", Status: "fail", Detail: fmt.Sprintf("%s: %v", configFile, err)}
		}
		return doctorCheck{Name: "config", Status: "ok", Detail: configFile}
	}

	candidates := []string{"codewarden.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, "codewarden.yaml"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return doctorCheck{Name: "config", Status: "ok", Detail: path}
		}
	}

	return doctorCheck{
		Name:   "config",
		Status: "warn",
		Detail: "no config file found (using defaults)",
	}
}

func checkStorage() doctorCheck {
	storagePath, err := getStoragePath(cfg.StorageDir)
	if err != nil {
		return doctorCheck{Name: "storage", Status: "fail", Detail: err.Error()}
	}

	info, err := os.Stat(storagePath)
	if err != nil {
		return doctorCheck{
			Name:   "storage",
			Status: "ok",
			Detail: fmt.Sprintf("%s (will be created on first --store)", storagePath),
		}
	}

	if !info.IsDir() {
		return doctorCheck{
			Name:   "storage",
			Status: "fail",
			Detail: fmt.Sprintf("%s exists but is not a directory", storagePath),
		}
	}

	tmpFile := filepath.Join(storagePath, ".doctor-check")
	if err := os.WriteFile(tmpFile, []byte("ok"), 0o600); err != nil {
		return doctorCheck{
			Name:   "storage",
			Status: "fail",
			Detail: fmt.Sprintf("%s not writable: %v", storagePath, err),
		}
	}
	_ = os.Remove(tmpFile)

	runs, _ := storage.NewLocal(storagePath).ListRuns()
	return doctorCheck{
		Name:   "storage",
		Status: "ok",
		Detail: fmt.Sprintf("%s (%d stored run(s))", storagePath, len(runs)),
	}
}

// checkStoreBackend round-trips a probe key through the integrity backend
func checkStoreBackend() doctorCheck {
	name := "store " + cfg.StoreBackend
	if cfg.StoreBackend == "memory" {
		return doctorCheck{Name: name, Status: "warn", Detail: "integrity baselines are not persisted"}
	}

	storagePath, err := getStoragePath(cfg.StorageDir)
	if err != nil {
		return doctorCheck{Name: name, Status: "fail", Detail: err.Error()}
	}
	if _, err := os.Stat(storagePath); err != nil {
		return doctorCheck{Name: name, Status: "ok", Detail: "not initialized yet"}
	}

	kv, err := storage.OpenKV(cfg.StoreBackend, storagePath)
	if err != nil {
		return doctorCheck{Name: name, Status: "fail", Detail: err.Error()}
	}
	defer func() { _ = kv.Close() }()

	const probe = "codewarden.doctor"
	if err := kv.Put(probe, []byte("ok")); err != nil {
		return doctorCheck{Name: name, Status: "fail", Detail: fmt.Sprintf("write failed: %v", err)}
	}
	if _, err := kv.Get(probe); err != nil {
		return doctorCheck{Name: name, Status: "fail", Detail: fmt.Sprintf("read failed: %v", err)}
	}
	_ = kv.Delete(probe)

	return doctorCheck{Name: name, Status: "ok", Detail: "read/write ok"}
}

func checkRules() doctorCheck {
	cat, err := catalog.Load(cfg.RulesPath)
	if err != nil {
		return doctorCheck{Name: "rules", Status: "fail", Detail: err.Error()}
	}
	detail := fmt.Sprintf("rule set %s, %d rules, %d languages", cat.Version(), cat.Len(), len(cat.Languages()))
	if cfg.RulesPath != "" {
		detail += " (custom: " + cfg.RulesPath + ")"
	}
	return doctorCheck{Name: "rules", Status: "ok", Detail: detail}
}

func checkPolicy() doctorCheck {
	path := policy.FindPolicyFile("")
	if path == "" {
		return doctorCheck{Name: "policy", Status: "ok", Detail: "none (threshold and gate flags only)"}
	}
	if _, err := policy.LoadFromFile(path); err != nil {
		return doctorCheck{Name: "policy", Status: "fail", Detail: err.Error()}
	}
	return doctorCheck{Name: "policy", Status: "ok", Detail: path}
}

func checkObjectStorage() doctorCheck {
	if cfg.S3.Endpoint == "" {
		return doctorCheck{Name: "s3", Status: "ok", Detail: "not configured (s3:// archives disabled)"}
	}
	if cfg.S3.AccessKey == "" || cfg.S3.SecretKey == "" {
		return doctorCheck{
			Name:   "s3",
			Status: "warn",
			Detail: fmt.Sprintf("%s without credentials (anonymous access only)", cfg.S3.Endpoint),
		}
	}
	return doctorCheck{Name: "s3", Status: "ok", Detail: cfg.S3.Endpoint}
}
