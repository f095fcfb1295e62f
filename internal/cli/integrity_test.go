package cli

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/codewarden/internal/integrity"
	"github.com/ppiankov/codewarden/internal/models"
)

func resetIntegrityFlags(t *testing.T) {
	t.Helper()
	format, output, exclude, issues, store := integrityFormat, integrityOutput, integrityExclude, integrityIssues, integrityStore
	integrityFormat, integrityOutput, integrityExclude, integrityIssues, integrityStore = "", "", nil, false, false
	t.Cleanup(func() {
		integrityFormat, integrityOutput, integrityExclude, integrityIssues, integrityStore = format, output, exclude, issues, store
	})
}

// registeredProject creates a project, makes it the working directory
// and baselines everything under src
func registeredProject(t *testing.T) {
	t.Helper()
	tempConfig(t)
	resetIntegrityFlags(t)

	dir := t.TempDir()
	writeFile(t, dir, "src/app.js", "console.info('app');\n")
	writeFile(t, dir, "src/config.yaml", "port: 8080\n")
	writeFile(t, dir, "src/auth/login.js", "export function login() {}\n")
	chdir(t, dir)

	out := captureStdout(t, func() {
		if err := runIntegrityRegister(testCmd(), []string{"src"}); err != nil {
			t.Fatalf("register: %v", err)
		}
	})
	if !strings.Contains(out, "Registered 3 file(s), 0 already monitored") {
		t.Fatalf("register output = %q", out)
	}
}

// monitorState opens the monitor and returns its records and alerts
func monitorState(t *testing.T) ([]integrity.FileIntegrityRecord, []integrity.TamperingAlert, bool) {
	t.Helper()
	mon, closeFn, err := openMonitor()
	if err != nil {
		t.Fatalf("openMonitor: %v", err)
	}
	defer closeFn()
	return mon.Records(), mon.Alerts(), mon.MonitoringEnabled()
}

func TestIntegrityRegisterIdempotent(t *testing.T) {
	registeredProject(t)

	out := captureStdout(t, func() {
		if err := runIntegrityRegister(testCmd(), []string{"src"}); err != nil {
			t.Fatalf("register: %v", err)
		}
	})
	if !strings.Contains(out, "Registered 0 file(s), 3 already monitored") {
		t.Errorf("second register output = %q", out)
	}

	records, _, _ := monitorState(t)
	paths := make([]string, 0, len(records))
	for _, r := range records {
		paths = append(paths, r.Path)
	}
	if strings.Join(paths, ",") != "src/app.js,src/auth/login.js,src/config.yaml" {
		t.Errorf("record paths = %v", paths)
	}
}

func TestIntegrityVerify(t *testing.T) {
	registeredProject(t)
	integrityOutput = filepath.Join(t.TempDir(), "verify.txt")
	integrityFormat = "text"

	if err := runIntegrityVerify(testCmd(), []string{"./src/app.js"}); err != nil {
		t.Fatalf("verify unchanged file: %v", err)
	}
	data, _ := os.ReadFile(integrityOutput)
	if !strings.Contains(string(data), "OK        src/app.js") {
		t.Errorf("verify output = %q", data)
	}

	writeFile(t, ".", "src/app.js", "console.info('tampered');\n")
	err := runIntegrityVerify(testCmd(), []string{"src/app.js", "src/unknown.js"})
	var terr *ThresholdExceededError
	if !errors.As(err, &terr) || terr.IssueCount != 2 {
		t.Fatalf("expected 2 failures, got %v", err)
	}

	data, _ = os.ReadFile(integrityOutput)
	out := string(data)
	if !strings.Contains(out, "MODIFIED  src/app.js") {
		t.Errorf("missing MODIFIED line: %q", out)
	}
	if !strings.Contains(out, "UNKNOWN   src/unknown.js") {
		t.Errorf("missing UNKNOWN line: %q", out)
	}

	_, alerts, _ := monitorState(t)
	if len(alerts) != 1 || alerts[0].Type != integrity.AlertModification {
		t.Errorf("alerts = %+v, want one modification", alerts)
	}
}

func TestIntegrityVerifyJSON(t *testing.T) {
	registeredProject(t)
	integrityOutput = filepath.Join(t.TempDir(), "verify.json")
	integrityFormat = "json"

	if err := runIntegrityVerify(testCmd(), []string{"src/config.yaml"}); err != nil {
		t.Fatalf("verify: %v", err)
	}

	var results map[string]integrity.VerifyResult
	data, _ := os.ReadFile(integrityOutput)
	if err := json.Unmarshal(data, &results); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !results["src/config.yaml"].IsValid {
		t.Errorf("results = %+v", results)
	}
}

func TestIntegrityScanProvenance(t *testing.T) {
	registeredProject(t)
	integrityOutput = filepath.Join(t.TempDir(), "provenance.json")
	integrityFormat = "json"

	writeFile(t, ".", "src/app.js", "console.info('tampered');\n")
	if err := os.Remove("src/config.yaml"); err != nil {
		t.Fatal(err)
	}
	writeFile(t, ".", "src/payload.js", "eval(atob(data));\n")

	err := runIntegrityScan(testCmd(), []string{"src"})
	var terr *ThresholdExceededError
	if !errors.As(err, &terr) {
		t.Fatalf("expected ThresholdExceededError, got %v", err)
	}

	var report integrity.ProvenanceReport
	data, _ := os.ReadFile(integrityOutput)
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if report.Violations != 3 || report.NewViolations != 3 {
		t.Errorf("violations=%d new=%d, want 3 and 3", report.Violations, report.NewViolations)
	}

	types := map[integrity.AlertType]int{}
	for _, a := range report.Alerts {
		types[a.Type]++
	}
	for _, want := range []integrity.AlertType{integrity.AlertModification, integrity.AlertDeletion, integrity.AlertSuspiciousPattern} {
		if types[want] != 1 {
			t.Errorf("alert types = %v, want one %s", types, want)
		}
	}

	// a second scan finds the same alerts pending, none new
	err = runIntegrityScan(testCmd(), []string{"src"})
	if !errors.As(err, &terr) {
		t.Fatalf("expected ThresholdExceededError on rescan, got %v", err)
	}
	data, _ = os.ReadFile(integrityOutput)
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatal(err)
	}
	if report.NewViolations != 0 || report.Violations != 3 {
		t.Errorf("rescan violations=%d new=%d, want 3 and 0", report.Violations, report.NewViolations)
	}
}

func TestIntegrityScanIssues(t *testing.T) {
	registeredProject(t)
	integrityOutput = filepath.Join(t.TempDir(), "issues.json")
	integrityFormat = "json"
	integrityIssues = true

	writeFile(t, ".", "src/auth/login.js", "export function login() { return true; }\n")

	if err := runIntegrityScan(testCmd(), []string{"src"}); err != nil {
		t.Fatalf("scan --issues: %v", err)
	}

	report := readReport(t, integrityOutput)
	if report.Summary.IssuesByTool[string(models.ToolIntegrityMonitor)] != 1 {
		t.Fatalf("issues by tool = %v", report.Summary.IssuesByTool)
	}
	if report.Issues[0].Filename != "src/auth/login.js" {
		t.Errorf("issue filename = %q", report.Issues[0].Filename)
	}
}

func TestIntegrityScanStoreRequiresIssues(t *testing.T) {
	tempConfig(t)
	resetIntegrityFlags(t)
	integrityStore = true

	err := runIntegrityScan(testCmd(), []string{"."})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestIntegrityResolve(t *testing.T) {
	registeredProject(t)
	integrityOutput = filepath.Join(t.TempDir(), "verify.txt")

	writeFile(t, ".", "src/app.js", "console.info('tampered');\n")
	_ = runIntegrityVerify(testCmd(), []string{"src/app.js"})

	_, alerts, _ := monitorState(t)
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}

	out := captureStdout(t, func() {
		if err := runIntegrityResolve(testCmd(), []string{alerts[0].ID}); err != nil {
			t.Fatalf("resolve: %v", err)
		}
	})
	if !strings.Contains(out, "Resolved "+alerts[0].ID) {
		t.Errorf("resolve output = %q", out)
	}
	if _, alerts, _ = monitorState(t); len(alerts) != 0 {
		t.Errorf("alerts after resolve = %d", len(alerts))
	}

	err := runIntegrityResolve(testCmd(), []string{"no-such-alert"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for unknown id, got %v", err)
	}
}

func TestIntegrityRebaseline(t *testing.T) {
	registeredProject(t)
	integrityOutput = filepath.Join(t.TempDir(), "verify.txt")

	writeFile(t, ".", "src/app.js", "console.info('v2');\n")
	_ = runIntegrityVerify(testCmd(), []string{"src/app.js"})

	captureStdout(t, func() {
		if err := runIntegrityRebaseline(testCmd(), []string{"./src/app.js"}); err != nil {
			t.Fatalf("rebaseline: %v", err)
		}
	})

	if err := runIntegrityVerify(testCmd(), []string{"src/app.js"}); err != nil {
		t.Errorf("verify after rebaseline: %v", err)
	}
	if _, alerts, _ := monitorState(t); len(alerts) != 0 {
		t.Errorf("rebaseline should drop pending alerts, %d left", len(alerts))
	}

	writeFile(t, ".", "src/new.js", "x\n")
	err := runIntegrityRebaseline(testCmd(), []string{"src/new.js"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for unregistered file, got %v", err)
	}
}

func TestIntegrityRemoveAndReset(t *testing.T) {
	registeredProject(t)

	captureStdout(t, func() {
		if err := runIntegrityRemove(testCmd(), []string{"src/app.js", "src/never.js"}); err != nil {
			t.Fatalf("remove: %v", err)
		}
	})
	if records, _, _ := monitorState(t); len(records) != 2 {
		t.Errorf("records after remove = %d, want 2", len(records))
	}

	out := captureStdout(t, func() {
		if err := runIntegrityReset(testCmd(), nil); err != nil {
			t.Fatalf("reset: %v", err)
		}
	})
	if !strings.Contains(out, "Cleared 2 baseline(s)") {
		t.Errorf("reset output = %q", out)
	}
	if records, _, _ := monitorState(t); len(records) != 0 {
		t.Errorf("records after reset = %d", len(records))
	}
}

func TestIntegrityMonitoringToggle(t *testing.T) {
	registeredProject(t)
	integrityOutput = filepath.Join(t.TempDir(), "verify.txt")

	captureStdout(t, func() {
		if err := runIntegrityMonitoring(testCmd(), []string{"off"}); err != nil {
			t.Fatalf("monitoring off: %v", err)
		}
	})
	if _, _, enabled := monitorState(t); enabled {
		t.Fatal("monitoring should be disabled")
	}

	// changes are still reported but no alert is recorded
	writeFile(t, ".", "src/app.js", "console.info('tampered');\n")
	if err := runIntegrityVerify(testCmd(), []string{"src/app.js"}); err == nil {
		t.Error("verify should still fail while monitoring is off")
	}
	if _, alerts, _ := monitorState(t); len(alerts) != 0 {
		t.Errorf("alerts recorded while disabled: %d", len(alerts))
	}

	captureStdout(t, func() {
		if err := runIntegrityMonitoring(testCmd(), []string{"on"}); err != nil {
			t.Fatalf("monitoring on: %v", err)
		}
	})
	if _, _, enabled := monitorState(t); !enabled {
		t.Error("monitoring should be enabled")
	}

	err := runIntegrityMonitoring(testCmd(), []string{"maybe"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestIntegrityStatusJSON(t *testing.T) {
	registeredProject(t)
	integrityOutput = filepath.Join(t.TempDir(), "status.json")
	integrityFormat = "json"

	if err := runIntegrityStatus(testCmd(), nil); err != nil {
		t.Fatalf("status: %v", err)
	}

	var status integrityStatus
	data, _ := os.ReadFile(integrityOutput)
	if err := json.Unmarshal(data, &status); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !status.MonitoringEnabled || len(status.Records) != 3 || len(status.Alerts) != 0 {
		t.Errorf("status = %+v", status)
	}
}

func TestIntegrityStatusText(t *testing.T) {
	registeredProject(t)
	integrityOutput = filepath.Join(t.TempDir(), "status.txt")
	integrityFormat = "text"

	if err := runIntegrityStatus(testCmd(), nil); err != nil {
		t.Fatalf("status: %v", err)
	}
	data, _ := os.ReadFile(integrityOutput)
	out := string(data)
	if !strings.Contains(out, "Monitored files: 3 (alert recording on)") {
		t.Errorf("status output = %q", out)
	}
	if !strings.Contains(out, "src/auth/login.js") {
		t.Errorf("status should list records: %q", out)
	}
}

func TestMonitorPath(t *testing.T) {
	tests := map[string]string{
		"./src/app.js":      "src/app.js",
		"src//auth/../a.js": "src/a.js",
		"app.js":            "app.js",
	}
	for in, want := range tests {
		if got := monitorPath(in); got != want {
			t.Errorf("monitorPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIntegrityMemoryBackend(t *testing.T) {
	c := tempConfig(t)
	c.StoreBackend = "memory"
	resetIntegrityFlags(t)

	dir := t.TempDir()
	writeFile(t, dir, "a.js", "a\n")
	chdir(t, dir)

	captureStdout(t, func() {
		if err := runIntegrityRegister(testCmd(), []string{"a.js"}); err != nil {
			t.Fatalf("register: %v", err)
		}
	})
	// each command opens a fresh in-memory store
	if records, _, _ := monitorState(t); len(records) != 0 {
		t.Errorf("memory backend persisted %d record(s)", len(records))
	}
}
