package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/codewarden/internal/models"
	"github.com/spf13/cobra"
)

// resetScanFlags restores every scan flag to its default after the test
func resetScanFlags(t *testing.T) {
	t.Helper()
	saved := struct {
		format, output, storageDir, osvURL, policy string
		store, gate, integrity, deps               bool
		threshold, concurrency, top                int
		exclude                                    []string
		timeout                                    time.Duration
	}{scanFormat, scanOutput, scanStorageDir, scanOSVURL, scanPolicy,
		scanStore, scanFailOnGate, scanIntegrity, scanDepsOnline,
		scanThreshold, scanConcurrency, scanTop, scanExclude, scanTimeout}

	scanFormat, scanOutput, scanStorageDir, scanOSVURL, scanPolicy = "", "", "", "", ""
	scanStore, scanFailOnGate, scanIntegrity, scanDepsOnline = false, false, false, false
	scanThreshold, scanConcurrency, scanTop = -1, 0, 0
	scanExclude, scanTimeout = nil, time.Minute

	t.Cleanup(func() {
		scanFormat, scanOutput, scanStorageDir, scanOSVURL, scanPolicy = saved.format, saved.output, saved.storageDir, saved.osvURL, saved.policy
		scanStore, scanFailOnGate, scanIntegrity, scanDepsOnline = saved.store, saved.gate, saved.integrity, saved.deps
		scanThreshold, scanConcurrency, scanTop = saved.threshold, saved.concurrency, saved.top
		scanExclude, scanTimeout = saved.exclude, saved.timeout
	})
}

func testCmd() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	return cmd
}

// scanProject lays out a small project in a temp dir and makes it the
// working directory
func scanProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "src/users.js", sqlInjectionJS)
	writeFile(t, dir, "src/total.js", "const total = 1;\n")
	writeFile(t, dir, "src/README.md", "# docs\n")
	writeFile(t, dir, "src/node_modules/dep/index.js", "eval(x)\n")
	chdir(t, dir)
	return dir
}

func readReport(t *testing.T, path string) *models.Report {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var report models.Report
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	return &report
}

func TestRunScanJSON(t *testing.T) {
	tempConfig(t)
	resetScanFlags(t)
	scanProject(t)

	scanFormat = "json"
	scanOutput = filepath.Join(t.TempDir(), "report.json")

	if err := runScan(testCmd(), []string{"src"}); err != nil {
		t.Fatalf("runScan: %v", err)
	}

	report := readReport(t, scanOutput)
	if report.Summary.FilesScanned != 2 {
		t.Errorf("files scanned = %d, want 2 (node_modules and markdown skipped)", report.Summary.FilesScanned)
	}
	if report.Target != "src" {
		t.Errorf("target = %q", report.Target)
	}

	found := false
	for _, issue := range report.Issues {
		if issue.Filename == "src/users.js" && issue.CWEID == "CWE-89" {
			found = true
		}
		if issue.Filename == "src/node_modules/dep/index.js" {
			t.Errorf("excluded file reported: %+v", issue)
		}
	}
	if !found {
		t.Errorf("expected CWE-89 finding in src/users.js, got %+v", report.Issues)
	}
}

func TestRunScanExclude(t *testing.T) {
	tempConfig(t)
	resetScanFlags(t)
	scanProject(t)

	scanFormat = "json"
	scanOutput = filepath.Join(t.TempDir(), "report.json")
	scanExclude = []string{"users.js"}

	if err := runScan(testCmd(), []string{"src"}); err != nil {
		t.Fatalf("runScan: %v", err)
	}
	if report := readReport(t, scanOutput); report.Summary.TotalIssues != 0 {
		t.Errorf("excluded file still produced %d issue(s)", report.Summary.TotalIssues)
	}
}

func TestRunScanFailOnGate(t *testing.T) {
	tempConfig(t)
	resetScanFlags(t)
	scanProject(t)

	scanFormat = "json"
	scanOutput = filepath.Join(t.TempDir(), "report.json")
	scanFailOnGate = true

	err := runScan(testCmd(), []string{"src"})
	var gerr *GateFailedError
	if !errors.As(err, &gerr) {
		t.Fatalf("expected GateFailedError, got %v", err)
	}
	if HandleError(err) != ExitPolicyFail {
		t.Errorf("gate failure should exit %d", ExitPolicyFail)
	}
}

func TestRunScanThresholdFromConfig(t *testing.T) {
	c := tempConfig(t)
	c.FailThreshold = 1
	resetScanFlags(t)
	scanProject(t)

	scanFormat = "json"
	scanOutput = filepath.Join(t.TempDir(), "report.json")

	writeFile(t, ".", "src/orders.js", sqlInjectionJS)

	err := runScan(testCmd(), []string{"src"})
	var terr *ThresholdExceededError
	if !errors.As(err, &terr) {
		t.Fatalf("expected ThresholdExceededError, got %v", err)
	}
	if terr.Threshold != 1 {
		t.Errorf("threshold = %d, want 1 from config", terr.Threshold)
	}
}

func TestRunScanStore(t *testing.T) {
	c := tempConfig(t)
	resetScanFlags(t)
	scanProject(t)

	scanFormat = "json"
	scanOutput = filepath.Join(t.TempDir(), "report.json")
	scanStore = true

	if err := runScan(testCmd(), []string{"src"}); err != nil {
		t.Fatalf("runScan: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(c.StorageDir, "runs"))
	if err != nil {
		t.Fatalf("runs dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("stored runs = %d, want 1", len(entries))
	}
}

func TestRunScanNoSourceFiles(t *testing.T) {
	tempConfig(t)
	resetScanFlags(t)
	dir := t.TempDir()
	writeFile(t, dir, "notes.txt", "nothing to scan\n")

	err := runScan(testCmd(), []string{dir})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestRunScanMissingPath(t *testing.T) {
	tempConfig(t)
	resetScanFlags(t)

	err := runScan(testCmd(), []string{filepath.Join(t.TempDir(), "missing")})
	if HandleError(err) != ExitInvalidInput {
		t.Errorf("missing path should exit %d, got %v", ExitInvalidInput, err)
	}
}

func TestRunScanIntegrity(t *testing.T) {
	tempConfig(t)
	resetScanFlags(t)
	resetIntegrityFlags(t)
	scanProject(t)

	captureStdout(t, func() {
		if err := runIntegrityRegister(testCmd(), []string{"src/users.js", "src/total.js"}); err != nil {
			t.Fatalf("register: %v", err)
		}
	})
	writeFile(t, ".", "src/total.js", "const total = 2;\n")

	scanFormat = "json"
	scanOutput = filepath.Join(t.TempDir(), "report.json")
	scanIntegrity = true

	if err := runScan(testCmd(), []string{"src"}); err != nil {
		t.Fatalf("runScan: %v", err)
	}

	report := readReport(t, scanOutput)
	if report.Summary.IssuesByTool[string(models.ToolIntegrityMonitor)] != 1 {
		t.Errorf("issues by tool = %v, want one integrity-monitor issue", report.Summary.IssuesByTool)
	}
}

func TestRunScanIntegrityKeepsNonCodeBaselines(t *testing.T) {
	tempConfig(t)
	resetScanFlags(t)
	resetIntegrityFlags(t)
	dir := t.TempDir()
	writeFile(t, dir, "src/app.js", "console.info('app');\n")
	writeFile(t, dir, ".env", "API_URL=http://localhost\n")
	writeFile(t, dir, "package.json", "{\"name\": \"app\"}\n")
	chdir(t, dir)

	captureStdout(t, func() {
		if err := runIntegrityRegister(testCmd(), []string{"."}); err != nil {
			t.Fatalf("register: %v", err)
		}
	})

	scanFormat = "json"
	scanOutput = filepath.Join(t.TempDir(), "report.json")
	scanIntegrity = true

	for _, target := range []string{".", "src"} {
		if err := runScan(testCmd(), []string{target}); err != nil {
			t.Fatalf("runScan %s: %v", target, err)
		}
		report := readReport(t, scanOutput)
		if n := report.Summary.IssuesByTool[string(models.ToolIntegrityMonitor)]; n != 0 {
			t.Errorf("scan %s: %d integrity issue(s), want 0", target, n)
		}
	}

	_, alerts, _ := monitorState(t)
	if len(alerts) != 0 {
		t.Errorf("pending alerts = %+v, want none", alerts)
	}
}

func TestRunScanDepsOnline(t *testing.T) {
	tempConfig(t)
	resetScanFlags(t)
	scanProject(t)
	writeFile(t, ".", "src/package.json", `{"dependencies": {"lodash": "4.17.15", "left-pad": "1.3.0"}}`)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/querybatch", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Queries []struct {
				Package struct {
					Name string `json:"name"`
				} `json:"package"`
			} `json:"queries"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		type vref struct {
			ID string `json:"id"`
		}
		type result struct {
			Vulns []vref `json:"vulns"`
		}
		var resp struct {
			Results []result `json:"results"`
		}
		for _, q := range req.Queries {
			var res result
			if q.Package.Name == "lodash" {
				res.Vulns = []vref{{ID: "GHSA-lodash-1"}}
			}
			resp.Results = append(resp.Results, res)
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/v1/vulns/GHSA-lodash-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "GHSA-lodash-1", "summary": "Prototype pollution in lodash",
  "database_specific": {"severity": "HIGH", "cwe_ids": ["CWE-1321"]}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	scanFormat = "json"
	scanOutput = filepath.Join(t.TempDir(), "report.json")
	scanDepsOnline = true
	scanOSVURL = srv.URL + "/v1"

	if err := runScan(testCmd(), []string{"src"}); err != nil {
		t.Fatalf("runScan: %v", err)
	}

	report := readReport(t, scanOutput)
	var dep *models.SecurityIssue
	for i := range report.Issues {
		if report.Issues[i].ToolName == string(models.ToolDependencyScanner) {
			dep = &report.Issues[i]
		}
	}
	if dep == nil {
		t.Fatalf("no dependency-scanner issue in %+v", report.Summary.IssuesByTool)
	}
	if dep.Filename != "src/package.json" {
		t.Errorf("dependency issue filename = %q", dep.Filename)
	}
}

func TestKeepRuns(t *testing.T) {
	c := tempConfig(t)

	c.LastRuns = 2
	if got := keepRuns(); got != 30 {
		t.Errorf("keepRuns() = %d, want floor of 30", got)
	}
	c.LastRuns = 20
	if got := keepRuns(); got != 80 {
		t.Errorf("keepRuns() = %d, want 80", got)
	}
}
