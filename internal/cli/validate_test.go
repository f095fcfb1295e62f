package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func runValidateCmd(t *testing.T, kind, path string) (string, error) {
	t.Helper()
	old := validateKind
	validateKind = kind
	t.Cleanup(func() { validateKind = old })

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	err := runValidate(cmd, []string{path})
	return buf.String(), err
}

func TestDetectKind(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		path string
		want string
	}{
		{dir, "rules"},
		{"custom-rules.yaml", "rules"},
		{"rules.YML", "rules"},
		{".codewarden-policy.yaml", "policy"},
		{"ci-policy.yml", "policy"},
		{"baseline.json", "report"},
		{"report", "report"},
	}
	for _, tt := range tests {
		if got := detectKind(tt.path); got != tt.want {
			t.Errorf("detectKind(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestRunValidateReport(t *testing.T) {
	data, _ := json.Marshal(minimalReport())
	path := writeFile(t, t.TempDir(), "baseline.json", string(data))

	out, err := runValidateCmd(t, "", path)
	if err != nil {
		t.Fatalf("runValidate: %v", err)
	}
	if !strings.Contains(out, "VALID: report with 1 issue(s)") {
		t.Errorf("output = %q", out)
	}
}

func TestRunValidateReportInvalid(t *testing.T) {
	path := writeFile(t, t.TempDir(), "baseline.json", `{"timestamp":"2026-02-01T10:00:00Z","issues":[{"id":"bad"}],"summary":{"total_issues":1,"gate_passed":true}}`)

	_, err := runValidateCmd(t, "", path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if HandleError(err) != ExitInvalidInput {
		t.Errorf("invalid report should exit %d", ExitInvalidInput)
	}
}

func TestRunValidateRules(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "acme.yaml", "version: \"acme-2\"\nrules:\n  - id: acme-host\n    pattern: 'internal\\.acme'\n    languages: [go]\n")

	out, err := runValidateCmd(t, "", dir)
	if err != nil {
		t.Fatalf("runValidate: %v", err)
	}
	if !strings.Contains(out, "VALID: rule set acme-2") {
		t.Errorf("output = %q", out)
	}
}

func TestRunValidateRulesInvalid(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.yaml", "rules:\n  - id: broken\n    pattern: '(oops'\n    languages: [go]\n")

	if _, err := runValidateCmd(t, "", path); err == nil {
		t.Error("expected error for invalid rule pattern")
	}
}

func TestRunValidatePolicy(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, ".codewarden-policy.yaml", "rules:\n  max_critical: 0\n  forbid_cwes: [CWE-89]\n")

	out, err := runValidateCmd(t, "", good)
	if err != nil {
		t.Fatalf("runValidate: %v", err)
	}
	if !strings.Contains(out, "VALID: policy") {
		t.Errorf("output = %q", out)
	}

	if _, err := runValidateCmd(t, "policy", dir+"/missing.yaml"); err == nil {
		t.Error("missing policy file should be invalid")
	}
}

func TestRunValidateMissingFile(t *testing.T) {
	if _, err := runValidateCmd(t, "report", "/nonexistent/report.json"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRunValidateUnknownKind(t *testing.T) {
	_, err := runValidateCmd(t, "sbom", "whatever.json")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
