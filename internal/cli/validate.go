package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/codewarden/internal/catalog"
	"github.com/ppiankov/codewarden/internal/policy"
	"github.com/ppiankov/codewarden/internal/validator"
	"github.com/spf13/cobra"
)

var validateKind string

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a report, custom rules file, or policy file",
	Long: `Validate checks one input file without running an analysis.

Kinds:
  report  a JSON report written by 'codewarden scan --format json'
  rules   a YAML file or directory of custom rules for rules_path
  policy  a .codewarden-policy.yaml file

The kind is detected from the file name when --kind is not set:
directories and .yaml/.yml files are rules unless the name contains
"policy"; everything else is a report.

Returns exit 0 if valid, exit 2 if invalid with details on stderr.

Example:
  codewarden validate baseline.json
  codewarden validate ./rules/
  codewarden validate .codewarden-policy.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateKind, "kind", "",
		"input kind: report, rules, or policy (default: detect)")
}

// detectKind guesses the input kind from the path
func detectKind(path string) string {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return "rules"
	}
	base := strings.ToLower(filepath.Base(path))
	ext := filepath.Ext(base)
	if ext == ".yaml" || ext == ".yml" {
		if strings.Contains(base, "policy") {
			return "policy"
		}
		return "rules"
	}
	return "report"
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := args[0]
	kind := validateKind
	if kind == "" {
		kind = detectKind(path)
	}
	logVerbose("Validating %s as %s", path, kind)

	out := cmd.OutOrStdout()
	invalid := func(err error) error {
		fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
		return &ValidationError{Message: fmt.Sprintf("%s is not a valid %s", path, kind)}
	}

	switch kind {
	case "report":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		report, err := validator.New().ValidateReport(data)
		if err != nil {
			return invalid(err)
		}
		fmt.Fprintf(out, "VALID: report with %d issue(s)\n", len(report.Issues))

	case "rules":
		cat, err := catalog.Load(path)
		if err != nil {
			return invalid(err)
		}
		fmt.Fprintf(out, "VALID: rule set %s, %d rules after merge\n", cat.Version(), cat.Len())

	case "policy":
		pol, err := policy.LoadFromFile(path)
		if err != nil {
			return invalid(err)
		}
		if pol == nil {
			return invalid(fmt.Errorf("file not found"))
		}
		fmt.Fprintln(out, "VALID: policy")

	default:
		return &ValidationError{Message: fmt.Sprintf("unknown kind: %s (use report, rules, or policy)", kind)}
	}
	return nil
}
