package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/ppiankov/codewarden/internal/catalog"
	"github.com/ppiankov/codewarden/internal/reporter"
	"github.com/spf13/cobra"
)

var (
	rulesLanguage string
	rulesFormat   string
	rulesCategory string
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the rules of the active catalog",
	Long: `Rules prints every rule in the catalog, including custom rules loaded
from rules_path.

Example:
  codewarden rules
  codewarden rules --language python
  codewarden rules --category security --format json`,
	Args: cobra.NoArgs,
	RunE: runRules,
}

func init() {
	rulesCmd.Flags().StringVarP(&rulesLanguage, "language", "l", "",
		"only rules that apply to this language")
	rulesCmd.Flags().StringVar(&rulesCategory, "category", "",
		"only rules in this category")
	rulesCmd.Flags().StringVarP(&rulesFormat, "format", "f", "text",
		"output format: text or json")
}

// ruleInfo is the JSON shape of one listed rule
type ruleInfo struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Severity      string   `json:"severity"`
	Type          string   `json:"type"`
	Category      string   `json:"category"`
	Languages     []string `json:"languages"`
	CWE           string   `json:"cwe,omitempty"`
	OWASP         string   `json:"owasp,omitempty"`
	EffortMinutes int      `json:"effort_minutes"`
	Pattern       string   `json:"pattern"`
}

func runRules(cmd *cobra.Command, args []string) error {
	cat, err := catalog.Load(cfg.RulesPath)
	if err != nil {
		return &ValidationError{Message: fmt.Sprintf("failed to load rules: %v", err)}
	}

	var rules []*catalog.Rule
	if rulesLanguage != "" {
		rules = cat.ForLanguage(strings.ToLower(rulesLanguage))
	} else {
		rules = cat.All()
	}

	infos := make([]ruleInfo, 0, len(rules))
	for _, r := range rules {
		if rulesCategory != "" && !strings.EqualFold(string(r.Category), rulesCategory) {
			continue
		}
		infos = append(infos, ruleInfo{
			ID:            r.ID,
			Name:          r.Name,
			Severity:      string(r.Severity),
			Type:          string(r.Type),
			Category:      string(r.Category),
			Languages:     r.Languages,
			CWE:           r.CWE,
			OWASP:         r.OWASP,
			EffortMinutes: r.EffortMinutes,
			Pattern:       fmt.Sprint(r.Matcher),
		})
	}

	out := cmd.OutOrStdout()
	switch rulesFormat {
	case "json":
		return reporter.NewJSONReporter(out, true).Encode(struct {
			Version string     `json:"version"`
			Rules   []ruleInfo `json:"rules"`
		}{cat.Version(), infos})
	case "text":
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "ID\tSEVERITY\tCATEGORY\tCWE\tLANGUAGES\tNAME\n")
		for _, r := range infos {
			cwe := r.CWE
			if cwe == "" {
				cwe = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.ID, r.Severity, r.Category, cwe, strings.Join(r.Languages, ","), r.Name)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%d rule(s), rule set %s\n", len(infos), cat.Version())
		return nil
	default:
		return &ValidationError{Message: fmt.Sprintf("unsupported format: %s (use text or json)", rulesFormat)}
	}
}
