package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ppiankov/codewarden/internal/models"
	"gopkg.in/yaml.v3"
)

// DefaultVersion is the version string of the builtin rule set
const DefaultVersion = "2024.1"

// Catalog is an immutable, indexed rule table
type Catalog struct {
	version    string
	rules      []*Rule
	byID       map[string]*Rule
	byLanguage map[string][]*Rule
}

// New indexes rules into a catalog. Duplicate ids are an error.
func New(version string, rules []*Rule) (*Catalog, error) {
	c := &Catalog{
		version:    version,
		byID:       make(map[string]*Rule, len(rules)),
		byLanguage: make(map[string][]*Rule),
	}

	for _, r := range rules {
		if err := r.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[r.ID]; dup {
			return nil, fmt.Errorf("duplicate rule id %s", r.ID)
		}
		c.byID[r.ID] = r
		c.rules = append(c.rules, r)
	}

	sort.Slice(c.rules, func(i, j int) bool {
		return c.rules[i].ID < c.rules[j].ID
	})

	for _, r := range c.rules {
		for _, lang := range r.Languages {
			c.byLanguage[lang] = append(c.byLanguage[lang], r)
		}
	}

	return c, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the builtin catalog. It is built once per process.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := New(DefaultVersion, builtinRules())
		if err != nil {
			panic(fmt.Sprintf("builtin catalog: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Version returns the rule set version
func (c *Catalog) Version() string {
	return c.version
}

// Len returns the number of rules
func (c *Catalog) Len() int {
	return len(c.rules)
}

// Get looks up a rule by id
func (c *Catalog) Get(id string) (*Rule, bool) {
	r, ok := c.byID[id]
	return r, ok
}

// All returns every rule sorted by id
func (c *Catalog) All() []*Rule {
	out := make([]*Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// ForLanguage returns the rules that list language, sorted by id.
// Unknown languages yield an empty slice.
func (c *Catalog) ForLanguage(language string) []*Rule {
	rules := c.byLanguage[strings.ToLower(language)]
	out := make([]*Rule, len(rules))
	copy(out, rules)
	return out
}

// Languages returns every language tag known to the catalog
func (c *Catalog) Languages() []string {
	langs := make([]string, 0, len(c.byLanguage))
	for l := range c.byLanguage {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// ruleFile is the on-disk YAML shape for custom rules
type ruleFile struct {
	Version string     `yaml:"version"`
	Rules   []ruleSpec `yaml:"rules"`
}

type ruleSpec struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	Severity      string   `yaml:"severity"`
	Type          string   `yaml:"type"`
	Category      string   `yaml:"category"`
	Pattern       string   `yaml:"pattern"`
	Languages     []string `yaml:"languages"`
	Tags          []string `yaml:"tags"`
	EffortMinutes int      `yaml:"effort_minutes"`
	CWE           string   `yaml:"cwe"`
	OWASP         string   `yaml:"owasp"`
	Remediation   string   `yaml:"remediation"`
}

// Load builds a catalog from the builtin rules with custom rules from
// path merged over them by id. path may be a single YAML file or a
// directory of *.yml / *.yaml files. An empty path returns Default().
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	all := map[string]*Rule{}
	for _, r := range builtinRules() {
		all[r.ID] = r
	}

	custom, version, err := loadFromPath(path)
	if err != nil {
		return nil, err
	}
	for _, r := range custom {
		all[r.ID] = r
	}

	if version == "" {
		version = DefaultVersion + "+custom"
	}

	rules := make([]*Rule, 0, len(all))
	for _, r := range all {
		rules = append(rules, r)
	}
	return New(version, rules)
}

func loadFromPath(path string) ([]*Rule, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", fmt.Errorf("stat rules path: %w", err)
	}

	var files []string
	if info.IsDir() {
		err = filepath.WalkDir(path, func(p string, d os.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(d.Name()))
			if ext == ".yml" || ext == ".yaml" {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, "", err
		}
	} else {
		files = []string{path}
	}

	sort.Strings(files)
	var loaded []*Rule
	version := ""

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, "", fmt.Errorf("read rules file %s: %w", f, err)
		}

		var rf ruleFile
		if err := yaml.Unmarshal(data, &rf); err != nil {
			return nil, "", fmt.Errorf("parse rules file %s: %w", f, err)
		}
		if rf.Version != "" {
			version = rf.Version
		}

		for _, spec := range rf.Rules {
			r, err := compileSpec(spec)
			if err != nil {
				return nil, "", fmt.Errorf("invalid rule %s: %w", spec.ID, err)
			}
			loaded = append(loaded, r)
		}
	}

	return loaded, version, nil
}

func compileSpec(spec ruleSpec) (*Rule, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("missing rule id")
	}
	if spec.Pattern == "" {
		return nil, fmt.Errorf("missing pattern")
	}

	m, err := NewRegexMatcher(spec.Pattern)
	if err != nil {
		return nil, err
	}

	r := &Rule{
		ID:            spec.ID,
		Name:          spec.Name,
		Description:   spec.Description,
		Severity:      models.RuleSeverity(strings.ToUpper(spec.Severity)),
		Type:          models.IssueType(strings.ToUpper(strings.ReplaceAll(spec.Type, " ", "_"))),
		Category:      models.RuleCategory(strings.ToLower(spec.Category)),
		Matcher:       m,
		Tags:          spec.Tags,
		EffortMinutes: spec.EffortMinutes,
		CWE:           spec.CWE,
		OWASP:         spec.OWASP,
		Remediation:   spec.Remediation,
	}
	if r.Name == "" {
		r.Name = r.ID
	}
	if r.Severity == "" {
		r.Severity = models.RuleMajor
	}
	if r.Type == "" {
		r.Type = models.TypeCodeSmell
	}
	if r.Category == "" {
		r.Category = models.CategoryMaintainability
	}
	for _, l := range spec.Languages {
		r.Languages = append(r.Languages, strings.ToLower(l))
	}

	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// LanguageForFile maps a filename extension to a catalog language tag.
// Returns "" when the extension is not recognized.
func LanguageForFile(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".js", ".jsx", ".mjs", ".cjs":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".py", ".pyw":
		return "python"
	case ".java":
		return "java"
	case ".go":
		return "go"
	case ".php", ".phtml":
		return "php"
	case ".rb", ".erb":
		return "ruby"
	case ".cs":
		return "csharp"
	default:
		return ""
	}
}
