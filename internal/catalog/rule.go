package catalog

import (
	"fmt"
	"regexp"

	"github.com/ppiankov/codewarden/internal/models"
)

// Match is a single pattern hit inside a text.
// Offset and Length are byte positions into the scanned text.
type Match struct {
	Offset int
	Length int
	Groups []string
}

// Matcher finds every non-overlapping occurrence of a pattern, in order.
type Matcher interface {
	FindAll(text string) []Match
	String() string
}

// RegexMatcher backs a Matcher with an RE2 regular expression
type RegexMatcher struct {
	re *regexp.Regexp
}

// NewRegexMatcher compiles pattern into a Matcher
func NewRegexMatcher(pattern string) (*RegexMatcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}
	return &RegexMatcher{re: re}, nil
}

// MustRegex is like NewRegexMatcher but panics on an invalid pattern.
// Only used for the builtin catalog.
func MustRegex(pattern string) *RegexMatcher {
	return &RegexMatcher{re: regexp.MustCompile(pattern)}
}

// FindAll implements Matcher
func (m *RegexMatcher) FindAll(text string) []Match {
	locs := m.re.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}

	matches := make([]Match, 0, len(locs))
	for _, loc := range locs {
		match := Match{
			Offset: loc[0],
			Length: loc[1] - loc[0],
		}
		for g := 2; g+1 < len(loc); g += 2 {
			if loc[g] < 0 {
				match.Groups = append(match.Groups, "")
				continue
			}
			match.Groups = append(match.Groups, text[loc[g]:loc[g+1]])
		}
		matches = append(matches, match)
	}
	return matches
}

// String returns the source pattern
func (m *RegexMatcher) String() string {
	return m.re.String()
}

// Rule is one immutable catalog entry
type Rule struct {
	ID            string
	Name          string
	Description   string
	Severity      models.RuleSeverity
	Type          models.IssueType
	Category      models.RuleCategory
	Matcher       Matcher
	Languages     []string
	Tags          []string
	EffortMinutes int
	CWE           string
	OWASP         string
	Remediation   string
}

// AppliesTo reports whether the rule lists language
func (r *Rule) AppliesTo(language string) bool {
	for _, l := range r.Languages {
		if l == language {
			return true
		}
	}
	return false
}

// HasTag reports whether the rule carries tag
func (r *Rule) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (r *Rule) validate() error {
	if r.ID == "" {
		return fmt.Errorf("missing rule id")
	}
	if r.Matcher == nil {
		return fmt.Errorf("rule %s: missing pattern", r.ID)
	}
	if !models.ValidRuleSeverity(r.Severity) {
		return fmt.Errorf("rule %s: invalid severity %q", r.ID, r.Severity)
	}
	if !models.ValidIssueType(r.Type) {
		return fmt.Errorf("rule %s: invalid type %q", r.ID, r.Type)
	}
	if !models.ValidRuleCategory(r.Category) {
		return fmt.Errorf("rule %s: invalid category %q", r.ID, r.Category)
	}
	if len(r.Languages) == 0 {
		return fmt.Errorf("rule %s: no languages", r.ID)
	}
	if r.EffortMinutes < 0 {
		return fmt.Errorf("rule %s: negative effort", r.ID)
	}
	return nil
}
