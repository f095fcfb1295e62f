package models

// RuleSeverity is the severity scale used by the pattern catalog
type RuleSeverity string

const (
	RuleBlocker  RuleSeverity = "BLOCKER"
	RuleCritical RuleSeverity = "CRITICAL"
	RuleMajor    RuleSeverity = "MAJOR"
	RuleMinor    RuleSeverity = "MINOR"
	RuleInfo     RuleSeverity = "INFO"
)

// IssueType classifies what kind of defect a rule reports
type IssueType string

const (
	TypeBug             IssueType = "BUG"
	TypeVulnerability   IssueType = "VULNERABILITY"
	TypeCodeSmell       IssueType = "CODE_SMELL"
	TypeSecurityHotspot IssueType = "SECURITY_HOTSPOT"
)

// RuleCategory groups rules by quality dimension
type RuleCategory string

const (
	CategorySecurity        RuleCategory = "security"
	CategoryReliability     RuleCategory = "reliability"
	CategoryMaintainability RuleCategory = "maintainability"
	CategoryPerformance     RuleCategory = "performance"
	CategoryDesign          RuleCategory = "design"
)

// ValidRuleSeverity reports whether s is a known catalog severity
func ValidRuleSeverity(s RuleSeverity) bool {
	switch s {
	case RuleBlocker, RuleCritical, RuleMajor, RuleMinor, RuleInfo:
		return true
	}
	return false
}

// ValidIssueType reports whether t is a known issue type
func ValidIssueType(t IssueType) bool {
	switch t {
	case TypeBug, TypeVulnerability, TypeCodeSmell, TypeSecurityHotspot:
		return true
	}
	return false
}

// ValidRuleCategory reports whether c is a known rule category
func ValidRuleCategory(c RuleCategory) bool {
	switch c {
	case CategorySecurity, CategoryReliability, CategoryMaintainability, CategoryPerformance, CategoryDesign:
		return true
	}
	return false
}

// NormalizeRuleSeverity maps catalog severities onto the shared four-level scale
func NormalizeRuleSeverity(s RuleSeverity) string {
	switch s {
	case RuleBlocker, RuleCritical:
		return SeverityCritical
	case RuleMajor:
		return SeverityHigh
	case RuleMinor:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
