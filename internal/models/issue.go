package models

// SecurityIssue is the common record every tool-specific finding is
// converted into before it reaches storage or presentation.
type SecurityIssue struct {
	ID             string      `json:"id"`
	Line           int         `json:"line"`
	Column         int         `json:"column"`
	ToolName       string      `json:"tool_name"`
	Type           string      `json:"type"`
	Category       string      `json:"category"`
	Message        string      `json:"message"`
	Severity       string      `json:"severity"`   // critical, high, medium, low
	Confidence     int         `json:"confidence"` // 0-100
	CVSSScore      float64     `json:"cvss_score"` // cvss-like, not an official CVSS computation
	CWEID          string      `json:"cwe_id,omitempty"`
	OWASPCategory  string      `json:"owasp_category,omitempty"`
	Recommendation string      `json:"recommendation"`
	Remediation    Remediation `json:"remediation"`
	Filename       string      `json:"filename"`
	CodeSnippet    string      `json:"code_snippet,omitempty"`
	Impact         string      `json:"impact"`
	Likelihood     string      `json:"likelihood"`
	References     []string    `json:"references"`
	Tags           []string    `json:"tags"`
}

// Remediation describes the fix for a SecurityIssue
type Remediation struct {
	Description string `json:"description"`
	Effort      string `json:"effort"`   // Low, Medium, High
	Priority    int    `json:"priority"` // 1 (most urgent) - 5
}

// Remediation effort buckets
const (
	EffortLow    = "Low"
	EffortMedium = "Medium"
	EffortHigh   = "High"
)
