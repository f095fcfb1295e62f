package tui

import (
	"fmt"
	"strings"

	"github.com/ppiankov/codewarden/internal/models"
)

// detailHeight is the fixed number of lines for the detail panel.
const detailHeight = 6

func renderDetail(issue *models.SecurityIssue, width int) string {
	if issue == nil {
		return styleDetailPanel.Width(width).Render("No issue selected")
	}

	var b strings.Builder

	sevStyled := severityStyle(issue.Severity).Render(strings.ToUpper(issue.Severity))
	b.WriteString(fmt.Sprintf("%s  %s / %s  %s\n", sevStyled, issue.ToolName, issue.Type, location(*issue)))
	b.WriteString(issue.Message + "\n")

	if issue.Recommendation != "" {
		b.WriteString(fmt.Sprintf("Fix: %s\n", issue.Recommendation))
	}

	parts := make([]string, 0, 4)
	if issue.CWEID != "" {
		parts = append(parts, issue.CWEID)
	}
	if issue.OWASPCategory != "" {
		parts = append(parts, "OWASP "+issue.OWASPCategory)
	}
	parts = append(parts, fmt.Sprintf("CVSS %.1f", issue.CVSSScore))
	if issue.Remediation.Effort != "" {
		parts = append(parts, fmt.Sprintf("Effort: %s  Priority: %d", issue.Remediation.Effort, issue.Remediation.Priority))
	}
	b.WriteString(strings.Join(parts, "  "))

	return styleDetailPanel.Width(width).Render(b.String())
}

// renderFullDetail is the expanded view opened with enter
func renderFullDetail(issue *models.SecurityIssue, width int) string {
	if issue == nil {
		return styleDetailPanel.Width(width).Render("No issue selected")
	}

	var b strings.Builder
	b.WriteString(renderDetail(issue, width))
	b.WriteString("\n")

	if issue.CodeSnippet != "" {
		b.WriteString(styleSnippet.Render(issue.CodeSnippet))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "ID: %s  Confidence: %d%%\n", issue.ID, issue.Confidence)
	if issue.Impact != "" || issue.Likelihood != "" {
		fmt.Fprintf(&b, "Impact: %s  Likelihood: %s\n", issue.Impact, issue.Likelihood)
	}
	if issue.Remediation.Description != "" {
		fmt.Fprintf(&b, "Remediation: %s\n", issue.Remediation.Description)
	}
	if len(issue.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(issue.Tags, ", "))
	}
	for _, ref := range issue.References {
		fmt.Fprintf(&b, "  %s\n", ref)
	}
	return b.String()
}
