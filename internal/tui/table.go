package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/ppiankov/codewarden/internal/models"
)

var tableColumns = []table.Column{
	{Title: "Severity", Width: 10},
	{Title: "Tool", Width: 18},
	{Title: "Category", Width: 14},
	{Title: "Location", Width: 40},
	{Title: "CWE", Width: 9},
	{Title: "CVSS", Width: 5},
}

const locationColumn = 3

func buildRows(issues []models.SecurityIssue) []table.Row {
	rows := make([]table.Row, 0, len(issues))
	for _, issue := range issues {
		cwe := issue.CWEID
		if cwe == "" {
			cwe = "-"
		}
		rows = append(rows, table.Row{
			strings.ToUpper(issue.Severity),
			issue.ToolName,
			issue.Category,
			truncateLeft(location(issue), tableColumns[locationColumn].Width),
			cwe,
			fmt.Sprintf("%.1f", issue.CVSSScore),
		})
	}
	return rows
}

// location renders file:line, or just the file when the line is unknown
func location(issue models.SecurityIssue) string {
	if issue.Filename == "" {
		return "-"
	}
	if issue.Line > 0 {
		return fmt.Sprintf("%s:%d", issue.Filename, issue.Line)
	}
	return issue.Filename
}

// truncateLeft keeps the tail of s, which is the informative end of a path
func truncateLeft(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	const ellipsis = "..."
	if maxLen <= len(ellipsis) {
		return s[len(s)-maxLen:]
	}
	return ellipsis + s[len(s)-maxLen+len(ellipsis):]
}

func newTable(rows []table.Row, height int) table.Model {
	t := table.New(
		table.WithColumns(tableColumns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(height),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorBorder).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(colorAccent).
		Bold(false)
	t.SetStyles(s)

	return t
}
