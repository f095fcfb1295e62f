package tui

import (
	"sort"
	"strings"

	"github.com/ppiankov/codewarden/internal/models"
)

// filterState holds the active filters. MinSeverity keeps issues at or
// above that level.
type filterState struct {
	Tool        string
	MinSeverity string
	SearchText  string
}

type sortField int

const (
	sortBySeverity sortField = iota
	sortByTool
	sortByCategory
	sortByFile
	sortByCVSS
)

const sortFieldCount = 5

// severityCycle is the order the severity filter steps through; "" is all
var severityCycle = []string{"", models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical}

func nextSeverity(current string) string {
	for i, s := range severityCycle {
		if s == current {
			return severityCycle[(i+1)%len(severityCycle)]
		}
	}
	return ""
}

// applyFilters returns issues matching all active filters
func applyFilters(issues []models.SecurityIssue, f filterState) []models.SecurityIssue {
	result := make([]models.SecurityIssue, 0, len(issues))
	searchLower := strings.ToLower(f.SearchText)
	minRank := models.SeverityRank(f.MinSeverity)

	for _, issue := range issues {
		if f.Tool != "" && issue.ToolName != f.Tool {
			continue
		}
		if f.MinSeverity != "" && models.SeverityRank(issue.Severity) < minRank {
			continue
		}
		if searchLower != "" && !matchesSearch(issue, searchLower) {
			continue
		}
		result = append(result, issue)
	}
	return result
}

func matchesSearch(issue models.SecurityIssue, searchLower string) bool {
	for _, field := range []string{
		issue.ToolName, issue.Type, issue.Category, issue.Severity,
		issue.Filename, issue.Message, issue.CWEID,
	} {
		if strings.Contains(strings.ToLower(field), searchLower) {
			return true
		}
	}
	return false
}

// sortIssues sorts issues in place by field
func sortIssues(issues []models.SecurityIssue, field sortField) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		switch field {
		case sortBySeverity:
			if ra, rb := models.SeverityRank(a.Severity), models.SeverityRank(b.Severity); ra != rb {
				return ra > rb
			}
			return a.CVSSScore > b.CVSSScore
		case sortByTool:
			return a.ToolName < b.ToolName
		case sortByCategory:
			return a.Category < b.Category
		case sortByFile:
			if a.Filename != b.Filename {
				return a.Filename < b.Filename
			}
			return a.Line < b.Line
		case sortByCVSS:
			return a.CVSSScore > b.CVSSScore
		default:
			return false
		}
	})
}

// uniqueTools returns the sorted tool names present in issues
func uniqueTools(issues []models.SecurityIssue) []string {
	seen := make(map[string]bool)
	var tools []string
	for _, issue := range issues {
		if !seen[issue.ToolName] {
			seen[issue.ToolName] = true
			tools = append(tools, issue.ToolName)
		}
	}
	sort.Strings(tools)
	return tools
}

func sortFieldName(f sortField) string {
	switch f {
	case sortBySeverity:
		return "severity"
	case sortByTool:
		return "tool"
	case sortByCategory:
		return "category"
	case sortByFile:
		return "file"
	case sortByCVSS:
		return "cvss"
	default:
		return "unknown"
	}
}
