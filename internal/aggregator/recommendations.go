package aggregator

import (
	"fmt"
	"sort"

	"github.com/ppiankov/codewarden/internal/models"
)

// issueGroup represents a group of issues by tool, category, and severity
type issueGroup struct {
	tool     string
	category string
	severity string
	count    int
}

// RecommendationGenerator creates actionable recommendations from aggregated issues
type RecommendationGenerator struct{}

// NewRecommendationGenerator creates a new recommendation generator
func NewRecommendationGenerator() *RecommendationGenerator {
	return &RecommendationGenerator{}
}

// GenerateRecommendations groups issues by (tool, category, severity) and
// orders the groups by severity, then size
func (r *RecommendationGenerator) GenerateRecommendations(report *models.Report) []models.Recommendation {
	groups := make(map[string]*issueGroup)

	for _, issue := range report.Issues {
		key := fmt.Sprintf("%s:%s:%s", issue.ToolName, issue.Category, issue.Severity)
		if g, exists := groups[key]; exists {
			g.count++
		} else {
			groups[key] = &issueGroup{
				tool:     issue.ToolName,
				category: issue.Category,
				severity: issue.Severity,
				count:    1,
			}
		}
	}

	recommendations := []models.Recommendation{}
	for _, group := range groups {
		recommendations = append(recommendations, models.Recommendation{
			Severity: group.severity,
			Tool:     group.tool,
			Category: group.category,
			Action:   r.generateAction(group),
			Impact:   r.generateImpact(group),
			Count:    group.count,
		})
	}

	sort.Slice(recommendations, func(i, j int) bool {
		a, b := recommendations[i], recommendations[j]
		if ra, rb := models.SeverityRank(a.Severity), models.SeverityRank(b.Severity); ra != rb {
			return ra > rb
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.Tool != b.Tool {
			return a.Tool < b.Tool
		}
		return a.Category < b.Category
	})

	return recommendations
}

// generateAction creates actionable text based on tool, category and count
func (r *RecommendationGenerator) generateAction(group *issueGroup) string {
	switch models.ToolName(group.tool) {
	case models.ToolRuleEngine:
		switch group.category {
		case string(models.CategorySecurity):
			return fmt.Sprintf("Fix %d security finding(s) in source code", group.count)
		case string(models.CategoryReliability):
			return fmt.Sprintf("Fix %d reliability bug(s)", group.count)
		case string(models.CategoryPerformance):
			return fmt.Sprintf("Address %d performance issue(s)", group.count)
		default:
			return fmt.Sprintf("Refactor %d %s issue(s)", group.count, group.category)
		}
	case models.ToolArchiveInspector:
		return fmt.Sprintf("Quarantine and review %d suspicious archive entr(ies)", group.count)
	case models.ToolIntegrityMonitor:
		return fmt.Sprintf("Investigate %d integrity violation(s)", group.count)
	case models.ToolDependencyScanner:
		return fmt.Sprintf("Upgrade %d vulnerable dependenc(ies)", group.count)
	default:
		return fmt.Sprintf("Address %d issue(s) in %s", group.count, group.tool)
	}
}

// generateImpact describes the potential impact based on severity and category
func (r *RecommendationGenerator) generateImpact(group *issueGroup) string {
	switch group.severity {
	case models.SeverityCritical:
		switch group.category {
		case string(models.CategorySecurity), "dependency":
			return "Exploitable weakness; attackers may gain code execution or data access"
		case "integrity":
			return "Monitored code may have been tampered with"
		default:
			return "Immediate action required"
		}

	case models.SeverityHigh:
		switch group.category {
		case string(models.CategoryReliability):
			return "Likely runtime failures or incorrect behavior"
		case "integrity":
			return "Unreviewed changes to monitored files"
		default:
			return "Significant security or reliability risk"
		}

	case models.SeverityMedium:
		switch group.category {
		case string(models.CategoryMaintainability):
			return "Code is harder to change safely"
		default:
			return "Moderate risk; schedule a fix"
		}

	case models.SeverityLow:
		return "Low priority cleanup"

	default:
		return "Review and address as needed"
	}
}

// GetTopRecommendations returns the top N most critical recommendations
func (r *RecommendationGenerator) GetTopRecommendations(recommendations []models.Recommendation, n int) []models.Recommendation {
	if n >= len(recommendations) {
		return recommendations
	}
	return recommendations[:n]
}

// GroupBySeverity groups recommendations by severity level
func (r *RecommendationGenerator) GroupBySeverity(recommendations []models.Recommendation) map[string][]models.Recommendation {
	grouped := make(map[string][]models.Recommendation)

	for _, rec := range recommendations {
		grouped[rec.Severity] = append(grouped[rec.Severity], rec)
	}

	return grouped
}
