package aggregator

import (
	"strings"
	"testing"

	"github.com/ppiankov/codewarden/internal/models"
)

func issue(tool, category, severity string) models.SecurityIssue {
	return models.SecurityIssue{ToolName: tool, Category: category, Severity: severity}
}

func TestGenerateRecommendations(t *testing.T) {
	engineTool := string(models.ToolRuleEngine)
	report := &models.Report{Issues: []models.SecurityIssue{
		issue(engineTool, "maintainability", models.SeverityMedium),
		issue(engineTool, "maintainability", models.SeverityMedium),
		issue(engineTool, "maintainability", models.SeverityMedium),
		issue(engineTool, "security", models.SeverityCritical),
		issue(string(models.ToolIntegrityMonitor), "integrity", models.SeverityHigh),
		issue(string(models.ToolDependencyScanner), "dependency", models.SeverityHigh),
		issue(string(models.ToolDependencyScanner), "dependency", models.SeverityHigh),
		issue(engineTool, "design", models.SeverityLow),
	}}

	recs := NewRecommendationGenerator().GenerateRecommendations(report)
	if len(recs) != 5 {
		t.Fatalf("recommendations = %d, want 5", len(recs))
	}

	wantOrder := []struct {
		tool, severity string
		count          int
	}{
		{engineTool, models.SeverityCritical, 1},
		{string(models.ToolDependencyScanner), models.SeverityHigh, 2},
		{string(models.ToolIntegrityMonitor), models.SeverityHigh, 1},
		{engineTool, models.SeverityMedium, 3},
		{engineTool, models.SeverityLow, 1},
	}
	for i, w := range wantOrder {
		r := recs[i]
		if r.Tool != w.tool || r.Severity != w.severity || r.Count != w.count {
			t.Errorf("recs[%d] = %s/%s/%d, want %s/%s/%d", i, r.Tool, r.Severity, r.Count, w.tool, w.severity, w.count)
		}
		if r.Action == "" || r.Impact == "" {
			t.Errorf("recs[%d] missing text: %+v", i, r)
		}
	}

	if !strings.Contains(recs[0].Action, "1 security finding") {
		t.Errorf("Action = %q", recs[0].Action)
	}
	if !strings.Contains(recs[1].Action, "Upgrade 2") {
		t.Errorf("Action = %q", recs[1].Action)
	}
}

func TestGenerateRecommendationsEmpty(t *testing.T) {
	recs := NewRecommendationGenerator().GenerateRecommendations(&models.Report{})
	if recs == nil || len(recs) != 0 {
		t.Errorf("recs = %v, want empty non-nil", recs)
	}
}

func TestGetTopAndGroup(t *testing.T) {
	gen := NewRecommendationGenerator()
	recs := []models.Recommendation{
		{Severity: models.SeverityCritical}, {Severity: models.SeverityHigh}, {Severity: models.SeverityHigh},
	}

	if got := gen.GetTopRecommendations(recs, 2); len(got) != 2 {
		t.Errorf("top 2 = %d", len(got))
	}
	if got := gen.GetTopRecommendations(recs, 10); len(got) != 3 {
		t.Errorf("top 10 = %d", len(got))
	}

	grouped := gen.GroupBySeverity(recs)
	if len(grouped[models.SeverityHigh]) != 2 || len(grouped[models.SeverityCritical]) != 1 {
		t.Errorf("grouped = %v", grouped)
	}
}
