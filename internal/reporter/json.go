package reporter

import (
	"encoding/json"
	"io"

	"github.com/ppiankov/codewarden/internal/models"
)

// JSONReporter generates machine-readable JSON reports
type JSONReporter struct {
	writer io.Writer
	pretty bool
}

// NewJSONReporter creates a new JSON reporter
func NewJSONReporter(writer io.Writer, pretty bool) *JSONReporter {
	return &JSONReporter{
		writer: writer,
		pretty: pretty,
	}
}

// Generate creates a JSON report from the aggregated data
func (r *JSONReporter) Generate(report *models.Report) error {
	return r.Encode(report)
}

// GenerateSummaryOnly creates a compact JSON summary without the issue list
func (r *JSONReporter) GenerateSummaryOnly(report *models.Report) error {
	summary := struct {
		Timestamp       string                  `json:"timestamp"`
		Target          string                  `json:"target,omitempty"`
		Summary         models.Summary          `json:"summary"`
		Trend           *models.Trend           `json:"trend,omitempty"`
		Recommendations []models.Recommendation `json:"recommendations"`
	}{
		Timestamp:       report.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		Target:          report.Target,
		Summary:         report.Summary,
		Trend:           report.Trend,
		Recommendations: report.Recommendations,
	}
	return r.Encode(summary)
}

// Encode writes any result (archive analysis, provenance report, alert
// list) as JSON followed by a newline
func (r *JSONReporter) Encode(v any) error {
	var data []byte
	var err error

	if r.pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return err
	}

	_, err = r.writer.Write(data)
	if err != nil {
		return err
	}

	// Add trailing newline for terminal output
	_, err = r.writer.Write([]byte("\n"))
	return err
}
