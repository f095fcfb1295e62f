package depscan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocvss31 "github.com/pandatix/go-cvss/31"
)

// DefaultOSVURL is the public OSV.dev API
const DefaultOSVURL = "https://api.osv.dev/v1"

// osvBatchSize is the querybatch entry limit
const osvBatchSize = 1000

// OSVClient implements Scanner against the OSV.dev API. Queries without
// an exact version are not sent. Not safe for concurrent use.
type OSVClient struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
	cache   map[string]*osvVuln
}

// OSVOption configures an OSVClient
type OSVOption func(*OSVClient)

// WithBaseURL points the client at another OSV-compatible endpoint
func WithBaseURL(u string) OSVOption {
	return func(c *OSVClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default 15s-timeout client
func WithHTTPClient(h *http.Client) OSVOption {
	return func(c *OSVClient) { c.http = h }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) OSVOption {
	return func(c *OSVClient) { c.logger = l }
}

// NewOSVClient returns a client for DefaultOSVURL
func NewOSVClient(opts ...OSVOption) *OSVClient {
	c := &OSVClient{
		baseURL: DefaultOSVURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		cache:   map[string]*osvVuln{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type osvPackage struct {
	Name      string `json:"name"`
	Ecosystem string `json:"ecosystem"`
}

type osvQuery struct {
	Package osvPackage `json:"package"`
	Version string     `json:"version,omitempty"`
}

type osvBatchRequest struct {
	Queries []osvQuery `json:"queries"`
}

type osvBatchResponse struct {
	Results []struct {
		Vulns []struct {
			ID string `json:"id"`
		} `json:"vulns"`
	} `json:"results"`
}

type osvVuln struct {
	ID       string   `json:"id"`
	Summary  string   `json:"summary"`
	Details  string   `json:"details"`
	Aliases  []string `json:"aliases"`
	Severity []struct {
		Type  string `json:"type"`
		Score string `json:"score"`
	} `json:"severity"`
	References []struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"references"`
	Affected []struct {
		Package osvPackage `json:"package"`
		Ranges  []struct {
			Type   string `json:"type"`
			Events []struct {
				Introduced string `json:"introduced,omitempty"`
				Fixed      string `json:"fixed,omitempty"`
			} `json:"events"`
		} `json:"ranges"`
	} `json:"affected"`
	DatabaseSpecific struct {
		Severity string   `json:"severity"`
		CWEIDs   []string `json:"cwe_ids"`
	} `json:"database_specific"`
}

// Scan implements Scanner
func (c *OSVClient) Scan(ctx context.Context, queries []PackageQuery) ([]PackageReport, error) {
	reports := make([]PackageReport, len(queries))
	var idx []int
	for i, q := range queries {
		reports[i] = PackageReport{Package: q, Vulnerabilities: []Vulnerability{}}
		if q.Version != "" {
			idx = append(idx, i)
		}
	}

	for start := 0; start < len(idx); start += osvBatchSize {
		end := start + osvBatchSize
		if end > len(idx) {
			end = len(idx)
		}
		chunk := idx[start:end]

		batch := make([]osvQuery, len(chunk))
		for j, i := range chunk {
			q := queries[i]
			batch[j] = osvQuery{Package: osvPackage{Name: q.Name, Ecosystem: q.Ecosystem}, Version: q.Version}
		}

		resp, err := c.queryBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		if len(resp.Results) != len(batch) {
			return nil, fmt.Errorf("osv: got %d results for %d queries", len(resp.Results), len(batch))
		}

		for j, res := range resp.Results {
			i := chunk[j]
			for _, v := range res.Vulns {
				vuln, err := c.vuln(ctx, v.ID, queries[i])
				if err != nil {
					return nil, err
				}
				reports[i].Vulnerabilities = append(reports[i].Vulnerabilities, vuln)
			}
		}
		c.logger.Debug("osv batch complete", "queries", len(batch))
	}

	return reports, nil
}

func (c *OSVClient) queryBatch(ctx context.Context, batch []osvQuery) (*osvBatchResponse, error) {
	body, err := json.Marshal(osvBatchRequest{Queries: batch})
	if err != nil {
		return nil, fmt.Errorf("osv: marshal batch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/querybatch", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("osv: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out osvBatchResponse
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("osv: batch query: %w", err)
	}
	return &out, nil
}

func (c *OSVClient) vuln(ctx context.Context, id string, q PackageQuery) (Vulnerability, error) {
	raw, ok := c.cache[id]
	if !ok {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/vulns/"+url.PathEscape(id), nil)
		if err != nil {
			return Vulnerability{}, fmt.Errorf("osv: build request: %w", err)
		}
		raw = &osvVuln{}
		if err := c.do(req, raw); err != nil {
			return Vulnerability{}, fmt.Errorf("osv: get %s: %w", id, err)
		}
		c.cache[id] = raw
	}

	v := convertVuln(*raw)
	v.FixedVersion = fixedVersion(*raw, q)
	return v, nil
}

func (c *OSVClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func convertVuln(raw osvVuln) Vulnerability {
	v := Vulnerability{
		ID:      raw.ID,
		Aliases: raw.Aliases,
		Summary: raw.Summary,
		CWEs:    raw.DatabaseSpecific.CWEIDs,
	}
	if v.Summary == "" {
		v.Summary = firstLine(raw.Details)
	}
	for _, r := range raw.References {
		v.References = append(v.References, r.URL)
	}
	for _, s := range raw.Severity {
		if strings.HasPrefix(s.Type, "CVSS_V3") {
			v.CVSSVector = s.Score
			break
		}
	}

	if v.CVSSVector != "" {
		if score, err := CVSSBaseScore(v.CVSSVector); err == nil {
			v.CVSSScore = score
		}
	}

	switch {
	case raw.DatabaseSpecific.Severity != "":
		v.Severity = normalizeAdvisorySeverity(raw.DatabaseSpecific.Severity)
	case v.CVSSScore > 0:
		v.Severity = SeverityFromScore(v.CVSSScore)
	default:
		v.Severity = "medium"
	}
	if v.CVSSScore == 0 {
		v.CVSSScore = scoreForSeverity(v.Severity)
	}
	return v
}

// fixedVersion returns the last fixed event of the range affecting q
func fixedVersion(raw osvVuln, q PackageQuery) string {
	fixed := ""
	for _, a := range raw.Affected {
		if a.Package.Name != q.Name || !strings.EqualFold(a.Package.Ecosystem, q.Ecosystem) {
			continue
		}
		for _, r := range a.Ranges {
			for _, e := range r.Events {
				if e.Fixed != "" {
					fixed = e.Fixed
				}
			}
		}
	}
	return fixed
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

// CVSSBaseScore computes the CVSS v3 base score of vector. 3.0 vectors
// are scored with the 3.1 formula.
func CVSSBaseScore(vector string) (float64, error) {
	if strings.HasPrefix(vector, "CVSS:3.0/") {
		vector = "CVSS:3.1/" + strings.TrimPrefix(vector, "CVSS:3.0/")
	}
	cvss, err := gocvss31.ParseVector(vector)
	if err != nil {
		return 0, fmt.Errorf("parse cvss vector: %w", err)
	}
	return cvss.BaseScore(), nil
}

// SeverityFromScore buckets a CVSS score with the v3 qualitative scale
func SeverityFromScore(score float64) string {
	switch {
	case score >= 9.0:
		return "critical"
	case score >= 7.0:
		return "high"
	case score >= 4.0:
		return "medium"
	default:
		return "low"
	}
}

func normalizeAdvisorySeverity(s string) string {
	switch strings.ToUpper(s) {
	case "CRITICAL":
		return "critical"
	case "HIGH":
		return "high"
	case "MODERATE", "MEDIUM":
		return "medium"
	default:
		return "low"
	}
}

func scoreForSeverity(severity string) float64 {
	switch severity {
	case "critical":
		return 9.0
	case "high":
		return 7.5
	case "medium":
		return 5.0
	default:
		return 2.5
	}
}
