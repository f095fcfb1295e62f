package depscan

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func newOSVServer(t *testing.T, detailCalls *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/querybatch", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("querybatch method = %s", r.Method)
		}
		var req osvBatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}

		type vref struct {
			ID string `json:"id"`
		}
		type result struct {
			Vulns []vref `json:"vulns"`
		}
		resp := struct {
			Results []result `json:"results"`
		}{}
		for _, q := range req.Queries {
			var res result
			if q.Package.Name == "lodash" {
				res.Vulns = []vref{{ID: "GHSA-lodash-1"}, {ID: "GHSA-shared"}}
			}
			if q.Package.Name == "minimist" {
				res.Vulns = []vref{{ID: "GHSA-shared"}}
			}
			resp.Results = append(resp.Results, res)
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	mux.HandleFunc("/v1/vulns/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(detailCalls, 1)
		id := strings.TrimPrefix(r.URL.Path, "/v1/vulns/")
		switch id {
		case "GHSA-lodash-1":
			_, _ = w.Write([]byte(`{
  "id": "GHSA-lodash-1",
  "summary": "Prototype pollution in lodash",
  "aliases": ["CVE-2020-8203"],
  "severity": [{"type": "CVSS_V3", "score": "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H"}],
  "references": [{"type": "ADVISORY", "url": "https://example.test/advisory"}],
  "affected": [{"package": {"name": "lodash", "ecosystem": "npm"},
    "ranges": [{"type": "SEMVER", "events": [{"introduced": "0"}, {"fixed": "4.17.19"}]}]}],
  "database_specific": {"cwe_ids": ["CWE-1321"]}
}`))
		case "GHSA-shared":
			_, _ = w.Write([]byte(`{
  "id": "GHSA-shared",
  "details": "Shared advisory\nmore text",
  "database_specific": {"severity": "MODERATE"}
}`))
		default:
			http.NotFound(w, r)
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOSVClientScan(t *testing.T) {
	var calls int32
	srv := newOSVServer(t, &calls)
	client := NewOSVClient(WithBaseURL(srv.URL+"/v1"), WithHTTPClient(srv.Client()))

	queries := []PackageQuery{
		{Name: "lodash", Version: "4.17.15", Ecosystem: EcosystemNPM},
		{Name: "express", Version: "", Ecosystem: EcosystemNPM},
		{Name: "minimist", Version: "1.2.0", Ecosystem: EcosystemNPM},
		{Name: "left-pad", Version: "1.3.0", Ecosystem: EcosystemNPM},
	}

	reports, err := client.Scan(context.Background(), queries)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(reports) != len(queries) {
		t.Fatalf("reports = %d, want %d", len(reports), len(queries))
	}

	lodash := reports[0]
	if len(lodash.Vulnerabilities) != 2 {
		t.Fatalf("lodash vulns = %d", len(lodash.Vulnerabilities))
	}
	v := lodash.Vulnerabilities[0]
	if v.Severity != "critical" || math.Abs(v.CVSSScore-9.8) > 0.01 {
		t.Errorf("cvss mapping = %s %.1f", v.Severity, v.CVSSScore)
	}
	if v.FixedVersion != "4.17.19" || len(v.CWEs) != 1 || len(v.References) != 1 {
		t.Errorf("vuln = %+v", v)
	}

	shared := reports[2].Vulnerabilities
	if len(shared) != 1 || shared[0].Severity != "medium" || shared[0].Summary != "Shared advisory" {
		t.Errorf("shared vuln = %+v", shared)
	}

	if len(reports[1].Vulnerabilities) != 0 {
		t.Error("unversioned query should not be looked up")
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("detail requests = %d, want 2 (cached)", n)
	}
	if got := Vulnerable(reports); len(got) != 2 {
		t.Errorf("Vulnerable = %d, want 2", len(got))
	}
}

func TestOSVClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewOSVClient(WithBaseURL(srv.URL))
	_, err := client.Scan(context.Background(), []PackageQuery{{Name: "a", Version: "1.0.0", Ecosystem: EcosystemNPM}})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("expected HTTP 429 error, got %v", err)
	}
}

func TestOSVClientNoVersionedQueries(t *testing.T) {
	client := NewOSVClient(WithBaseURL("http://127.0.0.1:1"))
	reports, err := client.Scan(context.Background(), []PackageQuery{{Name: "a", Ecosystem: EcosystemNPM}})
	if err != nil {
		t.Fatalf("no request should be made: %v", err)
	}
	if len(reports) != 1 || reports[0].Vulnerabilities == nil {
		t.Errorf("reports = %+v", reports)
	}
}

func TestSeverityFromScore(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{9.8, "critical"}, {9.0, "critical"}, {8.9, "high"}, {7.0, "high"},
		{6.9, "medium"}, {4.0, "medium"}, {3.9, "low"}, {0, "low"},
	}
	for _, tt := range tests {
		if got := SeverityFromScore(tt.score); got != tt.want {
			t.Errorf("SeverityFromScore(%.1f) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestCVSSBaseScoreV30(t *testing.T) {
	score, err := CVSSBaseScore("CVSS:3.0/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(score-9.8) > 0.01 {
		t.Errorf("score = %.1f", score)
	}
	if _, err := CVSSBaseScore("not a vector"); err == nil {
		t.Error("expected parse error")
	}
}
