package collector

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/codewarden/internal/engine"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func rel(t *testing.T, root string, paths []string) []string {
	t.Helper()
	out := make([]string, len(paths))
	for i, p := range paths {
		r, err := filepath.Rel(root, filepath.FromSlash(p))
		if err != nil {
			t.Fatal(err)
		}
		out[i] = filepath.ToSlash(r)
	}
	return out
}

func TestNewDefaults(t *testing.T) {
	c := New(Config{})
	if c.config.MaxConcurrency != DefaultConcurrency {
		t.Errorf("expected default MaxConcurrency=%d, got %d", DefaultConcurrency, c.config.MaxConcurrency)
	}
	if c.config.Timeout <= 0 || c.config.MaxFileBytes != DefaultMaxFileBytes {
		t.Errorf("defaults not applied: %+v", c.config)
	}
}

func TestNewClampsConcurrency(t *testing.T) {
	if c := New(Config{MaxConcurrency: 64}); c.config.MaxConcurrency != MaxConcurrency {
		t.Errorf("expected clamp to %d, got %d", MaxConcurrency, c.config.MaxConcurrency)
	}
	if c := New(Config{MaxConcurrency: 2}); c.config.MaxConcurrency != 2 {
		t.Errorf("expected MaxConcurrency=2, got %d", c.config.MaxConcurrency)
	}
}

func TestDiscover(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/app.js":                "a",
		"src/util.py":               "b",
		"src/README.md":             "c",
		"node_modules/lib/index.js": "d",
		"testdata/fixture.js":       "e",
		"build/out.min.js":          "f",
		".git/config":               "g",
	})

	c := New(Config{Exclude: []string{"testdata/**"}})

	code, err := c.Discover([]string{root}, true)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	got := strings.Join(rel(t, root, code), ",")
	if got != "src/app.js,src/util.py" {
		t.Errorf("code files = %s", got)
	}

	all, err := c.Discover([]string{root, filepath.Join(root, "src", "app.js")}, false)
	if err != nil {
		t.Fatal(err)
	}
	got = strings.Join(rel(t, root, all), ",")
	if got != "src/README.md,src/app.js,src/util.py" {
		t.Errorf("all files = %s", got)
	}
}

func TestDiscoverErrors(t *testing.T) {
	c := New(Config{})
	if _, err := c.Discover(nil, true); err == nil {
		t.Error("expected error for empty paths")
	}
	if _, err := c.Discover([]string{"/nonexistent/dir"}, true); err == nil {
		t.Error("expected error for nonexistent path")
	}
}

func TestScan(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.js":      "element.innerHTML = userInput;\n",
		"b.js":      "export const x = 1;\n",
		"big.js":    strings.Repeat("// padding\n", 200),
		"binary.py": "\xff\xfe\x00",
	})

	c := New(Config{MaxConcurrency: 2, MaxFileBytes: 1024})
	res, err := c.Scan(context.Background(), engine.New(nil, engine.Options{}), []string{root})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(res.Scans) != 2 || len(res.Files) != 2 {
		t.Fatalf("scans=%d files=%d, want 2", len(res.Scans), len(res.Files))
	}
	if !strings.HasSuffix(res.Scans[0].Filename, "a.js") || len(res.Scans[0].Issues) == 0 {
		t.Errorf("a.js scan = %+v", res.Scans[0])
	}
	if res.Scans[0].Language != "javascript" {
		t.Errorf("Language = %q", res.Scans[0].Language)
	}

	if len(res.Skipped) != 2 {
		t.Fatalf("skipped = %+v", res.Skipped)
	}
	reasons := res.Skipped[0].Reason + "|" + res.Skipped[1].Reason
	if !strings.Contains(reasons, "larger than") || !strings.Contains(reasons, "UTF-8") {
		t.Errorf("skip reasons = %s", reasons)
	}
}

func TestScanNoSourceFiles(t *testing.T) {
	root := writeTree(t, map[string]string{"notes.txt": "x"})
	if _, err := New(Config{}).Scan(context.Background(), engine.New(nil, engine.Options{}), []string{root}); err == nil {
		t.Error("expected error when no source files are found")
	}
}

func TestLoad(t *testing.T) {
	root := writeTree(t, map[string]string{"a.js": "x", ".env": "SECRET=1", "docs/guide.md": "# hi"})

	res, err := New(Config{MaxConcurrency: 1}).Load(context.Background(), []string{root})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(res.Files) != 3 || len(res.Scans) != 0 {
		t.Fatalf("files=%d scans=%d", len(res.Files), len(res.Scans))
	}
	if res.Files[0].Content != "SECRET=1" {
		t.Errorf("files not sorted or content missing: %+v", res.Files[0])
	}
}

func TestCollectTimeout(t *testing.T) {
	root := writeTree(t, map[string]string{"a.js": "x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(Config{Timeout: time.Minute})
	if _, err := c.Load(ctx, []string{root}); err == nil {
		t.Error("expected canceled context error")
	}
}
