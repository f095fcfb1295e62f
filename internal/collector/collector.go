package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ppiankov/codewarden/internal/catalog"
	"github.com/ppiankov/codewarden/internal/engine"
)

// Concurrency bounds
const (
	DefaultConcurrency = 4
	MaxConcurrency     = 16
)

// DefaultMaxFileBytes skips files larger than 2MB
const DefaultMaxFileBytes = 2 << 20

// defaultExcludes are always skipped when walking directories
var defaultExcludes = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/vendor/**",
	"**/.codewarden/**",
	"**/__pycache__/**",
	"**/.venv/**",
	"**/dist/**",
	"**/*.min.js",
}

// Config holds configuration for the collector
type Config struct {
	MaxConcurrency int
	Timeout        time.Duration
	MaxFileBytes   int64
	// Exclude holds doublestar patterns matched against paths relative
	// to each walked root
	Exclude []string
	Logger  *slog.Logger
}

// Collector loads source files with a bounded worker pool
type Collector struct {
	config Config
}

// New creates a new collector with the given configuration
func New(config Config) *Collector {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultConcurrency
	}
	if config.MaxConcurrency > MaxConcurrency {
		config.MaxConcurrency = MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}
	if config.MaxFileBytes <= 0 {
		config.MaxFileBytes = DefaultMaxFileBytes
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Collector{
		config: config,
	}
}

// SourceFile is one loaded text file
type SourceFile struct {
	Path     string
	Content  string
	Language string
}

// Skipped records a file that was not loaded
type Skipped struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Result is the outcome of Scan or Load
type Result struct {
	Files   []SourceFile
	Scans   []engine.ScanResult
	Skipped []Skipped
	Errors  []error
}

// Discover expands paths into a sorted, deduplicated file list. Directories
// are walked recursively; excludes apply to walked entries only. With
// codeOnly set, files of unknown language are dropped.
func (c *Collector) Discover(paths []string, codeOnly bool) ([]string, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no paths given")
	}

	seen := map[string]bool{}
	var files []string
	add := func(p string) {
		p = filepath.ToSlash(filepath.Clean(p))
		if seen[p] {
			return
		}
		if codeOnly && catalog.LanguageForFile(p) == "" {
			return
		}
		seen[p] = true
		files = append(files, p)
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", root, err)
		}
		if !info.IsDir() {
			add(root)
			continue
		}

		err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, relErr := filepath.Rel(root, p)
			if relErr != nil || rel == "." {
				return relErr
			}
			rel = filepath.ToSlash(rel)
			if d.IsDir() {
				// probe a child so "dir/**" patterns prune the directory
				if c.excluded(rel + "/x") {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || c.excluded(rel) {
				return nil
			}
			add(p)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}

	sort.Strings(files)
	return files, nil
}

// excluded reports whether the root-relative path rel matches a default
// or configured pattern
func (c *Collector) excluded(rel string) bool {
	for _, patterns := range [][]string{defaultExcludes, c.config.Exclude} {
		for _, pattern := range patterns {
			if ok, _ := doublestar.Match(pattern, rel); ok {
				return true
			}
		}
	}
	return false
}

// Scan loads every code file under paths and runs eng over it
func (c *Collector) Scan(ctx context.Context, eng *engine.Engine, paths []string) (*Result, error) {
	files, err := c.Discover(paths, true)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no source files found in %s", strings.Join(paths, ", "))
	}
	c.config.Logger.Debug("discovered source files", "count", len(files))

	return c.collectFiles(ctx, files, eng)
}

// Load reads every text file under paths without scanning
func (c *Collector) Load(ctx context.Context, paths []string) (*Result, error) {
	files, err := c.Discover(paths, false)
	if err != nil {
		return nil, err
	}
	return c.collectFiles(ctx, files, nil)
}

// collectFiles processes files concurrently using a worker pool
func (c *Collector) collectFiles(ctx context.Context, files []string, eng *engine.Engine) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	fileCh := make(chan string, len(files))
	resultCh := make(chan *collectResult, len(files))

	var wg sync.WaitGroup
	for i := 0; i < c.config.MaxConcurrency; i++ {
		wg.Add(1)
		go c.worker(ctx, &wg, eng, fileCh, resultCh)
	}

	go func() {
		defer close(fileCh)
		for _, file := range files {
			select {
			case fileCh <- file:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	result := &Result{}
	for r := range resultCh {
		switch {
		case r.err != nil:
			result.Errors = append(result.Errors, r.err)
			c.config.Logger.Warn("failed to process file", "file", r.file.Path, "error", r.err)
		case r.skip != "":
			result.Skipped = append(result.Skipped, Skipped{Path: r.file.Path, Reason: r.skip})
		default:
			result.Files = append(result.Files, r.file)
			if r.scan != nil {
				result.Scans = append(result.Scans, *r.scan)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("collect files: %w", err)
	}
	if len(result.Errors) > 0 && len(result.Files) == 0 {
		return nil, fmt.Errorf("all files failed to process: %w", errors.Join(result.Errors...))
	}

	sort.Slice(result.Files, func(i, j int) bool { return result.Files[i].Path < result.Files[j].Path })
	sort.Slice(result.Scans, func(i, j int) bool { return result.Scans[i].Filename < result.Scans[j].Filename })
	sort.Slice(result.Skipped, func(i, j int) bool { return result.Skipped[i].Path < result.Skipped[j].Path })
	return result, nil
}

// collectResult holds the result of processing a single file
type collectResult struct {
	file SourceFile
	scan *engine.ScanResult
	skip string
	err  error
}

// worker processes files from the work channel
func (c *Collector) worker(ctx context.Context, wg *sync.WaitGroup, eng *engine.Engine, fileCh <-chan string, resultCh chan<- *collectResult) {
	defer wg.Done()

	for {
		select {
		case path, ok := <-fileCh:
			if !ok {
				return
			}
			resultCh <- c.processFile(path, eng)

		case <-ctx.Done():
			return
		}
	}
}

// processFile reads one file and scans it when eng is set
func (c *Collector) processFile(path string, eng *engine.Engine) *collectResult {
	res := &collectResult{file: SourceFile{Path: path, Language: catalog.LanguageForFile(path)}}

	info, err := os.Stat(path)
	if err != nil {
		res.err = fmt.Errorf("stat %s: %w", path, err)
		return res
	}
	if info.Size() > c.config.MaxFileBytes {
		res.skip = fmt.Sprintf("larger than %d bytes", c.config.MaxFileBytes)
		return res
	}

	data, err := os.ReadFile(path)
	if err != nil {
		res.err = fmt.Errorf("read %s: %w", path, err)
		return res
	}
	if !utf8.Valid(data) {
		res.skip = "not valid UTF-8 text"
		return res
	}
	res.file.Content = string(data)

	if eng != nil {
		scan := eng.Scan(res.file.Content, path, res.file.Language)
		res.scan = &scan
	}
	return res
}
