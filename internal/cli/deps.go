package cli

import (
	"context"
	"path/filepath"

	"github.com/ppiankov/codewarden/internal/archive"
	"github.com/ppiankov/codewarden/internal/collector"
	"github.com/ppiankov/codewarden/internal/depscan"
)

// lookupDependencies resolves manifest packages against OSV and returns
// the vulnerable ones. Manifest parse failures are logged, not fatal.
func lookupDependencies(ctx context.Context, manifests []archive.ManifestFile, osvURL string) ([]depscan.PackageReport, error) {
	queries, err := depscan.Requests(manifests)
	if err != nil {
		logError("Some manifests could not be parsed: %v", err)
	}
	if len(queries) == 0 {
		logVerbose("No pinned dependencies found in %d manifest(s)", len(manifests))
		return nil, nil
	}

	opts := []depscan.OSVOption{depscan.WithLogger(newLogger())}
	if osvURL != "" {
		opts = append(opts, depscan.WithBaseURL(osvURL))
	}
	client := depscan.NewOSVClient(opts...)

	logVerbose("Looking up %d package(s) in OSV", len(queries))
	reports, err := client.Scan(ctx, queries)
	if err != nil {
		return nil, err
	}

	vulnerable := depscan.Vulnerable(reports)
	logVerbose("%d of %d package(s) have known vulnerabilities", len(vulnerable), len(reports))
	return vulnerable, nil
}

// localManifests loads the dependency manifests found under paths
func localManifests(ctx context.Context, c *collector.Collector, paths []string) ([]archive.ManifestFile, error) {
	files, err := c.Discover(paths, false)
	if err != nil {
		return nil, err
	}

	var wanted []string
	for _, f := range files {
		if depscan.Supported(filepath.Base(f)) {
			wanted = append(wanted, f)
		}
	}
	if len(wanted) == 0 {
		return nil, nil
	}

	loaded, err := c.Load(ctx, wanted)
	if err != nil {
		return nil, err
	}

	manifests := make([]archive.ManifestFile, 0, len(loaded.Files))
	for _, f := range loaded.Files {
		manifests = append(manifests, archive.ManifestFile{
			Name:    filepath.Base(f.Path),
			Path:    filepath.ToSlash(f.Path),
			Content: f.Content,
		})
	}
	return manifests, nil
}
