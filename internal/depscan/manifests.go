package depscan

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/modfile"

	"github.com/ppiankov/codewarden/internal/archive"
)

type parseFunc func(m archive.ManifestFile) ([]PackageQuery, error)

var parsers = map[string]parseFunc{
	"package.json":        parsePackageJSON,
	"package-lock.json":   parsePackageLock,
	"npm-shrinkwrap.json": parsePackageLock,
	"requirements.txt":    parseRequirements,
	"go.mod":              parseGoMod,
	"cargo.toml":          parseCargoToml,
	"cargo.lock":          parseCargoLock,
	"composer.json":       parseComposerJSON,
	"composer.lock":       parseComposerLock,
}

// Supported reports whether a manifest of this file name can be parsed
func Supported(name string) bool {
	_, ok := parsers[strings.ToLower(baseName(name))]
	return ok
}

// Requests parses every supported manifest into package queries,
// deduplicated and sorted by ecosystem, name and version. Manifests
// without content or of an unsupported kind are skipped. Parse failures
// are joined into the returned error; queries from the other manifests
// are still returned.
func Requests(manifests []archive.ManifestFile) ([]PackageQuery, error) {
	seen := map[string]bool{}
	var out []PackageQuery
	var errs []error

	for _, m := range manifests {
		parse, ok := parsers[strings.ToLower(baseName(m.Name))]
		if !ok || m.Content == "" {
			continue
		}
		queries, err := parse(m)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.Path, err))
			continue
		}
		for _, q := range queries {
			if q.Name == "" || seen[q.key()] {
				continue
			}
			seen[q.key()] = true
			out = append(out, q)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Ecosystem != out[j].Ecosystem {
			return out[i].Ecosystem < out[j].Ecosystem
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version < out[j].Version
	})
	return out, errors.Join(errs...)
}

func baseName(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

var exactVersionRe = regexp.MustCompile(`^v?\d+(?:\.\d+){0,3}(?:[-+][0-9A-Za-z.\-+]+)?$`)

// pinnedVersion strips a single leading range operator and returns the
// version when what remains is exact. Ranges and tags yield "".
func pinnedVersion(spec string) string {
	v := strings.TrimSpace(spec)
	v = strings.TrimLeft(v, "^~=v")
	v = strings.TrimSpace(v)
	if exactVersionRe.MatchString(v) {
		return v
	}
	return ""
}

func parsePackageJSON(m archive.ManifestFile) ([]PackageQuery, error) {
	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal([]byte(m.Content), &pkg); err != nil {
		return nil, err
	}

	var out []PackageQuery
	for name, spec := range pkg.Dependencies {
		out = append(out, PackageQuery{Name: name, Version: pinnedVersion(spec), Ecosystem: EcosystemNPM, Manifest: m.Path})
	}
	for name, spec := range pkg.DevDependencies {
		out = append(out, PackageQuery{Name: name, Version: pinnedVersion(spec), Ecosystem: EcosystemNPM, Manifest: m.Path, Dev: true})
	}
	return out, nil
}

func parsePackageLock(m archive.ManifestFile) ([]PackageQuery, error) {
	var lock struct {
		Packages map[string]struct {
			Version string `json:"version"`
			Dev     bool   `json:"dev"`
		} `json:"packages"`
		Dependencies map[string]struct {
			Version string `json:"version"`
			Dev     bool   `json:"dev"`
		} `json:"dependencies"`
	}
	if err := json.Unmarshal([]byte(m.Content), &lock); err != nil {
		return nil, err
	}

	var out []PackageQuery
	// lockfileVersion 2/3 keys packages by install path
	for path, p := range lock.Packages {
		i := strings.LastIndex(path, "node_modules/")
		if i < 0 || p.Version == "" {
			continue
		}
		name := path[i+len("node_modules/"):]
		out = append(out, PackageQuery{Name: name, Version: p.Version, Ecosystem: EcosystemNPM, Manifest: m.Path, Dev: p.Dev})
	}
	if len(out) == 0 {
		for name, d := range lock.Dependencies {
			out = append(out, PackageQuery{Name: name, Version: d.Version, Ecosystem: EcosystemNPM, Manifest: m.Path, Dev: d.Dev})
		}
	}
	return out, nil
}

var requirementRe = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._\-]*)(?:\[[^\]]*\])?\s*(?:(==|===|>=|<=|~=|!=|>|<)\s*([^\s,;#]+))?`)

func parseRequirements(m archive.ManifestFile) ([]PackageQuery, error) {
	var out []PackageQuery
	sc := bufio.NewScanner(strings.NewReader(m.Content))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if i := strings.Index(line, " #"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		if i := strings.Index(line, ";"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}

		sub := requirementRe.FindStringSubmatch(line)
		if sub == nil {
			continue
		}
		q := PackageQuery{Name: strings.ToLower(sub[1]), Ecosystem: EcosystemPyPI, Manifest: m.Path}
		if sub[2] == "==" || sub[2] == "===" {
			q.Version = sub[3]
		}
		out = append(out, q)
	}
	return out, sc.Err()
}

func parseGoMod(m archive.ManifestFile) ([]PackageQuery, error) {
	f, err := modfile.ParseLax(m.Path, []byte(m.Content), nil)
	if err != nil {
		return nil, err
	}

	out := make([]PackageQuery, 0, len(f.Require))
	for _, r := range f.Require {
		out = append(out, PackageQuery{
			Name:      r.Mod.Path,
			Version:   strings.TrimPrefix(r.Mod.Version, "v"),
			Ecosystem: EcosystemGo,
			Manifest:  m.Path,
		})
	}
	return out, nil
}

func parseCargoToml(m archive.ManifestFile) ([]PackageQuery, error) {
	var doc map[string]any
	if err := toml.Unmarshal([]byte(m.Content), &doc); err != nil {
		return nil, err
	}

	var out []PackageQuery
	for _, section := range []string{"dependencies", "dev-dependencies", "build-dependencies"} {
		deps, _ := doc[section].(map[string]any)
		for name, spec := range deps {
			q := PackageQuery{Name: name, Ecosystem: EcosystemCrates, Manifest: m.Path, Dev: section == "dev-dependencies"}
			switch s := spec.(type) {
			case string:
				q.Version = pinnedVersion(s)
			case map[string]any:
				if v, ok := s["version"].(string); ok {
					q.Version = pinnedVersion(v)
				}
				if pkg, ok := s["package"].(string); ok {
					q.Name = pkg
				}
			}
			out = append(out, q)
		}
	}
	return out, nil
}

func parseCargoLock(m archive.ManifestFile) ([]PackageQuery, error) {
	var lock struct {
		Package []struct {
			Name    string `toml:"name"`
			Version string `toml:"version"`
			Source  string `toml:"source"`
		} `toml:"package"`
	}
	if err := toml.Unmarshal([]byte(m.Content), &lock); err != nil {
		return nil, err
	}

	var out []PackageQuery
	for _, p := range lock.Package {
		// workspace members have no registry source
		if p.Source == "" {
			continue
		}
		out = append(out, PackageQuery{Name: p.Name, Version: p.Version, Ecosystem: EcosystemCrates, Manifest: m.Path})
	}
	return out, nil
}

func composerPlatformPackage(name string) bool {
	return name == "php" || strings.HasPrefix(name, "ext-") || strings.HasPrefix(name, "lib-") || !strings.Contains(name, "/")
}

func parseComposerJSON(m archive.ManifestFile) ([]PackageQuery, error) {
	var doc struct {
		Require    map[string]string `json:"require"`
		RequireDev map[string]string `json:"require-dev"`
	}
	if err := json.Unmarshal([]byte(m.Content), &doc); err != nil {
		return nil, err
	}

	var out []PackageQuery
	for name, spec := range doc.Require {
		if composerPlatformPackage(name) {
			continue
		}
		out = append(out, PackageQuery{Name: name, Version: pinnedVersion(spec), Ecosystem: EcosystemPackagist, Manifest: m.Path})
	}
	for name, spec := range doc.RequireDev {
		if composerPlatformPackage(name) {
			continue
		}
		out = append(out, PackageQuery{Name: name, Version: pinnedVersion(spec), Ecosystem: EcosystemPackagist, Manifest: m.Path, Dev: true})
	}
	return out, nil
}

func parseComposerLock(m archive.ManifestFile) ([]PackageQuery, error) {
	type lockPkg struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	var lock struct {
		Packages    []lockPkg `json:"packages"`
		PackagesDev []lockPkg `json:"packages-dev"`
	}
	if err := json.Unmarshal([]byte(m.Content), &lock); err != nil {
		return nil, err
	}

	var out []PackageQuery
	for _, p := range lock.Packages {
		out = append(out, PackageQuery{Name: p.Name, Version: strings.TrimPrefix(p.Version, "v"), Ecosystem: EcosystemPackagist, Manifest: m.Path})
	}
	for _, p := range lock.PackagesDev {
		out = append(out, PackageQuery{Name: p.Name, Version: strings.TrimPrefix(p.Version, "v"), Ecosystem: EcosystemPackagist, Manifest: m.Path, Dev: true})
	}
	return out, nil
}
