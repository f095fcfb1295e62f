package integrity

import (
	"path"
	"regexp"
	"strings"

	"github.com/ppiankov/codewarden/internal/catalog"
)

var securityKeywords = []string{
	"auth", "security", "crypto", "secret", "password", "passwd", "credential",
	"token", "jwt", "oauth", "session", "permission", "keystore",
}

var tlsExtensions = map[string]bool{
	".pem": true, ".key": true, ".crt": true, ".cer": true, ".p12": true, ".pfx": true, ".jks": true,
}

var dependencyFiles = map[string]bool{
	"package.json": true, "package-lock.json": true, "yarn.lock": true, "pnpm-lock.yaml": true,
	"requirements.txt": true, "pipfile": true, "pipfile.lock": true, "poetry.lock": true, "pyproject.toml": true,
	"go.mod": true, "go.sum": true, "cargo.toml": true, "cargo.lock": true,
	"composer.json": true, "composer.lock": true, "gemfile": true, "gemfile.lock": true,
	"pom.xml": true, "build.gradle": true, "build.gradle.kts": true,
}

var buildFiles = map[string]bool{
	"dockerfile": true, "docker-compose.yml": true, "docker-compose.yaml": true, "makefile": true,
	"jenkinsfile": true, ".gitlab-ci.yml": true, ".travis.yml": true, "azure-pipelines.yml": true,
	"webpack.config.js": true, "vite.config.js": true, "vite.config.ts": true, "rollup.config.js": true,
	"tsconfig.json": true, "babel.config.js": true, "cloudbuild.yaml": true,
}

var configExtensions = map[string]bool{
	".json": true, ".yaml": true, ".yml": true, ".toml": true, ".ini": true, ".xml": true,
	".conf": true, ".cfg": true, ".properties": true, ".env": true,
}

func normalize(filename string) (dir, base, ext string) {
	p := strings.ToLower(strings.ReplaceAll(filename, "\\", "/"))
	base = path.Base(p)
	return path.Dir(p), base, path.Ext(base)
}

func isDotenv(base string) bool {
	return base == ".env" || strings.HasPrefix(base, ".env.")
}

func isCIPath(dir string) bool {
	return strings.Contains(dir+"/", ".github/workflows/") || strings.Contains(dir+"/", ".circleci/")
}

// IsSecurityCritical applies the filename heuristics: dotenv files,
// auth/security/crypto-named files, TLS material, dependency manifests
// and CI/build configuration.
func IsSecurityCritical(filename string) bool {
	dir, base, ext := normalize(filename)

	switch {
	case isDotenv(base), tlsExtensions[ext], dependencyFiles[base], buildFiles[base], isCIPath(dir):
		return true
	}
	return securityNamed(dir, strings.TrimSuffix(base, ext))
}

// securityNamed matches the keywords against the stem and every
// directory segment.
func securityNamed(dir, stem string) bool {
	if containsAny(stem, securityKeywords) {
		return true
	}
	for _, seg := range strings.Split(dir, "/") {
		if seg != "." && containsAny(seg, securityKeywords) {
			return true
		}
	}
	return false
}

// Classify returns the category/importance/language of filename
func Classify(filename string) RecordMetadata {
	dir, base, ext := normalize(filename)
	stem := strings.TrimSuffix(base, ext)

	category := CategorySource
	switch {
	case isDotenv(base), tlsExtensions[ext], securityNamed(dir, stem):
		category = CategorySecurity
	case dependencyFiles[base]:
		category = CategoryDependency
	case buildFiles[base], isCIPath(dir):
		category = CategoryBuild
	case configExtensions[ext]:
		category = CategoryConfig
	}

	importance := ImportanceLow
	switch {
	case category == CategorySecurity:
		importance = ImportanceCritical
	case category == CategoryDependency, category == CategoryBuild:
		importance = ImportanceHigh
	case category == CategoryConfig:
		importance = ImportanceMedium
	case catalog.LanguageForFile(filename) != "":
		importance = ImportanceMedium
	}

	language := catalog.LanguageForFile(filename)
	if language == "" {
		language = "other"
	}

	return RecordMetadata{Category: category, Importance: importance, Language: language}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func tagsFor(meta RecordMetadata, critical bool) []string {
	tags := []string{meta.Category, meta.Language}
	if critical {
		tags = append(tags, "security-critical")
	}
	return tags
}

var executableExtensions = map[string]bool{
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".bat": true, ".cmd": true,
	".ps1": true, ".vbs": true, ".scr": true, ".com": true, ".msi": true, ".jar": true,
}

var (
	execCallRe   = regexp.MustCompile(`\b(?:eval|exec)\s*\(`)
	base64UseRe  = regexp.MustCompile(`(?i)\b(?:atob|base64_decode|b64decode)\s*\(|Buffer\.from\([^)]*["']base64["']`)
	credentialRe = regexp.MustCompile(`(?i)\b(?:password|passwd|secret|api[_-]?key|access[_-]?token)\b\s*[:=]\s*["'][^"'\s]{6,}["']|\bAKIA[0-9A-Z]{16}\b|-----BEGIN (?:RSA |EC |OPENSSH )?PRIVATE KEY-----`)
)

// suspiciousReasons returns why an unbaselined file looks suspicious.
// An empty result means the file is not flagged.
func suspiciousReasons(filename, content string) []string {
	_, base, ext := normalize(filename)
	var reasons []string

	if executableExtensions[ext] {
		reasons = append(reasons, "executable file type "+ext)
	}
	if execCallRe.MatchString(content) {
		reasons = append(reasons, "dynamic code execution call site")
	}
	if base64UseRe.MatchString(content) {
		reasons = append(reasons, "base64 decoding of embedded payload")
	}
	if !isSampleFile(base) && credentialRe.MatchString(content) {
		reasons = append(reasons, "credential-like string")
	}
	return reasons
}

func isSampleFile(base string) bool {
	return containsAny(base, []string{"test", "spec", "example", "sample", "mock", "fixture"})
}
