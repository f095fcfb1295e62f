package archive

import (
	"mime"
	"path"
	"strings"

	"github.com/ppiankov/codewarden/internal/catalog"
	"github.com/ppiankov/codewarden/internal/engine"
)

// FileKind is the rollup bucket of an entry
type FileKind string

const (
	KindCode          FileKind = "code"
	KindTest          FileKind = "test"
	KindConfig        FileKind = "config"
	KindDocumentation FileKind = "documentation"
	KindOther         FileKind = "other"
)

var textExtensions = map[string]bool{
	".js": true, ".jsx": true, ".mjs": true, ".cjs": true, ".ts": true, ".tsx": true,
	".py": true, ".pyw": true, ".java": true, ".go": true, ".php": true, ".phtml": true,
	".rb": true, ".erb": true, ".cs": true, ".c": true, ".h": true, ".cpp": true,
	".rs": true, ".kt": true, ".swift": true, ".scala": true,
	".sh": true, ".bash": true, ".ps1": true, ".bat": true, ".cmd": true, ".vbs": true,
	".html": true, ".htm": true, ".css": true, ".scss": true, ".vue": true, ".svelte": true,
	".json": true, ".yaml": true, ".yml": true, ".toml": true, ".xml": true, ".ini": true,
	".cfg": true, ".conf": true, ".properties": true, ".env": true, ".lock": true,
	".gradle": true, ".kts": true, ".mod": true, ".sum": true, ".sql": true,
	".md": true, ".rst": true, ".txt": true, ".adoc": true, ".csv": true,
}

var textBasenames = map[string]bool{
	"dockerfile": true, "makefile": true, "gemfile": true, "pipfile": true,
	"license": true, "licence": true, "copying": true, "readme": true,
	"procfile": true, "jenkinsfile": true, "vagrantfile": true, "rakefile": true,
	".gitignore": true, ".npmrc": true, ".htaccess": true, ".env": true,
}

// executableExtensions are binary or script types flagged as executable threats
var executableExtensions = map[string]bool{
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".bin": true,
	".bat": true, ".cmd": true, ".com": true, ".scr": true, ".msi": true,
	".ps1": true, ".vbs": true, ".vbe": true, ".wsf": true, ".jar": true,
	".apk": true, ".deb": true, ".rpm": true, ".pif": true, ".cpl": true,
}

// dangerousBasenames are files whose presence in a bundle warrants review
var dangerousBasenames = map[string]bool{
	"web.config": true, "wp-config.php": true, ".htaccess": true, ".htpasswd": true,
	"id_rsa": true, "id_dsa": true, "id_ecdsa": true, "id_ed25519": true,
	".npmrc": true, ".pypirc": true, ".git-credentials": true, "credentials.json": true,
	"shadow": true, "passwd": true,
}

var configExtensions = map[string]bool{
	".json": true, ".yaml": true, ".yml": true, ".toml": true, ".xml": true, ".ini": true,
	".cfg": true, ".conf": true, ".properties": true, ".env": true, ".lock": true,
	".gradle": true, ".mod": true, ".sum": true,
}

var docExtensions = map[string]bool{
	".md": true, ".rst": true, ".txt": true, ".adoc": true, ".pdf": true,
}

var extraCodeExtensions = map[string]bool{
	".c": true, ".h": true, ".cpp": true, ".rs": true, ".kt": true, ".swift": true,
	".scala": true, ".sh": true, ".bash": true, ".html": true, ".htm": true, ".css": true,
	".scss": true, ".vue": true, ".svelte": true, ".sql": true,
}

var mimeByExtension = map[string]string{
	".js": "application/javascript", ".mjs": "application/javascript", ".cjs": "application/javascript",
	".jsx": "text/jsx", ".ts": "application/typescript", ".tsx": "text/tsx",
	".py": "text/x-python", ".java": "text/x-java", ".go": "text/x-go",
	".php": "application/x-php", ".rb": "text/x-ruby", ".cs": "text/x-csharp",
	".json": "application/json", ".yaml": "application/yaml", ".yml": "application/yaml",
	".toml": "application/toml", ".md": "text/markdown", ".sh": "application/x-sh",
	".exe": "application/vnd.microsoft.portable-executable", ".dll": "application/vnd.microsoft.portable-executable",
	".jar": "application/java-archive", ".zip": "application/zip",
}

// entryPath converts archive member names to forward-slash paths
func entryPath(name string) string {
	return strings.ReplaceAll(name, "\\", "/")
}

func leafName(p string) string {
	return path.Base(strings.TrimSuffix(entryPath(p), "/"))
}

func extOf(p string) string {
	return strings.ToLower(path.Ext(leafName(p)))
}

// pathDepth counts the non-empty segments of p
func pathDepth(p string) int {
	depth := 0
	for _, seg := range strings.Split(entryPath(p), "/") {
		if seg != "" {
			depth++
		}
	}
	return depth
}

func isTextFile(p string) bool {
	if textExtensions[extOf(p)] {
		return true
	}
	base := strings.ToLower(leafName(p))
	return textBasenames[base] || strings.HasPrefix(base, "license") || strings.HasPrefix(base, "readme")
}

func isExecutable(p string) bool {
	return executableExtensions[extOf(p)]
}

func isHidden(p string) bool {
	return strings.HasPrefix(leafName(p), ".")
}

func isDangerousBasename(p string) bool {
	return dangerousBasenames[strings.ToLower(leafName(p))]
}

// isSuspiciousName reports whether p belongs in the structure summary's
// suspicious-file list
func isSuspiciousName(p string) bool {
	return isHidden(p) || isDangerousBasename(p) || isExecutable(p)
}

func mimeType(p string, isDir bool) string {
	if isDir {
		return "inode/directory"
	}
	ext := extOf(p)
	if m, ok := mimeByExtension[ext]; ok {
		return m
	}
	if m := mime.TypeByExtension(ext); m != "" {
		return m
	}
	if isTextFile(p) {
		return "text/plain"
	}
	return "application/octet-stream"
}

// classifyKind buckets an entry for the quality rollup
func classifyKind(p string) FileKind {
	base := strings.ToLower(leafName(p))
	ext := extOf(p)

	switch {
	case engine.IsTestFile(p) && (catalog.LanguageForFile(p) != "" || extraCodeExtensions[ext]):
		return KindTest
	case catalog.LanguageForFile(p) != "" || extraCodeExtensions[ext]:
		return KindCode
	case configExtensions[ext], base == "dockerfile", base == "makefile", base == "gemfile",
		base == "pipfile", strings.HasPrefix(base, ".") && ext == "":
		return KindConfig
	case docExtensions[ext], strings.HasPrefix(base, "readme"), strings.HasPrefix(base, "changelog"):
		return KindDocumentation
	default:
		return KindOther
	}
}

// ManifestFile is a dependency manifest surfaced for the dependency scanner
type ManifestFile struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Ecosystem string `json:"ecosystem"`
	Lockfile  bool   `json:"lockfile"`
	Content   string `json:"content,omitempty"`
}

type manifestKind struct {
	ecosystem string
	lockfile  bool
}

var manifestTable = map[string]manifestKind{
	"package.json":        {"npm", false},
	"package-lock.json":   {"npm", true},
	"npm-shrinkwrap.json": {"npm", true},
	"yarn.lock":           {"npm", true},
	"pnpm-lock.yaml":      {"npm", true},
	"requirements.txt":    {"pypi", false},
	"setup.py":            {"pypi", false},
	"setup.cfg":           {"pypi", false},
	"pyproject.toml":      {"pypi", false},
	"pipfile":             {"pypi", false},
	"pipfile.lock":        {"pypi", true},
	"poetry.lock":         {"pypi", true},
	"gemfile":             {"rubygems", false},
	"gemfile.lock":        {"rubygems", true},
	"composer.json":       {"packagist", false},
	"composer.lock":       {"packagist", true},
	"pom.xml":             {"maven", false},
	"build.gradle":        {"maven", false},
	"build.gradle.kts":    {"maven", false},
	"gradle.lockfile":     {"maven", true},
	"cargo.toml":          {"cargo", false},
	"cargo.lock":          {"cargo", true},
	"go.mod":              {"go", false},
	"go.sum":              {"go", true},
	"packages.config":     {"nuget", false},
	"packages.lock.json":  {"nuget", true},
}

// lookupManifest returns the manifest classification of p
func lookupManifest(p string) (manifestKind, bool) {
	k, ok := manifestTable[strings.ToLower(leafName(p))]
	return k, ok
}

// LicenseFile is a license-like file recorded for manual review
type LicenseFile struct {
	Path    string `json:"path"`
	License string `json:"license"`
	Status  string `json:"status"`
}

func isLicenseFile(p string) bool {
	base := strings.ToLower(leafName(p))
	for _, marker := range []string{"license", "licence", "copying", "copyright"} {
		if strings.Contains(base, marker) {
			return true
		}
	}
	return false
}

// isSecretBearing reports files that usually hold credentials
func isSecretBearing(p string) bool {
	base := strings.ToLower(leafName(p))
	switch {
	case base == ".env":
		return true
	case strings.HasPrefix(base, ".env."):
		rest := strings.TrimPrefix(base, ".env.")
		return rest != "example" && rest != "sample" && rest != "template" && rest != "dist"
	case base == "id_rsa", base == "id_dsa", base == "id_ecdsa", base == "id_ed25519",
		base == "credentials.json", base == ".git-credentials", base == ".htpasswd":
		return true
	}
	switch extOf(p) {
	case ".pem", ".key", ".p12", ".pfx", ".jks", ".keystore":
		return true
	}
	return false
}
