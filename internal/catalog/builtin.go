package catalog

import "github.com/ppiankov/codewarden/internal/models"

var (
	langJS      = []string{"javascript", "typescript"}
	langScripts = []string{"javascript", "typescript", "python", "php", "ruby"}
	langAll     = []string{"javascript", "typescript", "python", "java", "go", "php", "ruby", "csharp"}
)

// builtinRules returns a fresh copy of the builtin rule set
func builtinRules() []*Rule {
	return []*Rule{
		// --- injection ---
		{
			ID:            "sql-injection",
			Name:          "SQL query built by string concatenation",
			Description:   "SQL statement is concatenated with a variable instead of using bound parameters",
			Severity:      models.RuleCritical,
			Type:          models.TypeVulnerability,
			Category:      models.CategorySecurity,
			Matcher:       MustRegex(`(?i)\b(?:execute|query|exec|raw|prepare)\s*\(\s*["'\x60]\s*(?:SELECT|INSERT|UPDATE|DELETE)\b[^;\n]*["'\x60]\s*\+\s*\w+`),
			Languages:     langAll,
			Tags:          []string{"injection", "sql", "owasp-a03"},
			EffortMinutes: 30,
			CWE:           "CWE-89",
			OWASP:         "A03:2021",
			Remediation:   "Use parameterized queries or prepared statements with bound values",
		},
		{
			ID:            "sql-injection-template",
			Name:          "SQL query built from a template literal",
			Description:   "SQL statement interpolates values through a template literal",
			Severity:      models.RuleCritical,
			Type:          models.TypeVulnerability,
			Category:      models.CategorySecurity,
			Matcher:       MustRegex(`(?i)\b(?:execute|query|raw)\s*\(\s*\x60[^\x60]*\b(?:SELECT|INSERT|UPDATE|DELETE)\b[^\x60]*\$\{`),
			Languages:     langJS,
			Tags:          []string{"injection", "sql"},
			EffortMinutes: 30,
			CWE:           "CWE-89",
			OWASP:         "A03:2021",
			Remediation:   "Pass values as query parameters instead of interpolating them",
		},
		{
			ID:            "sql-injection-format",
			Name:          "SQL query built with string formatting",
			Description:   "SQL statement is formatted with f-strings, % or str.format",
			Severity:      models.RuleCritical,
			Type:          models.TypeVulnerability,
			Category:      models.CategorySecurity,
			Matcher:       MustRegex(`(?i)\bexecute\s*\(\s*(?:f["'][^"'\n]*\b(?:SELECT|INSERT|UPDATE|DELETE)\b|["'][^"'\n]*\b(?:SELECT|INSERT|UPDATE|DELETE)\b[^"'\n]*["']\s*(?:%|\.format\())`),
			Languages:     []string{"python"},
			Tags:          []string{"injection", "sql"},
			EffortMinutes: 30,
			CWE:           "CWE-89",
			OWASP:         "A03:2021",
			Remediation:   "Use the driver's parameter substitution (cursor.execute(sql, params))",
		},
		{
			ID:            "sql-injection-sprintf",
			Name:          "SQL query built with fmt.Sprintf",
			Description:   "SQL statement is assembled with fmt.Sprintf verbs",
			Severity:      models.RuleCritical,
			Type:          models.TypeVulnerability,
			Category:      models.CategorySecurity,
			Matcher:       MustRegex(`(?i)Sprintf\(\s*"\s*(?:SELECT|INSERT|UPDATE|DELETE)\b[^"\n]*%[sv]`),
			Languages:     []string{"go"},
			Tags:          []string{"injection", "sql"},
			EffortMinutes: 30,
			CWE:           "CWE-89",
			OWASP:         "A03:2021",
			Remediation:   "Use placeholders ($1, ?) with db.Query/Exec arguments",
		},
		{
			ID:            "command-injection",
			Name:          "Operating system command execution",
			Description:   "Shell command executed from application code",
			Severity:      models.RuleCritical,
			Type:          models.TypeVulnerability,
			Category:      models.CategorySecurity,
			Matcher:       MustRegex(`\b(?:child_process\.exec(?:Sync)?|execSync|os\.system|os\.popen|shell_exec|passthru|proc_open|Runtime\.getRuntime\(\)\.exec)\s*\(|\bsubprocess\.\w+\([^)\n]*shell\s*=\s*True`),
			Languages:     []string{"javascript", "typescript", "python", "java", "php", "ruby"},
			Tags:          []string{"injection", "command"},
			EffortMinutes: 45,
			CWE:           "CWE-78",
			OWASP:         "A03:2021",
			Remediation:   "Avoid the shell; call the program directly with an argument list and validate inputs",
		},
		{
			ID:            "eval-usage",
			Name:          "Dynamic code evaluation",
			Description:   "eval() executes arbitrary code built at runtime",
			Severity:      models.RuleCritical,
			Type:          models.TypeVulnerability,
			Category:      models.CategorySecurity,
			Matcher:       MustRegex(`\beval\s*\(`),
			Languages:     langScripts,
			Tags:          []string{"injection", "code-execution"},
			EffortMinutes: 20,
			CWE:           "CWE-95",
			OWASP:         "A03:2021",
			Remediation:   "Replace eval with explicit parsing (JSON.parse, ast.literal_eval) or a lookup table",
		},
		{
			ID:            "nosql-injection",
			Name:          "MongoDB $where operator",
			Description:   "$where evaluates JavaScript on the database server",
			Severity:      models.RuleMajor,
			Type:          models.TypeVulnerability,
			Category:      models.CategorySecurity,
			Matcher:       MustRegex(`["']?\$where["']?\s*:`),
			Languages:     []string{"javascript", "typescript", "python"},
			Tags:          []string{"injection", "nosql"},
			EffortMinutes: 20,
			CWE:           "CWE-943",
			OWASP:         "A03:2021",
			Remediation:   "Use query operators instead of server-side JavaScript",
		},

		// --- xss ---
		{
			ID:            "xss-innerhtml",
			Name:          "Unsafe innerHTML assignment",
			Description:   "Assigning to innerHTML/outerHTML renders untrusted markup",
			Severity:      models.RuleCritical,
			Type:          models.TypeVulnerability,
			Category:      models.CategorySecurity,
			Matcher:       MustRegex(`\.(?:innerHTML|outerHTML)\s*=[^=]`),
			Languages:     langJS,
			Tags:          []string{"xss", "dom"},
			EffortMinutes: 15,
			CWE:           "CWE-79",
			OWASP:         "A03:2021",
			Remediation:   "Use textContent or sanitize the markup (DOMPurify) before insertion",
		},
		{
			ID:            "xss-document-write",
			Name:          "document.write with dynamic content",
			Description:   "document.write injects markup into the page",
			Severity:      models.RuleMajor,
			Type:          models.TypeVulnerability,
			Category:      models.CategorySecurity,
			Matcher:       MustRegex(`\bdocument\.write(?:ln)?\s*\(`),
			Languages:     langJS,
			Tags:          []string{"xss", "dom"},
			EffortMinutes: 15,
			CWE:           "CWE-79",
			OWASP:         "A03:2021",
			Remediation:   "Build DOM nodes with createElement and textContent",
		},
		{
			ID:            "open-redirect",
			Name:          "Redirect to request-controlled URL",
			Description:   "Redirect target is taken directly from the request",
			Severity:      models.RuleMajor,
			Type:          models.TypeVulnerability,
			Category:      models.CategorySecurity,
			Matcher:       MustRegex(`\bredirect\s*\(\s*req(?:uest)?\.(?:query|params|body|args|GET)`),
			Languages:     []string{"javascript", "typescript", "python"},
			Tags:          []string{"redirect"},
			EffortMinutes: 15,
			CWE:           "CWE-601",
			OWASP:         "A01:2021",
			Remediation:   "Redirect only to an allow-list of relative paths",
		},
		{
			ID:            "path-traversal-input",
			Name:          "File access with request-controlled path",
			Description:   "File system path is built from request input",
			Severity:      models.RuleMajor,
			Type:          models.TypeSecurityHotspot,
			Category:      models.CategorySecurity,
			Matcher:       MustRegex(`\b(?:readFile|readFileSync|createReadStream|sendFile|open)\s*\([^)\n]*\breq(?:uest)?\.(?:params|query|body|args)`),
			Languages:     []string{"javascript", "typescript", "python"},
			Tags:          []string{"path-traversal"},
			EffortMinutes: 20,
			CWE:           "CWE-22",
			OWASP:         "A01:2021",
			Remediation:   "Resolve the path against a fixed base directory and reject '..' segments",
		},

		// --- secrets / crypto ---
		{
			ID:            "hardcoded-credentials",
			Name:          "Hard-coded credential",
			Description:   "A password, token or API key literal is embedded in source code",
			Severity:      models.RuleBlocker,
			Type:          models.TypeVulnerability,
			Category:      models.CategorySecurity,
			Matcher:       MustRegex(`(?i)\b(?:password|passwd|pwd|secret|api[_-]?key|access[_-]?token|auth[_-]?token)\b["']?\s*[:=]\s*["'][^"'\s]{4,}["']`),
			Languages:     langAll,
			Tags:          []string{"secrets", "credentials"},
			EffortMinutes: 30,
			CWE:           "CWE-798",
			OWASP:         "A07:2021",
			Remediation:   "Load secrets from the environment or a secret manager",
		},
		{
			ID:            "weak-hash",
			Name:          "Weak hash algorithm",
			Description:   "MD5 and SHA-1 are broken for security purposes",
			Severity:      models.RuleMajor,
			Type:          models.TypeVulnerability,
			Category:      models.CategorySecurity,
			Matcher:       MustRegex(`(?i)\b(?:md5|sha1)\s*\(|\b(?:md5|sha1)\.(?:New|Sum)\(|createHash\s*\(\s*["'](?:md5|sha1)["']|getInstance\s*\(\s*"(?:MD5|SHA-?1)"`),
			Languages:     langAll,
			Tags:          []string{"crypto"},
			EffortMinutes: 15,
			CWE:           "CWE-327",
			OWASP:         "A02:2021",
			Remediation:   "Use SHA-256 or stronger; use bcrypt/argon2 for passwords",
		},
		{
			ID:            "insecure-random",
			Name:          "Non-cryptographic random generator",
			Description:   "Predictable random numbers used where security may depend on them",
			Severity:      models.RuleMinor,
			Type:          models.TypeSecurityHotspot,
			Category:      models.CategorySecurity,
			Matcher:       MustRegex(`\bMath\.random\s*\(|\brandom\.(?:random|randint|choice)\s*\(|\bnew\s+Random\s*\(|"math/rand"`),
			Languages:     []string{"javascript", "typescript", "python", "java", "go", "csharp"},
			Tags:          []string{"crypto", "random"},
			EffortMinutes: 10,
			CWE:           "CWE-338",
			OWASP:         "A02:2021",
			Remediation:   "Use crypto.randomBytes, secrets, SecureRandom or crypto/rand",
		},
		{
			ID:            "tls-verification-disabled",
			Name:          "TLS certificate verification disabled",
			Description:   "Certificate validation is turned off, allowing man-in-the-middle attacks",
			Severity:      models.RuleCritical,
			Type:          models.TypeVulnerability,
			Category:      models.CategorySecurity,
			Matcher:       MustRegex(`rejectUnauthorized\s*:\s*false|\bverify\s*=\s*False|InsecureSkipVerify\s*:\s*true|NODE_TLS_REJECT_UNAUTHORIZED\s*=\s*["']?0|CURLOPT_SSL_VERIFYPEER\s*,\s*(?:false|0)`),
			Languages:     langAll,
			Tags:          []string{"tls", "crypto"},
			EffortMinutes: 15,
			CWE:           "CWE-295",
			OWASP:         "A02:2021",
			Remediation:   "Keep verification enabled and trust the proper CA bundle",
		},
		{
			ID:            "unsafe-deserialization",
			Name:          "Unsafe deserialization",
			Description:   "Deserializing untrusted data can execute code",
			Severity:      models.RuleCritical,
			Type:          models.TypeVulnerability,
			Category:      models.CategorySecurity,
			Matcher:       MustRegex(`\bpickle\.loads?\s*\(|\bunserialize\s*\(|\bnew\s+ObjectInputStream\s*\(|\bMarshal\.load\s*\(|\bBinaryFormatter\s*\(`),
			Languages:     []string{"python", "php", "java", "ruby", "csharp"},
			Tags:          []string{"deserialization"},
			EffortMinutes: 45,
			CWE:           "CWE-502",
			OWASP:         "A08:2021",
			Remediation:   "Use a data-only format such as JSON and validate the schema",
		},
		{
			ID:            "cors-wildcard",
			Name:          "Permissive CORS policy",
			Description:   "Access-Control-Allow-Origin is set to *",
			Severity:      models.RuleMinor,
			Type:          models.TypeSecurityHotspot,
			Category:      models.CategorySecurity,
			Matcher:       MustRegex(`Access-Control-Allow-Origin["']?\s*[,:]\s*["']\*["']|\borigin\s*:\s*["']\*["']`),
			Languages:     []string{"javascript", "typescript", "python", "php", "go"},
			Tags:          []string{"cors"},
			EffortMinutes: 10,
			CWE:           "CWE-942",
			OWASP:         "A05:2021",
			Remediation:   "Restrict allowed origins to known hosts",
		},

		// --- reliability ---
		{
			ID:            "empty-catch",
			Name:          "Empty exception handler",
			Description:   "Exceptions are swallowed without handling or logging",
			Severity:      models.RuleMajor,
			Type:          models.TypeBug,
			Category:      models.CategoryReliability,
			Matcher:       MustRegex(`\bcatch\s*(?:\([^)]*\))?\s*\{\s*\}|\bexcept(?:\s+[\w.]+(?:\s+as\s+\w+)?)?\s*:\s*\n\s*pass\b`),
			Languages:     []string{"javascript", "typescript", "python", "java", "php", "csharp"},
			Tags:          []string{"error-handling"},
			EffortMinutes: 10,
			CWE:           "CWE-390",
			Remediation:   "Handle the error, log it, or rethrow it",
		},
		{
			ID:            "loose-equality",
			Name:          "Loose equality operator",
			Description:   "== and != perform type coercion",
			Severity:      models.RuleMinor,
			Type:          models.TypeBug,
			Category:      models.CategoryReliability,
			Matcher:       MustRegex(`\s[!=]=\s`),
			Languages:     langJS,
			Tags:          []string{"suspicious"},
			EffortMinutes: 2,
			Remediation:   "Use === and !==",
		},

		// --- maintainability ---
		{
			ID:            "debug-logging",
			Name:          "Debug output left in code",
			Description:   "console.log / print statements should not reach production",
			Severity:      models.RuleMinor,
			Type:          models.TypeCodeSmell,
			Category:      models.CategoryMaintainability,
			Matcher:       MustRegex(`\bconsole\.(?:log|debug|trace)\s*\(|(?m:^[ \t]*print\s*\()`),
			Languages:     []string{"javascript", "typescript", "python"},
			Tags:          []string{"logging"},
			EffortMinutes: 5,
			Remediation:   "Use the project logger or remove the statement",
		},
		{
			ID:            "var-declaration",
			Name:          "var declaration",
			Description:   "var is function-scoped; prefer let or const",
			Severity:      models.RuleMinor,
			Type:          models.TypeCodeSmell,
			Category:      models.CategoryMaintainability,
			Matcher:       MustRegex(`\bvar\s+[A-Za-z_$][\w$]*\s*[=;,]`),
			Languages:     []string{"javascript"},
			Tags:          []string{"es2015"},
			EffortMinutes: 2,
			Remediation:   "Replace var with let or const",
		},
		{
			ID:            "todo-comment",
			Name:          "Unresolved TODO marker",
			Description:   "TODO/FIXME comments track unfinished work",
			Severity:      models.RuleInfo,
			Type:          models.TypeCodeSmell,
			Category:      models.CategoryMaintainability,
			Matcher:       MustRegex(`(?://|#|/\*)\s*(?:TODO|FIXME|XXX|HACK)\b`),
			Languages:     langAll,
			Tags:          []string{"cwe-546"},
			EffortMinutes: 10,
			CWE:           "CWE-546",
			Remediation:   "Resolve the work item or move it to the issue tracker",
		},
		{
			ID:            "magic-number",
			Name:          "Magic number",
			Description:   "Unnamed numeric literal in a comparison or arithmetic expression",
			Severity:      models.RuleMinor,
			Type:          models.TypeCodeSmell,
			Category:      models.CategoryMaintainability,
			Matcher:       MustRegex(`(?:[<>]=?|[+\-*/%]|[!=]==?)\s*\d{3,}\b`),
			Languages:     []string{"javascript", "typescript", "java", "csharp", "php"},
			Tags:          []string{"readability"},
			EffortMinutes: 5,
			Remediation:   "Extract the literal into a named constant",
		},
		{
			ID:            "long-line",
			Name:          "Line too long",
			Description:   "Lines over 160 characters are hard to read",
			Severity:      models.RuleInfo,
			Type:          models.TypeCodeSmell,
			Category:      models.CategoryMaintainability,
			Matcher:       MustRegex(`(?m:^.{161,}$)`),
			Languages:     langAll,
			Tags:          []string{"convention"},
			EffortMinutes: 1,
			Remediation:   "Wrap the line",
		},
		{
			ID:            "sync-fs-call",
			Name:          "Synchronous file system call",
			Description:   "Blocking fs calls stall the event loop",
			Severity:      models.RuleMinor,
			Type:          models.TypeCodeSmell,
			Category:      models.CategoryPerformance,
			Matcher:       MustRegex(`\bfs\.(?:readFileSync|writeFileSync|existsSync|readdirSync)\s*\(`),
			Languages:     langJS,
			Tags:          []string{"performance"},
			EffortMinutes: 10,
			Remediation:   "Use the promise-based fs API",
		},
		{
			ID:            "broad-exception",
			Name:          "Overly broad exception handler",
			Description:   "Catching every exception hides unrelated failures",
			Severity:      models.RuleMinor,
			Type:          models.TypeCodeSmell,
			Category:      models.CategoryDesign,
			Matcher:       MustRegex(`\bexcept\s*:|\bexcept\s+(?:Base)?Exception\b|\bcatch\s*\(\s*(?:Exception|Throwable)\s+\w+\s*\)`),
			Languages:     []string{"python", "java", "csharp"},
			Tags:          []string{"error-handling"},
			EffortMinutes: 5,
			CWE:           "CWE-396",
			Remediation:   "Catch the specific exception types you can handle",
		},
	}
}
