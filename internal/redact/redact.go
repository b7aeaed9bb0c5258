// Package redact removes sensitive information from strings before they are
// logged or embedded in error responses: credentials, connection strings,
// API keys, tokens, row identifiers, file paths, and SQL literal values.
package redact

import "regexp"

// Redaction placeholders
const (
	RedactedPathPlaceholder       = "[REDACTED_PATH]"
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
	RedactedUUIDPlaceholder       = "[REDACTED_UUID]"
	RedactedSQLValuesPlaceholder  = "[SQL_VALUES_REDACTED]"
	RedactedSQLWherePlaceholder   = "[SQL_WHERE_REDACTED]"
)

// rule pairs a pattern with its replacement. Rules are applied in order:
// SQL statements first so literal values never leak into later passes, then
// credentials and identifiers, then structural noise.
type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

var rules = []rule{
	// SQL statements: keep the shape, drop every literal value.
	{
		regexp.MustCompile(`(?i)(INSERT\s+INTO\s+\w+\s*\([^)]*\)\s*VALUES)\s*\(.*\)`),
		"$1 " + RedactedSQLValuesPlaceholder,
	},
	{
		regexp.MustCompile(`(?i)(UPDATE\s+\w+\s+SET)\s+.+`),
		"$1 " + RedactedSQLValuesPlaceholder,
	},
	{
		regexp.MustCompile(`(?i)(DELETE\s+FROM\s+\w+)\s+WHERE\s+.+`),
		"$1 " + RedactedSQLWherePlaceholder,
	},
	{
		regexp.MustCompile(`(?i)SELECT\s+.+?\s+FROM\s+.+`),
		"SELECT FROM... " + RedactedSQLValuesPlaceholder,
	},

	// Database connection strings
	{
		regexp.MustCompile(`(?i)(postgres|mysql|mongodb|db|database|connection)://[^@]+@`),
		RedactedCredentialPlaceholder,
	},

	// Credentials and tokens
	{
		regexp.MustCompile(`(?i)(password|passwd|pwd)([=:\s]?['"]?)[^'"&\s]{3,}`),
		RedactedCredentialPlaceholder,
	},
	{
		regexp.MustCompile(`(?i)(api[_-]?key|token|secret|key|access|auth)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`),
		RedactedKeyPlaceholder,
	},
	{
		regexp.MustCompile(`(AKIA|AccessKey(Id)?)([^a-zA-Z0-9])?[A-Z0-9]{8,}`),
		RedactedKeyPlaceholder,
	},
	{
		// Standard three-part base64url JWT format
		regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`),
		"[REDACTED_JWT]",
	},

	// Row and user identifiers
	{
		regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`),
		RedactedUUIDPlaceholder,
	},

	// File paths
	{regexp.MustCompile(`(/[\w.-]+){2,}`), RedactedPathPlaceholder},
	{regexp.MustCompile(`[A-Za-z]:\\[^\\]+(\\[^\\]+)+`), RedactedPathPlaceholder},

	// Stack trace fragments
	{regexp.MustCompile(`(?:goroutine \d+|panic:)[\s\S]*?(\n\t.*)+`), "[STACK_TRACE_REDACTED]"},

	// Email addresses
	{
		regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`),
		"[REDACTED_EMAIL]",
	},

	// Structural noise that can reveal internals
	{regexp.MustCompile(`(?:at )?line ?\d+`), "[REDACTED_LINE_NUMBER]"},
	{regexp.MustCompile(`(?i)syntax error|syntax problem|parse error`), "[REDACTED_SYNTAX_ERROR]"},
	{
		regexp.MustCompile(`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}(?::\d{1,5})?\b`),
		"[REDACTED_HOST]",
	},
	{
		regexp.MustCompile(`(?i)(?:no such file|file not found|can't open|cannot open|file error)`),
		"[REDACTED_FILE_ERROR]",
	},
}

// String redacts sensitive information from the input string.
func String(input string) string {
	if input == "" {
		return input
	}

	result := input
	for _, r := range rules {
		result = r.pattern.ReplaceAllString(result, r.replacement)
	}

	return result
}

// Error redacts sensitive information from an error's Error() output.
func Error(err error) string {
	if err == nil {
		return ""
	}

	return String(err.Error())
}
