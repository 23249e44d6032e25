// Package redact implements the Redactor (§4.7): an ordered pipeline of
// regex substitutions and size caps applied to Trace content before
// persistence. Redaction is monotone: redact(redact(x)) == redact(x) (§8).
package redact

import (
	"fmt"
	"regexp"
)

// Pattern is one ordered redaction rule.
type Pattern struct {
	Name    string
	Regexp  *regexp.Regexp
	Replace string
}

// builtinPatterns are applied in order. Order matters: the Bearer-token
// pattern must run before the generic authorization pattern so the token
// itself (not just the header name) is scrubbed.
var builtinPatterns = []Pattern{
	{
		Name:    "bearer_token",
		Regexp:  regexp.MustCompile(`(?i)Authorization:\s*Bearer\s+\S+`),
		Replace: "Authorization: Bearer [REDACTED]",
	},
	{
		Name:    "generic_secret_kv",
		Regexp:  regexp.MustCompile(`(?i)(authorization|api[-_]?key|secret|password)\s*[:=]\s*(Bearer\s+)?\S+`),
		Replace: "$1: ${2}[REDACTED]",
	},
	{
		Name:    "openai_key",
		Regexp:  regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
		Replace: "[REDACTED]",
	},
	{
		Name:    "anthropic_key",
		Regexp:  regexp.MustCompile(`sk-ant-[A-Za-z0-9-]{20,}`),
		Replace: "[REDACTED]",
	},
	{
		Name:    "github_token",
		Regexp:  regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{20,}`),
		Replace: "[REDACTED]",
	},
	{
		Name:    "cookie",
		Regexp:  regexp.MustCompile(`(?i)Cookie:\s*\S+`),
		Replace: "Cookie: [REDACTED]",
	},
}

// MaxMessageContentBytes caps a single message's content before it is
// persisted.
const MaxMessageContentBytes = 50 * 1024

// MaxResponseBlobBytes caps a single string value inside tool-call
// arguments before it is persisted; tool_result message content is capped
// by MaxMessageContentBytes like any other message.
const MaxResponseBlobBytes = 100 * 1024

// Redactor applies the ordered built-in patterns plus any project-supplied
// custom patterns, which are additive and never replace the built-ins
// (§4.7.7).
type Redactor struct {
	patterns []Pattern
}

// New builds a Redactor from the built-in patterns plus custom. Custom
// patterns are appended after the built-ins so they cannot mask a secret
// the built-ins would otherwise catch by running first and altering the
// text the built-ins would have matched.
func New(custom []Pattern) *Redactor {
	patterns := append([]Pattern(nil), builtinPatterns...)
	patterns = append(patterns, custom...)
	return &Redactor{patterns: patterns}
}

// RedactString applies every pattern in order to s.
func (r *Redactor) RedactString(s string) string {
	for _, p := range r.patterns {
		s = p.Regexp.ReplaceAllString(s, p.Replace)
	}
	return s
}

// TruncateMessage caps s at MaxMessageContentBytes, replacing the tail with
// a truncation marker when it is exceeded.
func TruncateMessage(s string) string {
	return truncate(s, MaxMessageContentBytes)
}

// TruncateResponse caps s at MaxResponseBlobBytes, replacing the tail with a
// truncation marker when it is exceeded.
func TruncateResponse(s string) string {
	return truncate(s, MaxResponseBlobBytes)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	dropped := len(s) - limit
	return fmt.Sprintf("%s…[TRUNCATED %d bytes]", s[:limit], dropped)
}
