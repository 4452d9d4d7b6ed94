package descriptor

import (
	"regexp"

	"github.com/a5c-ai/runner/pkg/constants"
)

// Regex patterns for content that must never appear in a prompt body or a
// CLI command override. Template expressions are fine; injection vectors are
// not.
var dangerousContentPatterns = []*regexp.Regexp{
	// Script injection
	regexp.MustCompile(`(?i)<script\b`),
	regexp.MustCompile(`(?i)javascript:`),
	// Shell command substitution
	regexp.MustCompile(`\$\([^)]*\)`),
	regexp.MustCompile("`[^`]*`"),
	// Pipes or redirections that touch system locations
	regexp.MustCompile(`[|>]\s*/etc/`),
	regexp.MustCompile(`[|>]\s*/proc/`),
	regexp.MustCompile(`[|>]\s*/sys/`),
	// Download-and-execute chains
	regexp.MustCompile(`(?i)(curl|wget)[^|>]*[|>]`),
}

// deniedCommands compiles the denylist once. Single-word entries anchor on
// word boundaries so "sudo" is caught at end of string or before a tab, but
// "pseudocode" is not.
var deniedCommands = compileDeniedCommands()

type deniedCommand struct {
	entry   string
	pattern *regexp.Regexp
}

var wordEntry = regexp.MustCompile(`^\w+$`)

func compileDeniedCommands() []deniedCommand {
	out := make([]deniedCommand, 0, len(constants.DangerousCommandPatterns))
	for _, entry := range constants.DangerousCommandPatterns {
		expr := "(?i)" + regexp.QuoteMeta(entry)
		if wordEntry.MatchString(entry) {
			expr = `(?i)\b` + regexp.QuoteMeta(entry) + `\b`
		}
		out = append(out, deniedCommand{entry: entry, pattern: regexp.MustCompile(expr)})
	}
	return out
}

// DangerousContentReasons returns a human-readable reason for every
// dangerous pattern found in content, or nil when the content is clean.
func DangerousContentReasons(content string) []string {
	var reasons []string
	for _, pattern := range dangerousContentPatterns {
		if loc := pattern.FindString(content); loc != "" {
			reasons = append(reasons, "contains dangerous pattern "+quoteSnippet(loc))
		}
	}
	for _, denied := range deniedCommands {
		if denied.pattern.MatchString(content) {
			reasons = append(reasons, "contains denylisted command "+quoteSnippet(denied.entry))
		}
	}
	return reasons
}

func quoteSnippet(s string) string {
	if len(s) > 40 {
		s = s[:40] + "…"
	}
	return "\"" + s + "\""
}
