package redact

import "regexp"

var (
	queryKeyPattern = regexp.MustCompile(`(?i)([?&](?:key|api_key|apikey)=)[^&\s"']+`)
	bearerPattern   = regexp.MustCompile(`(?i)(bearer\s+)[a-z0-9._\-]{8,}`)
	tokenPattern    = regexp.MustCompile(`\b(?:sk-[A-Za-z0-9_\-]{16,}|gsk_[A-Za-z0-9]{16,}|xai-[A-Za-z0-9]{16,}|AIza[0-9A-Za-z_\-]{30,})\b`)
)

// Secrets masks provider credentials that can leak into error text, such as
// query-string keys, bearer tokens and well-known key prefixes.
func Secrets(input string) (redacted string, changed bool) {
	out := input

	// Query keys first so the value is masked as a whole, prefix included.
	next := queryKeyPattern.ReplaceAllString(out, "${1}[REDACTED]")
	changed = changed || next != out
	out = next

	next = bearerPattern.ReplaceAllString(out, "${1}[REDACTED]")
	changed = changed || next != out
	out = next

	next = tokenPattern.ReplaceAllString(out, "[REDACTED_KEY]")
	changed = changed || next != out
	out = next

	return out, changed
}
