// Package masking implements the LogMasker safety guard: a sink-level
// filter applied to every log record and persisted ExecutionEvent before
// it reaches a logger, event store, or HTTP response.
package masking

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	redactedMarker = "***REDACTED***"
	fallbackMarker = "[REDACTED]"
)

// pattern pairs a compiled regex with the replacement template used when it
// matches. Replacements keep the matched key/prefix so downstream readers
// can still tell what KIND of secret was redacted, without leaking the
// value or changing the record's rough shape.
type pattern struct {
	re   *regexp.Regexp
	repl string
}

// defaultPatterns covers the common credential shapes called out in
// SPEC_FULL.md §4.2.7: passwords, tokens, API keys, connection URIs,
// private keys, and cloud-provider credential shapes. There are at least
// 13 patterns, as the spec requires.
var defaultPatterns = []pattern{
	{regexp.MustCompile(`(?i)(password["']?\s*[:=]\s*["']?)([^\s"',}]+)`), "${1}" + redactedMarker},
	{regexp.MustCompile(`(?i)(passwd["']?\s*[:=]\s*["']?)([^\s"',}]+)`), "${1}" + redactedMarker},
	{regexp.MustCompile(`(?i)(secret["']?\s*[:=]\s*["']?)([^\s"',}]+)`), "${1}" + redactedMarker},
	{regexp.MustCompile(`(?i)(token["']?\s*[:=]\s*["']?)([^\s"',}]+)`), "${1}" + redactedMarker},
	{regexp.MustCompile(`(?i)(api[_-]?key["']?\s*[:=]\s*["']?)([^\s"',}]+)`), "${1}" + redactedMarker},
	{regexp.MustCompile(`(?i)(access[_-]?key["']?\s*[:=]\s*["']?)([^\s"',}]+)`), "${1}" + redactedMarker},
	{regexp.MustCompile(`(?i)(private[_-]?key["']?\s*[:=]\s*["']?)([^\s"',}]+)`), "${1}" + redactedMarker},
	{regexp.MustCompile(`(?i)(client[_-]?secret["']?\s*[:=]\s*["']?)([^\s"',}]+)`), "${1}" + redactedMarker},
	{regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9\-_.]+)`), "${1}" + redactedMarker},
	{regexp.MustCompile(`(?i)(authorization["']?\s*[:=]\s*["']?)([^\s"',}]+)`), "${1}" + redactedMarker},
	{regexp.MustCompile(`(?i)([a-z][a-z0-9+.-]*://[^:/\s]+:)([^@/\s]+)(@)`), "${1}" + redactedMarker + "${3}"}, // user:pass@host URIs
	{regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`), redactedMarker},
	{regexp.MustCompile(`(?i)(ssn["']?\s*[:=]\s*["']?)(\d{3}-?\d{2}-?\d{4})`), "${1}" + redactedMarker},
	{regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`), redactedMarker},
	{regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{16,}\b`), redactedMarker},
}

// safeFallbackKeys is the dependency-free keyword list used by SafeFallback
// when the regex path panics or is skipped entirely.
var safeFallbackKeys = []string{
	"password", "passwd", "secret", "token", "api_key", "apikey",
	"access_key", "private_key", "client_secret", "authorization",
}

// Sanitizer masks secret-shaped substrings out of strings and, recursively,
// out of arbitrary nested map/slice structures.
type Sanitizer struct {
	patterns []pattern
}

// NewSanitizer builds a Sanitizer with the default pattern set plus any
// caller-supplied patterns appended.
func NewSanitizer(extra ...*regexp.Regexp) *Sanitizer {
	patterns := make([]pattern, len(defaultPatterns))
	copy(patterns, defaultPatterns)
	for _, re := range extra {
		patterns = append(patterns, pattern{re: re, repl: redactedMarker})
	}
	return &Sanitizer{patterns: patterns}
}

// Sanitize applies every pattern to s and returns the redacted string.
// Sanitize is idempotent: Sanitize(Sanitize(s)) == Sanitize(s), because the
// replacement marker itself never matches any pattern (markers contain no
// "key: value" shape or credential-looking substring).
func (s *Sanitizer) Sanitize(text string) string {
	out := text
	for _, p := range s.patterns {
		out = p.re.ReplaceAllString(out, p.repl)
	}
	return out
}

// SanitizeWithFallback runs Sanitize, recovering from any panic in the
// regex engine (e.g. catastrophic backtracking on adversarial input) and
// falling back to SafeFallback so a log/notification pipeline never loses
// a record outright. A non-nil error indicates the fallback path fired.
func (s *Sanitizer) SanitizeWithFallback(text string) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = s.SafeFallback(text)
			err = fmt.Errorf("masking: sanitizer panicked, used safe fallback: %v", r)
		}
	}()
	if text == "" {
		return "", nil
	}
	return s.Sanitize(text), nil
}

// SafeFallback redacts common secret shapes using plain substring/keyword
// matching only (no regex engine), so it cannot itself panic or run away.
func (s *Sanitizer) SafeFallback(text string) string {
	if text == "" {
		return text
	}
	lower := strings.ToLower(text)
	for _, key := range safeFallbackKeys {
		idx := 0
		for {
			rel := strings.Index(lower[idx:], key)
			if rel == -1 {
				break
			}
			start := idx + rel
			// find the delimiter (':' or '=') after the keyword
			sepIdx := -1
			for i := start + len(key); i < len(text) && i < start+len(key)+8; i++ {
				if text[i] == ':' || text[i] == '=' {
					sepIdx = i
					break
				}
				if text[i] != ' ' && text[i] != '\t' {
					break
				}
			}
			if sepIdx == -1 {
				idx = start + len(key)
				continue
			}
			valStart := sepIdx + 1
			for valStart < len(text) && (text[valStart] == ' ' || text[valStart] == '\t' || text[valStart] == '\'' || text[valStart] == '"') {
				valStart++
			}
			valEnd := valStart
			for valEnd < len(text) {
				c := text[valEnd]
				if c == ' ' || c == '\t' || c == ',' || c == '}' || c == '\n' || c == '\'' || c == '"' {
					break
				}
				valEnd++
			}
			if valEnd > valStart {
				text = text[:valStart] + fallbackMarker + text[valEnd:]
				lower = strings.ToLower(text)
				idx = valStart + len(fallbackMarker)
			} else {
				idx = start + len(key)
			}
		}
	}
	return text
}

// MaskValue recursively masks string leaves within arbitrary nested
// map[string]any / []any / scalar structures, preserving shape (map keys,
// slice order, non-string scalar types) so masking never corrupts the
// structure the caller is trying to log.
func (s *Sanitizer) MaskValue(v any) any {
	switch val := v.(type) {
	case string:
		return s.Sanitize(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = s.MaskValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = s.MaskValue(vv)
		}
		return out
	default:
		return v
	}
}
