package logging

import (
	"regexp"
	"strings"
)

// Redacted replaces sensitive content.
const Redacted = "[REDACTED]"

// Sanitizer redacts secrets from log messages and crash metadata.
type Sanitizer struct {
	patterns  []*regexp.Regexp
	sensitive []string
	redacted  string
}

// NewSanitizer creates a sanitizer with default patterns.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		patterns: defaultPatterns(),
		sensitive: []string{
			"TOKEN", "KEY", "SECRET", "PASSWORD", "PASSWD", "CREDENTIAL",
			"AUTH", "PRIVATE", "COOKIE", "SESSION",
		},
		redacted: Redacted,
	}
}

func defaultPatterns() []*regexp.Regexp {
	patterns := []string{
		// GitHub tokens
		`gh[pousr]_[A-Za-z0-9]{36}`,
		// AWS Access Key
		`AKIA[0-9A-Z]{16}`,
		// Slack tokens
		`xox[baprs]-[0-9a-zA-Z-]{10,}`,
		// Private key blocks
		`-----BEGIN [A-Z ]*PRIVATE KEY-----`,
		// Credentials embedded in URLs
		`://[^/\s:@]+:[^/\s@]+@`,
		// Generic Bearer tokens
		`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`,
		// Generic API keys
		`(?i)api[_-]?key["'\s:=]+[a-zA-Z0-9_-]{20,}`,
		// Generic secrets
		`(?i)secret["'\s:=]+[a-zA-Z0-9_-]{20,}`,
		// Generic passwords
		`(?i)password["'\s:=]+[^\s"']{8,}`,
		// Generic tokens
		`(?i)token["'\s:=]+[a-zA-Z0-9_-]{20,}`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

// Sanitize redacts sensitive information from a string.
func (s *Sanitizer) Sanitize(input string) string {
	result := input
	for _, pattern := range s.patterns {
		result = pattern.ReplaceAllString(result, s.redacted)
	}
	return result
}

// RedactEnv returns the value to record for environment variable key. Keys
// naming a secret are redacted whole; other values go through Sanitize.
func (s *Sanitizer) RedactEnv(key, value string) string {
	upper := strings.ToUpper(key)
	for _, word := range s.sensitive {
		if strings.Contains(upper, word) {
			return s.redacted
		}
	}
	return s.Sanitize(value)
}

// AddPattern adds a custom pattern.
func (s *Sanitizer) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.patterns = append(s.patterns, re)
	return nil
}
