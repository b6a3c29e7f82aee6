// Package redact scrubs sensitive values from strings before they are
// logged or attached to failure records: connection strings, API keys,
// and email addresses that backend errors sometimes embed.
package redact

import "regexp"

// Redaction placeholders.
const (
	CredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	KeyPlaceholder        = "[REDACTED_KEY]"
	EmailPlaceholder      = "[REDACTED_EMAIL]"
)

var (
	// Connection strings carrying credentials (postgres://user:pw@host).
	connStringRegex = regexp.MustCompile(`(?i)(postgres|postgresql|nats|mysql|amqp)://[^@\s]+@`)

	// API keys and tokens appearing in error messages or URLs.
	apiKeyRegex = regexp.MustCompile(`(?i)(api[_-]?key|token|secret|authorization)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`)

	emailRegex = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
)

// String scrubs every known sensitive pattern from s.
func String(s string) string {
	s = connStringRegex.ReplaceAllString(s, "$1://"+CredentialPlaceholder+"@")
	s = apiKeyRegex.ReplaceAllString(s, "$1$2"+KeyPlaceholder)
	s = emailRegex.ReplaceAllString(s, EmailPlaceholder)
	return s
}

// Error scrubs an error's message. Returns an empty string for nil.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
