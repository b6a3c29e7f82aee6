package backend

import "errors"

// Common errors returned by generation backends. The orchestrator
// classifies stage failures by matching against these sentinels.
var (
	// ErrTransient is returned for temporary backend failures that may
	// resolve on retry (timeouts, rate limits, 5xx responses).
	ErrTransient = errors.New("transient backend error")

	// ErrPolicyRejected is returned when the model blocks the content
	// for safety reasons. It is terminal and never retried.
	ErrPolicyRejected = errors.New("content rejected by safety policy")

	// ErrInvalidResponse is returned when a backend response cannot be
	// parsed or is structurally malformed.
	ErrInvalidResponse = errors.New("invalid response from backend")

	// ErrInvalidConfig is returned when a backend adapter is
	// constructed with unusable configuration.
	ErrInvalidConfig = errors.New("invalid backend configuration")
)

// IsRetryable reports whether an error represents a transient failure
// worth another attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
