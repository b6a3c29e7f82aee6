package pipeline

import (
	"fmt"

	"github.com/rich1edwards/vividly-mvp-sub007/internal/domain"
)

// OutcomeKind classifies how a pipeline stage finished. Expected
// branches (clarification) are first-class variants, never error
// values, so control flow and real failure stay separate.
type OutcomeKind int

const (
	// OutcomeSuccess means the stage produced its artifact and the
	// pipeline may advance.
	OutcomeSuccess OutcomeKind = iota

	// OutcomeClarification means the query was too ambiguous to
	// proceed; the request stays pending with questions attached.
	OutcomeClarification

	// OutcomeRetryable means a transient failure; the stage is retried
	// in place with backoff, and exhausting the attempts converts the
	// outcome to terminal under the stage's failure code.
	OutcomeRetryable

	// OutcomeTerminal means an unrecoverable failure; the request is
	// marked failed and the message acked.
	OutcomeTerminal
)

// String returns a human-readable name for metric labels and logs.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeClarification:
		return "clarification"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// StageOutcome is the transient result of one pipeline stage. Only its
// effect (status plus metadata) is persisted, on the request row.
type StageOutcome struct {
	Kind OutcomeKind

	// Code is the stable failure category persisted on terminal
	// failures (e.g. "retrieval_error", "content_policy"). Retryable
	// outcomes carry it too, so retry exhaustion fails under the right
	// category.
	Code string

	// Err carries the underlying error for logging. Never shown to
	// callers.
	Err error

	// Clarification holds the questions for the clarification variant.
	Clarification *domain.Clarification
}

// success is the zero-value successful outcome.
func success() StageOutcome {
	return StageOutcome{Kind: OutcomeSuccess}
}

func retryable(code string, err error) StageOutcome {
	return StageOutcome{Kind: OutcomeRetryable, Code: code, Err: err}
}

func terminal(code string, err error) StageOutcome {
	return StageOutcome{Kind: OutcomeTerminal, Code: code, Err: err}
}

func clarify(c *domain.Clarification) StageOutcome {
	return StageOutcome{Kind: OutcomeClarification, Clarification: c}
}
