package domain

import (
	"encoding/json"
	"fmt"
)

// AuxKind discriminates the variants of RequestAux.
type AuxKind string

// Known RequestAux variants.
const (
	AuxNone          AuxKind = "none"
	AuxClarification AuxKind = "clarification"
	AuxFailure       AuxKind = "failure"
)

// Clarification carries the questions a student must answer before an
// ambiguous request can proceed. The request stays pending while a
// clarification is attached.
type Clarification struct {
	Questions []string `json:"questions"`
	Reasoning string   `json:"reasoning,omitempty"`
}

// FailureDetail records why a request reached the failed status. The
// code is a stable machine-readable category; the message is safe to
// show to callers and never contains internal stack traces.
type FailureDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Artifacts holds the outputs of completed pipeline stages. Persisting
// them with each status checkpoint lets a redelivered message resume
// from the current stage without repeating paid backend calls.
type Artifacts struct {
	Topic         string   `json:"topic,omitempty"`
	References    []string `json:"references,omitempty"`
	Script        string   `json:"script,omitempty"`
	AudioURL      string   `json:"audio_url,omitempty"`
	VideoURL      string   `json:"video_url,omitempty"`
	FinalVideoURL string   `json:"final_video_url,omitempty"`
}

// RequestAux is the typed auxiliary payload attached to a request. It
// is a tagged union: exactly one of Clarification or Failure is set,
// selected by Kind, while Artifacts accumulate independently across
// stages. It is encoded to JSON only at the storage boundary.
type RequestAux struct {
	Kind          AuxKind        `json:"kind"`
	Clarification *Clarification `json:"clarification,omitempty"`
	Failure       *FailureDetail `json:"failure,omitempty"`
	Artifacts     Artifacts      `json:"artifacts,omitempty"`
}

// NewClarificationAux builds an aux payload holding clarification
// questions, preserving any artifacts already gathered.
func NewClarificationAux(questions []string, reasoning string, artifacts Artifacts) RequestAux {
	return RequestAux{
		Kind:          AuxClarification,
		Clarification: &Clarification{Questions: questions, Reasoning: reasoning},
		Artifacts:     artifacts,
	}
}

// NewFailureAux builds an aux payload recording a terminal failure.
func NewFailureAux(code, message string, artifacts Artifacts) RequestAux {
	return RequestAux{
		Kind:      AuxFailure,
		Failure:   &FailureDetail{Code: code, Message: message},
		Artifacts: artifacts,
	}
}

// WithArtifacts returns a copy of the aux payload carrying the given
// artifacts, leaving the variant untouched.
func (a RequestAux) WithArtifacts(artifacts Artifacts) RequestAux {
	a.Artifacts = artifacts
	return a
}

// Validate checks the tagged union is internally consistent: the
// variant named by Kind is populated and the others are absent.
func (a RequestAux) Validate() error {
	switch a.Kind {
	case AuxNone, "":
		if a.Clarification != nil || a.Failure != nil {
			return fmt.Errorf("%w: variant data present without kind", ErrInvalidAux)
		}
	case AuxClarification:
		if a.Clarification == nil || len(a.Clarification.Questions) == 0 {
			return fmt.Errorf("%w: clarification kind without questions", ErrInvalidAux)
		}
		if a.Failure != nil {
			return fmt.Errorf("%w: clarification kind with failure data", ErrInvalidAux)
		}
	case AuxFailure:
		if a.Failure == nil || a.Failure.Code == "" {
			return fmt.Errorf("%w: failure kind without code", ErrInvalidAux)
		}
		if a.Clarification != nil {
			return fmt.Errorf("%w: failure kind with clarification data", ErrInvalidAux)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidAux, a.Kind)
	}

	return nil
}

// EncodeAux serializes an aux payload for the storage boundary. A zero
// value encodes as the none variant so the column is never NULL-ish
// JSON fragments.
func EncodeAux(aux RequestAux) ([]byte, error) {
	if aux.Kind == "" {
		aux.Kind = AuxNone
	}
	if err := aux.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(aux)
}

// DecodeAux deserializes an aux payload read from storage. Empty input
// decodes to the none variant.
func DecodeAux(data []byte) (RequestAux, error) {
	if len(data) == 0 {
		return RequestAux{Kind: AuxNone}, nil
	}

	var aux RequestAux
	if err := json.Unmarshal(data, &aux); err != nil {
		return RequestAux{}, fmt.Errorf("%w: %v", ErrInvalidAux, err)
	}
	if aux.Kind == "" {
		aux.Kind = AuxNone
	}
	if err := aux.Validate(); err != nil {
		return RequestAux{}, err
	}

	return aux, nil
}
