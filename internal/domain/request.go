package domain

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus represents the processing state of a content request.
type RequestStatus string

// Possible request status values. The forward path runs from pending
// through the generation stages to completed; failed and cancelled are
// the other terminal states.
const (
	StatusPending          RequestStatus = "pending"
	StatusValidating       RequestStatus = "validating"
	StatusRetrieving       RequestStatus = "retrieving"
	StatusGeneratingScript RequestStatus = "generating_script"
	StatusGeneratingVideo  RequestStatus = "generating_video"
	StatusProcessingVideo  RequestStatus = "processing_video"
	StatusNotifying        RequestStatus = "notifying"
	StatusCompleted        RequestStatus = "completed"
	StatusFailed           RequestStatus = "failed"
	StatusCancelled        RequestStatus = "cancelled"
)

// Modality identifiers for requested output formats.
const (
	ModalityTextOnly Modality = "text_only"
	ModalityVideo    Modality = "video"
	ModalityAudio    Modality = "audio"
)

// Modality is an output format a student can request.
type Modality string

// forwardTransitions defines the allowed forward edges of the status
// graph. Cancellation is handled separately: it is reachable from any
// non-terminal status.
var forwardTransitions = map[RequestStatus][]RequestStatus{
	StatusPending:          {StatusValidating, StatusFailed},
	StatusValidating:       {StatusRetrieving, StatusPending, StatusFailed},
	StatusRetrieving:       {StatusGeneratingScript, StatusFailed},
	StatusGeneratingScript: {StatusGeneratingVideo, StatusNotifying, StatusFailed},
	StatusGeneratingVideo:  {StatusProcessingVideo, StatusFailed},
	StatusProcessingVideo:  {StatusNotifying, StatusFailed},
	StatusNotifying:        {StatusCompleted, StatusFailed},
}

// ContentRequest represents one logical unit of content-generation work
// for a student. It is created by an external producer in the pending
// status and mutated exclusively by the pipeline orchestrator until it
// reaches a terminal status.
type ContentRequest struct {
	ID                  uuid.UUID     `json:"id"`
	CorrelationID       string        `json:"correlation_id"`
	StudentID           string        `json:"student_id"`
	StudentQuery        string        `json:"student_query"`
	GradeLevel          int           `json:"grade_level"`
	Interest            string        `json:"interest,omitempty"`
	RequestedModalities []Modality    `json:"requested_modalities"`
	PreferredModality   Modality      `json:"preferred_modality"`
	Status              RequestStatus `json:"status"`
	CurrentStage        string        `json:"current_stage"`
	RetryCount          int           `json:"retry_count"`
	Metadata            RequestAux    `json:"metadata"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// NewContentRequest creates a pending request for the given student and
// query. It generates a fresh request ID and uses the request ID as the
// correlation ID when none is supplied.
func NewContentRequest(correlationID, studentID, query string, gradeLevel int) (*ContentRequest, error) {
	id := uuid.New()
	if correlationID == "" {
		correlationID = id.String()
	}

	req := &ContentRequest{
		ID:                  id,
		CorrelationID:       correlationID,
		StudentID:           studentID,
		StudentQuery:        query,
		GradeLevel:          gradeLevel,
		RequestedModalities: []Modality{ModalityTextOnly},
		PreferredModality:   ModalityTextOnly,
		Status:              StatusPending,
		CreatedAt:           time.Now().UTC(),
		UpdatedAt:           time.Now().UTC(),
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	return req, nil
}

// Validate checks that the request carries the fields every stage of
// the pipeline depends on.
func (r *ContentRequest) Validate() error {
	if r.ID == uuid.Nil {
		return ErrEmptyRequestID
	}

	if r.CorrelationID == "" {
		return ErrEmptyCorrelationID
	}

	if r.StudentID == "" {
		return ErrEmptyStudentID
	}

	if r.StudentQuery == "" {
		return ErrEmptyStudentQuery
	}

	if r.GradeLevel <= 0 {
		return ErrInvalidGradeLevel
	}

	if !isValidRequestStatus(r.Status) {
		return ErrInvalidRequestStatus
	}

	return nil
}

// IsTerminal reports whether the request has reached a status that
// must never change again. Redeliveries of a terminal request are
// acknowledged without side effects.
func (r *ContentRequest) IsTerminal() bool {
	return IsTerminalStatus(r.Status)
}

// TextOnly reports whether the request should skip the video stages.
// Video is skipped when the preferred modality is text and video was
// not explicitly requested alongside it.
func (r *ContentRequest) TextOnly() bool {
	if r.PreferredModality != ModalityTextOnly {
		return false
	}
	for _, m := range r.RequestedModalities {
		if m == ModalityVideo {
			return false
		}
	}
	return true
}

// IsTerminalStatus reports whether status is one of the three terminal
// states.
func IsTerminalStatus(status RequestStatus) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from one status to another is a
// legal step. Forward moves must follow the canonical path; cancelled
// is reachable from any non-terminal status; remaining in place is
// allowed so a stage can re-persist metadata without advancing.
func CanTransition(from, to RequestStatus) bool {
	if IsTerminalStatus(from) {
		return false
	}

	if to == StatusCancelled || to == from {
		return true
	}

	for _, next := range forwardTransitions[from] {
		if next == to {
			return true
		}
	}

	return false
}

// AllStatuses returns every known request status. Used by the store
// layer to compute transition guard clauses.
func AllStatuses() []RequestStatus {
	return []RequestStatus{
		StatusPending, StatusValidating, StatusRetrieving,
		StatusGeneratingScript, StatusGeneratingVideo,
		StatusProcessingVideo, StatusNotifying,
		StatusCompleted, StatusFailed, StatusCancelled,
	}
}

// isValidRequestStatus checks if the given status is a known
// RequestStatus.
func isValidRequestStatus(status RequestStatus) bool {
	switch status {
	case StatusPending, StatusValidating, StatusRetrieving,
		StatusGeneratingScript, StatusGeneratingVideo,
		StatusProcessingVideo, StatusNotifying,
		StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}
