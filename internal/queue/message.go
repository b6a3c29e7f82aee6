package queue

// RequestPayload is the wire format of an inbound content-request
// message. The producer marshals it when enqueuing; the worker decodes
// and structurally validates it before any expensive work begins.
//
// request_id, student_id, student_query and grade_level are mandatory;
// the rest are optional with defaults applied downstream.
type RequestPayload struct {
	RequestID           string   `json:"request_id"`
	CorrelationID       string   `json:"correlation_id,omitempty"`
	StudentID           string   `json:"student_id"`
	StudentQuery        string   `json:"student_query"`
	GradeLevel          int      `json:"grade_level"`
	Interest            string   `json:"interest,omitempty"`
	RequestedModalities []string `json:"requested_modalities,omitempty"`
	PreferredModality   string   `json:"preferred_modality,omitempty"`
}
