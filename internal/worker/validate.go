package worker

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rich1edwards/vividly-mvp-sub007/internal/queue"
)

// validatePayload decodes and structurally validates an inbound
// message before any stateful or paid work runs. It collects every
// problem rather than stopping at the first, so a single log line
// describes the whole defect. A non-empty problem list means the
// message must not proceed.
func validatePayload(data []byte) (*queue.RequestPayload, []string) {
	var payload queue.RequestPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, []string{fmt.Sprintf("payload is not valid JSON: %v", err)}
	}

	var problems []string

	if strings.TrimSpace(payload.RequestID) == "" {
		problems = append(problems, "request_id is missing")
	} else if _, err := uuid.Parse(payload.RequestID); err != nil {
		problems = append(problems, fmt.Sprintf("request_id %q is not a valid UUID", payload.RequestID))
	}

	if strings.TrimSpace(payload.StudentID) == "" {
		problems = append(problems, "student_id is missing")
	}

	if strings.TrimSpace(payload.StudentQuery) == "" {
		problems = append(problems, "student_query is missing")
	}

	if payload.GradeLevel <= 0 {
		problems = append(problems, fmt.Sprintf("grade_level %d is not a positive integer", payload.GradeLevel))
	}

	if len(problems) > 0 {
		return nil, problems
	}
	return &payload, nil
}
