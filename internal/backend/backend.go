package backend

import (
	"context"

	"github.com/google/uuid"

	"github.com/rich1edwards/vividly-mvp-sub007/internal/domain"
)

// Reference is one ranked snippet of source material retrieved for a
// topic. The script generator grounds its output on these.
type Reference struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Source  string `json:"source,omitempty"`
}

// Script is a generated lesson script personalized to the student's
// interest.
type Script struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Narration string `json:"narration,omitempty"`
}

// AudioAsset points at synthesized narration audio.
type AudioAsset struct {
	URL        string `json:"url"`
	DurationMs int    `json:"duration_ms,omitempty"`
}

// VideoAsset points at a rendered (or post-processed) video.
type VideoAsset struct {
	URL string `json:"url"`
}

// TopicResult is the outcome of topic extraction. Exactly one of Topic
// or Clarification is set: a clarification means the query was too
// ambiguous to extract a teachable topic and is an expected branch,
// not an error.
type TopicResult struct {
	Topic         string
	Clarification *domain.Clarification
}

// Outcome describes how a request finished, for notification purposes.
type Outcome struct {
	Status        domain.RequestStatus `json:"status"`
	ErrorCode     string               `json:"error_code,omitempty"`
	ErrorMessage  string               `json:"error_message,omitempty"`
	FinalVideoURL string               `json:"final_video_url,omitempty"`
}

// TopicExtractor maps a raw student query to a teachable topic, or to
// clarification questions when the query is ambiguous.
type TopicExtractor interface {
	ExtractTopic(ctx context.Context, query string, gradeLevel int) (*TopicResult, error)
}

// ReferenceRetriever fetches ranked reference material for a topic,
// personalized by interest and grade level.
type ReferenceRetriever interface {
	RetrieveReferences(ctx context.Context, topic, interest string, gradeLevel int) ([]Reference, error)
}

// ScriptGenerator writes a lesson script grounded on the retrieved
// references. A content-safety rejection surfaces as ErrPolicyRejected
// and must never be retried.
type ScriptGenerator interface {
	GenerateScript(ctx context.Context, topic string, references []Reference, interest string) (*Script, error)
}

// SpeechSynthesizer turns a script's narration into audio.
type SpeechSynthesizer interface {
	SynthesizeAudio(ctx context.Context, script *Script) (*AudioAsset, error)
}

// VideoRenderer renders a video from a script and its narration audio.
type VideoRenderer interface {
	RenderVideo(ctx context.Context, script *Script, audio *AudioAsset) (*VideoAsset, error)
}

// VideoProcessor post-processes a rendered video (transcoding,
// thumbnailing, final placement).
type VideoProcessor interface {
	ProcessVideo(ctx context.Context, video *VideoAsset) (*VideoAsset, error)
}

// Notifier delivers a completion or failure event for a request.
// Delivery is best-effort: callers log and swallow its errors.
type Notifier interface {
	Notify(ctx context.Context, requestID uuid.UUID, outcome Outcome) error
}
