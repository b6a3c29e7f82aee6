package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rich1edwards/vividly-mvp-sub007/internal/backend"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/domain"
)

// topicResponse is the JSON schema the extraction prompt asks for.
type topicResponse struct {
	Topic              string   `json:"topic"`
	NeedsClarification bool     `json:"needs_clarification"`
	Questions          []string `json:"questions"`
	Reasoning          string   `json:"reasoning"`
}

const topicPrompt = `You are an educational content planner. Extract the single
academic topic a student wants explained.

Student query: %q
Grade level: %d

Respond with JSON only:
{"topic": "<concise topic>", "needs_clarification": <bool>,
 "questions": ["<question>", ...], "reasoning": "<why>"}

Set needs_clarification to true and fill questions when the query is too
ambiguous to name one teachable topic.`

// generator is the slice of Client the extractors use; tests stub it.
type generator interface {
	generate(ctx context.Context, prompt string) (string, error)
}

// TopicExtractor implements backend.TopicExtractor on Gemini.
type TopicExtractor struct {
	client generator
}

var _ backend.TopicExtractor = (*TopicExtractor)(nil)

// NewTopicExtractor builds a topic extractor sharing the given client.
func NewTopicExtractor(client *Client) *TopicExtractor {
	return &TopicExtractor{client: client}
}

// ExtractTopic implements backend.TopicExtractor. An ambiguous query
// yields a clarification result, not an error.
func (e *TopicExtractor) ExtractTopic(ctx context.Context, query string, gradeLevel int) (*backend.TopicResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", backend.ErrInvalidResponse)
	}

	text, err := e.client.generate(ctx, fmt.Sprintf(topicPrompt, query, gradeLevel))
	if err != nil {
		return nil, err
	}

	var parsed topicResponse
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse topic response: %v", backend.ErrInvalidResponse, err)
	}

	if parsed.NeedsClarification {
		if len(parsed.Questions) == 0 {
			return nil, fmt.Errorf("%w: clarification without questions", backend.ErrInvalidResponse)
		}
		return &backend.TopicResult{
			Clarification: &domain.Clarification{
				Questions: parsed.Questions,
				Reasoning: parsed.Reasoning,
			},
		}, nil
	}

	if parsed.Topic == "" {
		return nil, fmt.Errorf("%w: empty topic", backend.ErrInvalidResponse)
	}

	return &backend.TopicResult{Topic: parsed.Topic}, nil
}
