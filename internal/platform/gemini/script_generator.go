package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rich1edwards/vividly-mvp-sub007/internal/backend"
)

// scriptResponse is the JSON schema the script prompt asks for.
type scriptResponse struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Narration string `json:"narration"`
}

const scriptPrompt = `You are an educational script writer. Write a short lesson
script on the topic below, grounded ONLY on the provided references, and
personalize examples with the student's interest when one is given.

Topic: %s
Interest: %s

References:
%s

Respond with JSON only:
{"title": "<lesson title>", "body": "<lesson text>",
 "narration": "<spoken narration for a video voiceover>"}`

// ScriptGenerator implements backend.ScriptGenerator on Gemini. A
// safety-filter block surfaces as backend.ErrPolicyRejected and is
// never retried.
type ScriptGenerator struct {
	client generator
}

var _ backend.ScriptGenerator = (*ScriptGenerator)(nil)

// NewScriptGenerator builds a script generator sharing the given client.
func NewScriptGenerator(client *Client) *ScriptGenerator {
	return &ScriptGenerator{client: client}
}

// GenerateScript implements backend.ScriptGenerator.
func (g *ScriptGenerator) GenerateScript(
	ctx context.Context,
	topic string,
	references []backend.Reference,
	interest string,
) (*backend.Script, error) {
	if topic == "" {
		return nil, fmt.Errorf("%w: empty topic", backend.ErrInvalidResponse)
	}

	var refs strings.Builder
	for i, ref := range references {
		fmt.Fprintf(&refs, "%d. %s: %s\n", i+1, ref.Title, ref.Snippet)
	}
	if refs.Len() == 0 {
		refs.WriteString("(none)")
	}
	if interest == "" {
		interest = "(none)"
	}

	text, err := g.client.generate(ctx, fmt.Sprintf(scriptPrompt, topic, interest, refs.String()))
	if err != nil {
		return nil, err
	}

	var parsed scriptResponse
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse script response: %v", backend.ErrInvalidResponse, err)
	}
	if parsed.Body == "" {
		return nil, fmt.Errorf("%w: empty script body", backend.ErrInvalidResponse)
	}

	return &backend.Script{
		Title:     parsed.Title,
		Body:      parsed.Body,
		Narration: parsed.Narration,
	}, nil
}
