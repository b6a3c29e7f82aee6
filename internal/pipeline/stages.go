package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rich1edwards/vividly-mvp-sub007/internal/backend"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/domain"
)

// classify maps a backend error to a stage outcome. Policy rejections
// are always terminal and never retried; malformed responses and
// misconfiguration are terminal under the stage's failure code.
// Transient and unrecognized errors are retried in-stage with backoff,
// and exhausting the attempts fails terminally under the same code.
func classify(err error, code string) StageOutcome {
	switch {
	case errors.Is(err, backend.ErrPolicyRejected):
		return terminal(CodeContentPolicy, err)
	case errors.Is(err, backend.ErrInvalidResponse), errors.Is(err, backend.ErrInvalidConfig):
		return terminal(code, err)
	default:
		return retryable(code, err)
	}
}

func (o *Orchestrator) runValidate(ctx context.Context, req *domain.ContentRequest, a *domain.Artifacts) StageOutcome {
	result, err := o.backends.Topics.ExtractTopic(ctx, req.StudentQuery, req.GradeLevel)
	if err != nil {
		return classify(err, CodeValidationError)
	}
	if result.Clarification != nil {
		return clarify(result.Clarification)
	}

	a.Topic = result.Topic
	return success()
}

func (o *Orchestrator) runRetrieve(ctx context.Context, req *domain.ContentRequest, a *domain.Artifacts) StageOutcome {
	refs, err := o.backends.Refs.RetrieveReferences(ctx, a.Topic, req.Interest, req.GradeLevel)
	if err != nil {
		return classify(err, CodeRetrievalError)
	}

	a.References = encodeReferences(refs)
	return success()
}

func (o *Orchestrator) runScript(ctx context.Context, req *domain.ContentRequest, a *domain.Artifacts) StageOutcome {
	refs := decodeReferences(a.References)

	script, err := o.backends.Scripts.GenerateScript(ctx, a.Topic, refs, req.Interest)
	if err != nil {
		return classify(err, CodeGenerationError)
	}

	encoded, err := json.Marshal(script)
	if err != nil {
		return terminal(CodeGenerationError, fmt.Errorf("encoding script artifact: %w", err))
	}
	a.Script = string(encoded)
	return success()
}

func (o *Orchestrator) runVideo(ctx context.Context, req *domain.ContentRequest, a *domain.Artifacts) StageOutcome {
	if o.backends.Speech == nil || o.backends.Renderer == nil {
		return terminal(CodeRenderError, errors.New("video generation backends not configured"))
	}

	script, err := decodeScript(a.Script)
	if err != nil {
		return terminal(CodeGenerationError, err)
	}

	// The audio checkpoint means a retry after a render failure does
	// not pay for synthesis again.
	if a.AudioURL == "" {
		audio, err := o.backends.Speech.SynthesizeAudio(ctx, script)
		if err != nil {
			return classify(err, CodeSpeechError)
		}
		a.AudioURL = audio.URL
	}

	video, err := o.backends.Renderer.RenderVideo(ctx, script, &backend.AudioAsset{URL: a.AudioURL})
	if err != nil {
		return classify(err, CodeRenderError)
	}

	a.VideoURL = video.URL
	return success()
}

func (o *Orchestrator) runProcess(ctx context.Context, req *domain.ContentRequest, a *domain.Artifacts) StageOutcome {
	if o.backends.Processor == nil {
		return terminal(CodeProcessingError, errors.New("video processing backend not configured"))
	}

	final, err := o.backends.Processor.ProcessVideo(ctx, &backend.VideoAsset{URL: a.VideoURL})
	if err != nil {
		return classify(err, CodeProcessingError)
	}

	a.FinalVideoURL = final.URL
	return success()
}

// encodeReferences serializes references into the artifact checkpoint
// so a resumed script stage keeps its grounding material.
func encodeReferences(refs []backend.Reference) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		data, err := json.Marshal(r)
		if err != nil {
			continue
		}
		out = append(out, string(data))
	}
	return out
}

// decodeReferences is the inverse of encodeReferences. An entry that
// fails to decode is kept as a bare snippet rather than dropped.
func decodeReferences(encoded []string) []backend.Reference {
	refs := make([]backend.Reference, 0, len(encoded))
	for _, e := range encoded {
		var r backend.Reference
		if err := json.Unmarshal([]byte(e), &r); err != nil {
			refs = append(refs, backend.Reference{Snippet: e})
			continue
		}
		refs = append(refs, r)
	}
	return refs
}

func decodeScript(encoded string) (*backend.Script, error) {
	var s backend.Script
	if err := json.Unmarshal([]byte(encoded), &s); err != nil {
		return nil, fmt.Errorf("decoding script artifact: %w", err)
	}
	return &s, nil
}
