// Package vision produces per-diagram prose summaries by showing rendered
// page bitmaps to a vision-capable model.
package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"golang.org/x/time/rate"

	"github.com/bull/diagram-indexer/internal/raster"
)

const systemPrompt = `You will receive an image of one page from a PDF. The page may contain zero or more software architecture diagrams, usually separated by a visible title.
Your tasks:
1. Detect every architecture diagram in the image.
2. For each diagram, return its name (the exact title text you see) and a summary: a detailed prose explanation of the workflow the diagram depicts.

Respond with JSON: {"summaries": [{"name": "...", "summary": "..."}]}. Order the summaries as the diagrams appear, top to bottom then left to right. If the page contains no architecture diagram, return {"summaries": []}.`

var ErrMalformedResponse = errors.New("vision model returned malformed output")

// ArchitectureSummary is one diagram's model-written summary, keyed by
// the diagram's visible title. The assembler joins on this name; it must
// match the extraction record's name exactly.
type ArchitectureSummary struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
}

// summaryResponse is the JSON envelope the model is instructed to emit.
type summaryResponse struct {
	Summaries []ArchitectureSummary `json:"summaries"`
}

// Summarizer drives the vision model over rendered pages.
type Summarizer struct {
	client  *openai.Client
	limiter *rate.Limiter
	model   openai.ChatModel
	logger  *slog.Logger
}

// NewSummarizer creates a summarizer around an OpenAI client.
func NewSummarizer(client *openai.Client, limiter *rate.Limiter, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{
		client:  client,
		limiter: limiter,
		model:   openai.ChatModelGPT4o,
		logger:  logger,
	}
}

// SummarizePage returns zero or more summaries for the diagrams visible
// on one rendered page. An empty result is a normal outcome for pages
// without diagrams, not an error; only provider failures are errors.
func (s *Summarizer) SummarizePage(ctx context.Context, page raster.RenderedPage) ([]ArchitectureSummary, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	encoded, err := raster.EncodePNG(page.Image)
	if err != nil {
		return nil, fmt.Errorf("encode page %d: %w", page.PageNumber, err)
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(encoded)

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart("Here is the page image:"),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL,
				}),
			}),
		},
		Model:       s.model,
		Temperature: openai.Float(0.2),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("summary completion for page %d failed: %w", page.PageNumber, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	summaries, err := ParseResponse(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", page.PageNumber, err)
	}

	s.logger.Debug("Summarized page", "page", page.PageNumber, "diagrams", len(summaries))
	return summaries, nil
}

// ParseResponse decodes the model's JSON output. An empty summaries list
// is valid.
func ParseResponse(content string) ([]ArchitectureSummary, error) {
	var parsed summaryResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	for i, s := range parsed.Summaries {
		if s.Name == "" {
			return nil, fmt.Errorf("%w: summary %d has no name", ErrMalformedResponse, i)
		}
	}
	return parsed.Summaries, nil
}
