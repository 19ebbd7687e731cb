// Package extraction correlates section headings with OCR text to pull
// per-diagram service lists out of a document.
package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"golang.org/x/time/rate"
)

const (
	// DefaultMaxChars caps the OCR text sent to the model, using the
	// rough 4-characters-per-token estimate.
	DefaultMaxChars = 64000

	systemPrompt = `You are provided with the OCR content and section headings of a PDF containing software architecture diagrams. Use the section headings to identify the beginning of each diagram's content within the full OCR text: a diagram-opening heading is always followed by that diagram's content, which runs until the next heading. Not all headings open diagrams; some introduce supplemental text and must produce no entry. Extract service names only from the content inside each diagram, never from surrounding narrative used to describe the workflow. Split the services between platform-native services and external services. The cloud platform itself is not a service; never list it.

Respond with JSON: {"architectures": [{"name": "...", "platform_services": ["..."], "external_services": ["..."]}]}. List the architectures in the order their headings appear.`
)

var (
	ErrEmptyDocument     = errors.New("no document text to extract from")
	ErrMalformedResponse = errors.New("extraction model returned malformed output")
)

// ArchitectureRecord is one diagram's extracted service lists.
type ArchitectureRecord struct {
	Name             string   `json:"name"`
	PlatformServices []string `json:"platform_services"`
	ExternalServices []string `json:"external_services"`
}

// extractionResponse is the JSON envelope the model is instructed to emit.
type extractionResponse struct {
	Architectures []ArchitectureRecord `json:"architectures"`
}

// Extractor drives the text-generation model for service extraction.
type Extractor struct {
	client   *openai.Client
	limiter  *rate.Limiter
	model    openai.ChatModel
	maxChars int
	logger   *slog.Logger
}

// NewExtractor creates an extractor around an OpenAI client. The limiter
// bounds request rate across concurrent documents and may be shared with
// the summarizer.
func NewExtractor(client *openai.Client, limiter *rate.Limiter, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		client:   client,
		limiter:  limiter,
		model:    openai.ChatModelGPT4o,
		maxChars: DefaultMaxChars,
		logger:   logger,
	}
}

// ExtractArchitectures identifies every diagram in the document and its
// platform/external service lists. Record order follows the model's list
// order, which the prompt pins to heading order; the assembler's
// positional join with crops depends on it.
func (e *Extractor) ExtractArchitectures(ctx context.Context, fullText, headings string) ([]ArchitectureRecord, error) {
	if fullText == "" {
		return nil, ErrEmptyDocument
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	userMessage := fmt.Sprintf("Section headings of the PDF:\n%s\n\nFull OCR content:\n%s",
		headings, e.truncate(fullText))

	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userMessage),
		},
		Model:       e.model,
		Temperature: openai.Float(0.2),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("extraction completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	return ParseResponse(resp.Choices[0].Message.Content)
}

// ParseResponse decodes and validates the model's JSON output.
func ParseResponse(content string) ([]ArchitectureRecord, error) {
	var parsed extractionResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	for i, rec := range parsed.Architectures {
		if rec.Name == "" {
			return nil, fmt.Errorf("%w: record %d has no name", ErrMalformedResponse, i)
		}
	}
	return parsed.Architectures, nil
}

// truncate bounds the OCR text so oversized documents cannot blow the
// model's context window.
func (e *Extractor) truncate(text string) string {
	if len(text) <= e.maxChars {
		return text
	}
	e.logger.Warn("Truncating OCR content for extraction", "from", len(text), "to", e.maxChars)
	return text[:e.maxChars]
}
