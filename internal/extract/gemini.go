// Package extract implements the structured-extraction capability on top of
// the Vertex AI Gemini client.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/pdfreportflow/internal/gcp"
	"github.com/Lllllllleong/pdfreportflow/internal/workflow"
)

// GeminiExtractor asks the pre-configured extractor model for the structured
// contents of a stored PDF.
type GeminiExtractor struct {
	vertex *gcp.VertexClient
}

// NewGeminiExtractor returns an extractor backed by the given Vertex client.
func NewGeminiExtractor(vertex *gcp.VertexClient) *GeminiExtractor {
	return &GeminiExtractor{vertex: vertex}
}

// ExtractStructured calls Gemini against the PDF behind gcsURI and returns
// the decoded payload. The model is schema-forced to JSON but the result is
// still untrusted: a response that fails to decode is returned as its raw
// text so the normalizer can mine it, and only transport/model errors fail
// the call.
func (e *GeminiExtractor) ExtractStructured(ctx context.Context, gcsURI string) (any, error) {
	if e.vertex == nil || e.vertex.ExtractorModel == nil {
		return nil, fmt.Errorf("%w: vertex client not initialized", workflow.ErrDependencyUnavailable)
	}

	logCtx := slog.With("gcsUri", gcsURI)
	logCtx.Info("Starting Gemini extraction.")

	filePart := genai.FileData{
		MIMEType: "application/pdf",
		FileURI:  gcsURI,
	}
	prompt := genai.Text(gcp.ExtractorUserPrompt)

	resp, err := e.vertex.ExtractorModel.GenerateContent(ctx, filePart, prompt)
	if err != nil {
		logCtx.Error("Call to Vertex AI for extraction failed", "error", err)
		return nil, fmt.Errorf("%w: failed to generate content from gemini: %v", workflow.ErrExtraction, err)
	}
	if resp.UsageMetadata != nil {
		logCtx.Info("Gemini extraction token usage.",
			"promptTokens", resp.UsageMetadata.PromptTokenCount,
			"completionTokens", resp.UsageMetadata.CandidatesTokenCount,
			"totalTokens", resp.UsageMetadata.TotalTokenCount)
	}

	text := extractJSONContent(resp)
	if text == "" {
		return nil, fmt.Errorf("%w: gemini returned an empty response", workflow.ErrExtraction)
	}

	var payload any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		logCtx.Warn("Gemini response is not valid JSON; passing raw text to the normalizer.", "error", err)
		return text, nil
	}
	logCtx.Info("Gemini extraction successful.")
	return payload, nil
}

// extractJSONContent robustly gets the raw text content from the model response.
func extractJSONContent(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	// Clean potential markdown fences just in case.
	clean := strings.TrimSpace(sb.String())
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	return strings.TrimSpace(clean)
}
