package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// --- Extractor Model Prompts ---
const ExtractorSystemPrompt = "You are a document data extraction tool. Your task is to extract ALL information presented in a PDF document into a structured JSON object. Accuracy and completeness are of utmost importance."
const ExtractorUserPrompt = `Analyze the provided PDF document and extract ALL information presented.

Follow these instructions precisely:

- Extract all key-value pairs found in the document into "key_value_pairs".
- Group coherent blocks of text under meaningful section titles in "text_sections".
- Identify all tables. For each table, provide an optional "table_title", a "headers" list, and a "rows" list where each row is a list of cell values as strings.
- Record inferred document metadata (title, page count) in "metadata".
- Ensure the output is a single valid JSON object. Do not include any text before or after it.`

// extractionModel is the model confirmed against the structured-output
// response schema below.
const extractionModel = "gemini-2.0-flash-001"

// VertexClient holds the pre-configured generative models for our app.
type VertexClient struct {
	ExtractorModel *genai.GenerativeModel
	baseClient     *genai.Client
}

// NewVertexClient creates a new client holding all necessary models.
func NewVertexClient(ctx context.Context, projectID, region string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	// --- Configure the extractor model ---
	extractorModel := baseClient.GenerativeModel(extractionModel)
	extractorModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ExtractorSystemPrompt)},
	}
	extractorModel.GenerationConfig = genai.GenerationConfig{
		// Force JSON output shaped like the canonical document. The payload
		// is still treated as untrusted downstream; the schema only raises
		// the odds of getting well-formed data back.
		ResponseMIMEType: "application/json",
		ResponseSchema:   extractionResponseSchema(),
		Temperature:      genai.Ptr[float32](0.2),
		TopP:             genai.Ptr[float32](0.8),
		MaxOutputTokens:  genai.Ptr[int32](8192),
	}
	extractorModel.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	return &VertexClient{
		ExtractorModel: extractorModel,
		baseClient:     baseClient,
	}, nil
}

// extractionResponseSchema mirrors the CanonicalDocument shape. Only
// "tables" is required; every other field may be absent and is repaired by
// the normalizer.
func extractionResponseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"metadata": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"document_title": {Type: genai.TypeString},
					"page_count":     {Type: genai.TypeInteger},
				},
			},
			"key_value_pairs": {Type: genai.TypeObject},
			"text_sections":   {Type: genai.TypeObject},
			"tables": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"table_title": {Type: genai.TypeString},
						"headers":     {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
						"rows": {
							Type:  genai.TypeArray,
							Items: &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
						},
					},
					Required: []string{"headers", "rows"},
				},
			},
		},
		Required: []string{"tables"},
	}
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
