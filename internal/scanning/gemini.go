package scanning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/zombor/invoice-intake/internal/invoice"
)

// Gemini implements the Extractor interface using Google Gemini
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a new Gemini Extractor instance
func NewGemini(ctx context.Context, apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)

	return &Gemini{
		client: client,
		model:  model,
	}, nil
}

// Extract transcribes the document pages with Gemini
func (g *Gemini) Extract(ctx context.Context, doc invoice.RawDocument) (invoice.ExtractedText, error) {
	pages, err := renderPages(doc)
	if err != nil {
		return invoice.ExtractedText{}, Permanent("gemini render", err)
	}

	// genai.ImageData expects just the format suffix, everything is PNG after rendering
	parts := make([]genai.Part, 0, len(pages)+1)
	for _, page := range pages {
		parts = append(parts, genai.ImageData("png", page))
	}
	parts = append(parts, genai.Text(transcribePrompt))

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return invoice.ExtractedText{}, classifyGeminiError(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return invoice.ExtractedText{}, Transient("gemini generate", fmt.Errorf("no response from gemini"))
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	text := cleanTranscript(responseText.String())
	return invoice.NewExtractedText(text, heuristicConfidence(text)), nil
}

func classifyGeminiError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return statusError("gemini generate", gerr.Code, err)
	}
	return Transient("gemini generate", err)
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
