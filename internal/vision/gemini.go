package vision

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/slipvault/slipvault/internal/config"
	"github.com/slipvault/slipvault/internal/extraction"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const analyzePrompt = `Analyze this receipt/slip and extract the following information in JSON format:
- place: The name of the merchant or place.
- date: The date of the transaction (YYYY-MM-DD format if possible).
- amountAfterTax: The total amount paid (number).
- currency: The currency symbol (e.g. R, $, €).
- summary: A brief summary of the items purchased (max 200 chars).
- tags: A list of categories for this expense (e.g. Food, Transport, Groceries, Utilities, Shopping, Health, Entertainment, Travel).

Return ONLY the JSON object.`

// Gemini implements Analyzer using Google Gemini.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	log    *zap.Logger
}

func NewGemini(apiKey, modelName string, log *zap.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.GenerationConfig.ResponseMIMEType = "application/json"

	return &Gemini{
		client: client,
		model:  model,
		log:    log.Named("vision.gemini"),
	}, nil
}

// Analyze sends the image to Gemini and maps the JSON response onto
// extraction fields. Every failure surfaces as *ExtractionError with the
// underlying reason.
func (g *Gemini) Analyze(ctx context.Context, image []byte, mimeType string) (extraction.Fields, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	parts := []genai.Part{
		genai.Blob{MIMEType: mimeType, Data: image},
		genai.Text(analyzePrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		g.log.Error("gemini request failed", zap.String("mime_type", mimeType), zap.Int("image_size", len(image)), zap.Error(err))
		return extraction.Fields{}, failure(err.Error(), err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return extraction.Fields{}, failure("empty response from model", nil)
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	fields, err := parseFields(text.String())
	if err != nil {
		g.log.Error("gemini response unparseable", zap.Error(err))
		return extraction.Fields{}, failure(err.Error(), err)
	}
	return fields, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

// disabled is used when no API key is configured; callers fall back to
// manual entry or the heuristic extractor.
type disabled struct{}

func (disabled) Analyze(context.Context, []byte, string) (extraction.Fields, error) {
	return extraction.Fields{}, failure("vision analyzer is not configured", nil)
}

func (disabled) Close() error { return nil }

func provideAnalyzer(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Analyzer, error) {
	if cfg.GeminiAPIKey == "" {
		log.Warn("GEMINI_API_KEY not set, structured extraction disabled")
		return disabled{}, nil
	}

	gemini, err := NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = ctx
			return gemini.Close()
		},
	})
	return gemini, nil
}

// Module wires the vision analyzer.
var Module = fx.Module("vision",
	fx.Provide(provideAnalyzer),
)
