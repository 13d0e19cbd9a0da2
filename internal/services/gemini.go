package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"

	"github.com/bobarin/reels/internal/models"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiService is the alternative script analyzer, selected with
// ANALYSIS_PROVIDER=gemini.
type GeminiService struct {
	apiKey string
	model  string
}

func NewGeminiService(apiKey string) *GeminiService {
	return &GeminiService{apiKey: apiKey, model: defaultGeminiModel}
}

func (s *GeminiService) AnalyzeScript(ctx context.Context, script string, tone models.Tone) (*models.SceneTimeline, error) {
	if strings.TrimSpace(script) == "" {
		return nil, fmt.Errorf("script is empty")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	schema, err := json.Marshal(timelineSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to encode timeline schema: %w", err)
	}
	system := buildAnalysisSystemPrompt(tone) + "\n\nRespond with JSON matching this schema:\n" + string(schema)

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0.7),
	}

	log.Printf("[Gemini] Analyzing script (model=%s, scriptLen=%d, tone=%s)", s.model, len(script), tone)

	resp, err := client.Models.GenerateContent(ctx, s.model, genai.Text(buildAnalysisUserPrompt(script)), config)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	raw := strings.TrimSpace(resp.Text())
	if raw == "" {
		return nil, fmt.Errorf("gemini returned empty response")
	}
	// some models still wrap JSON in a fence
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	return parseTimeline("Gemini", strings.TrimSpace(raw))
}
