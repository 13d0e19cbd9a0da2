package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/bobarin/reels/internal/models"
)

const defaultOpenAIModel = "gpt-4o-mini"

type OpenAIService struct {
	client *openai.Client
	model  string
}

func NewOpenAIService(apiKey string) *OpenAIService {
	return &OpenAIService{
		client: openai.NewClient(apiKey),
		model:  defaultOpenAIModel,
	}
}

// NewOpenAIServiceWithConfig allows a custom base URL (proxies, tests).
func NewOpenAIServiceWithConfig(cfg openai.ClientConfig, model string) *OpenAIService {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIService{client: openai.NewClientWithConfig(cfg), model: model}
}

// AnalyzeScript splits a script into a timed scene plan using structured
// output.
func (s *OpenAIService) AnalyzeScript(ctx context.Context, script string, tone models.Tone) (*models.SceneTimeline, error) {
	if strings.TrimSpace(script) == "" {
		return nil, fmt.Errorf("script is empty")
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: buildAnalysisSystemPrompt(tone),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildAnalysisUserPrompt(script),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:        "scene_timeline",
				Description: "Timed scene plan for a vertical reel",
				Schema:      timelineSchema,
				Strict:      true,
			},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from openai")
	}

	raw := resp.Choices[0].Message.Content
	if raw == "" {
		return nil, fmt.Errorf("openai returned empty response (finish reason: %s)", resp.Choices[0].FinishReason)
	}
	return parseTimeline("OpenAI", raw)
}

// WordTimestamp is a single spoken word with its timing from Whisper.
type WordTimestamp struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"` // seconds
	End   float64 `json:"end"`   // seconds
}

// TranscribeFile sends an audio file to Whisper and returns word-level
// timestamps.
func (s *OpenAIService) TranscribeFile(ctx context.Context, audioPath, language string) ([]WordTimestamp, error) {
	if language == "" {
		language = "en"
	}

	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: language,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("whisper transcription failed: %w", err)
	}
	if len(resp.Words) == 0 {
		return nil, fmt.Errorf("whisper returned no word timestamps (text: %q)", resp.Text)
	}

	words := make([]WordTimestamp, len(resp.Words))
	for i, w := range resp.Words {
		words[i] = WordTimestamp{
			Word:  strings.TrimSpace(w.Word),
			Start: w.Start,
			End:   w.End,
		}
	}

	log.Printf("[Whisper] Transcribed %d words (duration: %.1fs, text: %q)",
		len(words), resp.Duration, truncateString(resp.Text, 80))
	return words, nil
}
