package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/bobarin/reels/internal/models"
)

// TTSResponse is the common response type from any TTS provider.
type TTSResponse struct {
	AudioData  []byte
	DurationMs int    // estimate; the pipeline probes the real duration
	Format     string // "mp3", "wav", etc.
}

// TTSService is implemented by every text-to-speech provider. An empty
// voiceID selects the provider's configured default voice.
type TTSService interface {
	Name() string
	GenerateSpeech(ctx context.Context, text, voiceID string, tone models.Tone) (*TTSResponse, error)
}

// VoiceService tries each provider in order and writes the first
// successful result to disk.
type VoiceService struct {
	providers []TTSService
}

func NewVoiceService(providers ...TTSService) *VoiceService {
	var ps []TTSService
	for _, p := range providers {
		if p != nil {
			ps = append(ps, p)
		}
	}
	return &VoiceService{providers: ps}
}

// SynthesizeToFile renders the script to outputPath. A voiceID is only
// meaningful to the first provider; fallbacks use their own default voice.
func (v *VoiceService) SynthesizeToFile(ctx context.Context, text, voiceID string, tone models.Tone, outputPath string) error {
	if len(v.providers) == 0 {
		return fmt.Errorf("no voice provider configured")
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("voiceover text is empty")
	}

	var errs []error
	for i, p := range v.providers {
		id := voiceID
		if i > 0 {
			id = ""
		}
		resp, err := p.GenerateSpeech(ctx, text, id, tone)
		if err != nil {
			log.Printf("[TTS] %s failed: %v", p.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if err := os.WriteFile(outputPath, resp.AudioData, 0644); err != nil {
			return fmt.Errorf("failed to write voiceover: %w", err)
		}
		log.Printf("[TTS] Voiceover from %s: %d bytes, ~%.1fs", p.Name(), len(resp.AudioData), float64(resp.DurationMs)/1000)
		return nil
	}
	return fmt.Errorf("voice synthesis failed: %w", errors.Join(errs...))
}

// toneDelivery maps a tone to speaking speed and an emotion hint.
func toneDelivery(tone models.Tone) (speed float64, emotion string) {
	switch tone {
	case models.ToneEnergetic:
		return 1.05, "excited"
	case models.ToneCalm:
		return 0.85, "calm"
	case models.ToneDramatic:
		return 0.9, "intense"
	case models.ToneInspirational:
		return 0.92, "confident"
	case models.ToneHumorous:
		return 1.0, "happy"
	default:
		return 0.95, "neutral"
	}
}

// estimateAudioDuration estimates duration from word count at a narration
// pace of ~140 wpm.
func estimateAudioDuration(text string, speed float64) int {
	words := len(strings.Fields(text))
	if speed <= 0 {
		speed = 1
	}
	minutes := float64(words) / (140.0 * speed)
	return int(minutes * 60 * 1000)
}
