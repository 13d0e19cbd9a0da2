package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"strings"

	"github.com/bobarin/reels/internal/models"
)

// Word-by-word highlighted captions in ASS format, sized for the 1080x1920
// canvas. Words appear in short chunks with the spoken word highlighted.

const (
	wordsPerChunk    = 4
	subtitleFontName = "Noto Sans"

	// &HAABBGGRR
	assColorWhite     = "&H00FFFFFF"
	assColorBlack     = "&H00000000"
	assColorSemiBlack = "&H80000000"
)

// CaptionStyle is the per-tone look of the caption track.
type CaptionStyle struct {
	FontSize       int
	Highlight      string // ASS colour
	Outline        int
	HighlightWidth int
	MarginV        int
	Uppercase      bool
}

var captionStyles = map[models.Tone]CaptionStyle{
	models.ToneEnergetic:     {FontSize: 68, Highlight: "&H0000D7FF", Outline: 4, HighlightWidth: 9, MarginV: 260, Uppercase: true}, // gold
	models.ToneCalm:          {FontSize: 56, Highlight: "&H00D8B27A", Outline: 3, HighlightWidth: 6, MarginV: 300},                  // soft blue
	models.ToneDramatic:      {FontSize: 64, Highlight: "&H001E1ED2", Outline: 4, HighlightWidth: 8, MarginV: 280, Uppercase: true}, // red
	models.ToneEducational:   {FontSize: 58, Highlight: "&H0050AF4C", Outline: 3, HighlightWidth: 7, MarginV: 300},                  // green
	models.ToneInspirational: {FontSize: 62, Highlight: "&H00CC3299", Outline: 3, HighlightWidth: 8, MarginV: 280, Uppercase: true}, // purple
	models.ToneHumorous:      {FontSize: 66, Highlight: "&H0000A5FF", Outline: 4, HighlightWidth: 9, MarginV: 260, Uppercase: true}, // orange
}

// StyleForTone falls back to the inspirational look for unknown tones.
func StyleForTone(tone models.Tone) CaptionStyle {
	if s, ok := captionStyles[tone]; ok {
		return s
	}
	return captionStyles[models.ToneInspirational]
}

// Transcriber returns word timings for an audio file.
type Transcriber interface {
	TranscribeFile(ctx context.Context, audioPath, language string) ([]WordTimestamp, error)
}

// CaptionService transcribes the voiceover and writes a styled ASS track.
type CaptionService struct {
	transcriber Transcriber
	language    string
}

func NewCaptionService(t Transcriber, language string) *CaptionService {
	return &CaptionService{transcriber: t, language: language}
}

func (c *CaptionService) GenerateCaptions(ctx context.Context, audioPath string, tone models.Tone, outputPath string) error {
	words, err := c.transcriber.TranscribeFile(ctx, audioPath, c.language)
	if err != nil {
		return err
	}
	if err := GenerateASSSubtitles(words, StyleForTone(tone), outputPath); err != nil {
		return err
	}
	log.Printf("[Captions] Wrote %d words for tone %s", len(words), tone)
	return nil
}

// GenerateASSSubtitles writes words as highlighted chunks to outputPath.
func GenerateASSSubtitles(words []WordTimestamp, style CaptionStyle, outputPath string) error {
	if len(words) == 0 {
		return fmt.Errorf("no words to generate subtitles from")
	}
	if err := os.WriteFile(outputPath, []byte(BuildASS(words, style)), 0644); err != nil {
		return fmt.Errorf("failed to write ASS subtitle file: %w", err)
	}
	return nil
}

// BuildASS renders the full ASS document.
func BuildASS(words []WordTimestamp, style CaptionStyle) string {
	var sb strings.Builder

	sb.WriteString("[Script Info]\n")
	sb.WriteString("ScriptType: v4.00+\n")
	sb.WriteString("PlayResX: 1080\n")
	sb.WriteString("PlayResY: 1920\n")
	sb.WriteString("WrapStyle: 0\n")
	sb.WriteString("ScaledBorderAndShadow: yes\n\n")

	sb.WriteString("[V4+ Styles]\n")
	sb.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(&sb, "Style: Default,%s,%d,%s,%s,%s,%s,-1,0,0,0,100,100,1,0,1,%d,0,2,40,40,%d,1\n\n",
		subtitleFontName, style.FontSize,
		assColorWhite, assColorWhite, assColorBlack, assColorSemiBlack,
		style.Outline, style.MarginV)

	sb.WriteString("[Events]\n")
	sb.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")

	for _, chunk := range chunkWords(words, wordsPerChunk) {
		for i, word := range chunk {
			end := word.End
			if i < len(chunk)-1 {
				// hold until the next word starts so the chunk never flickers
				end = chunk[i+1].Start
			}
			if end <= word.Start {
				continue
			}
			fmt.Fprintf(&sb, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
				formatASSTime(word.Start), formatASSTime(end), highlightedChunk(chunk, i, style))
		}
	}
	return sb.String()
}

// chunkWords groups words into chunks, also breaking after sentence ends.
func chunkWords(words []WordTimestamp, chunkSize int) [][]WordTimestamp {
	var chunks [][]WordTimestamp
	var current []WordTimestamp

	for _, word := range words {
		current = append(current, word)
		isSentenceEnd := strings.ContainsAny(word.Word, ".!?")
		if len(current) >= chunkSize || (isSentenceEnd && len(current) >= 2) {
			chunks = append(chunks, current)
			current = nil
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// highlightedChunk renders a chunk with the word at active highlighted,
// e.g. `THE {\3c&H00CC3299&\bord8}HISTORY{\r} OF COFFEE`.
func highlightedChunk(chunk []WordTimestamp, active int, style CaptionStyle) string {
	var parts []string
	for i, word := range chunk {
		w := strings.TrimSpace(word.Word)
		if style.Uppercase {
			w = strings.ToUpper(w)
		}
		w = escapeASSText(w)
		if w == "" {
			continue
		}
		if i == active {
			parts = append(parts, fmt.Sprintf("{\\3c%s&\\bord%d}%s{\\r}", style.Highlight, style.HighlightWidth, w))
		} else {
			parts = append(parts, w)
		}
	}
	return strings.Join(parts, " ")
}

// escapeASSText keeps transcript text from opening override blocks.
func escapeASSText(s string) string {
	return strings.NewReplacer("{", "(", "}", ")", "\\", "/").Replace(s)
}

// formatASSTime converts seconds to H:MM:SS.CC.
func formatASSTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	cs := int(math.Round(seconds * 100))
	hours := cs / 360000
	minutes := (cs % 360000) / 6000
	secs := (cs % 6000) / 100
	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, secs, cs%100)
}
