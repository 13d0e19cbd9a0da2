package services

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/samber/lo"

	"github.com/bobarin/reels/internal/models"
)

// Bounds the analysis prompt asks for. The pipeline rescales whatever comes
// back, so these are only checked loosely here.
const (
	minScenes        = 7
	maxScenes        = 10
	minSceneSec      = 2.0
	maxSceneSec      = 5.0
	targetTotalSec   = 30
	defaultSceneSec  = 3.5
	defaultTransSec  = 0.5
	maxAnalysisLog   = 2000
	analysisMaxScene = 14
)

// sceneAnalysis is the structured-output shape requested from the model.
type sceneAnalysis struct {
	Description       string   `json:"description" jsonschema_description:"What the viewer sees, one sentence"`
	Duration          float64  `json:"duration" jsonschema_description:"Seconds, between 2 and 5"`
	PrimaryKeywords   []string `json:"primary_keywords" jsonschema_description:"2-4 concrete stock footage search terms"`
	SecondaryKeywords []string `json:"secondary_keywords" jsonschema_description:"2-4 broader alternative search terms"`
	Mood              string   `json:"mood" jsonschema_description:"One or two words"`
	VisualType        string   `json:"visual_type" jsonschema:"enum=b-roll,enum=static,enum=talking,enum=overlay"`
	Transition        string   `json:"transition" jsonschema:"enum=fade,enum=dissolve,enum=wipe,enum=slide,enum=zoom"`
	Effect            string   `json:"effect" jsonschema:"enum=none,enum=zoom_in,enum=zoom_out,enum=pan_left,enum=pan_right,enum=ken_burns,enum=color,enum=vignette"`
	EffectIntensity   float64  `json:"effect_intensity" jsonschema_description:"0 to 1"`
}

type timelineAnalysis struct {
	Scenes        []sceneAnalysis `json:"scenes"`
	Mood          string          `json:"mood" jsonschema_description:"Overall mood of the reel"`
	Theme         string          `json:"theme" jsonschema_description:"Short theme summary"`
	MusicKeywords []string        `json:"music_keywords" jsonschema_description:"2-4 tags describing fitting background music"`
}

// GenerateSchema reflects a strict JSON schema for structured outputs.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

var timelineSchema = GenerateSchema[timelineAnalysis]()

func buildAnalysisSystemPrompt(tone models.Tone) string {
	return fmt.Sprintf(`You are a short-form video editor planning a vertical (9:16) reel from a voiceover script.

TONE: %s
Pick moods, transitions and effects that fit a "%s" delivery.

Split the script into %d-%d consecutive scenes that follow the narration in order.
Each scene lasts %.0f-%.0f seconds; the total should be about %d seconds.

For every scene:
- description: what is on screen, concrete and filmable.
- primary_keywords: specific stock footage search terms ("barista pouring latte", not "coffee culture").
- secondary_keywords: broader fallbacks for when the specific search finds nothing.
- visual_type: b-roll for footage, static for a still photo, talking for people speaking, overlay for abstract backgrounds.
- transition: how this scene hands over to the next one.
- effect: motion or colour treatment. Motion effects work best on static scenes.
- effect_intensity: 0 to 1; keep it under 0.6 unless the tone is energetic.

Also return the overall mood, a short theme and music_keywords for picking background music.`,
		tone, tone, minScenes, maxScenes, minSceneSec, maxSceneSec, targetTotalSec)
}

func buildAnalysisUserPrompt(script string) string {
	return fmt.Sprintf("Plan the scenes for this script:\n\n%s", strings.TrimSpace(script))
}

// parseTimeline decodes a model response into a SceneTimeline, filling
// defaults for anything the model left out and numbering scenes in order.
func parseTimeline(provider, raw string) (*models.SceneTimeline, error) {
	var analysis timelineAnalysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		log.Printf("[%s analysis] parse failed: %v", provider, err)
		log.Printf("[%s analysis] raw response: %s", provider, truncateString(raw, maxAnalysisLog))
		return nil, fmt.Errorf("failed to parse scene timeline: %w", err)
	}
	if len(analysis.Scenes) == 0 {
		log.Printf("[%s analysis] no scenes (mood=%q theme=%q)", provider, analysis.Mood, analysis.Theme)
		return nil, fmt.Errorf("scene timeline has no scenes")
	}
	if len(analysis.Scenes) > analysisMaxScene {
		return nil, fmt.Errorf("scene timeline has %d scenes, expected at most %d", len(analysis.Scenes), analysisMaxScene)
	}

	timeline := &models.SceneTimeline{
		Mood:          strings.TrimSpace(analysis.Mood),
		Theme:         strings.TrimSpace(analysis.Theme),
		MusicKeywords: cleanKeywords(analysis.MusicKeywords),
	}

	var start float64
	for i, sa := range analysis.Scenes {
		scene := models.SceneDescriptor{
			ID:                fmt.Sprintf("scene-%d", i+1),
			StartTime:         start,
			Duration:          sa.Duration,
			Description:       strings.TrimSpace(sa.Description),
			PrimaryKeywords:   cleanKeywords(sa.PrimaryKeywords),
			SecondaryKeywords: cleanKeywords(sa.SecondaryKeywords),
			Mood:              strings.TrimSpace(sa.Mood),
			VisualType:        models.VisualType(sa.VisualType),
			Transition:        models.Transition{Type: models.TransitionType(sa.Transition), DurationSec: defaultTransSec},
			Effect:            models.Effect{Type: models.EffectType(sa.Effect)},
		}
		if scene.Duration <= 0 {
			scene.Duration = defaultSceneSec
		}
		if scene.Mood == "" {
			scene.Mood = timeline.Mood
		}
		if !validVisualType(scene.VisualType) {
			scene.VisualType = models.VisualTypeBRoll
		}
		if !validTransition(scene.Transition.Type) {
			scene.Transition.Type = models.TransitionFade
		}
		if !validEffect(scene.Effect.Type) {
			scene.Effect.Type = models.EffectNone
		}
		if sa.EffectIntensity > 0 {
			intensity := sa.EffectIntensity
			scene.Effect.Intensity = &intensity
		}
		if len(scene.PrimaryKeywords) == 0 && scene.Description == "" {
			return nil, fmt.Errorf("scene %d has neither keywords nor description", i+1)
		}

		timeline.Scenes = append(timeline.Scenes, scene)
		start += scene.Duration
	}

	if n := len(timeline.Scenes); n < minScenes || n > maxScenes || start < 20 || start > 40 {
		log.Printf("[%s analysis] timeline outside requested bounds: %d scenes, %.1fs", provider, n, start)
	}
	log.Printf("[%s analysis] %d scenes, %.1fs planned, mood=%q theme=%q", provider, len(timeline.Scenes), start, timeline.Mood, timeline.Theme)
	return timeline, nil
}

func cleanKeywords(in []string) []string {
	out := lo.Map(in, func(s string, _ int) string { return strings.ToLower(strings.TrimSpace(s)) })
	return lo.Uniq(lo.Compact(out))
}

func validVisualType(v models.VisualType) bool {
	switch v {
	case models.VisualTypeBRoll, models.VisualTypeStatic, models.VisualTypeTalking, models.VisualTypeOverlay:
		return true
	}
	return false
}

func validTransition(t models.TransitionType) bool {
	switch t {
	case models.TransitionFade, models.TransitionDissolve, models.TransitionWipe, models.TransitionSlide, models.TransitionZoom:
		return true
	}
	return false
}

func validEffect(e models.EffectType) bool {
	switch e {
	case models.EffectNone, models.EffectZoomIn, models.EffectZoomOut, models.EffectPanLeft, models.EffectPanRight,
		models.EffectKenBurns, models.EffectColor, models.EffectVignette:
		return true
	}
	return false
}

// truncateString truncates a string to maxLen and appends "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
