package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Enums
type Tone string

const (
	ToneEnergetic     Tone = "energetic"
	ToneCalm          Tone = "calm"
	ToneDramatic      Tone = "dramatic"
	ToneEducational   Tone = "educational"
	ToneInspirational Tone = "inspirational"
	ToneHumorous      Tone = "humorous"
)

var validTones = map[Tone]bool{
	ToneEnergetic:     true,
	ToneCalm:          true,
	ToneDramatic:      true,
	ToneEducational:   true,
	ToneInspirational: true,
	ToneHumorous:      true,
}

func (t Tone) Valid() bool {
	return validTones[t]
}

type VisualType string

const (
	VisualTypeBRoll   VisualType = "b-roll"
	VisualTypeStatic  VisualType = "static"
	VisualTypeTalking VisualType = "talking"
	VisualTypeOverlay VisualType = "overlay"
)

type TransitionType string

const (
	TransitionFade     TransitionType = "fade"
	TransitionDissolve TransitionType = "dissolve"
	TransitionWipe     TransitionType = "wipe"
	TransitionSlide    TransitionType = "slide"
	TransitionZoom     TransitionType = "zoom"
)

type EffectType string

const (
	EffectNone     EffectType = "none"
	EffectZoomIn   EffectType = "zoom_in"
	EffectZoomOut  EffectType = "zoom_out"
	EffectPanLeft  EffectType = "pan_left"
	EffectPanRight EffectType = "pan_right"
	EffectKenBurns EffectType = "ken_burns"
	EffectColor    EffectType = "color"
	EffectVignette EffectType = "vignette"
)

type MediaKind string

const (
	MediaKindVideo MediaKind = "video"
	MediaKindImage MediaKind = "image"
)

// Scene timeline

type Transition struct {
	Type        TransitionType `json:"type"`
	DurationSec float64        `json:"duration_sec"`
}

type Effect struct {
	Type        EffectType `json:"type"`
	Intensity   *float64   `json:"intensity,omitempty"`    // 0..1, defaults per effect
	DurationSec *float64   `json:"duration_sec,omitempty"` // nil = whole scene
}

// SceneDescriptor is one planned scene as returned by script analysis.
// StartTime and Duration are the planned values; the reconciled schedule
// lives in ScheduledScene.
type SceneDescriptor struct {
	ID                string     `json:"id"`
	StartTime         float64    `json:"start_time"`
	Duration          float64    `json:"duration"`
	Description       string     `json:"description"`
	PrimaryKeywords   []string   `json:"primary_keywords"`
	SecondaryKeywords []string   `json:"secondary_keywords"`
	Mood              string     `json:"mood"`
	VisualType        VisualType `json:"visual_type"`
	Transition        Transition `json:"transition"`
	Effect            Effect     `json:"effect"`
}

// SceneTimeline is the output of the script analysis service.
type SceneTimeline struct {
	Scenes        []SceneDescriptor `json:"scenes"`
	Mood          string            `json:"mood"`
	Theme         string            `json:"theme"`
	MusicKeywords []string          `json:"music_keywords,omitempty"`
}

// PlannedDuration is the sum of the planned scene durations.
func (tl SceneTimeline) PlannedDuration() float64 {
	var total float64
	for _, s := range tl.Scenes {
		total += s.Duration
	}
	return total
}

func (tl SceneTimeline) Value() (driver.Value, error) {
	return json.Marshal(tl)
}

func (tl *SceneTimeline) Scan(value interface{}) error {
	if value == nil {
		*tl = SceneTimeline{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unsupported timeline column type %T", value)
	}
	return json.Unmarshal(bytes, tl)
}

// ScheduledScene binds a descriptor to its reconciled position on the
// voiceover timeline. Everything downstream of reconciliation reads
// StartTime and Duration from here, never from Scene.
type ScheduledScene struct {
	Index     int             `json:"index"`
	Scene     SceneDescriptor `json:"scene"`
	StartTime float64         `json:"start_time"`
	Duration  float64         `json:"duration"`
}

func (s ScheduledScene) ID() string {
	if s.Scene.ID != "" {
		return s.Scene.ID
	}
	return fmt.Sprintf("scene-%d", s.Index)
}

// Media

// CropRect is a crop window in source pixels.
type CropRect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Fits reports whether the window lies inside a width x height frame.
func (c CropRect) Fits(width, height int) bool {
	return c.W > 0 && c.H > 0 && c.X >= 0 && c.Y >= 0 && c.X+c.W <= width && c.Y+c.H <= height
}

// CenterCropToPortrait returns the centered 9:16 window for a frame, or nil
// when the frame should be scaled and padded instead.
//
// Landscape frames keep full height and trim the width. Portrait frames
// taller than 9:16 keep full width and trim the height. Anything else
// (square, or portrait wider than 9:16) is left uncropped.
func CenterCropToPortrait(width, height int) *CropRect {
	if width <= 0 || height <= 0 {
		return nil
	}
	switch {
	case width > height:
		w := evenFloor(height * 9 / 16)
		if w <= 0 || w >= width {
			return nil
		}
		return &CropRect{X: (width - w) / 2, Y: 0, W: w, H: height}
	case width*16 < height*9:
		h := evenFloor(width * 16 / 9)
		if h <= 0 || h >= height {
			return nil
		}
		return &CropRect{X: 0, Y: (height - h) / 2, W: width, H: h}
	}
	return nil
}

func evenFloor(v int) int {
	return v - v%2
}

// MediaAsset is a stock visual bound to exactly one scene.
type MediaAsset struct {
	ID          string    `json:"id"` // provider asset id
	Provider    string    `json:"provider"`
	Kind        MediaKind `json:"kind"`
	SourceURL   string    `json:"source_url"`
	PageURL     string    `json:"page_url,omitempty"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Duration    float64   `json:"duration,omitempty"` // seconds, video only
	ByteSize    int64     `json:"byte_size,omitempty"`
	LocalPath   string    `json:"local_path,omitempty"`
	IsLandscape bool      `json:"is_landscape"`
	Crop        *CropRect `json:"crop,omitempty"`
	Query       string    `json:"query,omitempty"`
}

// RenderedClip is a normalized 1080x1920 segment for one scene.
type RenderedClip struct {
	Path     string         `json:"path"`
	Scene    ScheduledScene `json:"scene"`
	Width    int            `json:"width"`
	Height   int            `json:"height"`
	Duration float64        `json:"duration"`
}

// CompositeVideo is the silent, transition-chained video track.
type CompositeVideo struct {
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
}

// FinalVideo is the muxed deliverable.
type FinalVideo struct {
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
	HasVideo bool    `json:"has_video"`
	HasAudio bool    `json:"has_audio"`
}

// Jobs

type ReelJob struct {
	ID              uuid.UUID      `json:"id"`
	Status          ReelStatus     `json:"status"`
	Progress        float64        `json:"progress"`
	Script          string         `json:"script"`
	Tone            Tone           `json:"tone"`
	VoiceID         *string        `json:"voice_id,omitempty"`
	Timeline        *SceneTimeline `json:"timeline,omitempty"`
	VoiceoverPath   *string        `json:"voiceover_path,omitempty"`
	CaptionPath     *string        `json:"caption_path,omitempty"`
	MusicPath       *string        `json:"music_path,omitempty"`
	OutputPath      *string        `json:"output_path,omitempty"`
	OutputURL       *string        `json:"output_url,omitempty"`
	ErrorMessage    *string        `json:"error_message,omitempty"`
	CancelRequested bool           `json:"cancel_requested"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// DTOs for API requests and responses
type CreateReelRequest struct {
	Script  string  `json:"script"`
	Tone    Tone    `json:"tone"`
	VoiceID *string `json:"voice_id,omitempty"`
}

type CreateReelResponse struct {
	ReelID uuid.UUID  `json:"reel_id"`
	Status ReelStatus `json:"status"`
}

type ReelResponse struct {
	ReelJob
	DownloadURL *string `json:"download_url,omitempty"`
}

type ListReelsResponse struct {
	Reels  []ReelJob `json:"reels"`
	Total  int       `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}
