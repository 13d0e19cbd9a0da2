// Package app assembles the render pipeline from configuration. Both the API
// worker and the CLI build their orchestrator here.
package app

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/bobarin/reels/internal/config"
	"github.com/bobarin/reels/internal/media"
	"github.com/bobarin/reels/internal/pipeline"
	"github.com/bobarin/reels/internal/render"
	"github.com/bobarin/reels/internal/services"
	"github.com/bobarin/reels/internal/tempfiles"
)

const captionLanguage = "en"

// Pipeline is a wired orchestrator plus the toolkit it encodes with.
type Pipeline struct {
	Orchestrator *pipeline.Orchestrator
	FFmpeg       *services.FFmpegService
}

// Build wires every collaborator the configuration has keys for. Missing
// analysis, voice or caption keys leave that collaborator nil; the media
// providers are always required.
func Build(cfg *config.Config, sink pipeline.StatusSink, cancel pipeline.CancelSignal) (*Pipeline, error) {
	if err := cfg.ValidateMedia(); err != nil {
		return nil, err
	}

	ffmpegSvc := services.NewFFmpegService(cfg.MaxConcurrentEncodes)
	httpClient := &http.Client{}

	deps := pipeline.Deps{
		Analyzer:   analyzer(cfg),
		Voice:      voice(cfg),
		Renderer:   render.NewSceneRenderer(ffmpegSvc),
		Compositor: render.NewCompositor(ffmpegSvc),
		Mixer:      render.NewMixer(ffmpegSvc, MixConfig(cfg.Mix)),
		Prober:     ffmpegSvc,
		Sink:       sink,
		Cancel:     cancel,
	}

	if cfg.OpenAIKey != "" {
		deps.Captioner = services.NewCaptionService(services.NewOpenAIService(cfg.OpenAIKey), captionLanguage)
	}

	if cfg.MusicLibraryPath != "" {
		lib, err := services.LoadMusicLibrary(cfg.MusicLibraryPath, httpClient)
		if err != nil {
			return nil, err
		}
		deps.Music = lib
	} else {
		log.Println("No MUSIC_LIBRARY_PATH set, reels will be voice only")
	}

	acq := media.NewAcquirer(providers(cfg, httpClient), httpClient, ffmpegSvc, MediaConfig(cfg.Media))
	deps.Media = func(tracker *tempfiles.Tracker) pipeline.SceneFetcher {
		return acq.NewSession(tracker)
	}

	orch := pipeline.New(deps, pipeline.Options{
		TempDir:      cfg.TempDir,
		OutputDir:    cfg.OutputDir,
		SceneWorkers: cfg.SceneWorkers,

		TransitionOverlap: render.DefaultTransitionDuration,
	})
	return &Pipeline{Orchestrator: orch, FFmpeg: ffmpegSvc}, nil
}

func analyzer(cfg *config.Config) pipeline.ScriptAnalyzer {
	switch {
	case cfg.AnalysisProvider == "gemini" && cfg.GeminiKey != "":
		log.Println("Script analysis: Gemini")
		return services.NewGeminiService(cfg.GeminiKey)
	case cfg.OpenAIKey != "":
		log.Println("Script analysis: OpenAI")
		return services.NewOpenAIService(cfg.OpenAIKey)
	}
	return nil
}

// voice returns ElevenLabs first and Cartesia as fallback.
func voice(cfg *config.Config) pipeline.VoiceSynthesizer {
	var chain []services.TTSService
	if cfg.ElevenLabsKey != "" {
		chain = append(chain, services.NewElevenLabsService(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID))
	}
	if cfg.CartesiaKey != "" {
		chain = append(chain, services.NewCartesiaService(cfg.CartesiaKey, cfg.CartesiaURL, cfg.CartesiaVoiceID))
	}
	if len(chain) == 0 {
		return nil
	}
	names := make([]string, len(chain))
	for i, p := range chain {
		names[i] = p.Name()
	}
	log.Printf("TTS providers: %v", names)
	return services.NewVoiceService(chain...)
}

func providers(cfg *config.Config, client *http.Client) []media.Provider {
	var out []media.Provider
	if cfg.PexelsKey != "" {
		out = append(out, media.NewPexels(cfg.PexelsKey, client))
	}
	if cfg.PixabayKey != "" {
		out = append(out, media.NewPixabay(cfg.PixabayKey, client))
	}
	return out
}

// MixConfig applies file/env tuning over the mixer defaults.
func MixConfig(t config.MixTuning) render.MixConfig {
	mc := render.DefaultMixConfig()
	if t.MusicVolume > 0 {
		mc.MusicVolume = t.MusicVolume
	}
	if t.MusicLowpassHz > 0 {
		mc.MusicLowpassHz = t.MusicLowpassHz
	}
	if t.DuckThreshold > 0 {
		mc.DuckThreshold = t.DuckThreshold
	}
	if t.DuckRatio > 0 {
		mc.DuckRatio = t.DuckRatio
	}
	if t.TargetLUFS < 0 {
		mc.TargetLUFS = t.TargetLUFS
	}
	if t.AudioBitrate != "" {
		mc.AudioBitrate = t.AudioBitrate
	}
	return mc
}

// MediaConfig applies file/env tuning over the acquisition defaults.
func MediaConfig(t config.MediaTuning) media.Config {
	mc := media.DefaultConfig()
	if t.DurationTolerance > 0 {
		mc.DurationTolerance = t.DurationTolerance
	}
	if t.PerPage > 0 {
		mc.PerPage = t.PerPage
	}
	if t.SimilarityThreshold > 0 {
		mc.SimilarityThreshold = t.SimilarityThreshold
	}
	return mc
}

// StartSweeper schedules removal of job directories left behind by crashed
// runs.
func StartSweeper(cfg *config.Config) (*tempfiles.Sweeper, error) {
	sw := tempfiles.NewSweeper(cfg.TempDir, time.Duration(cfg.TempMaxAgeHours)*time.Hour)
	if err := sw.Start(cfg.TempSweepSchedule); err != nil {
		return nil, fmt.Errorf("failed to start temp sweeper: %w", err)
	}
	return sw, nil
}
