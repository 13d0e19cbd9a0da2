package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bobarin/reels/internal/config"
	"github.com/bobarin/reels/internal/media"
	"github.com/bobarin/reels/internal/render"
)

func TestMixConfigKeepsDefaultsForZeroTuning(t *testing.T) {
	got := MixConfig(config.MixTuning{})
	if got != render.DefaultMixConfig() {
		t.Errorf("zero tuning changed defaults: %+v", got)
	}

	got = MixConfig(config.MixTuning{MusicVolume: 0.3, TargetLUFS: -16, AudioBitrate: "256k"})
	if got.MusicVolume != 0.3 || got.TargetLUFS != -16 || got.AudioBitrate != "256k" {
		t.Errorf("tuning not applied: %+v", got)
	}
	if got.DuckRatio != render.DefaultMixConfig().DuckRatio {
		t.Errorf("untouched field changed: %v", got.DuckRatio)
	}
}

func TestMediaConfigOverrides(t *testing.T) {
	got := MediaConfig(config.MediaTuning{PerPage: 40})
	want := media.DefaultConfig()
	want.PerPage = 40
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestBuildRequiresMediaProvider(t *testing.T) {
	cfg := &config.Config{MaxConcurrentEncodes: 1, SceneWorkers: 1}
	if _, err := Build(cfg, nil, nil); err == nil {
		t.Fatal("expected error without any media provider key")
	}
}

func TestBuildLoadsMusicLibrary(t *testing.T) {
	dir := t.TempDir()
	catalog := filepath.Join(dir, "music.yaml")
	body := "tracks:\n  - title: Drift\n    file: drift.mp3\n    tones: [calm]\n    tags: [ambient]\n"
	if err := os.WriteFile(catalog, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		PexelsKey:            "px",
		MusicLibraryPath:     catalog,
		TempDir:              dir,
		OutputDir:            dir,
		SceneWorkers:         2,
		MaxConcurrentEncodes: 1,
	}
	p, err := Build(cfg, nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.Orchestrator == nil || p.FFmpeg == nil {
		t.Fatal("pipeline not wired")
	}

	cfg.MusicLibraryPath = filepath.Join(dir, "missing.yaml")
	if _, err := Build(cfg, nil, nil); err == nil {
		t.Error("expected error for a missing music catalog")
	}
}
