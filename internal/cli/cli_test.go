package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bobarin/reels/internal/app"
	"github.com/bobarin/reels/internal/config"
	"github.com/bobarin/reels/internal/models"
	"github.com/bobarin/reels/internal/output"
	"github.com/bobarin/reels/internal/pipeline"
)

const sampleTimeline = `{
  "mood": "calm",
  "theme": "slow mornings",
  "scenes": [
    {"id": "s1", "duration": 4, "description": "sunrise over a lake", "primary_keywords": ["sunrise lake"], "visual_type": "b-roll", "transition": {"type": "fade"}, "effect": {"type": "none"}},
    {"id": "s2", "duration": 3, "description": "coffee being poured", "primary_keywords": ["pouring coffee"], "visual_type": "static", "transition": {"type": "dissolve"}, "effect": {"type": "ken_burns"}}
  ]
}`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRenderOptionsJob(t *testing.T) {
	dir := t.TempDir()
	script := writeFile(t, dir, "script.txt", "  Slow mornings change everything.\n")
	timeline := writeFile(t, dir, "scenes.json", sampleTimeline)
	voice := writeFile(t, dir, "voice.mp3", "id3")

	job, err := renderOptions{
		scriptPath:   script,
		timelinePath: timeline,
		voicePath:    voice,
		outPath:      filepath.Join(dir, "out", "reel.mp4"),
		tone:         "Calm",
		voiceID:      "narrator",
	}.job()
	if err != nil {
		t.Fatalf("job: %v", err)
	}
	if job.Script != "Slow mornings change everything." {
		t.Errorf("script = %q", job.Script)
	}
	if job.Tone != models.ToneCalm {
		t.Errorf("tone = %s", job.Tone)
	}
	if job.Timeline == nil || len(job.Timeline.Scenes) != 2 || job.Timeline.Scenes[1].Effect.Type != models.EffectKenBurns {
		t.Errorf("timeline not loaded: %+v", job.Timeline)
	}
	if job.VoiceoverPath == nil || *job.VoiceoverPath != voice {
		t.Errorf("voiceover = %v", job.VoiceoverPath)
	}
	if job.CaptionPath != nil || job.MusicPath != nil {
		t.Error("unset inputs should stay nil")
	}
	if job.VoiceID == nil || *job.VoiceID != "narrator" {
		t.Errorf("voice id = %v", job.VoiceID)
	}
	if job.Status != models.ReelStatusProcessing {
		t.Errorf("status = %s", job.Status)
	}
}

func TestRenderOptionsValidation(t *testing.T) {
	dir := t.TempDir()
	script := writeFile(t, dir, "script.txt", "hello")
	empty := writeFile(t, dir, "empty.txt", "   ")
	timeline := writeFile(t, dir, "scenes.json", sampleTimeline)
	noScenes := writeFile(t, dir, "none.json", `{"scenes": []}`)
	zero := writeFile(t, dir, "zero.json", `{"scenes": [{"duration": 0, "primary_keywords": ["x"]}]}`)

	tests := []struct {
		name string
		opts renderOptions
		want string
	}{
		{"nothing", renderOptions{outPath: "r.mp4", tone: "calm"}, "--script or --timeline"},
		{"timeline without voice", renderOptions{timelinePath: timeline, outPath: "r.mp4", tone: "calm"}, "--voice is required"},
		{"bad tone", renderOptions{scriptPath: script, outPath: "r.mp4", tone: "smug"}, "unknown tone"},
		{"empty script", renderOptions{scriptPath: empty, outPath: "r.mp4", tone: "calm"}, "is empty"},
		{"missing voice file", renderOptions{scriptPath: script, voicePath: filepath.Join(dir, "nope.mp3"), outPath: "r.mp4", tone: "calm"}, "--voice"},
		{"no scenes", renderOptions{scriptPath: script, timelinePath: noScenes, outPath: "r.mp4", tone: "calm"}, "no scenes"},
		{"zero duration", renderOptions{scriptPath: script, timelinePath: zero, outPath: "r.mp4", tone: "calm"}, "no duration"},
		{"empty out", renderOptions{scriptPath: script, outPath: " ", tone: "calm"}, "--out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.opts.job()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestRenderCmdPropagatesBuildError(t *testing.T) {
	dir := t.TempDir()
	script := writeFile(t, dir, "script.txt", "hello world")

	buildErr := errors.New("either PEXELS_API_KEY or PIXABAY_API_KEY is required")
	deps := &Dependencies{
		Config: &config.Config{},
		Build: func(*config.Config, pipeline.StatusSink, pipeline.CancelSignal) (*app.Pipeline, error) {
			return nil, buildErr
		},
	}

	cmd := NewRootCmd(deps)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"render", "--script", script, "--out", filepath.Join(dir, "r.mp4")})
	if err := cmd.Execute(); !errors.Is(err, buildErr) {
		t.Fatalf("err = %v, want build error", err)
	}
}

func TestDoctorReportsMissingKeys(t *testing.T) {
	deps := &Dependencies{Config: &config.Config{AnalysisProvider: "openai", TempDir: "/tmp/reels"}}

	var out bytes.Buffer
	cmd := NewRootCmd(deps)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"doctor"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("doctor: %v", err)
	}

	got := out.String()
	for _, want := range []string{"Stock media", "PEXELS_API_KEY", "OPENAI_API_KEY", "Some prerequisites are missing"} {
		if !strings.Contains(got, want) {
			t.Errorf("doctor output missing %q:\n%s", want, got)
		}
	}
}

func TestInterruptCancelsThenAborts(t *testing.T) {
	sigs := make(chan os.Signal, 2)
	done := make(chan struct{})
	defer close(done)

	flags := pipeline.NewCancelFlags()
	jobID := uuid.New()
	ctx, abort := context.WithCancel(context.Background())
	defer abort()

	var out bytes.Buffer
	exited := make(chan struct{})
	go func() {
		watchInterrupts(sigs, done, output.NewFormatter(&out), flags, jobID, abort)
		close(exited)
	}()

	sigs <- syscall.SIGINT
	deadline := time.Now().Add(2 * time.Second)
	for !flags.IsCancelled(ctx, jobID) {
		if time.Now().After(deadline) {
			t.Fatal("first interrupt did not request a cooperative cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if ctx.Err() != nil {
		t.Fatal("first interrupt should let the running step finish")
	}

	sigs <- syscall.SIGINT
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("second interrupt did not abort")
	}
	<-exited
}
