package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bobarin/reels/internal/models"
	"github.com/bobarin/reels/internal/output"
	"github.com/bobarin/reels/internal/pipeline"
)

type renderOptions struct {
	scriptPath   string
	timelinePath string
	voicePath    string
	captionsPath string
	musicPath    string
	outPath      string
	tone         string
	voiceID      string
}

func NewRenderCmd(deps *Dependencies) *cobra.Command {
	var opts renderOptions

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a reel locally",
		Long: "Render a reel on this machine. Anything not supplied as a file is produced by the configured services:\n" +
			"--timeline skips script analysis, --voice skips synthesis, --captions skips transcription.\n" +
			"Ctrl+C cancels after the step in progress.",
		Example: "  reels render --script script.txt --tone calm --out reel.mp4\n" +
			"  reels render --timeline scenes.json --voice voice.mp3 --captions subs.ass --out reel.mp4",
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := opts.job()
			if err != nil {
				return err
			}

			f := output.NewFormatter(cmd.OutOrStdout())
			flags := pipeline.NewCancelFlags()
			p, err := deps.Build(deps.Config, f, flags)
			if err != nil {
				return err
			}
			if err := p.FFmpeg.CheckInstalled(); err != nil {
				return fmt.Errorf("%w (run 'reels doctor')", err)
			}

			ctx, abort := context.WithCancel(cmd.Context())
			defer abort()
			stop := cancelOnInterrupt(f, flags, job.ID, abort)
			defer stop()

			start := time.Now()
			final, err := p.Orchestrator.Run(ctx, job)
			if errors.Is(err, models.ErrCancelled) {
				f.Warning("Render cancelled")
				return nil
			}
			if err != nil {
				return err
			}
			f.ReelComplete(final.Path, final.Duration, time.Since(start))
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.scriptPath, "script", "s", "", "Voiceover script (text file)")
	cmd.Flags().StringVar(&opts.timelinePath, "timeline", "", "Scene timeline JSON, skips script analysis")
	cmd.Flags().StringVar(&opts.voicePath, "voice", "", "Voiceover audio, skips speech synthesis")
	cmd.Flags().StringVar(&opts.captionsPath, "captions", "", "Caption file (.ass or .srt), skips transcription")
	cmd.Flags().StringVar(&opts.musicPath, "music", "", "Background music, skips the music library")
	cmd.Flags().StringVarP(&opts.outPath, "out", "o", "reel.mp4", "Output path")
	cmd.Flags().StringVarP(&opts.tone, "tone", "t", string(models.ToneInspirational), "Tone: energetic, calm, dramatic, educational, inspirational, humorous")
	cmd.Flags().StringVar(&opts.voiceID, "voice-id", "", "Voice id for the preferred TTS provider")

	return cmd
}

// job validates the flags and turns them into a ReelJob with every supplied
// artifact preset.
func (o renderOptions) job() (*models.ReelJob, error) {
	if o.scriptPath == "" && o.timelinePath == "" {
		return nil, errors.New("one of --script or --timeline is required")
	}
	if o.scriptPath == "" && o.voicePath == "" {
		return nil, errors.New("--voice is required when no --script is given")
	}
	if strings.TrimSpace(o.outPath) == "" {
		return nil, errors.New("--out must not be empty")
	}
	tone := models.Tone(strings.ToLower(o.tone))
	if !tone.Valid() {
		return nil, fmt.Errorf("unknown tone %q", o.tone)
	}

	job := &models.ReelJob{
		ID:     uuid.New(),
		Status: models.ReelStatusProcessing,
		Tone:   tone,
	}

	if o.scriptPath != "" {
		data, err := os.ReadFile(o.scriptPath)
		if err != nil {
			return nil, fmt.Errorf("reading script: %w", err)
		}
		job.Script = strings.TrimSpace(string(data))
		if job.Script == "" {
			return nil, fmt.Errorf("script %s is empty", o.scriptPath)
		}
	}

	if o.timelinePath != "" {
		tl, err := readTimeline(o.timelinePath)
		if err != nil {
			return nil, err
		}
		job.Timeline = tl
	}

	var err error
	if job.VoiceoverPath, err = inputPath(o.voicePath, "voice"); err != nil {
		return nil, err
	}
	if job.CaptionPath, err = inputPath(o.captionsPath, "captions"); err != nil {
		return nil, err
	}
	if job.MusicPath, err = inputPath(o.musicPath, "music"); err != nil {
		return nil, err
	}

	out, err := filepath.Abs(o.outPath)
	if err != nil {
		return nil, err
	}
	job.OutputPath = &out

	if o.voiceID != "" {
		job.VoiceID = &o.voiceID
	}
	return job, nil
}

func readTimeline(path string) (*models.SceneTimeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading timeline: %w", err)
	}
	var tl models.SceneTimeline
	if err := json.Unmarshal(data, &tl); err != nil {
		return nil, fmt.Errorf("parsing timeline %s: %w", path, err)
	}
	if len(tl.Scenes) == 0 {
		return nil, fmt.Errorf("timeline %s has no scenes", path)
	}
	for i, s := range tl.Scenes {
		if s.Duration <= 0 {
			return nil, fmt.Errorf("timeline %s: scene %d has no duration", path, i+1)
		}
		if len(s.PrimaryKeywords) == 0 && len(s.SecondaryKeywords) == 0 && strings.TrimSpace(s.Description) == "" {
			return nil, fmt.Errorf("timeline %s: scene %d has nothing to search for", path, i+1)
		}
	}
	return &tl, nil
}

// inputPath resolves an optional input file to an absolute path.
func inputPath(path, flag string) (*string, error) {
	if path == "" {
		return nil, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("--%s: %w", flag, err)
	}
	return &abs, nil
}

// cancelOnInterrupt turns the first SIGINT/SIGTERM into a cooperative cancel
// of the job. A second one aborts, killing any running encode.
func cancelOnInterrupt(f *output.Formatter, flags *pipeline.CancelFlags, jobID uuid.UUID, abort context.CancelFunc) func() {
	sigs := make(chan os.Signal, 2)
	done := make(chan struct{})
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go watchInterrupts(sigs, done, f, flags, jobID, abort)

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

func watchInterrupts(sigs <-chan os.Signal, done <-chan struct{}, f *output.Formatter, flags *pipeline.CancelFlags, jobID uuid.UUID, abort context.CancelFunc) {
	select {
	case <-sigs:
		f.Warning("Cancelling after the current step (Ctrl+C again to abort)...")
		flags.Cancel(jobID)
	case <-done:
		return
	}
	select {
	case <-sigs:
		f.Warning("Aborting")
		abort()
	case <-done:
	}
}
