package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bobarin/reels/internal/models"
	"github.com/bobarin/reels/internal/tempfiles"
)

// Collaborators

type ScriptAnalyzer interface {
	AnalyzeScript(ctx context.Context, script string, tone models.Tone) (*models.SceneTimeline, error)
}

type VoiceSynthesizer interface {
	SynthesizeToFile(ctx context.Context, text, voiceID string, tone models.Tone, outputPath string) error
}

type Captioner interface {
	GenerateCaptions(ctx context.Context, audioPath string, tone models.Tone, outputPath string) error
}

// MusicFinder returns a local track path, or "" when nothing fits.
type MusicFinder interface {
	FindTrack(ctx context.Context, tone models.Tone, keywords []string, tracker *tempfiles.Tracker) (string, error)
}

type SceneFetcher interface {
	Fetch(ctx context.Context, scene models.ScheduledScene) (*models.MediaAsset, error)
}

type SceneRenderer interface {
	Render(ctx context.Context, scene models.ScheduledScene, asset *models.MediaAsset, tracker *tempfiles.Tracker) (*models.RenderedClip, error)
}

type Compositor interface {
	Combine(ctx context.Context, clips []models.RenderedClip, tracker *tempfiles.Tracker) (*models.CompositeVideo, error)
}

type Mixer interface {
	Finalize(ctx context.Context, video *models.CompositeVideo, voicePath, musicPath, captionsPath, outputPath string) (*models.FinalVideo, error)
}

type Prober interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// StatusSink receives a snapshot of the job at every transition. Errors are
// logged and otherwise ignored.
type StatusSink interface {
	ReportStatus(ctx context.Context, job *models.ReelJob) error
}

// Deps are the collaborators of a run. Analyzer, Voice and Captioner may be
// nil when every job supplies the matching artifact itself.
type Deps struct {
	Analyzer   ScriptAnalyzer
	Voice      VoiceSynthesizer
	Captioner  Captioner
	Music      MusicFinder // optional
	Media      func(tracker *tempfiles.Tracker) SceneFetcher
	Renderer   SceneRenderer
	Compositor Compositor
	Mixer      Mixer
	Prober     Prober
	Sink       StatusSink   // optional
	Cancel     CancelSignal // optional
}

type Options struct {
	TempDir      string
	OutputDir    string
	SceneWorkers int

	// TransitionOverlap is the seconds each scene boundary's cross-transition
	// consumes. Non-final scenes are rendered that much longer.
	TransitionOverlap float64
}

// Orchestrator runs one reel job from script to deliverable.
type Orchestrator struct {
	deps Deps
	opts Options
}

func New(deps Deps, opts Options) *Orchestrator {
	if opts.SceneWorkers < 1 {
		opts.SceneWorkers = 1
	}
	return &Orchestrator{deps: deps, opts: opts}
}

// run is the state of a single job execution.
type run struct {
	o       *Orchestrator
	job     *models.ReelJob
	tracker *tempfiles.Tracker
}

// Run executes the job. The job is mutated in place and reported to the sink
// at every transition. Temp files are removed on every exit path.
//
// A job whose Timeline or VoiceoverPath is already set skips the matching
// collaborator call.
func (o *Orchestrator) Run(ctx context.Context, job *models.ReelJob) (*models.FinalVideo, error) {
	r := &run{o: o, job: job}

	now := time.Now()
	job.StartedAt = &now
	if job.Status != models.ReelStatusProcessing {
		log.Printf("[Pipeline] Reel %s restarting from %s (%.0f%%)", job.ID, job.Status, job.Progress*100)
		job.Status = models.ReelStatusProcessing
	}
	r.dropStaleArtifacts()
	r.report(ctx)

	tracker, err := tempfiles.NewTracker(o.opts.TempDir, job.ID.String())
	if err != nil {
		r.fail(ctx, err)
		return nil, err
	}
	r.tracker = tracker
	defer tracker.CleanupAll()

	final, err := r.execute(ctx)
	if err != nil {
		if errors.Is(err, models.ErrCancelled) {
			r.terminate(ctx, models.ReelStatusCancelled, "cancelled by request")
			log.Printf("[Pipeline] Reel %s cancelled", job.ID)
			return nil, err
		}
		r.fail(ctx, err)
		return nil, err
	}

	log.Printf("[Pipeline] Reel %s completed: %s (%.2fs)", job.ID, final.Path, final.Duration)
	return final, nil
}

func (r *run) execute(ctx context.Context) (*models.FinalVideo, error) {
	job := r.job
	deps := r.o.deps

	// analyzing
	if err := r.advance(ctx, models.ReelStatusAnalyzing); err != nil {
		return nil, err
	}
	if job.Timeline == nil {
		if deps.Analyzer == nil {
			return nil, errors.New("script analysis: no analyzer configured")
		}
		timeline, err := deps.Analyzer.AnalyzeScript(ctx, job.Script, job.Tone)
		if err != nil {
			return nil, fmt.Errorf("script analysis: %w", err)
		}
		job.Timeline = timeline
	}
	log.Printf("[Pipeline] Reel %s: %d scenes planned (%.2fs)", job.ID, len(job.Timeline.Scenes), job.Timeline.PlannedDuration())

	// generating voiceover
	if err := r.advance(ctx, models.ReelStatusGeneratingVoiceover); err != nil {
		return nil, err
	}
	voicePath, err := r.voiceover(ctx)
	if err != nil {
		return nil, err
	}
	voiceDuration, err := deps.Prober.ProbeDuration(ctx, voicePath)
	if err != nil {
		return nil, fmt.Errorf("probe voiceover: %w", err)
	}
	if job.CaptionPath == nil {
		if deps.Captioner == nil {
			return nil, errors.New("captions: no captioner configured")
		}
		captionPath := r.tracker.Path("captions", ".ass")
		if err := deps.Captioner.GenerateCaptions(ctx, voicePath, job.Tone, captionPath); err != nil {
			return nil, fmt.Errorf("captions: %w", err)
		}
		job.CaptionPath = &captionPath
	}

	// gathering visuals
	if err := r.advance(ctx, models.ReelStatusGatheringVisuals); err != nil {
		return nil, err
	}
	schedule, err := Reconcile(job.Timeline.Scenes, voiceDuration)
	if err != nil {
		return nil, fmt.Errorf("reconcile durations: %w", err)
	}
	log.Printf("[Pipeline] Reel %s: scaled %d scenes by %.3f to %.2fs voiceover",
		job.ID, len(schedule), voiceDuration/job.Timeline.PlannedDuration(), voiceDuration)
	schedule = ExtendForTransitions(schedule, r.o.opts.TransitionOverlap)

	musicPath := r.music(ctx)
	if musicPath != "" {
		job.MusicPath = &musicPath
	}

	assets, err := r.fetchAll(ctx, schedule)
	if err != nil {
		return nil, err
	}

	// assembling video
	if err := r.advance(ctx, models.ReelStatusAssemblingVideo); err != nil {
		return nil, err
	}
	clips, err := r.renderAll(ctx, schedule, assets)
	if err != nil {
		return nil, err
	}
	composite, err := deps.Compositor.Combine(ctx, clips, r.tracker)
	if err != nil {
		return nil, err
	}

	// finalizing
	if err := r.advance(ctx, models.ReelStatusFinalizing); err != nil {
		return nil, err
	}
	staged := r.tracker.Path("final", ".mp4")
	final, err := deps.Mixer.Finalize(ctx, composite, voicePath, musicPath, *job.CaptionPath, staged)
	if err != nil {
		return nil, err
	}
	_ = r.tracker.Release(composite.Path)

	if err := r.checkCancel(ctx); err != nil {
		return nil, err
	}
	outputPath, err := r.publish(staged)
	if err != nil {
		return nil, err
	}
	final.Path = outputPath
	job.OutputPath = &outputPath

	if err := r.advance(ctx, models.ReelStatusCompleted); err != nil {
		_ = os.Remove(outputPath)
		return nil, err
	}
	return final, nil
}

// dropStaleArtifacts forgets intermediates an earlier run of this job kept in
// its temp dir. That dir is removed when a run ends, so they are regenerated.
// Captions follow the voiceover they were transcribed from.
func (r *run) dropStaleArtifacts() {
	job := r.job
	if r.inTempDir(job.VoiceoverPath) {
		job.VoiceoverPath = nil
		job.CaptionPath = nil
	}
	if r.inTempDir(job.CaptionPath) {
		job.CaptionPath = nil
	}
	if r.inTempDir(job.MusicPath) {
		job.MusicPath = nil
	}
}

func (r *run) inTempDir(p *string) bool {
	if p == nil || *p == "" || r.o.opts.TempDir == "" {
		return false
	}
	root, err := filepath.Abs(r.o.opts.TempDir)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(*p)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, abs)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (r *run) voiceover(ctx context.Context) (string, error) {
	job := r.job
	if job.VoiceoverPath != nil {
		return *job.VoiceoverPath, nil
	}
	if r.o.deps.Voice == nil {
		return "", errors.New("voice synthesis: no voice provider configured")
	}
	voicePath := r.tracker.Path("voiceover", ".mp3")
	voiceID := ""
	if job.VoiceID != nil {
		voiceID = *job.VoiceID
	}
	if err := r.o.deps.Voice.SynthesizeToFile(ctx, job.Script, voiceID, job.Tone, voicePath); err != nil {
		return "", fmt.Errorf("voice synthesis: %w", err)
	}
	job.VoiceoverPath = &voicePath
	return voicePath, nil
}

// music never fails the job: any error degrades to a voice-only mix.
func (r *run) music(ctx context.Context) string {
	job := r.job
	if job.MusicPath != nil {
		return *job.MusicPath
	}
	if r.o.deps.Music == nil {
		return ""
	}
	keywords := append([]string{job.Timeline.Mood}, job.Timeline.MusicKeywords...)
	path, err := r.o.deps.Music.FindTrack(ctx, job.Tone, keywords, r.tracker)
	if err != nil {
		log.Printf("[Pipeline] Reel %s: background music unavailable, continuing without: %v", job.ID, err)
		return ""
	}
	if path == "" {
		log.Printf("[Pipeline] Reel %s: no background music matched", job.ID)
	}
	return path
}

// fetchAll acquires media for every scene concurrently. Results land in an
// index-ordered slice regardless of completion order.
func (r *run) fetchAll(ctx context.Context, schedule []models.ScheduledScene) ([]*models.MediaAsset, error) {
	session := r.o.deps.Media(r.tracker)
	assets := make([]*models.MediaAsset, len(schedule))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.o.opts.SceneWorkers)
	for i, scene := range schedule {
		i, scene := i, scene
		g.Go(func() error {
			if err := r.checkCancel(gctx); err != nil {
				return err
			}
			asset, err := session.Fetch(gctx, scene)
			if err != nil {
				return fmt.Errorf("gathering visuals: %w", err)
			}
			assets[i] = asset
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return assets, r.checkCancel(ctx)
}

// renderAll renders every scene concurrently into an index-ordered slice.
func (r *run) renderAll(ctx context.Context, schedule []models.ScheduledScene, assets []*models.MediaAsset) ([]models.RenderedClip, error) {
	clips := make([]models.RenderedClip, len(schedule))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.o.opts.SceneWorkers)
	for i, scene := range schedule {
		i, scene := i, scene
		g.Go(func() error {
			if err := r.checkCancel(gctx); err != nil {
				return err
			}
			clip, err := r.o.deps.Renderer.Render(gctx, scene, assets[i], r.tracker)
			if err != nil {
				return err
			}
			// the source media is no longer needed once its clip exists
			_ = r.tracker.Release(assets[i].LocalPath)
			clips[i] = *clip
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return clips, r.checkCancel(ctx)
}

// publish moves the staged deliverable out of the temp dir.
func (r *run) publish(staged string) (string, error) {
	dest := filepath.Join(r.o.opts.OutputDir, r.job.ID.String()+".mp4")
	if r.job.OutputPath != nil && *r.job.OutputPath != "" {
		dest = *r.job.OutputPath
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := os.Rename(staged, dest); err != nil {
		// temp and output may be on different filesystems
		if err := copyFile(staged, dest); err != nil {
			return "", fmt.Errorf("failed to publish output: %w", err)
		}
		_ = r.tracker.Release(staged)
	}
	r.tracker.Forget(staged)
	return dest, nil
}

func (r *run) checkCancel(ctx context.Context) error {
	if r.o.deps.Cancel != nil && r.o.deps.Cancel.IsCancelled(ctx, r.job.ID) {
		return models.ErrCancelled
	}
	return nil
}

// advance moves the job to the next linear state, honoring a pending cancel
// first.
func (r *run) advance(ctx context.Context, status models.ReelStatus) error {
	if err := r.checkCancel(ctx); err != nil {
		return err
	}
	if !models.CanTransition(r.job.Status, status) {
		return fmt.Errorf("illegal transition %s -> %s", r.job.Status, status)
	}
	r.job.Status = status
	if p, ok := status.Checkpoint(); ok && p > r.job.Progress {
		r.job.Progress = p
	}
	if status == models.ReelStatusCompleted {
		now := time.Now()
		r.job.CompletedAt = &now
	}
	log.Printf("[Pipeline] Reel %s -> %s (%.0f%%)", r.job.ID, status, r.job.Progress*100)
	r.report(ctx)
	return nil
}

func (r *run) fail(ctx context.Context, err error) {
	log.Printf("[Pipeline] Reel %s failed: %v", r.job.ID, err)
	r.terminate(ctx, models.ReelStatusFailed, err.Error())
}

func (r *run) terminate(ctx context.Context, status models.ReelStatus, msg string) {
	if !models.CanTransition(r.job.Status, status) {
		return
	}
	now := time.Now()
	r.job.Status = status
	r.job.ErrorMessage = &msg
	r.job.CompletedAt = &now
	r.report(ctx)
}

func (r *run) report(ctx context.Context) {
	r.job.UpdatedAt = time.Now()
	if r.o.deps.Sink == nil {
		return
	}
	snapshot := *r.job
	// the sink must see terminal states even when the job ctx is done
	if err := r.o.deps.Sink.ReportStatus(context.WithoutCancel(ctx), &snapshot); err != nil {
		log.Printf("[Pipeline] Reel %s: status sink error: %v", r.job.ID, err)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
