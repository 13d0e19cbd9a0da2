package render

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/bobarin/reels/internal/models"
	"github.com/bobarin/reels/internal/services"
	"github.com/bobarin/reels/internal/tempfiles"
)

// SceneRenderer turns one scheduled scene and its media into a fixed-format
// clip of exactly the scene's duration.
type SceneRenderer struct {
	toolkit Toolkit
}

func NewSceneRenderer(toolkit Toolkit) *SceneRenderer {
	return &SceneRenderer{toolkit: toolkit}
}

// SceneInput is everything needed to build the encode command for a scene.
type SceneInput struct {
	Scene  models.ScheduledScene
	Asset  *models.MediaAsset
	Source *services.ProbeResult
}

// Render probes the source, encodes the clip into the job's temp dir and
// validates the result.
func (r *SceneRenderer) Render(ctx context.Context, scene models.ScheduledScene, asset *models.MediaAsset, tracker *tempfiles.Tracker) (*models.RenderedClip, error) {
	sceneID := scene.ID()
	if asset == nil || asset.LocalPath == "" {
		return nil, &models.RenderError{SceneID: sceneID, Op: "input", Err: fmt.Errorf("asset has no local path")}
	}
	if scene.Duration <= 0 {
		return nil, &models.RenderError{SceneID: sceneID, Op: "input", Err: fmt.Errorf("non-positive duration %.3f", scene.Duration)}
	}

	src, err := r.toolkit.Probe(ctx, asset.LocalPath)
	if err != nil {
		return nil, &models.RenderError{SceneID: sceneID, Op: "probe source", Err: err}
	}
	if !src.HasVideo || src.Width == 0 || src.Height == 0 {
		return nil, &models.RenderError{SceneID: sceneID, Op: "probe source", Err: fmt.Errorf("no video stream in %s", asset.LocalPath)}
	}

	outputPath := tracker.Path(fmt.Sprintf("scene_%02d", scene.Index), ".mp4")
	args := BuildSceneArgs(SceneInput{Scene: scene, Asset: asset, Source: src})

	log.Printf("[Render] Scene %s: %s %dx%d (%.2fs) -> %.3fs, effect=%s",
		sceneID, asset.Kind, src.Width, src.Height, src.Duration, scene.Duration, scene.Scene.Effect.Type)

	if _, err := r.toolkit.Run(ctx, outputPath, args...); err != nil {
		_ = tracker.Release(outputPath)
		return nil, &models.RenderError{SceneID: sceneID, Op: "encode", Err: err}
	}

	out, err := r.toolkit.Probe(ctx, outputPath)
	if err != nil {
		_ = tracker.Release(outputPath)
		return nil, &models.RenderError{SceneID: sceneID, Op: "probe output", Err: err}
	}
	if out.Width != OutputWidth || out.Height != OutputHeight {
		_ = tracker.Release(outputPath)
		return nil, &models.RenderError{SceneID: sceneID, Op: "validate", Err: fmt.Errorf("output is %dx%d, want %dx%d", out.Width, out.Height, OutputWidth, OutputHeight)}
	}
	if math.Abs(out.Duration-scene.Duration) > sceneDurationTolerance {
		log.Printf("[Render] Scene %s: duration drift %.3fs (got %.3fs, want %.3fs)",
			sceneID, out.Duration-scene.Duration, out.Duration, scene.Duration)
	}
	if out.FrameRate != 0 && math.Abs(out.FrameRate-OutputFPS) > 0.01 {
		log.Printf("[Render] Scene %s: unexpected frame rate %.3f", sceneID, out.FrameRate)
	}

	return &models.RenderedClip{
		Path:     outputPath,
		Scene:    scene,
		Width:    out.Width,
		Height:   out.Height,
		Duration: scene.Duration,
	}, nil
}

// BuildSceneArgs returns the ffmpeg arguments (minus -y and output) for a
// scene. Filter order: normalize, effect or loop, trim, reset timestamps,
// fade in/out, pixel format.
func BuildSceneArgs(in SceneInput) []string {
	d := in.Scene.Duration
	effect := in.Scene.Scene.Effect
	isStill := in.Asset.Kind == models.MediaKindImage

	var args []string
	chain := []string{NormalizeFilter(in.Source.Width, in.Source.Height, in.Asset.Crop)}

	if isStill {
		args = append(args, "-i", in.Asset.LocalPath)
		if IsMotionEffect(effect.Type) {
			chain = append(chain, MotionFilter(effect, d))
		} else {
			if f := StaticFilter(effect); f != "" {
				chain = append(chain, f)
			}
			chain = append(chain, StillLoopFilter(d))
		}
	} else {
		if loops := LoopCount(in.Source.Duration, d); loops > 0 {
			args = append(args, "-stream_loop", fmt.Sprint(loops))
		}
		args = append(args, "-i", in.Asset.LocalPath)
		chain = append(chain, fmt.Sprintf("fps=%d", OutputFPS))
		if f := StaticFilter(effect); f != "" {
			chain = append(chain, f)
		}
	}

	chain = append(chain, fmt.Sprintf("trim=duration=%.3f", d), "setpts=PTS-STARTPTS")
	if f := fadeFilter(d); f != "" {
		chain = append(chain, f)
	}
	chain = append(chain, "format="+PixelFormat)

	args = append(args, "-vf", strings.Join(chain, ","), "-an")
	args = append(args, encodeArgs()...)
	args = append(args, "-t", fmt.Sprintf("%.3f", d))
	return args
}
