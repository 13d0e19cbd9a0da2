package render

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/bobarin/reels/internal/models"
	"github.com/bobarin/reels/internal/tempfiles"
)

// DefaultTransitionDuration is applied uniformly at every scene boundary.
const DefaultTransitionDuration = 0.5

var xfadeTransitions = map[models.TransitionType]string{
	models.TransitionFade:     "fade",
	models.TransitionDissolve: "dissolve",
	models.TransitionWipe:     "wipeleft",
	models.TransitionSlide:    "slideleft",
	models.TransitionZoom:     "zoomin",
}

// XfadeName maps a scene transition onto an xfade transition name.
func XfadeName(t models.TransitionType) string {
	if name, ok := xfadeTransitions[t]; ok {
		return name
	}
	return "fade"
}

// Compositor joins rendered scene clips with timed cross-transitions into one
// silent video track.
type Compositor struct {
	toolkit            Toolkit
	transitionDuration float64
}

func NewCompositor(toolkit Toolkit) *Compositor {
	return &Compositor{toolkit: toolkit, transitionDuration: DefaultTransitionDuration}
}

// TransitionOffsets returns the xfade offset of every boundary and the total
// output duration. Boundary k (between clip k and k+1) starts at
// sum_{j<=k}(d_j - t), so the total is sum(d) - (n-1)*t.
func TransitionOffsets(durations []float64, t float64) ([]float64, float64) {
	if len(durations) == 0 {
		return nil, 0
	}
	offsets := make([]float64, 0, len(durations)-1)
	var acc float64
	for k := 0; k < len(durations)-1; k++ {
		acc += durations[k] - t
		offsets = append(offsets, acc)
	}
	return offsets, acc + durations[len(durations)-1]
}

// BuildTransitionGraph returns the filter_complex chaining n inputs through
// xfade, ending in [vout].
func BuildTransitionGraph(clips []models.RenderedClip, t float64) (string, float64) {
	durations := make([]float64, len(clips))
	for i, c := range clips {
		durations[i] = c.Duration
	}
	offsets, total := TransitionOffsets(durations, t)

	var parts []string
	prev := "[0:v]"
	for k, off := range offsets {
		label := fmt.Sprintf("[x%d]", k+1)
		if k == len(offsets)-1 {
			label = "[vout]"
		}
		parts = append(parts, fmt.Sprintf("%s[%d:v]xfade=transition=%s:duration=%.3f:offset=%.3f%s",
			prev, k+1, XfadeName(clips[k].Scene.Scene.Transition.Type), t, off, label))
		prev = label
	}
	return strings.Join(parts, ";"), total
}

// Combine normalizes every clip to a shared frame rate, pixel format and
// time base, then chains them with transitions. Source clips are released
// once consumed. On failure every normalized intermediate is released before
// the error is returned.
func (c *Compositor) Combine(ctx context.Context, clips []models.RenderedClip, tracker *tempfiles.Tracker) (*models.CompositeVideo, error) {
	if len(clips) == 0 {
		return nil, &models.CompositionError{Op: "input", Err: fmt.Errorf("no clips to combine")}
	}
	if len(clips) > 1 {
		for _, clip := range clips {
			if clip.Duration <= c.transitionDuration {
				return nil, &models.CompositionError{Op: "input", Err: fmt.Errorf("scene %s is %.3fs, shorter than the %.1fs transition", clip.Scene.ID(), clip.Duration, c.transitionDuration)}
			}
		}
	}

	normalized := make([]models.RenderedClip, 0, len(clips))
	releaseNormalized := func() {
		for _, n := range normalized {
			_ = tracker.Release(n.Path)
		}
	}

	for i, clip := range clips {
		out := tracker.Path(fmt.Sprintf("norm_%02d", i), ".mp4")
		args := []string{
			"-i", clip.Path,
			"-vf", fmt.Sprintf("fps=%d,format=%s,settb=AVTB,setpts=PTS-STARTPTS", OutputFPS, PixelFormat),
			"-an",
		}
		args = append(args, encodeArgs()...)
		if _, err := c.toolkit.Run(ctx, out, args...); err != nil {
			_ = tracker.Release(out)
			releaseNormalized()
			return nil, &models.CompositionError{Op: fmt.Sprintf("normalize clip %d", i), Err: err}
		}
		n := clip
		n.Path = out
		normalized = append(normalized, n)
		_ = tracker.Release(clip.Path)
	}

	if len(normalized) == 1 {
		log.Printf("[Compositor] Single scene, skipping transitions (%.3fs)", normalized[0].Duration)
		return &models.CompositeVideo{Path: normalized[0].Path, Duration: normalized[0].Duration}, nil
	}

	graph, total := BuildTransitionGraph(normalized, c.transitionDuration)
	out := tracker.Path("composite", ".mp4")

	var args []string
	for _, n := range normalized {
		args = append(args, "-i", n.Path)
	}
	args = append(args, "-filter_complex", graph, "-map", "[vout]", "-an")
	args = append(args, encodeArgs()...)

	log.Printf("[Compositor] Chaining %d clips with %.1fs transitions, expected %.3fs", len(normalized), c.transitionDuration, total)

	if _, err := c.toolkit.Run(ctx, out, args...); err != nil {
		_ = tracker.Release(out)
		releaseNormalized()
		return nil, &models.CompositionError{Op: "transitions", Err: err}
	}
	releaseNormalized()

	return &models.CompositeVideo{Path: out, Duration: total}, nil
}
