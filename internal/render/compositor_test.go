package render

import (
	"context"
	"errors"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/bobarin/reels/internal/models"
	"github.com/bobarin/reels/internal/tempfiles"
)

func TestTransitionOffsets(t *testing.T) {
	offsets, total := TransitionOffsets([]float64{3, 4, 5}, 0.5)
	if len(offsets) != 2 || offsets[0] != 2.5 || offsets[1] != 6.0 {
		t.Errorf("expected offsets [2.5 6.0], got %v", offsets)
	}
	if total != 11.0 {
		t.Errorf("expected total 11.0, got %v", total)
	}

	offsets, total = TransitionOffsets([]float64{4.2}, 0.5)
	if len(offsets) != 0 || total != 4.2 {
		t.Errorf("single clip: expected no offsets and 4.2s, got %v %v", offsets, total)
	}
}

func TestTransitionOffsetsTotalProperty(t *testing.T) {
	durations := []float64{2.1, 3.7, 4.4, 2.9, 5.0, 3.3, 2.6, 4.8, 3.05, 2.2}
	for n := 1; n <= len(durations); n++ {
		var sum float64
		for _, d := range durations[:n] {
			sum += d
		}
		_, total := TransitionOffsets(durations[:n], 0.5)
		want := sum - float64(n-1)*0.5
		if math.Abs(total-want) > 1e-9 {
			t.Errorf("n=%d: expected %v, got %v", n, want, total)
		}
	}
}

func TestBuildTransitionGraph(t *testing.T) {
	clips := []models.RenderedClip{
		{Duration: 3, Scene: models.ScheduledScene{Scene: models.SceneDescriptor{Transition: models.Transition{Type: models.TransitionWipe}}}},
		{Duration: 4, Scene: models.ScheduledScene{Scene: models.SceneDescriptor{Transition: models.Transition{Type: models.TransitionZoom}}}},
		{Duration: 5, Scene: models.ScheduledScene{Scene: models.SceneDescriptor{Transition: models.Transition{Type: "unknown"}}}},
	}
	graph, total := BuildTransitionGraph(clips, 0.5)

	want := "[0:v][1:v]xfade=transition=wipeleft:duration=0.500:offset=2.500[x1];" +
		"[x1][2:v]xfade=transition=zoomin:duration=0.500:offset=6.000[vout]"
	if graph != want {
		t.Errorf("unexpected graph:\n got %s\nwant %s", graph, want)
	}
	if total != 11 {
		t.Errorf("expected 11s, got %v", total)
	}
	if XfadeName("unknown") != "fade" {
		t.Error("unknown transitions fall back to fade")
	}
}

func renderedClips(t *testing.T, tr *tempfiles.Tracker, durations ...float64) []models.RenderedClip {
	t.Helper()
	var clips []models.RenderedClip
	for i, d := range durations {
		p := tr.Path("scene", ".mp4")
		if err := os.WriteFile(p, []byte("clip"), 0644); err != nil {
			t.Fatal(err)
		}
		clips = append(clips, models.RenderedClip{Path: p, Duration: d, Scene: scheduled(i, d, models.EffectNone)})
	}
	return clips
}

func TestCombineSingleClipSkipsTransitions(t *testing.T) {
	tk := newFakeToolkit()
	tr := newTracker(t)
	clips := renderedClips(t, tr, 4.25)

	out, err := NewCompositor(tk).Combine(context.Background(), clips, tr)
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if out.Duration != 4.25 {
		t.Errorf("expected 4.25s, got %v", out.Duration)
	}
	if tk.runCount() != 1 {
		t.Errorf("expected only the normalize pass, got %d runs", tk.runCount())
	}
	for _, args := range tk.runs {
		if strings.Contains(joined(args), "xfade") {
			t.Error("single clip must not use xfade")
		}
	}
}

func TestCombineChainsAndReleasesIntermediates(t *testing.T) {
	tk := newFakeToolkit()
	tr := newTracker(t)
	clips := renderedClips(t, tr, 3, 4, 5)

	out, err := NewCompositor(tk).Combine(context.Background(), clips, tr)
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if out.Duration != 11 {
		t.Errorf("expected 11s composite, got %v", out.Duration)
	}
	if tk.runCount() != 4 {
		t.Fatalf("expected 3 normalize + 1 chain runs, got %d", tk.runCount())
	}
	for i := 0; i < 3; i++ {
		if vf := argAfter(tk.runs[i], "-vf"); !strings.Contains(vf, "settb=AVTB") || !strings.Contains(vf, "fps=25") {
			t.Errorf("normalize pass %d missing shared time base: %s", i, vf)
		}
	}
	last := tk.runs[3]
	if countArg(last, "-i") != 3 {
		t.Errorf("expected 3 inputs to the chain, got %d", countArg(last, "-i"))
	}
	if argAfter(last, "-map") != "[vout]" {
		t.Error("expected chained output to be mapped")
	}

	for _, c := range clips {
		if _, err := os.Stat(c.Path); !os.IsNotExist(err) {
			t.Errorf("source clip %s should be consumed", c.Path)
		}
	}
	if tr.Len() != 1 || !tr.Owns(out.Path) {
		t.Errorf("only the composite should remain tracked, have %d", tr.Len())
	}
}

func TestCombineFailureReleasesNormalized(t *testing.T) {
	tk := newFakeToolkit()
	tk.failRun = func(out string) bool { return strings.Contains(out, "composite") }
	tr := newTracker(t)
	clips := renderedClips(t, tr, 3, 3)

	_, err := NewCompositor(tk).Combine(context.Background(), clips, tr)

	var cerr *models.CompositionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CompositionError, got %v", err)
	}
	for _, p := range tk.outputs {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("intermediate %s should be deleted", p)
		}
	}
	if tr.Len() != 0 {
		t.Errorf("expected nothing tracked, have %d", tr.Len())
	}
}

func TestCombineRejectsClipShorterThanTransition(t *testing.T) {
	tk := newFakeToolkit()
	tr := newTracker(t)
	clips := renderedClips(t, tr, 3, 0.4)

	_, err := NewCompositor(tk).Combine(context.Background(), clips, tr)
	var cerr *models.CompositionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CompositionError, got %v", err)
	}
	if tk.runCount() != 0 {
		t.Error("nothing should be encoded")
	}
}
