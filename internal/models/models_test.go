package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestSceneTimelineScan(t *testing.T) {
	data := []byte(`{"scenes":[{"id":"s1","duration":3.5,"visual_type":"b-roll"},{"id":"s2","duration":4}],"mood":"calm"}`)

	var tl SceneTimeline
	if err := tl.Scan(data); err != nil {
		t.Fatalf("failed to scan: %v", err)
	}

	if len(tl.Scenes) != 2 {
		t.Fatalf("expected 2 scenes, got %d", len(tl.Scenes))
	}
	if tl.Scenes[0].VisualType != VisualTypeBRoll {
		t.Errorf("expected b-roll, got %s", tl.Scenes[0].VisualType)
	}
	if tl.PlannedDuration() != 7.5 {
		t.Errorf("expected planned duration 7.5, got %v", tl.PlannedDuration())
	}

	if err := tl.Scan("not bytes"); err == nil {
		t.Error("expected error scanning a string")
	}
}

func TestCenterCropToPortrait(t *testing.T) {
	tests := []struct {
		name string
		w, h int
		want *CropRect
	}{
		{"landscape 1080p", 1920, 1080, &CropRect{X: 657, Y: 0, W: 606, H: 1080}},
		{"landscape 4k", 3840, 2160, &CropRect{X: 1313, Y: 0, W: 1214, H: 2160}},
		{"tall portrait", 1080, 2400, &CropRect{X: 0, Y: 240, W: 1080, H: 1920}},
		{"exact 9:16", 1080, 1920, nil},
		{"wide portrait pads", 1080, 1440, nil},
		{"square pads", 1000, 1000, nil},
		{"invalid", 0, 100, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CenterCropToPortrait(tt.w, tt.h)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("expected no crop, got %+v", *got)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected crop %+v, got nil", *tt.want)
			}
			if *got != *tt.want {
				t.Errorf("expected %+v, got %+v", *tt.want, *got)
			}
			if !got.Fits(tt.w, tt.h) {
				t.Errorf("crop %+v does not fit %dx%d", *got, tt.w, tt.h)
			}
		})
	}
}

func TestReelStatusTransitions(t *testing.T) {
	linear := []ReelStatus{
		ReelStatusProcessing,
		ReelStatusAnalyzing,
		ReelStatusGeneratingVoiceover,
		ReelStatusGatheringVisuals,
		ReelStatusAssemblingVideo,
		ReelStatusFinalizing,
		ReelStatusCompleted,
	}

	last := -1.0
	for i := 0; i < len(linear); i++ {
		p, ok := linear[i].Checkpoint()
		if !ok {
			t.Fatalf("%s has no checkpoint", linear[i])
		}
		if p < last {
			t.Errorf("progress decreased at %s: %v < %v", linear[i], p, last)
		}
		last = p
		if i+1 < len(linear) && !CanTransition(linear[i], linear[i+1]) {
			t.Errorf("expected %s -> %s to be allowed", linear[i], linear[i+1])
		}
	}

	if CanTransition(ReelStatusAnalyzing, ReelStatusAssemblingVideo) {
		t.Error("skipping states should not be allowed")
	}
	if CanTransition(ReelStatusFinalizing, ReelStatusAnalyzing) {
		t.Error("moving backwards should not be allowed")
	}
	if !CanTransition(ReelStatusGatheringVisuals, ReelStatusCancelled) {
		t.Error("cancel from a running state should be allowed")
	}
	if !CanTransition(ReelStatusProcessing, ReelStatusFailed) {
		t.Error("fail from processing should be allowed")
	}
	for _, terminal := range []ReelStatus{ReelStatusCompleted, ReelStatusFailed, ReelStatusCancelled} {
		if !terminal.IsTerminal() {
			t.Errorf("%s should be terminal", terminal)
		}
		if CanTransition(terminal, ReelStatusFailed) {
			t.Errorf("%s should be absorbing", terminal)
		}
	}
}

func TestTypedErrorsUnwrap(t *testing.T) {
	err := fmt.Errorf("gathering visuals: %w", &AcquisitionError{SceneID: "s3", Attempts: 8, Err: ErrNoMediaFound})

	var acq *AcquisitionError
	if !errors.As(err, &acq) {
		t.Fatal("expected AcquisitionError")
	}
	if acq.SceneID != "s3" {
		t.Errorf("expected scene s3, got %s", acq.SceneID)
	}
	if !errors.Is(err, ErrNoMediaFound) {
		t.Error("expected ErrNoMediaFound in chain")
	}

	var rerr *RenderError
	if errors.As(err, &rerr) {
		t.Error("acquisition error should not match RenderError")
	}
}
