package services

import (
	"errors"
	"strings"
	"testing"
)

func TestParseProbeOutputVideo(t *testing.T) {
	data := []byte(`{
		"streams": [
			{"codec_type": "video", "codec_name": "h264", "width": 1080, "height": 1920, "avg_frame_rate": "25/1", "r_frame_rate": "25/1"},
			{"codec_type": "audio", "codec_name": "aac"}
		],
		"format": {"duration": "12.480000"}
	}`)

	p, err := parseProbeOutput(data)
	if err != nil {
		t.Fatalf("parseProbeOutput: %v", err)
	}
	if p.Width != 1080 || p.Height != 1920 {
		t.Errorf("expected 1080x1920, got %dx%d", p.Width, p.Height)
	}
	if p.FrameRate != 25 {
		t.Errorf("expected 25fps, got %v", p.FrameRate)
	}
	if p.Duration != 12.48 {
		t.Errorf("expected 12.48s, got %v", p.Duration)
	}
	if !p.HasVideo || !p.HasAudio {
		t.Errorf("expected video and audio, got video=%v audio=%v", p.HasVideo, p.HasAudio)
	}
}

func TestParseProbeOutputAudioOnly(t *testing.T) {
	p, err := parseProbeOutput([]byte(`{"streams":[{"codec_type":"audio"}],"format":{"duration":"33.0"}}`))
	if err != nil {
		t.Fatalf("parseProbeOutput: %v", err)
	}
	if p.HasVideo {
		t.Error("expected no video stream")
	}
	if p.Duration != 33 {
		t.Errorf("expected 33s, got %v", p.Duration)
	}

	if _, err := parseProbeOutput([]byte("not json")); err == nil {
		t.Error("expected error for invalid json")
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := map[string]float64{
		"25/1":       25,
		"30000/1001": 30000.0 / 1001.0,
		"0/0":        0,
		"":           0,
		"24":         24,
		"1/0":        0,
	}
	for in, want := range tests {
		if got := parseFrameRate(in); got != want {
			t.Errorf("parseFrameRate(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestEscapeFilterPath(t *testing.T) {
	got := EscapeFilterPath(`C:\tmp\it's.ass`)
	want := `C\:\\tmp\\it'\''s.ass`
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestToolkitErrorUsesLastStderrLine(t *testing.T) {
	err := &ToolkitError{
		Tool:     "ffmpeg",
		ExitCode: 1,
		Stderr:   "frame=1\nError opening input: No such file\n",
		Err:      errors.New("exit status 1"),
	}
	if !strings.Contains(err.Error(), "No such file") {
		t.Errorf("expected stderr detail in %q", err.Error())
	}
	if !strings.Contains(err.Error(), "code 1") {
		t.Errorf("expected exit code in %q", err.Error())
	}
}
