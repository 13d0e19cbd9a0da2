package render

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/bobarin/reels/internal/models"
	"github.com/bobarin/reels/internal/services"
)

const (
	finalDurationTolerance = 0.5
	// gaps below one frame are left to trim
	minPadSec = 1.0 / OutputFPS
)

// MixConfig holds the audio mixing parameters. Defaults follow the
// sidechain-ducking mix: music sits low under the voice and ducks further
// while the voice is speaking.
type MixConfig struct {
	SampleRate     int
	MusicVolume    float64
	MusicLowpassHz int
	MusicFadeSec   float64
	DuckThreshold  float64
	DuckRatio      float64
	DuckAttackMs   int
	DuckReleaseMs  int
	TargetLUFS     float64
	TruePeak       float64
	AudioBitrate   string
}

func DefaultMixConfig() MixConfig {
	return MixConfig{
		SampleRate:     44100,
		MusicVolume:    0.15,
		MusicLowpassHz: 8000,
		MusicFadeSec:   1.0,
		DuckThreshold:  0.05,
		DuckRatio:      8,
		DuckAttackMs:   20,
		DuckReleaseMs:  400,
		TargetLUFS:     -14,
		TruePeak:       -1.5,
		AudioBitrate:   "192k",
	}
}

// MixInput describes one final mux.
type MixInput struct {
	VideoPath     string
	VoicePath     string
	MusicPath     string // empty = voice only
	CaptionsPath  string // empty = no burn-in
	VoiceDuration float64
	VideoDuration float64 // 0 = unknown, never padded
}

// Mixer combines the composite video, voiceover, optional music and
// captions into the deliverable.
type Mixer struct {
	toolkit Toolkit
	cfg     MixConfig
}

func NewMixer(toolkit Toolkit, cfg MixConfig) *Mixer {
	return &Mixer{toolkit: toolkit, cfg: cfg}
}

// Finalize writes the deliverable to outputPath. The voiceover duration is
// authoritative: the video is trimmed to it and the result is checked
// against it.
func (m *Mixer) Finalize(ctx context.Context, video *models.CompositeVideo, voicePath, musicPath, captionsPath, outputPath string) (*models.FinalVideo, error) {
	voice, err := m.toolkit.Probe(ctx, voicePath)
	if err != nil {
		return nil, &models.MixError{Op: "probe voiceover", Err: err}
	}
	if !voice.HasAudio || voice.Duration <= 0 {
		return nil, &models.MixError{Op: "probe voiceover", Err: fmt.Errorf("no audio in %s", filepath.Base(voicePath))}
	}

	if musicPath != "" {
		if _, err := os.Stat(musicPath); err != nil {
			log.Printf("[Mixer] Background music not found at %s, mixing voice only", musicPath)
			musicPath = ""
		}
	} else {
		log.Printf("[Mixer] No background music, mixing voice only")
	}

	in := MixInput{
		VideoPath:     video.Path,
		VoicePath:     voicePath,
		MusicPath:     musicPath,
		CaptionsPath:  captionsPath,
		VoiceDuration: voice.Duration,
		VideoDuration: video.Duration,
	}
	args := BuildMixArgs(in, m.cfg)

	log.Printf("[Mixer] Finalizing %.3fs (video %.3fs, music=%t, captions=%t)",
		voice.Duration, video.Duration, musicPath != "", captionsPath != "")

	if _, err := m.toolkit.Run(ctx, outputPath, args...); err != nil {
		_ = os.Remove(outputPath)
		return nil, &models.MixError{Op: "mux", Err: err}
	}

	out, err := m.toolkit.Probe(ctx, outputPath)
	if err != nil {
		_ = os.Remove(outputPath)
		return nil, &models.MixError{Op: "probe output", Err: err}
	}
	if !out.HasVideo || !out.HasAudio {
		_ = os.Remove(outputPath)
		return nil, &models.MixError{Op: "validate", Err: fmt.Errorf("output missing streams (video=%t audio=%t)", out.HasVideo, out.HasAudio)}
	}
	if math.Abs(out.Duration-voice.Duration) > finalDurationTolerance {
		log.Printf("[Mixer] Final duration %.3fs differs from voiceover %.3fs", out.Duration, voice.Duration)
	}

	return &models.FinalVideo{
		Path:     outputPath,
		Duration: out.Duration,
		HasVideo: out.HasVideo,
		HasAudio: out.HasAudio,
	}, nil
}

// BuildMixArgs returns the ffmpeg arguments for the final mux.
// Inputs: 0 = composite video, 1 = voiceover, 2 = looped music (optional).
func BuildMixArgs(in MixInput, cfg MixConfig) []string {
	args := []string{"-i", in.VideoPath, "-i", in.VoicePath}
	if in.MusicPath != "" {
		args = append(args, "-stream_loop", "-1", "-i", in.MusicPath)
	}

	graph := strings.Join([]string{
		videoGraph(in),
		audioGraph(in, cfg),
	}, ";")

	args = append(args,
		"-filter_complex", graph,
		"-map", "[vout]",
		"-map", "[aout]",
	)
	args = append(args, encodeArgs()...)
	args = append(args,
		"-c:a", "aac",
		"-b:a", cfg.AudioBitrate,
		"-ar", fmt.Sprint(cfg.SampleRate),
		"-shortest",
	)
	return args
}

func videoGraph(in MixInput) string {
	chain := "[0:v]"
	// -shortest would otherwise cut the voiceover to a short composite
	if gap := in.VoiceDuration - in.VideoDuration; in.VideoDuration > 0 && gap >= minPadSec {
		chain += fmt.Sprintf("tpad=stop_mode=clone:stop_duration=%.3f,", gap)
	}
	chain += fmt.Sprintf("trim=duration=%.3f,setpts=PTS-STARTPTS", in.VoiceDuration)
	if in.CaptionsPath != "" {
		escaped := services.EscapeFilterPath(in.CaptionsPath)
		if strings.EqualFold(filepath.Ext(in.CaptionsPath), ".ass") {
			chain += fmt.Sprintf(",ass='%s'", escaped)
		} else {
			chain += fmt.Sprintf(",subtitles='%s'", escaped)
		}
	}
	return chain + ",format=" + PixelFormat + "[vout]"
}

func audioGraph(in MixInput, cfg MixConfig) string {
	common := fmt.Sprintf("aresample=%d,aformat=sample_fmts=fltp:channel_layouts=stereo", cfg.SampleRate)
	voice := fmt.Sprintf("[1:a]%s,acompressor=threshold=-18dB:ratio=3:attack=5:release=50,dynaudnorm=f=150:g=15", common)
	master := fmt.Sprintf("loudnorm=I=%.1f:TP=%.1f:LRA=11,aresample=%d", cfg.TargetLUFS, cfg.TruePeak, cfg.SampleRate)

	if in.MusicPath == "" {
		return fmt.Sprintf("%s,%s[aout]", voice, master)
	}

	fadeStart := math.Max(0, in.VoiceDuration-cfg.MusicFadeSec)
	return strings.Join([]string{
		voice + ",asplit=2[voicemix][voicekey]",
		fmt.Sprintf("[2:a]%s,lowpass=f=%d,volume=%.2f,atrim=duration=%.3f,asetpts=PTS-STARTPTS,afade=t=out:st=%.3f:d=%.3f[music]",
			common, cfg.MusicLowpassHz, cfg.MusicVolume, in.VoiceDuration, fadeStart, cfg.MusicFadeSec),
		fmt.Sprintf("[music][voicekey]sidechaincompress=threshold=%.3f:ratio=%.1f:attack=%d:release=%d[ducked]",
			cfg.DuckThreshold, cfg.DuckRatio, cfg.DuckAttackMs, cfg.DuckReleaseMs),
		"[voicemix][ducked]amix=inputs=2:duration=first:normalize=0[mixed]",
		fmt.Sprintf("[mixed]%s[aout]", master),
	}, ";")
}
