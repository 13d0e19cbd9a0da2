package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const stderrTailBytes = 4096

// RunResult is the outcome of a single ffmpeg invocation.
type RunResult struct {
	Args       []string
	ExitCode   int
	Stderr     string // tail only
	OutputPath string
	Elapsed    time.Duration
}

// ProbeResult is the subset of ffprobe output the pipeline relies on.
type ProbeResult struct {
	Width      int
	Height     int
	Duration   float64 // seconds
	FrameRate  float64
	HasVideo   bool
	HasAudio   bool
	VideoCodec string
}

// ToolkitError carries the exit code and stderr tail of a failed invocation.
type ToolkitError struct {
	Tool     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolkitError) Error() string {
	detail := strings.TrimSpace(e.Stderr)
	if i := strings.LastIndex(detail, "\n"); i >= 0 {
		detail = detail[i+1:]
	}
	if detail == "" {
		detail = e.Err.Error()
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.ExitCode, detail)
}

func (e *ToolkitError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// FFmpegService
// ---------------------------------------------------------------------------

// FFmpegService runs ffmpeg/ffprobe as blocking subprocesses. Encodes share a
// process-wide semaphore so concurrent scene renders across jobs cannot
// oversubscribe the CPU.
type FFmpegService struct {
	ffmpegPath  string
	ffprobePath string
	encodeSem   chan struct{}
}

func NewFFmpegService(maxConcurrentEncodes int) *FFmpegService {
	if maxConcurrentEncodes < 1 {
		maxConcurrentEncodes = 1
	}
	return &FFmpegService{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		encodeSem:   make(chan struct{}, maxConcurrentEncodes),
	}
}

// command starts tools outside the caller's process group. A terminal Ctrl+C
// then reaches only this process, which cancels cooperatively and lets the
// running encode finish.
func command(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	ownProcessGroup(cmd)
	return cmd
}

// CheckInstalled verifies both binaries are on PATH.
func (s *FFmpegService) CheckInstalled() error {
	for _, bin := range []string{s.ffmpegPath, s.ffprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%s not found in PATH: %w", bin, err)
		}
	}
	return nil
}

// Run executes ffmpeg with the given arguments, writing to outputPath. "-y"
// and the output path are appended. The call blocks until the process exits.
func (s *FFmpegService) Run(ctx context.Context, outputPath string, args ...string) (*RunResult, error) {
	select {
	case s.encodeSem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.encodeSem }()

	full := append([]string{"-hide_banner", "-nostdin", "-loglevel", "error"}, args...)
	full = append(full, "-y", outputPath)

	start := time.Now()
	cmd := command(ctx, s.ffmpegPath, full...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &RunResult{
		Args:       full,
		ExitCode:   exitCode(cmd, err),
		Stderr:     tail(stderr.String(), stderrTailBytes),
		OutputPath: outputPath,
		Elapsed:    time.Since(start),
	}

	if err != nil {
		log.Printf("[FFmpeg] Failed after %s (exit=%d) writing %s", res.Elapsed.Round(time.Millisecond), res.ExitCode, filepath.Base(outputPath))
		return res, &ToolkitError{Tool: "ffmpeg", ExitCode: res.ExitCode, Stderr: res.Stderr, Err: err}
	}

	log.Printf("[FFmpeg] Wrote %s in %s", filepath.Base(outputPath), res.Elapsed.Round(time.Millisecond))
	return res, nil
}

// Probe returns dimensions, duration, frame rate and stream presence.
func (s *FFmpegService) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}

	args := []string{
		"-v", "error",
		"-show_entries", "format=duration:stream=codec_type,codec_name,width,height,avg_frame_rate,r_frame_rate,duration",
		"-of", "json",
		path,
	}

	cmd := command(ctx, s.ffprobePath, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &ToolkitError{Tool: "ffprobe", ExitCode: exitCode(cmd, err), Stderr: tail(stderr.String(), stderrTailBytes), Err: err}
	}

	return parseProbeOutput(out.Bytes())
}

// ProbeDuration returns just the container duration in seconds.
func (s *FFmpegService) ProbeDuration(ctx context.Context, path string) (float64, error) {
	p, err := s.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	if p.Duration <= 0 {
		return 0, fmt.Errorf("probe %s: no duration", filepath.Base(path))
	}
	return p.Duration, nil
}

func parseProbeOutput(data []byte) (*ProbeResult, error) {
	type ffprobeStream struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Duration     string `json:"duration"`
	}
	type ffprobeFormat struct {
		Duration string `json:"duration"`
	}
	type ffprobeOutput struct {
		Streams []ffprobeStream `json:"streams"`
		Format  ffprobeFormat   `json:"format"`
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	res := &ProbeResult{}
	if v, err := strconv.ParseFloat(strings.TrimSpace(parsed.Format.Duration), 64); err == nil && v > 0 {
		res.Duration = v
	}

	for _, st := range parsed.Streams {
		switch st.CodecType {
		case "video":
			if res.HasVideo {
				continue
			}
			res.HasVideo = true
			res.Width = st.Width
			res.Height = st.Height
			res.VideoCodec = st.CodecName
			res.FrameRate = parseFrameRate(st.AvgFrameRate)
			if res.FrameRate == 0 {
				res.FrameRate = parseFrameRate(st.RFrameRate)
			}
			// Still images report no container duration.
			if res.Duration == 0 {
				if v, err := strconv.ParseFloat(st.Duration, 64); err == nil {
					res.Duration = v
				}
			}
		case "audio":
			res.HasAudio = true
		}
	}

	return res, nil
}

// parseFrameRate turns "25/1" or "30000/1001" into a float.
func parseFrameRate(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "0/0" {
		return 0
	}
	num, den, ok := strings.Cut(raw, "/")
	if !ok {
		v, _ := strconv.ParseFloat(raw, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// EscapeFilterPath escapes a file path for use inside a filter argument.
// Filter strings treat colons, backslashes, and single quotes specially.
func EscapeFilterPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "\\\\")
	path = strings.ReplaceAll(path, ":", "\\:")
	path = strings.ReplaceAll(path, "'", "'\\''")
	return path
}

func exitCode(cmd *exec.Cmd, err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if err != nil {
		return -1
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return 0
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
