package render

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/bobarin/reels/internal/services"
)

// fakeToolkit records every invocation and writes a placeholder output file
// so tracker bookkeeping can be asserted on disk.
type fakeToolkit struct {
	mu       sync.Mutex
	runs     [][]string
	outputs  []string
	probes   map[string]*services.ProbeResult
	fallback func(path string) *services.ProbeResult
	failRun  func(outputPath string) bool
}

func newFakeToolkit() *fakeToolkit {
	return &fakeToolkit{probes: make(map[string]*services.ProbeResult)}
}

func (f *fakeToolkit) Run(ctx context.Context, outputPath string, args ...string) (*services.RunResult, error) {
	f.mu.Lock()
	f.runs = append(f.runs, append([]string(nil), args...))
	f.outputs = append(f.outputs, outputPath)
	fail := f.failRun != nil && f.failRun(outputPath)
	f.mu.Unlock()

	if err := os.WriteFile(outputPath, []byte("partial"), 0644); err != nil {
		return nil, err
	}
	if fail {
		return &services.RunResult{ExitCode: 1, OutputPath: outputPath}, &services.ToolkitError{Tool: "ffmpeg", ExitCode: 1, Err: errors.New("exit status 1")}
	}
	return &services.RunResult{Args: args, OutputPath: outputPath}, nil
}

func (f *fakeToolkit) Probe(ctx context.Context, path string) (*services.ProbeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.probes[path]; ok {
		cp := *p
		return &cp, nil
	}
	if f.fallback != nil {
		if p := f.fallback(path); p != nil {
			return p, nil
		}
	}
	return nil, errors.New("no probe configured for " + path)
}

func (f *fakeToolkit) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func countArg(args []string, flag string) int {
	n := 0
	for _, a := range args {
		if a == flag {
			n++
		}
	}
	return n
}

func joined(args []string) string {
	return strings.Join(args, " ")
}

func portraitOutput(path string) *services.ProbeResult {
	return &services.ProbeResult{Width: OutputWidth, Height: OutputHeight, FrameRate: OutputFPS, HasVideo: true, Duration: 4}
}
