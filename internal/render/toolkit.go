package render

import (
	"context"

	"github.com/bobarin/reels/internal/services"
)

// Toolkit is the transcoding surface the render stages need.
// *services.FFmpegService satisfies it.
type Toolkit interface {
	Run(ctx context.Context, outputPath string, args ...string) (*services.RunResult, error)
	Probe(ctx context.Context, path string) (*services.ProbeResult, error)
}
