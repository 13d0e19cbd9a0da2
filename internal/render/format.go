package render

import (
	"fmt"
	"math"

	"github.com/bobarin/reels/internal/models"
)

// Output format for every rendered scene: 1080x1920 portrait at 25fps.
const (
	OutputWidth  = 1080
	OutputHeight = 1920
	OutputFPS    = 25
	PixelFormat  = "yuv420p"

	maxFadeSec             = 0.5
	fadeFraction           = 0.1
	sceneDurationTolerance = 0.1
)

// encodeArgs are shared by every video encode in the pipeline.
func encodeArgs() []string {
	return []string{
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "20",
		"-pix_fmt", PixelFormat,
		"-r", fmt.Sprint(OutputFPS),
		"-movflags", "+faststart",
	}
}

// NormalizeFilter returns the crop/scale chain that maps a srcW x srcH frame
// onto the 1080x1920 canvas.
//
//   - landscape: center-crop to the 9:16 width at full height, then scale
//   - portrait taller than 9:16: center-crop the height, then scale
//   - anything else: scale to fit and pad
//
// A precomputed crop window is used when it fits the probed frame.
func NormalizeFilter(srcW, srcH int, crop *models.CropRect) string {
	if crop == nil || !crop.Fits(srcW, srcH) {
		crop = models.CenterCropToPortrait(srcW, srcH)
	}
	if crop != nil {
		return fmt.Sprintf("crop=%d:%d:%d:%d,scale=%d:%d,setsar=1",
			crop.W, crop.H, crop.X, crop.Y, OutputWidth, OutputHeight)
	}
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black,setsar=1",
		OutputWidth, OutputHeight, OutputWidth, OutputHeight)
}

// FadeDuration is the in/out fade length for a scene: 0.5s or 10% of the
// scene, whichever is smaller.
func FadeDuration(sceneSec float64) float64 {
	return math.Min(maxFadeSec, fadeFraction*sceneSec)
}

// LoopCount returns the -stream_loop value needed for a source of srcSec to
// cover targetSec: the number of extra plays, 0 when it already covers.
func LoopCount(srcSec, targetSec float64) int {
	if srcSec <= 0 || srcSec >= targetSec {
		return 0
	}
	plays := int(math.Ceil(targetSec/srcSec - 1e-9))
	return plays - 1
}

// FrameCount is the number of output frames for a duration, rounded up.
func FrameCount(sec float64) int {
	n := int(math.Ceil(sec*OutputFPS - 1e-9))
	if n < 1 {
		n = 1
	}
	return n
}

func fadeFilter(sceneSec float64) string {
	fd := FadeDuration(sceneSec)
	if fd <= 0 {
		return ""
	}
	return fmt.Sprintf("fade=t=in:st=0:d=%.3f,fade=t=out:st=%.3f:d=%.3f", fd, sceneSec-fd, fd)
}
