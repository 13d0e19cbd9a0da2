package render

import (
	"fmt"
	"math"

	"github.com/bobarin/reels/internal/models"
)

const (
	defaultIntensity = 0.5

	// Breathing pulse: a subtle zoom oscillation layered on top of the primary
	// motion. ~0.1 rad/frame at 25fps is one breath every ~2.5 seconds.
	breathAmplitude = 0.01
	breathFrequency = 0.10

	// Stills are upscaled before zoompan so sub-pixel motion does not jitter.
	motionSupersample = 2
)

// IsMotionEffect reports whether the effect needs zoompan.
func IsMotionEffect(t models.EffectType) bool {
	switch t {
	case models.EffectZoomIn, models.EffectZoomOut, models.EffectPanLeft,
		models.EffectPanRight, models.EffectKenBurns:
		return true
	}
	return false
}

func effectIntensity(e models.Effect) float64 {
	if e.Intensity == nil {
		return defaultIntensity
	}
	return math.Max(0.05, math.Min(1, *e.Intensity))
}

// effectFrames is how many frames the motion takes. The effect holds its
// final position after that.
func effectFrames(e models.Effect, sceneSec float64) int {
	total := FrameCount(sceneSec)
	if e.DurationSec == nil || *e.DurationSec <= 0 {
		return total
	}
	n := FrameCount(*e.DurationSec)
	if n > total {
		return total
	}
	return n
}

// MotionFilter builds the zoompan chain for a still image that has already
// been normalized to 1080x1920. zoompan emits one frame per output frame, so
// it also repeats the still for the full scene.
func MotionFilter(e models.Effect, sceneSec float64) string {
	totalFrames := FrameCount(sceneSec) + 1
	span := effectFrames(e, sceneSec)
	zoomRange := 0.6 * effectIntensity(e)

	// progress 0..1 over the effect span, then held
	p := fmt.Sprintf("min(on/%d,1)", span)
	breath := fmt.Sprintf("%.3f*sin(on*%.3f)", breathAmplitude, breathFrequency)

	centerX := "iw/2-(iw/zoom/2)"
	centerY := "ih/2-(ih/zoom/2)"
	panZoom := 1 + zoomRange/2

	var zExpr, xExpr, yExpr string
	switch e.Type {
	case models.EffectZoomIn:
		zExpr = fmt.Sprintf("1.0+%.3f*%s+%s", zoomRange, p, breath)
		xExpr, yExpr = centerX, centerY

	case models.EffectZoomOut:
		zExpr = fmt.Sprintf("%.3f-%.3f*%s+%s", 1+zoomRange, zoomRange, p, breath)
		xExpr, yExpr = centerX, centerY

	case models.EffectPanRight:
		zExpr = fmt.Sprintf("%.3f+%s", panZoom, breath)
		xExpr = fmt.Sprintf("(iw-iw/zoom)*%s", p)
		yExpr = centerY

	case models.EffectPanLeft:
		zExpr = fmt.Sprintf("%.3f+%s", panZoom, breath)
		xExpr = fmt.Sprintf("(iw-iw/zoom)*(1-%s)", p)
		yExpr = centerY

	default: // ken_burns: push in while drifting right
		zExpr = fmt.Sprintf("1.0+%.3f*%s+%s", zoomRange*0.8, p, breath)
		xExpr = fmt.Sprintf("min(iw-iw/zoom,(iw-iw/zoom)*%s)", p)
		yExpr = centerY
	}

	return fmt.Sprintf(
		"scale=%d:%d,zoompan=z='%s':x='%s':y='%s':d=%d:s=%dx%d:fps=%d",
		OutputWidth*motionSupersample, OutputHeight*motionSupersample,
		zExpr, xExpr, yExpr,
		totalFrames,
		OutputWidth, OutputHeight,
		OutputFPS,
	)
}

// StaticFilter returns the per-frame filter for non-motion effects, or "" for
// none. It is safe on both stills and video.
func StaticFilter(e models.Effect) string {
	i := effectIntensity(e)
	switch e.Type {
	case models.EffectColor:
		return fmt.Sprintf("eq=contrast=%.3f:saturation=%.3f:brightness=%.3f", 1+0.2*i, 1+0.5*i, 0.03*i)
	case models.EffectVignette:
		return fmt.Sprintf("vignette=angle=%.3f", 0.2+0.5*i)
	}
	return ""
}

// StillLoopFilter repeats a single filtered frame for the scene duration.
func StillLoopFilter(sceneSec float64) string {
	frames := FrameCount(sceneSec) + 1
	return fmt.Sprintf("loop=loop=%d:size=1:start=0,setpts=N/(%d*TB)", frames-1, OutputFPS)
}
