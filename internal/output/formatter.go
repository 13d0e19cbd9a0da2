package output

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/bobarin/reels/internal/models"
)

type Formatter struct {
	w io.Writer
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

var statusIcons = map[models.ReelStatus]string{
	models.ReelStatusProcessing:          "⏳",
	models.ReelStatusAnalyzing:           "🧠",
	models.ReelStatusGeneratingVoiceover: "🎙️ ",
	models.ReelStatusGatheringVisuals:    "🔎",
	models.ReelStatusAssemblingVideo:     "🎞️ ",
	models.ReelStatusFinalizing:          "🎚️ ",
	models.ReelStatusCompleted:           "✅",
	models.ReelStatusFailed:              "❌",
	models.ReelStatusCancelled:           "⏹️ ",
}

// ReportStatus prints one line per status change, so a Formatter can be the
// pipeline's status sink for local renders.
func (f *Formatter) ReportStatus(_ context.Context, job *models.ReelJob) error {
	icon := statusIcons[job.Status]
	line := fmt.Sprintf("%s %-22s %3.0f%%", icon, job.Status, job.Progress*100)
	if job.ErrorMessage != nil && job.Status.IsTerminal() {
		line += "  " + *job.ErrorMessage
	}
	_, err := fmt.Fprintln(f.w, line)
	return err
}

func (f *Formatter) ReelComplete(path string, duration float64, elapsed time.Duration) {
	fmt.Fprintf(f.w, "\n🎬 Reel saved: %s (%.1fs, rendered in %s)\n", path, duration, formatDuration(elapsed))
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "❌ %s\n", msg)
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "ℹ️  %s\n", msg)
}

func (f *Formatter) Success(msg string) {
	fmt.Fprintf(f.w, "✅ %s\n", msg)
}

func (f *Formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "⚠️  %s\n", msg)
}

func (f *Formatter) SetupCheck(name string, ok bool, detail string) {
	if ok {
		fmt.Fprintf(f.w, "  ✅ %s: %s\n", name, detail)
	} else {
		fmt.Fprintf(f.w, "  ❌ %s: %s\n", name, detail)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
