package cli

import (
	"github.com/spf13/cobra"

	"github.com/bobarin/reels/internal/app"
	"github.com/bobarin/reels/internal/config"
	"github.com/bobarin/reels/internal/pipeline"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// BuildFunc wires a pipeline; app.Build in production.
type BuildFunc func(cfg *config.Config, sink pipeline.StatusSink, cancel pipeline.CancelSignal) (*app.Pipeline, error)

type Dependencies struct {
	Config *config.Config
	Build  BuildFunc
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "reels",
		Short:         "Render short vertical reels from a script",
		Long:          "Turns a voiceover script into a 1080x1920 reel: scene planning, voiceover, stock footage, transitions, captions and a ducked music bed.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = Version

	rootCmd.AddCommand(NewRenderCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))

	return rootCmd
}
