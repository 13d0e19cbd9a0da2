package cli

import (
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/bobarin/reels/internal/output"
)

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(cmd.OutOrStdout())
			cfg := deps.Config
			ok := true

			for _, bin := range []string{"ffmpeg", "ffprobe"} {
				if path, err := exec.LookPath(bin); err != nil {
					f.SetupCheck(bin, false, "not found in PATH")
					ok = false
				} else {
					f.SetupCheck(bin, true, path)
				}
			}

			switch {
			case cfg.PexelsKey != "" && cfg.PixabayKey != "":
				f.SetupCheck("Stock media", true, "Pexels, Pixabay fallback")
			case cfg.PexelsKey != "":
				f.SetupCheck("Stock media", true, "Pexels")
			case cfg.PixabayKey != "":
				f.SetupCheck("Stock media", true, "Pixabay")
			default:
				f.SetupCheck("Stock media", false, "set PEXELS_API_KEY or PIXABAY_API_KEY")
				ok = false
			}

			if cfg.AnalysisProvider == "gemini" {
				keyCheck(f, "Script analysis (Gemini)", cfg.GeminiKey, "GEMINI_API_KEY", "needed unless --timeline is given")
			} else {
				keyCheck(f, "Script analysis (OpenAI)", cfg.OpenAIKey, "OPENAI_API_KEY", "needed unless --timeline is given")
			}
			keyCheck(f, "Captions (Whisper)", cfg.OpenAIKey, "OPENAI_API_KEY", "needed unless --captions is given")

			switch {
			case cfg.ElevenLabsKey != "":
				f.SetupCheck("Voice", true, "ElevenLabs")
			case cfg.CartesiaKey != "":
				f.SetupCheck("Voice", true, "Cartesia")
			default:
				f.SetupCheck("Voice", false, "set ELEVENLABS_API_KEY or CARTESIA_API_KEY, or pass --voice")
			}

			if cfg.MusicLibraryPath == "" {
				f.SetupCheck("Music library", true, "not configured, reels will be voice only")
			} else if _, err := os.Stat(cfg.MusicLibraryPath); err != nil {
				f.SetupCheck("Music library", false, cfg.MusicLibraryPath+" not readable")
				ok = false
			} else {
				f.SetupCheck("Music library", true, cfg.MusicLibraryPath)
			}

			f.SetupCheck("Temp directory", true, cfg.TempDir)

			if ok {
				f.Success("\nReady to render.")
			} else {
				f.Warning("\nSome prerequisites are missing.")
			}
			return nil
		},
	}
}

// keyCheck reports an optional key: missing keys only limit which render
// flags are mandatory.
func keyCheck(f *output.Formatter, name, value, env, hint string) {
	if value != "" {
		f.SetupCheck(name, true, "configured")
		return
	}
	f.SetupCheck(name, false, env+" not set, "+hint)
}
