// Package cli wires the recording core behind cobra commands. It plays the
// role of the host shell: it owns source selection, settings, and the
// notification surface, and drives the controller through the same calls
// an overlay UI would.
package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"clipdeck/internal/post"
	"clipdeck/internal/settings"
	"clipdeck/internal/store"

	"github.com/spf13/cobra"
)

type env struct {
	ffmpegPath string
	store      *settings.Store
	sink       *store.Sink
	pipeline   *post.Pipeline

	displayW int
	displayH int
}

var (
	flagFFmpeg    string
	flagOutputDir string
	flagDisplayW  int
	flagDisplayH  int
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "clipdeck",
		Short:         "Instant-replay screen and audio recorder",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagFFmpeg, "ffmpeg", "", "path to the ffmpeg binary (default: auto-detect)")
	root.PersistentFlags().StringVar(&flagOutputDir, "output", "", "recordings directory (default: per-user data dir)")
	root.PersistentFlags().IntVar(&flagDisplayW, "display-width", 1920, "physical width of the primary display")
	root.PersistentFlags().IntVar(&flagDisplayH, "display-height", 1080, "physical height of the primary display")

	root.AddCommand(
		newBufferCmd(),
		newRecordCmd(),
		newAudioCmd(),
		newClipsCmd(),
		newTrimCmd(),
		newDoctorCmd(),
	)

	return root
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func buildEnv() (*env, error) {
	ffmpegPath, err := resolveFFmpeg(flagFFmpeg)
	if err != nil {
		return nil, err
	}

	st, err := settings.NewStore()
	if err != nil {
		return nil, fmt.Errorf("failed to open settings store: %w", err)
	}

	cfg := st.Load()
	outputDir := cfg.OutputDir
	if flagOutputDir != "" {
		outputDir = flagOutputDir
	}

	sink, err := store.New(outputDir)
	if err != nil {
		return nil, err
	}

	return &env{
		ffmpegPath: ffmpegPath,
		store:      st,
		sink:       sink,
		pipeline:   post.NewPipeline(ffmpegPath, sink),
		displayW:   flagDisplayW,
		displayH:   flagDisplayH,
	}, nil
}

// resolveFFmpeg locates the external media tool once; the result is reused
// for every invocation.
func resolveFFmpeg(override string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", fmt.Errorf("ffmpeg not found at %s: %w", override, err)
		}
		return override, nil
	}

	binary := "ffmpeg"
	if isWindows() {
		binary = "ffmpeg.exe"
	}

	if exePath, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exePath)
		for _, candidate := range []string{
			filepath.Join(exeDir, binary),
			filepath.Join(exeDir, "bin", binary),
		} {
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
	}

	if path, err := exec.LookPath("ffmpeg"); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("ffmpeg not found; install it or pass --ffmpeg")
}
