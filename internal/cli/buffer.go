package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"clipdeck/internal/capture"
	"clipdeck/internal/hotkey"
	"clipdeck/internal/notify"
	"clipdeck/internal/replay"
	"clipdeck/internal/settings"
	"clipdeck/internal/source"

	"github.com/spf13/cobra"
)

func newBufferCmd() *cobra.Command {
	var copyPath bool

	cmd := &cobra.Command{
		Use:   "buffer",
		Short: "Run the instant-replay buffer in the background",
		Long: "Keeps a rotating recording of the last N seconds of the screen.\n" +
			"Ctrl+F10 saves the most recent completed segment as a clip;\n" +
			"Ctrl+F9 or Ctrl+C stops buffering.",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEnv()
			if err != nil {
				return err
			}

			snap := e.store.Load()
			bounds := settings.NewBoundsCell(snap.Region)

			sources, err := enumerateSources(e.displayW, e.displayH).Sources()
			if err != nil {
				return err
			}
			primary, err := source.PickPrimary(sources)
			if err != nil {
				return err
			}

			ctrl := replay.NewController(replay.Deps{
				Acquire:    buildAcquire(e.ffmpegPath, bounds, e.displayW, e.displayH),
				NewEncoder: capture.NewFFmpegEncoder(e.ffmpegPath),
				Prober:     &capture.FFmpegProber{FFmpegPath: e.ffmpegPath},
				Saver:      e.pipeline,
				Notifier:   notify.NewDesktop(copyPath),
				Settings:   func() settings.Settings { return e.store.Load() },
			})

			if _, err := ctrl.StartBuffering(context.Background(), primary.ID); err != nil {
				return err
			}

			fmt.Printf("Buffering the last %d seconds of %s. Ctrl+F10 saves a clip.\n",
				snap.BufferSeconds, primary.DisplayName)

			keys := hotkey.NewManager()
			keys.Bind([]string{"ctrl", "f10"}, func() {
				if _, err := ctrl.SaveClip(); err != nil {
					slog.Warn("save clip rejected", "error", err)
				}
			})

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			keys.Bind([]string{"ctrl", "f9"}, func() {
				sig <- os.Interrupt
			})

			go keys.Start()
			<-sig
			keys.Stop()

			ctrl.StopBuffering()
			slog.Info("buffer stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&copyPath, "copy-path", true, "copy saved clip paths to the clipboard")
	return cmd
}
