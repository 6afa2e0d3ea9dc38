package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clipdeck/internal/capture"
	"clipdeck/internal/notify"
	"clipdeck/internal/replay"
	"clipdeck/internal/settings"
	"clipdeck/internal/source"

	"github.com/spf13/cobra"
)

func newRecordCmd() *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Start a manual screen recording",
		Long:  "Records until Ctrl+C, --duration elapses, or the 30 minute hard cap.",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEnv()
			if err != nil {
				return err
			}

			bounds := settings.NewBoundsCell(e.store.Load().Region)

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
				Notifier:   notify.NewDesktop(false),
				Settings:   func() settings.Settings { return e.store.Load() },
			})

			if _, err := ctrl.StartManualRecording(context.Background(), primary.ID); err != nil {
				return err
			}
			fmt.Println("Recording. Ctrl+C to stop and save.")

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

			if duration > 0 {
				select {
				case <-sig:
				case <-time.After(duration):
				}
			} else {
				<-sig
			}

			ctrl.StopManualRecording()

			// Let the asynchronous save hand-off settle before exiting.
			for ctrl.InFlightSaves() > 0 {
				time.Sleep(100 * time.Millisecond)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 0, "stop automatically after this long")
	return cmd
}
