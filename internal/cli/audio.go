package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clipdeck/internal/audio"
	"clipdeck/internal/post"
	"clipdeck/internal/session"
	"clipdeck/internal/settings"

	"github.com/spf13/cobra"
)

func newAudioCmd() *cobra.Command {
	var (
		mode     string
		device   string
		duration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "audio",
		Short: "Record standalone audio to MP3",
		Long:  "Captures system audio, microphone, or both, and finalizes to a 192 kbps MP3.",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEnv()
			if err != nil {
				return err
			}

			audioMode := settings.AudioMode(mode)
			switch audioMode {
			case settings.AudioSystem, settings.AudioSystemPlusMic, settings.AudioMicOnly:
			default:
				return fmt.Errorf("unknown audio mode %q", mode)
			}

			limit := duration
			if limit <= 0 || limit > session.ManualCap {
				limit = session.ManualCap
			}

			mixer, err := audio.AcquireForMode(audioMode, device, int(limit.Seconds()))
			if err != nil {
				return fmt.Errorf("failed to start audio recording: %w", err)
			}
			defer mixer.Close()

			fmt.Println("Recording audio. Ctrl+C to stop and save.")

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			select {
			case <-sig:
			case <-time.After(limit):
			}

			pcm := mixer.Output().Snapshot()
			mixer.Close()

			if len(pcm) == 0 {
				return fmt.Errorf("no audio captured")
			}

			wavData, err := post.EncodeWAV(pcm, audio.SampleRate, audio.Channels)
			if err != nil {
				return fmt.Errorf("failed to encode audio: %w", err)
			}

			path, err := e.pipeline.SaveAudio(wavData, "wav", "audio").Wait()
			if err != nil {
				return err
			}

			fmt.Println("Saved", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(settings.AudioSystem), "audio sources: system, mic, or system+mic")
	cmd.Flags().StringVar(&device, "device", "", "microphone device id (default device when empty)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop automatically after this long (capped at 30m)")
	return cmd
}
