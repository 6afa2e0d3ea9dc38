package cli

import (
	"fmt"
	"os/exec"

	"clipdeck/internal/audio"

	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that external dependencies are usable",
		RunE: func(cmd *cobra.Command, args []string) error {
			ffmpegPath, err := resolveFFmpeg(flagFFmpeg)
			if err != nil {
				fmt.Println("ffmpeg: NOT FOUND -", err)
				return err
			}

			if out, err := exec.Command(ffmpegPath, "-version").Output(); err != nil {
				fmt.Println("ffmpeg: found but not runnable -", err)
				return err
			} else {
				fmt.Printf("ffmpeg: ok (%s)\n", firstLine(string(out)))
			}

			inputs, err := audio.ListInputDevices()
			if err != nil {
				fmt.Println("audio: cannot enumerate devices -", err)
			} else {
				fmt.Printf("audio: %d input device(s)\n", len(inputs))
				for _, d := range inputs {
					fmt.Println("  -", d.Name)
				}
			}

			outputs, err := audio.ListOutputDevices()
			if err == nil {
				fmt.Printf("audio: %d output device(s) for loopback\n", len(outputs))
			}

			return nil
		},
	}
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' || r == '\r' {
			return s[:i]
		}
	}
	return s
}
