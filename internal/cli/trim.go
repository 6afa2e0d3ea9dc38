package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newTrimCmd() *cobra.Command {
	var start, end time.Duration

	cmd := &cobra.Command{
		Use:   "trim <file>",
		Short: "Extract a time range from an audio recording",
		Long:  "Lossless stream-copy extraction; the file must live in the recordings audio directory.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEnv()
			if err != nil {
				return err
			}

			out, err := e.pipeline.Trim(args[0], start, end)
			if err != nil {
				return err
			}

			fmt.Println("Saved", out)
			return nil
		},
	}

	cmd.Flags().DurationVar(&start, "start", 0, "range start, e.g. 1m30s")
	cmd.Flags().DurationVar(&end, "end", 0, "range end, e.g. 2m")
	cmd.MarkFlagRequired("end")
	return cmd
}
