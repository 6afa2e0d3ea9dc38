package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newClipsCmd() *cobra.Command {
	var withDuration bool

	cmd := &cobra.Command{
		Use:   "clips",
		Short: "List saved clips and audio recordings",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEnv()
			if err != nil {
				return err
			}

			for _, dir := range []string{e.sink.ClipsDir(), e.sink.AudioDir()} {
				entries, err := e.sink.List(dir)
				if err != nil {
					return err
				}

				for _, entry := range entries {
					line := fmt.Sprintf("%s  %8.1f MB  %s",
						entry.CreatedAt.Format("2006-01-02 15:04"),
						float64(entry.SizeBytes)/(1024*1024),
						entry.Name,
					)
					if withDuration {
						if d := e.pipeline.Duration(entry.Path); d > 0 {
							line += fmt.Sprintf("  (%s)", d.Round(1e9))
						}
					}
					fmt.Println(line)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withDuration, "durations", false, "probe each file's duration")
	return cmd
}
