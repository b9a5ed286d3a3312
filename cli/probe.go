package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"vidconv/media"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file>...",
		Short: "Show media metadata and check that durations agree",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(ctx.config, ctx.logger(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			added := a.svc.AddFiles(args)
			for _, msg := range added.Errors {
				fmt.Fprintln(cmd.ErrOrStderr(), msg)
			}
			files := a.svc.LoadAllMetadata(cmd.Context())
			if len(files) == 0 {
				return fmt.Errorf("no supported files")
			}

			fmt.Fprintln(out, renderTable(
				[]string{"Name", "Resolution", "FPS", "Duration", "Video", "Audio", "Size"},
				fileRows(files),
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft, alignRight},
			))

			if len(files) > 1 {
				check := a.svc.CheckDurationMismatch()
				if check.HasMismatch {
					fmt.Fprintf(out, "\nDuration mismatch (base %s, tolerance %.1fs):\n", check.BaseDuration, check.Tolerance)
					for _, m := range check.MismatchFiles {
						fmt.Fprintf(out, "  %s  %s (%s)\n", m.Name, m.Duration, m.Diff)
					}
				}
			}
			return nil
		},
	}
}

func fileRows(files []media.FileInfo) [][]string {
	rows := make([][]string, 0, len(files))
	for _, f := range files {
		fps := ""
		if f.Framerate > 0 {
			fps = strconv.FormatFloat(f.Framerate, 'f', -1, 64)
		}
		name := f.Name
		if f.HasDurationMismatch {
			name += " *"
		}
		rows = append(rows, []string{
			name,
			f.Resolution(),
			fps,
			f.Duration,
			f.Codec,
			f.AudioCodec,
			media.FormatFileSize(f.FileSize),
		})
	}
	return rows
}
