package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"vidconv/ffmpeg"
	"vidconv/preset"
)

func newPresetsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the available presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := preset.LoadCatalog(ctx.config.PresetsFile)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Name", "Resolution", "Frame rate", "Level", "Extra args"},
				presetRows(catalog.All()),
				nil,
			))
			return nil
		},
	}
}

func presetRows(presets []preset.Preset) [][]string {
	rows := make([][]string, 0, len(presets))
	for _, p := range presets {
		rows = append(rows, []string{p.Name, p.Resolution, p.Framerate, p.Level, p.ExtraArgs})
	}
	return rows
}

func newEncodersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "encoders",
		Short: "Detect the HEVC encoders ffmpeg offers on this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := ffmpeg.NewRunner(ctx.config, ctx.logger().Named("ffmpeg"))
			encoders, err := runner.DetectEncoders(cmd.Context(), true)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "encoder detection failed: %v\n", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Priority", "Best", "Description"},
				encoderRows(encoders),
				[]columnAlignment{alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
}

func encoderRows(encoders []ffmpeg.HWEncoder) [][]string {
	best := ffmpeg.BestEncoder(encoders)
	rows := make([][]string, 0, len(encoders))
	for _, e := range encoders {
		if !e.Available {
			continue
		}
		mark := ""
		if e.ID == best.ID {
			mark = "*"
		}
		rows = append(rows, []string{e.ID, e.Name, strconv.Itoa(e.Priority), mark, e.Description})
	}
	return rows
}
