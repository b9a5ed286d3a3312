package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"vidconv/events"
	"vidconv/service"
	"vidconv/task"
)

func newEncodeCommand(ctx *commandContext) *cobra.Command {
	var presetName, encoderID, outputDir string
	cmd := &cobra.Command{
		Use:   "encode <file>...",
		Short: "Convert files to HEVC/Matroska",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.config
			a, err := newApp(cfg, ctx.logger(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			a.svc.Start(runCtx)

			stderr := cmd.ErrOrStderr()
			added := a.svc.AddFiles(args)
			for _, msg := range added.Errors {
				fmt.Fprintln(stderr, msg)
			}

			if outputDir != "" {
				if err := os.MkdirAll(outputDir, 0o755); err != nil {
					return fmt.Errorf("create output folder: %w", err)
				}
				if err := a.svc.SetOutputFolder(outputDir); err != nil {
					return err
				}
			}
			if encoderID == "" {
				a.svc.DetectEncoders(runCtx, false)
			}

			sub := a.svc.Hub().Subscribe()
			batch, err := a.svc.StartEncoding(runCtx, service.StartRequest{Preset: presetName, Encoder: encoderID})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printer := &progressPrinter{out: out, tty: isTerminal(out)}
			interrupted := runCtx.Done()
		loop:
			for {
				select {
				case ev, ok := <-sub.C:
					if !ok {
						break loop
					}
					printer.handle(ev)
				case <-batch.Done():
					for {
						select {
						case ev, ok := <-sub.C:
							if !ok {
								break loop
							}
							printer.handle(ev)
						default:
							break loop
						}
					}
				case <-interrupted:
					interrupted = nil
					printer.clear()
					fmt.Fprintln(stderr, "cancelling...")
					a.svc.CancelEncoding()
				}
			}
			printer.clear()

			state := a.svc.EncodingState()
			fmt.Fprintf(out, "Completed %d of %d file(s), output in %s\n", len(state.CompletedFiles), len(batch.Jobs), a.svc.OutputFolder())
			for _, fe := range state.Errors {
				fmt.Fprintf(stderr, "  %s: %s\n", fe.Filename, fe.Error)
			}
			if runCtx.Err() != nil {
				return runCtx.Err()
			}
			if n := len(state.Errors); n > 0 {
				return fmt.Errorf("%d file(s) failed", n)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&presetName, "preset", "p", "", "Preset name (default: source settings)")
	cmd.Flags().StringVarP(&encoderID, "encoder", "e", "", "Encoder id (default: best detected)")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output folder (overrides OUTPUT_DIR)")
	return cmd
}

// progressPrinter renders encoding events. On a terminal the current
// progress is redrawn in place; elsewhere only per-file results are printed.
type progressPrinter struct {
	out     io.Writer
	tty     bool
	lastLen int
}

func (p *progressPrinter) handle(ev events.Event) {
	switch ev.Type {
	case events.EncodingProgress:
		progress, ok := ev.Data.(task.Progress)
		if !ok || !p.tty {
			return
		}
		line := progressLine(progress)
		pad := ""
		if n := p.lastLen - len(line); n > 0 {
			pad = strings.Repeat(" ", n)
		}
		fmt.Fprintf(p.out, "\r%s%s", line, pad)
		p.lastLen = len(line)
	case events.EncodingFileComplete:
		if data, ok := ev.Data.(map[string]any); ok {
			p.clear()
			fmt.Fprintf(p.out, "done   %v -> %v\n", data["filename"], data["outputPath"])
		}
	case events.EncodingError:
		if data, ok := ev.Data.(map[string]string); ok {
			p.clear()
			fmt.Fprintf(p.out, "failed %s: %s\n", data["filename"], firstLine(data["error"]))
		}
	}
}

// clear erases an in-place progress line.
func (p *progressPrinter) clear() {
	if p.lastLen == 0 {
		return
	}
	fmt.Fprintf(p.out, "\r%s\r", strings.Repeat(" ", p.lastLen))
	p.lastLen = 0
}

func progressLine(p task.Progress) string {
	line := fmt.Sprintf("[%d/%d] %s %5.1f%%", p.CurrentFile, p.TotalFiles, p.Filename, p.Progress)
	if p.Speed != "" {
		line += "  speed " + p.Speed
	}
	if p.ETA != "" {
		line += "  ETA " + p.ETA
	}
	return line
}

func firstLine(s string) string {
	first, _, _ := strings.Cut(s, "\n")
	return first
}
