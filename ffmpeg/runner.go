// Package ffmpeg wraps the ffmpeg command line tool: encoding with progress
// reporting, hardware encoder detection and argument validation.
package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"vidconv/cmdutil"
	"vidconv/config"
)

// stderrTailLines is how much of ffmpeg's log is kept for error reports.
const stderrTailLines = 5

// ErrInsufficientResources is returned when the host is too busy to start an
// encode.
var ErrInsufficientResources = errors.New("insufficient system resources")

// Throttle sets the minimum free resources needed before an encode starts.
// Zero values disable the corresponding check.
type Throttle struct {
	CPUIdle  float64
	FreeMem  int64
	FreeDisk int64
}

type Runner struct {
	bin      string
	throttle Throttle
	logger   hclog.Logger
	encoders encoderCache
}

// NewRunner resolves the ffmpeg binary from config, falling back to a copy
// shipped next to the executable or the one on PATH.
func NewRunner(cfg *config.Config, logger hclog.Logger) *Runner {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	bin := strings.TrimSpace(cfg.FFBin)
	if bin == "" {
		bin = cmdutil.LocateBinary("ffmpeg")
	}
	return &Runner{
		bin: bin,
		throttle: Throttle{
			CPUIdle:  cfg.ThrottleCPU,
			FreeMem:  cfg.ThrottleFreeMem,
			FreeDisk: cfg.ThrottleFreeDisk,
		},
		logger: logger,
	}
}

// Binary returns the ffmpeg executable in use.
func (r *Runner) Binary() string {
	return r.bin
}

// CheckInstalled verifies that the binary runs and identifies as ffmpeg.
func (r *Runner) CheckInstalled(ctx context.Context) error {
	output, err := r.versionOutput(ctx)
	if err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}
	if !strings.Contains(output, "ffmpeg") {
		return errors.New("invalid ffmpeg output")
	}
	return nil
}

// Version returns the first line of "ffmpeg -version".
func (r *Runner) Version(ctx context.Context) (string, error) {
	output, err := r.versionOutput(ctx)
	if err != nil {
		return "", err
	}
	first, _, _ := strings.Cut(output, "\n")
	return strings.TrimSpace(first), nil
}

func (r *Runner) versionOutput(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.bin, "-version")
	cmdutil.HideWindow(cmd)
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(output), nil
}

// Result describes a finished encode.
type Result struct {
	OutputPath string
	// Log holds the last lines ffmpeg wrote to stderr.
	Log string
}

// ExitError reports a failed ffmpeg run. Its message is the tail of
// ffmpeg's log, which names the actual problem far more often than the exit
// status does.
type ExitError struct {
	Err  error
	Tail string
}

func (e *ExitError) Error() string {
	if e.Tail != "" {
		return e.Tail
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Encode runs "ffmpeg -y -progress pipe:1 args...". The output file is the
// last argument. duration is the source length in seconds and drives the
// percentage passed to onProgress. When ctx ends the process is killed and
// ctx's error is returned.
func (r *Runner) Encode(ctx context.Context, args []string, duration float64, onProgress func(Progress)) (*Result, error) {
	if len(args) == 0 {
		return nil, errors.New("no ffmpeg arguments")
	}
	outputPath := args[len(args)-1]

	if err := r.checkResources(filepath.Dir(outputPath)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsufficientResources, err)
	}

	fullArgs := make([]string, 0, len(args)+3)
	fullArgs = append(fullArgs, "-y", "-progress", "pipe:1")
	fullArgs = append(fullArgs, args...)

	cmd := exec.CommandContext(ctx, r.bin, fullArgs...)
	cmdutil.HideWindow(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	r.logger.Debug("executing ffmpeg", "path", r.bin, "args", strings.Join(fullArgs, " "))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	tailDone := make(chan []string, 1)
	go func() {
		tailDone <- readTail(stderr, stderrTailLines)
	}()

	if err := ParseProgress(stdout, duration, onProgress); err != nil {
		r.logger.Warn("reading ffmpeg progress", "error", err)
	}
	tail := strings.Join(<-tailDone, "\n")
	err = cmd.Wait()

	result := &Result{OutputPath: outputPath, Log: tail}
	if ctxErr := ctx.Err(); ctxErr != nil {
		r.removePartial(outputPath)
		return result, ctxErr
	}
	if err != nil {
		r.removePartial(outputPath)
		return result, &ExitError{Err: err, Tail: tail}
	}
	return result, nil
}

func (r *Runner) removePartial(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("could not remove partial output", "path", path, "error", err)
	}
}

// readTail drains rd and returns its last n non-empty lines.
func readTail(rd io.Reader, n int) []string {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lines := make([]string, 0, n)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if len(lines) == n {
			lines = append(lines[:0], lines[1:]...)
		}
		lines = append(lines, line)
	}
	return lines
}

// checkResources verifies that the system has enough free resources to start a new job.
func (r *Runner) checkResources(outputDir string) error {
	// CPU sampling blocks for a second, so it only runs when configured.
	if r.throttle.CPUIdle > 0 {
		p, err := cpu.Percent(time.Second, false)
		if err != nil {
			r.logger.Warn("could not get CPU usage", "error", err)
		} else if len(p) > 0 && p[0] > (100.0-r.throttle.CPUIdle) {
			return fmt.Errorf("not enough idle CPU. Current usage: %.2f%%, Idle threshold: %.2f%%", p[0], r.throttle.CPUIdle)
		}
	}

	if r.throttle.FreeMem > 0 {
		vm, err := mem.VirtualMemory()
		if err != nil {
			r.logger.Warn("could not get memory usage", "error", err)
		} else if vm.Available < uint64(r.throttle.FreeMem) {
			return fmt.Errorf("not enough free memory. Available: %d, Required: %d", vm.Available, r.throttle.FreeMem)
		}
	}

	if r.throttle.FreeDisk > 0 {
		d, err := disk.Usage(outputDir)
		if err != nil {
			r.logger.Warn("could not get disk usage", "path", outputDir, "error", err)
		} else if d.Free < uint64(r.throttle.FreeDisk) {
			return fmt.Errorf("not enough free disk space. Available: %d, Required: %d", d.Free, r.throttle.FreeDisk)
		}
	}
	return nil
}
