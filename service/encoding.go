package service

import (
	"context"
	"errors"
	"fmt"
	"os"

	"vidconv/events"
	"vidconv/ffmpeg"
	"vidconv/media"
	"vidconv/preset"
	"vidconv/task"
	"vidconv/workspace"
)

var (
	ErrPresetNotFound = errors.New("preset not found")
	ErrNotDirectory   = errors.New("not a directory")
)

func (s *Service) Presets() []preset.Preset {
	return s.ws.Settings.Presets()
}

// SelectedPreset returns the preset currently selected by name.
func (s *Service) SelectedPreset() (preset.Preset, bool) {
	return s.ws.Settings.SelectedPreset()
}

func (s *Service) SelectPreset(name string) error {
	if _, ok := s.catalog.ByName(name); !ok {
		return fmt.Errorf("%w: %s", ErrPresetNotFound, name)
	}
	s.ws.Settings.SelectPreset(name)
	return nil
}

func (s *Service) OutputFolder() string {
	return s.ws.Settings.OutputFolder()
}

// SetOutputFolder changes the output folder. The folder must exist.
func (s *Service) SetOutputFolder(path string) error {
	path = absPath(path)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("folder not found: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotDirectory, path)
	}
	s.ws.Settings.SetOutputFolder(path)
	return nil
}

// DetectEncoders refreshes the encoder list. When detection fails only the
// software encoder is offered.
func (s *Service) DetectEncoders(ctx context.Context, refresh bool) []ffmpeg.HWEncoder {
	list, err := s.toolchain.DetectEncoders(ctx, refresh)
	if err != nil {
		s.logger.Warn("encoder detection failed", "error", err)
	}
	if len(list) == 0 {
		list = []ffmpeg.HWEncoder{ffmpeg.SoftwareEncoder()}
	}
	s.ws.Encoders.SetList(list)
	return s.ws.Encoders.List()
}

func (s *Service) Encoders() []ffmpeg.HWEncoder {
	return s.ws.Encoders.List()
}

func (s *Service) SelectedEncoder() string {
	return s.ws.Encoders.Selected()
}

func (s *Service) SelectEncoder(id string) error {
	if err := s.ws.Encoders.Select(id); err != nil {
		return fmt.Errorf("%w: %s", err, id)
	}
	return nil
}

// StartRequest overrides the workspace selection for one run. Empty fields
// fall back to the selected preset and encoder.
type StartRequest struct {
	Preset  string `json:"preset"`
	Encoder string `json:"encoder"`
}

// StartEncoding encodes the selected files into the output folder. Selected
// files without metadata are probed first; files that cannot be probed are
// reported as errors and left out.
func (s *Service) StartEncoding(ctx context.Context, req StartRequest) (*task.Batch, error) {
	if s.manager.IsRunning() {
		return nil, task.ErrBatchRunning
	}

	name := req.Preset
	if name == "" {
		name = s.ws.Settings.SelectedPresetName()
	}
	p, ok := s.catalog.ByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPresetNotFound, name)
	}

	encoderID := req.Encoder
	if encoderID == "" {
		encoderID = s.ws.Encoders.Selected()
	}

	files, failed := s.readySelection(ctx)
	if len(files) == 0 {
		if len(failed) > 0 {
			return nil, fmt.Errorf("%w: metadata could not be read for %d file(s)", task.ErrNoFiles, len(failed))
		}
		return nil, task.ErrNoFiles
	}

	outputDir := s.ws.Settings.OutputFolder()
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output folder: %w", err)
	}

	batch, err := s.manager.StartBatch(task.BatchRequest{
		Files:     files,
		Preset:    p,
		EncoderID: encoderID,
		OutputDir: outputDir,
		Quality:   s.cfg.Quality,
	})
	if err != nil {
		return nil, err
	}

	for _, f := range failed {
		s.ws.Encoding.FileError(f.Name, media.DurationFailed)
		s.hub.Publish(events.EncodingError, fileErrorEvent(f.Name, media.DurationFailed))
	}
	return batch, nil
}

// readySelection returns the selected files with metadata, probing the
// ones that have none yet, and the selected files whose probe failed.
func (s *Service) readySelection(ctx context.Context) (ready, failed []media.FileInfo) {
	selected := s.ws.Files.SelectedFiles()
	var missing bool
	for _, f := range selected {
		if !f.Probed() {
			missing = true
			break
		}
	}
	if missing {
		s.LoadAllMetadata(ctx)
		selected = s.ws.Files.SelectedFiles()
	}

	for _, f := range selected {
		switch {
		case f.Failed(), !f.Probed():
			failed = append(failed, f)
		default:
			ready = append(ready, f)
		}
	}
	return ready, failed
}

// CancelEncoding stops the running batch. It reports whether one was running.
func (s *Service) CancelEncoding() bool {
	return s.manager.Cancel()
}

func (s *Service) CancelJob(id string) error {
	return s.manager.CancelJob(id)
}

func (s *Service) IsEncoding() bool {
	return s.manager.IsRunning()
}

func (s *Service) EncodingState() workspace.EncodingSnapshot {
	return s.ws.Encoding.Snapshot()
}

func (s *Service) Jobs() []task.Job {
	return s.manager.Jobs()
}

func (s *Service) Job(id string) (task.Job, bool) {
	return s.manager.Get(id)
}

func (s *Service) hooks() task.Hooks {
	return task.Hooks{
		OnStarted: func(batchID string, jobs []task.Job) {
			s.ws.Encoding.Start()
			presetName := ""
			if len(jobs) > 0 {
				presetName = jobs[0].PresetName
			}
			s.hub.Publish(events.EncodingStarted, map[string]any{
				"batchId":    batchID,
				"totalFiles": len(jobs),
				"preset":     presetName,
			})
		},
		OnProgress: func(p task.Progress) {
			s.ws.Encoding.UpdateProgress(p)
			s.hub.Publish(events.EncodingProgress, p)
		},
		OnJobCompleted: func(job task.Job) {
			s.ws.Encoding.FileCompleted(job.Source.Name)
			s.hub.Publish(events.EncodingFileComplete, map[string]any{
				"success":    true,
				"outputPath": job.OutputPath,
				"filename":   job.Source.Name,
			})
		},
		OnJobError: func(job task.Job, err error) {
			s.ws.Encoding.FileError(job.Source.Name, err.Error())
			s.hub.Publish(events.EncodingError, fileErrorEvent(job.Source.Name, err.Error()))
		},
		OnBatchComplete: func(sum task.Summary) {
			s.ws.Encoding.Stop()
			s.hub.Publish(events.EncodingAllComplete, sum)
		},
		OnCancelled: func(sum task.Summary) {
			s.ws.Encoding.Stop()
			s.hub.Publish(events.EncodingCancelled, sum)
		},
	}
}

func fileErrorEvent(filename, msg string) map[string]string {
	return map[string]string{"filename": filename, "error": msg}
}
