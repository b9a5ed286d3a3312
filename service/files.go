package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"vidconv/events"
	"vidconv/media"
)

// AddFilesResult lists the files that were added and a message for each
// path that was rejected.
type AddFilesResult struct {
	Added  []media.FileInfo `json:"added"`
	Errors []string         `json:"errors"`
}

// AddFiles adds supported files to the workspace with filesystem details
// only. Paths already present are skipped. Metadata is filled in by
// LoadAllMetadata.
func (s *Service) AddFiles(paths []string) AddFilesResult {
	result := AddFilesResult{Added: []media.FileInfo{}, Errors: []string{}}
	seen := make(map[string]struct{}, len(paths))

	var infos []media.FileInfo
	for _, raw := range paths {
		path := absPath(raw)
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		if _, ok := s.ws.Files.Get(path); ok {
			continue
		}

		name := filepath.Base(path)
		if !media.IsSupportedFormat(path) {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: unsupported format", name))
			continue
		}
		info, err := media.Stat(path)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		if limit := s.cfg.MaxInputSize; limit > 0 && info.FileSize > limit {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: file is larger than %s", name, media.FormatFileSize(limit)))
			continue
		}
		infos = append(infos, *info)
	}

	if added := s.ws.Files.Add(infos); len(added) > 0 {
		result.Added = added
		s.logger.Info("files added", "count", len(added))
		s.hub.Publish(events.FilesAdded, added)
	}
	return result
}

// LoadAllMetadata probes every file that has no metadata yet, marks files
// that could not be probed and re-runs the duration check. It returns the
// updated file list.
func (s *Service) LoadAllMetadata(ctx context.Context) []media.FileInfo {
	pending := s.ws.Files.Pending()
	if len(pending) == 0 {
		return s.ws.Files.All()
	}

	paths := make([]string, len(pending))
	for i, f := range pending {
		paths[i] = f.Path
	}

	var updated []media.FileInfo
	for i, res := range s.prober.ProbeAll(ctx, paths) {
		var info media.FileInfo
		switch {
		case res.Err == nil && res.Info != nil:
			info = *res.Info
		case ctx.Err() != nil && (errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded)):
			// left pending for the next call
			continue
		default:
			s.logger.Warn("probe failed", "path", res.Path, "error", res.Err)
			info = pending[i]
			info.MarkFailed()
		}
		if s.ws.Files.UpdateMetadata(info) {
			updated = append(updated, info)
		}
	}
	if len(updated) > 0 {
		s.hub.Publish(events.FilesUpdated, updated)
	}

	if s.ws.Files.TotalCount() > 1 {
		result := s.CheckDurationMismatch()
		if result.HasMismatch {
			s.logger.Warn("duration mismatch", "base", result.BaseDuration, "files", len(result.MismatchFiles))
			s.hub.Publish(events.DurationMismatch, result)
		}
	}
	return s.ws.Files.All()
}

// CheckDurationMismatch compares the durations of the listed files and
// flags the ones that disagree with the first probed file.
func (s *Service) CheckDurationMismatch() media.DurationCheckResult {
	result := media.CheckDurationMismatch(s.ws.Files.All(), s.cfg.DurationTolerance)
	s.ws.Files.SetDurationMismatch(&result)
	return result
}

// RemoveFile drops a file from the list and the selection.
func (s *Service) RemoveFile(path string) bool {
	path = absPath(path)
	if !s.ws.Files.Remove(path) {
		return false
	}
	if _, checked := s.ws.Files.DurationMismatch(); checked {
		s.CheckDurationMismatch()
	}
	s.hub.Publish(events.FilesRemoved, map[string]string{"path": path})
	return true
}

func (s *Service) ClearFiles() {
	s.ws.Files.Clear()
	s.hub.Publish(events.FilesCleared, nil)
}

func (s *Service) Files() []media.FileInfo {
	return s.ws.Files.All()
}

func (s *Service) ToggleSelection(path string) {
	s.ws.Files.ToggleSelection(absPath(path))
}

func (s *Service) SetSelected(path string, selected bool) {
	s.ws.Files.SetSelected(absPath(path), selected)
}

func (s *Service) SelectAll() {
	s.ws.Files.SelectAll()
}

func (s *Service) DeselectAll() {
	s.ws.Files.DeselectAll()
}

func (s *Service) SelectedPaths() []string {
	return s.ws.Files.SelectedPaths()
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
