// Package workspace holds the in-process state a client works against: the
// file list and selection, preset and output settings, the encoder choice
// and the state of the running encode. Every container is safe for
// concurrent use and hands out copies.
package workspace

import (
	"sync"

	"vidconv/media"
)

// Files is the working set of source files. The path is the identity of a
// file and the selection is a set of paths.
type Files struct {
	mu       sync.RWMutex
	files    []media.FileInfo
	selected map[string]struct{}
	mismatch *media.DurationCheckResult
}

func NewFiles() *Files {
	return &Files{selected: make(map[string]struct{})}
}

// Add appends the files whose path is not yet listed and selects every given
// path. It returns the files that were actually appended.
func (f *Files) Add(files []media.FileInfo) []media.FileInfo {
	f.mu.Lock()
	defer f.mu.Unlock()

	known := make(map[string]struct{}, len(f.files))
	for _, existing := range f.files {
		known[existing.Path] = struct{}{}
	}

	var added []media.FileInfo
	for _, file := range files {
		if _, ok := known[file.Path]; !ok {
			known[file.Path] = struct{}{}
			f.files = append(f.files, file)
			added = append(added, file)
		}
		f.selected[file.Path] = struct{}{}
	}
	return added
}

// UpdateMetadata replaces the entry with the same path. The mismatch flag of
// the stored entry is kept. It reports false for unknown paths.
func (f *Files) UpdateMetadata(file media.FileInfo) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.files {
		if f.files[i].Path == file.Path {
			file.HasDurationMismatch = f.files[i].HasDurationMismatch
			f.files[i] = file
			return true
		}
	}
	return false
}

// Remove drops path from the list and from the selection.
func (f *Files) Remove(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.selected, path)
	for i := range f.files {
		if f.files[i].Path == path {
			f.files = append(f.files[:i], f.files[i+1:]...)
			return true
		}
	}
	return false
}

// Clear empties the list, the selection and the stored duration check.
func (f *Files) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.files = nil
	f.selected = make(map[string]struct{})
	f.mismatch = nil
}

// Get returns the entry for path.
func (f *Files) Get(path string) (media.FileInfo, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, file := range f.files {
		if file.Path == path {
			return file, true
		}
	}
	return media.FileInfo{}, false
}

// All returns a copy of the list in insertion order.
func (f *Files) All() []media.FileInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]media.FileInfo, len(f.files))
	copy(out, f.files)
	return out
}

// ToggleSelection flips the selection of a listed path. Unknown paths are
// ignored.
func (f *Files) ToggleSelection(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.contains(path) {
		return
	}
	if _, ok := f.selected[path]; ok {
		delete(f.selected, path)
	} else {
		f.selected[path] = struct{}{}
	}
}

// SetSelected selects or deselects a listed path.
func (f *Files) SetSelected(path string, selected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.contains(path) {
		return
	}
	if selected {
		f.selected[path] = struct{}{}
	} else {
		delete(f.selected, path)
	}
}

func (f *Files) SelectAll() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.selected = make(map[string]struct{}, len(f.files))
	for _, file := range f.files {
		f.selected[file.Path] = struct{}{}
	}
}

func (f *Files) DeselectAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = make(map[string]struct{})
}

func (f *Files) IsSelected(path string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.selected[path]
	return ok
}

// SelectedPaths returns the selected paths in list order.
func (f *Files) SelectedPaths() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	paths := []string{}
	for _, file := range f.files {
		if _, ok := f.selected[file.Path]; ok {
			paths = append(paths, file.Path)
		}
	}
	return paths
}

// SelectedFiles returns the selected entries in list order.
func (f *Files) SelectedFiles() []media.FileInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()

	files := []media.FileInfo{}
	for _, file := range f.files {
		if _, ok := f.selected[file.Path]; ok {
			files = append(files, file)
		}
	}
	return files
}

// SelectedCount counts listed files that are selected.
func (f *Files) SelectedCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n := 0
	for _, file := range f.files {
		if _, ok := f.selected[file.Path]; ok {
			n++
		}
	}
	return n
}

func (f *Files) TotalCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.files)
}

// Pending returns the files whose metadata has not been extracted yet.
func (f *Files) Pending() []media.FileInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var pending []media.FileInfo
	for _, file := range f.files {
		if !file.Probed() {
			pending = append(pending, file)
		}
	}
	return pending
}

// SetDurationMismatch stores a check result and flags the listed files it
// names. A nil result clears every flag.
func (f *Files) SetDurationMismatch(result *media.DurationCheckResult) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if result != nil {
		stored := *result
		stored.MismatchFiles = append([]media.DurationMismatchInfo(nil), result.MismatchFiles...)
		f.mismatch = &stored
	} else {
		f.mismatch = nil
	}

	for i := range f.files {
		f.files[i].HasDurationMismatch = result != nil && result.Contains(f.files[i].Path)
	}
}

// DurationMismatch returns the last stored check result.
func (f *Files) DurationMismatch() (media.DurationCheckResult, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.mismatch == nil {
		return media.DurationCheckResult{}, false
	}
	return *f.mismatch, true
}

func (f *Files) contains(path string) bool {
	for _, file := range f.files {
		if file.Path == path {
			return true
		}
	}
	return false
}
