package workspace

import (
	"sync"

	"vidconv/preset"
)

// Settings holds the available presets, the selected preset name and the
// output folder.
type Settings struct {
	mu           sync.RWMutex
	presets      []preset.Preset
	selected     string
	outputFolder string
}

func NewSettings(presets []preset.Preset, outputFolder string) *Settings {
	s := &Settings{selected: preset.DefaultName, outputFolder: outputFolder}
	s.SetPresets(presets)
	return s
}

func (s *Settings) Presets() []preset.Preset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]preset.Preset, len(s.presets))
	copy(out, s.presets)
	return out
}

func (s *Settings) SetPresets(presets []preset.Preset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presets = append([]preset.Preset(nil), presets...)
}

func (s *Settings) SelectedPresetName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// SelectPreset stores name as the selection without checking it.
func (s *Settings) SelectPreset(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = name
}

// SelectedPreset looks up the selected name. It reports false when no
// preset carries that name.
func (s *Settings) SelectedPreset() (preset.Preset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.presets {
		if p.Name == s.selected {
			return p, true
		}
	}
	return preset.Preset{}, false
}

func (s *Settings) OutputFolder() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outputFolder
}

func (s *Settings) SetOutputFolder(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputFolder = dir
}
