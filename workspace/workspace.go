package workspace

import "vidconv/preset"

// Workspace groups the containers that make up one client session.
type Workspace struct {
	Files    *Files
	Settings *Settings
	Encoders *Encoders
	Encoding *EncodingState
}

func New(presets []preset.Preset, outputFolder string) *Workspace {
	return &Workspace{
		Files:    NewFiles(),
		Settings: NewSettings(presets, outputFolder),
		Encoders: NewEncoders(),
		Encoding: NewEncodingState(),
	}
}
