// Package preset defines the target encoding presets and turns a preset plus
// source metadata into ffmpeg arguments.
package preset

import "fmt"

// DefaultName is the preset selected until the user picks another one.
const DefaultName = "Source settings"

// LevelAuto lets the level follow the effective resolution and frame rate.
const LevelAuto = "auto"

// Preset is a named target configuration. Width/Height of 0 and FPS of 0 mean
// "keep the source value".
type Preset struct {
	Name         string  `json:"name" toml:"name"`
	Resolution   string  `json:"resolution" toml:"resolution"`
	Framerate    string  `json:"framerate" toml:"framerate"`
	Width        int     `json:"width" toml:"width"`
	Height       int     `json:"height" toml:"height"`
	Level        string  `json:"level" toml:"level"`
	FPS          float64 `json:"fps" toml:"fps"`
	UseSourceFPS bool    `json:"useSourceFps" toml:"use_source_fps"`
	UseSourceRes bool    `json:"useSourceRes" toml:"use_source_res"`
	ExtraArgs    string  `json:"extraArgs,omitempty" toml:"extra_args"`
}

// Description is a one-line summary for listings.
func (p Preset) Description() string {
	if p.UseSourceRes && p.UseSourceFPS {
		return "Source resolution and frame rate, HEVC"
	}
	return fmt.Sprintf("%s @ %sfps, HEVC", p.Resolution, p.Framerate)
}

// EncodingSettings are the encoder parameters shared by every preset.
type EncodingSettings struct {
	EncoderPreset  string `json:"encoderPreset"`
	EncoderTune    string `json:"encoderTune"`
	EncoderProfile string `json:"encoderProfile"`
	Quality        int    `json:"quality"`
	AudioBitrate   int    `json:"audioBitrate"`
	AudioChannels  int    `json:"audioChannels"`
	Decomb         bool   `json:"decomb"`
	CFR            bool   `json:"cfr"`
}

// DefaultSettings returns the shared encoder parameters.
func DefaultSettings() EncodingSettings {
	return EncodingSettings{
		EncoderPreset:  "fast",
		EncoderTune:    "fastdecode",
		EncoderProfile: "main",
		Quality:        22,
		AudioBitrate:   160,
		AudioChannels:  2,
		Decomb:         true,
		CFR:            true,
	}
}

// Builtins returns the presets that ship with vidconv.
func Builtins() []Preset {
	presets := []Preset{{
		Name:         DefaultName,
		Resolution:   "source",
		Framerate:    "source",
		Level:        LevelAuto,
		UseSourceFPS: true,
		UseSourceRes: true,
	}}

	rates := []struct {
		label string
		fps   float64
	}{
		{"60", 60},
		{"30", 30},
		{"29.97", 29.97},
		{"24", 24},
		{"23.976", 23.976},
	}
	sizes := []struct {
		label         string
		width, height int
	}{
		{"4K", 3840, 2160},
		{"1080p", 1920, 1080},
	}

	for _, size := range sizes {
		for _, rate := range rates {
			presets = append(presets, Preset{
				Name:       fmt.Sprintf("HEVC %s|%sp", size.label, rate.label),
				Resolution: size.label,
				Framerate:  rate.label,
				Width:      size.width,
				Height:     size.height,
				Level:      DetermineLevel(size.width, size.height, rate.fps),
				FPS:        rate.fps,
			})
		}
	}
	return presets
}

// DetermineLevel picks the H.265 level for a resolution and frame rate.
func DetermineLevel(width, height int, fps float64) string {
	aboveHD := width > 1920 || height > 1080
	switch {
	case aboveHD && fps > 30:
		return "5.1"
	case aboveHD:
		return "5.0"
	}
	return "4.1"
}
