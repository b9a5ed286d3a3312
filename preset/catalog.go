package preset

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"vidconv/ffmpeg"
)

// Catalog is an immutable, ordered set of presets addressed by name.
type Catalog struct {
	presets []Preset
	byName  map[string]int
}

// NewCatalog validates presets and indexes them by name.
func NewCatalog(presets []Preset) (*Catalog, error) {
	c := &Catalog{
		presets: make([]Preset, 0, len(presets)),
		byName:  make(map[string]int, len(presets)),
	}
	for _, p := range presets {
		p, err := normalize(p)
		if err != nil {
			return nil, err
		}
		if _, dup := c.byName[p.Name]; dup {
			return nil, fmt.Errorf("duplicate preset name %q", p.Name)
		}
		c.byName[p.Name] = len(c.presets)
		c.presets = append(c.presets, p)
	}
	return c, nil
}

// presetFile is the layout of a preset catalog file:
//
//	[[preset]]
//	name = "HEVC 720p|30p"
//	width = 1280
//	height = 720
//	fps = 30
type presetFile struct {
	Presets []Preset `toml:"preset"`
}

// LoadCatalog returns the built-in presets followed by those defined in the
// TOML file at path. An empty path yields the built-ins only.
func LoadCatalog(path string) (*Catalog, error) {
	presets := Builtins()
	if strings.TrimSpace(path) == "" {
		return NewCatalog(presets)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open presets: %w", err)
	}
	defer file.Close()

	var pf presetFile
	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&pf); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	return NewCatalog(append(presets, pf.Presets...))
}

// All returns a copy of the presets in catalog order.
func (c *Catalog) All() []Preset {
	out := make([]Preset, len(c.presets))
	copy(out, c.presets)
	return out
}

// ByName looks a preset up by its exact name.
func (c *Catalog) ByName(name string) (Preset, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Preset{}, false
	}
	return c.presets[i], true
}

// Default returns the source settings preset, or the first preset when the
// catalog does not contain it.
func (c *Catalog) Default() Preset {
	if p, ok := c.ByName(DefaultName); ok {
		return p
	}
	if len(c.presets) > 0 {
		return c.presets[0]
	}
	return Preset{}
}

// normalize checks a preset and fills the derived fields left empty in a
// catalog file.
func normalize(p Preset) (Preset, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return p, errors.New("preset name is required")
	}
	if p.Width < 0 || p.Height < 0 || p.FPS < 0 {
		return p, fmt.Errorf("preset %q: width, height and fps must not be negative", p.Name)
	}
	if (p.Width == 0) != (p.Height == 0) {
		return p, fmt.Errorf("preset %q: width and height must both be set or both be zero", p.Name)
	}
	if _, err := ffmpeg.ParseExtraArgs(p.ExtraArgs); err != nil {
		return p, fmt.Errorf("preset %q: %w", p.Name, err)
	}

	if p.Width == 0 {
		p.UseSourceRes = true
	}
	if p.FPS == 0 {
		p.UseSourceFPS = true
	}

	if p.Resolution == "" {
		if p.UseSourceRes {
			p.Resolution = "source"
		} else {
			p.Resolution = fmt.Sprintf("%dp", p.Height)
		}
	}
	if p.Framerate == "" {
		if p.UseSourceFPS {
			p.Framerate = "source"
		} else {
			p.Framerate = strconv.FormatFloat(p.FPS, 'f', -1, 64)
		}
	}
	if p.Level == "" {
		if p.UseSourceRes || p.UseSourceFPS {
			p.Level = LevelAuto
		} else {
			p.Level = DetermineLevel(p.Width, p.Height, p.FPS)
		}
	}
	return p, nil
}
