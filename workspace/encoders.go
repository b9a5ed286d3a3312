package workspace

import (
	"errors"
	"sync"

	"vidconv/ffmpeg"
)

// ErrEncoderUnavailable is returned when selecting an encoder that is not
// listed as available.
var ErrEncoderUnavailable = errors.New("encoder not available")

// Encoders holds the detected encoders and the selected encoder id.
// explicit is set once the user picks an encoder; until then every new list
// selects its best entry.
type Encoders struct {
	mu       sync.RWMutex
	list     []ffmpeg.HWEncoder
	selected string
	explicit bool
}

func NewEncoders() *Encoders {
	return &Encoders{selected: ffmpeg.SoftwareEncoderID}
}

func (e *Encoders) List() []ffmpeg.HWEncoder {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]ffmpeg.HWEncoder, len(e.list))
	copy(out, e.list)
	return out
}

// SetList replaces the encoder list and selects the best entry, unless the
// user picked an encoder that is still selectable.
func (e *Encoders) SetList(list []ffmpeg.HWEncoder) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.list = append([]ffmpeg.HWEncoder(nil), list...)
	if e.explicit && e.selectableLocked(e.selected) {
		return
	}
	e.selected = ffmpeg.BestEncoder(e.list).ID
	e.explicit = false
}

// Best returns the available entry with the highest priority.
func (e *Encoders) Best() ffmpeg.HWEncoder {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return ffmpeg.BestEncoder(e.list)
}

func (e *Encoders) Selected() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.selected
}

// Select picks an encoder by id. The software encoder can always be chosen.
func (e *Encoders) Select(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.selectableLocked(id) {
		return ErrEncoderUnavailable
	}
	e.selected = id
	e.explicit = true
	return nil
}

func (e *Encoders) selectableLocked(id string) bool {
	if id == ffmpeg.SoftwareEncoderID {
		return true
	}
	for _, enc := range e.list {
		if enc.ID == id {
			return enc.Available
		}
	}
	return false
}
