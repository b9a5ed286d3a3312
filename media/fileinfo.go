// Package media extracts source file metadata and compares durations across
// a batch of files.
package media

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/c2h5oh/datasize"
)

const (
	// DurationPending is shown until a file has been probed.
	DurationPending = "analyzing..."
	// DurationFailed is shown when probing failed.
	DurationFailed = "probe failed"
	// CodecError marks a file whose probe failed.
	CodecError = "error"
)

var errInvalidDuration = errors.New("invalid duration")

// validDuration reports whether seconds can be stored and serialized.
func validDuration(seconds float64) bool {
	return !math.IsNaN(seconds) && !math.IsInf(seconds, 0) && seconds >= 0
}

// FileInfo describes a source media file. Path is the identity.
type FileInfo struct {
	Path                string  `json:"path"`
	Name                string  `json:"name"`
	Width               int     `json:"width"`
	Height              int     `json:"height"`
	Duration            string  `json:"duration"`
	DurationSeconds     float64 `json:"durationSeconds"`
	Framerate           float64 `json:"framerate"`
	Codec               string  `json:"codec"`
	AudioCodec          string  `json:"audioCodec"`
	FileSize            int64   `json:"fileSize"`
	HasDurationMismatch bool    `json:"hasDurationMismatch"`
}

// Probed reports whether metadata extraction has run for the file.
func (f FileInfo) Probed() bool {
	return f.Codec != ""
}

// Failed reports whether metadata extraction ran and failed.
func (f FileInfo) Failed() bool {
	return f.Codec == CodecError
}

// MarkFailed records a failed probe.
func (f *FileInfo) MarkFailed() {
	f.Codec = CodecError
	f.Duration = DurationFailed
}

// Resolution renders "WxH", or "" when unknown.
func (f FileInfo) Resolution() string {
	if f.Width <= 0 || f.Height <= 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", f.Width, f.Height)
}

var supportedExtensions = map[string]struct{}{
	".mp4":  {},
	".mov":  {},
	".avi":  {},
	".mkv":  {},
	".webm": {},
	".m4v":  {},
	".wmv":  {},
	".flv":  {},
	".mts":  {},
	".m2ts": {},
	".ts":   {},
}

// IsSupportedFormat checks the file extension against the accepted containers.
func IsSupportedFormat(path string) bool {
	_, ok := supportedExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Stat builds a placeholder entry from the filesystem only. Metadata is
// filled in later by a Prober.
func Stat(path string) (*FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &FileInfo{
		Path:     path,
		Name:     filepath.Base(path),
		FileSize: info.Size(),
		Duration: DurationPending,
	}, nil
}

// FormatDuration renders seconds as HH:MM:SS.
func FormatDuration(seconds float64) string {
	if !validDuration(seconds) || seconds > math.MaxInt32 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// FormatFileSize renders a byte count in human-readable units.
func FormatFileSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return datasize.ByteSize(bytes).HumanReadable()
}
