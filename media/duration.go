package media

import (
	"fmt"
	"math"
)

// DefaultTolerance is the allowed duration drift in seconds.
const DefaultTolerance = 1.0

// DurationCheckResult is the outcome of comparing a batch against a base duration.
type DurationCheckResult struct {
	HasMismatch   bool                   `json:"hasMismatch"`
	BaseDuration  string                 `json:"baseDuration"`
	Tolerance     float64                `json:"tolerance"`
	MismatchFiles []DurationMismatchInfo `json:"mismatchFiles"`
}

// DurationMismatchInfo describes one file that disagrees with the base.
type DurationMismatchInfo struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	Duration string `json:"duration"`
	Diff     string `json:"diff"`
}

// Contains reports whether path is listed as mismatching.
func (r DurationCheckResult) Contains(path string) bool {
	for _, m := range r.MismatchFiles {
		if m.Path == path {
			return true
		}
	}
	return false
}

// CheckDurationMismatch compares every probed file against the first probed
// file. Files not yet probed, or whose probe failed, take no part.
func CheckDurationMismatch(files []FileInfo, tolerance float64) DurationCheckResult {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	result := DurationCheckResult{
		Tolerance:     tolerance,
		MismatchFiles: []DurationMismatchInfo{},
	}

	var base *FileInfo
	for i := range files {
		f := &files[i]
		if !f.Probed() || f.Failed() {
			continue
		}
		if base == nil {
			base = f
			result.BaseDuration = f.Duration
			continue
		}

		diff := f.DurationSeconds - base.DurationSeconds
		if math.Abs(diff) > tolerance {
			result.HasMismatch = true
			result.MismatchFiles = append(result.MismatchFiles, DurationMismatchInfo{
				Path:     f.Path,
				Name:     f.Name,
				Duration: f.Duration,
				Diff:     FormatDiff(diff),
			})
		}
	}

	return result
}

// FormatDiff renders a signed difference in seconds, e.g. "+5.0s" or "-3.2s".
func FormatDiff(seconds float64) string {
	if seconds >= 0 {
		return fmt.Sprintf("+%.1fs", seconds)
	}
	return fmt.Sprintf("%.1fs", seconds)
}
