package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"vidconv/cmdutil"
)

// SoftwareEncoderID is the CPU encoder that is always offered.
const SoftwareEncoderID = "libx265"

// HWEncoder describes an HEVC encoder backend.
type HWEncoder struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Available   bool   `json:"available"`
	Priority    int    `json:"priority"`
}

// SoftwareEncoder returns the libx265 fallback entry.
func SoftwareEncoder() HWEncoder {
	return HWEncoder{
		ID:          SoftwareEncoderID,
		Name:        "Software (x265)",
		Description: "CPU encoding, slow but the most compatible",
		Available:   true,
		Priority:    0,
	}
}

// KnownEncoders lists the hardware HEVC encoders worth probing for on goos.
func KnownEncoders(goos string) []HWEncoder {
	nvenc := HWEncoder{
		ID:          "hevc_nvenc",
		Name:        "NVIDIA NVENC",
		Description: "NVIDIA GPU encoding, very fast",
		Priority:    100,
	}

	switch goos {
	case "darwin":
		return []HWEncoder{{
			ID:          "hevc_videotoolbox",
			Name:        "Apple VideoToolbox",
			Description: "macOS hardware encoding, fast and efficient",
			Priority:    100,
		}}
	case "windows":
		return []HWEncoder{
			nvenc,
			{ID: "hevc_qsv", Name: "Intel QuickSync", Description: "Intel integrated GPU encoding", Priority: 90},
			{ID: "hevc_amf", Name: "AMD AMF", Description: "AMD GPU encoding", Priority: 80},
		}
	case "linux":
		return []HWEncoder{
			nvenc,
			{ID: "hevc_vaapi", Name: "VAAPI", Description: "Linux VA-API encoding (Intel/AMD)", Priority: 90},
		}
	}
	return nil
}

// ParseEncoderList extracts HEVC video encoder names from "ffmpeg -encoders".
// Encoder lines start with capability flags such as "V....D hevc_nvenc".
func ParseEncoderList(output string) map[string]bool {
	result := make(map[string]bool)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if len(line) <= 7 || line[0] != 'V' {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		name := parts[1]
		if strings.Contains(name, "hevc") || strings.Contains(name, "265") {
			result[name] = true
		}
	}
	return result
}

// AvailableEncoders keeps the known encoders present in the ffmpeg build and
// appends the software fallback.
func AvailableEncoders(known []HWEncoder, present map[string]bool) []HWEncoder {
	result := make([]HWEncoder, 0, len(known)+1)
	for _, enc := range known {
		if present[enc.ID] {
			enc.Available = true
			result = append(result, enc)
		}
	}
	return append(result, SoftwareEncoder())
}

// BestEncoder picks the available encoder with the strictly highest
// priority; the earlier entry wins a tie. Without any available entry the
// software encoder is returned.
func BestEncoder(encoders []HWEncoder) HWEncoder {
	var best *HWEncoder
	for i := range encoders {
		enc := &encoders[i]
		if !enc.Available {
			continue
		}
		if best == nil || enc.Priority > best.Priority {
			best = enc
		}
	}
	if best == nil {
		return SoftwareEncoder()
	}
	return *best
}

// encoderCacheTTL bounds how long a detection result is reused.
const encoderCacheTTL = 5 * time.Minute

type encoderCache struct {
	mu       sync.Mutex
	encoders []HWEncoder
	detected time.Time
}

// DetectEncoders queries the ffmpeg build for hardware encoders. Results are
// cached for a few minutes; refresh forces a new query.
func (r *Runner) DetectEncoders(ctx context.Context, refresh bool) ([]HWEncoder, error) {
	r.encoders.mu.Lock()
	defer r.encoders.mu.Unlock()

	if !refresh && r.encoders.encoders != nil && time.Since(r.encoders.detected) < encoderCacheTTL {
		return cloneEncoders(r.encoders.encoders), nil
	}

	output, err := r.listEncoders(ctx)
	if err != nil {
		r.logger.Warn("encoder detection failed, using software encoder", "error", err)
		return []HWEncoder{SoftwareEncoder()}, err
	}

	encoders := AvailableEncoders(KnownEncoders(runtime.GOOS), ParseEncoderList(output))
	r.logger.Debug("detected encoders", "count", len(encoders), "best", BestEncoder(encoders).ID)

	r.encoders.encoders = encoders
	r.encoders.detected = time.Now()
	return cloneEncoders(encoders), nil
}

func (r *Runner) listEncoders(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.bin, "-hide_banner", "-encoders")
	cmdutil.HideWindow(cmd)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("ffmpeg -encoders: %w", err)
	}
	return string(output), nil
}

func cloneEncoders(in []HWEncoder) []HWEncoder {
	out := make([]HWEncoder, len(in))
	copy(out, in)
	return out
}
