package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"vidconv/cmdutil"
)

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
}

// inspectFFprobe runs ffprobe with a short analysis window and decodes its
// JSON report.
func inspectFFprobe(ctx context.Context, binary, path string) (*FileInfo, error) {
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-analyzeduration", "2000000",
		"-probesize", "2000000",
		"--", path,
	)
	cmdutil.HideWindow(cmd)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe inspect: %w", err)
	}
	return decodeFFprobe(output)
}

func decodeFFprobe(output []byte) (*FileInfo, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("ffprobe parse: %w", err)
	}

	info := &FileInfo{}
	for _, stream := range probe.Streams {
		switch {
		case strings.EqualFold(stream.CodecType, "video") && info.Codec == "":
			info.Codec = stream.CodecName
			info.Width = stream.Width
			info.Height = stream.Height
			info.Framerate = ParseFramerate(stream.RFrameRate)
			if info.Framerate == 0 {
				info.Framerate = ParseFramerate(stream.AvgFrameRate)
			}
		case strings.EqualFold(stream.CodecType, "audio") && info.AudioCodec == "":
			info.AudioCodec = stream.CodecName
		}
	}
	if info.Codec == "" {
		return nil, errors.New("ffprobe: no video stream")
	}

	if seconds, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
			return nil, fmt.Errorf("ffprobe: %w %q", errInvalidDuration, probe.Format.Duration)
		}
		if seconds > 0 {
			info.DurationSeconds = seconds
			info.Duration = FormatDuration(seconds)
		}
	}
	return info, nil
}

// ParseFramerate parses "30000/1001" or "30" style rates. Unknown rates are 0.
func ParseFramerate(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "0/0" {
		return 0
	}
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0
		}
		return finiteOrZero(n / d)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return finiteOrZero(v)
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
