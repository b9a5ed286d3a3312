package ffmpeg

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"vidconv/media"
)

// Progress is one sample of ffmpeg's -progress output.
type Progress struct {
	Percent float64 `json:"percent"`
	OutTime float64 `json:"outTime"`
	Speed   string  `json:"speed"`
	ETA     string  `json:"eta"`
}

// ParseProgress reads the key=value stream written by "-progress pipe:1" and
// calls emit for every out_time_us sample. duration is the source length in
// seconds; without it no percentage can be computed and nothing is emitted.
func ParseProgress(r io.Reader, duration float64, emit func(Progress)) error {
	scanner := bufio.NewScanner(r)
	var speed string
	var last Progress

	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "speed":
			speed = value
		case "out_time_us":
			us, err := strconv.ParseInt(value, 10, 64)
			if err != nil || duration <= 0 {
				continue
			}
			current := float64(us) / 1_000_000.0
			last = Progress{
				Percent: clampPercent(current / duration * 100),
				OutTime: current,
				Speed:   speed,
				ETA:     EstimateETA(current, duration, speed),
			}
			if emit != nil {
				emit(last)
			}
		case "progress":
			if value == "end" && duration > 0 && emit != nil && last.Percent < 100 {
				emit(Progress{Percent: 100, OutTime: duration, Speed: speed, ETA: "00:00:00"})
			}
		}
	}
	return scanner.Err()
}

// EstimateETA converts the remaining media time into wall-clock time using the
// reported encode speed ("1.5x"). An unknown speed yields "".
func EstimateETA(current, duration float64, speed string) string {
	rate := ParseSpeed(speed)
	if rate <= 0 || duration <= 0 {
		return ""
	}
	remaining := duration - current
	if remaining <= 0 {
		return "00:00:00"
	}
	return media.FormatDuration(remaining / rate)
}

// ParseSpeed parses ffmpeg's speed field, e.g. "1.5x". "N/A" yields 0.
func ParseSpeed(speed string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(speed), "x"), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
