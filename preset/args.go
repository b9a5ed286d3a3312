package preset

import (
	"fmt"
	"math"
	"strconv"

	"vidconv/ffmpeg"
)

const deinterlaceFilter = "yadif=mode=0:parity=-1:deint=1"

// Source is the input metadata a preset may inherit.
type Source struct {
	Width     int
	Height    int
	Framerate float64
}

// BuildOptions describes one conversion.
type BuildOptions struct {
	Input     string
	Output    string
	Source    *Source
	EncoderID string
	// Quality overrides DefaultSettings().Quality when positive.
	Quality int
}

// BuildArgs returns the ffmpeg arguments converting opts.Input to
// opts.Output. The output path is always the last argument.
func (p Preset) BuildArgs(opts BuildOptions) ([]string, error) {
	extra, err := ffmpeg.ParseExtraArgs(p.ExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("preset %q: %w", p.Name, err)
	}

	settings := DefaultSettings()
	if opts.Quality > 0 {
		settings.Quality = opts.Quality
	}

	width, height, fps := p.Width, p.Height, p.FPS
	if src := opts.Source; src != nil {
		if p.UseSourceRes {
			width, height = src.Width, src.Height
		}
		if p.UseSourceFPS {
			fps = src.Framerate
		}
	}

	level := p.Level
	if level == "" || level == LevelAuto {
		level = DetermineLevel(width, height, fps)
	}

	keyint := int(math.Round(fps))
	if keyint <= 0 {
		keyint = 30
	}

	args := []string{"-i", opts.Input}
	args = append(args, encoderArgs(opts.EncoderID, settings, level, keyint, width, height)...)

	scaled := !p.UseSourceRes && p.Width > 0 && p.Height > 0
	if scaled {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", p.Width, p.Height))
	}
	if !p.UseSourceFPS && p.FPS > 0 {
		args = append(args, "-r", fmt.Sprintf("%.3f", p.FPS))
	}
	if settings.CFR {
		args = append(args, "-vsync", "cfr")
	}

	args = append(args,
		"-c:a", "aac",
		"-b:a", fmt.Sprintf("%dk", settings.AudioBitrate),
		"-ac", strconv.Itoa(settings.AudioChannels),
	)

	if settings.Decomb {
		if scaled {
			for i, arg := range args {
				if arg == "-vf" && i+1 < len(args) {
					args[i+1] = deinterlaceFilter + "," + args[i+1]
					break
				}
			}
		} else {
			args = append(args, "-vf", deinterlaceFilter)
		}
	}

	args = append(args, extra...)
	args = append(args, "-f", "matroska", opts.Output)
	return args, nil
}

func encoderArgs(encoderID string, settings EncodingSettings, level string, keyint, width, height int) []string {
	quality := strconv.Itoa(settings.Quality)
	gop := strconv.Itoa(keyint)

	switch encoderID {
	case "hevc_videotoolbox":
		return []string{
			"-c:v", "hevc_videotoolbox",
			"-b:v", fmt.Sprintf("%dk", videoToolboxBitrate(width, height, settings.Quality)),
			"-tag:v", "hvc1",
			"-allow_sw", "1",
		}

	case "hevc_nvenc":
		return []string{
			"-c:v", "hevc_nvenc",
			"-rc", "vbr",
			"-cq", quality,
			"-preset", nvencPreset(settings.EncoderPreset),
			"-profile:v", settings.EncoderProfile,
			"-level:v", level,
			"-g", gop,
			"-bf", "3",
		}

	case "hevc_qsv":
		return []string{
			"-c:v", "hevc_qsv",
			"-global_quality", quality,
			"-preset", qsvPreset(settings.EncoderPreset),
			"-profile:v", settings.EncoderProfile,
			"-level:v", level,
			"-g", gop,
		}

	case "hevc_amf":
		return []string{
			"-c:v", "hevc_amf",
			"-rc", "cqp",
			"-qp_i", quality,
			"-qp_p", quality,
			"-quality", amfQuality(settings.EncoderPreset),
			"-profile:v", settings.EncoderProfile,
			"-level:v", level,
			"-gops_per_idr", "1",
		}

	case "hevc_vaapi":
		return []string{
			"-c:v", "hevc_vaapi",
			"-qp", quality,
			"-profile:v", settings.EncoderProfile,
			"-level:v", level,
			"-g", gop,
		}
	}

	x265Params := fmt.Sprintf(
		"keyint=%d:min-keyint=%d:open-gop=0:scenecut=0:repeat-headers=1:ref=4:bframes=3:hrd=1",
		keyint, keyint,
	)
	return []string{
		"-c:v", ffmpeg.SoftwareEncoderID,
		"-crf", quality,
		"-preset", settings.EncoderPreset,
		"-tune", settings.EncoderTune,
		"-profile:v", settings.EncoderProfile,
		"-level:v", level,
		"-x265-params", x265Params,
	}
}

// videoToolboxBitrate approximates the libx265 CRF result with a target
// bitrate: about 3 Mbps for 1080p scaled by pixel count, 12% per quality step.
func videoToolboxBitrate(width, height, quality int) int {
	pixels := width * height
	if pixels <= 0 {
		pixels = 1920 * 1080
	}
	base := float64(pixels) / float64(1920*1080) * 3000
	kbps := int(base * math.Pow(1.12, float64(22-quality)))
	switch {
	case kbps < 500:
		return 500
	case kbps > 50000:
		return 50000
	}
	return kbps
}

func nvencPreset(preset string) string {
	switch preset {
	case "ultrafast", "superfast", "veryfast":
		return "p1"
	case "medium":
		return "p5"
	case "slow":
		return "p6"
	case "slower", "veryslow":
		return "p7"
	}
	return "p4"
}

func qsvPreset(preset string) string {
	switch preset {
	case "ultrafast", "superfast", "veryfast":
		return "veryfast"
	case "medium":
		return "medium"
	case "slow", "slower", "veryslow":
		return "slow"
	}
	return "fast"
}

func amfQuality(preset string) string {
	switch preset {
	case "ultrafast", "superfast", "veryfast", "faster", "fast":
		return "speed"
	case "slow", "slower", "veryslow":
		return "quality"
	}
	return "balanced"
}
