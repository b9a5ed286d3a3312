package media

import (
	"errors"
	"io"
	"math"

	mp4 "github.com/abema/go-mp4"
)

var errNoVideoTrack = errors.New("no video track found")

// mp4Track collects what one trak box tells us.
type mp4Track struct {
	handler   string
	format    string
	width     int
	height    int
	timescale uint32
	duration  uint64
	samples   uint64
}

// parseMP4 reads ISO BMFF (MP4/MOV/M4V) metadata from the first video and
// audio tracks of the moov box.
func parseMP4(r io.ReadSeeker, _ int64) (*FileInfo, error) {
	info := &FileInfo{}
	var (
		tracks    []*mp4Track
		current   *mp4Track
		timescale uint32
		duration  uint64
	)

	_, err := mp4.ReadBoxStructure(r, func(h *mp4.ReadHandle) (interface{}, error) {
		switch h.BoxInfo.Type {
		case mp4.BoxTypeMoov(), mp4.BoxTypeMdia(), mp4.BoxTypeMinf(), mp4.BoxTypeStbl():
			return h.Expand()
		case mp4.BoxTypeTrak():
			current = &mp4Track{}
			tracks = append(tracks, current)
			return h.Expand()
		case mp4.BoxTypeMvhd():
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			mvhd := box.(*mp4.Mvhd)
			timescale, duration = mvhd.Timescale, mvhd.GetDuration()
			return nil, nil
		}

		if current == nil {
			return nil, nil
		}
		switch h.BoxInfo.Type {
		case mp4.BoxTypeTkhd():
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			tkhd := box.(*mp4.Tkhd)
			current.width = int(tkhd.Width >> 16)
			current.height = int(tkhd.Height >> 16)
		case mp4.BoxTypeMdhd():
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			mdhd := box.(*mp4.Mdhd)
			current.timescale, current.duration = mdhd.Timescale, mdhd.GetDuration()
		case mp4.BoxTypeHdlr():
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			hdlr := box.(*mp4.Hdlr)
			current.handler = string(hdlr.HandlerType[:])
		case mp4.BoxTypeStts():
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			for _, entry := range box.(*mp4.Stts).Entries {
				current.samples += uint64(entry.SampleCount)
			}
		case mp4.BoxTypeStsd():
			return h.Expand()
		default:
			// Sample entries: only the first one's fourcc is needed.
			if n := len(h.Path); n >= 2 && h.Path[n-2] == mp4.BoxTypeStsd() && current.format == "" {
				current.format = string(h.BoxInfo.Type[:])
			}
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	for _, t := range tracks {
		applyTrack(*t, info)
	}
	if info.Codec == "" {
		return nil, errNoVideoTrack
	}
	if timescale > 0 {
		seconds := float64(duration) / float64(timescale)
		if !validDuration(seconds) {
			return nil, errInvalidDuration
		}
		info.DurationSeconds = seconds
		info.Duration = FormatDuration(seconds)
	}
	return info, nil
}

func applyTrack(t mp4Track, info *FileInfo) {
	switch t.handler {
	case "vide":
		if info.Codec != "" {
			return
		}
		info.Codec = mp4CodecName(t.format, mp4VideoCodecs)
		if info.Codec == "" {
			info.Codec = "unknown"
		}
		info.Width = t.width
		info.Height = t.height
		if t.timescale > 0 && t.duration > 0 && t.samples > 0 {
			seconds := float64(t.duration) / float64(t.timescale)
			info.Framerate = math.Round(float64(t.samples)/seconds*100) / 100
		}
	case "soun":
		if info.AudioCodec == "" {
			info.AudioCodec = mp4CodecName(t.format, mp4AudioCodecs)
		}
	}
}
