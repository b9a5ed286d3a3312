package media

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/at-wat/ebml-go"
)

const (
	mkvTrackVideo = 1
	mkvTrackAudio = 2

	defaultTimecodeScale = 1_000_000
	mkvScanLimit         = 10 << 20
)

var errNotMatroska = errors.New("not a Matroska file")

// mkvFile maps the parts of a Matroska/WebM file that carry metadata.
// Reading stops after the first cluster; Info and Tracks precede it.
type mkvFile struct {
	Segment mkvSegment `ebml:"Segment"`
}

type mkvSegment struct {
	Info    mkvInfo    `ebml:"Info"`
	Tracks  mkvTracks  `ebml:"Tracks"`
	Cluster mkvCluster `ebml:"Cluster,stop"`
}

type mkvCluster struct{}

type mkvInfo struct {
	TimecodeScale uint64  `ebml:"TimecodeScale"`
	Duration      float64 `ebml:"Duration"`
}

type mkvTracks struct {
	TrackEntry []mkvTrackEntry `ebml:"TrackEntry"`
}

type mkvTrackEntry struct {
	TrackType       uint64   `ebml:"TrackType"`
	CodecID         string   `ebml:"CodecID"`
	DefaultDuration uint64   `ebml:"DefaultDuration"`
	Video           mkvVideo `ebml:"Video"`
}

type mkvVideo struct {
	PixelWidth  uint64 `ebml:"PixelWidth"`
	PixelHeight uint64 `ebml:"PixelHeight"`
}

// parseMKV reads Matroska/WebM metadata from the Info and Tracks elements.
func parseMKV(r io.ReadSeeker, _ int64) (*FileInfo, error) {
	var file mkvFile
	err := ebml.Unmarshal(io.LimitReader(r, mkvScanLimit), &file, ebml.WithIgnoreUnknown(true))
	// A truncated read still counts when the Tracks element was complete.
	if err != nil && !errors.Is(err, ebml.ErrReadStopped) && len(file.Segment.Tracks.TrackEntry) == 0 {
		return nil, fmt.Errorf("%w: %v", errNotMatroska, err)
	}

	info := &FileInfo{}
	for _, entry := range file.Segment.Tracks.TrackEntry {
		applyTrackEntry(entry, info)
	}
	if info.Codec == "" {
		return nil, errNoVideoTrack
	}

	if d := file.Segment.Info.Duration; d != 0 {
		scale := file.Segment.Info.TimecodeScale
		if scale == 0 {
			scale = defaultTimecodeScale
		}
		seconds := d * float64(scale) / 1e9
		if !validDuration(seconds) {
			return nil, fmt.Errorf("%w: %v", errInvalidDuration, d)
		}
		info.DurationSeconds = seconds
		info.Duration = FormatDuration(seconds)
	}
	return info, nil
}

func applyTrackEntry(entry mkvTrackEntry, info *FileInfo) {
	switch entry.TrackType {
	case mkvTrackVideo:
		if info.Codec != "" {
			return
		}
		info.Codec = mkvCodecName(entry.CodecID, mkvVideoCodecs, "V_")
		info.Width = int(entry.Video.PixelWidth)
		info.Height = int(entry.Video.PixelHeight)
		if entry.DefaultDuration > 0 {
			info.Framerate = math.Round(1e9/float64(entry.DefaultDuration)*100) / 100
		}
	case mkvTrackAudio:
		if info.AudioCodec == "" {
			info.AudioCodec = mkvCodecName(entry.CodecID, mkvAudioCodecs, "A_")
		}
	}
}
