package media

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// The AVI headers sit at the front of the file.
const aviScanLimit = 1 << 20

var errNotAVI = errors.New("not an AVI file")

// chunk is a RIFF chunk located by absolute offsets.
type chunk struct {
	id        string
	dataStart int64
	size      int64
}

// aviStream accumulates one strl list.
type aviStream struct {
	kind    string
	handler string
	fps     float64
	seconds float64
}

// parseAVI reads RIFF/AVI metadata from the hdrl list.
func parseAVI(r io.ReadSeeker, size int64) (*FileInfo, error) {
	riff, err := readAt(r, 0, 12)
	if err != nil || string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "AVI " {
		return nil, errNotAVI
	}

	end := 8 + int64(binary.LittleEndian.Uint32(riff[4:8]))
	if end > size {
		end = size
	}
	if end > aviScanLimit {
		end = aviScanLimit
	}

	info := &FileInfo{}
	walkChunks(r, 12, end, func(c chunk) {
		if c.id == "LIST" && listType(r, c) == "hdrl" {
			parseHeaderList(r, c, info)
		}
	})

	if info.Codec == "" {
		return nil, errNoVideoTrack
	}
	return info, nil
}

func parseHeaderList(r io.ReadSeeker, hdrl chunk, info *FileInfo) {
	walkChunks(r, hdrl.dataStart+4, hdrl.dataStart+hdrl.size, func(c chunk) {
		switch {
		case c.id == "avih":
			applyMainHeader(r, c, info)
		case c.id == "LIST" && listType(r, c) == "strl":
			applyStream(r, c, info)
		}
	})
}

// applyMainHeader reads the avih chunk: frame period, total frames and size.
func applyMainHeader(r io.ReadSeeker, c chunk, info *FileInfo) {
	if c.size < 40 {
		return
	}
	data, err := readAt(r, c.dataStart, 40)
	if err != nil {
		return
	}
	microSecPerFrame := binary.LittleEndian.Uint32(data[0:4])
	totalFrames := binary.LittleEndian.Uint32(data[16:20])
	width := int(binary.LittleEndian.Uint32(data[32:36]))
	height := int(binary.LittleEndian.Uint32(data[36:40]))

	if info.Width == 0 {
		info.Width = width
	}
	if info.Height == 0 {
		info.Height = height
	}
	if microSecPerFrame > 0 && totalFrames > 0 && info.DurationSeconds == 0 {
		fps := 1e6 / float64(microSecPerFrame)
		seconds := float64(totalFrames) / fps
		info.DurationSeconds = seconds
		info.Duration = FormatDuration(seconds)
		if info.Framerate == 0 {
			info.Framerate = math.Round(fps*100) / 100
		}
	}
}

// applyStream reads a strl list: strh gives type, handler, rate and length;
// strf gives BITMAPINFOHEADER for video or WAVEFORMATEX for audio.
func applyStream(r io.ReadSeeker, strl chunk, info *FileInfo) {
	var s aviStream
	walkChunks(r, strl.dataStart+4, strl.dataStart+strl.size, func(c chunk) {
		switch c.id {
		case "strh":
			if c.size < 36 {
				return
			}
			data, err := readAt(r, c.dataStart, 36)
			if err != nil {
				return
			}
			s.kind = string(data[0:4])
			s.handler = string(data[4:8])
			scale := binary.LittleEndian.Uint32(data[20:24])
			rate := binary.LittleEndian.Uint32(data[24:28])
			length := binary.LittleEndian.Uint32(data[32:36])
			if scale > 0 && rate > 0 {
				s.fps = float64(rate) / float64(scale)
				s.seconds = float64(length) * float64(scale) / float64(rate)
			}
		case "strf":
			switch s.kind {
			case "vids":
				if c.size < 20 {
					return
				}
				bih, err := readAt(r, c.dataStart, 20)
				if err != nil {
					return
				}
				width := int(int32(binary.LittleEndian.Uint32(bih[4:8])))
				height := int(int32(binary.LittleEndian.Uint32(bih[8:12])))
				if height < 0 {
					height = -height // top-down bitmap
				}
				if width > 0 {
					info.Width = width
				}
				if height > 0 {
					info.Height = height
				}
				if info.Codec == "" {
					compression := string(bih[16:20])
					if compression != "\x00\x00\x00\x00" {
						s.handler = compression
					}
				}
			case "auds":
				if c.size < 2 || info.AudioCodec != "" {
					return
				}
				tag, err := readAt(r, c.dataStart, 2)
				if err != nil {
					return
				}
				info.AudioCodec = aviAudioCodecName(binary.LittleEndian.Uint16(tag))
			}
		}
	})

	if s.kind != "vids" || info.Codec != "" {
		return
	}
	info.Codec = aviVideoCodecName(s.handler)
	if info.Codec == "" {
		info.Codec = "unknown"
	}
	if s.fps > 0 {
		info.Framerate = math.Round(s.fps*100) / 100
	}
	if s.seconds > 0 {
		info.DurationSeconds = s.seconds
		info.Duration = FormatDuration(s.seconds)
	}
}

// walkChunks visits RIFF chunks between start and end, honouring the
// word alignment padding.
func walkChunks(r io.ReadSeeker, start, end int64, fn func(chunk)) {
	pos := start
	for pos+8 <= end {
		hdr, err := readAt(r, pos, 8)
		if err != nil {
			return
		}
		c := chunk{
			id:        string(hdr[0:4]),
			dataStart: pos + 8,
			size:      int64(binary.LittleEndian.Uint32(hdr[4:8])),
		}
		if c.dataStart+c.size > end {
			c.size = end - c.dataStart
		}
		fn(c)

		next := c.dataStart + c.size
		if next%2 != 0 {
			next++
		}
		if next <= pos {
			return
		}
		pos = next
	}
}

func listType(r io.ReadSeeker, c chunk) string {
	if c.size < 4 {
		return ""
	}
	data, err := readAt(r, c.dataStart, 4)
	if err != nil {
		return ""
	}
	return string(data)
}

// readAt reads exactly n bytes at an absolute offset.
func readAt(r io.ReadSeeker, offset int64, n int) ([]byte, error) {
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
