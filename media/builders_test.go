package media

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Minimal container builders for parser tests.

func be32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func mp4Box(kind string, payload ...[]byte) []byte {
	body := bytes.Join(payload, nil)
	out := append(be32(uint32(8+len(body))), kind...)
	return append(out, body...)
}

func mp4Mvhd(timescale, duration uint32) []byte {
	return mp4Box("mvhd", make([]byte, 12), be32(timescale), be32(duration), make([]byte, 80))
}

func mp4Tkhd(width, height uint32) []byte {
	payload := make([]byte, 84)
	binary.BigEndian.PutUint32(payload[76:], width<<16)
	binary.BigEndian.PutUint32(payload[80:], height<<16)
	return mp4Box("tkhd", payload)
}

func mp4Mdhd(timescale, duration uint32) []byte {
	return mp4Box("mdhd", make([]byte, 12), be32(timescale), be32(duration), make([]byte, 4))
}

func mp4Hdlr(handler string) []byte {
	return mp4Box("hdlr", make([]byte, 8), []byte(handler), make([]byte, 13))
}

func mp4Stsd(format string) []byte {
	return mp4Box("stsd", make([]byte, 4), be32(1), be32(16), []byte(format), make([]byte, 8))
}

func mp4Stts(samples, delta uint32) []byte {
	return mp4Box("stts", make([]byte, 4), be32(1), be32(samples), be32(delta))
}

func mp4TrackBox(handler, format string, width, height, timescale, duration, samples uint32) []byte {
	stbl := mp4Box("stbl", mp4Stsd(format), mp4Stts(samples, duration/maxU32(samples, 1)))
	minf := mp4Box("minf", stbl)
	mdia := mp4Box("mdia", mp4Mdhd(timescale, duration), mp4Hdlr(handler), minf)
	return mp4Box("trak", mp4Tkhd(width, height), mdia)
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// buildMP4 yields a 10 second 1920x1080 30fps h264 file with an AAC track.
func mp4Ftyp() []byte {
	return mp4Box("ftyp", []byte("isom"), be32(512), []byte("isomavc1"))
}

func buildMP4() []byte {
	ftyp := mp4Ftyp()
	moov := mp4Box("moov",
		mp4Mvhd(1000, 10000),
		mp4TrackBox("vide", "avc1", 1920, 1080, 30000, 300000, 300),
		mp4TrackBox("soun", "mp4a", 0, 0, 48000, 480000, 469),
	)
	mdat := mp4Box("mdat", make([]byte, 32))
	return bytes.Join([][]byte{ftyp, moov, mdat}, nil)
}

func ebmlElem(id []byte, payload ...[]byte) []byte {
	body := bytes.Join(payload, nil)
	size := make([]byte, 8)
	binary.BigEndian.PutUint64(size, uint64(len(body)))
	size[0] = 0x01 // 8-byte length marker
	out := append(append([]byte{}, id...), size...)
	return append(out, body...)
}

func ebmlUint(id []byte, v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return ebmlElem(id, b)
}

func ebmlFloat(id []byte, v float64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, math.Float64bits(v))
	return ebmlElem(id, b)
}

// buildMKV yields a 12 second 1920x1080 23.976fps HEVC file with an Opus track.
func buildMKV() []byte {
	return buildMKVWithDuration(12000)
}

func buildMKVWithDuration(duration float64) []byte {
	header := ebmlElem([]byte{0x1A, 0x45, 0xDF, 0xA3}, ebmlElem([]byte{0x42, 0x82}, []byte("matroska")))
	info := ebmlElem([]byte{0x15, 0x49, 0xA9, 0x66},
		ebmlUint([]byte{0x2A, 0xD7, 0xB1}, 1_000_000),
		ebmlFloat([]byte{0x44, 0x89}, duration),
	)
	video := ebmlElem([]byte{0xAE},
		ebmlUint([]byte{0x83}, 1),
		ebmlElem([]byte{0x86}, []byte("V_MPEGH/ISO/HEVC")),
		ebmlUint([]byte{0x23, 0xE3, 0x83}, 41_708_333),
		ebmlElem([]byte{0xE0},
			ebmlUint([]byte{0xB0}, 1920),
			ebmlUint([]byte{0xBA}, 1080),
		),
	)
	audio := ebmlElem([]byte{0xAE},
		ebmlUint([]byte{0x83}, 2),
		ebmlElem([]byte{0x86}, []byte("A_OPUS")),
	)
	tracks := ebmlElem([]byte{0x16, 0x54, 0xAE, 0x6B}, video, audio)
	segment := ebmlElem([]byte{0x18, 0x53, 0x80, 0x67}, info, tracks)
	return append(header, segment...)
}

func riffChunk(id string, data ...[]byte) []byte {
	body := bytes.Join(data, nil)
	out := append([]byte(id), le32(uint32(len(body)))...)
	out = append(out, body...)
	if len(body)%2 != 0 {
		out = append(out, 0)
	}
	return out
}

func riffList(kind string, chunks ...[]byte) []byte {
	return riffChunk("LIST", append([]byte(kind), bytes.Join(chunks, nil)...))
}

// buildAVI yields a 10 second 640x480 25fps H264 file with an AC-3 track.
func buildAVI() []byte {
	avih := make([]byte, 56)
	binary.LittleEndian.PutUint32(avih[0:], 40000)
	binary.LittleEndian.PutUint32(avih[16:], 250)
	binary.LittleEndian.PutUint32(avih[32:], 640)
	binary.LittleEndian.PutUint32(avih[36:], 480)

	vstrh := make([]byte, 56)
	copy(vstrh[0:], "vids")
	copy(vstrh[4:], "H264")
	binary.LittleEndian.PutUint32(vstrh[20:], 1)
	binary.LittleEndian.PutUint32(vstrh[24:], 25)
	binary.LittleEndian.PutUint32(vstrh[32:], 250)

	vstrf := make([]byte, 40)
	binary.LittleEndian.PutUint32(vstrf[0:], 40)
	binary.LittleEndian.PutUint32(vstrf[4:], 640)
	height := int32(-480)
	binary.LittleEndian.PutUint32(vstrf[8:], uint32(height))
	copy(vstrf[16:], "H264")

	astrh := make([]byte, 56)
	copy(astrh[0:], "auds")

	astrf := make([]byte, 18)
	binary.LittleEndian.PutUint16(astrf[0:], 0x2000)

	hdrl := riffList("hdrl",
		riffChunk("avih", avih),
		riffList("strl", riffChunk("strh", vstrh), riffChunk("strf", vstrf)),
		riffList("strl", riffChunk("strh", astrh), riffChunk("strf", astrf)),
	)
	movi := riffList("movi", riffChunk("00dc", make([]byte, 9)))

	body := append([]byte("AVI "), append(hdrl, movi...)...)
	return append(append([]byte("RIFF"), le32(uint32(len(body)))...), body...)
}
