package media

import "strings"

var mp4VideoCodecs = map[string]string{
	"avc1": "h264",
	"avc3": "h264",
	"hev1": "hevc",
	"hvc1": "hevc",
	"vp08": "vp8",
	"vp09": "vp9",
	"av01": "av1",
	"mp4v": "mpeg4",
	"apcn": "prores",
	"apch": "prores",
	"apcs": "prores",
	"apco": "prores",
	"ap4h": "prores",
}

var mp4AudioCodecs = map[string]string{
	"mp4a": "aac",
	"ac-3": "ac3",
	"ec-3": "eac3",
	"Opus": "opus",
	"fLaC": "flac",
	"alac": "alac",
	"lpcm": "pcm",
	"sowt": "pcm",
	"twos": "pcm",
}

var mkvVideoCodecs = map[string]string{
	"V_MPEG4/ISO/AVC":  "h264",
	"V_MPEGH/ISO/HEVC": "hevc",
	"V_VP8":            "vp8",
	"V_VP9":            "vp9",
	"V_AV1":            "av1",
	"V_MPEG4/ISO/SP":   "mpeg4",
	"V_MPEG4/ISO/ASP":  "mpeg4",
	"V_MPEG4/ISO/AP":   "mpeg4",
	"V_MPEG2":          "mpeg2video",
	"V_MPEG1":          "mpeg1video",
}

var mkvAudioCodecs = map[string]string{
	"A_AAC":          "aac",
	"A_AAC/MPEG2/LC": "aac",
	"A_AAC/MPEG4/LC": "aac",
	"A_VORBIS":       "vorbis",
	"A_OPUS":         "opus",
	"A_AC3":          "ac3",
	"A_EAC3":         "eac3",
	"A_DTS":          "dts",
	"A_FLAC":         "flac",
	"A_MPEG/L3":      "mp3",
	"A_MPEG/L2":      "mp2",
	"A_PCM/INT/LIT":  "pcm",
}

var aviVideoCodecs = map[string]string{
	"H264":  "h264",
	"X264":  "h264",
	"AVC1":  "h264",
	"HEVC":  "hevc",
	"H265":  "hevc",
	"X265":  "hevc",
	"HVC1":  "hevc",
	"DIVX":  "mpeg4",
	"DX50":  "mpeg4",
	"XVID":  "mpeg4",
	"FMP4":  "mpeg4",
	"MP4V":  "mpeg4",
	"MJPG":  "mjpeg",
	"VP80":  "vp8",
	"VP90":  "vp9",
	"AV01":  "av1",
	"WMV1":  "wmv1",
	"WMV2":  "wmv2",
	"WMV3":  "wmv3",
	"MSVC":  "msvideo1",
	"CRAM":  "msvideo1",
	"MJPEG": "mjpeg",
}

// WAVEFORMATEX format tags.
var aviAudioFormats = map[uint16]string{
	0x0001: "pcm",
	0x0003: "pcm",
	0x0050: "mp2",
	0x0055: "mp3",
	0x00FF: "aac",
	0x1610: "aac",
	0x2000: "ac3",
	0x2001: "dts",
	0x0161: "wmav2",
}

func mp4CodecName(fourcc string, table map[string]string) string {
	if name, ok := table[fourcc]; ok {
		return name
	}
	return strings.TrimSpace(fourcc)
}

func mkvCodecName(codecID string, table map[string]string, prefix string) string {
	if name, ok := table[codecID]; ok {
		return name
	}
	if strings.HasPrefix(codecID, prefix) {
		return strings.ToLower(strings.TrimPrefix(codecID, prefix))
	}
	return codecID
}

func aviVideoCodecName(fourcc string) string {
	fourcc = strings.TrimRight(fourcc, "\x00 ")
	if name, ok := aviVideoCodecs[strings.ToUpper(fourcc)]; ok {
		return name
	}
	return strings.ToLower(fourcc)
}

func aviAudioCodecName(tag uint16) string {
	if name, ok := aviAudioFormats[tag]; ok {
		return name
	}
	return ""
}
