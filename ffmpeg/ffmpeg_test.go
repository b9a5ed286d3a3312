package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidconv/config"
)

func TestParseProgress(t *testing.T) {
	stream := strings.Join([]string{
		"frame=10",
		"out_time_us=25000000",
		"speed=N/A",
		"progress=continue",
		"out_time_us=50000000",
		"speed=2.5x",
		"progress=continue",
		"out_time_us=75000000",
		"out_time_us=garbage",
		"progress=end",
	}, "\n")

	var got []Progress
	err := ParseProgress(strings.NewReader(stream), 100, func(p Progress) {
		got = append(got, p)
	})
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, 25.0, got[0].Percent)
	assert.Equal(t, "", got[0].ETA)
	assert.Equal(t, 50.0, got[1].Percent)
	assert.Equal(t, "N/A", got[1].Speed)
	assert.Equal(t, 75.0, got[2].Percent)
	assert.Equal(t, "2.5x", got[2].Speed)
	assert.Equal(t, "00:00:10", got[2].ETA)
	assert.Equal(t, 100.0, got[3].Percent)
	assert.Equal(t, "00:00:00", got[3].ETA)
}

func TestParseProgressClampsAndNeedsDuration(t *testing.T) {
	var got []Progress
	emit := func(p Progress) { got = append(got, p) }

	require.NoError(t, ParseProgress(strings.NewReader("out_time_us=99000000\n"), 0, emit))
	assert.Empty(t, got)

	require.NoError(t, ParseProgress(strings.NewReader("out_time_us=-5\nout_time_us=20000000\n"), 10, emit))
	require.Len(t, got, 2)
	assert.Equal(t, 0.0, got[0].Percent)
	assert.Equal(t, 100.0, got[1].Percent)
}

func TestEstimateETA(t *testing.T) {
	assert.Equal(t, "00:01:00", EstimateETA(60, 180, "2x"))
	assert.Equal(t, "01:00:00", EstimateETA(0, 1800, "0.5x"))
	assert.Equal(t, "00:00:00", EstimateETA(200, 180, "1x"))
	assert.Equal(t, "", EstimateETA(10, 180, "N/A"))
	assert.Equal(t, "", EstimateETA(10, 0, "1x"))
}

func TestParseSpeed(t *testing.T) {
	assert.Equal(t, 1.5, ParseSpeed("1.5x"))
	assert.Equal(t, 12.0, ParseSpeed(" 12x "))
	assert.Equal(t, 0.0, ParseSpeed("N/A"))
	assert.Equal(t, 0.0, ParseSpeed(""))
}

const encoderListing = `Encoders:
 V..... = Video
 A..... = Audio
 ------
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC
 V....D libx265              libx265 H.265 / HEVC (codec hevc)
 V....D hevc_nvenc           NVIDIA NVENC hevc encoder (codec hevc)
 V....D hevc_vaapi           H.265/HEVC (VAAPI) (codec hevc)
 A....D aac                  AAC (Advanced Audio Coding)
`

func TestParseEncoderList(t *testing.T) {
	present := ParseEncoderList(encoderListing)
	assert.True(t, present["libx265"])
	assert.True(t, present["hevc_nvenc"])
	assert.True(t, present["hevc_vaapi"])
	assert.False(t, present["libx264"])
	assert.False(t, present["aac"])
	assert.False(t, present["="])
}

func TestKnownEncoders(t *testing.T) {
	ids := func(encs []HWEncoder) []string {
		var out []string
		for _, e := range encs {
			out = append(out, e.ID)
		}
		return out
	}
	assert.Equal(t, []string{"hevc_videotoolbox"}, ids(KnownEncoders("darwin")))
	assert.Equal(t, []string{"hevc_nvenc", "hevc_qsv", "hevc_amf"}, ids(KnownEncoders("windows")))
	assert.Equal(t, []string{"hevc_nvenc", "hevc_vaapi"}, ids(KnownEncoders("linux")))
	assert.Empty(t, KnownEncoders("plan9"))
}

func TestAvailableEncoders(t *testing.T) {
	encoders := AvailableEncoders(KnownEncoders("windows"), map[string]bool{"hevc_amf": true, "hevc_qsv": true})
	require.Len(t, encoders, 3)
	assert.Equal(t, "hevc_qsv", encoders[0].ID)
	assert.Equal(t, "hevc_amf", encoders[1].ID)
	assert.Equal(t, SoftwareEncoderID, encoders[2].ID)
	for _, e := range encoders {
		assert.True(t, e.Available)
	}

	assert.Equal(t, []HWEncoder{SoftwareEncoder()}, AvailableEncoders(KnownEncoders("linux"), nil))
}

func TestBestEncoder(t *testing.T) {
	encoders := []HWEncoder{
		{ID: "hevc_qsv", Available: true, Priority: 90},
		{ID: "hevc_nvenc", Available: false, Priority: 100},
		{ID: "hevc_vaapi", Available: true, Priority: 90},
		SoftwareEncoder(),
	}
	assert.Equal(t, "hevc_qsv", BestEncoder(encoders).ID)

	encoders[1].Available = true
	assert.Equal(t, "hevc_nvenc", BestEncoder(encoders).ID)

	assert.Equal(t, SoftwareEncoderID, BestEncoder(nil).ID)
	assert.Equal(t, SoftwareEncoderID, BestEncoder([]HWEncoder{{ID: "hevc_amf", Priority: 80}}).ID)
}

func TestExitError(t *testing.T) {
	base := errors.New("exit status 1")
	err := &ExitError{Err: base, Tail: "Unknown encoder 'hevc_foo'"}
	assert.Equal(t, "Unknown encoder 'hevc_foo'", err.Error())
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "exit status 1", (&ExitError{Err: base}).Error())
}

func TestReadTail(t *testing.T) {
	lines := readTail(strings.NewReader("a\nb\n\nc\nd\ne\nf\n"), 3)
	assert.Equal(t, []string{"d", "e", "f"}, lines)
}

// fakeFFmpeg writes a shell script standing in for ffmpeg.
func fakeFFmpeg(t *testing.T, body string) *Runner {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return NewRunner(&config.Config{FFBin: path}, nil)
}

func TestEncodeReportsProgress(t *testing.T) {
	r := fakeFFmpeg(t, `echo "out_time_us=5000000"
echo "speed=2.0x"
echo "out_time_us=8000000"
echo "progress=end"
echo "encoder log line" >&2`)

	var got []Progress
	out := filepath.Join(t.TempDir(), "out.mkv")
	res, err := r.Encode(context.Background(), []string{"-i", "in.mp4", out}, 10, func(p Progress) {
		got = append(got, p)
	})
	require.NoError(t, err)
	assert.Equal(t, out, res.OutputPath)
	assert.Equal(t, "encoder log line", res.Log)

	require.Len(t, got, 3)
	assert.Equal(t, 50.0, got[0].Percent)
	assert.Equal(t, 80.0, got[1].Percent)
	assert.Equal(t, "00:00:01", got[1].ETA)
	assert.Equal(t, 100.0, got[2].Percent)
}

func TestEncodeFailureCarriesLogTail(t *testing.T) {
	r := fakeFFmpeg(t, `echo "in.mp4: No such file or directory" >&2
exit 1`)

	out := filepath.Join(t.TempDir(), "out.mkv")
	_, err := r.Encode(context.Background(), []string{"-i", "in.mp4", out}, 10, nil)
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, "in.mp4: No such file or directory", err.Error())
}

func TestEncodeCancellation(t *testing.T) {
	r := fakeFFmpeg(t, `exec sleep 5`)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := r.Encode(ctx, []string{filepath.Join(t.TempDir(), "out.mkv")}, 10, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestVersionAndDetection(t *testing.T) {
	r := fakeFFmpeg(t, `case "$1" in
-version) echo "ffmpeg version 6.1 Copyright (c) 2000-2023"; echo "built with gcc" ;;
-hide_banner) echo " V....D libx265              libx265 H.265 / HEVC" ;;
esac`)

	v, err := r.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ffmpeg version 6.1 Copyright (c) 2000-2023", v)
	assert.NoError(t, r.CheckInstalled(context.Background()))

	encoders, err := r.DetectEncoders(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, SoftwareEncoderID, BestEncoder(encoders).ID)
}

func TestCheckInstalledMissingBinary(t *testing.T) {
	r := NewRunner(&config.Config{FFBin: filepath.Join(t.TempDir(), "missing-ffmpeg")}, nil)
	assert.Error(t, r.CheckInstalled(context.Background()))

	encoders, err := r.DetectEncoders(context.Background(), true)
	assert.Error(t, err)
	assert.Equal(t, []HWEncoder{SoftwareEncoder()}, encoders)
}
