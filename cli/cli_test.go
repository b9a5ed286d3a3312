package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidconv/events"
	"vidconv/ffmpeg"
	"vidconv/history"
	"vidconv/media"
	"vidconv/preset"
	"vidconv/task"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("VIDCONV_DATA_DIR", t.TempDir())
	t.Setenv("VIDCONV_OUTPUT_DIR", t.TempDir())

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRenderTable(t *testing.T) {
	assert.Empty(t, renderTable(nil, nil, nil))

	out := renderTable([]string{"A", "B"}, [][]string{{"1"}, {"2", "3"}}, []columnAlignment{alignLeft, alignRight})
	assert.Contains(t, out, "A")
	assert.Contains(t, out, "B")
	assert.Contains(t, out, "3")
	assert.GreaterOrEqual(t, strings.Count(out, "\n"), 4)
}

func TestPresetsCommand(t *testing.T) {
	out, err := runCommand(t, "presets")
	require.NoError(t, err)
	assert.Contains(t, out, preset.DefaultName)
	assert.Contains(t, out, "HEVC 4K|60p")
}

func TestHistoryCommandEmpty(t *testing.T) {
	out, err := runCommand(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No jobs recorded.")
}

func TestProbeRequiresArgs(t *testing.T) {
	_, err := runCommand(t, "probe")
	assert.Error(t, err)
}

func TestPresetRows(t *testing.T) {
	rows := presetRows(preset.Builtins())
	require.Len(t, rows, len(preset.Builtins()))
	assert.Equal(t, []string{preset.DefaultName, "source", "source", preset.LevelAuto, ""}, rows[0])
}

func TestEncoderRows(t *testing.T) {
	rows := encoderRows([]ffmpeg.HWEncoder{
		{ID: "hevc_nvenc", Name: "NVIDIA NVENC", Available: false, Priority: 100},
		{ID: "hevc_vaapi", Name: "VAAPI", Available: true, Priority: 90},
		ffmpeg.SoftwareEncoder(),
	})
	require.Len(t, rows, 2)
	assert.Equal(t, "hevc_vaapi", rows[0][0])
	assert.Equal(t, "*", rows[0][3])
	assert.Equal(t, ffmpeg.SoftwareEncoderID, rows[1][0])
	assert.Empty(t, rows[1][3])
}

func TestFileRows(t *testing.T) {
	rows := fileRows([]media.FileInfo{{
		Name:                "a.mp4",
		Width:               1920,
		Height:              1080,
		Framerate:           29.97,
		Duration:            "00:01:00",
		Codec:               "h264",
		AudioCodec:          "aac",
		FileSize:            1536,
		HasDurationMismatch: true,
	}})
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"a.mp4 *", "1920x1080", "29.97", "00:01:00", "h264", "aac", "1.5 KB"}, rows[0])
}

func TestHistoryRows(t *testing.T) {
	rows := historyRows([]history.Record{{
		InputPath:       "/videos/a.mp4",
		Preset:          "Source settings",
		Encoder:         "libx265",
		Status:          "error",
		Error:           "first\nsecond",
		DurationSeconds: 3661,
		CompletedAt:     time.Now(),
	}})
	require.Len(t, rows, 1)
	assert.Equal(t, "a.mp4", rows[0][1])
	assert.Equal(t, "01:01:01", rows[0][5])
	assert.Equal(t, "first", rows[0][6])
}

func TestProgressLine(t *testing.T) {
	line := progressLine(task.Progress{Filename: "a.mp4", Progress: 42.25, CurrentFile: 1, TotalFiles: 3, Speed: "2.0x", ETA: "00:00:30"})
	assert.Equal(t, "[1/3] a.mp4  42.2%  speed 2.0x  ETA 00:00:30", line)
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := &progressPrinter{out: &buf, tty: true}

	p.handle(events.Event{Type: events.EncodingProgress, Data: task.Progress{Filename: "a.mp4", Progress: 10, CurrentFile: 1, TotalFiles: 1}})
	assert.True(t, strings.HasPrefix(buf.String(), "\r[1/1] a.mp4"))
	assert.NotZero(t, p.lastLen)

	p.handle(events.Event{Type: events.EncodingFileComplete, Data: map[string]any{"filename": "a.mp4", "outputPath": "/out/a.mkv"}})
	assert.Zero(t, p.lastLen)
	assert.Contains(t, buf.String(), "done   a.mp4 -> /out/a.mkv\n")

	p.handle(events.Event{Type: events.EncodingError, Data: map[string]string{"filename": "b.mp4", "error": "bad\nmore"}})
	assert.Contains(t, buf.String(), "failed b.mp4: bad\n")

	buf.Reset()
	quiet := &progressPrinter{out: &buf}
	quiet.handle(events.Event{Type: events.EncodingProgress, Data: task.Progress{Filename: "a.mp4"}})
	assert.Empty(t, buf.String())
}
