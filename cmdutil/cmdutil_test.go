package cmdutil

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutableName(t *testing.T) {
	if runtime.GOOS == "windows" {
		assert.Equal(t, "ffmpeg.exe", ExecutableName("ffmpeg"))
		assert.Equal(t, "ffmpeg.exe", ExecutableName("ffmpeg.exe"))
		return
	}
	assert.Equal(t, "ffprobe", ExecutableName("ffprobe"))
}

func TestLocateBinaryFallsBackToName(t *testing.T) {
	// The test binary directory never contains this tool.
	assert.Equal(t, ExecutableName("vidconv-missing-tool"), LocateBinary("vidconv-missing-tool"))
}
