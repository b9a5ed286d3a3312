// Package cmdutil holds helpers for launching the external ffmpeg tools.
package cmdutil

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ExecutableName appends the platform executable suffix to a tool name.
func ExecutableName(name string) string {
	if runtime.GOOS == "windows" && !strings.HasSuffix(strings.ToLower(name), ".exe") {
		return name + ".exe"
	}
	return name
}

// LocateBinary resolves a tool shipped alongside the application. It looks in
// the directory of the running executable, then (for macOS app bundles) in the
// directory containing the .app, and finally falls back to the bare name so
// exec resolves it through PATH.
func LocateBinary(name string) string {
	execName := ExecutableName(name)

	exePath, err := os.Executable()
	if err != nil {
		return execName
	}
	for _, dir := range candidateDirs(exePath) {
		candidate := filepath.Join(dir, execName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return execName
}

func candidateDirs(exePath string) []string {
	exeDir := filepath.Dir(exePath)
	dirs := []string{exeDir}

	// .../Name.app/Contents/MacOS/binary -> directory holding Name.app
	if runtime.GOOS == "darwin" && strings.Contains(exePath, ".app/Contents/MacOS") {
		bundleParent := exeDir
		for i := 0; i < 3; i++ {
			bundleParent = filepath.Dir(bundleParent)
		}
		dirs = append(dirs, bundleParent)
	}
	return dirs
}
