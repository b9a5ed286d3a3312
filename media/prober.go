package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

type nativeParser func(r io.ReadSeeker, size int64) (*FileInfo, error)

var nativeParsers = map[string]nativeParser{
	".mp4":  parseMP4,
	".mov":  parseMP4,
	".m4v":  parseMP4,
	".mkv":  parseMKV,
	".webm": parseMKV,
	".avi":  parseAVI,
}

// Prober extracts metadata, preferring the in-process container parsers and
// falling back to ffprobe for other formats or when native parsing fails.
type Prober struct {
	ffprobeBin  string
	concurrency int
	logger      hclog.Logger
}

// NewProber creates a Prober. concurrency bounds ProbeAll.
func NewProber(ffprobeBin string, concurrency int, logger hclog.Logger) *Prober {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Prober{
		ffprobeBin:  ffprobeBin,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Probe returns full metadata for path.
func (p *Prober) Probe(ctx context.Context, path string) (*FileInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("file not found: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if parse, ok := nativeParsers[ext]; ok {
		info, err := parseFile(path, stat.Size(), parse)
		if err == nil {
			p.logger.Trace("native probe", "path", path, "codec", info.Codec)
			return finish(info, path, stat.Size()), nil
		}
		p.logger.Debug("native probe failed, falling back to ffprobe", "path", path, "error", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := inspectFFprobe(ctx, p.ffprobeBin, path)
	if err != nil {
		return nil, err
	}
	return finish(info, path, stat.Size()), nil
}

// ProbeResult pairs a path with its probe outcome.
type ProbeResult struct {
	Path string
	Info *FileInfo
	Err  error
}

// ProbeAll probes paths with bounded parallelism. Results keep input order.
func (p *Prober) ProbeAll(ctx context.Context, paths []string) []ProbeResult {
	results := make([]ProbeResult, len(paths))
	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup

	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = ProbeResult{Path: path, Err: ctx.Err()}
				return
			}
			info, err := p.Probe(ctx, path)
			results[i] = ProbeResult{Path: path, Info: info, Err: err}
		}(i, path)
	}
	wg.Wait()
	return results
}

func parseFile(path string, size int64, parse nativeParser) (*FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parse(f, size)
}

func finish(info *FileInfo, path string, size int64) *FileInfo {
	info.Path = path
	info.Name = filepath.Base(path)
	info.FileSize = size
	if info.Duration == "" {
		info.Duration = FormatDuration(info.DurationSeconds)
	}
	return info
}
