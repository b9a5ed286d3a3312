// Package service is the application layer shared by the HTTP API, the CLI
// and the folder watcher. It owns the workspace and forwards encoding
// lifecycle changes to the workspace and the event hub.
package service

import (
	"context"
	"errors"

	"github.com/hashicorp/go-hclog"

	"vidconv/config"
	"vidconv/events"
	"vidconv/ffmpeg"
	"vidconv/history"
	"vidconv/media"
	"vidconv/preset"
	"vidconv/task"
	"vidconv/workspace"
)

const AppName = "vidconv"

// Version is overridden at build time with -ldflags "-X vidconv/service.Version=...".
var Version = "dev"

// Prober extracts media metadata.
type Prober interface {
	ProbeAll(ctx context.Context, paths []string) []media.ProbeResult
}

// Toolchain is the part of the ffmpeg runner the service talks to directly.
type Toolchain interface {
	DetectEncoders(ctx context.Context, refresh bool) ([]ffmpeg.HWEncoder, error)
	Version(ctx context.Context) (string, error)
}

// HistoryReader lists finished jobs.
type HistoryReader interface {
	List(ctx context.Context, limit int) ([]history.Record, error)
}

// Options wires a Service. History and Hub may be nil.
type Options struct {
	Config    *config.Config
	Catalog   *preset.Catalog
	Prober    Prober
	Toolchain Toolchain
	Manager   *task.Manager
	History   HistoryReader
	Hub       *events.Hub
	Logger    hclog.Logger
}

type Service struct {
	cfg       *config.Config
	catalog   *preset.Catalog
	prober    Prober
	toolchain Toolchain
	manager   *task.Manager
	history   HistoryReader
	hub       *events.Hub
	ws        *workspace.Workspace
	logger    hclog.Logger
}

// New creates a Service and installs its hooks on the task manager.
func New(opts Options) (*Service, error) {
	switch {
	case opts.Config == nil:
		return nil, errors.New("service needs a config")
	case opts.Catalog == nil:
		return nil, errors.New("service needs a preset catalog")
	case opts.Prober == nil:
		return nil, errors.New("service needs a prober")
	case opts.Toolchain == nil:
		return nil, errors.New("service needs an ffmpeg toolchain")
	case opts.Manager == nil:
		return nil, errors.New("service needs a task manager")
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	hub := opts.Hub
	if hub == nil {
		hub = events.NewHub(0, logger.Named("events"))
	}

	s := &Service{
		cfg:       opts.Config,
		catalog:   opts.Catalog,
		prober:    opts.Prober,
		toolchain: opts.Toolchain,
		manager:   opts.Manager,
		history:   opts.History,
		hub:       hub,
		ws:        workspace.New(opts.Catalog.All(), opts.Config.OutputDir),
		logger:    logger,
	}
	s.manager.SetHooks(s.hooks())
	return s, nil
}

// Start runs the task manager's background work until ctx ends.
func (s *Service) Start(ctx context.Context) {
	s.manager.Start(ctx)
}

// Wait blocks until running encodes have wound down and been recorded, or
// ctx ends.
func (s *Service) Wait(ctx context.Context) error {
	return s.manager.Wait(ctx)
}

// Hub returns the event hub the service publishes to.
func (s *Service) Hub() *events.Hub {
	return s.hub
}

// Workspace exposes the underlying state containers.
func (s *Service) Workspace() *workspace.Workspace {
	return s.ws
}

// AppInfo describes the running application.
type AppInfo struct {
	AppName       string `json:"appName"`
	AppVersion    string `json:"appVersion"`
	FFmpegVersion string `json:"ffmpegVersion"`
}

// Info reports the application and ffmpeg versions. The ffmpeg version is
// empty when ffmpeg cannot be run.
func (s *Service) Info(ctx context.Context) AppInfo {
	version, err := s.toolchain.Version(ctx)
	if err != nil {
		s.logger.Debug("ffmpeg version unavailable", "error", err)
	}
	return AppInfo{
		AppName:       AppName,
		AppVersion:    Version,
		FFmpegVersion: version,
	}
}

// History returns up to limit finished jobs, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]history.Record, error) {
	if s.history == nil {
		return []history.Record{}, nil
	}
	records, err := s.history.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []history.Record{}
	}
	return records, nil
}
