package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"vidconv/cmdutil"
	"vidconv/config"
	"vidconv/events"
	"vidconv/ffmpeg"
	"vidconv/history"
	"vidconv/media"
	"vidconv/preset"
	"vidconv/service"
	"vidconv/task"
)

// shutdownWait bounds how long Close waits for a cancelled batch.
const shutdownWait = 10 * time.Second

// app is the fully wired backend used by the commands.
type app struct {
	cfg     *config.Config
	logger  hclog.Logger
	runner  *ffmpeg.Runner
	store   *history.Store
	manager *task.Manager
	svc     *service.Service
}

// newApp wires every component. The history database is only opened when
// withHistory is set.
func newApp(cfg *config.Config, logger hclog.Logger, withHistory bool) (*app, error) {
	catalog, err := preset.LoadCatalog(cfg.PresetsFile)
	if err != nil {
		return nil, err
	}

	runner := ffmpeg.NewRunner(cfg, logger.Named("ffmpeg"))
	ffprobe := strings.TrimSpace(cfg.FFProbeBin)
	if ffprobe == "" {
		ffprobe = cmdutil.LocateBinary("ffprobe")
	}
	prober := media.NewProber(ffprobe, cfg.ProbeConcurrency, logger.Named("probe"))

	a := &app{cfg: cfg, logger: logger, runner: runner}

	var (
		jobHistory task.HistoryStore
		reader     service.HistoryReader
	)
	if withHistory {
		store, err := history.Open(cfg.HistoryPath())
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		a.store = store
		jobHistory, reader = store, store
	}

	a.manager, err = task.NewManager(cfg, runner, jobHistory, logger.Named("task"))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.svc, err = service.New(service.Options{
		Config:    cfg,
		Catalog:   catalog,
		Prober:    prober,
		Toolchain: runner,
		Manager:   a.manager,
		History:   reader,
		Hub:       events.NewHub(events.DefaultBuffer, logger.Named("events")),
		Logger:    logger.Named("service"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close waits for encodes to wind down before the hub and the history store
// go away, so cancelled jobs still reach history.
func (a *app) Close() {
	if a.svc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownWait)
		defer cancel()
		if err := a.svc.Wait(ctx); err != nil {
			a.logger.Warn("encoding did not stop in time", "error", err)
		}
		a.svc.Hub().Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing history", "error", err)
		}
	}
}
