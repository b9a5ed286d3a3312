// Package task runs encoding batches: one job per source file, executed with
// bounded concurrency, cancellable as a whole or per job.
package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/lithammer/shortuuid/v4"

	"vidconv/config"
	"vidconv/ffmpeg"
	"vidconv/media"
	"vidconv/preset"
)

var (
	ErrBatchRunning = errors.New("encoding already in progress")
	ErrNoFiles      = errors.New("no files to encode")
	ErrJobNotFound  = errors.New("job not found")
)

type FFmpegRunner interface {
	Encode(ctx context.Context, args []string, duration float64, onProgress func(ffmpeg.Progress)) (*ffmpeg.Result, error)
}

// HistoryStore persists finished jobs.
type HistoryStore interface {
	Record(ctx context.Context, job Job) error
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// BatchRequest describes one start-encoding request.
type BatchRequest struct {
	Files     []media.FileInfo
	Preset    preset.Preset
	EncoderID string
	OutputDir string
	// Quality overrides the preset quality when positive.
	Quality int
}

// Batch is a started batch. Done is closed once every job is terminal.
type Batch struct {
	ID   string
	Jobs []Job
	done chan struct{}
}

func (b *Batch) Done() <-chan struct{} {
	return b.done
}

type batchRun struct {
	id        string
	req       BatchRequest
	jobs      []*Job
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled bool
	done      chan struct{}
}

type Manager struct {
	cfg            *config.Config
	runner         FFmpegRunner
	history        HistoryStore
	logger         hclog.Logger
	concurrencySem chan struct{}
	batches        sync.WaitGroup

	mu      sync.RWMutex
	rootCtx context.Context
	hooks   Hooks
	current *batchRun
	jobs    []*Job
}

// NewManager creates a Manager. history may be nil.
func NewManager(cfg *config.Config, runner FFmpegRunner, history HistoryStore, logger hclog.Logger) (*Manager, error) {
	if runner == nil {
		return nil, errors.New("task manager needs an ffmpeg runner")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	concurrency := cfg.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	m := &Manager{
		cfg:            cfg,
		runner:         runner,
		history:        history,
		logger:         logger,
		concurrencySem: make(chan struct{}, concurrency),
		rootCtx:        context.Background(),
	}
	return m, nil
}

// SetHooks replaces the lifecycle hooks.
func (m *Manager) SetHooks(h Hooks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = h
}

// Start binds the manager to ctx: batches started later are cancelled when
// ctx ends, and finished job records are pruned periodically.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	m.rootCtx = ctx
	m.mu.Unlock()

	m.logger.Info("task manager started", "concurrency", cap(m.concurrencySem))
	go m.pruneLoop(ctx)
}

// StartBatch queues one job per file and starts encoding in the background.
func (m *Manager) StartBatch(req BatchRequest) (*Batch, error) {
	if len(req.Files) == 0 {
		return nil, ErrNoFiles
	}
	if req.EncoderID == "" {
		req.EncoderID = ffmpeg.SoftwareEncoderID
	}

	m.mu.Lock()
	if m.current != nil {
		m.mu.Unlock()
		return nil, ErrBatchRunning
	}

	ctx, cancel := context.WithCancel(m.rootCtx)
	run := &batchRun{
		id:     shortuuid.New(),
		req:    req,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	now := time.Now()
	outputs := PlanOutputs(req.OutputDir, req.Files)
	for i, f := range req.Files {
		run.jobs = append(run.jobs, &Job{
			ID:         shortuuid.New(),
			BatchID:    run.id,
			Index:      i,
			InputPath:  f.Path,
			OutputPath: outputs[i],
			PresetName: req.Preset.Name,
			EncoderID:  req.EncoderID,
			Source:     f,
			Status:     StatusWaiting,
			CreatedAt:  now,
		})
	}
	m.current = run
	m.jobs = run.jobs
	hooks := m.hooks
	snapshot := copyJobs(run.jobs)
	m.mu.Unlock()

	m.logger.Info("batch started", "batch", run.id, "files", len(snapshot), "preset", req.Preset.Name, "encoder", req.EncoderID)
	if hooks.OnStarted != nil {
		hooks.OnStarted(run.id, snapshot)
	}

	m.batches.Add(1)
	go m.runBatch(run)
	return &Batch{ID: run.id, Jobs: snapshot, done: run.done}, nil
}

// runBatch feeds jobs through the concurrency semaphore in order.
func (m *Manager) runBatch(run *batchRun) {
	defer m.batches.Done()

	var wg sync.WaitGroup
loop:
	for _, job := range run.jobs {
		// Wait for a free processing slot
		select {
		case <-run.ctx.Done():
			break loop
		case m.concurrencySem <- struct{}{}:
		}
		wg.Add(1)
		go func(j *Job) {
			defer wg.Done()
			defer func() { <-m.concurrencySem }() // Release slot
			m.processJob(run, j)
		}(job)
	}
	wg.Wait()
	m.finishBatch(run)
}

// processJob handles the execution of a single job.
func (m *Manager) processJob(run *batchRun, job *Job) {
	// Create a new context for this specific job for cancellation and timeout
	var jobCtx context.Context
	var cancel context.CancelFunc
	if m.cfg.FFTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(run.ctx, m.cfg.FFTimeout)
	} else {
		jobCtx, cancel = context.WithCancel(run.ctx)
	}
	defer cancel()

	m.mu.Lock()
	if job.Status != StatusWaiting || run.ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	job.Status = StatusEncoding
	job.StartedAt = time.Now()
	job.cancelFunc = cancel
	total := len(run.jobs)
	hooks := m.hooks
	m.mu.Unlock()

	m.logger.Info("encoding", "job", job.ID, "input", job.InputPath, "output", job.OutputPath)

	args, err := run.req.Preset.BuildArgs(preset.BuildOptions{
		Input:  job.InputPath,
		Output: job.OutputPath,
		Source: &preset.Source{
			Width:     job.Source.Width,
			Height:    job.Source.Height,
			Framerate: job.Source.Framerate,
		},
		EncoderID: job.EncoderID,
		Quality:   run.req.Quality,
	})

	var result *ffmpeg.Result
	if err == nil {
		result, err = m.runner.Encode(jobCtx, args, job.Source.DurationSeconds, func(p ffmpeg.Progress) {
			m.mu.Lock()
			job.Progress = p.Percent
			m.mu.Unlock()
			if hooks.OnProgress != nil {
				hooks.OnProgress(Progress{
					JobID:       job.ID,
					Filename:    job.Source.Name,
					Progress:    p.Percent,
					ETA:         p.ETA,
					CurrentFile: job.Index + 1,
					TotalFiles:  total,
					Status:      StatusEncoding,
					PassNumber:  1,
					TotalPasses: 1,
					Speed:       p.Speed,
				})
			}
		})
	}

	m.mu.Lock()
	job.cancelFunc = nil
	job.CompletedAt = time.Now()
	if result != nil {
		job.FFmpegLog = result.Log
	}
	switch {
	case err == nil:
		job.Status = StatusCompleted
		job.Progress = 100
	case errors.Is(err, context.Canceled):
		job.Status = StatusCancelled
		job.Error = "encoding cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		job.Status = StatusError
		job.Error = fmt.Sprintf("encoding timed out after %s", m.cfg.FFTimeout)
		err = errors.New(job.Error)
	default:
		job.Status = StatusError
		job.Error = err.Error()
	}
	final := *job
	m.mu.Unlock()

	switch final.Status {
	case StatusCompleted:
		m.logger.Info("job completed", "job", final.ID, "output", final.OutputPath)
		if hooks.OnJobCompleted != nil {
			hooks.OnJobCompleted(final)
		}
	case StatusError:
		m.logger.Error("job failed", "job", final.ID, "input", final.InputPath, "error", err)
		if hooks.OnJobError != nil {
			hooks.OnJobError(final, err)
		}
	case StatusCancelled:
		m.logger.Info("job cancelled", "job", final.ID)
	}
	m.record(final)
}

// finishBatch marks jobs that never ran and reports the outcome.
func (m *Manager) finishBatch(run *batchRun) {
	m.mu.Lock()
	// Jobs that never started are recorded here; the others were recorded
	// by processJob.
	var leftover []Job
	now := time.Now()
	for _, j := range run.jobs {
		if !j.Status.Terminal() {
			j.Status = StatusCancelled
			j.Error = "encoding cancelled"
		}
		if j.StartedAt.IsZero() {
			if j.CompletedAt.IsZero() {
				j.CompletedAt = now
			}
			leftover = append(leftover, *j)
		}
	}
	summary := summarize(run)
	cancelled := run.cancelled || run.ctx.Err() != nil
	run.cancel()
	m.current = nil
	hooks := m.hooks
	m.mu.Unlock()

	for _, j := range leftover {
		m.record(j)
	}

	if cancelled {
		m.logger.Info("batch cancelled", "batch", run.id, "completed", summary.Completed, "failed", summary.Failed)
		if hooks.OnCancelled != nil {
			hooks.OnCancelled(summary)
		}
	} else {
		m.logger.Info("batch finished", "batch", run.id, "completed", summary.Completed, "failed", summary.Failed)
		if hooks.OnBatchComplete != nil {
			hooks.OnBatchComplete(summary)
		}
	}
	close(run.done)
}

func summarize(run *batchRun) Summary {
	s := Summary{BatchID: run.id, Total: len(run.jobs)}
	for _, j := range run.jobs {
		switch j.Status {
		case StatusCompleted:
			s.Completed++
		case StatusError:
			s.Failed++
		case StatusCancelled:
			s.Cancelled++
		}
	}
	return s
}

func (m *Manager) record(job Job) {
	if m.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.history.Record(ctx, job); err != nil {
		m.logger.Warn("could not record job history", "job", job.ID, "error", err)
	}
}

// Wait blocks until every started batch has finished, history included, or
// ctx ends.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.batches.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops the running batch. The encoding job and every waiting job end
// up cancelled. It reports whether a batch was running.
func (m *Manager) Cancel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	run := m.current
	if run == nil {
		return false
	}
	run.cancelled = true
	for _, j := range run.jobs {
		if j.Status == StatusWaiting {
			j.Status = StatusCancelled
			j.Error = "encoding cancelled"
		}
	}
	run.cancel()
	m.logger.Info("cancellation requested", "batch", run.id)
	return true
}

// CancelJob cancels a single waiting or encoding job; the batch continues.
func (m *Manager) CancelJob(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job := m.findJob(id)
	if job == nil {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	switch job.Status {
	case StatusWaiting:
		job.Status = StatusCancelled
		job.Error = "cancelled by user while waiting"
		job.CompletedAt = time.Now()
	case StatusEncoding:
		if job.cancelFunc == nil {
			return fmt.Errorf("job %s is encoding but has no cancellation handle", id)
		}
		job.cancelFunc()
	default:
		return fmt.Errorf("cannot cancel job in state: %s", job.Status)
	}
	return nil
}

func (m *Manager) findJob(id string) *Job {
	for _, j := range m.jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

// Get returns a copy of the job with the given id from the latest batch.
func (m *Manager) Get(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if j := m.findJob(id); j != nil {
		return *j, true
	}
	return Job{}, false
}

// Jobs returns copies of the jobs of the latest batch.
func (m *Manager) Jobs() []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyJobs(m.jobs)
}

// IsRunning reports whether a batch is in progress.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current != nil
}

// CurrentProgress returns the progress of the first encoding job of the
// running batch, if any.
func (m *Manager) CurrentProgress() (Progress, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Progress{}, false
	}
	for _, j := range m.current.jobs {
		if j.Status == StatusEncoding {
			return Progress{
				JobID:       j.ID,
				Filename:    j.Source.Name,
				Progress:    j.Progress,
				CurrentFile: j.Index + 1,
				TotalFiles:  len(m.current.jobs),
				Status:      j.Status,
				PassNumber:  1,
				TotalPasses: 1,
			}, true
		}
	}
	return Progress{}, false
}

func copyJobs(jobs []*Job) []Job {
	out := make([]Job, len(jobs))
	for i, j := range jobs {
		out[i] = *j
		out[i].cancelFunc = nil
	}
	return out
}

// pruneLoop periodically removes old job records from the history store.
func (m *Manager) pruneLoop(ctx context.Context) {
	retention := m.cfg.HistoryRetention
	if m.history == nil || retention <= 0 {
		return
	}
	ticker := time.NewTicker(retention / 4) // Check 4 times per retention period
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("prune loop shutting down")
			return
		case <-ticker.C:
			n, err := m.history.Prune(ctx, time.Now().Add(-retention))
			if err != nil {
				m.logger.Warn("history prune failed", "error", err)
			} else if n > 0 {
				m.logger.Info("pruned job history", "removed", n)
			}
		}
	}
}

// PlanOutputs maps each source file to "<dir>/<base>.mkv". A name that
// would overwrite its own input gets a "_converted" suffix, and names
// repeated within the batch are numbered.
func PlanOutputs(dir string, files []media.FileInfo) []string {
	taken := make(map[string]bool, len(files))
	outputs := make([]string, len(files))
	for i, f := range files {
		base := strings.TrimSuffix(filepath.Base(f.Path), filepath.Ext(f.Path))
		out := filepath.Join(dir, base+".mkv")
		if samePath(out, f.Path) {
			base += "_converted"
			out = filepath.Join(dir, base+".mkv")
		}
		for n := 2; taken[out]; n++ {
			out = filepath.Join(dir, base+"_"+strconv.Itoa(n)+".mkv")
		}
		taken[out] = true
		outputs[i] = out
	}
	return outputs
}

func samePath(a, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	ai, err1 := os.Stat(a)
	bi, err2 := os.Stat(b)
	return err1 == nil && err2 == nil && os.SameFile(ai, bi)
}
