package task

import (
	"context"
	"time"

	"vidconv/media"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusEncoding  Status = "encoding"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether a job in this state will not change again.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// Progress is a snapshot of the running encode, as streamed to clients.
type Progress struct {
	JobID       string  `json:"jobId"`
	Filename    string  `json:"filename"`
	Progress    float64 `json:"progress"`
	ETA         string  `json:"eta"`
	CurrentFile int     `json:"currentFile"`
	TotalFiles  int     `json:"totalFiles"`
	Status      Status  `json:"status"`
	PassNumber  int     `json:"passNumber"`
	TotalPasses int     `json:"totalPasses"`
	Speed       string  `json:"speed"`
}

// Job converts one source file.
type Job struct {
	ID          string         `json:"id"`
	BatchID     string         `json:"batchId"`
	Index       int            `json:"index"`
	InputPath   string         `json:"inputPath"`
	OutputPath  string         `json:"outputPath"`
	PresetName  string         `json:"preset"`
	EncoderID   string         `json:"encoder"`
	Source      media.FileInfo `json:"source"`
	Status      Status         `json:"status"`
	Progress    float64        `json:"progress"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	StartedAt   time.Time      `json:"startedAt,omitempty"`
	CompletedAt time.Time      `json:"completedAt,omitempty"`
	FFmpegLog   string         `json:"ffmpegLog,omitempty"` // tail of ffmpeg's stderr
	cancelFunc  context.CancelFunc
}

// Summary counts the outcome of a batch.
type Summary struct {
	BatchID   string `json:"batchId"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Cancelled int    `json:"cancelled"`
}

// Hooks receive batch lifecycle notifications. They run on the manager's
// goroutines and must not block for long. Nil hooks are skipped.
type Hooks struct {
	OnStarted       func(batchID string, jobs []Job)
	OnProgress      func(Progress)
	OnJobCompleted  func(Job)
	OnJobError      func(Job, error)
	OnBatchComplete func(Summary)
	OnCancelled     func(Summary)
}
