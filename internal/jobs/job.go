// Package jobs runs conversions in the background and tracks their progress.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/Frank2Yang/pdf-paper-converter/internal/service"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	// StatusPartial means at least one file succeeded and one failed.
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrQueueFull   = errors.New("job queue is full")
	ErrClosed      = errors.New("job manager is closed")
)

// Job is an asynchronous conversion of one or more uploaded PDFs.
type Job struct {
	ID        string           `json:"id"`
	Status    Status           `json:"status"`
	Progress  float64          `json:"progress"`
	Message   string           `json:"message,omitempty"`
	Files     []string         `json:"files"`
	Results   []service.Result `json:"results,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Done reports whether the job reached a final state.
func (j *Job) Done() bool {
	switch j.Status {
	case StatusSucceeded, StatusPartial, StatusFailed:
		return true
	}
	return false
}

func (j *Job) clone() *Job {
	c := *j
	c.Files = append([]string(nil), j.Files...)
	c.Results = append([]service.Result(nil), j.Results...)
	return &c
}

// finalStatus derives the terminal status from the per-file results.
func finalStatus(results []service.Result) Status {
	ok := 0
	for _, r := range results {
		if r.Success {
			ok++
		}
	}
	switch {
	case ok == 0:
		return StatusFailed
	case ok == len(results):
		return StatusSucceeded
	default:
		return StatusPartial
	}
}

// Store persists job snapshots.
type Store interface {
	Save(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	// List returns the most recently created jobs first.
	List(ctx context.Context, limit int) ([]*Job, error)
}
