package async

import (
	"context"
	"time"
)

// Job is the smallest useful unit of batch work: one file on disk to ingest
// for one tenant.
type Job struct {
	TenantID    string
	Path        string
	SubmittedAt time.Time
	TraceID     string
}

// Runner executes one queued job.
type Runner interface {
	Run(ctx context.Context, job Job) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, job Job) error

func (f RunnerFunc) Run(ctx context.Context, job Job) error { return f(ctx, job) }

// Queue accepts jobs and processes them on background workers.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
