package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/papapumpkin/osmpoi/internal/dataset"
)

// JobState is the scheduling state of a build job.
type JobState int

const (
	JobQueued JobState = iota
	JobRunning
	JobSucceeded
	JobFailed
	JobCancelled
)

// String returns the lowercase state name.
func (s JobState) String() string {
	switch s {
	case JobQueued:
		return "queued"
	case JobRunning:
		return "running"
	case JobSucceeded:
		return "succeeded"
	case JobFailed:
		return "failed"
	case JobCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Terminal reports whether the job will not change state again.
func (s JobState) Terminal() bool {
	return s >= JobSucceeded
}

// Job is the handle returned by Enqueue and Resume.
type Job struct {
	id     string
	name   string
	source string
	from   dataset.Stage

	mu    sync.Mutex
	state JobState
	stage dataset.Stage
	err   error
	done  chan struct{}
}

func newJob(name, source string, from dataset.Stage) *Job {
	return &Job{
		id:     uuid.NewString(),
		name:   name,
		source: source,
		from:   from,
		state:  JobQueued,
		stage:  from,
		done:   make(chan struct{}),
	}
}

// ID returns the unique job identifier.
func (j *Job) ID() string { return j.id }

// Name returns the logical dataset name the job builds.
func (j *Job) Name() string { return j.name }

// Source returns the source extract path; empty for resumed builds.
func (j *Job) Source() string { return j.source }

// State returns the current scheduling state.
func (j *Job) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Stage returns the stage being run, or the stage that failed.
func (j *Job) Stage() dataset.Stage {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stage
}

// Err returns the failure of a finished job.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Done is closed once the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes or ctx ends, returning the job error.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Job) setRunning() {
	j.mu.Lock()
	j.state = JobRunning
	j.mu.Unlock()
}

func (j *Job) setStage(s dataset.Stage) {
	j.mu.Lock()
	j.stage = s
	j.mu.Unlock()
}

func (j *Job) finish(state JobState, err error) {
	j.mu.Lock()
	j.state = state
	j.err = err
	j.mu.Unlock()
	close(j.done)
}
