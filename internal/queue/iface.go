package queue

import "context"

// Enqueuer publishes jobs to the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *Job) (string, error)
}

// Dequeuer consumes jobs from the queue.
// Start begins consuming in background goroutines.
// Stop gracefully shuts down consumers.
type Dequeuer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// DeadLetterQueue manages jobs that exhausted their retries.
type DeadLetterQueue interface {
	MoveToDLQ(ctx context.Context, job *Job, reason string) error
	// Reprocess re-enqueues dead jobs with a fresh retry budget and returns
	// how many were moved back.
	Reprocess(ctx context.Context, entryIDs []string) (int, error)
}

// JobHandler processes a single job. A returned error schedules a retry.
type JobHandler interface {
	HandleJob(ctx context.Context, job *Job) error
}

// JobHandlerFunc adapts a function to JobHandler.
type JobHandlerFunc func(ctx context.Context, job *Job) error

func (f JobHandlerFunc) HandleJob(ctx context.Context, job *Job) error { return f(ctx, job) }
