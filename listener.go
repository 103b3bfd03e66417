package minibatch

import (
	"context"
	"fmt"
)

// JobListener is notified before and after a job runs. AfterJob is called
// for completed and failed executions alike; the listener tells them apart
// by execution.JobStatus. Errors returned by a listener are recorded on
// the execution and never change its status.
type JobListener interface {
	BeforeJob(ctx context.Context, execution *JobExecution) error
	AfterJob(ctx context.Context, execution *JobExecution) error
}

// StepListener is notified around each step
type StepListener interface {
	BeforeStep(ctx context.Context, execution *StepExecution) error
	AfterStep(ctx context.Context, execution *StepExecution) error
}

// ChunkListener is notified around each chunk write. OnError is called
// after the chunk transaction was rolled back.
type ChunkListener interface {
	BeforeChunk(ctx context.Context, chunkCtx *ChunkContext) error
	AfterChunk(ctx context.Context, chunkCtx *ChunkContext) error
	OnError(ctx context.Context, chunkCtx *ChunkContext, err error)
}

// SkipListener is notified each time the skip policy lets the step continue
// past a *ParseError or *TransformError.
type SkipListener interface {
	OnSkip(ctx context.Context, execution *StepExecution, err error)
}

// invokeListener runs fn and converts both an error and a panic into a
// *ListenerError.
func invokeListener(listener interface{}, phase string, fn func() error) (lerr error) {
	defer func() {
		if r := recover(); r != nil {
			lerr = &ListenerError{Listener: listenerName(listener), Phase: phase, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := fn(); err != nil {
		return &ListenerError{Listener: listenerName(listener), Phase: phase, Err: err}
	}
	return nil
}

func listenerName(listener interface{}) string {
	if named, ok := listener.(interface{ Name() string }); ok {
		return named.Name()
	}
	return fmt.Sprintf("%T", listener)
}
