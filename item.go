package minibatch

import (
	"context"
	"errors"
)

// SkipItem is returned by a Processor to drop an item from the current chunk
// without failing the step. Skipped items are counted as filtered.
var SkipItem = errors.New("skip this item")

// Task is the work of a simple step
type Task func(ctx context.Context, execution *StepExecution) error

// Handler is the work of a simple step
type Handler interface {
	Handle(ctx context.Context, execution *StepExecution) error
}

// Reader produces the items of a chunk step one at a time, in a stable order.
// It returns io.EOF when there are no more items. A line or row that can not
// be mapped is reported as a *ParseError.
type Reader[T any] interface {
	Read(ctx context.Context, chunkCtx *ChunkContext) (T, error)
}

// Processor maps one item to another. It must not perform I/O and must not
// keep state between calls.
type Processor[T any] interface {
	Process(item T) (T, error)
}

// Writer persists all items of one chunk. It runs inside the chunk
// transaction available as chunkCtx.Tx.
type Writer[T any] interface {
	Write(ctx context.Context, items []T, chunkCtx *ChunkContext) error
}

// OpenCloser is implemented by readers and writers holding a resource for
// the lifetime of a step.
type OpenCloser interface {
	Open(ctx context.Context, execution *StepExecution) error
	Close(ctx context.Context, execution *StepExecution) error
}

// Checkpointer is implemented by readers that can resume from the position of
// the last committed chunk. Checkpoint is called after each commit.
type Checkpointer interface {
	Checkpoint(execution *StepExecution)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc[T any] func(item T) (T, error)

func (f ProcessorFunc[T]) Process(item T) (T, error) {
	return f(item)
}

// WriterFunc adapts a function to Writer.
type WriterFunc[T any] func(ctx context.Context, items []T, chunkCtx *ChunkContext) error

func (f WriterFunc[T]) Write(ctx context.Context, items []T, chunkCtx *ChunkContext) error {
	return f(ctx, items, chunkCtx)
}

type nilProcessor[T any] struct{}

func (p nilProcessor[T]) Process(item T) (T, error) {
	return item, nil
}

type nilWriter[T any] struct{}

func (w nilWriter[T]) Write(ctx context.Context, items []T, chunkCtx *ChunkContext) error {
	return nil
}
