package minibatch

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
)

// DefaultChunkSize default number of items per chunk
const DefaultChunkSize = 10

// chunkStep reads items one by one, transforms them and writes them in
// chunks of chunkSize, one transaction per chunk. Chunk boundaries depend on
// the input order and chunkSize only: filtered and skipped items do not count
// towards a chunk.
type chunkStep[T any] struct {
	baseStep
	reader         Reader[T]
	processor      Processor[T]
	writer         Writer[T]
	chunkSize      int
	txMgr          TransactionManager
	skipPolicy     SkipPolicy
	chunkListeners []ChunkListener
	skipListeners  []SkipListener
}

func (s *chunkStep[T]) Exec(ctx context.Context, execution *StepExecution) error {
	return s.execute(ctx, execution, func(ctx context.Context) (err error) {
		if err = s.open(ctx, execution); err != nil {
			return err
		}
		defer func() {
			if e := s.close(context.WithoutCancel(ctx), execution); e != nil && err == nil {
				err = e
			}
		}()
		return s.process(ctx, execution)
	})
}

func (s *chunkStep[T]) open(ctx context.Context, execution *StepExecution) error {
	if oc, ok := s.reader.(OpenCloser); ok {
		if err := oc.Open(ctx, execution); err != nil {
			return NewBatchError(ErrCodeGeneral, "open reader of step:%v failed", s.name, err)
		}
	}
	if oc, ok := s.writer.(OpenCloser); ok {
		if err := oc.Open(ctx, execution); err != nil {
			if rc, ok := s.reader.(OpenCloser); ok {
				if e := rc.Close(ctx, execution); e != nil {
					DefaultLogger.Error(ctx, "close reader failed, err:%v", e)
				}
			}
			return NewBatchError(ErrCodeGeneral, "open writer of step:%v failed", s.name, err)
		}
	}
	return nil
}

// close releases reader and writer, both are attempted even if one fails.
func (s *chunkStep[T]) close(ctx context.Context, execution *StepExecution) error {
	var result error
	if oc, ok := s.reader.(OpenCloser); ok {
		if err := oc.Close(ctx, execution); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if oc, ok := s.writer.(OpenCloser); ok {
		if err := oc.Close(ctx, execution); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if result != nil {
		return NewBatchError(ErrCodeGeneral, "close resources of step:%v failed", s.name, result)
	}
	return nil
}

func (s *chunkStep[T]) process(ctx context.Context, execution *StepExecution) error {
	for chunkNo := int64(1); ; chunkNo++ {
		// cancellation is only honoured here, between two chunks
		if err := ctx.Err(); err != nil {
			return NewBatchError(ErrCodeStopped, "step:%v stopped before chunk %d", s.name, chunkNo, err)
		}
		chunkCtx := &ChunkContext{StepExecution: execution, ChunkNo: chunkNo}
		inFlight := context.WithoutCancel(ctx)
		items, eof, err := s.readChunk(inFlight, chunkCtx)
		if err != nil {
			return err
		}
		if len(items) > 0 {
			if err = s.writeChunk(inFlight, items, chunkCtx); err != nil {
				return err
			}
		}
		if eof {
			return nil
		}
	}
}

// readChunk fills a buffer of up to chunkSize transformed items. eof is true
// once the reader is exhausted.
func (s *chunkStep[T]) readChunk(ctx context.Context, chunkCtx *ChunkContext) (items []T, eof bool, err error) {
	execution := chunkCtx.StepExecution
	items = make([]T, 0, s.chunkSize)
	for len(items) < s.chunkSize {
		item, err := s.reader.Read(ctx, chunkCtx)
		if errors.Is(err, io.EOF) {
			return items, true, nil
		}
		if err != nil {
			var pe *ParseError
			if !errors.As(err, &pe) {
				return items, false, NewBatchError(ErrCodeGeneral, "read item of step:%v failed", s.name, err)
			}
			execution.ReadCount++
			if s.skip(ctx, execution, err) {
				execution.ReadSkipCount++
				continue
			}
			return items, false, err
		}
		execution.ReadCount++

		out, err := s.processor.Process(item)
		if errors.Is(err, SkipItem) {
			execution.FilterCount++
			continue
		}
		if err != nil {
			var te *TransformError
			if !errors.As(err, &te) {
				err = &TransformError{Item: item, Reason: err}
			}
			if s.skip(ctx, execution, err) {
				execution.ProcessSkipCount++
				continue
			}
			return items, false, err
		}
		execution.TransformCount++
		items = append(items, out)
	}
	return items, false, nil
}

func (s *chunkStep[T]) skip(ctx context.Context, execution *StepExecution, err error) bool {
	if !s.skipPolicy.ShouldSkip(err, execution.ReadSkipCount+execution.ProcessSkipCount) {
		return false
	}
	DefaultLogger.Warn(ctx, "skip item, err:%v", err)
	for _, l := range s.skipListeners {
		l := l
		if e := invokeListener(l, "OnSkip", func() error { l.OnSkip(ctx, execution, err); return nil }); e != nil {
			s.recordListenerError(ctx, execution, e)
		}
	}
	return true
}

// writeChunk writes items in one transaction. Either all items are committed
// or the transaction is rolled back and a *WriteError is returned.
func (s *chunkStep[T]) writeChunk(ctx context.Context, items []T, chunkCtx *ChunkContext) error {
	execution := chunkCtx.StepExecution
	for _, l := range s.chunkListeners {
		l := l
		if e := invokeListener(l, "BeforeChunk", func() error { return l.BeforeChunk(ctx, chunkCtx) }); e != nil {
			s.recordListenerError(ctx, execution, e)
		}
	}

	tx, err := s.txMgr.BeginTx(ctx)
	if err != nil {
		return s.chunkFailed(ctx, chunkCtx, len(items), err)
	}
	chunkCtx.Tx = tx
	defer func() { chunkCtx.Tx = nil }()

	if err = s.doWrite(ctx, items, chunkCtx); err != nil {
		if e := s.txMgr.Rollback(ctx, tx); e != nil {
			DefaultLogger.Error(ctx, "rollback chunk %d failed, err:%v", chunkCtx.ChunkNo, e)
			err = multierror.Append(err, e)
		}
		execution.RollbackCount++
		return s.chunkFailed(ctx, chunkCtx, len(items), err)
	}
	if err = s.txMgr.Commit(ctx, tx); err != nil {
		execution.RollbackCount++
		return s.chunkFailed(ctx, chunkCtx, len(items), err)
	}
	execution.WriteCount += int64(len(items))
	execution.CommitCount++
	if cp, ok := s.reader.(Checkpointer); ok {
		cp.Checkpoint(execution)
	}
	DefaultLogger.Debug(ctx, "chunk %d committed, items:%d, written:%d", chunkCtx.ChunkNo, len(items), execution.WriteCount)

	if err = s.repository.SaveStepExecution(ctx, execution); err != nil {
		return NewBatchError(ErrCodeDbFail, "save progress of step:%v after chunk %d failed", s.name, chunkCtx.ChunkNo, err)
	}
	for _, l := range s.chunkListeners {
		l := l
		if e := invokeListener(l, "AfterChunk", func() error { return l.AfterChunk(ctx, chunkCtx) }); e != nil {
			s.recordListenerError(ctx, execution, e)
		}
	}
	return nil
}

// doWrite converts a writer panic into an error so the transaction is always
// rolled back.
func (s *chunkStep[T]) doWrite(ctx context.Context, items []T, chunkCtx *ChunkContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("writer panic: %v", r)
		}
	}()
	return s.writer.Write(ctx, items, chunkCtx)
}

func (s *chunkStep[T]) chunkFailed(ctx context.Context, chunkCtx *ChunkContext, size int, cause error) error {
	werr := &WriteError{Chunk: chunkCtx.ChunkNo, Items: size, Err: cause}
	for _, l := range s.chunkListeners {
		l := l
		if e := invokeListener(l, "OnError", func() error { l.OnError(ctx, chunkCtx, werr); return nil }); e != nil {
			s.recordListenerError(ctx, chunkCtx.StepExecution, e)
		}
	}
	return werr
}
