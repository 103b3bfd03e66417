package minibatch

import (
	"context"

	"github.com/panjf2000/ants/v2"
)

type taskPool struct {
	pool *ants.Pool
}

func newTaskPool(size int) *taskPool {
	pool, err := ants.NewPool(size)
	if err != nil {
		panic(err)
	}
	return &taskPool{pool: pool}
}

// SetMaxSize change the capacity of the pool
func (p *taskPool) SetMaxSize(size int) {
	p.pool.Tune(size)
}

// Future is the pending result of a task submitted to a taskPool
type Future interface {
	Get() (interface{}, error)
	Done() <-chan struct{}
}

type future struct {
	done   chan struct{}
	result interface{}
	err    error
}

func (f *future) Get() (interface{}, error) {
	<-f.done
	return f.result, f.err
}

func (f *future) Done() <-chan struct{} {
	return f.done
}

// Submit runs task on the pool. A panic in task is converted into the
// future's error.
func (p *taskPool) Submit(ctx context.Context, task func() (interface{}, error)) Future {
	f := &future{done: make(chan struct{})}
	err := p.pool.Submit(func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				DefaultLogger.Error(ctx, "task panic: %v", r)
				f.err = NewBatchError(ErrCodeGeneral, "task panic: %v", r)
			}
		}()
		f.result, f.err = task()
	})
	if err != nil {
		f.err = NewBatchError(ErrCodeGeneral, "submit task to pool failed", err)
		close(f.done)
	}
	return f
}
