package minibatch

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Step is one unit of work of a job
type Step interface {
	Name() string
	// Exec runs the step and fills in the counters and status of execution.
	Exec(ctx context.Context, execution *StepExecution) error
	addListener(listener StepListener)
}

type baseStep struct {
	name       string
	repository Repository
	listeners  []StepListener
}

func (s *baseStep) Name() string {
	return s.name
}

func (s *baseStep) addListener(listener StepListener) {
	s.listeners = append(s.listeners, listener)
}

// execute wraps body with status bookkeeping, persistence and step listeners.
func (s *baseStep) execute(ctx context.Context, execution *StepExecution, body func(ctx context.Context) error) (err error) {
	ctx = withStepExecution(ctx, execution)
	execution.StepStatus = STARTED
	execution.StartTime = time.Now()
	if e := s.repository.SaveStepExecution(ctx, execution); e != nil {
		DefaultLogger.Error(ctx, "save step execution failed, err:%v", e)
		return NewBatchError(ErrCodeDbFail, "save step execution:%v failed", execution.StepName, e)
	}
	for _, l := range s.listeners {
		l := l
		if e := invokeListener(l, "BeforeStep", func() error { return l.BeforeStep(ctx, execution) }); e != nil {
			s.recordListenerError(ctx, execution, e)
		}
	}
	DefaultLogger.Info(ctx, "step started")

	defer func() {
		if r := recover(); r != nil {
			DefaultLogger.Error(ctx, "step panic: %v", r)
			err = NewBatchError(ErrCodeGeneral, "panic on step:%v, err:%v", execution.StepName, fmt.Sprint(r))
		}
		execution.EndTime = time.Now()
		execution.LastUpdated = execution.EndTime
		if err != nil {
			execution.StepStatus = FAILED
			execution.FailError = err
			DefaultLogger.Error(ctx, "step failed, read:%d, written:%d, skipped:%d, err:%v",
				execution.ReadCount, execution.WriteCount, execution.SkipCount(), err)
		} else {
			execution.StepStatus = COMPLETED
			DefaultLogger.Info(ctx, "step completed, read:%d, written:%d, skipped:%d, commits:%d",
				execution.ReadCount, execution.WriteCount, execution.SkipCount(), execution.CommitCount)
		}
		if e := s.repository.SaveStepExecution(context.WithoutCancel(ctx), execution); e != nil {
			DefaultLogger.Error(ctx, "save step execution failed, err:%v", e)
			if err == nil {
				err = NewBatchError(ErrCodeDbFail, "save step execution:%v failed", execution.StepName, e)
				execution.StepStatus = FAILED
				execution.FailError = err
			}
		}
		for _, l := range s.listeners {
			l := l
			if e := invokeListener(l, "AfterStep", func() error { return l.AfterStep(ctx, execution) }); e != nil {
				s.recordListenerError(ctx, execution, e)
			}
		}
	}()
	return body(ctx)
}

func (s *baseStep) recordListenerError(ctx context.Context, execution *StepExecution, err error) {
	DefaultLogger.Warn(ctx, "step listener error: %v", err)
	if job := execution.JobExecution; job != nil {
		job.ListenerErrors = multierror.Append(job.ListenerErrors, err)
	}
}

// simpleStep runs a Task or a Handler once
type simpleStep struct {
	baseStep
	handler Handler
}

func newSimpleStep(base baseStep, handler Handler) *simpleStep {
	return &simpleStep{baseStep: base, handler: handler}
}

func (s *simpleStep) Exec(ctx context.Context, execution *StepExecution) error {
	return s.execute(ctx, execution, func(ctx context.Context) error {
		if err := s.handler.Handle(ctx, execution); err != nil {
			if _, ok := err.(BatchError); ok {
				return err
			}
			return NewBatchError(ErrCodeGeneral, "execute step:%v error", execution.StepName, err)
		}
		return nil
	})
}

type taskHandler Task

func (t taskHandler) Handle(ctx context.Context, execution *StepExecution) error {
	return t(ctx, execution)
}
