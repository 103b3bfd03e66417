package minibatch

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Job is a linear sequence of steps
type Job interface {
	Name() string
	Steps() []Step
	// Start runs the steps of execution. resume, when not nil, is a failed
	// earlier execution of the same job: steps it completed are not run
	// again and the context of its failed step seeds the new one.
	Start(ctx context.Context, execution *JobExecution, resume *JobExecution) error
}

type simpleJob struct {
	name       string
	steps      []Step
	listeners  []JobListener
	repository Repository
}

func newSimpleJob(name string, steps []Step, listeners []JobListener, repository Repository) *simpleJob {
	return &simpleJob{
		name:       name,
		steps:      steps,
		listeners:  listeners,
		repository: repository,
	}
}

func (job *simpleJob) Name() string {
	return job.name
}

func (job *simpleJob) Steps() []Step {
	return job.steps
}

func (job *simpleJob) Start(ctx context.Context, execution *JobExecution, resume *JobExecution) error {
	ctx = withJobExecution(ctx, execution)
	execution.JobStatus = STARTED
	execution.StartTime = time.Now()
	execution.LastUpdated = execution.StartTime
	if err := job.repository.UpdateJobExecution(ctx, execution); err != nil {
		DefaultLogger.Error(ctx, "update job execution failed, err:%v", err)
		be := NewBatchError(ErrCodeDbFail, "update job execution:%v failed", execution.JobExecutionId, err)
		job.finish(ctx, execution, FAILED, be)
		return be
	}
	for _, l := range job.listeners {
		l := l
		if e := invokeListener(l, "BeforeJob", func() error { return l.BeforeJob(ctx, execution) }); e != nil {
			DefaultLogger.Warn(ctx, "job listener error: %v", e)
			execution.ListenerErrors = multierror.Append(execution.ListenerErrors, e)
		}
	}
	DefaultLogger.Info(ctx, "job started, params:%v", execution.JobParams.ToString())

	var failure error
	for _, step := range job.steps {
		stepExecution := NewStepExecution(step.Name(), execution)
		if resume != nil {
			if previous := findStepExecution(resume, step.Name()); previous != nil {
				if previous.StepStatus == COMPLETED {
					DefaultLogger.Info(ctx, "step:%v completed in execution:%v, not run again", step.Name(), resume.JobExecutionId)
					continue
				}
				stepExecution.StepExecutionContext.Merge(previous.StepExecutionContext)
			}
		}
		execution.AddStepExecution(stepExecution)
		if err := step.Exec(ctx, stepExecution); err != nil {
			failure = err
			break
		}
	}

	status := COMPLETED
	if failure != nil {
		status = FAILED
	}
	job.finish(ctx, execution, status, failure)
	return failure
}

// finish finalizes the execution, persists it and notifies the listeners.
func (job *simpleJob) finish(ctx context.Context, execution *JobExecution, status BatchStatus, failure error) {
	if !execution.finish(status, failure) {
		return
	}
	if err := job.repository.UpdateJobExecution(context.WithoutCancel(ctx), execution); err != nil {
		DefaultLogger.Error(ctx, "update job execution failed, err:%v", err)
	}
	if failure != nil {
		DefaultLogger.Error(ctx, "job failed, read:%d, written:%d, skipped:%d, err:%v",
			execution.ReadCount(), execution.WriteCount(), execution.SkipCount(), failure)
	} else {
		DefaultLogger.Info(ctx, "job completed, read:%d, written:%d, skipped:%d, elapsed:%v",
			execution.ReadCount(), execution.WriteCount(), execution.SkipCount(), execution.EndTime.Sub(execution.StartTime))
	}
	for _, l := range job.listeners {
		l := l
		if e := invokeListener(l, "AfterJob", func() error { return l.AfterJob(ctx, execution) }); e != nil {
			DefaultLogger.Warn(ctx, "job listener error: %v", e)
			execution.ListenerErrors = multierror.Append(execution.ListenerErrors, e)
		}
	}
}

func findStepExecution(execution *JobExecution, stepName string) *StepExecution {
	var found *StepExecution
	for _, se := range execution.StepExecutions {
		if se.StepName == stepName {
			found = se
		}
	}
	return found
}
