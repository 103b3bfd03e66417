package minibatch

import (
	"context"
)

// Repository stores the state of job and step executions.
type Repository interface {
	// CreateJobExecution stores a new execution and assigns its
	// JobExecutionId and a RunId greater than the RunId of every execution
	// previously created for the same job name.
	CreateJobExecution(ctx context.Context, execution *JobExecution) error
	// UpdateJobExecution records status, times and failure of an execution.
	UpdateJobExecution(ctx context.Context, execution *JobExecution) error
	// SaveStepExecution inserts the step execution on first call and
	// updates counters, status and context afterwards.
	SaveStepExecution(ctx context.Context, execution *StepExecution) error

	FindJobExecution(ctx context.Context, jobExecutionId int64) (*JobExecution, error)
	FindLastJobExecution(ctx context.Context, jobName string) (*JobExecution, error)
	// FindJobExecutions lists the executions of a job, newest first.
	FindJobExecutions(ctx context.Context, jobName string, limit int) ([]*JobExecution, error)
	FindStepExecutions(ctx context.Context, jobExecutionId int64) ([]*StepExecution, error)
}
