package minibatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Engine runs registered jobs
type Engine interface {
	Register(job Job) error
	Unregister(job Job)
	// Start runs a new execution of jobName and waits for it. The returned
	// error is the failure of the execution, if any.
	Start(ctx context.Context, jobName string, params string) (*JobExecution, error)
	// StartAsync starts a new execution and returns its id without waiting.
	StartAsync(ctx context.Context, jobName string, params string) (int64, error)
	// Restart runs a new execution of jobName resuming the last execution,
	// which must have FAILED.
	Restart(ctx context.Context, jobName string) (*JobExecution, error)
	RestartAsync(ctx context.Context, jobName string) (int64, error)
	// Stop cancels a running execution. The execution finishes the chunk in
	// flight and then fails with ErrCodeStopped.
	Stop(ctx context.Context, jobExecutionId int64) error
	// Abandon marks an execution left STARTED by a process that died as
	// FAILED, so that it can be restarted. Executions running in this engine
	// are refused with ErrCodeRunning.
	Abandon(ctx context.Context, jobExecutionId int64) (*JobExecution, error)
	// Wait blocks until the execution has finished and returns it.
	Wait(ctx context.Context, jobExecutionId int64) (*JobExecution, error)
	Repository() Repository
}

func NewEngine(repository Repository) Engine {
	return &engine{
		jobRegistry: map[string]Job{},
		running:     map[int64]*runningJob{},
		activeJobs:  map[string]bool{},
		repository:  repository,
	}
}

type engine struct {
	repository  Repository
	mu          sync.RWMutex
	jobRegistry map[string]Job
	running     map[int64]*runningJob
	// a job's reader, writer and step are shared by its executions, so only
	// one execution per job name runs at a time
	activeJobs map[string]bool
}

type runningJob struct {
	execution *JobExecution
	cancel    context.CancelFunc
	future    Future
}

// Register register job to the engine
func (e *engine) Register(job Job) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.jobRegistry[job.Name()]; ok {
		return errors.Errorf("job with name:%v has already been registered", job.Name())
	}
	e.jobRegistry[job.Name()] = job
	return nil
}

// Unregister unregister job from the engine
func (e *engine) Unregister(job Job) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.jobRegistry, job.Name())
}

func (e *engine) Repository() Repository {
	return e.repository
}

func (e *engine) Start(ctx context.Context, jobName string, params string) (*JobExecution, error) {
	jobParams, err := ParseJobParams(params)
	if err != nil {
		DefaultLogger.Error(ctx, "parse job params error, jobName:%v, params:%v, err:%v", jobName, params, err)
		return nil, err
	}
	run, err := e.doStart(ctx, jobName, jobParams, nil)
	if err != nil {
		return nil, err
	}
	return e.await(run)
}

func (e *engine) StartAsync(ctx context.Context, jobName string, params string) (int64, error) {
	jobParams, err := ParseJobParams(params)
	if err != nil {
		DefaultLogger.Error(ctx, "parse job params error, jobName:%v, params:%v, err:%v", jobName, params, err)
		return -1, err
	}
	run, err := e.doStart(ctx, jobName, jobParams, nil)
	if err != nil {
		return -1, err
	}
	return run.execution.JobExecutionId, nil
}

func (e *engine) Restart(ctx context.Context, jobName string) (*JobExecution, error) {
	run, err := e.doRestart(ctx, jobName)
	if err != nil {
		return nil, err
	}
	return e.await(run)
}

func (e *engine) RestartAsync(ctx context.Context, jobName string) (int64, error) {
	run, err := e.doRestart(ctx, jobName)
	if err != nil {
		return -1, err
	}
	return run.execution.JobExecutionId, nil
}

func (e *engine) await(run *runningJob) (*JobExecution, error) {
	_, err := run.future.Get()
	return run.execution, err
}

func (e *engine) doRestart(ctx context.Context, jobName string) (*runningJob, error) {
	last, err := e.repository.FindLastJobExecution(ctx, jobName)
	if err != nil {
		DefaultLogger.Error(ctx, "find last JobExecution error, jobName:%v, err:%v", jobName, err)
		return nil, err
	}
	if last == nil {
		return nil, errors.Errorf("there is no execution of job:%v to restart", jobName)
	}
	if last.JobStatus != FAILED {
		return nil, errors.Errorf("can only restart a failed execution, jobName:%v, jobExecutionId:%v, status:%v", jobName, last.JobExecutionId, last.JobStatus)
	}
	stepExecutions, err := e.repository.FindStepExecutions(ctx, last.JobExecutionId)
	if err != nil {
		DefaultLogger.Error(ctx, "find StepExecutions error, jobName:%v, jobExecutionId:%v, err:%v", jobName, last.JobExecutionId, err)
		return nil, err
	}
	resume := &JobExecution{
		JobExecutionId: last.JobExecutionId,
		JobName:        last.JobName,
		RunId:          last.RunId,
		JobParams:      last.JobParams,
		JobStatus:      last.JobStatus,
		StepExecutions: stepExecutions,
	}
	params := NewParameters()
	for k, v := range last.JobParams.Typed {
		if k != ParamRunId {
			params.Set(k, v)
		}
	}
	DefaultLogger.Info(ctx, "restart job:%v from execution:%v, run:%v", jobName, last.JobExecutionId, last.RunId)
	return e.doStart(ctx, jobName, params, resume)
}

func (e *engine) doStart(ctx context.Context, jobName string, params Parameters, resume *JobExecution) (*runningJob, error) {
	e.mu.Lock()
	job, ok := e.jobRegistry[jobName]
	if !ok {
		e.mu.Unlock()
		DefaultLogger.Error(ctx, "can not find job with name:%v", jobName)
		return nil, errors.Errorf("can not find job with name:%v", jobName)
	}
	if e.activeJobs[jobName] {
		e.mu.Unlock()
		DefaultLogger.Error(ctx, "job:%v already has a running execution", jobName)
		return nil, NewBatchError(ErrCodeRunning, "job:%v already has a running execution", jobName)
	}
	e.activeJobs[jobName] = true
	e.mu.Unlock()

	execution := &JobExecution{
		JobName:        jobName,
		TraceId:        uuid.NewString(),
		JobParams:      params,
		JobStatus:      STARTED,
		StepExecutions: make([]*StepExecution, 0),
		JobContext:     NewBatchContext(),
		CreateTime:     time.Now(),
	}
	if err := e.repository.CreateJobExecution(ctx, execution); err != nil {
		DefaultLogger.Error(ctx, "create job execution failed, jobName:%v, err:%v", jobName, err)
		e.mu.Lock()
		delete(e.activeJobs, jobName)
		e.mu.Unlock()
		return nil, err
	}
	// same semantics as a run id incrementer: the parameters of every run differ
	execution.JobParams.Set(ParamRunId, execution.RunId)

	runCtx, cancel := context.WithCancel(ctx)
	run := &runningJob{execution: execution, cancel: cancel}
	e.mu.Lock()
	e.running[execution.JobExecutionId] = run
	e.mu.Unlock()

	run.future = jobPool.Submit(runCtx, func() (interface{}, error) {
		defer func() {
			cancel()
			e.mu.Lock()
			delete(e.running, execution.JobExecutionId)
			delete(e.activeJobs, jobName)
			e.mu.Unlock()
		}()
		return execution, job.Start(runCtx, execution, resume)
	})
	DefaultLogger.Info(ctx, "job submitted, jobName:%v, jobExecutionId:%v, runId:%v", jobName, execution.JobExecutionId, execution.RunId)
	return run, nil
}

func (e *engine) Stop(ctx context.Context, jobExecutionId int64) error {
	e.mu.RLock()
	run, ok := e.running[jobExecutionId]
	e.mu.RUnlock()
	if !ok {
		DefaultLogger.Error(ctx, "there is no running job execution with id:%v to stop", jobExecutionId)
		return errors.Errorf("there is no running job execution with id:%v to stop", jobExecutionId)
	}
	DefaultLogger.Info(ctx, "job execution will be stopped, jobName:%v, jobExecutionId:%v", run.execution.JobName, jobExecutionId)
	run.cancel()
	return nil
}

func (e *engine) Wait(ctx context.Context, jobExecutionId int64) (*JobExecution, error) {
	e.mu.RLock()
	run, ok := e.running[jobExecutionId]
	e.mu.RUnlock()
	if ok {
		select {
		case <-run.future.Done():
			return run.execution, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	execution, err := e.repository.FindJobExecution(ctx, jobExecutionId)
	if err != nil {
		return nil, err
	}
	if execution == nil {
		return nil, errors.Errorf("can not find job execution with id:%v", jobExecutionId)
	}
	return execution, nil
}

func (e *engine) Abandon(ctx context.Context, jobExecutionId int64) (*JobExecution, error) {
	e.mu.RLock()
	_, running := e.running[jobExecutionId]
	e.mu.RUnlock()
	if running {
		return nil, NewBatchError(ErrCodeRunning, "job execution:%v is running, stop it instead", jobExecutionId)
	}
	execution, err := e.repository.FindJobExecution(ctx, jobExecutionId)
	if err != nil {
		DefaultLogger.Error(ctx, "find JobExecution error, jobExecutionId:%v, err:%v", jobExecutionId, err)
		return nil, err
	}
	if execution == nil {
		return nil, errors.Errorf("can not find job execution with id:%v", jobExecutionId)
	}
	if execution.JobStatus != STARTED {
		return nil, NewBatchError(ErrCodeConfig, "can only abandon a STARTED execution, jobExecutionId:%v, status:%v", jobExecutionId, execution.JobStatus)
	}
	stepExecutions, err := e.repository.FindStepExecutions(ctx, jobExecutionId)
	if err != nil {
		DefaultLogger.Error(ctx, "find StepExecutions error, jobExecutionId:%v, err:%v", jobExecutionId, err)
		return nil, err
	}
	cause := NewBatchError(ErrCodeStopped, "job execution:%v abandoned", jobExecutionId)
	now := time.Now()
	for _, stepExecution := range stepExecutions {
		if stepExecution.StepStatus != STARTED {
			continue
		}
		stepExecution.StepStatus = FAILED
		stepExecution.FailError = cause
		stepExecution.EndTime = now
		if err = e.repository.SaveStepExecution(ctx, stepExecution); err != nil {
			DefaultLogger.Error(ctx, "save StepExecution error, stepName:%v, err:%v", stepExecution.StepName, err)
			return nil, err
		}
	}
	if !execution.finish(FAILED, cause) {
		return nil, errors.Errorf("job execution:%v has already finished", jobExecutionId)
	}
	if err = e.repository.UpdateJobExecution(ctx, execution); err != nil {
		DefaultLogger.Error(ctx, "update JobExecution error, jobExecutionId:%v, err:%v", jobExecutionId, err)
		return nil, err
	}
	DefaultLogger.Info(ctx, "job execution abandoned, jobName:%v, jobExecutionId:%v", execution.JobName, jobExecutionId)
	return execution, nil
}
