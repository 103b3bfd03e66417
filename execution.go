package minibatch

import (
	"sync"
	"time"

	"github.com/samber/lo"
)

// BatchStatus status of a job or step execution
type BatchStatus string

const (
	STARTED   BatchStatus = "STARTED"
	COMPLETED BatchStatus = "COMPLETED"
	FAILED    BatchStatus = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s BatchStatus) Terminal() bool {
	return s == COMPLETED || s == FAILED
}

// JobExecution is one run of a job.
type JobExecution struct {
	JobExecutionId int64
	JobName        string
	// RunId distinguishes this run from every earlier run of the same job.
	RunId          int64
	TraceId        string
	JobParams      Parameters
	JobStatus      BatchStatus
	StepExecutions []*StepExecution
	JobContext     *BatchContext
	CreateTime     time.Time
	StartTime      time.Time
	EndTime        time.Time
	FailError      error
	ListenerErrors error
	LastUpdated    time.Time
	Version        int64

	mu sync.Mutex
}

// ReadCount total items read by all steps
func (e *JobExecution) ReadCount() int64 {
	return lo.SumBy(e.StepExecutions, func(s *StepExecution) int64 { return s.ReadCount })
}

// WriteCount total items persisted by all steps
func (e *JobExecution) WriteCount() int64 {
	return lo.SumBy(e.StepExecutions, func(s *StepExecution) int64 { return s.WriteCount })
}

// FilterCount total items dropped by processors with SkipItem
func (e *JobExecution) FilterCount() int64 {
	return lo.SumBy(e.StepExecutions, func(s *StepExecution) int64 { return s.FilterCount })
}

// SkipCount total items not written without failing the job: filtered items
// plus items skipped by the skip policy.
func (e *JobExecution) SkipCount() int64 {
	return lo.SumBy(e.StepExecutions, func(s *StepExecution) int64 { return s.SkipCount() })
}

// AddStepExecution appends a step execution unless the job is finished.
func (e *JobExecution) AddStepExecution(execution *StepExecution) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.JobStatus.Terminal() {
		panic("can not add a step execution to a finished job execution")
	}
	e.StepExecutions = append(e.StepExecutions, execution)
}

// finish moves the execution into a terminal status. It returns false if the
// execution was already finalized.
func (e *JobExecution) finish(status BatchStatus, err error) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.JobStatus.Terminal() {
		return false
	}
	e.JobStatus = status
	e.FailError = err
	e.EndTime = time.Now()
	e.LastUpdated = e.EndTime
	return true
}

// StepExecution is the execution of one step within a JobExecution.
type StepExecution struct {
	StepExecutionId      int64
	StepName             string
	StepStatus           BatchStatus
	JobExecution         *JobExecution
	StepExecutionContext *BatchContext
	CreateTime           time.Time
	StartTime            time.Time
	EndTime              time.Time
	// ReadCount counts every item or line taken from the reader, including
	// malformed ones.
	ReadCount int64
	// TransformCount counts items the processor accepted into a chunk.
	TransformCount   int64
	WriteCount       int64
	CommitCount      int64
	FilterCount      int64
	ReadSkipCount    int64
	ProcessSkipCount int64
	RollbackCount    int64
	FailError        error
	LastUpdated      time.Time
	Version          int64
}

// NewStepExecution create a StepExecution of stepName owned by job
func NewStepExecution(stepName string, job *JobExecution) *StepExecution {
	return &StepExecution{
		StepName:             stepName,
		StepStatus:           STARTED,
		JobExecution:         job,
		StepExecutionContext: NewBatchContext(),
		CreateTime:           time.Now(),
	}
}

// SkipCount items read but deliberately not written
func (e *StepExecution) SkipCount() int64 {
	return e.FilterCount + e.ReadSkipCount + e.ProcessSkipCount
}

// AbortedCount items read that were neither written nor skipped. It is zero
// for a completed step.
func (e *StepExecution) AbortedCount() int64 {
	return e.ReadCount - e.WriteCount - e.SkipCount()
}

// ChunkContext is handed to readers and writers while a chunk is processed.
type ChunkContext struct {
	StepExecution *StepExecution
	// ChunkNo starts at 1
	ChunkNo int64
	// Tx is the transaction opened by the TransactionManager for the write
	// of this chunk, nil while reading.
	Tx interface{}
}
