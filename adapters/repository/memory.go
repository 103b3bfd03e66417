package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chararch/minibatch"
)

// MemoryRepository keeps execution state in process memory. Run ids are
// unique per process only. Lookups return the stored executions themselves.
type MemoryRepository struct {
	mu              sync.Mutex
	lastExecutionId int64
	lastStepId      int64
	lastRunIds      map[string]int64
	executions      map[int64]*minibatch.JobExecution
	steps           map[int64][]*minibatch.StepExecution
}

// NewMemory create an empty MemoryRepository
func NewMemory() *MemoryRepository {
	return &MemoryRepository{
		lastRunIds: map[string]int64{},
		executions: map[int64]*minibatch.JobExecution{},
		steps:      map[int64][]*minibatch.StepExecution{},
	}
}

func (r *MemoryRepository) CreateJobExecution(ctx context.Context, execution *minibatch.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastExecutionId++
	r.lastRunIds[execution.JobName]++
	execution.JobExecutionId = r.lastExecutionId
	execution.RunId = r.lastRunIds[execution.JobName]
	execution.LastUpdated = time.Now()
	execution.Version = 1
	r.executions[execution.JobExecutionId] = execution
	return nil
}

func (r *MemoryRepository) UpdateJobExecution(ctx context.Context, execution *minibatch.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.executions[execution.JobExecutionId]; !ok {
		return minibatch.NewBatchError(minibatch.ErrCodeDbFail, "job execution:%v not found", execution.JobExecutionId)
	}
	execution.Version++
	execution.LastUpdated = time.Now()
	r.executions[execution.JobExecutionId] = execution
	return nil
}

func (r *MemoryRepository) SaveStepExecution(ctx context.Context, execution *minibatch.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	execution.LastUpdated = time.Now()
	if execution.StepExecutionId != 0 {
		execution.Version++
		return nil
	}
	if execution.JobExecution == nil {
		return minibatch.NewBatchError(minibatch.ErrCodeDbFail, "step execution:%v has no job execution", execution.StepName)
	}
	r.lastStepId++
	execution.StepExecutionId = r.lastStepId
	execution.Version = 1
	jobExecutionId := execution.JobExecution.JobExecutionId
	r.steps[jobExecutionId] = append(r.steps[jobExecutionId], execution)
	return nil
}

func (r *MemoryRepository) FindJobExecution(ctx context.Context, jobExecutionId int64) (*minibatch.JobExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.executions[jobExecutionId], nil
}

func (r *MemoryRepository) FindLastJobExecution(ctx context.Context, jobName string) (*minibatch.JobExecution, error) {
	executions, err := r.FindJobExecutions(ctx, jobName, 1)
	if err != nil || len(executions) == 0 {
		return nil, err
	}
	return executions[0], nil
}

func (r *MemoryRepository) FindJobExecutions(ctx context.Context, jobName string, limit int) ([]*minibatch.JobExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*minibatch.JobExecution, 0)
	for _, e := range r.executions {
		if e.JobName == jobName {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].JobExecutionId > result[j].JobExecutionId
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *MemoryRepository) FindStepExecutions(ctx context.Context, jobExecutionId int64) ([]*minibatch.StepExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	steps := r.steps[jobExecutionId]
	result := make([]*minibatch.StepExecution, len(steps))
	copy(result, steps)
	return result, nil
}
