package minibatch_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/bmizerany/assert"
	"golang.org/x/sync/errgroup"

	"github.com/chararch/minibatch"
)

func TestEngine_RunIdsIncrease(t *testing.T) {
	f := newFixture()
	var calls int32
	step := f.steps.Get("count").Handler(func() { atomic.AddInt32(&calls, 1) }).Build()
	assert.Equal(t, nil, f.engine.Register(f.jobs.Get("importUserJob").Start(step).Build()))

	var runIds []int64
	for i := 0; i < 3; i++ {
		execution, err := f.engine.Start(context.Background(), "importUserJob", `{"input.file":"people.csv"}`)
		assert.Equal(t, nil, err)
		assert.Equal(t, minibatch.COMPLETED, execution.JobStatus)
		assert.Equal(t, execution.RunId, execution.JobParams.RunId())
		assert.NotEqual(t, "", execution.TraceId)
		runIds = append(runIds, execution.RunId)
	}
	assert.Equal(t, []int64{1, 2, 3}, runIds)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	executions, err := f.repository.FindJobExecutions(context.Background(), "importUserJob", 2)
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, len(executions))
	assert.Equal(t, int64(3), executions[0].RunId)
}

func TestEngine_ConcurrentLaunches(t *testing.T) {
	f := newFixture()
	const launches = 4
	for i := 0; i < launches; i++ {
		lines := make([]string, 12)
		for j := range lines {
			lines[j] = fmt.Sprintf("job%d-%02d,Doe", i, j+1)
		}
		step := f.chunkStep(newLineReader(lines...), 5, minibatch.FailFast())
		assert.Equal(t, nil, f.engine.Register(f.jobs.Get(fmt.Sprintf("importUserJob%d", i)).Start(step).Build()))
	}

	executions := make([]*minibatch.JobExecution, launches)
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < launches; i++ {
		i := i
		g.Go(func() error {
			id, err := f.engine.StartAsync(ctx, fmt.Sprintf("importUserJob%d", i), "")
			if err != nil {
				return err
			}
			execution, err := f.engine.Wait(ctx, id)
			if err != nil {
				return err
			}
			if execution.JobStatus != minibatch.COMPLETED {
				return errors.New("run not completed")
			}
			executions[i] = execution
			return nil
		})
	}
	assert.Equal(t, nil, g.Wait())

	rows := f.table.Rows()
	assert.Equal(t, launches*12, len(rows))
	for i, execution := range executions {
		assert.Equal(t, int64(12), execution.WriteCount())
		prefix := fmt.Sprintf("JOB%d-", i)
		var own []string
		for _, row := range rows {
			if strings.HasPrefix(row, prefix) {
				own = append(own, row)
			}
		}
		assert.Equal(t, 12, len(own))
		for j, row := range own {
			assert.Equal(t, fmt.Sprintf("JOB%d-%02d,DOE", i, j+1), row)
		}
	}
}

func TestEngine_RejectsOverlappingRunsOfOneJob(t *testing.T) {
	f := newFixture()
	writing := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.table.onWrite = func(ctx context.Context, chunkCtx *minibatch.ChunkContext) {
		once.Do(func() {
			close(writing)
			<-release
		})
	}
	step := f.chunkStep(newLineReader(people(25)...), 10, minibatch.FailFast())
	assert.Equal(t, nil, f.engine.Register(f.jobs.Get("importUserJob").Start(step).Build()))
	ctx := context.Background()

	id, err := f.engine.StartAsync(ctx, "importUserJob", "")
	assert.Equal(t, nil, err)
	<-writing

	_, err = f.engine.Start(ctx, "importUserJob", "")
	assert.Equal(t, minibatch.ErrCodeRunning, minibatch.ErrorCode(err))
	_, err = f.engine.StartAsync(ctx, "importUserJob", "")
	assert.Equal(t, minibatch.ErrCodeRunning, minibatch.ErrorCode(err))
	_, err = f.engine.Abandon(ctx, id)
	assert.Equal(t, minibatch.ErrCodeRunning, minibatch.ErrorCode(err))

	close(release)
	first, err := f.engine.Wait(ctx, id)
	assert.Equal(t, nil, err)
	assert.Equal(t, minibatch.COMPLETED, first.JobStatus)
	rows := f.table.Rows()
	assert.Equal(t, 25, len(rows))
	for i, row := range rows {
		assert.Equal(t, fmt.Sprintf("FIRST%02d,DOE", i+1), row)
	}

	second, err := f.engine.Start(ctx, "importUserJob", "")
	assert.Equal(t, nil, err)
	assert.Equal(t, minibatch.COMPLETED, second.JobStatus)
	assert.Equal(t, int64(2), second.RunId)
	assert.Equal(t, 50, len(f.table.Rows()))
}

func TestEngine_UnknownAndDuplicateJobs(t *testing.T) {
	f := newFixture()
	_, err := f.engine.Start(context.Background(), "missing", "")
	assert.NotEqual(t, nil, err)

	step := f.steps.Get("noop").Handler(func() {}).Build()
	job := f.jobs.Get("importUserJob").Start(step).Build()
	assert.Equal(t, nil, f.engine.Register(job))
	assert.NotEqual(t, nil, f.engine.Register(job))

	_, err = f.engine.Start(context.Background(), "importUserJob", "{bad")
	assert.Equal(t, minibatch.ErrCodeConfig, minibatch.ErrorCode(err))
	assert.NotEqual(t, nil, f.engine.Stop(context.Background(), 99))
}

func TestEngine_StopAtChunkBoundary(t *testing.T) {
	f := newFixture()
	f.table.onWrite = func(ctx context.Context, chunkCtx *minibatch.ChunkContext) {
		if chunkCtx.ChunkNo == 1 {
			jobExecutionId := chunkCtx.StepExecution.JobExecution.JobExecutionId
			if err := f.engine.Stop(ctx, jobExecutionId); err != nil {
				t.Errorf("stop: %v", err)
			}
		}
	}
	execution, err := f.run(t, f.chunkStep(newLineReader(people(25)...), 10, minibatch.FailFast()))

	assert.Equal(t, minibatch.ErrCodeStopped, minibatch.ErrorCode(err))
	assert.Equal(t, minibatch.FAILED, execution.JobStatus)
	assert.Equal(t, 10, len(f.table.Rows()))
	assert.Equal(t, 0, f.table.rollbacks)
	step := execution.StepExecutions[0]
	assert.Equal(t, int64(10), step.WriteCount)
	assert.Equal(t, int64(10), step.ReadCount)
}

func TestEngine_RestartResumesAfterLastCommit(t *testing.T) {
	f := newFixture()
	f.table.failChunk = 2
	var prepared int32
	prepare := f.steps.Get("prepare").Handler(func() { atomic.AddInt32(&prepared, 1) }).Build()
	load := f.chunkStep(newLineReader(people(25)...), 10, minibatch.FailFast())
	assert.Equal(t, nil, f.engine.Register(f.jobs.Get("importUserJob").Start(prepare).Next(load).Build()))
	ctx := context.Background()

	first, err := f.engine.Start(ctx, "importUserJob", `{"input.file":"people.csv"}`)
	assert.NotEqual(t, nil, err)
	assert.Equal(t, minibatch.FAILED, first.JobStatus)
	assert.Equal(t, 10, len(f.table.Rows()))
	before := first.StepExecutions

	f.table.failChunk = 0
	second, err := f.engine.Restart(ctx, "importUserJob")
	assert.Equal(t, nil, err)
	assert.Equal(t, minibatch.FAILED, first.JobStatus)
	assert.Equal(t, 2, len(first.StepExecutions))
	assert.T(t, &before[0] == &first.StepExecutions[0])
	assert.Equal(t, minibatch.COMPLETED, second.JobStatus)
	assert.Equal(t, int64(2), second.RunId)
	assert.Equal(t, "people.csv", second.JobParams.String(minibatch.ParamInputFile))
	assert.Equal(t, int32(1), atomic.LoadInt32(&prepared))
	assert.Equal(t, 1, len(second.StepExecutions))
	assert.Equal(t, int64(15), second.WriteCount())

	rows := f.table.Rows()
	assert.Equal(t, 25, len(rows))
	assert.Equal(t, "FIRST11,DOE", rows[10])

	_, err = f.engine.Restart(ctx, "importUserJob")
	assert.NotEqual(t, nil, err)
}

func TestEngine_AbandonStaleExecution(t *testing.T) {
	f := newFixture()
	load := f.chunkStep(newLineReader(people(25)...), 10, minibatch.FailFast())
	assert.Equal(t, nil, f.engine.Register(f.jobs.Get("importUserJob").Start(load).Build()))
	ctx := context.Background()

	// a run whose process died after committing the first chunk
	stale := &minibatch.JobExecution{
		JobName:    "importUserJob",
		JobParams:  minibatch.NewParameters(),
		JobStatus:  minibatch.STARTED,
		JobContext: minibatch.NewBatchContext(),
	}
	assert.Equal(t, nil, f.repository.CreateJobExecution(ctx, stale))
	stepExecution := minibatch.NewStepExecution("step1", stale)
	stepExecution.StepExecutionContext.Put(offsetKey, 10)
	stepExecution.ReadCount = 10
	stepExecution.WriteCount = 10
	assert.Equal(t, nil, f.repository.SaveStepExecution(ctx, stepExecution))

	_, err := f.engine.Restart(ctx, "importUserJob")
	assert.NotEqual(t, nil, err)

	abandoned, err := f.engine.Abandon(ctx, stale.JobExecutionId)
	assert.Equal(t, nil, err)
	assert.Equal(t, minibatch.FAILED, abandoned.JobStatus)
	assert.Equal(t, minibatch.ErrCodeStopped, minibatch.ErrorCode(abandoned.FailError))
	assert.Equal(t, minibatch.FAILED, stepExecution.StepStatus)

	_, err = f.engine.Abandon(ctx, stale.JobExecutionId)
	assert.Equal(t, minibatch.ErrCodeConfig, minibatch.ErrorCode(err))
	_, err = f.engine.Abandon(ctx, 99)
	assert.NotEqual(t, nil, err)

	restarted, err := f.engine.Restart(ctx, "importUserJob")
	assert.Equal(t, nil, err)
	assert.Equal(t, minibatch.COMPLETED, restarted.JobStatus)
	assert.Equal(t, int64(2), restarted.RunId)
	rows := f.table.Rows()
	assert.Equal(t, 15, len(rows))
	assert.Equal(t, "FIRST11,DOE", rows[0])
}

type statusListener struct {
	before, after minibatch.BatchStatus
	fail          bool
}

func (l *statusListener) Name() string { return "status" }

func (l *statusListener) BeforeJob(ctx context.Context, execution *minibatch.JobExecution) error {
	l.before = execution.JobStatus
	return nil
}

func (l *statusListener) AfterJob(ctx context.Context, execution *minibatch.JobExecution) error {
	l.after = execution.JobStatus
	if l.fail {
		return errors.New("verification failed")
	}
	return nil
}

type panickingStepListener struct{}

func (panickingStepListener) BeforeStep(ctx context.Context, execution *minibatch.StepExecution) error {
	panic("listener bug")
}

func (panickingStepListener) AfterStep(ctx context.Context, execution *minibatch.StepExecution) error {
	return nil
}

func TestEngine_ListenerErrorsDoNotFailTheJob(t *testing.T) {
	f := newFixture()
	listener := &statusListener{fail: true}
	step := f.chunkStep(newLineReader("John,Doe"), 10, minibatch.FailFast())
	job := f.jobs.Get("importUserJob").Start(step).Listener(listener, panickingStepListener{}).Build()
	assert.Equal(t, nil, f.engine.Register(job))

	execution, err := f.engine.Start(context.Background(), "importUserJob", "")
	assert.Equal(t, nil, err)
	assert.Equal(t, minibatch.COMPLETED, execution.JobStatus)
	assert.Equal(t, minibatch.STARTED, listener.before)
	assert.Equal(t, minibatch.COMPLETED, listener.after)
	assert.Equal(t, []string{"JOHN,DOE"}, f.table.Rows())

	var le *minibatch.ListenerError
	assert.T(t, errors.As(execution.ListenerErrors, &le))
	assert.Equal(t, "BeforeStep", le.Phase)
	assert.Equal(t, "panic: listener bug", le.Err.Error())
}

func TestEngine_AfterJobSeesFailure(t *testing.T) {
	f := newFixture()
	listener := &statusListener{}
	step := f.chunkStep(newLineReader("Justin"), 10, minibatch.FailFast())
	job := f.jobs.Get("importUserJob").Start(step).Listener(listener).Build()
	assert.Equal(t, nil, f.engine.Register(job))

	execution, err := f.engine.Start(context.Background(), "importUserJob", "")
	assert.NotEqual(t, nil, err)
	assert.Equal(t, minibatch.FAILED, listener.after)
	assert.Equal(t, nil, execution.ListenerErrors)
}

func TestJobBuilder_DuplicateStepNames(t *testing.T) {
	f := newFixture()
	a := f.steps.Get("step1").Handler(func() {}).Build()
	b := f.steps.Get("step1").Handler(func() {}).Build()
	assert.Panic(t, "duplicated step name:step1 in job:importUserJob", func() {
		f.jobs.Get("importUserJob").Start(a).Next(b).Build()
	})
}
