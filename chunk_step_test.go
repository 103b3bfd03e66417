package minibatch_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bmizerany/assert"

	"github.com/chararch/minibatch"
)

func TestChunkStep_TransformsInInputOrder(t *testing.T) {
	f := newFixture()
	execution, err := f.run(t, f.chunkStep(newLineReader("John,Doe", "Jane,Doe"), 10, minibatch.FailFast()))

	assert.Equal(t, nil, err)
	assert.Equal(t, minibatch.COMPLETED, execution.JobStatus)
	assert.Equal(t, []string{"JOHN,DOE", "JANE,DOE"}, f.table.Rows())
	step := execution.StepExecutions[0]
	assert.Equal(t, int64(2), step.ReadCount)
	assert.Equal(t, int64(2), step.WriteCount)
	assert.Equal(t, int64(1), step.CommitCount)
	assert.Equal(t, minibatch.COMPLETED, step.StepStatus)
}

func TestChunkStep_ChunkBoundaries(t *testing.T) {
	cases := []struct {
		name      string
		items     int
		chunkSize int
		chunks    []int
	}{
		{"partial last chunk", 25, 10, []int{10, 10, 5}},
		{"exact multiple", 20, 10, []int{10, 10}},
		{"single item chunks", 3, 1, []int{1, 1, 1}},
		{"chunk larger than input", 5, 100, []int{5}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := newFixture()
			execution, err := f.run(t, f.chunkStep(newLineReader(people(c.items)...), c.chunkSize, minibatch.FailFast()))
			assert.Equal(t, nil, err)
			assert.Equal(t, c.chunks, f.table.chunks)
			assert.Equal(t, len(c.chunks), f.table.commits)
			assert.Equal(t, int64(c.items), execution.WriteCount())
			assert.Equal(t, strings.ToUpper(people(c.items)[c.items-1]), f.table.Rows()[c.items-1])
		})
	}
}

func TestChunkStep_EmptyInput(t *testing.T) {
	f := newFixture()
	execution, err := f.run(t, f.chunkStep(newLineReader(), 10, minibatch.FailFast()))
	assert.Equal(t, nil, err)
	assert.Equal(t, minibatch.COMPLETED, execution.JobStatus)
	assert.Equal(t, 0, f.table.begins)
	assert.Equal(t, int64(0), execution.ReadCount())
}

func TestChunkStep_FailFastOnMalformedLine(t *testing.T) {
	f := newFixture()
	reader := newLineReader("Jill,Doe", "Joe,Doe", "Justin", "Jane,Doe", "John,Doe")
	execution, err := f.run(t, f.chunkStep(reader, 10, minibatch.FailFast()))

	var pe *minibatch.ParseError
	assert.T(t, errors.As(err, &pe), err)
	assert.Equal(t, int64(3), pe.Line)
	assert.Equal(t, "Justin", pe.Raw)
	assert.Equal(t, minibatch.FAILED, execution.JobStatus)
	assert.Equal(t, minibatch.ErrCodeParse, minibatch.ErrorCode(execution.FailError))
	assert.Equal(t, 0, len(f.table.Rows()))
	assert.Equal(t, 0, f.table.begins)
	assert.Equal(t, int64(0), execution.WriteCount())
	assert.Equal(t, minibatch.FAILED, execution.StepExecutions[0].StepStatus)
}

func TestChunkStep_EarlierChunksStayCommitted(t *testing.T) {
	f := newFixture()
	reader := newLineReader("Jill,Doe", "Joe,Doe", "Justin", "Jane,Doe")
	execution, err := f.run(t, f.chunkStep(reader, 2, minibatch.FailFast()))

	assert.NotEqual(t, nil, err)
	assert.Equal(t, []string{"JILL,DOE", "JOE,DOE"}, f.table.Rows())
	step := execution.StepExecutions[0]
	assert.Equal(t, int64(3), step.ReadCount)
	assert.Equal(t, int64(2), step.WriteCount)
	assert.Equal(t, int64(1), step.AbortedCount())
}

func TestChunkStep_SkipLimit(t *testing.T) {
	lines := []string{"Jill,Doe", "Joe", "Justin", "Jane,Doe", "John,Doe"}

	f := newFixture()
	execution, err := f.run(t, f.chunkStep(newLineReader(lines...), 10, minibatch.SkipLimit(2)))
	assert.Equal(t, nil, err)
	step := execution.StepExecutions[0]
	assert.Equal(t, int64(5), step.ReadCount)
	assert.Equal(t, int64(3), step.WriteCount)
	assert.Equal(t, int64(2), step.ReadSkipCount)
	assert.Equal(t, step.ReadCount, step.WriteCount+step.SkipCount())
	assert.Equal(t, []string{"JILL,DOE", "JANE,DOE", "JOHN,DOE"}, f.table.Rows())

	f = newFixture()
	execution, err = f.run(t, f.chunkStep(newLineReader(lines...), 10, minibatch.SkipLimit(1)))
	var pe *minibatch.ParseError
	assert.T(t, errors.As(err, &pe), err)
	assert.Equal(t, int64(3), pe.Line)
	assert.Equal(t, minibatch.FAILED, execution.JobStatus)
	assert.Equal(t, 0, len(f.table.Rows()))
}

func TestChunkStep_FilteredItemsDoNotFillChunks(t *testing.T) {
	f := newFixture()
	dropJane := minibatch.ProcessorFunc[string](func(item string) (string, error) {
		if strings.HasPrefix(item, "Jane") {
			return "", minibatch.SkipItem
		}
		return strings.ToUpper(item), nil
	})
	step := minibatch.NewChunkStep[string](f.steps, "step1").
		Reader(newLineReader("Jill,Doe", "Jane,Doe", "John,Doe")).
		Processor(dropJane).
		Writer(f.table).
		ChunkSize(2).
		Build()
	execution, err := f.run(t, step)

	assert.Equal(t, nil, err)
	assert.Equal(t, []int{2}, f.table.chunks)
	assert.Equal(t, int64(1), execution.FilterCount())
	assert.Equal(t, int64(1), execution.SkipCount())
	assert.Equal(t, int64(3), execution.ReadCount())
}

func TestChunkStep_TransformErrors(t *testing.T) {
	rejectJoe := minibatch.ProcessorFunc[string](func(item string) (string, error) {
		if strings.HasPrefix(item, "Joe") {
			return "", errors.New("unknown person")
		}
		return item, nil
	})
	build := func(f *fixture, policy minibatch.SkipPolicy) minibatch.Step {
		return minibatch.NewChunkStep[string](f.steps, "step1").
			Reader(newLineReader("Jill,Doe", "Joe,Doe", "Jane,Doe")).
			Processor(rejectJoe).
			Writer(f.table).
			SkipPolicy(policy).
			Build()
	}

	f := newFixture()
	_, err := f.run(t, build(f, minibatch.FailFast()))
	var te *minibatch.TransformError
	assert.T(t, errors.As(err, &te), err)
	assert.Equal(t, "Joe,Doe", te.Item)
	assert.Equal(t, minibatch.ErrCodeTransform, minibatch.ErrorCode(err))

	f = newFixture()
	execution, err := f.run(t, build(f, minibatch.AlwaysSkip()))
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(1), execution.StepExecutions[0].ProcessSkipCount)
	assert.Equal(t, []string{"Jill,Doe", "Jane,Doe"}, f.table.Rows())
}

type chunkRecorder struct {
	before, after int
	failed        error
}

func (r *chunkRecorder) BeforeChunk(ctx context.Context, chunkCtx *minibatch.ChunkContext) error {
	r.before++
	return nil
}

func (r *chunkRecorder) AfterChunk(ctx context.Context, chunkCtx *minibatch.ChunkContext) error {
	r.after++
	return nil
}

func (r *chunkRecorder) OnError(ctx context.Context, chunkCtx *minibatch.ChunkContext, err error) {
	r.failed = err
}

func TestChunkStep_WriteFailureRollsBackChunk(t *testing.T) {
	for _, panicking := range []bool{false, true} {
		f := newFixture()
		f.table.failChunk = 2
		f.table.panicking = panicking
		recorder := &chunkRecorder{}
		execution, err := f.run(t, f.chunkStep(newLineReader(people(25)...), 10, minibatch.AlwaysSkip(), recorder))

		var we *minibatch.WriteError
		assert.T(t, errors.As(err, &we), err)
		assert.Equal(t, int64(2), we.Chunk)
		assert.Equal(t, 10, we.Items)
		assert.Equal(t, minibatch.ErrCodeWrite, minibatch.ErrorCode(execution.FailError))
		assert.Equal(t, 10, len(f.table.Rows()))
		assert.Equal(t, 1, f.table.rollbacks)

		step := execution.StepExecutions[0]
		assert.Equal(t, int64(1), step.RollbackCount)
		assert.Equal(t, int64(1), step.CommitCount)
		assert.Equal(t, int64(10), step.WriteCount)
		assert.Equal(t, int64(20), step.ReadCount)
		assert.Equal(t, 2, recorder.before)
		assert.Equal(t, 1, recorder.after)
		assert.Equal(t, error(we), recorder.failed)
	}
}

type skipRecorder struct {
	skipped []string
}

func (r *skipRecorder) OnSkip(ctx context.Context, execution *minibatch.StepExecution, err error) {
	var pe *minibatch.ParseError
	if errors.As(err, &pe) {
		r.skipped = append(r.skipped, pe.Raw)
	}
}

func TestChunkStep_SkipListener(t *testing.T) {
	f := newFixture()
	recorder := &skipRecorder{}
	_, err := f.run(t, f.chunkStep(newLineReader("Jill,Doe", "Joe", "Jane,Doe", "Justin"), 10, minibatch.AlwaysSkip(), recorder))
	assert.Equal(t, nil, err)
	assert.Equal(t, []string{"Joe", "Justin"}, recorder.skipped)
}

func TestChunkStepBuilder_Validation(t *testing.T) {
	f := newFixture()
	assert.Panic(t, "no reader specified for step: step1", func() {
		minibatch.NewChunkStep[string](f.steps, "step1").Build()
	})
	assert.Panic(t, "chunk size of step:step1 must be positive, got 0", func() {
		minibatch.NewChunkStep[string](f.steps, "step1").Reader(newLineReader()).ChunkSize(0).Build()
	})
	assert.Panic(t, "not supported listener:string for step:step1", func() {
		minibatch.NewChunkStep[string](f.steps, "step1").Listener("listener")
	})
}
