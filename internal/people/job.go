package people

import (
	"github.com/chararch/minibatch"
	"github.com/chararch/minibatch/extensions/files"
)

// JobOptions configures the import job
type JobOptions struct {
	Input      files.FileObjectModel
	ChunkSize  int
	SkipPolicy minibatch.SkipPolicy
	Writer     minibatch.Writer[Person]
	// TxManager overrides the transaction manager of the step factory
	TxManager minibatch.TransactionManager
	// Reject, when set, receives the skipped lines
	Reject *files.RejectWriter
	// Verify, when set, reads the people back after a completed run
	Verify Store
	// Before are run in order ahead of the import step
	Before []minibatch.Step
}

// NewImportStep builds the chunk step reading people from the input file,
// upper-casing them and writing them in chunks.
func NewImportStep(stepFactory minibatch.StepBuilderFactory, opts JobOptions) minibatch.Step {
	builder := minibatch.NewChunkStep[Person](stepFactory, StepName).
		Reader(files.NewReader[Person](opts.Input, files.FieldCount[Person](2, MapLine))).
		Processor(UpperCaseProcessor{})
	if opts.Writer != nil {
		builder.Writer(opts.Writer)
	}
	if opts.ChunkSize != 0 {
		builder.ChunkSize(opts.ChunkSize)
	}
	if opts.SkipPolicy != nil {
		builder.SkipPolicy(opts.SkipPolicy)
	}
	if opts.TxManager != nil {
		builder.TransactionManager(opts.TxManager)
	}
	if opts.Reject != nil {
		builder.Listener(opts.Reject)
	}
	return builder.Build()
}

// NewJob builds importUserJob
func NewJob(jobFactory minibatch.JobBuilderFactory, stepFactory minibatch.StepBuilderFactory, opts JobOptions) minibatch.Job {
	steps := append([]minibatch.Step{}, opts.Before...)
	steps = append(steps, NewImportStep(stepFactory, opts))
	builder := jobFactory.Get(JobName).Start(steps[0]).Steps(steps[1:]...)
	if opts.Verify != nil {
		builder.Listener(NewVerificationListener(opts.Verify))
	}
	return builder.Build()
}
