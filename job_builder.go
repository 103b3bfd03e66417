package minibatch

import (
	"fmt"
)

type JobBuilderFactory interface {
	Get(name string) JobBuilder
}

func NewJobBuilderFactory(repository Repository) JobBuilderFactory {
	return &jobBuilderFactory{
		repository: repository,
	}
}

type jobBuilderFactory struct {
	repository Repository
}

func (j *jobBuilderFactory) Get(name string) JobBuilder {
	if name == "" {
		panic("job name must not be empty")
	}
	return &jobBuilder{
		name:       name,
		repository: j.repository,
	}
}

type JobBuilder interface {
	Start(step Step) SimpleJobBuilder
}

type jobBuilder struct {
	name       string
	repository Repository
}

func (builder *jobBuilder) Start(step Step) SimpleJobBuilder {
	return &simpleJobBuilder{
		name:       builder.name,
		steps:      []Step{step},
		repository: builder.repository,
	}
}

type SimpleJobBuilder interface {
	Next(step Step) SimpleJobBuilder
	Steps(step ...Step) SimpleJobBuilder
	Listener(listener ...interface{}) SimpleJobBuilder
	Build() Job
}

type simpleJobBuilder struct {
	name           string
	steps          []Step
	jobListeners   []JobListener
	stepListeners  []StepListener
	chunkListeners []ChunkListener
	repository     Repository
}

func (builder *simpleJobBuilder) Next(step Step) SimpleJobBuilder {
	builder.steps = append(builder.steps, step)
	return builder
}

func (builder *simpleJobBuilder) Steps(step ...Step) SimpleJobBuilder {
	builder.steps = append(builder.steps, step...)
	return builder
}

// Listener accepts JobListener, StepListener and ChunkListener values. Step
// and chunk listeners are added to every step of the job that supports them.
func (builder *simpleJobBuilder) Listener(listener ...interface{}) SimpleJobBuilder {
	for _, l := range listener {
		valid := false
		if jl, ok := l.(JobListener); ok {
			builder.jobListeners = append(builder.jobListeners, jl)
			valid = true
		}
		if sl, ok := l.(StepListener); ok {
			builder.stepListeners = append(builder.stepListeners, sl)
			valid = true
		}
		if cl, ok := l.(ChunkListener); ok {
			builder.chunkListeners = append(builder.chunkListeners, cl)
			valid = true
		}
		if !valid {
			panic(fmt.Sprintf("not supported listener:%T for job:%v", l, builder.name))
		}
	}
	return builder
}

func (builder *simpleJobBuilder) Build() Job {
	if builder.repository == nil {
		panic(fmt.Sprintf("no repository specified for job:%v", builder.name))
	}
	names := map[string]bool{}
	for _, step := range builder.steps {
		if names[step.Name()] {
			panic(fmt.Sprintf("duplicated step name:%v in job:%v", step.Name(), builder.name))
		}
		names[step.Name()] = true
	}
	for _, sl := range builder.stepListeners {
		for _, step := range builder.steps {
			step.addListener(sl)
		}
	}
	for _, cl := range builder.chunkListeners {
		for _, step := range builder.steps {
			if chkStep, ok := step.(interface{ addChunkListener(ChunkListener) }); ok {
				chkStep.addChunkListener(cl)
			}
		}
	}
	return newSimpleJob(builder.name, builder.steps, builder.jobListeners, builder.repository)
}
