package minibatch

import (
	"context"
	"fmt"
)

type StepBuilderFactory interface {
	// Get returns a builder for a simple step running a Task or Handler.
	// Chunk steps are built with NewChunkStep.
	Get(name string) StepBuilder
	repo() Repository
	txnManager() TransactionManager
}

func NewStepBuilderFactory(repository Repository, txnMgr TransactionManager) StepBuilderFactory {
	return &stepBuilderFactory{
		repository: repository,
		txnMgr:     txnMgr,
	}
}

type stepBuilderFactory struct {
	repository Repository
	txnMgr     TransactionManager
}

func (f *stepBuilderFactory) Get(name string) StepBuilder {
	if name == "" {
		panic("step name must not be empty")
	}
	return &stepBuilder{name: name, repository: f.repository}
}

func (f *stepBuilderFactory) repo() Repository {
	return f.repository
}

func (f *stepBuilderFactory) txnManager() TransactionManager {
	return f.txnMgr
}

type StepBuilder interface {
	Handler(handler interface{}) StepBuilder
	Task(task Task) StepBuilder
	Listener(listener ...StepListener) StepBuilder
	Build() Step
}

type stepBuilder struct {
	name       string
	handler    Handler
	listeners  []StepListener
	repository Repository
}

func (builder *stepBuilder) Handler(handler interface{}) StepBuilder {
	switch val := handler.(type) {
	case Handler:
		builder.handler = val
	case Task:
		builder.Task(val)
	case func(ctx context.Context, execution *StepExecution) error:
		builder.Task(val)
	case func(ctx context.Context) error:
		builder.Task(func(ctx context.Context, execution *StepExecution) error {
			return val(ctx)
		})
	case func() error:
		builder.Task(func(ctx context.Context, execution *StepExecution) error {
			return val()
		})
	case func():
		builder.Task(func(ctx context.Context, execution *StepExecution) error {
			val()
			return nil
		})
	default:
		panic(fmt.Sprintf("invalid handler type %T for step:%v", handler, builder.name))
	}
	return builder
}

func (builder *stepBuilder) Task(task Task) StepBuilder {
	builder.handler = taskHandler(task)
	return builder
}

func (builder *stepBuilder) Listener(listener ...StepListener) StepBuilder {
	builder.listeners = append(builder.listeners, listener...)
	return builder
}

func (builder *stepBuilder) Build() Step {
	if builder.handler == nil {
		panic(fmt.Sprintf("no handler specified for step: %s", builder.name))
	}
	return newSimpleStep(baseStep{
		name:       builder.name,
		repository: builder.repository,
		listeners:  builder.listeners,
	}, builder.handler)
}

// ChunkStepBuilder builds a chunk oriented step over items of type T
type ChunkStepBuilder[T any] struct {
	name           string
	reader         Reader[T]
	processor      Processor[T]
	writer         Writer[T]
	chunkSize      int
	skipPolicy     SkipPolicy
	stepListeners  []StepListener
	chunkListeners []ChunkListener
	skipListeners  []SkipListener
	txnMgr         TransactionManager
	repository     Repository
}

// NewChunkStep returns a builder for a chunk step named name. The processor
// defaults to the identity, the writer to a no-op, the chunk size to
// DefaultChunkSize and the skip policy to FailFast.
func NewChunkStep[T any](factory StepBuilderFactory, name string) *ChunkStepBuilder[T] {
	if name == "" {
		panic("step name must not be empty")
	}
	return &ChunkStepBuilder[T]{
		name:       name,
		processor:  nilProcessor[T]{},
		writer:     nilWriter[T]{},
		chunkSize:  DefaultChunkSize,
		skipPolicy: FailFast(),
		txnMgr:     factory.txnManager(),
		repository: factory.repo(),
	}
}

func (builder *ChunkStepBuilder[T]) Reader(reader Reader[T]) *ChunkStepBuilder[T] {
	builder.reader = reader
	return builder
}

func (builder *ChunkStepBuilder[T]) Processor(processor Processor[T]) *ChunkStepBuilder[T] {
	builder.processor = processor
	return builder
}

func (builder *ChunkStepBuilder[T]) Writer(writer Writer[T]) *ChunkStepBuilder[T] {
	builder.writer = writer
	return builder
}

func (builder *ChunkStepBuilder[T]) ChunkSize(chunkSize int) *ChunkStepBuilder[T] {
	builder.chunkSize = chunkSize
	return builder
}

func (builder *ChunkStepBuilder[T]) SkipPolicy(policy SkipPolicy) *ChunkStepBuilder[T] {
	builder.skipPolicy = policy
	return builder
}

// TransactionManager overrides the transaction manager of the factory
func (builder *ChunkStepBuilder[T]) TransactionManager(txnMgr TransactionManager) *ChunkStepBuilder[T] {
	builder.txnMgr = txnMgr
	return builder
}

// Listener accepts StepListener, ChunkListener and SkipListener values. A
// value implementing several of them is registered for each.
func (builder *ChunkStepBuilder[T]) Listener(listener ...interface{}) *ChunkStepBuilder[T] {
	for _, l := range listener {
		valid := false
		if sl, ok := l.(StepListener); ok {
			builder.stepListeners = append(builder.stepListeners, sl)
			valid = true
		}
		if cl, ok := l.(ChunkListener); ok {
			builder.chunkListeners = append(builder.chunkListeners, cl)
			valid = true
		}
		if kl, ok := l.(SkipListener); ok {
			builder.skipListeners = append(builder.skipListeners, kl)
			valid = true
		}
		if !valid {
			panic(fmt.Sprintf("not supported listener:%T for step:%v", l, builder.name))
		}
	}
	return builder
}

func (builder *ChunkStepBuilder[T]) Build() Step {
	if builder.reader == nil {
		panic(fmt.Sprintf("no reader specified for step: %s", builder.name))
	}
	if builder.chunkSize <= 0 {
		panic(fmt.Sprintf("chunk size of step:%s must be positive, got %d", builder.name, builder.chunkSize))
	}
	if builder.txnMgr == nil {
		panic(fmt.Sprintf("you must specify a transaction manager before constructing chunk step:%v", builder.name))
	}
	if builder.skipPolicy == nil {
		builder.skipPolicy = FailFast()
	}
	return &chunkStep[T]{
		baseStep: baseStep{
			name:       builder.name,
			repository: builder.repository,
			listeners:  builder.stepListeners,
		},
		reader:         builder.reader,
		processor:      builder.processor,
		writer:         builder.writer,
		chunkSize:      builder.chunkSize,
		txMgr:          builder.txnMgr,
		skipPolicy:     builder.skipPolicy,
		chunkListeners: builder.chunkListeners,
		skipListeners:  builder.skipListeners,
	}
}

func (s *chunkStep[T]) addChunkListener(listener ChunkListener) {
	s.chunkListeners = append(s.chunkListeners, listener)
}
