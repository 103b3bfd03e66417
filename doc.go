// Package minibatch runs chunk oriented batch jobs. A Job is a linear
// sequence of steps. A chunk step reads items one at a time from a Reader,
// maps each through a Processor and hands them to a Writer in chunks of
// ChunkSize items, one transaction per chunk:
//
//	read -> process -> buffer (chunk size) -> write -> commit
//
// A failed write rolls back its whole chunk; chunks committed earlier stay
// committed. Malformed lines and rejected items go to the step's SkipPolicy,
// which by default fails the step on the first one.
//
// Executions are recorded by a Repository. Every run of a job gets a new run
// id, so the same job can be launched again with identical parameters, and a
// failed run can be restarted from its last committed chunk when the reader
// implements Checkpointer.
//
// The Engine launches registered jobs on a bounded goroutine pool:
//
//	engine := minibatch.NewEngine(repository.NewMemory())
//	engine.Register(job)
//	execution, err := engine.Start(ctx, "importUserJob", "")
package minibatch
