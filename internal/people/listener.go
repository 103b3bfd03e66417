package people

import (
	"context"
	"fmt"

	"github.com/chararch/minibatch"
)

// VerificationListener reads the people back once the job completed and logs
// each of them.
type VerificationListener struct {
	store Store
}

func NewVerificationListener(store Store) *VerificationListener {
	return &VerificationListener{store: store}
}

func (l *VerificationListener) Name() string {
	return "VerificationListener"
}

func (l *VerificationListener) BeforeJob(ctx context.Context, execution *minibatch.JobExecution) error {
	return nil
}

// AfterJob fails when the store holds fewer people than the run wrote. Rows
// of earlier runs may make it hold more.
func (l *VerificationListener) AfterJob(ctx context.Context, execution *minibatch.JobExecution) error {
	if execution.JobStatus != minibatch.COMPLETED {
		return nil
	}
	minibatch.DefaultLogger.Info(ctx, "!!! JOB FINISHED! Time to verify the results")
	people, err := l.store.FindAll(ctx)
	if err != nil {
		return err
	}
	for _, p := range people {
		minibatch.DefaultLogger.Info(ctx, "found <%v> in the database", p)
	}
	if int64(len(people)) < execution.WriteCount() {
		return fmt.Errorf("found %d people in the database, the run wrote %d", len(people), execution.WriteCount())
	}
	return nil
}
