package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/chararch/minibatch"
	"github.com/chararch/minibatch/internal/config"
)

func newAbandonCmd(cfg *config.Config) *cobra.Command {
	var executionId int64
	abandonCmd := &cobra.Command{
		Use:   "abandon",
		Short: "Mark a run left STARTED by a crashed process as FAILED",
		Long: "A run whose process died stays STARTED in the meta store and blocks run --restart. " +
			"abandon marks it FAILED so that the next run --restart resumes after its last committed chunk.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAbandon(cmd.Context(), cmd.OutOrStdout(), cfg, executionId)
		},
	}
	abandonCmd.Flags().Int64VarP(&executionId, "execution", "e", 0, "id of the job execution to abandon, see history")
	_ = abandonCmd.MarkFlagRequired("execution")
	return abandonCmd
}

func runAbandon(ctx context.Context, out io.Writer, cfg *config.Config, executionId int64) error {
	a, err := newMetaStoreApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return abandon(ctx, out, a.engine, executionId)
}

func abandon(ctx context.Context, out io.Writer, engine minibatch.Engine, executionId int64) error {
	execution, err := engine.Abandon(ctx, executionId)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "execution:%d run:%d of %s is now %s, resume it with run --restart\n",
		execution.JobExecutionId, execution.RunId, execution.JobName, execution.JobStatus)
	return nil
}
