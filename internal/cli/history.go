package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/chararch/minibatch"
	"github.com/chararch/minibatch/internal/config"
	"github.com/chararch/minibatch/internal/people"
)

func newHistoryCmd(cfg *config.Config) *cobra.Command {
	var limit int
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List the past runs of the import job, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showHistory(cmd.Context(), cmd.OutOrStdout(), cfg, limit)
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list, 0 for all")
	return historyCmd
}

func showHistory(ctx context.Context, out io.Writer, cfg *config.Config, limit int) error {
	a, err := newMetaStoreApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	executions, err := a.repository.FindJobExecutions(ctx, people.JobName, limit)
	if err != nil {
		return err
	}
	printHistory(out, executions)
	return nil
}

// newMetaStoreApp connects to the durable meta store only
func newMetaStoreApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if cfg.MetaStore == config.StoreMemory {
		return nil, fmt.Errorf("the memory meta store does not outlive the process, use --meta-store mysql or sqlserver")
	}
	metaCfg := *cfg
	metaCfg.Sink = config.StoreMemory
	if err := metaCfg.Validate(); err != nil {
		return nil, err
	}
	return newApp(ctx, &metaCfg)
}

func printHistory(out io.Writer, executions []*minibatch.JobExecution) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EXECUTION\tRUN\tSTATUS\tSTART\tDURATION\tREAD\tWRITTEN\tSKIPPED\tEXIT")
	for _, e := range executions {
		duration := ""
		if !e.EndTime.IsZero() {
			duration = e.EndTime.Sub(e.StartTime).Round(time.Millisecond).String()
		}
		exit := ""
		if e.FailError != nil {
			exit = e.FailError.Error()
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n", e.JobExecutionId, e.RunId, e.JobStatus,
			e.StartTime.Format(time.RFC3339), duration, e.ReadCount(), e.WriteCount(), e.SkipCount(), exit)
	}
	w.Flush()
}
