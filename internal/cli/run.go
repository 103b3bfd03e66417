package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chararch/minibatch"
	"github.com/chararch/minibatch/internal/config"
	"github.com/chararch/minibatch/internal/people"
)

func newRunCmd(cfg *config.Config) *cobra.Command {
	var restart bool
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the import job",
		Long: "Run the import job. The job fails on the first malformed line unless a skip policy\n" +
			"is given. With --restart the last failed run resumes after its last committed chunk.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runImport(ctx, cmd.OutOrStdout(), cfg, restart)
		},
	}
	flags := runCmd.Flags()
	flags.StringVarP(&cfg.InputFile, "input", "i", cfg.InputFile, "input file, a path on the FTP server when --ftp-host is set")
	flags.BoolVar(&cfg.InputHeader, "header", cfg.InputHeader, "skip the first line of the input")
	flags.StringVar(&cfg.InputDelimiter, "delimiter", cfg.InputDelimiter, "field delimiter")
	flags.StringVar(&cfg.InputEncoding, "encoding", cfg.InputEncoding, "character encoding of the input")
	flags.StringVar(&cfg.InputChecksum, "checksum", cfg.InputChecksum, "verify the input against its checksum file, e.g. md5")
	flags.IntVarP(&cfg.ChunkSize, "chunk-size", "c", cfg.ChunkSize, "number of records per transaction")
	flags.StringVar(&cfg.SkipPolicy, "skip-policy", cfg.SkipPolicy, "fail-fast, skip-limit or skip-all")
	flags.Int64Var(&cfg.SkipLimit, "skip-limit", cfg.SkipLimit, "number of records skip-limit tolerates")
	flags.StringVar(&cfg.RejectFile, "reject-file", cfg.RejectFile, "write skipped lines to this file, {run.id} is replaced")
	flags.StringVar(&cfg.Sink, "sink", cfg.Sink, "memory, mysql, sqlserver or mongo")
	flags.BoolVar(&cfg.InitSchema, "init-schema", cfg.InitSchema, "create missing tables before importing")
	flags.StringVar(&cfg.FTPHost, "ftp-host", cfg.FTPHost, "FTP server holding the input")
	flags.StringVar(&cfg.StageDir, "stage-dir", cfg.StageDir, "local directory the FTP input is copied to")
	flags.BoolVar(&restart, "restart", false, "resume the last failed run")
	return runCmd
}

func runImport(ctx context.Context, out io.Writer, cfg *config.Config, restart bool) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if err = a.registerImportJob(ctx); err != nil {
		return err
	}

	var execution *minibatch.JobExecution
	if restart {
		execution, err = a.engine.Restart(ctx, people.JobName)
	} else {
		execution, err = a.engine.Start(ctx, people.JobName, a.jobParams().ToString())
	}
	if execution == nil {
		return err
	}
	printSummary(out, execution)
	if execution.JobStatus != minibatch.COMPLETED {
		return fmt.Errorf("job %s run %d failed: %w", execution.JobName, execution.RunId, err)
	}
	return nil
}

func printSummary(out io.Writer, e *minibatch.JobExecution) {
	fmt.Fprintf(out, "job:%s run:%d execution:%d status:%s\n", e.JobName, e.RunId, e.JobExecutionId, e.JobStatus)
	fmt.Fprintf(out, "read:%d written:%d skipped:%d filtered:%d\n", e.ReadCount(), e.WriteCount(), e.SkipCount(), e.FilterCount())
	if e.FailError != nil {
		fmt.Fprintf(out, "error[%s]: %v\n", minibatch.ErrorCode(e.FailError), e.FailError)
	}
	if e.ListenerErrors != nil {
		fmt.Fprintf(out, "listener errors: %v\n", e.ListenerErrors)
	}
}
