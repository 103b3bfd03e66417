package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"strings"
	"time"

	"github.com/chararch/minibatch"
	"github.com/chararch/minibatch/adapters/dialect"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// maxIdRetries bounds the attempts to allocate ids when concurrent writers
// pick the same ones.
const maxIdRetries = 5

// SQLRepository stores execution state in batch_job_execution and
// batch_step_execution. Ids and run ids are allocated as MAX()+1 inside a
// transaction; the primary and unique keys reject concurrent duplicates and
// the allocation is retried.
type SQLRepository struct {
	db      *sql.DB
	dialect dialect.Dialect
}

// New create a SQLRepository on db
func New(db *sql.DB, d dialect.Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: d}
}

// InitSchema creates the repository tables if they do not exist
func InitSchema(ctx context.Context, db *sql.DB, d dialect.Dialect) error {
	ddl, err := schemaFS.ReadFile("schema/" + string(d) + ".sql")
	if err != nil {
		return minibatch.NewBatchError(minibatch.ErrCodeConfig, "no schema for dialect:%v", d, err)
	}
	for _, stmt := range strings.Split(string(ddl), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return minibatch.NewBatchError(minibatch.ErrCodeDbFail, "create repository schema failed", err)
		}
	}
	return nil
}

func (r *SQLRepository) q(query string) string {
	return r.dialect.Rebind(query)
}

func (r *SQLRepository) CreateJobExecution(ctx context.Context, execution *minibatch.JobExecution) error {
	params, err := json.Marshal(execution.JobParams)
	if err != nil {
		return minibatch.NewBatchError(minibatch.ErrCodeGeneral, "marshal job params failed", err)
	}
	for attempt := 1; ; attempt++ {
		err = r.insertJobExecution(ctx, execution, string(params))
		if err == nil {
			return nil
		}
		if !r.dialect.IsDuplicateKey(err) || attempt >= maxIdRetries {
			return minibatch.NewBatchError(minibatch.ErrCodeDbFail, "create execution of job:%v failed", execution.JobName, err)
		}
		minibatch.DefaultLogger.Warn(ctx, "run id of job:%v taken concurrently, retry %d", execution.JobName, attempt)
	}
}

func (r *SQLRepository) insertJobExecution(ctx context.Context, execution *minibatch.JobExecution, params string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var lastId, lastRunId int64
	if err = tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(job_execution_id), 0) FROM batch_job_execution").Scan(&lastId); err != nil {
		return err
	}
	if err = tx.QueryRowContext(ctx, r.q("SELECT COALESCE(MAX(run_id), 0) FROM batch_job_execution WHERE job_name = ?"), execution.JobName).Scan(&lastRunId); err != nil {
		return err
	}
	now := time.Now()
	_, err = tx.ExecContext(ctx, r.q("INSERT INTO batch_job_execution (job_execution_id, job_name, run_id, trace_id, job_params, status, create_time, last_updated, version) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		lastId+1, execution.JobName, lastRunId+1, execution.TraceId, params, string(execution.JobStatus), execution.CreateTime, now, 1)
	if err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	execution.JobExecutionId = lastId + 1
	execution.RunId = lastRunId + 1
	execution.LastUpdated = now
	execution.Version = 1
	return nil
}

func (r *SQLRepository) UpdateJobExecution(ctx context.Context, execution *minibatch.JobExecution) error {
	params, err := json.Marshal(execution.JobParams)
	if err != nil {
		return minibatch.NewBatchError(minibatch.ErrCodeGeneral, "marshal job params failed", err)
	}
	exitCode, exitMessage := exitStatus(execution.FailError)
	now := time.Now()
	_, err = r.db.ExecContext(ctx, r.q("UPDATE batch_job_execution SET job_params = ?, status = ?, start_time = ?, end_time = ?, exit_code = ?, exit_message = ?, read_count = ?, write_count = ?, skip_count = ?, last_updated = ?, version = version + 1 WHERE job_execution_id = ?"),
		string(params), string(execution.JobStatus), nullTime(execution.StartTime), nullTime(execution.EndTime), exitCode, exitMessage,
		execution.ReadCount(), execution.WriteCount(), execution.SkipCount(), now, execution.JobExecutionId)
	if err != nil {
		return minibatch.NewBatchError(minibatch.ErrCodeDbFail, "update job execution:%v failed", execution.JobExecutionId, err)
	}
	execution.LastUpdated = now
	execution.Version++
	return nil
}

func (r *SQLRepository) SaveStepExecution(ctx context.Context, execution *minibatch.StepExecution) error {
	stepCtx, err := json.Marshal(execution.StepExecutionContext)
	if err != nil {
		return minibatch.NewBatchError(minibatch.ErrCodeGeneral, "marshal step context failed", err)
	}
	if execution.StepExecutionId == 0 {
		for attempt := 1; ; attempt++ {
			err = r.insertStepExecution(ctx, execution, string(stepCtx))
			if err == nil {
				return nil
			}
			if !r.dialect.IsDuplicateKey(err) || attempt >= maxIdRetries {
				return minibatch.NewBatchError(minibatch.ErrCodeDbFail, "insert step execution:%v failed", execution.StepName, err)
			}
		}
	}
	exitCode, exitMessage := exitStatus(execution.FailError)
	now := time.Now()
	_, err = r.db.ExecContext(ctx, r.q("UPDATE batch_step_execution SET status = ?, read_count = ?, transform_count = ?, write_count = ?, commit_count = ?, filter_count = ?, read_skip_count = ?, process_skip_count = ?, rollback_count = ?, execution_context = ?, start_time = ?, end_time = ?, exit_code = ?, exit_message = ?, last_updated = ?, version = version + 1 WHERE step_execution_id = ?"),
		string(execution.StepStatus), execution.ReadCount, execution.TransformCount, execution.WriteCount, execution.CommitCount,
		execution.FilterCount, execution.ReadSkipCount, execution.ProcessSkipCount, execution.RollbackCount, string(stepCtx),
		nullTime(execution.StartTime), nullTime(execution.EndTime), exitCode, exitMessage, now, execution.StepExecutionId)
	if err != nil {
		return minibatch.NewBatchError(minibatch.ErrCodeDbFail, "update step execution:%v failed", execution.StepExecutionId, err)
	}
	execution.LastUpdated = now
	execution.Version++
	return nil
}

func (r *SQLRepository) insertStepExecution(ctx context.Context, execution *minibatch.StepExecution, stepCtx string) error {
	if execution.JobExecution == nil {
		return minibatch.NewBatchError(minibatch.ErrCodeDbFail, "step execution:%v has no job execution", execution.StepName)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var lastId int64
	if err = tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(step_execution_id), 0) FROM batch_step_execution").Scan(&lastId); err != nil {
		return err
	}
	now := time.Now()
	_, err = tx.ExecContext(ctx, r.q("INSERT INTO batch_step_execution (step_execution_id, job_execution_id, step_name, status, execution_context, create_time, start_time, last_updated, version) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		lastId+1, execution.JobExecution.JobExecutionId, execution.StepName, string(execution.StepStatus), stepCtx,
		execution.CreateTime, nullTime(execution.StartTime), now, 1)
	if err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	execution.StepExecutionId = lastId + 1
	execution.LastUpdated = now
	execution.Version = 1
	return nil
}

func (r *SQLRepository) FindJobExecution(ctx context.Context, jobExecutionId int64) (*minibatch.JobExecution, error) {
	row := r.db.QueryRowContext(ctx, r.q("SELECT "+jobExecutionColumns+" FROM batch_job_execution WHERE job_execution_id = ?"), jobExecutionId)
	m, err := scanJobExecution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, minibatch.NewBatchError(minibatch.ErrCodeDbFail, "find job execution:%v failed", jobExecutionId, err)
	}
	return r.withSteps(ctx, m)
}

func (r *SQLRepository) FindLastJobExecution(ctx context.Context, jobName string) (*minibatch.JobExecution, error) {
	executions, err := r.FindJobExecutions(ctx, jobName, 1)
	if err != nil || len(executions) == 0 {
		return nil, err
	}
	return executions[0], nil
}

func (r *SQLRepository) FindJobExecutions(ctx context.Context, jobName string, limit int) ([]*minibatch.JobExecution, error) {
	query := "SELECT " + jobExecutionColumns + " FROM batch_job_execution WHERE job_name = ? ORDER BY job_execution_id DESC"
	args := []interface{}{jobName}
	if limit > 0 {
		query += r.dialect.LimitClause()
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, minibatch.NewBatchError(minibatch.ErrCodeDbFail, "find executions of job:%v failed", jobName, err)
	}
	defer rows.Close()
	models := make([]*jobExecutionDBModel, 0)
	for rows.Next() {
		m, err := scanJobExecution(rows)
		if err != nil {
			return nil, minibatch.NewBatchError(minibatch.ErrCodeDbFail, "scan execution of job:%v failed", jobName, err)
		}
		models = append(models, m)
	}
	if err = rows.Err(); err != nil {
		return nil, minibatch.NewBatchError(minibatch.ErrCodeDbFail, "find executions of job:%v failed", jobName, err)
	}
	result := make([]*minibatch.JobExecution, 0, len(models))
	for _, m := range models {
		execution, err := r.withSteps(ctx, m)
		if err != nil {
			return nil, err
		}
		result = append(result, execution)
	}
	return result, nil
}

func (r *SQLRepository) withSteps(ctx context.Context, m *jobExecutionDBModel) (*minibatch.JobExecution, error) {
	execution, err := m.toEntity()
	if err != nil {
		return nil, minibatch.NewBatchError(minibatch.ErrCodeDbFail, "decode job execution:%v failed", m.JobExecutionId, err)
	}
	steps, err := r.findStepExecutions(ctx, execution)
	if err != nil {
		return nil, err
	}
	execution.StepExecutions = steps
	return execution, nil
}

func (r *SQLRepository) FindStepExecutions(ctx context.Context, jobExecutionId int64) ([]*minibatch.StepExecution, error) {
	return r.findStepExecutions(ctx, &minibatch.JobExecution{JobExecutionId: jobExecutionId})
}

func (r *SQLRepository) findStepExecutions(ctx context.Context, job *minibatch.JobExecution) ([]*minibatch.StepExecution, error) {
	rows, err := r.db.QueryContext(ctx, r.q("SELECT "+stepExecutionColumns+" FROM batch_step_execution WHERE job_execution_id = ? ORDER BY step_execution_id"), job.JobExecutionId)
	if err != nil {
		return nil, minibatch.NewBatchError(minibatch.ErrCodeDbFail, "find step executions of job execution:%v failed", job.JobExecutionId, err)
	}
	defer rows.Close()
	result := make([]*minibatch.StepExecution, 0)
	for rows.Next() {
		m, err := scanStepExecution(rows)
		if err != nil {
			return nil, minibatch.NewBatchError(minibatch.ErrCodeDbFail, "scan step execution failed", err)
		}
		step, err := m.toEntity(job)
		if err != nil {
			return nil, minibatch.NewBatchError(minibatch.ErrCodeDbFail, "decode step execution:%v failed", m.StepExecutionId, err)
		}
		result = append(result, step)
	}
	if err = rows.Err(); err != nil {
		return nil, minibatch.NewBatchError(minibatch.ErrCodeDbFail, "find step executions of job execution:%v failed", job.JobExecutionId, err)
	}
	return result, nil
}
