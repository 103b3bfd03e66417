package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/chararch/minibatch"
)

// the following models mirror the batch_job_execution and
// batch_step_execution tables

type jobExecutionDBModel struct {
	JobExecutionId int64
	JobName        string
	RunId          int64
	TraceId        string
	JobParams      string
	Status         string
	CreateTime     time.Time
	StartTime      sql.NullTime
	EndTime        sql.NullTime
	ExitCode       sql.NullString
	ExitMessage    sql.NullString
	LastUpdated    time.Time
	Version        int64
}

type stepExecutionDBModel struct {
	StepExecutionId  int64
	JobExecutionId   int64
	StepName         string
	Status           string
	ReadCount        int64
	TransformCount   int64
	WriteCount       int64
	CommitCount      int64
	FilterCount      int64
	ReadSkipCount    int64
	ProcessSkipCount int64
	RollbackCount    int64
	ExecutionContext sql.NullString
	CreateTime       time.Time
	StartTime        sql.NullTime
	EndTime          sql.NullTime
	ExitCode         sql.NullString
	ExitMessage      sql.NullString
	LastUpdated      time.Time
	Version          int64
}

const jobExecutionColumns = "job_execution_id, job_name, run_id, trace_id, job_params, status, create_time, start_time, end_time, exit_code, exit_message, last_updated, version"

const stepExecutionColumns = "step_execution_id, job_execution_id, step_name, status, read_count, transform_count, write_count, commit_count, filter_count, read_skip_count, process_skip_count, rollback_count, execution_context, create_time, start_time, end_time, exit_code, exit_message, last_updated, version"

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJobExecution(row scanner) (*jobExecutionDBModel, error) {
	m := &jobExecutionDBModel{}
	err := row.Scan(&m.JobExecutionId, &m.JobName, &m.RunId, &m.TraceId, &m.JobParams, &m.Status, &m.CreateTime,
		&m.StartTime, &m.EndTime, &m.ExitCode, &m.ExitMessage, &m.LastUpdated, &m.Version)
	return m, err
}

func scanStepExecution(row scanner) (*stepExecutionDBModel, error) {
	m := &stepExecutionDBModel{}
	err := row.Scan(&m.StepExecutionId, &m.JobExecutionId, &m.StepName, &m.Status, &m.ReadCount, &m.TransformCount,
		&m.WriteCount, &m.CommitCount, &m.FilterCount, &m.ReadSkipCount, &m.ProcessSkipCount, &m.RollbackCount,
		&m.ExecutionContext, &m.CreateTime, &m.StartTime, &m.EndTime, &m.ExitCode, &m.ExitMessage, &m.LastUpdated, &m.Version)
	return m, err
}

func (m *jobExecutionDBModel) toEntity() (*minibatch.JobExecution, error) {
	params := minibatch.NewParameters()
	if err := params.FromString(m.JobParams); err != nil {
		return nil, err
	}
	return &minibatch.JobExecution{
		JobExecutionId: m.JobExecutionId,
		JobName:        m.JobName,
		RunId:          m.RunId,
		TraceId:        m.TraceId,
		JobParams:      params,
		JobStatus:      minibatch.BatchStatus(m.Status),
		StepExecutions: make([]*minibatch.StepExecution, 0),
		JobContext:     minibatch.NewBatchContext(),
		CreateTime:     m.CreateTime,
		StartTime:      m.StartTime.Time,
		EndTime:        m.EndTime.Time,
		FailError:      failError(m.ExitMessage),
		LastUpdated:    m.LastUpdated,
		Version:        m.Version,
	}, nil
}

func (m *stepExecutionDBModel) toEntity(job *minibatch.JobExecution) (*minibatch.StepExecution, error) {
	stepCtx := minibatch.NewBatchContext()
	if m.ExecutionContext.Valid && m.ExecutionContext.String != "" {
		if err := json.Unmarshal([]byte(m.ExecutionContext.String), stepCtx); err != nil {
			return nil, err
		}
	}
	return &minibatch.StepExecution{
		StepExecutionId:      m.StepExecutionId,
		StepName:             m.StepName,
		StepStatus:           minibatch.BatchStatus(m.Status),
		JobExecution:         job,
		StepExecutionContext: stepCtx,
		CreateTime:           m.CreateTime,
		StartTime:            m.StartTime.Time,
		EndTime:              m.EndTime.Time,
		ReadCount:            m.ReadCount,
		TransformCount:       m.TransformCount,
		WriteCount:           m.WriteCount,
		CommitCount:          m.CommitCount,
		FilterCount:          m.FilterCount,
		ReadSkipCount:        m.ReadSkipCount,
		ProcessSkipCount:     m.ProcessSkipCount,
		RollbackCount:        m.RollbackCount,
		FailError:            failError(m.ExitMessage),
		LastUpdated:          m.LastUpdated,
		Version:              m.Version,
	}, nil
}

func failError(msg sql.NullString) error {
	if !msg.Valid || msg.String == "" {
		return nil
	}
	return errors.New(msg.String)
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func exitStatus(err error) (sql.NullString, sql.NullString) {
	if err == nil {
		return sql.NullString{}, sql.NullString{}
	}
	return sql.NullString{String: minibatch.ErrorCode(err), Valid: true}, sql.NullString{String: err.Error(), Valid: true}
}
