package minibatch

import (
	"fmt"

	"github.com/pkg/errors"
)

// error codes
const (
	ErrCodeGeneral   = "batch.general"
	ErrCodeConfig    = "batch.config"
	ErrCodeDbFail    = "batch.db_fail"
	ErrCodeStopped   = "batch.stopped"
	ErrCodeParse     = "batch.parse"
	ErrCodeTransform = "batch.transform"
	ErrCodeWrite     = "batch.write"
	ErrCodeListener  = "batch.listener"
	ErrCodeRunning   = "batch.job_running"
)

// BatchError is the error type surfaced by the engine. Every error kind the
// chunk step can abort with implements it.
type BatchError interface {
	error
	Code() string
	Message() string
}

type batchError struct {
	code string
	msg  string
	err  error
}

// NewBatchError create a BatchError. If the last argument is an error it is
// taken as the cause, the remaining arguments format msg.
func NewBatchError(code string, msg string, args ...interface{}) BatchError {
	var cause error
	values := args
	if len(values) > 0 {
		if err, ok := values[len(values)-1].(error); ok {
			cause = err
			values = values[:len(values)-1]
		}
	}
	if len(values) > 0 {
		msg = fmt.Sprintf(msg, values...)
	}
	be := &batchError{code: code, msg: msg}
	if cause != nil {
		be.err = errors.WithStack(cause)
	}
	return be
}

func (e *batchError) Code() string {
	return e.code
}

func (e *batchError) Message() string {
	return e.msg
}

func (e *batchError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("BatchError[%s]: %s, cause: %v", e.code, e.msg, e.err)
	}
	return fmt.Sprintf("BatchError[%s]: %s", e.code, e.msg)
}

func (e *batchError) Unwrap() error {
	return e.err
}

// Format prints the cause's stack trace with %+v.
func (e *batchError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') && e.err != nil {
		fmt.Fprintf(s, "BatchError[%s]: %s, cause: %+v", e.code, e.msg, e.err)
		return
	}
	fmt.Fprint(s, e.Error())
}

// ParseError is returned by a Reader when one input line can not be mapped to
// an item.
type ParseError struct {
	Line int64
	Raw  string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d %q: %v", e.Line, e.Raw, e.Err)
}

func (e *ParseError) Unwrap() error   { return e.Err }
func (e *ParseError) Code() string    { return ErrCodeParse }
func (e *ParseError) Message() string { return fmt.Sprintf("malformed line %d", e.Line) }

// TransformError carries the item a Processor rejected.
type TransformError struct {
	Item   interface{}
	Reason error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform error on item %+v: %v", e.Item, e.Reason)
}

func (e *TransformError) Unwrap() error   { return e.Reason }
func (e *TransformError) Code() string    { return ErrCodeTransform }
func (e *TransformError) Message() string { return fmt.Sprintf("can not transform item %+v", e.Item) }

// WriteError reports a chunk whose transaction was rolled back. None of its
// items are persisted.
type WriteError struct {
	Chunk int64
	Items int
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write error on chunk %d (%d items): %v", e.Chunk, e.Items, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
func (e *WriteError) Code() string  { return ErrCodeWrite }
func (e *WriteError) Message() string {
	return fmt.Sprintf("chunk %d with %d items rolled back", e.Chunk, e.Items)
}

// ListenerError is recorded on a JobExecution when a listener fails. It never
// changes the job status.
type ListenerError struct {
	Listener string
	Phase    string
	Err      error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("listener %s failed in %s: %v", e.Listener, e.Phase, e.Err)
}

func (e *ListenerError) Unwrap() error   { return e.Err }
func (e *ListenerError) Code() string    { return ErrCodeListener }
func (e *ListenerError) Message() string { return fmt.Sprintf("listener %s failed in %s", e.Listener, e.Phase) }

// ErrorCode returns the code of the first BatchError in err's chain, or
// ErrCodeGeneral.
func ErrorCode(err error) string {
	var be BatchError
	if errors.As(err, &be) {
		return be.Code()
	}
	return ErrCodeGeneral
}
