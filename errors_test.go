package minibatch

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/bmizerany/assert"
)

func TestNewBatchError(t *testing.T) {
	err := NewBatchError(ErrCodeDbFail, "save step:%v failed", "step1", io.EOF)
	assert.Equal(t, ErrCodeDbFail, err.Code())
	assert.Equal(t, "save step:step1 failed", err.Message())
	assert.Equal(t, "BatchError[batch.db_fail]: save step:step1 failed, cause: EOF", err.Error())
	assert.T(t, errors.Is(err, io.EOF))

	plain := NewBatchError(ErrCodeConfig, "chunk size must be positive")
	assert.Equal(t, "BatchError[batch.config]: chunk size must be positive", plain.Error())
	assert.Equal(t, nil, errors.Unwrap(plain))
}

func TestErrorCode(t *testing.T) {
	pe := &ParseError{Line: 3, Raw: "Justin", Err: errors.New("expected 2 fields, got 1")}
	assert.Equal(t, ErrCodeParse, ErrorCode(pe))
	assert.Equal(t, ErrCodeParse, ErrorCode(fmt.Errorf("step failed: %w", pe)))
	assert.Equal(t, ErrCodeWrite, ErrorCode(&WriteError{Chunk: 2, Items: 10, Err: io.ErrUnexpectedEOF}))
	assert.Equal(t, ErrCodeTransform, ErrorCode(&TransformError{Item: "x", Reason: io.EOF}))
	assert.Equal(t, ErrCodeListener, ErrorCode(&ListenerError{Listener: "l", Phase: "AfterJob", Err: io.EOF}))
	assert.Equal(t, ErrCodeStopped, ErrorCode(NewBatchError(ErrCodeStopped, "stopped", io.EOF)))
	assert.Equal(t, ErrCodeGeneral, ErrorCode(errors.New("boom")))
}

func TestErrorMessages(t *testing.T) {
	pe := &ParseError{Line: 3, Raw: "Justin", Err: errors.New("expected 2 fields, got 1")}
	assert.Equal(t, `parse error at line 3 "Justin": expected 2 fields, got 1`, pe.Error())
	assert.Equal(t, "malformed line 3", pe.Message())

	we := &WriteError{Chunk: 2, Items: 10, Err: errors.New("duplicate key")}
	assert.Equal(t, "write error on chunk 2 (10 items): duplicate key", we.Error())
	assert.Equal(t, "chunk 2 with 10 items rolled back", we.Message())

	le := &ListenerError{Listener: "verify", Phase: "AfterJob", Err: errors.New("missing rows")}
	assert.Equal(t, "listener verify failed in AfterJob: missing rows", le.Error())
}
