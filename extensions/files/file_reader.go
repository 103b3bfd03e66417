package files

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chararch/minibatch"
)

const (
	// fileItemReaderLineKey holds the number of lines consumed up to the last
	// committed chunk
	fileItemReaderLineKey     = "files.FileItemReader.line"
	fileItemReaderFileNameKey = "files.FileItemReader.fileName"
)

// ErrBlankLine is the cause of the ParseError reported for an empty line
var ErrBlankLine = errors.New("blank line")

// LineMapper maps the fields of one line to an item
type LineMapper[T any] func(fields []string) (T, error)

// Reader reads the lines of a delimited text file in order and maps each one
// to an item. Line numbers start at 1 and include the header line.
type Reader[T any] struct {
	fd     FileObjectModel
	mapper LineMapper[T]

	file io.ReadCloser
	buf  *bufio.Reader
	line int64
}

var (
	_ minibatch.OpenCloser   = (*Reader[string])(nil)
	_ minibatch.Checkpointer = (*Reader[string])(nil)
)

func NewReader[T any](fd FileObjectModel, mapper LineMapper[T]) *Reader[T] {
	if fd.FileStore == nil {
		fd.FileStore = &LocalFileSystem{}
	}
	if mapper == nil {
		panic("no LineMapper specified")
	}
	return &Reader[T]{fd: fd, mapper: mapper}
}

// Open opens the file, verifies its checksum and, for a resumed step, skips
// the lines consumed by the committed chunks of the failed run.
func (r *Reader[T]) Open(ctx context.Context, execution *minibatch.StepExecution) error {
	fd := r.fd
	fp := &FilePath{fd.FileName}
	fileName, err := fp.Format(execution)
	if err != nil {
		return minibatch.NewBatchError(minibatch.ErrCodeConfig, "get real file path:%v err", fd.FileName, err)
	}
	fd.FileName = fileName
	if fd.Checksum != "" {
		checksumer := GetChecksumer(fd.Checksum)
		if checksumer == nil {
			return minibatch.NewBatchError(minibatch.ErrCodeConfig, "unknown checksum:%v", fd.Checksum)
		}
		ok, err := checksumer.Verify(fd)
		if err != nil {
			return minibatch.NewBatchError(minibatch.ErrCodeGeneral, "verify file checksum:%v err", fd, err)
		}
		if !ok {
			return minibatch.NewBatchError(minibatch.ErrCodeGeneral, "checksum mismatch of file:%v", fd.FileName)
		}
	}
	file, err := fd.FileStore.Open(fd.FileName, fd.Encoding)
	if err != nil {
		return minibatch.NewBatchError(minibatch.ErrCodeGeneral, "open file reader:%v err", fd, err)
	}
	r.file = file
	r.buf = bufio.NewReader(file)
	r.line = 0
	execution.StepExecutionContext.Put(fileItemReaderFileNameKey, fd.FileName)

	skip, _ := execution.StepExecutionContext.GetInt64(fileItemReaderLineKey)
	if skip == 0 && fd.Header {
		skip = 1
	}
	for r.line < skip {
		if _, err := r.readLine(); err != nil {
			return minibatch.NewBatchError(minibatch.ErrCodeGeneral, "skip to line:%v of file:%v err", skip, fd.FileName, err)
		}
	}
	if skip > 0 {
		minibatch.DefaultLogger.Info(ctx, "file:%v opened at line:%d", fd.FileName, skip+1)
	}
	return nil
}

func (r *Reader[T]) readLine() (string, error) {
	s, err := r.buf.ReadString('\n')
	if err == io.EOF && s != "" {
		err = nil
	}
	if err != nil {
		return "", err
	}
	r.line++
	return strings.TrimRight(s, "\r\n"), nil
}

func (r *Reader[T]) Read(ctx context.Context, chunkCtx *minibatch.ChunkContext) (T, error) {
	var zero T
	if r.buf == nil {
		return zero, errors.New("file reader is not open")
	}
	raw, err := r.readLine()
	if err != nil {
		return zero, err
	}
	if strings.TrimSpace(raw) == "" {
		return zero, &minibatch.ParseError{Line: r.line, Raw: raw, Err: ErrBlankLine}
	}
	cr := csv.NewReader(strings.NewReader(raw))
	cr.Comma = r.fd.delimiter()
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	fields, err := cr.Read()
	if err != nil {
		return zero, &minibatch.ParseError{Line: r.line, Raw: raw, Err: err}
	}
	item, err := r.mapper(fields)
	if err != nil {
		return zero, &minibatch.ParseError{Line: r.line, Raw: raw, Err: err}
	}
	return item, nil
}

// Checkpoint records the lines consumed so far. It is called right after a
// commit, when every consumed line belongs to a committed chunk.
func (r *Reader[T]) Checkpoint(execution *minibatch.StepExecution) {
	execution.StepExecutionContext.Put(fileItemReaderLineKey, r.line)
}

func (r *Reader[T]) Close(ctx context.Context, execution *minibatch.StepExecution) error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file, r.buf = nil, nil
	if err != nil {
		fileName, _ := execution.StepExecutionContext.GetString(fileItemReaderFileNameKey)
		return minibatch.NewBatchError(minibatch.ErrCodeGeneral, "close file reader:%v err", fileName, err)
	}
	return nil
}

// FieldCount returns a LineMapper checking the number of fields before
// calling mapper.
func FieldCount[T any](n int, mapper LineMapper[T]) LineMapper[T] {
	return func(fields []string) (T, error) {
		if len(fields) != n {
			var zero T
			return zero, &fieldCountError{expected: n, actual: len(fields)}
		}
		return mapper(fields)
	}
}

type fieldCountError struct {
	expected, actual int
}

func (e *fieldCountError) Error() string {
	return fmt.Sprintf("expected %d fields, got %d", e.expected, e.actual)
}
