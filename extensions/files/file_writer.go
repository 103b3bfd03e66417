package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/chararch/minibatch"
)

// RejectWriter is a step and skip listener writing every skipped line to a
// reject file: the raw text of malformed lines, the item of rejected
// transforms. The file is created when the step starts, an empty file means
// nothing was skipped.
type RejectWriter struct {
	fd FileObjectModel

	mu       sync.Mutex
	w        io.WriteCloser
	fileName string
	count    int64
}

var (
	_ minibatch.StepListener = (*RejectWriter)(nil)
	_ minibatch.SkipListener = (*RejectWriter)(nil)
)

func NewRejectWriter(fd FileObjectModel) *RejectWriter {
	if fd.FileStore == nil {
		fd.FileStore = &LocalFileSystem{}
	}
	return &RejectWriter{fd: fd}
}

func (w *RejectWriter) Name() string {
	return "RejectWriter"
}

func (w *RejectWriter) BeforeStep(ctx context.Context, execution *minibatch.StepExecution) error {
	fp := &FilePath{w.fd.FileName}
	fileName, err := fp.Format(execution)
	if err != nil {
		return err
	}
	handle, err := w.fd.FileStore.Create(fileName, w.fd.Encoding)
	if err != nil {
		return fmt.Errorf("open reject file:%v err: %w", fileName, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.w, w.fileName, w.count = handle, fileName, 0
	return nil
}

func (w *RejectWriter) OnSkip(ctx context.Context, execution *minibatch.StepExecution, err error) {
	var line string
	var pe *minibatch.ParseError
	var te *minibatch.TransformError
	switch {
	case errors.As(err, &pe):
		line = pe.Raw
	case errors.As(err, &te):
		line = fmt.Sprint(te.Item)
	default:
		line = err.Error()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return
	}
	if _, e := io.WriteString(w.w, line+"\n"); e != nil {
		minibatch.DefaultLogger.Error(ctx, "write reject file:%v err:%v", w.fileName, e)
		return
	}
	w.count++
}

func (w *RejectWriter) AfterStep(ctx context.Context, execution *minibatch.StepExecution) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	err := w.w.Close()
	w.w = nil
	if err != nil {
		return fmt.Errorf("close reject file:%v err: %w", w.fileName, err)
	}
	if w.count > 0 {
		minibatch.DefaultLogger.Warn(ctx, "%d rejected lines written to %v", w.count, w.fileName)
	}
	if w.fd.Checksum != "" {
		if checksumer := GetChecksumer(w.fd.Checksum); checksumer != nil {
			fd := w.fd
			fd.FileName = w.fileName
			if err = checksumer.Checksum(fd); err != nil {
				return fmt.Errorf("generate checksum of reject file:%v err: %w", w.fileName, err)
			}
		}
	}
	return nil
}

// Count returns the number of lines written since the step started
func (w *RejectWriter) Count() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}
