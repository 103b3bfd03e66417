package files

import (
	"context"
	"io"

	"github.com/chararch/minibatch"
)

// FileMove is one file to copy from a store to another
type FileMove struct {
	FromFileName  string
	FromFileStore FileStore
	ToFileName    string
	ToFileStore   FileStore
	// Checksum names a checksum file copied along with the data file
	Checksum string
}

// NewCopier returns a step handler copying files, e.g. to stage a remote input
// file locally before it is read. Bytes are copied as is.
func NewCopier(filesToMove ...FileMove) minibatch.Handler {
	return &fileCopyHandler{filesToMove: filesToMove}
}

type fileCopyHandler struct {
	filesToMove []FileMove
}

func (handler *fileCopyHandler) Handle(ctx context.Context, execution *minibatch.StepExecution) error {
	for _, fm := range handler.filesToMove {
		ffp := &FilePath{fm.FromFileName}
		fromFileName, err := ffp.Format(execution)
		if err != nil {
			return minibatch.NewBatchError(minibatch.ErrCodeConfig, "get real file path:%v err", fm.FromFileName, err)
		}
		tfp := &FilePath{fm.ToFileName}
		toFileName, err := tfp.Format(execution)
		if err != nil {
			return minibatch.NewBatchError(minibatch.ErrCodeConfig, "get real file path:%v err", fm.ToFileName, err)
		}
		if err = copyFile(ctx, fm.FromFileStore, fromFileName, fm.ToFileStore, toFileName); err != nil {
			return err
		}
		if fm.Checksum != "" {
			suffix := "." + fm.Checksum
			if err = copyFile(ctx, fm.FromFileStore, fromFileName+suffix, fm.ToFileStore, toFileName+suffix); err != nil {
				return err
			}
		}
		minibatch.DefaultLogger.Info(ctx, "file copied: %v -> %v", fromFileName, toFileName)
	}
	return nil
}

func copyFile(ctx context.Context, from FileStore, fromFileName string, to FileStore, toFileName string) error {
	reader, err := from.Open(fromFileName, "")
	if err != nil {
		return minibatch.NewBatchError(minibatch.ErrCodeGeneral, "open from file:%v err", fromFileName, err)
	}
	writer, err := to.Create(toFileName, "")
	if err != nil {
		if er := reader.Close(); er != nil {
			minibatch.DefaultLogger.Error(ctx, "close file reader:%v error:%v", fromFileName, er)
		}
		return minibatch.NewBatchError(minibatch.ErrCodeGeneral, "open to file:%v err", toFileName, err)
	}

	_, err = io.Copy(writer, reader)

	if er := reader.Close(); er != nil {
		minibatch.DefaultLogger.Error(ctx, "close file reader:%v error:%v", fromFileName, er)
	}
	if er := writer.Close(); er != nil && err == nil {
		err = er
	}
	if err != nil {
		return minibatch.NewBatchError(minibatch.ErrCodeGeneral, "copy file: %v -> %v error", fromFileName, toFileName, err)
	}
	return nil
}
