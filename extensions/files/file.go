package files

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/chararch/minibatch"
)

// FileObjectModel describes a delimited text file
type FileObjectModel struct {
	FileStore FileStore
	// FileName may contain {param} placeholders replaced by job parameters
	FileName string
	// Delimiter defaults to ','
	Delimiter rune
	// Header skips the first line
	Header bool
	// Encoding is a WHATWG encoding label, utf-8 if empty
	Encoding string
	// Checksum names the checksum verified before reading, e.g. "md5"
	Checksum string
}

func (fd FileObjectModel) String() string {
	return fmt.Sprintf("FileObjectModel{FileName:%v, Encoding:%v, Checksum:%v}", fd.FileName, fd.Encoding, fd.Checksum)
}

func (fd FileObjectModel) delimiter() rune {
	if fd.Delimiter == 0 {
		return ','
	}
	return fd.Delimiter
}

// FileStore opens and creates files by name
type FileStore interface {
	Exists(fileName string) (bool, error)
	Open(fileName string, encoding string) (io.ReadCloser, error)
	Create(fileName string, encoding string) (io.WriteCloser, error)
}

var placeholder = regexp.MustCompile(`\{([^{}]+)\}`)

// FilePath resolves {param} placeholders of a file name pattern against the
// job parameters of an execution, e.g. "rejects-{run.id}.txt".
type FilePath struct {
	NamePattern string
}

func (f *FilePath) Format(execution *minibatch.StepExecution) (string, error) {
	var missing []string
	name := placeholder.ReplaceAllStringFunc(f.NamePattern, func(m string) string {
		key := m[1 : len(m)-1]
		if execution == nil || execution.JobExecution == nil {
			missing = append(missing, key)
			return m
		}
		v, ok := execution.JobExecution.JobParams.Typed[key]
		if !ok {
			missing = append(missing, key)
			return m
		}
		if fv, isFloat := v.(float64); isFloat && fv == float64(int64(fv)) {
			return fmt.Sprint(int64(fv))
		}
		return fmt.Sprint(v)
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("no job parameter for %v in file name:%v", strings.Join(missing, ","), f.NamePattern)
	}
	return name, nil
}

// LocalFileSystem stores files on the local disk
type LocalFileSystem struct{}

func (fs *LocalFileSystem) Exists(fileName string) (bool, error) {
	_, err := os.Stat(fileName)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (fs *LocalFileSystem) Open(fileName string, encoding string) (io.ReadCloser, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	return decodeReader(f, encoding)
}

func (fs *LocalFileSystem) Create(fileName string, encoding string) (io.WriteCloser, error) {
	if dir := filepath.Dir(fileName); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(fileName)
	if err != nil {
		return nil, err
	}
	return encodeWriter(f, encoding)
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", name, err)
	}
	return enc, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

type writeCloser struct {
	io.Writer
	io.Closer
}

func decodeReader(rc io.ReadCloser, encoding string) (io.ReadCloser, error) {
	enc, err := lookupEncoding(encoding)
	if err != nil {
		rc.Close()
		return nil, err
	}
	if enc == nil {
		return rc, nil
	}
	return &readCloser{Reader: transform.NewReader(rc, enc.NewDecoder()), Closer: rc}, nil
}

func encodeWriter(wc io.WriteCloser, encoding string) (io.WriteCloser, error) {
	enc, err := lookupEncoding(encoding)
	if err != nil {
		wc.Close()
		return nil, err
	}
	if enc == nil {
		return wc, nil
	}
	tw := transform.NewWriter(wc, enc.NewEncoder())
	return &writeCloser{Writer: tw, Closer: closerFunc(func() error {
		err := tw.Close()
		if e := wc.Close(); err == nil {
			err = e
		}
		return err
	})}, nil
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}
