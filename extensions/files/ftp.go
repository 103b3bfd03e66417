package files

import (
	"fmt"
	"io"
	"time"

	"github.com/jlaffaye/ftp"
)

// FTPFileSystem reads and writes files on an FTP server. Every Open or Create
// uses its own connection, closed with the returned file.
type FTPFileSystem struct {
	Host        string
	Port        int
	User        string
	Password    string
	ConnTimeout time.Duration
}

func (fs *FTPFileSystem) connect() (*ftp.ServerConn, error) {
	timeout := fs.ConnTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	port := fs.Port
	if port == 0 {
		port = 21
	}
	conn, err := ftp.Dial(fmt.Sprintf("%s:%d", fs.Host, port), ftp.DialWithTimeout(timeout))
	if err != nil {
		return nil, err
	}
	if err = conn.Login(fs.User, fs.Password); err != nil {
		conn.Quit()
		return nil, err
	}
	return conn, nil
}

func (fs *FTPFileSystem) Exists(fileName string) (bool, error) {
	conn, err := fs.connect()
	if err != nil {
		return false, err
	}
	defer conn.Quit()
	names, err := conn.NameList(fileName)
	if err != nil {
		// servers answer 550 for a missing path
		return false, nil
	}
	return len(names) > 0, nil
}

func (fs *FTPFileSystem) Open(fileName string, encoding string) (io.ReadCloser, error) {
	conn, err := fs.connect()
	if err != nil {
		return nil, err
	}
	resp, err := conn.Retr(fileName)
	if err != nil {
		conn.Quit()
		return nil, err
	}
	return decodeReader(&readCloser{Reader: resp, Closer: closerFunc(func() error {
		err := resp.Close()
		if e := conn.Quit(); err == nil {
			err = e
		}
		return err
	})}, encoding)
}

func (fs *FTPFileSystem) Create(fileName string, encoding string) (io.WriteCloser, error) {
	conn, err := fs.connect()
	if err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	stored := make(chan error, 1)
	go func() {
		err := conn.Stor(fileName, pr)
		pr.CloseWithError(err)
		stored <- err
	}()
	return encodeWriter(&writeCloser{Writer: pw, Closer: closerFunc(func() error {
		pw.Close()
		err := <-stored
		if e := conn.Quit(); err == nil {
			err = e
		}
		return err
	})}, encoding)
}
