package files

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

const MD5 = "md5"

// Checksumer generates and verifies the checksum file of a data file. The
// checksum of "people.csv" is stored in "people.csv.md5".
type Checksumer interface {
	Checksum(fd FileObjectModel) error
	Verify(fd FileObjectModel) (bool, error)
}

var checksumers = map[string]Checksumer{
	MD5: &md5Checksumer{},
}

// GetChecksumer returns the Checksumer registered as name, nil if unknown
func GetChecksumer(name string) Checksumer {
	return checksumers[strings.ToLower(name)]
}

type md5Checksumer struct{}

func (c *md5Checksumer) sum(fd FileObjectModel) (string, error) {
	// raw bytes, no charset decoding
	r, err := fd.FileStore.Open(fd.FileName, "")
	if err != nil {
		return "", err
	}
	defer r.Close()
	h := md5.New()
	if _, err = io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (c *md5Checksumer) Checksum(fd FileObjectModel) error {
	sum, err := c.sum(fd)
	if err != nil {
		return err
	}
	w, err := fd.FileStore.Create(fd.FileName+"."+MD5, "")
	if err != nil {
		return err
	}
	if _, err = io.WriteString(w, sum); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (c *md5Checksumer) Verify(fd FileObjectModel) (bool, error) {
	r, err := fd.FileStore.Open(fd.FileName+"."+MD5, "")
	if err != nil {
		return false, fmt.Errorf("open checksum file of %v: %w", fd.FileName, err)
	}
	expected, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return false, err
	}
	// accept md5sum output: "<hex>  <file name>"
	fields := strings.Fields(string(expected))
	if len(fields) == 0 {
		return false, fmt.Errorf("empty checksum file of %v", fd.FileName)
	}
	actual, err := c.sum(fd)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(fields[0], actual), nil
}
