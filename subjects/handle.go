package subjects

import (
	"encoding/hex"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-errors/errors"
	"www.velocidex.com/golang/basilisk/config"
	"www.velocidex.com/golang/basilisk/file_store/api"
	"www.velocidex.com/golang/basilisk/utils"
)

// A Handle gives scale code a local filesystem path for a subject's
// bytes, whatever the file store backend. The bytes are materialized
// into a private staging directory which Close removes.
type Handle struct {
	Subject *Subject

	file_path   string
	staging_dir string
}

func NewHandle(
	config_obj *config.Config,
	files api.FileStore,
	subject *Subject) (*Handle, error) {

	staging_dir, err := utils.TempDirectory(
		config_obj.CacheDirectory, "subject")
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	reader, err := files.Open(subject.Sha256Digest)
	if err != nil {
		os.RemoveAll(staging_dir)
		return nil, err
	}
	defer reader.Close()

	file_path := filepath.Join(staging_dir, subject.Sha256Digest)
	fd, err := os.OpenFile(file_path,
		os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		os.RemoveAll(staging_dir)
		return nil, errors.Wrap(err, 0)
	}

	_, err = io.Copy(fd, reader)
	fd.Close()
	if err != nil {
		os.RemoveAll(staging_dir)
		return nil, errors.Wrap(err, 0)
	}

	return &Handle{
		Subject:     subject,
		file_path:   file_path,
		staging_dir: staging_dir,
	}, nil
}

func (self *Handle) LocalPath() string {
	return self.file_path
}

func (self *Handle) Close() {
	if self.staging_dir != "" {
		os.RemoveAll(self.staging_dir)
		self.staging_dir = ""
	}
}

// Hexdump renders up to length bytes starting at offset as canonical
// hexdump rows.
func (self *Handle) Hexdump(offset int64, length int) ([]string, error) {
	fd, err := os.Open(self.file_path)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	defer fd.Close()

	_, err = fd.Seek(offset, io.SeekStart)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	data, err := ioutil.ReadAll(io.LimitReader(fd, int64(length)))
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	dump := strings.TrimRight(hex.Dump(data), "\n")
	if dump == "" {
		return nil, nil
	}

	return strings.Split(dump, "\n"), nil
}
