// An in memory file store for tests.
package memory

import (
	"bytes"
	"io"
	"io/ioutil"
	"sync"

	"github.com/go-errors/errors"
	"www.velocidex.com/golang/basilisk/file_store/api"
)

type MemoryFileStore struct {
	mu sync.Mutex

	Data map[string][]byte
}

func NewMemoryFileStore() *MemoryFileStore {
	return &MemoryFileStore{
		Data: make(map[string][]byte),
	}
}

func (self *MemoryFileStore) Put(
	sha256_digest string, reader io.Reader) error {

	self.mu.Lock()
	defer self.mu.Unlock()

	_, pres := self.Data[sha256_digest]
	if pres {
		return nil
	}

	data, err := ioutil.ReadAll(reader)
	if err != nil {
		return errors.Wrap(err, 0)
	}

	self.Data[sha256_digest] = data
	return nil
}

func (self *MemoryFileStore) Open(
	sha256_digest string) (api.FileReader, error) {

	self.mu.Lock()
	defer self.mu.Unlock()

	data, pres := self.Data[sha256_digest]
	if !pres {
		return nil, errors.New("file not found")
	}

	return &memoryReader{Reader: bytes.NewReader(data)}, nil
}

func (self *MemoryFileStore) Size(sha256_digest string) (int64, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	data, pres := self.Data[sha256_digest]
	if !pres {
		return 0, errors.New("file not found")
	}

	return int64(len(data)), nil
}

func (self *MemoryFileStore) Exists(sha256_digest string) bool {
	self.mu.Lock()
	defer self.mu.Unlock()

	_, pres := self.Data[sha256_digest]
	return pres
}

func (self *MemoryFileStore) Delete(sha256_digest string) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	delete(self.Data, sha256_digest)
	return nil
}

type memoryReader struct {
	*bytes.Reader
}

func (self *memoryReader) Close() error {
	return nil
}
