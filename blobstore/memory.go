package blobstore

import "sync"

// A memory blob store for tests.
type MemoryBlobStore struct {
	mu sync.Mutex

	Data map[string][]byte
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{
		Data: make(map[string][]byte),
	}
}

func (self *MemoryBlobStore) Put(data []byte) (string, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	id := NewBlobID()
	stored := make([]byte, len(data))
	copy(stored, data)
	self.Data[id] = stored

	return id, nil
}

func (self *MemoryBlobStore) Get(id string) ([]byte, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	data, pres := self.Data[id]
	if !pres {
		return nil, ErrNotFound
	}

	return data, nil
}

func (self *MemoryBlobStore) Delete(id string) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	delete(self.Data, id)
	return nil
}

func (self *MemoryBlobStore) Close() {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.Data = make(map[string][]byte)
}
