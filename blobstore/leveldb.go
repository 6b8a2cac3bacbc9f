package blobstore

import (
	"github.com/go-errors/errors"
	"github.com/syndtr/goleveldb/leveldb"
	leveldb_errors "github.com/syndtr/goleveldb/leveldb/errors"
	"www.velocidex.com/golang/basilisk/config"
)

type LevelDBBlobStore struct {
	db *leveldb.DB
}

func NewLevelDBBlobStore(config_obj *config.Config) (*LevelDBBlobStore, error) {
	db, err := leveldb.OpenFile(config_obj.BlobStore.Location, nil)
	if err != nil {
		// A stale lock from a crashed process - try to recover.
		if leveldb_errors.IsCorrupted(err) {
			db, err = leveldb.RecoverFile(
				config_obj.BlobStore.Location, nil)
		}
		if err != nil {
			return nil, errors.Wrap(err, 0)
		}
	}

	return &LevelDBBlobStore{db: db}, nil
}

func (self *LevelDBBlobStore) Put(data []byte) (string, error) {
	id := NewBlobID()

	err := self.db.Put([]byte(id), data, nil)
	if err != nil {
		return "", errors.Wrap(err, 0)
	}

	return id, nil
}

func (self *LevelDBBlobStore) Get(id string) ([]byte, error) {
	data, err := self.db.Get([]byte(id), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	return data, nil
}

func (self *LevelDBBlobStore) Delete(id string) error {
	err := self.db.Delete([]byte(id), nil)
	if err != nil {
		return errors.Wrap(err, 0)
	}

	return nil
}

func (self *LevelDBBlobStore) Close() {
	self.db.Close()
}
