/*
   Basilisk - Binary Analysis Artifact Store
   Copyright (C) 2026 Velocidex Innovations.

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU Affero General Public License as published
   by the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU Affero General Public License for more details.

   You should have received a copy of the GNU Affero General Public License
   along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Command outputs are stored out of band as opaque blobs, keyed by a
// generated id which the owning record carries.
package blobstore

import (
	"fmt"
	"sync"

	"github.com/Velocidex/ordereddict"
	"github.com/go-errors/errors"
	"github.com/google/uuid"
	"www.velocidex.com/golang/basilisk/config"
	"www.velocidex.com/golang/basilisk/json"
)

var (
	mu     sync.Mutex
	g_impl BlobStore

	ErrNotFound = errors.New("blob not found")
)

type BlobStore interface {
	// Put stores the blob and returns its new id. Blobs are never
	// updated in place.
	Put(data []byte) (string, error)

	Get(id string) ([]byte, error)

	Delete(id string) error

	Close()
}

func GetBlobStore(config_obj *config.Config) (BlobStore, error) {
	mu.Lock()
	defer mu.Unlock()

	if g_impl != nil {
		return g_impl, nil
	}

	if config_obj.BlobStore == nil {
		return nil, errors.New("no blob store configured")
	}

	var err error
	switch config_obj.BlobStore.Implementation {
	case "leveldb":
		g_impl, err = NewLevelDBBlobStore(config_obj)

	case "memory":
		g_impl = NewMemoryBlobStore()

	default:
		return nil, fmt.Errorf("unsupported blob store %v",
			config_obj.BlobStore.Implementation)
	}

	if err != nil {
		g_impl = nil
		return nil, err
	}

	return g_impl, nil
}

// SetGlobalBlobStore is only used in tests.
func SetGlobalBlobStore(impl BlobStore) {
	mu.Lock()
	defer mu.Unlock()

	g_impl = impl
}

func NewBlobID() string {
	return uuid.New().String()
}

// PutDict stores a structured output as canonical JSON.
func PutDict(store BlobStore, dict *ordereddict.Dict) (string, error) {
	serialized, err := json.Marshal(dict)
	if err != nil {
		return "", errors.Wrap(err, 0)
	}

	return store.Put(serialized)
}

// GetDict loads a structured output back. Blobs written by PutDict
// always decode; blobs holding a JSON list come back under the
// "rows" key.
func GetDict(store BlobStore, id string) (*ordereddict.Dict, error) {
	data, err := store.Get(id)
	if err != nil {
		return nil, err
	}

	result := ordereddict.NewDict()
	err = result.UnmarshalJSON(data)
	if err == nil {
		return result, nil
	}

	var rows []interface{}
	err = json.Unmarshal(data, &rows)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	return ordereddict.NewDict().Set("rows", rows), nil
}
