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
// A document oriented interface into persistent metadata storage.
package datastore

import (
	"fmt"
	"sync"

	"github.com/Velocidex/ordereddict"
	"github.com/go-errors/errors"
	"www.velocidex.com/golang/basilisk/config"
)

var (
	mu sync.Mutex

	// Cached datastore for the process - the filebased datastore is
	// safe for concurrent use.
	g_impl DataStore

	ErrNotFound = errors.New("document not found")
)

type SortingSense int

const (
	UNSORTED  = SortingSense(0)
	SORT_UP   = SortingSense(1)
	SORT_DOWN = SortingSense(2)
)

// A Filter matches documents by exact field value. All fields must
// match. Numeric values compare by value not representation (an int
// filter matches a float64 stored by the JSON round trip).
type Filter map[string]interface{}

type DataStore interface {
	// Insert stores a new document and returns its storage id.
	Insert(collection string, doc *ordereddict.Dict) (string, error)

	// Find returns the first matching document or ErrNotFound.
	Find(collection string, filter Filter) (*ordereddict.Dict, error)

	// FindAll returns every matching document, optionally sorted by
	// the named field.
	FindAll(collection string, filter Filter,
		sort_field string, sense SortingSense) ([]*ordereddict.Dict, error)

	// Update sets the given fields on the first matching document.
	Update(collection string, filter Filter, fields *ordereddict.Dict) error

	// Replace atomically swaps the first matching document for the
	// new one. The new document keeps the old storage id.
	Replace(collection string, filter Filter, doc *ordereddict.Dict) error

	Delete(collection string, filter Filter) error

	Close()
}

func GetDataStore(config_obj *config.Config) (DataStore, error) {
	mu.Lock()
	defer mu.Unlock()

	if g_impl != nil {
		return g_impl, nil
	}

	if config_obj.Datastore == nil {
		return nil, errors.New("no datastore configured")
	}

	switch config_obj.Datastore.Implementation {
	case "FileBaseDataStore":
		impl, err := NewFileBaseDataStore(config_obj)
		if err != nil {
			return nil, err
		}
		g_impl = impl
		return g_impl, nil

	case "MemcacheDataStore":
		g_impl = NewMemoryDataStore()
		return g_impl, nil

	default:
		return nil, fmt.Errorf("unsupported datastore %v",
			config_obj.Datastore.Implementation)
	}
}

// SetGlobalDataStore is only used in tests to inject a memory
// datastore.
func SetGlobalDataStore(impl DataStore) {
	mu.Lock()
	defer mu.Unlock()

	g_impl = impl
}

// matchFilter reports if the document satisfies every field of the
// filter.
func matchFilter(doc *ordereddict.Dict, filter Filter) bool {
	for field, expected := range filter {
		value, pres := doc.Get(field)
		if !pres {
			return false
		}

		if !equalValues(value, expected) {
			return false
		}
	}
	return true
}

// equalValues compares scalars across the numeric type variations a
// JSON round trip introduces.
func equalValues(a, b interface{}) bool {
	a_num, a_ok := toFloat(a)
	b_num, b_ok := toFloat(b)
	if a_ok && b_ok {
		return a_num == b_num
	}

	return a == b
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

// compareDocs orders two documents by the sort field. Missing fields
// sort first.
func compareDocs(a, b *ordereddict.Dict, sort_field string) bool {
	a_val, a_pres := a.Get(sort_field)
	b_val, b_pres := b.Get(sort_field)

	if !a_pres {
		return true
	}
	if !b_pres {
		return false
	}

	a_num, a_ok := toFloat(a_val)
	b_num, b_ok := toFloat(b_val)
	if a_ok && b_ok {
		return a_num < b_num
	}

	return fmt.Sprintf("%v", a_val) < fmt.Sprintf("%v", b_val)
}
