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

// The file based datastore stores each document as a JSON file under
// <location>/<collection>/<id>.json. Documents are atomically
// replaced by writing to a temp file and renaming over the original.
package datastore

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Velocidex/ordereddict"
	"github.com/go-errors/errors"
	"github.com/google/uuid"
	"www.velocidex.com/golang/basilisk/config"
)

type FileBaseDataStore struct {
	mu sync.Mutex

	location string
}

func NewFileBaseDataStore(config_obj *config.Config) (*FileBaseDataStore, error) {
	location := config_obj.Datastore.Location
	err := os.MkdirAll(location, 0700)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	return &FileBaseDataStore{location: location}, nil
}

func (self *FileBaseDataStore) Insert(
	collection string, doc *ordereddict.Dict) (string, error) {
	defer Instrument("insert", "FileBaseDataStore", collection)()

	self.mu.Lock()
	defer self.mu.Unlock()

	id := uuid.New().String()
	doc.Set("_id", id)

	err := self.writeDocument(collection, id, doc)
	if err != nil {
		return "", err
	}

	return id, nil
}

func (self *FileBaseDataStore) Find(
	collection string, filter Filter) (*ordereddict.Dict, error) {
	defer Instrument("find", "FileBaseDataStore", collection)()

	self.mu.Lock()
	defer self.mu.Unlock()

	docs, err := self.scan(collection, filter)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}

	return docs[0], nil
}

func (self *FileBaseDataStore) FindAll(
	collection string, filter Filter,
	sort_field string, sense SortingSense) ([]*ordereddict.Dict, error) {
	defer Instrument("find_all", "FileBaseDataStore", collection)()

	self.mu.Lock()
	defer self.mu.Unlock()

	docs, err := self.scan(collection, filter)
	if err != nil {
		return nil, err
	}

	if sense != UNSORTED && sort_field != "" {
		sort.SliceStable(docs, func(i, j int) bool {
			if sense == SORT_DOWN {
				return compareDocs(docs[j], docs[i], sort_field)
			}
			return compareDocs(docs[i], docs[j], sort_field)
		})
	}

	return docs, nil
}

func (self *FileBaseDataStore) Update(
	collection string, filter Filter, fields *ordereddict.Dict) error {
	defer Instrument("update", "FileBaseDataStore", collection)()

	self.mu.Lock()
	defer self.mu.Unlock()

	docs, err := self.scan(collection, filter)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return ErrNotFound
	}

	doc := docs[0]
	for _, field := range fields.Keys() {
		value, _ := fields.Get(field)
		doc.Update(field, value)
	}

	id, _ := doc.GetString("_id")
	return self.writeDocument(collection, id, doc)
}

func (self *FileBaseDataStore) Replace(
	collection string, filter Filter, doc *ordereddict.Dict) error {
	defer Instrument("replace", "FileBaseDataStore", collection)()

	self.mu.Lock()
	defer self.mu.Unlock()

	docs, err := self.scan(collection, filter)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return ErrNotFound
	}

	// The replacement keeps the storage id of the old document.
	id, _ := docs[0].GetString("_id")
	doc.Update("_id", id)

	return self.writeDocument(collection, id, doc)
}

func (self *FileBaseDataStore) Delete(
	collection string, filter Filter) error {
	defer Instrument("delete", "FileBaseDataStore", collection)()

	self.mu.Lock()
	defer self.mu.Unlock()

	docs, err := self.scan(collection, filter)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return ErrNotFound
	}

	id, _ := docs[0].GetString("_id")
	err = os.Remove(self.documentPath(collection, id))
	if err != nil {
		return errors.Wrap(err, 0)
	}

	return nil
}

func (self *FileBaseDataStore) Close() {}

func (self *FileBaseDataStore) documentPath(collection, id string) string {
	return filepath.Join(self.location, collection, id+".json")
}

func (self *FileBaseDataStore) writeDocument(
	collection, id string, doc *ordereddict.Dict) error {

	dirname := filepath.Join(self.location, collection)
	err := os.MkdirAll(dirname, 0700)
	if err != nil {
		return errors.Wrap(err, 0)
	}

	serialized, err := doc.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, 0)
	}

	tmp, err := ioutil.TempFile(dirname, "tmp")
	if err != nil {
		return errors.Wrap(err, 0)
	}

	_, err = tmp.Write(serialized)
	tmp.Close()
	if err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, 0)
	}

	// Rename is atomic on the same filesystem so readers never see a
	// half written document.
	err = os.Rename(tmp.Name(), self.documentPath(collection, id))
	if err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, 0)
	}

	return nil
}

// scan reads every document in the collection and returns the ones
// matching the filter, in stable filename order.
func (self *FileBaseDataStore) scan(
	collection string, filter Filter) ([]*ordereddict.Dict, error) {

	dirname := filepath.Join(self.location, collection)
	infos, err := ioutil.ReadDir(dirname)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, 0)
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if strings.HasSuffix(info.Name(), ".json") {
			names = append(names, info.Name())
		}
	}
	sort.Strings(names)

	var result []*ordereddict.Dict
	for _, name := range names {
		serialized, err := ioutil.ReadFile(filepath.Join(dirname, name))
		if err != nil {
			continue
		}

		doc := ordereddict.NewDict()
		err = json.Unmarshal(serialized, doc)
		if err != nil {
			// Skip corrupted documents rather than failing the whole
			// query.
			continue
		}

		if matchFilter(doc, filter) {
			result = append(result, doc)
		}
	}

	return result, nil
}
