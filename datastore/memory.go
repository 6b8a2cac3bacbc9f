package datastore

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/Velocidex/ordereddict"
	"github.com/google/uuid"
)

// The memory datastore is only used in tests.
type MemoryDataStore struct {
	mu sync.Mutex

	collections map[string][]*ordereddict.Dict
}

func NewMemoryDataStore() *MemoryDataStore {
	return &MemoryDataStore{
		collections: make(map[string][]*ordereddict.Dict),
	}
}

func (self *MemoryDataStore) Insert(
	collection string, doc *ordereddict.Dict) (string, error) {
	defer Instrument("insert", "MemoryDataStore", collection)()

	self.mu.Lock()
	defer self.mu.Unlock()

	id := uuid.New().String()
	doc.Set("_id", id)

	self.collections[collection] = append(
		self.collections[collection], copyDoc(doc))

	return id, nil
}

func (self *MemoryDataStore) Find(
	collection string, filter Filter) (*ordereddict.Dict, error) {
	defer Instrument("find", "MemoryDataStore", collection)()

	self.mu.Lock()
	defer self.mu.Unlock()

	for _, doc := range self.collections[collection] {
		if matchFilter(doc, filter) {
			return copyDoc(doc), nil
		}
	}

	return nil, ErrNotFound
}

func (self *MemoryDataStore) FindAll(
	collection string, filter Filter,
	sort_field string, sense SortingSense) ([]*ordereddict.Dict, error) {
	defer Instrument("find_all", "MemoryDataStore", collection)()

	self.mu.Lock()
	defer self.mu.Unlock()

	var result []*ordereddict.Dict
	for _, doc := range self.collections[collection] {
		if matchFilter(doc, filter) {
			result = append(result, copyDoc(doc))
		}
	}

	if sense != UNSORTED && sort_field != "" {
		sort.SliceStable(result, func(i, j int) bool {
			if sense == SORT_DOWN {
				return compareDocs(result[j], result[i], sort_field)
			}
			return compareDocs(result[i], result[j], sort_field)
		})
	}

	return result, nil
}

func (self *MemoryDataStore) Update(
	collection string, filter Filter, fields *ordereddict.Dict) error {
	defer Instrument("update", "MemoryDataStore", collection)()

	self.mu.Lock()
	defer self.mu.Unlock()

	for _, doc := range self.collections[collection] {
		if matchFilter(doc, filter) {
			for _, field := range fields.Keys() {
				value, _ := fields.Get(field)
				doc.Update(field, value)
			}
			return nil
		}
	}

	return ErrNotFound
}

func (self *MemoryDataStore) Replace(
	collection string, filter Filter, doc *ordereddict.Dict) error {
	defer Instrument("replace", "MemoryDataStore", collection)()

	self.mu.Lock()
	defer self.mu.Unlock()

	for idx, old := range self.collections[collection] {
		if matchFilter(old, filter) {
			id, _ := old.GetString("_id")
			doc.Update("_id", id)
			self.collections[collection][idx] = copyDoc(doc)
			return nil
		}
	}

	return ErrNotFound
}

func (self *MemoryDataStore) Delete(
	collection string, filter Filter) error {
	defer Instrument("delete", "MemoryDataStore", collection)()

	self.mu.Lock()
	defer self.mu.Unlock()

	docs := self.collections[collection]
	for idx, doc := range docs {
		if matchFilter(doc, filter) {
			self.collections[collection] = append(
				docs[:idx], docs[idx+1:]...)
			return nil
		}
	}

	return ErrNotFound
}

func (self *MemoryDataStore) Close() {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.collections = make(map[string][]*ordereddict.Dict)
}

// copyDoc isolates callers from internal state by round tripping
// through JSON, the same normalization the file based store applies.
func copyDoc(doc *ordereddict.Dict) *ordereddict.Dict {
	serialized, err := doc.MarshalJSON()
	if err != nil {
		return doc
	}

	result := ordereddict.NewDict()
	err = json.Unmarshal(serialized, result)
	if err != nil {
		return doc
	}

	return result
}
