package records

import (
	"time"

	"github.com/Velocidex/ordereddict"
	"www.velocidex.com/golang/basilisk/blobstore"
	"www.velocidex.com/golang/basilisk/config"
	"www.velocidex.com/golang/basilisk/datastore"
	"www.velocidex.com/golang/basilisk/errors"
	"www.velocidex.com/golang/basilisk/logging"
)

const collection = "commands"

type Store struct {
	db    datastore.DataStore
	blobs blobstore.BlobStore
}

func NewStore(db datastore.DataStore, blobs blobstore.BlobStore) *Store {
	return &Store{db: db, blobs: blobs}
}

func keyFilter(key Key) datastore.Filter {
	return datastore.Filter{
		"sha256_digest": key.Sha256Digest,
		"scale":         key.Scale,
		"command":       key.Command,
		"args_key":      key.ArgsKey,
	}
}

func (self *Store) Get(key Key) (*Record, error) {
	doc, err := self.db.Find(collection, keyFilter(key))
	if err == datastore.ErrNotFound {
		return nil, errors.NewNotFoundError(
			"no record for %v %v", key.Scale, key.Command)
	}
	if err != nil {
		return nil, err
	}

	return RecordFromDict(doc), nil
}

func (self *Store) Put(record *Record) error {
	_, err := self.db.Insert(collection, record.ToDict())
	return err
}

// Replace swaps the old record for a fresh one under the same key.
// The old record's output blob is released only after the swap
// commits so a failed replace never orphans the record from its
// output.
func (self *Store) Replace(old *Record, fresh *Record) error {
	err := self.db.Replace(collection, keyFilter(old.Key()), fresh.ToDict())
	if err != nil {
		return err
	}

	if old.OutputID != "" {
		err := self.blobs.Delete(old.OutputID)
		if err != nil {
			logging.GetLogger(nil, &logging.StoreComponent).Warn(
				"unable to release blob %v: %v", old.OutputID, err)
		}
	}

	return nil
}

func (self *Store) Update(key Key, fields *ordereddict.Dict) error {
	return self.db.Update(collection, keyFilter(key), fields)
}

func (self *Store) SetStatus(key Key, status Status) error {
	return self.Update(key, ordereddict.NewDict().
		Set("status", string(status)))
}

// Finalize records a terminal state together with its output. The
// blob is written first so the record never points at a missing
// output.
func (self *Store) Finalize(
	key Key, status Status, output *ordereddict.Dict) error {

	output_id := ""
	if output != nil {
		var err error
		output_id, err = blobstore.PutDict(self.blobs, output)
		if err != nil {
			return err
		}
	}

	return self.Update(key, ordereddict.NewDict().
		Set("status", string(status)).
		Set("output_id", output_id).
		Set("end_time", time.Now().Unix()))
}

// Output loads the output blob of a record.
func (self *Store) Output(record *Record) (*ordereddict.Dict, error) {
	if record.OutputID == "" {
		return nil, errors.NewNotFoundError(
			"record %v/%v has no output", record.Scale, record.Command)
	}

	return blobstore.GetDict(self.blobs, record.OutputID)
}

// Delete removes a record and its output blob.
func (self *Store) Delete(record *Record) error {
	err := self.db.Delete(collection, keyFilter(record.Key()))
	if err != nil {
		return err
	}

	if record.OutputID != "" {
		self.blobs.Delete(record.OutputID)
	}

	return nil
}

// Query returns the records matching any subset of the composite key
// fields, newest first. The args_key parameter is the normalized
// argument set from NormalizeArgs.
func (self *Store) Query(
	sha256_digest, scale, command, args_key string) ([]*Record, error) {

	filter := datastore.Filter{}
	if sha256_digest != "" {
		filter["sha256_digest"] = sha256_digest
	}
	if scale != "" {
		filter["scale"] = scale
	}
	if command != "" {
		filter["command"] = command
	}
	if args_key != "" {
		filter["args_key"] = args_key
	}

	docs, err := self.db.FindAll(collection, filter,
		"timestamp", datastore.SORT_DOWN)
	if err != nil {
		return nil, err
	}

	result := make([]*Record, 0, len(docs))
	for _, doc := range docs {
		result = append(result, RecordFromDict(doc))
	}

	return result, nil
}

// SweepIncomplete forces any record left pending or running by a
// previous process to failed. Runs once at process start - results
// are never resumed across restarts.
func (self *Store) SweepIncomplete(config_obj *config.Config) error {
	logger := logging.GetLogger(config_obj, &logging.StoreComponent)

	for _, status := range []Status{PENDING, RUNNING} {
		for {
			err := self.db.Update(collection,
				datastore.Filter{"status": string(status)},
				ordereddict.NewDict().
					Set("status", string(FAILED)).
					Set("end_time", time.Now().Unix()))
			if err == datastore.ErrNotFound {
				break
			}
			if err != nil {
				return err
			}

			logger.Warn("swept stale %v record to failed", status)
		}
	}

	return nil
}

// DeleteAllForDigest purges every record owned by a subject, output
// blobs included. Used when the subject itself is deleted.
func (self *Store) DeleteAllForDigest(sha256_digest string) error {
	all, err := self.Query(sha256_digest, "", "", "")
	if err != nil {
		return err
	}

	for _, record := range all {
		err := self.Delete(record)
		if err != nil {
			return err
		}
	}

	return nil
}
