package subjects

import (
	"time"

	"github.com/Velocidex/ordereddict"
	"www.velocidex.com/golang/basilisk/config"
	"www.velocidex.com/golang/basilisk/datastore"
	"www.velocidex.com/golang/basilisk/errors"
	"www.velocidex.com/golang/basilisk/file_store/api"
	"www.velocidex.com/golang/basilisk/logging"
	"www.velocidex.com/golang/basilisk/utils"
)

const collection = "subjects"

// RecordPurger releases the command records owned by a subject when
// it is deleted.
type RecordPurger interface {
	DeleteAllForDigest(sha256_digest string) error
}

type Service struct {
	config_obj *config.Config
	db         datastore.DataStore
	files      api.FileStore
	purger     RecordPurger
}

func NewService(
	config_obj *config.Config,
	db datastore.DataStore,
	files api.FileStore,
	purger RecordPurger) *Service {
	return &Service{
		config_obj: config_obj,
		db:         db,
		files:      files,
		purger:     purger,
	}
}

func (self *Service) filter(
	sha256_digest string, file_type FileType) datastore.Filter {
	filter := datastore.Filter{"sha256_digest": sha256_digest}
	if file_type != ANY {
		filter["file_type"] = string(file_type)
	}
	return filter
}

// Store registers a new subject. Re-submitting an existing digest is
// rejected with an AlreadyExists error carrying the existing subject
// so callers can surface the duplicate.
func (self *Service) Store(subject *Subject) error {
	existing, err := self.Get(subject.Sha256Digest, subject.FileType)
	if err == nil {
		return errors.NewAlreadyExistsError(
			"file already exists", existing.ToDict())
	}
	if !errors.IsNotFound(err) {
		return err
	}

	_, err = self.db.Insert(collection, subject.ToDict())
	return err
}

func (self *Service) Get(
	sha256_digest string, file_type FileType) (*Subject, error) {

	doc, err := self.db.Find(collection,
		self.filter(sha256_digest, file_type))
	if err == datastore.ErrNotFound {
		return nil, errors.NewNotFoundError(
			"no subject %v", sha256_digest)
	}
	if err != nil {
		return nil, err
	}

	return SubjectFromDict(doc), nil
}

func (self *Service) List(file_type FileType) ([]*Subject, error) {
	filter := datastore.Filter{}
	if file_type != ANY {
		filter["file_type"] = string(file_type)
	}

	docs, err := self.db.FindAll(collection, filter,
		"timestamp", datastore.SORT_DOWN)
	if err != nil {
		return nil, err
	}

	result := make([]*Subject, 0, len(docs))
	for _, doc := range docs {
		result = append(result, SubjectFromDict(doc))
	}

	return result, nil
}

// UpdateMeta edits the user facing metadata. Empty name leaves the
// name alone; description and tags replace wholesale when non nil.
func (self *Service) UpdateMeta(
	sha256_digest string, file_type FileType,
	name string, description *string, tags []string) error {

	fields := ordereddict.NewDict().
		Set("update_time", time.Now().Unix())

	if name != "" {
		fields.Set("name", name)
	}
	if description != nil {
		fields.Set("description", *description)
	}
	if tags != nil {
		fields.Set("tags", tags)
	}

	err := self.db.Update(collection,
		self.filter(sha256_digest, file_type), fields)
	if err == datastore.ErrNotFound {
		return errors.NewNotFoundError("no subject %v", sha256_digest)
	}
	return err
}

// Delete removes the subject, its stored bytes and every command
// record (with output blobs) it owns.
func (self *Service) Delete(
	sha256_digest string, file_type FileType) error {

	_, err := self.Get(sha256_digest, file_type)
	if err != nil {
		return err
	}

	err = self.db.Delete(collection,
		self.filter(sha256_digest, file_type))
	if err != nil {
		return err
	}

	logger := logging.GetLogger(self.config_obj, &logging.StoreComponent)

	// Bytes are shared between file types of the same digest - only
	// release them once no subject references the digest.
	_, err = self.Get(sha256_digest, ANY)
	if errors.IsNotFound(err) {
		err := self.files.Delete(sha256_digest)
		if err != nil {
			logger.Warn("unable to release bytes for %v: %v",
				sha256_digest, err)
		}
	}

	if self.purger != nil {
		err := self.purger.DeleteAllForDigest(sha256_digest)
		if err != nil {
			logger.Warn("unable to purge records for %v: %v",
				sha256_digest, err)
		}
	}

	return nil
}

// AddRelationship records that child was derived from parent by the
// operation named in the provenance tag. Each side keys the link by
// the other subject's digest and accumulates the tags under it - the
// adjacency is symmetric and only ever grows. The parent side update
// is best effort - a missing parent does not fail the child
// submission.
func (self *Service) AddRelationship(
	parent_digest, child_digest, tag string) error {

	if parent_digest == child_digest {
		return errors.New("a subject can not be its own parent")
	}

	child, err := self.Get(child_digest, ANY)
	if err != nil {
		return err
	}

	if !utils.InString(child.Parents[parent_digest], tag) {
		child.Parents[parent_digest] = append(
			child.Parents[parent_digest], tag)

		err = self.db.Update(collection,
			self.filter(child_digest, child.FileType),
			ordereddict.NewDict().Set("parents", child.Parents))
		if err != nil {
			return err
		}
	}

	parent, err := self.Get(parent_digest, ANY)
	if err != nil {
		logging.GetLogger(self.config_obj, &logging.StoreComponent).Warn(
			"parent %v of %v not found, child link recorded anyway",
			parent_digest, child_digest)
		return nil
	}

	if !utils.InString(parent.Children[child_digest], tag) {
		parent.Children[child_digest] = append(
			parent.Children[child_digest], tag)

		err = self.db.Update(collection,
			self.filter(parent_digest, parent.FileType),
			ordereddict.NewDict().Set("children", parent.Children))
		if err != nil {
			logging.GetLogger(self.config_obj, &logging.StoreComponent).Warn(
				"unable to update parent %v: %v", parent_digest, err)
		}
	}

	return nil
}
