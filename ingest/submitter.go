package ingest

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/Velocidex/ordereddict"
	"www.velocidex.com/golang/basilisk/errors"
	"www.velocidex.com/golang/basilisk/logging"
	"www.velocidex.com/golang/basilisk/subjects"
	"www.velocidex.com/golang/basilisk/utils"
)

// Submitter lets scale handlers register the artifacts they derive
// (unpacked payloads, carved files) as first class subjects with
// provenance links back to the subject they came from.
type Submitter struct {
	ingestor *Ingestor
	subs     *subjects.Service
}

func NewSubmitter(ingestor *Ingestor, subs *subjects.Service) *Submitter {
	return &Submitter{ingestor: ingestor, subs: subs}
}

// SubmitDerived stores the derived bytes as a new file subject and
// links it to the parent under the provenance tag. Resubmitting an
// existing digest only adds the link. The parent side of the link is
// best effort.
func (self *Submitter) SubmitDerived(
	ctx context.Context,
	parent *subjects.Subject,
	name string, data []byte, tag string) (*subjects.Subject, error) {

	staging_dir, err := utils.TempDirectory(
		self.ingestor.config_obj.CacheDirectory, "derived")
	if err != nil {
		return nil, errors.NewUploadError(
			"unable to create staging directory: %v", err)
	}
	defer os.RemoveAll(staging_dir)

	local_path := filepath.Join(staging_dir, "derived")
	err = ioutil.WriteFile(local_path, data, 0600)
	if err != nil {
		return nil, errors.NewUploadError(
			"unable to stage derived artifact: %v", err)
	}

	subject, err := self.ingestor.storeFileAs(
		ctx, local_path, name, subjects.FILE, "scale:"+tag)
	if err != nil {
		if !errors.IsKind(err, errors.ALREADY_EXISTS) {
			return nil, err
		}

		// The bytes are already known - just link them.
		berr := err.(*errors.BasiliskError)
		existing, ok := berr.Payload.(*ordereddict.Dict)
		if !ok {
			return nil, err
		}

		digest, _ := existing.GetString("sha256_digest")
		subject, err = self.subs.Get(digest, subjects.FILE)
		if err != nil {
			return nil, err
		}
	}

	if subject.Sha256Digest != parent.Sha256Digest {
		err = self.subs.AddRelationship(
			parent.Sha256Digest, subject.Sha256Digest, tag)
		if err != nil {
			logging.GetLogger(self.ingestor.config_obj,
				&logging.IngestComponent).Warn(
				"unable to link %v to %v: %v",
				subject.Sha256Digest, parent.Sha256Digest, err)
		}
	}

	return subject, nil
}
