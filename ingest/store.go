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
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"

	"www.velocidex.com/golang/basilisk/config"
	"www.velocidex.com/golang/basilisk/dispatch"
	"www.velocidex.com/golang/basilisk/errors"
	"www.velocidex.com/golang/basilisk/file_store/api"
	"www.velocidex.com/golang/basilisk/logging"
	"www.velocidex.com/golang/basilisk/magic"
	"www.velocidex.com/golang/basilisk/scales"
	"www.velocidex.com/golang/basilisk/subjects"
	"www.velocidex.com/golang/basilisk/utils"
)

// The Ingestor turns local files into stored subjects: content
// addressing, type detection, metadata registration and autorun fan
// out.
type Ingestor struct {
	config_obj *config.Config
	subs       *subjects.Service
	files      api.FileStore
	detector   magic.Detector
	dispatcher *dispatch.Dispatcher
}

func NewIngestor(
	config_obj *config.Config,
	subs *subjects.Service,
	files api.FileStore,
	detector magic.Detector,
	dispatcher *dispatch.Dispatcher) *Ingestor {
	return &Ingestor{
		config_obj: config_obj,
		subs:       subs,
		files:      files,
		detector:   detector,
		dispatcher: dispatcher,
	}
}

// StoreFile ingests the file at local_path under the given name. On
// success the new subject is returned and autoruns are queued. A
// digest that already exists as the same file type is rejected with
// an AlreadyExists error carrying the existing subject.
func (self *Ingestor) StoreFile(
	ctx context.Context,
	local_path, name string,
	file_type subjects.FileType) (*subjects.Subject, error) {
	return self.storeFileAs(ctx, local_path, name, file_type, "upload")
}

func (self *Ingestor) storeFileAs(
	ctx context.Context,
	local_path, name string,
	file_type subjects.FileType,
	submission_type string) (*subjects.Subject, error) {

	digest, size, err := hashFile(local_path)
	if err != nil {
		return nil, err
	}

	subject := subjects.NewSubject(
		digest, file_type, self.stripExtensions(name))
	subject.Size = size
	subject.SubmissionType = submission_type

	if self.detector != nil {
		subject.Magic, err = self.detector.Magic(local_path)
		if err != nil {
			logging.GetLogger(self.config_obj, &logging.IngestComponent).
				Warn("magic detection failed for %v: %v", name, err)
		}

		subject.Mime, err = self.detector.Mime(local_path)
		if err != nil {
			subject.Mime = "application/octet-stream"
		}
	}

	// Remember whether the bytes were already present so a failed
	// metadata insert can roll back cleanly without releasing bytes
	// another subject owns.
	already_stored := self.files.Exists(digest)

	fd, err := os.Open(local_path)
	if err != nil {
		return nil, errors.NewUploadError("unable to read upload: %v", err)
	}

	err = self.files.Put(digest, fd)
	fd.Close()
	if err != nil {
		return nil, err
	}

	err = self.subs.Store(subject)
	if err != nil {
		if !already_stored &&
			!errors.IsKind(err, errors.ALREADY_EXISTS) {
			self.files.Delete(digest)
		}
		return nil, err
	}

	if self.dispatcher != nil {
		self.dispatcher.ExecuteAutoruns(ctx, subject)
	}

	return subject, nil
}

// StoreForm ingests every staged file of a parsed upload form. The
// optional name field overrides the client supplied filename when
// the form carries exactly one file.
func (self *Ingestor) StoreForm(
	ctx context.Context, form *Form,
	file_type subjects.FileType) ([]*subjects.Subject, error) {

	if len(form.Files) == 0 {
		return nil, errors.NewValidationError(map[string][]string{
			"file": {"field is required"},
		})
	}

	name_override := form.Value("name")
	password := form.Value("password")
	is_zip := form.Value("extract_zip") == "true"

	var result []*subjects.Subject
	for _, staged := range form.Files {
		local_path := staged.Path
		name := staged.FileName
		if name_override != "" && len(form.Files) == 1 {
			name = name_override
		}

		if is_zip {
			extracted_path, extracted_name, err := self.extractZip(
				staged.Path, password)
			if err != nil {
				return nil, err
			}
			local_path = extracted_path
			if name_override == "" || len(form.Files) > 1 {
				name = extracted_name
			}
		}

		subject, err := self.StoreFile(ctx, local_path, name, file_type)
		if err != nil {
			return nil, err
		}

		result = append(result, subject)
	}

	return result, nil
}

// UploadWithScale acquires a new subject through a scale's upload
// capability.
func (self *Ingestor) UploadWithScale(
	ctx context.Context,
	registry *scales.Registry,
	scale_name string,
	args map[string]interface{},
	name string,
	file_type subjects.FileType) (*subjects.Subject, error) {

	scale, err := registry.Get(scale_name, file_type)
	if err != nil {
		return nil, err
	}

	upload, err := scale.GetUpload()
	if err != nil {
		return nil, err
	}

	staging_dir, err := utils.TempDirectory(
		self.config_obj.CacheDirectory, "upload")
	if err != nil {
		return nil, errors.NewUploadError(
			"unable to create staging directory: %v", err)
	}
	defer os.RemoveAll(staging_dir)

	fetched_name, err := upload.Fetch(
		ctx, self.config_obj, args, staging_dir)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = fetched_name
	}

	return self.StoreFile(ctx,
		filepath.Join(staging_dir, fetched_name), name, file_type)
}

// stripExtensions removes configured suffixes like ".infected" which
// analysts append to neuter samples in transit.
func (self *Ingestor) stripExtensions(name string) string {
	if self.config_obj.Ingestion == nil {
		return name
	}

	for {
		stripped := false
		for _, ext := range self.config_obj.Ingestion.StripExtensions {
			suffix := "." + strings.TrimPrefix(ext, ".")
			if strings.HasSuffix(name, suffix) &&
				len(name) > len(suffix) {
				name = strings.TrimSuffix(name, suffix)
				stripped = true
			}
		}
		if !stripped {
			return name
		}
	}
}

func hashFile(local_path string) (string, int64, error) {
	fd, err := os.Open(local_path)
	if err != nil {
		return "", 0, errors.NewUploadError(
			"unable to read upload: %v", err)
	}
	defer fd.Close()

	hasher := sha256.New()
	size, err := io.Copy(hasher, fd)
	if err != nil {
		return "", 0, errors.NewUploadError(
			"unable to hash upload: %v", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), size, nil
}
