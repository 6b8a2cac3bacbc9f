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

// This is an implementation of the file store on top of a plain
// directory tree.
package directory

import (
	"io"
	"os"
	"path/filepath"

	"github.com/go-errors/errors"
	"www.velocidex.com/golang/basilisk/config"
	"www.velocidex.com/golang/basilisk/file_store/api"
)

type DirectoryFileStore struct {
	root string
}

func NewDirectoryFileStore(config_obj *config.Config) (*DirectoryFileStore, error) {
	root := config_obj.FileStore.Directory
	err := os.MkdirAll(root, 0700)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	return &DirectoryFileStore{root: root}, nil
}

func (self *DirectoryFileStore) pathForDigest(sha256_digest string) string {
	components := append([]string{self.root},
		api.ShardedComponents(sha256_digest)...)
	return filepath.Join(components...)
}

func (self *DirectoryFileStore) Put(
	sha256_digest string, reader io.Reader) error {

	file_path := self.pathForDigest(sha256_digest)
	if _, err := os.Stat(file_path); err == nil {
		// Contents are immutable under their digest.
		return nil
	}

	err := os.MkdirAll(filepath.Dir(file_path), 0700)
	if err != nil {
		return errors.Wrap(err, 0)
	}

	// Write to the side and rename into place so a crashed Put never
	// leaves a partial file addressable.
	tmp_path := file_path + ".tmp"
	fd, err := os.OpenFile(tmp_path,
		os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrap(err, 0)
	}

	_, err = io.Copy(fd, reader)
	fd.Close()
	if err != nil {
		os.Remove(tmp_path)
		return errors.Wrap(err, 0)
	}

	err = os.Rename(tmp_path, file_path)
	if err != nil {
		os.Remove(tmp_path)
		return errors.Wrap(err, 0)
	}

	return nil
}

func (self *DirectoryFileStore) Open(
	sha256_digest string) (api.FileReader, error) {

	fd, err := os.Open(self.pathForDigest(sha256_digest))
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	return fd, nil
}

func (self *DirectoryFileStore) Size(sha256_digest string) (int64, error) {
	stat, err := os.Stat(self.pathForDigest(sha256_digest))
	if err != nil {
		return 0, errors.Wrap(err, 0)
	}

	return stat.Size(), nil
}

func (self *DirectoryFileStore) Exists(sha256_digest string) bool {
	_, err := os.Stat(self.pathForDigest(sha256_digest))
	return err == nil
}

func (self *DirectoryFileStore) Delete(sha256_digest string) error {
	err := os.Remove(self.pathForDigest(sha256_digest))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, 0)
	}

	// Opportunistically prune now empty shard directories.
	dir := filepath.Dir(self.pathForDigest(sha256_digest))
	for i := 0; i < 2; i++ {
		if os.Remove(dir) != nil {
			break
		}
		dir = filepath.Dir(dir)
	}

	return nil
}
