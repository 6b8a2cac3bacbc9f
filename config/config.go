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
package config

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/go-errors/errors"
	"gopkg.in/yaml.v2"
)

type DatastoreConfig struct {
	// One of "FileBaseDataStore" or "MemcacheDataStore" (memory).
	Implementation string `yaml:"implementation,omitempty"`
	Location       string `yaml:"location,omitempty"`
}

type S3Config struct {
	Endpoint        string `yaml:"endpoint,omitempty"`
	Bucket          string `yaml:"bucket,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	NoSSL           bool   `yaml:"no_ssl,omitempty"`
}

type FileStoreConfig struct {
	// One of "directory", "s3" or "memory".
	Implementation string    `yaml:"implementation,omitempty"`
	Directory      string    `yaml:"directory,omitempty"`
	S3             *S3Config `yaml:"s3,omitempty"`
}

type BlobStoreConfig struct {
	// One of "leveldb" or "memory".
	Implementation string `yaml:"implementation,omitempty"`
	Location       string `yaml:"location,omitempty"`
}

type ScalesConfig struct {
	// Directories scanned for user provided scale plugins (.so).
	Directories []string `yaml:"directories,omitempty"`

	// When disabled no autorun commands are queued on ingestion.
	Autoruns bool `yaml:"autoruns"`
}

type WorkerConfig struct {
	PoolSize int `yaml:"pool_size,omitempty"`

	// Default command timeout in seconds.
	DefaultTimeout int `yaml:"default_timeout,omitempty"`

	// Added to the soft timeout to derive the hard kill timeout.
	HardTimeoutGrace int `yaml:"hard_timeout_grace,omitempty"`
}

type IngestionConfig struct {
	ZipPasswords    []string `yaml:"zip_passwords,omitempty"`
	StripExtensions []string `yaml:"strip_extensions,omitempty"`

	// Ceiling on the reconstructed (non file) part of a streamed
	// upload body in bytes.
	MaxBufferSize int64 `yaml:"max_buffer_size,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
}

type Config struct {
	Datastore *DatastoreConfig `yaml:"datastore,omitempty"`
	FileStore *FileStoreConfig `yaml:"file_store,omitempty"`
	BlobStore *BlobStoreConfig `yaml:"blob_store,omitempty"`

	// Staging area for streamed uploads and scale working
	// directories. Self cleaning - each upload gets its own
	// subdirectory removed on completion.
	CacheDirectory string `yaml:"cache_directory,omitempty"`

	Scales    *ScalesConfig    `yaml:"scales,omitempty"`
	Worker    *WorkerConfig    `yaml:"worker,omitempty"`
	Ingestion *IngestionConfig `yaml:"ingestion,omitempty"`
	Logging   *LoggingConfig   `yaml:"logging,omitempty"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Datastore: &DatastoreConfig{
			Implementation: "FileBaseDataStore",
			Location:       "/var/lib/basilisk/datastore",
		},
		FileStore: &FileStoreConfig{
			Implementation: "directory",
			Directory:      "/var/lib/basilisk/filestore",
		},
		BlobStore: &BlobStoreConfig{
			Implementation: "leveldb",
			Location:       "/var/lib/basilisk/blobs",
		},
		CacheDirectory: os.TempDir(),
		Scales: &ScalesConfig{
			Autoruns: true,
		},
		Worker: &WorkerConfig{
			PoolSize:         10,
			DefaultTimeout:   600,
			HardTimeoutGrace: 30,
		},
		Ingestion: &IngestionConfig{
			MaxBufferSize: 100 * 1024 * 1024,
		},
		Logging: &LoggingConfig{
			Level: "info",
		},
	}
}

// Load the config stored in the YAML file over the top of the default
// config and return the combined object.
func LoadConfig(filename string) (*Config, error) {
	result := GetDefaultConfig()

	data, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	err = yaml.Unmarshal(data, result)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	return result, nil
}

func ValidateConfig(config_obj *Config) error {
	if config_obj.Datastore == nil ||
		config_obj.Datastore.Implementation == "" {
		return errors.New("No datastore implementation specified")
	}

	if config_obj.Datastore.Implementation == "FileBaseDataStore" &&
		config_obj.Datastore.Location == "" {
		return errors.New("FileBaseDataStore requires a location")
	}

	if config_obj.FileStore == nil {
		return errors.New("No file store specified")
	}

	switch config_obj.FileStore.Implementation {
	case "directory":
		if config_obj.FileStore.Directory == "" {
			return errors.New("directory file store requires a directory")
		}
	case "s3":
		s3 := config_obj.FileStore.S3
		if s3 == nil || s3.Endpoint == "" || s3.Bucket == "" {
			return errors.New("s3 file store requires endpoint and bucket")
		}
	case "memory":
	default:
		return errors.New("Unknown file store implementation")
	}

	if config_obj.Worker == nil {
		config_obj.Worker = GetDefaultConfig().Worker
	}
	if config_obj.Worker.PoolSize <= 0 {
		config_obj.Worker.PoolSize = 10
	}
	if config_obj.Worker.DefaultTimeout <= 0 {
		config_obj.Worker.DefaultTimeout = 600
	}
	if config_obj.Worker.HardTimeoutGrace <= 0 {
		config_obj.Worker.HardTimeoutGrace = 30
	}

	if config_obj.Ingestion == nil {
		config_obj.Ingestion = GetDefaultConfig().Ingestion
	}
	if config_obj.Ingestion.MaxBufferSize <= 0 {
		config_obj.Ingestion.MaxBufferSize = 100 * 1024 * 1024
	}

	if config_obj.CacheDirectory == "" {
		config_obj.CacheDirectory = os.TempDir()
	}

	// Normalize scale directories up front so discovery does not have
	// to care about relative paths.
	if config_obj.Scales != nil {
		for idx, dir := range config_obj.Scales.Directories {
			abs_path, err := filepath.Abs(expandHome(dir))
			if err == nil {
				config_obj.Scales.Directories[idx] = abs_path
			}
		}
	}

	return nil
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
