package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample_config = `
datastore:
  implementation: FileBaseDataStore
  location: /tmp/basilisk_test/db
file_store:
  implementation: directory
  directory: /tmp/basilisk_test/files
ingestion:
  zip_passwords:
    - infected
  strip_extensions:
    - infected
worker:
  pool_size: 3
`

func writeConfig(t *testing.T, data string) string {
	dirname, err := ioutil.TempDir("", "basilisk_test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dirname) })

	filename := filepath.Join(dirname, "server.config.yaml")
	require.NoError(t, ioutil.WriteFile(filename, []byte(data), 0600))

	return filename
}

func TestLoadConfigMergesOverDefaults(t *testing.T) {
	config_obj, err := LoadConfig(writeConfig(t, sample_config))
	require.NoError(t, err)

	assert.Equal(t, 3, config_obj.Worker.PoolSize)
	assert.Equal(t, []string{"infected"}, config_obj.Ingestion.ZipPasswords)

	// Unset sections keep their defaults.
	assert.Equal(t, 600, config_obj.Worker.DefaultTimeout)
	assert.Equal(t, "leveldb", config_obj.BlobStore.Implementation)
}

func TestValidateFillsDefaults(t *testing.T) {
	config_obj := &Config{
		Datastore: &DatastoreConfig{
			Implementation: "MemcacheDataStore",
		},
		FileStore: &FileStoreConfig{
			Implementation: "memory",
		},
	}

	require.NoError(t, ValidateConfig(config_obj))
	assert.Equal(t, 10, config_obj.Worker.PoolSize)
	assert.NotEmpty(t, config_obj.CacheDirectory)
	assert.EqualValues(t, 100*1024*1024, config_obj.Ingestion.MaxBufferSize)
}

func TestValidateRejectsBrokenStores(t *testing.T) {
	err := ValidateConfig(&Config{
		Datastore: &DatastoreConfig{Implementation: "FileBaseDataStore"},
		FileStore: &FileStoreConfig{Implementation: "directory"},
	})
	assert.Error(t, err)

	err = ValidateConfig(&Config{
		Datastore: &DatastoreConfig{
			Implementation: "MemcacheDataStore",
		},
		FileStore: &FileStoreConfig{Implementation: "carrier-pigeon"},
	})
	assert.Error(t, err)
}

func TestLoaderFirstSourceWins(t *testing.T) {
	filename := writeConfig(t, sample_config)

	config_obj, err := NewLoader().
		WithFileLoader(filename).
		WithNullLoader().
		LoadAndValidate()
	require.NoError(t, err)
	assert.Equal(t, 3, config_obj.Worker.PoolSize)

	// An empty filename directive is skipped entirely.
	config_obj, err = NewLoader().
		WithFileLoader("").
		WithNullLoader().
		LoadAndValidate()
	require.NoError(t, err)
	assert.Equal(t, 10, config_obj.Worker.PoolSize)
}

func TestLoaderEnvLoader(t *testing.T) {
	filename := writeConfig(t, sample_config)
	t.Setenv("BASILISK_TEST_CONFIG", filename)

	config_obj, err := NewLoader().
		WithEnvLoader("BASILISK_TEST_CONFIG").
		LoadAndValidate()
	require.NoError(t, err)
	assert.Equal(t, 3, config_obj.Worker.PoolSize)
}

func TestLoaderCustomValidator(t *testing.T) {
	called := false
	_, err := NewLoader().
		WithNullLoader().
		WithCustomValidator("check", func(config_obj *Config) error {
			called = true
			return nil
		}).
		LoadAndValidate()
	require.NoError(t, err)
	assert.True(t, called)
}

func TestLoaderVerboseRaisesLevel(t *testing.T) {
	config_obj, err := NewLoader().
		WithNullLoader().
		WithVerbose(true).
		LoadAndValidate()
	require.NoError(t, err)
	assert.Equal(t, "debug", config_obj.Logging.Level)
}

func TestLoaderNoSources(t *testing.T) {
	_, err := NewLoader().WithFileLoader("/nonexistent/path").
		LoadAndValidate()
	assert.Error(t, err)
}
