package file_store

import (
	"fmt"
	"sync"

	"www.velocidex.com/golang/basilisk/config"
	"www.velocidex.com/golang/basilisk/file_store/api"
	"www.velocidex.com/golang/basilisk/file_store/directory"
	"www.velocidex.com/golang/basilisk/file_store/memory"
	"www.velocidex.com/golang/basilisk/file_store/s3"
)

var (
	mu     sync.Mutex
	g_impl api.FileStore
)

// GetFileStore selects the file store implementation from the
// config.
func GetFileStore(config_obj *config.Config) (api.FileStore, error) {
	mu.Lock()
	defer mu.Unlock()

	if g_impl != nil {
		return g_impl, nil
	}

	if config_obj.FileStore == nil {
		return nil, fmt.Errorf("no file store configured")
	}

	var err error
	switch config_obj.FileStore.Implementation {
	case "directory":
		g_impl, err = directory.NewDirectoryFileStore(config_obj)

	case "s3":
		g_impl, err = s3.NewS3FileStore(config_obj)

	case "memory":
		g_impl = memory.NewMemoryFileStore()

	default:
		return nil, fmt.Errorf("unsupported file store %v",
			config_obj.FileStore.Implementation)
	}

	if err != nil {
		g_impl = nil
		return nil, err
	}

	return g_impl, nil
}

// SetGlobalFileStore is only used in tests.
func SetGlobalFileStore(impl api.FileStore) {
	mu.Lock()
	defer mu.Unlock()

	g_impl = impl
}
