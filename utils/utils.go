package utils

import (
	"io/ioutil"
	"os"
)

func InString(hay []string, needle string) bool {
	for _, x := range hay {
		if x == needle {
			return true
		}
	}

	return false
}

// TempDirectory creates a fresh staging directory under the
// configured cache directory. Callers own the cleanup.
func TempDirectory(cache_dir, pattern string) (string, error) {
	if cache_dir == "" {
		cache_dir = os.TempDir()
	}

	err := os.MkdirAll(cache_dir, 0700)
	if err != nil {
		return "", err
	}

	return ioutil.TempDir(cache_dir, pattern)
}
