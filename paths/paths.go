package paths

import (
	"os"
	"path/filepath"
)

// CacheDir is where the self-updated copy of the tool lives.
func CacheDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".dns-wizard"), nil
}

// EnsureCacheDir creates the cache directory owner-only if absent.
func EnsureCacheDir() (string, error) {
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}
