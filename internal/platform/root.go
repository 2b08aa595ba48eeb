package platform

import (
	"errors"
	"os"
	"path/filepath"
)

// ConfigNames are searched in order in every directory.
var ConfigNames = []string{"todosync.json", "todosync.yaml", "config.json"}

// ErrConfigNotFound is returned by FindConfig when no directory up to the
// filesystem root holds a configuration file.
var ErrConfigNotFound = errors.New("configuration file not found")

// FindConfig looks upwards from startDir for one of ConfigNames and returns
// its absolute path.
func FindConfig(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	dir := abs
	for {
		for _, name := range ConfigNames {
			if isFile(filepath.Join(dir, name)) {
				return filepath.Join(dir, name), nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", ErrConfigNotFound
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
