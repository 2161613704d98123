// Package confkit carries the config-file plumbing shared by the ingest
// daemon and the package-level YAML loaders: path resolution relative to the
// main config file, split-file sections, dotenv autoloading and project-root
// discovery.
package confkit

import (
	"os"
	"path/filepath"
)

// ResolvePath expands environment variables in file and resolves it against
// base unless it is already absolute.
func ResolvePath(base, file string) string {
	file = os.ExpandEnv(file)
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(base, file)
}

// BaseDir returns the directory the main config file lives in. Split-file
// sections are resolved against it.
func BaseDir(mainPath string) string {
	return filepath.Dir(mainPath)
}

// Section is a config block that may live in its own file. File names the
// split file; after Hydrate it holds the resolved path and Value the loaded
// section.
type Section[T any] struct {
	File  string `json:",optional"`
	Value *T     `json:"-"`
}

// Hydrate resolves File against base and runs it through loader. A Section
// without a File is left untouched.
func (s *Section[T]) Hydrate(base string, loader func(string) (*T, error)) error {
	if s.File == "" {
		return nil
	}
	path := ResolvePath(base, s.File)
	value, err := loader(path)
	if err != nil {
		return err
	}
	s.File, s.Value = path, value
	return nil
}
