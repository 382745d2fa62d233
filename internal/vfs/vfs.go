// Package vfs provides the filesystem abstraction the driver core works
// against: byte reads and writes, existence checks, modification times, and
// temporary file creation.
package vfs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FileSystem is the narrow filesystem surface consumed by the planner,
// the incremental engine and the executor.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm fs.FileMode) error
	Remove(name string) error
	MkdirAll(path string, perm fs.FileMode) error

	// ModTime returns the modification time of name.
	ModTime(name string) (time.Time, error)
	Exists(path string) bool

	// CreateTemp creates a new file under the filesystem's temporary
	// directory, writes data to it and returns its path.
	CreateTemp(pattern string, data []byte) (string, error)
	TempDir() string
}

// OSFileSystem implements FileSystem using the standard os package.
type OSFileSystem struct{}

// NewOSFileSystem creates a new filesystem that uses the standard os package.
func NewOSFileSystem() *OSFileSystem {
	return &OSFileSystem{}
}

func (f *OSFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (f *OSFileSystem) WriteFile(name string, data []byte, perm fs.FileMode) error {
	if dir := filepath.Dir(name); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(name, data, perm)
}

func (f *OSFileSystem) Remove(name string) error {
	return os.Remove(name)
}

func (f *OSFileSystem) MkdirAll(path string, perm fs.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (f *OSFileSystem) ModTime(name string) (time.Time, error) {
	info, err := os.Stat(name)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (f *OSFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (f *OSFileSystem) CreateTemp(pattern string, data []byte) (string, error) {
	file, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	if _, err := file.Write(data); err != nil {
		return "", errors.Join(err, file.Close())
	}
	if err := file.Close(); err != nil {
		return "", err
	}
	return file.Name(), nil
}

func (f *OSFileSystem) TempDir() string {
	return os.TempDir()
}
