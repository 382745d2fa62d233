package vfs

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemFS is an in-memory FileSystem for tests. Every file carries an
// explicit modification time so incremental decisions can be driven
// deterministically.
type MemFS struct {
	mu      sync.RWMutex
	files   map[string]memFile
	now     time.Time
	tempDir string
	tempSeq int
}

type memFile struct {
	data    []byte
	mode    fs.FileMode
	modTime time.Time
}

// NewMemFS creates an empty in-memory filesystem whose clock starts at a
// fixed instant.
func NewMemFS() *MemFS {
	return &MemFS{
		files:   make(map[string]memFile),
		now:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		tempDir: "/tmp",
	}
}

// Advance moves the filesystem clock forward. Files written afterwards
// get the new time.
func (m *MemFS) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Now returns the filesystem clock.
func (m *MemFS) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

// AddFile adds or replaces a file stamped with the current clock.
func (m *MemFS) AddFile(name, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[clean(name)] = memFile{data: []byte(content), mode: 0o644, modTime: m.now}
}

// Touch bumps the modification time of name to the current clock,
// creating an empty file if needed.
func (m *MemFS) Touch(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name = clean(name)
	f := m.files[name]
	f.modTime = m.now
	if f.mode == 0 {
		f.mode = 0o644
	}
	m.files[name] = f
}

// SetModTime sets the modification time of an existing file.
func (m *MemFS) SetModTime(name string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name = clean(name)
	f, ok := m.files[name]
	if !ok {
		return &fs.PathError{Op: "chtimes", Path: name, Err: fs.ErrNotExist}
	}
	f.modTime = t
	m.files[name] = f
	return nil
}

// ReadFile implements FileSystem.
func (m *MemFS) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[clean(name)]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), f.data...), nil
}

// WriteFile implements FileSystem.
func (m *MemFS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[clean(name)] = memFile{data: append([]byte(nil), data...), mode: perm, modTime: m.now}
	return nil
}

// Remove implements FileSystem.
func (m *MemFS) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name = clean(name)
	if _, ok := m.files[name]; !ok {
		return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
	}
	delete(m.files, name)
	return nil
}

// MkdirAll implements FileSystem. Directories are implicit in MemFS.
func (m *MemFS) MkdirAll(p string, perm fs.FileMode) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.files[clean(p)]; ok {
		return &fs.PathError{Op: "mkdir", Path: p, Err: fmt.Errorf("not a directory")}
	}
	return nil
}

// ModTime implements FileSystem.
func (m *MemFS) ModTime(name string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[clean(name)]
	if !ok {
		return time.Time{}, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	return f.modTime, nil
}

// Exists implements FileSystem.
func (m *MemFS) Exists(p string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p = clean(p)
	if _, ok := m.files[p]; ok {
		return true
	}
	prefix := p + "/"
	for name := range m.files {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// CreateTemp implements FileSystem.
func (m *MemFS) CreateTemp(pattern string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tempSeq++
	name := strings.Replace(pattern, "*", fmt.Sprintf("%06d", m.tempSeq), 1)
	if !strings.Contains(pattern, "*") {
		name = fmt.Sprintf("%s%06d", pattern, m.tempSeq)
	}
	full := path.Join(m.tempDir, name)
	m.files[full] = memFile{data: append([]byte(nil), data...), mode: 0o600, modTime: m.now}
	return full, nil
}

// TempDir implements FileSystem.
func (m *MemFS) TempDir() string {
	return m.tempDir
}

// ListFiles returns all file names in sorted order, for debugging.
func (m *MemFS) ListFiles() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func clean(p string) string {
	return path.Clean(p)
}
