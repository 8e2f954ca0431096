package testutil

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"bk-go/internal/bk"
)

// MockFile represents a file in the mock file reader.
type MockFile struct {
	Content     []byte
	Permissions fs.FileMode
	ModTime     time.Time
	IsDirectory bool
}

// MockFileReader is an in-memory bk.FileReader. With FailReads set, Open
// fails for every file, which lets tests prove a code path never reads content.
type MockFileReader struct {
	mu        sync.Mutex
	files     map[string]*MockFile
	opens     int
	FailReads bool
}

// NewMockFileReader creates an empty mock file reader.
func NewMockFileReader() *MockFileReader {
	return &MockFileReader{files: make(map[string]*MockFile)}
}

// AddFile adds a regular file with the given content and modification time.
func (m *MockFileReader) AddFile(path string, content []byte, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &MockFile{Content: content, Permissions: 0o644, ModTime: modTime}
}

// AddDirectory adds a directory.
func (m *MockFileReader) AddDirectory(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &MockFile{Permissions: fs.ModeDir | 0o755, ModTime: time.Now(), IsDirectory: true}
}

// Opens returns how many times Open was called.
func (m *MockFileReader) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

func (m *MockFileReader) Stat(path string) (fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
	}
	return &mockFileInfo{
		name:    filepath.Base(path),
		size:    int64(len(file.Content)),
		mode:    file.Permissions,
		modTime: file.ModTime,
		isDir:   file.IsDirectory,
	}, nil
}

func (m *MockFileReader) Open(path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	if m.FailReads {
		return nil, fmt.Errorf("read refused: %s", path)
	}
	file, ok := m.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	if file.IsDirectory {
		return nil, fmt.Errorf("cannot open directory: %s", path)
	}
	return io.NopCloser(bytes.NewReader(file.Content)), nil
}

// mockFileInfo implements fs.FileInfo
type mockFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	isDir   bool
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() fs.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() any           { return nil }

// Compile-time check
var _ bk.FileReader = (*MockFileReader)(nil)
