package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Settings holds the process-wide settings of bk. Jobs live in a separate
// JSON file; see LoadJobs.
type Settings struct {
	LogFile       string        `toml:"log_file"`
	LogMaxSizeMB  int           `toml:"log_max_size_mb"`
	LogMaxBackups int           `toml:"log_max_backups"`
	History       HistoryConfig `toml:"history"`
}

// HistoryConfig represents configuration for the run history store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type HistoryConfig struct {
	Type    string `toml:"type"`               // "sqlite", "memory" or "none"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// DefaultLogFile is the log file used when neither flags nor settings name one.
const DefaultLogFile = "latest.log"

// NewSettings creates Settings with defaults rooted at baseDir.
func NewSettings(baseDir string) *Settings {
	return &Settings{
		LogFile:       DefaultLogFile,
		LogMaxSizeMB:  50,
		LogMaxBackups: 3,
		History: HistoryConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
	}
}

// Manager handles reading and writing settings.
type Manager struct{}

// Read decodes Settings from the provided reader.
func (m *Manager) Read(r io.Reader) (*Settings, error) {
	var s Settings
	if _, err := toml.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	return &s, nil
}

// Write encodes Settings to the provided writer.
func (m *Manager) Write(w io.Writer, s *Settings) error {
	if err := toml.NewEncoder(w).Encode(s); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	return nil
}

// ReadFromFile reads Settings from the specified file path.
func ReadFromFile(path string) (*Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	s, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading settings from %s: %w", path, err)
	}
	return s, nil
}

// LoadSettings reads the settings file at path, falling back to defaults
// rooted at baseDir when it does not exist. Unset fields keep their defaults.
func LoadSettings(path, baseDir string) (*Settings, error) {
	defaults := NewSettings(baseDir)

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open settings file: %w", err)
	}
	defer f.Close()

	if _, err := toml.NewDecoder(f).Decode(defaults); err != nil {
		return nil, fmt.Errorf("reading settings from %s: %w", path, err)
	}
	return defaults, nil
}

// writeToFile writes Settings to the specified file path.
func writeToFile(path string, s *Settings) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create settings file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, s); err != nil {
		return fmt.Errorf("writing settings to %s: %w", path, err)
	}
	return nil
}

// Init writes a new settings file at path. It refuses to overwrite an existing file.
func Init(path string, s *Settings) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("settings file already exists at %s", path)
	}

	if err := writeToFile(path, s); err != nil {
		return fmt.Errorf("initializing settings: %w", err)
	}
	return nil
}
