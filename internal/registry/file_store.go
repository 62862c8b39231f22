package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/filemutex/internal/errors"
)

// FileStore persists counts as a YAML mapping of lock path to count:
//
//	/tmp/build/out.txt.lock: 2
//	/var/data/index.db.lock: 1
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore at path. Nothing is created until the
// first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Location returns the registry file path.
func (s *FileStore) Location() string {
	return s.path
}

// Load reads and decodes the registry file.
func (s *FileStore) Load() (Counts, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(Counts), nil
		}
		return make(Counts), fmt.Errorf("read registry file: %w", err)
	}

	var raw map[string]int
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return make(Counts), fmt.Errorf("%w: %s: %v", errors.ErrRegistryCorrupt, s.path, err)
	}
	return Counts(raw).clone(), nil
}

// Save writes counts to a temporary file and renames it into place, so
// readers never observe a partial document.
func (s *FileStore) Save(counts Counts) error {
	data, err := yaml.Marshal(map[string]int(counts.clone()))
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
