package credential

import (
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/taspa/console/internal/errors"
)

// TokenKey is the single key of the credentials file.
const TokenKey = "taspa_token"

// FileStore is a Store whose slot is persisted to a JSON file so a signed-in
// session survives process restarts.
//
// The file is read once by NewFileStore. Get is served from memory; Set and
// Clear update memory first and then rewrite the file atomically.
type FileStore struct {
	mu      sync.RWMutex
	path    string
	token   string
	version uint64
}

// NewFileStore opens the store backed by path. A missing, unreadable or
// corrupt file loads as an empty slot.
func NewFileStore(path string) *FileStore {
	s := &FileStore{path: path}
	s.token = readTokenFile(path)
	return s
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// Set stores token and persists it. On a write error the in-memory slot still
// holds token, so the running process stays signed in.
func (s *FileStore) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store(token)
}

func (s *FileStore) Clear() error {
	return s.Set("")
}

func (s *FileStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// SetIf checks the version and rewrites the file under one lock.
func (s *FileStore) SetIf(version uint64, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != version {
		return false, nil
	}
	return true, s.store(token)
}

func (s *FileStore) store(token string) error {
	s.token = token
	s.version++
	if token == "" {
		return s.remove()
	}
	return s.write(token)
}

func (s *FileStore) write(token string) error {
	data, err := json.Marshal(map[string]string{TokenKey: token})
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to encode credentials", err)
	}
	return writeFileAtomic(s.path, data)
}

func (s *FileStore) remove() error {
	if err := os.Remove(s.path); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to remove credentials", err)
	}
	return nil
}

func readTokenFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var doc map[string]string
	if err := json.Unmarshal(data, &doc); err != nil {
		return ""
	}
	return doc[TokenKey]
}

// writeFileAtomic writes data next to path and renames it into place, so a
// reader never observes a half-written file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(errors.ErrCodeDirectoryFailed, "failed to create credentials directory", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to create temp file", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to set permissions", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to write credentials", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to write credentials", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to replace credentials", err)
	}
	return nil
}
