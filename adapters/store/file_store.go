package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/zenderhuis/portier/core"
	"github.com/zenderhuis/portier/ports"
)

const (
	// fileLockTimeout is how long a call waits for the session file lock
	// before giving up.
	fileLockTimeout = 10 * time.Second

	// fileLockRetryInterval is how often the lock is polled while waiting.
	fileLockRetryInterval = 10 * time.Millisecond
)

// FileStore is a JSON-file implementation of the Store interface, durable
// across process restarts. A sibling .lock file guards against concurrent
// processes; writes go through a temp file and rename so a crash never
// leaves a torn session file.
type FileStore struct {
	path string
	lock *flock.Flock

	// mu serializes in-process read-modify-write cycles; the file lock
	// only guards against other processes.
	mu sync.Mutex
}

// fileState is the on-disk layout of the session file.
type fileState struct {
	Credentials map[string]core.Credential `json:"credentials"`
	Values      map[string]string             `json:"values"`
}

// NewFileStore creates a file store at the given path. The file is created
// on first write.
func NewFileStore(path string) ports.Store {
	return &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// GetCredential returns the named credential, or nil when absent.
func (s *FileStore) GetCredential(ctx context.Context, name string) (*core.Credential, error) {
	var result *core.Credential
	err := s.withState(ctx, false, func(state *fileState) {
		if cred, ok := state.Credentials[name]; ok {
			copied := cred
			result = &copied
		}
	})
	return result, err
}

// PutCredential stores a credential under its name.
func (s *FileStore) PutCredential(ctx context.Context, c *core.Credential) error {
	return s.withState(ctx, true, func(state *fileState) {
		state.Credentials[c.Name] = *c
	})
}

// GetValue returns a plain stored value, or "" when absent.
func (s *FileStore) GetValue(ctx context.Context, key string) (string, error) {
	var result string
	err := s.withState(ctx, false, func(state *fileState) {
		result = state.Values[key]
	})
	return result, err
}

// PutValue stores a plain value under a key.
func (s *FileStore) PutValue(ctx context.Context, key, value string) error {
	return s.withState(ctx, true, func(state *fileState) {
		state.Values[key] = value
	})
}

// Remove deletes the given keys from both sections.
func (s *FileStore) Remove(ctx context.Context, keys ...string) error {
	return s.withState(ctx, true, func(state *fileState) {
		for _, key := range keys {
			delete(state.Credentials, key)
			delete(state.Values, key)
		}
	})
}

// Clear removes everything.
func (s *FileStore) Clear(ctx context.Context) error {
	return s.withState(ctx, true, func(state *fileState) {
		state.Credentials = make(map[string]core.Credential)
		state.Values = make(map[string]string)
	})
}

// withState locks, loads the session file, applies transact, and saves the
// result back when save is set.
func (s *FileStore) withState(ctx context.Context, save bool, transact func(*fileState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The lock file lives next to the session file, so the directory must
	// exist before the first lock attempt.
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, fileLockTimeout)
	defer cancel()
	if _, err := s.lock.TryLockContext(lockCtx, fileLockRetryInterval); err != nil {
		return fmt.Errorf("failed to acquire session file lock: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	state, err := s.read()
	if err != nil {
		return err
	}

	transact(state)

	if !save {
		return nil
	}
	return s.write(state)
}

func (s *FileStore) read() (*fileState, error) {
	empty := &fileState{
		Credentials: make(map[string]core.Credential),
		Values:      make(map[string]string),
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return empty, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	state := &fileState{}
	if err := json.Unmarshal(data, state); err != nil {
		// A corrupt session file means the session is lost, not that the
		// store is broken: start over from empty.
		return empty, nil
	}
	if state.Credentials == nil {
		state.Credentials = make(map[string]core.Credential)
	}
	if state.Values == nil {
		state.Values = make(map[string]string)
	}
	return state, nil
}

func (s *FileStore) write(state *fileState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}
