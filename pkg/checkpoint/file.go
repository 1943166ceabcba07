package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/convoy-dev/convoy/pkg/cache"
)

// FileStore is a file-based checkpoint store.
// Checkpoints are stored as JSON files, one per workspace root.
type FileStore struct {
	mu      sync.RWMutex
	baseDir string
}

// NewFileStore creates a file-based checkpoint store.
// If baseDir is empty, defaults to ~/.config/convoy/checkpoints/
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		baseDir = filepath.Join(home, ".config", "convoy", "checkpoints")
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) checkpointPath(root string) string {
	return filepath.Join(s.baseDir, cache.Hash([]byte(root))+".json")
}

// Load retrieves the checkpoint for a workspace root.
func (s *FileStore) Load(ctx context.Context, root string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.checkpointPath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint file: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	return &cp, nil
}

// Save stores a checkpoint for its workspace root.
func (s *FileStore) Save(ctx context.Context, cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := os.WriteFile(s.checkpointPath(cp.WorkspaceRoot), data, 0600); err != nil {
		return fmt.Errorf("write checkpoint file: %w", err)
	}
	return nil
}

// Delete removes the checkpoint for a workspace root.
func (s *FileStore) Delete(ctx context.Context, root string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.checkpointPath(root)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint file: %w", err)
	}
	return nil
}

// Path returns the base directory for checkpoint files.
func (s *FileStore) Path() string {
	return s.baseDir
}

var _ Store = (*FileStore)(nil)
