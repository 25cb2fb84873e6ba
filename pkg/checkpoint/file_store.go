package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"repostreach/pkg/logger"
)

// FileStore keeps one JSON file per checkpoint name inside a directory
type FileStore struct {
	dir    string
	runID  string
	logger logger.Logger
}

// NewFileStore creates the directory if needed and returns a store over it
func NewFileStore(dir, runID string, log logger.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &FileStore{dir: dir, runID: runID, logger: log}, nil
}

// Path returns the file backing a checkpoint name
func (s *FileStore) Path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Save writes the snapshot to a temporary file, syncs it and renames it
// over the previous one
func (s *FileStore) Save(ctx context.Context, name string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encode(s.runID, name, v)
	if err != nil {
		return err
	}

	path := s.Path(name)
	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	s.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"name":  name,
		"path":  path,
		"bytes": len(data),
	})
	return nil
}

// Load reads a snapshot. A missing file is not an error.
func (s *FileStore) Load(ctx context.Context, name string, v any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to open checkpoint file: %w", err)
	}

	env, err := decode(name, data, v)
	if err != nil {
		return false, err
	}

	s.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"name":       name,
		"run_id":     env.RunID,
		"updated_at": env.UpdatedAt,
	})
	return true, nil
}

// Delete removes a snapshot. Deleting a missing one is a no-op.
func (s *FileStore) Delete(ctx context.Context, name string) error {
	if err := os.Remove(s.Path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Exists checks if a checkpoint file exists
func (s *FileStore) Exists(ctx context.Context, name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// Close is a no-op for files
func (s *FileStore) Close() error { return nil }
