package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore persists the position map as a single JSON object keyed by
// symbol. Saves go through a temp file plus rename so a concurrent reader
// never observes a partial write.
type FileStore struct {
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Load(ctx context.Context) (map[string]Position, error) {
	_ = ctx
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Position{}, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return map[string]Position{}, nil
	}
	positions := make(map[string]Position)
	if err := json.Unmarshal(data, &positions); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return positions, nil
}

func (s *FileStore) Save(ctx context.Context, positions map[string]Position) error {
	_ = ctx
	data, err := json.MarshalIndent(positions, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
