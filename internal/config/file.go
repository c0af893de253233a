package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pokerplan/pokerd/pkg/poker"
)

// DefaultPath is where the file store keeps the config document.
const DefaultPath = "config.json"

// FileStore persists the voting configuration as pretty-printed JSON
// on local disk.
type FileStore struct {
	path string
}

// NewFileStore returns a store at path. An empty path uses DefaultPath.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultPath
	}
	return &FileStore{path: path}
}

// Load reads the document. A missing file yields the stock default,
// which is written back so the operator has something to edit.
func (s *FileStore) Load(ctx context.Context) (poker.VotingConfig, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		cfg := poker.DefaultVotingConfig()
		if err := s.Save(ctx, cfg); err != nil {
			return poker.VotingConfig{}, err
		}
		return cfg, nil
	}
	if err != nil {
		return poker.VotingConfig{}, fmt.Errorf("config: read %s: %w", s.path, err)
	}

	var cfg poker.VotingConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return poker.VotingConfig{}, fmt.Errorf("config: parse %s: %w", s.path, err)
	}
	if err := validate(cfg); err != nil {
		return poker.VotingConfig{}, fmt.Errorf("%w: %s", err, s.path)
	}
	return cfg, nil
}

// Save writes the document atomically: temp file in the same
// directory, then rename.
func (s *FileStore) Save(_ context.Context, cfg poker.VotingConfig) error {
	if err := validate(cfg); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("config: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("config: write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("config: rename to %s: %w", s.path, err)
	}
	return nil
}
