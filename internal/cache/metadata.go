package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const metadataFile = "metadata.json"

// Metadata describes the project an index directory belongs to.
// Stored next to index.db so stale directories can be pruned without
// opening the database.
type Metadata struct {
	Key         string    `json:"key"`
	ProjectRoot string    `json:"project_root"`
	RemoteURL   string    `json:"remote_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastOpened  time.Time `json:"last_opened"`
}

// LoadMetadata reads dir/metadata.json. A missing file yields nil, nil.
func LoadMetadata(dir string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &m, nil
}

// Save writes metadata atomically (temp file + rename).
func (m *Metadata) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	path := filepath.Join(dir, metadataFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename metadata: %w", err)
	}
	return nil
}
