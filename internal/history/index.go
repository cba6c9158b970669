package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauern/dirsync/internal/util"
)

// Record describes one committed pass in the index.
type Record struct {
	Pass     string    `json:"pass"`     // pass timestamp token
	Mode     string    `json:"mode"`     // mode the pass ran in
	Archived int       `json:"archived"` // number of state files archived
	When     time.Time `json:"when"`     // commit time
}

// Index is the audit index of committed passes for one endpoint.
type Index struct {
	Version string    `json:"version"`
	Updated time.Time `json:"updated"`
	Passes  []Record  `json:"passes"`
}

const (
	// IndexVersion is the current version of the index format
	IndexVersion = "1.0"
	// IndexFilename is the name of the index file
	IndexFilename = "index.json"
)

func indexPath(root string) string {
	return filepath.Join(util.HistoryRoot(root), IndexFilename)
}

// LoadIndex loads the pass index for an endpoint. A missing index file
// yields an empty index.
func LoadIndex(root string) (*Index, error) {
	path := indexPath(root)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Index{
			Version: IndexVersion,
			Updated: time.Now(),
		}, nil
	}

	// #nosec G304 - path is under the control directory
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read history index: %w", err)
	}

	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parse history index: %w", err)
	}

	return &index, nil
}

// SaveIndex writes the pass index back to disk.
func SaveIndex(root string, index *Index) error {
	index.Updated = time.Now()

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history index: %w", err)
	}

	// #nosec G306 - the index is audit metadata, not a secret
	if err := os.WriteFile(indexPath(root), data, 0o644); err != nil {
		return fmt.Errorf("write history index: %w", err)
	}
	return nil
}

// appendIndex adds one record and saves the index.
func appendIndex(root string, rec Record) error {
	index, err := LoadIndex(root)
	if err != nil {
		return err
	}
	index.Passes = append(index.Passes, rec)
	return SaveIndex(root, index)
}
