package fetch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// HashStore maps document URL to the digest last processed without
// errors. A document whose digest matches is skipped on the next run.
type HashStore struct {
	path   string
	hashes map[string]string
}

// LoadHashStore reads a store from disk. A missing file yields an
// empty store.
func LoadHashStore(path string) (*HashStore, error) {
	s := &HashStore{path: path, hashes: map[string]string{}}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read hash store: %w", err)
	}
	if err := json.Unmarshal(data, &s.hashes); err != nil {
		return nil, fmt.Errorf("failed to parse hash store %s: %w", path, err)
	}
	return s, nil
}

// Seen reports whether url was already processed with this digest.
func (s *HashStore) Seen(url, digest string) bool {
	return s.hashes[url] == digest
}

// Record remembers a fully processed document. Call only when every
// page of the document succeeded.
func (s *HashStore) Record(url, digest string) {
	s.hashes[url] = digest
}

// Save writes the store to disk.
func (s *HashStore) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create hash store directory: %w", err)
	}
	data, err := json.MarshalIndent(s.hashes, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal hash store: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write hash store: %w", err)
	}
	return nil
}

// Merge folds other's entries into s, with other winning conflicts.
func (s *HashStore) Merge(other *HashStore) {
	for url, digest := range other.hashes {
		s.hashes[url] = digest
	}
}

// URLs returns the recorded URLs in sorted order.
func (s *HashStore) URLs() []string {
	urls := make([]string, 0, len(s.hashes))
	for u := range s.hashes {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// Len returns the number of recorded documents.
func (s *HashStore) Len() int {
	return len(s.hashes)
}
