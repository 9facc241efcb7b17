package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoSnapshot indicates no snapshot file exists for the identifier.
var ErrNoSnapshot = errors.New("no snapshot")

// SnapshotStore keeps one JSON file per identifier under a single
// directory, holding the service record as returned (or a synthesized
// not-found placeholder when "save empty" is enabled).
type SnapshotStore struct {
	dir string
}

// NewSnapshotStore creates the snapshot directory if needed.
func NewSnapshotStore(dir string) (*SnapshotStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir %s: %w", dir, err)
	}
	return &SnapshotStore{dir: dir}, nil
}

// Dir returns the snapshot directory.
func (s *SnapshotStore) Dir() string { return s.dir }

func (s *SnapshotStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Read decodes the snapshot for an identifier. Returns ErrNoSnapshot if
// none exists; a present-but-undecodable file is a distinct error, which
// the resolver logs and then degrades into a miss, so a corrupted
// snapshot is re-queried rather than trusted.
func (s *SnapshotStore) Read(id string) (*Record, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSnapshot
		}
		CacheErrors.WithLabelValues("snapshot_read").Inc()
		return nil, fmt.Errorf("read snapshot %s: %w", s.path(id), err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		CacheErrors.WithLabelValues("snapshot_read").Inc()
		return nil, fmt.Errorf("decode snapshot %s: %w", s.path(id), err)
	}
	return &rec, nil
}

// Write persists the record as the identifier's snapshot. Each write is
// a complete file replacement, flushed on close.
func (s *SnapshotStore) Write(id string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		CacheErrors.WithLabelValues("snapshot_write").Inc()
		return fmt.Errorf("encode snapshot for %s: %w", id, err)
	}

	if err := os.WriteFile(s.path(id), data, 0o644); err != nil {
		CacheErrors.WithLabelValues("snapshot_write").Inc()
		return fmt.Errorf("write snapshot %s: %w", s.path(id), err)
	}
	return nil
}
