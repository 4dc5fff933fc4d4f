package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"vidpress/internal/models"
)

// Snapshot captures a complete JSON-serialisable view of the in-memory
// datastore, grouping each model collection by its primary identifier so it
// can be persisted and later replayed into another backing store.
type Snapshot struct {
	Users         map[string]models.User         `json:"users"`
	Videos        map[string]models.Video        `json:"videos"`
	KeywordSets   map[string]models.KeywordSet   `json:"keywordSets"`
	Notifications map[string]models.Notification `json:"notifications"`
}

// SnapshotCounts summarises the size of each collection stored in a Snapshot
// to help operators understand how much data will be imported.
type SnapshotCounts struct {
	Users         int
	Videos        int
	KeywordSets   int
	Notifications int
}

// LoadSnapshotFromJSON reads a previously exported Snapshot from disk.
func LoadSnapshotFromJSON(path string) (*Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	var snapshot Snapshot
	if err := decoder.Decode(&snapshot); err != nil {
		if err == io.EOF {
			snapshot.ensureInitialized()
			return &snapshot, nil
		}
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	snapshot.ensureInitialized()
	return &snapshot, nil
}

func (s *Snapshot) ensureInitialized() {
	if s.Users == nil {
		s.Users = make(map[string]models.User)
	}
	if s.Videos == nil {
		s.Videos = make(map[string]models.Video)
	}
	if s.KeywordSets == nil {
		s.KeywordSets = make(map[string]models.KeywordSet)
	}
	if s.Notifications == nil {
		s.Notifications = make(map[string]models.Notification)
	}
}

// Counts returns the SnapshotCounts summary for the snapshot.
func (s *Snapshot) Counts() SnapshotCounts {
	if s == nil {
		return SnapshotCounts{}
	}
	return SnapshotCounts{
		Users:         len(s.Users),
		Videos:        len(s.Videos),
		KeywordSets:   len(s.KeywordSets),
		Notifications: len(s.Notifications),
	}
}

// ExportSnapshot copies the JSON store's current contents into a Snapshot.
func (s *Storage) ExportSnapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data := cloneDataset(s.data)
	snapshot := &Snapshot{
		Users:         data.Users,
		Videos:        data.Videos,
		KeywordSets:   data.KeywordSets,
		Notifications: data.Notifications,
	}
	snapshot.ensureInitialized()
	return snapshot
}

// ImportSnapshotToPostgres hands a Snapshot to the postgresRepository so the
// serialised datastore state can be bulk-loaded into Postgres.
func ImportSnapshotToPostgres(ctx context.Context, repo Repository, snapshot *Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot is required")
	}
	pgRepo, ok := repo.(*postgresRepository)
	if !ok {
		return fmt.Errorf("postgres repository required for snapshot import")
	}
	snapshot.ensureInitialized()
	return pgRepo.importSnapshot(ctx, snapshot)
}
