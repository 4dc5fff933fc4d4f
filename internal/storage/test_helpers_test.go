package storage

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T, extra ...Option) *Storage {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	store, err := NewStorage(path, extra...)
	if err != nil {
		t.Fatalf("NewStorage error: %v", err)
	}
	return store
}

func createTestUser(t *testing.T, store *Storage) string {
	t.Helper()
	user, err := store.CreateUser(CreateUserParams{
		DisplayName: "Creator",
		Email:       "creator@example.com",
		Password:    "correct horse battery",
	})
	if err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	return user.ID
}
