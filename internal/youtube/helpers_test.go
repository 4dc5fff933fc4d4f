package youtube

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"vidpress/internal/models"
	"vidpress/internal/storage"
)

const (
	testAccessToken  = "stored-access-token"
	testRefreshToken = "stored-refresh-token"
)

var testBase = time.Unix(1700000000, 0).UTC()

func newTestRepo(t *testing.T) *storage.Storage {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("NewStorage error: %v", err)
	}
	return store
}

func createTestUser(t *testing.T, repo *storage.Storage) models.User {
	t.Helper()
	user, err := repo.CreateUser(storage.CreateUserParams{
		DisplayName: "Creator",
		Email:       "creator@example.com",
		Password:    "correct horse battery",
	})
	if err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	return user
}

// createConnectedUser links a test account with a stored credential expiring
// at the provided epoch second.
func createConnectedUser(t *testing.T, repo *storage.Storage, expiresAt int64) models.User {
	t.Helper()
	user := createTestUser(t, repo)
	user, err := repo.SaveYouTubeCredential(user.ID, models.Credential{
		Connected:    true,
		AccessToken:  testAccessToken,
		RefreshToken: testRefreshToken,
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		t.Fatalf("SaveYouTubeCredential error: %v", err)
	}
	return user
}

func newTestManager(t *testing.T, repo storage.Repository, cfg Config) *Manager {
	t.Helper()
	if cfg.ClientID == "" {
		cfg.ClientID = "client-id"
	}
	if cfg.ClientSecret == "" {
		cfg.ClientSecret = "client-secret"
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = "https://vidpress.example/api/youtube/callback"
	}
	mgr, err := NewManager(cfg, repo,
		WithClock(func() time.Time { return testBase }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	return mgr
}
