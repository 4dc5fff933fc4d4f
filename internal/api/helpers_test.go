package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"vidpress/internal/auth"
	"vidpress/internal/models"
	"vidpress/internal/storage"
)

func newTestHandler(t *testing.T) (*Handler, *storage.Storage) {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("NewStorage error: %v", err)
	}
	handler := &Handler{
		Store:    store,
		Sessions: auth.NewSessionManager(time.Hour),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return handler, store
}

func createAPIUser(t *testing.T, store *storage.Storage, email string) models.User {
	t.Helper()
	user, err := store.CreateUser(storage.CreateUserParams{
		DisplayName: "Creator",
		Email:       email,
		Password:    "correct horse battery",
	})
	if err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	return user
}

func jsonBody(t *testing.T, payload interface{}) io.Reader {
	t.Helper()
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(data)
}

// authedRequest builds a request carrying the user in context the way the
// server middleware would after validating a session.
func authedRequest(t *testing.T, method, target string, payload interface{}, user models.User) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, jsonBody(t, payload))
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req.WithContext(ContextWithUser(req.Context(), user))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
