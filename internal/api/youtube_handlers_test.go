package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vidpress/internal/models"
	"vidpress/internal/notify"
	"vidpress/internal/storage"
	"vidpress/internal/youtube"
)

func attachYouTube(t *testing.T, handler *Handler, store *storage.Storage, cfg youtube.Config) {
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
	if cfg.MediaDir == "" {
		cfg.MediaDir = t.TempDir()
	}
	manager, err := youtube.NewManager(cfg, store,
		youtube.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	handler.YouTube = manager
	handler.Uploader = youtube.NewUploader(manager, store)
}

func connectUser(t *testing.T, store *storage.Storage, userID string, expiresAt int64) models.User {
	t.Helper()
	user, err := store.SaveYouTubeCredential(userID, models.Credential{
		Connected:    true,
		AccessToken:  "stored-access-token",
		RefreshToken: "stored-refresh-token",
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		t.Fatalf("SaveYouTubeCredential error: %v", err)
	}
	return user
}

func expectEvent(t *testing.T, sub notify.Subscription, eventType notify.EventType) notify.Event {
	t.Helper()
	select {
	case event := <-sub.Events():
		if event.Type != eventType {
			t.Fatalf("event type = %q, want %q", event.Type, eventType)
		}
		return event
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s event", eventType)
		return notify.Event{}
	}
}

func TestYouTubeAuthReturnsConsentURL(t *testing.T) {
	handler, store := newTestHandler(t)
	user := createAPIUser(t, store, "creator@example.com")
	attachYouTube(t, handler, store, youtube.Config{})

	rec := httptest.NewRecorder()
	handler.YouTubeAuth(rec, authedRequest(t, http.MethodGet, "/api/youtube/auth", nil, user))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	authURL := resp["authorizationUrl"]
	if !strings.Contains(authURL, "client_id=client-id") {
		t.Fatalf("authorization url missing client id: %s", authURL)
	}
	if !strings.Contains(authURL, "state="+user.ID) {
		t.Fatalf("authorization url missing state: %s", authURL)
	}
}

func TestYouTubeCallbackConnectsAndPublishesEvent(t *testing.T) {
	handler, store := newTestHandler(t)
	user := createAPIUser(t, store, "creator@example.com")

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"new-access","refresh_token":"new-refresh","expires_in":3600,"token_type":"Bearer"}`)
	}))
	defer tokenSrv.Close()
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/channels") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[{"id":"channel-1","snippet":{"title":"Creator Channel"}}]}`)
	}))
	defer apiSrv.Close()

	attachYouTube(t, handler, store, youtube.Config{TokenURL: tokenSrv.URL, APIEndpoint: apiSrv.URL})
	handler.Events = notify.NewMemoryQueue(4)
	sub := handler.Events.Subscribe()
	defer sub.Close()

	target := "/api/youtube/callback?code=auth-code&state=" + user.ID
	rec := httptest.NewRecorder()
	handler.YouTubeCallback(rec, authedRequest(t, http.MethodGet, target, nil, user))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp callbackResponse
	decodeBody(t, rec, &resp)
	if !resp.Connected || resp.ChannelTitle != "Creator Channel" {
		t.Fatalf("unexpected callback response: %+v", resp)
	}

	stored, _ := store.GetUser(user.ID)
	if !stored.YouTube.Connected || stored.YouTube.RefreshToken != "new-refresh" {
		t.Fatalf("stored credential = %+v", stored.YouTube)
	}

	event := expectEvent(t, sub, notify.EventTypeChannelConnected)
	if event.UserID != user.ID {
		t.Fatalf("event user = %q", event.UserID)
	}
}

func TestYouTubeCallbackStateMismatchReportsError(t *testing.T) {
	handler, store := newTestHandler(t)
	user := createAPIUser(t, store, "creator@example.com")
	attachYouTube(t, handler, store, youtube.Config{})
	handler.Events = notify.NewMemoryQueue(4)
	sub := handler.Events.Subscribe()
	defer sub.Close()

	target := "/api/youtube/callback?code=auth-code&state=someone-else"
	rec := httptest.NewRecorder()
	handler.YouTubeCallback(rec, authedRequest(t, http.MethodGet, target, nil, user))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp callbackResponse
	decodeBody(t, rec, &resp)
	if resp.Connected || resp.Error == "" {
		t.Fatalf("unexpected callback response: %+v", resp)
	}

	select {
	case event := <-sub.Events():
		t.Fatalf("unexpected event published: %+v", event)
	default:
	}
}

func TestYouTubeStatusNotConnected(t *testing.T) {
	handler, store := newTestHandler(t)
	user := createAPIUser(t, store, "creator@example.com")
	attachYouTube(t, handler, store, youtube.Config{})

	rec := httptest.NewRecorder()
	handler.YouTubeStatus(rec, authedRequest(t, http.MethodGet, "/api/youtube/status", nil, user))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp youtube.StatusResult
	decodeBody(t, rec, &resp)
	if resp.Connected {
		t.Fatalf("unexpected status: %+v", resp)
	}
}

func TestYouTubeDisconnectClearsCredential(t *testing.T) {
	handler, store := newTestHandler(t)
	user := createAPIUser(t, store, "creator@example.com")
	user = connectUser(t, store, user.ID, time.Now().Add(time.Hour).Unix())
	attachYouTube(t, handler, store, youtube.Config{})

	rec := httptest.NewRecorder()
	handler.YouTubeConnection(rec, authedRequest(t, http.MethodDelete, "/api/youtube/connection", nil, user))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	stored, _ := store.GetUser(user.ID)
	if stored.YouTube.Connected || stored.YouTube.RefreshToken != "" {
		t.Fatalf("credential not cleared: %+v", stored.YouTube)
	}
}

func TestYouTubeUploadNotConnected(t *testing.T) {
	handler, store := newTestHandler(t)
	user := createAPIUser(t, store, "creator@example.com")
	attachYouTube(t, handler, store, youtube.Config{})

	rec := httptest.NewRecorder()
	handler.YouTubeUpload(rec, authedRequest(t, http.MethodPost, "/api/youtube/upload/vid-1", nil, user))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestYouTubeUploadUnknownVideo(t *testing.T) {
	handler, store := newTestHandler(t)
	user := createAPIUser(t, store, "creator@example.com")
	user = connectUser(t, store, user.ID, time.Now().Add(time.Hour).Unix())
	attachYouTube(t, handler, store, youtube.Config{})

	rec := httptest.NewRecorder()
	handler.YouTubeUpload(rec, authedRequest(t, http.MethodPost, "/api/youtube/upload/ghost", nil, user))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestYouTubeUploadPublishesEvent(t *testing.T) {
	handler, store := newTestHandler(t)
	user := createAPIUser(t, store, "creator@example.com")
	user = connectUser(t, store, user.ID, time.Now().Add(time.Hour).Unix())

	mediaDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(mediaDir, "clip.mp4"), []byte("not a real mp4"), 0o644); err != nil {
		t.Fatalf("write media file: %v", err)
	}

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/videos") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"yt-video-1"}`)
	}))
	defer apiSrv.Close()

	attachYouTube(t, handler, store, youtube.Config{APIEndpoint: apiSrv.URL, MediaDir: mediaDir})
	handler.Events = notify.NewMemoryQueue(4)
	sub := handler.Events.Subscribe()
	defer sub.Close()

	video, err := store.CreateVideo(storage.CreateVideoParams{
		OwnerID:  user.ID,
		Title:    "Launch Day",
		Filename: "clip.mp4",
	})
	if err != nil {
		t.Fatalf("CreateVideo error: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.YouTubeUpload(rec, authedRequest(t, http.MethodPost, "/api/youtube/upload/"+video.ID, nil, user))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp youtube.UploadResult
	decodeBody(t, rec, &resp)
	if resp.VideoID != "yt-video-1" {
		t.Fatalf("upload result = %+v", resp)
	}
	if !strings.HasSuffix(resp.WatchURL, "yt-video-1") {
		t.Fatalf("watch url = %q", resp.WatchURL)
	}

	event := expectEvent(t, sub, notify.EventTypeUploadComplete)
	if event.VideoID != video.ID {
		t.Fatalf("event video = %q", event.VideoID)
	}

	stored, _ := store.GetVideo(user.ID, video.ID)
	if !stored.Uploaded || stored.YouTubeVideoID != "yt-video-1" {
		t.Fatalf("publication not recorded: %+v", stored.Publication)
	}
}

func TestYouTubeUploadRedirectMarksAttempt(t *testing.T) {
	handler, store := newTestHandler(t)
	user := createAPIUser(t, store, "creator@example.com")
	user = connectUser(t, store, user.ID, time.Now().Add(time.Hour).Unix())
	attachYouTube(t, handler, store, youtube.Config{})

	video, err := store.CreateVideo(storage.CreateVideoParams{
		OwnerID:  user.ID,
		Title:    "Launch Day",
		Filename: "clip.mp4",
	})
	if err != nil {
		t.Fatalf("CreateVideo error: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.YouTubeUploadRedirect(rec, authedRequest(t, http.MethodPost, "/api/youtube/upload-url/"+video.ID, nil, user))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp youtube.RedirectResult
	decodeBody(t, rec, &resp)
	if resp.UploadURL != "https://www.youtube.com/upload" {
		t.Fatalf("upload url = %q", resp.UploadURL)
	}

	stored, _ := store.GetVideo(user.ID, video.ID)
	if !stored.RedirectAttempted {
		t.Fatal("redirect attempt not recorded")
	}
}

func TestYouTubeRoutesRequireConfiguration(t *testing.T) {
	handler, store := newTestHandler(t)
	user := createAPIUser(t, store, "creator@example.com")

	rec := httptest.NewRecorder()
	handler.YouTubeAuth(rec, authedRequest(t, http.MethodGet, "/api/youtube/auth", nil, user))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}
