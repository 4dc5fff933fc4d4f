package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"vidpress/internal/models"
)

func TestBeginAuthBuildsConsentURL(t *testing.T) {
	repo := newTestRepo(t)
	mgr := newTestManager(t, repo, Config{})

	raw, err := mgr.BeginAuth("user-1")
	if err != nil {
		t.Fatalf("BeginAuth error: %v", err)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse consent url: %v", err)
	}
	if got := parsed.Scheme + "://" + parsed.Host + parsed.Path; got != defaultAuthURL {
		t.Fatalf("consent base = %q, want %q", got, defaultAuthURL)
	}

	query := parsed.Query()
	want := map[string]string{
		"response_type":          "code",
		"client_id":              "client-id",
		"redirect_uri":           "https://vidpress.example/api/youtube/callback",
		"scope":                  strings.Join(DefaultScopes, " "),
		"state":                  "user-1",
		"access_type":            "offline",
		"prompt":                 "consent",
		"include_granted_scopes": "true",
	}
	for key, value := range want {
		if got := query.Get(key); got != value {
			t.Errorf("query %s = %q, want %q", key, got, value)
		}
	}
}

func TestBeginAuthRequiresUserID(t *testing.T) {
	repo := newTestRepo(t)
	mgr := newTestManager(t, repo, Config{})
	if _, err := mgr.BeginAuth("  "); err == nil {
		t.Fatal("expected error for blank user id")
	}
}

func TestHandleCallbackProviderDenied(t *testing.T) {
	repo := newTestRepo(t)
	user := createTestUser(t, repo)
	mgr := newTestManager(t, repo, Config{})

	result := mgr.HandleCallback(context.Background(), user.ID, "code", user.ID, "access_denied")
	if result.Success {
		t.Fatal("expected failure result")
	}
	if !errors.Is(result.Err, ErrOAuthDenied) {
		t.Fatalf("error = %v, want ErrOAuthDenied", result.Err)
	}
}

func TestHandleCallbackMissingCode(t *testing.T) {
	repo := newTestRepo(t)
	user := createTestUser(t, repo)
	mgr := newTestManager(t, repo, Config{})

	result := mgr.HandleCallback(context.Background(), user.ID, "", user.ID, "")
	if !errors.Is(result.Err, ErrInvalidCallback) {
		t.Fatalf("error = %v, want ErrInvalidCallback", result.Err)
	}
}

func TestHandleCallbackStateMismatchPersistsNothing(t *testing.T) {
	repo := newTestRepo(t)
	user := createTestUser(t, repo)

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("token endpoint called despite state mismatch")
	}))
	defer tokenServer.Close()

	mgr := newTestManager(t, repo, Config{TokenURL: tokenServer.URL})
	result := mgr.HandleCallback(context.Background(), user.ID, "code", "someone-else", "")
	if !errors.Is(result.Err, ErrStateMismatch) {
		t.Fatalf("error = %v, want ErrStateMismatch", result.Err)
	}

	stored, ok := repo.GetUser(user.ID)
	if !ok {
		t.Fatal("user missing")
	}
	if stored.YouTube.Connected {
		t.Fatal("credential stored despite state mismatch")
	}
}

func TestHandleCallbackStoresCredential(t *testing.T) {
	repo := newTestRepo(t)
	user := createTestUser(t, repo)

	var exchangeForm url.Values
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		exchangeForm = r.PostForm
		if got := r.Header.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
			t.Errorf("content type = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"expires_in":    3600,
		})
	}))
	defer tokenServer.Close()

	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/youtube/v3/channels") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"id": "channel-1", "snippet": map[string]any{"title": "Creator Channel"}},
			},
		})
	}))
	defer apiServer.Close()

	mgr := newTestManager(t, repo, Config{TokenURL: tokenServer.URL, APIEndpoint: apiServer.URL})
	result := mgr.HandleCallback(context.Background(), user.ID, "auth-code", user.ID, "")
	if result.Err != nil {
		t.Fatalf("callback error: %v", result.Err)
	}
	if !result.Success || result.ChannelTitle != "Creator Channel" {
		t.Fatalf("result = %+v", result)
	}

	if got := exchangeForm.Get("grant_type"); got != "authorization_code" {
		t.Errorf("grant_type = %q", got)
	}
	if got := exchangeForm.Get("code"); got != "auth-code" {
		t.Errorf("code = %q", got)
	}
	if got := exchangeForm.Get("redirect_uri"); got != "https://vidpress.example/api/youtube/callback" {
		t.Errorf("redirect_uri = %q", got)
	}
	if got := exchangeForm.Get("client_secret"); got != "client-secret" {
		t.Errorf("client_secret = %q", got)
	}

	stored, _ := repo.GetUser(user.ID)
	cred := stored.YouTube
	if !cred.Connected {
		t.Fatal("credential not marked connected")
	}
	if cred.AccessToken != "new-access" || cred.RefreshToken != "new-refresh" {
		t.Fatalf("stored tokens = %q / %q", cred.AccessToken, cred.RefreshToken)
	}
	if want := testBase.Unix() + 3600; cred.ExpiresAt != want {
		t.Fatalf("expires at = %d, want %d", cred.ExpiresAt, want)
	}
	if cred.ChannelID != "channel-1" || cred.ChannelTitle != "Creator Channel" {
		t.Fatalf("channel = %q / %q", cred.ChannelID, cred.ChannelTitle)
	}
}

func TestHandleCallbackChannelLookupFailureStillLinks(t *testing.T) {
	repo := newTestRepo(t)
	user := createTestUser(t, repo)

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"expires_in":    3600,
		})
	}))
	defer tokenServer.Close()

	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":500}}`, http.StatusInternalServerError)
	}))
	defer apiServer.Close()

	mgr := newTestManager(t, repo, Config{TokenURL: tokenServer.URL, APIEndpoint: apiServer.URL})
	result := mgr.HandleCallback(context.Background(), user.ID, "auth-code", user.ID, "")
	if result.Err != nil || !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if result.ChannelTitle != "" {
		t.Fatalf("channel title = %q, want empty", result.ChannelTitle)
	}

	stored, _ := repo.GetUser(user.ID)
	if !stored.YouTube.Connected {
		t.Fatal("credential not stored")
	}
}

func TestHandleCallbackExchangeFailure(t *testing.T) {
	repo := newTestRepo(t)
	user := createTestUser(t, repo)

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer tokenServer.Close()

	mgr := newTestManager(t, repo, Config{TokenURL: tokenServer.URL})
	result := mgr.HandleCallback(context.Background(), user.ID, "bad-code", user.ID, "")
	if !errors.Is(result.Err, ErrTokenExchange) {
		t.Fatalf("error = %v, want ErrTokenExchange", result.Err)
	}

	stored, _ := repo.GetUser(user.ID)
	if stored.YouTube.Connected {
		t.Fatal("credential stored despite exchange failure")
	}
}

func TestEnsureFreshTokenReturnsCurrent(t *testing.T) {
	repo := newTestRepo(t)
	user := createConnectedUser(t, repo, testBase.Unix()+3600)

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("refresh attempted for a valid token")
	}))
	defer tokenServer.Close()

	mgr := newTestManager(t, repo, Config{TokenURL: tokenServer.URL})
	token, err := mgr.EnsureFreshToken(context.Background(), user)
	if err != nil {
		t.Fatalf("EnsureFreshToken error: %v", err)
	}
	if token != testAccessToken {
		t.Fatalf("token = %q, want stored access token", token)
	}
}

func TestEnsureFreshTokenRefreshesExpired(t *testing.T) {
	repo := newTestRepo(t)
	user := createConnectedUser(t, repo, testBase.Unix()-60)

	refreshes := 0
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("refresh_token"); got != testRefreshToken {
			t.Errorf("refresh_token = %q", got)
		}
		refreshes++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"access_token": "refreshed-access", "expires_in": 3600})
	}))
	defer tokenServer.Close()

	mgr := newTestManager(t, repo, Config{TokenURL: tokenServer.URL})
	token, err := mgr.EnsureFreshToken(context.Background(), user)
	if err != nil {
		t.Fatalf("EnsureFreshToken error: %v", err)
	}
	if token != "refreshed-access" {
		t.Fatalf("token = %q", token)
	}
	if refreshes != 1 {
		t.Fatalf("refresh count = %d, want 1", refreshes)
	}

	stored, _ := repo.GetUser(user.ID)
	cred := stored.YouTube
	if cred.AccessToken != "refreshed-access" {
		t.Fatalf("stored access token = %q", cred.AccessToken)
	}
	if cred.RefreshToken != testRefreshToken {
		t.Fatalf("refresh token changed to %q", cred.RefreshToken)
	}
	if want := testBase.Unix() + 3600; cred.ExpiresAt != want {
		t.Fatalf("expires at = %d, want %d", cred.ExpiresAt, want)
	}

	// A second call with the persisted credential must not refresh again.
	if _, err := mgr.EnsureFreshToken(context.Background(), stored); err != nil {
		t.Fatalf("second EnsureFreshToken error: %v", err)
	}
	if refreshes != 1 {
		t.Fatalf("refresh count after second call = %d, want 1", refreshes)
	}
}

func TestEnsureFreshTokenNotConnected(t *testing.T) {
	repo := newTestRepo(t)
	user := createTestUser(t, repo)
	mgr := newTestManager(t, repo, Config{})

	if _, err := mgr.EnsureFreshToken(context.Background(), user); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("error = %v, want ErrNotConnected", err)
	}
}

func TestEnsureFreshTokenRefreshFailure(t *testing.T) {
	repo := newTestRepo(t)
	user := createConnectedUser(t, repo, testBase.Unix()-60)

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer tokenServer.Close()

	mgr := newTestManager(t, repo, Config{TokenURL: tokenServer.URL})
	if _, err := mgr.EnsureFreshToken(context.Background(), user); !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("error = %v, want ErrAuthExpired", err)
	}

	stored, _ := repo.GetUser(user.ID)
	if stored.YouTube.AccessToken != testAccessToken {
		t.Fatal("stored token mutated by failed refresh")
	}
}

func TestStatusSilentRefresh(t *testing.T) {
	repo := newTestRepo(t)
	user := createConnectedUser(t, repo, testBase.Unix()-60)

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"access_token": "refreshed-access", "expires_in": 3600})
	}))
	defer tokenServer.Close()

	mgr := newTestManager(t, repo, Config{TokenURL: tokenServer.URL})
	status := mgr.Status(context.Background(), user)
	if !status.Connected {
		t.Fatal("expected connected status after silent refresh")
	}
	if want := testBase.Unix() + 3600; status.ExpiresAt != want {
		t.Fatalf("expires at = %d, want %d", status.ExpiresAt, want)
	}

	stored, _ := repo.GetUser(user.ID)
	if stored.YouTube.AccessToken != "refreshed-access" {
		t.Fatal("refreshed token not persisted")
	}
}

func TestStatusRefreshFailureDegrades(t *testing.T) {
	repo := newTestRepo(t)
	user := createConnectedUser(t, repo, testBase.Unix()-60)
	user, err := repo.UpdateYouTubeChannel(user.ID, "channel-1", "Creator Channel")
	if err != nil {
		t.Fatalf("UpdateYouTubeChannel error: %v", err)
	}

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer tokenServer.Close()

	mgr := newTestManager(t, repo, Config{TokenURL: tokenServer.URL})
	status := mgr.Status(context.Background(), user)
	if status.Connected {
		t.Fatal("expected degraded status")
	}
	if status.ChannelTitle != "Creator Channel" {
		t.Fatalf("channel title = %q", status.ChannelTitle)
	}

	// Report-only degradation: the stored credential is untouched.
	stored, _ := repo.GetUser(user.ID)
	if !stored.YouTube.Connected || stored.YouTube.RefreshToken != testRefreshToken {
		t.Fatal("stored credential mutated by failed status refresh")
	}
}

func TestStatusValidTokenWithoutRefreshToken(t *testing.T) {
	repo := newTestRepo(t)
	user := createTestUser(t, repo)
	user, err := repo.SaveYouTubeCredential(user.ID, models.Credential{
		Connected:   true,
		AccessToken: testAccessToken,
		ExpiresAt:   testBase.Unix() + 3600,
	})
	if err != nil {
		t.Fatalf("SaveYouTubeCredential error: %v", err)
	}

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("token endpoint called for a still-valid token")
	}))
	defer tokenServer.Close()

	mgr := newTestManager(t, repo, Config{TokenURL: tokenServer.URL})
	status := mgr.Status(context.Background(), user)
	if !status.Connected {
		t.Fatal("expected connected status while the access token is valid")
	}
	if want := testBase.Unix() + 3600; status.ExpiresAt != want {
		t.Fatalf("expires at = %d, want %d", status.ExpiresAt, want)
	}
}

func TestStatusExpiredTokenWithoutRefreshTokenDegrades(t *testing.T) {
	repo := newTestRepo(t)
	user := createTestUser(t, repo)
	user, err := repo.SaveYouTubeCredential(user.ID, models.Credential{
		Connected:   true,
		AccessToken: testAccessToken,
		ExpiresAt:   testBase.Unix() - 60,
	})
	if err != nil {
		t.Fatalf("SaveYouTubeCredential error: %v", err)
	}

	mgr := newTestManager(t, repo, Config{})
	if status := mgr.Status(context.Background(), user); status.Connected {
		t.Fatal("expected degraded status for an expired, unrefreshable credential")
	}
}

func TestDisconnectClearsCredential(t *testing.T) {
	repo := newTestRepo(t)
	user := createConnectedUser(t, repo, testBase.Unix()+3600)
	mgr := newTestManager(t, repo, Config{})

	if err := mgr.Disconnect(user.ID); err != nil {
		t.Fatalf("Disconnect error: %v", err)
	}
	stored, _ := repo.GetUser(user.ID)
	if stored.YouTube.Connected || stored.YouTube.AccessToken != "" {
		t.Fatalf("credential remains: %+v", stored.YouTube)
	}
}
