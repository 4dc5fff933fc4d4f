package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"vidpress/internal/models"
	"vidpress/internal/observability/metrics"
	"vidpress/internal/storage"
)

// Manager drives the OAuth lifecycle for linked YouTube accounts: building
// consent URLs, exchanging authorization codes, and refreshing expired access
// tokens before use.
type Manager struct {
	cfg    Config
	repo   storage.Repository
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// Option customises the manager.
type Option func(*Manager)

// WithHTTPClient overrides the HTTP client used for token exchanges.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		if client != nil {
			m.client = client
		}
	}
}

// WithLogger attaches a logger for degraded-path reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// NewManager constructs a Manager for the provided configuration.
func NewManager(cfg Config, repo storage.Repository, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mgr := &Manager{
		cfg:    cfg,
		repo:   repo,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(mgr)
		}
	}
	return mgr, nil
}

// BeginAuth builds the Google consent URL for the given user. The user ID
// doubles as the state parameter so the callback can be correlated with the
// account that initiated the flow.
func (m *Manager) BeginAuth(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}
	parsed, err := url.Parse(m.cfg.authURL())
	if err != nil {
		return "", fmt.Errorf("parse authorize url: %w", err)
	}
	query := parsed.Query()
	query.Set("response_type", "code")
	query.Set("client_id", m.cfg.ClientID)
	query.Set("redirect_uri", m.cfg.RedirectURL)
	query.Set("scope", strings.Join(m.cfg.scopes(), " "))
	query.Set("state", userID)
	query.Set("access_type", "offline")
	query.Set("prompt", "consent")
	query.Set("include_granted_scopes", "true")
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// CallbackResult reports the outcome of an OAuth callback. Failures are
// carried in Err rather than raised so the handler can render a structured
// response.
type CallbackResult struct {
	Success      bool
	ChannelTitle string
	Err          error
}

// HandleCallback completes the OAuth flow: it validates the redirect
// parameters, exchanges the code for tokens, persists the credential, and
// verifies the channel identity on a best-effort basis.
func (m *Manager) HandleCallback(ctx context.Context, userID, code, state, errParam string) CallbackResult {
	if strings.TrimSpace(errParam) != "" {
		return CallbackResult{Err: fmt.Errorf("%w: %s", ErrOAuthDenied, errParam)}
	}
	if strings.TrimSpace(code) == "" || strings.TrimSpace(state) == "" {
		return CallbackResult{Err: ErrInvalidCallback}
	}
	if state != userID {
		return CallbackResult{Err: ErrStateMismatch}
	}

	token, err := m.exchangeCode(ctx, code)
	if err != nil {
		return CallbackResult{Err: err}
	}

	cred := models.Credential{
		Connected:    true,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    m.expiryFor(token.ExpiresIn),
	}
	if _, err := m.repo.SaveYouTubeCredential(userID, cred); err != nil {
		return CallbackResult{Err: fmt.Errorf("save credential: %w", err)}
	}

	result := CallbackResult{Success: true}
	channelID, channelTitle, err := m.fetchChannel(ctx, token.AccessToken)
	if err != nil {
		// Channel verification is best effort. The account is linked
		// even when the lookup fails.
		m.logger.Warn("youtube channel verification failed", "user_id", userID, "error", err)
		return result
	}
	if _, err := m.repo.UpdateYouTubeChannel(userID, channelID, channelTitle); err != nil {
		m.logger.Warn("youtube channel persist failed", "user_id", userID, "error", err)
		return result
	}
	result.ChannelTitle = channelTitle
	return result
}

// EnsureFreshToken returns an access token valid for immediate use,
// refreshing at most once when the stored token has expired.
func (m *Manager) EnsureFreshToken(ctx context.Context, user models.User) (string, error) {
	cred := user.YouTube
	if !cred.Connected || strings.TrimSpace(cred.RefreshToken) == "" {
		return "", ErrNotConnected
	}
	if !cred.Expired(m.now()) {
		return cred.AccessToken, nil
	}
	accessToken, expiresAt, err := m.refreshToken(ctx, cred.RefreshToken)
	if err != nil {
		metrics.ObserveTokenRefresh("failure")
		return "", fmt.Errorf("%w: %v", ErrAuthExpired, err)
	}
	metrics.ObserveTokenRefresh("success")
	if _, err := m.repo.UpdateYouTubeToken(user.ID, accessToken, expiresAt); err != nil {
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}
	return accessToken, nil
}

// StatusResult summarises the connection state reported to clients.
type StatusResult struct {
	Connected    bool   `json:"connected"`
	ChannelID    string `json:"channelId,omitempty"`
	ChannelTitle string `json:"channelTitle,omitempty"`
	ExpiresAt    int64  `json:"expiresAt,omitempty"`
}

// Status reports whether the user's YouTube link is usable, refreshing an
// expired token silently. A failed refresh only degrades the response; the
// stored credential is left alone.
func (m *Manager) Status(ctx context.Context, user models.User) StatusResult {
	cred := user.YouTube
	if !cred.Connected {
		return StatusResult{}
	}
	if cred.Expired(m.now()) {
		if strings.TrimSpace(cred.RefreshToken) == "" {
			return StatusResult{Connected: false, ChannelID: cred.ChannelID, ChannelTitle: cred.ChannelTitle}
		}
		accessToken, expiresAt, err := m.refreshToken(ctx, cred.RefreshToken)
		if err != nil {
			m.logger.Warn("youtube status refresh failed", "user_id", user.ID, "error", errors.Join(ErrRefreshFailed, err))
			return StatusResult{Connected: false, ChannelID: cred.ChannelID, ChannelTitle: cred.ChannelTitle}
		}
		if _, err := m.repo.UpdateYouTubeToken(user.ID, accessToken, expiresAt); err != nil {
			m.logger.Warn("youtube status token persist failed", "user_id", user.ID, "error", err)
		}
		cred.ExpiresAt = expiresAt
	}
	return StatusResult{
		Connected:    true,
		ChannelID:    cred.ChannelID,
		ChannelTitle: cred.ChannelTitle,
		ExpiresAt:    cred.ExpiresAt,
	}
}

// Disconnect removes the stored credential for the user.
func (m *Manager) Disconnect(userID string) error {
	_, err := m.repo.ClearYouTubeCredential(userID)
	return err
}

func (m *Manager) expiryFor(expiresIn int64) int64 {
	if expiresIn <= 0 {
		return 0
	}
	return m.now().Unix() + expiresIn
}

type tokenResponse struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

func (m *Manager) exchangeCode(ctx context.Context, code string) (tokenResponse, error) {
	payload := url.Values{}
	payload.Set("grant_type", "authorization_code")
	payload.Set("code", code)
	payload.Set("redirect_uri", m.cfg.RedirectURL)
	payload.Set("client_id", m.cfg.ClientID)
	payload.Set("client_secret", m.cfg.ClientSecret)

	token, err := m.postTokenRequest(ctx, payload)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}
	if token.AccessToken == "" {
		return tokenResponse{}, fmt.Errorf("%w: response missing access_token", ErrTokenExchange)
	}
	return token, nil
}

func (m *Manager) refreshToken(ctx context.Context, refreshToken string) (string, int64, error) {
	payload := url.Values{}
	payload.Set("grant_type", "refresh_token")
	payload.Set("refresh_token", refreshToken)
	payload.Set("client_id", m.cfg.ClientID)
	payload.Set("client_secret", m.cfg.ClientSecret)

	token, err := m.postTokenRequest(ctx, payload)
	if err != nil {
		return "", 0, err
	}
	if token.AccessToken == "" {
		return "", 0, fmt.Errorf("refresh response missing access_token")
	}
	return token.AccessToken, m.expiryFor(token.ExpiresIn), nil
}

func (m *Manager) postTokenRequest(ctx context.Context, payload url.Values) (tokenResponse, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.tokenURL(), strings.NewReader(payload.Encode()))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("create token request: %w", err)
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	request.Header.Set("Accept", "application/json")

	response, err := m.client.Do(request)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("post token request: %w", err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("read token response: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return tokenResponse{}, fmt.Errorf("token endpoint returned %d: %s", response.StatusCode, snippet(body))
	}

	var parsed struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return tokenResponse{}, fmt.Errorf("decode token response: %w", err)
	}
	return tokenResponse{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		ExpiresIn:    parsed.ExpiresIn,
	}, nil
}

// fetchChannel resolves the authenticated user's channel identity.
func (m *Manager) fetchChannel(ctx context.Context, accessToken string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	service, err := newAPIService(ctx, m.cfg.APIEndpoint, accessToken)
	if err != nil {
		return "", "", fmt.Errorf("create youtube service: %w", err)
	}
	response, err := service.Channels.List([]string{"snippet"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return "", "", fmt.Errorf("list channels: %w", err)
	}
	if len(response.Items) == 0 {
		return "", "", fmt.Errorf("no channel on account")
	}
	channel := response.Items[0]
	title := ""
	if channel.Snippet != nil {
		title = channel.Snippet.Title
	}
	return channel.Id, title, nil
}

// tokenSourceFor wraps a bare access token for the Google API client.
func tokenSourceFor(accessToken string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
}

func snippet(body []byte) string {
	trimmed := string(bytes.TrimSpace(body))
	if len(trimmed) > 512 {
		trimmed = trimmed[:512]
	}
	return trimmed
}
