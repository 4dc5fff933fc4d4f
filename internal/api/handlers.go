package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"vidpress/internal/auth"
	"vidpress/internal/models"
	"vidpress/internal/notify"
	"vidpress/internal/observability/metrics"
	"vidpress/internal/storage"
	"vidpress/internal/youtube"
)

const minPasswordLength = 8

// Handler bundles the dependencies shared by the HTTP endpoints. All fields
// are optional except Store; missing collaborators disable the routes that
// need them.
type Handler struct {
	Store               storage.Repository
	Sessions            *auth.SessionManager
	YouTube             *youtube.Manager
	Uploader            *youtube.Uploader
	Events              notify.Queue
	Logger              *slog.Logger
	Metrics             *metrics.Recorder
	SessionCookiePolicy SessionCookiePolicy

	sessionsOnce    sync.Once
	defaultSessions *auth.SessionManager
}

func (h *Handler) sessionManager() *auth.SessionManager {
	if h.Sessions != nil {
		return h.Sessions
	}
	h.sessionsOnce.Do(func() {
		h.defaultSessions = auth.NewSessionManager(0)
	})
	return h.defaultSessions
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (h *Handler) metrics() *metrics.Recorder {
	if h.Metrics != nil {
		return h.Metrics
	}
	return metrics.Default()
}

// publishEvent hands an event to the notification queue on a best-effort
// basis. The request may already be finished by the time the queue accepts,
// so a short detached context bounds the publish instead.
func (h *Handler) publishEvent(event notify.Event) {
	if h.Events == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.Events.Publish(ctx, event); err != nil {
		h.logger().Warn("event publish failed", "type", event.Type, "user_id", event.UserID, "error", err)
		return
	}
	h.metrics().ObserveNotification(string(event.Type))
}

// Health reports component availability for the /healthz endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	components, overallStatus, statusCode := h.componentHealth(r.Context())
	writeJSON(w, statusCode, map[string]interface{}{
		"status":     overallStatus,
		"components": components,
	})
}

type signupRequest struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phoneNumber"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type youtubeSummary struct {
	Connected    bool   `json:"connected"`
	ChannelID    string `json:"channelId,omitempty"`
	ChannelTitle string `json:"channelTitle,omitempty"`
}

type userResponse struct {
	ID          string                         `json:"id"`
	DisplayName string                         `json:"displayName"`
	Email       string                         `json:"email"`
	PhoneNumber string                         `json:"phoneNumber,omitempty"`
	Preferences models.NotificationPreferences `json:"preferences"`
	YouTube     youtubeSummary                 `json:"youtube"`
	CreatedAt   string                         `json:"createdAt"`
	UpdatedAt   string                         `json:"updatedAt"`
}

type authResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expiresAt"`
	User      userResponse `json:"user"`
}

// newUserResponse shapes a user for clients. Password hashes and OAuth tokens
// never leave the storage layer through this path.
func newUserResponse(user models.User) userResponse {
	return userResponse{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		PhoneNumber: user.PhoneNumber,
		Preferences: user.Preferences,
		YouTube: youtubeSummary{
			Connected:    user.YouTube.Connected,
			ChannelID:    user.YouTube.ChannelID,
			ChannelTitle: user.YouTube.ChannelTitle,
		},
		CreatedAt: user.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: user.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func newAuthResponse(token string, expiresAt time.Time, user models.User) authResponse {
	return authResponse{
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339Nano),
		User:      newUserResponse(user),
	}
}

// Signup registers a new account and opens a session for it.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid signup payload: %w", err))
		return
	}
	if strings.TrimSpace(req.DisplayName) == "" || strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("displayName and email are required"))
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, fmt.Errorf("password must be at least %d characters", minPasswordLength))
		return
	}
	user, err := h.Store.CreateUser(storage.CreateUserParams{
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Password:    req.Password,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		if errors.Is(err, storage.ErrEmailInUse) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.issueSession(w, r, user, http.StatusCreated)
}

// Login exchanges credentials for a session token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid login payload: %w", err))
		return
	}
	user, err := h.Store.AuthenticateUser(req.Email, req.Password)
	if err != nil {
		// Unsupported accounts and bad passwords read the same to callers.
		writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid credentials"))
		return
	}
	h.issueSession(w, r, user, http.StatusOK)
}

func (h *Handler) issueSession(w http.ResponseWriter, r *http.Request, user models.User, status int) {
	token, expiresAt, err := h.sessionManager().Create(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("create session: %w", err))
		return
	}
	h.setSessionCookie(w, r, token, expiresAt)
	writeJSON(w, status, newAuthResponse(token, expiresAt, user))
}

// Session reports or revokes the session presented with the request.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		user, err := h.AuthenticateRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"user": newUserResponse(user)})
	case http.MethodDelete:
		if token := ExtractToken(r); token != "" {
			if err := h.sessionManager().Revoke(token); err != nil {
				writeError(w, http.StatusInternalServerError, fmt.Errorf("revoke session: %w", err))
				return
			}
		}
		h.ClearSessionCookie(w, r)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", strings.Join([]string{http.MethodGet, http.MethodDelete}, ", "))
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}
