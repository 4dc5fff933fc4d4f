package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"vidpress/internal/notify"
	"vidpress/internal/storage"
	"vidpress/internal/youtube"
)

func (h *Handler) requireYouTube(w http.ResponseWriter) bool {
	if h.YouTube == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("youtube integration is not configured"))
		return false
	}
	return true
}

// YouTubeAuth hands the client the consent URL that starts the OAuth flow.
func (h *Handler) YouTubeAuth(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok || !h.requireYouTube(w) {
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	authURL, err := h.YouTube.BeginAuth(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"authorizationUrl": authURL})
}

type callbackResponse struct {
	Connected    bool   `json:"connected"`
	ChannelTitle string `json:"channelTitle,omitempty"`
	Error        string `json:"error,omitempty"`
}

// YouTubeCallback completes the OAuth flow when the provider redirects back.
// Failures are reported in the body rather than as HTTP errors so the browser
// landing page can render them.
func (h *Handler) YouTubeCallback(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok || !h.requireYouTube(w) {
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	query := r.URL.Query()
	result := h.YouTube.HandleCallback(r.Context(), user.ID, query.Get("code"), query.Get("state"), query.Get("error"))
	if result.Err != nil {
		writeJSON(w, http.StatusOK, callbackResponse{Error: result.Err.Error()})
		return
	}
	message := "YouTube channel connected"
	if result.ChannelTitle != "" {
		message = fmt.Sprintf("YouTube channel %q connected", result.ChannelTitle)
	}
	h.publishEvent(notify.Event{
		Type:    notify.EventTypeChannelConnected,
		UserID:  user.ID,
		Message: message,
	})
	writeJSON(w, http.StatusOK, callbackResponse{Connected: true, ChannelTitle: result.ChannelTitle})
}

// YouTubeStatus reports the connection state, refreshing a stale token along
// the way.
func (h *Handler) YouTubeStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok || !h.requireYouTube(w) {
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	writeJSON(w, http.StatusOK, h.YouTube.Status(r.Context(), user))
}

// YouTubeConnection removes the stored credential for the caller.
func (h *Handler) YouTubeConnection(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok || !h.requireYouTube(w) {
		return
	}
	if r.Method != http.MethodDelete {
		w.Header().Set("Allow", http.MethodDelete)
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	if err := h.YouTube.Disconnect(user.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// YouTubeUpload publishes a registered video to the caller's channel.
func (h *Handler) YouTubeUpload(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	if h.Uploader == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("youtube integration is not configured"))
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	videoID := strings.TrimPrefix(r.URL.Path, "/api/youtube/upload/")
	if videoID == "" || strings.Contains(videoID, "/") {
		writeError(w, http.StatusNotFound, fmt.Errorf("video not found"))
		return
	}
	var opts youtube.UploadOptions
	if err := decodeOptionalJSON(r, &opts); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid upload payload: %w", err))
		return
	}
	h.metrics().UploadStarted(opts.Privacy)
	result, err := h.Uploader.Upload(r.Context(), user, videoID, opts)
	if err != nil {
		h.metrics().UploadFailed(opts.Privacy)
		writeError(w, uploadErrorStatus(err), err)
		return
	}
	h.metrics().UploadCompleted(opts.Privacy)
	h.publishEvent(notify.Event{
		Type:    notify.EventTypeUploadComplete,
		UserID:  user.ID,
		Message: fmt.Sprintf("%q was published to YouTube", result.Title),
		VideoID: videoID,
	})
	writeJSON(w, http.StatusOK, result)
}

// YouTubeUploadRedirect prepares the manual upload fallback for a video.
func (h *Handler) YouTubeUploadRedirect(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	if h.Uploader == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("youtube integration is not configured"))
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	videoID := strings.TrimPrefix(r.URL.Path, "/api/youtube/upload-url/")
	if videoID == "" || strings.Contains(videoID, "/") {
		writeError(w, http.StatusNotFound, fmt.Errorf("video not found"))
		return
	}
	var opts youtube.UploadOptions
	if err := decodeOptionalJSON(r, &opts); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	result, err := h.Uploader.UploadRedirect(r.Context(), user, videoID, opts)
	if err != nil {
		writeError(w, uploadErrorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// uploadErrorStatus maps publish failures onto HTTP statuses: auth problems
// surface as 401 so the client restarts the OAuth flow, missing records and
// media as 404, and provider rejections as 502.
func uploadErrorStatus(err error) int {
	switch {
	case errors.Is(err, youtube.ErrNotConnected), errors.Is(err, youtube.ErrAuthExpired):
		return http.StatusUnauthorized
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, youtube.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, youtube.ErrUploadFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
