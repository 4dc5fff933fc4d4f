package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"vidpress/internal/models"
	"vidpress/internal/storage"
)

type notificationResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"createdAt"`
}

func newNotificationResponse(n models.Notification) notificationResponse {
	return notificationResponse{
		ID:        n.ID,
		Type:      n.Type,
		Message:   n.Message,
		Read:      n.Read,
		CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// Notifications lists the caller's notifications, newest first. The limit and
// offset query parameters page through the feed.
func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	items := h.Store.ListNotifications(user.ID, limit, offset)
	responses := make([]notificationResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, newNotificationResponse(item))
	}
	writeJSON(w, http.StatusOK, responses)
}

// NotificationActions dispatches the subpaths under /api/notifications/:
// read-all marks everything read, {id}/read marks one notification read.
func (h *Handler) NotificationActions(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/notifications/")
	if rest == "read-all" {
		updated, err := h.Store.MarkAllNotificationsRead(user.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
		return
	}
	id, action, found := strings.Cut(rest, "/")
	if !found || id == "" || action != "read" {
		writeError(w, http.StatusNotFound, fmt.Errorf("notification action not found"))
		return
	}
	notification, err := h.Store.MarkNotificationRead(user.ID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, newNotificationResponse(notification))
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return value, nil
}
