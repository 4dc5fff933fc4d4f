package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"vidpress/internal/models"
	"vidpress/internal/storage"
)

type profileUpdateRequest struct {
	DisplayName *string `json:"displayName"`
	PhoneNumber *string `json:"phoneNumber"`
}

type passwordChangeRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// Profile serves the authenticated user's profile and accepts partial
// updates. Absent fields keep their stored values.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, newUserResponse(user))
	case http.MethodPatch:
		var req profileUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid profile payload: %w", err))
			return
		}
		if req.DisplayName != nil && strings.TrimSpace(*req.DisplayName) == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("displayName cannot be empty"))
			return
		}
		updated, err := h.Store.UpdateUser(user.ID, storage.UserUpdate{
			DisplayName: req.DisplayName,
			PhoneNumber: req.PhoneNumber,
		})
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, newUserResponse(updated))
	default:
		w.Header().Set("Allow", strings.Join([]string{http.MethodGet, http.MethodPatch}, ", "))
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

// Password rotates the account password after verifying the current one.
func (h *Handler) Password(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPut {
		w.Header().Set("Allow", http.MethodPut)
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	var req passwordChangeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid password payload: %w", err))
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		writeError(w, http.StatusBadRequest, fmt.Errorf("password must be at least %d characters", minPasswordLength))
		return
	}
	if _, err := h.Store.AuthenticateUser(user.Email, req.CurrentPassword); err != nil {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("current password is incorrect"))
		return
	}
	if _, err := h.Store.SetUserPassword(user.ID, req.NewPassword); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// NotificationPreferences reads or replaces the user's notification settings.
func (h *Handler) NotificationPreferences(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, user.Preferences)
	case http.MethodPut:
		var prefs models.NotificationPreferences
		if err := decodeJSON(r, &prefs); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid preferences payload: %w", err))
			return
		}
		if prefs.SubscriberThreshold < 0 || prefs.LikeThreshold < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("milestone thresholds cannot be negative"))
			return
		}
		updated, err := h.Store.UpdateUser(user.ID, storage.UserUpdate{Preferences: &prefs})
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, updated.Preferences)
	default:
		w.Header().Set("Allow", strings.Join([]string{http.MethodGet, http.MethodPut}, ", "))
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}
