package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"vidpress/internal/models"
)

// CreateNotification stores a notification for the target user.
func (s *Storage) CreateNotification(params CreateNotificationParams) (models.Notification, error) {
	message := strings.TrimSpace(params.Message)
	if params.UserID == "" {
		return models.Notification{}, errors.New("user is required")
	}
	if message == "" {
		return models.Notification{}, errors.New("message is required")
	}

	id, err := generateID()
	if err != nil {
		return models.Notification{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[params.UserID]; !ok {
		return models.Notification{}, fmt.Errorf("user %s: %w", params.UserID, ErrNotFound)
	}

	notification := models.Notification{
		ID:        id,
		UserID:    params.UserID,
		Type:      strings.TrimSpace(params.Type),
		Message:   message,
		CreatedAt: s.now(),
	}

	updatedData := cloneDataset(s.data)
	updatedData.Notifications[id] = notification
	if err := s.persistDataset(updatedData); err != nil {
		return models.Notification{}, err
	}
	s.data = updatedData

	return notification, nil
}

// ListNotifications returns the user's notifications, newest first. A limit
// of zero or less falls back to 10.
func (s *Storage) ListNotifications(userID string, limit, offset int) []models.Notification {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	notifications := make([]models.Notification, 0)
	for _, notification := range s.data.Notifications {
		if notification.UserID == userID {
			notifications = append(notifications, notification)
		}
	}
	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].CreatedAt.After(notifications[j].CreatedAt)
	})

	if offset >= len(notifications) {
		return []models.Notification{}
	}
	notifications = notifications[offset:]
	if len(notifications) > limit {
		notifications = notifications[:limit]
	}
	return notifications
}

// MarkNotificationRead flags a single notification as read.
func (s *Storage) MarkNotificationRead(userID, id string) (models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)
	notification, ok := updatedData.Notifications[id]
	if !ok || notification.UserID != userID {
		return models.Notification{}, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}

	notification.Read = true
	updatedData.Notifications[id] = notification

	if err := s.persistDataset(updatedData); err != nil {
		return models.Notification{}, err
	}
	s.data = updatedData

	return notification, nil
}

// MarkAllNotificationsRead flags every unread notification for the user and
// returns how many changed.
func (s *Storage) MarkAllNotificationsRead(userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)
	changed := 0
	for id, notification := range updatedData.Notifications {
		if notification.UserID == userID && !notification.Read {
			notification.Read = true
			updatedData.Notifications[id] = notification
			changed++
		}
	}
	if changed == 0 {
		return 0, nil
	}

	if err := s.persistDataset(updatedData); err != nil {
		return 0, err
	}
	s.data = updatedData

	return changed, nil
}
