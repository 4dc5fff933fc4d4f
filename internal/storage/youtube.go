package storage

import (
	"fmt"

	"vidpress/internal/models"
)

// SaveYouTubeCredential replaces the user's linked YouTube account state.
// Called after a successful token exchange.
func (s *Storage) SaveYouTubeCredential(userID string, cred models.Credential) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)
	user, ok := updatedData.Users[userID]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}

	user.YouTube = cred
	user.UpdatedAt = s.now()
	updatedData.Users[userID] = user

	if err := s.persistDataset(updatedData); err != nil {
		return models.User{}, err
	}
	s.data = updatedData

	return user, nil
}

// UpdateYouTubeToken stores a refreshed access token and its new expiry.
// Concurrent refreshes race; the last writer wins.
func (s *Storage) UpdateYouTubeToken(userID, accessToken string, expiresAt int64) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)
	user, ok := updatedData.Users[userID]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}

	user.YouTube.AccessToken = accessToken
	user.YouTube.ExpiresAt = expiresAt
	user.UpdatedAt = s.now()
	updatedData.Users[userID] = user

	if err := s.persistDataset(updatedData); err != nil {
		return models.User{}, err
	}
	s.data = updatedData

	return user, nil
}

// UpdateYouTubeChannel records the verified channel identity for the user.
func (s *Storage) UpdateYouTubeChannel(userID, channelID, channelTitle string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)
	user, ok := updatedData.Users[userID]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}

	user.YouTube.ChannelID = channelID
	user.YouTube.ChannelTitle = channelTitle
	user.UpdatedAt = s.now()
	updatedData.Users[userID] = user

	if err := s.persistDataset(updatedData); err != nil {
		return models.User{}, err
	}
	s.data = updatedData

	return user, nil
}

// ClearYouTubeCredential disconnects the user's YouTube account.
func (s *Storage) ClearYouTubeCredential(userID string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)
	user, ok := updatedData.Users[userID]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}

	user.YouTube = models.Credential{}
	user.UpdatedAt = s.now()
	updatedData.Users[userID] = user

	if err := s.persistDataset(updatedData); err != nil {
		return models.User{}, err
	}
	s.data = updatedData

	return user, nil
}
