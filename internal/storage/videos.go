package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"vidpress/internal/models"
)

// CreateVideo registers a video owned by the provided user.
func (s *Storage) CreateVideo(params CreateVideoParams) (models.Video, error) {
	title := strings.TrimSpace(params.Title)
	filename := strings.TrimSpace(params.Filename)
	if params.OwnerID == "" {
		return models.Video{}, errors.New("owner is required")
	}
	if filename == "" {
		return models.Video{}, errors.New("filename is required")
	}
	if len(title) > MaxVideoTitleLength {
		return models.Video{}, fmt.Errorf("title exceeds %d characters", MaxVideoTitleLength)
	}

	id, err := generateID()
	if err != nil {
		return models.Video{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[params.OwnerID]; !ok {
		return models.Video{}, fmt.Errorf("user %s: %w", params.OwnerID, ErrNotFound)
	}

	now := s.now()
	video := models.Video{
		ID:        id,
		OwnerID:   params.OwnerID,
		Title:     title,
		Filename:  filename,
		SizeBytes: params.SizeBytes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if params.KeywordSetID != nil && strings.TrimSpace(*params.KeywordSetID) != "" {
		ref := strings.TrimSpace(*params.KeywordSetID)
		video.KeywordSetID = &ref
	}

	updatedData := cloneDataset(s.data)
	updatedData.Videos[id] = video
	if err := s.persistDataset(updatedData); err != nil {
		return models.Video{}, err
	}
	s.data = updatedData

	return video, nil
}

// GetVideo looks up a video scoped to its owner. Videos belonging to other
// users are treated as absent.
func (s *Storage) GetVideo(ownerID, id string) (models.Video, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	video, ok := s.data.Videos[id]
	if !ok || video.OwnerID != ownerID {
		return models.Video{}, false
	}
	return video, true
}

func (s *Storage) ListVideos(ownerID string) []models.Video {
	s.mu.RLock()
	defer s.mu.RUnlock()
	videos := make([]models.Video, 0)
	for _, video := range s.data.Videos {
		if video.OwnerID == ownerID {
			videos = append(videos, video)
		}
	}
	sort.Slice(videos, func(i, j int) bool { return videos[i].CreatedAt.After(videos[j].CreatedAt) })
	return videos
}

// RecordPublication stores the outcome of a completed YouTube upload.
func (s *Storage) RecordPublication(ownerID, id string, pub models.Publication) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)
	video, ok := updatedData.Videos[id]
	if !ok || video.OwnerID != ownerID {
		return models.Video{}, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}

	video.Publication = pub
	video.Publication.Tags = append([]string(nil), pub.Tags...)
	video.UpdatedAt = s.now()
	updatedData.Videos[id] = video

	if err := s.persistDataset(updatedData); err != nil {
		return models.Video{}, err
	}
	s.data = updatedData

	return video, nil
}

// MarkRedirectAttempted flags that the user was handed off to the manual
// upload page for this video. Best effort bookkeeping.
func (s *Storage) MarkRedirectAttempted(ownerID, id string) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)
	video, ok := updatedData.Videos[id]
	if !ok || video.OwnerID != ownerID {
		return models.Video{}, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}

	video.RedirectAttempted = true
	video.UpdatedAt = s.now()
	updatedData.Videos[id] = video

	if err := s.persistDataset(updatedData); err != nil {
		return models.Video{}, err
	}
	s.data = updatedData

	return video, nil
}

// PutKeywordSet stores a keyword payload, generating an ID when absent.
func (s *Storage) PutKeywordSet(set models.KeywordSet) (models.KeywordSet, error) {
	if set.ID == "" {
		id, err := generateID()
		if err != nil {
			return models.KeywordSet{}, err
		}
		set.ID = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if set.CreatedAt.IsZero() {
		set.CreatedAt = s.now()
	}

	updatedData := cloneDataset(s.data)
	updatedData.KeywordSets[set.ID] = set
	if err := s.persistDataset(updatedData); err != nil {
		return models.KeywordSet{}, err
	}
	s.data = updatedData

	return set, nil
}

func (s *Storage) GetKeywordSet(id string) (models.KeywordSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.data.KeywordSets[id]
	return set, ok
}
