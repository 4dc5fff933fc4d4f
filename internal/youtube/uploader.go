package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"google.golang.org/api/googleapi"
	googleyoutube "google.golang.org/api/youtube/v3"

	"vidpress/internal/models"
	"vidpress/internal/storage"
)

const (
	// People & Blogs. Matches what the analysis pipeline has always used.
	uploadCategoryID = "22"

	watchURLPrefix = "https://www.youtube.com/watch?v="
	uploadPageURL  = "https://www.youtube.com/upload"
)

// Uploader publishes registered videos to the owner's YouTube channel. The
// number of uploads in flight is bounded by a weighted semaphore so a burst
// of large files cannot exhaust the process.
type Uploader struct {
	manager *Manager
	repo    storage.Repository
	sem     *semaphore.Weighted
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewUploader builds an Uploader sharing the manager's configuration.
func NewUploader(manager *Manager, repo storage.Repository) *Uploader {
	return &Uploader{
		manager: manager,
		repo:    repo,
		sem:     semaphore.NewWeighted(manager.cfg.maxConcurrentUploads()),
		timeout: manager.cfg.uploadTimeout(),
		logger:  manager.logger,
		now:     manager.now,
	}
}

// UploadResult describes a completed upload.
type UploadResult struct {
	VideoID     string   `json:"videoId"`
	WatchURL    string   `json:"watchUrl"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// RedirectResult carries the manual-upload fallback hand-off.
type RedirectResult struct {
	UploadURL string   `json:"uploadUrl"`
	Metadata  Metadata `json:"metadata"`
}

// Upload publishes the video to YouTube and records the outcome. The video
// record is only mutated after the provider accepts the upload.
func (u *Uploader) Upload(ctx context.Context, user models.User, videoID string, opts UploadOptions) (UploadResult, error) {
	cred := user.YouTube
	if !cred.Connected || strings.TrimSpace(cred.RefreshToken) == "" {
		return UploadResult{}, ErrNotConnected
	}
	video, ok := u.repo.GetVideo(user.ID, videoID)
	if !ok {
		return UploadResult{}, fmt.Errorf("video %s: %w", videoID, storage.ErrNotFound)
	}

	// The token is refreshed before any file access so an expired link
	// surfaces as an auth failure, not a media one.
	token, err := u.manager.EnsureFreshToken(ctx, user)
	if err != nil {
		return UploadResult{}, err
	}

	keywords := keywordsFor(u.repo, video)
	meta := effectiveMetadata(video, keywords, opts)

	path := filepath.Join(u.manager.cfg.MediaDir, filepath.Base(video.Filename))
	file, err := os.Open(path)
	if err != nil {
		return UploadResult{}, fmt.Errorf("%w: %s", ErrFileNotFound, video.Filename)
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()
	if err := u.sem.Acquire(ctx, 1); err != nil {
		return UploadResult{}, fmt.Errorf("acquire upload slot: %w", err)
	}
	defer u.sem.Release(1)

	service, err := newAPIService(ctx, u.manager.cfg.APIEndpoint, token)
	if err != nil {
		return UploadResult{}, fmt.Errorf("create youtube service: %w", err)
	}

	payload := &googleyoutube.Video{
		Snippet: &googleyoutube.VideoSnippet{
			Title:       meta.Title,
			Description: meta.Description,
			Tags:        meta.Tags,
			CategoryId:  uploadCategoryID,
		},
		Status: &googleyoutube.VideoStatus{
			PrivacyStatus:           meta.Privacy,
			SelfDeclaredMadeForKids: false,
			ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
		},
	}
	uploaded, err := service.Videos.Insert([]string{"snippet,status"}, payload).
		Media(file).
		Context(ctx).
		Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return UploadResult{}, fmt.Errorf("%w: status %d: %s", ErrUploadFailed, apiErr.Code, snippet([]byte(apiErr.Body)))
		}
		return UploadResult{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	uploadedAt := u.now()
	publication := models.Publication{
		Uploaded:       true,
		YouTubeVideoID: uploaded.Id,
		UploadedAt:     &uploadedAt,
		Title:          meta.Title,
		Description:    meta.Description,
		Tags:           meta.Tags,
	}
	if _, err := u.repo.RecordPublication(user.ID, video.ID, publication); err != nil {
		return UploadResult{}, fmt.Errorf("record publication: %w", err)
	}

	u.logger.Info("youtube upload complete", "user_id", user.ID, "video_id", video.ID, "youtube_id", uploaded.Id)
	return UploadResult{
		VideoID:     uploaded.Id,
		WatchURL:    watchURLPrefix + uploaded.Id,
		Title:       meta.Title,
		Description: meta.Description,
		Tags:        meta.Tags,
	}, nil
}

// UploadRedirect prepares the manual-upload fallback: the caller gets the
// generic YouTube upload page plus the metadata they should enter by hand.
func (u *Uploader) UploadRedirect(ctx context.Context, user models.User, videoID string, opts UploadOptions) (RedirectResult, error) {
	cred := user.YouTube
	if !cred.Connected || strings.TrimSpace(cred.RefreshToken) == "" {
		return RedirectResult{}, ErrNotConnected
	}
	video, ok := u.repo.GetVideo(user.ID, videoID)
	if !ok {
		return RedirectResult{}, fmt.Errorf("video %s: %w", videoID, storage.ErrNotFound)
	}

	// The hand-off still requires a usable link, so an expired token is
	// refreshed (or rejected) before the caller is pointed at the upload page.
	if _, err := u.manager.EnsureFreshToken(ctx, user); err != nil {
		return RedirectResult{}, err
	}

	keywords := keywordsFor(u.repo, video)
	meta := effectiveMetadata(video, keywords, opts)

	// Best effort. A failed flag write must not block the hand-off.
	if _, err := u.repo.MarkRedirectAttempted(user.ID, video.ID); err != nil {
		u.logger.Warn("redirect flag persist failed", "user_id", user.ID, "video_id", video.ID, "error", err)
	}

	return RedirectResult{UploadURL: uploadPageURL, Metadata: meta}, nil
}
