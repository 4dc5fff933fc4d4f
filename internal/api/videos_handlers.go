package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"vidpress/internal/models"
	"vidpress/internal/storage"
)

type videoCreateRequest struct {
	Title     string          `json:"title"`
	Filename  string          `json:"filename"`
	SizeBytes int64           `json:"sizeBytes"`
	Keywords  json.RawMessage `json:"keywords"`
}

type publicationResponse struct {
	Uploaded          bool     `json:"uploaded"`
	YouTubeVideoID    string   `json:"youtubeVideoId,omitempty"`
	UploadedAt        string   `json:"uploadedAt,omitempty"`
	Title             string   `json:"title,omitempty"`
	Description       string   `json:"description,omitempty"`
	Tags              []string `json:"tags,omitempty"`
	RedirectAttempted bool     `json:"redirectAttempted,omitempty"`
}

type videoResponse struct {
	ID           string              `json:"id"`
	Title        string              `json:"title"`
	Filename     string              `json:"filename"`
	SizeBytes    int64               `json:"sizeBytes"`
	KeywordSetID *string             `json:"keywordSetId,omitempty"`
	Keywords     []string            `json:"keywords,omitempty"`
	Publication  publicationResponse `json:"publication"`
	CreatedAt    string              `json:"createdAt"`
	UpdatedAt    string              `json:"updatedAt"`
}

func (h *Handler) newVideoResponse(video models.Video) videoResponse {
	resp := videoResponse{
		ID:           video.ID,
		Title:        video.Title,
		Filename:     video.Filename,
		SizeBytes:    video.SizeBytes,
		KeywordSetID: video.KeywordSetID,
		Publication: publicationResponse{
			Uploaded:          video.Uploaded,
			YouTubeVideoID:    video.YouTubeVideoID,
			Title:             video.Publication.Title,
			Description:       video.Publication.Description,
			Tags:              video.Publication.Tags,
			RedirectAttempted: video.RedirectAttempted,
		},
		CreatedAt: video.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: video.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if video.UploadedAt != nil {
		resp.Publication.UploadedAt = video.UploadedAt.UTC().Format(time.RFC3339Nano)
	}
	if video.KeywordSetID != nil {
		if set, ok := h.Store.GetKeywordSet(*video.KeywordSetID); ok {
			resp.Keywords = set.Keywords()
		}
	}
	return resp
}

// Videos registers uploaded media metadata and lists the caller's library.
func (h *Handler) Videos(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req videoCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid video payload: %w", err))
			return
		}
		if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Filename) == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("title and filename are required"))
			return
		}
		if req.SizeBytes < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("sizeBytes cannot be negative"))
			return
		}
		params := storage.CreateVideoParams{
			OwnerID:   user.ID,
			Title:     req.Title,
			Filename:  req.Filename,
			SizeBytes: req.SizeBytes,
		}
		if len(req.Keywords) > 0 && string(req.Keywords) != "null" {
			set, err := h.Store.PutKeywordSet(models.KeywordSet{Raw: req.Keywords})
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Errorf("store keywords: %w", err))
				return
			}
			params.KeywordSetID = &set.ID
		}
		video, err := h.Store.CreateVideo(params)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, h.newVideoResponse(video))
	case http.MethodGet:
		videos := h.Store.ListVideos(user.ID)
		responses := make([]videoResponse, 0, len(videos))
		for _, video := range videos {
			responses = append(responses, h.newVideoResponse(video))
		}
		writeJSON(w, http.StatusOK, responses)
	default:
		w.Header().Set("Allow", strings.Join([]string{http.MethodGet, http.MethodPost}, ", "))
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

// VideoByID serves a single video owned by the caller.
func (h *Handler) VideoByID(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/videos/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, fmt.Errorf("video not found"))
		return
	}
	video, exists := h.Store.GetVideo(user.ID, id)
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Errorf("video not found"))
		return
	}
	writeJSON(w, http.StatusOK, h.newVideoResponse(video))
}
