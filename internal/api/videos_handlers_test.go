package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRegisterVideoWithKeywords(t *testing.T) {
	handler, store := newTestHandler(t)
	user := createAPIUser(t, store, "creator@example.com")

	payload := map[string]interface{}{
		"title":     "Launch Day",
		"filename":  "launch.mp4",
		"sizeBytes": 2048,
		"keywords":  []string{"launch", "product demo"},
	}
	rec := httptest.NewRecorder()
	handler.Videos(rec, authedRequest(t, http.MethodPost, "/api/videos", payload, user))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp videoResponse
	decodeBody(t, rec, &resp)
	if resp.Title != "Launch Day" || resp.SizeBytes != 2048 {
		t.Fatalf("unexpected video: %+v", resp)
	}
	if resp.KeywordSetID == nil {
		t.Fatal("expected keyword set to be stored")
	}
	if len(resp.Keywords) != 2 || resp.Keywords[0] != "launch" {
		t.Fatalf("keywords = %v", resp.Keywords)
	}
	if resp.Publication.Uploaded {
		t.Fatal("new video should not be marked uploaded")
	}

	set, ok := store.GetKeywordSet(*resp.KeywordSetID)
	if !ok {
		t.Fatal("keyword set missing from store")
	}
	if got := set.Keywords(); len(got) != 2 {
		t.Fatalf("stored keywords = %v", got)
	}
}

func TestRegisterVideoRequiresTitleAndFilename(t *testing.T) {
	handler, store := newTestHandler(t)
	user := createAPIUser(t, store, "creator@example.com")

	payload := map[string]interface{}{"title": " ", "filename": "clip.mp4"}
	rec := httptest.NewRecorder()
	handler.Videos(rec, authedRequest(t, http.MethodPost, "/api/videos", payload, user))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestListVideosScopedToOwner(t *testing.T) {
	handler, store := newTestHandler(t)
	owner := createAPIUser(t, store, "owner@example.com")
	other := createAPIUser(t, store, "other@example.com")

	for _, u := range []struct {
		id    string
		title string
	}{{owner.ID, "Mine"}, {other.ID, "Theirs"}} {
		payload := map[string]interface{}{"title": u.title, "filename": "clip.mp4"}
		rec := httptest.NewRecorder()
		user := owner
		if u.id == other.ID {
			user = other
		}
		handler.Videos(rec, authedRequest(t, http.MethodPost, "/api/videos", payload, user))
		if rec.Code != http.StatusCreated {
			t.Fatalf("register status = %d", rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.Videos(rec, authedRequest(t, http.MethodGet, "/api/videos", nil, owner))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var videos []videoResponse
	decodeBody(t, rec, &videos)
	if len(videos) != 1 || videos[0].Title != "Mine" {
		t.Fatalf("videos = %+v", videos)
	}
}

func TestVideoByIDEnforcesOwnership(t *testing.T) {
	handler, store := newTestHandler(t)
	owner := createAPIUser(t, store, "owner@example.com")
	other := createAPIUser(t, store, "other@example.com")

	payload := map[string]interface{}{"title": "Mine", "filename": "clip.mp4"}
	rec := httptest.NewRecorder()
	handler.Videos(rec, authedRequest(t, http.MethodPost, "/api/videos", payload, owner))
	var created videoResponse
	decodeBody(t, rec, &created)

	rec = httptest.NewRecorder()
	handler.VideoByID(rec, authedRequest(t, http.MethodGet, "/api/videos/"+created.ID, nil, owner))
	if rec.Code != http.StatusOK {
		t.Fatalf("owner fetch status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.VideoByID(rec, authedRequest(t, http.MethodGet, "/api/videos/"+created.ID, nil, other))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-owner fetch status = %d", rec.Code)
	}
}

func TestRegisterVideoIgnoresNullKeywords(t *testing.T) {
	handler, store := newTestHandler(t)
	user := createAPIUser(t, store, "creator@example.com")

	payload := map[string]interface{}{
		"title":    "Launch Day",
		"filename": "launch.mp4",
		"keywords": json.RawMessage("null"),
	}
	rec := httptest.NewRecorder()
	handler.Videos(rec, authedRequest(t, http.MethodPost, "/api/videos", payload, user))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp videoResponse
	decodeBody(t, rec, &resp)
	if resp.KeywordSetID != nil {
		t.Fatalf("expected no keyword set, got %v", *resp.KeywordSetID)
	}
}
