package youtube

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"vidpress/internal/models"
	"vidpress/internal/storage"
)

const (
	maxTags                 = 30
	descriptionKeywordCount = 5

	defaultTitle       = "Untitled Video"
	defaultDescription = "SEO optimized content"
	descriptionPrefix  = "Video analyzed with SEO keywords: "

	defaultPrivacyStatus = "private"
)

// keywordsFor loads and normalises the keyword list attached to a video.
// A missing or malformed set degrades to an empty list; keyword order is
// preserved.
func keywordsFor(repo storage.Repository, video models.Video) []string {
	if video.KeywordSetID == nil {
		return nil
	}
	set, ok := repo.GetKeywordSet(*video.KeywordSetID)
	if !ok {
		return nil
	}
	return normalizeKeywords(set.Keywords())
}

func normalizeKeywords(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		cleaned := norm.NFC.String(strings.TrimSpace(value))
		if cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}

// UploadOptions carries caller overrides for the published metadata. Empty
// fields fall back to the video record and its keywords.
type UploadOptions struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Privacy     string   `json:"privacy_status"`
}

// Metadata is the effective snippet sent to YouTube.
type Metadata struct {
	Title       string
	Description string
	Tags        []string
	Privacy     string
}

// effectiveMetadata merges caller overrides, the video record, and the
// keyword list into the final published metadata. Tags are capped at the
// YouTube limit of 30.
func effectiveMetadata(video models.Video, keywords []string, opts UploadOptions) Metadata {
	meta := Metadata{
		Title:       strings.TrimSpace(opts.Title),
		Description: strings.TrimSpace(opts.Description),
		Privacy:     strings.TrimSpace(opts.Privacy),
	}
	if meta.Title == "" {
		meta.Title = strings.TrimSpace(video.Title)
	}
	if meta.Title == "" {
		meta.Title = defaultTitle
	}
	if meta.Description == "" {
		if len(keywords) > 0 {
			count := descriptionKeywordCount
			if len(keywords) < count {
				count = len(keywords)
			}
			meta.Description = descriptionPrefix + strings.Join(keywords[:count], ", ")
		} else {
			meta.Description = defaultDescription
		}
	}
	if meta.Privacy == "" {
		meta.Privacy = defaultPrivacyStatus
	}

	tags := normalizeKeywords(opts.Tags)
	if len(tags) == 0 {
		tags = keywords
	}
	if len(tags) > maxTags {
		tags = tags[:maxTags]
	}
	// Always a non-nil slice so clients see [] rather than null.
	meta.Tags = append(make([]string, 0, len(tags)), tags...)
	return meta
}
