package models

import (
	"encoding/json"
	"strings"
	"time"
)

type User struct {
	ID           string                  `json:"id"`
	DisplayName  string                  `json:"displayName"`
	Email        string                  `json:"email"`
	PasswordHash string                  `json:"passwordHash,omitempty"`
	PhoneNumber  string                  `json:"phoneNumber,omitempty"`
	Preferences  NotificationPreferences `json:"preferences"`
	YouTube      Credential              `json:"youtube"`
	CreatedAt    time.Time               `json:"createdAt"`
	UpdatedAt    time.Time               `json:"updatedAt"`
}

// Credential holds a user's linked YouTube account state. ExpiresAt is the
// absolute expiry of AccessToken in Unix seconds; zero means unknown.
type Credential struct {
	Connected    bool   `json:"connected"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresAt    int64  `json:"expiresAt,omitempty"`
	ChannelID    string `json:"channelId,omitempty"`
	ChannelTitle string `json:"channelTitle,omitempty"`
}

// Expired reports whether the access token's expiry has passed at the given
// instant. An unknown expiry counts as expired so callers refresh before use.
func (c Credential) Expired(now time.Time) bool {
	if c.ExpiresAt == 0 {
		return true
	}
	return now.Unix() >= c.ExpiresAt
}

type NotificationPreferences struct {
	UploadComplete      bool `json:"uploadComplete"`
	ChannelConnected    bool `json:"channelConnected"`
	SubscriberMilestone bool `json:"subscriberMilestone"`
	SubscriberThreshold int  `json:"subscriberThreshold,omitempty"`
	LikeMilestone       bool `json:"likeMilestone"`
	LikeThreshold       int  `json:"likeThreshold,omitempty"`
}

// DefaultNotificationPreferences enables the event notifications every new
// account starts with.
func DefaultNotificationPreferences() NotificationPreferences {
	return NotificationPreferences{
		UploadComplete:   true,
		ChannelConnected: true,
	}
}

type Video struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"ownerId"`
	Title        string     `json:"title"`
	Filename     string     `json:"filename"`
	SizeBytes    int64      `json:"sizeBytes"`
	KeywordSetID *string    `json:"keywordSetId,omitempty"`
	Publication  `json:"publication"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Publication records the outcome of publishing a video to YouTube.
type Publication struct {
	Uploaded          bool       `json:"uploaded"`
	YouTubeVideoID    string     `json:"youtubeVideoId,omitempty"`
	UploadedAt        *time.Time `json:"uploadedAt,omitempty"`
	Title             string     `json:"publishedTitle,omitempty"`
	Description       string     `json:"publishedDescription,omitempty"`
	Tags              []string   `json:"publishedTags,omitempty"`
	RedirectAttempted bool       `json:"redirectAttempted,omitempty"`
}

// KeywordSet stores the raw keyword payload produced by the analysis
// pipeline. Two historical shapes exist: a flat array of strings and an array
// of objects carrying a "keyword" field. Keywords normalises both.
type KeywordSet struct {
	ID        string          `json:"id"`
	VideoID   string          `json:"videoId,omitempty"`
	Raw       json.RawMessage `json:"keywords"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Keywords decodes the raw payload into an ordered list of keyword strings.
// Any shape it does not recognise yields an empty list rather than an error.
func (k KeywordSet) Keywords() []string {
	if len(k.Raw) == 0 {
		return nil
	}
	var plain []string
	if err := json.Unmarshal(k.Raw, &plain); err == nil {
		return compactKeywords(plain)
	}
	var wrapped []struct {
		Keyword string `json:"keyword"`
	}
	if err := json.Unmarshal(k.Raw, &wrapped); err != nil {
		return nil
	}
	out := make([]string, 0, len(wrapped))
	for _, item := range wrapped {
		out = append(out, item.Keyword)
	}
	return compactKeywords(out)
}

func compactKeywords(values []string) []string {
	out := values[:0]
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}
