package youtube

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	defaultTokenURL = "https://oauth2.googleapis.com/token"

	defaultUploadTimeout        = 15 * time.Minute
	defaultMaxConcurrentUploads = 4
)

// DefaultScopes is the access requested from Google when linking an account:
// uploading videos plus reading the channel identity.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/youtube.upload",
	"https://www.googleapis.com/auth/youtube",
}

// Config describes the Google OAuth application and upload behaviour.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// AuthURL and TokenURL default to Google's endpoints and exist as
	// overrides for tests.
	AuthURL  string
	TokenURL string
	// APIEndpoint overrides the YouTube Data API base URL. Empty means the
	// production endpoint.
	APIEndpoint string

	Scopes []string

	// MediaDir is the directory holding registered video files.
	MediaDir string

	UploadTimeout        time.Duration
	MaxConcurrentUploads int64
}

// Validate checks that the configuration can drive an OAuth flow.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return fmt.Errorf("youtube client id is required")
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		return fmt.Errorf("youtube client secret is required")
	}
	if strings.TrimSpace(c.RedirectURL) == "" {
		return fmt.Errorf("youtube redirect url is required")
	}
	return nil
}

func (c Config) authURL() string {
	if strings.TrimSpace(c.AuthURL) != "" {
		return c.AuthURL
	}
	return defaultAuthURL
}

func (c Config) tokenURL() string {
	if strings.TrimSpace(c.TokenURL) != "" {
		return c.TokenURL
	}
	return defaultTokenURL
}

func (c Config) scopes() []string {
	if len(c.Scopes) > 0 {
		return c.Scopes
	}
	return DefaultScopes
}

func (c Config) uploadTimeout() time.Duration {
	if c.UploadTimeout > 0 {
		return c.UploadTimeout
	}
	return defaultUploadTimeout
}

func (c Config) maxConcurrentUploads() int64 {
	if c.MaxConcurrentUploads > 0 {
		return c.MaxConcurrentUploads
	}
	return defaultMaxConcurrentUploads
}
