package youtube

import (
	"context"
	"strings"

	"google.golang.org/api/option"
	googleyoutube "google.golang.org/api/youtube/v3"
)

// newAPIService builds a YouTube Data API client authenticated with the
// provided access token. An endpoint override routes calls to a stub server
// in tests.
func newAPIService(ctx context.Context, endpoint, accessToken string) (*googleyoutube.Service, error) {
	opts := []option.ClientOption{option.WithTokenSource(tokenSourceFor(accessToken))}
	if trimmed := strings.TrimSpace(endpoint); trimmed != "" {
		opts = append(opts, option.WithEndpoint(trimmed))
	}
	return googleyoutube.NewService(ctx, opts...)
}
