package youtube

import "errors"

var (
	// ErrOAuthDenied is reported when the user rejects the consent screen.
	ErrOAuthDenied = errors.New("authorization denied by user")
	// ErrInvalidCallback is reported when the provider redirect is missing
	// the code or state parameter.
	ErrInvalidCallback = errors.New("callback missing required parameters")
	// ErrStateMismatch is reported when the returned state does not match
	// the user who initiated the flow.
	ErrStateMismatch = errors.New("oauth state mismatch")
	// ErrTokenExchange is reported when the provider refuses to exchange an
	// authorization code.
	ErrTokenExchange = errors.New("token exchange failed")
	// ErrNotConnected is returned for operations that require a linked
	// YouTube account.
	ErrNotConnected = errors.New("youtube account not connected")
	// ErrAuthExpired is returned when the stored grant can no longer be
	// refreshed. The user must reconnect.
	ErrAuthExpired = errors.New("youtube authorization expired")
	// ErrFileNotFound is returned when the registered media file is absent
	// from disk.
	ErrFileNotFound = errors.New("video file not found")
	// ErrUploadFailed wraps provider rejections of the upload itself.
	ErrUploadFailed = errors.New("youtube upload failed")
	// ErrRefreshFailed marks a failed token refresh in degraded paths where
	// the caller only reports status.
	ErrRefreshFailed = errors.New("token refresh failed")
)
