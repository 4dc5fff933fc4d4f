package storage

import (
	"context"

	"vidpress/internal/models"
)

// Repository exposes the datastore operations required by API handlers, the
// YouTube publisher, and the notification worker.
type Repository interface {
	Ping(ctx context.Context) error

	CreateUser(params CreateUserParams) (models.User, error)
	AuthenticateUser(email, password string) (models.User, error)
	ListUsers() []models.User
	GetUser(id string) (models.User, bool)
	FindUserByEmail(email string) (models.User, bool)
	UpdateUser(id string, update UserUpdate) (models.User, error)
	SetUserPassword(id, password string) (models.User, error)
	DeleteUser(id string) error

	SaveYouTubeCredential(userID string, cred models.Credential) (models.User, error)
	UpdateYouTubeToken(userID, accessToken string, expiresAt int64) (models.User, error)
	UpdateYouTubeChannel(userID, channelID, channelTitle string) (models.User, error)
	ClearYouTubeCredential(userID string) (models.User, error)

	CreateVideo(params CreateVideoParams) (models.Video, error)
	GetVideo(ownerID, id string) (models.Video, bool)
	ListVideos(ownerID string) []models.Video
	RecordPublication(ownerID, id string, pub models.Publication) (models.Video, error)
	MarkRedirectAttempted(ownerID, id string) (models.Video, error)

	PutKeywordSet(set models.KeywordSet) (models.KeywordSet, error)
	GetKeywordSet(id string) (models.KeywordSet, bool)

	CreateNotification(params CreateNotificationParams) (models.Notification, error)
	ListNotifications(userID string, limit, offset int) []models.Notification
	MarkNotificationRead(userID, id string) (models.Notification, error)
	MarkAllNotificationsRead(userID string) (int, error)
}

var _ Repository = (*Storage)(nil)
