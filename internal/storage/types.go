package storage

import (
	"errors"
	"sync"
	"time"

	"vidpress/internal/models"
)

const (
	passwordHashSaltLength = 16
	passwordHashKeyLength  = 32
	passwordHashIterations = 120000

	// MaxVideoTitleLength caps titles accepted when registering a video.
	MaxVideoTitleLength = 200
)

var (
	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrPasswordLoginUnsupported = errors.New("account does not support password login")

	// ErrNotFound is returned by mutating operations when the referenced
	// record does not exist. Lookups return an ok bool instead.
	ErrNotFound = errors.New("record not found")

	ErrEmailInUse = errors.New("email already registered")
)

type dataset struct {
	Users         map[string]models.User         `json:"users"`
	Videos        map[string]models.Video        `json:"videos"`
	KeywordSets   map[string]models.KeywordSet   `json:"keywordSets"`
	Notifications map[string]models.Notification `json:"notifications"`
}

type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
	now             func() time.Time
}

// CreateUserParams captures the attributes that can be set when creating a user.
type CreateUserParams struct {
	DisplayName string
	Email       string
	Password    string
	PhoneNumber string
}

// UserUpdate describes the mutable profile fields of a user. Nil pointers
// leave the stored value untouched.
type UserUpdate struct {
	DisplayName *string
	PhoneNumber *string
	Preferences *models.NotificationPreferences
}

// CreateVideoParams captures the information required to register a video.
type CreateVideoParams struct {
	OwnerID      string
	Title        string
	Filename     string
	SizeBytes    int64
	KeywordSetID *string
}

// CreateNotificationParams captures the data needed to store a notification.
type CreateNotificationParams struct {
	UserID  string
	Type    string
	Message string
}
