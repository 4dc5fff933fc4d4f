package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"vidpress/internal/models"
)

var migrations = []string{
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		email TEXT NOT NULL,
		password_hash TEXT NOT NULL DEFAULT '',
		phone_number TEXT NOT NULL DEFAULT '',
		preferences JSONB NOT NULL DEFAULT '{}',
		yt_connected BOOLEAN NOT NULL DEFAULT FALSE,
		yt_access_token TEXT NOT NULL DEFAULT '',
		yt_refresh_token TEXT NOT NULL DEFAULT '',
		yt_expires_at BIGINT NOT NULL DEFAULT 0,
		yt_channel_id TEXT NOT NULL DEFAULT '',
		yt_channel_title TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE UNIQUE INDEX users_email_lower_idx ON users ((lower(email)))`,
	`CREATE TABLE keyword_sets (
		id TEXT PRIMARY KEY,
		video_id TEXT NOT NULL DEFAULT '',
		keywords JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE videos (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		title TEXT NOT NULL DEFAULT '',
		filename TEXT NOT NULL,
		size_bytes BIGINT NOT NULL DEFAULT 0,
		keyword_set_id TEXT,
		uploaded BOOLEAN NOT NULL DEFAULT FALSE,
		youtube_video_id TEXT NOT NULL DEFAULT '',
		uploaded_at TIMESTAMPTZ,
		published_title TEXT NOT NULL DEFAULT '',
		published_description TEXT NOT NULL DEFAULT '',
		published_tags TEXT[] NOT NULL DEFAULT '{}',
		redirect_attempted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX videos_owner_idx ON videos (owner_id, created_at DESC)`,
	`CREATE TABLE notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		type TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL,
		read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX notifications_user_idx ON notifications (user_id, created_at DESC)`,
}

// applyMigrations brings the schema up to the latest version. Applied
// migrations are tracked by count in the migration table.
func (r *postgresRepository) applyMigrations(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, "CREATE TABLE IF NOT EXISTS migration (version INTEGER PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())")
	if err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}
	var applied int
	if err := r.pool.QueryRow(ctx, "SELECT count(*) FROM migration").Scan(&applied); err != nil {
		return fmt.Errorf("count migrations: %w", err)
	}
	if applied > len(migrations) {
		return fmt.Errorf("schema is ahead of this binary: %d applied, %d known", applied, len(migrations))
	}
	for version := applied; version < len(migrations); version++ {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", version+1, err)
		}
		if _, err := tx.Exec(ctx, migrations[version]); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("apply migration %d: %w", version+1, err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO migration (version) VALUES ($1)", version+1); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("record migration %d: %w", version+1, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit migration %d: %w", version+1, err)
		}
	}
	return nil
}

func (r *postgresRepository) importSnapshot(ctx context.Context, snapshot *Snapshot) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin snapshot transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := importSnapshotUsers(ctx, tx, snapshot.Users); err != nil {
		return err
	}
	if err := importSnapshotKeywordSets(ctx, tx, snapshot.KeywordSets); err != nil {
		return err
	}
	if err := importSnapshotVideos(ctx, tx, snapshot.Videos); err != nil {
		return err
	}
	if err := importSnapshotNotifications(ctx, tx, snapshot.Notifications); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot import: %w", err)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func importSnapshotUsers(ctx context.Context, tx pgx.Tx, users map[string]models.User) error {
	for _, key := range sortedKeys(users) {
		user := users[key]
		id := strings.TrimSpace(user.ID)
		if id == "" {
			id = key
		}
		created := user.CreatedAt.UTC()
		if created.IsZero() {
			created = time.Now().UTC()
		}
		updated := user.UpdatedAt.UTC()
		if updated.IsZero() {
			updated = created
		}
		preferences, err := json.Marshal(user.Preferences)
		if err != nil {
			return fmt.Errorf("encode preferences %s: %w", id, err)
		}
		_, err = tx.Exec(ctx,
			"INSERT INTO users (id, display_name, email, password_hash, phone_number, preferences, yt_connected, yt_access_token, yt_refresh_token, yt_expires_at, yt_channel_id, yt_channel_title, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) ON CONFLICT (id) DO NOTHING",
			id, strings.TrimSpace(user.DisplayName), strings.TrimSpace(user.Email), user.PasswordHash, strings.TrimSpace(user.PhoneNumber), preferences,
			user.YouTube.Connected, user.YouTube.AccessToken, user.YouTube.RefreshToken, user.YouTube.ExpiresAt, user.YouTube.ChannelID, user.YouTube.ChannelTitle,
			created, updated)
		if err != nil {
			return fmt.Errorf("insert user %s: %w", id, err)
		}
	}
	return nil
}

func importSnapshotKeywordSets(ctx context.Context, tx pgx.Tx, sets map[string]models.KeywordSet) error {
	for _, key := range sortedKeys(sets) {
		set := sets[key]
		id := strings.TrimSpace(set.ID)
		if id == "" {
			id = key
		}
		created := set.CreatedAt.UTC()
		if created.IsZero() {
			created = time.Now().UTC()
		}
		raw := set.Raw
		if len(raw) == 0 {
			raw = json.RawMessage("[]")
		}
		_, err := tx.Exec(ctx,
			"INSERT INTO keyword_sets (id, video_id, keywords, created_at) VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING",
			id, strings.TrimSpace(set.VideoID), []byte(raw), created)
		if err != nil {
			return fmt.Errorf("insert keyword set %s: %w", id, err)
		}
	}
	return nil
}

func importSnapshotVideos(ctx context.Context, tx pgx.Tx, videos map[string]models.Video) error {
	for _, key := range sortedKeys(videos) {
		video := videos[key]
		id := strings.TrimSpace(video.ID)
		if id == "" {
			id = key
		}
		created := video.CreatedAt.UTC()
		if created.IsZero() {
			created = time.Now().UTC()
		}
		updated := video.UpdatedAt.UTC()
		if updated.IsZero() {
			updated = created
		}
		var keywordSetID any
		if video.KeywordSetID != nil && strings.TrimSpace(*video.KeywordSetID) != "" {
			keywordSetID = strings.TrimSpace(*video.KeywordSetID)
		}
		var uploadedAt any
		if video.UploadedAt != nil && !video.UploadedAt.IsZero() {
			uploadedAt = video.UploadedAt.UTC()
		}
		tags := append([]string(nil), video.Publication.Tags...)
		if tags == nil {
			tags = []string{}
		}
		_, err := tx.Exec(ctx,
			"INSERT INTO videos (id, owner_id, title, filename, size_bytes, keyword_set_id, uploaded, youtube_video_id, uploaded_at, published_title, published_description, published_tags, redirect_attempted, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15) ON CONFLICT (id) DO NOTHING",
			id, strings.TrimSpace(video.OwnerID), strings.TrimSpace(video.Title), strings.TrimSpace(video.Filename), video.SizeBytes, keywordSetID,
			video.Publication.Uploaded, strings.TrimSpace(video.Publication.YouTubeVideoID), uploadedAt, video.Publication.Title, video.Publication.Description, tags, video.Publication.RedirectAttempted,
			created, updated)
		if err != nil {
			return fmt.Errorf("insert video %s: %w", id, err)
		}
	}
	return nil
}

func importSnapshotNotifications(ctx context.Context, tx pgx.Tx, notifications map[string]models.Notification) error {
	for _, key := range sortedKeys(notifications) {
		notification := notifications[key]
		id := strings.TrimSpace(notification.ID)
		if id == "" {
			id = key
		}
		created := notification.CreatedAt.UTC()
		if created.IsZero() {
			created = time.Now().UTC()
		}
		_, err := tx.Exec(ctx,
			"INSERT INTO notifications (id, user_id, type, message, read, created_at) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING",
			id, strings.TrimSpace(notification.UserID), strings.TrimSpace(notification.Type), notification.Message, notification.Read, created)
		if err != nil {
			return fmt.Errorf("insert notification %s: %w", id, err)
		}
	}
	return nil
}
