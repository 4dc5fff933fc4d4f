package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"vidpress/internal/models"
)

const pgUniqueViolation = "23505"

type postgresRepository struct {
	pool *pgxpool.Pool
	cfg  PostgresConfig
}

// NewPostgresRepository opens a Postgres-backed repository and applies any
// pending schema migrations.
func NewPostgresRepository(dsn string, opts ...Option) (Repository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections >= 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	repo := &postgresRepository{pool: pool, cfg: cfg}
	if err := repo.applyMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *postgresRepository) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.cfg.OperationTimeout)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

const userColumns = "id, display_name, email, password_hash, phone_number, preferences, yt_connected, yt_access_token, yt_refresh_token, yt_expires_at, yt_channel_id, yt_channel_title, created_at, updated_at"

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	var preferences []byte
	err := row.Scan(
		&user.ID,
		&user.DisplayName,
		&user.Email,
		&user.PasswordHash,
		&user.PhoneNumber,
		&preferences,
		&user.YouTube.Connected,
		&user.YouTube.AccessToken,
		&user.YouTube.RefreshToken,
		&user.YouTube.ExpiresAt,
		&user.YouTube.ChannelID,
		&user.YouTube.ChannelTitle,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return models.User{}, err
	}
	if len(preferences) > 0 {
		if err := json.Unmarshal(preferences, &user.Preferences); err != nil {
			return models.User{}, fmt.Errorf("decode preferences for user %s: %w", user.ID, err)
		}
	}
	return user, nil
}

func (r *postgresRepository) CreateUser(params CreateUserParams) (models.User, error) {
	displayName := strings.TrimSpace(params.DisplayName)
	email := strings.TrimSpace(params.Email)
	if displayName == "" {
		return models.User{}, errors.New("display name is required")
	}
	if email == "" {
		return models.User{}, errors.New("email is required")
	}
	if len(params.Password) < 8 {
		return models.User{}, errors.New("password must be at least 8 characters")
	}
	hashed, err := hashPassword(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	id, err := generateID()
	if err != nil {
		return models.User{}, err
	}

	preferences, err := json.Marshal(models.DefaultNotificationPreferences())
	if err != nil {
		return models.User{}, fmt.Errorf("encode preferences: %w", err)
	}

	ctx, cancel := r.opCtx()
	defer cancel()
	now := r.cfg.Clock()
	_, err = r.pool.Exec(ctx,
		"INSERT INTO users (id, display_name, email, password_hash, phone_number, preferences, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)",
		id, displayName, email, hashed, strings.TrimSpace(params.PhoneNumber), preferences, now)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrEmailInUse
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	user, ok := r.GetUser(id)
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return user, nil
}

func (r *postgresRepository) AuthenticateUser(email, password string) (models.User, error) {
	if password == "" {
		return models.User{}, errors.New("password is required")
	}
	user, ok := r.FindUserByEmail(email)
	if !ok {
		return models.User{}, ErrInvalidCredentials
	}
	if user.PasswordHash == "" {
		return models.User{}, ErrPasswordLoginUnsupported
	}
	if err := verifyPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}
	return user, nil
}

func (r *postgresRepository) ListUsers() []models.User {
	ctx, cancel := r.opCtx()
	defer cancel()
	rows, err := r.pool.Query(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at")
	if err != nil {
		return nil
	}
	defer rows.Close()
	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil
		}
		users = append(users, user)
	}
	return users
}

func (r *postgresRepository) GetUser(id string) (models.User, bool) {
	ctx, cancel := r.opCtx()
	defer cancel()
	user, err := scanUser(r.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
	if err != nil {
		return models.User{}, false
	}
	return user, true
}

func (r *postgresRepository) FindUserByEmail(email string) (models.User, bool) {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return models.User{}, false
	}
	ctx, cancel := r.opCtx()
	defer cancel()
	user, err := scanUser(r.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE lower(email) = lower($1)", trimmed))
	if err != nil {
		return models.User{}, false
	}
	return user, true
}

func (r *postgresRepository) UpdateUser(id string, update UserUpdate) (models.User, error) {
	user, ok := r.GetUser(id)
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if update.DisplayName != nil {
		trimmed := strings.TrimSpace(*update.DisplayName)
		if trimmed == "" {
			return models.User{}, errors.New("display name cannot be empty")
		}
		user.DisplayName = trimmed
	}
	if update.PhoneNumber != nil {
		user.PhoneNumber = strings.TrimSpace(*update.PhoneNumber)
	}
	if update.Preferences != nil {
		user.Preferences = *update.Preferences
	}
	preferences, err := json.Marshal(user.Preferences)
	if err != nil {
		return models.User{}, fmt.Errorf("encode preferences: %w", err)
	}

	ctx, cancel := r.opCtx()
	defer cancel()
	tag, err := r.pool.Exec(ctx,
		"UPDATE users SET display_name = $2, phone_number = $3, preferences = $4, updated_at = $5 WHERE id = $1",
		id, user.DisplayName, user.PhoneNumber, preferences, r.cfg.Clock())
	if err != nil {
		return models.User{}, fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	updated, _ := r.GetUser(id)
	return updated, nil
}

func (r *postgresRepository) SetUserPassword(id, password string) (models.User, error) {
	if len(password) < 8 {
		return models.User{}, errors.New("password must be at least 8 characters")
	}
	hashed, err := hashPassword(password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	ctx, cancel := r.opCtx()
	defer cancel()
	tag, err := r.pool.Exec(ctx,
		"UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1",
		id, hashed, r.cfg.Clock())
	if err != nil {
		return models.User{}, fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	user, _ := r.GetUser(id)
	return user, nil
}

func (r *postgresRepository) DeleteUser(id string) error {
	ctx, cancel := r.opCtx()
	defer cancel()
	tag, err := r.pool.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *postgresRepository) SaveYouTubeCredential(userID string, cred models.Credential) (models.User, error) {
	ctx, cancel := r.opCtx()
	defer cancel()
	tag, err := r.pool.Exec(ctx,
		"UPDATE users SET yt_connected = $2, yt_access_token = $3, yt_refresh_token = $4, yt_expires_at = $5, yt_channel_id = $6, yt_channel_title = $7, updated_at = $8 WHERE id = $1",
		userID, cred.Connected, cred.AccessToken, cred.RefreshToken, cred.ExpiresAt, cred.ChannelID, cred.ChannelTitle, r.cfg.Clock())
	if err != nil {
		return models.User{}, fmt.Errorf("save youtube credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.User{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	user, _ := r.GetUser(userID)
	return user, nil
}

func (r *postgresRepository) UpdateYouTubeToken(userID, accessToken string, expiresAt int64) (models.User, error) {
	ctx, cancel := r.opCtx()
	defer cancel()
	tag, err := r.pool.Exec(ctx,
		"UPDATE users SET yt_access_token = $2, yt_expires_at = $3, updated_at = $4 WHERE id = $1",
		userID, accessToken, expiresAt, r.cfg.Clock())
	if err != nil {
		return models.User{}, fmt.Errorf("update youtube token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.User{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	user, _ := r.GetUser(userID)
	return user, nil
}

func (r *postgresRepository) UpdateYouTubeChannel(userID, channelID, channelTitle string) (models.User, error) {
	ctx, cancel := r.opCtx()
	defer cancel()
	tag, err := r.pool.Exec(ctx,
		"UPDATE users SET yt_channel_id = $2, yt_channel_title = $3, updated_at = $4 WHERE id = $1",
		userID, channelID, channelTitle, r.cfg.Clock())
	if err != nil {
		return models.User{}, fmt.Errorf("update youtube channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.User{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	user, _ := r.GetUser(userID)
	return user, nil
}

func (r *postgresRepository) ClearYouTubeCredential(userID string) (models.User, error) {
	ctx, cancel := r.opCtx()
	defer cancel()
	tag, err := r.pool.Exec(ctx,
		"UPDATE users SET yt_connected = FALSE, yt_access_token = '', yt_refresh_token = '', yt_expires_at = 0, yt_channel_id = '', yt_channel_title = '', updated_at = $2 WHERE id = $1",
		userID, r.cfg.Clock())
	if err != nil {
		return models.User{}, fmt.Errorf("clear youtube credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.User{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	user, _ := r.GetUser(userID)
	return user, nil
}

const videoColumns = "id, owner_id, title, filename, size_bytes, keyword_set_id, uploaded, youtube_video_id, uploaded_at, published_title, published_description, published_tags, redirect_attempted, created_at, updated_at"

func scanVideo(row pgx.Row) (models.Video, error) {
	var video models.Video
	err := row.Scan(
		&video.ID,
		&video.OwnerID,
		&video.Title,
		&video.Filename,
		&video.SizeBytes,
		&video.KeywordSetID,
		&video.Publication.Uploaded,
		&video.Publication.YouTubeVideoID,
		&video.Publication.UploadedAt,
		&video.Publication.Title,
		&video.Publication.Description,
		&video.Publication.Tags,
		&video.Publication.RedirectAttempted,
		&video.CreatedAt,
		&video.UpdatedAt,
	)
	if err != nil {
		return models.Video{}, err
	}
	return video, nil
}

func (r *postgresRepository) CreateVideo(params CreateVideoParams) (models.Video, error) {
	title := strings.TrimSpace(params.Title)
	filename := strings.TrimSpace(params.Filename)
	if params.OwnerID == "" {
		return models.Video{}, errors.New("owner is required")
	}
	if filename == "" {
		return models.Video{}, errors.New("filename is required")
	}
	if len(title) > MaxVideoTitleLength {
		return models.Video{}, fmt.Errorf("title exceeds %d characters", MaxVideoTitleLength)
	}
	id, err := generateID()
	if err != nil {
		return models.Video{}, err
	}

	var keywordSetID any
	if params.KeywordSetID != nil && strings.TrimSpace(*params.KeywordSetID) != "" {
		keywordSetID = strings.TrimSpace(*params.KeywordSetID)
	}

	ctx, cancel := r.opCtx()
	defer cancel()
	now := r.cfg.Clock()
	_, err = r.pool.Exec(ctx,
		"INSERT INTO videos (id, owner_id, title, filename, size_bytes, keyword_set_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)",
		id, params.OwnerID, title, filename, params.SizeBytes, keywordSetID, now)
	if err != nil {
		return models.Video{}, fmt.Errorf("insert video: %w", err)
	}
	video, ok := r.getVideoByID(id)
	if !ok {
		return models.Video{}, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	return video, nil
}

func (r *postgresRepository) getVideoByID(id string) (models.Video, bool) {
	ctx, cancel := r.opCtx()
	defer cancel()
	video, err := scanVideo(r.pool.QueryRow(ctx, "SELECT "+videoColumns+" FROM videos WHERE id = $1", id))
	if err != nil {
		return models.Video{}, false
	}
	return video, true
}

func (r *postgresRepository) GetVideo(ownerID, id string) (models.Video, bool) {
	ctx, cancel := r.opCtx()
	defer cancel()
	video, err := scanVideo(r.pool.QueryRow(ctx, "SELECT "+videoColumns+" FROM videos WHERE id = $1 AND owner_id = $2", id, ownerID))
	if err != nil {
		return models.Video{}, false
	}
	return video, true
}

func (r *postgresRepository) ListVideos(ownerID string) []models.Video {
	ctx, cancel := r.opCtx()
	defer cancel()
	rows, err := r.pool.Query(ctx, "SELECT "+videoColumns+" FROM videos WHERE owner_id = $1 ORDER BY created_at DESC", ownerID)
	if err != nil {
		return nil
	}
	defer rows.Close()
	videos := make([]models.Video, 0)
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil
		}
		videos = append(videos, video)
	}
	return videos
}

func (r *postgresRepository) RecordPublication(ownerID, id string, pub models.Publication) (models.Video, error) {
	tags := append([]string(nil), pub.Tags...)
	if tags == nil {
		tags = []string{}
	}
	ctx, cancel := r.opCtx()
	defer cancel()
	tag, err := r.pool.Exec(ctx,
		"UPDATE videos SET uploaded = $3, youtube_video_id = $4, uploaded_at = $5, published_title = $6, published_description = $7, published_tags = $8, redirect_attempted = $9, updated_at = $10 WHERE id = $1 AND owner_id = $2",
		id, ownerID, pub.Uploaded, pub.YouTubeVideoID, pub.UploadedAt, pub.Title, pub.Description, tags, pub.RedirectAttempted, r.cfg.Clock())
	if err != nil {
		return models.Video{}, fmt.Errorf("record publication: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.Video{}, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	video, _ := r.GetVideo(ownerID, id)
	return video, nil
}

func (r *postgresRepository) MarkRedirectAttempted(ownerID, id string) (models.Video, error) {
	ctx, cancel := r.opCtx()
	defer cancel()
	tag, err := r.pool.Exec(ctx,
		"UPDATE videos SET redirect_attempted = TRUE, updated_at = $3 WHERE id = $1 AND owner_id = $2",
		id, ownerID, r.cfg.Clock())
	if err != nil {
		return models.Video{}, fmt.Errorf("mark redirect attempted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.Video{}, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	video, _ := r.GetVideo(ownerID, id)
	return video, nil
}

func (r *postgresRepository) PutKeywordSet(set models.KeywordSet) (models.KeywordSet, error) {
	if set.ID == "" {
		id, err := generateID()
		if err != nil {
			return models.KeywordSet{}, err
		}
		set.ID = id
	}
	if set.CreatedAt.IsZero() {
		set.CreatedAt = r.cfg.Clock()
	}
	raw := set.Raw
	if len(raw) == 0 {
		raw = json.RawMessage("[]")
	}
	ctx, cancel := r.opCtx()
	defer cancel()
	_, err := r.pool.Exec(ctx,
		"INSERT INTO keyword_sets (id, video_id, keywords, created_at) VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO UPDATE SET video_id = EXCLUDED.video_id, keywords = EXCLUDED.keywords",
		set.ID, set.VideoID, []byte(raw), set.CreatedAt)
	if err != nil {
		return models.KeywordSet{}, fmt.Errorf("upsert keyword set: %w", err)
	}
	return set, nil
}

func (r *postgresRepository) GetKeywordSet(id string) (models.KeywordSet, bool) {
	ctx, cancel := r.opCtx()
	defer cancel()
	var set models.KeywordSet
	var raw []byte
	err := r.pool.QueryRow(ctx, "SELECT id, video_id, keywords, created_at FROM keyword_sets WHERE id = $1", id).
		Scan(&set.ID, &set.VideoID, &raw, &set.CreatedAt)
	if err != nil {
		return models.KeywordSet{}, false
	}
	set.Raw = json.RawMessage(raw)
	return set, true
}

func (r *postgresRepository) CreateNotification(params CreateNotificationParams) (models.Notification, error) {
	message := strings.TrimSpace(params.Message)
	if params.UserID == "" {
		return models.Notification{}, errors.New("user is required")
	}
	if message == "" {
		return models.Notification{}, errors.New("message is required")
	}
	id, err := generateID()
	if err != nil {
		return models.Notification{}, err
	}
	notification := models.Notification{
		ID:        id,
		UserID:    params.UserID,
		Type:      strings.TrimSpace(params.Type),
		Message:   message,
		CreatedAt: r.cfg.Clock(),
	}
	ctx, cancel := r.opCtx()
	defer cancel()
	_, err = r.pool.Exec(ctx,
		"INSERT INTO notifications (id, user_id, type, message, read, created_at) VALUES ($1, $2, $3, $4, FALSE, $5)",
		notification.ID, notification.UserID, notification.Type, notification.Message, notification.CreatedAt)
	if err != nil {
		return models.Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	return notification, nil
}

func (r *postgresRepository) ListNotifications(userID string, limit, offset int) []models.Notification {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	ctx, cancel := r.opCtx()
	defer cancel()
	rows, err := r.pool.Query(ctx,
		"SELECT id, user_id, type, message, read, created_at FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		userID, limit, offset)
	if err != nil {
		return nil
	}
	defer rows.Close()
	notifications := make([]models.Notification, 0, limit)
	for rows.Next() {
		var notification models.Notification
		if err := rows.Scan(&notification.ID, &notification.UserID, &notification.Type, &notification.Message, &notification.Read, &notification.CreatedAt); err != nil {
			return nil
		}
		notifications = append(notifications, notification)
	}
	return notifications
}

func (r *postgresRepository) MarkNotificationRead(userID, id string) (models.Notification, error) {
	ctx, cancel := r.opCtx()
	defer cancel()
	var notification models.Notification
	err := r.pool.QueryRow(ctx,
		"UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2 RETURNING id, user_id, type, message, read, created_at",
		id, userID).
		Scan(&notification.ID, &notification.UserID, &notification.Type, &notification.Message, &notification.Read, &notification.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Notification{}, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Notification{}, fmt.Errorf("mark notification read: %w", err)
	}
	return notification, nil
}

func (r *postgresRepository) MarkAllNotificationsRead(userID string) (int, error) {
	ctx, cancel := r.opCtx()
	defer cancel()
	tag, err := r.pool.Exec(ctx, "UPDATE notifications SET read = TRUE WHERE user_id = $1 AND NOT read", userID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

var _ Repository = (*postgresRepository)(nil)
