// Command server starts the VidPress API HTTP service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"vidpress/internal/api"
	"vidpress/internal/auth"
	"vidpress/internal/notify"
	"vidpress/internal/observability/logging"
	"vidpress/internal/observability/metrics"
	"vidpress/internal/server"
	"vidpress/internal/storage"
	"vidpress/internal/youtube"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	dataPath := flag.String("data", "", "path to JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresAcquireTimeout := flag.Duration("postgres-acquire-timeout", 0, "timeout when acquiring a Postgres connection from the pool")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	sessionStoreDriver := flag.String("session-store", "", "session store driver (memory or postgres)")
	sessionPostgresDSN := flag.String("session-postgres-dsn", "", "Postgres DSN for the session store")
	sessionTTL := flag.Duration("session-ttl", 0, "session lifetime before re-authentication is required")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	loginLimit := flag.Int("rate-login-limit", 0, "maximum login attempts per window for a single IP")
	loginWindow := flag.Duration("rate-login-window", 0, "window for counting login attempts")
	trustForwarded := flag.Bool("rate-trust-forwarded-headers", false, "trust proxy-provided client IP headers")
	trustedProxies := flag.String("rate-trusted-proxies", "", "comma separated CIDR blocks or IPs of trusted proxies")
	redisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed login throttling")
	redisPassword := flag.String("rate-redis-password", "", "Redis password for distributed login throttling")
	redisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis operations")
	corsOrigins := flag.String("cors-allowed-origins", "", "comma separated origins allowed to call the API cross-site")
	notifyQueueDriver := flag.String("notify-queue-driver", "", "notification queue driver (memory or redis)")
	notifyRedisAddr := flag.String("notify-queue-redis-addr", "", "Redis address for the notification queue")
	notifyRedisAddrs := flag.String("notify-queue-redis-addrs", "", "comma separated Redis addresses for the notification queue")
	notifyRedisUsername := flag.String("notify-queue-redis-username", "", "Redis username for the notification queue")
	notifyRedisPassword := flag.String("notify-queue-redis-password", "", "Redis password for the notification queue")
	notifyRedisStream := flag.String("notify-queue-redis-stream", "", "Redis stream key for notification events")
	notifyRedisGroup := flag.String("notify-queue-redis-group", "", "Redis consumer group for notification events")
	youtubeClientID := flag.String("youtube-client-id", "", "Google OAuth client ID for YouTube publishing")
	youtubeClientSecret := flag.String("youtube-client-secret", "", "Google OAuth client secret for YouTube publishing")
	youtubeRedirectURL := flag.String("youtube-redirect-url", "", "OAuth redirect URL registered with Google")
	youtubeMediaDir := flag.String("youtube-media-dir", "", "directory holding registered video files")
	youtubeUploadTimeout := flag.Duration("youtube-upload-timeout", 0, "timeout for a single YouTube upload")
	youtubeMaxUploads := flag.Int("youtube-max-concurrent-uploads", 0, "maximum concurrent YouTube uploads")
	flag.Parse()

	logger := logging.New(logging.Config{Level: firstNonEmpty(*logLevel, os.Getenv("VIDPRESS_LOG_LEVEL"))})
	auditLogger := logging.WithComponent(logger, "audit")
	recorder := metrics.Default()

	serverMode := modeValue(*mode, os.Getenv("VIDPRESS_MODE"))
	listenAddr := resolveListenAddr(*addr, serverMode, os.Getenv("VIDPRESS_ADDR"))

	tlsCertPath := firstNonEmpty(*tlsCert, os.Getenv("VIDPRESS_TLS_CERT"))
	tlsKeyPath := firstNonEmpty(*tlsKey, os.Getenv("VIDPRESS_TLS_KEY"))

	postgresDefaultDSN := resolvePostgresDSN(*postgresDSN)
	driver, _, err := resolveStorageDriver(*storageDriver, os.Getenv("VIDPRESS_STORAGE_DRIVER"), postgresDefaultDSN)
	if err != nil {
		logger.Error("failed to resolve storage driver", "error", err)
		os.Exit(1)
	}
	if serverMode == "production" {
		if err := validateProductionDatastore(driver, postgresDefaultDSN, os.Getenv("VIDPRESS_POSTGRES_DSN")); err != nil {
			logger.Error("production datastore validation failed", "error", err)
			os.Exit(1)
		}
	}

	var (
		store                   storage.Repository
		storagePostgresDSN      string
		datastoreAcquireTimeout time.Duration
		storageDataPath         string
	)
	switch driver {
	case "json":
		storageDataPath = resolveDataPath(*dataPath, os.Getenv("VIDPRESS_DATA"))
		store, err = storage.NewJSONRepository(storageDataPath)
	case "postgres":
		storagePostgresDSN = postgresDefaultDSN
		if storagePostgresDSN == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		var pgOptions []storage.Option
		maxConns := resolveInt(*postgresMaxConns, "VIDPRESS_POSTGRES_MAX_CONNS")
		minConns := resolveInt(*postgresMinConns, "VIDPRESS_POSTGRES_MIN_CONNS")
		if maxConns > 0 || minConns > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolLimits(int32(maxConns), int32(minConns)))
		}
		maxLifetime := resolveDuration(*postgresMaxConnLifetime, "VIDPRESS_POSTGRES_MAX_CONN_LIFETIME", 0)
		maxIdle := resolveDuration(*postgresMaxConnIdle, "VIDPRESS_POSTGRES_MAX_CONN_IDLE", 0)
		healthInterval := resolveDuration(*postgresHealthInterval, "VIDPRESS_POSTGRES_HEALTH_INTERVAL", 0)
		if maxLifetime > 0 || maxIdle > 0 || healthInterval > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolDurations(maxLifetime, maxIdle, healthInterval))
		}
		acquireTimeout := resolveDuration(*postgresAcquireTimeout, "VIDPRESS_POSTGRES_ACQUIRE_TIMEOUT", 0)
		datastoreAcquireTimeout = acquireTimeout
		if acquireTimeout > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresAcquireTimeout(acquireTimeout))
		}
		appName := firstNonEmpty(*postgresAppName, os.Getenv("VIDPRESS_POSTGRES_APP_NAME"))
		if appName != "" {
			pgOptions = append(pgOptions, storage.WithPostgresApplicationName(appName))
		}
		store, err = storage.NewPostgresRepository(storagePostgresDSN, pgOptions...)
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	sessionConfig, err := resolveSessionStoreConfig(
		*sessionStoreDriver,
		os.Getenv("VIDPRESS_SESSION_STORE"),
		driver,
		storagePostgresDSN,
		*sessionPostgresDSN,
		os.Getenv("VIDPRESS_SESSION_POSTGRES_DSN"),
	)
	if err != nil {
		logger.Error("failed to resolve session store", "error", err)
		os.Exit(1)
	}

	var (
		sessionStore  auth.SessionStore
		sessionCloser func(context.Context) error
	)
	switch sessionConfig.Driver {
	case "memory":
		sessionStore = auth.NewMemorySessionStore()
	case "postgres":
		pgStore, err := auth.NewPostgresSessionStore(sessionConfig.DSN, auth.WithTimeout(datastoreAcquireTimeout))
		if err != nil {
			logger.Error("failed to open session store", "error", err)
			os.Exit(1)
		}
		sessionStore = pgStore
		sessionCloser = func(ctx context.Context) error { return pgStore.Close(ctx) }
	default:
		logger.Error("unsupported session store driver", "driver", sessionConfig.Driver)
		os.Exit(1)
	}

	sessions := auth.NewSessionManager(resolveDuration(*sessionTTL, "VIDPRESS_SESSION_TTL", 0), auth.WithStore(sessionStore))

	queueCfg := notify.RedisQueueConfig{
		Addr:     firstNonEmpty(*notifyRedisAddr, os.Getenv("VIDPRESS_NOTIFY_QUEUE_REDIS_ADDR")),
		Addrs:    splitAndTrim(firstNonEmpty(*notifyRedisAddrs, os.Getenv("VIDPRESS_NOTIFY_QUEUE_REDIS_ADDRS"))),
		Username: firstNonEmpty(*notifyRedisUsername, os.Getenv("VIDPRESS_NOTIFY_QUEUE_REDIS_USERNAME")),
		Password: firstNonEmpty(*notifyRedisPassword, os.Getenv("VIDPRESS_NOTIFY_QUEUE_REDIS_PASSWORD")),
		Stream:   firstNonEmpty(*notifyRedisStream, os.Getenv("VIDPRESS_NOTIFY_QUEUE_REDIS_STREAM")),
		Group:    firstNonEmpty(*notifyRedisGroup, os.Getenv("VIDPRESS_NOTIFY_QUEUE_REDIS_GROUP")),
	}
	queue, err := configureNotifyQueue(firstNonEmpty(*notifyQueueDriver, os.Getenv("VIDPRESS_NOTIFY_QUEUE_DRIVER")), queueCfg, logger)
	if err != nil {
		logger.Error("failed to configure notification queue", "error", err)
		os.Exit(1)
	}

	youtubeCfg := youtube.Config{
		ClientID:             firstNonEmpty(*youtubeClientID, os.Getenv("VIDPRESS_YOUTUBE_CLIENT_ID")),
		ClientSecret:         firstNonEmpty(*youtubeClientSecret, os.Getenv("VIDPRESS_YOUTUBE_CLIENT_SECRET")),
		RedirectURL:          firstNonEmpty(*youtubeRedirectURL, os.Getenv("VIDPRESS_YOUTUBE_REDIRECT_URL")),
		MediaDir:             firstNonEmpty(*youtubeMediaDir, os.Getenv("VIDPRESS_YOUTUBE_MEDIA_DIR")),
		UploadTimeout:        resolveDuration(*youtubeUploadTimeout, "VIDPRESS_YOUTUBE_UPLOAD_TIMEOUT", 0),
		MaxConcurrentUploads: int64(resolveInt(*youtubeMaxUploads, "VIDPRESS_YOUTUBE_MAX_CONCURRENT_UPLOADS")),
	}

	handler := &api.Handler{
		Store:    store,
		Sessions: sessions,
		Events:   queue,
		Logger:   logging.WithComponent(logger, "api"),
		Metrics:  recorder,
		SessionCookiePolicy: api.SessionCookiePolicy{
			SecureMode: resolveSessionCookieSecureMode(serverMode),
		},
	}
	if youtubeCfg.ClientID != "" || youtubeCfg.ClientSecret != "" || youtubeCfg.RedirectURL != "" {
		manager, err := youtube.NewManager(youtubeCfg, store, youtube.WithLogger(logging.WithComponent(logger, "youtube")))
		if err != nil {
			logger.Error("failed to configure youtube integration", "error", err)
			os.Exit(1)
		}
		handler.YouTube = manager
		handler.Uploader = youtube.NewUploader(manager, store)
	} else {
		logger.Warn("youtube integration disabled: no OAuth client configured")
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	sessionPurgeStop := startSessionSweeper(workerCtx, logging.WithComponent(logger, "session-sweeper"), sessions, 15*time.Minute)
	defer sessionPurgeStop()
	go notify.NewWorker(store, queue, logging.WithComponent(logger, "notify-worker")).Run(workerCtx)

	rateCfg := server.RateLimitConfig{
		GlobalRPS:             resolveFloat(*globalRPS, "VIDPRESS_RATE_GLOBAL_RPS"),
		GlobalBurst:           resolveInt(*globalBurst, "VIDPRESS_RATE_GLOBAL_BURST"),
		LoginLimit:            resolveInt(*loginLimit, "VIDPRESS_RATE_LOGIN_LIMIT"),
		LoginWindow:           resolveDuration(*loginWindow, "VIDPRESS_RATE_LOGIN_WINDOW", time.Minute),
		TrustForwardedHeaders: resolveBool(*trustForwarded, "VIDPRESS_RATE_TRUST_FORWARDED_HEADERS"),
		TrustedProxies:        splitAndTrim(firstNonEmpty(*trustedProxies, os.Getenv("VIDPRESS_RATE_TRUSTED_PROXIES"))),
		RedisAddr:             firstNonEmpty(*redisAddr, os.Getenv("VIDPRESS_RATE_REDIS_ADDR")),
		RedisPassword:         firstNonEmpty(*redisPassword, os.Getenv("VIDPRESS_RATE_REDIS_PASSWORD")),
		RedisTimeout:          resolveDuration(*redisTimeout, "VIDPRESS_RATE_REDIS_TIMEOUT", 2*time.Second),
	}

	srv, err := server.New(handler, server.Config{
		Addr:        listenAddr,
		TLS:         server.TLSConfig{CertFile: tlsCertPath, KeyFile: tlsKeyPath},
		RateLimit:   rateCfg,
		CORS:        server.CORSConfig{AllowedOrigins: splitAndTrim(firstNonEmpty(*corsOrigins, os.Getenv("VIDPRESS_CORS_ALLOWED_ORIGINS")))},
		Logger:      logger,
		AuditLogger: auditLogger,
		Metrics:     recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("VidPress API listening", "addr", listenAddr, "mode", serverMode)
	if tlsCertPath != "" && tlsKeyPath != "" {
		logger.Info("TLS enabled", "cert_file", tlsCertPath)
	}
	logger.Info("metrics endpoint available", "path", "/metrics")

	if err := srv.Run(runCtx, 10*time.Second); err != nil {
		logger.Error("server error", "error", err)
	}

	workerCancel()
	sessionPurgeStop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if closer, ok := queue.(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(ctx); err != nil {
			logger.Warn("failed to close notification queue", "error", err)
		}
	}

	if closer, ok := store.(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(ctx); err != nil {
			logger.Warn("failed to close datastore", "error", err)
		}
	} else if closer, ok := store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Warn("failed to close datastore", "error", err)
		}
	}

	if sessionCloser != nil {
		if err := sessionCloser(ctx); err != nil {
			logger.Warn("failed to close session store", "error", err)
		}
	}

	logger.Info("server stopped")
}

type sessionStoreConfig struct {
	Driver string
	DSN    string
}

func resolveSessionStoreConfig(flagDriver, envDriver, storageDriver, storageDSN, flagDSN, envDSN string) (sessionStoreConfig, error) {
	driver := strings.ToLower(strings.TrimSpace(flagDriver))
	if driver == "" {
		driver = strings.ToLower(strings.TrimSpace(envDriver))
	}

	sessionDSN := strings.TrimSpace(firstNonEmpty(flagDSN, envDSN))
	if driver == "" {
		switch {
		case sessionDSN != "":
			driver = "postgres"
		case storageDriver == "postgres":
			driver = "postgres"
		default:
			driver = "memory"
		}
	}

	switch driver {
	case "", "memory":
		return sessionStoreConfig{Driver: "memory"}, nil
	case "postgres":
		if sessionDSN == "" {
			sessionDSN = strings.TrimSpace(storageDSN)
		}
		if sessionDSN == "" {
			return sessionStoreConfig{}, fmt.Errorf("postgres session store selected without DSN")
		}
		return sessionStoreConfig{Driver: "postgres", DSN: sessionDSN}, nil
	default:
		return sessionStoreConfig{}, fmt.Errorf("unsupported session store driver %q", driver)
	}
}

func configureNotifyQueue(driver string, cfg notify.RedisQueueConfig, logger *slog.Logger) (notify.Queue, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	switch driver {
	case "redis":
		if len(cfg.Addrs) == 0 && strings.TrimSpace(cfg.Addr) == "" {
			return nil, fmt.Errorf("redis addr is required for notification queue")
		}
		cfg.Logger = logging.WithComponent(logger, "notify-queue")
		return notify.NewRedisQueue(cfg)
	case "", "memory":
		return notify.NewMemoryQueue(128), nil
	default:
		return nil, fmt.Errorf("unsupported notification queue driver %q", driver)
	}
}

func resolveSessionCookieSecureMode(mode string) api.SessionCookieSecureMode {
	if strings.ToLower(strings.TrimSpace(mode)) == "production" {
		return api.SessionCookieSecureAlways
	}
	return api.SessionCookieSecureAuto
}

func resolveListenAddr(flagValue, mode, envAddr string) string {
	listenAddr := strings.TrimSpace(flagValue)
	if listenAddr == "" {
		listenAddr = strings.TrimSpace(envAddr)
	}
	if listenAddr == "" {
		listenAddr = defaultListenForMode(mode)
	}
	return listenAddr
}

func modeValue(flagMode, envMode string) string {
	mode := strings.ToLower(strings.TrimSpace(flagMode))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(envMode))
	}
	if mode == "" {
		mode = "development"
	}
	return mode
}

func defaultListenForMode(mode string) string {
	if mode == "production" {
		return ":80"
	}
	return ":8080"
}

func resolveStorageDriver(flagValue, envValue, postgresDSN string) (string, bool, error) {
	if driver := strings.ToLower(strings.TrimSpace(flagValue)); driver != "" {
		return driver, true, nil
	}
	if driver := strings.ToLower(strings.TrimSpace(envValue)); driver != "" {
		return driver, true, nil
	}
	if strings.TrimSpace(postgresDSN) != "" {
		return "postgres", false, nil
	}
	return "", false, fmt.Errorf("no datastore configured: provide --storage-driver json or configure Postgres via VIDPRESS_POSTGRES_DSN, DATABASE_URL, or --postgres-dsn")
}

func validateProductionDatastore(driver, resolvedPostgresDSN, envPostgresDSN string) error {
	if driver != "postgres" {
		if driver == "" {
			return fmt.Errorf("production mode requires the postgres datastore driver")
		}
		return fmt.Errorf("production mode requires the postgres datastore driver, got %q", driver)
	}
	if strings.TrimSpace(envPostgresDSN) == "" {
		return fmt.Errorf("production mode requires VIDPRESS_POSTGRES_DSN to be set")
	}
	if strings.TrimSpace(resolvedPostgresDSN) == "" {
		return fmt.Errorf("postgres storage selected without DSN")
	}
	return nil
}

func resolveDataPath(flagValue, envValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := strings.TrimSpace(envValue); env != "" {
		return env
	}
	return "data/store.json"
}

func resolvePostgresDSN(flagValue string) string {
	return strings.TrimSpace(firstNonEmpty(flagValue, os.Getenv("VIDPRESS_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}
