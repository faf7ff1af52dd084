package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/resaledash/internal/blob/s3"
	"github.com/alanyoungcy/resaledash/internal/cache/redis"
	"github.com/alanyoungcy/resaledash/internal/config"
	"github.com/alanyoungcy/resaledash/internal/crypto"
	"github.com/alanyoungcy/resaledash/internal/domain"
	"github.com/alanyoungcy/resaledash/internal/notify"
	"github.com/alanyoungcy/resaledash/internal/service"
	"github.com/alanyoungcy/resaledash/internal/store/postgres"
)

// Dependencies bundles every infrastructure dependency the modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Postgres *postgres.Client
	Redis    *redis.Client
	S3       *s3blob.Client // nil when object storage is unavailable

	// Stores
	SaleStore     domain.SaleStore
	EventStore    domain.EventStore
	CategoryStore domain.CategoryStore
	HealthStore   domain.HealthStore

	// Caches
	SnapshotCache domain.SnapshotCache
	RateLimiter   domain.RateLimiter
	LockManager   domain.LockManager
	SignalBus     domain.SignalBus
	Deduper       domain.Deduper

	// Blob storage; nil when S3 is unavailable.
	ExportArchive service.ExportArchive

	// Notifications
	Notifier *notify.Notifier
}

// postgresDSN resolves the connection string, opening a sealed DSN file when
// one is configured. An empty result means the discrete host fields apply.
func postgresDSN(cfg config.SupabaseConfig) (string, error) {
	if cfg.DSN == "" && cfg.EncryptedDSNPath == "" {
		return "", nil
	}
	return crypto.LoadSecret(crypto.SecretConfig{
		Plain:      cfg.DSN,
		SealedPath: cfg.EncryptedDSNPath,
		Password:   cfg.KeyPassword,
	})
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources. Postgres and Redis are
// required; object storage only disables the export archive when it cannot
// be reached.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	dsn, err := postgresDSN(cfg.Supabase)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: postgres dsn: %w", err)
	}
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      dsn,
		Host:     cfg.Supabase.Host,
		Port:     cfg.Supabase.Port,
		Database: cfg.Supabase.Database,
		User:     cfg.Supabase.User,
		Password: cfg.Supabase.Password,
		SSLMode:  cfg.Supabase.SSLMode,
		MaxConns: cfg.Supabase.PoolMaxConns,
		MinConns: cfg.Supabase.PoolMinConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)
	deps.Postgres = pgClient

	if cfg.Supabase.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.SaleStore = postgres.NewSaleStore(pool)
	deps.EventStore = postgres.NewEventStore(pool)
	deps.CategoryStore = postgres.NewCategoryStore(pool)
	deps.HealthStore = postgres.NewHealthStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.Redis = redisClient

	cacheTTL := time.Duration(cfg.Redis.CacheTTLMinutes) * time.Minute
	deps.SnapshotCache = redis.NewSnapshotCache(redisClient, cacheTTL)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.Deduper = redis.NewDeduper(redisClient)

	// --- S3 blob storage ---
	s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		Bucket:         cfg.S3.Bucket,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		UseSSL:         cfg.S3.UseSSL,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	})
	if err != nil {
		logger.WarnContext(ctx, "wire: s3 unavailable, export archive disabled",
			slog.String("error", err.Error()),
		)
	} else {
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.S3 = s3Client
		reader := s3blob.NewReader(s3Client)
		deps.ExportArchive = s3blob.NewExportArchive(s3blob.NewWriter(s3Client), reader, reader)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
