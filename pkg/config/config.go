package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Storage backends understood by StorageConfig.Backend.
const (
	StorageBackendGCS   = "gcs"
	StorageBackendLocal = "local"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	Auth         AuthConfig
	CORS         CORSConfig
	Log          LogConfig
	Storage      StorageConfig
	Submissions  SubmissionsConfig
	Transactions TransactionConfig
	Snapshots    SnapshotConfig
	Leaderboard  LeaderboardConfig
	Maintenance  MaintenanceConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// AuthConfig describes how bearer tokens issued by the identity provider are verified.
type AuthConfig struct {
	Secret    string
	Issuer    string
	Audience  string
	AdminRole string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig selects the blob store holding uploaded audio.
type StorageConfig struct {
	Backend         string
	Bucket          string
	LocalDir        string
	RawPrefix       string
	DerivedPrefixes []string
	Timeout         time.Duration
}

// SubmissionsConfig bounds what a registration may carry.
type SubmissionsConfig struct {
	AllowedExtensions      []string
	AllowedMIMETypes       []string
	MaxBytes               int64
	MaxDurationMs          int64
	ClientMetadataMaxBytes int
	SelfListDefaultLimit   int
	SelfListMaxLimit       int
}

// TransactionConfig controls retries of the contribution atomic unit.
type TransactionConfig struct {
	MaxRetries int
	RetryDelay time.Duration
}

// SnapshotConfig tunes the optional redis edge cache and rebuild fan-out.
type SnapshotConfig struct {
	EdgeCacheEnabled   bool
	EdgeCacheTTL       time.Duration
	RebuildConcurrency int
}

type LeaderboardConfig struct {
	DefaultLimit int
	MaxLimit     int
}

// MaintenanceConfig governs operator-only procedures.
type MaintenanceConfig struct {
	OrphanGracePeriod   time.Duration
	OrphanGCConcurrency int
	BackfillBatchSize   int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Auth = AuthConfig{
		Secret:    v.GetString("AUTH_JWT_SECRET"),
		Issuer:    v.GetString("AUTH_ISSUER"),
		Audience:  v.GetString("AUTH_AUDIENCE"),
		AdminRole: v.GetString("AUTH_ADMIN_ROLE"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Storage = StorageConfig{
		Backend:         strings.ToLower(v.GetString("STORAGE_BACKEND")),
		Bucket:          v.GetString("STORAGE_BUCKET"),
		LocalDir:        v.GetString("STORAGE_LOCAL_DIR"),
		RawPrefix:       strings.Trim(v.GetString("STORAGE_RAW_PREFIX"), "/"),
		DerivedPrefixes: splitAndTrim(v.GetString("STORAGE_DERIVED_PREFIXES")),
		Timeout:         parseDuration(v.GetString("STORAGE_TIMEOUT"), 10*time.Second),
	}

	cfg.Submissions = SubmissionsConfig{
		AllowedExtensions:      splitAndTrim(strings.ToLower(v.GetString("SUBMISSION_ALLOWED_EXTENSIONS"))),
		AllowedMIMETypes:       splitAndTrim(strings.ToLower(v.GetString("SUBMISSION_ALLOWED_MIME_TYPES"))),
		MaxBytes:               v.GetInt64("SUBMISSION_MAX_BYTES"),
		MaxDurationMs:          v.GetInt64("SUBMISSION_MAX_DURATION_MS"),
		ClientMetadataMaxBytes: v.GetInt("CLIENT_METADATA_MAX_BYTES"),
		SelfListDefaultLimit:   v.GetInt("SELF_LIST_DEFAULT_LIMIT"),
		SelfListMaxLimit:       v.GetInt("SELF_LIST_MAX_LIMIT"),
	}

	cfg.Transactions = TransactionConfig{
		MaxRetries: v.GetInt("TX_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("TX_RETRY_DELAY"), 20*time.Millisecond),
	}

	cfg.Snapshots = SnapshotConfig{
		EdgeCacheEnabled:   v.GetBool("SNAPSHOT_EDGE_CACHE_ENABLED"),
		EdgeCacheTTL:       parseDuration(v.GetString("SNAPSHOT_EDGE_CACHE_TTL"), 30*time.Second),
		RebuildConcurrency: v.GetInt("SNAPSHOT_REBUILD_CONCURRENCY"),
	}

	cfg.Leaderboard = LeaderboardConfig{
		DefaultLimit: v.GetInt("LEADERBOARD_DEFAULT_LIMIT"),
		MaxLimit:     v.GetInt("LEADERBOARD_MAX_LIMIT"),
	}

	cfg.Maintenance = MaintenanceConfig{
		OrphanGracePeriod:   parseDuration(v.GetString("ORPHAN_GRACE_PERIOD"), 24*time.Hour),
		OrphanGCConcurrency: v.GetInt("ORPHAN_GC_CONCURRENCY"),
		BackfillBatchSize:   v.GetInt("BACKFILL_BATCH_SIZE"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "moracollect")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 10)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("AUTH_JWT_SECRET", "dev_secret")
	v.SetDefault("AUTH_ISSUER", "")
	v.SetDefault("AUTH_AUDIENCE", "")
	v.SetDefault("AUTH_ADMIN_ROLE", "admin")

	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORAGE_BACKEND", StorageBackendLocal)
	v.SetDefault("STORAGE_BUCKET", "")
	v.SetDefault("STORAGE_LOCAL_DIR", "./blobs")
	v.SetDefault("STORAGE_RAW_PREFIX", "raw")
	v.SetDefault("STORAGE_DERIVED_PREFIXES", "processed")
	v.SetDefault("STORAGE_TIMEOUT", "10s")

	v.SetDefault("SUBMISSION_ALLOWED_EXTENSIONS", "webm,ogg,wav,m4a,mp3")
	v.SetDefault("SUBMISSION_ALLOWED_MIME_TYPES", "audio/webm,audio/ogg,audio/wav,audio/x-wav,audio/mp4,audio/mpeg")
	v.SetDefault("SUBMISSION_MAX_BYTES", 20*1024*1024)
	v.SetDefault("SUBMISSION_MAX_DURATION_MS", 120000)
	v.SetDefault("CLIENT_METADATA_MAX_BYTES", 4096)
	v.SetDefault("SELF_LIST_DEFAULT_LIMIT", 20)
	v.SetDefault("SELF_LIST_MAX_LIMIT", 50)

	v.SetDefault("TX_MAX_RETRIES", 5)
	v.SetDefault("TX_RETRY_DELAY", "20ms")

	v.SetDefault("SNAPSHOT_EDGE_CACHE_ENABLED", false)
	v.SetDefault("SNAPSHOT_EDGE_CACHE_TTL", "30s")
	v.SetDefault("SNAPSHOT_REBUILD_CONCURRENCY", 4)

	v.SetDefault("LEADERBOARD_DEFAULT_LIMIT", 10)
	v.SetDefault("LEADERBOARD_MAX_LIMIT", 50)

	v.SetDefault("ORPHAN_GRACE_PERIOD", "24h")
	v.SetDefault("ORPHAN_GC_CONCURRENCY", 8)
	v.SetDefault("BACKFILL_BATCH_SIZE", 400)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
