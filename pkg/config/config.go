package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	Storage      StorageConfig
	ContentStore ContentStoreConfig
	Ledger       LedgerConfig
	Release      ReleaseConfig
	Audit        AuditConfig
	Cleanup      CleanupConfig
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

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig places the local artifact directories. Encrypted papers and
// per-request private keys live under EncryptedDir until finalization;
// decrypted finalized papers live under FinalizedDir.
type StorageConfig struct {
	EncryptedDir string
	FinalizedDir string
}

// ContentStoreConfig points at the IPFS node used to publish encrypted papers.
type ContentStoreConfig struct {
	APIAddr    string
	GatewayURL string
	PapersPath string
	Timeout    time.Duration
}

// LedgerConfig configures the on-chain recorder.
type LedgerConfig struct {
	RPCURL          string
	ContractAddress string
	SigningKey      string
	ChainID         int64
	ConfirmTimeout  time.Duration
}

// ReleaseConfig governs the download window before exam time.
type ReleaseConfig struct {
	Window time.Duration
}

// AuditConfig tunes caching of the decoded ledger history.
type AuditConfig struct {
	CacheTTL time.Duration
}

// CleanupConfig tunes the background queue that removes local ciphertext
// after finalization.
type CleanupConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
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
		if !errors.As(err, &notFound) {
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

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Storage = StorageConfig{
		EncryptedDir: v.GetString("STORAGE_ENCRYPTED_DIR"),
		FinalizedDir: v.GetString("STORAGE_FINALIZED_DIR"),
	}

	cfg.ContentStore = ContentStoreConfig{
		APIAddr:    v.GetString("IPFS_API_ADDR"),
		GatewayURL: v.GetString("IPFS_GATEWAY_URL"),
		PapersPath: v.GetString("IPFS_PAPERS_PATH"),
		Timeout:    parseDuration(v.GetString("IPFS_TIMEOUT"), 30*time.Second),
	}

	cfg.Ledger = LedgerConfig{
		RPCURL:          v.GetString("LEDGER_RPC_URL"),
		ContractAddress: v.GetString("LEDGER_CONTRACT_ADDRESS"),
		SigningKey:      v.GetString("LEDGER_SIGNING_KEY"),
		ChainID:         v.GetInt64("LEDGER_CHAIN_ID"),
		ConfirmTimeout:  parseDuration(v.GetString("LEDGER_CONFIRM_TIMEOUT"), 90*time.Second),
	}

	cfg.Release = ReleaseConfig{
		Window: parseDuration(v.GetString("RELEASE_WINDOW"), 20*time.Minute),
	}

	cfg.Audit = AuditConfig{
		CacheTTL: parseDuration(v.GetString("AUDIT_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Cleanup = CleanupConfig{
		Workers:    v.GetInt("CLEANUP_WORKERS"),
		MaxRetries: v.GetInt("CLEANUP_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("CLEANUP_RETRY_DELAY"), 30*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "exam_paper_vault")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "exam-paper-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORAGE_ENCRYPTED_DIR", "./encrypted")
	v.SetDefault("STORAGE_FINALIZED_DIR", "./papers")

	v.SetDefault("IPFS_API_ADDR", "localhost:5001")
	v.SetDefault("IPFS_GATEWAY_URL", "http://127.0.0.1:8080")
	v.SetDefault("IPFS_PAPERS_PATH", "/papers")
	v.SetDefault("IPFS_TIMEOUT", "30s")

	v.SetDefault("LEDGER_RPC_URL", "http://127.0.0.1:7545")
	v.SetDefault("LEDGER_CONTRACT_ADDRESS", "")
	v.SetDefault("LEDGER_SIGNING_KEY", "")
	v.SetDefault("LEDGER_CHAIN_ID", 1337)
	v.SetDefault("LEDGER_CONFIRM_TIMEOUT", "90s")

	v.SetDefault("RELEASE_WINDOW", "20m")
	v.SetDefault("AUDIT_CACHE_TTL", "5m")

	v.SetDefault("CLEANUP_WORKERS", 1)
	v.SetDefault("CLEANUP_MAX_RETRIES", 3)
	v.SetDefault("CLEANUP_RETRY_DELAY", "30s")
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
