package config

import (
	"fmt"
	"os"
	"strconv"
)

// Backend names accepted by REPO_BACKEND.
const (
	BackendSearch     = "search"
	BackendRelational = "relational"
	BackendLocal      = "local"
)

// DatabaseConfig holds relational backend connection settings.
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver             string
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	SQLitePath         string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MongoConfig holds search-index backend settings.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	TimeoutSec int
}

// LocalConfig holds single-file backend settings.
type LocalConfig struct {
	Path string
}

// MinIOConfig holds object storage settings for MinIO. Leaving the endpoint
// empty disables the object-backed target validator.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// IdentityConfig selects how bearer tokens are turned into principals.
type IdentityConfig struct {
	// Mode is "service" (remote identity service) or "jwt" (local HS256 verification).
	Mode              string
	URL               string
	CheckAuthEndpoint string
	TimeoutSec        int
	CacheTTLSec       int
	JWTSecret         string
}

// LockConfig selects the per-document update lock.
type LockConfig struct {
	// Backend is "local" or "redis".
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTLSec        int
	WaitMillis    int
}

// AppConfig is the centralized configuration struct for the application.
// It is populated once from environment variables and passed by pointer.
type AppConfig struct {
	AppHost    string
	Port       string
	LogLevel   string
	AdminGroup string
	Backend    string
	Database   DatabaseConfig
	Mongo      MongoConfig
	Local      LocalConfig
	MinIO      MinIOConfig
	Identity   IdentityConfig
	Lock       LockConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:    getEnv("APP_HOST", "localhost:8080"),
		Port:       getEnv("PORT", "8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		AdminGroup: getEnv("ADMIN_GROUP", ""),
		Backend:    getEnv("REPO_BACKEND", BackendLocal),
		Database: DatabaseConfig{
			Driver:             getEnv("DB_DRIVER", "postgres"),
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			SQLitePath:         getEnv("DB_SQLITE_PATH", "data/metarepo.db"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		Mongo: MongoConfig{
			URI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database:   getEnv("MONGO_DATABASE", "metarepo"),
			Collection: getEnv("MONGO_COLLECTION", "metasheets"),
			TimeoutSec: getEnvInt("MONGO_TIMEOUT_SEC", 10),
		},
		Local: LocalConfig{
			Path: getEnv("LOCAL_CATALOG_PATH", "data/catalog.json"),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Identity: IdentityConfig{
			Mode:              getEnv("IDENTITY_MODE", "service"),
			URL:               getEnv("IDENTITY_URL", ""),
			CheckAuthEndpoint: getEnv("IDENTITY_CHECK_ENDPOINT", "/checkAuth"),
			TimeoutSec:        getEnvInt("IDENTITY_TIMEOUT_SEC", 5),
			CacheTTLSec:       getEnvInt("IDENTITY_CACHE_TTL_SEC", 60),
			JWTSecret:         getEnv("IDENTITY_JWT_SECRET", ""),
		},
		Lock: LockConfig{
			Backend:       getEnv("LOCK_BACKEND", "local"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			TTLSec:        getEnvInt("LOCK_TTL_SEC", 30),
			WaitMillis:    getEnvInt("LOCK_WAIT_MS", 2000),
		},
	}
}

// Validate rejects unknown selector values before anything connects.
func (c *AppConfig) Validate() error {
	switch c.Backend {
	case BackendSearch, BackendLocal:
	case BackendRelational:
		if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
			return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unsupported REPO_BACKEND %q", c.Backend)
	}
	switch c.Identity.Mode {
	case "service":
		if c.Identity.URL == "" {
			return fmt.Errorf("IDENTITY_URL is required in service mode")
		}
	case "jwt":
		if c.Identity.JWTSecret == "" {
			return fmt.Errorf("IDENTITY_JWT_SECRET is required in jwt mode")
		}
	default:
		return fmt.Errorf("unsupported IDENTITY_MODE %q", c.Identity.Mode)
	}
	if c.Lock.Backend != "local" && c.Lock.Backend != "redis" {
		return fmt.Errorf("unsupported LOCK_BACKEND %q", c.Lock.Backend)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}
