// Package config loads AppConfig from the process environment, the
// way the control plane's cmd/server flags do, but centralized into a
// single struct so every package (labsvc, runtime, netd, teardown)
// depends on one validated source of truth instead of re-reading
// os.Getenv in a dozen places.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig is the process-wide configuration for cmd/server.
type AppConfig struct {
	Host string
	Port int

	DatabaseDriver string
	DatabaseDSN    string

	RedisAddr string
	RedisDB   int

	EtcdEndpoints []string

	StateDir string

	EvidenceS3Endpoint  string
	EvidenceS3Bucket    string
	EvidenceS3AccessKey string
	EvidenceS3SecretKey string
	EvidenceS3UseSSL    bool

	DefaultRuntime string

	MicroVMKernelPath  string
	MicroVMRootfsDir   string
	MicroVMJailerPath  string
	UnsafeAllowNoJailer bool

	TeardownInterval  time.Duration
	TeardownBatchSize int

	AdminEmails []string

	Env string
}

// Load reads an AppConfig from the environment, optionally seeded by a
// .env file in the working directory (teacher carries
// github.com/joho/godotenv in go.mod for exactly this).
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{
		Host:                getEnv("OCTOLAB_HOST", "0.0.0.0"),
		Port:                getEnvInt("OCTOLAB_PORT", 8080),
		RedisAddr:           getEnv("OCTOLAB_REDIS_ADDR", "localhost:6379"),
		RedisDB:             getEnvInt("OCTOLAB_REDIS_DB", 0),
		StateDir:            getEnv("OCTOLAB_STATE_DIR", "/var/lib/octolab/state"),
		EvidenceS3Endpoint:  getEnv("OCTOLAB_EVIDENCE_S3_ENDPOINT", ""),
		EvidenceS3Bucket:    getEnv("OCTOLAB_EVIDENCE_S3_BUCKET", "octolab-evidence"),
		EvidenceS3AccessKey: getEnv("OCTOLAB_EVIDENCE_S3_ACCESS_KEY", ""),
		EvidenceS3SecretKey: getEnv("OCTOLAB_EVIDENCE_S3_SECRET_KEY", ""),
		EvidenceS3UseSSL:    getEnvBool("OCTOLAB_EVIDENCE_S3_USE_SSL", true),
		DefaultRuntime:      getEnv("OCTOLAB_RUNTIME_DEFAULT", "compose"),
		MicroVMKernelPath:   getEnv("OCTOLAB_MICROVM_KERNEL_PATH", ""),
		MicroVMRootfsDir:    getEnv("OCTOLAB_MICROVM_ROOTFS_DIR", ""),
		MicroVMJailerPath:   getEnv("OCTOLAB_MICROVM_JAILER_PATH", "/usr/bin/jailer"),
		UnsafeAllowNoJailer: getEnvBool("OCTOLAB_DEV_UNSAFE_ALLOW_NO_JAILER", false),
		TeardownInterval:    getEnvDuration("OCTOLAB_TEARDOWN_WORKER_INTERVAL", 5*time.Second),
		TeardownBatchSize:   getEnvInt("OCTOLAB_TEARDOWN_WORKER_BATCH_SIZE", 3),
		Env:                 getEnv("OCTOLAB_ENV", "production"),
	}

	if raw := getEnv("OCTOLAB_ETCD_ENDPOINTS", ""); raw != "" {
		cfg.EtcdEndpoints = strings.Split(raw, ",")
	}
	if raw := getEnv("OCTOLAB_ADMIN_EMAILS", ""); raw != "" {
		for _, e := range strings.Split(raw, ",") {
			cfg.AdminEmails = append(cfg.AdminEmails, strings.ToLower(strings.TrimSpace(e)))
		}
	}

	driver, dsn, err := ParseDatabaseURL(getEnv("OCTOLAB_DATABASE", "sqlite://./data/octolab.db"))
	if err != nil {
		return nil, err
	}
	cfg.DatabaseDriver = driver
	cfg.DatabaseDSN = dsn

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the invariants the rest of the codebase assumes hold.
func (c *AppConfig) Validate() error {
	if c.UnsafeAllowNoJailer && c.Env != "development" {
		return fmt.Errorf("OCTOLAB_DEV_UNSAFE_ALLOW_NO_JAILER requires OCTOLAB_ENV=development, got %q", c.Env)
	}
	if c.TeardownBatchSize <= 0 {
		return fmt.Errorf("teardown worker batch size must be positive, got %d", c.TeardownBatchSize)
	}
	switch c.DefaultRuntime {
	case "compose", "firecracker":
	default:
		return fmt.Errorf("unsupported default runtime %q", c.DefaultRuntime)
	}
	return nil
}

// ParseDatabaseURL parses a sqlite:// or postgres:// URL into an ent
// driver name and DSN, following the control plane's parseDatabase.
func ParseDatabaseURL(dbURL string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(dbURL, "sqlite://"):
		driver = "sqlite3"
		dsn = strings.TrimPrefix(dbURL, "sqlite://")
		if dir := filepath.Dir(dsn); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", "", fmt.Errorf("creating database directory: %w", err)
			}
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_fk=1"
		}
		return driver, dsn, nil
	case strings.HasPrefix(dbURL, "postgres://"), strings.HasPrefix(dbURL, "postgresql://"):
		return "postgres", dbURL, nil
	default:
		return "", "", fmt.Errorf("unsupported database URL format: %s (use sqlite:// or postgres://)", dbURL)
	}
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
