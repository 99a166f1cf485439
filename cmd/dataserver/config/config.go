// Package config provides configuration parsing for the data server.
//
// Settings come from, in order of precedence:
//  1. Command-line flags
//  2. Environment variables
//  3. An optional YAML file (-config or CONFIG_FILE)
//  4. Default values
//
// Example usage:
//
//	cfg := config.ParseFlags()
//	// cfg now contains validated configuration
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends accepted by -storage.
const (
	StorageFile   = "file"
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageS3     = "s3"
	StorageSQLite = "sqlite"
)

type Config struct {
	Listen          string        `yaml:"listen"`
	GRPCListen      string        `yaml:"grpc_listen"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Storage        string `yaml:"storage"`
	DataDir        string `yaml:"data_dir"`
	SnapshotName   string `yaml:"snapshot_name"`
	TimeSeriesName string `yaml:"time_series_name"`
	Compress       bool   `yaml:"compress"`

	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisPrefix   string        `yaml:"redis_prefix"`
	RedisLockTTL  time.Duration `yaml:"redis_lock_ttl"`

	S3Bucket          string `yaml:"s3_bucket"`
	S3Region          string `yaml:"s3_region"`
	S3Endpoint        string `yaml:"s3_endpoint"`
	S3Prefix          string `yaml:"s3_prefix"`
	S3PathStyle       bool   `yaml:"s3_path_style"`
	S3AccessKeyID     string `yaml:"s3_access_key_id"`
	S3SecretAccessKey string `yaml:"s3_secret_access_key"`

	SQLitePath string `yaml:"sqlite_path"`

	LogFormat string `yaml:"log_format"`
	LogLevel  string `yaml:"log_level"`

	ConfigFile string `yaml:"-"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Listen:          ":3333",
		ShutdownTimeout: 10 * time.Second,
		Storage:         StorageFile,
		DataDir:         "data",
		SnapshotName:    "snapshot.json",
		TimeSeriesName:  "time-series.json",
		RedisAddr:       "localhost:6379",
		RedisPrefix:     "clusterdata:",
		RedisLockTTL:    10 * time.Second,
		S3Region:        "us-east-1",
		SQLitePath:      "data/clusterdata.db",
		LogFormat:       "text",
		LogLevel:        "info",
	}
}

// ParseFlags parses command-line flags and environment variables into a Config.
// Exits with status 1 if the configuration is invalid.
func ParseFlags() *Config {
	cfg, err := Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		flag.Usage()
		os.Exit(1)
	}
	return cfg
}

// Load builds a Config from the YAML file, environment and args, registering
// its flags on fs.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := Defaults()

	cfg.ConfigFile = configFileFromArgs(args)
	if cfg.ConfigFile == "" {
		cfg.ConfigFile = getEnv("CONFIG_FILE", "")
	}
	if cfg.ConfigFile != "" {
		if err := loadFile(cfg.ConfigFile, cfg); err != nil {
			return nil, err
		}
	}

	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "Path to a YAML config file")

	// Server
	fs.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", cfg.Listen), "HTTP listen address")
	fs.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", cfg.GRPCListen), "gRPC health listen address (empty disables)")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", getEnvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout), "Graceful shutdown timeout")

	// Storage
	fs.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", cfg.Storage), "Storage backend: file, memory, redis, s3 or sqlite")
	fs.StringVar(&cfg.DataDir, "data-dir", getEnv("DATA_DIR", cfg.DataDir), "Directory holding the JSON documents (file storage)")
	fs.StringVar(&cfg.SnapshotName, "snapshot-name", getEnv("SNAPSHOT_NAME", cfg.SnapshotName), "Snapshot document name")
	fs.StringVar(&cfg.TimeSeriesName, "timeseries-name", getEnv("TIMESERIES_NAME", cfg.TimeSeriesName), "Time-series document name")
	fs.BoolVar(&cfg.Compress, "compress", getEnvBool("COMPRESS", cfg.Compress), "Snappy-compress documents at rest")

	// Redis
	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", cfg.RedisAddr), "Redis address (host:port or redis:// URL)")
	fs.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", cfg.RedisPassword), "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", cfg.RedisDB), "Redis database number")
	fs.StringVar(&cfg.RedisPrefix, "redis-prefix", getEnv("REDIS_PREFIX", cfg.RedisPrefix), "Redis key prefix")
	fs.DurationVar(&cfg.RedisLockTTL, "redis-lock-ttl", getEnvDuration("REDIS_LOCK_TTL", cfg.RedisLockTTL), "Redis write lock TTL")

	// S3
	fs.StringVar(&cfg.S3Bucket, "s3-bucket", getEnv("S3_BUCKET", cfg.S3Bucket), "S3 bucket")
	fs.StringVar(&cfg.S3Region, "s3-region", getEnv("S3_REGION", cfg.S3Region), "S3 region")
	fs.StringVar(&cfg.S3Endpoint, "s3-endpoint", getEnv("S3_ENDPOINT", cfg.S3Endpoint), "S3 endpoint for S3-compatible services")
	fs.StringVar(&cfg.S3Prefix, "s3-prefix", getEnv("S3_PREFIX", cfg.S3Prefix), "S3 key prefix")
	fs.BoolVar(&cfg.S3PathStyle, "s3-path-style", getEnvBool("S3_PATH_STYLE", cfg.S3PathStyle), "Use path-style S3 addressing")
	fs.StringVar(&cfg.S3AccessKeyID, "s3-access-key-id", getEnv("S3_ACCESS_KEY_ID", cfg.S3AccessKeyID), "S3 access key (default credential chain if empty)")
	fs.StringVar(&cfg.S3SecretAccessKey, "s3-secret-access-key", getEnv("S3_SECRET_ACCESS_KEY", cfg.S3SecretAccessKey), "S3 secret key")

	// SQLite
	fs.StringVar(&cfg.SQLitePath, "sqlite-path", getEnv("SQLITE_PATH", cfg.SQLitePath), "SQLite database file")

	// Logging
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", cfg.LogFormat), "Log format (text|json)")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", cfg.LogLevel), "Log level (debug|info|warn|error)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected backend has what it needs.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageFile:
		if c.DataDir == "" {
			return errors.New("-data-dir is required for file storage")
		}
	case StorageMemory:
	case StorageRedis:
		if c.RedisAddr == "" {
			return errors.New("-redis-addr is required for redis storage")
		}
	case StorageS3:
		if c.S3Bucket == "" {
			return errors.New("-s3-bucket is required for s3 storage")
		}
	case StorageSQLite:
		if c.SQLitePath == "" {
			return errors.New("-sqlite-path is required for sqlite storage")
		}
	default:
		return fmt.Errorf("invalid storage %q", c.Storage)
	}
	if c.SnapshotName == "" || c.TimeSeriesName == "" {
		return errors.New("document names must not be empty")
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// configFileFromArgs finds -config before the flag set is parsed, so the
// file's values can become flag defaults.
func configFileFromArgs(args []string) string {
	for i, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
