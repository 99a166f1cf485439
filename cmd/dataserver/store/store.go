// Package store builds the storage backend and write locker for the data
// server from its configuration.
//
// Supported backends:
//
//   - file: one JSON file per document in DataDir (default).
//   - memory: process memory. Data is lost on restart.
//   - redis: one key per document. Writers in different processes are
//     serialized with a Redis lock in addition to the local one.
//   - s3: one object per document in an S3 or S3-compatible bucket.
//   - sqlite: one row per document in an embedded database file.
//
// With Compress set, documents are snappy-compressed at rest.
//
// New performs fail-fast initialization: the backend is pinged before it is
// returned, so the server never starts with a broken storage configuration.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/clusterdata/cmd/dataserver/config"
	"github.com/HatiCode/clusterdata/pkg/storage"
)

// New creates and verifies the configured backend and the locker that
// serializes writers to it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Backend, storage.Locker, error) {
	var (
		backend storage.Backend
		locker  storage.Locker = storage.NewLocalLocker()
	)

	switch cfg.Storage {
	case config.StorageFile:
		logger.Info("initializing file storage", "dir", cfg.DataDir)
		fb, err := storage.NewFileBackend(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		backend = fb

	case config.StorageMemory:
		logger.Info("initializing in-memory storage")
		backend = storage.NewMemoryBackend()

	case config.StorageRedis:
		logger.Info("initializing redis storage",
			"addr", cfg.RedisAddr,
			"db", cfg.RedisDB,
			"prefix", cfg.RedisPrefix,
			"lock_ttl", cfg.RedisLockTTL,
		)
		client, err := storage.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		backend = storage.NewRedisBackend(client, cfg.RedisPrefix)
		locker = storage.ChainLocker{
			locker,
			storage.NewRedisLocker(client, cfg.RedisPrefix, cfg.RedisLockTTL),
		}

	case config.StorageS3:
		logger.Info("initializing s3 storage",
			"bucket", cfg.S3Bucket,
			"region", cfg.S3Region,
			"endpoint", cfg.S3Endpoint,
			"prefix", cfg.S3Prefix,
		)
		sb, err := storage.NewS3Backend(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			Prefix:          cfg.S3Prefix,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3PathStyle,
		})
		if err != nil {
			return nil, nil, err
		}
		backend = sb

	case config.StorageSQLite:
		logger.Info("initializing sqlite storage", "path", cfg.SQLitePath)
		sb, err := storage.NewSQLiteBackend(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		backend = sb

	default:
		return nil, nil, fmt.Errorf("invalid storage type %q", cfg.Storage)
	}

	if cfg.Compress {
		backend = storage.NewSnappyBackend(backend)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := storage.Ping(pingCtx, backend); err != nil {
		_ = backend.Close()
		return nil, nil, fmt.Errorf("%s health check failed: %w", backend.Name(), err)
	}

	logger.Info("storage initialized", "backend", backend.Name())
	return backend, locker, nil
}
