package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested path does not exist in storage.
var ErrNotFound = errors.New("not found")

// ErrInvalidPath is returned for paths that are empty or escape the storage
// root.
var ErrInvalidPath = errors.New("invalid storage path")

// Storage provides an abstraction over key-value style file storage.
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Config selects and configures a storage backend.
type Config struct {
	Type     string // "local" or "s3"
	BaseDir  string
	S3Bucket string
	S3Prefix string
	S3Region string
}

// New returns the backend described by cfg.
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Type {
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, errors.New("s3 storage requires a bucket")
		}
		return NewS3Storage(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region)
	case "", "local":
		return NewLocalStorage(cfg.BaseDir)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
