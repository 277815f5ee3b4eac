// Package archive stores report archives and cached upstream payloads on
// the local filesystem or an S3-compatible bucket.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/newthinker/aurum/internal/config"
)

// ErrNotFound is returned by ModTime when nothing is stored at a path.
var ErrNotFound = errors.New("archive: object not found")

// Storage defines the interface for cold/archive storage backends
type Storage interface {
	// Write stores data at the given path
	Write(ctx context.Context, path string, data []byte) error

	// Read retrieves data from the given path
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns all paths matching the prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the data at the given path
	Delete(ctx context.Context, path string) error

	// Exists checks if data exists at the given path
	Exists(ctx context.Context, path string) (bool, error)

	// ModTime returns when the object was last written
	ModTime(ctx context.Context, path string) (time.Time, error)
}

// New builds the backend named by cfg.Type; an empty type means localfs.
func New(cfg config.ArchiveConfig) (Storage, error) {
	switch cfg.Type {
	case "", "localfs":
		path := cfg.Path
		if path == "" {
			path = "data/archive"
		}
		return NewLocalFS(path)
	case "s3":
		return NewS3(S3Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown archive type %q", cfg.Type)
	}
}

// ReadFresh returns the object at path when it was written less than ttl
// before now. ok is false when the object is missing or stale.
func ReadFresh(ctx context.Context, s Storage, path string, ttl time.Duration, now time.Time) ([]byte, bool, error) {
	mod, err := s.ModTime(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if now.Sub(mod) >= ttl {
		return nil, false, nil
	}

	data, err := s.Read(ctx, path)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}
