// Package reportstore archives bulk-send job records, including their final
// delivery report, on the local filesystem or in S3.
package reportstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("reportstore: record not found")
	// ErrInvalidID is returned for ids that cannot be used as a storage key.
	ErrInvalidID = errors.New("reportstore: invalid id")
)

// BlobStore holds one JSON document per job id.
type BlobStore interface {
	Put(ctx context.Context, id string, data []byte) error
	Get(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
	// Prune deletes documents last written before cutoff and reports how
	// many went.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

// Config selects the report backend.
type Config struct {
	Type       string `mapstructure:"type"` // "local" or "s3"
	Path       string `mapstructure:"path"`
	S3Bucket   string `mapstructure:"s3_bucket"`
	S3Prefix   string `mapstructure:"s3_prefix"`
	S3Endpoint string `mapstructure:"s3_endpoint"`
	S3Region   string `mapstructure:"s3_region"`
	// Retention is how long finished reports are kept; zero keeps them forever.
	Retention time.Duration `mapstructure:"retention"`
}

// New opens the configured backend. Unknown types fall back to local disk.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (BlobStore, error) {
	switch cfg.Type {
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, errors.New("reportstore: s3 store requires s3_bucket")
		}
		return NewS3StoreFromConfig(ctx, cfg)
	case "local":
	default:
		log.Warn().Str("type", cfg.Type).Msg("unknown report store type, using local disk")
	}
	return NewLocalFileStore(cfg.Path)
}

// validateID keeps ids usable as a single path or key segment.
func validateID(id string) error {
	if id == "" || len(id) > 128 || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
