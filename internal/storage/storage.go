package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/speaker-align/internal/config"
)

// Store abstracts where rendered transcripts are written.
type Store interface {
	// Save stores data. key format: {YYYY-MM-DD}/{job_id}/{base}.{ext}
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// LocalPath returns the local filesystem path if the file exists on disk.
	// Returns "" if not available locally.
	LocalPath(key string) string

	// URL returns a presigned URL for the object.
	// Returns "" for local-only backends.
	URL(ctx context.Context, key string) (string, error)

	Open(ctx context.Context, key string) (io.ReadCloser, error)

	Exists(ctx context.Context, key string) bool

	// Type returns "local", "s3", or "mirror".
	Type() string
}

// OutputKey builds the storage key for one rendered output.
func OutputKey(at time.Time, jobID, base, ext string) string {
	return path.Join(at.UTC().Format("2006-01-02"), jobID, base+"."+ext)
}

// New creates a Store based on config. Returns an error if S3 is configured
// but unreachable.
func New(cfg config.S3Config, outputDir string, log zerolog.Logger) (Store, error) {
	if !cfg.Enabled() {
		return NewLocalStore(outputDir), nil
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("S3 init failed: %w", err)
	}

	// Startup validation: verify credentials and bucket access
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")

	if !cfg.LocalCopy {
		return s3store, nil
	}
	return NewMirrorStore(s3store, NewLocalStore(outputDir), log), nil
}

// BackgroundService is a stoppable background goroutine.
type BackgroundService interface {
	Start()
	Stop()
}
