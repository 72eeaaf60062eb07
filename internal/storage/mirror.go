package storage

import (
	"bytes"
	"context"
	"io"

	"github.com/rs/zerolog"
)

// MirrorStore keeps a local copy of every output and pushes it to S3.
// Local disk is authoritative: S3 failures are logged, not returned.
type MirrorStore struct {
	remote Store
	local  *LocalStore
	log    zerolog.Logger
}

func NewMirrorStore(remote Store, local *LocalStore, log zerolog.Logger) *MirrorStore {
	return &MirrorStore{
		remote: remote,
		local:  local,
		log:    log.With().Str("component", "mirror-store").Logger(),
	}
}

func (s *MirrorStore) Save(ctx context.Context, key string, data []byte, ct string) error {
	if err := s.local.Save(ctx, key, data, ct); err != nil {
		return err
	}
	if err := s.remote.Save(ctx, key, data, ct); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("remote copy failed, output kept locally")
	}
	return nil
}

func (s *MirrorStore) LocalPath(key string) string {
	return s.local.LocalPath(key)
}

func (s *MirrorStore) URL(ctx context.Context, key string) (string, error) {
	return s.remote.URL(ctx, key)
}

// Open reads locally first and falls back to the remote, caching what it fetches.
func (s *MirrorStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if r, err := s.local.Open(ctx, key); err == nil {
		return r, nil
	}
	r, err := s.remote.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return nil, err
	}
	if cacheErr := s.local.Save(ctx, key, data, ""); cacheErr != nil {
		s.log.Warn().Err(cacheErr).Str("key", key).Msg("failed to cache remote output locally")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MirrorStore) Exists(ctx context.Context, key string) bool {
	return s.local.Exists(ctx, key) || s.remote.Exists(ctx, key)
}

func (s *MirrorStore) Type() string { return "mirror" }
