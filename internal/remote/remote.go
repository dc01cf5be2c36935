// Package remote replicates finished backup slots to an off-host
// location. A slot is shipped as a single gzipped tar stream; backends
// only need to store one object per slot.
package remote

import (
	"context"
	"fmt"
	"io"

	"github.com/ypeckstadt/dcsnap/internal/config"
)

// Backend stores one replicated slot archive under a key.
type Backend interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Close() error
}

// NewBackend builds the backend selected by the remote configuration.
func NewBackend(ctx context.Context, cfg *config.RemoteConfig) (Backend, error) {
	switch cfg.Type {
	case "s3":
		return NewS3Backend(ctx, cfg)
	case "gcs":
		return NewGCSBackend(ctx, cfg)
	case "ssh":
		return NewSSHBackend(cfg)
	default:
		return nil, fmt.Errorf("unsupported remote type: %s", cfg.Type)
	}
}
