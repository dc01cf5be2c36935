package remote

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/ypeckstadt/dcsnap/internal/config"
)

type GCSBackend struct {
	client *storage.Client
	bucket string
}

func NewGCSBackend(ctx context.Context, cfg *config.RemoteConfig) (*GCSBackend, error) {
	if cfg.GCSBucket == "" {
		return nil, fmt.Errorf("bucket name is required for gcs replication")
	}

	var opts []option.ClientOption
	if cfg.GCSCreds != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCSCreds))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSBackend{
		client: client,
		bucket: cfg.GCSBucket,
	}, nil
}

func (g *GCSBackend) Put(ctx context.Context, key string, r io.Reader) error {
	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)

	if _, err := io.Copy(w, r); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			fmt.Printf("Warning: failed to close writer: %v\n", closeErr)
		}
		return fmt.Errorf("failed to write to gcs: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close gcs writer: %w", err)
	}
	return nil
}

func (g *GCSBackend) Close() error {
	return g.client.Close()
}
