package remote

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Replicator packs backup slots and hands them to a Backend.
type Replicator struct {
	backend Backend
	prefix  string
}

// NewReplicator creates a replicator writing under an optional key prefix.
func NewReplicator(backend Backend, prefix string) *Replicator {
	return &Replicator{backend: backend, prefix: prefix}
}

// SyncSlot ships one slot directory as <prefix>/<container>/<slot>.tar.gz.
func (r *Replicator) SyncSlot(ctx context.Context, slotPath, containerName string) error {
	tempFile, err := os.CreateTemp("", "dcsnap-sync-*.tar.gz")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err := os.Remove(tempFile.Name()); err != nil {
			fmt.Printf("Warning: failed to remove temp file: %v\n", err)
		}
	}()
	defer func() {
		if err := tempFile.Close(); err != nil {
			fmt.Printf("Warning: failed to close temp file: %v\n", err)
		}
	}()

	if err := packDirectory(slotPath, tempFile); err != nil {
		return err
	}
	if _, err := tempFile.Seek(0, 0); err != nil {
		return fmt.Errorf("failed to seek temp file: %w", err)
	}

	key := path.Join(r.prefix, containerName, filepath.Base(slotPath)+".tar.gz")
	if err := r.backend.Put(ctx, key, tempFile); err != nil {
		return fmt.Errorf("failed to upload slot: %w", err)
	}
	return nil
}

// packDirectory writes a directory tree as a gzipped tar with paths
// relative to the directory root.
func packDirectory(dir string, w io.Writer) error {
	gzWriter := gzip.NewWriter(w)
	tarWriter := tar.NewWriter(gzWriter)

	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			header.Name += "/"
		}

		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}

		file, err := os.Open(p) // #nosec G304 - controlled slot path
		if err != nil {
			return err
		}
		_, copyErr := io.Copy(tarWriter, file)
		if closeErr := file.Close(); copyErr == nil {
			copyErr = closeErr
		}
		return copyErr
	})
	if err != nil {
		return fmt.Errorf("failed to pack slot %s: %w", strings.TrimSuffix(dir, "/"), err)
	}

	if err := tarWriter.Close(); err != nil {
		return fmt.Errorf("failed to close tar writer: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return nil
}
