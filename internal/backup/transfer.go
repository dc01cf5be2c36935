package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ypeckstadt/dcsnap/internal/crypto"
)

// ExportVolume archives a volume to a compressed tar file in targetDir and
// returns the written path. The file name carries a timestamp suffix so
// repeated exports never clobber each other.
func (c *Client) ExportVolume(ctx context.Context, volumeName, targetDir string) (string, error) {
	if c.blacklist.Contains(volumeName) {
		return "", fmt.Errorf("volume '%s': %w", volumeName, ErrBlacklisted)
	}

	exists, err := c.runtime.VolumeExists(ctx, volumeName)
	if err != nil {
		return "", fmt.Errorf("failed to check volume: %w", err)
	}
	if !exists {
		return "", fmt.Errorf("volume '%s': %w", volumeName, ErrNotFound)
	}

	if err := os.MkdirAll(targetDir, 0750); err != nil {
		return "", fmt.Errorf("failed to create target directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	targetPath := filepath.Join(targetDir, fmt.Sprintf("%s-%s.tar.gz", volumeName, timestamp))

	// Archive into a temp file first so a failed run leaves no partial
	// export behind.
	tempFile, err := os.CreateTemp(targetDir, ".dcsnap-export-*.tar.gz")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err := os.Remove(tempFile.Name()); err != nil && !os.IsNotExist(err) && c.verbose {
			c.warnf("failed to remove temp file: %v\n", err)
		}
	}()
	defer func() {
		if err := tempFile.Close(); err != nil && c.verbose {
			c.warnf("failed to close temp file: %v\n", err)
		}
	}()

	var spinner *IndeterminateProgress
	if !c.quiet {
		spinner = NewIndeterminateProgress("💾 Archiving volume " + volumeName)
	} else if c.verbose {
		fmt.Printf("💾 Archiving volume %s...\n", volumeName)
	}

	err = c.runtime.ArchiveVolume(ctx, volumeName, tempFile)
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		return "", err
	}

	if _, err := tempFile.Seek(0, 0); err != nil {
		return "", fmt.Errorf("failed to seek temp file: %w", err)
	}
	stat, err := tempFile.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat archive: %w", err)
	}

	var reader io.Reader = tempFile
	if c.encryptEnabled {
		password := c.password
		if password == "" {
			password = c.promptPassword("Enter encryption password: ", true)
			if password == "" {
				return "", fmt.Errorf("encryption password is required")
			}
		}

		encReader, header, err := crypto.NewEncryptReader(tempFile, password)
		if err != nil {
			return "", fmt.Errorf("failed to create encryption: %w", err)
		}

		var headerBuf bytes.Buffer
		if err := crypto.WriteHeader(&headerBuf, header); err != nil {
			return "", fmt.Errorf("failed to write encryption header: %w", err)
		}
		reader = io.MultiReader(&headerBuf, encReader)

		c.logf("🔐 Encryption enabled\n")
	}

	if !c.quiet && stat.Size() > 0 {
		progress := NewProgressReader(reader, stat.Size(), "📤 Writing "+filepath.Base(targetPath))
		reader = progress
		defer func() {
			if err := progress.Close(); err != nil && c.verbose {
				c.warnf("failed to close progress reader: %v\n", err)
			}
		}()
	}

	outFile, err := os.Create(targetPath) // #nosec G304 - controlled export path
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}

	if _, err := io.Copy(outFile, reader); err != nil {
		if closeErr := outFile.Close(); closeErr != nil && c.verbose {
			c.warnf("failed to close export file: %v\n", closeErr)
		}
		if removeErr := os.Remove(targetPath); removeErr != nil && c.verbose {
			c.warnf("failed to remove export file: %v\n", removeErr)
		}
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	if err := outFile.Close(); err != nil {
		return "", fmt.Errorf("failed to close export file: %w", err)
	}

	c.logf("✅ Volume exported: %s (%.1f MB)\n", targetPath, float64(stat.Size())/(1024*1024))

	return targetPath, nil
}

// ImportVolume unpacks a tar.gz archive into a volume, creating the volume
// if it does not exist. Import is additive: archive entries overwrite
// conflicting paths, everything else already in the volume survives.
func (c *Client) ImportVolume(ctx context.Context, archivePath, volumeName string) error {
	if c.blacklist.Contains(volumeName) {
		return fmt.Errorf("volume '%s': %w", volumeName, ErrBlacklisted)
	}

	stat, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("archive '%s': %w", archivePath, ErrNotFound)
	}
	if stat.IsDir() {
		return fmt.Errorf("archive '%s' is a directory: %w", archivePath, ErrNotFound)
	}

	if err := c.ensureVolume(ctx, volumeName); err != nil {
		return err
	}

	archiveFile, err := os.Open(archivePath) // #nosec G304 - controlled archive path
	if err != nil {
		return fmt.Errorf("archive '%s': %w", archivePath, ErrNotFound)
	}
	defer func() {
		if err := archiveFile.Close(); err != nil && c.verbose {
			c.warnf("failed to close archive: %v\n", err)
		}
	}()

	reader, err := c.maybeDecrypt(archiveFile)
	if err != nil {
		return err
	}

	var spinner *IndeterminateProgress
	if !c.quiet {
		spinner = NewIndeterminateProgress("📥 Importing into volume " + volumeName)
	} else if c.verbose {
		fmt.Printf("📥 Importing into volume %s...\n", volumeName)
	}

	err = c.runtime.ExtractToVolume(ctx, volumeName, reader)
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		return err
	}

	c.logf("✅ Archive imported into volume %s\n", volumeName)

	return nil
}

// SaveVolume copies a volume's contents into an image's filesystem at
// /volume-data and commits it under imageRef.
func (c *Client) SaveVolume(ctx context.Context, volumeName, imageRef string) error {
	if c.blacklist.Contains(volumeName) {
		return fmt.Errorf("volume '%s': %w", volumeName, ErrBlacklisted)
	}

	exists, err := c.runtime.VolumeExists(ctx, volumeName)
	if err != nil {
		return fmt.Errorf("failed to check volume: %w", err)
	}
	if !exists {
		return fmt.Errorf("volume '%s': %w", volumeName, ErrNotFound)
	}

	var spinner *IndeterminateProgress
	if !c.quiet {
		spinner = NewIndeterminateProgress(fmt.Sprintf("💾 Saving volume %s to image %s", volumeName, imageRef))
	} else if c.verbose {
		fmt.Printf("💾 Saving volume %s to image %s...\n", volumeName, imageRef)
	}

	err = c.runtime.SaveVolumeImage(ctx, volumeName, imageRef)
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		return err
	}

	c.logf("✅ Volume %s saved to image %s\n", volumeName, imageRef)

	return nil
}

// LoadVolume copies /volume-data out of an image into a volume, creating
// the volume if absent. Same merge rules as ImportVolume.
func (c *Client) LoadVolume(ctx context.Context, imageRef, volumeName string) error {
	if c.blacklist.Contains(volumeName) {
		return fmt.Errorf("volume '%s': %w", volumeName, ErrBlacklisted)
	}

	if err := c.ensureVolume(ctx, volumeName); err != nil {
		return err
	}

	var spinner *IndeterminateProgress
	if !c.quiet {
		spinner = NewIndeterminateProgress(fmt.Sprintf("📥 Loading image %s into volume %s", imageRef, volumeName))
	} else if c.verbose {
		fmt.Printf("📥 Loading image %s into volume %s...\n", imageRef, volumeName)
	}

	err := c.runtime.LoadVolumeImage(ctx, imageRef, volumeName)
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		return err
	}

	c.logf("✅ Image %s loaded into volume %s\n", imageRef, volumeName)

	return nil
}

// ensureVolume creates the volume when it does not exist yet.
func (c *Client) ensureVolume(ctx context.Context, volumeName string) error {
	exists, err := c.runtime.VolumeExists(ctx, volumeName)
	if err != nil {
		return fmt.Errorf("failed to check volume: %w", err)
	}
	if exists {
		return nil
	}

	c.logf("📦 Creating volume %s\n", volumeName)
	if err := c.runtime.CreateVolume(ctx, volumeName); err != nil {
		return fmt.Errorf("failed to create volume '%s': %w", volumeName, err)
	}
	return nil
}

// maybeDecrypt peeks at an archive stream and transparently wraps it with
// decryption when it starts with an encryption header.
func (c *Client) maybeDecrypt(r io.Reader) (io.Reader, error) {
	head := make([]byte, crypto.MagicSize)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("failed to read archive header: %w", err)
	}
	rest := io.MultiReader(bytes.NewReader(head[:n]), r)

	if !crypto.IsEncrypted(head[:n]) {
		return rest, nil
	}

	password := c.password
	if password == "" {
		password = c.promptPassword("Enter decryption password: ", false)
		if password == "" {
			return nil, fmt.Errorf("decryption password is required")
		}
	}

	header, err := crypto.ReadHeader(rest)
	if err != nil {
		return nil, fmt.Errorf("failed to read encryption header: %w", err)
	}

	decReader, err := crypto.NewDecryptReader(rest, password, header)
	if err != nil {
		return nil, fmt.Errorf("failed to create decryption: %w", err)
	}

	c.logf("🔓 Decrypting archive...\n")

	return decReader, nil
}
