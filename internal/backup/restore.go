package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ypeckstadt/dcsnap/internal/models"
)

// RestoreContainer reconstructs a container from a backup slot. The path
// may be a concrete slot directory or a backup root, in which case the
// newest slot for the container is used. Volumes are recreated first,
// then the container is created from the stored config record. The
// container is never started.
func (c *Client) RestoreContainer(ctx context.Context, path, containerName string) error {
	if c.blacklist.Contains(containerName) {
		return fmt.Errorf("container '%s': %w", containerName, ErrBlacklisted)
	}

	slotPath, err := resolveSlot(path, containerName)
	if err != nil {
		return err
	}

	record, err := readConfigRecord(slotPath, containerName)
	if err != nil {
		return err
	}

	c.logf("📋 Restoring '%s' from %s (image %s)\n", containerName, slotPath, record.Image)

	if err := c.restoreVolumes(ctx, slotPath); err != nil {
		return err
	}

	// Restore under the requested name even if the record was captured
	// under another one.
	record.Name = containerName
	record.ID = ""

	id, err := c.runtime.CreateContainer(ctx, record)
	if err != nil {
		return err
	}

	c.logf("✅ Container '%s' created (%s), not started\n", containerName, shortID(id))

	return nil
}

// restoreVolumes recreates and refills every volume archived in a slot.
// Each archive is extracted into its own volume, merge-preserving: the
// snapshot wrote one archive per volume, so that is what gets replayed.
func (c *Client) restoreVolumes(ctx context.Context, slotPath string) error {
	volumesDir := filepath.Join(slotPath, "volumes")
	entries, err := os.ReadDir(volumesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // config-only snapshot
		}
		return fmt.Errorf("failed to read volumes directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		volumeName := entry.Name()

		archivePath := filepath.Join(volumesDir, volumeName, "backup.tar.gz")
		archiveFile, err := os.Open(archivePath) // #nosec G304 - controlled slot path
		if err != nil {
			c.warnf("volume '%s' has no archive, skipping: %v\n", volumeName, err)
			continue
		}

		if err := c.ensureVolume(ctx, volumeName); err != nil {
			if closeErr := archiveFile.Close(); closeErr != nil && c.verbose {
				c.warnf("failed to close archive: %v\n", closeErr)
			}
			return err
		}

		err = c.runtime.ExtractToVolume(ctx, volumeName, archiveFile)
		if closeErr := archiveFile.Close(); closeErr != nil && c.verbose {
			c.warnf("failed to close archive: %v\n", closeErr)
		}
		if err != nil {
			return fmt.Errorf("failed to restore volume '%s': %w", volumeName, err)
		}

		c.logf("   ├─ Volume '%s' restored ✓\n", volumeName)
	}

	return nil
}

// resolveSlot turns a slot-or-root path into a concrete slot directory.
// A directory holding containers/<name>/config.json is already a slot;
// otherwise the newest slot under <path>/<name>/ wins.
func resolveSlot(path, containerName string) (string, error) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("backup path '%s': %w", path, ErrNotFound)
	}

	if _, err := os.Stat(filepath.Join(path, "containers", containerName, "config.json")); err == nil {
		return path, nil
	}
	// A slot missing only its config record is a partial snapshot, not a
	// root to search under.
	if _, err := os.Stat(filepath.Join(path, "containers")); err == nil {
		return "", fmt.Errorf("snapshot at '%s' has no config record for '%s': %w", path, containerName, ErrConfigInvalid)
	}

	containerRoot := filepath.Join(path, containerName)
	entries, err := os.ReadDir(containerRoot)
	if err != nil {
		return "", fmt.Errorf("no backups for '%s' under '%s': %w", containerName, path, ErrNotFound)
	}

	var newest string
	var newestMod int64
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || fi.ModTime().UnixNano() > newestMod {
			newest = entry.Name()
			newestMod = fi.ModTime().UnixNano()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no backup slots for '%s' under '%s': %w", containerName, path, ErrNotFound)
	}

	return filepath.Join(containerRoot, newest), nil
}

// readConfigRecord loads and validates a slot's config record. A slot
// without a readable record is rejected before anything is mutated.
func readConfigRecord(slotPath, containerName string) (*models.ContainerRecord, error) {
	configPath := filepath.Join(slotPath, "containers", containerName, "config.json")
	data, err := os.ReadFile(configPath) // #nosec G304 - controlled slot path
	if err != nil {
		return nil, fmt.Errorf("snapshot at '%s' has no config record for '%s': %w", slotPath, containerName, ErrConfigInvalid)
	}

	var record models.ContainerRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unreadable config record for '%s': %w", containerName, ErrConfigInvalid)
	}
	if record.Image == "" {
		return nil, fmt.Errorf("config record for '%s' has no image: %w", containerName, ErrConfigInvalid)
	}

	return &record, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
