package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ypeckstadt/dcsnap/internal/models"
)

const manifestVersion = "1.0"

// SnapshotContainer captures one container's configuration and volumes
// into a new backup slot under backupRoot/<name>/<slot key> and returns
// the slot path. A volume-level archive failure is logged, recorded in
// the slot manifest and skipped; it does not abort the snapshot.
func (c *Client) SnapshotContainer(ctx context.Context, containerName, backupRoot string, kind BucketKind) (string, error) {
	if c.blacklist.Contains(containerName) {
		return "", fmt.Errorf("container '%s': %w", containerName, ErrBlacklisted)
	}

	c.logf("🔍 Analyzing container '%s'...\n", containerName)

	record, err := c.runtime.InspectContainer(ctx, containerName)
	if err != nil {
		return "", err
	}

	slotKey := SlotKey(kind, time.Now())
	slotPath := filepath.Join(backupRoot, containerName, slotKey)

	configDir := filepath.Join(slotPath, "containers", containerName)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return "", fmt.Errorf("failed to create slot directory: %w", err)
	}

	if err := writeConfigRecord(configDir, record); err != nil {
		return "", err
	}

	archived, failed := c.archiveMounts(ctx, record, slotPath)

	manifest := &models.SlotManifest{
		Container:     containerName,
		BucketKind:    string(kind),
		SlotKey:       slotKey,
		CreatedAt:     time.Now(),
		Volumes:       archived,
		FailedVolumes: failed,
		Partial:       len(failed) > 0,
		Version:       manifestVersion,
	}
	if err := writeJSON(filepath.Join(slotPath, "manifest.json"), manifest); err != nil {
		return "", err
	}

	if manifest.Partial {
		c.warnf("snapshot of '%s' is partial, %d volume(s) failed\n", containerName, len(failed))
	}
	c.logf("✅ Snapshot created: %s\n", slotPath)

	return slotPath, nil
}

// archiveMounts archives every archivable mount of a container into the
// slot's volumes/ directory and reports which succeeded and which failed.
func (c *Client) archiveMounts(ctx context.Context, record *models.ContainerRecord, slotPath string) (archived, failed []string) {
	for _, mount := range record.Mounts {
		volumeName := mountVolumeName(mount)
		if volumeName == "" {
			continue
		}
		if c.blacklist.Contains(volumeName) {
			c.warnf("skipping blacklisted volume '%s'\n", volumeName)
			continue
		}

		if err := c.archiveVolumeToSlot(ctx, volumeName, slotPath); err != nil {
			c.warnf("failed to archive volume '%s': %v\n", volumeName, err)
			failed = append(failed, volumeName)
			continue
		}

		c.logf("   ├─ Volume '%s' ✓\n", volumeName)
		archived = append(archived, volumeName)
	}
	return archived, failed
}

// archiveVolumeToSlot writes one volume archive as
// <slot>/volumes/<name>/backup.tar.gz.
func (c *Client) archiveVolumeToSlot(ctx context.Context, volumeName, slotPath string) error {
	volumeDir := filepath.Join(slotPath, "volumes", volumeName)
	if err := os.MkdirAll(volumeDir, 0750); err != nil {
		return fmt.Errorf("failed to create volume directory: %w", err)
	}

	archivePath := filepath.Join(volumeDir, "backup.tar.gz")
	archiveFile, err := os.Create(archivePath) // #nosec G304 - controlled slot path
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}

	if err := c.runtime.ArchiveVolume(ctx, volumeName, archiveFile); err != nil {
		if closeErr := archiveFile.Close(); closeErr != nil && c.verbose {
			c.warnf("failed to close archive file: %v\n", closeErr)
		}
		if removeErr := os.RemoveAll(volumeDir); removeErr != nil && c.verbose {
			c.warnf("failed to remove partial archive: %v\n", removeErr)
		}
		return err
	}

	if err := archiveFile.Close(); err != nil {
		return fmt.Errorf("failed to close archive file: %w", err)
	}
	return nil
}

// mountVolumeName derives the archive name for a mount: named volumes use
// their volume name, bind mounts the source path's final component.
func mountVolumeName(mount models.MountPoint) string {
	if mount.Name != "" {
		return mount.Name
	}
	if mount.Source == "" {
		return ""
	}
	base := filepath.Base(mount.Source)
	if base == "/" || base == "." {
		return ""
	}
	return base
}

// writeConfigRecord writes config.json plus the flattened text projections
// of the record. The text files exist to stay greppable and replayable;
// the restore path itself replays config.json.
func writeConfigRecord(configDir string, record *models.ContainerRecord) error {
	if err := writeJSON(filepath.Join(configDir, "config.json"), record); err != nil {
		return err
	}

	var env []string
	env = append(env, record.Env...) // order preserved

	labelKeys := make([]string, 0, len(record.Labels))
	for key := range record.Labels {
		labelKeys = append(labelKeys, key)
	}
	sort.Strings(labelKeys)
	labels := make([]string, 0, len(labelKeys))
	for _, key := range labelKeys {
		labels = append(labels, fmt.Sprintf("%s = %s", key, record.Labels[key]))
	}

	ports := make([]string, 0, len(record.Ports))
	for _, port := range record.Ports {
		ports = append(ports, fmt.Sprintf("%s -> %s", port.ContainerPort, port.HostBinding()))
	}

	mounts := make([]string, 0, len(record.Mounts))
	for _, mount := range record.Mounts {
		mounts = append(mounts, fmt.Sprintf("%s -> %s", mount.Source, mount.Destination))
	}

	files := map[string][]string{
		"env.txt":     env,
		"labels.txt":  labels,
		"ports.txt":   ports,
		"volumes.txt": mounts,
	}
	for name, lines := range files {
		if err := writeLines(filepath.Join(configDir, name), lines); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeLines(path string, lines []string) error {
	var content string
	for _, line := range lines {
		content += line + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
