package backup

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
)

// SkipEntry records one container left out of a batch run and why.
type SkipEntry struct {
	Name   string
	Reason string
}

// BatchResult accumulates the outcome of a backup-all run.
type BatchResult struct {
	Succeeded []string
	Skipped   []SkipEntry
}

// RetentionPolicy maps bucket kinds to keep counts for post-snapshot
// pruning. Zero disables pruning for that kind.
type RetentionPolicy struct {
	Hourly  int
	Daily   int
	Weekly  int
	Default int
}

// Keep returns the keep count for a bucket kind.
func (p RetentionPolicy) Keep(kind BucketKind) int {
	switch kind {
	case BucketHourly:
		return p.Hourly
	case BucketDaily:
		return p.Daily
	case BucketWeekly:
		return p.Weekly
	default:
		return p.Default
	}
}

// BackupAll snapshots every container known to the runtime, prunes each
// container's slots for the active bucket kind after a successful
// snapshot, and replicates the slot when a replicator is configured.
// A single container's failure becomes a skip entry; the batch always
// runs to completion. Only the initial container listing can fail.
func (c *Client) BackupAll(ctx context.Context, backupRoot string, kind BucketKind, retention RetentionPolicy) (*BatchResult, error) {
	names, err := c.runtime.ListContainers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	result := &BatchResult{}
	for _, name := range names {
		if c.blacklist.Contains(name) {
			c.logf("⏭️  Skipping blacklisted container '%s'\n", name)
			result.Skipped = append(result.Skipped, SkipEntry{Name: name, Reason: "blacklisted"})
			continue
		}

		slotPath, err := c.SnapshotContainer(ctx, name, backupRoot, kind)
		if err != nil {
			c.warnf("backup of '%s' failed: %v\n", name, err)
			result.Skipped = append(result.Skipped, SkipEntry{Name: name, Reason: err.Error()})
			continue
		}

		result.Succeeded = append(result.Succeeded, name)

		if err := Prune(filepath.Join(backupRoot, name), kind, retention.Keep(kind)); err != nil {
			c.warnf("pruning old backups of '%s' failed: %v\n", name, err)
		}

		if c.replicator != nil {
			if err := c.replicator.SyncSlot(ctx, slotPath, name); err != nil {
				c.warnf("remote sync of '%s' failed: %v\n", name, err)
			}
		}
	}

	if !c.quiet {
		c.printBatchSummary(result)
	}

	return result, nil
}

// printBatchSummary reports per-entry results plus totals.
func (c *Client) printBatchSummary(result *BatchResult) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	fmt.Println()
	for _, name := range result.Succeeded {
		green.Printf("  ✓ %s\n", name)
	}
	for _, entry := range result.Skipped {
		yellow.Printf("  - %s (%s)\n", entry.Name, entry.Reason)
	}
	fmt.Printf("\nBackup complete: %d succeeded, %d skipped\n",
		len(result.Succeeded), len(result.Skipped))
}
