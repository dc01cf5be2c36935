package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// BucketKind selects how backup slots are named and pruned.
type BucketKind string

const (
	BucketHourly  BucketKind = "hourly"
	BucketDaily   BucketKind = "daily"
	BucketWeekly  BucketKind = "weekly"
	BucketDefault BucketKind = "default"
)

// Default-bucket slots carry no prefix, just a fixed-width timestamp.
var defaultSlotPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}$`)

// SlotKey computes the backup slot directory name for a bucket kind.
// Keys are fixed-width so lexicographic order equals chronological order
// within a kind. Weekly shares the daily-resolution key; the caller's
// scheduler controls actual weekly cadence.
func SlotKey(kind BucketKind, now time.Time) string {
	switch kind {
	case BucketHourly:
		return "hourly_" + now.Format("2006-01-02_15")
	case BucketDaily:
		return "daily_" + now.Format("2006-01-02")
	case BucketWeekly:
		return "weekly_" + now.Format("2006-01-02")
	default:
		return now.Format("2006-01-02_15-04-05")
	}
}

// slotMatchesKind reports whether a directory name is a slot of the given
// bucket kind. Prefixed kinds match their own prefix only; the default
// kind matches bare timestamps, so pruning one kind never touches another.
func slotMatchesKind(name string, kind BucketKind) bool {
	if kind == BucketDefault {
		return defaultSlotPattern.MatchString(name)
	}
	return strings.HasPrefix(name, string(kind)+"_")
}

// Prune removes the oldest slots of one bucket kind under a container's
// backup root, keeping the keep newest. keep <= 0 disables pruning.
// Running it again without new slots is a no-op.
func Prune(containerRoot string, kind BucketKind, keep int) error {
	if keep <= 0 {
		return nil
	}

	entries, err := os.ReadDir(containerRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read backup root: %w", err)
	}

	var slots []string
	for _, entry := range entries {
		if entry.IsDir() && slotMatchesKind(entry.Name(), kind) {
			slots = append(slots, entry.Name())
		}
	}

	if len(slots) <= keep {
		return nil
	}

	// Newest first; fixed-width keys make name order time order.
	sort.Sort(sort.Reverse(sort.StringSlice(slots)))

	for _, name := range slots[keep:] {
		if err := os.RemoveAll(filepath.Join(containerRoot, name)); err != nil {
			return fmt.Errorf("failed to prune slot %s: %w", name, err)
		}
	}

	return nil
}
