package backup

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks a missing container, volume, archive or config record.
	ErrNotFound = errors.New("not found")

	// ErrBlacklisted marks an operation refused because the target name is
	// blacklisted. Callers treat it as a non-fatal skip.
	ErrBlacklisted = errors.New("blacklisted")

	// ErrConfigInvalid marks a partial or unreadable snapshot.
	ErrConfigInvalid = errors.New("invalid snapshot config")
)

// RuntimeError reports a helper container or create call that exited
// non-zero. Logs carries the captured output verbatim.
type RuntimeError struct {
	Op       string
	ExitCode int
	Logs     string
}

func (e *RuntimeError) Error() string {
	if e.Logs != "" {
		return fmt.Sprintf("%s exited with code %d: %s", e.Op, e.ExitCode, e.Logs)
	}
	return fmt.Sprintf("%s exited with code %d", e.Op, e.ExitCode)
}
