package backup

import (
	"context"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/ypeckstadt/dcsnap/internal/models"
)

// Runtime is the container runtime surface the backup workflow needs.
// The Docker implementation lives in internal/docker; tests substitute a
// fake. The workflow never manages a runtime, it only calls one.
type Runtime interface {
	ListContainers(ctx context.Context) ([]string, error)
	InspectContainer(ctx context.Context, name string) (*models.ContainerRecord, error)
	CreateContainer(ctx context.Context, record *models.ContainerRecord) (string, error)

	VolumeExists(ctx context.Context, name string) (bool, error)
	CreateVolume(ctx context.Context, name string) error

	// ArchiveVolume writes the volume's contents as a gzipped tar stream.
	ArchiveVolume(ctx context.Context, volume string, w io.Writer) error
	// ExtractToVolume unpacks a gzipped tar stream over the volume's
	// existing contents. Archive entries win on path conflicts.
	ExtractToVolume(ctx context.Context, volume string, r io.Reader) error

	SaveVolumeImage(ctx context.Context, volume, imageRef string) error
	LoadVolumeImage(ctx context.Context, imageRef, volume string) error
}

// Replicator ships a finished backup slot to a remote location.
type Replicator interface {
	SyncSlot(ctx context.Context, slotPath, containerName string) error
}

// Client runs the backup/restore workflow against a Runtime.
type Client struct {
	runtime    Runtime
	blacklist  *Blacklist
	replicator Replicator
	verbose    bool
	quiet      bool

	encryptEnabled bool
	password       string
}

// NewClient creates a workflow client. The blacklist may be nil.
func NewClient(runtime Runtime, blacklist *Blacklist, verbose bool) *Client {
	return &Client{
		runtime:   runtime,
		blacklist: blacklist,
		verbose:   verbose,
	}
}

// SetQuiet sets the quiet mode for the client
func (c *Client) SetQuiet(quiet bool) {
	c.quiet = quiet
}

// SetReplicator enables remote slot replication after successful snapshots.
func (c *Client) SetReplicator(r Replicator) {
	c.replicator = r
}

// SetEncryption sets encryption settings for standalone exports/imports.
func (c *Client) SetEncryption(enabled bool, password string) {
	c.encryptEnabled = enabled
	c.password = password
}

func (c *Client) logf(format string, args ...interface{}) {
	if c.verbose {
		fmt.Printf(format, args...)
	}
}

func (c *Client) warnf(format string, args ...interface{}) {
	fmt.Printf("Warning: "+format, args...)
}

// promptPassword prompts the user for a password
func (c *Client) promptPassword(prompt string, confirm bool) string {
	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		if c.verbose {
			fmt.Printf("Error reading password: %v\n", err)
		}
		return ""
	}

	password := string(bytePassword)

	if confirm {
		fmt.Print("Confirm password: ")
		byteConfirm, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			if c.verbose {
				fmt.Printf("Error reading password confirmation: %v\n", err)
			}
			return ""
		}

		if password != string(byteConfirm) {
			fmt.Println("❌ Passwords do not match")
			return ""
		}
	}

	return password
}
