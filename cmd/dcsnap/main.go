package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ypeckstadt/dcsnap/internal/backup"
	"github.com/ypeckstadt/dcsnap/internal/config"
	"github.com/ypeckstadt/dcsnap/internal/docker"
	"github.com/ypeckstadt/dcsnap/internal/remote"
	"github.com/ypeckstadt/dcsnap/pkg/version"
)

// Global variables for CLI flags
var (
	configFile string
	backupDir  string
	verbose    bool
	quiet      bool
	blacklist  []string
	// Bucket flags
	hourly bool
	daily  bool
	weekly bool
	// Encryption flags
	encrypt  bool
	password string
)

// loadedConfig is kept for the failure hook in main.
var loadedConfig *config.Config

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	// Flags win over environment/file values.
	if backupDir != "" {
		cfg.BackupDir = backupDir
	}
	cfg.Blacklist = append(cfg.Blacklist, blacklist...)

	loadedConfig = cfg
	return cfg, nil
}

func newWorkflowClient(cfg *config.Config) (*backup.Client, error) {
	dockerClient, err := docker.NewClient()
	if err != nil {
		return nil, err
	}
	dockerClient.SetHelperImage(cfg.HelperImage)

	client := backup.NewClient(dockerClient, backup.NewBlacklist(cfg.Blacklist), verbose && !quiet)
	client.SetQuiet(quiet)
	return client, nil
}

func bucketKind() backup.BucketKind {
	switch {
	case hourly:
		return backup.BucketHourly
	case daily:
		return backup.BucketDaily
	case weekly:
		return backup.BucketWeekly
	default:
		return backup.BucketDefault
	}
}

func retentionPolicy(cfg *config.Config) backup.RetentionPolicy {
	return backup.RetentionPolicy{
		Hourly:  cfg.Retention.Hourly,
		Daily:   cfg.Retention.Daily,
		Weekly:  cfg.Retention.Weekly,
		Default: cfg.Retention.Default,
	}
}

func addBucketFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&hourly, "hourly", false, "Use the hourly backup bucket")
	cmd.Flags().BoolVar(&daily, "daily", false, "Use the daily backup bucket")
	cmd.Flags().BoolVar(&weekly, "weekly", false, "Use the weekly backup bucket")
	cmd.MarkFlagsMutuallyExclusive("hourly", "daily", "weekly")
}

// skippedOK converts a blacklist refusal into a warning and a zero exit;
// a skipped item is not a failure.
func skippedOK(err error) error {
	if errors.Is(err, backup.ErrBlacklisted) {
		fmt.Printf("Warning: %v, skipped\n", err)
		return nil
	}
	return err
}

func main() {
	rootCmd := &cobra.Command{
		Use:     "dcsnap",
		Short:   "Docker container snapshot tool",
		Long:    "dcsnap copies data between Docker volumes, tar archives and images, and snapshots/restores whole containers (configuration plus volumes) to a directory tree",
		Version: version.Version,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file (environment wins)")
	rootCmd.PersistentFlags().StringVar(&backupDir, "backup-dir", "", "Directory to store backups (default ./backups)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet output")
	rootCmd.PersistentFlags().StringSliceVar(&blacklist, "blacklist", []string{}, "Container/volume names to exclude (comma-separated, merged with DCSNAP_BLACKLIST)")

	rootCmd.AddCommand(createExportCommand())
	rootCmd.AddCommand(createImportCommand())
	rootCmd.AddCommand(createSaveCommand())
	rootCmd.AddCommand(createLoadCommand())
	rootCmd.AddCommand(createBackupContainerCommand())
	rootCmd.AddCommand(createBackupAllCommand())
	rootCmd.AddCommand(createRestoreContainerCommand())
	rootCmd.AddCommand(createVolumesCommand())
	rootCmd.AddCommand(createVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		runFailureHook(err)
		os.Exit(1)
	}
}

// runFailureHook invokes the configured failure hook with the error text.
// Hook problems are warnings, never a second failure.
func runFailureHook(cmdErr error) {
	if loadedConfig == nil || loadedConfig.FailureHook == "" {
		return
	}
	command := "dcsnap"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}
	hook := exec.Command(loadedConfig.FailureHook, command, cmdErr.Error()) // #nosec G204 - operator-configured hook
	hook.Stdout = os.Stderr
	hook.Stderr = os.Stderr
	if err := hook.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failure hook failed: %v\n", err)
	}
}

func createExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <volume> [target-dir]",
		Short: "Export a volume to a compressed tar archive",
		Long:  "Export a Docker volume's contents to a timestamped tar.gz file in the target directory (default: the backup directory)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client, err := newWorkflowClient(cfg)
			if err != nil {
				return err
			}
			if encrypt || password != "" {
				client.SetEncryption(true, password)
			}

			targetDir := cfg.BackupDir
			if len(args) == 2 {
				targetDir = args[1]
			}

			path, err := client.ExportVolume(context.Background(), args[0], targetDir)
			if err != nil {
				return skippedOK(err)
			}
			if !quiet {
				fmt.Println(path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "Encrypt the archive with AES-256")
	cmd.Flags().StringVar(&password, "password", "", "Password for encryption (will prompt if not provided)")

	return cmd
}

func createImportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <archive> <volume>",
		Short: "Import a tar archive into a volume",
		Long:  "Import a tar.gz archive into a Docker volume, creating the volume if needed. Existing files not present in the archive survive; conflicting paths are overwritten",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client, err := newWorkflowClient(cfg)
			if err != nil {
				return err
			}
			if password != "" {
				client.SetEncryption(true, password)
			}

			return skippedOK(client.ImportVolume(context.Background(), args[0], args[1]))
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Password for decryption (will prompt if encrypted and not provided)")

	return cmd
}

func createSaveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "save <volume> <image>",
		Short: "Save a volume's contents into a container image",
		Long:  "Copy a Docker volume's contents into an image filesystem (under /volume-data) and commit it under the given reference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client, err := newWorkflowClient(cfg)
			if err != nil {
				return err
			}

			return skippedOK(client.SaveVolume(context.Background(), args[0], args[1]))
		},
	}
}

func createLoadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "load <image> <volume>",
		Short: "Load a saved image's contents into a volume",
		Long:  "Copy /volume-data out of an image produced by 'save' into a Docker volume, creating the volume if needed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client, err := newWorkflowClient(cfg)
			if err != nil {
				return err
			}

			return skippedOK(client.LoadVolume(context.Background(), args[0], args[1]))
		},
	}
}

func createBackupContainerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup-container <container>",
		Short: "Snapshot one container's configuration and volumes",
		Long:  "Capture a container's full configuration plus an archive of every mounted volume into a new backup slot, then prune old slots of the same bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client, err := newWorkflowClient(cfg)
			if err != nil {
				return err
			}

			kind := bucketKind()
			slotPath, err := client.SnapshotContainer(context.Background(), args[0], cfg.BackupDir, kind)
			if err != nil {
				return skippedOK(err)
			}

			if err := backup.Prune(filepath.Join(cfg.BackupDir, args[0]), kind, retentionPolicy(cfg).Keep(kind)); err != nil {
				fmt.Printf("Warning: pruning old backups failed: %v\n", err)
			}

			if !quiet {
				fmt.Println(slotPath)
			}
			return nil
		},
	}

	addBucketFlags(cmd)

	return cmd
}

func createBackupAllCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup-all",
		Short: "Snapshot every non-blacklisted container",
		Long:  "Snapshot every container known to the Docker daemon, prune old slots per container, optionally replicate each slot to the configured remote, and report a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client, err := newWorkflowClient(cfg)
			if err != nil {
				return err
			}

			if cfg.Remote.Enabled {
				backend, err := remote.NewBackend(ctx, &cfg.Remote)
				if err != nil {
					fmt.Printf("Warning: remote replication disabled: %v\n", err)
				} else {
					defer func() {
						if err := backend.Close(); err != nil {
							fmt.Printf("Warning: failed to close remote backend: %v\n", err)
						}
					}()
					client.SetReplicator(remote.NewReplicator(backend, cfg.Remote.Prefix))
				}
			}

			_, err = client.BackupAll(ctx, cfg.BackupDir, bucketKind(), retentionPolicy(cfg))
			return err
		},
	}

	addBucketFlags(cmd)

	return cmd
}

func createRestoreContainerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restore-container <container> [slot-or-root]",
		Short: "Recreate a container from a backup slot",
		Long:  "Restore a container's volumes and recreate it (without starting it) from a backup slot, or from the newest slot under a backup root (default: the backup directory)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client, err := newWorkflowClient(cfg)
			if err != nil {
				return err
			}

			path := cfg.BackupDir
			if len(args) == 2 {
				path = args[1]
			}

			return skippedOK(client.RestoreContainer(context.Background(), path, args[0]))
		},
	}
}

func createVolumesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "volumes",
		Short: "List all Docker volumes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dockerClient, err := docker.NewClient()
			if err != nil {
				return err
			}

			volumes, err := dockerClient.ListVolumes(context.Background())
			if err != nil {
				return err
			}

			if len(volumes) == 0 {
				fmt.Println("No Docker volumes found")
				return nil
			}

			fmt.Printf("%-30s %-15s %-20s %s\n", "VOLUME NAME", "DRIVER", "CREATED", "MOUNTPOINT")
			for _, vol := range volumes {
				created := vol.CreatedAt
				if created == "" {
					created = "unknown"
				}
				fmt.Printf("%-30s %-15s %-20s %s\n", vol.Name, vol.Driver, created, vol.Source)
			}
			return nil
		},
	}
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Info())
		},
	}
}
