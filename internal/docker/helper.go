package docker

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"

	"github.com/ypeckstadt/dcsnap/internal/backup"
)

// maxArchiveSize limits decompression to prevent decompression bombs (100GB)
const maxArchiveSize = 100 * 1024 * 1024 * 1024

// runHelper runs one ephemeral helper container to completion: create,
// setup (copy files in), start, wait, collect (copy files out or commit).
// The helper is force-removed on every exit path. A non-zero exit surfaces
// as a backup.RuntimeError carrying the captured logs.
func (c *Client) runHelper(ctx context.Context, op string, cfg *container.Config, hostCfg *container.HostConfig, setup, collect func(id string) error) error {
	resp, err := c.docker.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return fmt.Errorf("failed to create %s container: %w", op, err)
	}

	defer func() {
		if err := c.docker.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true}); err != nil {
			fmt.Printf("Warning: failed to remove container %s: %v\n", resp.ID, err)
		}
	}()

	if setup != nil {
		if err := setup(resp.ID); err != nil {
			return err
		}
	}

	if err := c.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start %s container: %w", op, err)
	}

	statusCh, errCh := c.docker.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s container error: %w", op, err)
		}
	case status := <-statusCh:
		if status.StatusCode != 0 {
			return &backup.RuntimeError{
				Op:       op,
				ExitCode: int(status.StatusCode),
				Logs:     c.containerLogs(ctx, resp.ID),
			}
		}
	}

	if collect != nil {
		return collect(resp.ID)
	}
	return nil
}

// containerLogs captures a helper's combined output for diagnostics.
func (c *Client) containerLogs(ctx context.Context, id string) string {
	logs, err := c.docker.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return ""
	}
	defer func() {
		if err := logs.Close(); err != nil {
			fmt.Printf("Warning: failed to close logs: %v\n", err)
		}
	}()

	data, _ := io.ReadAll(logs)
	return strings.TrimSpace(string(data))
}

// ArchiveVolume streams a volume's contents as a gzipped tar to w, using
// a helper container with the volume mounted read-only.
func (c *Client) ArchiveVolume(ctx context.Context, volumeName string, w io.Writer) error {
	cfg := &container.Config{
		Image: c.helperImage,
		Cmd:   []string{"tar", "czf", "/backup.tar.gz", "-C", "/data", "."},
	}
	hostCfg := &container.HostConfig{
		Binds: []string{fmt.Sprintf("%s:/data:ro", volumeName)},
	}

	return c.runHelper(ctx, "volume archive", cfg, hostCfg, nil, func(id string) error {
		reader, _, err := c.docker.CopyFromContainer(ctx, id, "/backup.tar.gz")
		if err != nil {
			return fmt.Errorf("failed to copy archive from container: %w", err)
		}
		defer func() {
			if err := reader.Close(); err != nil {
				fmt.Printf("Warning: failed to close reader: %v\n", err)
			}
		}()

		// CopyFromContainer wraps the file in a tar stream.
		tarReader := tar.NewReader(reader)
		for {
			header, err := tarReader.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("failed to read tar stream: %w", err)
			}

			if header.Name == "backup.tar.gz" || strings.HasSuffix(header.Name, "/backup.tar.gz") {
				if _, err := io.CopyN(w, tarReader, maxArchiveSize); err != nil && err != io.EOF {
					return fmt.Errorf("failed to copy archive data: %w", err)
				}
				return nil
			}
		}
		return fmt.Errorf("backup.tar.gz not found in tar stream")
	})
}

// ExtractToVolume unpacks a gzipped tar stream over a volume's existing
// contents. The volume is not cleared first: archive entries overwrite
// conflicting paths, everything else survives.
func (c *Client) ExtractToVolume(ctx context.Context, volumeName string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}

	cfg := &container.Config{
		Image: c.helperImage,
		Cmd:   []string{"sh", "-c", "cd /data && tar xzf /backup.tar.gz"},
	}
	hostCfg := &container.HostConfig{
		Binds: []string{fmt.Sprintf("%s:/data", volumeName)},
	}

	setup := func(id string) error {
		if err := c.docker.CopyToContainer(ctx, id, "/", tarWithFile("backup.tar.gz", data), types.CopyToContainerOptions{}); err != nil {
			return fmt.Errorf("failed to copy archive to container: %w", err)
		}
		return nil
	}

	return c.runHelper(ctx, "volume extract", cfg, hostCfg, setup, nil)
}

// SaveVolumeImage copies a volume's contents into a helper container at
// /volume-data and commits the container under imageRef.
func (c *Client) SaveVolumeImage(ctx context.Context, volumeName, imageRef string) error {
	cfg := &container.Config{
		Image: c.helperImage,
		Cmd:   []string{"sh", "-c", "mkdir -p /volume-data && cp -a /data/. /volume-data/"},
	}
	hostCfg := &container.HostConfig{
		Binds: []string{fmt.Sprintf("%s:/data:ro", volumeName)},
	}

	return c.runHelper(ctx, "volume save", cfg, hostCfg, nil, func(id string) error {
		if _, err := c.docker.ContainerCommit(ctx, id, container.CommitOptions{Reference: imageRef}); err != nil {
			return fmt.Errorf("failed to commit volume image '%s': %w", imageRef, err)
		}
		return nil
	})
}

// LoadVolumeImage copies /volume-data out of an imageRef container into a
// volume, merge-preserving like ExtractToVolume.
func (c *Client) LoadVolumeImage(ctx context.Context, imageRef, volumeName string) error {
	cfg := &container.Config{
		Image: imageRef,
		Cmd:   []string{"sh", "-c", "cp -a /volume-data/. /data/"},
	}
	hostCfg := &container.HostConfig{
		Binds: []string{fmt.Sprintf("%s:/data", volumeName)},
	}

	return c.runHelper(ctx, "volume load", cfg, hostCfg, nil, nil)
}

// tarWithFile builds a tar stream containing a single file.
func tarWithFile(filename string, data []byte) io.Reader {
	buf := new(strings.Builder)
	tw := tar.NewWriter(buf)

	header := &tar.Header{
		Name: filename,
		Mode: 0600,
		Size: int64(len(data)),
	}

	if err := tw.WriteHeader(header); err != nil {
		return strings.NewReader("")
	}
	if _, err := tw.Write(data); err != nil {
		return strings.NewReader("")
	}
	if err := tw.Close(); err != nil {
		return strings.NewReader("")
	}

	return strings.NewReader(buf.String())
}
