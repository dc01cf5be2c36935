package docker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/ypeckstadt/dcsnap/internal/backup"
	"github.com/ypeckstadt/dcsnap/internal/models"
)

const defaultHelperImage = "alpine:latest"

// Client wraps the Docker client with the runtime operations the backup
// workflow needs. It implements backup.Runtime.
type Client struct {
	docker      *client.Client
	helperImage string
}

var _ backup.Runtime = (*Client)(nil)

// NewClient creates a new Docker client wrapper
func NewClient() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	// Test Docker connection
	if _, err := cli.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("cannot connect to Docker daemon: %w", err)
	}

	return &Client{docker: cli, helperImage: defaultHelperImage}, nil
}

// SetHelperImage overrides the image used for ephemeral helper containers.
func (c *Client) SetHelperImage(image string) {
	if image != "" {
		c.helperImage = image
	}
}

// ListContainers returns the names of all containers, running or not.
func (c *Client) ListContainers(ctx context.Context) ([]string, error) {
	containers, err := c.docker.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	var names []string
	for _, ctr := range containers {
		if len(ctr.Names) == 0 {
			continue
		}
		names = append(names, strings.TrimPrefix(ctr.Names[0], "/"))
	}
	return names, nil
}

// findContainer resolves a container by name or ID prefix.
func (c *Client) findContainer(ctx context.Context, name string) (string, error) {
	containers, err := c.docker.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return "", fmt.Errorf("failed to list containers: %w", err)
	}

	for _, ctr := range containers {
		if ctr.ID == name || strings.HasPrefix(ctr.ID, name) {
			return ctr.ID, nil
		}
		for _, containerName := range ctr.Names {
			if strings.TrimPrefix(containerName, "/") == name {
				return ctr.ID, nil
			}
		}
	}

	return "", fmt.Errorf("container '%s': %w", name, backup.ErrNotFound)
}

// InspectContainer captures a container's full configuration as a record.
func (c *Client) InspectContainer(ctx context.Context, name string) (*models.ContainerRecord, error) {
	id, err := c.findContainer(ctx, name)
	if err != nil {
		return nil, err
	}

	info, err := c.docker.ContainerInspect(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}

	record := &models.ContainerRecord{
		Name:  strings.TrimPrefix(info.Name, "/"),
		ID:    info.ID,
		Image: info.Config.Image,
		Env:   info.Config.Env,
	}
	if len(info.Config.Labels) > 0 {
		record.Labels = info.Config.Labels
	}

	if info.HostConfig != nil {
		var ports []string
		for port := range info.HostConfig.PortBindings {
			ports = append(ports, string(port))
		}
		sort.Strings(ports)
		for _, port := range ports {
			for _, binding := range info.HostConfig.PortBindings[nat.Port(port)] {
				record.Ports = append(record.Ports, models.PortBinding{
					ContainerPort: port,
					HostIP:        binding.HostIP,
					HostPort:      binding.HostPort,
				})
			}
		}
	}

	for _, mnt := range info.Mounts {
		record.Mounts = append(record.Mounts, models.MountPoint{
			Type:        string(mnt.Type),
			Name:        mnt.Name,
			Source:      mnt.Source,
			Destination: mnt.Destination,
			ReadOnly:    !mnt.RW,
		})
	}

	return record, nil
}

// CreateContainer creates (but does not start) a container from a stored
// record, replaying env, labels, port bindings and mounts through a single
// structured create request.
func (c *Client) CreateContainer(ctx context.Context, record *models.ContainerRecord) (string, error) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, port := range record.Ports {
		natPort := nat.Port(port.ContainerPort)
		exposed[natPort] = struct{}{}
		bindings[natPort] = append(bindings[natPort], nat.PortBinding{
			HostIP:   port.HostIP,
			HostPort: port.HostPort,
		})
	}

	var binds []string
	for _, mnt := range record.Mounts {
		source := mnt.Source
		if mnt.Type == "volume" && mnt.Name != "" {
			source = mnt.Name
		}
		bind := fmt.Sprintf("%s:%s", source, mnt.Destination)
		if mnt.ReadOnly {
			bind += ":ro"
		}
		binds = append(binds, bind)
	}

	resp, err := c.docker.ContainerCreate(
		ctx,
		&container.Config{
			Image:        record.Image,
			Env:          record.Env,
			Labels:       record.Labels,
			ExposedPorts: exposed,
		},
		&container.HostConfig{
			PortBindings: bindings,
			Binds:        binds,
		},
		nil,
		nil,
		record.Name,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create container '%s': %w", record.Name, err)
	}

	return resp.ID, nil
}

// VolumeExists checks if a volume exists
func (c *Client) VolumeExists(ctx context.Context, volumeName string) (bool, error) {
	_, err := c.docker.VolumeInspect(ctx, volumeName)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateVolume creates a named volume with the default driver.
func (c *Client) CreateVolume(ctx context.Context, volumeName string) error {
	if _, err := c.docker.VolumeCreate(ctx, volume.CreateOptions{Name: volumeName}); err != nil {
		return fmt.Errorf("failed to create volume '%s': %w", volumeName, err)
	}
	return nil
}

// ListVolumes returns all Docker volumes
func (c *Client) ListVolumes(ctx context.Context) ([]models.VolumeInfo, error) {
	volumeList, err := c.docker.VolumeList(ctx, volume.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list volumes: %w", err)
	}

	var volumes []models.VolumeInfo
	for _, vol := range volumeList.Volumes {
		volumes = append(volumes, models.VolumeInfo{
			Name:        vol.Name,
			Source:      vol.Mountpoint,
			Destination: vol.Mountpoint,
			Driver:      vol.Driver,
			CreatedAt:   vol.CreatedAt,
		})
	}

	return volumes, nil
}
