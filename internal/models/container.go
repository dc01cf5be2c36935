package models

import "time"

// ContainerRecord is the full configuration captured for one container.
// It is written to config.json inside a backup slot and replayed through
// the structured create call at restore time.
type ContainerRecord struct {
	Name   string            `json:"name"`
	ID     string            `json:"id,omitempty"`
	Image  string            `json:"image"`
	Env    []string          `json:"env,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
	Ports  []PortBinding     `json:"ports,omitempty"`
	Mounts []MountPoint      `json:"mounts,omitempty"`
}

// PortBinding maps a container port to a host binding.
type PortBinding struct {
	ContainerPort string `json:"container_port"` // e.g. "5432/tcp"
	HostIP        string `json:"host_ip,omitempty"`
	HostPort      string `json:"host_port"`
}

// HostBinding renders the host side as it appears in ports.txt.
func (p PortBinding) HostBinding() string {
	if p.HostIP != "" {
		return p.HostIP + ":" + p.HostPort
	}
	return p.HostPort
}

// MountPoint describes one mount of a container.
type MountPoint struct {
	Type        string `json:"type"` // "volume" or "bind"
	Name        string `json:"name,omitempty"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	ReadOnly    bool   `json:"read_only,omitempty"`
}

// VolumeInfo stores volume details
type VolumeInfo struct {
	Name        string `json:"name"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Driver      string `json:"driver,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// SlotManifest is written next to a slot's data and marks whether the
// snapshot is complete. A slot whose manifest lists failed volumes is
// partial: its config record is still restorable, the listed volumes
// are not.
type SlotManifest struct {
	Container     string    `json:"container"`
	BucketKind    string    `json:"bucket_kind"`
	SlotKey       string    `json:"slot_key"`
	CreatedAt     time.Time `json:"created_at"`
	Volumes       []string  `json:"volumes,omitempty"`
	FailedVolumes []string  `json:"failed_volumes,omitempty"`
	Partial       bool      `json:"partial"`
	Version       string    `json:"version"`
}
