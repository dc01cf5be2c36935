package backup

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ypeckstadt/dcsnap/internal/models"
)

func webContainer() *models.ContainerRecord {
	return &models.ContainerRecord{
		Name:  "web",
		ID:    "abcdef123456",
		Image: "nginx:1.25",
		Env:   []string{"MODE=prod", "PORT=8080"},
		Labels: map[string]string{
			"app":  "web",
			"tier": "frontend",
		},
		Ports: []models.PortBinding{
			{ContainerPort: "80/tcp", HostIP: "0.0.0.0", HostPort: "8080"},
		},
		Mounts: []models.MountPoint{
			{Type: "volume", Name: "web-data", Source: "/var/lib/docker/volumes/web-data/_data", Destination: "/data"},
			{Type: "bind", Source: "/srv/web/static", Destination: "/static", ReadOnly: true},
		},
	}
}

func TestSnapshotContainerLayout(t *testing.T) {
	runtime := newFakeRuntime()
	runtime.addContainer(webContainer())
	runtime.addVolume("web-data", map[string][]byte{"cache/index": []byte("hit")})
	runtime.addVolume("static", map[string][]byte{"logo.png": []byte("png")})
	client := newQuietClient(runtime, nil)
	root := t.TempDir()

	slotPath, err := client.SnapshotContainer(context.Background(), "web", root, BucketDaily)
	if err != nil {
		t.Fatalf("SnapshotContainer: %v", err)
	}

	if filepath.Dir(filepath.Dir(slotPath)) != root {
		t.Errorf("slot %q is not directly under %q/<container>", slotPath, root)
	}
	if !strings.HasPrefix(filepath.Base(slotPath), "daily_") {
		t.Errorf("slot key %q lacks the daily prefix", filepath.Base(slotPath))
	}

	configDir := filepath.Join(slotPath, "containers", "web")
	for _, name := range []string{"config.json", "env.txt", "labels.txt", "ports.txt", "volumes.txt"} {
		if _, err := os.Stat(filepath.Join(configDir, name)); err != nil {
			t.Errorf("missing %s in slot: %v", name, err)
		}
	}
	for _, vol := range []string{"web-data", "static"} {
		if _, err := os.Stat(filepath.Join(slotPath, "volumes", vol, "backup.tar.gz")); err != nil {
			t.Errorf("missing archive for volume %s: %v", vol, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(configDir, "config.json")) // #nosec G304 - test output
	if err != nil {
		t.Fatal(err)
	}
	var record models.ContainerRecord
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("config.json is not valid JSON: %v", err)
	}
	if record.Image != "nginx:1.25" {
		t.Errorf("config.json image = %q, want nginx:1.25", record.Image)
	}
	if len(record.Env) != 2 || record.Env[0] != "MODE=prod" {
		t.Errorf("config.json env order not preserved: %v", record.Env)
	}

	env, err := os.ReadFile(filepath.Join(configDir, "env.txt")) // #nosec G304 - test output
	if err != nil {
		t.Fatal(err)
	}
	if string(env) != "MODE=prod\nPORT=8080\n" {
		t.Errorf("env.txt = %q", env)
	}

	ports, err := os.ReadFile(filepath.Join(configDir, "ports.txt")) // #nosec G304 - test output
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(ports), "80/tcp -> 0.0.0.0:8080") {
		t.Errorf("ports.txt = %q", ports)
	}

	var manifest models.SlotManifest
	manifestData, err := os.ReadFile(filepath.Join(slotPath, "manifest.json")) // #nosec G304 - test output
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		t.Fatalf("manifest.json is not valid JSON: %v", err)
	}
	if manifest.Partial {
		t.Error("manifest marked partial on a clean snapshot")
	}
	if len(manifest.Volumes) != 2 {
		t.Errorf("manifest volumes = %v, want 2 entries", manifest.Volumes)
	}
	if manifest.BucketKind != "daily" {
		t.Errorf("manifest bucket = %q, want daily", manifest.BucketKind)
	}
}

func TestSnapshotBlacklistedContainerLeavesNoTrace(t *testing.T) {
	runtime := newFakeRuntime()
	runtime.addContainer(webContainer())
	client := newQuietClient(runtime, NewBlacklist([]string{"web"}))
	root := t.TempDir()

	_, err := client.SnapshotContainer(context.Background(), "web", root, BucketDefault)
	if !errors.Is(err, ErrBlacklisted) {
		t.Fatalf("error = %v, want ErrBlacklisted", err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("blacklisted snapshot wrote to the backup root: %v", entries)
	}
}

func TestSnapshotSkipsBlacklistedVolume(t *testing.T) {
	runtime := newFakeRuntime()
	runtime.addContainer(webContainer())
	runtime.addVolume("web-data", nil)
	runtime.addVolume("static", nil)
	client := newQuietClient(runtime, NewBlacklist([]string{"static"}))
	root := t.TempDir()

	slotPath, err := client.SnapshotContainer(context.Background(), "web", root, BucketDefault)
	if err != nil {
		t.Fatalf("SnapshotContainer: %v", err)
	}

	if _, err := os.Stat(filepath.Join(slotPath, "volumes", "static")); !os.IsNotExist(err) {
		t.Error("blacklisted volume was archived")
	}
	if _, err := os.Stat(filepath.Join(slotPath, "volumes", "web-data", "backup.tar.gz")); err != nil {
		t.Errorf("non-blacklisted volume missing: %v", err)
	}
}

func TestSnapshotPartialOnVolumeFailure(t *testing.T) {
	runtime := newFakeRuntime()
	runtime.addContainer(webContainer())
	runtime.addVolume("web-data", nil)
	runtime.addVolume("static", nil)
	runtime.archiveErr["static"] = errors.New("helper exited 2")
	client := newQuietClient(runtime, nil)
	root := t.TempDir()

	slotPath, err := client.SnapshotContainer(context.Background(), "web", root, BucketDefault)
	if err != nil {
		t.Fatalf("a failing volume should not abort the snapshot: %v", err)
	}

	var manifest models.SlotManifest
	data, err := os.ReadFile(filepath.Join(slotPath, "manifest.json")) // #nosec G304 - test output
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatal(err)
	}
	if !manifest.Partial {
		t.Error("manifest not marked partial after a volume failure")
	}
	if len(manifest.FailedVolumes) != 1 || manifest.FailedVolumes[0] != "static" {
		t.Errorf("manifest failed volumes = %v, want [static]", manifest.FailedVolumes)
	}
	if len(manifest.Volumes) != 1 || manifest.Volumes[0] != "web-data" {
		t.Errorf("manifest volumes = %v, want [web-data]", manifest.Volumes)
	}

	// The failed volume's directory must not hold a partial archive.
	if _, err := os.Stat(filepath.Join(slotPath, "volumes", "static")); !os.IsNotExist(err) {
		t.Error("failed volume left a partial archive directory")
	}
}

func TestSnapshotMissingContainer(t *testing.T) {
	runtime := newFakeRuntime()
	client := newQuietClient(runtime, nil)

	_, err := client.SnapshotContainer(context.Background(), "ghost", t.TempDir(), BucketDefault)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
