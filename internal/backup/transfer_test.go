package backup

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func newQuietClient(runtime Runtime, blacklist *Blacklist) *Client {
	client := NewClient(runtime, blacklist, false)
	client.SetQuiet(true)
	return client
}

func TestExportVolumeWritesTimestampedArchive(t *testing.T) {
	runtime := newFakeRuntime()
	runtime.addVolume("appdata", map[string][]byte{
		"config.yml": []byte("port: 8080\n"),
		"data/db":    []byte("rows"),
	})
	client := newQuietClient(runtime, nil)
	dir := t.TempDir()

	path, err := client.ExportVolume(context.Background(), "appdata", dir)
	if err != nil {
		t.Fatalf("ExportVolume: %v", err)
	}

	name := filepath.Base(path)
	matched, err := regexp.MatchString(`^appdata-\d{8}-\d{6}\.tar\.gz$`, name)
	if err != nil {
		t.Fatal(err)
	}
	if !matched {
		t.Errorf("export file name %q lacks the timestamp suffix", name)
	}

	content, err := os.ReadFile(path) // #nosec G304 - test output
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	files, err := readTarGz(bytes.NewReader(content))
	if err != nil {
		t.Fatalf("export is not a valid tar.gz: %v", err)
	}
	if string(files["config.yml"]) != "port: 8080\n" {
		t.Errorf("archive content mismatch: %q", files["config.yml"])
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".dcsnap-export-") {
			t.Errorf("temp file %s survived the export", entry.Name())
		}
	}
}

func TestExportVolumeRefusals(t *testing.T) {
	runtime := newFakeRuntime()
	runtime.addVolume("appdata", nil)
	client := newQuietClient(runtime, NewBlacklist([]string{"secrets"}))
	dir := t.TempDir()

	if _, err := client.ExportVolume(context.Background(), "secrets", dir); !errors.Is(err, ErrBlacklisted) {
		t.Errorf("blacklisted export error = %v, want ErrBlacklisted", err)
	}
	if _, err := client.ExportVolume(context.Background(), "missing", dir); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing volume export error = %v, want ErrNotFound", err)
	}
}

func TestExportFailureLeavesNoPartialFile(t *testing.T) {
	runtime := newFakeRuntime()
	runtime.addVolume("appdata", nil)
	runtime.archiveErr["appdata"] = errors.New("helper exited 1")
	client := newQuietClient(runtime, nil)
	dir := t.TempDir()

	if _, err := client.ExportVolume(context.Background(), "appdata", dir); err == nil {
		t.Fatal("ExportVolume should fail when archiving fails")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tar.gz") && !strings.HasPrefix(entry.Name(), ".") {
			t.Errorf("failed export left %s behind", entry.Name())
		}
	}
}

func TestImportVolumeMergesOverExisting(t *testing.T) {
	runtime := newFakeRuntime()
	runtime.addVolume("source", map[string][]byte{
		"shared.txt": []byte("from archive"),
		"new.txt":    []byte("added"),
	})
	runtime.addVolume("target", map[string][]byte{
		"shared.txt": []byte("old"),
		"keep.txt":   []byte("untouched"),
	})
	client := newQuietClient(runtime, nil)
	dir := t.TempDir()

	path, err := client.ExportVolume(context.Background(), "source", dir)
	if err != nil {
		t.Fatalf("ExportVolume: %v", err)
	}

	if err := client.ImportVolume(context.Background(), path, "target"); err != nil {
		t.Fatalf("ImportVolume: %v", err)
	}

	target := runtime.volumes["target"]
	if string(target["shared.txt"]) != "from archive" {
		t.Errorf("conflicting file not overwritten: %q", target["shared.txt"])
	}
	if string(target["keep.txt"]) != "untouched" {
		t.Errorf("unrelated file did not survive the import: %q", target["keep.txt"])
	}
	if string(target["new.txt"]) != "added" {
		t.Errorf("new file missing after import: %q", target["new.txt"])
	}
}

func TestImportVolumeCreatesMissingVolume(t *testing.T) {
	runtime := newFakeRuntime()
	runtime.addVolume("source", map[string][]byte{"a.txt": []byte("a")})
	client := newQuietClient(runtime, nil)
	dir := t.TempDir()

	path, err := client.ExportVolume(context.Background(), "source", dir)
	if err != nil {
		t.Fatalf("ExportVolume: %v", err)
	}

	if err := client.ImportVolume(context.Background(), path, "fresh"); err != nil {
		t.Fatalf("ImportVolume: %v", err)
	}
	if string(runtime.volumes["fresh"]["a.txt"]) != "a" {
		t.Error("import into a new volume did not land the archive contents")
	}
}

func TestImportVolumeMissingArchive(t *testing.T) {
	runtime := newFakeRuntime()
	client := newQuietClient(runtime, nil)
	dir := t.TempDir()

	err := client.ImportVolume(context.Background(), filepath.Join(dir, "nope.tar.gz"), "vol")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing archive error = %v, want ErrNotFound", err)
	}

	err = client.ImportVolume(context.Background(), dir, "vol")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("directory archive error = %v, want ErrNotFound", err)
	}
}

func TestEncryptedExportImportRoundTrip(t *testing.T) {
	runtime := newFakeRuntime()
	runtime.addVolume("source", map[string][]byte{"secret.txt": []byte("top secret")})
	client := newQuietClient(runtime, nil)
	client.SetEncryption(true, "hunter2")
	dir := t.TempDir()

	path, err := client.ExportVolume(context.Background(), "source", dir)
	if err != nil {
		t.Fatalf("ExportVolume: %v", err)
	}

	// The file on disk must not be a readable tar.gz.
	content, err := os.ReadFile(path) // #nosec G304 - test output
	if err != nil {
		t.Fatal(err)
	}
	if _, err := readTarGz(bytes.NewReader(content)); err == nil {
		t.Error("encrypted export is readable without the password")
	}

	if err := client.ImportVolume(context.Background(), path, "restored"); err != nil {
		t.Fatalf("ImportVolume: %v", err)
	}
	if string(runtime.volumes["restored"]["secret.txt"]) != "top secret" {
		t.Error("encrypted round trip lost data")
	}
}

func TestSaveLoadVolumeRoundTrip(t *testing.T) {
	runtime := newFakeRuntime()
	runtime.addVolume("appdata", map[string][]byte{"data.bin": []byte{1, 2, 3}})
	client := newQuietClient(runtime, NewBlacklist([]string{"secrets"}))

	if err := client.SaveVolume(context.Background(), "secrets", "img:latest"); !errors.Is(err, ErrBlacklisted) {
		t.Errorf("blacklisted save error = %v, want ErrBlacklisted", err)
	}
	if err := client.SaveVolume(context.Background(), "missing", "img:latest"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing volume save error = %v, want ErrNotFound", err)
	}

	if err := client.SaveVolume(context.Background(), "appdata", "backup:v1"); err != nil {
		t.Fatalf("SaveVolume: %v", err)
	}
	if err := client.LoadVolume(context.Background(), "backup:v1", "appdata2"); err != nil {
		t.Fatalf("LoadVolume: %v", err)
	}
	if !bytes.Equal(runtime.volumes["appdata2"]["data.bin"], []byte{1, 2, 3}) {
		t.Error("save/load round trip lost data")
	}
}
