package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/ypeckstadt/dcsnap/internal/models"
)

// fakeRuntime is an in-memory Runtime. Volumes are maps of path to file
// content; archives are real gzipped tar streams so the transfer code
// sees the same bytes a Docker helper container would produce.
type fakeRuntime struct {
	containers map[string]*models.ContainerRecord
	volumes    map[string]map[string][]byte
	images     map[string]map[string][]byte

	created    []*models.ContainerRecord
	archiveErr map[string]error
	inspectErr map[string]error
	listErr    error
	extractErr map[string]error
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		containers: make(map[string]*models.ContainerRecord),
		volumes:    make(map[string]map[string][]byte),
		images:     make(map[string]map[string][]byte),
		archiveErr: make(map[string]error),
		inspectErr: make(map[string]error),
		extractErr: make(map[string]error),
	}
}

func (f *fakeRuntime) addContainer(record *models.ContainerRecord) {
	f.containers[record.Name] = record
}

func (f *fakeRuntime) addVolume(name string, files map[string][]byte) {
	vol := make(map[string][]byte, len(files))
	for path, content := range files {
		vol[path] = append([]byte(nil), content...)
	}
	f.volumes[name] = vol
}

func (f *fakeRuntime) ListContainers(ctx context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	names := make([]string, 0, len(f.containers))
	for name := range f.containers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeRuntime) InspectContainer(ctx context.Context, name string) (*models.ContainerRecord, error) {
	if err := f.inspectErr[name]; err != nil {
		return nil, err
	}
	record, ok := f.containers[name]
	if !ok {
		return nil, fmt.Errorf("container %s: %w", name, ErrNotFound)
	}
	return record, nil
}

func (f *fakeRuntime) CreateContainer(ctx context.Context, record *models.ContainerRecord) (string, error) {
	f.created = append(f.created, record)
	return fmt.Sprintf("fake-%d", len(f.created)), nil
}

func (f *fakeRuntime) VolumeExists(ctx context.Context, name string) (bool, error) {
	_, ok := f.volumes[name]
	return ok, nil
}

func (f *fakeRuntime) CreateVolume(ctx context.Context, name string) error {
	if _, ok := f.volumes[name]; !ok {
		f.volumes[name] = make(map[string][]byte)
	}
	return nil
}

func (f *fakeRuntime) ArchiveVolume(ctx context.Context, volume string, w io.Writer) error {
	if err := f.archiveErr[volume]; err != nil {
		return err
	}
	files, ok := f.volumes[volume]
	if !ok {
		return fmt.Errorf("volume %s: %w", volume, ErrNotFound)
	}
	return writeTarGz(w, files)
}

func (f *fakeRuntime) ExtractToVolume(ctx context.Context, volume string, r io.Reader) error {
	if err := f.extractErr[volume]; err != nil {
		return err
	}
	vol, ok := f.volumes[volume]
	if !ok {
		return fmt.Errorf("volume %s: %w", volume, ErrNotFound)
	}
	files, err := readTarGz(r)
	if err != nil {
		return err
	}
	// Merge: archive entries win, everything else stays.
	for path, content := range files {
		vol[path] = content
	}
	return nil
}

func (f *fakeRuntime) SaveVolumeImage(ctx context.Context, volume, imageRef string) error {
	files, ok := f.volumes[volume]
	if !ok {
		return fmt.Errorf("volume %s: %w", volume, ErrNotFound)
	}
	image := make(map[string][]byte, len(files))
	for path, content := range files {
		image[path] = append([]byte(nil), content...)
	}
	f.images[imageRef] = image
	return nil
}

func (f *fakeRuntime) LoadVolumeImage(ctx context.Context, imageRef, volume string) error {
	image, ok := f.images[imageRef]
	if !ok {
		return fmt.Errorf("image %s: %w", imageRef, ErrNotFound)
	}
	vol, ok := f.volumes[volume]
	if !ok {
		return fmt.Errorf("volume %s: %w", volume, ErrNotFound)
	}
	for path, content := range image {
		vol[path] = append([]byte(nil), content...)
	}
	return nil
}

func writeTarGz(w io.Writer, files map[string][]byte) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		content := files[path]
		hdr := &tar.Header{
			Name: path,
			Mode: 0o644,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if _, err := tw.Write(content); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

func readTarGz(r io.Reader) (map[string][]byte, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	files := make(map[string][]byte)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}
		files[hdr.Name] = content
	}
	return files, nil
}
