package stage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coolone/sitesync/internal/apperrors"
	"github.com/coolone/sitesync/internal/github"
	"github.com/coolone/sitesync/internal/page"
)

// fakeArchiver lays out a tiny repository instead of downloading one.
type fakeArchiver struct {
	mu        sync.Mutex
	downloads int
	unpacks   int
}

func (f *fakeArchiver) DownloadArchive(_ context.Context, dir string, onProgress github.ProgressFunc) (string, error) {
	f.mu.Lock()
	f.downloads++
	f.mu.Unlock()

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	archive := filepath.Join(dir, "owner-site-master.zip")
	if err := os.WriteFile(archive, []byte("zip"), 0o600); err != nil {
		return "", err
	}
	onProgress(0.5)
	onProgress(1)
	return archive, nil
}

func (f *fakeArchiver) UnpackArchive(_ context.Context, archive, dest string, onProgress github.ProgressFunc) error {
	f.mu.Lock()
	f.unpacks++
	f.mu.Unlock()

	for _, p := range []string{"Content/projects/other.md", "Resources/projects/other/logo.png"} {
		target := filepath.Join(dest, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return err
		}
		if err := os.WriteFile(target, []byte(p), 0o600); err != nil {
			return err
		}
	}
	onProgress(1)
	return os.Remove(archive)
}

func TestPrepare_DownloadsOnce(t *testing.T) {
	t.Parallel()
	archiver := &fakeArchiver{}
	dir := filepath.Join(t.TempDir(), "stage")
	stager := NewStager(dir, archiver)
	ctx := context.Background()

	var steps []string
	progress := func(step string, f float64) {
		if f == 1 {
			steps = append(steps, step)
		}
	}

	target, err := stager.Prepare(ctx, page.Projects, "demo", []byte("v1"), progress)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Content", "projects", "demo.md"), target)
	assert.Equal(t, []string{StepDownload, StepUnpack}, steps)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
	assert.FileExists(t, filepath.Join(dir, "Content", "projects", "other.md"))
	assert.NoFileExists(t, filepath.Join(dir, "owner-site-master.zip"))

	_, err = stager.Prepare(ctx, page.Projects, "demo", []byte("v2"), nil)
	require.NoError(t, err)
	data, err = os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
	assert.Equal(t, 1, archiver.downloads)
}

func TestReload_ClearsDirectory(t *testing.T) {
	t.Parallel()
	archiver := &fakeArchiver{}
	dir := t.TempDir()
	stager := NewStager(dir, archiver)
	ctx := context.Background()

	stale := filepath.Join(dir, "stale.txt")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o600))

	_, err := stager.Prepare(ctx, page.Books, "gopl", []byte("book"), nil)
	require.NoError(t, err)
	assert.Zero(t, archiver.downloads, "a populated directory is reused")

	_, err = stager.Reload(ctx, page.Books, "gopl", []byte("book"), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, archiver.downloads)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, filepath.Join(dir, "Content", "books", "gopl.md"))
}

func TestPrepare_LeftoverArchiveIsNotContent(t *testing.T) {
	t.Parallel()
	archiver := &fakeArchiver{}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "partial.zip.part"), []byte("x"), 0o600))

	_, err := NewStager(dir, archiver).Prepare(context.Background(), page.Events, "talk", []byte("e"), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, archiver.downloads)
}

func TestPrepare_RequiresName(t *testing.T) {
	t.Parallel()

	_, err := NewStager(t.TempDir(), &fakeArchiver{}).Prepare(context.Background(), page.Events, "", nil, nil)
	require.ErrorIs(t, err, apperrors.ErrPageNameRequired)
}
