package github

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coolone/sitesync/internal/apperrors"
)

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDownloadAndUnpackArchive(t *testing.T) {
	t.Parallel()
	api := newFakeAPI(t)
	api.archive = buildZip(t, map[string]string{
		"site-master/":                          "",
		"site-master/Content/projects/demo.md":  "demo",
		"site-master/Resources/projects/demo/x": "x",
		"site-master/README.md":                 "readme",
	})
	client := api.client()
	dir := t.TempDir()
	ctx := context.Background()

	var progress []float64
	archive, err := client.DownloadArchive(ctx, dir, func(f float64) { progress = append(progress, f) })
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "owner-site-master.zip"), archive)
	require.NotEmpty(t, progress)
	assert.InDelta(t, 1.0, progress[len(progress)-1], 0.0001)

	dest := filepath.Join(dir, "site")
	require.NoError(t, client.UnpackArchive(ctx, archive, dest, nil))

	data, err := os.ReadFile(filepath.Join(dest, "Content", "projects", "demo.md"))
	require.NoError(t, err)
	assert.Equal(t, "demo", string(data))
	assert.FileExists(t, filepath.Join(dest, "README.md"))
	assert.NoFileExists(t, archive)
	assert.NoDirExists(t, filepath.Join(dest, "site-master"))
}

func TestDownloadArchive_ReusesExisting(t *testing.T) {
	t.Parallel()
	api := newFakeAPI(t)
	dir := t.TempDir()
	existing := filepath.Join(dir, "previous.zip")
	require.NoError(t, os.WriteFile(existing, []byte("zip"), 0o600))

	archive, err := api.client().DownloadArchive(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Equal(t, existing, archive)
	assert.Zero(t, api.requestCount())
}

func TestDownloadArchive_HTTPError(t *testing.T) {
	t.Parallel()
	api := newFakeAPI(t)

	_, err := api.client().DownloadArchive(context.Background(), t.TempDir(), nil)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUnpack_Layout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		entries map[string]string
		wantErr error
	}{
		{
			name:    "two top folders",
			entries: map[string]string{"a/x": "1", "b/y": "2"},
			wantErr: apperrors.ErrArchiveLayout,
		},
		{
			name:    "file at root",
			entries: map[string]string{"x": "1"},
			wantErr: apperrors.ErrArchiveLayout,
		},
		{
			name:    "escapes destination",
			entries: map[string]string{"top/../../evil": "1"},
			wantErr: apperrors.ErrUnsafeArchivePath,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			archive := filepath.Join(dir, "a.zip")
			require.NoError(t, os.WriteFile(archive, buildZip(t, tt.entries), 0o600))

			err := Unpack(context.Background(), archive, filepath.Join(dir, "out"), nil)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDownloadArchive_SlowBodyOutlivesClientTimeout(t *testing.T) {
	t.Parallel()
	api := newFakeAPI(t)
	api.mu.Lock()
	api.archive = buildZip(t, map[string]string{"site-master/README.md": strings.Repeat("readme ", 512)})
	api.archiveChunkDelay = 100 * time.Millisecond
	api.mu.Unlock()

	timeout := 150 * time.Millisecond
	client := api.client(WithHTTPClient(&http.Client{Timeout: timeout}))

	start := time.Now()
	archive, err := client.DownloadArchive(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	assert.Greater(t, time.Since(start), timeout, "the body streamed past the client timeout")

	data, err := os.ReadFile(archive)
	require.NoError(t, err)
	api.mu.Lock()
	assert.Equal(t, api.archive, data)
	api.mu.Unlock()
}

func TestDownloadArchive_HeaderTimeout(t *testing.T) {
	t.Parallel()
	api := newFakeAPI(t)
	api.mu.Lock()
	api.archive = buildZip(t, map[string]string{"site-master/README.md": "readme"})
	api.archiveHeaderDelay = time.Second
	api.mu.Unlock()

	client := api.client(WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	dir := t.TempDir()

	_, err := client.DownloadArchive(context.Background(), dir, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	leftovers, err := filepath.Glob(filepath.Join(dir, "*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestDownloadArchive_Canceled(t *testing.T) {
	t.Parallel()
	api := newFakeAPI(t)
	api.mu.Lock()
	api.archive = buildZip(t, map[string]string{"site-master/README.md": strings.Repeat("readme ", 512)})
	api.archiveChunkDelay = time.Second
	api.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	dir := t.TempDir()
	_, err := api.client().DownloadArchive(ctx, dir, nil)
	require.Error(t, err)

	leftovers, err := filepath.Glob(filepath.Join(dir, "*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "the partial file is removed")
}
