package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zip"

	"github.com/coolone/sitesync/internal/apperrors"
	"github.com/coolone/sitesync/internal/store"
	"github.com/coolone/sitesync/internal/version"
)

const (
	archiveExt = ".zip"

	dirPerm  = 0750
	filePerm = 0600
)

// ProgressFunc receives the completed fraction of a long operation, from 0 to 1.
type ProgressFunc func(fraction float64)

// ArchiveURL returns the URL of the zip snapshot of the branch.
func (c *Client) ArchiveURL() string {
	return fmt.Sprintf("%s/%s/archive/refs/heads/%s%s", c.webURL, c.repo, c.branch, archiveExt)
}

// DownloadArchive fetches the zip snapshot of the branch into dir and returns
// its path. An archive already present in dir is returned as is.
//
//nolint:funlen // streaming download with progress
func (c *Client) DownloadArchive(ctx context.Context, dir string, onProgress ProgressFunc) (string, error) {
	if onProgress == nil {
		onProgress = func(float64) {}
	}

	existing, err := filepath.Glob(filepath.Join(dir, "*"+archiveExt))
	if err != nil {
		return "", fmt.Errorf("look for archive: %w", err)
	}
	if len(existing) > 0 {
		c.logger.InfoContext(ctx, "reusing downloaded archive", "path", existing[0])
		onProgress(1)
		return existing[0], nil
	}

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	target := c.ArchiveURL()
	c.logger.InfoContext(ctx, "downloading archive", store.LogArgs(ctx, "url", target)...)

	resp, cancel, err := c.getArchive(ctx, target)
	if err != nil {
		return "", err
	}
	defer cancel()
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.WarnContext(ctx, "failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode >= httpStatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:mnd // enough for an error message
		return "", apperrors.NewHTTPError(resp.StatusCode, string(body))
	}

	name := strings.ReplaceAll(c.repo, "/", "-") + "-" + c.branch + archiveExt
	finalPath := filepath.Join(dir, name)
	partPath := finalPath + ".part"

	out, err := os.OpenFile(partPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm) //nolint:gosec // path built from config
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}

	counter := &progressWriter{total: resp.ContentLength, onProgress: onProgress}
	written, copyErr := io.Copy(out, io.TeeReader(resp.Body, counter))
	if closeErr := out.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(partPath)
		return "", fmt.Errorf("write archive: %w", copyErr)
	}

	if err := os.Rename(partPath, finalPath); err != nil {
		return "", fmt.Errorf("rename archive: %w", err)
	}

	onProgress(1)
	c.logger.InfoContext(ctx, "archive downloaded",
		store.LogArgs(ctx, "path", finalPath, "size", humanize.Bytes(uint64(written)))...) //nolint:gosec // byte counts are positive
	return finalPath, nil
}

// getArchive sends the archive request. The client's total timeout would also
// cover streaming the body, so it only bounds the wait for the response
// headers here; the body is bounded by ctx. cancel must be called once the
// body has been read.
func (c *Client) getArchive(ctx context.Context, target string) (*http.Response, context.CancelFunc, error) {
	token, err := c.credentials.Token(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("get token: %w", err)
	}

	reqCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if token != "" {
		req.Header.Set("Authorization", "token "+token)
	}

	download := *c.httpClient
	headerTimeout := download.Timeout
	download.Timeout = 0

	var timer *time.Timer
	if headerTimeout > 0 {
		timer = time.AfterFunc(headerTimeout, cancel)
	}

	resp, err := download.Do(req)
	if timer != nil && !timer.Stop() {
		if err == nil {
			_ = resp.Body.Close()
		}
		cancel()
		return nil, nil, fmt.Errorf("download archive: no response within %s: %w", headerTimeout, context.DeadlineExceeded)
	}
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("download archive: %w", err)
	}

	return resp, cancel, nil
}

// progressWriter reports the fraction of total seen so far. Without a known
// total only completion is reported.
type progressWriter struct {
	total      int64
	seen       int64
	onProgress ProgressFunc
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.seen += int64(len(p))
	if w.total > 0 {
		w.onProgress(min(float64(w.seen)/float64(w.total), 1))
	}
	return len(p), nil
}

// UnpackArchive extracts archive into dest, dropping the single top-level
// folder the snapshot wraps everything in, then removes the archive.
func (c *Client) UnpackArchive(ctx context.Context, archive, dest string, onProgress ProgressFunc) error {
	if err := Unpack(ctx, archive, dest, onProgress); err != nil {
		return err
	}

	if err := os.Remove(archive); err != nil {
		return fmt.Errorf("remove archive: %w", err)
	}

	c.logger.InfoContext(ctx, "archive unpacked", store.LogArgs(ctx, "dest", dest)...)
	return nil
}

// Unpack extracts a zip whose entries share one top-level folder into dest,
// without that folder.
func Unpack(ctx context.Context, archive, dest string, onProgress ProgressFunc) error {
	if onProgress == nil {
		onProgress = func(float64) {}
	}

	reader, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = reader.Close() }()

	top, err := topFolder(reader.File)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dest, dirPerm); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	for i, f := range reader.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		rel := strings.TrimPrefix(f.Name, top)
		if rel == "" {
			continue
		}
		if err := extract(f, dest, rel); err != nil {
			return err
		}
		onProgress(float64(i+1) / float64(len(reader.File)))
	}

	onProgress(1)
	return nil
}

// topFolder returns the "name/" prefix shared by every entry.
func topFolder(files []*zip.File) (string, error) {
	var top string
	for _, f := range files {
		first, _, found := strings.Cut(f.Name, "/")
		if !found {
			return "", fmt.Errorf("%w: %s is at the root", apperrors.ErrArchiveLayout, f.Name)
		}
		switch top {
		case "":
			top = first + "/"
		case first + "/":
		default:
			return "", fmt.Errorf("%w: found %s and %s", apperrors.ErrArchiveLayout, top, first)
		}
	}
	if top == "" {
		return "", fmt.Errorf("%w: archive is empty", apperrors.ErrArchiveLayout)
	}
	return top, nil
}

func extract(f *zip.File, dest, rel string) error {
	clean := path.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
		return fmt.Errorf("%w: %s", apperrors.ErrUnsafeArchivePath, f.Name)
	}
	target := filepath.Join(dest, filepath.FromSlash(clean))

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(target, dirPerm); err != nil {
			return fmt.Errorf("create %s: %w", clean, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), dirPerm); err != nil {
		return fmt.Errorf("create parent of %s: %w", clean, err)
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer func() { _ = src.Close() }()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm) //nolint:gosec // checked above
	if err != nil {
		return fmt.Errorf("create %s: %w", clean, err)
	}

	if _, err := io.Copy(out, src); err != nil { //nolint:gosec // archive of our own repository
		_ = out.Close()
		return fmt.Errorf("extract %s: %w", clean, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", clean, err)
	}
	return nil
}
