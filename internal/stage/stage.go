// Package stage maintains a local copy of the site repository used for previews.
package stage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/coolone/sitesync/internal/apperrors"
	"github.com/coolone/sitesync/internal/github"
	"github.com/coolone/sitesync/internal/page"
)

// Progress steps.
const (
	StepDownload = "download"
	StepUnpack   = "unpack"
)

const (
	dirPerm  = 0750
	filePerm = 0600
)

// Archiver fetches and extracts repository snapshots.
type Archiver interface {
	DownloadArchive(ctx context.Context, dir string, onProgress github.ProgressFunc) (string, error)
	UnpackArchive(ctx context.Context, archive, dest string, onProgress github.ProgressFunc) error
}

// ProgressFunc receives the progress of a step, from 0 to 1.
type ProgressFunc func(step string, fraction float64)

// Stager owns a staging directory mirroring the repository. Calls are
// serialized so two previews never write the directory at the same time.
type Stager struct {
	dir      string
	archiver Archiver
	layout   page.Layout
	logger   *slog.Logger
	mu       sync.Mutex
}

// StagerOption configures the stager.
type StagerOption func(*Stager)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) StagerOption {
	return func(s *Stager) {
		s.logger = l
	}
}

// WithLayout sets the repository layout.
func WithLayout(l page.Layout) StagerOption {
	return func(s *Stager) {
		s.layout = l
	}
}

// NewStager creates a stager for dir.
func NewStager(dir string, archiver Archiver, opts ...StagerOption) *Stager {
	s := &Stager{
		dir:      dir,
		archiver: archiver,
		layout:   page.DefaultLayout(),
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Dir returns the staging directory.
func (s *Stager) Dir() string {
	return s.dir
}

// Prepare makes sure the staging directory holds the repository, downloading
// it only when the directory is empty, then writes the edited page into it.
// It returns the path of the written page.
func (s *Stager) Prepare(
	ctx context.Context, ct page.ContentType, name string, document []byte, onProgress ProgressFunc,
) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.prepare(ctx, ct, name, document, onProgress)
}

// Reload clears the staging directory and prepares it again.
func (s *Stager) Reload(
	ctx context.Context, ct page.ContentType, name string, document []byte, onProgress ProgressFunc,
) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.InfoContext(ctx, "clearing staging directory", "dir", s.dir)
	if err := os.RemoveAll(s.dir); err != nil {
		return "", fmt.Errorf("clear staging directory: %w", err)
	}

	return s.prepare(ctx, ct, name, document, onProgress)
}

func (s *Stager) prepare(
	ctx context.Context, ct page.ContentType, name string, document []byte, onProgress ProgressFunc,
) (string, error) {
	if name == "" {
		return "", fmt.Errorf("stage: %w", apperrors.ErrPageNameRequired)
	}
	if onProgress == nil {
		onProgress = func(string, float64) {}
	}

	populated, err := s.populated()
	if err != nil {
		return "", err
	}

	if !populated {
		archive, err := s.archiver.DownloadArchive(ctx, s.dir, func(f float64) { onProgress(StepDownload, f) })
		if err != nil {
			return "", fmt.Errorf("download repository: %w", err)
		}
		if err := s.archiver.UnpackArchive(ctx, archive, s.dir, func(f float64) { onProgress(StepUnpack, f) }); err != nil {
			return "", fmt.Errorf("unpack repository: %w", err)
		}
	} else {
		s.logger.DebugContext(ctx, "staging directory already populated", "dir", s.dir)
	}

	target := filepath.Join(s.dir, filepath.FromSlash(s.layout.MarkdownPath(ct, name)))
	if err := os.MkdirAll(filepath.Dir(target), dirPerm); err != nil {
		return "", fmt.Errorf("create page directory: %w", err)
	}
	if err := os.WriteFile(target, document, filePerm); err != nil {
		return "", fmt.Errorf("write page: %w", err)
	}

	s.logger.InfoContext(ctx, "page staged", "type", ct, "page", name, "path", target)
	return target, nil
}

// populated reports whether the directory holds anything besides archives
// left by an interrupted download.
func (s *Stager) populated() (bool, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read staging directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".zip") || strings.HasSuffix(name, ".part") {
			continue
		}
		return true, nil
	}
	return false, nil
}
