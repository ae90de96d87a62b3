package store

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/coolone/sitesync/internal/apperrors"
)

// DeleteOptions configures DeleteDirectory.
type DeleteOptions struct {
	// Parallelism bounds the concurrent deletes per directory level (0 = unlimited).
	Parallelism int
	Logger      *slog.Logger
}

// DeleteDirectory removes every file below dir.
//
// Children are deleted in parallel and subdirectories are walked the same
// way. A failing child never stops its siblings: every child is attempted and
// the returned error combines all failures.
func DeleteDirectory(ctx context.Context, s Store, dir string, opts DeleteOptions) error {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return deleteDirectory(ctx, s, dir, path.Base(dir), opts)
}

func deleteDirectory(ctx context.Context, s Store, dir, top string, opts DeleteOptions) error {
	items, err := s.List(ctx, dir)
	if err != nil {
		return fmt.Errorf("list %s: %w", dir, err)
	}
	// Listing a file yields the file itself.
	if len(items) == 1 && items[0].Type == TypeFile && items[0].Path == dir {
		return fmt.Errorf("%s: %w", dir, apperrors.ErrNotADirectory)
	}

	opts.Logger.DebugContext(ctx, "deleting directory", "dir", dir, "children", len(items))

	// Each branch writes only its own slot; Wait is the barrier.
	errs := make([]error, len(items))
	var group errgroup.Group
	if opts.Parallelism > 0 {
		group.SetLimit(opts.Parallelism)
	}

	for i, item := range items {
		switch item.Type {
		case TypeDir:
			group.Go(func() error {
				errs[i] = deleteDirectory(ctx, s, item.Path, top, opts)
				return nil
			})
		case TypeFile:
			group.Go(func() error {
				msgCtx := WithMessage(ctx, fmt.Sprintf("Delete dir %s, file %s", top, item.Name))
				if err := s.Delete(msgCtx, item); err != nil {
					errs[i] = fmt.Errorf("delete %s: %w", item.Path, err)
					opts.Logger.WarnContext(ctx, "delete failed", "path", item.Path, "error", err)
				}
				return nil
			})
		case TypeSymlink, TypeSubmodule:
			opts.Logger.DebugContext(ctx, "skipping entry", "path", item.Path, "type", item.Type)
		}
	}

	_ = group.Wait()

	return multierr.Combine(errs...)
}
