package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/coolone/sitesync/internal/apperrors"
	"github.com/coolone/sitesync/internal/images"
	"github.com/coolone/sitesync/internal/page"
	"github.com/coolone/sitesync/internal/store"
)

// TargetResources is the target name of a page's resource directory.
const TargetResources = "resources"

// Syncer writes page edits to a store.
type Syncer struct {
	store       store.Store
	layout      page.Layout
	parallelism int
	logger      *slog.Logger
}

// SyncerOption configures the syncer.
type SyncerOption func(*Syncer)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) SyncerOption {
	return func(s *Syncer) {
		s.logger = l
	}
}

// WithLayout sets the repository layout.
func WithLayout(l page.Layout) SyncerOption {
	return func(s *Syncer) {
		s.layout = l
	}
}

// WithParallelism bounds the number of concurrent store calls (0 = unlimited).
func WithParallelism(n int) SyncerOption {
	return func(s *Syncer) {
		s.parallelism = n
	}
}

// NewSyncer creates a syncer on top of st.
func NewSyncer(st store.Store, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		store:  st,
		layout: page.DefaultLayout(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Layout returns the repository layout used by the syncer.
func (s *Syncer) Layout() page.Layout {
	return s.layout
}

// New starts a new page of type ct.
func (s *Syncer) New(ct page.ContentType, name string) (*Edit, error) {
	return NewEdit(ct, name, s.layout)
}

// Open fetches a stored page for editing.
func (s *Syncer) Open(ctx context.Context, ct page.ContentType, name string) (*Edit, error) {
	return OpenEdit(ctx, s.store, s.layout, ct, name)
}

func (s *Syncer) group() *errgroup.Group {
	var group errgroup.Group
	if s.parallelism > 0 {
		group.SetLimit(s.parallelism)
	}
	return &group
}

// Apply saves an edit: the page document and every image change, all
// concurrently. It returns once every write has finished.
//
// Only a page that cannot be serialized is an error, and then nothing is
// written. Rejected writes are reported in the result.
func (s *Syncer) Apply(ctx context.Context, e *Edit) (*Result, error) {
	ctx = store.WithSyncID(ctx, uuid.NewString())

	plan, err := BuildPlan(e)
	if err != nil {
		return nil, err
	}

	uploads, deletes := plan.ImageCounts()
	s.logger.InfoContext(ctx, "applying edit", store.LogArgs(ctx,
		"type", e.Type, "page", e.Name, "new", e.IsNew(), "uploads", uploads, "deletes", deletes)...)

	for _, skipped := range plan.Skipped {
		s.logger.WarnContext(ctx, "skipping image", store.LogArgs(ctx,
			"target", skipped.Target, "reason", skipped.Reason)...)
	}

	// Each branch writes only its own path; Wait is the barrier.
	outcomes := make([]outcome, len(plan.Steps))
	group := s.group()
	for i, step := range plan.Steps {
		group.Go(func() error {
			outcomes[i] = s.execute(ctx, step)
			return nil
		})
	}
	_ = group.Wait()

	result := &Result{Skipped: plan.Skipped}
	for _, o := range outcomes {
		result.add(o)
	}

	s.logSummary(ctx, "edit applied", result)
	return result, nil
}

func (s *Syncer) execute(ctx context.Context, step Step) outcome {
	switch step.Kind {
	case StepMarkdown:
		return s.writeMarkdown(ctx, step)
	case StepUpload:
		return s.upload(ctx, step)
	case StepDelete:
		return s.deleteImage(ctx, step)
	default:
		return outcome{op: Operation{Target: step.Target, Path: step.Path}, err: fmt.Errorf("unknown step %d", step.Kind)}
	}
}

func (s *Syncer) writeMarkdown(ctx context.Context, step Step) outcome {
	if step.Item != nil {
		op := Operation{Target: step.Target, Path: step.Path, Verb: VerbOverwrite}
		return outcome{op: op, err: s.store.Overwrite(ctx, *step.Item, step.Content)}
	}
	op := Operation{Target: step.Target, Path: step.Path, Verb: VerbCreate}
	return outcome{op: op, err: s.store.Create(ctx, step.Path, step.Content)}
}

func (s *Syncer) upload(ctx context.Context, step Step) outcome {
	op := Operation{Target: step.Target, Path: step.Path, Verb: VerbOverwrite}

	data, err := images.EncodePNG(step.Image)
	if err != nil {
		s.logger.WarnContext(ctx, "skipping image that cannot be encoded", store.LogArgs(ctx,
			"target", step.Target, "error", err)...)
		return outcome{op: op, skip: err}
	}

	item, err := store.Get(ctx, s.store, step.Path)
	if err != nil {
		return outcome{op: op, err: err}
	}

	if item == nil || item.SHA == "" {
		op.Verb = VerbCreate
		return outcome{op: op, err: s.store.Create(ctx, step.Path, data)}
	}
	return outcome{op: op, err: s.store.Overwrite(ctx, *item, data)}
}

func (s *Syncer) deleteImage(ctx context.Context, step Step) outcome {
	op := Operation{Target: step.Target, Path: step.Path, Verb: VerbDelete}

	item, err := store.Get(ctx, s.store, step.Path)
	if err != nil {
		return outcome{op: op, err: err}
	}
	if item == nil {
		s.logger.DebugContext(ctx, "image already gone", store.LogArgs(ctx, "path", step.Path)...)
		return outcome{op: op, skip: fmt.Errorf("%s: %w", step.Path, apperrors.ErrNotFound)}
	}

	return outcome{op: op, err: s.store.Delete(ctx, *item)}
}

// DeletePage removes a page: its resource directory and its document, both
// concurrently. Steps whose path cannot be derived are skipped.
func (s *Syncer) DeletePage(ctx context.Context, e *Edit) (*Result, error) {
	ctx = store.WithSyncID(ctx, uuid.NewString())
	result := &Result{}

	s.logger.InfoContext(ctx, "deleting page", store.LogArgs(ctx, "type", e.Type, "page", e.Name)...)

	var branches []func() outcome

	if ct, ok := e.Page.Metadata.ContentType(); ok {
		dir := s.layout.ResourceDirectory(ct, e.Name)
		branches = append(branches, func() outcome {
			op := Operation{Target: TargetResources, Path: dir, Verb: VerbDeleteDirectory}
			// Pages without images have no resource directory
			if _, err := s.store.List(ctx, dir); errors.Is(err, apperrors.ErrNotFound) {
				return outcome{op: op, skip: err}
			}
			err := store.DeleteDirectory(ctx, s.store, dir, store.DeleteOptions{
				Parallelism: s.parallelism,
				Logger:      s.logger,
			})
			return outcome{op: op, err: err}
		})
	} else {
		result.add(outcome{
			op:   Operation{Target: TargetResources, Verb: VerbDeleteDirectory},
			skip: fmt.Errorf("%w: metadata has no content type", apperrors.ErrUnresolvablePath),
		})
	}

	if e.Item != nil {
		item := *e.Item
		branches = append(branches, func() outcome {
			op := Operation{Target: TargetMarkdown, Path: item.Path, Verb: VerbDelete}
			return outcome{op: op, err: s.store.Delete(ctx, item)}
		})
	} else {
		result.add(outcome{
			op:   Operation{Target: TargetMarkdown, Verb: VerbDelete},
			skip: fmt.Errorf("%w: page was never saved", apperrors.ErrUnresolvablePath),
		})
	}

	outcomes := make([]outcome, len(branches))
	group := s.group()
	for i, branch := range branches {
		group.Go(func() error {
			outcomes[i] = branch()
			return nil
		})
	}
	_ = group.Wait()

	for _, o := range outcomes {
		result.add(o)
	}

	s.logSummary(ctx, "page deleted", result)
	return result, nil
}

func (s *Syncer) logSummary(ctx context.Context, msg string, r *Result) {
	args := store.LogArgs(ctx, "succeeded", len(r.Succeeded), "failed", len(r.Failed), "skipped", len(r.Skipped))
	if !r.OK() {
		for _, f := range r.Failed {
			s.logger.ErrorContext(ctx, "operation failed", store.LogArgs(ctx, "operation", f.Operation.String(), "error", f.Err)...)
		}
		s.logger.WarnContext(ctx, msg, args...)
		return
	}
	s.logger.InfoContext(ctx, msg, args...)
}
