package sync

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/multierr"

	"github.com/coolone/sitesync/internal/page"
	"github.com/coolone/sitesync/internal/store"
)

const markdownExt = ".md"

// Listing is the page list of one content type.
type Listing struct {
	Type  page.ContentType
	Pages []store.Item
	Err   error
}

// Names returns the page names of the listing.
func (l Listing) Names() []string {
	names := make([]string, 0, len(l.Pages))
	for _, item := range l.Pages {
		names = append(names, page.Name(item.Name))
	}
	return names
}

// Catalog lists the pages of every given content type (all of them when none
// is given) concurrently. It fails only if every listing failed; otherwise the
// failed listings carry their own error.
func (s *Syncer) Catalog(ctx context.Context, types ...page.ContentType) ([]Listing, error) {
	if len(types) == 0 {
		types = page.AllContentTypes()
	}

	listings := make([]Listing, len(types))
	group := s.group()
	for i, ct := range types {
		group.Go(func() error {
			listings[i] = s.list(ctx, ct)
			return nil
		})
	}
	_ = group.Wait()

	var errs error
	failed := 0
	for _, l := range listings {
		if l.Err != nil {
			failed++
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", l.Type, l.Err))
			s.logger.WarnContext(ctx, "listing failed", "type", l.Type, "error", l.Err)
		}
	}
	if failed == len(listings) {
		return nil, errs
	}

	return listings, nil
}

func (s *Syncer) list(ctx context.Context, ct page.ContentType) Listing {
	dir := s.layout.ContentDirectory(ct)
	items, err := s.store.List(ctx, dir)
	if err != nil {
		return Listing{Type: ct, Err: err}
	}

	pages := make([]store.Item, 0, len(items))
	for _, item := range items {
		if item.Type != store.TypeFile || !strings.EqualFold(path.Ext(item.Name), markdownExt) {
			continue
		}
		pages = append(pages, item)
	}

	s.logger.DebugContext(ctx, "listed content type", "type", ct, "pages", len(pages))
	return Listing{Type: ct, Pages: pages}
}
