// Package sync applies page edits to the content store.
package sync

import (
	"context"
	"fmt"
	"strings"

	"github.com/coolone/sitesync/internal/apperrors"
	"github.com/coolone/sitesync/internal/images"
	"github.com/coolone/sitesync/internal/page"
	"github.com/coolone/sitesync/internal/store"
)

const (
	templateDate        = "2021-01-01 00:00"
	templateDescription = "Description"
	templateBody        = "# Title\n\nDescription\n"
)

// Edit is the state of one page being edited: the page itself and a snapshot
// of every image attached to it.
type Edit struct {
	Type page.ContentType
	Name string
	Page *page.Page
	// Item is the stored markdown file, nil for a page that was never saved.
	Item *store.Item

	Attachments images.Snapshot[images.Map]
	Logo        images.Snapshot[*images.Attachment]
	SingleImage images.Snapshot[*images.Attachment]

	layout page.Layout
}

// NewEdit starts a page from the template of its content type.
func NewEdit(ct page.ContentType, name string, layout page.Layout) (*Edit, error) {
	if name == "" {
		return nil, apperrors.ErrPageNameRequired
	}

	date, err := page.ParseTimestamp(templateDate)
	if err != nil {
		return nil, fmt.Errorf("template date: %w", err)
	}

	p := &page.Page{
		Metadata: page.Metadata{
			Description: templateDescription,
			Date:        date,
		},
		Content: templateBody,
	}
	p.Metadata.SetKind(ct)
	p.Title = page.Title(p.Content)

	return &Edit{
		Type:        ct,
		Name:        name,
		Page:        p,
		Attachments: images.NewMapSnapshot(images.Map{}),
		Logo:        images.NewSnapshot[*images.Attachment](nil),
		SingleImage: images.NewSnapshot[*images.Attachment](nil),
		layout:      layout,
	}, nil
}

// OpenEdit fetches a stored page and snapshots its images.
func OpenEdit(ctx context.Context, st store.Store, layout page.Layout, ct page.ContentType, name string) (*Edit, error) {
	if name == "" {
		return nil, apperrors.ErrPageNameRequired
	}

	mdPath := layout.MarkdownPath(ct, name)
	item, err := store.Get(ctx, st, mdPath)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%s: %w", mdPath, apperrors.ErrPageNotFound)
	}

	p, err := store.FetchPage(ctx, st, *item)
	if err != nil {
		return nil, err
	}

	e := &Edit{
		Type:   ct,
		Name:   name,
		Page:   p,
		Item:   item,
		layout: layout,
	}

	attachments := images.Reconcile(images.Map{}, p.Content, e.Resolver())
	e.Attachments = images.NewMapSnapshot(attachments)
	e.Logo = images.NewSnapshot(e.remoteSlot(page.SlotLogo))
	e.SingleImage = images.NewSnapshot(e.remoteSlot(page.SlotSingleImage))

	return e, nil
}

// IsNew reports whether the page has never been saved.
func (e *Edit) IsNew() bool {
	return e.Item == nil
}

// remoteSlot returns the stored image of a slot, nil when the slot is empty
// or its path cannot be derived.
func (e *Edit) remoteSlot(slot string) *images.Attachment {
	p, err := e.layout.SlotPath(&e.Page.Metadata, e.Name, slot)
	if err != nil {
		return nil
	}
	a := images.Remote(p, e.layout.RawURL(p))
	return &a
}

// Resolver maps image targets of the body onto the stored attachments of the
// page. External URLs are not attachments.
func (e *Edit) Resolver() images.Resolver {
	return func(target string) (images.Attachment, bool) {
		if strings.Contains(target, "://") || strings.HasPrefix(target, "data:") {
			return images.Attachment{}, false
		}
		ct, ok := e.Page.Metadata.ContentType()
		if !ok {
			return images.Attachment{}, false
		}
		p, err := e.layout.AttachmentPath(ct, e.Name, target)
		if err != nil {
			return images.Attachment{}, false
		}
		return images.Remote(p, e.layout.RawURL(p)), true
	}
}

// SetBody replaces the markdown body and recomputes the attachment map.
func (e *Edit) SetBody(body string) {
	e.Page.Content = body
	e.Page.Title = page.Title(body)
	e.Attachments.Value = images.Reconcile(e.Attachments.Value, body, e.Resolver())
}

// Attach sets the image for a body target, replacing any stored one.
func (e *Edit) Attach(key string, a images.Attachment) {
	if e.Attachments.Value == nil {
		e.Attachments.Value = images.Map{}
	}
	e.Attachments.Value[key] = a
}

// Detach drops the image of a body target.
func (e *Edit) Detach(key string) {
	delete(e.Attachments.Value, key)
}

// SetSlot sets or clears (nil) a slot image and records its extension in the
// metadata. Pending images are always stored as PNG.
func (e *Edit) SetSlot(slot string, a *images.Attachment) {
	ext := ""
	if a != nil {
		ext = page.DefaultImageExt
	}
	e.Page.Metadata.SetSlotExt(slot, ext)

	switch slot {
	case page.SlotLogo:
		e.Logo.Value = a
	case page.SlotSingleImage:
		e.SingleImage.Value = a
	}
}

// slots returns the snapshots of both image slots by name.
func (e *Edit) slots() []namedSlot {
	return []namedSlot{
		{name: page.SlotLogo, snapshot: e.Logo},
		{name: page.SlotSingleImage, snapshot: e.SingleImage},
	}
}

type namedSlot struct {
	name     string
	snapshot images.Snapshot[*images.Attachment]
}
