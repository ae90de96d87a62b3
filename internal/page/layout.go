package page

import (
	"fmt"
	"path"
	"strings"

	"github.com/coolone/sitesync/internal/apperrors"
)

// Default repository roots.
const (
	DefaultContentRoot  = "Content"
	DefaultResourceRoot = "Resources"
)

// Layout derives repository paths of pages and their resources.
//
// Markdown lives at {ContentRoot}/{type}/{page}.md and images at
// {ResourceRoot}/{type}/{page}/{slot}{ext}. RawBase, when set, is the prefix
// of direct download URLs (e.g. https://github.com/owner/repo/raw/master).
type Layout struct {
	ContentRoot  string
	ResourceRoot string
	RawBase      string
}

// DefaultLayout returns the layout of the site repository.
func DefaultLayout() Layout {
	return Layout{
		ContentRoot:  DefaultContentRoot,
		ResourceRoot: DefaultResourceRoot,
	}
}

// ResourceRef identifies one resource file of a page.
type ResourceRef struct {
	Type ContentType
	Page string
	Slot string
	Ext  string
}

// Name returns the page name of a markdown file name, e.g. "demo" for "demo.md".
func Name(filename string) string {
	return withoutExt(path.Base(filename))
}

// withoutExt strips everything from the first dot of name.
func withoutExt(name string) string {
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		return name[:idx]
	}
	return name
}

// MarkdownPath returns the path of the page document.
func (l Layout) MarkdownPath(ct ContentType, pageName string) string {
	return path.Join(l.ContentRoot, string(ct), pageName+".md")
}

// ContentDirectory returns the directory listing the pages of a content type.
func (l Layout) ContentDirectory(ct ContentType) string {
	return path.Join(l.ContentRoot, string(ct))
}

// ResourceDirectory returns the directory holding the resources of a page.
func (l Layout) ResourceDirectory(ct ContentType, pageName string) string {
	return path.Join(l.ResourceRoot, string(ct), withoutExt(pageName))
}

// ResourcePath returns the path of a named resource. An empty slot yields the
// resource directory; a slot without an extension cannot be resolved.
func (l Layout) ResourcePath(ct ContentType, pageName, slot, ext string) (string, error) {
	dir := l.ResourceDirectory(ct, pageName)
	if slot == "" {
		return dir, nil
	}
	if ext == "" {
		return "", fmt.Errorf("%w: slot %q of %s/%s has no extension", apperrors.ErrUnresolvablePath, slot, ct, pageName)
	}
	return dir + "/" + slot + ext, nil
}

// ParseResourcePath is the inverse of ResourcePath for slot paths.
func (l Layout) ParseResourcePath(p string) (ResourceRef, error) {
	rest, ok := strings.CutPrefix(p, l.ResourceRoot+"/")
	if !ok {
		return ResourceRef{}, fmt.Errorf("%w: %s is outside %s", apperrors.ErrUnresolvablePath, p, l.ResourceRoot)
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 3 { //nolint:mnd // type/page/file
		return ResourceRef{}, fmt.Errorf("%w: %s", apperrors.ErrUnresolvablePath, p)
	}

	ct, err := ParseContentType(parts[0])
	if err != nil {
		return ResourceRef{}, err
	}

	dot := strings.IndexByte(parts[2], '.')
	if dot <= 0 || dot == len(parts[2])-1 {
		return ResourceRef{}, fmt.Errorf("%w: %s has no slot extension", apperrors.ErrUnresolvablePath, p)
	}

	return ResourceRef{
		Type: ct,
		Page: parts[1],
		Slot: parts[2][:dot],
		Ext:  parts[2][dot:],
	}, nil
}

// SlotPath returns the path of an image slot using the content type and
// extension recorded in meta.
func (l Layout) SlotPath(meta *Metadata, pageName, slot string) (string, error) {
	ct, ok := meta.ContentType()
	if !ok {
		return "", fmt.Errorf("%w: metadata has no content type", apperrors.ErrUnresolvablePath)
	}
	return l.ResourcePath(ct, pageName, slot, meta.SlotExt(slot))
}

// AttachmentPath returns where an image referenced from the body is stored:
// the file name of the reference without extension, encoded as PNG.
func (l Layout) AttachmentPath(ct ContentType, pageName, key string) (string, error) {
	slot := withoutExt(path.Base(key))
	if slot == "" || slot == "." || slot == "/" {
		return "", fmt.Errorf("%w: attachment %q", apperrors.ErrUnresolvablePath, key)
	}
	return l.ResourcePath(ct, pageName, slot, DefaultImageExt)
}

// RawURL returns the direct download URL of a repository path.
func (l Layout) RawURL(p string) string {
	if l.RawBase == "" {
		return ""
	}
	return strings.TrimRight(l.RawBase, "/") + "/" + strings.TrimLeft(p, "/")
}
