// Package images tracks the images attached to a page and works out which of
// them must be uploaded or deleted when the page is saved.
package images

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	"image/png"
	"maps"
	"os"
)

// Kind tells a remote reference from a pending local image.
type Kind int

const (
	// KindRemote is an image already stored in the repository.
	KindRemote Kind = iota
	// KindLocal is an in-memory image waiting to be uploaded.
	KindLocal
)

func (k Kind) String() string {
	if k == KindLocal {
		return "local"
	}
	return "remote"
}

// Attachment is either a remote reference (Path, URL) or a local replacement (Image).
type Attachment struct {
	Kind  Kind
	Path  string
	URL   string
	Image image.Image
}

// Remote returns a reference to an image stored at path.
func Remote(path, url string) Attachment {
	return Attachment{Kind: KindRemote, Path: path, URL: url}
}

// Local returns a pending image.
func Local(img image.Image) Attachment {
	return Attachment{Kind: KindLocal, Image: img}
}

// IsLocal reports whether the attachment still has to be uploaded.
func (a Attachment) IsLocal() bool {
	return a.Kind == KindLocal
}

// Map holds attachments keyed by the image target used in the markdown body.
type Map map[string]Attachment

// Clone returns a shallow copy of m.
func (m Map) Clone() Map {
	if m == nil {
		return Map{}
	}
	return maps.Clone(m)
}

// Snapshot pairs the value fetched from the repository with the edited value.
// The original is fixed at construction; diffs compare Value against it.
type Snapshot[T any] struct {
	original T
	Value    T
}

// NewSnapshot starts tracking edits of original.
func NewSnapshot[T any](original T) Snapshot[T] {
	return Snapshot[T]{original: original, Value: original}
}

// NewMapSnapshot starts tracking edits of an attachment map. The original is
// copied so edits of Value never reach it.
func NewMapSnapshot(original Map) Snapshot[Map] {
	return Snapshot[Map]{original: original.Clone(), Value: original.Clone()}
}

// Original returns the value the snapshot was created with.
func (s Snapshot[T]) Original() T {
	return s.original
}

// EncodePNG encodes a pending image for upload.
func EncodePNG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("encode png: %w", image.ErrFormat)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Load decodes a PNG, JPEG or GIF file into a pending attachment.
func Load(filename string) (Attachment, error) {
	f, err := os.Open(filename) //nolint:gosec // path is provided by the user
	if err != nil {
		return Attachment{}, fmt.Errorf("open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return Attachment{}, fmt.Errorf("decode image %s: %w", filename, err)
	}
	return Local(img), nil
}
