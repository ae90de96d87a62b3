package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coolone/sitesync/internal/apperrors"
)

func TestLayout_Paths(t *testing.T) {
	t.Parallel()
	l := DefaultLayout()

	assert.Equal(t, "Content/books/gopl.md", l.MarkdownPath(Books, "gopl"))
	assert.Equal(t, "Content/books", l.ContentDirectory(Books))
	assert.Equal(t, "Resources/books/gopl", l.ResourceDirectory(Books, "gopl"))

	dir, err := l.ResourcePath(Books, "gopl", "", "")
	require.NoError(t, err)
	assert.Equal(t, "Resources/books/gopl", dir)

	_, err = l.ResourcePath(Books, "gopl", SlotLogo, "")
	require.ErrorIs(t, err, apperrors.ErrUnresolvablePath)
}

func TestLayout_ResourcePathSymmetry(t *testing.T) {
	t.Parallel()
	l := DefaultLayout()

	for _, ct := range AllContentTypes() {
		for _, slot := range []string{SlotLogo, SlotSingleImage, "diagram"} {
			p, err := l.ResourcePath(ct, "demo", slot, ".jpg")
			require.NoError(t, err)

			ref, err := l.ParseResourcePath(p)
			require.NoError(t, err, p)
			assert.Equal(t, ResourceRef{Type: ct, Page: "demo", Slot: slot, Ext: ".jpg"}, ref)
		}
	}
}

func TestLayout_ParseResourcePathErrors(t *testing.T) {
	t.Parallel()
	l := DefaultLayout()

	for _, p := range []string{
		"Content/projects/demo.md",
		"Resources/projects/demo",
		"Resources/projects/demo/logo",
		"Resources/projects/demo/.png",
		"Resources/projects/demo/nested/logo.png",
	} {
		_, err := l.ParseResourcePath(p)
		require.ErrorIs(t, err, apperrors.ErrUnresolvablePath, p)
	}

	_, err := l.ParseResourcePath("Resources/blog/demo/logo.png")
	require.ErrorIs(t, err, apperrors.ErrUnknownContentType)
}

func TestLayout_SlotPath(t *testing.T) {
	t.Parallel()
	l := DefaultLayout()

	meta := &Metadata{}
	_, err := l.SlotPath(meta, "demo", SlotLogo)
	require.ErrorIs(t, err, apperrors.ErrUnresolvablePath, "no content type")

	meta.SetKind(Projects)
	_, err = l.SlotPath(meta, "demo", SlotLogo)
	require.ErrorIs(t, err, apperrors.ErrUnresolvablePath, "empty slot")

	meta.SetSlotExt(SlotLogo, ".jpg")
	p, err := l.SlotPath(meta, "demo", SlotLogo)
	require.NoError(t, err)
	assert.Equal(t, "Resources/projects/demo/logo.jpg", p)
}

func TestLayout_AttachmentPath(t *testing.T) {
	t.Parallel()
	l := DefaultLayout()

	p, err := l.AttachmentPath(Events, "talk", "img/diagram.v2.jpg")
	require.NoError(t, err)
	assert.Equal(t, "Resources/events/talk/diagram.png", p)

	_, err = l.AttachmentPath(Events, "talk", ".hidden")
	require.ErrorIs(t, err, apperrors.ErrUnresolvablePath)
}

func TestLayout_RawURL(t *testing.T) {
	t.Parallel()

	assert.Empty(t, DefaultLayout().RawURL("Resources/x.png"))

	l := Layout{RawBase: "https://github.com/o/r/raw/master/"}
	assert.Equal(t, "https://github.com/o/r/raw/master/Resources/x.png", l.RawURL("/Resources/x.png"))
}

func TestName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "demo", Name("demo.md"))
	assert.Equal(t, "demo", Name("Content/projects/demo.md"))
	assert.Equal(t, "demo", Name("demo"))
}

func TestParseContentType(t *testing.T) {
	t.Parallel()

	ct, err := ParseContentType(" Books ")
	require.NoError(t, err)
	assert.Equal(t, Books, ct)
	assert.Equal(t, "Books", ct.DisplayName())

	_, err = ParseContentType("blog")
	require.ErrorIs(t, err, apperrors.ErrUnknownContentType)
}

func TestMetadata_Kind(t *testing.T) {
	t.Parallel()

	var meta Metadata
	_, ok := meta.ContentType()
	assert.False(t, ok)

	meta.SetKind(Career)
	ct, ok := meta.ContentType()
	require.True(t, ok)
	assert.Equal(t, Career, ct)

	meta.SetKind(Achievements)
	assert.Nil(t, meta.Career, "SetKind replaces the payload")
	ct, _ = meta.ContentType()
	assert.Equal(t, Achievements, ct)

	meta.Project = &ProjectMetadata{}
	ct, _ = meta.ContentType()
	assert.Equal(t, Projects, ct, "project takes precedence")
}

func TestTimestamp(t *testing.T) {
	t.Parallel()

	ts, err := ParseTimestamp(" 2024-03-01 10:30 ")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01 10:30", ts.String())

	data, err := ts.MarshalJSON()
	require.NoError(t, err)
	var back Timestamp
	require.NoError(t, back.UnmarshalJSON(data))
	assert.True(t, ts.Equal(back.Time))

	_, err = ParseTimestamp("2024-03-01")
	require.Error(t, err)
}
