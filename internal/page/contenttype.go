// Package page models site pages: markdown documents with a key/value front
// matter, their content types and the repository paths derived from them.
package page

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/coolone/sitesync/internal/apperrors"
)

// ContentType is one of the page categories of the site.
type ContentType string

// Content types, in the order the site lists its sections.
const (
	Projects     ContentType = "projects"
	Books        ContentType = "books"
	Events       ContentType = "events"
	Career       ContentType = "career"
	Achievements ContentType = "achievements"
)

// AllContentTypes returns every content type in section order.
func AllContentTypes() []ContentType {
	return []ContentType{Projects, Books, Events, Career, Achievements}
}

// ParseContentType converts a section name into a ContentType.
func ParseContentType(name string) (ContentType, error) {
	ct := ContentType(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range AllContentTypes() {
		if ct == known {
			return ct, nil
		}
	}
	return "", fmt.Errorf("%w: %q", apperrors.ErrUnknownContentType, name)
}

// DisplayName returns the section title, e.g. "Projects".
func (c ContentType) DisplayName() string {
	return cases.Title(language.English).String(string(c))
}

func (c ContentType) String() string {
	return string(c)
}
