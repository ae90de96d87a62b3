package page

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the front-matter date format, interpreted in the local time zone.
const DateLayout = "2006-01-02 15:04"

// Image slot names. A slot is a single named image stored next to the page.
const (
	SlotLogo        = "logo"
	SlotSingleImage = "singleImage"
)

// DefaultImageExt is the extension used for images encoded by sitesync.
const DefaultImageExt = ".png"

// Timestamp is a metadata date with minute precision.
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to the minute in the local time zone.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.In(time.Local).Truncate(time.Minute)}
}

// ParseTimestamp parses a DateLayout value in the local time zone.
func ParseTimestamp(s string) (Timestamp, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return Timestamp{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Timestamp{Time: t}, nil
}

func (t Timestamp) String() string {
	return t.In(time.Local).Format(DateLayout)
}

// MarshalJSON encodes the timestamp as a DateLayout string.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a DateLayout string.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ProjectMetadata describes a project page.
type ProjectMetadata struct {
	Type      string   `json:"type"`
	Platforms []string `json:"platforms"`
}

// EventMetadata describes an event page.
type EventMetadata struct {
	Location *string `json:"location"`
	Place    *string `json:"place"`
	Type     string  `json:"type"`
}

// CareerMetadata describes a career entry.
type CareerMetadata struct {
	Location     *string  `json:"location"`
	Type         string   `json:"type"`
	Position     string   `json:"position"`
	Achievements []string `json:"achievements"`
}

// BookMetadata describes a book page.
type BookMetadata struct {
	Author       string `json:"author"`
	Organisation string `json:"organisation"`
}

// AchievementMetadata describes an achievement page.
type AchievementMetadata struct {
	Type string `json:"type"`
}

// Metadata is the structured front matter of a page.
//
// Exactly one kind payload (Project, Event, Career, Book, Achievement) is
// expected to be set. Nil values are left out of the encoded front matter.
type Metadata struct {
	Description string    `json:"description"`
	Date        Timestamp `json:"date"`

	Project     *ProjectMetadata     `json:"project"`
	Event       *EventMetadata       `json:"event"`
	Career      *CareerMetadata      `json:"career"`
	Book        *BookMetadata        `json:"book"`
	Achievement *AchievementMetadata `json:"achievement"`

	Tags        []string   `json:"tags"`
	Videos      []string   `json:"videos"`
	Logo        *string    `json:"logo"`
	SingleImage *string    `json:"singleImage"`
	EndDate     *Timestamp `json:"endDate"`
}

// kindKeys are the front-matter keys of the kind payloads, in precedence order.
var kindKeys = []string{"project", "event", "career", "book", "achievement"}

// ContentType returns the content type derived from the kind payload.
// When several payloads are set, the first of project, event, career, book,
// achievement wins.
func (m *Metadata) ContentType() (ContentType, bool) {
	switch {
	case m.Project != nil:
		return Projects, true
	case m.Event != nil:
		return Events, true
	case m.Career != nil:
		return Career, true
	case m.Book != nil:
		return Books, true
	case m.Achievement != nil:
		return Achievements, true
	default:
		return "", false
	}
}

// SetKind replaces the kind payload with the default payload of ct.
func (m *Metadata) SetKind(ct ContentType) {
	m.Project, m.Event, m.Career, m.Book, m.Achievement = nil, nil, nil, nil, nil

	switch ct {
	case Projects:
		m.Project = &ProjectMetadata{Type: "app", Platforms: []string{}}
	case Books:
		m.Book = &BookMetadata{}
	case Events:
		m.Event = &EventMetadata{Type: "course"}
	case Career:
		m.Career = &CareerMetadata{Type: "contract", Achievements: []string{}}
	case Achievements:
		m.Achievement = &AchievementMetadata{Type: "certificate"}
	}
}

// SlotExt returns the stored extension of an image slot, or "" when the slot is empty.
func (m *Metadata) SlotExt(slot string) string {
	var ext *string
	switch slot {
	case SlotLogo:
		ext = m.Logo
	case SlotSingleImage:
		ext = m.SingleImage
	}
	if ext == nil {
		return ""
	}
	return *ext
}

// SetSlotExt stores the extension of an image slot. An empty ext marks the slot as empty.
func (m *Metadata) SetSlotExt(slot, ext string) {
	switch slot {
	case SlotLogo:
		m.Logo = &ext
	case SlotSingleImage:
		m.SingleImage = &ext
	}
}
