package images

import (
	"image"
	"sort"
	"strings"

	"github.com/coolone/sitesync/internal/page"
)

// Action is what must happen to one image when a page is saved.
type Action int

const (
	// ActionNone leaves the stored image as it is.
	ActionNone Action = iota
	// ActionUpload writes a pending image.
	ActionUpload
	// ActionDelete removes a stored image.
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionUpload:
		return "upload"
	case ActionDelete:
		return "delete"
	default:
		return "none"
	}
}

// decide applies the three-way policy: any move into a local value uploads,
// a remote value that disappears is deleted, everything else is left alone.
func decide(original, current *Attachment) Action {
	switch {
	case current != nil && current.IsLocal():
		return ActionUpload
	case current == nil && original != nil && !original.IsLocal():
		return ActionDelete
	default:
		return ActionNone
	}
}

// SlotChange is the outcome of diffing a single image slot.
type SlotChange struct {
	Action Action
	// Image is the pending image for ActionUpload.
	Image image.Image
	// Original is the previously stored attachment, if any.
	Original *Attachment
}

// DiffSlot compares the edited value of a slot against its original.
func DiffSlot(s Snapshot[*Attachment]) SlotChange {
	change := SlotChange{
		Action:   decide(s.Original(), s.Value),
		Original: s.Original(),
	}
	if change.Action == ActionUpload {
		change.Image = s.Value.Image
	}
	return change
}

// Changes lists the attachment keys to upload and to delete. A key never
// appears in both.
type Changes struct {
	Upload map[string]image.Image
	// Delete maps each key to the remote attachment it referenced.
	Delete map[string]Attachment
}

// Empty reports whether there is nothing to do.
func (c Changes) Empty() bool {
	return len(c.Upload) == 0 && len(c.Delete) == 0
}

// UploadKeys returns the keys to upload in sorted order.
func (c Changes) UploadKeys() []string {
	return sortedKeys(c.Upload)
}

// DeleteKeys returns the keys to delete in sorted order.
func (c Changes) DeleteKeys() []string {
	return sortedKeys(c.Delete)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Diff compares the current attachment map against the original one.
func Diff(original, current Map) Changes {
	changes := Changes{
		Upload: make(map[string]image.Image),
		Delete: make(map[string]Attachment),
	}

	keys := make(map[string]struct{}, len(original)+len(current))
	for key := range original {
		keys[key] = struct{}{}
	}
	for key := range current {
		keys[key] = struct{}{}
	}

	for key := range keys {
		var before, after *Attachment
		if a, ok := original[key]; ok {
			before = &a
		}
		if a, ok := current[key]; ok {
			after = &a
		}

		switch decide(before, after) {
		case ActionUpload:
			changes.Upload[key] = after.Image
		case ActionDelete:
			changes.Delete[key] = *before
		case ActionNone:
		}
	}

	return changes
}

// DiffSnapshot is Diff applied to a snapshot.
func DiffSnapshot(s Snapshot[Map]) Changes {
	return Diff(s.Original(), s.Value)
}

// Resolver turns an image target found in the body into a remote attachment.
// It reports false for targets that cannot be resolved.
type Resolver func(target string) (Attachment, bool)

// Reconcile recomputes the attachment map after the body was edited.
//
// Remote entries whose key no longer occurs in body are dropped. The test is
// a plain substring match, so a key that still appears anywhere in the text
// stays referenced. Local entries are kept until saved. Image targets found
// in the body that are not tracked yet are added through resolve.
func Reconcile(current Map, body string, resolve Resolver) Map {
	next := make(Map, len(current))
	for key, a := range current {
		if a.IsLocal() || strings.Contains(body, key) {
			next[key] = a
		}
	}

	if resolve == nil {
		return next
	}

	for _, target := range page.ImageTargets(body) {
		if _, tracked := next[target]; tracked {
			continue
		}
		if a, ok := resolve(target); ok {
			next[target] = a
		}
	}

	return next
}
