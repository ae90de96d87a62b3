// Package store provides abstractions over the content store holding the site repository.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/coolone/sitesync/internal/apperrors"
	"github.com/coolone/sitesync/internal/page"
)

// ItemType is the kind of a repository entry.
type ItemType string

// Item types as reported by the contents API.
const (
	TypeDir       ItemType = "dir"
	TypeFile      ItemType = "file"
	TypeSymlink   ItemType = "symlink"
	TypeSubmodule ItemType = "submodule"
)

// Item describes a file or directory of the repository.
//
// SHA is the blob hash of the last known server copy. It is the concurrency
// token passed back on overwrite and delete; an empty SHA means the item does
// not exist remotely yet.
type Item struct {
	Type        ItemType `json:"type"`
	Name        string   `json:"name"`
	Path        string   `json:"path"`
	SHA         string   `json:"sha,omitempty"`
	Size        uint64   `json:"size"`
	DownloadURL string   `json:"download_url"`
}

// IsDir reports whether the item is a directory.
func (i Item) IsDir() bool {
	return i.Type == TypeDir
}

// Store reads and mutates repository content addressed by path.
//
// Every call goes to the backing store; nothing is cached.
type Store interface {
	// List returns the children of a directory, or the item itself for a file.
	List(ctx context.Context, path string) ([]Item, error)
	// Read returns the raw content of a file item.
	Read(ctx context.Context, item Item) ([]byte, error)
	// Create writes a new file. It fails with apperrors.ErrAlreadyExists if the path is taken.
	Create(ctx context.Context, path string, content []byte) error
	// Overwrite replaces a file. It fails with apperrors.ErrConflict if item.SHA is stale.
	Overwrite(ctx context.Context, item Item, content []byte) error
	// Delete removes a file. It fails with apperrors.ErrConflict if item.SHA is stale.
	Delete(ctx context.Context, item Item) error
}

// Get returns the item stored at path, or nil when there is none.
func Get(ctx context.Context, s Store, path string) (*Item, error) {
	items, err := s.List(ctx, path)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s: %w", path, err)
	}

	for i := range items {
		if items[i].Path == path {
			return &items[i], nil
		}
	}
	return nil, nil
}

// FetchPage downloads a page document and parses it.
func FetchPage(ctx context.Context, s Store, item Item) (*page.Page, error) {
	data, err := s.Read(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", item.Path, err)
	}

	p, err := page.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("page %s: %w", item.Path, err)
	}
	return p, nil
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// messageKey is the context key for the commit message of the next mutation.
	messageKey contextKey = "message"
	// syncIDKey is the context key for the ID of the running sync.
	syncIDKey contextKey = "syncID"
)

// WithSyncID returns a new context with the sync run ID stored.
func WithSyncID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, syncIDKey, id)
}

// SyncIDFromContext extracts the sync run ID from context, returns empty string if not set.
func SyncIDFromContext(ctx context.Context) string {
	if v := ctx.Value(syncIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// LogArgs appends the sync run ID of ctx to args, if any.
func LogArgs(ctx context.Context, args ...any) []any {
	if id := SyncIDFromContext(ctx); id != "" {
		args = append(args, "sync_id", id)
	}
	return args
}

// WithMessage returns a context carrying the commit message used by the next mutation.
func WithMessage(ctx context.Context, message string) context.Context {
	return context.WithValue(ctx, messageKey, message)
}

// MessageFromContext returns the commit message stored in ctx, or fallback.
func MessageFromContext(ctx context.Context, fallback string) string {
	if v, ok := ctx.Value(messageKey).(string); ok && v != "" {
		return v
	}
	return fallback
}

// CreateMessage is the default commit message of a create.
func CreateMessage(name string) string { return "Create " + name }

// OverwriteMessage is the default commit message of an overwrite.
func OverwriteMessage(name string) string { return "Replace " + name }

// DeleteMessage is the default commit message of a delete.
func DeleteMessage(name string) string { return "Delete file " + name }
