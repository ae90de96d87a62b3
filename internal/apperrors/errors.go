// Package apperrors provides common static errors used throughout the application.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// missingSHAMessage is the 422 message of a create on a path that already
// holds a file, which the contents API treats as an update without a sha.
const missingSHAMessage = `"sha" wasn't supplied`

// HTTPError represents an HTTP error with a status code.
type HTTPError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Unwrap maps well-known statuses of the contents API onto sentinel errors,
// so callers can use errors.Is without looking at status codes.
func (e *HTTPError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusUnprocessableEntity:
		if strings.Contains(e.Body, missingSHAMessage) {
			return ErrAlreadyExists
		}
		return ErrValidation
	default:
		return nil
	}
}

// NewHTTPError creates a new HTTPError.
func NewHTTPError(statusCode int, body string) *HTTPError {
	return &HTTPError{StatusCode: statusCode, Body: body}
}

// Common static errors used throughout the application.
var (
	// ErrNotFound is returned when a path does not exist in the content store.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write carries a stale concurrency token.
	ErrConflict = errors.New("concurrency token mismatch")

	// ErrAlreadyExists is returned when creating an item at a path that is already taken.
	ErrAlreadyExists = errors.New("item already exists")

	// ErrValidation is returned when the contents API rejects a request as invalid.
	ErrValidation = errors.New("request rejected by validation")

	// ErrTokenRequired is returned when overwrite or delete is attempted on an item without a token.
	ErrTokenRequired = errors.New("item has no concurrency token")

	// ErrNotADirectory is returned when a directory operation targets a file.
	ErrNotADirectory = errors.New("not a directory")

	// ErrRepoRequired is returned when no repository is configured.
	ErrRepoRequired = errors.New("repository required (set SITESYNC_REPO, e.g. owner/name)")

	// ErrGitPathRequired is returned when the git storage is selected without a repository path.
	ErrGitPathRequired = errors.New("git storage requires SITESYNC_GIT_PATH")

	// ErrUnknownStorage is returned for an unsupported storage mode.
	ErrUnknownStorage = errors.New("unknown storage mode")

	// ErrRemoteNotConfigured is returned when a git remote operation is attempted but no remote is configured.
	ErrRemoteNotConfigured = errors.New("no remote configured")

	// ErrMaxRetriesExceeded is returned when the maximum number of retries is exceeded.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")

	// ErrUnknownContentType is returned when a content type name is not recognized.
	ErrUnknownContentType = errors.New("unknown content type")

	// ErrPageNameRequired is returned when a page name is required but not provided.
	ErrPageNameRequired = errors.New("page name required")

	// ErrPageNotFound is returned when the markdown file of a page does not exist.
	ErrPageNotFound = errors.New("page not found")

	// ErrPageExists is returned when creating a page whose markdown file already exists.
	ErrPageExists = errors.New("page already exists")

	// ErrArchiveLayout is returned when an archive does not have a single top-level folder.
	ErrArchiveLayout = errors.New("archive must contain a single top-level folder")

	// ErrUnsafeArchivePath is returned when an archive entry would escape the destination.
	ErrUnsafeArchivePath = errors.New("archive entry escapes destination")

	// ErrMalformedDocument is returned when a page lacks the two "---" front-matter delimiters.
	ErrMalformedDocument = errors.New("malformed document: front matter needs two --- delimiters")

	// ErrMissingField is returned when a required metadata field is absent.
	ErrMissingField = errors.New("missing required metadata field")

	// ErrAmbiguousContentType is returned when metadata carries more than one kind payload.
	ErrAmbiguousContentType = errors.New("metadata has more than one content kind")

	// ErrKeyConflict is returned when a front-matter key is both a value and an object.
	ErrKeyConflict = errors.New("front-matter key is both a value and an object")

	// ErrUnsupportedValue is returned when metadata holds a value the front-matter format cannot express.
	ErrUnsupportedValue = errors.New("unsupported metadata value")

	// ErrUnresolvablePath is returned when a remote path cannot be derived from metadata.
	ErrUnresolvablePath = errors.New("path cannot be resolved")

	// ErrInvalidAttachFlag is returned when an --attach value is not key=path.
	ErrInvalidAttachFlag = errors.New("attach value must be key=path")
)
