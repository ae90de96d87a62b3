package store

import (
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"github.com/coolone/sitesync/internal/apperrors"
)

// GitRemote holds configuration of the remote mirrored by a GitStore.
type GitRemote struct {
	URL      string // Remote git repository URL (SITESYNC_GIT_REMOTE)
	Password string // Token for HTTPS auth (GITHUB_TOKEN)
	Branch   string // Target branch (SITESYNC_BRANCH)
	User     string // Commit author name (SITESYNC_GIT_USER)
	Email    string // Commit author email (SITESYNC_GIT_EMAIL)
}

// IsEnabled returns true if remote operations should be used.
func (r *GitRemote) IsEnabled() bool {
	return r != nil && r.URL != ""
}

// IsSSH returns true if the URL is an SSH URL.
func (r *GitRemote) IsSSH() bool {
	if !r.IsEnabled() {
		return false
	}
	return strings.HasPrefix(r.URL, "git@") || strings.HasPrefix(r.URL, "ssh://")
}

// author returns the commit author, falling back to sitesync defaults.
func (r *GitRemote) author() (string, string) {
	name, email := "sitesync", "sitesync@localhost"
	if r != nil && r.User != "" {
		name = r.User
	}
	if r != nil && r.Email != "" {
		email = r.Email
	}
	return name, email
}

// GetAuth returns the authentication method for the remote URL.
func (r *GitRemote) GetAuth() (transport.AuthMethod, error) {
	if !r.IsEnabled() {
		return nil, apperrors.ErrRemoteNotConfigured
	}

	if r.IsSSH() {
		auth, err := ssh.NewSSHAgentAuth("git")
		if err != nil {
			return nil, fmt.Errorf("create SSH agent auth: %w", err)
		}
		return auth, nil
	}

	if r.Password == "" {
		// Public HTTPS remotes can be cloned anonymously.
		return nil, nil //nolint:nilnil // no auth is a valid auth method
	}

	return &http.BasicAuth{
		Username: "oauth2",
		Password: r.Password,
	}, nil
}
