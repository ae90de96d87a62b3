package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/coolone/sitesync/internal/apperrors"
)

const (
	msgRemoteRepoEmpty = "remote repository is empty"
	gitDir             = ".git"

	// File and directory permissions.
	dirPerm  = 0750 // Directory permissions: rwxr-x---
	filePerm = 0600 // File permissions: rw-------
)

// GitStore implements Store on a local git working tree.
//
// Concurrency tokens are git blob hashes, the same values the GitHub contents
// API reports, and every mutation is committed on its own.
type GitStore struct {
	rootPath string
	repo     *git.Repository
	mu       sync.Mutex
	logger   *slog.Logger
	remote   *GitRemote
}

// GitStoreOption configures GitStore.
type GitStoreOption func(*GitStore)

// WithLogger sets a custom logger for the store.
func WithLogger(l *slog.Logger) GitStoreOption {
	return func(s *GitStore) {
		s.logger = l
	}
}

// WithRemote sets the remote the store is cloned from and pushed to.
func WithRemote(r *GitRemote) GitStoreOption {
	return func(s *GitStore) {
		s.remote = r
	}
}

// NewGitStore opens, clones or initializes a repository at path.
func NewGitStore(path string, opts ...GitStoreOption) (*GitStore, error) {
	store := &GitStore{
		rootPath: path,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(store)
	}

	repo, err := store.initializeRepository(path)
	if err != nil {
		return nil, err
	}

	store.repo = repo
	return store, nil
}

// BlobHash returns the git blob hash of content.
func BlobHash(content []byte) string {
	return plumbing.ComputeHash(plumbing.BlobObject, content).String()
}

// List lists a directory, or returns the file itself.
func (s *GitStore) List(ctx context.Context, p string) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.DebugContext(ctx, "listing path", "path", p)

	fullPath := s.fullPath(p)
	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("list %s: %w", p, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("stat %s: %w", p, err)
	}

	if !info.IsDir() {
		item, err := s.fileItem(p, info)
		if err != nil {
			return nil, err
		}
		return []Item{item}, nil
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", p, err)
	}

	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		if entry.Name() == gitDir {
			continue
		}
		childPath := path.Join(p, entry.Name())
		if entry.IsDir() {
			items = append(items, Item{Type: TypeDir, Name: entry.Name(), Path: childPath})
			continue
		}

		entryInfo, err := entry.Info()
		if err != nil {
			continue
		}
		item, err := s.fileItem(childPath, entryInfo)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	s.logger.DebugContext(ctx, "list complete", "path", p, "count", len(items))
	return items, nil
}

func (s *GitStore) fileItem(p string, info os.FileInfo) (Item, error) {
	data, err := os.ReadFile(s.fullPath(p))
	if err != nil {
		return Item{}, fmt.Errorf("read file %s: %w", p, err)
	}

	itemType := TypeFile
	if info.Mode()&os.ModeSymlink != 0 {
		itemType = TypeSymlink
	}

	return Item{
		Type:        itemType,
		Name:        path.Base(p),
		Path:        p,
		SHA:         BlobHash(data),
		Size:        uint64(info.Size()), //nolint:gosec // file sizes are never negative
		DownloadURL: (&url.URL{Scheme: "file", Path: filepath.ToSlash(s.fullPath(p))}).String(),
	}, nil
}

// Read reads a file from the working tree.
func (s *GitStore) Read(ctx context.Context, item Item) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.DebugContext(ctx, "reading file", "path", item.Path)

	data, err := os.ReadFile(s.fullPath(item.Path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("read %s: %w", item.Path, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("read file %s: %w", item.Path, err)
	}
	return data, nil
}

// Create writes a new file and commits it.
func (s *GitStore) Create(ctx context.Context, p string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.fullPath(p)); err == nil {
		return fmt.Errorf("create %s: %w", p, apperrors.ErrAlreadyExists)
	}

	return s.writeAndCommit(ctx, p, content, MessageFromContext(ctx, CreateMessage(path.Base(p))))
}

// Overwrite replaces a file if its hash still matches item.SHA.
func (s *GitStore) Overwrite(ctx context.Context, item Item, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkToken(item); err != nil {
		return err
	}

	return s.writeAndCommit(ctx, item.Path, content, MessageFromContext(ctx, OverwriteMessage(item.Name)))
}

// Delete removes a file if its hash still matches item.SHA.
func (s *GitStore) Delete(ctx context.Context, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkToken(item); err != nil {
		return err
	}

	s.logger.DebugContext(ctx, "deleting file", "path", item.Path)

	worktree, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("get worktree: %w", err)
	}

	if err := os.Remove(s.fullPath(item.Path)); err != nil {
		return fmt.Errorf("delete %s: %w", item.Path, err)
	}
	// Untracked files are not known to the index
	_, _ = worktree.Remove(item.Path)
	s.pruneEmptyDirs(path.Dir(item.Path))

	return s.commit(ctx, worktree, MessageFromContext(ctx, DeleteMessage(item.Name)))
}

// checkToken enforces optimistic concurrency. Caller must hold s.mu.
func (s *GitStore) checkToken(item Item) error {
	if item.SHA == "" {
		return fmt.Errorf("%s: %w", item.Path, apperrors.ErrTokenRequired)
	}

	data, err := os.ReadFile(s.fullPath(item.Path))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", item.Path, apperrors.ErrNotFound)
		}
		return fmt.Errorf("read file %s: %w", item.Path, err)
	}

	if current := BlobHash(data); current != item.SHA {
		return fmt.Errorf("%s is at %s, not %s: %w", item.Path, current, item.SHA, apperrors.ErrConflict)
	}
	return nil
}

// writeAndCommit writes content and commits it. Caller must hold s.mu.
func (s *GitStore) writeAndCommit(ctx context.Context, p string, content []byte, message string) error {
	s.logger.DebugContext(ctx, "writing file", "path", p, "size", len(content))

	fullPath := s.fullPath(p)
	if err := os.MkdirAll(filepath.Dir(fullPath), dirPerm); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	if err := os.WriteFile(fullPath, content, filePerm); err != nil {
		return fmt.Errorf("write file %s: %w", p, err)
	}

	worktree, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("get worktree: %w", err)
	}
	if _, err := worktree.Add(p); err != nil {
		return fmt.Errorf("git add %s: %w", p, err)
	}

	return s.commit(ctx, worktree, message)
}

func (s *GitStore) commit(ctx context.Context, worktree *git.Worktree, message string) error {
	name, email := s.remote.author()
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  name,
			Email: email,
			When:  time.Now(),
		},
		AllowEmptyCommits: false,
	})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return nil
		}
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.DebugContext(ctx, "committed", "message", message, "hash", hash.String())
	return nil
}

// pruneEmptyDirs removes empty directories from dir up to the root, as git
// does not track them.
func (s *GitStore) pruneEmptyDirs(dir string) {
	for dir != "." && dir != "/" && dir != "" {
		if err := os.Remove(s.fullPath(dir)); err != nil {
			return
		}
		dir = path.Dir(dir)
	}
}

func (s *GitStore) fullPath(p string) string {
	return filepath.Join(s.rootPath, filepath.FromSlash(p))
}

// Push pushes local commits to the remote repository.
func (s *GitStore) Push(ctx context.Context) error {
	if !s.remote.IsEnabled() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	auth, err := s.remote.GetAuth()
	if err != nil {
		return fmt.Errorf("get auth: %w", err)
	}

	s.logger.InfoContext(ctx, "pushing to remote", "url", s.remote.URL, "branch", s.remote.Branch)

	err = s.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		Auth:       auth,
	})
	if err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			s.logger.InfoContext(ctx, "nothing to push")
			return nil
		}
		return fmt.Errorf("push: %w", err)
	}

	s.logger.InfoContext(ctx, "push complete")
	return nil
}

// initializeRepository clones from the remote or opens/creates a local repository.
func (s *GitStore) initializeRepository(path string) (*git.Repository, error) {
	_, statErr := os.Stat(path)
	dirExists := statErr == nil

	if s.remote.IsEnabled() && !dirExists {
		return s.cloneFromRemote(path)
	}

	return s.openOrCreateLocalRepo(path)
}

func (s *GitStore) cloneFromRemote(path string) (*git.Repository, error) {
	s.logger.Info("cloning from remote", "url", s.remote.URL, "branch", s.remote.Branch)

	auth, err := s.remote.GetAuth()
	if err != nil {
		return nil, fmt.Errorf("get auth: %w", err)
	}

	opts := &git.CloneOptions{
		URL:          s.remote.URL,
		Auth:         auth,
		SingleBranch: true,
	}
	if s.remote.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(s.remote.Branch)
	}

	repo, err := git.PlainClone(path, false, opts)
	if err == nil {
		s.logger.Info("clone complete")
		return repo, nil
	}

	if err.Error() != msgRemoteRepoEmpty {
		return nil, fmt.Errorf("clone repository: %w", err)
	}

	s.logger.Info(msgRemoteRepoEmpty + ", initializing locally")
	return s.initNewRepo(path)
}

func (s *GitStore) openOrCreateLocalRepo(path string) (*git.Repository, error) {
	if err := os.MkdirAll(path, dirPerm); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}

	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open git repo: %w", err)
	}

	return s.initNewRepo(path)
}

func (s *GitStore) initNewRepo(path string) (*git.Repository, error) {
	if err := os.MkdirAll(path, dirPerm); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	repo, err := git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init git repo: %w", err)
	}

	if s.remote.IsEnabled() {
		_, err = repo.CreateRemote(&config.RemoteConfig{
			Name: "origin",
			URLs: []string{s.remote.URL},
		})
		if err != nil {
			return nil, fmt.Errorf("add remote origin: %w", err)
		}
	}

	return repo, nil
}

var _ Store = (*GitStore)(nil)
