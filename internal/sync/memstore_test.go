package sync

import (
	"context"
	"image"
	"sort"
	"strings"
	gosync "sync"

	"github.com/coolone/sitesync/internal/apperrors"
	"github.com/coolone/sitesync/internal/store"
)

// call is one recorded store call.
type call struct {
	verb    string
	path    string
	sha     string
	content []byte
}

// memStore is an in-memory store recording every call.
type memStore struct {
	mu      gosync.Mutex
	files   map[string][]byte
	calls   []call
	failing map[string]error
}

func newMemStore(files map[string]string) *memStore {
	s := &memStore{files: make(map[string][]byte), failing: make(map[string]error)}
	for p, content := range files {
		s.files[p] = []byte(content)
	}
	return s
}

func (s *memStore) record(c call) {
	s.calls = append(s.calls, c)
}

// mutations returns the recorded create, overwrite and delete calls sorted by path.
func (s *memStore) mutations() []call {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []call
	for _, c := range s.calls {
		if c.verb != "list" && c.verb != "read" {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

func (s *memStore) count(verb string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.calls {
		if c.verb == verb {
			n++
		}
	}
	return n
}

func (s *memStore) item(p string) store.Item {
	name := p[strings.LastIndexByte(p, '/')+1:]
	if data, ok := s.files[p]; ok {
		return store.Item{Type: store.TypeFile, Name: name, Path: p, SHA: store.BlobHash(data), Size: uint64(len(data))}
	}
	return store.Item{Type: store.TypeDir, Name: name, Path: p}
}

func (s *memStore) List(_ context.Context, p string) ([]store.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(call{verb: "list", path: p})

	if err := s.failing["list "+p]; err != nil {
		return nil, err
	}
	if _, ok := s.files[p]; ok {
		return []store.Item{s.item(p)}, nil
	}

	seen := make(map[string]bool)
	for f := range s.files {
		if rest, ok := strings.CutPrefix(f, p+"/"); ok {
			child, _, _ := strings.Cut(rest, "/")
			seen[p+"/"+child] = true
		}
	}
	if len(seen) == 0 {
		return nil, apperrors.ErrNotFound
	}

	paths := make([]string, 0, len(seen))
	for child := range seen {
		paths = append(paths, child)
	}
	sort.Strings(paths)

	items := make([]store.Item, 0, len(paths))
	for _, child := range paths {
		items = append(items, s.item(child))
	}
	return items, nil
}

func (s *memStore) Read(_ context.Context, item store.Item) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(call{verb: "read", path: item.Path})

	data, ok := s.files[item.Path]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return data, nil
}

func (s *memStore) Create(_ context.Context, p string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(call{verb: "create", path: p, content: content})

	if err := s.failing[p]; err != nil {
		return err
	}
	if _, ok := s.files[p]; ok {
		return apperrors.ErrAlreadyExists
	}
	s.files[p] = content
	return nil
}

func (s *memStore) Overwrite(_ context.Context, item store.Item, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(call{verb: "overwrite", path: item.Path, sha: item.SHA, content: content})

	if err := s.failing[item.Path]; err != nil {
		return err
	}
	current, ok := s.files[item.Path]
	if !ok {
		return apperrors.ErrNotFound
	}
	if store.BlobHash(current) != item.SHA {
		return apperrors.ErrConflict
	}
	s.files[item.Path] = content
	return nil
}

func (s *memStore) Delete(_ context.Context, item store.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(call{verb: "delete", path: item.Path, sha: item.SHA})

	if err := s.failing[item.Path]; err != nil {
		return err
	}
	current, ok := s.files[item.Path]
	if !ok {
		return apperrors.ErrNotFound
	}
	if store.BlobHash(current) != item.SHA {
		return apperrors.ErrConflict
	}
	delete(s.files, item.Path)
	return nil
}

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 2, 2))
}
