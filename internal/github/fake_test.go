package github

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/coolone/sitesync/internal/store"
)

// fakeAPI is an in-memory GitHub contents API.
type fakeAPI struct {
	mu       sync.Mutex
	server   *httptest.Server
	files    map[string][]byte
	messages []string
	branches []string
	auth     []string
	requests int

	// rateLimited is the number of requests answered with 429 before serving.
	rateLimited int
	archive     []byte
	// archiveHeaderDelay holds back the archive response headers.
	archiveHeaderDelay time.Duration
	// archiveChunkDelay streams the archive in chunks with a pause after each.
	archiveChunkDelay time.Duration
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()

	api := &fakeAPI{files: make(map[string][]byte)}

	r := chi.NewRouter()
	r.Use(api.count)
	r.Get("/repos/{owner}/{repo}/contents/*", api.list)
	r.Put("/repos/{owner}/{repo}/contents/*", api.put)
	r.Delete("/repos/{owner}/{repo}/contents/*", api.delete)
	r.Get("/raw/*", api.raw)
	r.Get("/web/{owner}/{repo}/archive/refs/heads/{file}", api.serveArchive)

	api.server = httptest.NewServer(r)
	t.Cleanup(api.server.Close)

	return api
}

func (a *fakeAPI) client(opts ...ClientOption) *Client {
	base := []ClientOption{
		WithBaseURL(a.server.URL),
		WithWebURL(a.server.URL + "/web"),
		WithRateInterval(time.Millisecond),
	}
	return NewClient("owner/site", StaticToken("secret"), append(base, opts...)...)
}

func (a *fakeAPI) seed(files map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for p, content := range files {
		a.files[p] = []byte(content)
	}
}

func (a *fakeAPI) file(p string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.files[p]
	return string(data), ok
}

func (a *fakeAPI) requestCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requests
}

func (a *fakeAPI) commitMessages() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.messages...)
}

func (a *fakeAPI) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		a.requests++
		a.auth = append(a.auth, r.Header.Get("Authorization"))
		limited := a.rateLimited > 0
		if limited {
			a.rateLimited--
		}
		a.mu.Unlock()

		if limited {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *fakeAPI) item(p string) store.Item {
	name := p[strings.LastIndexByte(p, '/')+1:]
	if data, ok := a.files[p]; ok {
		return store.Item{
			Type:        store.TypeFile,
			Name:        name,
			Path:        p,
			SHA:         store.BlobHash(data),
			Size:        uint64(len(data)),
			DownloadURL: a.server.URL + "/raw/" + p,
		}
	}
	return store.Item{Type: store.TypeDir, Name: name, Path: p}
}

func (a *fakeAPI) list(w http.ResponseWriter, r *http.Request) {
	p := chi.URLParam(r, "*")

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.files[p]; ok {
		writeJSON(w, http.StatusOK, a.item(p))
		return
	}

	seen := make(map[string]bool)
	for filePath := range a.files {
		rest, ok := strings.CutPrefix(filePath, p+"/")
		if !ok {
			continue
		}
		child, _, _ := strings.Cut(rest, "/")
		seen[p+"/"+child] = true
	}
	if len(seen) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}

	paths := make([]string, 0, len(seen))
	for child := range seen {
		paths = append(paths, child)
	}
	sort.Strings(paths)

	items := make([]store.Item, 0, len(paths))
	for _, child := range paths {
		items = append(items, a.item(child))
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *fakeAPI) put(w http.ResponseWriter, r *http.Request) {
	p := chi.URLParam(r, "*")

	var req putRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	if strings.HasPrefix(p, ".git/") {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "path contains a malformed path component"})
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	current, exists := a.files[p]
	switch {
	case exists && req.SHA == "":
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": `"sha" wasn't supplied.`})
		return
	case exists && req.SHA != store.BlobHash(current):
		writeJSON(w, http.StatusConflict, map[string]string{"message": p + " does not match " + req.SHA})
		return
	}

	a.files[p] = content
	a.messages = append(a.messages, req.Message)
	a.branches = append(a.branches, req.Branch)
	item := a.item(p)
	writeJSON(w, http.StatusCreated, contentEnvelope{Content: &item})
}

func (a *fakeAPI) delete(w http.ResponseWriter, r *http.Request) {
	p := chi.URLParam(r, "*")

	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	if strings.HasPrefix(p, ".git/") {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "path contains a malformed path component"})
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	current, exists := a.files[p]
	if !exists {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	if req.SHA != store.BlobHash(current) {
		writeJSON(w, http.StatusConflict, map[string]string{"message": p + " does not match " + req.SHA})
		return
	}

	delete(a.files, p)
	a.messages = append(a.messages, req.Message)
	a.branches = append(a.branches, req.Branch)
	writeJSON(w, http.StatusOK, contentEnvelope{})
}

func (a *fakeAPI) raw(w http.ResponseWriter, r *http.Request) {
	p := chi.URLParam(r, "*")

	a.mu.Lock()
	data, ok := a.files[p]
	a.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write(data)
}

func (a *fakeAPI) serveArchive(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	data, headerDelay, chunkDelay := a.archive, a.archiveHeaderDelay, a.archiveChunkDelay
	a.mu.Unlock()

	if !pause(r, headerDelay) {
		return
	}
	if data == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)

	if chunkDelay <= 0 {
		_, _ = w.Write(data)
		return
	}

	const chunks = 4
	size := max((len(data)+chunks-1)/chunks, 1)
	flusher, _ := w.(http.Flusher)
	for start := 0; start < len(data); start += size {
		_, _ = w.Write(data[start:min(start+size, len(data))])
		if flusher != nil {
			flusher.Flush()
		}
		if !pause(r, chunkDelay) {
			return
		}
	}
}

// pause waits for d unless the client went away first.
func pause(r *http.Request, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-r.Context().Done():
		return false
	case <-time.After(d):
		return true
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
