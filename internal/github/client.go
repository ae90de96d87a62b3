// Package github implements the content store on top of the GitHub contents API.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/coolone/sitesync/internal/apperrors"
	"github.com/coolone/sitesync/internal/store"
	"github.com/coolone/sitesync/internal/version"
)

const (
	// BaseURL is the GitHub API base URL.
	BaseURL = "https://api.github.com"
	// WebURL is the GitHub web base URL, used for raw files and archives.
	WebURL = "https://github.com"
	// DefaultBranch is the branch the site lives on.
	DefaultBranch = "master"

	mediaTypeJSON = "application/vnd.github.v3+json"
	mediaTypeRaw  = "application/vnd.github.v3.raw"

	// HTTP client configuration.
	httpTimeout = 30 * time.Second // Timeout for HTTP requests

	// Rate limiting configuration (~3 requests/second).
	rateLimitInterval = 350 * time.Millisecond

	// HTTP status codes.
	httpStatusBadRequest = 400 // First status code indicating an error

	maxRetries = 5
)

// CredentialProvider supplies the token sent with every request.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a CredentialProvider returning a fixed token.
// An empty token sends anonymous requests.
type StaticToken string

// Token implements CredentialProvider.
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// Client is a GitHub contents API client with rate limiting.
type Client struct {
	httpClient  *http.Client
	credentials CredentialProvider
	rateLimiter *rate.Limiter
	baseURL     string
	webURL      string
	repo        string
	branch      string
	parallelism int
	logger      *slog.Logger
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = l
	}
}

// WithBaseURL sets a custom API base URL (useful for testing).
func WithBaseURL(u string) ClientOption {
	return func(client *Client) {
		client.baseURL = strings.TrimRight(u, "/")
	}
}

// WithWebURL sets a custom web base URL (useful for testing).
func WithWebURL(u string) ClientOption {
	return func(client *Client) {
		client.webURL = strings.TrimRight(u, "/")
	}
}

// WithBranch sets the branch read from and written to.
func WithBranch(branch string) ClientOption {
	return func(client *Client) {
		if branch != "" {
			client.branch = branch
		}
	}
}

// WithRateInterval sets the minimum interval between two requests.
func WithRateInterval(d time.Duration) ClientOption {
	return func(client *Client) {
		if d > 0 {
			client.rateLimiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithParallelism bounds the concurrent deletes of DeleteDirectory.
func WithParallelism(n int) ClientOption {
	return func(client *Client) {
		client.parallelism = n
	}
}

// NewClient creates a client for repo ("owner/name").
func NewClient(repo string, credentials CredentialProvider, opts ...ClientOption) *Client {
	if credentials == nil {
		credentials = StaticToken("")
	}

	client := &Client{
		httpClient:  &http.Client{Timeout: httpTimeout},
		credentials: credentials,
		rateLimiter: rate.NewLimiter(rate.Every(rateLimitInterval), 1), // ~3 req/s
		baseURL:     BaseURL,
		webURL:      WebURL,
		repo:        repo,
		branch:      DefaultBranch,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Branch returns the branch the client works on.
func (c *Client) Branch() string {
	return c.branch
}

// RawBase returns the prefix of direct download URLs of the branch.
func (c *Client) RawBase() string {
	return fmt.Sprintf("%s/%s/raw/%s", c.webURL, c.repo, c.branch)
}

// contentsURL returns the contents API URL of a repository path.
func (c *Client) contentsURL(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/repos/%s/contents/%s", c.baseURL, c.repo, strings.Join(segments, "/"))
}

// do performs a JSON API request.
func (c *Client) do(ctx context.Context, method, target string, body, result any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
	}

	respBody, err := c.send(ctx, method, target, mediaTypeJSON, payload)
	if err != nil {
		return err
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// send performs an HTTP request with rate limiting and retries on 429.
//
//nolint:funlen // HTTP client with retry logic and error handling
func (c *Client) send(ctx context.Context, method, target, accept string, payload []byte) ([]byte, error) {
	token, err := c.credentials.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}

	c.logger.DebugContext(ctx, "API request", store.LogArgs(ctx, "method", method, "url", target)...)
	startTime := time.Now()

	// Retry with exponential backoff on rate limit
	backoff := time.Second

	for attempt := range maxRetries {
		// Wait for rate limiter
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Accept", accept)
		req.Header.Set("User-Agent", version.UserAgent())
		if token != "" {
			req.Header.Set("Authorization", "token "+token)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("do request: %w", err)
		}

		respBody, err := io.ReadAll(resp.Body)
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.WarnContext(ctx, "failed to close response body", "error", closeErr)
		}
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			c.logger.WarnContext(ctx, "rate limited, backing off",
				store.LogArgs(ctx, "attempt", attempt+1, "backoff", backoff)...)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
				continue
			}
		}

		if resp.StatusCode >= httpStatusBadRequest {
			return nil, apperrors.NewHTTPError(resp.StatusCode, apiMessage(respBody))
		}

		c.logger.DebugContext(ctx, "API response", store.LogArgs(ctx,
			"method", method, "url", target, "status", resp.StatusCode, "duration", time.Since(startTime))...)

		return respBody, nil
	}

	return nil, apperrors.ErrMaxRetriesExceeded
}

// apiMessage extracts the "message" field of a GitHub error body.
func apiMessage(body []byte) string {
	var errResp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Message == "" {
		return string(body)
	}
	return errResp.Message
}

// List returns the children of a directory, or the file itself.
func (c *Client) List(ctx context.Context, p string) ([]store.Item, error) {
	target := c.contentsURL(p) + "?ref=" + url.QueryEscape(c.branch)

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, target, nil, &raw); err != nil {
		return nil, fmt.Errorf("list %s: %w", p, err)
	}

	// Directories come back as an array, files as a single object
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		var items []store.Item
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode listing of %s: %w", p, err)
		}
		return items, nil
	}

	var item store.Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("decode item %s: %w", p, err)
	}
	return []store.Item{item}, nil
}

// Read downloads the raw content of a file.
func (c *Client) Read(ctx context.Context, item store.Item) ([]byte, error) {
	target := item.DownloadURL
	if target == "" {
		target = c.contentsURL(item.Path) + "?ref=" + url.QueryEscape(c.branch)
	}

	data, err := c.send(ctx, http.MethodGet, target, mediaTypeRaw, nil)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", item.Path, err)
	}
	return data, nil
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

type deleteRequest struct {
	Message string `json:"message"`
	SHA     string `json:"sha"`
	Branch  string `json:"branch,omitempty"`
}

// contentEnvelope is the response of a write.
type contentEnvelope struct {
	Content *store.Item `json:"content"`
}

// Create writes a new file. The API rejects it if the path is taken.
func (c *Client) Create(ctx context.Context, p string, content []byte) error {
	req := putRequest{
		Message: store.MessageFromContext(ctx, store.CreateMessage(lastSegment(p))),
		Content: base64.StdEncoding.EncodeToString(content),
		Branch:  c.branch,
	}
	return c.put(ctx, p, req)
}

// Overwrite replaces a file, passing item.SHA as the concurrency token.
func (c *Client) Overwrite(ctx context.Context, item store.Item, content []byte) error {
	if item.SHA == "" {
		return fmt.Errorf("overwrite %s: %w", item.Path, apperrors.ErrTokenRequired)
	}

	req := putRequest{
		Message: store.MessageFromContext(ctx, store.OverwriteMessage(item.Name)),
		Content: base64.StdEncoding.EncodeToString(content),
		SHA:     item.SHA,
		Branch:  c.branch,
	}
	return c.put(ctx, item.Path, req)
}

func (c *Client) put(ctx context.Context, p string, req putRequest) error {
	var envelope contentEnvelope
	if err := c.do(ctx, http.MethodPut, c.contentsURL(p), req, &envelope); err != nil {
		return fmt.Errorf("put %s: %w", p, err)
	}

	if envelope.Content != nil {
		c.logger.DebugContext(ctx, "file written", store.LogArgs(ctx, "path", p, "sha", envelope.Content.SHA)...)
	}
	return nil
}

// Delete removes a file, passing item.SHA as the concurrency token.
func (c *Client) Delete(ctx context.Context, item store.Item) error {
	if item.SHA == "" {
		return fmt.Errorf("delete %s: %w", item.Path, apperrors.ErrTokenRequired)
	}

	req := deleteRequest{
		Message: store.MessageFromContext(ctx, store.DeleteMessage(item.Name)),
		SHA:     item.SHA,
		Branch:  c.branch,
	}

	var envelope contentEnvelope
	if err := c.do(ctx, http.MethodDelete, c.contentsURL(item.Path), req, &envelope); err != nil {
		return fmt.Errorf("delete %s: %w", item.Path, err)
	}

	c.logger.DebugContext(ctx, "file deleted", store.LogArgs(ctx, "path", item.Path)...)
	return nil
}

// DeleteDirectory removes every file below dir, attempting all of them.
func (c *Client) DeleteDirectory(ctx context.Context, dir string) error {
	return store.DeleteDirectory(ctx, c, dir, store.DeleteOptions{
		Parallelism: c.parallelism,
		Logger:      c.logger,
	})
}

func lastSegment(p string) string {
	p = strings.TrimRight(p, "/")
	if idx := strings.LastIndexByte(p, '/'); idx >= 0 {
		return p[idx+1:]
	}
	return p
}

var _ store.Store = (*Client)(nil)
