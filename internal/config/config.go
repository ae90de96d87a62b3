// Package config loads the sitesync configuration.
//
// Values come from built-in defaults, then an optional YAML file, then
// SITESYNC_* environment variables, each layer overriding the previous one.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/coolone/sitesync/internal/apperrors"
	"github.com/coolone/sitesync/internal/page"
	"github.com/coolone/sitesync/internal/store"
)

// EnvPrefix is the prefix of configuration environment variables.
const EnvPrefix = "SITESYNC_"

// Storage modes.
const (
	StorageGitHub = "github"
	StorageGit    = "git"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config is the application configuration.
type Config struct {
	Repo         string        `koanf:"repo"`
	Branch       string        `koanf:"branch"`
	APIURL       string        `koanf:"api_url"`
	WebURL       string        `koanf:"web_url"`
	ContentRoot  string        `koanf:"content_root"`
	ResourceRoot string        `koanf:"resource_root"`
	Storage      string        `koanf:"storage"`
	GitPath      string        `koanf:"git_path"`
	GitRemote    string        `koanf:"git_remote"`
	GitUser      string        `koanf:"git_user"`
	GitEmail     string        `koanf:"git_email"`
	Parallelism  int           `koanf:"parallelism"`
	StageDir     string        `koanf:"stage_dir"`
	RateInterval time.Duration `koanf:"rate_interval"`
	HTTPTimeout  time.Duration `koanf:"http_timeout"`
	LogFormat    string        `koanf:"log_format"`
}

func defaults() map[string]any {
	return map[string]any{
		"branch":        "master",
		"api_url":       "https://api.github.com",
		"web_url":       "https://github.com",
		"content_root":  page.DefaultContentRoot,
		"resource_root": page.DefaultResourceRoot,
		"storage":       StorageGitHub,
		"parallelism":   8, //nolint:mnd // default fan-out
		"stage_dir":     defaultStageDir(),
		"rate_interval": 350 * time.Millisecond, //nolint:mnd // ~3 req/s
		"http_timeout":  30 * time.Second,       //nolint:mnd // default HTTP timeout
		"log_format":    LogFormatText,
	}
}

func defaultStageDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "sitesync", "stage")
	}
	return ".sitesync-stage"
}

// Load reads the configuration. path may be empty when there is no file.
func Load(path string) (*Config, error) {
	konfig := koanf.New(".")

	for key, value := range defaults() {
		if err := konfig.Set(key, value); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if path != "" {
		if err := konfig.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := konfig.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := konfig.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &cfg, nil
}

// envKey maps SITESYNC_API_URL to api_url.
func envKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
}

// Validate checks the settings the selected storage needs.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageGitHub:
		if c.Repo == "" {
			return apperrors.ErrRepoRequired
		}
	case StorageGit:
		if c.GitPath == "" {
			return apperrors.ErrGitPathRequired
		}
	default:
		return fmt.Errorf("%w: %q", apperrors.ErrUnknownStorage, c.Storage)
	}
	return nil
}

// ValidLogFormat reports whether LogFormat is a known format.
func (c *Config) ValidLogFormat() bool {
	switch strings.ToLower(c.LogFormat) {
	case LogFormatText, LogFormatJSON, "":
		return true
	default:
		return false
	}
}

// Layout returns the repository layout, with raw URLs on the configured branch.
func (c *Config) Layout() page.Layout {
	layout := page.Layout{
		ContentRoot:  c.ContentRoot,
		ResourceRoot: c.ResourceRoot,
	}
	if c.Repo != "" {
		layout.RawBase = fmt.Sprintf("%s/%s/raw/%s", strings.TrimRight(c.WebURL, "/"), c.Repo, c.Branch)
	}
	return layout
}

// Remote returns the git remote of the git storage, authenticated with token.
func (c *Config) Remote(token string) *store.GitRemote {
	return &store.GitRemote{
		URL:      c.GitRemote,
		Password: token,
		Branch:   c.Branch,
		User:     c.GitUser,
		Email:    c.GitEmail,
	}
}
