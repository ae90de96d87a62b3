// Package cmd provides the CLI commands for sitesync.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/coolone/sitesync/internal/apperrors"
	"github.com/coolone/sitesync/internal/config"
	"github.com/coolone/sitesync/internal/github"
	"github.com/coolone/sitesync/internal/images"
	"github.com/coolone/sitesync/internal/page"
	"github.com/coolone/sitesync/internal/stage"
	"github.com/coolone/sitesync/internal/store"
	"github.com/coolone/sitesync/internal/sync"
	"github.com/coolone/sitesync/internal/version"
)

// verboseFlag is the shared verbose flag for all commands.
var verboseFlag = &cli.BoolFlag{
	Name:  "verbose",
	Usage: "Enable verbose logging",
}

// fileFlag reads a whole page document from a file.
func fileFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "file",
		Aliases: []string{"f"},
		Usage:   "Markdown document (front matter + body) to use as the page",
	}
}

// getLogFormat returns the configured log format from SITESYNC_LOG_FORMAT.
func getLogFormat() string {
	val := strings.ToLower(os.Getenv(config.EnvPrefix + "LOG_FORMAT"))
	if val == config.LogFormatJSON {
		return config.LogFormatJSON
	}
	return config.LogFormatText
}

// setLogger installs the global logger for format, text unless format is json.
func setLogger(format string, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case config.LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// setupLogging configures the global logger based on the verbose flag and SITESYNC_LOG_FORMAT.
// The configuration file can still change the format once it is loaded.
func setupLogging(cmd *cli.Command) {
	verbose := cmd.Bool("verbose")
	setLogger(getLogFormat(), verbose)

	// Warn about invalid format after logger is set up
	envVal := strings.ToLower(os.Getenv(config.EnvPrefix + "LOG_FORMAT"))
	if envVal != "" && envVal != config.LogFormatText && envVal != config.LogFormatJSON {
		slog.Warn("Invalid SITESYNC_LOG_FORMAT value, using text format", "value", envVal)
	}

	if verbose {
		slog.Debug("Verbose logging enabled")
	}
}

func beforeCommand(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	setupLogging(cmd)
	return ctx, nil
}

// NewApp creates the CLI application.
func NewApp() *cli.Command {
	return &cli.Command{
		Name:    "sitesync",
		Usage:   "Edit the pages of a markdown site stored in a GitHub repository",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "token",
				Usage:   "GitHub API token",
				Sources: cli.EnvVars("GITHUB_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				Sources: cli.EnvVars(config.EnvPrefix + "CONFIG"),
			},
			verboseFlag,
		},
		Commands: []*cli.Command{
			listCommand(),
			showCommand(),
			newCommand(),
			editCommand(),
			deleteCommand(),
			stageCommand(),
		},
	}
}

// listCommand creates the list subcommand.
func listCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "List the pages of every content type, or of the given ones",
		ArgsUsage: "[type...]",
		Flags:     []cli.Flag{verboseFlag},
		Before:    beforeCommand,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			types := make([]page.ContentType, 0, cmd.Args().Len())
			for _, arg := range cmd.Args().Slice() {
				ct, err := page.ParseContentType(arg)
				if err != nil {
					return err
				}
				types = append(types, ct)
			}

			b, err := setupBackend(cmd)
			if err != nil {
				return err
			}

			listings, err := b.syncer.Catalog(ctx, types...)
			if err != nil {
				return fmt.Errorf("list pages: %w", err)
			}

			displayCatalog(listings)
			return nil
		},
	}
}

// showCommand creates the show subcommand.
func showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show the metadata and images of a page",
		ArgsUsage: "<type> <page>",
		Flags:     []cli.Flag{verboseFlag},
		Before:    beforeCommand,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ct, name, err := pageArgs(cmd)
			if err != nil {
				return err
			}

			b, err := setupBackend(cmd)
			if err != nil {
				return err
			}

			e, err := b.syncer.Open(ctx, ct, name)
			if err != nil {
				return fmt.Errorf("open page: %w", err)
			}

			return displayEdit(e)
		},
	}
}

// imageFlags are the flags changing the images of a page.
func imageFlags(withClear bool) []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "logo", Usage: "Image file to use as the logo"},
		&cli.StringFlag{Name: "single-image", Usage: "Image file to use as the single image"},
		&cli.StringSliceFlag{Name: "attach", Usage: "Upload an image referenced from the body, as key=path"},
	}
	if withClear {
		flags = append(flags,
			&cli.BoolFlag{Name: "no-logo", Usage: "Remove the logo"},
			&cli.BoolFlag{Name: "no-single-image", Usage: "Remove the single image"},
		)
	}
	return flags
}

// newCommand creates the new subcommand.
func newCommand() *cli.Command {
	return &cli.Command{
		Name:      "new",
		Usage:     "Create a page from the template of its content type",
		ArgsUsage: "<type> <page>",
		Flags:     append([]cli.Flag{fileFlag(), verboseFlag}, imageFlags(false)...),
		Before:    beforeCommand,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ct, name, err := pageArgs(cmd)
			if err != nil {
				return err
			}

			b, err := setupBackend(cmd)
			if err != nil {
				return err
			}

			if _, err := b.syncer.Open(ctx, ct, name); err == nil {
				return fmt.Errorf("%s/%s: %w", ct, name, apperrors.ErrPageExists)
			} else if !errors.Is(err, apperrors.ErrPageNotFound) {
				return fmt.Errorf("open page: %w", err)
			}

			e, err := b.syncer.New(ct, name)
			if err != nil {
				return err
			}

			if err := applyFlags(cmd, e); err != nil {
				return err
			}

			result, err := b.syncer.Apply(ctx, e)
			if err != nil {
				return fmt.Errorf("save page: %w", err)
			}

			return b.finish(ctx, result)
		},
	}
}

// editCommand creates the edit subcommand.
func editCommand() *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "Update a page and its images",
		ArgsUsage: "<type> <page>",
		Flags:     append([]cli.Flag{fileFlag(), verboseFlag}, imageFlags(true)...),
		Before:    beforeCommand,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ct, name, err := pageArgs(cmd)
			if err != nil {
				return err
			}

			b, err := setupBackend(cmd)
			if err != nil {
				return err
			}

			e, err := b.syncer.Open(ctx, ct, name)
			if err != nil {
				return fmt.Errorf("open page: %w", err)
			}

			if err := applyFlags(cmd, e); err != nil {
				return err
			}

			result, err := b.syncer.Apply(ctx, e)
			if err != nil {
				return fmt.Errorf("save page: %w", err)
			}

			return b.finish(ctx, result)
		},
	}
}

// deleteCommand creates the delete subcommand.
func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a page and all of its resources",
		ArgsUsage: "<type> <page>",
		Flags:     []cli.Flag{verboseFlag},
		Before:    beforeCommand,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ct, name, err := pageArgs(cmd)
			if err != nil {
				return err
			}

			b, err := setupBackend(cmd)
			if err != nil {
				return err
			}

			e, err := b.syncer.Open(ctx, ct, name)
			if err != nil {
				return fmt.Errorf("open page: %w", err)
			}

			result, err := b.syncer.DeletePage(ctx, e)
			if err != nil {
				return fmt.Errorf("delete page: %w", err)
			}

			return b.finish(ctx, result)
		},
	}
}

// stageCommand creates the stage subcommand.
func stageCommand() *cli.Command {
	return &cli.Command{
		Name:      "stage",
		Usage:     "Prepare the preview directory with the repository and a page",
		ArgsUsage: "<type> <page>",
		Flags: []cli.Flag{
			fileFlag(),
			&cli.BoolFlag{
				Name:  "reload",
				Usage: "Download the repository again",
			},
			verboseFlag,
		},
		Before: beforeCommand,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ct, name, err := pageArgs(cmd)
			if err != nil {
				return err
			}

			b, err := setupBackend(cmd)
			if err != nil {
				return err
			}

			var p *page.Page
			if file := cmd.String("file"); file != "" {
				p, err = readPageFile(file)
			} else {
				var e *sync.Edit
				e, err = b.syncer.Open(ctx, ct, name)
				if e != nil {
					p = e.Page
				}
			}
			if err != nil {
				return err
			}

			document, err := p.Bytes()
			if err != nil {
				return fmt.Errorf("serialize page: %w", err)
			}

			stager := stage.NewStager(b.cfg.StageDir, b.client,
				stage.WithLayout(b.cfg.Layout()), stage.WithLogger(slog.Default()))

			prepare := stager.Prepare
			if cmd.Bool("reload") {
				prepare = stager.Reload
			}

			target, err := prepare(ctx, ct, name, document, newProgressLogger())
			if err != nil {
				return fmt.Errorf("stage page: %w", err)
			}

			displayStaged(stager.Dir(), target)
			return nil
		},
	}
}

// pageArgs reads the <type> <page> arguments.
func pageArgs(cmd *cli.Command) (page.ContentType, string, error) {
	ct, err := page.ParseContentType(cmd.Args().Get(0))
	if err != nil {
		return "", "", err
	}

	name := cmd.Args().Get(1)
	if name == "" {
		return "", "", apperrors.ErrPageNameRequired
	}
	return ct, page.Name(name), nil
}

// readPageFile parses a page document from disk.
func readPageFile(file string) (*page.Page, error) {
	data, err := os.ReadFile(file) //nolint:gosec // path is provided by the user
	if err != nil {
		return nil, fmt.Errorf("read page file: %w", err)
	}
	p, err := page.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	return p, nil
}

// applyFlags applies the page file and image flags to an edit.
func applyFlags(cmd *cli.Command, e *sync.Edit) error {
	if file := cmd.String("file"); file != "" {
		p, err := readPageFile(file)
		if err != nil {
			return err
		}

		// Slots are driven by the image flags, not by the document
		meta := p.Metadata
		meta.Logo, meta.SingleImage = e.Page.Metadata.Logo, e.Page.Metadata.SingleImage
		if _, ok := meta.ContentType(); !ok {
			meta.SetKind(e.Type)
		}
		e.Page.Metadata = meta
		e.SetBody(p.Content)
	}

	slots := []struct {
		slot, setFlag, clearFlag string
	}{
		{slot: page.SlotLogo, setFlag: "logo", clearFlag: "no-logo"},
		{slot: page.SlotSingleImage, setFlag: "single-image", clearFlag: "no-single-image"},
	}
	for _, s := range slots {
		if file := cmd.String(s.setFlag); file != "" {
			a, err := images.Load(file)
			if err != nil {
				return err
			}
			e.SetSlot(s.slot, &a)
		} else if cmd.Bool(s.clearFlag) {
			e.SetSlot(s.slot, nil)
		}
	}

	for _, value := range cmd.StringSlice("attach") {
		key, file, ok := strings.Cut(value, "=")
		if !ok || key == "" || file == "" {
			return fmt.Errorf("%w: %q", apperrors.ErrInvalidAttachFlag, value)
		}
		a, err := images.Load(file)
		if err != nil {
			return err
		}
		e.Attach(key, a)
	}

	return nil
}

// backend bundles the store and helpers selected by the configuration.
type backend struct {
	cfg    *config.Config
	client *github.Client
	git    *store.GitStore
	syncer *sync.Syncer
}

// setupBackend loads the configuration and builds the selected store.
func setupBackend(cmd *cli.Command) (*backend, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ValidLogFormat() {
		setLogger(cfg.LogFormat, cmd.Bool("verbose"))
	} else {
		setLogger(config.LogFormatText, cmd.Bool("verbose"))
		slog.Warn("Invalid log_format value, using text format", "value", cfg.LogFormat)
	}

	token := cmd.String("token")
	logger := slog.Default()

	client := github.NewClient(cfg.Repo, github.StaticToken(token),
		github.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		github.WithBaseURL(cfg.APIURL),
		github.WithWebURL(cfg.WebURL),
		github.WithBranch(cfg.Branch),
		github.WithRateInterval(cfg.RateInterval),
		github.WithParallelism(cfg.Parallelism),
		github.WithLogger(logger),
	)

	b := &backend{cfg: cfg, client: client}

	var st store.Store = client
	if cfg.Storage == config.StorageGit {
		b.git, err = store.NewGitStore(cfg.GitPath,
			store.WithRemote(cfg.Remote(token)),
			store.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("create git store: %w", err)
		}
		st = b.git
		slog.Info("storage mode", "mode", config.StorageGit, "dir", cfg.GitPath, "remote", cfg.GitRemote)
	} else {
		slog.Debug("storage mode", "mode", config.StorageGitHub, "repo", cfg.Repo, "branch", cfg.Branch)
	}

	b.syncer = sync.NewSyncer(st,
		sync.WithLayout(cfg.Layout()),
		sync.WithParallelism(cfg.Parallelism),
		sync.WithLogger(logger))

	return b, nil
}

// finish prints a sync result, pushes git commits and fails on any failure.
func (b *backend) finish(ctx context.Context, result *sync.Result) error {
	displayResult(result)

	if b.git != nil && len(result.Succeeded) > 0 {
		if err := b.git.Push(ctx); err != nil {
			return fmt.Errorf("push: %w", err)
		}
	}

	return result.Err()
}
