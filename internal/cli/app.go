package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/guiyumin/clipget/internal/core/config"
	"github.com/guiyumin/clipget/internal/core/downloader"
	"github.com/guiyumin/clipget/internal/core/extractor"
	"github.com/guiyumin/clipget/internal/core/i18n"
	"github.com/guiyumin/clipget/internal/core/manager"
	"github.com/guiyumin/clipget/internal/core/notify"
	"github.com/guiyumin/clipget/internal/core/store"
	"github.com/guiyumin/clipget/internal/core/webdav"
)

// App is the wired pipeline shared by the CLI commands and the server.
type App struct {
	Config   *config.Config
	T        *i18n.Translations
	Resolver *extractor.Resolver
	Manager  *manager.Manager

	closeStore func() error
}

// AppOptions overrides parts of the config for one run.
type AppOptions struct {
	Notifier      notify.Notifier // nil selects the configured one
	OutputDir     string          // overrides the file sink directory
	Visible       bool            // show the browser window
	MaxConcurrent int
}

// NewApp builds the resolver, record store, sink and download manager
// described by cfg.
func NewApp(ctx context.Context, cfg *config.Config, opts AppOptions) (*App, error) {
	if err := cfg.OpenSecrets(config.Passphrase()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	resolver, err := newResolver(cfg, opts.Visible)
	if err != nil {
		return nil, err
	}

	st, closeStore, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	outputDir := cfg.OutputDir
	if opts.OutputDir != "" {
		outputDir = opts.OutputDir
	}
	sink, err := openSink(cfg.Storage, outputDir)
	if err != nil {
		closeStore()
		return nil, err
	}

	n := opts.Notifier
	if n == nil {
		n = newNotifier(cfg.Notifications, os.Stderr)
	}

	limit := opts.MaxConcurrent
	if limit <= 0 {
		limit = cfg.Server.MaxConcurrent
	}

	return &App{
		Config:   cfg,
		T:        i18n.GetTranslations(cfg.Language),
		Resolver: resolver,
		Manager: manager.New(st, downloader.New(), n,
			manager.WithMaxConcurrent(limit),
			manager.WithSink(sink),
			manager.WithSlugNames(cfg.Storage.SlugNames),
		),
		closeStore: closeStore,
	}, nil
}

// Close releases the record store.
func (a *App) Close() error {
	if a.closeStore == nil {
		return nil
	}
	return a.closeStore()
}

func newResolver(cfg *config.Config, visible bool) (*extractor.Resolver, error) {
	plans, err := cfg.Plans()
	if err != nil {
		return nil, err
	}

	var renderer extractor.Renderer
	if !cfg.Browser.Disabled {
		rr := &extractor.RodRenderer{
			Visible: visible || cfg.Browser.Visible,
			Bin:     cfg.Browser.Bin,
			Settle:  cfg.Resolver.SettleDelay,
		}
		if dir, err := config.ConfigDir(); err == nil {
			rr.UserDataDir = filepath.Join(dir, "browser")
		}
		renderer = rr
	}

	opts := []extractor.Option{extractor.WithRenderTimeout(cfg.Resolver.RenderTimeout)}
	for p, names := range plans {
		opts = append(opts, extractor.WithPlan(p, names...))
	}
	return extractor.New(extractor.NewHTTPFetcher(cfg.Resolver.FetchTimeout), renderer, opts...)
}

func openStore(ctx context.Context, cfg config.StorageConfig) (store.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Records {
	case "memory":
		return store.NewMemoryStore(), noop, nil
	case "postgres":
		dsn := cfg.PostgresDSN
		if dsn == "" {
			dsn = store.PostgresDSN()
		}
		pg, err := store.OpenPostgresStore(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres record store: %w", err)
		}
		return pg, pg.Close, nil
	default:
		path := cfg.RecordsPath
		if path == "" {
			path = config.DefaultRecordsPath()
		}
		js, err := store.OpenJSONStore(path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening record store %s: %w", path, err)
		}
		return js, noop, nil
	}
}

func openSink(cfg config.StorageConfig, outputDir string) (downloader.Sink, error) {
	switch cfg.Sink {
	case "webdav":
		client, err := webdav.NewClient(cfg.WebDAV.URL, cfg.WebDAV.Username, cfg.WebDAV.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to create WebDAV client: %w", err)
		}
		return &downloader.WebDAVSink{Client: client}, nil
	case "s3":
		return downloader.NewS3Sink(downloader.S3Options{
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
	default:
		if outputDir == "" {
			outputDir = config.DefaultDownloadDir()
		}
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
		return &downloader.FileSink{Dir: outputDir}, nil
	}
}

func newNotifier(kind string, out io.Writer) notify.Notifier {
	switch kind {
	case "log":
		return notify.Log{}
	case "none":
		return notify.Nop{}
	default:
		return notify.NewConsole(out)
	}
}
