package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"jimshazmatremoval.com.au/auburn-web/internal/archive"
	"jimshazmatremoval.com.au/auburn-web/internal/cache"
	"jimshazmatremoval.com.au/auburn-web/internal/config"
	"jimshazmatremoval.com.au/auburn-web/internal/content"
	"jimshazmatremoval.com.au/auburn-web/internal/loader"
	mw "jimshazmatremoval.com.au/auburn-web/internal/middleware"
	"jimshazmatremoval.com.au/auburn-web/internal/observability"
	"jimshazmatremoval.com.au/auburn-web/internal/quote"
	"jimshazmatremoval.com.au/auburn-web/internal/site"
)

const requestTimeout = 30 * time.Second

// app holds the wired components behind the HTTP router.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	site     fs.FS
	manifest site.Manifest
	pages    *pageBuilder
	quote    *quote.Handler
	metrics  *observability.Metrics
	closers  []io.Closer
}

type appOptions struct {
	site      fs.FS
	transport quote.Transport
	store     cache.Store
	archiver  quote.Archiver
	clock     func() time.Time
}

type appOption func(*appOptions)

// withSiteFS replaces the on-disk site root.
func withSiteFS(fsys fs.FS) appOption { return func(o *appOptions) { o.site = fsys } }

// withTransport replaces the configured mail transport.
func withTransport(t quote.Transport) appOption { return func(o *appOptions) { o.transport = t } }

// withCacheStore replaces the configured fragment cache.
func withCacheStore(s cache.Store) appOption { return func(o *appOptions) { o.store = s } }

// withArchiver replaces the cloud archive sinks.
func withArchiver(a quote.Archiver) appOption { return func(o *appOptions) { o.archiver = a } }

// withClock fixes the relay clock.
func withClock(now func() time.Time) appOption { return func(o *appOptions) { o.clock = now } }

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...appOption) (*app, error) {
	o := appOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &app{cfg: cfg, logger: logger, site: o.site}
	if a.site == nil {
		a.site = os.DirFS(cfg.Site.Root)
	}

	manifest, err := site.Load(cfg.Site.Manifest)
	if err != nil {
		return nil, err
	}
	a.manifest = manifest

	pages, err := newPageBuilder(ctx, a.site, manifest, cfg.Site, cfg.Cache, o.store, a.track)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.pages = pages

	loc, err := time.LoadLocation(cfg.Mail.TimeZone)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load mail time zone: %w", err)
	}
	renderer, err := quote.NewRenderer(quote.DefaultCompany(), loc)
	if err != nil {
		a.Close()
		return nil, err
	}
	transport := o.transport
	if transport == nil {
		transport, err = quote.NewTransport(cfg.Mail, logger.Named("mail"))
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	archiver := o.archiver
	if archiver == nil {
		archiver, err = a.newArchiver(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	relay, err := quote.NewRelay(quote.RelayDeps{
		Transport: transport,
		Renderer:  renderer,
		Mail:      cfg.Mail,
		Archiver:  archiver,
		Logger:    logger.Named("quote"),
		Clock:     o.clock,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.quote = quote.NewHandler(relay, renderer, manifest.Pages, cfg.Mail.MaxUploadBytes)
	a.metrics = observability.NewMetrics(cfg.Observability.MetricsNamespace)
	return a, nil
}

// newPageBuilder wires the fragment source chain, fetcher, assembler and content renderer.
func newPageBuilder(ctx context.Context, siteFS fs.FS, manifest site.Manifest, siteCfg config.SiteConfig, cacheCfg config.CacheConfig, store cache.Store, track func(io.Closer)) (*pageBuilder, error) {
	var source loader.Source = loader.NewFSSource(siteFS)
	if siteCfg.FragmentOrigin != "" {
		httpSource, err := loader.NewHTTPSource(siteCfg.FragmentOrigin, siteCfg.FragmentTimeout)
		if err != nil {
			return nil, err
		}
		source = httpSource
	}
	if cacheCfg.Enabled {
		if store == nil {
			var err error
			store, err = newCacheStore(ctx, cacheCfg)
			if err != nil {
				return nil, err
			}
			track(store)
		}
		source = loader.NewCachedSource(source, store, cacheCfg.TTL)
	}
	fetcher, err := loader.NewFetcher(source)
	if err != nil {
		return nil, err
	}
	mounts := content.Mounts{}
	if f, ok := manifest.Fragment(site.FragmentHeader); ok {
		mounts.Header = f.Mount
	}
	if f, ok := manifest.Fragment(site.FragmentFooter); ok {
		mounts.Footer = f.Mount
	}
	if f, ok := manifest.Fragment(site.FragmentSidebar); ok {
		mounts.Sidebar = f.Mount
	}
	renderer, err := content.NewRenderer(mounts)
	if err != nil {
		return nil, err
	}
	return &pageBuilder{
		site:      siteFS,
		content:   renderer,
		assembler: loader.NewAssembler(fetcher, manifest),
		manifest:  manifest,
	}, nil
}

func newCacheStore(ctx context.Context, cfg config.CacheConfig) (cache.Store, error) {
	if cfg.RedisURL == "" {
		return cache.NewMemory(), nil
	}
	return cache.NewRedis(ctx, cfg.RedisURL)
}

// newArchiver connects the configured cloud sinks. It returns nil when archiving is disabled.
func (a *app) newArchiver(ctx context.Context) (quote.Archiver, error) {
	cfg := a.cfg.Archive
	if cfg.ProjectID == "" {
		return nil, nil
	}
	opts := []archive.Option{archive.WithLogger(a.logger.Named("archive"))}

	if cfg.Collection != "" {
		client, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("firestore client: %w", err)
		}
		a.track(client)
		store, err := archive.NewFirestoreStore(client, cfg.Collection)
		if err != nil {
			return nil, err
		}
		opts = append(opts, archive.WithRecordStore(store))
	}
	if cfg.Bucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage client: %w", err)
		}
		a.track(client)
		store, err := archive.NewBucketStore(client, cfg.Bucket)
		if err != nil {
			return nil, err
		}
		opts = append(opts, archive.WithBlobStore(store))
	}
	if cfg.Topic != "" {
		client, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client: %w", err)
		}
		topic := client.Topic(cfg.Topic)
		a.track(closerFunc(func() error {
			topic.Stop()
			return client.Close()
		}))
		publisher, err := archive.NewPubSubPublisher(topic)
		if err != nil {
			return nil, err
		}
		opts = append(opts, archive.WithPublisher(publisher))
	}
	return archive.New(opts...), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func (a *app) track(c io.Closer) { a.closers = append(a.closers, c) }

// Close releases clients in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// router builds the HTTP surface.
func (a *app) router() http.Handler {
	projectID := a.cfg.Observability.ProjectID
	httpLogger := a.logger.Named("http")

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	// RealIP trusts X-Forwarded-For; deploy behind a proxy that sets it.
	r.Use(chimw.RealIP)
	r.Use(observability.InjectLoggerMiddleware(httpLogger))
	r.Use(observability.TraceMiddleware(projectID))
	r.Use(observability.RequestLoggerMiddleware())
	r.Use(observability.RecoveryMiddleware(httpLogger))
	r.Use(a.metrics.Middleware)
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())

	if assets, err := fs.Sub(a.site, "assets"); err == nil {
		r.Handle("/assets/*", http.StripPrefix("/assets", mw.AssetsWithCache(assets, mw.CacheAssets)))
	}

	// Raw fragments stay reachable for pages still loading them client side.
	if components, err := fs.Sub(a.site, "components"); err == nil {
		r.Group(func(r chi.Router) {
			if len(a.cfg.Site.CORSOrigins) > 0 {
				r.Use(cors.Handler(cors.Options{
					AllowedOrigins: a.cfg.Site.CORSOrigins,
					AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
					MaxAge:         300,
				}))
			}
			r.Handle("/components/*", http.StripPrefix("/components", mw.AssetsWithCache(components, mw.CacheFragments)))
		})
	}

	r.Handle("/submit-form", a.quote)
	r.Handle("/submit-form.php", a.quote)

	r.Get("/*", a.pages.ServeHTTP)
	r.Head("/*", a.pages.ServeHTTP)
	return r
}
