package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"

	"catchphish/internal/config"
	"catchphish/internal/db"
	"catchphish/internal/document"
	"catchphish/internal/email"
	"catchphish/internal/feed"
	"catchphish/internal/jobs"
	"catchphish/internal/metrics"
	"catchphish/internal/pipeline"
	"catchphish/internal/risk"
	"catchphish/internal/screenshot"
	"catchphish/internal/server"
	"catchphish/internal/signals"
	"catchphish/internal/storage"
	"catchphish/internal/storage/redisset"
	"catchphish/internal/storage/sqlite"
	"catchphish/internal/typosquat"
)

// durableStore is a report store that can also hold the reported set.
type durableStore interface {
	storage.ReportStore
	storage.ReportedSet
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	yamlCfg, err := config.LoadYAMLConfig()
	if err != nil {
		log.Fatalf("Failed to load config file: %v", err)
	}

	level := slog.LevelInfo
	if cfg.IsDev() {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Report store
	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.StorageDriver, err)
	}
	defer store.Close()
	metrics.Init(store)

	// Reported set and shared HTTP storage
	var (
		reportedSet func(string) storage.ReportedSet
		httpStorage fiber.Storage
	)
	switch cfg.ReportedSetBackend {
	case config.ReportedSetDatabase:
		reportedSet = func(string) storage.ReportedSet { return store }
	case config.ReportedSetRedis:
		set, rdb := redisset.Dial(cfg.RedisURL)
		defer rdb.Close()
		reportedSet = func(string) storage.ReportedSet { return set }
		httpStorage = rdb
	default:
		log.Println("Reported candidates are kept in memory; restarting will re-report known typosquats")
	}
	if httpStorage == nil && cfg.RedisURL != "" {
		_, rdb := redisset.Dial(cfg.RedisURL)
		defer rdb.Close()
		httpStorage = rdb
	}

	// Threat feeds
	var sources []feed.Source
	if cfg.FeedURL != "" {
		sources = append(sources, feed.NewHTTPSource("primary", cfg.FeedURL, cfg.FeedFormat, nil))
	}
	for _, f := range yamlCfg.Feeds {
		sources = append(sources, feed.NewHTTPSource(f.Name, f.URL, f.Format, nil))
	}

	allowlist := make([]string, 0, len(yamlCfg.Brands)+len(yamlCfg.Monitors))
	for _, official := range yamlCfg.Brands {
		allowlist = append(allowlist, official)
	}
	for _, m := range yamlCfg.Monitors {
		allowlist = append(allowlist, m.Domain)
	}
	feedStore := feed.NewStore(cfg.FeedCacheDir, allowlist)
	if err := feedStore.LoadFromDisk(); err != nil {
		log.Printf("Warning: failed to load feed cache: %v", err)
	}

	feedCtx, stopFeeds := context.WithCancel(context.Background())
	feedDone := make(chan struct{})
	if len(sources) > 0 {
		syncer := feed.NewSyncer(feedStore, sources, cfg.FeedSyncInterval, logger.With("component", "feed"))
		go func() {
			defer close(feedDone)
			syncer.Run(feedCtx)
		}()
		log.Printf("Threat feed sync started (%d sources, every %s)", len(sources), cfg.FeedSyncInterval)
	} else {
		close(feedDone)
		log.Println("No threat feeds configured; feed signal and monitors will find nothing")
	}

	// Signal providers
	scale, err := signals.ParseScoreScale(cfg.LLMScoreScale)
	if err != nil {
		log.Fatalf("Invalid LLM_SCORE_SCALE: %v", err)
	}
	visionScale, err := signals.ParseScoreScale(cfg.VisionScoreScale)
	if err != nil {
		log.Fatalf("Invalid VISION_SCORE_SCALE: %v", err)
	}
	capturer := screenshot.New(cfg.ScreenshotEnabled,
		screenshot.WithExecPath(cfg.ChromePath),
		screenshot.WithTimeout(cfg.ReportTimeout/2),
	)
	if cfg.VisionURL != "" && !cfg.ScreenshotEnabled {
		log.Println("VISION_URL is set but screenshots are disabled; the visual signal will be unavailable")
	}
	dnsProvider := signals.NewDNSProvider(cfg.DNSServer)
	providers := []signals.Provider{
		signals.NewReputationProvider(cfg.VirusTotalURL, cfg.VirusTotalAPIKey, nil),
		signals.NewFeedProvider(feedStore),
		signals.NewLexicalProvider(yamlCfg.Brands, yamlCfg.SuspiciousTLDs),
		signals.NewClassifierProvider(cfg.ClassifierURL, nil),
		signals.NewContentProvider(cfg.LLMURL, cfg.LLMAPIKey, scale, nil),
		signals.NewRegistrationProvider(cfg.RDAPURL, nil),
		dnsProvider,
		signals.NewVisualProvider(cfg.VisionURL, cfg.VisionAPIKey, visionScale, capturer, cfg.VisionTimeout, nil),
	}

	// Reporting
	renderer, err := document.NewRenderer(cfg.SiteTitle)
	if err != nil {
		log.Fatalf("Failed to load report templates: %v", err)
	}
	notifier := email.NewNotifier(cfg)
	if !notifier.IsEnabled() {
		log.Println("SMTP is not configured; reports will fail at the delivery stage")
	}

	p := pipeline.New(pipeline.Options{
		Providers:     providers,
		Aggregator:    risk.NewAggregator(yamlCfg.Policy),
		SignalTimeout: cfg.SignalTimeout,
		Renderer:      renderer,
		Capturer:      capturer,
		Dispatcher:    notifier,
		Store:         store,
		Logger:        logger.With("component", "pipeline"),
	})

	// Typosquat detection
	matcher := typosquat.NewMatcher(typosquat.DefaultMinSimilarity)
	searcher := typosquat.NewSearcher(matcher, dnsProvider, feedStore)

	registry := jobs.NewRegistry(jobs.MonitorDeps{
		Source:        feed.NewMultiSource(sources...),
		Matcher:       matcher,
		Analyzer:      p,
		ReportedSet:   reportedSet,
		ReportTimeout: cfg.ReportTimeout,
		Logger:        logger.With("component", "monitor"),
	}, cfg.MonitorDefaultInterval, cfg.MonitorMinInterval)

	for _, m := range yamlCfg.Monitors {
		interval, err := m.IntervalOr(cfg.MonitorDefaultInterval)
		if err != nil {
			log.Fatalf("Invalid monitor configuration: %v", err)
		}
		if _, err := registry.Start(m.Domain, interval, ""); err != nil {
			log.Fatalf("Failed to start monitor for %s: %v", m.Domain, err)
		}
		log.Printf("Monitoring %s every %s", m.Domain, interval)
	}

	// HTTP
	srv := server.New(cfg, httpStorage)
	if err := srv.RegisterRoutes(ctx, server.Deps{
		Analyzer:  p,
		Store:     store,
		Registry:  registry,
		Searcher:  searcher,
		Feed:      feedStore,
		Providers: p.Providers,
		Logger:    logger.With("component", "api"),
	}); err != nil {
		log.Fatalf("Failed to register routes: %v", err)
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Printf("Server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	if err := srv.Shutdown(); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ReportTimeout+10*time.Second)
	defer cancel()
	if err := registry.Shutdown(shutdownCtx); err != nil {
		log.Printf("Monitors did not stop in time: %v", err)
	}

	stopFeeds()
	select {
	case <-feedDone:
	case <-shutdownCtx.Done():
	}

	log.Println("Server exited")
}

// openStore connects the configured report store, running migrations for
// postgres.
func openStore(ctx context.Context, cfg *config.Config) (durableStore, error) {
	switch cfg.StorageDriver {
	case config.StorageSQLite:
		backend, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Printf("Using sqlite store at %s", cfg.SQLitePath)
		return backend, nil
	default:
		database, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			database.Close()
			return nil, err
		}
		log.Println("Migrations completed successfully")
		return database, nil
	}
}
