// Package app wires configuration into the concrete pipeline: embedder,
// cache, ledger, router, orchestrator and the optional Postgres run history
// and NSQ worker plumbing.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"docpipe/features/run"
	"docpipe/internal/adapter/gemini"
	wstore "docpipe/internal/adapter/weaviate"
	"docpipe/internal/config"
	"docpipe/internal/crawl"
	"docpipe/internal/embcache"
	"docpipe/internal/ingest"
	"docpipe/internal/ledger"
	"docpipe/internal/router"
	"docpipe/internal/vector"
	"docpipe/internal/worker"
)

// Dependencies holds everything a command needs after Bootstrap. Store, DB
// and NSQProducer stay nil when the corresponding subsystem is disabled by
// configuration.
type Dependencies struct {
	Config       *config.Config
	Cache        *embcache.Cache
	Embedder     *gemini.Embedder
	Ledger       *ledger.Ledger
	Markers      *ledger.Markers
	Store        *wstore.Store
	Orchestrator *ingest.Orchestrator
	Crawler      *crawl.Crawler
	Runner       *Runner
	Runs         *run.Service
	DB           *sql.DB
	NSQProducer  *nsq.Producer

	schema   vector.SchemaClient
	consumer *nsq.Consumer
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second

	embedder, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("embedder error: %w", err)
	}

	localOnly := cfg.UploadMode == config.ModeLocalOnly

	var (
		store  *wstore.Store
		schema vector.SchemaClient
	)
	if !localOnly {
		wCfg := weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme}
		wClient, err := weaviate.NewClient(wCfg)
		if err != nil {
			return nil, fmt.Errorf("weaviate client error: %w", err)
		}
		schema = vector.NewWeaviateClientAdapter(wClient)
		if err := EnsureClassWithRetry(ctx, schema, vector.BaseClassName, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
			return nil, fmt.Errorf("weaviate schema error: %w", err)
		}
		store = wstore.NewStore(wClient)
	}

	cacheOpts := embcache.Options{
		Dir:               cfg.CacheDir,
		Dimension:         cfg.EmbeddingDimension,
		AutoSaveThreshold: cfg.AutoSaveThreshold,
		SaveInterval:      time.Duration(cfg.SaveIntervalSeconds) * time.Second,
	}
	var uploader embcache.Uploader
	if store != nil {
		uploader = store
	}
	cache, err := embcache.New(cacheOpts, embedder, uploader)
	if err != nil {
		return nil, fmt.Errorf("embedding cache error: %w", err)
	}

	lg, err := ledger.New(cfg.LedgerDir)
	if err != nil {
		return nil, fmt.Errorf("fingerprint ledger error: %w", err)
	}
	markers, err := ledger.NewMarkers(cfg.LedgerDir)
	if err != nil {
		return nil, fmt.Errorf("chunk marker store error: %w", err)
	}

	policy := router.Policy{
		Attempts:       cfg.RetryAttempts,
		InitialBackoff: time.Duration(cfg.RetryBackoffMillis) * time.Millisecond,
		Multiplier:     2.0,
		MaxElapsed:     time.Duration(cfg.StoreTimeoutSeconds) * time.Second,
	}
	var remote router.Remote
	var deleter ingest.RemoteDeleter
	if store != nil {
		remote = store
		deleter = store
	}
	rtr := router.New(cache, remote, localOnly, policy, wstore.IsTransient)

	orch := ingest.NewOrchestrator(lg, markers, rtr, deleter, cache, cfg.ChunkMaxTokens)

	crawler := crawl.New(
		crawl.WithTimeout(time.Duration(cfg.CrawlTimeoutSeconds)*time.Second),
		crawl.WithExclusions(cfg.CrawlExclusions),
	)

	deps := &Dependencies{
		Config:       cfg,
		Cache:        cache,
		Embedder:     embedder,
		Ledger:       lg,
		Markers:      markers,
		Store:        store,
		Orchestrator: orch,
		Crawler:      crawler,
		schema:       schema,
	}

	if cfg.RunHistoryEnabled() {
		db, err := openRunHistory(cfg, retryDelay)
		if err != nil {
			return nil, err
		}
		deps.DB = db
		deps.Runs = run.NewService(run.NewPostgresRepo(db))
	} else {
		deps.Runs = run.NewService(nil)
	}

	deps.Runner = NewRunner(orch, crawler, schema, deps.Runs)

	if cfg.EnableWorker {
		producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
		if err != nil {
			return nil, fmt.Errorf("nsq producer error: %w", err)
		}
		deps.NSQProducer = producer
		createTopics(cfg.NSQDHTTP)
	}

	return deps, nil
}

// StartWorker subscribes to the ingest request topic and serves requests
// until the consumer is stopped via Close.
func (d *Dependencies) StartWorker() error {
	if d.NSQProducer == nil {
		return fmt.Errorf("worker mode disabled; set ENABLE_WORKER=true")
	}
	handler := worker.NewRequestConsumer(d.Runner, d.NSQProducer, 0)

	consumer, err := nsq.NewConsumer(config.TopicIngestRequest, "docpipe", nsq.NewConfig())
	if err != nil {
		return fmt.Errorf("nsq consumer error: %w", err)
	}
	consumer.AddHandler(handler)
	if err := consumer.ConnectToNSQLookupd(d.Config.NSQLookupd); err != nil {
		return fmt.Errorf("nsq lookupd connect error: %w", err)
	}
	d.consumer = consumer
	slog.Info("ingest request consumer connected", "topic", config.TopicIngestRequest)
	return nil
}

// Close flushes the cache snapshot and releases external connections.
func (d *Dependencies) Close() {
	if d.consumer != nil {
		d.consumer.Stop()
		<-d.consumer.StopChan
	}
	if d.NSQProducer != nil {
		d.NSQProducer.Stop()
	}
	if d.Cache != nil {
		if err := d.Cache.Close(); err != nil {
			slog.Error("failed to close embedding cache", "error", err)
		}
	}
	if d.Embedder != nil {
		if err := d.Embedder.Close(); err != nil {
			slog.Warn("failed to close embedder", "error", err)
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			slog.Warn("failed to close db", "error", err)
		}
	}
}

func openRunHistory(cfg *config.Config, retryDelay time.Duration) (*sql.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1)
		time.Sleep(retryDelay)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, fmt.Errorf("migration up error: %w", err)
	}
	return db, nil
}

// EnsureClassWithRetry keeps retrying class creation so the pipeline survives
// a vector store that is still starting up.
func EnsureClassWithRetry(ctx context.Context, client vector.SchemaClient, className string, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = vector.EnsureClass(ctx, client, className); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return err
}

func createTopics(nsqdHTTP string) {
	create := func(topic string) {
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
		resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}

	go func() {
		time.Sleep(2 * time.Second)
		create(config.TopicIngestRequest)
		create(config.TopicIngestResult)
	}()
}
