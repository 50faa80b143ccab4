// Package server assembles the harvester's long-lived services and runs
// them: the worker pool, the HTTP API and every backend they depend on.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/orefield/specharvest/internal/api"
	"github.com/orefield/specharvest/internal/clock/system"
	"github.com/orefield/specharvest/internal/config"
	"github.com/orefield/specharvest/internal/extract"
	collyfetcher "github.com/orefield/specharvest/internal/fetcher/colly"
	headlessfetcher "github.com/orefield/specharvest/internal/fetcher/headless"
	"github.com/orefield/specharvest/internal/hash/sha256"
	"github.com/orefield/specharvest/internal/headless/detector"
	"github.com/orefield/specharvest/internal/id/uuid"
	"github.com/orefield/specharvest/internal/logging"
	"github.com/orefield/specharvest/internal/metrics"
	"github.com/orefield/specharvest/internal/pipeline"
	memorypublisher "github.com/orefield/specharvest/internal/publisher/memory"
	gcppublisher "github.com/orefield/specharvest/internal/publisher/pubsub"
	"github.com/orefield/specharvest/internal/qa"
	queueMemory "github.com/orefield/specharvest/internal/queue/memory"
	queuePubsub "github.com/orefield/specharvest/internal/queue/pubsub"
	"github.com/orefield/specharvest/internal/ratelimit"
	"github.com/orefield/specharvest/internal/reconcile"
	"github.com/orefield/specharvest/internal/score"
	"github.com/orefield/specharvest/internal/search"
	"github.com/orefield/specharvest/internal/specs"
	gcsstorage "github.com/orefield/specharvest/internal/storage/gcs"
	localstorage "github.com/orefield/specharvest/internal/storage/local"
	memoryStorage "github.com/orefield/specharvest/internal/storage/memory"
	pgstore "github.com/orefield/specharvest/internal/storage/postgres"
	"github.com/orefield/specharvest/internal/urlsafe"
)

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	apiServer *api.Server
	dispatch  *pipeline.Dispatcher

	queue     specs.Queue
	specStore specs.SpecStore
	runStore  specs.RunStore

	memQueue        *queueMemory.Queue
	pubsubQueue     *queuePubsub.Queue
	pubsubPublisher *gcppublisher.Publisher
	gcsClient       *storage.Client
	pgPool          *pgxpool.Pool
	headless        *headlessfetcher.Fetcher
}

// Build creates the application's dependencies from config.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.Int("workers", cfg.Harvest.Workers),
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	blobStore, err := app.setupBlobStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := app.setupStores(ctx); err != nil {
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	if err := app.setupQueue(ctx); err != nil {
		return nil, err
	}

	var searchClient specs.SearchClient
	if cfg.Search.Endpoint != "" {
		searchClient = search.New(search.Config{
			Endpoint:   cfg.Search.Endpoint,
			APIKey:     cfg.Search.APIKey,
			MaxResults: cfg.Search.MaxResults,
			Timeout:    cfg.FetchTimeout(),
			Blocked:    cfg.Search.BlockedDomains,
		}, logger.Named("search"))
	} else {
		logger.Warn("no search endpoint configured; harvests rely on seed URLs")
	}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.RateLimit.DefaultRPS,
		DefaultBurst: cfg.RateLimit.DefaultBurst,
	})
	probe := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Harvest.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	}, limiter, logger.Named("fetcher"))

	var headlessFetcher specs.Fetcher
	if cfg.Headless.Enabled {
		chromedpFetcher, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Harvest.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Warn("headless fetcher init failed; promotion disabled", zap.Error(err))
		} else {
			app.headless = chromedpFetcher
			headlessFetcher = chromedpFetcher
		}
	}

	var robots *urlsafe.RobotsPolicy
	if cfg.Harvest.RespectRobots {
		robots = urlsafe.NewRobotsPolicy(
			&http.Client{Timeout: cfg.FetchTimeout()},
			urlsafe.NewRobotsCache(time.Hour, system.New()),
			cfg.Harvest.UserAgent,
			logger.Named("robots"),
		)
	}
	gate := urlsafe.New(nil, robots, logger.Named("gate"))

	catalog := specs.DefaultCatalog()
	engine := extract.NewEngine(catalog, uuid.NewGenerator(), logger.Named("extract"))
	scorer := score.NewScorer(catalog, score.DefaultWeights())
	reconciler := reconcile.New(catalog, reconcile.Thresholds{
		Acceptance:   cfg.Scoring.Acceptance,
		Disagreement: cfg.Scoring.Disagreement,
		Visibility:   cfg.Scoring.Visibility,
	}, logger.Named("reconcile"))
	qaPipeline := qa.New(catalog, logger.Named("qa"))

	workerCfg := pipeline.Config{
		BlobPrefix:      cfg.Storage.Prefix,
		ReviewTopic:     cfg.PubSub.ReviewTopic,
		MaxDocs:         cfg.Harvest.MaxDocsPerItem,
		HeadlessEnabled: cfg.Headless.Enabled && headlessFetcher != nil,
	}
	hasher := sha256.New()
	clock := system.New()

	cancels := pipeline.NewCancelRegistry()
	workers := make([]*pipeline.Worker, 0, cfg.Harvest.Workers)
	for i := 0; i < cfg.Harvest.Workers; i++ {
		worker, err := pipeline.New(pipeline.Deps{
			Queue:      app.queue,
			Search:     searchClient,
			Gate:       gate,
			Probe:      probe,
			Headless:   headlessFetcher,
			Detector:   detector.NewHeuristic(cfg.Headless.PromotionThresh),
			Blobs:      blobStore,
			Specs:      app.specStore,
			Runs:       app.runStore,
			Publisher:  publisher,
			Cancels:    cancels,
			Hasher:     hasher,
			Clock:      clock,
			Engine:     engine,
			Scorer:     scorer,
			Reconciler: reconciler,
			QA:         qaPipeline,
			Logger:     logger.Named("worker").With(zap.Int("index", i)),
		}, workerCfg)
		if err != nil {
			return nil, fmt.Errorf("worker init failed: %w", err)
		}
		workers = append(workers, worker)
	}
	app.dispatch = pipeline.NewDispatcher(app.queue, workers, cancels)

	app.apiServer = api.NewServer(
		app.specStore,
		app.runStore,
		app.dispatch,
		uuid.NewGenerator(),
		clock,
		cfg,
		logger.Named("api"),
	)
	return app, nil
}

// Dispatcher exposes the dispatcher for one-shot command wiring.
func (a *App) Dispatcher() *pipeline.Dispatcher {
	return a.dispatch
}

// RunStore exposes the run store for one-shot command wiring.
func (a *App) RunStore() specs.RunStore {
	return a.runStore
}

// SpecStore exposes the spec store for one-shot command wiring.
func (a *App) SpecStore() specs.SpecStore {
	return a.specStore
}

// Logger exposes the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

func (a *App) setupBlobStore(ctx context.Context) (specs.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case "gcs":
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		blobStore, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobStore, nil
	case "local":
		a.logger.Info("using local storage backend", zap.String("base_dir", a.cfg.Storage.BaseDir))
		blobStore, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobStore, nil
	default:
		a.logger.Info("using in-memory storage backend")
		return memoryStorage.NewBlobStore(), nil
	}
}

func (a *App) setupStores(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no database DSN configured; specs and runs are kept in memory")
		a.specStore = memoryStorage.NewSpecStore()
		a.runStore = memoryStorage.NewRunStore(system.New())
		return nil
	}
	pool, err := pgstore.NewPool(ctx, pgstore.Config{
		DSN:      a.cfg.DB.DSN,
		MaxConns: a.cfg.DB.MaxConns,
		MinConns: a.cfg.DB.MinConns,
	})
	if err != nil {
		return fmt.Errorf("postgres pool init failed: %w", err)
	}
	a.pgPool = pool
	specStore, err := pgstore.NewWithPool(pool, nil)
	if err != nil {
		return fmt.Errorf("spec store init failed: %w", err)
	}
	runStore, err := pgstore.NewRunStore(pool, nil)
	if err != nil {
		return fmt.Errorf("run store init failed: %w", err)
	}
	a.specStore = specStore
	a.runStore = runStore
	a.logger.Info("postgres stores initialized")
	return nil
}

func (a *App) setupPublisher(ctx context.Context) (specs.Publisher, error) {
	if a.cfg.PubSub.ProjectID == "" || a.cfg.PubSub.ReviewTopic == "" {
		a.logger.Warn("no Pub/Sub review topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	publisher, err := gcppublisher.New(client)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.pubsubPublisher = publisher
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("review_topic", a.cfg.PubSub.ReviewTopic),
	)
	return publisher, nil
}

func (a *App) setupQueue(ctx context.Context) error {
	if a.cfg.PubSub.ProjectID != "" && a.cfg.PubSub.QueueTopic != "" {
		queue, err := queuePubsub.New(ctx, queuePubsub.Config{
			ProjectID:    a.cfg.PubSub.ProjectID,
			Topic:        a.cfg.PubSub.QueueTopic,
			Subscription: a.cfg.PubSub.Subscription,
			Buffer:       a.cfg.Harvest.QueueDepth,
		}, a.logger.Named("queue"))
		if err != nil {
			return fmt.Errorf("pubsub queue init failed: %w", err)
		}
		a.pubsubQueue = queue
		a.queue = queue
		a.logger.Info("Pub/Sub work queue initialized", zap.String("topic", a.cfg.PubSub.QueueTopic))
		return nil
	}
	a.memQueue = queueMemory.NewQueue(a.cfg.Harvest.QueueDepth)
	a.queue = a.memQueue
	return nil
}

// Run starts the dispatcher and the HTTP server, blocking until the context
// is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	return a.Close()
}

// Close gracefully shuts down the application's services.
func (a *App) Close() error {
	if a.memQueue != nil {
		a.memQueue.Close()
	}
	if a.pubsubQueue != nil {
		if err := a.pubsubQueue.Close(); err != nil {
			a.logger.Warn("pubsub queue close failed", zap.Error(err))
		}
	}
	if a.headless != nil {
		a.headless.Close()
	}
	if a.pubsubPublisher != nil {
		if err := a.pubsubPublisher.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgPool != nil {
		a.pgPool.Close()
	}
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
	return nil
}
