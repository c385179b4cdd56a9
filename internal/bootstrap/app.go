package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bru-digital/qteria/internal/assessments"
	"github.com/bru-digital/qteria/internal/criteria"
	"github.com/bru-digital/qteria/internal/documents"
	"github.com/bru-digital/qteria/internal/extract"
	"github.com/bru-digital/qteria/internal/llm"
	"github.com/bru-digital/qteria/internal/llm/ollama"
	"github.com/bru-digital/qteria/internal/llm/openai"
	"github.com/bru-digital/qteria/internal/queue"
	"github.com/bru-digital/qteria/internal/shared/config"
	"github.com/bru-digital/qteria/internal/shared/server"
	"github.com/bru-digital/qteria/internal/shared/storage/db"
	"github.com/bru-digital/qteria/internal/shared/storage/object"
	localstore "github.com/bru-digital/qteria/internal/shared/storage/object/local"
	s3store "github.com/bru-digital/qteria/internal/shared/storage/object/s3"
)

// Role selects which dependencies Build wires: the API serves HTTP and
// enqueues, the worker consumes the queue and runs the pipeline.
type Role string

const (
	RoleAPI    Role = "api"
	RoleWorker Role = "worker"
)

// App holds shared dependencies.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Queue  queue.Client

	DocumentsRepo   documents.Repo
	CriteriaRepo    criteria.Repo
	AssessmentsRepo assessments.Repo

	DocumentsService   *documents.Service
	AssessmentsService *assessments.Service
	Runner             *assessments.Runner

	DocumentsHandler   *documents.Handler
	CriteriaHandler    *criteria.Handler
	AssessmentsHandler *assessments.Handler
}

// Build prepares shared dependencies for the given role.
func Build(cfg config.Config, role Role) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg, role)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
	}

	if sqlDB != nil {
		app.DocumentsRepo = &documents.PGRepo{DB: sqlDB}
		app.CriteriaRepo = &criteria.PGRepo{DB: sqlDB}
		app.AssessmentsRepo = &assessments.PGRepo{DB: sqlDB}
	} else {
		app.DocumentsRepo = documents.NewMemoryRepo()
		app.CriteriaRepo = criteria.NewMemoryRepo()
		app.AssessmentsRepo = assessments.NewMemoryRepo()
	}

	app.DocumentsService = &documents.Service{Store: store, Repo: app.DocumentsRepo}
	app.Runner = buildRunner(cfg, app, sqlDB)

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Queue = queueClient

	svc := &assessments.Service{Repo: app.AssessmentsRepo}
	if queueClient != nil {
		svc.Queue = &queue.Enqueuer{Client: queueClient}
	} else {
		// No broker configured: run jobs inline so local development still
		// exercises the whole pipeline.
		svc.Runner = app.Runner
	}
	app.AssessmentsService = svc

	if role == RoleAPI {
		app.DocumentsHandler = documents.NewHandler(app.DocumentsService)
		app.CriteriaHandler = criteria.NewHandler(app.CriteriaRepo)
		app.AssessmentsHandler = assessments.NewHandler(app.AssessmentsService)
		app.Router = server.NewRouter(server.RouterDeps{
			Config:             cfg,
			DocumentsHandler:   app.DocumentsHandler,
			CriteriaHandler:    app.CriteriaHandler,
			AssessmentsHandler: app.AssessmentsHandler,
		})
	}

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config, role Role) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.DefaultServerOptions()
	if role == RoleWorker {
		opts = db.DefaultWorkerOptions()
	}
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(opts))
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required for the s3 object store")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(os.Getenv("QT_SQS_QUEUE_URL")) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: QT_SQS_QUEUE_URL empty; running assessments inline")
			return nil, nil
		}
		return nil, fmt.Errorf("QT_SQS_QUEUE_URL is required")
	}
	return queue.NewSQSClient(ctx, cfg.AWSRegion)
}

func buildRunner(cfg config.Config, app *App, sqlDB *sql.DB) *assessments.Runner {
	var cache extract.Cache
	if sqlDB != nil {
		cache = &extract.PGCache{DB: sqlDB}
	} else {
		cache = extract.NewMemoryCache()
	}

	return &assessments.Runner{
		Repo:      app.AssessmentsRepo,
		Criteria:  app.CriteriaRepo,
		Documents: app.DocumentsService,
		Extractor: &extract.Extractor{Cache: cache},
		Evaluator: &assessments.Evaluator{
			Client:      buildLLM(cfg),
			CallTimeout: cfg.CallTimeout,
		},
		Concurrency:      cfg.WorkerConcurrency,
		BatchSize:        cfg.CriteriaBatchSize,
		MaxBatchAttempts: cfg.MaxBatchAttempts,
		RetryBaseDelay:   cfg.RetryBaseDelay,
		JobTimeout:       cfg.JobTimeout,
	}
}

func buildLLM(cfg config.Config) llm.Client {
	var (
		client llm.Client
		err    error
	)
	switch strings.ToLower(cfg.LLMProvider) {
	case "ollama":
		client, err = ollama.NewClient(cfg.OllamaBaseURL, cfg.LLMModel)
	case "openai":
		client, err = openai.NewClient(os.Getenv("OPENAI_API_KEY"), cfg.LLMModel)
	default:
		err = fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
	if err != nil {
		log.Printf("bootstrap: LLM client unavailable (%v); using placeholder", err)
		return llm.PlaceholderClient{}
	}
	return llm.NewRateLimited(client, cfg.LLMRequestsPerMinute)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development", "local", "":
		return true
	default:
		return false
	}
}
