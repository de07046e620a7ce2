package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/solenne-labs/corpora/internal/config"
	"github.com/solenne-labs/corpora/internal/core"
	db "github.com/solenne-labs/corpora/internal/core/database"
	"github.com/solenne-labs/corpora/internal/core/llm"
	objectclient "github.com/solenne-labs/corpora/internal/core/object-client"
	"github.com/solenne-labs/corpora/internal/core/parser"
	"github.com/solenne-labs/corpora/internal/core/pipeline"
	"github.com/solenne-labs/corpora/internal/services"
)

type App struct {
	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	Worker       *pipeline.Worker
	Server       *Server

	cfg *config.Config
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Database initialized and ready.")

	objClient, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Object client initialized and ready.")

	geminiEmbedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm, %w", err)
	}

	docParser := parser.NewDocconvParser(false)

	batchEmbedder := pipeline.NewBatchEmbedder(
		dbClient, geminiEmbedder,
		cfg.EmbedBatchLimit, cfg.EmbedDim, cfg.MaxRetries, cfg.RetryBaseDelay,
	)

	worker := pipeline.NewWorker(dbClient, objClient, docParser, batchEmbedder, pipeline.WorkerConfig{
		Bucket:       cfg.BucketName,
		PollInterval: cfg.PollInterval,
		ClaimTimeout: cfg.ClaimTimeout,
		Chunker:      pipeline.NewChunker(cfg.ChunkTargetTokens, cfg.ChunkOverlapTokens),
		Policy:       pipeline.NewRetryPolicy(cfg.MaxRetries, cfg.RetryBaseDelay),
	})

	users := services.NewUserService(dbClient)
	intake := services.NewIntakeService(dbClient)
	documents := services.NewDocumentService(dbClient)
	retrieval := services.NewRetrievalService(dbClient, cfg.EmbedDim)

	server := NewServer(cfg, users, intake, documents, retrieval, objClient, geminiEmbedder, llmProvider)

	return &App{
		DBClient:     dbClient,
		ObjectClient: objClient,
		Worker:       worker,
		Server:       server,
		cfg:          cfg,
	}, nil
}

// Run starts the worker pool and the HTTP server, then blocks until ctx is
// cancelled.
func (a *App) Run(ctx context.Context) {
	a.Worker.Start(ctx, a.cfg.WorkerCount)
	log.Printf("Pipeline worker pool started (%d workers).", a.cfg.WorkerCount)

	go a.Server.Start()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = a.Server.Shutdown(shutdownCtx)
}

func (a *App) Close() {
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
