package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finsight/pulse/internal/queue"
	mid "github.com/finsight/pulse/internal/server/middleware"
	"github.com/finsight/pulse/internal/storage"
	"github.com/finsight/pulse/internal/util"
	"github.com/finsight/pulse/pkg/ai"
	oai "github.com/finsight/pulse/pkg/ai/ollama"
	gai "github.com/finsight/pulse/pkg/ai/openai"
	"github.com/finsight/pulse/pkg/cache"
	"github.com/finsight/pulse/pkg/graph"
	"github.com/finsight/pulse/pkg/logger"
	pgstore "github.com/finsight/pulse/pkg/store/pgx"

	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

func Init() {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	databaseURL := util.GetEnv("DATABASE_URL")
	if err := storage.RunMigrations(util.GetEnvString("MIGRATIONS_DIR", "migrations"), databaseURL); err != nil {
		logger.Fatal("Failed to run migrations", "err", err)
	}

	conn, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()
	conn.Config().AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	que := queue.Init()
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	if err := queue.SetupQueues(ch, []string{queue.ScoreQueue}); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	s3Client := storage.NewS3Client(ctx)
	blobs, err := storage.NewS3BlobStore(s3Client, util.GetEnvString("AWS_BUCKET", "pulse"))
	if err != nil {
		logger.Fatal("Failed to create blob store", "err", err)
	}

	embedder := newEmbeddingClient()

	documents, err := pgstore.NewDocumentStorage(pgstore.NewDocumentStorageParams{Conn: conn})
	if err != nil {
		logger.Fatal("Failed to create document storage", "err", err)
	}

	semCache, err := cache.NewSemanticCache(cache.NewSemanticCacheParams{
		Embedder:  embedder,
		Documents: documents,
		Blobs:     blobs,
		Threshold: util.GetEnvNumeric("CACHE_THRESHOLD", 0),
	})
	if err != nil {
		logger.Fatal("Failed to create semantic cache", "err", err)
	}
	if err := semCache.Initialize(ctx); err != nil {
		logger.Fatal("Failed to initialize semantic cache", "err", err)
	}

	builder, err := graph.NewKnowledgeGraphBuilder(graph.NewKnowledgeGraphBuilderParams{
		NER:       graph.NewProseNER(),
		Documents: documents,
	})
	if err != nil {
		logger.Fatal("Failed to create knowledge graph builder", "err", err)
	}
	builder.Initialize(ctx)

	app := &mid.App{
		DBConn: conn,
		Queue:  ch,
		S3:     s3Client,
		Cache:  semCache,
		Graph:  builder,
	}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	RegisterRoutes(e)

	go func() {
		port := util.GetEnvString("PORT", "8080")
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
	if err := semCache.Close(shutdownCtx); err != nil {
		logger.Error("Failed to close cache", "err", err)
	}
	if err := builder.Close(shutdownCtx); err != nil {
		logger.Error("Failed to close graph", "err", err)
	}
}

func newEmbeddingClient() ai.EmbeddingClient {
	adapter := util.GetEnv("AI_ADAPTER")

	switch adapter {
	case "ollama":
		client, err := oai.NewEmbeddingOllamaClient(oai.NewEmbeddingOllamaClientParams{
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),
			Dimensions:     int(util.GetEnvNumeric("AI_EMBED_DIM", 0)),

			BaseURL: util.GetEnv("AI_EMBED_URL"),
			ApiKey:  util.GetEnv("AI_EMBED_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 15)),
		})
		if err != nil {
			logger.Fatal("Failed to create Ollama client", "err", err)
		}
		return client
	default:
		client, err := gai.NewEmbeddingOpenAIClient(gai.NewEmbeddingOpenAIClientParams{
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),
			Dimensions:     int(util.GetEnvNumeric("AI_EMBED_DIM", 0)),

			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 15)),
		})
		if err != nil {
			logger.Fatal("Failed to create OpenAI client", "err", err)
		}
		return client
	}
}
