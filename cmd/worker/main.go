package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finsight/pulse/internal/queue"
	"github.com/finsight/pulse/internal/storage"
	"github.com/finsight/pulse/internal/util"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/finsight/pulse/pkg/ai"
	oai "github.com/finsight/pulse/pkg/ai/ollama"
	gai "github.com/finsight/pulse/pkg/ai/openai"
	"github.com/finsight/pulse/pkg/cache"
	"github.com/finsight/pulse/pkg/graph"
	"github.com/finsight/pulse/pkg/logger"
	"github.com/finsight/pulse/pkg/logger/console"
	pgstore "github.com/finsight/pulse/pkg/store/pgx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	// Init s3 client
	s3Client := storage.NewS3Client(ctx)
	blobs, err := storage.NewS3BlobStore(s3Client, util.GetEnvString("AWS_BUCKET", "pulse"))
	if err != nil {
		logger.Fatal("Failed to create blob store", "err", err)
	}

	// Embedding client
	adapter := util.GetEnv("AI_ADAPTER")
	var embedder ai.EmbeddingClient

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
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		embedder = client
	default:
		client, err := gai.NewEmbeddingOpenAIClient(gai.NewEmbeddingOpenAIClientParams{
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),
			Dimensions:     int(util.GetEnvNumeric("AI_EMBED_DIM", 0)),

			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 15)),
		})
		if err != nil {
			logger.Fatal("Could not create OpenAI client", "err", err)
		}
		embedder = client
	}

	// Init pgx client
	pgConn, err := pgxpool.New(ctx, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()
	pgConn.Config().AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	documents, err := pgstore.NewDocumentStorage(pgstore.NewDocumentStorageParams{Conn: pgConn})
	if err != nil {
		logger.Fatal("Failed to create document storage", "err", err)
	}

	// Semantic cache
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

	// Knowledge graph
	builder, err := graph.NewKnowledgeGraphBuilder(graph.NewKnowledgeGraphBuilderParams{
		NER:       graph.NewProseNER(),
		Documents: documents,
	})
	if err != nil {
		logger.Fatal("Failed to create knowledge graph builder", "err", err)
	}
	builder.Initialize(ctx)

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	// Init rabbitmq queues if not exist
	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	queues := []string{queue.ScoreQueue}
	if err := queue.SetupQueues(ch, queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	logger.Info("Listening for messages")

	// Single consumer channel with prefetch=1 so only one message is
	// in flight at a time across all queues.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	err = consumerCh.Qos(1, 0, true)
	if err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	type queuedMessage struct {
		msg       amqp.Delivery
		queueName string
	}

	messageChan := make(chan queuedMessage)

	for _, queueName := range queues {
		go func(qName string) {
			consumerTag := fmt.Sprintf("%s_consumer", qName)
			msgs, err := consumerCh.Consume(
				qName,
				consumerTag,
				false, // autoAck
				false, // exclusive
				false, // noLocal
				false, // noWait
				nil,   // args
			)
			if err != nil {
				logger.Fatal("Failed to start consuming", "queue", qName, "err", err)
			}

			for {
				select {
				case <-ctx.Done():
					logger.Info("Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("Message channel closed", "queue", qName)
						return
					}
					messageChan <- queuedMessage{msg: msg, queueName: qName}
				}
			}
		}(queueName)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case qm := <-messageChan:
				startTime := time.Now()
				logger.Info("Received message", "queue", qm.queueName)

				var processingErr error
				switch qm.queueName {
				case queue.ScoreQueue:
					processingErr = queue.ProcessScoreMessage(ctx, semCache, builder, string(qm.msg.Body))
				}

				// If there was an error send to retry or dead-letter, otherwise ack the message
				if processingErr != nil {
					logger.Error("Error processing message", "queue", qm.queueName, "err", processingErr)
					handleProcessingError(consumerCh, qm.msg, qm.queueName)
				} else {
					if err := qm.msg.Ack(false); err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
					logger.Info("Message processed successfully", "queue", qm.queueName)
				}

				if mc, ok := embedder.(interface{ Metrics() ai.ModelMetrics }); ok {
					metrics := mc.Metrics()
					logger.Info(
						"AI Metrics",
						"input_tokens", metrics.InputTokens,
						"total_tokens", metrics.TotalTokens,
					)
				}

				logger.Info("Processing time", "duration", time.Since(startTime).Round(time.Millisecond))
				logger.Info("Waiting for next message")
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := semCache.Close(closeCtx); err != nil {
		logger.Error("Failed to close cache", "err", err)
	}
	if err := builder.Close(closeCtx); err != nil {
		logger.Error("Failed to close graph", "err", err)
	}
}

func handleProcessingError(ch *amqp.Channel, msg amqp.Delivery, queueName string) {
	retries := 0
	if val, ok := msg.Headers["x-retries"]; ok {
		if v, ok := val.(int32); ok {
			retries = int(v)
		}
	}

	// If message has been retried 10 times, send to dead-letter
	if retries >= 10 {
		dlqName := queueName + "_dlq"
		logger.Info("Sending message to DLQ", "dlq", dlqName)
		pubErr := ch.Publish(
			"",
			dlqName,
			false,
			false,
			amqp.Publishing{
				ContentType: "application/json",
				Body:        msg.Body,
				Headers:     msg.Headers,
			},
		)
		if pubErr != nil {
			logger.Error("Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			msg.Nack(false, true)
			return
		}
		msg.Ack(false)
		return
	}

	retryName := queueName + "_retry"
	headers := msg.Headers
	if headers == nil {
		headers = amqp.Table{}
	}
	headers["x-retries"] = retries + 1

	pubErr := ch.Publish(
		"",
		retryName,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        msg.Body,
			Headers:     headers,
		},
	)
	if pubErr != nil {
		logger.Error("Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}
