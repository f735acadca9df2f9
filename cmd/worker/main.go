package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/modelplane/modelplane/internal/cache"
	"github.com/modelplane/modelplane/internal/config"
	"github.com/modelplane/modelplane/internal/database"
	"github.com/modelplane/modelplane/internal/evaluation"
	"github.com/modelplane/modelplane/internal/finetune"
	"github.com/modelplane/modelplane/internal/llm"
	"github.com/modelplane/modelplane/internal/queue"
	"github.com/modelplane/modelplane/internal/queue/workers"
	"github.com/modelplane/modelplane/internal/storage"
	"github.com/modelplane/modelplane/internal/store"
	"github.com/modelplane/modelplane/internal/vectorstore"
	"github.com/modelplane/modelplane/internal/webhook"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	st := store.New(db)
	objStore := storage.NewSupabaseStorage(cfg.Storage.SupabaseURL, cfg.Storage.SupabaseKey)
	gateway := llm.NewGateway(cfg.Provider)
	vectors := vectorstore.NewPgVectorStore(db)
	pointerCache := cache.NewPointerCache(cache.NewCache(rdb))

	dispatcher := webhook.NewDispatcher(db, logger)
	defer dispatcher.Close()
	notifier := webhook.NewService(db, dispatcher, logger)

	retriever := evaluation.NewVectorRetriever(vectors, gateway, cfg.Provider.EmbeddingModel)
	resolver := evaluation.NewResolver(st, retriever, 0)
	trainer := finetune.NewOpenAITrainer(cfg.Provider.OpenAIKey)

	datasetWorker := workers.NewDatasetWorker(st, objStore, cfg.Storage.Bucket,
		vectors, gateway, cfg.Provider.EmbeddingModel, notifier, logger)
	evalWorker := workers.NewEvalWorker(st, resolver, gateway, notifier, logger)
	finetuneWorker := workers.NewFinetuneWorker(st, trainer, objStore, cfg.Storage.Bucket,
		cfg.Pipeline.TrainPollInterval, cfg.Pipeline.TrainTimeout,
		cfg.Pipeline.MaxTrainingCostUSD, notifier, logger)
	promotionWorker := workers.NewPromotionWorker(st, pointerCache,
		cfg.Pipeline.MaxTrainingCostUSD, notifier, logger)

	registry := queue.NewHandlersRegistry()
	registry.Register(queue.TypeDatasetBuild, asynq.HandlerFunc(datasetWorker.ProcessTask))
	registry.Register(queue.TypeEvalRun, asynq.HandlerFunc(evalWorker.ProcessTask))
	registry.Register(queue.TypeFinetuneRun, asynq.HandlerFunc(finetuneWorker.ProcessTask))
	registry.Register(queue.TypePromotionDecide, asynq.HandlerFunc(promotionWorker.ProcessTask))

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Pipeline.WorkerConcurrency,
			Queues: map[string]int{
				queue.QueuePromotions: 4,
				queue.QueueDatasets:   3,
				queue.QueueEvals:      2,
				queue.QueueFinetunes:  2,
				queue.QueueDefault:    1,
			},
		},
	)

	slog.Info("starting worker", "concurrency", cfg.Pipeline.WorkerConcurrency)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
