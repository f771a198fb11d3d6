package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"ragportal/internal/app"
	"ragportal/internal/auth"
	"ragportal/internal/config"
	"ragportal/internal/docstore"
	"ragportal/internal/queue"
	"ragportal/internal/server"
	"ragportal/internal/status"
	"ragportal/internal/util"
	"ragportal/internal/vectorindex"
	"ragportal/pkg/ai"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	docs, err := buildDocStore(cfg)
	if err != nil {
		log.Fatalf("failed to init document store: %v", err)
	}
	registry, err := buildStatusRegistry(cfg)
	if err != nil {
		log.Fatalf("failed to init status registry: %v", err)
	}
	scheduler, err := buildScheduler(cfg)
	if err != nil {
		log.Fatalf("failed to init scheduler: %v", err)
	}
	store, err := buildVectorStore(cfg)
	if err != nil {
		log.Fatalf("failed to init vector index: %v", err)
	}

	embedder, generator := buildProviders(cfg)
	manager := vectorindex.NewManager(store, embedder, 16, cfg.Workers)

	appCore, err := app.New(app.Config{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		TopK:         cfg.TopK,
	}, docs, registry, scheduler, manager, generator, logger)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	users, err := auth.NewUserStore(cfg.UsersFile)
	if err != nil {
		log.Fatalf("failed to init user store: %v", err)
	}
	tokens, err := auth.NewTokenIssuer(cfg.TokenSecret, time.Duration(cfg.TokenTTLHours)*time.Hour)
	if err != nil {
		log.Fatalf("failed to init token issuer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scheduler.Start(ctx, cfg.Workers, appCore.ProcessJob)

	httpServer := server.New(server.Config{
		App:    appCore,
		Users:  users,
		Tokens: tokens,
		Logger: logger,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("ragportal listening", "addr", addr,
		"index", cfg.IndexBackend, "queue", cfg.QueueBackend, "docstore", cfg.DocStoreBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

func buildDocStore(cfg config.FileConfig) (docstore.Store, error) {
	if cfg.DocStoreBackend == "minio" {
		return docstore.NewMinio(docstore.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	}
	return docstore.NewLocal(filepath.Join(cfg.DataDir, "staging"))
}

func buildStatusRegistry(cfg config.FileConfig) (status.Registry, error) {
	if cfg.StatusBackend == "redis" {
		return status.NewRedis(status.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPass})
	}
	return status.NewMemory(), nil
}

func buildScheduler(cfg config.FileConfig) (queue.Scheduler, error) {
	switch cfg.QueueBackend {
	case "redis":
		return queue.NewRedisScheduler(queue.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			Stream:   cfg.QueueStream,
		})
	case "amqp":
		return queue.NewAMQPScheduler(queue.AMQPConfig{URL: cfg.AMQPURL})
	default:
		return queue.NewLocal(0), nil
	}
}

func buildVectorStore(cfg config.FileConfig) (vectorindex.Store, error) {
	if cfg.IndexBackend == "postgres" {
		return vectorindex.NewPGStore(cfg.DatabaseURL, cfg.EmbeddingDim)
	}
	return vectorindex.NewLocalStore(filepath.Join(cfg.DataDir, "index"))
}

func buildProviders(cfg config.FileConfig) (ai.Embedder, ai.TextGenerator) {
	client := ai.NewOllamaClient(cfg.OllamaBaseURL)
	embedder := ai.NewOllamaEmbedder(client, cfg.EmbeddingModel, cfg.EmbeddingDim)
	if cfg.LLMProvider == "openai" {
		return embedder, ai.NewOpenAICompatGenerator(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.ChatModel)
	}
	return embedder, ai.NewOllamaGenerator(client, cfg.ChatModel, 0.2)
}
