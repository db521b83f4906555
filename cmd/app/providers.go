package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/ai-helloworld/internal/domain/coursesage"
	"github.com/yanqian/ai-helloworld/internal/infra/config"
	"github.com/yanqian/ai-helloworld/internal/infra/coursesage/cache"
	"github.com/yanqian/ai-helloworld/internal/infra/coursesage/chunker"
	"github.com/yanqian/ai-helloworld/internal/infra/coursesage/embedder"
	courselllm "github.com/yanqian/ai-helloworld/internal/infra/coursesage/llm"
	"github.com/yanqian/ai-helloworld/internal/infra/coursesage/repo"
	"github.com/yanqian/ai-helloworld/internal/infra/coursesage/storage"
	"github.com/yanqian/ai-helloworld/internal/infra/coursesage/vectorstore"
	"github.com/yanqian/ai-helloworld/internal/infra/coursesage/websearch"
	"github.com/yanqian/ai-helloworld/internal/infra/llm/chatgpt"
)

func provideChatGPTClient(cfg *config.Config) (*chatgpt.Client, error) {
	return chatgpt.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL)
}

func provideObjectStorage(cfg *config.Config, logger *slog.Logger) coursesage.ObjectStorage {
	s := cfg.CourseSage.Storage
	endpoint := strings.TrimSpace(s.Endpoint)
	accessKey := strings.TrimSpace(s.AccessKey)
	secretKey := strings.TrimSpace(s.SecretKey)
	if endpoint == "" || accessKey == "" || secretKey == "" {
		logger.Info("object storage not fully configured, using memory storage")
		return storage.NewMemory()
	}
	r2, err := storage.NewR2Storage(endpoint, accessKey, secretKey, s.Region, logger)
	if err != nil {
		logger.Error("failed to initialize r2 storage, using memory storage", "error", err)
		return storage.NewMemory()
	}
	logger.Info("r2 object storage enabled", "endpoint", endpoint)
	return r2
}

func provideEmbeddingProvider(client *chatgpt.Client, cfg *config.Config, logger *slog.Logger) coursesage.EmbeddingProvider {
	model := strings.TrimSpace(cfg.LLM.EmbeddingModel)
	if client == nil || model == "" {
		logger.Warn("embedding client unavailable, using deterministic fallback embedder")
		return embedder.Fallback{}
	}
	return embedder.New(client, model)
}

func provideVectorStore(cfg *config.Config, logger *slog.Logger) coursesage.VectorStore {
	q := cfg.CourseSage.Qdrant
	if strings.TrimSpace(q.Host) == "" {
		logger.Info("qdrant host not configured, using memory vector store")
		return vectorstore.NewMemory()
	}
	client, err := vectorstore.Dial(q.Host, q.Port, q.APIKey, q.UseTLS)
	if err != nil {
		logger.Error("failed to dial qdrant, using memory vector store", "error", err)
		return vectorstore.NewMemory()
	}
	logger.Info("qdrant vector store enabled", "host", q.Host, "collection", q.Collection)
	return vectorstore.New(client, q.Collection, logger)
}

func providePrimaryStore(cfg *config.Config, logger *slog.Logger) coursesage.PrimaryStore {
	dsn := strings.TrimSpace(cfg.CourseSage.Postgres.DSN)
	if dsn == "" {
		logger.Info("postgres dsn not set, using memory conversation store")
		return repo.NewMemory()
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		logger.Error("invalid postgres dsn, using memory conversation store", "error", err)
		return repo.NewMemory()
	}
	if cfg.CourseSage.Postgres.MaxConns > 0 {
		poolConfig.MaxConns = cfg.CourseSage.Postgres.MaxConns
	}
	if cfg.CourseSage.Postgres.MinConns > 0 {
		poolConfig.MinConns = cfg.CourseSage.Postgres.MinConns
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Error("failed to initialize postgres pool, using memory conversation store", "error", err)
		return repo.NewMemory()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres ping failed, using memory conversation store", "error", err)
		pool.Close()
		return repo.NewMemory()
	}
	logger.Info("postgres conversation store enabled")
	return repo.New(pool, logger)
}

func provideCache(cfg *config.Config, logger *slog.Logger) coursesage.Cache {
	addr := strings.TrimSpace(cfg.CourseSage.Valkey.Addr)
	if addr == "" {
		logger.Info("valkey addr not set, using memory cache")
		return cache.NewMemory()
	}
	opt, err := buildValkeyOptions(cfg.CourseSage.Valkey)
	if err != nil {
		logger.Error("invalid valkey configuration, using memory cache", "error", err)
		return cache.NewMemory()
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		logger.Error("failed to create valkey client, using memory cache", "error", err)
		return cache.NewMemory()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		logger.Error("valkey ping failed, using memory cache", "error", err)
		return cache.NewMemory()
	}
	logger.Info("valkey cache enabled", "addr", addr)
	return cache.New(client, logger)
}

func buildValkeyOptions(cfg config.ValkeyConfig) (valkey.ClientOption, error) {
	addr := strings.TrimSpace(cfg.Addr)
	var (
		opt valkey.ClientOption
		err error
	)
	if strings.Contains(addr, "://") {
		opt, err = valkey.ParseURL(addr)
	} else {
		opt = valkey.ClientOption{InitAddress: []string{addr}}
	}
	if err != nil {
		return valkey.ClientOption{}, err
	}
	if cfg.Username != "" {
		opt.Username = cfg.Username
	}
	if cfg.Password != "" {
		opt.Password = cfg.Password
	}
	return opt, nil
}

func provideLLM(client *chatgpt.Client, cfg *config.Config, logger *slog.Logger) coursesage.LLM {
	if client == nil || strings.TrimSpace(cfg.LLM.APIKey) == "" {
		logger.Warn("chatgpt client unavailable, using fallback llm")
		return courselllm.FallbackLLM{}
	}
	return courselllm.New(client, cfg.LLM.Model, logger)
}

func provideWebSearch(cfg *config.Config, logger *slog.Logger) coursesage.WebSearch {
	w := cfg.CourseSage.WebSearch
	if strings.TrimSpace(w.APIKey) == "" {
		logger.Info("web search api key not configured, web_search tool disabled")
		return websearch.Disabled{}
	}
	return websearch.New(w.APIKey, w.BaseURL, logger)
}

func provideChunker(logger *slog.Logger) coursesage.Chunker {
	return chunker.New(logger)
}
