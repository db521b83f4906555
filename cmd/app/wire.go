package main

import (
	"github.com/yanqian/ai-helloworld/internal/bootstrap"
	"github.com/yanqian/ai-helloworld/internal/domain/coursesage"
	"github.com/yanqian/ai-helloworld/internal/infra/config"
	httpiface "github.com/yanqian/ai-helloworld/internal/interface/http"
	"github.com/yanqian/ai-helloworld/pkg/logger"
)

// initializeApp wires concrete collaborators into the coursesage domain
// service and returns a runnable App. Each external collaborator falls back
// to an in-memory implementation when its configuration is absent or it
// fails a startup health check, so the service still boots in a degraded
// mode instead of refusing to start.
func initializeApp() (*bootstrap.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New()

	chatClient, err := provideChatGPTClient(cfg)
	if err != nil {
		log.Warn("chatgpt client unavailable", "error", err)
		chatClient = nil
	}

	objStorage := provideObjectStorage(cfg, log)
	embedding := provideEmbeddingProvider(chatClient, cfg, log)
	vectors := provideVectorStore(cfg, log)
	primary := providePrimaryStore(cfg, log)
	cacheStore := provideCache(cfg, log)
	llmClient := provideLLM(chatClient, cfg, log)
	web := provideWebSearch(cfg, log)
	docChunker := provideChunker(log)

	retriever := coursesage.NewRetriever(embedding, vectors, int(cfg.CourseSage.NumCandidates), log)
	upserter := coursesage.NewUpserter(embedding, vectors, log)
	deleter := coursesage.NewDeleter(vectors, log)
	state := coursesage.NewStateManager(primary, cacheStore, log)
	tools := coursesage.NewTools(retriever, web, state, log)
	agent := coursesage.NewAgentGraph(llmClient, tools, log)

	svc := coursesage.NewService(docChunker, upserter, deleter, agent, tools, state, objStorage, cfg.CourseSage.MaxChunkWords, log)

	handler := httpiface.NewHandler(svc, log)
	server := httpiface.NewRouter(cfg, handler)

	return bootstrap.NewApp(cfg, log, server), nil
}
