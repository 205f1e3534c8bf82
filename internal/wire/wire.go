// Package wire 提供依赖装配
package wire

import (
	"context"
	"fmt"

	"shoply-ai-cs-api/internal/application/fusion"
	"shoply-ai-cs-api/internal/application/ingest"
	"shoply-ai-cs-api/internal/application/modification"
	"shoply-ai-cs-api/internal/application/search"
	"shoply-ai-cs-api/internal/application/turn"
	"shoply-ai-cs-api/internal/application/verification"
	"shoply-ai-cs-api/internal/config"
	"shoply-ai-cs-api/internal/domain/repository"
	"shoply-ai-cs-api/internal/infrastructure/commerce"
	"shoply-ai-cs-api/internal/infrastructure/embedding"
	"shoply-ai-cs-api/internal/infrastructure/messaging"
	"shoply-ai-cs-api/internal/infrastructure/persistence/milvus"
	"shoply-ai-cs-api/internal/infrastructure/persistence/postgres"
	"shoply-ai-cs-api/internal/infrastructure/persistence/redis"
	"shoply-ai-cs-api/internal/interfaces/http/handler"
	"shoply-ai-cs-api/internal/interfaces/http/router"
	"shoply-ai-cs-api/pkg/logger"
)

// DataLayer 数据层依赖容器
type DataLayer struct {
	// PostgreSQL
	PgClient         *postgres.Client
	TxManager        *postgres.TxManager
	TenantRepo       *postgres.TenantRepository
	ModificationRepo *postgres.ModificationRepository

	// Redis
	RedisClient       *redis.Client
	Cache             *redis.Cache
	RateLimiter       *redis.RateLimiter
	VerificationStore *redis.VerificationStore

	// Messaging
	Producer *messaging.Producer

	// Milvus（可选，连不上时检索降级）
	MilvusClient *milvus.Client
	VectorRepo   *milvus.Repository
}

// App 组装完成的应用
type App struct {
	Router *router.Router
	Data   *DataLayer

	SearchEngine *search.Engine
	Fusion       *fusion.Service
	Verification *verification.Service
	Modification *modification.Service
	Orchestrator *turn.Orchestrator
}

// InitializeDataLayer 初始化数据层
func InitializeDataLayer(ctx context.Context, cfg *config.Config) (*DataLayer, func(), error) {
	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init postgres: %w", err)
	}

	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		_ = pgClient.Close()
		return nil, nil, fmt.Errorf("failed to init redis: %w", err)
	}

	dl := &DataLayer{
		PgClient:          pgClient,
		TxManager:         postgres.NewTxManager(pgClient),
		TenantRepo:        postgres.NewTenantRepository(pgClient),
		RedisClient:       redisClient,
		Cache:             redis.NewCache(redisClient),
		RateLimiter:       redis.NewRateLimiter(redisClient),
		VerificationStore: redis.NewVerificationStore(redisClient),
		Producer:          messaging.NewProducer(redisClient.Redis(), int64(cfg.Messaging.RedisStream.MaxLen)),
	}
	dl.ModificationRepo = postgres.NewModificationRepository(pgClient, dl.TxManager)

	// Milvus 连接失败不阻断启动，检索路径按数据源降级处理
	milvusClient, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		logger.Warn(ctx, "milvus unavailable, retrieval disabled", "error", err.Error())
	} else {
		dl.MilvusClient = milvusClient
		dl.VectorRepo = milvus.NewRepository(milvusClient)
	}

	cleanup := func() {
		if dl.MilvusClient != nil {
			_ = dl.MilvusClient.Close()
		}
		_ = redisClient.Close()
		_ = pgClient.Close()
	}
	return dl, cleanup, nil
}

// InitializeApp 初始化整个应用（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	dl, cleanup, err := InitializeDataLayer(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	embedder := embedding.NewClient(&cfg.Embedding)
	factory := commerce.NewFactory(cfg.Commerce.RequestTimeout)

	var searchEngine *search.Engine
	if dl.VectorRepo != nil {
		scorer := search.NewScorer(cfg.Retrieval.RecencyHorizon)
		assembler := search.NewAssembler(assemblerConfig(&cfg.Retrieval))
		searchEngine = search.NewEngine(embedder, dl.VectorRepo, scorer, assembler)
	}

	// 类型化空指针会穿透接口判空，显式留 nil
	var fusionChunks repository.ChunkRepository
	if dl.VectorRepo != nil {
		fusionChunks = dl.VectorRepo
	}
	fusionSvc := fusion.NewService(factory, dl.Cache, fusionChunks, cfg.Commerce.CacheTTL, cfg.Commerce.MaxOutOfStock)

	verificationSvc := verification.NewService(dl.VerificationStore, factory, verification.Config{
		OTPTTL:        cfg.Verification.OTPTTL,
		MaxAttempts:   cfg.Verification.MaxAttempts,
		AttemptWindow: cfg.Verification.AttemptWindow,
		SessionTTL:    cfg.Verification.SessionTTL,
	})

	modificationSvc := modification.NewService(dl.ModificationRepo, factory, dl.Producer)

	orchestrator := turn.NewOrchestrator(searchEngine, fusionSvc, verificationSvc, cfg.Turn.Deadline)

	handlers := &router.Handlers{
		Health:       handler.NewHealthHandler(dl.PgClient, dl.RedisClient, dl.MilvusClient),
		Chat:         handler.NewChatHandler(orchestrator),
		Verification: handler.NewVerificationHandler(verificationSvc),
		Modification: handler.NewModificationHandler(modificationSvc, verificationSvc),
		Order:        handler.NewOrderHandler(fusionSvc, verificationSvc),
		Ingest:       handler.NewIngestHandler(dl.Producer),
		Admin:        handler.NewAdminHandler(dl.RateLimiter),
		TenantRepo:   dl.TenantRepo,
		Limiter:      dl.RateLimiter,
	}

	app := &App{
		Router:       router.New(cfg, handlers),
		Data:         dl,
		SearchEngine: searchEngine,
		Fusion:       fusionSvc,
		Verification: verificationSvc,
		Modification: modificationSvc,
		Orchestrator: orchestrator,
	}
	return app, cleanup, nil
}

// InitializeIndexer 初始化入库索引器（ingest-worker 用）。
// Milvus 在 worker 里是硬依赖，连不上直接失败。
func InitializeIndexer(ctx context.Context, cfg *config.Config) (*ingest.Indexer, *redis.Client, func(), error) {
	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to init redis: %w", err)
	}

	milvusClient, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		_ = redisClient.Close()
		return nil, nil, nil, fmt.Errorf("failed to init milvus: %w", err)
	}

	vectorRepo := milvus.NewRepository(milvusClient)
	embedder := embedding.NewClient(&cfg.Embedding)

	chunking := ingest.DefaultChunkingConfig()
	if cfg.Embedding.BatchSize > 0 {
		chunking.EmbedBatch = cfg.Embedding.BatchSize
	}
	indexer := ingest.NewIndexer(embedder, vectorRepo, chunking)

	cleanup := func() {
		_ = milvusClient.Close()
		_ = redisClient.Close()
	}
	return indexer, redisClient, cleanup, nil
}

// assemblerConfig 把检索配置映射到组装参数，零值回落默认
func assemblerConfig(cfg *config.RetrievalConfig) search.AssemblerConfig {
	out := search.DefaultAssemblerConfig()
	if cfg.HighThreshold > 0 {
		out.HighThreshold = cfg.HighThreshold
	}
	if cfg.MediumThreshold > 0 {
		out.MediumThreshold = cfg.MediumThreshold
	}
	if cfg.HighChars > 0 {
		out.HighChars = cfg.HighChars
	}
	if cfg.MediumChars > 0 {
		out.MediumChars = cfg.MediumChars
	}
	if cfg.ContextualChars > 0 {
		out.ContextualChars = cfg.ContextualChars
	}
	if cfg.ContextBudget > 0 {
		out.DefaultBudget = cfg.ContextBudget
	}
	out.ProductFullLength = cfg.ProductFullLength
	return out
}
