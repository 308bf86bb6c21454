package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"pdfchat/internal/ai"
	appsvc "pdfchat/internal/app"
	"pdfchat/internal/cache"
	"pdfchat/internal/config"
	"pdfchat/internal/model"
	"pdfchat/internal/pkg/pdfextract"
	mysqlClient "pdfchat/internal/platform/mysql"
	rabbitmqClient "pdfchat/internal/platform/rabbitmq"
	redisClient "pdfchat/internal/platform/redis"
	"pdfchat/internal/rag"
	"pdfchat/internal/repository"
	"pdfchat/internal/store"
	"pdfchat/internal/vectorindex"
	"pdfchat/internal/worker"
)

type App struct {
	Config     *config.Config
	MySQL      *gorm.DB
	Redis      *redis.Client
	MQConn     *amqp.Connection
	Publisher  *rabbitmqClient.TurnPublisher
	TurnWorker *worker.TurnPersistWorker

	Index     vectorindex.Index
	Embedder  *rag.Embedder
	Retriever *rag.Retriever
	Ingest    *appsvc.IngestService
	Chat      *appsvc.ChatService

	StartedAt time.Time
}

// New connects every backing service and wires the full server.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, StartedAt: time.Now()}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN(), mysqlClient.Pool{
		MaxIdleConns: cfg.MySQL.MaxIdle,
		MaxOpenConns: cfg.MySQL.MaxOpen,
	})
	if err != nil {
		return err
	}
	a.MySQL = mysqlDB
	if err := mysqlDB.AutoMigrate(&model.Chat{}, &model.Message{}, &model.Document{}); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, redisClient.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	a.Redis = redisCli

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.TurnPersistQueue)
	if err != nil {
		return err
	}
	a.MQConn = mqConn

	if err := a.initRetrieval(ctx); err != nil {
		return err
	}

	conversationRepo := repository.NewConversationRepository(mysqlDB)
	documentRepo := repository.NewDocumentRepository(mysqlDB)

	a.TurnWorker = worker.NewTurnPersistWorker(mqConn, conversationRepo, cfg.RabbitMQ.TurnPersistQueue)
	if err := a.TurnWorker.Start(ctx); err != nil {
		return fmt.Errorf("start turn worker failed: %w", err)
	}
	a.Publisher = rabbitmqClient.NewTurnPublisher(mqConn, cfg.RabbitMQ.TurnPersistQueue)

	conversations := store.NewQueuedConversationStore(
		cache.NewConversationCache(redisCli, cfg.Redis.HistoryTTL()),
		conversationRepo,
		a.Publisher,
	)
	a.Ingest = appsvc.NewIngestService(a.Embedder, a.Index, documentRepo, ingestOptions(cfg))
	a.Chat = appsvc.NewChatService(
		ai.NewModelFactory(chatConfig(cfg)),
		conversations,
		cache.NewTurnGuard(redisCli, cfg.Redis.TurnGuardTTL()),
		a.Retriever,
		chatOptions(cfg),
	)
	return nil
}

// NewStandalone wires chat for a single process: conversations stay in
// memory and only the vector index (and redis, when it backs the index) is
// contacted.
func NewStandalone(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, StartedAt: time.Now()}
	if cfg.Vector.Backend == "redis" {
		redisCli, err := redisClient.New(ctx, redisClient.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		a.Redis = redisCli
	}
	if err := a.initRetrieval(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Chat = appsvc.NewChatService(
		ai.NewModelFactory(chatConfig(cfg)),
		store.NewMemoryConversationStore(),
		nil,
		a.Retriever,
		chatOptions(cfg),
	)
	return a, nil
}

func (a *App) initRetrieval(ctx context.Context) error {
	cfg := a.Config
	index, err := newIndex(ctx, cfg, a.Redis)
	if err != nil {
		return err
	}
	a.Index = index

	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		return err
	}
	a.Embedder = embedder
	a.Retriever = rag.NewRetriever(embedder, index, rag.RetrieverOptions{
		TopK:       cfg.Retrieval.TopK,
		MaxResults: cfg.Retrieval.MaxResults,
		MinScore:   cfg.Retrieval.MinScore,
	})
	return nil
}

func newIndex(ctx context.Context, cfg *config.Config, redisCli *redis.Client) (vectorindex.Index, error) {
	switch cfg.Vector.Backend {
	case "memory":
		return vectorindex.NewMemoryIndex(cfg.Vector.UpsertBatchSize), nil
	case "redis":
		if redisCli == nil {
			return nil, fmt.Errorf("redis vector backend needs a redis connection")
		}
		index := vectorindex.NewRedisIndex(redisCli, vectorindex.RedisConfig{
			IndexName:  cfg.Vector.IndexName,
			KeyPrefix:  cfg.Vector.KeyPrefix,
			Dimensions: cfg.Embedding.Dimensions,
			BatchSize:  cfg.Vector.UpsertBatchSize,
			Timeout:    cfg.Vector.Timeout(),
		})
		if err := index.EnsureIndex(ctx); err != nil {
			return nil, fmt.Errorf("ensure vector index failed: %w", err)
		}
		return index, nil
	default:
		return nil, fmt.Errorf("unsupported vector backend %q", cfg.Vector.Backend)
	}
}

func newEmbedder(ctx context.Context, cfg *config.Config) (*rag.Embedder, error) {
	provider, err := ai.NewEmbedder(ctx, ai.EmbeddingConfig{
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout(),
	})
	if err != nil {
		return nil, err
	}
	return rag.NewEmbedder(provider, rag.EmbedderOptions{
		BatchSize:         cfg.Embedding.BatchSize,
		Concurrency:       cfg.Embedding.Concurrency,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Timeout:           cfg.Embedding.Timeout(),
	}), nil
}

func chatConfig(cfg *config.Config) ai.ChatConfig {
	return ai.ChatConfig{
		BaseURL:      cfg.LLM.BaseURL,
		APIKey:       cfg.LLM.APIKey,
		DefaultModel: cfg.LLM.DefaultModel,
		Timeout:      cfg.LLM.Timeout(),
	}
}

func chatOptions(cfg *config.Config) appsvc.ChatOptions {
	return appsvc.ChatOptions{
		ForceRetrieval:     cfg.LLM.ForceRetrieval,
		StreamBuffer:       cfg.LLM.StreamBuffer,
		MaxHistoryMessages: cfg.LLM.MaxHistoryMessages,
	}
}

func ingestOptions(cfg *config.Config) appsvc.IngestOptions {
	return appsvc.IngestOptions{
		Chunking: rag.ChunkOptions{
			MaxChunkSize: cfg.Chunking.MaxChunkSize,
			OverlapSize:  cfg.Chunking.OverlapSize,
			MinChunkSize: cfg.Chunking.MinChunkSize,
		},
		PDF: pdfextract.Options{LineTolerance: cfg.PDF.LineTolerance},
	}
}

func (a *App) Close() error {
	var closeErr error
	if a.TurnWorker != nil {
		a.TurnWorker.Close()
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
