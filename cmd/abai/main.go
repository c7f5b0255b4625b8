package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/abai/internal/config"
	"github.com/kailas-cloud/abai/internal/db"
	dbRedis "github.com/kailas-cloud/abai/internal/db/redis"
	"github.com/kailas-cloud/abai/internal/db/sqlite"
	"github.com/kailas-cloud/abai/internal/domain"
	logpkg "github.com/kailas-cloud/abai/internal/logger"
	"github.com/kailas-cloud/abai/internal/metrics"
	"github.com/kailas-cloud/abai/internal/persona"
	budgetrepo "github.com/kailas-cloud/abai/internal/repository/budget"
	convrepo "github.com/kailas-cloud/abai/internal/repository/conversation"
	"github.com/kailas-cloud/abai/internal/repository/embcache"
	chiTransport "github.com/kailas-cloud/abai/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/abai/internal/transport/openai"
	"github.com/kailas-cloud/abai/internal/transport/ws"
	"github.com/kailas-cloud/abai/internal/usecase/answer"
	"github.com/kailas-cloud/abai/internal/usecase/budget"
	chatuc "github.com/kailas-cloud/abai/internal/usecase/chat"
	conversationuc "github.com/kailas-cloud/abai/internal/usecase/conversation"
	embeddinguc "github.com/kailas-cloud/abai/internal/usecase/embedding"
	faquc "github.com/kailas-cloud/abai/internal/usecase/faq"
	generationuc "github.com/kailas-cloud/abai/internal/usecase/generation"
	healthuc "github.com/kailas-cloud/abai/internal/usecase/health"
	knowledgeuc "github.com/kailas-cloud/abai/internal/usecase/knowledge"
	"github.com/kailas-cloud/abai/internal/usecase/memory"
	"github.com/kailas-cloud/abai/internal/usecase/prompt"
	usageuc "github.com/kailas-cloud/abai/internal/usecase/usage"
	"github.com/kailas-cloud/abai/internal/usecase/warmup"
	"github.com/kailas-cloud/abai/internal/version"
)

const (
	warmupInitialBackoff = 2 * time.Second
	warmupMaxBackoff     = time.Minute
)

func main() {
	// .env is optional; real environment wins
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting abai server",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_path", cfg.Database.Path),
		zap.Strings("cache_addrs", cfg.Cache.Addrs),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterGenerationMetrics()
	metrics.RegisterPipelineMetrics()
	metrics.RegisterBudgetMetrics()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	sqlDB, err := sqlite.Open(ctx, cfg.Database.Path)
	if err != nil {
		logger.Fatal("Failed to open conversation store", zap.Error(err))
	}
	defer func() { _ = sqlDB.Close() }()
	conversations := convrepo.New(sqlDB)

	// Optional KV store for the embedding cache and budget counters
	var store db.Store
	if cfg.Cache.Enabled() {
		kv, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Username: cfg.Cache.Username,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer kv.Close()

		if err := kv.WaitForReady(ctx, time.Duration(cfg.Cache.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Cache not ready", zap.Error(err))
		}
		store = kv
		logger.Info("Connected to cache")
	}

	// One token budget shared by both embedders, the generator and the usage service.
	var tracker *budget.Tracker
	if cfg.Budget.DailyTokenLimit > 0 || cfg.Budget.MonthlyTokenLimit > 0 {
		tracker = budget.New(
			cfg.Embedding.Provider, cfg.Budget.DailyTokenLimit, cfg.Budget.MonthlyTokenLimit,
			budget.ParseAction(cfg.Budget.Action), logger,
		)
		if store != nil {
			tracker.WithStore(ctx, budgetrepo.New(store, budgetrepo.DefaultDailyTTL, budgetrepo.DefaultMonthlyTTL))
		}
	}

	// Pass nil interfaces (not typed nil pointers!) if the budget is not configured.
	var (
		embedBudget  embeddinguc.Budget
		genBudget    generationuc.Budget
		budgetReader usageuc.BudgetReader
	)
	if tracker != nil {
		embedBudget, genBudget, budgetReader = tracker, tracker, tracker
	}

	docEmbedder := buildEmbedder(cfg, cfg.Embedding.DocumentInstruction, store, embedBudget, logger)
	queryEmbedder := buildEmbedder(cfg, cfg.Embedding.QueryInstruction, store, embedBudget, logger)
	logger.Info("Embedders created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	generator := generationuc.NewInstrumentedGenerator(
		openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
			APIKey:      cfg.Generation.APIKey,
			BaseURL:     cfg.Generation.BaseURL,
			Model:       cfg.Generation.Model,
			MaxTokens:   cfg.Generation.MaxTokens,
			Temperature: cfg.Generation.Temperature,
			Logger:      logger,
		}),
		genBudget, logger,
	)

	p, err := persona.Load(cfg.Persona.Path)
	if err != nil {
		logger.Fatal("Failed to load persona", zap.String("path", cfg.Persona.Path), zap.Error(err))
	}
	topics, err := p.Topics()
	if err != nil {
		logger.Fatal("Invalid persona topics", zap.Error(err))
	}
	chunks, err := p.Chunks()
	if err != nil {
		logger.Fatal("Invalid persona knowledge", zap.Error(err))
	}

	// Embeddings are computed in the background; until then answers skip FAQ and retrieval.
	gate := &warmup.Gate{}
	loader := warmup.NewLoader(queryEmbedder, docEmbedder, gate, cfg.Pipeline.WarmupConcurrency, logger)
	go func() {
		if err := loader.Run(ctx, topics, chunks, warmupInitialBackoff, warmupMaxBackoff); err != nil &&
			!errors.Is(err, context.Canceled) {
			logger.Error("Warmup stopped", zap.Error(err))
		}
	}()

	answerSvc := answer.New(answer.Deps{
		FAQ: faquc.New(queryEmbedder, gate, p.ComplexityFilter(), cfg.Pipeline.FAQThreshold, logger),
		Retriever: knowledgeuc.New(queryEmbedder, gate, logger,
			knowledgeuc.WithTopK(cfg.Pipeline.RetrievalTopK),
			knowledgeuc.WithMinScore(cfg.Pipeline.RetrievalMinScore),
		),
		Composer: prompt.New(prompt.Config{
			SystemPrompt:  p.SystemPrompt,
			Clause:        p.Language.Clause,
			Substitutions: p.Substitutions(),
			Header:        p.Context.Header,
			FactsPreamble: p.Context.FactsPreamble,
			NoFacts:       p.Context.NoFacts,
		}),
		History:   memory.NewLoader(conversations, logger),
		Generator: generator,
	}, answer.Config{
		HistoryLimit: cfg.Pipeline.HistoryLimit,
		Timeout:      time.Duration(cfg.Generation.TimeoutSec) * time.Second,
		Apologies:    p.ApologiesByLanguage(),
	}, logger)

	convSvc := conversationuc.New(conversations)
	chatSvc := chatuc.New(convSvc, conversations, answerSvc)

	usageSvc := usageuc.New(budgetReader)

	healthDeps := healthuc.Deps{
		Database:   conversations,
		Embedding:  newEmbeddingHealthChecker(docEmbedder),
		Generation: generator,
		Warmup:     gate,
	}
	if store != nil {
		healthDeps.Cache = store
	}
	healthSvc := healthuc.New(healthDeps)

	server := chiTransport.NewServer(convSvc, chatSvc, usageSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(chiTransport.Recoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(chiTransport.WideEvent(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Mount(r)
	wsHandler := ws.NewHandler(convSvc, chatSvc, cfg.HTTP.AllowedOrigins, logger)
	r.Handle("/ws", wsHandler)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	// hijacked websocket connections are not tracked by srv
	if err := wsHandler.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error draining websocket sessions", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// embeddingHealthChecker wraps domain.Embedder to implement health.BackendChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction
func buildEmbedder(
	cfg config.Config,
	instruction string,
	store db.Store,
	b embeddinguc.Budget,
	logger *zap.Logger,
) domain.Embedder {
	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})

	var embedder domain.Embedder = base
	if store != nil {
		ttl := time.Duration(cfg.Cache.TTLHours) * time.Hour
		embedder = embcache.New(base, store, cfg.Embedding.Model, ttl, metrics.EmbeddingCacheTotal, logger)
	}

	embedder = embeddinguc.NewInstrumentedEmbedder(
		embedder, cfg.Embedding.Provider, cfg.Embedding.Model, b, logger,
	)

	// Instruction prefix is outermost so the cache key includes it
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}

	return embedder
}
